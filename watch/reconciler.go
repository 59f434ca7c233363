package watch

import (
	"sync"

	"go.uber.org/zap"
)

// Update is a normalized status report from either input source: a push
// envelope or a poll snapshot. Absent fields are left untouched by the merge.
type Update struct {
	// State is the reported job state, or "" when the update carries none
	// (result envelopes omit it).
	State JobState

	// Progress is the reported completion fraction, or nil when absent.
	Progress *float64

	// Message is the human-readable status line. An empty message leaves
	// the recorded message untouched.
	Message string

	// Result is the structured result payload, or nil when absent.
	Result map[string]interface{}
}

// Reconciler merges push envelopes and poll snapshots into one monotonic
// JobStatus record. Apply is the single critical section: all mutations to
// the record are serialized here regardless of which goroutine delivers them.
type Reconciler struct {
	logger *zap.SugaredLogger

	mu       sync.Mutex
	status   JobStatus
	closed   bool
	updates  chan JobStatus
	terminal chan struct{}
	termOnce sync.Once
}

// NewReconciler creates a reconciler for one job id. The record starts in
// state pending. buffer sizes the subscriber update channel; updates beyond
// it are dropped (the record itself is always current via Status).
func NewReconciler(jobID string, buffer int, logger *zap.SugaredLogger) *Reconciler {
	if buffer <= 0 {
		buffer = 64
	}
	return &Reconciler{
		logger:   logger,
		status:   JobStatus{JobID: jobID, State: StatePending},
		updates:  make(chan JobStatus, buffer),
		terminal: make(chan struct{}),
	}
}

// Status returns a copy of the current record.
func (r *Reconciler) Status() JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status.Clone()
}

// State returns the current reconciled job state. The connection manager
// consults this before scheduling a reconnect, and the poller before a tick.
func (r *Reconciler) State() JobState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status.State
}

// Updates returns the subscriber channel. It is closed by Close once all
// producers have stopped.
func (r *Reconciler) Updates() <-chan JobStatus {
	return r.updates
}

// Terminal returns a channel closed when the record reaches completed or
// failed.
func (r *Reconciler) Terminal() <-chan struct{} {
	return r.terminal
}

// Apply merges one update into the record and returns the resulting status.
//
// The merge is commutative and idempotent with respect to the final recorded
// state: a stale update whose state ranks below the recorded state is
// discarded entirely, progress never decreases, and result is set at most
// once. A result-bearing update forces state completed unless the record is
// already failed.
func (r *Reconciler) Apply(u Update) JobStatus {
	r.mu.Lock()

	if r.status.State.Terminal() {
		out := r.applyTerminalLocked(u)
		r.mu.Unlock()
		return out
	}

	// Rank rule: discard the whole update if it reports a state behind the
	// recorded one. Protects against a slow poll response arriving after a
	// push already advanced the state, and vice versa.
	if u.State != "" && u.State.rank() < r.status.State.rank() {
		r.logger.Debugw("Discarding stale status update",
			"job_id", r.status.JobID,
			"recorded_state", r.status.State,
			"reported_state", u.State,
		)
		out := r.status.Clone()
		r.mu.Unlock()
		return out
	}

	if u.State != "" {
		r.status.State = u.State
	}
	if u.Message != "" {
		r.status.Message = u.Message
	}
	if u.Progress != nil && r.status.State == StateRunning && *u.Progress > r.status.Progress {
		r.status.Progress = *u.Progress
	}
	if u.Result != nil && r.status.Result == nil {
		r.status.Result = u.Result
	}

	// A result payload implies completion
	if r.status.Result != nil && !r.status.State.Terminal() {
		r.status.State = StateCompleted
	}

	out := r.status.Clone()
	reachedTerminal := r.status.State.Terminal()
	r.emitLocked(out)
	r.mu.Unlock()

	if reachedTerminal {
		r.signalTerminal()
	}
	return out
}

// applyTerminalLocked handles updates arriving after the record is terminal.
// Terminal states never change; the only permitted mutation is filling a
// missing result or message on a completed record, which keeps duplicate
// terminal reports idempotent.
func (r *Reconciler) applyTerminalLocked(u Update) JobStatus {
	if r.status.State == StateFailed {
		return r.status.Clone()
	}
	if u.State != "" && u.State != r.status.State {
		return r.status.Clone()
	}

	changed := false
	if u.Result != nil && r.status.Result == nil {
		r.status.Result = u.Result
		changed = true
	}
	if u.Message != "" && u.Message != r.status.Message {
		r.status.Message = u.Message
		changed = true
	}

	out := r.status.Clone()
	if changed {
		r.emitLocked(out)
	}
	return out
}

// SetConnected records whether a push channel is currently open. Emits an
// update only when the flag actually changes.
func (r *Reconciler) SetConnected(connected bool) JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status.Connected != connected {
		r.status.Connected = connected
		r.emitLocked(r.status.Clone())
	}
	return r.status.Clone()
}

// Close closes the subscriber channel. Callers must ensure no producer will
// call Apply or SetConnected afterwards.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.updates)
	}
}

func (r *Reconciler) emitLocked(status JobStatus) {
	if r.closed {
		return
	}
	select {
	case r.updates <- status:
	default:
		r.logger.Debugw("Subscriber channel full, dropping status update",
			"job_id", status.JobID,
			"state", status.State,
		)
	}
}

func (r *Reconciler) signalTerminal() {
	r.termOnce.Do(func() {
		close(r.terminal)
	})
}
