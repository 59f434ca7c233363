// Package watch keeps a client's view of a long-running pipeline job
// synchronized with the job's true state on the server.
//
// Two input sources feed one authoritative record: a persistent WebSocket
// channel pushing envelopes (ConnManager) and a REST status poll backstop
// (Poller). Both are merged by the Reconciler under a rank-based discard
// rule, so out-of-order delivery between the sources cannot regress the
// recorded state.
package watch

// JobState represents the externally-reported state of a pipeline job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
)

// IsValidState returns true if the state string is a valid JobState
func IsValidState(s string) bool {
	switch JobState(s) {
	case StatePending, StateRunning, StateCompleted, StateFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether the state permits no further transitions.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// rank places states in the total order used to discard stale updates:
// pending < running < {completed, failed}. The two terminal states share a
// rank; once either is recorded, the other is rejected by the terminal
// check rather than by rank.
func (s JobState) rank() int {
	switch s {
	case StatePending:
		return 0
	case StateRunning:
		return 1
	case StateCompleted, StateFailed:
		return 2
	default:
		return -1
	}
}

// JobStatus is the reconciled, externally visible record for one job.
type JobStatus struct {
	JobID    string                 `json:"job_id"`
	State    JobState               `json:"state"`
	Progress float64                `json:"progress"`
	Message  string                 `json:"message,omitempty"`
	Result   map[string]interface{} `json:"result,omitempty"`

	// Connected is true while a push channel is currently open. Purely
	// informational; state and progress are correct without it.
	Connected bool `json:"connected"`
}

// Clone returns a copy safe to hand to subscribers while the reconciler
// keeps mutating its own record. The result map is shared: it is set once
// and never mutated afterwards.
func (s JobStatus) Clone() JobStatus {
	return s
}
