package watch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/glbala87/SPARC/errors"
)

// Options configures a subscription.
type Options struct {
	// Dialer opens the push channel. Required.
	Dialer Dialer

	// Fetcher serves poll fallback snapshots. Required.
	Fetcher StatusFetcher

	// PollInterval for the status fallback. Defaults to 2 seconds.
	PollInterval time.Duration

	// ReconnectDelay after a channel drop. Defaults to 5 seconds.
	ReconnectDelay time.Duration

	// UpdateBuffer sizes the subscriber channel. Defaults to 64.
	UpdateBuffer int

	// Logger for lifecycle and protocol events. Defaults to a nop logger.
	Logger *zap.SugaredLogger
}

// Watcher is one live subscription to a job's status. It owns the push
// channel, the poll fallback and the reconciled record, and tears all
// three down once the job is terminal or the consumer unsubscribes.
type Watcher struct {
	jobID  string
	rec    *Reconciler
	conn   *ConnManager
	poller *Poller
	logger *zap.SugaredLogger

	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
}

// Subscribe creates the JobStatus record for jobID (initial state pending)
// and starts both input sources. The returned watcher emits every record
// change on Updates until a terminal state is reached or Unsubscribe is
// called, after which Updates is closed.
func Subscribe(ctx context.Context, jobID string, opts Options) (*Watcher, error) {
	if jobID == "" {
		return nil, errors.New("job id cannot be empty")
	}
	if opts.Dialer == nil {
		return nil, errors.New("dialer is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("status fetcher is required")
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	rec := NewReconciler(jobID, opts.UpdateBuffer, log)

	wctx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		jobID:  jobID,
		rec:    rec,
		conn:   NewConnManager(jobID, opts.Dialer, rec, opts.ReconnectDelay, log),
		poller: NewPoller(jobID, opts.Fetcher, rec, opts.PollInterval, log),
		logger: log,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	w.conn.Start(wctx)
	w.poller.Start(wctx)

	go func() {
		select {
		case <-rec.Terminal():
			w.logger.Infow("Job reached terminal state",
				"job_id", jobID,
				"state", rec.State(),
			)
			w.teardown()
		case <-wctx.Done():
			w.teardown()
		}
	}()

	w.logger.Debugw("Subscribed to job status", "job_id", jobID)
	return w, nil
}

// Updates returns the stream of reconciled status records. Closed on
// terminal state or unsubscription.
func (w *Watcher) Updates() <-chan JobStatus {
	return w.rec.Updates()
}

// Status returns the current reconciled record.
func (w *Watcher) Status() JobStatus {
	return w.rec.Status()
}

// Done returns a channel closed once the subscription is fully torn down:
// channel closed, reconnect and poll timers cancelled.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Unsubscribe stops both input sources and closes Updates. Safe to call
// more than once and after a terminal state.
func (w *Watcher) Unsubscribe() {
	w.teardown()
}

func (w *Watcher) teardown() {
	w.stopOnce.Do(func() {
		w.cancel()
		w.conn.Stop()
		w.poller.Stop()
		w.rec.Close()
		close(w.done)
		w.logger.Debugw("Subscription torn down", "job_id", w.jobID)
	})
}
