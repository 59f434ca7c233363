package watch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Snapshot is one response from the status endpoint, normalized for the
// reconciler. It mirrors the server's {status, progress, message, result?}
// shape.
type Snapshot struct {
	Status   string
	Progress float64
	Message  string
	Result   map[string]interface{}
}

// Update converts the snapshot to the reconciler's merge shape. An invalid
// status string yields a state-less update, which the reconciler treats as
// carrying no state transition.
func (s *Snapshot) Update() Update {
	u := Update{
		Message: s.Message,
		Result:  s.Result,
	}
	if IsValidState(s.Status) {
		u.State = JobState(s.Status)
		p := s.Progress
		u.Progress = &p
	}
	return u
}

// StatusFetcher is the poll fallback's data source, satisfied by api.Client.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, jobID string) (*Snapshot, error)
}

// Poller backstops gaps in push delivery by requesting status snapshots on
// a fixed interval. A failed poll is no update this tick, retried on the
// next one; polling never fails the job. The poller stops on its own the
// moment the reconciled state turns terminal.
type Poller struct {
	jobID    string
	fetcher  StatusFetcher
	rec      *Reconciler
	interval time.Duration
	logger   *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoller creates a poll fallback feeding rec. interval zero or negative
// falls back to 2 seconds.
func NewPoller(jobID string, fetcher StatusFetcher, rec *Reconciler, interval time.Duration, logger *zap.SugaredLogger) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Poller{
		jobID:    jobID,
		fetcher:  fetcher,
		rec:      rec,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the poll loop. Non-blocking.
func (p *Poller) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.run()
}

// Stop cancels the poll timer and waits for the loop to exit.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			status := p.rec.Status()
			if status.State.Terminal() {
				return
			}
			// While pending with a live push channel the first transition
			// will arrive by push; polling starts mattering once running
			// or whenever the channel is down.
			if status.State == StatePending && status.Connected {
				continue
			}

			p.poll()
		}
	}
}

func (p *Poller) poll() {
	snap, err := p.fetcher.FetchStatus(p.ctx, p.jobID)
	if err != nil {
		p.logger.Debugw("Status poll failed, retrying next tick",
			"job_id", p.jobID,
			"error", err,
		)
		return
	}

	p.rec.Apply(snap.Update())
}
