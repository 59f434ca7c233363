package watch

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/glbala87/SPARC/errors"
)

// Conn abstracts the WebSocket connection for testability.
// The real implementation wraps gorilla/websocket; tests use a channel pair.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	Close() error
}

// Dialer opens a push channel scoped to one job id.
type Dialer interface {
	Dial(ctx context.Context, jobID string) (Conn, error)
}

// WebsocketDialer dials the server's per-job envelope stream.
type WebsocketDialer struct {
	// URLForJob maps a job id to its channel address
	// (ws://host/ws/pipeline/{id}).
	URLForJob func(jobID string) string

	// HandshakeTimeout bounds the opening handshake. Zero means the
	// gorilla default.
	HandshakeTimeout time.Duration

	// ReadTimeout bounds the silence between frames. Server heartbeats
	// arrive well inside it on a healthy channel. Zero disables the
	// deadline.
	ReadTimeout time.Duration
}

// Dial opens the channel for jobID.
func (d *WebsocketDialer) Dial(ctx context.Context, jobID string) (Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, d.URLForJob(jobID), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, errors.Wrapf(errors.ErrJobNotFound, "no channel for job %s", jobID)
		}
		return nil, errors.Wrapf(err, "failed to open channel for job %s", jobID)
	}

	if d.ReadTimeout > 0 {
		return &deadlineConn{Conn: conn, timeout: d.ReadTimeout}, nil
	}
	return conn, nil
}

// deadlineConn refreshes the read deadline before every read so a silently
// dropped connection surfaces as a read error instead of a hang.
type deadlineConn struct {
	*websocket.Conn
	timeout time.Duration
}

func (c *deadlineConn) ReadMessage() (int, []byte, error) {
	c.Conn.SetReadDeadline(time.Now().Add(c.timeout))
	return c.Conn.ReadMessage()
}

// connState enumerates the connection manager lifecycle.
type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
	stateReconnectPending
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateDisconnected:
		return "disconnected"
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	case stateReconnectPending:
		return "reconnect-pending"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnManager owns the lifecycle of one persistent channel per job id:
// open, heartbeat-respond, reconnect-on-drop, close-on-terminal-state.
//
// Whether to reconnect after a drop is a pure function of the reconciled
// job state (consulted via rec.State) and the channel event; nothing is
// captured inside timer closures. There is no bound on reconnection
// attempts while the job remains non-terminal.
type ConnManager struct {
	jobID          string
	dialer         Dialer
	rec            *Reconciler
	reconnectDelay time.Duration
	logger         *zap.SugaredLogger

	mu    sync.Mutex
	state connState
	conn  Conn

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConnManager creates a connection manager feeding rec. reconnectDelay
// zero or negative falls back to 5 seconds.
func NewConnManager(jobID string, dialer Dialer, rec *Reconciler, reconnectDelay time.Duration, logger *zap.SugaredLogger) *ConnManager {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	return &ConnManager{
		jobID:          jobID,
		dialer:         dialer,
		rec:            rec,
		reconnectDelay: reconnectDelay,
		logger:         logger,
		state:          stateDisconnected,
	}
}

// Start opens the channel and keeps it open until Stop is called or the
// reconciled state turns terminal. Non-blocking.
func (m *ConnManager) Start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go m.run()
}

// Stop tears the channel down deterministically: cancels any pending
// reconnect timer, closes the open connection and waits for the read loop
// to exit.
func (m *ConnManager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}

	m.mu.Lock()
	if m.conn != nil {
		m.conn.Close()
	}
	m.mu.Unlock()

	m.wg.Wait()
	m.setState(stateClosed)
}

// State returns the current lifecycle state.
func (m *ConnManager) State() connState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *ConnManager) setState(s connState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *ConnManager) run() {
	defer m.wg.Done()

	for {
		if m.ctx.Err() != nil || m.rec.State().Terminal() {
			m.setState(stateClosed)
			return
		}

		m.setState(stateConnecting)
		connID := uuid.NewString()[:8]

		conn, err := m.dialer.Dial(m.ctx, m.jobID)
		if err != nil {
			m.logger.Warnw("Channel open failed",
				"job_id", m.jobID,
				"conn_id", connID,
				"error", err,
			)
		} else {
			m.mu.Lock()
			m.conn = conn
			m.state = stateConnected
			m.mu.Unlock()

			m.rec.SetConnected(true)
			m.logger.Debugw("Channel open", "job_id", m.jobID, "conn_id", connID)

			readErr := m.readLoop(conn)
			conn.Close()

			m.mu.Lock()
			m.conn = nil
			m.mu.Unlock()

			m.rec.SetConnected(false)
			m.logger.Debugw("Channel closed",
				"job_id", m.jobID,
				"conn_id", connID,
				"error", readErr,
			)
		}

		// Reconnect decision: (recorded state, channel event) only
		if m.ctx.Err() != nil || m.rec.State().Terminal() {
			m.setState(stateClosed)
			return
		}

		m.setState(stateReconnectPending)
		m.logger.Debugw("Scheduling channel reopen",
			"job_id", m.jobID,
			"delay", m.reconnectDelay,
		)

		timer := time.NewTimer(m.reconnectDelay)
		select {
		case <-m.ctx.Done():
			timer.Stop()
			m.setState(stateClosed)
			return
		case <-timer.C:
		}
	}
}

// readLoop applies envelopes in arrival order until the channel errors or
// closes. Decode failures are dropped and logged; they never end the loop.
func (m *ConnManager) readLoop(conn Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				m.logger.Warnw("Channel read error",
					"job_id", m.jobID,
					"error", err,
				)
			}
			return err
		}

		env, err := DecodeEnvelope(raw)
		if err != nil {
			m.logger.Warnw("Dropping undecodable envelope",
				"job_id", m.jobID,
				"size_bytes", len(raw),
				"error", err,
			)
			continue
		}

		switch env.Type {
		case EnvelopeHeartbeat:
			// Reply before any other processing continues
			if err := conn.WriteJSON(Envelope{Type: EnvelopePing}); err != nil {
				return errors.Wrap(err, "failed to answer heartbeat")
			}
		case EnvelopePong:
			// Liveness acknowledgement only, no state
		case EnvelopeProgress, EnvelopeResult:
			m.rec.Apply(env.Update())
		}
	}
}
