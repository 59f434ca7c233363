package watch

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/glbala87/SPARC/errors"
)

// fakeConn is a scripted channel endpoint. Frames queued on in are served to
// ReadMessage in order; outbound WriteJSON payloads are captured on out.
type fakeConn struct {
	in     chan []byte
	out    chan Envelope
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		out:    make(chan Envelope, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) deliver(t *testing.T, raw string) {
	t.Helper()
	select {
	case c.in <- []byte(raw):
	case <-time.After(time.Second):
		t.Fatal("fake conn inbound queue full")
	}
}

// drop ends the inbound stream, surfacing as a read error after any queued
// frames have been consumed.
func (c *fakeConn) drop() {
	close(c.in)
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case raw, ok := <-c.in:
		if !ok {
			return 0, nil, io.ErrUnexpectedEOF
		}
		return 1, raw, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return err
	}
	select {
	case c.out <- env:
	default:
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// fakeDialer hands out scripted connections, one per dial, then fails.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	dials int
}

func (d *fakeDialer) Dial(ctx context.Context, jobID string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.conns) == 0 {
		return nil, errors.New("dial refused")
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func newTestConnManager(t *testing.T, dialer Dialer, rec *Reconciler) *ConnManager {
	t.Helper()
	return NewConnManager("job-1", dialer, rec, 10*time.Millisecond, zap.NewNop().Sugar())
}

func waitForState(t *testing.T, rec *Reconciler, want JobState) {
	t.Helper()
	require.Eventually(t, func() bool {
		return rec.State() == want
	}, time.Second, time.Millisecond)
}

func TestConnManagerAppliesEnvelopes(t *testing.T) {
	rec := newTestReconciler(t, "job-1")
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}

	m := newTestConnManager(t, dialer, rec)
	m.Start(context.Background())
	defer m.Stop()

	conn.deliver(t, `{"type":"progress","job_id":"job-1","status":"running","progress":0.4,"message":"aligning"}`)
	waitForState(t, rec, StateRunning)

	status := rec.Status()
	assert.Equal(t, 0.4, status.Progress)
	assert.Equal(t, "aligning", status.Message)
	assert.True(t, status.Connected)
}

func TestConnManagerAnswersHeartbeat(t *testing.T) {
	rec := newTestReconciler(t, "job-1")
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}

	m := newTestConnManager(t, dialer, rec)
	m.Start(context.Background())
	defer m.Stop()

	conn.deliver(t, `{"type":"heartbeat"}`)
	conn.deliver(t, `{"type":"progress","status":"running","progress":0.1}`)

	// The loop is sequential: by the time the progress frame has been
	// applied, the heartbeat reply must already be on the wire.
	waitForState(t, rec, StateRunning)

	select {
	case reply := <-conn.out:
		assert.Equal(t, EnvelopePing, reply.Type)
	default:
		t.Fatal("heartbeat went unanswered")
	}
	assert.Empty(t, conn.out, "exactly one reply per heartbeat")
}

func TestConnManagerIgnoresPong(t *testing.T) {
	rec := newTestReconciler(t, "job-1")
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}

	m := newTestConnManager(t, dialer, rec)
	m.Start(context.Background())
	defer m.Stop()

	conn.deliver(t, `{"type":"pong"}`)
	conn.deliver(t, `{"type":"progress","status":"running","progress":0.2}`)
	waitForState(t, rec, StateRunning)

	assert.Empty(t, conn.out)
}

func TestConnManagerDropsUndecodableFrames(t *testing.T) {
	rec := newTestReconciler(t, "job-1")
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}

	m := newTestConnManager(t, dialer, rec)
	m.Start(context.Background())
	defer m.Stop()

	// A bad frame must not end the read loop; the next frame still lands.
	conn.deliver(t, `not even json`)
	conn.deliver(t, `{"type":"telemetry"}`)
	conn.deliver(t, `{"type":"progress","status":"running","progress":0.3}`)

	waitForState(t, rec, StateRunning)
	assert.Equal(t, 0.3, rec.Status().Progress)
}

func TestConnManagerReconnectsAfterDrop(t *testing.T) {
	rec := newTestReconciler(t, "job-1")
	first := newFakeConn()
	second := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{first, second}}

	m := newTestConnManager(t, dialer, rec)
	m.Start(context.Background())
	defer m.Stop()

	first.deliver(t, `{"type":"progress","status":"running","progress":0.4}`)
	waitForState(t, rec, StateRunning)
	first.drop()

	// The job is still running, so the manager redials after its delay and
	// envelopes flow again on the new connection.
	require.Eventually(t, func() bool {
		return dialer.dialCount() == 2 && m.State() == stateConnected
	}, time.Second, time.Millisecond)

	second.deliver(t, `{"type":"progress","status":"running","progress":0.7}`)
	require.Eventually(t, func() bool {
		return rec.Status().Progress == 0.7
	}, time.Second, time.Millisecond)
}

func TestConnManagerConnectedFlagTracksChannel(t *testing.T) {
	rec := newTestReconciler(t, "job-1")
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}

	m := newTestConnManager(t, dialer, rec)
	m.Start(context.Background())
	defer m.Stop()

	require.Eventually(t, func() bool {
		return rec.Status().Connected
	}, time.Second, time.Millisecond)

	conn.drop()
	require.Eventually(t, func() bool {
		return !rec.Status().Connected
	}, time.Second, time.Millisecond)
}

func TestConnManagerStopsOnTerminalState(t *testing.T) {
	rec := newTestReconciler(t, "job-1")
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}

	m := newTestConnManager(t, dialer, rec)
	m.Start(context.Background())

	conn.deliver(t, `{"type":"progress","status":"failed","message":"index missing"}`)
	waitForState(t, rec, StateFailed)
	conn.drop()

	// Terminal state, no redial.
	require.Eventually(t, func() bool {
		return m.State() == stateClosed
	}, time.Second, time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, dialer.dialCount())
	m.Stop()
}

func TestConnManagerRetriesFailedDial(t *testing.T) {
	rec := newTestReconciler(t, "job-1")
	dialer := &fakeDialer{} // every dial refused

	m := newTestConnManager(t, dialer, rec)
	m.Start(context.Background())
	defer m.Stop()

	require.Eventually(t, func() bool {
		return dialer.dialCount() >= 3
	}, time.Second, time.Millisecond)
}

func TestConnManagerStopIsDeterministic(t *testing.T) {
	rec := newTestReconciler(t, "job-1")
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}

	m := newTestConnManager(t, dialer, rec)
	m.Start(context.Background())

	require.Eventually(t, func() bool {
		return m.State() == stateConnected
	}, time.Second, time.Millisecond)

	// Stop returns only after the read loop has exited; no goroutine keeps
	// feeding the reconciler afterwards.
	m.Stop()
	assert.Equal(t, stateClosed, m.State())
	assert.False(t, rec.Status().Connected)
}

func TestConnStateString(t *testing.T) {
	assert.Equal(t, "disconnected", stateDisconnected.String())
	assert.Equal(t, "connected", stateConnected.String())
	assert.Equal(t, "reconnect-pending", stateReconnectPending.String())
	assert.Equal(t, "closed", stateClosed.String())
}
