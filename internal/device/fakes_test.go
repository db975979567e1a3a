package device

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rcarmo/go-devscreen/internal/framebuffer"
)

var errFakeClosed = errors.New("use of closed network connection")

type fakeMessage struct {
	messageType int
	data        []byte
}

// fakeConn is an in-memory Conn fed by the test.
type fakeConn struct {
	msgs      chan fakeMessage
	closed    chan struct{}
	closeOnce sync.Once

	mu          sync.Mutex
	written     [][]byte
	writeErr    error
	deadlineErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		msgs:   make(chan fakeMessage, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case <-c.closed:
		return 0, nil, errFakeClosed
	default:
	}

	select {
	case m := <-c.msgs:
		return m.messageType, m.data, nil
	case <-c.closed:
		return 0, nil, errFakeClosed
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeErr != nil {
		return c.writeErr
	}
	if messageType != websocket.BinaryMessage {
		return errors.New("unexpected message type")
	}
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deadlineErr
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) send(data []byte) {
	c.msgs <- fakeMessage{messageType: websocket.BinaryMessage, data: data}
}

func (c *fakeConn) writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

type dialResult struct {
	conn Conn
	err  error
}

// fakeDialer hands out queued results in order; once exhausted it fails.
type fakeDialer struct {
	mu       sync.Mutex
	results  []dialResult
	attempts int
	lastCtx  context.Context
}

func (d *fakeDialer) Dial(ctx context.Context, _ string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.attempts++
	d.lastCtx = ctx
	if len(d.results) == 0 {
		return nil, errors.New("connection refused")
	}

	r := d.results[0]
	d.results = d.results[1:]
	return r.conn, r.err
}

func (d *fakeDialer) dialCtx() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastCtx
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

// fakeScheduler records timers; tests fire them explicitly.
type fakeScheduler struct {
	scheduled chan *fakeTimer
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{scheduled: make(chan *fakeTimer, 16)}
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{delay: d, f: f}
	s.scheduled <- t
	return t
}

func (s *fakeScheduler) next(t *testing.T) *fakeTimer {
	t.Helper()
	select {
	case timer := <-s.scheduled:
		return timer
	case <-time.After(2 * time.Second):
		t.Fatal("no timer scheduled")
		return nil
	}
}

func (s *fakeScheduler) pending() int {
	return len(s.scheduled)
}

type fakeTimer struct {
	delay time.Duration
	f     func()

	mu      sync.Mutex
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (t *fakeTimer) Fire() {
	t.mu.Lock()
	if t.stopped || t.fired {
		t.mu.Unlock()
		return
	}
	t.fired = true
	t.mu.Unlock()

	t.f()
}

func (t *fakeTimer) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// syncBuffer is a bytes.Buffer safe for the client's goroutines to log into.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// recordingSink counts framebuffer notifications and state transitions.
type recordingSink struct {
	mu      sync.Mutex
	updates int
	states  []State
}

func (s *recordingSink) FramebufferUpdated(*framebuffer.Framebuffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
}

func (s *recordingSink) StateChanged(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, state)
}

func (s *recordingSink) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

func (s *recordingSink) history() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]State(nil), s.states...)
}
