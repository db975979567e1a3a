// Package device maintains a connection to a remote device, mirrors its
// screen into a framebuffer and forwards touch input back to it.
package device

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rcarmo/go-devscreen/internal/framebuffer"
	"github.com/rcarmo/go-devscreen/internal/logging"
	"github.com/rcarmo/go-devscreen/internal/metrics"
	"github.com/rcarmo/go-devscreen/internal/protocol"
)

const (
	tracerName          = "github.com/rcarmo/go-devscreen/internal/device"
	defaultWriteTimeout = 2 * time.Second
)

// Options configures a Client.
type Options struct {
	URL    string
	Width  int
	Height int

	Reconnect ReconnectPolicy
	// ClearOnReconnect resets the framebuffer to black when a new connection
	// is established after a previous one was lost.
	ClearOnReconnect bool
	WriteTimeout     time.Duration

	Dialer    Dialer
	Scheduler Scheduler
	Sink      Sink
	Logger    *logging.Logger
	Metrics   *metrics.Metrics
	// Rand returns samples in [0, 1) for reconnect jitter.
	Rand func() float64
}

// Client mirrors one device screen.
type Client struct {
	url          string
	policy       ReconnectPolicy
	clearOnRetry bool
	writeTimeout time.Duration

	fb        *framebuffer.Framebuffer
	dialer    Dialer
	scheduler Scheduler
	sink      Sink
	log       *logging.Logger
	metrics   *metrics.Metrics
	rand      func() float64
	tracer    trace.Tracer

	mu      sync.Mutex
	state   State
	conn    Conn
	timer   Timer
	cancel  context.CancelFunc
	started bool
	running bool
	stopped bool
	done    chan struct{}

	// writeMu serializes writers on conn.
	writeMu sync.Mutex
}

// New validates opts and creates an idle client.
func New(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, ErrMissingURL
	}

	fb, err := framebuffer.New(opts.Width, opts.Height)
	if err != nil {
		return nil, fmt.Errorf("framebuffer: %w", err)
	}

	c := &Client{
		url:          opts.URL,
		policy:       opts.Reconnect,
		clearOnRetry: opts.ClearOnReconnect,
		writeTimeout: opts.WriteTimeout,
		fb:           fb,
		dialer:       opts.Dialer,
		scheduler:    opts.Scheduler,
		sink:         opts.Sink,
		log:          opts.Logger,
		metrics:      opts.Metrics,
		rand:         opts.Rand,
		tracer:       otel.Tracer(tracerName),
		state:        StateIdle,
		done:         make(chan struct{}),
	}

	if c.dialer == nil {
		c.dialer = &WebsocketDialer{}
	}
	if c.scheduler == nil {
		c.scheduler = timeScheduler{}
	}
	if c.log == nil {
		c.log = logging.Discard()
	}
	if c.rand == nil {
		c.rand = rand.Float64
	}
	if c.writeTimeout <= 0 {
		c.writeTimeout = defaultWriteTimeout
	}

	return c, nil
}

// Framebuffer returns the screen mirror.
func (c *Client) Framebuffer() *framebuffer.Framebuffer {
	return c.fb
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed once the client will make no further connection attempts.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until Done is closed.
func (c *Client) Wait() {
	<-c.done
}

// Start begins connecting in the background. Cancelling ctx is equivalent to Stop.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrStopped
	}
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.started = true
	c.running = true
	c.cancel = cancel
	c.mu.Unlock()

	// the watcher follows the caller's ctx; runCtx is also cancelled by the
	// loop's own cleanup, which must not count as a teardown
	go func() {
		select {
		case <-ctx.Done():
			c.Stop()
		case <-c.done:
		}
	}()

	go c.run(runCtx)

	return nil
}

// Stop tears the client down. The stopped flag is set before the socket is
// closed so the resulting close event cannot schedule another attempt.
// Stop is idempotent and may be called before Start.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true

	conn := c.conn
	timer := c.timer
	cancel := c.cancel
	started := c.started
	running := c.running
	c.timer = nil
	c.mu.Unlock()

	c.log.Debug("teardown requested")

	if timer != nil {
		timer.Stop()
	}
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			c.log.Debug("close: %v", err)
		}
	}

	if !running {
		c.setState(StateIdle)
	}
	if !started {
		close(c.done)
	}
}

// SendTouch writes a touch command for (x, y). It is a no-op returning false
// unless the client is connected; commands are never queued. The write itself
// may block for up to the configured WriteTimeout if the socket is congested.
func (c *Client) SendTouch(x, y uint16) bool {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || conn == nil {
		return false
	}

	data := protocol.EncodeTouch(x, y)

	c.writeMu.Lock()
	if err := conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		c.log.Debug("set write deadline: %v", err)
	}
	err := conn.WriteMessage(websocket.BinaryMessage, data)
	c.writeMu.Unlock()

	if err != nil {
		c.log.Warn("send touch %d,%d: %v", x, y, err)
		// the receive loop observes the close and reconnects
		_ = conn.Close()
		return false
	}

	c.log.Debug("touch %d,%d", x, y)
	c.metrics.RecordTouch()

	return true
}

func (c *Client) run(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.running = false
		stopped := c.stopped
		cancel := c.cancel
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}

		if stopped {
			c.setState(StateIdle)
		}
		close(c.done)
	}()

	connectedBefore := false

	for {
		if c.halted(ctx) {
			return
		}

		if c.connect(ctx, connectedBefore) {
			connectedBefore = true
		}

		if c.halted(ctx) {
			return
		}

		if !c.policy.Enabled() {
			c.log.Info("reconnect disabled, staying disconnected")
			return
		}

		if !c.backoff(ctx) {
			return
		}
	}
}

func (c *Client) halted(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped || ctx.Err() != nil
}

// connect performs one dial and, on success, serves the connection until it
// closes. It reports whether the connection was established. It always
// leaves the client in StateDisconnected.
func (c *Client) connect(ctx context.Context, connectedBefore bool) bool {
	c.setState(StateConnecting)
	c.log.Debug("connecting to %s", c.url)

	conn, err := c.dial(ctx)
	if err != nil {
		c.log.Debug("connect failed: %v", err)
		c.setState(StateDisconnected)
		return false
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		_ = conn.Close()
		c.setState(StateDisconnected)
		return false
	}
	c.conn = conn
	c.mu.Unlock()

	if connectedBefore && c.clearOnRetry {
		c.fb.Clear()
		c.notify()
	}

	c.setState(StateConnected)
	c.log.Info("connected to %s", c.url)

	c.serve(conn)

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	_ = conn.Close()

	c.metrics.RecordDisconnect()
	c.setState(StateDisconnected)
	c.log.Info("disconnected from %s", c.url)

	return true
}

func (c *Client) dial(ctx context.Context) (Conn, error) {
	ctx, span := c.tracer.Start(ctx, "device.dial",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("device.url", c.url)),
	)
	defer span.End()

	conn, err := c.dialer.Dial(ctx, c.url)
	c.metrics.RecordDial(err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return conn, nil
}

// serve decodes every binary message into the framebuffer until the
// connection fails. Each message is one decode pass.
func (c *Client) serve(conn Conn) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			c.log.Debug("read: %v", err)
			return
		}

		if messageType != websocket.BinaryMessage {
			c.log.Debug("ignoring message type %d", messageType)
			continue
		}

		res := protocol.ApplyUpdates(data, c.fb, c.log)
		c.metrics.RecordMessage(len(data), res.Applied, res.Dropped)
		c.notify()
	}
}

// backoff waits a random fraction of the base delay. It returns false if the
// client was torn down while waiting.
func (c *Client) backoff(ctx context.Context) bool {
	delay := c.policy.Delay(c.rand())
	fired := make(chan struct{})

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return false
	}
	var once sync.Once
	c.timer = c.scheduler.AfterFunc(delay, func() {
		once.Do(func() { close(fired) })
	})
	c.mu.Unlock()

	c.metrics.RecordReconnectDelay(delay.Seconds())
	c.log.Debug("rescheduling connect in %s", delay)

	select {
	case <-fired:
	case <-ctx.Done():
	}

	c.mu.Lock()
	c.timer = nil
	stopped := c.stopped
	c.mu.Unlock()

	return !stopped && ctx.Err() == nil
}

func (c *Client) notify() {
	if c.sink != nil {
		c.sink.FramebufferUpdated(c.fb)
	}
}

func (c *Client) setState(state State) {
	c.mu.Lock()
	if c.state == state {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.mu.Unlock()

	c.metrics.SetState(int(state))

	if s, ok := c.sink.(StateSink); ok {
		s.StateChanged(state)
	}
}
