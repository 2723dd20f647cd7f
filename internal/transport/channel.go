package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Handler receives inbound events. It is called from a single goroutine, in
// arrival order, and never concurrently with itself.
type Handler func(Event)

// Options tune a Channel. Zero values take the defaults below.
type Options struct {
	// Token is sent as "Authorization: Bearer <token>" when set.
	Token             string
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
	// MaxReconnects bounds redials over the lifetime of the channel.
	MaxReconnects    int
	HandshakeTimeout time.Duration
	SendBuffer       int

	// ShouldReconnect is consulted after an unexpected closure. A nil func
	// always allows reconnection.
	ShouldReconnect func() bool
	// OnReconnect is called before each redial with the attempt number.
	OnReconnect func(attempt int)
	// OnTerminal is called at most once when the channel is lost for good.
	// It is not called after Close.
	OnTerminal func(error)

	Logger *slog.Logger
}

const (
	defaultHeartbeat      = 20 * time.Second
	defaultReconnectDelay = time.Second
	defaultHandshake      = 10 * time.Second
	defaultSendBuffer     = 256
)

func (o *Options) withDefaults() {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = defaultHeartbeat
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = defaultReconnectDelay
	}
	if o.MaxReconnects < 0 {
		o.MaxReconnects = 0
	} else if o.MaxReconnects == 0 {
		o.MaxReconnects = 1
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = defaultHandshake
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = defaultSendBuffer
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Channel is a duplex event channel to the pipeline. Outbound sends are
// fire-and-forget; inbound events go to the Handler.
type Channel struct {
	url     string
	header  http.Header
	opts    Options
	handler Handler
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	conn     *websocket.Conn
	out      chan []byte
	attempts int
	closed   bool

	closeOnce sync.Once
	termOnce  sync.Once
}

// Connect dials endpoint with params and returns once the handshake has
// completed. ctx bounds only the initial dial.
func Connect(ctx context.Context, endpoint string, params Params, handler Handler, opts Options) (*Channel, error) {
	opts.withDefaults()
	u, err := params.URL(endpoint)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}
	lifetime, cancel := context.WithCancel(context.Background())
	c := &Channel{
		url:     u,
		header:  header,
		opts:    opts,
		handler: handler,
		log:     opts.Logger,
		ctx:     lifetime,
		cancel:  cancel,
	}
	conn, err := c.dial(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	c.attach(conn)
	return c, nil
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, c.opts.HandshakeTimeout)
	defer cancel()
	d := websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	conn, resp, err := d.DialContext(dctx, c.url, c.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transport: dial pipeline: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("transport: dial pipeline: %w", err)
	}
	return conn, nil
}

// attach installs conn as the live connection and starts its reader and
// writer. Frames queued for a previous connection are discarded.
func (c *Channel) attach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	out := make(chan []byte, c.opts.SendBuffer)
	c.conn = conn
	c.out = out
	c.mu.Unlock()

	done := make(chan struct{})
	go c.writeLoop(conn, out, done)
	go c.readLoop(conn, done)
	c.log.Debug("pipeline connected")
}

func (c *Channel) writeLoop(conn *websocket.Conn, out <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()
	ping, _ := Encode(Event{Type: EventPing})
	for {
		var frame []byte
		select {
		case <-done:
			return
		case <-c.ctx.Done():
			return
		case frame = <-out:
		case <-ticker.C:
			frame = ping
		}
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			c.log.Debug("pipeline write failed", "err", err)
			_ = conn.Close()
			return
		}
	}
}

func (c *Channel) readLoop(conn *websocket.Conn, done chan struct{}) {
	var cause error
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			cause = err
			break
		}
		ev, err := Decode(data)
		if err != nil {
			c.log.Warn("dropping pipeline frame", "err", err)
			continue
		}
		switch ev.Type {
		case EventPing:
			c.Send(Event{Type: EventPong})
		case EventPong:
		default:
			if c.handler != nil {
				c.handler(ev)
			}
		}
	}
	close(done)
	_ = conn.Close()
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.out = nil
	}
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	c.log.Warn("pipeline connection lost", "err", cause)
	c.redial(cause)
}

// redial performs the single redial allowed after an unexpected closure.
func (c *Channel) redial(cause error) {
	if c.opts.ShouldReconnect != nil && !c.opts.ShouldReconnect() {
		c.terminate(cause)
		return
	}
	c.mu.Lock()
	if c.attempts >= c.opts.MaxReconnects {
		c.mu.Unlock()
		c.terminate(fmt.Errorf("%w: %v", ErrReconnectExhausted, cause))
		return
	}
	c.attempts++
	attempt := c.attempts
	c.mu.Unlock()

	if c.opts.OnReconnect != nil {
		c.opts.OnReconnect(attempt)
	}
	t := time.NewTimer(c.opts.ReconnectDelay)
	defer t.Stop()
	select {
	case <-c.ctx.Done():
		return
	case <-t.C:
	}
	c.log.Info("reconnecting to pipeline", "attempt", attempt)
	conn, err := c.dial(c.ctx)
	if err != nil {
		if errors.Is(c.ctx.Err(), context.Canceled) {
			return
		}
		c.terminate(fmt.Errorf("%w: %v", ErrReconnectExhausted, err))
		return
	}
	c.attach(conn)
}

func (c *Channel) terminate(err error) {
	if c.isClosed() {
		return
	}
	c.termOnce.Do(func() {
		if c.opts.OnTerminal != nil {
			c.opts.OnTerminal(err)
		}
	})
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Send queues e for delivery. It reports false when the event was dropped
// because the channel is disconnected, closed, or its queue is full.
func (c *Channel) Send(e Event) bool {
	frame, err := Encode(e)
	if err != nil {
		c.log.Warn("encode outbound event", "err", err)
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.out == nil {
		return false
	}
	select {
	case c.out <- frame:
		return true
	default:
		return false
	}
}

// Connected reports whether a live connection is attached.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close ends the channel without reconnecting and without invoking
// OnTerminal. It does not wait for the reader to exit, so it is safe to
// call from the Handler.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		conn := c.conn
		c.conn = nil
		c.out = nil
		c.mu.Unlock()
		c.cancel()
		if conn != nil {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			err = conn.Close()
		}
	})
	return err
}
