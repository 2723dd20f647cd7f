package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Capture turns an InputDevice into a stream of PCM16 chunks at the wire
// rate. A Capture is started at most once.
type Capture struct {
	dev      InputDevice
	wireRate int
	log      *slog.Logger

	// OnDrop, when set, is called for every chunk dropped because the
	// consumer was not ready.
	OnDrop func()

	mu       sync.Mutex
	started  bool
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewCapture binds dev to a capture emitting PCM16 at wireRate.
func NewCapture(dev InputDevice, wireRate int, logger *slog.Logger) *Capture {
	if logger == nil {
		logger = slog.Default()
	}
	return &Capture{
		dev:      dev,
		wireRate: wireRate,
		log:      logger,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start opens the device and begins producing chunks. The returned channel
// is closed when capture stops. Chunks are dropped, never queued, when the
// consumer falls behind.
func (c *Capture) Start(ctx context.Context) (<-chan []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil, ErrCaptureStarted
	}
	select {
	case <-c.stopCh:
		return nil, ErrCaptureStarted
	default:
	}

	conv, err := NewConverter(c.dev.SampleRate(), c.wireRate)
	if err != nil {
		return nil, err
	}
	if err := c.dev.Open(); err != nil {
		return nil, fmt.Errorf("open input device: %w", err)
	}
	c.started = true
	out := make(chan []byte, 8)
	go c.loop(ctx, conv, out)
	c.log.Info("capture started", "device_rate", c.dev.SampleRate(), "wire_rate", c.wireRate, "frame", c.dev.FrameSize())
	return out, nil
}

func (c *Capture) loop(ctx context.Context, conv *Converter, out chan<- []byte) {
	defer close(c.done)
	defer close(out)
	defer func() {
		if err := c.dev.Close(); err != nil {
			c.log.Warn("close input device", "err", err)
		}
		c.log.Info("capture stopped", "sent", c.sent.Load(), "dropped", c.dropped.Load())
	}()

	frame := make(Frame, c.dev.FrameSize())
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		default:
		}
		if err := c.dev.Read(frame); err != nil {
			c.log.Warn("capture read failed", "err", err)
			return
		}
		samples, err := conv.Float32(frame)
		if err != nil {
			c.log.Warn("capture resample failed", "err", err)
			continue
		}
		if len(samples) == 0 {
			continue
		}
		chunk := EncodePCM16(FloatToInt16(samples))
		select {
		case out <- chunk:
			if c.sent.Add(1) == 1 {
				c.log.Debug("first capture chunk", "bytes", len(chunk), "level", Level(chunk))
			}
		default:
			c.dropped.Add(1)
			if c.OnDrop != nil {
				c.OnDrop()
			}
		}
	}
}

// Stop ends capture and releases the device. Safe to call more than once
// and before Start.
func (c *Capture) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if started {
		<-c.done
	}
}

// Stats returns the number of chunks delivered and dropped.
func (c *Capture) Stats() (sent, dropped uint64) {
	return c.sent.Load(), c.dropped.Load()
}
