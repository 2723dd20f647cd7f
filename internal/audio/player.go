package audio

import (
	"log/slog"
	"sync"
)

// Player renders PCM16 buffers at a fixed source rate on an OutputDevice.
// Writes from different playbacks never interleave within a slice.
type Player struct {
	dev     OutputDevice
	srcRate int
	log     *slog.Logger

	writeMu sync.Mutex

	mu     sync.Mutex
	active map[*Playback]struct{}
	closed bool
}

// NewPlayer returns a player for buffers sampled at srcRate.
func NewPlayer(dev OutputDevice, srcRate int, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{dev: dev, srcRate: srcRate, log: logger, active: make(map[*Playback]struct{})}
}

// Playback is one in-flight buffer. Done is closed when the buffer played to
// the end or the device failed mid-buffer; a stopped playback never signals
// Done.
type Playback struct {
	done chan struct{}
	stop chan struct{}

	mu       sync.Mutex
	stopped  bool
	finished bool
	err      error
}

// Done is closed once the buffer has ended on its own.
func (p *Playback) Done() <-chan struct{} { return p.done }

// Err returns the device error that ended the playback, if any.
func (p *Playback) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Stop halts the playback. It reports whether the playback was still
// running. After Stop returns, Done will never be closed.
func (p *Playback) Stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || p.finished {
		return false
	}
	p.stopped = true
	close(p.stop)
	return true
}

func (p *Playback) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

func (p *Playback) finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || p.finished {
		return
	}
	p.finished = true
	p.err = err
	close(p.done)
}

// Play starts rendering pcm and returns immediately.
func (pl *Player) Play(pcm []byte) (*Playback, error) {
	pl.mu.Lock()
	if pl.closed {
		pl.mu.Unlock()
		return nil, ErrPlayerClosed
	}
	pb := &Playback{done: make(chan struct{}), stop: make(chan struct{})}
	pl.active[pb] = struct{}{}
	pl.mu.Unlock()

	samples := DecodePCM16(pcm)
	conv, err := NewConverter(pl.srcRate, pl.dev.SampleRate())
	if err != nil {
		pl.forget(pb)
		return nil, err
	}
	if !conv.Passthrough() {
		if samples, err = conv.Int16(samples); err != nil {
			pl.forget(pb)
			return nil, err
		}
	}
	go pl.render(pb, samples)
	return pb, nil
}

func (pl *Player) render(pb *Playback, samples []int16) {
	defer pl.forget(pb)
	slice := pl.dev.SampleRate() / 50 // 20ms
	if slice <= 0 {
		slice = len(samples)
	}
	for off := 0; off < len(samples); off += slice {
		select {
		case <-pb.stop:
			return
		default:
		}
		end := off + slice
		if end > len(samples) {
			end = len(samples)
		}
		pl.writeMu.Lock()
		if pb.isStopped() {
			pl.writeMu.Unlock()
			return
		}
		err := pl.dev.Write(samples[off:end])
		pl.writeMu.Unlock()
		if err != nil {
			pl.log.Warn("playback write failed", "err", err)
			pb.finish(err)
			return
		}
	}
	pb.finish(nil)
}

func (pl *Player) forget(pb *Playback) {
	pl.mu.Lock()
	delete(pl.active, pb)
	pl.mu.Unlock()
}

// StopAll stops every running playback and reports how many were stopped.
func (pl *Player) StopAll() int {
	pl.mu.Lock()
	list := make([]*Playback, 0, len(pl.active))
	for pb := range pl.active {
		list = append(list, pb)
	}
	pl.mu.Unlock()
	n := 0
	for _, pb := range list {
		if pb.Stop() {
			n++
		}
	}
	return n
}

// Close stops all playback and releases the device.
func (pl *Player) Close() error {
	pl.mu.Lock()
	if pl.closed {
		pl.mu.Unlock()
		return nil
	}
	pl.closed = true
	pl.mu.Unlock()
	pl.StopAll()
	pl.writeMu.Lock()
	defer pl.writeMu.Unlock()
	return pl.dev.Close()
}
