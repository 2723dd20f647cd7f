// Package playback arbitrates agent speech so that at most one buffer plays
// at a time and capture resumes only after playback has settled.
package playback

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/chadiek/voicecall/internal/audio"
)

// ErrClosed is returned by Play after Close.
var ErrClosed = errors.New("playback: arbiter closed")

// Handle is one rendering buffer. Done closes when the buffer ends on its
// own, whether it played out or the device failed; it stays open after Stop.
type Handle interface {
	Done() <-chan struct{}
	Stop() bool
}

// Renderer starts rendering a PCM16 buffer.
type Renderer interface {
	Render(pcm []byte) (Handle, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(pcm []byte) (Handle, error)

func (f RendererFunc) Render(pcm []byte) (Handle, error) { return f(pcm) }

// AudioRenderer renders through an audio.Player.
func AudioRenderer(p *audio.Player) Renderer {
	return RendererFunc(func(pcm []byte) (Handle, error) {
		pb, err := p.Play(pcm)
		if err != nil {
			return nil, err
		}
		return pb, nil
	})
}

// Options configure an Arbiter. Callbacks run with the arbiter locked and
// must not call back into it.
type Options struct {
	// ResumeDelay separates the end of playback from capture resuming.
	ResumeDelay time.Duration
	// OnStart runs when a buffer starts; playback is authoritative.
	OnStart func()
	// OnResume runs when capture may resume.
	OnResume func()
	// OnInterrupt runs when a playing buffer is cut short.
	OnInterrupt func()
	Logger      *slog.Logger
}

type active struct {
	h      Handle
	gen    uint64
	cancel chan struct{}
}

// Arbiter owns the single active playback handle.
type Arbiter struct {
	r    Renderer
	opts Options
	log  *slog.Logger

	mu        sync.Mutex
	cur       *active
	gen       uint64
	resume    *time.Timer
	resumeGen uint64
	closed    bool
}

// New returns an arbiter rendering through r.
func New(r Renderer, opts Options) *Arbiter {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Arbiter{r: r, opts: opts, log: opts.Logger}
}

// Play stops whatever is playing and starts pcm in its place. Any pending
// capture resume is cancelled.
func (a *Arbiter) Play(pcm []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	a.cancelResumeLocked()
	interrupted := a.stopCurrentLocked()
	if interrupted && a.opts.OnInterrupt != nil {
		a.opts.OnInterrupt()
	}
	if a.opts.OnStart != nil {
		a.opts.OnStart()
	}
	h, err := a.r.Render(pcm)
	if err != nil {
		a.scheduleResumeLocked()
		return err
	}
	a.gen++
	cur := &active{h: h, gen: a.gen, cancel: make(chan struct{})}
	a.cur = cur
	go a.watch(cur)
	return nil
}

func (a *Arbiter) watch(cur *active) {
	select {
	case <-cur.cancel:
		return
	case <-cur.h.Done():
	}
	if f, ok := cur.h.(interface{ Err() error }); ok {
		if err := f.Err(); err != nil {
			a.log.Warn("playback ended early", "err", err)
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || a.cur == nil || a.cur.gen != cur.gen {
		return
	}
	a.cur = nil
	a.scheduleResumeLocked()
}

// StopAll stops the active buffer, if any, and schedules capture to resume.
// It reports whether something was playing.
func (a *Arbiter) StopAll() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || !a.stopCurrentLocked() {
		return false
	}
	if a.opts.OnInterrupt != nil {
		a.opts.OnInterrupt()
	}
	a.scheduleResumeLocked()
	return true
}

// Active reports whether a buffer is playing.
func (a *Arbiter) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cur != nil
}

// Close stops playback and cancels pending callbacks.
func (a *Arbiter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	a.cancelResumeLocked()
	a.stopCurrentLocked()
}

func (a *Arbiter) stopCurrentLocked() bool {
	if a.cur == nil {
		return false
	}
	cur := a.cur
	a.cur = nil
	close(cur.cancel)
	cur.h.Stop()
	return true
}

func (a *Arbiter) cancelResumeLocked() {
	if a.resume != nil {
		a.resume.Stop()
		a.resume = nil
	}
	a.resumeGen++
}

func (a *Arbiter) scheduleResumeLocked() {
	a.cancelResumeLocked()
	g := a.resumeGen
	a.resume = time.AfterFunc(a.opts.ResumeDelay, func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.closed || a.cur != nil || a.resumeGen != g {
			return
		}
		a.resume = nil
		if a.opts.OnResume != nil {
			a.opts.OnResume()
		}
	})
}
