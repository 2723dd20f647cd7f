package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chadiek/voicecall/internal/audio"
	"github.com/chadiek/voicecall/internal/knowledge"
	"github.com/chadiek/voicecall/internal/llm"
	"github.com/chadiek/voicecall/internal/playback"
	"github.com/chadiek/voicecall/internal/transport"
	"github.com/chadiek/voicecall/internal/tts"
)

// Session orchestrates one live call: microphone capture to the pipeline,
// inbound turn events to playback, history, knowledge and tools.
type Session struct {
	id   string
	cfg  Config
	deps Deps
	log  *slog.Logger

	sm      *StateMachine
	history *History
	cache   *knowledge.Cache
	phrases knowledge.Phrases
	arbiter *playback.Arbiter
	capture *audio.Capture

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	ch      *transport.Channel
	timeout *time.Timer

	// speakMu orders the check-then-play step of local speech.
	speakMu sync.Mutex

	stopOnce  sync.Once
	fatalOnce sync.Once
	done      chan struct{}
}

// New builds an idle session.
func New(cfg Config, deps Deps) *Session {
	if cfg.WireSampleRate <= 0 {
		cfg.WireSampleRate = DefaultWireSampleRate
	}
	if cfg.ResumeDelay <= 0 {
		cfg.ResumeDelay = DefaultResumeDelay
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = DefaultReplyTimeout
	}
	if cfg.TimeoutMessage == "" {
		cfg.TimeoutMessage = DefaultTimeoutMessage
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	id := uuid.NewString()
	s := &Session{
		id:      id,
		cfg:     cfg,
		deps:    deps,
		log:     deps.Logger.With("session", id),
		sm:      NewStateMachine(),
		history: &History{},
		phrases: knowledge.NewPhrases(cfg.WaitPhrases),
		done:    make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.sm.OnChange = s.onStateChange

	if deps.Store != nil {
		s.cache = knowledge.NewCache(deps.Store, s.log)
		s.cache.OnFetch = deps.Metrics.KnowledgeLookup
	}
	if deps.Tools != nil && deps.Metrics != nil {
		deps.Tools.OnDispatch = deps.Metrics.ToolDispatch
	}
	s.arbiter = playback.New(deps.Renderer, playback.Options{
		ResumeDelay: cfg.ResumeDelay,
		OnStart:     func() { s.sm.SetMode(ModePlayback) },
		OnResume:    func() { s.sm.SetMode(ModeCapture) },
		OnInterrupt: deps.Metrics.Interruption,
		Logger:      s.log,
	})
	s.capture = audio.NewCapture(deps.Input, cfg.WireSampleRate, s.log)
	s.capture.OnDrop = deps.Metrics.CaptureDrop
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns the lifecycle state.
func (s *Session) State() State { return s.sm.State() }

// Mode returns which side owns the audio path.
func (s *Session) Mode() Mode { return s.sm.Mode() }

// Done is closed once teardown has completed.
func (s *Session) Done() <-chan struct{} { return s.done }

// History returns a snapshot of the conversation.
func (s *Session) History() []Entry { return s.history.Entries() }

func (s *Session) onStateChange(from, to State) {
	s.log.Info("session state", "from", from.String(), "to", to.String())
	s.deps.Metrics.Transition(from.String(), to.String())
	s.notify(Notice{Kind: NoticeState, Text: to.String()})
}

func (s *Session) notify(n Notice) {
	if s.deps.Notify != nil {
		s.deps.Notify(n)
	}
}

// Start opens the microphone, then the pipeline channel. A capture
// failure closes the session before any connection is attempted. If Stop
// runs while the handshake is in flight, Start returns ErrStopped at once
// and no fatal notice is raised.
func (s *Session) Start(ctx context.Context) error {
	if err := s.sm.Transition(StateConnecting); err != nil {
		return err
	}

	frames, err := s.capture.Start(s.ctx)
	if err != nil {
		if s.ctx.Err() != nil {
			return ErrStopped
		}
		err = fmt.Errorf("start capture: %w", err)
		s.fail(err)
		return err
	}
	go s.forward(frames)

	dctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	type dialed struct {
		ch  *transport.Channel
		err error
	}
	res := make(chan dialed, 1)
	go func() {
		ch, err := transport.Connect(dctx, s.cfg.Endpoint, s.cfg.Params, s.dispatch, transport.Options{
			Token:             s.cfg.Token,
			HeartbeatInterval: s.cfg.HeartbeatInterval,
			ReconnectDelay:    s.cfg.ReconnectDelay,
			MaxReconnects:     s.cfg.MaxReconnects,
			ShouldReconnect:   func() bool { return s.sm.State() == StateActive },
			OnReconnect: func(attempt int) {
				s.deps.Metrics.Reconnect()
				s.log.Warn("pipeline dropped, reconnecting", "attempt", attempt)
			},
			OnTerminal: func(err error) { s.fail(fmt.Errorf("pipeline lost: %w", err)) },
			Logger:     s.log,
		})
		res <- dialed{ch, err}
	}()

	var d dialed
	select {
	case d = <-res:
	case <-dctx.Done():
		// The dialer may not notice cancellation until the peer answers;
		// release whatever it produces in the background.
		go func() {
			if late := <-res; late.ch != nil {
				_ = late.ch.Close()
			}
		}()
		d.err = dctx.Err()
	}
	if s.ctx.Err() != nil {
		if d.ch != nil {
			_ = d.ch.Close()
		}
		return ErrStopped
	}
	if d.err != nil {
		err := fmt.Errorf("connect pipeline: %w", d.err)
		s.fail(err)
		return err
	}

	// Activation and teardown serialize on mu; whichever runs second sees
	// the other's effect.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		_ = d.ch.Close()
		return ErrStopped
	}
	s.ch = d.ch
	if err := s.sm.Transition(StateActive); err != nil {
		return err
	}
	s.armTimeoutLocked()
	return nil
}

func (s *Session) armTimeoutLocked() {
	if s.cfg.SessionTimeout <= 0 {
		return
	}
	s.timeout = time.AfterFunc(s.cfg.SessionTimeout, func() {
		if s.sm.State() != StateActive {
			return
		}
		s.log.Info("session timeout reached")
		s.notify(Notice{Kind: NoticeTimeout, Text: s.cfg.TimeoutMessage})
	})
}

// forward sends microphone chunks while capture is authoritative. Chunks
// produced before the handshake or during playback are dropped.
func (s *Session) forward(frames <-chan []byte) {
	for chunk := range frames {
		if !s.sm.CanSendAudio() {
			continue
		}
		s.mu.Lock()
		ch := s.ch
		s.mu.Unlock()
		if ch == nil {
			continue
		}
		ch.Send(transport.Event{Type: transport.EventAudio, Audio: chunk})
	}
}

// dispatch handles one inbound event. The transport calls it sequentially.
func (s *Session) dispatch(ev transport.Event) {
	if s.ctx.Err() != nil {
		return
	}
	switch ev.Type {
	case transport.EventAudio:
		if len(ev.Audio) == 0 {
			return
		}
		if err := s.arbiter.Play(ev.Audio); err != nil {
			s.log.Warn("play agent audio", "err", err)
		}
	case transport.EventTranscript:
		s.bargeIn("transcript")
		text := strings.TrimSpace(ev.Text)
		if text == "" {
			return
		}
		s.history.Append(RoleUser, text)
		s.notify(Notice{Kind: NoticeTranscript, Text: text})
	case transport.EventAgentResponse:
		text := strings.TrimSpace(ev.Text)
		if text == "" {
			return
		}
		if inv, tool, ok := s.deps.Tools.Resolve(text); ok {
			go func() {
				msg, _ := s.deps.Tools.Dispatch(s.ctx, inv, tool)
				if s.ctx.Err() != nil {
					return
				}
				s.respond(s.ctx, msg)
			}()
			return
		}
		s.history.Append(RoleAgent, text)
		s.notify(Notice{Kind: NoticeResponse, Text: text})
	case transport.EventStopAudio:
		s.bargeIn("stop-audio")
	case transport.EventError:
		s.log.Warn("pipeline error", "message", ev.Message)
		s.notify(Notice{Kind: NoticeError, Text: ev.Message})
	}
}

func (s *Session) bargeIn(reason string) {
	if s.arbiter.StopAll() {
		s.log.Debug("barge-in stopped playback", "reason", reason)
	}
}

// respond records and speaks a locally produced agent line.
func (s *Session) respond(ctx context.Context, text string) {
	s.history.Append(RoleAgent, text)
	s.notify(Notice{Kind: NoticeResponse, Text: text})
	s.speak(ctx, text)
}

// speak synthesizes text and plays it through the arbiter. It is a no-op
// without a speech provider.
func (s *Session) speak(ctx context.Context, text string) {
	if s.deps.Speech == nil || strings.TrimSpace(text) == "" {
		return
	}
	pcm, err := tts.Collect(ctx, s.deps.Speech, text)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn("speech synthesis failed", "err", err)
		}
		return
	}
	s.speakMu.Lock()
	defer s.speakMu.Unlock()
	if ctx.Err() != nil || len(pcm) == 0 {
		return
	}
	if err := s.arbiter.Play(pcm); err != nil {
		s.log.Warn("play local speech", "err", err)
	}
}

// SendText runs a locally initiated text turn through the model and
// speaks the reply. It returns the text that was spoken.
func (s *Session) SendText(ctx context.Context, text string) (string, error) {
	if s.sm.State() != StateActive {
		return "", ErrNotActive
	}
	if s.deps.Model == nil {
		return "", ErrNoModel
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReplyTimeout)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	s.history.Append(RoleUser, text)

	fillerCtx, cancelFiller := context.WithCancel(ctx)
	defer cancelFiller()
	reference := s.augment(ctx, fillerCtx)

	reply, err := s.deps.Model.Generate(ctx, llm.Request{
		System:   s.systemPrompt(reference),
		Messages: s.history.Messages(),
	})
	if err != nil {
		if s.ctx.Err() != nil {
			return "", context.Canceled
		}
		return "", fmt.Errorf("generate reply: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cancelFiller()

	spoken := strings.TrimSpace(reply)
	if inv, tool, ok := s.deps.Tools.Resolve(spoken); ok {
		spoken, _ = s.deps.Tools.Dispatch(ctx, inv, tool)
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}
	s.respond(ctx, spoken)
	return spoken, nil
}

// augment collects the configured documents. When some are not cached yet
// a filler phrase is spoken alongside the fetch on fillerCtx.
func (s *Session) augment(ctx, fillerCtx context.Context) string {
	if s.cache == nil || len(s.cfg.DocumentIDs) == 0 {
		return ""
	}
	if s.cfg.SpeakWhileFetching && len(s.cache.Missing(s.cfg.DocumentIDs)) > 0 {
		go s.speak(fillerCtx, s.phrases.Pick())
	}
	return s.cache.Collect(ctx, s.cfg.DocumentIDs)
}

func (s *Session) systemPrompt(reference string) string {
	prompt := s.cfg.SystemPrompt
	if prompt == "" {
		name := s.cfg.Identity
		if name == "" {
			name = "the assistant"
		}
		prompt = fmt.Sprintf(defaultPersona, name)
	}
	if reference != "" {
		prompt += "\n\n" + reference
	}
	return prompt
}

// fail surfaces a fatal error once and tears the session down.
func (s *Session) fail(err error) {
	s.fatalOnce.Do(func() {
		s.log.Error("session failed", "err", err)
		s.notify(Notice{Kind: NoticeFatal, Text: err.Error()})
	})
	s.Stop()
}

// Stop tears the session down. Only the first call does any work; it is
// safe from any goroutine, including event handlers.
func (s *Session) Stop() {
	s.stopOnce.Do(s.teardown)
}

func (s *Session) teardown() {
	s.cancel()

	s.mu.Lock()
	if s.sm.State() == StateActive {
		_ = s.sm.Transition(StateEnding)
	}
	if s.timeout != nil {
		s.timeout.Stop()
	}
	ch := s.ch
	s.ch = nil
	s.mu.Unlock()

	s.arbiter.Close()
	s.capture.Stop()
	if ch != nil {
		if err := ch.Close(); err != nil {
			s.log.Debug("close pipeline", "err", err)
		}
	}
	s.history.Reset()
	if s.cache != nil {
		s.cache.Drop()
	}
	_ = s.sm.Transition(StateClosed)
	close(s.done)
}
