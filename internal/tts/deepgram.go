package tts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"
)

// DeepgramClient streams Aura speech over the Deepgram speak websocket.
// The socket never reports the end of an utterance, so a synthesis is
// considered finished once audio has stopped arriving for IdleWindow.
type DeepgramClient struct {
	apiKey     string
	model      string
	sampleRate int

	IdleWindow time.Duration
	// MaxDuration bounds a single synthesis; audio received by then is kept.
	MaxDuration time.Duration
	Logger      *slog.Logger
}

// NewDeepgramClient returns linear16 audio at sampleRate (48 kHz when zero).
func NewDeepgramClient(apiKey, model string, sampleRate int) *DeepgramClient {
	if model == "" {
		model = "aura-2-thalia-en"
	}
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	return &DeepgramClient{
		apiKey:      apiKey,
		model:       model,
		sampleRate:  sampleRate,
		IdleWindow:  400 * time.Millisecond,
		MaxDuration: 12 * time.Second,
		Logger:      slog.Default(),
	}
}

// SampleRate reports the output rate.
func (d *DeepgramClient) SampleRate() int { return d.sampleRate }

// StreamPCM implements Synthesizer.
func (d *DeepgramClient) StreamPCM(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	pcm := make(chan []byte, 64)
	errc := make(chan error, 1)
	go func() {
		defer close(pcm)
		defer close(errc)
		if err := d.synthesize(ctx, text, pcm); err != nil {
			errc <- err
		}
	}()
	return pcm, errc
}

func (d *DeepgramClient) synthesize(ctx context.Context, text string, out chan<- []byte) error {
	if d.apiKey == "" {
		return fmt.Errorf("deepgram: %w", ErrMissingKey)
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if d.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.MaxDuration)
		defer cancel()
	}

	sink := newAudioSink(ctx, out)
	dg, err := speak.NewWSUsingCallback(ctx, d.apiKey, &clientinterfaces.ClientOptions{}, &clientinterfaces.WSSpeakOptions{
		Model:      d.model,
		Encoding:   "linear16",
		SampleRate: d.sampleRate,
	}, sink)
	if err != nil {
		return fmt.Errorf("deepgram: create ws client: %w", err)
	}
	defer dg.Stop()

	if !dg.Connect() {
		return fmt.Errorf("deepgram: connect failed")
	}
	if err := dg.SpeakWithText(text); err != nil {
		return fmt.Errorf("deepgram: speak text: %w", err)
	}
	if err := dg.Flush(); err != nil && d.Logger != nil {
		d.Logger.Warn("deepgram flush failed", "err", err)
	}
	sink.settle(ctx, d.IdleWindow)
	return nil
}

// audioSink receives speak socket callbacks and forwards binary frames.
type audioSink struct {
	ctx     context.Context
	out     chan<- []byte
	arrived chan struct{}
}

func newAudioSink(ctx context.Context, out chan<- []byte) *audioSink {
	return &audioSink{ctx: ctx, out: out, arrived: make(chan struct{}, 1)}
}

func (s *audioSink) Binary(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	b := make([]byte, len(data))
	copy(b, data)
	select {
	case s.out <- b:
	case <-s.ctx.Done():
		return nil
	}
	select {
	case s.arrived <- struct{}{}:
	default:
	}
	return nil
}

// settle returns once audio has been quiet for idle after the first frame,
// or when ctx ends.
func (s *audioSink) settle(ctx context.Context, idle time.Duration) {
	var quiet *time.Timer
	var fired <-chan time.Time
	defer func() {
		if quiet != nil {
			quiet.Stop()
		}
	}()
	for {
		select {
		case <-s.arrived:
			if quiet == nil {
				quiet = time.NewTimer(idle)
				fired = quiet.C
			} else {
				quiet.Reset(idle)
			}
		case <-fired:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *audioSink) Open(*msginterfaces.OpenResponse) error         { return nil }
func (s *audioSink) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (s *audioSink) Flush(*msginterfaces.FlushedResponse) error     { return nil }
func (s *audioSink) Clear(*msginterfaces.ClearedResponse) error     { return nil }
func (s *audioSink) Close(*msginterfaces.CloseResponse) error       { return nil }
func (s *audioSink) Warning(*msginterfaces.WarningResponse) error   { return nil }
func (s *audioSink) Error(*msginterfaces.ErrorResponse) error       { return nil }
func (s *audioSink) UnhandledEvent([]byte) error                    { return nil }
