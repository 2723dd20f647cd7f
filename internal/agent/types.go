package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chadiek/voicecall/internal/audio"
	"github.com/chadiek/voicecall/internal/knowledge"
	"github.com/chadiek/voicecall/internal/llm"
	"github.com/chadiek/voicecall/internal/metrics"
	"github.com/chadiek/voicecall/internal/playback"
	"github.com/chadiek/voicecall/internal/tools"
	"github.com/chadiek/voicecall/internal/transport"
)

var (
	// ErrNotActive is returned by SendText outside StateActive.
	ErrNotActive = errors.New("session is not active")
	// ErrNoModel is returned by SendText when no model is configured.
	ErrNoModel = errors.New("no language model configured")
	// ErrEmptyText is returned by SendText for blank input.
	ErrEmptyText = errors.New("empty text")
	// ErrStopped is returned by Start when Stop wins the race with the
	// handshake.
	ErrStopped = errors.New("session stopped")
)

// Model generates one reply for a locally initiated turn.
type Model interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
}

// Speech synthesizes PCM16 at the wire rate.
type Speech interface {
	StreamPCM(ctx context.Context, text string) (<-chan []byte, <-chan error)
}

// Config is fixed for the life of a session.
type Config struct {
	// Endpoint is the pipeline WebSocket URL.
	Endpoint string
	Token    string
	Params   transport.Params

	// Identity names the agent persona in the local system prompt.
	Identity     string
	SystemPrompt string

	DocumentIDs        []string
	SpeakWhileFetching bool
	WaitPhrases        []string

	// SessionTimeout, when positive, surfaces TimeoutMessage once after the
	// session has been active that long. The session keeps running.
	SessionTimeout time.Duration
	TimeoutMessage string

	ResumeDelay       time.Duration
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
	MaxReconnects     int
	WireSampleRate    int
	ReplyTimeout      time.Duration
}

const (
	DefaultWireSampleRate = 16000
	DefaultResumeDelay    = 400 * time.Millisecond
	DefaultReplyTimeout   = 20 * time.Second
	DefaultTimeoutMessage = "We're almost out of time for this call."
	defaultPersona        = "You are %s, a helpful, concise voice AI agent. Answer clearly and briefly."
)

// Deps are the collaborators a session drives. Input and Renderer are
// required; everything else is optional.
type Deps struct {
	Input    audio.InputDevice
	Renderer playback.Renderer
	Store    knowledge.Store
	Tools    *tools.Dispatcher
	Model    Model
	Speech   Speech
	Metrics  *metrics.Metrics
	// Notify receives user-facing notices. It must not block.
	Notify func(Notice)
	Logger *slog.Logger
}

// NoticeKind classifies a user-facing notice.
type NoticeKind string

const (
	NoticeFatal      NoticeKind = "fatal"
	NoticeTimeout    NoticeKind = "timeout"
	NoticeError      NoticeKind = "error"
	NoticeTranscript NoticeKind = "transcript"
	NoticeResponse   NoticeKind = "response"
	NoticeState      NoticeKind = "state"
)

// Notice is surfaced to whoever presents the call to the user.
type Notice struct {
	Kind NoticeKind
	Text string
}
