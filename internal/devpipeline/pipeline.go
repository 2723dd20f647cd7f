// Package devpipeline is a loopback voice pipeline for local runs and
// end-to-end tests. It speaks the session wire protocol: it gathers caller
// audio into turns, then answers each turn with a transcript, a text
// response and the turn audio echoed back as agent speech.
package devpipeline

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chadiek/voicecall/internal/audio"
	"github.com/chadiek/voicecall/internal/metrics"
	"github.com/chadiek/voicecall/internal/transport"
)

const (
	defaultSampleRate = 16000
	defaultTurnLength = 1500 * time.Millisecond
	// Chunks quieter than this RMS level do not count towards a turn.
	defaultSpeechLevel = 0.02
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin: func(r *http.Request) bool {
		// local development only
		return true
	},
}

// Responder produces the agent line for a finished turn.
type Responder func(p transport.Params, transcript string) string

// Pipeline serves the pipeline endpoint.
type Pipeline struct {
	// Token, when set, must be presented as a bearer token, X-Auth-Token
	// header or password query parameter.
	Token       string
	SampleRate  int
	TurnLength  time.Duration
	SpeechLevel float64
	Respond     Responder
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// New returns a pipeline with defaults.
func New(token string, m *metrics.Metrics, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		Token:       token,
		SampleRate:  defaultSampleRate,
		TurnLength:  defaultTurnLength,
		SpeechLevel: defaultSpeechLevel,
		Metrics:     m,
		Logger:      logger,
	}
}

func defaultRespond(p transport.Params, transcript string) string {
	name := p.Identity
	if name == "" {
		name = "your agent"
	}
	return fmt.Sprintf("This is %s. I heard %s.", name, transcript)
}

// ServeHTTP upgrades an authorized request and runs the turn loop until the
// client goes away.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if p.Token != "" && !checkAuthHeaderOrQuery(r, p.Token) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.Logger.Warn("pipeline upgrade failed", "err", err)
		return
	}
	defer func() { _ = conn.Close() }()

	params := transport.ParamsFromQuery(r.URL.Query())
	log := p.Logger.With("agent", params.AgentID, "user", params.UserID)
	p.Metrics.PipelineOpened()
	defer p.Metrics.PipelineClosed()
	log.Info("pipeline connected", "voice", params.VoiceID, "identity", params.Identity)

	t := &turn{p: p, conn: conn, params: params, log: log}
	t.run()
	log.Info("pipeline disconnected", "turns", t.turns)
}

// turn carries per-connection state. Only its run goroutine writes to conn.
type turn struct {
	p      *Pipeline
	conn   *websocket.Conn
	params transport.Params
	log    *slog.Logger

	buf   []byte
	turns int
}

func (t *turn) run() {
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.log.Debug("pipeline read ended", "err", err)
			}
			return
		}
		ev, err := transport.Decode(data)
		if err != nil {
			t.log.Warn("dropping client frame", "err", err)
			_ = t.write(transport.Event{Type: transport.EventError, Message: err.Error()})
			continue
		}
		t.p.Metrics.PipelineFrame("in", string(ev.Type))
		switch ev.Type {
		case transport.EventPing:
			if err := t.write(transport.Event{Type: transport.EventPong}); err != nil {
				return
			}
		case transport.EventAudio:
			if err := t.gather(ev.Audio); err != nil {
				return
			}
		}
	}
}

func (t *turn) rate() int {
	if t.p.SampleRate <= 0 {
		return defaultSampleRate
	}
	return t.p.SampleRate
}

func (t *turn) turnBytes() int {
	length := t.p.TurnLength
	if length <= 0 {
		length = defaultTurnLength
	}
	return int(int64(t.rate()) * int64(length) / int64(time.Second) * 2)
}

func (t *turn) gather(chunk []byte) error {
	if audio.Level(chunk) < t.p.SpeechLevel {
		return nil
	}
	t.buf = append(t.buf, chunk...)
	if len(t.buf) < t.turnBytes() {
		return nil
	}
	pcm := t.buf
	t.buf = nil
	t.turns++

	transcript := fmt.Sprintf("%.1f seconds of speech", audio.Duration(pcm, t.rate()))
	respond := t.p.Respond
	if respond == nil {
		respond = defaultRespond
	}
	reply := strings.TrimSpace(respond(t.params, transcript))
	t.log.Debug("turn complete", "turn", t.turns, "bytes", len(pcm))

	for _, ev := range []transport.Event{
		{Type: transport.EventTranscript, Text: transcript},
		{Type: transport.EventAgentResponse, Text: reply},
		{Type: transport.EventAudio, Audio: pcm},
	} {
		if err := t.write(ev); err != nil {
			return err
		}
	}
	return nil
}

func (t *turn) write(e transport.Event) error {
	b, err := transport.Encode(e)
	if err != nil {
		return err
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.log.Debug("pipeline write failed", "err", err)
		return err
	}
	t.p.Metrics.PipelineFrame("out", string(e.Type))
	return nil
}

func checkAuthHeaderOrQuery(r *http.Request, token string) bool {
	if r == nil || token == "" {
		return false
	}
	if q := r.URL.Query().Get("password"); q != "" && q == token {
		return true
	}
	ah := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(ah), "bearer ") {
		if strings.TrimSpace(ah[len("Bearer "):]) == token {
			return true
		}
	}
	if x := r.Header.Get("X-Auth-Token"); x != "" && x == token {
		return true
	}
	return false
}
