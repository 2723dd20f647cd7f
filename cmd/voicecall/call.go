package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chadiek/voicecall/internal/agent"
	"github.com/chadiek/voicecall/internal/audio"
	"github.com/chadiek/voicecall/internal/config"
	"github.com/chadiek/voicecall/internal/logging"
	"github.com/chadiek/voicecall/internal/metrics"
	"github.com/chadiek/voicecall/internal/playback"
	"github.com/chadiek/voicecall/internal/transport"
)

const (
	deviceRate  = 48000
	deviceFrame = 960 // 20ms
)

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Start a live voice session with the default microphone and speaker",
	Long: `Starts a voice session against the configured pipeline. Lines typed on
stdin are sent as local text turns; Ctrl-C ends the call.

Examples:
  voicecall call --pipeline ws://localhost:8080/pipeline --identity Ava
  voicecall call --doc faq --doc pricing --timeout 15m`,
	RunE: runCall,
}

var (
	callPipeline string
	callAgentID  string
	callVoiceID  string
	callIdentity string
	callDocs     []string
	callTimeout  time.Duration
)

func init() {
	rootCmd.AddCommand(callCmd)
	callCmd.Flags().StringVar(&callPipeline, "pipeline", "", "Pipeline WebSocket URL (PIPELINE_URL)")
	callCmd.Flags().StringVar(&callAgentID, "agent-id", "", "Agent id (AGENT_ID)")
	callCmd.Flags().StringVar(&callVoiceID, "voice-id", "", "Voice id (VOICE_ID)")
	callCmd.Flags().StringVar(&callIdentity, "identity", "", "Agent persona name (AGENT_IDENTITY)")
	callCmd.Flags().StringSliceVar(&callDocs, "doc", nil, "Knowledge document id, repeatable (KNOWLEDGE_DOC_IDS)")
	callCmd.Flags().DurationVar(&callTimeout, "timeout", 0, "Surface a time notice after this long (SESSION_TIMEOUT)")
}

func applyCallFlags(cmd *cobra.Command, c *config.Config) {
	if cmd.Flags().Changed("pipeline") {
		c.PipelineURL = callPipeline
	}
	if cmd.Flags().Changed("agent-id") {
		c.AgentID = callAgentID
	}
	if cmd.Flags().Changed("voice-id") {
		c.VoiceID = callVoiceID
	}
	if cmd.Flags().Changed("identity") {
		c.AgentIdentity = callIdentity
	}
	if cmd.Flags().Changed("doc") {
		c.KnowledgeDocIDs = callDocs
	}
	if cmd.Flags().Changed("timeout") {
		c.SessionTimeout = callTimeout
	}
}

// sessionConfig maps process configuration onto one session.
func sessionConfig(c config.Config) agent.Config {
	return agent.Config{
		Endpoint: c.PipelineURL,
		Token:    c.PipelineToken,
		Params: transport.Params{
			VoiceID:  c.VoiceID,
			AgentID:  c.AgentID,
			Identity: c.AgentIdentity,
			UserID:   c.UserID,
		},
		Identity:           c.AgentIdentity,
		SystemPrompt:       c.SystemPrompt,
		DocumentIDs:        c.KnowledgeDocIDs,
		SpeakWhileFetching: c.SpeakWhileFetching,
		SessionTimeout:     c.SessionTimeout,
		TimeoutMessage:     c.SessionEndMessage,
		ResumeDelay:        c.ResumeDelay,
		HeartbeatInterval:  c.HeartbeatInterval,
		ReconnectDelay:     c.ReconnectDelay,
		WireSampleRate:     c.WireSampleRate,
	}
}

func runCall(cmd *cobra.Command, _ []string) error {
	c := cfg
	applyCallFlags(cmd, &c)
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if c.MetricsAddress != "" {
		go serveMetrics(ctx, c.MetricsAddress, m, logger)
	}

	store, closeStore, err := buildStore(ctx, c)
	if err != nil {
		return fmt.Errorf("knowledge backend: %w", err)
	}
	defer closeStore()
	dispatcher, err := buildTools(c, logger)
	if err != nil {
		return fmt.Errorf("tools: %w", err)
	}

	in, err := audio.OpenDefaultInput(deviceRate, deviceFrame)
	if err != nil {
		return fmt.Errorf("microphone: %w", err)
	}
	out, err := audio.OpenDefaultOutput(deviceRate, deviceFrame)
	if err != nil {
		return fmt.Errorf("speaker: %w", err)
	}
	defer audio.Shutdown()
	player := audio.NewPlayer(out, c.WireSampleRate, logger)
	defer func() { _ = player.Close() }()

	w := cmd.OutOrStdout()
	sess := agent.New(sessionConfig(c), agent.Deps{
		Input:    in,
		Renderer: playback.AudioRenderer(player),
		Store:    store,
		Tools:    dispatcher,
		Model:    buildModel(c),
		Speech:   buildSpeech(c),
		Metrics:  m,
		Notify:   func(n agent.Notice) { printNotice(w, n) },
		Logger:   logger,
	})
	logger.Info("starting call", "session", sess.ID(), "pipeline", c.PipelineURL,
		"token", logging.Redact(c.PipelineToken), "documents", len(c.KnowledgeDocIDs))

	if err := sess.Start(ctx); err != nil {
		return err
	}
	defer sess.Stop()

	go readTurns(ctx, cmd.InOrStdin(), sess, w)

	select {
	case <-ctx.Done():
		logger.Info("ending call")
	case <-sess.Done():
	}
	return nil
}

// readTurns sends each non-empty stdin line as a local text turn.
func readTurns(ctx context.Context, r io.Reader, sess *agent.Session, w io.Writer) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if _, err := sess.SendText(ctx, line); err != nil {
			if errors.Is(err, agent.ErrNotActive) || ctx.Err() != nil {
				return
			}
			fmt.Fprintf(w, "! %v\n", err)
		}
	}
}

func printNotice(w io.Writer, n agent.Notice) {
	switch n.Kind {
	case agent.NoticeTranscript:
		fmt.Fprintf(w, "you:   %s\n", n.Text)
	case agent.NoticeResponse:
		fmt.Fprintf(w, "agent: %s\n", n.Text)
	case agent.NoticeState:
		fmt.Fprintf(w, "-- %s\n", n.Text)
	case agent.NoticeTimeout:
		fmt.Fprintf(w, "** %s\n", n.Text)
	default:
		fmt.Fprintf(w, "!! %s: %s\n", n.Kind, n.Text)
	}
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, logger *slog.Logger) {
	srv := &http.Server{Addr: addr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("metrics server failed", "err", err)
	}
}
