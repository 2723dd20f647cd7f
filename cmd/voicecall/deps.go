package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/chadiek/voicecall/internal/agent"
	"github.com/chadiek/voicecall/internal/config"
	"github.com/chadiek/voicecall/internal/knowledge"
	"github.com/chadiek/voicecall/internal/llm"
	"github.com/chadiek/voicecall/internal/tools"
	"github.com/chadiek/voicecall/internal/tts"
)

// buildStore opens the configured knowledge backend. The returned func
// releases it.
func buildStore(ctx context.Context, c config.Config) (knowledge.Store, func(), error) {
	noop := func() {}
	switch c.KnowledgeBackend {
	case "":
		return nil, noop, nil
	case "supabase":
		s, err := knowledge.NewSupabaseStore(c.SupabaseURL, c.SupabaseKey, c.KnowledgeTable)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("connect redis %s: %w", c.RedisAddr, err)
		}
		return knowledge.NewRedisStore(client, ""), func() { _ = client.Close() }, nil
	case "postgres":
		pool, err := knowledge.OpenPostgres(ctx, c.PostgresDSN)
		if err != nil {
			return nil, noop, err
		}
		return knowledge.NewPostgresStore(pool, c.KnowledgeTable), pool.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown knowledge backend %q", c.KnowledgeBackend)
	}
}

// buildTools loads the tool registry, if configured.
func buildTools(c config.Config, logger *slog.Logger) (*tools.Dispatcher, error) {
	if c.ToolsFile == "" {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	reg, err := tools.LoadRegistry(c.ToolsFile)
	if err != nil {
		return nil, err
	}
	var exec tools.Executor
	if c.ToolWebhookURL != "" {
		exec = tools.NewWebhookExecutor(c.ToolWebhookURL, c.ToolWebhookSecret)
	}
	logger.Info("tools loaded", "count", len(reg.Names()), "webhook", c.ToolWebhookURL != "")
	return tools.NewDispatcher(reg, exec, c.ToolTimeout, logger), nil
}

// buildModel returns the model for local text turns, or nil without a key.
func buildModel(c config.Config) agent.Model {
	switch c.LLMProvider {
	case "gemini":
		if c.GeminiKey == "" {
			return nil
		}
		return llm.NewGeminiClient(c.GeminiKey, c.GeminiModel)
	default:
		if c.CerebrasKey == "" {
			return nil
		}
		return llm.NewCerebrasClient(c.CerebrasKey, c.CerebrasModelID)
	}
}

// buildSpeech returns the synthesizer for local speech, or nil without
// credentials.
func buildSpeech(c config.Config) agent.Speech {
	switch c.TTSProvider {
	case "elevenlabs":
		if c.ElevenLabsKey == "" || c.ElevenVoiceID == "" {
			return nil
		}
		return tts.NewElevenLabsClient(c.ElevenLabsKey, c.ElevenVoiceID, c.WireSampleRate)
	default:
		if c.DeepgramKey == "" {
			return nil
		}
		return tts.NewDeepgramClient(c.DeepgramKey, c.DeepgramModel, c.WireSampleRate)
	}
}
