package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// Dev server
	HTTPAddress  string
	PipelineAuth string

	// Session
	PipelineURL       string
	PipelineToken     string
	AgentID           string
	VoiceID           string
	AgentIdentity     string
	UserID            string
	SystemPrompt      string
	SessionTimeout    time.Duration
	SessionEndMessage string
	ResumeDelay       time.Duration
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
	WireSampleRate    int

	// Knowledge
	KnowledgeDocIDs    []string
	KnowledgeBackend   string
	KnowledgeTable     string
	SpeakWhileFetching bool
	SupabaseURL        string
	SupabaseKey        string
	RedisAddr          string
	PostgresDSN        string

	// Tools
	ToolsFile         string
	ToolWebhookURL    string
	ToolWebhookSecret string
	ToolTimeout       time.Duration

	// Local text turns
	LLMProvider     string
	CerebrasKey     string
	CerebrasModelID string
	GeminiKey       string
	GeminiModel     string
	TTSProvider     string
	DeepgramKey     string
	DeepgramModel   string
	ElevenLabsKey   string
	ElevenVoiceID   string

	MetricsAddress string
	LogLevel       string
	LogFormat      string
}

// Load reads an optional .env file, then environment variables, and returns
// Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "err", err)
	}

	cfg := Config{
		HTTPAddress:  getenv("HTTP_ADDRESS", ":8080"),
		PipelineAuth: os.Getenv("PIPELINE_AUTH_TOKEN"),

		PipelineURL:       getenv("PIPELINE_URL", "ws://localhost:8080/pipeline"),
		PipelineToken:     os.Getenv("PIPELINE_TOKEN"),
		AgentID:           os.Getenv("AGENT_ID"),
		VoiceID:           os.Getenv("VOICE_ID"),
		AgentIdentity:     getenv("AGENT_IDENTITY", "Ava"),
		UserID:            os.Getenv("USER_ID"),
		SystemPrompt:      os.Getenv("SYSTEM_PROMPT"),
		SessionTimeout:    getDuration("SESSION_TIMEOUT", 0),
		SessionEndMessage: os.Getenv("SESSION_END_MESSAGE"),
		ResumeDelay:       getDuration("RESUME_DELAY", 400*time.Millisecond),
		HeartbeatInterval: getDuration("HEARTBEAT_INTERVAL", 20*time.Second),
		ReconnectDelay:    getDuration("RECONNECT_DELAY", time.Second),
		WireSampleRate:    getInt("WIRE_SAMPLE_RATE", 16000),

		KnowledgeDocIDs:    splitList(os.Getenv("KNOWLEDGE_DOC_IDS")),
		KnowledgeBackend:   strings.ToLower(os.Getenv("KNOWLEDGE_BACKEND")),
		KnowledgeTable:     getenv("KNOWLEDGE_TABLE", "documents"),
		SpeakWhileFetching: getBool("SPEAK_WHILE_FETCHING", true),
		SupabaseURL:        os.Getenv("SUPABASE_URL"),
		SupabaseKey:        os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		RedisAddr:          getenv("REDIS_ADDR", "localhost:6379"),
		PostgresDSN:        os.Getenv("DATABASE_URL"),

		ToolsFile:         os.Getenv("TOOLS_FILE"),
		ToolWebhookURL:    os.Getenv("TOOL_WEBHOOK_URL"),
		ToolWebhookSecret: os.Getenv("TOOL_WEBHOOK_SECRET"),
		ToolTimeout:       getDuration("TOOL_TIMEOUT", 10*time.Second),

		LLMProvider:     strings.ToLower(getenv("LLM_PROVIDER", "cerebras")),
		CerebrasKey:     os.Getenv("CEREBRAS_API_KEY"),
		CerebrasModelID: getenv("CEREBRAS_MODEL_ID", "gpt-oss-120b"),
		GeminiKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:     getenv("GEMINI_MODEL", "gemini-2.5-flash"),
		TTSProvider:     strings.ToLower(getenv("TTS_PROVIDER", "deepgram")),
		DeepgramKey:     os.Getenv("DEEPGRAM_API_KEY"),
		DeepgramModel:   getenv("DEEPGRAM_MODEL", "aura-2-thalia-en"),
		ElevenLabsKey:   os.Getenv("ELEVENLABS_API_KEY"),
		ElevenVoiceID:   os.Getenv("ELEVENLABS_VOICE_ID"),

		MetricsAddress: os.Getenv("METRICS_ADDRESS"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogFormat:      getenv("LOG_FORMAT", "text"),
	}
	cfg.warn()
	return cfg
}

// warn logs missing vendor credentials for the providers selected.
func (c Config) warn() {
	switch c.LLMProvider {
	case "gemini":
		if c.GeminiKey == "" {
			slog.Warn("GEMINI_API_KEY not set - local text turns will not work")
		}
	default:
		if c.CerebrasKey == "" {
			slog.Warn("CEREBRAS_API_KEY not set - local text turns will not work")
		}
	}
	switch c.TTSProvider {
	case "elevenlabs":
		if c.ElevenLabsKey == "" || c.ElevenVoiceID == "" {
			slog.Warn("ELEVENLABS_API_KEY or ELEVENLABS_VOICE_ID not set - local speech will not work")
		}
	default:
		if c.DeepgramKey == "" {
			slog.Warn("DEEPGRAM_API_KEY not set - local speech will not work")
		}
	}
	switch c.KnowledgeBackend {
	case "supabase":
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			slog.Warn("SUPABASE_URL or SUPABASE_SERVICE_ROLE_KEY not set - knowledge lookups will fail")
		}
	case "postgres":
		if c.PostgresDSN == "" {
			slog.Warn("DATABASE_URL not set - knowledge lookups will fail")
		}
	}
	if c.ToolWebhookURL != "" && c.ToolWebhookSecret == "" {
		slog.Warn("TOOL_WEBHOOK_SECRET not set - tool webhooks are unsigned")
	}
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func getInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("invalid integer, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func getBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
