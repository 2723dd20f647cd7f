package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chadiek/voicecall/internal/agent"
	"github.com/chadiek/voicecall/internal/config"
	"github.com/chadiek/voicecall/internal/knowledge"
	"github.com/chadiek/voicecall/internal/llm"
	"github.com/chadiek/voicecall/internal/tools"
	"github.com/chadiek/voicecall/internal/tts"
)

func TestDescribeResolution(t *testing.T) {
	reg, err := tools.NewRegistry(tools.Tool{
		Name:   "notes",
		Label:  "Notes",
		Schema: []byte(`{"type":"object","required":["text"]}`),
	})
	require.NoError(t, err)

	cases := map[string]string{
		"Hello there":                          "speech: Hello there\n",
		`{"tool":"notes","data":{"text":"x"}}`: "tool: notes (Notes) data={\"text\":\"x\"}\n",
		`{"tool":"crm","data":{}}`:             "speech: unknown tool \"crm\"\n",
	}
	for in, want := range cases {
		var buf bytes.Buffer
		require.NoError(t, describeResolution(&buf, reg, in))
		assert.Equal(t, want, buf.String(), in)
	}

	var buf bytes.Buffer
	require.NoError(t, describeResolution(&buf, reg, `{"tool":"notes","data":{}}`))
	assert.Contains(t, buf.String(), "speech:")

	buf.Reset()
	require.NoError(t, describeResolution(&buf, nil, `{"tool":"notes"}`))
	assert.Contains(t, buf.String(), "no registry loaded")
}

func TestSessionConfig(t *testing.T) {
	c := config.Config{
		PipelineURL:     "ws://h/pipeline",
		AgentID:         "a1",
		AgentIdentity:   "Ava",
		KnowledgeDocIDs: []string{"faq"},
		SessionTimeout:  time.Minute,
		WireSampleRate:  16000,
	}
	sc := sessionConfig(c)
	assert.Equal(t, "ws://h/pipeline", sc.Endpoint)
	assert.Equal(t, "a1", sc.Params.AgentID)
	assert.Equal(t, "Ava", sc.Params.Identity)
	assert.Equal(t, "Ava", sc.Identity)
	assert.Equal(t, []string{"faq"}, sc.DocumentIDs)
	assert.Equal(t, time.Minute, sc.SessionTimeout)
}

func TestBuildStore(t *testing.T) {
	s, closeFn, err := buildStore(context.Background(), config.Config{})
	require.NoError(t, err)
	assert.Nil(t, s)
	closeFn()

	_, _, err = buildStore(context.Background(), config.Config{KnowledgeBackend: "nope"})
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set("knowledge:doc:faq", "We open at nine."))
	s, closeFn, err = buildStore(context.Background(), config.Config{KnowledgeBackend: "redis", RedisAddr: mr.Addr()})
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &knowledge.RedisStore{}, s)
	got, err := s.Get(context.Background(), "faq")
	require.NoError(t, err)
	assert.Equal(t, "We open at nine.", got)
}

func TestBuildTools(t *testing.T) {
	d, err := buildTools(config.Config{}, nil)
	require.NoError(t, err)
	assert.Nil(t, d)

	path := filepath.Join(t.TempDir(), "tools.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"name":"notes","label":"Notes"}]`), 0o600))
	d, err = buildTools(config.Config{ToolsFile: path, ToolTimeout: time.Second}, nil)
	require.NoError(t, err)
	_, tool, ok := d.Resolve(`{"tool":"notes","data":{}}`)
	assert.True(t, ok)
	assert.Equal(t, "Notes", tool.DisplayName())
}

func TestBuildModelAndSpeech(t *testing.T) {
	assert.Nil(t, buildModel(config.Config{}))
	assert.IsType(t, &llm.CerebrasClient{}, buildModel(config.Config{CerebrasKey: "k"}))
	assert.IsType(t, &llm.GeminiClient{}, buildModel(config.Config{LLMProvider: "gemini", GeminiKey: "k"}))

	assert.Nil(t, buildSpeech(config.Config{}))
	assert.IsType(t, &tts.DeepgramClient{}, buildSpeech(config.Config{DeepgramKey: "k", WireSampleRate: 16000}))
	assert.IsType(t, &tts.ElevenLabsClient{}, buildSpeech(config.Config{TTSProvider: "elevenlabs", ElevenLabsKey: "k", ElevenVoiceID: "v", WireSampleRate: 16000}))
}

func TestPrintNotice(t *testing.T) {
	var buf bytes.Buffer
	printNotice(&buf, agent.Notice{Kind: agent.NoticeTranscript, Text: "hi"})
	printNotice(&buf, agent.Notice{Kind: agent.NoticeFatal, Text: "boom"})
	assert.Equal(t, "you:   hi\n!! fatal: boom\n", buf.String())
}
