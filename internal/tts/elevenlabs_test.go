package tts

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestElevenLabs_StreamsPCM(t *testing.T) {
	var format, voicePath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		format = r.URL.Query().Get("output_format")
		voicePath = r.URL.Path
		if r.Header.Get("xi-api-key") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write(make([]byte, 3200))
	}))
	defer srv.Close()

	e := NewElevenLabsClient("key", "voice-1", 16000)
	e.BaseURL = srv.URL
	pcm, err := Collect(context.Background(), e, "Hello there.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pcm) != 3200 {
		t.Fatalf("got %d bytes", len(pcm))
	}
	if format != "pcm_16000" {
		t.Fatalf("output_format = %q", format)
	}
	if voicePath != "/v1/text-to-speech/voice-1/stream" {
		t.Fatalf("path = %q", voicePath)
	}
}

func TestElevenLabs_Errors(t *testing.T) {
	if _, err := Collect(context.Background(), NewElevenLabsClient("", "v", 16000), "hi"); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("quota"))
	}))
	defer srv.Close()
	e := NewElevenLabsClient("key", "v", 44100)
	e.BaseURL = srv.URL
	if _, err := Collect(context.Background(), e, "hi"); err == nil {
		t.Fatalf("expected error for 429")
	}
	if NewElevenLabsClient("k", "v", 8000).SampleRate() != 48000 {
		t.Fatalf("unsupported rate should fall back to 48000")
	}
}
