package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const defaultElevenLabsURL = "https://api.elevenlabs.io"

// ElevenLabsClient streams speech from the ElevenLabs HTTP streaming
// endpoint as raw PCM.
type ElevenLabsClient struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
	VoiceID    string
	ModelID    string
	sampleRate int
}

// ElevenLabs accepts only these PCM output rates.
var elevenLabsRates = map[int]bool{16000: true, 22050: true, 24000: true, 44100: true, 48000: true}

// NewElevenLabsClient returns PCM at sampleRate, which must be one of the
// rates ElevenLabs offers; anything else falls back to 48 kHz.
func NewElevenLabsClient(apiKey, voiceID string, sampleRate int) *ElevenLabsClient {
	if !elevenLabsRates[sampleRate] {
		sampleRate = 48000
	}
	return &ElevenLabsClient{
		HTTPClient: &http.Client{Timeout: 0},
		BaseURL:    defaultElevenLabsURL,
		APIKey:     apiKey,
		VoiceID:    voiceID,
		ModelID:    "eleven_flash_v2_5",
		sampleRate: sampleRate,
	}
}

// SampleRate reports the output rate.
func (e *ElevenLabsClient) SampleRate() int { return e.sampleRate }

// StreamPCM implements Synthesizer.
func (e *ElevenLabsClient) StreamPCM(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	pcmCh := make(chan []byte, 4096)
	errCh := make(chan error, 1)
	go func() {
		defer close(pcmCh)
		defer close(errCh)
		if e.APIKey == "" || e.VoiceID == "" {
			errCh <- fmt.Errorf("elevenlabs: %w or voice id missing", ErrMissingKey)
			return
		}
		if strings.TrimSpace(text) == "" {
			return
		}
		if err := e.httpStream(ctx, text, pcmCh); err != nil {
			errCh <- err
		}
	}()
	return pcmCh, errCh
}

func (e *ElevenLabsClient) httpStream(ctx context.Context, text string, pcmCh chan<- []byte) error {
	base := e.BaseURL
	if base == "" {
		base = defaultElevenLabsURL
	}
	u, err := url.Parse(strings.TrimRight(base, "/") + "/v1/text-to-speech/" + url.PathEscape(e.VoiceID) + "/stream")
	if err != nil {
		return fmt.Errorf("elevenlabs: build url: %w", err)
	}
	q := u.Query()
	q.Set("model_id", e.ModelID)
	q.Set("output_format", fmt.Sprintf("pcm_%d", e.sampleRate))
	// lower is lower latency, may trade quality
	q.Set("optimize_streaming_latency", "2")
	u.RawQuery = q.Encode()

	body := map[string]any{
		"model_id": e.ModelID,
		"text":     text,
		"voice_settings": map[string]any{
			"stability":         0.4,
			"similarity_boost":  0.7,
			"style":             0.0,
			"use_speaker_boost": true,
		},
		"generation_config": map[string]any{
			"chunk_length_schedule": []int{80, 120, 160, 200},
		},
	}
	buf, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", e.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("elevenlabs http stream error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("elevenlabs http status=%d body=%s", resp.StatusCode, string(b))
	}

	chunk := make([]byte, 4096)
	first := true
	for {
		n, rerr := resp.Body.Read(chunk)
		if n > 0 {
			if first {
				slog.Debug("elevenlabs audio stream started", "bytes", n)
				first = false
			}
			out := make([]byte, n)
			copy(out, chunk[:n])
			select {
			case pcmCh <- out:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return nil
			}
			return fmt.Errorf("elevenlabs http read error: %w", rerr)
		}
	}
}
