package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"
)

// GeminiClient generates replies with the Gemini API.
type GeminiClient struct {
	APIKey  string
	Model   string
	BaseURL string

	once   sync.Once
	client *genai.Client
	err    error
}

func NewGeminiClient(apiKey, model string) *GeminiClient {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiClient{APIKey: apiKey, Model: model}
}

func (g *GeminiClient) init(ctx context.Context) error {
	g.once.Do(func() {
		cfg := &genai.ClientConfig{APIKey: g.APIKey, Backend: genai.BackendGeminiAPI}
		if g.BaseURL != "" {
			cfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.BaseURL}
		}
		g.client, g.err = genai.NewClient(ctx, cfg)
	})
	return g.err
}

func (g *GeminiClient) Generate(ctx context.Context, req Request) (string, error) {
	if g.APIKey == "" {
		return "", fmt.Errorf("gemini: %w", ErrMissingKey)
	}
	if err := g.init(ctx); err != nil {
		return "", fmt.Errorf("gemini: create client: %w", err)
	}
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []*genai.Part{{Text: m.Content}}})
	}
	var cfg *genai.GenerateContentConfig
	if req.System != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: req.System}}},
		}
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.Model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini: generate: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini: empty response")
	}
	return text, nil
}
