package tools

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SignatureHeader carries the HMAC of a webhook body.
const SignatureHeader = "X-Signature"

// Executor performs an invocation. A nil error means success.
type Executor interface {
	Execute(ctx context.Context, inv Invocation) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, inv Invocation) error

func (f ExecutorFunc) Execute(ctx context.Context, inv Invocation) error { return f(ctx, inv) }

// Sign returns the "sha256=<hex>" HMAC of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body under secret.
func Verify(secret, signature string, body []byte) bool {
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(Sign(secret, body)))
}

// WebhookExecutor posts invocations as JSON to URL. The tool name is
// appended to URL as a path segment.
type WebhookExecutor struct {
	HTTPClient *http.Client
	URL        string
	Secret     string
}

// NewWebhookExecutor returns an executor with a bounded HTTP timeout.
func NewWebhookExecutor(url, secret string) *WebhookExecutor {
	return &WebhookExecutor{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		URL:        url,
		Secret:     secret,
	}
}

// Execute implements Executor.
func (w *WebhookExecutor) Execute(ctx context.Context, inv Invocation) error {
	if w.URL == "" {
		return fmt.Errorf("tool webhook url missing")
	}
	body, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("encode invocation: %w", err)
	}
	endpoint := strings.TrimRight(w.URL, "/") + "/" + inv.Tool
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(w.Secret, body))
	}
	resp, err := w.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("tool webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("tool webhook error: status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}
