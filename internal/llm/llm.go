// Package llm holds chat-completion clients used for locally initiated turns.
package llm

import (
	"context"
	"errors"
)

// Roles used in Message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrMissingKey is returned when a client has no API key.
var ErrMissingKey = errors.New("llm: api key missing")

// Message is one prior turn.
type Message struct {
	Role    string
	Content string
}

// Request is the full model context for one reply. The last message is
// the user turn being answered.
type Request struct {
	System   string
	Messages []Message
}

// Client generates one reply.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}
