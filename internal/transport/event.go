// Package transport carries turn events between the local session and the
// remote voice pipeline over a persistent WebSocket channel.
package transport

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// EventType tags a turn event.
type EventType string

const (
	EventAudio         EventType = "audio"
	EventTranscript    EventType = "transcript"
	EventAgentResponse EventType = "agent-response"
	EventStopAudio     EventType = "stop-audio"
	EventPing          EventType = "ping"
	EventPong          EventType = "pong"
	EventError         EventType = "error"
)

var (
	// ErrUnknownEvent is returned by Decode for an unrecognised type tag.
	ErrUnknownEvent = errors.New("transport: unknown event type")
	// ErrReconnectExhausted is reported once the reconnection budget is spent.
	ErrReconnectExhausted = errors.New("transport: reconnect attempts exhausted")
)

// Event is one message exchanged with the pipeline. Audio carries raw PCM16
// little-endian mono at the wire rate; Text carries transcript or response
// text; Message carries an error description.
type Event struct {
	Type    EventType
	Text    string
	Message string
	Audio   []byte
}

type wireEvent struct {
	Type    EventType `json:"type"`
	Text    string    `json:"text,omitempty"`
	Message string    `json:"message,omitempty"`
	Audio   string    `json:"audio,omitempty"`
}

func known(t EventType) bool {
	switch t {
	case EventAudio, EventTranscript, EventAgentResponse, EventStopAudio, EventPing, EventPong, EventError:
		return true
	}
	return false
}

// Encode renders e as a JSON text frame.
func Encode(e Event) ([]byte, error) {
	if !known(e.Type) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, e.Type)
	}
	w := wireEvent{Type: e.Type, Text: e.Text, Message: e.Message}
	if len(e.Audio) > 0 {
		w.Audio = base64.StdEncoding.EncodeToString(e.Audio)
	}
	return json.Marshal(w)
}

// Decode parses a JSON text frame.
func Decode(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("transport: decode event: %w", err)
	}
	if !known(w.Type) {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, w.Type)
	}
	e := Event{Type: w.Type, Text: w.Text, Message: w.Message}
	if w.Audio != "" {
		b, err := base64.StdEncoding.DecodeString(w.Audio)
		if err != nil {
			return Event{}, fmt.Errorf("transport: decode audio payload: %w", err)
		}
		e.Audio = b
	}
	return e, nil
}
