package agent

import (
	"sync"

	"github.com/chadiek/voicecall/internal/llm"
)

// Role identifies who produced a history entry.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Entry is one immutable turn. Seq starts at 1 and has no gaps.
type Entry struct {
	Role Role
	Text string
	Seq  int
}

// History is the append-only conversation record and the canonical model
// context for the session.
type History struct {
	mu      sync.Mutex
	entries []Entry
}

// Append records a turn and returns its sequence number.
func (h *History) Append(role Role, text string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	seq := len(h.entries) + 1
	h.entries = append(h.entries, Entry{Role: role, Text: text, Seq: seq})
	return seq
}

// Entries returns a snapshot in sequence order.
func (h *History) Entries() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len reports the number of entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Reset discards all entries. Only session teardown calls it.
func (h *History) Reset() {
	h.mu.Lock()
	h.entries = nil
	h.mu.Unlock()
}

// Messages converts the history into model messages.
func (h *History) Messages() []llm.Message {
	entries := h.Entries()
	out := make([]llm.Message, 0, len(entries))
	for _, e := range entries {
		role := llm.RoleUser
		if e.Role == RoleAgent {
			role = llm.RoleAssistant
		}
		out = append(out, llm.Message{Role: role, Content: e.Text})
	}
	return out
}
