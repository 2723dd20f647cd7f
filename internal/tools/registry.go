package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

var (
	// ErrToolNotFound is returned for an unregistered tool name.
	ErrToolNotFound = errors.New("tool not found")
	// ErrToolNameRequired is returned when registering a tool without a name.
	ErrToolNameRequired = errors.New("tool name is required")
	// ErrInvalidData is returned when invocation data fails the tool schema.
	ErrInvalidData = errors.New("tool data does not match schema")
)

// Tool describes an action the agent may trigger.
type Tool struct {
	Name string `json:"name"`
	// Label is the human name used in spoken confirmations.
	Label       string          `json:"label"`
	Description string          `json:"description,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
}

// DisplayName returns Label, or Name when no label is set.
func (t Tool) DisplayName() string {
	if t.Label != "" {
		return t.Label
	}
	return t.Name
}

// Registry holds the known tools and their compiled schemas.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*gojsonschema.Schema
}

// NewRegistry registers tools. It fails on the first invalid tool.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool), schemas: make(map[string]*gojsonschema.Schema)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// LoadRegistry reads a JSON array of tools from path.
func LoadRegistry(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tools file: %w", err)
	}
	var list []Tool
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, fmt.Errorf("parse tools file %s: %w", path, err)
	}
	return NewRegistry(list...)
}

// Register adds or replaces t.
func (r *Registry) Register(t Tool) error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return ErrToolNameRequired
	}
	var schema *gojsonschema.Schema
	if len(t.Schema) > 0 {
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(t.Schema))
		if err != nil {
			return fmt.Errorf("invalid schema for tool %s: %w", t.Name, err)
		}
		schema = s
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
	if schema != nil {
		r.schemas[t.Name] = schema
	} else {
		delete(r.schemas, t.Name)
	}
	return nil
}

// Lookup returns the tool registered as name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names lists registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for n := range r.tools {
		out = append(out, n)
	}
	return out
}

// Validate checks inv against its tool schema, if any.
func (r *Registry) Validate(inv Invocation) error {
	r.mu.RLock()
	_, ok := r.tools[inv.Tool]
	schema := r.schemas[inv.Tool]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrToolNotFound, inv.Tool)
	}
	if schema == nil {
		return nil
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(inv.Data))
	if err != nil {
		return fmt.Errorf("validation error for tool %s: %w", inv.Tool, err)
	}
	if !result.Valid() {
		msgs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			msgs[i] = desc.String()
		}
		return fmt.Errorf("%w: %s: %s", ErrInvalidData, inv.Tool, strings.Join(msgs, "; "))
	}
	return nil
}
