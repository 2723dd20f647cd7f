package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/supabase-community/supabase-go"
)

// SupabaseStore reads documents from a PostgREST table exposed by Supabase.
type SupabaseStore struct {
	client *supabase.Client
	table  string
}

type document struct {
	ID      string `json:"id"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}

// NewSupabaseStore connects to the project at url. table defaults to
// "documents".
func NewSupabaseStore(url, apiKey, table string) (*SupabaseStore, error) {
	if url == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}
	if table == "" {
		table = "documents"
	}
	client, err := supabase.NewClient(url, apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return &SupabaseStore{client: client, table: table}, nil
}

// Get implements Store.
func (s *SupabaseStore) Get(ctx context.Context, documentID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var doc document
	_, err := s.client.From(s.table).
		Select("id,title,content", "", false).
		Eq("id", documentID).
		Single().
		ExecuteTo(&doc)
	if err != nil {
		if isNoRows(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, documentID)
		}
		return "", fmt.Errorf("%w: get document %s: %v", ErrUnavailable, documentID, err)
	}
	if doc.ID == "" && doc.Content == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, documentID)
	}
	return doc.Content, nil
}

// PostgREST reports an empty single-row result as PGRST116.
func isNoRows(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "PGRST116") || strings.Contains(msg, "0 rows")
}
