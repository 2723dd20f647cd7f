// Package knowledge fetches reference documents for the model context and
// memoizes them for the life of one session.
package knowledge

import (
	"context"
	"errors"
)

var (
	// ErrNotFound means the document id does not exist in the store.
	ErrNotFound = errors.New("knowledge: document not found")
	// ErrUnavailable means the store could not be reached or failed.
	ErrUnavailable = errors.New("knowledge: store unavailable")
)

// Store resolves a document id to its content.
type Store interface {
	Get(ctx context.Context, documentID string) (string, error)
}

// StoreFunc adapts a function to Store.
type StoreFunc func(ctx context.Context, documentID string) (string, error)

func (f StoreFunc) Get(ctx context.Context, id string) (string, error) { return f(ctx, id) }
