package knowledge

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgxpool.Pool used by PostgresStore.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore reads documents from a table with id and content columns.
type PostgresStore struct {
	db    Querier
	query string
}

// NewPostgresStore queries table through db. table defaults to "documents".
func NewPostgresStore(db Querier, table string) *PostgresStore {
	if table == "" {
		table = "documents"
	}
	q := fmt.Sprintf("SELECT content FROM %s WHERE id = $1", pgx.Identifier{table}.Sanitize())
	return &PostgresStore{db: db, query: q}
}

// OpenPostgres opens a connection pool for dsn.
func OpenPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return pool, nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, documentID string) (string, error) {
	var content string
	err := s.db.QueryRow(ctx, s.query, documentID).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, documentID)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return content, nil
}
