package knowledge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces document keys.
const DefaultRedisPrefix = "knowledge:doc:"

// RedisStore reads documents stored as plain string values.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStore wraps client. An empty prefix uses DefaultRedisPrefix.
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(id string) string { return s.prefix + id }

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, documentID string) (string, error) {
	val, err := s.client.Get(ctx, s.key(documentID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, documentID)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return val, nil
}

// Put stores content under documentID. A zero ttl keeps it forever.
func (s *RedisStore) Put(ctx context.Context, documentID, content string, ttl time.Duration) error {
	return s.client.Set(ctx, s.key(documentID), content, ttl).Err()
}
