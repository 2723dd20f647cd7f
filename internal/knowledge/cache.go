package knowledge

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
)

// Fetch outcomes reported through Cache.OnFetch.
const (
	OutcomeHit         = "hit"
	OutcomeFetched     = "fetched"
	OutcomeNotFound    = "not_found"
	OutcomeUnavailable = "unavailable"
)

// Cache memoizes documents for one session. The first successful fetch for
// an id wins and is never replaced. Concurrent misses for the same id may
// each reach the store.
type Cache struct {
	store Store
	log   *slog.Logger

	// OnFetch, when set, observes every lookup outcome.
	OnFetch func(outcome string)

	mu   sync.RWMutex
	docs map[string]string
}

// NewCache returns an empty cache in front of store.
func NewCache(store Store, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{store: store, log: logger, docs: make(map[string]string)}
}

func (c *Cache) observe(outcome string) {
	if c.OnFetch != nil {
		c.OnFetch(outcome)
	}
}

// Get returns the content for id, reaching the store only on a miss. A
// result that arrives after ctx is done is discarded.
func (c *Cache) Get(ctx context.Context, id string) (string, error) {
	c.mu.RLock()
	v, ok := c.docs[id]
	c.mu.RUnlock()
	if ok {
		c.observe(OutcomeHit)
		return v, nil
	}
	content, err := c.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.observe(OutcomeNotFound)
		} else {
			c.observe(OutcomeUnavailable)
		}
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.observe(OutcomeFetched)

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.docs[id]; ok {
		return existing, nil
	}
	if c.docs != nil {
		c.docs[id] = content
	}
	return content, nil
}

// Missing lists the ids not yet cached, in input order.
func (c *Cache) Missing(ids []string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for _, id := range ids {
		if _, ok := c.docs[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// Len reports how many documents are cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

// Collect fetches ids concurrently and renders the reference section for
// the model context. Documents that fail are logged and left out.
func (c *Cache) Collect(ctx context.Context, ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	contents := make([]string, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			v, err := c.Get(ctx, id)
			if err != nil {
				c.log.Warn("knowledge fetch failed", "document", id, "err", err)
				return
			}
			contents[i] = v
		}(i, id)
	}
	wg.Wait()

	var b strings.Builder
	for i, v := range contents {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if b.Len() == 0 {
			b.WriteString("Reference material:\n")
		}
		b.WriteString("\n[")
		b.WriteString(ids[i])
		b.WriteString("]\n")
		b.WriteString(v)
		b.WriteString("\n")
	}
	return b.String()
}

// Drop empties the cache for teardown. Later fetches are not memoized.
func (c *Cache) Drop() {
	c.mu.Lock()
	c.docs = nil
	c.mu.Unlock()
}
