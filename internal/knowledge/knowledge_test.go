package knowledge

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	calls atomic.Int32
	docs  map[string]string
	delay time.Duration
}

func (s *countingStore) Get(ctx context.Context, id string) (string, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	v, ok := s.docs[id]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func TestCache_MemoizesFirstFetch(t *testing.T) {
	store := &countingStore{docs: map[string]string{"a": "alpha"}}
	c := NewCache(store, nil)
	var outcomes []string
	c.OnFetch = func(o string) { outcomes = append(outcomes, o) }

	v, err := c.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "alpha", v)
	store.docs["a"] = "changed"
	v, err = c.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "alpha", v)
	assert.Equal(t, int32(1), store.calls.Load())
	assert.Equal(t, []string{OutcomeFetched, OutcomeHit}, outcomes)
}

func TestCache_ConcurrentMissesMayBothFetch(t *testing.T) {
	store := &countingStore{docs: map[string]string{"a": "alpha"}, delay: 20 * time.Millisecond}
	c := NewCache(store, nil)
	var wg sync.WaitGroup
	results := make([]string, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.Get(context.Background(), "a")
		}(i)
	}
	wg.Wait()
	assert.Equal(t, []string{"alpha", "alpha"}, results)
	assert.Equal(t, int32(2), store.calls.Load())
	assert.Equal(t, 1, c.Len())
}

func TestCache_DiscardsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := StoreFunc(func(context.Context, string) (string, error) {
		cancel()
		return "late", nil
	})
	c := NewCache(store, nil)
	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, c.Len())
}

func TestCache_CollectSkipsFailures(t *testing.T) {
	store := &countingStore{docs: map[string]string{"a": "alpha", "c": "gamma"}}
	c := NewCache(store, nil)
	assert.Equal(t, []string{"a", "b", "c"}, c.Missing([]string{"a", "b", "c"}))

	out := c.Collect(context.Background(), []string{"a", "b", "c"})
	assert.True(t, strings.HasPrefix(out, "Reference material:"))
	assert.Contains(t, out, "[a]\nalpha")
	assert.Contains(t, out, "[c]\ngamma")
	assert.NotContains(t, out, "[b]")
	assert.Less(t, strings.Index(out, "[a]"), strings.Index(out, "[c]"))
	assert.Equal(t, []string{"b"}, c.Missing([]string{"a", "b", "c"}))
	assert.Empty(t, c.Collect(context.Background(), nil))
}

func TestCache_DropStopsMemoizing(t *testing.T) {
	store := &countingStore{docs: map[string]string{"a": "alpha"}}
	c := NewCache(store, nil)
	_, _ = c.Get(context.Background(), "a")
	c.Drop()
	assert.Zero(t, c.Len())
	v, err := c.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "alpha", v)
	assert.Zero(t, c.Len())
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	s := NewRedisStore(client, "")

	require.NoError(t, s.Put(context.Background(), "faq", "Opening hours are 9 to 5.", 0))
	assert.True(t, mr.Exists(DefaultRedisPrefix+"faq"))
	v, err := s.Get(context.Background(), "faq")
	require.NoError(t, err)
	assert.Equal(t, "Opening hours are 9 to 5.", v)

	_, err = s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	mr.Close()
	_, err = s.Get(context.Background(), "faq")
	assert.ErrorIs(t, err, ErrUnavailable)
}

type fakeRow struct {
	val string
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.val
	return nil
}

type fakeQuerier struct {
	sql  string
	rows map[string]fakeRow
}

func (q *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.sql = sql
	if r, ok := q.rows[args[0].(string)]; ok {
		return r
	}
	return fakeRow{err: pgx.ErrNoRows}
}

func TestPostgresStore(t *testing.T) {
	q := &fakeQuerier{rows: map[string]fakeRow{
		"a":    {val: "alpha"},
		"boom": {err: errors.New("conn reset")},
	}}
	s := NewPostgresStore(q, "kb_docs")

	v, err := s.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "alpha", v)
	assert.Equal(t, `SELECT content FROM "kb_docs" WHERE id = $1`, q.sql)

	_, err = s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(context.Background(), "boom")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestSupabaseStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("id") == "eq.doc-1" {
			_, _ = w.Write([]byte(`{"id":"doc-1","title":"Pricing","content":"Plans start at $10."}`))
			return
		}
		w.WriteHeader(http.StatusNotAcceptable)
		_, _ = w.Write([]byte(`{"code":"PGRST116","details":"The result contains 0 rows","hint":null,"message":"JSON object requested, multiple (or no) rows returned"}`))
	}))
	defer srv.Close()

	s, err := NewSupabaseStore(srv.URL, "service-key", "")
	require.NoError(t, err)
	v, err := s.Get(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Plans start at $10.", v)

	_, err = s.Get(context.Background(), "doc-2")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = NewSupabaseStore("", "k", "")
	assert.Error(t, err)
}

func TestPhrases(t *testing.T) {
	p := NewPhrases(nil)
	assert.Contains(t, DefaultWaitPhrases, p.Pick())
	one := NewPhrases([]string{"Hang on."})
	assert.Equal(t, "Hang on.", one.Pick())
}
