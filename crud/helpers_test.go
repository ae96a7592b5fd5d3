package crud

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rawewhat/quera/store"
)

func ctx() context.Context { return context.Background() }

// stubClient wraps a MemoryStore, counting calls and injecting faults.
type stubClient struct {
	*store.MemoryStore

	ghost  bool  // DocumentRef.Get always reports a missing document
	sticky bool  // DocumentRef.Delete leaves the document in place
	err    error // every store round trip fails with err

	mu           sync.Mutex
	collections  int
	subscribes   int
	unsubscribes int
}

func newStub() *stubClient {
	return &stubClient{MemoryStore: store.NewMemoryStore()}
}

func (c *stubClient) Collection(name string) store.Collection {
	c.mu.Lock()
	c.collections++
	c.mu.Unlock()
	col := c.MemoryStore.Collection(name)
	return &stubCollection{stubQuery: &stubQuery{Query: col, c: c}, col: col}
}

func (c *stubClient) counts() (collections, subscribes, unsubscribes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collections, c.subscribes, c.unsubscribes
}

type stubQuery struct {
	store.Query
	c *stubClient
}

func (q *stubQuery) Where(field, op string, value any) store.Query {
	return &stubQuery{Query: q.Query.Where(field, op, value), c: q.c}
}

func (q *stubQuery) Get(ctx context.Context) ([]store.DocumentSnapshot, error) {
	if q.c.err != nil {
		return nil, q.c.err
	}
	return q.Query.Get(ctx)
}

func (q *stubQuery) OnSnapshot(onNext func([]store.DocumentSnapshot), onError func(error)) store.Unsubscribe {
	q.c.mu.Lock()
	q.c.subscribes++
	q.c.mu.Unlock()
	unsub := q.Query.OnSnapshot(onNext, onError)
	return func() {
		q.c.mu.Lock()
		q.c.unsubscribes++
		q.c.mu.Unlock()
		unsub()
	}
}

type stubCollection struct {
	*stubQuery
	col store.Collection
}

func (s *stubCollection) Doc(id string) store.DocumentRef {
	return &stubDoc{DocumentRef: s.col.Doc(id), c: s.c}
}

func (s *stubCollection) Add(ctx context.Context, data map[string]any) (store.DocumentRef, error) {
	if s.c.err != nil {
		return nil, s.c.err
	}
	ref, err := s.col.Add(ctx, data)
	if err != nil {
		return nil, err
	}
	return &stubDoc{DocumentRef: ref, c: s.c}, nil
}

type stubDoc struct {
	store.DocumentRef
	c *stubClient
}

type missing struct{ id string }

func (m missing) Exists() bool         { return false }
func (m missing) ID() string           { return m.id }
func (m missing) Data() map[string]any { return nil }

func (d *stubDoc) Get(ctx context.Context) (store.DocumentSnapshot, error) {
	if d.c.err != nil {
		return nil, d.c.err
	}
	if d.c.ghost {
		return missing{id: d.ID()}, nil
	}
	return d.DocumentRef.Get(ctx)
}

func (d *stubDoc) Update(ctx context.Context, data map[string]any) error {
	if d.c.err != nil {
		return d.c.err
	}
	return d.DocumentRef.Update(ctx, data)
}

func (d *stubDoc) Delete(ctx context.Context) error {
	if d.c.err != nil {
		return d.c.err
	}
	if d.c.sticky {
		return nil
	}
	return d.DocumentRef.Delete(ctx)
}

// logSpy is a slog.Handler that captures records for assertions.
type logSpy struct {
	mu      sync.Mutex
	records []slog.Record
}

func (s *logSpy) Enabled(context.Context, slog.Level) bool { return true }

func (s *logSpy) Handle(_ context.Context, r slog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

func (s *logSpy) WithAttrs([]slog.Attr) slog.Handler { return s }
func (s *logSpy) WithGroup(string) slog.Handler      { return s }

// messages returns the captured messages logged at level.
func (s *logSpy) messages(level slog.Level) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, r := range s.records {
		if r.Level == level {
			out = append(out, r.Message)
		}
	}
	return out
}

// attr returns the value of key on the first record with message msg.
func (s *logSpy) attr(msg, key string) (slog.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.Message != msg {
			continue
		}
		var (
			val   slog.Value
			found bool
		)
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == key {
				val, found = a.Value, true
				return false
			}
			return true
		})
		return val, found
	}
	return slog.Value{}, false
}

func newAdapter(t *testing.T, client store.Client, target string, opts ...Option) (*Adapter, *logSpy) {
	t.Helper()
	spy := &logSpy{}
	opts = append([]Option{WithLogger(slog.New(spy))}, opts...)
	a, err := New(client, target, opts...)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, spy
}
