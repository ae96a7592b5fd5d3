package store

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// serverTimestamp is the MemoryStore's server-timestamp sentinel.
type serverTimestamp struct{}

type listener struct {
	query  *memoryQuery
	onNext func([]DocumentSnapshot)
}

// delivery is a snapshot computed under the lock and handed to a
// listener after the lock is released.
type delivery struct {
	onNext func([]DocumentSnapshot)
	docs   []DocumentSnapshot
}

// MemoryStore is an in-memory implementation of Client. Documents are
// returned ordered by ID. Listeners are notified synchronously, after
// the mutation that changed their collection, and in mutation order.
//
// An Unsubscribe waits for a delivery in progress, so it must not be
// called from inside onNext.
type MemoryStore struct {
	// notifyMu serializes each mutation with its deliveries. Readers
	// never take it.
	notifyMu sync.Mutex

	mu           sync.RWMutex
	collections  map[string]map[string]map[string]any
	listeners    map[string]map[int]*listener
	nextListener int
	now          func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]map[string]any),
		listeners:   make(map[string]map[int]*listener),
		now:         time.Now,
	}
}

func (s *MemoryStore) Collection(name string) Collection {
	return &memoryCollection{&memoryQuery{store: s, collection: name}}
}

func (s *MemoryStore) ServerTimestamp() any { return serverTimestamp{} }

// Set creates or replaces the document id in collection.
func (s *MemoryStore) Set(_ context.Context, collection, id string, data map[string]any) error {
	if id == "" {
		return fmt.Errorf("set in %q: empty document id", collection)
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.docsLocked(collection)[id] = s.resolve(data)
	pending := s.pendingLocked(collection)
	s.mu.Unlock()

	deliver(pending)
	return nil
}

func (s *MemoryStore) docsLocked(collection string) map[string]map[string]any {
	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]map[string]any)
		s.collections[collection] = docs
	}
	return docs
}

// resolve copies data, replacing server-timestamp sentinels with the
// write time.
func (s *MemoryStore) resolve(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if _, ok := v.(serverTimestamp); ok {
			v = s.now().UTC()
		}
		out[k] = v
	}
	return out
}

// pendingLocked evaluates every listener on collection against the
// current state.
func (s *MemoryStore) pendingLocked(collection string) []delivery {
	ls := s.listeners[collection]
	if len(ls) == 0 {
		return nil
	}
	ids := slices.Sorted(maps.Keys(ls))
	pending := make([]delivery, 0, len(ids))
	for _, id := range ids {
		l := ls[id]
		pending = append(pending, delivery{onNext: l.onNext, docs: l.query.evalLocked()})
	}
	return pending
}

func deliver(pending []delivery) {
	for _, d := range pending {
		d.onNext(d.docs)
	}
}

type condition struct {
	field string
	op    string
	value any
}

var operators = map[string]bool{
	"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
	"array-contains": true, "in": true,
}

type memoryQuery struct {
	store      *MemoryStore
	collection string
	conds      []condition
	err        error
}

func (q *memoryQuery) Where(field, op string, value any) Query {
	nq := &memoryQuery{
		store:      q.store,
		collection: q.collection,
		conds:      append(slices.Clone(q.conds), condition{field: field, op: op, value: value}),
		err:        q.err,
	}
	if nq.err == nil && !operators[op] {
		nq.err = fmt.Errorf("where %s %s: unsupported operator %q", q.collection, field, op)
	}
	return nq
}

func (q *memoryQuery) Get(_ context.Context) ([]DocumentSnapshot, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.store.mu.RLock()
	defer q.store.mu.RUnlock()
	return q.evalLocked(), nil
}

func (q *memoryQuery) OnSnapshot(onNext func([]DocumentSnapshot), onError func(error)) Unsubscribe {
	if q.err != nil {
		if onError != nil {
			onError(q.err)
		}
		return func() {}
	}

	s := q.store
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	if s.listeners[q.collection] == nil {
		s.listeners[q.collection] = make(map[int]*listener)
	}
	s.listeners[q.collection][id] = &listener{query: q, onNext: onNext}
	initial := q.evalLocked()
	s.mu.Unlock()

	onNext(initial)

	return func() {
		s.notifyMu.Lock()
		defer s.notifyMu.Unlock()

		s.mu.Lock()
		delete(s.listeners[q.collection], id)
		s.mu.Unlock()
	}
}

func (q *memoryQuery) evalLocked() []DocumentSnapshot {
	docs := q.store.collections[q.collection]
	result := make([]DocumentSnapshot, 0, len(docs))
	for _, id := range slices.Sorted(maps.Keys(docs)) {
		data := docs[id]
		if !q.matches(data) {
			continue
		}
		result = append(result, &memorySnapshot{id: id, exists: true, data: maps.Clone(data)})
	}
	return result
}

func (q *memoryQuery) matches(data map[string]any) bool {
	for _, c := range q.conds {
		if !c.matches(data) {
			return false
		}
	}
	return true
}

// matches follows Firestore semantics: a document without the field
// never matches, not even for "!=".
func (c condition) matches(data map[string]any) bool {
	v, ok := data[c.field]
	if !ok {
		return false
	}
	switch c.op {
	case "==":
		return equal(v, c.value)
	case "!=":
		return !equal(v, c.value)
	case "<", "<=", ">", ">=":
		n, ok := compare(v, c.value)
		if !ok {
			return false
		}
		switch c.op {
		case "<":
			return n < 0
		case "<=":
			return n <= 0
		case ">":
			return n > 0
		default:
			return n >= 0
		}
	case "array-contains":
		arr, ok := v.([]any)
		return ok && slices.ContainsFunc(arr, func(x any) bool { return equal(x, c.value) })
	case "in":
		list, ok := c.value.([]any)
		return ok && slices.ContainsFunc(list, func(x any) bool { return equal(v, x) })
	}
	return false
}

func equal(a, b any) bool {
	if n, ok := compare(a, b); ok {
		return n == 0
	}
	return reflect.DeepEqual(a, b)
}

// compare orders numbers across kinds, strings and times.
func compare(a, b any) (int, bool) {
	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			return cmp.Compare(x, y), true
		}
		return 0, false
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), true
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

type memoryCollection struct {
	*memoryQuery
}

func (c *memoryCollection) Doc(id string) DocumentRef {
	return &memoryDoc{store: c.store, collection: c.collection, id: id}
}

func (c *memoryCollection) Add(_ context.Context, data map[string]any) (DocumentRef, error) {
	id := uuid.NewString()
	s := c.store
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.docsLocked(c.collection)[id] = s.resolve(data)
	pending := s.pendingLocked(c.collection)
	s.mu.Unlock()

	deliver(pending)
	return c.Doc(id), nil
}

type memoryDoc struct {
	store      *MemoryStore
	collection string
	id         string
}

func (d *memoryDoc) ID() string { return d.id }

func (d *memoryDoc) Get(_ context.Context) (DocumentSnapshot, error) {
	d.store.mu.RLock()
	defer d.store.mu.RUnlock()

	data, ok := d.store.collections[d.collection][d.id]
	if !ok {
		return &memorySnapshot{id: d.id}, nil
	}
	return &memorySnapshot{id: d.id, exists: true, data: maps.Clone(data)}, nil
}

func (d *memoryDoc) Update(_ context.Context, data map[string]any) error {
	s := d.store
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	cur, ok := s.collections[d.collection][d.id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("update %s/%s: %w", d.collection, d.id, ErrNotFound)
	}
	merged := maps.Clone(cur)
	maps.Copy(merged, s.resolve(data))
	s.collections[d.collection][d.id] = merged
	pending := s.pendingLocked(d.collection)
	s.mu.Unlock()

	deliver(pending)
	return nil
}

func (d *memoryDoc) Delete(_ context.Context) error {
	s := d.store
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if _, ok := s.collections[d.collection][d.id]; !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.collections[d.collection], d.id)
	pending := s.pendingLocked(d.collection)
	s.mu.Unlock()

	deliver(pending)
	return nil
}

type memorySnapshot struct {
	id     string
	exists bool
	data   map[string]any
}

func (s *memorySnapshot) Exists() bool         { return s.exists }
func (s *memorySnapshot) ID() string           { return s.id }
func (s *memorySnapshot) Data() map[string]any { return s.data }
