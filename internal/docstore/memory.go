package docstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryDoc struct {
	seq  uint64
	data map[string]any
}

// MemoryStore is an in-process Store. With index enforcement enabled it
// rejects queries touching more than one field unless a matching composite
// index was declared, mirroring managed document databases.
type MemoryStore struct {
	mu             sync.RWMutex
	collections    map[string]map[string]*memoryDoc
	seq            uint64
	now            func() time.Time
	enforceIndexes bool
	indexes        map[string][]Index
}

var _ Store = (*MemoryStore)(nil)

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock sets the clock used for server timestamps.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) { m.now = now }
}

// WithIndexEnforcement makes multi-field queries fail with ErrIndexRequired
// until EnsureIndexes declares a covering index.
func WithIndexEnforcement() MemoryOption {
	return func(m *MemoryStore) { m.enforceIndexes = true }
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		collections: map[string]map[string]*memoryDoc{},
		now:         time.Now,
		indexes:     map[string][]Index{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStore) collection(name string) map[string]*memoryDoc {
	c, ok := m.collections[name]
	if !ok {
		c = map[string]*memoryDoc{}
		m.collections[name] = c
	}
	return c
}

func (m *MemoryStore) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.collection(collection)[id] = &memoryDoc{seq: m.seq, data: copyMap(resolveTimestamps(data, m.now()))}
	return id, nil
}

func (m *MemoryStore) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("document id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	resolved := copyMap(resolveTimestamps(data, m.now()))
	c := m.collection(collection)
	if existing, ok := c[id]; ok {
		if merge {
			for k, v := range resolved {
				existing.data[k] = v
			}
		} else {
			existing.data = resolved
		}
		return nil
	}
	m.seq++
	c[id] = &memoryDoc{seq: m.seq, data: resolved}
	return nil
}

func (m *MemoryStore) Read(ctx context.Context, collection, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return &Document{ID: id, Data: copyMap(d.data)}, nil
}

func (m *MemoryStore) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.collections[collection][id]
	if !ok {
		return ErrNotFound
	}
	for k, v := range copyMap(resolveTimestamps(partial, m.now())) {
		d.data[k] = v
	}
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections[collection], id)
	return nil
}

func (m *MemoryStore) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.enforceIndexes && !m.covered(q) {
		return nil, fmt.Errorf("%w: %s", ErrIndexRequired, q)
	}

	type hit struct {
		id  string
		doc *memoryDoc
	}
	var hits []hit
	for id, d := range m.collections[q.Collection] {
		if matches(d.data, q.Filters) {
			hits = append(hits, hit{id: id, doc: d})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		for _, o := range q.OrderBy {
			c := compareValues(hits[i].doc.data[o.Field], hits[j].doc.data[o.Field])
			if c == 0 {
				continue
			}
			if o.Direction == Desc {
				return c > 0
			}
			return c < 0
		}
		return hits[i].doc.seq < hits[j].doc.seq
	})
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}

	out := make([]Document, 0, len(hits))
	for _, h := range hits {
		out = append(out, Document{ID: h.id, Data: copyMap(h.doc.data)})
	}
	return out, nil
}

func matches(data map[string]any, filters []Filter) bool {
	for _, f := range filters {
		v, ok := data[f.Field]
		if !ok || !valuesEqual(v, f.Value) {
			return false
		}
	}
	return true
}

// covered reports whether q can run: single-field queries always can, others
// need a declared index over exactly the queried fields.
func (m *MemoryStore) covered(q Query) bool {
	fields := q.fields()
	if len(fields) <= 1 {
		return true
	}
	want := strings.Join(sortedCopy(fields), ",")
	for _, idx := range m.indexes[q.Collection] {
		names := make([]string, 0, len(idx.Fields))
		for _, f := range idx.Fields {
			names = append(names, f.Field)
		}
		if strings.Join(sortedCopy(names), ",") == want {
			return true
		}
	}
	return false
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func (m *MemoryStore) EnsureIndexes(ctx context.Context, indexes []Index) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, idx := range indexes {
		m.indexes[idx.Collection] = append(m.indexes[idx.Collection], idx)
	}
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (m *MemoryStore) Close(ctx context.Context) error { return nil }
