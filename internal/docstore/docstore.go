// Package docstore is the document database abstraction: named collections of
// schemaless documents, equality-filtered ordered queries and realtime
// snapshot subscriptions.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrIndexRequired is returned when the backend refuses a query because a
	// composite index covering it has not been created.
	ErrIndexRequired = errors.New("the query requires an index")
)

// IsIndexRequired reports whether err signals a missing composite index.
// Backends that only surface the condition in their message text are matched
// on that text.
func IsIndexRequired(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrIndexRequired) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "requires an index")
}

type serverTimestamp struct{}

// ServerTimestamp is a field value placeholder replaced by the store clock at write time.
var ServerTimestamp any = serverTimestamp{}

// Direction is a sort direction.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// Filter matches documents whose Field equals Value.
type Filter struct {
	Field string
	Value any
}

// Order sorts results by Field.
type Order struct {
	Field     string
	Direction Direction
}

// Query selects documents from a collection. Documents missing a filtered
// field never match. Documents missing an ordered field sort lowest.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    []Order
	Limit      int
}

// Where returns a copy of q with an equality filter appended.
func (q Query) Where(field string, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Value: value})
	return q
}

// fields lists every field the query touches, filters first.
func (q Query) fields() []string {
	out := make([]string, 0, len(q.Filters)+len(q.OrderBy))
	seen := map[string]bool{}
	for _, f := range q.Filters {
		if !seen[f.Field] {
			seen[f.Field] = true
			out = append(out, f.Field)
		}
	}
	for _, o := range q.OrderBy {
		if !seen[o.Field] {
			seen[o.Field] = true
			out = append(out, o.Field)
		}
	}
	return out
}

func (q Query) String() string {
	var b strings.Builder
	b.WriteString(q.Collection)
	for _, f := range q.Filters {
		fmt.Fprintf(&b, " %s==%v", f.Field, f.Value)
	}
	for _, o := range q.OrderBy {
		dir := "asc"
		if o.Direction == Desc {
			dir = "desc"
		}
		fmt.Fprintf(&b, " order(%s %s)", o.Field, dir)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " limit(%d)", q.Limit)
	}
	return b.String()
}

// Index declares a composite index over a collection.
type Index struct {
	Collection string
	Fields     []Order
}

// Store is a document database.
type Store interface {
	// Create inserts data under a generated id.
	Create(ctx context.Context, collection string, data map[string]any) (string, error)
	// Set writes data under id, replacing the document or, with merge,
	// overwriting only the supplied top-level fields. Missing documents are created.
	Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error
	Read(ctx context.Context, collection, id string) (*Document, error)
	// Update overwrites the supplied top-level fields of an existing document.
	Update(ctx context.Context, collection, id string, partial map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, q Query) ([]Document, error)
	EnsureIndexes(ctx context.Context, indexes []Index) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// resolveTimestamps returns a copy of data with ServerTimestamp placeholders
// replaced by now.
func resolveTimestamps(data map[string]any, now time.Time) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if _, ok := v.(serverTimestamp); ok {
			out[k] = now
			continue
		}
		out[k] = v
	}
	return out
}
