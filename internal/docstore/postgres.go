package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// timeKey wraps timestamps in JSONB so they survive the round trip and order
// correctly: the fixed-width UTC text compares in instant order.
const (
	timeKey    = "$ts"
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	data JSONB NOT NULL DEFAULT '{}'::jsonb,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_data_gin ON documents USING GIN (data jsonb_path_ops);
`

// PostgresStore keeps every collection in one JSONB table. Equality filters
// use containment, ordering uses the JSONB value ordering.
type PostgresStore struct {
	db     *sql.DB
	now    func() time.Time
	logger *zap.Logger
}

var _ Store = (*PostgresStore)(nil)

// ConnectPostgres opens the database, verifies the connection and creates
// the documents table.
func ConnectPostgres(ctx context.Context, databaseURL string, log *zap.Logger) (*PostgresStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create documents table: %w", err)
	}
	log.Info("connected_to_postgres")
	return &PostgresStore{db: db, now: time.Now, logger: log}, nil
}

func (s *PostgresStore) encode(data map[string]any) ([]byte, error) {
	out, err := json.Marshal(encodeJSONValue(resolveTimestamps(data, s.now())))
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	payload, err := s.encode(data)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)`,
		collection, id, string(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create document in %s: %w", collection, err)
	}
	return id, nil
}

func (s *PostgresStore) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	payload, err := s.encode(data)
	if err != nil {
		return err
	}
	stmt := `INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data`
	if merge {
		stmt = `INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO UPDATE SET data = documents.data || EXCLUDED.data`
	}
	if _, err := s.db.ExecContext(ctx, stmt, collection, id, string(payload)); err != nil {
		return fmt.Errorf("failed to set document %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *PostgresStore) Read(ctx context.Context, collection, id string) (*Document, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s/%s: %w", collection, id, err)
	}
	data, err := decodeJSONDocument(raw)
	if err != nil {
		return nil, err
	}
	return &Document{ID: id, Data: data}, nil
}

func (s *PostgresStore) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	payload, err := s.encode(partial)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET data = data || $3::jsonb WHERE collection = $1 AND id = $2`,
		collection, id, string(payload))
	if err != nil {
		return fmt.Errorf("failed to update document %s/%s: %w", collection, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id); err != nil {
		return fmt.Errorf("failed to delete document %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, q Query) ([]Document, error) {
	stmt, args, err := buildPostgresQuery(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.Collection, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Document
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		data, err := decodeJSONDocument(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, Document{ID: id, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}
	return out, nil
}

// buildPostgresQuery renders q as SQL. Field names are bound as parameters,
// never interpolated.
func buildPostgresQuery(q Query) (string, []any, error) {
	args := []any{q.Collection}
	var b strings.Builder
	b.WriteString(`SELECT id, data FROM documents WHERE collection = $1`)

	if len(q.Filters) > 0 {
		contains := map[string]any{}
		for _, f := range q.Filters {
			contains[f.Field] = f.Value
		}
		payload, err := json.Marshal(encodeJSONValue(contains))
		if err != nil {
			return "", nil, fmt.Errorf("failed to encode filters: %w", err)
		}
		args = append(args, string(payload))
		fmt.Fprintf(&b, ` AND data @> $%d::jsonb`, len(args))
	}

	if len(q.OrderBy) > 0 {
		b.WriteString(` ORDER BY `)
		for i, o := range q.OrderBy {
			if i > 0 {
				b.WriteString(`, `)
			}
			args = append(args, o.Field)
			if o.Direction == Desc {
				fmt.Fprintf(&b, `data -> $%d::text DESC NULLS LAST`, len(args))
			} else {
				fmt.Fprintf(&b, `data -> $%d::text ASC NULLS FIRST`, len(args))
			}
		}
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, ` LIMIT $%d`, len(args))
	}
	return b.String(), args, nil
}

// EnsureIndexes creates one expression index per declared composite index.
func (s *PostgresStore) EnsureIndexes(ctx context.Context, indexes []Index) error {
	for _, idx := range indexes {
		names := make([]string, 0, len(idx.Fields))
		exprs := make([]string, 0, len(idx.Fields))
		for _, f := range idx.Fields {
			if !safeIdentifier(f.Field) {
				return fmt.Errorf("invalid index field %q", f.Field)
			}
			names = append(names, f.Field)
			exprs = append(exprs, fmt.Sprintf("(data -> '%s')", f.Field))
		}
		if !safeIdentifier(idx.Collection) {
			return fmt.Errorf("invalid collection name %q", idx.Collection)
		}
		name := "documents_" + idx.Collection + "_" + strings.Join(names, "_")
		stmt := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON documents (%s) WHERE collection = '%s'`,
			name, strings.Join(exprs, ", "), idx.Collection)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index %s: %w", name, err)
		}
	}
	return nil
}

func safeIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close(ctx context.Context) error {
	return s.db.Close()
}

func encodeJSONValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return map[string]any{timeKey: t.UTC().Format(timeLayout)}
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = encodeJSONValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = encodeJSONValue(inner)
		}
		return out
	}
	return v
}

func decodeJSONDocument(raw []byte) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	out, _ := decodeJSONValue(data).(map[string]any)
	return out, nil
}

func decodeJSONValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 1 {
			if s, ok := t[timeKey].(string); ok {
				if ts, err := time.Parse(timeLayout, s); err == nil {
					return ts
				}
			}
		}
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = decodeJSONValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = decodeJSONValue(inner)
		}
		return out
	}
	return v
}
