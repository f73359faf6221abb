// Package postgres implements storage.Store on top of database/sql and
// github.com/lib/pq, storing each logical document as a single JSONB
// row keyed by its path. Batch() opens one *sql.Tx per spec §5.3's
// atomic-commit requirement: every accumulated write commits together,
// or the transaction rolls back and none of them take effect — mirrored
// directly on the teacher's LedgerReconciliationService.RecordTransaction
// (db.BeginTx / defer tx.Rollback() / tx.Commit()).
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/mlandesman/sams-billing-core/src/storage"
)

// Store is a Postgres-backed storage.Store.
type Store struct {
	db *sql.DB
}

// Open prepares a connection pool for the given DSN. It does not contact
// the database or check the documents table; run Migrate to create the
// table.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an already-open *sql.DB.
func New(db *sql.DB) *Store { return &Store{db: db} }

// Schema is the DDL for the generic document table this store uses.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	path TEXT PRIMARY KEY,
	data JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Migrate creates the documents table if it does not already exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

// Close closes the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

func marshalDoc(d storage.Doc) ([]byte, error) { return json.Marshal(d) }

func unmarshalDoc(b []byte) (storage.Doc, error) {
	var d storage.Doc
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, err
	}
	return normalizeDoc(d), nil
}

// floatFields holds the document keys whose decoder in src/models and
// src/services expects a float64 (measured quantities), not a centavo
// count. Every other numeric field in the persisted-state layout (spec
// §6.3) is an integer count of centavos or an index, so it is restored
// to int64 below.
var floatFields = map[string]bool{
	"consumptionM3": true,
}

// normalizeDoc restores the int64 fields every decoder in src/services
// expects. encoding/json always decodes JSON numbers as float64;
// whole-valued floats under an int-typed key are converted back to
// int64 so a round-trip through Postgres's JSONB column produces the
// same Go types a write against the in-memory store would.
func normalizeDoc(d storage.Doc) storage.Doc {
	out := make(storage.Doc, len(d))
	for k, v := range d {
		out[k] = normalizeValue(k, v)
	}
	return out
}

func normalizeValue(key string, v interface{}) interface{} {
	switch val := v.(type) {
	case float64:
		if !floatFields[key] && val == float64(int64(val)) {
			return int64(val)
		}
		return val
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, v := range val {
			out[k] = normalizeValue(k, v)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, v := range val {
			out[i] = normalizeValue(key, v)
		}
		return out
	default:
		return v
	}
}

// GetDoc implements storage.Store.
func (s *Store) GetDoc(ctx context.Context, path string) (storage.Doc, bool, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM documents WHERE path = $1`, path).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	d, err := unmarshalDoc(raw)
	if err != nil {
		return nil, false, err
	}
	return d, true, nil
}

// SetDoc implements storage.Store.
func (s *Store) SetDoc(ctx context.Context, path string, data storage.Doc) error {
	raw, err := marshalDoc(data)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (path, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
	`, path, raw)
	return err
}

// UpdateDoc implements storage.Store, merging partial fields server-side
// via jsonb concatenation.
func (s *Store) UpdateDoc(ctx context.Context, path string, partial storage.Doc) error {
	raw, err := marshalDoc(partial)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (path, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (path) DO UPDATE
		SET data = documents.data || EXCLUDED.data, updated_at = now()
	`, path, raw)
	return err
}

// DeleteDoc implements storage.Store.
func (s *Store) DeleteDoc(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE path = $1`, path)
	return err
}

// ListDocs implements storage.Store.
func (s *Store) ListDocs(ctx context.Context, collectionPath string, filter func(string, storage.Doc) bool) (map[string]storage.Doc, error) {
	prefix := strings.TrimSuffix(collectionPath, "/") + "/%"
	rows, err := s.db.QueryContext(ctx, `SELECT path, data FROM documents WHERE path LIKE $1 ORDER BY path`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]storage.Doc)
	for rows.Next() {
		var path string
		var raw []byte
		if err := rows.Scan(&path, &raw); err != nil {
			return nil, err
		}
		d, err := unmarshalDoc(raw)
		if err != nil {
			return nil, err
		}
		if filter == nil || filter(path, d) {
			out[path] = d
		}
	}
	return out, rows.Err()
}

// Batch implements storage.Store by opening one *sql.Tx for the
// accumulated operations.
func (s *Store) Batch() storage.Batch {
	return &batch{db: s.db}
}

type batch struct {
	db  *sql.DB
	ops []storage.Op
}

func (b *batch) Set(path string, data storage.Doc) {
	b.ops = append(b.ops, storage.Op{Kind: storage.OpSet, Path: path, Data: data})
}

func (b *batch) Update(path string, partial storage.Doc) {
	b.ops = append(b.ops, storage.Op{Kind: storage.OpUpdate, Path: path, Partial: partial})
}

func (b *batch) Delete(path string) {
	b.ops = append(b.ops, storage.Op{Kind: storage.OpDelete, Path: path})
}

// Commit applies every accumulated op inside a single database
// transaction: any failure rolls back the whole batch, satisfying spec
// §5.3's all-or-nothing contract.
func (b *batch) Commit(ctx context.Context) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin batch: %w", err)
	}
	defer tx.Rollback()

	for _, op := range b.ops {
		switch op.Kind {
		case storage.OpSet:
			raw, err := marshalDoc(op.Data)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO documents (path, data, updated_at)
				VALUES ($1, $2, now())
				ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
			`, op.Path, raw); err != nil {
				return fmt.Errorf("postgres: batch set %s: %w", op.Path, err)
			}
		case storage.OpUpdate:
			raw, err := marshalDoc(op.Partial)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO documents (path, data, updated_at)
				VALUES ($1, $2, now())
				ON CONFLICT (path) DO UPDATE
				SET data = documents.data || EXCLUDED.data, updated_at = now()
			`, op.Path, raw); err != nil {
				return fmt.Errorf("postgres: batch update %s: %w", op.Path, err)
			}
		case storage.OpDelete:
			if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path = $1`, op.Path); err != nil {
				return fmt.Errorf("postgres: batch delete %s: %w", op.Path, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit batch: %w", err)
	}
	return nil
}
