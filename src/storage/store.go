// Package storage defines the abstract document-store interface the
// billing core depends on (spec §6.1). The core never talks to a
// specific database directly — every adapter and service is
// constructor-injected with a Store, so tests can run entirely against
// an in-memory implementation (src/storage/memory) while production
// wires src/storage/postgres.
package storage

import "context"

// Doc is a generic stored document: a flat key/value bag the caller
// marshals its domain struct into and out of. Using map[string]any here
// (rather than a typed payload) mirrors the document-database shape the
// persisted state layout in spec §6.3 describes (Firestore-style paths),
// while remaining backend-agnostic.
type Doc map[string]interface{}

// Store is the abstract storage interface the core consumes.
type Store interface {
	GetDoc(ctx context.Context, path string) (Doc, bool, error)
	SetDoc(ctx context.Context, path string, data Doc) error
	UpdateDoc(ctx context.Context, path string, partial Doc) error
	DeleteDoc(ctx context.Context, path string) error
	ListDocs(ctx context.Context, collectionPath string, filter func(path string, d Doc) bool) (map[string]Doc, error)
	Batch() Batch
}

// Op is one operation accumulated into a Batch before Commit.
type Op struct {
	Kind    OpKind
	Path    string
	Data    Doc
	Partial Doc
}

// OpKind enumerates the kinds of batched write.
type OpKind int

const (
	OpSet OpKind = iota
	OpUpdate
	OpDelete
)

// Batch accumulates a sequence of writes and commits them atomically
// (spec §5.3): either every accumulated op is applied, or none is.
type Batch interface {
	Set(path string, data Doc)
	Update(path string, partial Doc)
	Delete(path string)
	Commit(ctx context.Context) error
}
