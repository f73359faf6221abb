// Package memory implements storage.Store in-process, guarded by a
// single sync.RWMutex over nested maps. It is the store every unit test
// in this module runs against (the cmd/ demos use src/storage/postgres);
// grounded on the retrieval
// pack's in-memory engine pattern (map-of-maps storage behind a single
// mutex, no clock coupling).
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/mlandesman/sams-billing-core/src/storage"
)

// Store is an in-memory storage.Store.
type Store struct {
	mu   sync.RWMutex
	docs map[string]storage.Doc
}

// New returns an empty in-memory Store.
func New() *Store {
	return &Store{docs: make(map[string]storage.Doc)}
}

func cloneDoc(d storage.Doc) storage.Doc {
	out := make(storage.Doc, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// GetDoc implements storage.Store.
func (s *Store) GetDoc(_ context.Context, path string) (storage.Doc, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[path]
	if !ok {
		return nil, false, nil
	}
	return cloneDoc(d), true, nil
}

// SetDoc implements storage.Store.
func (s *Store) SetDoc(_ context.Context, path string, data storage.Doc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[path] = cloneDoc(data)
	return nil
}

// UpdateDoc implements storage.Store, merging partial fields into the
// existing document (creating it if absent).
func (s *Store) UpdateDoc(_ context.Context, path string, partial storage.Doc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.docs[path]
	if !ok {
		existing = storage.Doc{}
	} else {
		existing = cloneDoc(existing)
	}
	for k, v := range partial {
		existing[k] = v
	}
	s.docs[path] = existing
	return nil
}

// DeleteDoc implements storage.Store.
func (s *Store) DeleteDoc(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, path)
	return nil
}

// ListDocs implements storage.Store, returning every document whose
// path is under collectionPath and for which filter (if non-nil)
// returns true.
func (s *Store) ListDocs(_ context.Context, collectionPath string, filter func(string, storage.Doc) bool) (map[string]storage.Doc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := strings.TrimSuffix(collectionPath, "/") + "/"
	out := make(map[string]storage.Doc)
	var paths []string
	for path := range s.docs {
		if strings.HasPrefix(path, prefix) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	for _, path := range paths {
		d := s.docs[path]
		if filter == nil || filter(path, d) {
			out[path] = cloneDoc(d)
		}
	}
	return out, nil
}

// Batch implements storage.Store.
func (s *Store) Batch() storage.Batch {
	return &batch{store: s}
}

type batch struct {
	store *Store
	ops   []storage.Op
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

// Commit applies every accumulated op under a single mutex acquisition,
// so no reader ever observes a partially-applied batch (spec §5.3).
func (b *batch) Commit(_ context.Context) error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	for _, op := range b.ops {
		switch op.Kind {
		case storage.OpSet:
			b.store.docs[op.Path] = cloneDoc(op.Data)
		case storage.OpUpdate:
			existing, ok := b.store.docs[op.Path]
			if !ok {
				existing = storage.Doc{}
			} else {
				existing = cloneDoc(existing)
			}
			for k, v := range op.Partial {
				existing[k] = v
			}
			b.store.docs[op.Path] = existing
		case storage.OpDelete:
			delete(b.store.docs, op.Path)
		}
	}
	return nil
}
