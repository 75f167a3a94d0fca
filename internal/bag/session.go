package bag

import (
	"context"
	"sync"

	storeerrors "github.com/arkilian/nanostore/internal/errors"
	"github.com/arkilian/nanostore/pkg/types"
)

// Backend is the storage surface a bag uses. The store implements it.
type Backend interface {
	// SaveBag writes put, deletes del and writes the bag document itself,
	// all in one transaction.
	SaveBag(ctx context.Context, b *Bag, put []types.Document, del []string) error

	// ObjectsWithKeys loads the persisted documents with the given keys.
	// Missing keys are absent from the result.
	ObjectsWithKeys(ctx context.Context, keys []string) (map[string]types.Document, error)
}

// Table maps store session ids to values. Documents hold a session id
// rather than a reference to their store.
type Table[T any] struct {
	mu      sync.RWMutex
	entries map[string]T
}

// NewTable creates an empty table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{entries: make(map[string]T)}
}

// Put binds id to v.
func (t *Table[T]) Put(id string, v T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[id] = v
}

// Get returns the value bound to id.
func (t *Table[T]) Get(id string) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.entries[id]
	return v, ok
}

// Delete unbinds id.
func (t *Table[T]) Delete(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// Len returns the number of bound ids.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

var sessions = NewTable[Backend]()

// Attach makes backend reachable by bags bound to sessionID.
func Attach(sessionID string, backend Backend) {
	sessions.Put(sessionID, backend)
}

// Detach removes the backend of sessionID. Bags bound to it return NotReady
// from storage operations afterwards.
func Detach(sessionID string) {
	sessions.Delete(sessionID)
}

func lookup(sessionID string) (Backend, error) {
	if sessionID == "" {
		return nil, storeerrors.NewNotReadyError(storeerrors.CodeNotAttached, "bag: not bound to a store")
	}
	backend, ok := sessions.Get(sessionID)
	if !ok {
		return nil, storeerrors.NewNotReadyError(storeerrors.CodeNotAttached, "bag: store session "+sessionID+" is not open")
	}
	return backend, nil
}
