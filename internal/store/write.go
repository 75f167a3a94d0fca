package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arkilian/nanostore/internal/bag"
	storeerrors "github.com/arkilian/nanostore/internal/errors"
	"github.com/arkilian/nanostore/internal/flatten"
	"github.com/arkilian/nanostore/pkg/types"
)

const (
	upsertKeySQL = `INSERT INTO NSFKeys (NSFKey, NSFKeyedArchive, NSFObjectClass, NSFCalendarDate) VALUES (?, ?, ?, ?)
ON CONFLICT(NSFKey) DO UPDATE SET NSFKeyedArchive = excluded.NSFKeyedArchive, NSFObjectClass = excluded.NSFObjectClass`
	insertValueSQL  = `INSERT INTO NSFValues (NSFKey, NSFAttribute, NSFValue, NSFDatatype) VALUES (?, ?, ?, ?)`
	deleteValuesSQL = `DELETE FROM NSFValues WHERE NSFKey = ?`
	deleteKeySQL    = `DELETE FROM NSFKeys WHERE NSFKey = ?`
)

// prepare checks doc before it is buffered, assigning a key when doc has
// none and accepts one. Flattening here surfaces unsupported values at the
// call that introduced them.
func prepare(doc types.Document) error {
	if doc == nil {
		return storeerrors.NewConfigurationError(storeerrors.CodeNonConforming, "store: cannot add a nil document")
	}
	if doc.Key() == "" {
		assigner, ok := doc.(types.KeyAssigner)
		if !ok {
			return storeerrors.NewProtocolViolation(storeerrors.CodeMissingKey,
				fmt.Sprintf("store: %s document has no key and cannot be assigned one", types.TypeTagOf(doc)))
		}
		assigner.AssignKey(types.NewKey())
	}
	_, _, err := flatten.Flatten(doc)
	return err
}

// AddObject adds or replaces doc. It is written once the save interval
// fills up, or by SaveStore. A bag is saved at once together with its
// unsaved and removed members.
func (s *Store) AddObject(ctx context.Context, doc types.Document) error {
	return s.AddObjects(ctx, doc)
}

// AddObjects adds or replaces docs. Every document is checked before any is
// buffered, so a non-conforming document leaves the store untouched. Bags
// among docs are saved before the other documents are buffered; each bag
// save is atomic on its own.
func (s *Store) AddObjects(ctx context.Context, docs ...types.Document) (err error) {
	defer s.observe("add", time.Now(), &err)
	if err := s.ready(); err != nil {
		return err
	}
	for _, doc := range docs {
		if err := prepare(doc); err != nil {
			return err
		}
	}

	for _, doc := range docs {
		b, ok := doc.(*bag.Bag)
		if !ok {
			continue
		}
		b.BindSession(s.session)
		if err := b.Save(ctx); err != nil {
			return err
		}
		s.dropPending([]string{b.Key()})
	}

	buffered := false
	for _, doc := range docs {
		if _, ok := doc.(*bag.Bag); ok {
			continue
		}
		key := doc.Key()
		if _, ok := s.pending[key]; !ok {
			s.pendingOrder = append(s.pendingOrder, key)
		}
		s.pending[key] = doc
		if binder, ok := doc.(types.SessionBinder); ok {
			binder.BindSession(s.session)
		}
		buffered = true
	}
	if !buffered {
		return nil
	}
	s.metrics.SetPending(len(s.pending))

	if len(s.pending) >= s.saveInterval {
		return s.flush(ctx)
	}
	return nil
}

// SaveStore writes every pending document.
func (s *Store) SaveStore(ctx context.Context) (err error) {
	defer s.observe("save", time.Now(), &err)
	if err := s.ready(); err != nil {
		return err
	}
	return s.flush(ctx)
}

// HasUnsavedChanges reports whether documents are waiting to be written.
func (s *Store) HasUnsavedChanges() bool { return len(s.pending) > 0 }

// DiscardUnsavedChanges drops every pending document.
func (s *Store) DiscardUnsavedChanges() {
	s.pending = make(map[string]types.Document)
	s.pendingOrder = nil
	s.metrics.SetPending(0)
}

// flush writes the pending documents in one transaction. On failure they
// stay pending.
func (s *Store) flush(ctx context.Context) error {
	if err := s.writePending(ctx); err != nil {
		return err
	}
	s.DiscardUnsavedChanges()
	return nil
}

// writePending writes the pending documents, joining an open transaction,
// and leaves them pending.
func (s *Store) writePending(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	docs := make([]types.Document, 0, len(s.pendingOrder))
	for _, key := range s.pendingOrder {
		docs = append(docs, s.pending[key])
	}
	return s.engine.WithTransaction(ctx, func() error {
		return s.writeDocuments(ctx, docs)
	})
}

// writeDocuments upserts each Keys row and replaces its Values rows. The
// caller provides the transaction.
func (s *Store) writeDocuments(ctx context.Context, docs []types.Document) error {
	triples := 0
	for _, doc := range docs {
		row, values, err := flatten.Flatten(doc)
		if err != nil {
			return err
		}
		if _, err := s.engine.Exec(ctx, upsertKeySQL,
			row.Key, row.Snapshot, row.TypeTag, types.FormatDate(row.CreatedAt)); err != nil {
			return err
		}
		if _, err := s.engine.Exec(ctx, deleteValuesSQL, row.Key); err != nil {
			return err
		}
		for _, v := range values {
			if _, err := s.engine.Exec(ctx, insertValueSQL, v.Key, v.Attribute, v.Value, v.Datatype.String()); err != nil {
				return err
			}
		}
		triples += len(values)
	}
	s.metrics.DocumentsWritten(len(docs), triples)
	s.logger.Debug("documents written", zap.Int("documents", len(docs)), zap.Int("triples", triples))
	return nil
}

// deleteKeys removes the Keys and Values rows of keys. The caller provides
// the transaction.
func (s *Store) deleteKeys(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if _, err := s.engine.Exec(ctx, deleteValuesSQL, key); err != nil {
			return err
		}
		if _, err := s.engine.Exec(ctx, deleteKeySQL, key); err != nil {
			return err
		}
	}
	s.metrics.DocumentsRemoved(len(keys))
	return nil
}

func (s *Store) dropPending(keys []string) {
	removed := false
	for _, key := range keys {
		if _, ok := s.pending[key]; ok {
			delete(s.pending, key)
			removed = true
		}
	}
	if !removed {
		return
	}
	order := s.pendingOrder[:0]
	for _, key := range s.pendingOrder {
		if _, ok := s.pending[key]; ok {
			order = append(order, key)
		}
	}
	s.pendingOrder = order
	s.metrics.SetPending(len(s.pending))
}

// RemoveObject removes doc.
func (s *Store) RemoveObject(ctx context.Context, doc types.Document) error {
	return s.RemoveObjects(ctx, doc)
}

// RemoveObjects removes docs.
func (s *Store) RemoveObjects(ctx context.Context, docs ...types.Document) error {
	keys := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc == nil {
			return storeerrors.NewConfigurationError(storeerrors.CodeNonConforming, "store: cannot remove a nil document")
		}
		if doc.Key() == "" {
			return storeerrors.NewProtocolViolation(storeerrors.CodeMissingKey,
				fmt.Sprintf("store: %s document has no key", types.TypeTagOf(doc)))
		}
		keys = append(keys, doc.Key())
	}
	return s.RemoveObjectsWithKeys(ctx, keys...)
}

// RemoveObjectsWithKeys deletes the Keys row and every Values row of each
// key in one transaction. Pending writes of those keys are dropped. Unknown
// keys are ignored.
func (s *Store) RemoveObjectsWithKeys(ctx context.Context, keys ...string) (err error) {
	defer s.observe("remove", time.Now(), &err)
	if err := s.ready(); err != nil {
		return err
	}
	for _, key := range keys {
		if key == "" {
			return storeerrors.NewProtocolViolation(storeerrors.CodeMissingKey, "store: cannot remove an empty key")
		}
	}
	if err := s.engine.WithTransaction(ctx, func() error {
		return s.deleteKeys(ctx, keys)
	}); err != nil {
		return err
	}
	s.dropPending(keys)
	return nil
}

// RemoveAllObjects deletes every document, bags included, and drops
// pending writes.
func (s *Store) RemoveAllObjects(ctx context.Context) (err error) {
	defer s.observe("remove_all", time.Now(), &err)
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.engine.WithTransaction(ctx, func() error {
		if _, err := s.engine.Exec(ctx, `DELETE FROM NSFValues`); err != nil {
			return err
		}
		_, err := s.engine.Exec(ctx, `DELETE FROM NSFKeys`)
		return err
	}); err != nil {
		return err
	}
	s.DiscardUnsavedChanges()
	return nil
}

// SaveBag writes put, deletes del and writes b itself in one transaction.
func (s *Store) SaveBag(ctx context.Context, b *bag.Bag, put []types.Document, del []string) (err error) {
	defer s.observe("save_bag", time.Now(), &err)
	if err := s.ready(); err != nil {
		return err
	}
	for _, doc := range put {
		if err := prepare(doc); err != nil {
			return err
		}
	}
	docs := append(append([]types.Document{}, put...), b)
	if err := s.engine.WithTransaction(ctx, func() error {
		if err := s.writeDocuments(ctx, docs); err != nil {
			return err
		}
		return s.deleteKeys(ctx, del)
	}); err != nil {
		return err
	}
	s.dropPending(del)
	s.logger.Debug("bag saved",
		zap.String("bag", b.Key()),
		zap.Int("written", len(put)),
		zap.Int("removed", len(del)))
	return nil
}
