package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	storeerrors "github.com/arkilian/nanostore/internal/errors"
	"github.com/arkilian/nanostore/internal/index"
	"github.com/arkilian/nanostore/internal/storage"
)

// refuseInTransaction fails maintenance that must not join an open
// transaction.
func (s *Store) refuseInTransaction(op string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if s.engine.InTransaction() {
		return storeerrors.NewProtocolViolation(storeerrors.CodeTransactionOpen,
			"store: cannot "+op+" while a transaction is open")
	}
	return nil
}

// Compact writes pending documents and rebuilds the database file.
func (s *Store) Compact(ctx context.Context) (err error) {
	defer s.observe("compact", time.Now(), &err)
	if err := s.refuseInTransaction("compact"); err != nil {
		return err
	}
	if err := s.flush(ctx); err != nil {
		return err
	}
	return s.engine.Compact(ctx)
}

// IntegrityCheck reports whether the database is sound, with the engine's
// messages when it is not.
func (s *Store) IntegrityCheck(ctx context.Context) (bool, []string, error) {
	if err := s.refuseInTransaction("check integrity"); err != nil {
		return false, nil, err
	}
	ok, messages, err := s.engine.IntegrityCheck(ctx)
	if err == nil && !ok {
		s.logger.Warn("integrity check failed", zap.Strings("messages", messages))
	}
	return ok, messages, err
}

// ClearIndexes drops every index. Searches keep working, only slower.
func (s *Store) ClearIndexes(ctx context.Context) (err error) {
	defer s.observe("clear_indexes", time.Now(), &err)
	if err := s.refuseInTransaction("clear indexes"); err != nil {
		return err
	}
	return s.engine.ClearIndexes(ctx)
}

// RebuildIndexes recreates every index.
func (s *Store) RebuildIndexes(ctx context.Context) (err error) {
	defer s.observe("rebuild_indexes", time.Now(), &err)
	if err := s.refuseInTransaction("rebuild indexes"); err != nil {
		return err
	}
	return s.engine.RebuildIndexes(ctx)
}

// CreateAttributeIndex indexes the values of one attribute path.
func (s *Store) CreateAttributeIndex(ctx context.Context, attribute string) error {
	if err := s.refuseInTransaction("create an index"); err != nil {
		return err
	}
	if err := s.indexes.Create(ctx, attribute); err != nil {
		return err
	}
	return s.refreshIndexed(ctx)
}

// DropAttributeIndex drops the index of one attribute path, if any.
func (s *Store) DropAttributeIndex(ctx context.Context, attribute string) error {
	if err := s.refuseInTransaction("drop an index"); err != nil {
		return err
	}
	if err := s.indexes.Drop(ctx, attribute); err != nil {
		return err
	}
	return s.refreshIndexed(ctx)
}

// AttributeIndexes lists the attribute indexes.
func (s *Store) AttributeIndexes(ctx context.Context) ([]index.Info, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.indexes.List(ctx)
}

// TuneIndexes creates and drops attribute indexes from the usage recorded
// by searches, and returns the actions applied.
func (s *Store) TuneIndexes(ctx context.Context) ([]index.Action, error) {
	if err := s.refuseInTransaction("tune indexes"); err != nil {
		return nil, err
	}
	s.stats.Prune()
	actions, err := s.policy.Apply(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.refreshIndexed(ctx); err != nil {
		return nil, err
	}
	return actions, nil
}

// Backup writes pending documents, then uploads a snapshot of the store
// through b and returns the object path.
func (s *Store) Backup(ctx context.Context, b *storage.Backup, name string) (_ string, err error) {
	defer s.observe("backup", time.Now(), &err)
	if err := s.refuseInTransaction("back up"); err != nil {
		return "", err
	}
	if err := s.flush(ctx); err != nil {
		return "", err
	}
	path, err := b.Run(ctx, s.engine, name)
	if err != nil {
		return "", err
	}
	s.logger.Info("store backed up", zap.String("object", path))
	return path, nil
}
