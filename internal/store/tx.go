package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	storeerrors "github.com/arkilian/nanostore/internal/errors"
)

// Begin writes pending documents, then opens a transaction. Every write
// until Commit or Rollback joins it.
func (s *Store) Begin(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	if s.engine.InTransaction() {
		return storeerrors.ErrNestedTransaction
	}
	if err := s.flush(ctx); err != nil {
		return err
	}
	return s.engine.Begin(ctx)
}

// Commit writes pending documents into the open transaction and commits
// it. When the pending write fails the transaction stays open. When the
// commit itself fails the transaction is gone but the documents stay
// pending for a later SaveStore.
func (s *Store) Commit(ctx context.Context) (err error) {
	defer s.observe("commit", time.Now(), &err)
	if err := s.ready(); err != nil {
		return err
	}
	if !s.engine.InTransaction() {
		return storeerrors.NewProtocolViolation(storeerrors.CodeNoTransaction, "store: commit without an open transaction")
	}
	if err := s.writePending(ctx); err != nil {
		return err
	}
	if err := s.engine.Commit(); err != nil {
		return err
	}
	s.DiscardUnsavedChanges()
	return nil
}

// Rollback discards the writes of the open transaction, including
// documents added since Begin that are still pending.
func (s *Store) Rollback() error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.engine.Rollback(); err != nil {
		return err
	}
	s.DiscardUnsavedChanges()
	return nil
}

// InTransaction reports whether a transaction is open.
func (s *Store) InTransaction() bool {
	return !s.closed && s.engine.InTransaction()
}

// Transaction runs fn in a transaction, committing when fn returns nil and
// rolling back otherwise.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.Begin(ctx); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		if rbErr := s.Rollback(); rbErr != nil {
			s.logger.Error("rollback failed", zap.Error(rbErr))
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := s.Commit(ctx); err != nil {
		if s.engine.InTransaction() {
			if rbErr := s.Rollback(); rbErr != nil {
				s.logger.Error("rollback failed", zap.Error(rbErr))
			}
		}
		return err
	}
	return nil
}
