package engine

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	storeerrors "github.com/arkilian/nanostore/internal/errors"
)

// wrapErr converts a driver error into a StorageError, keeping errors that
// already belong to the taxonomy untouched.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *storeerrors.StoreError
	if errors.As(err, &se) {
		return err
	}
	return storeerrors.NewStorageError(classify(err), fmt.Sprintf("engine: failed to %s", op), err)
}

func classify(err error) string {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return storeerrors.CodeEngineFailure
	}
	switch sqliteErr.Code {
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return storeerrors.CodeBusy
	case sqlite3.ErrCorrupt, sqlite3.ErrNotADB:
		return storeerrors.CodeCorruption
	default:
		return storeerrors.CodeEngineFailure
	}
}

// IsBusy reports whether err is a busy or locked condition reported by
// SQLite. Callers may retry the whole operation.
func IsBusy(err error) bool {
	return storeerrors.GetCode(err) == storeerrors.CodeBusy || classify(err) == storeerrors.CodeBusy
}
