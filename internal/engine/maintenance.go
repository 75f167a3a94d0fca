package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	storeerrors "github.com/arkilian/nanostore/internal/errors"
	"github.com/arkilian/nanostore/pkg/types"
)

// refuseInTransaction fails long-running maintenance while a transaction
// is open instead of blocking on it.
func (e *Engine) refuseInTransaction(op string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.InTransaction() {
		return storeerrors.NewProtocolViolation(storeerrors.CodeTransactionOpen,
			fmt.Sprintf("engine: cannot %s while a transaction is open", op))
	}
	return nil
}

// Compact rebuilds the database file, reclaiming free pages.
func (e *Engine) Compact(ctx context.Context) error {
	if err := e.refuseInTransaction("compact"); err != nil {
		return err
	}
	e.resetStmtCache()
	if _, err := e.exec(ctx, "VACUUM"); err != nil {
		return wrapErr("compact database", err)
	}
	return nil
}

// IntegrityCheck runs the engine's integrity check. ok is true when the
// engine reports no problems; otherwise messages lists them.
func (e *Engine) IntegrityCheck(ctx context.Context) (ok bool, messages []string, err error) {
	if err := e.refuseInTransaction("check integrity"); err != nil {
		return false, nil, err
	}
	res, err := e.QueryRaw(ctx, "PRAGMA integrity_check")
	if err != nil {
		return false, nil, err
	}
	messages = res.StringsForColumn(res.Columns()[0])
	ok = len(messages) == 1 && messages[0] == "ok"
	return ok, messages, nil
}

// Analyze refreshes the planner statistics.
func (e *Engine) Analyze(ctx context.Context) error {
	if err := e.refuseInTransaction("analyze"); err != nil {
		return err
	}
	if _, err := e.exec(ctx, AnalyzeSQL); err != nil {
		return wrapErr("analyze", err)
	}
	return nil
}

// SnapshotTo writes a consistent copy of the database to path. An existing
// file at path is replaced.
func (e *Engine) SnapshotTo(ctx context.Context, path string) error {
	if err := e.refuseInTransaction("snapshot"); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("engine: failed to replace %s: %w", path, err)
	}
	if _, err := e.exec(ctx, "VACUUM INTO ?", path); err != nil {
		return wrapErr("snapshot database", err)
	}
	return nil
}

// ClearIndexes drops the standard indexes and every recorded attribute
// index. The attribute index metadata is kept so RebuildIndexes can restore
// them.
func (e *Engine) ClearIndexes(ctx context.Context) error {
	if err := e.refuseInTransaction("clear indexes"); err != nil {
		return err
	}
	attrIndexes, err := e.AttributeIndexes(ctx)
	if err != nil {
		return err
	}
	return e.WithTransaction(ctx, func() error {
		for _, idx := range StandardIndexes {
			if _, err := e.exec(ctx, "DROP INDEX IF EXISTS "+QuoteIdentifier(idx.Name)); err != nil {
				return wrapErr("drop index "+idx.Name, err)
			}
		}
		for _, name := range attrIndexes {
			if _, err := e.exec(ctx, "DROP INDEX IF EXISTS "+QuoteIdentifier(name)); err != nil {
				return wrapErr("drop index "+name, err)
			}
		}
		return nil
	})
}

// RebuildIndexes recreates the standard indexes and every recorded
// attribute index, then refreshes planner statistics.
func (e *Engine) RebuildIndexes(ctx context.Context) error {
	if err := e.refuseInTransaction("rebuild indexes"); err != nil {
		return err
	}
	attrIndexes, err := e.AttributeIndexes(ctx)
	if err != nil {
		return err
	}
	err = e.WithTransaction(ctx, func() error {
		for _, idx := range StandardIndexes {
			if _, err := e.exec(ctx, "DROP INDEX IF EXISTS "+QuoteIdentifier(idx.Name)); err != nil {
				return wrapErr("drop index "+idx.Name, err)
			}
			if _, err := e.exec(ctx, idx.SQL); err != nil {
				return wrapErr("create index "+idx.Name, err)
			}
		}
		for attribute, name := range attrIndexes {
			if _, err := e.exec(ctx, "DROP INDEX IF EXISTS "+QuoteIdentifier(name)); err != nil {
				return wrapErr("drop index "+name, err)
			}
			if _, err := e.exec(ctx, AttributeIndexSQL(name, attribute)); err != nil {
				return wrapErr("create index "+name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return e.Analyze(ctx)
}

// CreateIndex creates an index on table over columns.
func (e *Engine) CreateIndex(ctx context.Context, name, table string, columns ...string) error {
	if len(columns) == 0 {
		return storeerrors.NewConfigurationError(storeerrors.CodeInvalidParameter, "engine: index needs at least one column")
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = QuoteIdentifier(c)
	}
	stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)",
		QuoteIdentifier(name), QuoteIdentifier(table), strings.Join(quoted, ", "))
	if _, err := e.ExecRaw(ctx, stmt); err != nil {
		return err
	}
	return nil
}

// DropIndex drops the named index if it exists.
func (e *Engine) DropIndex(ctx context.Context, name string) error {
	_, err := e.ExecRaw(ctx, "DROP INDEX IF EXISTS "+QuoteIdentifier(name))
	return err
}

// CreateAttributeIndex creates the partial index for attribute and records
// it in the metadata relation, atomically.
func (e *Engine) CreateAttributeIndex(ctx context.Context, name, attribute string) error {
	return e.WithTransaction(ctx, func() error {
		if _, err := e.ExecRaw(ctx, AttributeIndexSQL(name, attribute)); err != nil {
			return err
		}
		_, err := e.Exec(ctx,
			`INSERT OR REPLACE INTO NSFIndexes (NSFAttribute, NSFIndexName, NSFCalendarDate) VALUES (?, ?, ?)`,
			attribute, name, types.FormatDate(time.Now()))
		return err
	})
}

// DropAttributeIndex drops the index of attribute and forgets it.
func (e *Engine) DropAttributeIndex(ctx context.Context, attribute string) error {
	indexes, err := e.AttributeIndexes(ctx)
	if err != nil {
		return err
	}
	name, ok := indexes[attribute]
	if !ok {
		return nil
	}
	return e.WithTransaction(ctx, func() error {
		if err := e.DropIndex(ctx, name); err != nil {
			return err
		}
		_, err := e.Exec(ctx, `DELETE FROM NSFIndexes WHERE NSFAttribute = ?`, attribute)
		return err
	})
}

// AttributeIndexes returns the recorded attribute indexes keyed by
// attribute path.
func (e *Engine) AttributeIndexes(ctx context.Context) (map[string]string, error) {
	res, err := e.Query(ctx, `SELECT NSFAttribute, NSFIndexName FROM NSFIndexes`)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, res.NumberOfRows())
	attrs := res.StringsForColumn(ColumnAttribute)
	names := res.StringsForColumn(ColumnIndexName)
	for i := range attrs {
		out[attrs[i]] = names[i]
	}
	return out, nil
}

// Tables returns the user tables of the database.
func (e *Engine) Tables(ctx context.Context) ([]string, error) {
	res, err := e.Query(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return res.StringsForColumn("name"), nil
}

// Columns returns the column names of table.
func (e *Engine) Columns(ctx context.Context, table string) ([]string, error) {
	res, err := e.Query(ctx, `SELECT name FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, err
	}
	return res.StringsForColumn("name"), nil
}

// Indexes returns the explicit indexes of the database.
func (e *Engine) Indexes(ctx context.Context) ([]string, error) {
	res, err := e.Query(ctx, `SELECT name FROM sqlite_master WHERE type = 'index' AND name NOT LIKE 'sqlite_autoindex%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return res.StringsForColumn("name"), nil
}

// MaxRowUID returns the largest ROWID of table, or 0 for an empty table.
func (e *Engine) MaxRowUID(ctx context.Context, table string) (int64, error) {
	res, err := e.QueryRaw(ctx, "SELECT max(ROWID) FROM "+QuoteIdentifier(table))
	if err != nil {
		return 0, err
	}
	if v, ok := res.FirstValue().(int64); ok {
		return v, nil
	}
	return 0, nil
}

// pragmas readable through Pragma.
var readablePragmas = map[string]bool{
	"journal_mode": true,
	"synchronous":  true,
	"cache_size":   true,
	"page_size":    true,
	"temp_store":   true,
	"encoding":     true,
	"busy_timeout": true,
}

// Pragma returns the current value of a tuning pragma.
func (e *Engine) Pragma(ctx context.Context, name string) (any, error) {
	name = strings.ToLower(name)
	if !readablePragmas[name] {
		return nil, storeerrors.NewConfigurationError(storeerrors.CodeInvalidParameter,
			fmt.Sprintf("engine: unknown pragma %q", name))
	}
	res, err := e.QueryRaw(ctx, "PRAGMA "+name)
	if err != nil {
		return nil, err
	}
	return res.FirstValue(), nil
}
