// Package engine wraps the SQLite database that backs a document store:
// connection setup, pragmas, transactions, cached prepared statements and
// maintenance primitives.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/arkilian/nanostore/internal/config"
	storeerrors "github.com/arkilian/nanostore/internal/errors"
)

// Options configures how the engine opens its database.
type Options struct {
	StoreType      config.StoreType
	Path           string
	ProcessingMode config.ProcessingMode
	Tuning         config.EngineConfig
}

// OptionsFromConfig extracts engine options from a store configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		StoreType:      cfg.Store.Type,
		Path:           cfg.Store.Path,
		ProcessingMode: cfg.Store.ProcessingMode,
		Tuning:         cfg.Engine,
	}
}

// Querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Engine owns the single database connection of a store session. The store
// runs a single logical writer, so one connection serves reads and writes
// and every result set is drained before the next statement runs.
type Engine struct {
	db   *sql.DB
	path string
	temp bool
	opts Options

	mu     sync.Mutex // guards tx and closed
	tx     *sql.Tx
	closed bool

	stmtCache map[string]*sql.Stmt
	stmtMu    sync.RWMutex
}

// Open opens (or creates) the database described by opts, applies pragmas
// and initializes the triple store schema.
func Open(ctx context.Context, opts Options) (*Engine, error) {
	path := opts.Path
	temp := false
	switch opts.StoreType {
	case config.StoreTypeMemory, "":
		path = ":memory:"
	case config.StoreTypeTemporary:
		f, err := os.CreateTemp("", "nanostore-*.db")
		if err != nil {
			return nil, storeerrors.NewStorageError(storeerrors.CodeEngineFailure, "create temporary store", err)
		}
		path = f.Name()
		f.Close()
		temp = true
	case config.StoreTypePersistent:
		if path == "" {
			return nil, storeerrors.NewConfigurationError(storeerrors.CodeInvalidParameter, "persistent store requires a path")
		}
	default:
		return nil, storeerrors.NewConfigurationError(storeerrors.CodeInvalidParameter,
			fmt.Sprintf("unknown store type %q", opts.StoreType))
	}

	db, err := sql.Open("sqlite3", buildDSN(path, opts))
	if err != nil {
		return nil, wrapErr("open database", err)
	}
	// Single writer. The connection must never be recycled: an in-memory
	// database lives and dies with it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	e := &Engine{
		db:        db,
		path:      path,
		temp:      temp,
		opts:      opts,
		stmtCache: make(map[string]*sql.Stmt),
	}

	if err := e.applyPragmas(ctx); err != nil {
		e.Close()
		return nil, err
	}
	if err := e.InitSchema(ctx); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

// buildDSN puts the connection-level settings in the DSN so they apply the
// moment the driver connects.
func buildDSN(path string, opts Options) string {
	params := []string{fmt.Sprintf("_busy_timeout=%d", opts.Tuning.BusyTimeout.Milliseconds())}

	journal := opts.Tuning.JournalMode
	synchronous := opts.Tuning.Synchronous
	if opts.ProcessingMode == config.ProcessingFast {
		if journal == "" || strings.EqualFold(journal, "DELETE") {
			journal = "MEMORY"
		}
		if synchronous == "" {
			synchronous = "OFF"
		}
	}
	if synchronous == "" {
		synchronous = "FULL"
	}
	if journal != "" && path != ":memory:" {
		params = append(params, "_journal_mode="+strings.ToUpper(journal))
	}
	params = append(params, "_synchronous="+strings.ToUpper(synchronous))

	if path == ":memory:" {
		return "file::memory:?" + strings.Join(params, "&")
	}
	return "file:" + path + "?" + strings.Join(params, "&")
}

// applyPragmas sets the tuning knobs that have no DSN form. Encoding and
// page size only take effect on a fresh database.
func (e *Engine) applyPragmas(ctx context.Context) error {
	var pragmas []string
	t := e.opts.Tuning
	if t.Encoding != "" {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA encoding = '%s'", strings.ToUpper(t.Encoding)))
	}
	if t.PageSize > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA page_size = %d", t.PageSize))
	}
	if t.CacheSize != 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA cache_size = %d", t.CacheSize))
	}
	tempStore := t.TempStore
	if tempStore == "" && e.opts.ProcessingMode == config.ProcessingFast {
		tempStore = "MEMORY"
	}
	if tempStore != "" {
		pragmas = append(pragmas, "PRAGMA temp_store = "+strings.ToUpper(tempStore))
	}

	for _, p := range pragmas {
		if _, err := e.db.ExecContext(ctx, p); err != nil {
			return wrapErr("apply pragma", fmt.Errorf("%s: %w", p, err))
		}
	}
	return nil
}

// InitSchema creates the triple store relations and indexes. Safe to call
// on an initialized store.
func (e *Engine) InitSchema(ctx context.Context) error {
	for _, stmt := range AllSchemaSQL() {
		if _, err := e.exec(ctx, stmt); err != nil {
			return wrapErr("initialize schema", err)
		}
	}
	return nil
}

// Path returns the database file, or ":memory:".
func (e *Engine) Path() string { return e.path }

// StoreType returns the store type the engine was opened with.
func (e *Engine) StoreType() config.StoreType { return e.opts.StoreType }

// ready fails with NotReady once the engine is closed.
func (e *Engine) ready() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return storeerrors.ErrStoreClosed
	}
	return nil
}

// conn returns the open transaction if any, otherwise the database.
func (e *Engine) conn() querier {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tx != nil {
		return e.tx
	}
	return e.db
}

// Begin opens a transaction. Opening a second one is a protocol violation.
func (e *Engine) Begin(ctx context.Context) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tx != nil {
		return storeerrors.ErrNestedTransaction
	}
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("begin transaction", err)
	}
	e.tx = tx
	return nil
}

// Commit commits the open transaction.
func (e *Engine) Commit() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tx == nil {
		return storeerrors.NewProtocolViolation(storeerrors.CodeNoTransaction, "commit without an open transaction")
	}
	tx := e.tx
	e.tx = nil
	if err := tx.Commit(); err != nil {
		return wrapErr("commit transaction", err)
	}
	return nil
}

// Rollback rolls back the open transaction.
func (e *Engine) Rollback() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tx == nil {
		return storeerrors.NewProtocolViolation(storeerrors.CodeNoTransaction, "rollback without an open transaction")
	}
	tx := e.tx
	e.tx = nil
	if err := tx.Rollback(); err != nil {
		return wrapErr("rollback transaction", err)
	}
	return nil
}

// InTransaction reports whether a transaction is open.
func (e *Engine) InTransaction() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tx != nil
}

// WithTransaction runs fn atomically. If a transaction is already open fn
// joins it and the caller keeps control of commit; otherwise a transaction
// is opened, committed on success and rolled back on any error.
func (e *Engine) WithTransaction(ctx context.Context, fn func() error) error {
	if e.InTransaction() {
		return fn()
	}
	if err := e.Begin(ctx); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if rbErr := e.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return e.Commit()
}

// getOrPrepareStmt returns a cached prepared statement for query, preparing
// it on first use.
func (e *Engine) getOrPrepareStmt(ctx context.Context, query string) (*sql.Stmt, error) {
	e.stmtMu.RLock()
	stmt, ok := e.stmtCache[query]
	e.stmtMu.RUnlock()
	if ok {
		return stmt, nil
	}

	e.stmtMu.Lock()
	defer e.stmtMu.Unlock()
	if stmt, ok := e.stmtCache[query]; ok {
		return stmt, nil
	}
	stmt, err := e.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	e.stmtCache[query] = stmt
	return stmt, nil
}

// stmt returns the cached statement bound to the open transaction, if any.
// While a transaction holds the only connection, uncached statements are
// prepared on the transaction itself and not cached.
func (e *Engine) stmt(ctx context.Context, query string) (*sql.Stmt, error) {
	e.mu.Lock()
	tx := e.tx
	e.mu.Unlock()

	if tx == nil {
		return e.getOrPrepareStmt(ctx, query)
	}

	e.stmtMu.RLock()
	stmt, ok := e.stmtCache[query]
	e.stmtMu.RUnlock()
	if ok {
		return tx.StmtContext(ctx, stmt), nil
	}
	return tx.PrepareContext(ctx, query)
}

// exec runs a statement without the statement cache (DDL and pragmas).
func (e *Engine) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return e.conn().ExecContext(ctx, query, args...)
}

// Exec runs a cached, parameterized statement.
func (e *Engine) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	stmt, err := e.stmt(ctx, query)
	if err != nil {
		return nil, wrapErr("prepare statement", err)
	}
	res, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		return nil, wrapErr("execute statement", err)
	}
	return res, nil
}

// Query runs a cached, parameterized query and materializes every row.
func (e *Engine) Query(ctx context.Context, query string, args ...any) (*Result, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	stmt, err := e.stmt(ctx, query)
	if err != nil {
		return nil, wrapErr("prepare query", err)
	}
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, wrapErr("execute query", err)
	}
	return collect(rows)
}

// QueryRaw runs a caller-supplied statement without caching it.
func (e *Engine) QueryRaw(ctx context.Context, query string, args ...any) (*Result, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	rows, err := e.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("execute query", err)
	}
	return collect(rows)
}

// ExecRaw runs a caller-supplied statement without caching it.
func (e *Engine) ExecRaw(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	res, err := e.exec(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("execute statement", err)
	}
	return res, nil
}

// ForEachRow runs a cached query and calls fn for every row. The result set
// is drained before ForEachRow returns, so fn must not issue statements.
func (e *Engine) ForEachRow(ctx context.Context, query string, args []any, fn func(*sql.Rows) error) error {
	if err := e.ready(); err != nil {
		return err
	}
	stmt, err := e.stmt(ctx, query)
	if err != nil {
		return wrapErr("prepare query", err)
	}
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return wrapErr("execute query", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return wrapErr("iterate rows", err)
	}
	return nil
}

// resetStmtCache closes every cached statement. Schema changes invalidate
// prepared statements, so maintenance calls this after DDL.
func (e *Engine) resetStmtCache() {
	e.stmtMu.Lock()
	defer e.stmtMu.Unlock()
	for _, stmt := range e.stmtCache {
		stmt.Close()
	}
	e.stmtCache = make(map[string]*sql.Stmt)
}

// Close rolls back any open transaction, closes cached statements and the
// database, and removes the file of a temporary store.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	tx := e.tx
	e.tx = nil
	e.mu.Unlock()

	if tx != nil {
		tx.Rollback()
	}

	e.stmtMu.Lock()
	for _, stmt := range e.stmtCache {
		stmt.Close()
	}
	e.stmtCache = nil
	e.stmtMu.Unlock()

	err := e.db.Close()
	if e.temp {
		for _, suffix := range []string{"", "-journal", "-wal", "-shm"} {
			os.Remove(e.path + suffix)
		}
	}
	if err != nil {
		return wrapErr("close database", err)
	}
	return nil
}
