package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/arkilian/nanostore/internal/config"
	storeerrors "github.com/arkilian/nanostore/internal/errors"
)

func openTestEngine(t *testing.T, storeType config.StoreType) *Engine {
	t.Helper()
	opts := Options{
		StoreType: storeType,
		Tuning:    config.DefaultConfig().Engine,
	}
	if storeType == config.StoreTypePersistent {
		opts.Path = filepath.Join(t.TempDir(), "store.db")
	}
	e, err := Open(context.Background(), opts)
	if err != nil {
		t.Fatalf("failed to open engine: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestEngine_SchemaInitIsIdempotent(t *testing.T) {
	e := openTestEngine(t, config.StoreTypePersistent)
	ctx := context.Background()

	if err := e.InitSchema(ctx); err != nil {
		t.Fatalf("second InitSchema failed: %v", err)
	}
	if err := e.InitSchema(ctx); err != nil {
		t.Fatalf("third InitSchema failed: %v", err)
	}

	tables, err := e.Tables(ctx)
	if err != nil {
		t.Fatalf("Tables failed: %v", err)
	}
	want := []string{IndexesTable, KeysTable, ValuesTable}
	if len(tables) != len(want) {
		t.Fatalf("tables = %v, want %v", tables, want)
	}
	for i := range want {
		if tables[i] != want[i] {
			t.Errorf("tables[%d] = %s, want %s", i, tables[i], want[i])
		}
	}

	indexes, err := e.Indexes(ctx)
	if err != nil {
		t.Fatalf("Indexes failed: %v", err)
	}
	if len(indexes) != len(StandardIndexes) {
		t.Errorf("got %d indexes, want %d: %v", len(indexes), len(StandardIndexes), indexes)
	}

	cols, err := e.Columns(ctx, ValuesTable)
	if err != nil {
		t.Fatalf("Columns failed: %v", err)
	}
	if len(cols) != 4 || cols[0] != ColumnKey || cols[3] != ColumnDatatype {
		t.Errorf("unexpected NSFValues columns: %v", cols)
	}
}

func TestEngine_ExecAndQuery(t *testing.T) {
	e := openTestEngine(t, config.StoreTypeMemory)
	ctx := context.Background()

	for i, v := range []any{"text", int64(42), 3.5, nil, []byte{1, 2}} {
		if _, err := e.Exec(ctx, `INSERT INTO NSFValues (NSFKey, NSFAttribute, NSFValue, NSFDatatype) VALUES (?, ?, ?, ?)`,
			"K", "a", v, "X"); err != nil {
			t.Fatalf("insert %d failed: %v", i, err)
		}
	}

	res, err := e.Query(ctx, `SELECT NSFValue FROM NSFValues ORDER BY ROWID`)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if res.NumberOfRows() != 5 {
		t.Fatalf("got %d rows, want 5", res.NumberOfRows())
	}
	if res.ValueAt(0, ColumnValue) != "text" {
		t.Errorf("row 0 = %#v, want text", res.ValueAt(0, ColumnValue))
	}
	if res.ValueAt(1, ColumnValue) != int64(42) {
		t.Errorf("untyped column should keep integer storage class, got %#v", res.ValueAt(1, ColumnValue))
	}
	if res.ValueAt(2, ColumnValue) != 3.5 {
		t.Errorf("row 2 = %#v, want 3.5", res.ValueAt(2, ColumnValue))
	}
	if res.ValueAt(3, ColumnValue) != nil {
		t.Errorf("row 3 = %#v, want nil", res.ValueAt(3, ColumnValue))
	}
	if b, ok := res.ValueAt(4, ColumnValue).([]byte); !ok || len(b) != 2 {
		t.Errorf("row 4 = %#v, want blob", res.ValueAt(4, ColumnValue))
	}
	if res.ValueAt(9, ColumnValue) != nil || res.ValueAt(0, "missing") != nil {
		t.Error("out of range lookups should return nil")
	}

	maxID, err := e.MaxRowUID(ctx, ValuesTable)
	if err != nil {
		t.Fatalf("MaxRowUID failed: %v", err)
	}
	if maxID != 5 {
		t.Errorf("MaxRowUID = %d, want 5", maxID)
	}
}

func TestEngine_NestedBeginFails(t *testing.T) {
	e := openTestEngine(t, config.StoreTypeMemory)
	ctx := context.Background()

	if err := e.Begin(ctx); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if !e.InTransaction() {
		t.Fatal("InTransaction should be true after Begin")
	}
	err := e.Begin(ctx)
	if !errors.Is(err, storeerrors.ErrNestedTransaction) {
		t.Fatalf("expected nested transaction error, got %v", err)
	}
	if storeerrors.GetCategory(err) != storeerrors.ErrCategoryProtocol {
		t.Errorf("nested begin category = %s, want PROTOCOL", storeerrors.GetCategory(err))
	}
	if err := e.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if e.InTransaction() {
		t.Error("InTransaction should be false after Rollback")
	}
	if err := e.Commit(); storeerrors.GetCode(err) != storeerrors.CodeNoTransaction {
		t.Errorf("commit without transaction should fail with NO_TRANSACTION, got %v", err)
	}
}

func TestEngine_QueriesInsideTransaction(t *testing.T) {
	e := openTestEngine(t, config.StoreTypeMemory)
	ctx := context.Background()

	insert := `INSERT INTO NSFKeys (NSFKey, NSFKeyedArchive, NSFObjectClass, NSFCalendarDate) VALUES (?, ?, ?, ?)`
	if _, err := e.Exec(ctx, insert, "A", []byte{0x80}, "C", "2024-01-01 00:00:00.000"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	if err := e.Begin(ctx); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := e.Exec(ctx, insert, "B", []byte{0x80}, "C", "2024-01-01 00:00:00.000"); err != nil {
		t.Fatalf("insert in transaction failed: %v", err)
	}
	res, err := e.Query(ctx, `SELECT count(*) FROM NSFKeys`)
	if err != nil {
		t.Fatalf("query in transaction failed: %v", err)
	}
	if res.FirstValue() != int64(2) {
		t.Errorf("count inside transaction = %v, want 2", res.FirstValue())
	}
	if err := e.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	res, err = e.Query(ctx, `SELECT count(*) FROM NSFKeys`)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if res.FirstValue() != int64(1) {
		t.Errorf("count after rollback = %v, want 1", res.FirstValue())
	}
}

func TestEngine_WithTransactionRollsBackOnError(t *testing.T) {
	e := openTestEngine(t, config.StoreTypeMemory)
	ctx := context.Background()

	boom := errors.New("boom")
	err := e.WithTransaction(ctx, func() error {
		if _, err := e.Exec(ctx, `INSERT INTO NSFValues (NSFKey, NSFAttribute, NSFValue, NSFDatatype) VALUES ('K', 'a', 1, 'REAL')`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	res, err := e.Query(ctx, `SELECT count(*) FROM NSFValues`)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if res.FirstValue() != int64(0) {
		t.Errorf("rolled back insert is visible: %v rows", res.FirstValue())
	}
}

func TestEngine_MaintenanceRefusedInTransaction(t *testing.T) {
	e := openTestEngine(t, config.StoreTypeMemory)
	ctx := context.Background()

	if err := e.Begin(ctx); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer e.Rollback()

	checks := map[string]error{
		"compact":         e.Compact(ctx),
		"clear indexes":   e.ClearIndexes(ctx),
		"rebuild indexes": e.RebuildIndexes(ctx),
		"snapshot":        e.SnapshotTo(ctx, filepath.Join(t.TempDir(), "snap.db")),
	}
	_, _, checks["integrity check"] = e.IntegrityCheck(ctx)

	for op, err := range checks {
		if storeerrors.GetCode(err) != storeerrors.CodeTransactionOpen {
			t.Errorf("%s: expected TRANSACTION_OPEN, got %v", op, err)
		}
	}
}

func TestEngine_Maintenance(t *testing.T) {
	e := openTestEngine(t, config.StoreTypeTemporary)
	ctx := context.Background()

	if err := e.CreateAttributeIndex(ctx, "nsf_attr_test", "LastName"); err != nil {
		t.Fatalf("CreateAttributeIndex failed: %v", err)
	}
	if err := e.ClearIndexes(ctx); err != nil {
		t.Fatalf("ClearIndexes failed: %v", err)
	}
	indexes, err := e.Indexes(ctx)
	if err != nil {
		t.Fatalf("Indexes failed: %v", err)
	}
	if len(indexes) != 0 {
		t.Errorf("indexes after clear: %v", indexes)
	}

	if err := e.RebuildIndexes(ctx); err != nil {
		t.Fatalf("RebuildIndexes failed: %v", err)
	}
	indexes, err = e.Indexes(ctx)
	if err != nil {
		t.Fatalf("Indexes failed: %v", err)
	}
	if len(indexes) != len(StandardIndexes)+1 {
		t.Errorf("indexes after rebuild: %v", indexes)
	}

	ok, messages, err := e.IntegrityCheck(ctx)
	if err != nil || !ok {
		t.Errorf("IntegrityCheck = (%v, %v, %v)", ok, messages, err)
	}
	if err := e.Compact(ctx); err != nil {
		t.Errorf("Compact failed: %v", err)
	}

	snap := filepath.Join(t.TempDir(), "snap.db")
	if err := e.SnapshotTo(ctx, snap); err != nil {
		t.Fatalf("SnapshotTo failed: %v", err)
	}
	copyEngine, err := Open(ctx, Options{StoreType: config.StoreTypePersistent, Path: snap, Tuning: config.EngineConfig{BusyTimeout: time.Second}})
	if err != nil {
		t.Fatalf("open snapshot failed: %v", err)
	}
	defer copyEngine.Close()
	recorded, err := copyEngine.AttributeIndexes(ctx)
	if err != nil {
		t.Fatalf("AttributeIndexes failed: %v", err)
	}
	if recorded["LastName"] != "nsf_attr_test" {
		t.Errorf("snapshot lost attribute index metadata: %v", recorded)
	}

	if err := e.DropAttributeIndex(ctx, "LastName"); err != nil {
		t.Fatalf("DropAttributeIndex failed: %v", err)
	}
	recorded, err = e.AttributeIndexes(ctx)
	if err != nil {
		t.Fatalf("AttributeIndexes failed: %v", err)
	}
	if len(recorded) != 0 {
		t.Errorf("attribute index still recorded: %v", recorded)
	}
}

func TestEngine_ProcessingModeAndPragmas(t *testing.T) {
	ctx := context.Background()
	e, err := Open(ctx, Options{
		StoreType:      config.StoreTypePersistent,
		Path:           filepath.Join(t.TempDir(), "fast.db"),
		ProcessingMode: config.ProcessingFast,
		Tuning:         config.EngineConfig{BusyTimeout: 2 * time.Second, CacheSize: 500},
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer e.Close()

	checks := map[string]any{
		"synchronous":  int64(0),
		"journal_mode": "memory",
		"cache_size":   int64(500),
		"busy_timeout": int64(2000),
		"temp_store":   int64(2),
	}
	for name, want := range checks {
		got, err := e.Pragma(ctx, name)
		if err != nil {
			t.Fatalf("Pragma(%s) failed: %v", name, err)
		}
		if got != want {
			t.Errorf("Pragma(%s) = %#v, want %#v", name, got, want)
		}
	}
	if _, err := e.Pragma(ctx, "writable_schema"); storeerrors.GetCode(err) != storeerrors.CodeInvalidParameter {
		t.Errorf("unexpected pragma should be rejected, got %v", err)
	}
}

func TestEngine_ClosedEngineIsNotReady(t *testing.T) {
	e := openTestEngine(t, config.StoreTypeMemory)
	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	_, err := e.Query(context.Background(), `SELECT 1`)
	if !storeerrors.IsCategory(err, storeerrors.ErrCategoryNotReady) {
		t.Errorf("expected NOT_READY after close, got %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}
