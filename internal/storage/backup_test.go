package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/arkilian/nanostore/internal/config"
	"github.com/arkilian/nanostore/internal/engine"
)

// fileSnapshotter writes fixed content as the snapshot.
type fileSnapshotter struct {
	content []byte
}

func (f fileSnapshotter) SnapshotTo(_ context.Context, path string) error {
	return os.WriteFile(path, f.content, 0644)
}

func TestBackup_ObjectName(t *testing.T) {
	local, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	b := NewBackup(local, "/nightly/", true, nil)
	b.now = func() time.Time { return time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC) }

	if got := b.ObjectName(""); got != "nightly/nanostore-20240301T102030.000Z.db.sz" {
		t.Errorf("ObjectName(\"\") = %s", got)
	}
	if got := b.ObjectName("x.db.sz"); got != "nightly/x.db.sz" {
		t.Errorf("ObjectName(x.db.sz) = %s", got)
	}

	plain := NewBackup(local, "", false, nil)
	if got := plain.ObjectName("x.db"); got != "x.db" {
		t.Errorf("ObjectName(x.db) = %s", got)
	}
}

func TestBackup_RunRestore(t *testing.T) {
	ctx := context.Background()
	content := []byte(strings.Repeat("nanostore page ", 1000))

	for _, compress := range []bool{false, true} {
		local, err := NewLocalStorage(t.TempDir())
		if err != nil {
			t.Fatalf("failed to create local storage: %v", err)
		}
		b := NewBackup(local, "backups", compress, nil)

		objectPath, err := b.Run(ctx, fileSnapshotter{content: content}, "store.db")
		if err != nil {
			t.Fatalf("Run(compress=%v) failed: %v", compress, err)
		}
		if compress != strings.HasSuffix(objectPath, CompressedSuffix) {
			t.Errorf("object %s does not match compress=%v", objectPath, compress)
		}

		listed, err := b.List(ctx)
		if err != nil || len(listed) != 1 || listed[0] != objectPath {
			t.Errorf("List = %v, %v", listed, err)
		}

		restored := filepath.Join(t.TempDir(), "restored.db")
		if err := b.Restore(ctx, objectPath, restored); err != nil {
			t.Fatalf("Restore failed: %v", err)
		}
		got, err := os.ReadFile(restored)
		if err != nil {
			t.Fatalf("failed to read restored file: %v", err)
		}
		if string(got) != string(content) {
			t.Errorf("restored content mismatch (compress=%v)", compress)
		}
	}
}

func TestBackup_EngineSnapshot(t *testing.T) {
	ctx := context.Background()
	e, err := engine.Open(ctx, engine.Options{StoreType: config.StoreTypeMemory})
	if err != nil {
		t.Fatalf("failed to open engine: %v", err)
	}
	defer e.Close()
	if _, err := e.Exec(ctx, `INSERT INTO NSFKeys (NSFKey, NSFKeyedArchive, NSFObjectClass, NSFCalendarDate) VALUES (?, ?, ?, ?)`,
		"K1", []byte{0x80}, "NSFNanoObject", "2024-01-01 00:00:00.000"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	b, err := NewBackupFromConfig(ctx, config.BackupConfig{Type: "local", Path: t.TempDir(), Compress: true}, nil)
	if err != nil {
		t.Fatalf("NewBackupFromConfig failed: %v", err)
	}
	objectPath, err := b.Run(ctx, e, "")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	restored := filepath.Join(t.TempDir(), "restored.db")
	if err := b.Restore(ctx, objectPath, restored); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	r, err := engine.Open(ctx, engine.Options{StoreType: config.StoreTypePersistent, Path: restored})
	if err != nil {
		t.Fatalf("failed to open restored store: %v", err)
	}
	defer r.Close()
	res, err := r.Query(ctx, `SELECT NSFKey FROM NSFKeys`)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if keys := res.StringsForColumn("NSFKey"); len(keys) != 1 || keys[0] != "K1" {
		t.Errorf("restored keys = %v", keys)
	}
}

func TestNewBackupFromConfig_UnknownType(t *testing.T) {
	if _, err := NewBackupFromConfig(context.Background(), config.BackupConfig{Type: "ftp"}, nil); err == nil {
		t.Error("expected an error for an unknown backup type")
	}
}
