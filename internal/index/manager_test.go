package index

import (
	"context"
	"strings"
	"testing"

	"github.com/arkilian/nanostore/internal/config"
	"github.com/arkilian/nanostore/internal/engine"
	storeerrors "github.com/arkilian/nanostore/internal/errors"
)

func openEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.Open(context.Background(), engine.Options{StoreType: config.StoreTypeMemory})
	if err != nil {
		t.Fatalf("failed to open engine: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestName(t *testing.T) {
	a := Name("addresses.0.city")
	if a != Name("addresses.0.city") {
		t.Error("Name should be deterministic")
	}
	if a == Name("addresses.1.city") {
		t.Error("different paths should get different names")
	}
	if !strings.HasPrefix(a, NamePrefix) || len(a) != len(NamePrefix)+16 {
		t.Errorf("unexpected name %q", a)
	}
}

func TestManager_CreateListDrop(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t)
	m := NewManager(e, nil)

	for _, attr := range []string{"LastName", "addresses.0.city", "LastName"} {
		if err := m.Create(ctx, attr); err != nil {
			t.Fatalf("Create(%s) failed: %v", attr, err)
		}
	}

	infos, err := m.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 indexes, got %d", len(infos))
	}
	if infos[0].Attribute != "LastName" || infos[0].Name != Name("LastName") {
		t.Errorf("unexpected first index %+v", infos[0])
	}

	indexes, err := e.Indexes(ctx)
	if err != nil {
		t.Fatalf("Indexes failed: %v", err)
	}
	found := false
	for _, name := range indexes {
		if name == Name("addresses.0.city") {
			found = true
		}
	}
	if !found {
		t.Errorf("index for addresses.0.city missing from %v", indexes)
	}

	if err := m.Drop(ctx, "LastName"); err != nil {
		t.Fatalf("Drop failed: %v", err)
	}
	if err := m.Drop(ctx, "never-indexed"); err != nil {
		t.Errorf("dropping an unknown attribute should be a no-op, got %v", err)
	}
	attrs, err := m.Attributes(ctx)
	if err != nil {
		t.Fatalf("Attributes failed: %v", err)
	}
	if len(attrs) != 1 || attrs[0] != "addresses.0.city" {
		t.Errorf("unexpected attributes after drop: %v", attrs)
	}
}

func TestManager_RejectsEmptyAttribute(t *testing.T) {
	m := NewManager(openEngine(t), nil)
	err := m.Create(context.Background(), "  ")
	if storeerrors.GetCode(err) != storeerrors.CodeInvalidParameter {
		t.Errorf("expected INVALID_PARAMETER, got %v", err)
	}
}
