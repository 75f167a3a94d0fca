package index

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spaolacci/murmur3"
	"go.uber.org/zap"

	storeerrors "github.com/arkilian/nanostore/internal/errors"
)

// NamePrefix starts the name of every attribute index.
const NamePrefix = "nsf_attr_"

// Name returns the deterministic index name of attribute. Hashing keeps the
// name a plain identifier whatever characters the path holds.
func Name(attribute string) string {
	return fmt.Sprintf("%s%016x", NamePrefix, murmur3.Sum64([]byte(attribute)))
}

// Manager creates and drops attribute indexes through a Catalog.
type Manager struct {
	catalog Catalog
	logger  *zap.Logger
}

// NewManager creates a manager. A nil logger logs nothing.
func NewManager(catalog Catalog, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{catalog: catalog, logger: logger}
}

// Create indexes attribute. Creating an existing index is a no-op.
func (m *Manager) Create(ctx context.Context, attribute string) error {
	if err := validAttribute(attribute); err != nil {
		return err
	}
	name := Name(attribute)
	if err := m.catalog.CreateAttributeIndex(ctx, name, attribute); err != nil {
		return fmt.Errorf("index: create %s: %w", attribute, err)
	}
	m.logger.Info("attribute index created", zap.String("attribute", attribute), zap.String("index", name))
	return nil
}

// Drop removes the index of attribute if there is one.
func (m *Manager) Drop(ctx context.Context, attribute string) error {
	if err := validAttribute(attribute); err != nil {
		return err
	}
	if err := m.catalog.DropAttributeIndex(ctx, attribute); err != nil {
		return fmt.Errorf("index: drop %s: %w", attribute, err)
	}
	m.logger.Info("attribute index dropped", zap.String("attribute", attribute))
	return nil
}

// List returns every attribute index ordered by attribute.
func (m *Manager) List(ctx context.Context) ([]Info, error) {
	recorded, err := m.catalog.AttributeIndexes(ctx)
	if err != nil {
		return nil, fmt.Errorf("index: list: %w", err)
	}
	out := make([]Info, 0, len(recorded))
	for attr, name := range recorded {
		out = append(out, Info{Attribute: attr, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Attribute < out[j].Attribute })
	return out, nil
}

// Attributes returns the indexed attribute paths in sorted order.
func (m *Manager) Attributes(ctx context.Context) ([]string, error) {
	infos, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	attrs := make([]string, len(infos))
	for i, info := range infos {
		attrs[i] = info.Attribute
	}
	return attrs, nil
}

func validAttribute(attribute string) error {
	if strings.TrimSpace(attribute) == "" {
		return storeerrors.NewConfigurationError(storeerrors.CodeInvalidParameter, "index: attribute path is empty")
	}
	return nil
}
