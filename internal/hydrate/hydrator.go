// Package hydrate turns result rows back into documents.
package hydrate

import (
	"fmt"

	"github.com/arkilian/nanostore/internal/engine"
	"github.com/arkilian/nanostore/internal/flatten"
	"github.com/arkilian/nanostore/pkg/types"
)

// Hydrator reconstructs documents from Keys rows.
type Hydrator struct {
	registry *types.Registry
	session  string
}

// New returns a hydrator constructing registered types through registry and
// binding generic objects to session. A nil registry only yields *types.Object.
func New(registry *types.Registry, session string) *Hydrator {
	if registry == nil {
		registry = types.NewRegistry()
	}
	return &Hydrator{registry: registry, session: session}
}

// Document rebuilds one document from its Keys row. When projection is
// non-empty the result is a *types.Object carrying only those top-level
// attributes, still tagged with the stored type.
func (h *Hydrator) Document(row flatten.KeyRow, projection []string) (types.Document, error) {
	attrs, err := flatten.Unflatten(row)
	if err != nil {
		return nil, err
	}

	var doc types.Document
	if len(projection) > 0 {
		doc = project(row.TypeTag, row.Key, attrs, projection)
	} else {
		doc, err = h.registry.Construct(row.TypeTag, row.Key, attrs)
		if err != nil {
			return nil, err
		}
	}

	if binder, ok := doc.(types.SessionBinder); ok {
		binder.BindSession(h.session)
	}
	return doc, nil
}

// Project returns a *types.Object carrying only the projected top-level
// attributes of doc, tagged with doc's type. An empty projection returns doc.
func (h *Hydrator) Project(doc types.Document, projection []string) types.Document {
	if len(projection) == 0 {
		return doc
	}
	out := project(types.TypeTagOf(doc), doc.Key(), doc.Snapshot(), projection)
	out.BindSession(h.session)
	return out
}

func project(tag, key string, attrs map[string]any, projection []string) *types.Object {
	projected := make(map[string]any, len(projection))
	for _, name := range projection {
		if v, ok := attrs[name]; ok {
			projected[name] = v
		}
	}
	return types.NewTaggedObject(tag, key, projected)
}

// Documents hydrates every row of a result holding the NSFKey,
// NSFKeyedArchive and NSFObjectClass columns, keeping row order.
func (h *Hydrator) Documents(res *engine.Result, projection []string) ([]types.Document, error) {
	rows, err := KeyRows(res)
	if err != nil {
		return nil, err
	}
	docs := make([]types.Document, 0, len(rows))
	for _, row := range rows {
		doc, err := h.Document(row, projection)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// KeyRows extracts Keys rows from a result.
func KeyRows(res *engine.Result) ([]flatten.KeyRow, error) {
	rows := make([]flatten.KeyRow, 0, res.NumberOfRows())
	for i := 0; i < res.NumberOfRows(); i++ {
		key, ok := asString(res.ValueAt(i, engine.ColumnKey))
		if !ok {
			return nil, fmt.Errorf("hydrate: row %d has no %s", i, engine.ColumnKey)
		}
		snapshot, ok := res.ValueAt(i, engine.ColumnSnapshot).([]byte)
		if !ok {
			return nil, fmt.Errorf("hydrate: row %d (%s) has no %s", i, key, engine.ColumnSnapshot)
		}
		tag, _ := asString(res.ValueAt(i, engine.ColumnTypeTag))
		rows = append(rows, flatten.KeyRow{Key: key, TypeTag: tag, Snapshot: snapshot})
	}
	return rows, nil
}

// Keys returns the NSFKey column of a result, in row order.
func Keys(res *engine.Result) []string {
	return res.StringsForColumn(engine.ColumnKey)
}

func asString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	}
	return "", false
}
