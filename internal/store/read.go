package store

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/arkilian/nanostore/internal/bag"
	"github.com/arkilian/nanostore/internal/hydrate"
	"github.com/arkilian/nanostore/internal/query"
	"github.com/arkilian/nanostore/pkg/types"
)

// keyChunk bounds the number of placeholders in one IN list.
const keyChunk = 500

const (
	selectAllSQL     = `SELECT NSFKey, NSFKeyedArchive, NSFObjectClass FROM NSFKeys ORDER BY ROWID`
	selectClassesSQL = `SELECT DISTINCT NSFObjectClass FROM NSFKeys`
)

// ObjectsWithKeys loads the stored documents with the given keys. Keys with
// no stored document are absent from the result. Pending documents are not
// visible until they are written.
func (s *Store) ObjectsWithKeys(ctx context.Context, keys []string) (_ map[string]types.Document, err error) {
	defer s.observe("objects_with_keys", time.Now(), &err)
	if err := s.ready(); err != nil {
		return nil, err
	}

	out := make(map[string]types.Document, len(keys))
	for start := 0; start < len(keys); start += keyChunk {
		end := min(start+keyChunk, len(keys))
		chunk := keys[start:end]

		marks := strings.TrimSuffix(strings.Repeat("?, ", len(chunk)), ", ")
		args := make([]any, len(chunk))
		for i, k := range chunk {
			args[i] = k
		}
		res, err := s.engine.QueryRaw(ctx,
			"SELECT NSFKey, NSFKeyedArchive, NSFObjectClass FROM NSFKeys WHERE NSFKey IN ("+marks+")", args...)
		if err != nil {
			return nil, err
		}
		rows, err := hydrate.KeyRows(res)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			doc, err := s.hydrator.Document(row, nil)
			if err != nil {
				return nil, err
			}
			out[row.Key] = doc
		}
	}
	return out, nil
}

// ObjectWithKey loads one document. The boolean is false when no document
// has that key.
func (s *Store) ObjectWithKey(ctx context.Context, key string) (types.Document, bool, error) {
	docs, err := s.ObjectsWithKeys(ctx, []string{key})
	if err != nil {
		return nil, false, err
	}
	doc, ok := docs[key]
	return doc, ok, nil
}

// AllObjects loads every stored document in insertion order.
func (s *Store) AllObjects(ctx context.Context) (_ []types.Document, err error) {
	defer s.observe("all_objects", time.Now(), &err)
	if err := s.ready(); err != nil {
		return nil, err
	}
	res, err := s.engine.Query(ctx, selectAllSQL)
	if err != nil {
		return nil, err
	}
	return s.hydrator.Documents(res, nil)
}

// AllObjectClasses returns the distinct type tags of stored documents,
// sorted.
func (s *Store) AllObjectClasses(ctx context.Context) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	res, err := s.engine.Query(ctx, selectClassesSQL)
	if err != nil {
		return nil, err
	}
	classes := res.StringsForColumn("NSFObjectClass")
	sort.Strings(classes)
	return classes, nil
}

// ObjectsOfClassNamed loads the documents with type tag class, sorted by
// sorts when given.
func (s *Store) ObjectsOfClassNamed(ctx context.Context, class string, sorts ...query.SortDescriptor) ([]types.Document, error) {
	sr := query.NewSearch()
	sr.FilterClass = class
	sr.SortDescriptors = sorts
	res, err := s.Search(ctx, sr)
	if err != nil {
		return nil, err
	}
	return res.Objects, nil
}

// CountOfObjectsOfClassNamed counts the documents with type tag class.
func (s *Store) CountOfObjectsOfClassNamed(ctx context.Context, class string) (int64, error) {
	sr := query.NewSearch()
	sr.FilterClass = class
	v, err := s.Aggregate(ctx, sr, query.AggregateCount, "")
	if err != nil {
		return 0, err
	}
	n, _ := v.(int64)
	return n, nil
}

func bagsOf(docs []types.Document) []*bag.Bag {
	out := make([]*bag.Bag, 0, len(docs))
	for _, doc := range docs {
		if b, ok := doc.(*bag.Bag); ok {
			out = append(out, b)
		}
	}
	return out
}

// Bags loads every stored bag.
func (s *Store) Bags(ctx context.Context) ([]*bag.Bag, error) {
	docs, err := s.ObjectsOfClassNamed(ctx, bag.TypeTag)
	if err != nil {
		return nil, err
	}
	return bagsOf(docs), nil
}

// BagsWithName loads the bags named name.
func (s *Store) BagsWithName(ctx context.Context, name string) ([]*bag.Bag, error) {
	sr := query.NewSearch()
	sr.FilterClass = bag.TypeTag
	sr.Attribute = bag.AttributeName
	sr.Value = name
	sr.Match = query.EqualTo
	res, err := s.Search(ctx, sr)
	if err != nil {
		return nil, err
	}
	return bagsOf(res.Objects), nil
}

// BagWithName loads the first bag named name. The boolean is false when
// there is none.
func (s *Store) BagWithName(ctx context.Context, name string) (*bag.Bag, bool, error) {
	bags, err := s.BagsWithName(ctx, name)
	if err != nil || len(bags) == 0 {
		return nil, false, err
	}
	return bags[0], true, nil
}

// BagsWithKeys loads the bags with the given keys. Keys of documents that
// are not bags are skipped.
func (s *Store) BagsWithKeys(ctx context.Context, keys []string) ([]*bag.Bag, error) {
	docs, err := s.ObjectsWithKeys(ctx, keys)
	if err != nil {
		return nil, err
	}
	ordered := make([]types.Document, 0, len(docs))
	for _, k := range keys {
		if doc, ok := docs[k]; ok {
			ordered = append(ordered, doc)
		}
	}
	return bagsOf(ordered), nil
}

// BagsContainingObjectWithKey loads the stored bags listing key as a
// member.
func (s *Store) BagsContainingObjectWithKey(ctx context.Context, key string) ([]*bag.Bag, error) {
	e := query.NewExpression(query.NewPredicate(query.ColumnAttribute, query.BeginsWith, bag.AttributeKeys+"."))
	e.AddPredicate(query.NewPredicate(query.ColumnValue, query.EqualTo, key), query.And)

	sr := query.NewSearch()
	sr.FilterClass = bag.TypeTag
	sr.Expressions = []*query.Expression{e}
	res, err := s.Search(ctx, sr)
	if err != nil {
		return nil, err
	}
	return bagsOf(res.Objects), nil
}
