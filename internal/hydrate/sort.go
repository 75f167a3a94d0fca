package hydrate

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/arkilian/nanostore/internal/flatten"
	"github.com/arkilian/nanostore/internal/query"
	"github.com/arkilian/nanostore/pkg/types"
)

// Sort orders docs in place by the values at the descriptors' attribute
// paths, resolved against each document's sort root. Earlier descriptors
// take priority; remaining ties are broken by key. A sort root holding an
// unsupported value fails the sort and leaves docs untouched.
func Sort(docs []types.Document, descriptors []query.SortDescriptor) error {
	if len(descriptors) == 0 || len(docs) <= 1 {
		return nil
	}

	// Resolve every path once per document.
	type entry struct {
		doc  types.Document
		vals []any
	}
	entries := make([]entry, len(docs))
	for i, doc := range docs {
		root, err := types.Normalize(doc.SortRoot())
		if err != nil {
			return fmt.Errorf("sort %s: %w", doc.Key(), err)
		}
		vals := make([]any, len(descriptors))
		for k, d := range descriptors {
			vals[k], _ = flatten.Resolve(root, d.Attribute)
		}
		entries[i] = entry{doc: doc, vals: vals}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].vals, entries[j].vals
		for k, d := range descriptors {
			cmp := Compare(a[k], b[k])
			if cmp == 0 {
				continue
			}
			if d.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return entries[i].doc.Key() < entries[j].doc.Key()
	})

	for i := range entries {
		docs[i] = entries[i].doc
	}
	return nil
}

// rank orders values of different kinds: null, number, date, text, other.
func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case int64, float64, bool:
		return 1
	case time.Time:
		return 2
	case string, *url.URL:
		return 3
	default:
		return 4
	}
}

// Compare orders two normalized values. Values of different kinds order by
// kind; containers and blobs compare equal within their kind.
func Compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch ra {
	case 1:
		if x, ok := a.(int64); ok {
			if y, ok := b.(int64); ok {
				return compareOrdered(x, y)
			}
		}
		return compareOrdered(toFloat(a), toFloat(b))
	case 2:
		return a.(time.Time).Compare(b.(time.Time))
	case 3:
		return strings.Compare(toText(a), toText(b))
	case 4:
		if x, ok := a.([]byte); ok {
			if y, ok := b.([]byte); ok {
				return strings.Compare(string(x), string(y))
			}
		}
	}
	return 0
}

func compareOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case int64:
		return float64(x)
	case float64:
		return x
	case bool:
		if x {
			return 1
		}
	}
	return 0
}

func toText(v any) string {
	if u, ok := v.(*url.URL); ok {
		if u == nil {
			return ""
		}
		return u.String()
	}
	return v.(string)
}
