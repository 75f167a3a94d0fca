// Package flatten decomposes documents into searchable triples and encodes
// the snapshot that is the source of truth for reconstruction.
package flatten

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	storeerrors "github.com/arkilian/nanostore/internal/errors"
	"github.com/arkilian/nanostore/pkg/types"
)

// PathSeparator joins map keys and list indices in a key path.
const PathSeparator = "."

// KeyRow is one row of the Keys relation.
type KeyRow struct {
	Key       string
	TypeTag   string
	Snapshot  []byte
	CreatedAt time.Time
}

// Triple is one row of the Values relation.
type Triple struct {
	Key       string
	Attribute string
	Value     any
	Datatype  types.Datatype
}

// Flatten produces the Keys row and the triples for doc. Every leaf scalar
// yields exactly one triple; maps and lists yield none themselves.
func Flatten(doc types.Document) (KeyRow, []Triple, error) {
	key := doc.Key()
	if key == "" {
		return KeyRow{}, nil, storeerrors.NewProtocolViolation(storeerrors.CodeMissingKey,
			fmt.Sprintf("%s document has no key", types.TypeTagOf(doc)))
	}

	normalized, err := types.Normalize(doc.Snapshot())
	if err != nil {
		return KeyRow{}, nil, err
	}
	attrs := normalized.(map[string]any)

	triples, err := Triples(key, attrs)
	if err != nil {
		return KeyRow{}, nil, err
	}

	snapshot, err := Encode(attrs)
	if err != nil {
		return KeyRow{}, nil, err
	}

	return KeyRow{
		Key:       key,
		TypeTag:   types.TypeTagOf(doc),
		Snapshot:  snapshot,
		CreatedAt: time.Now().UTC(),
	}, triples, nil
}

// Triples walks attrs depth first, visiting map keys in sorted order, and
// emits one triple per leaf.
func Triples(key string, attrs map[string]any) ([]Triple, error) {
	var out []Triple
	if err := walkMap(key, "", attrs, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func walkMap(key, prefix string, m map[string]any, out *[]Triple) error {
	names := make([]string, 0, len(m))
	for name := range m {
		if name == "" || strings.Contains(name, PathSeparator) {
			return storeerrors.NewConfigurationError(storeerrors.CodeInvalidKeyPath,
				fmt.Sprintf("attribute name %q is empty or contains %q", name, PathSeparator))
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := walk(key, join(prefix, name), m[name], out); err != nil {
			return err
		}
	}
	return nil
}

func walk(key, path string, v any, out *[]Triple) error {
	switch x := v.(type) {
	case map[string]any:
		return walkMap(key, path, x, out)
	case []any:
		for i, child := range x {
			if err := walk(key, join(path, strconv.Itoa(i)), child, out); err != nil {
				return err
			}
		}
		return nil
	}

	stored, dt, err := types.ToStorage(v)
	if err != nil {
		return fmt.Errorf("flatten: attribute %s: %w", path, err)
	}
	*out = append(*out, Triple{Key: key, Attribute: path, Value: stored, Datatype: dt})
	return nil
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + PathSeparator + name
}

// Unflatten rebuilds the attribute tree of a Keys row from its snapshot.
// Triples are never consulted.
func Unflatten(row KeyRow) (map[string]any, error) {
	attrs, err := Decode(row.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("flatten: key %s: %w", row.Key, err)
	}
	return attrs, nil
}

// CountLeaves returns the number of leaf scalars in v.
func CountLeaves(v any) int {
	switch x := v.(type) {
	case map[string]any:
		n := 0
		for _, child := range x {
			n += CountLeaves(child)
		}
		return n
	case []any:
		n := 0
		for _, child := range x {
			n += CountLeaves(child)
		}
		return n
	}
	return 1
}

// Resolve walks path through maps and lists starting at root. It returns
// false when any segment is missing.
func Resolve(root any, path string) (any, bool) {
	if path == "" {
		return root, true
	}
	cur := root
	for _, seg := range strings.Split(path, PathSeparator) {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}
