package types

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Document is the capability every stored type implements. The store never
// depends on concrete types, only on this interface and the Registry.
type Document interface {
	// Key returns the document identifier. Empty means not yet assigned.
	Key() string
	// Snapshot returns the attribute tree persisted for the document.
	Snapshot() map[string]any
	// SortRoot returns the value attribute paths are resolved against when
	// sorting results. Most types return their snapshot.
	SortRoot() any
}

// TypeTagger is implemented by documents that name their own type tag.
type TypeTagger interface {
	TypeTag() string
}

// KeyAssigner is implemented by documents that accept a generated key.
type KeyAssigner interface {
	AssignKey(key string)
}

// SessionBinder is implemented by documents that record the session of the
// store that loaded or saved them.
type SessionBinder interface {
	BindSession(sessionID string)
}

// NewKey generates a document identifier.
func NewKey() string {
	return strings.ToUpper(uuid.New().String())
}

// TypeTagOf returns the type tag recorded for doc: its own TypeTag if it
// implements TypeTagger, otherwise the name of its concrete type.
func TypeTagOf(doc Document) string {
	if t, ok := doc.(TypeTagger); ok {
		if tag := t.TypeTag(); tag != "" {
			return tag
		}
	}
	rt := reflect.TypeOf(doc)
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	return rt.Name()
}

// Constructor rebuilds a document of a registered type from its key and
// decoded snapshot.
type Constructor func(key string, attributes map[string]any) (Document, error)

// Registry maps type tags to constructors so snapshots can be rehydrated
// into caller types. Unknown tags fall back to *Object.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register binds tag to ctor. It panics on an empty tag or nil constructor.
func (r *Registry) Register(tag string, ctor Constructor) {
	if tag == "" || ctor == nil {
		panic("types: Register requires a tag and a constructor")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[tag] = ctor
}

// Lookup returns the constructor registered for tag.
func (r *Registry) Lookup(tag string) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.ctors[tag]
	return c, ok
}

// Tags returns the registered tags in sorted order.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.ctors))
	for t := range r.ctors {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// Construct rebuilds a document. When tag is not registered the result is
// an *Object that keeps tag, so resaving it preserves the original type.
func (r *Registry) Construct(tag, key string, attributes map[string]any) (Document, error) {
	if ctor, ok := r.Lookup(tag); ok {
		doc, err := ctor(key, attributes)
		if err != nil {
			return nil, fmt.Errorf("types: construct %s %s: %w", tag, key, err)
		}
		return doc, nil
	}
	return NewTaggedObject(tag, key, attributes), nil
}
