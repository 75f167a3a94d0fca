package types

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// ObjectTypeTag is the tag of documents created as plain Objects.
const ObjectTypeTag = "NSFNanoObject"

// Object is the generic document: a key plus an attribute map. It is what
// the store returns for type tags it cannot construct, and it remembers that
// tag so a resave keeps the original type.
type Object struct {
	key     string
	typeTag string
	session string
	info    map[string]any
}

// NewObject creates an empty object with a fresh key.
func NewObject() *Object {
	return NewObjectWithKey(NewKey(), nil)
}

// NewObjectWithAttributes creates an object with a fresh key holding attrs.
func NewObjectWithAttributes(attrs map[string]any) *Object {
	return NewObjectWithKey(NewKey(), attrs)
}

// NewObjectWithKey creates an object with the given key. The attribute map
// is copied at the top level.
func NewObjectWithKey(key string, attrs map[string]any) *Object {
	o := &Object{key: key, typeTag: ObjectTypeTag, info: make(map[string]any, len(attrs))}
	for k, v := range attrs {
		o.info[k] = v
	}
	return o
}

// NewTaggedObject creates an object stored under tag instead of
// ObjectTypeTag.
func NewTaggedObject(tag, key string, attrs map[string]any) *Object {
	o := NewObjectWithKey(key, attrs)
	if tag != "" {
		o.typeTag = tag
	}
	return o
}

func (o *Object) Key() string { return o.key }

func (o *Object) Snapshot() map[string]any { return o.info }

func (o *Object) SortRoot() any { return o.info }

// TypeTag returns the tag the object was stored under.
func (o *Object) TypeTag() string { return o.typeTag }

// AssignKey sets the key if none is assigned yet.
func (o *Object) AssignKey(key string) {
	if o.key == "" {
		o.key = key
	}
}

// BindSession records the store session that owns the object.
func (o *Object) BindSession(sessionID string) { o.session = sessionID }

// Session returns the owning store session id, empty if never stored.
func (o *Object) Session() string { return o.session }

// Get returns the top-level attribute name.
func (o *Object) Get(name string) (any, bool) {
	v, ok := o.info[name]
	return v, ok
}

// Set sets the top-level attribute name.
func (o *Object) Set(name string, value any) {
	o.info[name] = value
}

// Merge copies every entry of attrs into the object.
func (o *Object) Merge(attrs map[string]any) {
	for k, v := range attrs {
		o.info[k] = v
	}
}

// Delete removes the named attributes.
func (o *Object) Delete(names ...string) {
	for _, n := range names {
		delete(o.info, n)
	}
}

// DeleteAll removes every attribute.
func (o *Object) DeleteAll() {
	o.info = make(map[string]any)
}

// Attributes returns the attribute names in sorted order.
func (o *Object) Attributes() []string {
	names := make([]string, 0, len(o.info))
	for k := range o.info {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Equal reports whether both objects have the same key and attributes.
func (o *Object) Equal(other *Object) bool {
	if other == nil {
		return false
	}
	return o.key == other.key && EqualValues(o.info, other.info)
}

func (o *Object) String() string {
	return fmt.Sprintf("Object{key=%s, type=%s, attributes=[%s]}", o.key, o.typeTag, strings.Join(o.Attributes(), ", "))
}

// JSONDescription renders the object as indented JSON.
func (o *Object) JSONDescription() (string, error) {
	out := map[string]any{
		"key":        o.key,
		"type":       o.typeTag,
		"attributes": JSONSafe(o.info),
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("types: marshal object %s: %w", o.key, err)
	}
	return string(b), nil
}

// JSONSafe converts an attribute tree into values encoding/json style
// marshalers render faithfully: dates use DateFormat and locators their
// string form. Bytes are left to the encoder's base64 handling.
func JSONSafe(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, child := range x {
			out[k] = JSONSafe(child)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, child := range x {
			out[i] = JSONSafe(child)
		}
		return out
	case time.Time:
		return FormatDate(x)
	case *url.URL:
		if x == nil {
			return nil
		}
		return x.String()
	}
	return v
}
