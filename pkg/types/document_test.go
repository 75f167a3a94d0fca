package types

import (
	"errors"
	"strings"
	"testing"
)

type person struct {
	key   string
	first string
	last  string
}

func (p *person) Key() string { return p.key }

func (p *person) Snapshot() map[string]any {
	return map[string]any{"FirstName": p.first, "LastName": p.last}
}

func (p *person) SortRoot() any { return p.Snapshot() }

func newPerson(key string, attrs map[string]any) (Document, error) {
	first, _ := attrs["FirstName"].(string)
	last, ok := attrs["LastName"].(string)
	if !ok {
		return nil, errors.New("missing LastName")
	}
	return &person{key: key, first: first, last: last}, nil
}

func TestTypeTagOf(t *testing.T) {
	if got := TypeTagOf(&person{}); got != "person" {
		t.Errorf("TypeTagOf(*person) = %q, want person", got)
	}
	if got := TypeTagOf(NewObject()); got != ObjectTypeTag {
		t.Errorf("TypeTagOf(*Object) = %q, want %q", got, ObjectTypeTag)
	}
}

func TestRegistry_Construct(t *testing.T) {
	r := NewRegistry()
	r.Register("person", newPerson)

	doc, err := r.Construct("person", "K1", map[string]any{"FirstName": "John", "LastName": "Doe"})
	if err != nil {
		t.Fatalf("Construct failed: %v", err)
	}
	p, ok := doc.(*person)
	if !ok {
		t.Fatalf("expected *person, got %T", doc)
	}
	if p.key != "K1" || p.last != "Doe" {
		t.Errorf("person mismatch: %+v", p)
	}

	if _, err := r.Construct("person", "K2", map[string]any{}); err == nil {
		t.Error("constructor error should propagate")
	}
}

func TestRegistry_UnknownTagKeepsTag(t *testing.T) {
	r := NewRegistry()
	doc, err := r.Construct("Car", "K1", map[string]any{"Make": "Saab"})
	if err != nil {
		t.Fatalf("Construct failed: %v", err)
	}
	obj, ok := doc.(*Object)
	if !ok {
		t.Fatalf("expected *Object fallback, got %T", doc)
	}
	if obj.TypeTag() != "Car" {
		t.Errorf("type tag not preserved: got %q", obj.TypeTag())
	}
	if TypeTagOf(obj) != "Car" {
		t.Errorf("TypeTagOf should report the preserved tag, got %q", TypeTagOf(obj))
	}
}

func TestRegistry_RegisterPanicsOnNil(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Register(nil) should panic")
		}
	}()
	NewRegistry().Register("x", nil)
}

func TestRegistry_Tags(t *testing.T) {
	r := NewRegistry()
	r.Register("b", newPerson)
	r.Register("a", newPerson)
	tags := r.Tags()
	if strings.Join(tags, ",") != "a,b" {
		t.Errorf("tags mismatch: got %v", tags)
	}
}

func TestObject(t *testing.T) {
	o := NewObjectWithAttributes(map[string]any{"FirstName": "John"})
	if len(o.Key()) != 36 || strings.ToUpper(o.Key()) != o.Key() {
		t.Errorf("unexpected key format %q", o.Key())
	}

	o.Set("LastName", "Doe")
	if v, ok := o.Get("LastName"); !ok || v != "Doe" {
		t.Errorf("Get(LastName) = %v, %v", v, ok)
	}

	o.AssignKey("OTHER")
	if o.Key() == "OTHER" {
		t.Error("AssignKey must not replace an existing key")
	}

	clone := NewObjectWithKey(o.Key(), o.Snapshot())
	if !o.Equal(clone) {
		t.Error("objects with same key and attributes should be equal")
	}
	clone.Delete("FirstName")
	if o.Equal(clone) {
		t.Error("objects with different attributes should differ")
	}

	desc, err := o.JSONDescription()
	if err != nil {
		t.Fatalf("JSONDescription failed: %v", err)
	}
	if !strings.Contains(desc, `"LastName": "Doe"`) {
		t.Errorf("JSON description missing attribute: %s", desc)
	}
}
