package main

import (
	"strings"
	"testing"

	"github.com/arkilian/nanostore/internal/query"
)

func TestReadDocuments(t *testing.T) {
	docs, err := readDocuments(strings.NewReader(`[{"name": "John", "age": 42, "score": 1.5, "tags": ["a"]}, {"name": "Jane"}]`))
	if err != nil {
		t.Fatalf("readDocuments failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}
	if v, ok := docs[0]["age"].(int64); !ok || v != 42 {
		t.Errorf("age = %#v, want int64 42", docs[0]["age"])
	}
	if v, ok := docs[0]["score"].(float64); !ok || v != 1.5 {
		t.Errorf("score = %#v, want float64 1.5", docs[0]["score"])
	}

	single, err := readDocuments(strings.NewReader(`{"name": "John"}`))
	if err != nil || len(single) != 1 {
		t.Errorf("single object = (%v, %v)", single, err)
	}

	if _, err := readDocuments(strings.NewReader(`[1, 2]`)); err == nil {
		t.Error("expected error for non-object elements")
	}
	if _, err := readDocuments(strings.NewReader(`"text"`)); err == nil {
		t.Error("expected error for scalar input")
	}
}

func TestParseOperand(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"42", int64(42)},
		{"2.5", 2.5},
		{"Doe", "Doe"},
		{"-3", int64(-3)},
		{"1e3", 1000.0},
		{"null", query.Null},
		{"01234", "01234"},
		{"inf", "inf"},
		{"NaN", "NaN"},
		{`"42"`, "42"},
		{"'null'", "null"},
		{`"`, `"`},
	}
	for _, tt := range tests {
		if got := parseOperand(tt.in); got != tt.want {
			t.Errorf("parseOperand(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestLoadConfigFlagsWin(t *testing.T) {
	t.Setenv("NANOSTORE_STORE_TYPE", "temporary")
	dir := t.TempDir()
	cfg, err := loadConfig("", dir, "", dir+"/x.db")
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Store.Path != dir+"/x.db" || string(cfg.Store.Type) != "persistent" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Backup.Path == "" {
		t.Error("backup path was not resolved")
	}
}

func TestSearchFlagsText(t *testing.T) {
	f := searchFlags{attr: "Zip", value: "01234", match: "equalTo", text: true}
	sr, err := f.search()
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if sr.Value != "01234" {
		t.Errorf("value = %#v, want text 01234", sr.Value)
	}

	f = searchFlags{attr: "Age", value: "42", match: "equalTo"}
	sr, err = f.search()
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if sr.Value != int64(42) {
		t.Errorf("value = %#v, want int64 42", sr.Value)
	}
}
