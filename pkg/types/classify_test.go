package types

import (
	"bytes"
	"errors"
	"net/url"
	"testing"
	"time"

	storeerrors "github.com/arkilian/nanostore/internal/errors"
)

func TestClassify(t *testing.T) {
	home, _ := url.Parse("https://example.com/home")
	var nilURL *url.URL

	tests := []struct {
		name  string
		value any
		want  Datatype
	}{
		{"nil", nil, DatatypeNull},
		{"string", "Doe", DatatypeString},
		{"bytes", []byte{0x01, 0x02}, DatatypeData},
		{"time", time.Now(), DatatypeDate},
		{"url", home, DatatypeURL},
		{"nil url", nilURL, DatatypeNull},
		{"int", 42, DatatypeNumber},
		{"uint8", uint8(7), DatatypeNumber},
		{"float32", float32(1.5), DatatypeNumber},
		{"bool", true, DatatypeNumber},
		{"map", map[string]any{"a": 1}, DatatypeMap},
		{"typed map", map[string]string{"a": "b"}, DatatypeMap},
		{"list", []any{1, "x"}, DatatypeList},
		{"typed list", []string{"a", "b"}, DatatypeList},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.value)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("datatype mismatch: got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassify_Unsupported(t *testing.T) {
	unsupported := []any{
		make(chan int),
		func() {},
		struct{ A int }{1},
		map[int]string{1: "a"},
	}
	for _, v := range unsupported {
		_, err := Classify(v)
		if err == nil {
			t.Errorf("expected error for %T", v)
			continue
		}
		if !errors.Is(err, storeerrors.ErrUnsupportedType) {
			t.Errorf("expected UNSUPPORTED_TYPE for %T, got %v", v, err)
		}
	}
}

func TestStorageRoundTrip(t *testing.T) {
	when := time.Date(2024, 3, 9, 14, 30, 15, 250*int(time.Millisecond), time.UTC)
	site, _ := url.Parse("https://example.com/a?b=c")

	tests := []struct {
		name  string
		value any
		dt    Datatype
	}{
		{"text", "John", DatatypeString},
		{"blob", []byte("John"), DatatypeData},
		{"date", when, DatatypeDate},
		{"url", site, DatatypeURL},
		{"int", int64(-12), DatatypeNumber},
		{"float", 3.25, DatatypeNumber},
		{"null", nil, DatatypeNull},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stored, dt, err := ToStorage(tt.value)
			if err != nil {
				t.Fatalf("ToStorage failed: %v", err)
			}
			if dt != tt.dt {
				t.Fatalf("datatype mismatch: got %s, want %s", dt, tt.dt)
			}
			back, err := FromStorage(stored, dt)
			if err != nil {
				t.Fatalf("FromStorage failed: %v", err)
			}
			if !EqualValues(back, tt.value) {
				t.Errorf("round trip mismatch: got %#v, want %#v", back, tt.value)
			}
		})
	}
}

func TestStorage_TagDecidesTextVersusBytes(t *testing.T) {
	asText, err := FromStorage([]byte("abc"), DatatypeString)
	if err != nil {
		t.Fatalf("FromStorage failed: %v", err)
	}
	if _, ok := asText.(string); !ok {
		t.Errorf("TEXT tag should yield string, got %T", asText)
	}

	asBytes, err := FromStorage("abc", DatatypeData)
	if err != nil {
		t.Fatalf("FromStorage failed: %v", err)
	}
	if b, ok := asBytes.([]byte); !ok || !bytes.Equal(b, []byte("abc")) {
		t.Errorf("BLOB tag should yield bytes, got %#v", asBytes)
	}
}

func TestToStorage_Bool(t *testing.T) {
	v, dt, err := ToStorage(true)
	if err != nil {
		t.Fatalf("ToStorage failed: %v", err)
	}
	if dt != DatatypeNumber || v != int64(1) {
		t.Errorf("got (%v, %s), want (1, REAL)", v, dt)
	}
}

func TestToStorage_ContainerRejected(t *testing.T) {
	if _, _, err := ToStorage(map[string]any{}); err == nil {
		t.Error("expected error for container value")
	}
}

func TestDatatypeNames(t *testing.T) {
	for _, dt := range []Datatype{DatatypeUnknown, DatatypeRowUID, DatatypeData, DatatypeString,
		DatatypeDate, DatatypeNumber, DatatypeNull, DatatypeURL, DatatypeMap, DatatypeList} {
		if got := ParseDatatype(dt.String()); got != dt {
			t.Errorf("ParseDatatype(%q) = %s, want %s", dt.String(), got, dt)
		}
	}
	if ParseDatatype("varchar") != DatatypeUnknown {
		t.Error("unknown name should parse to UNKNOWN")
	}
}

func TestFormatDate_Pinned(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	when := time.Date(2010, 7, 1, 2, 3, 4, 5_678_000, loc)
	if got, want := FormatDate(when), "2010-07-01 00:03:04.005"; got != want {
		t.Errorf("FormatDate = %q, want %q", got, want)
	}
}

func TestNormalize(t *testing.T) {
	in := map[string]any{
		"n":    int32(5),
		"tags": []string{"a", "b"},
		"nested": map[string]int{
			"x": 1,
		},
	}
	out, err := Normalize(in)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	m := out.(map[string]any)
	if _, ok := m["n"].(int64); !ok {
		t.Errorf("int32 should normalize to int64, got %T", m["n"])
	}
	if _, ok := m["tags"].([]any); !ok {
		t.Errorf("[]string should normalize to []any, got %T", m["tags"])
	}
	if nested, ok := m["nested"].(map[string]any); !ok || nested["x"] != int64(1) {
		t.Errorf("nested map not normalized: %#v", m["nested"])
	}
}
