package types

import (
	"bytes"
	"fmt"
	"math"
	"net/url"
	"reflect"
	"time"

	storeerrors "github.com/arkilian/nanostore/internal/errors"
)

// DateFormat is the fixed, sortable encoding of dates inside the Values
// relation. Dates are converted to UTC first so lexical order is
// chronological order.
const DateFormat = "2006-01-02 15:04:05.000"

// FormatDate renders t with DateFormat in UTC.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateFormat)
}

// ParseDate parses a value produced by FormatDate.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateFormat, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("types: invalid date %q: %w", s, err)
	}
	return t, nil
}

// Classify returns the datatype of v. It fails with an UNSUPPORTED_TYPE
// configuration error for values outside the document value union.
func Classify(v any) (Datatype, error) {
	switch x := v.(type) {
	case nil:
		return DatatypeNull, nil
	case string:
		return DatatypeString, nil
	case []byte:
		return DatatypeData, nil
	case time.Time:
		return DatatypeDate, nil
	case *time.Time:
		if x == nil {
			return DatatypeNull, nil
		}
		return DatatypeDate, nil
	case *url.URL:
		if x == nil {
			return DatatypeNull, nil
		}
		return DatatypeURL, nil
	case url.URL:
		return DatatypeURL, nil
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return DatatypeNumber, nil
	case map[string]any:
		return DatatypeMap, nil
	case []any:
		return DatatypeList, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			return DatatypeMap, nil
		}
	case reflect.Slice, reflect.Array:
		return DatatypeList, nil
	case reflect.Pointer:
		if rv.IsNil() {
			return DatatypeNull, nil
		}
		return Classify(rv.Elem().Interface())
	}
	return DatatypeUnknown, unsupported(v)
}

// Normalize converts v into the canonical in-memory form used by snapshots:
// integers become int64, floats float64, dates UTC time.Time, locators
// *url.URL, maps map[string]any and lists []any. Decoding a snapshot yields
// exactly this form, so Normalize(v) is what a round trip returns.
func Normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool, int64, float64:
		return x, nil
	case []byte:
		return x, nil
	case time.Time:
		return x.UTC(), nil
	case *time.Time:
		if x == nil {
			return nil, nil
		}
		return x.UTC(), nil
	case *url.URL:
		if x == nil {
			return nil, nil
		}
		return x, nil
	case url.URL:
		u := x
		return &u, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint:
		return normalizeUint(uint64(x)), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return normalizeUint(x), nil
	case float32:
		return float64(x), nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, child := range x {
			n, err := Normalize(child)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, child := range x {
			n, err := Normalize(child)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, unsupported(v)
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			n, err := Normalize(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = n
		}
		return out, nil
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			n, err := Normalize(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return Normalize(rv.Elem().Interface())
	}
	return nil, unsupported(v)
}

func normalizeUint(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}

// ToStorage converts a leaf value into the value bound to the NSFValue
// column together with its datatype. Containers have no storage form.
func ToStorage(v any) (any, Datatype, error) {
	dt, err := Classify(v)
	if err != nil {
		return nil, DatatypeUnknown, err
	}

	switch dt {
	case DatatypeNull:
		return nil, dt, nil
	case DatatypeString:
		return v.(string), dt, nil
	case DatatypeData:
		return v.([]byte), dt, nil
	case DatatypeDate:
		n, _ := Normalize(v)
		return FormatDate(n.(time.Time)), dt, nil
	case DatatypeURL:
		n, _ := Normalize(v)
		return n.(*url.URL).String(), dt, nil
	case DatatypeNumber:
		if b, ok := v.(bool); ok {
			if b {
				return int64(1), dt, nil
			}
			return int64(0), dt, nil
		}
		n, err := Normalize(v)
		if err != nil {
			return nil, DatatypeUnknown, err
		}
		return n, dt, nil
	}
	return nil, DatatypeUnknown, storeerrors.NewConfigurationError(storeerrors.CodeUnsupportedType,
		fmt.Sprintf("%s values have no storage form", dt))
}

// FromStorage converts a value read from the NSFValue column back into its
// in-memory form. The datatype tag alone decides between text and bytes.
func FromStorage(stored any, dt Datatype) (any, error) {
	switch dt {
	case DatatypeNull:
		return nil, nil
	case DatatypeString:
		return asString(stored)
	case DatatypeData:
		switch x := stored.(type) {
		case []byte:
			return x, nil
		case string:
			return []byte(x), nil
		}
	case DatatypeDate:
		s, err := asString(stored)
		if err != nil {
			return nil, err
		}
		return ParseDate(s)
	case DatatypeURL:
		s, err := asString(stored)
		if err != nil {
			return nil, err
		}
		u, err := url.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("types: invalid url %q: %w", s, err)
		}
		return u, nil
	case DatatypeNumber:
		switch x := stored.(type) {
		case int64, float64:
			return x, nil
		case string:
			var f float64
			if _, err := fmt.Sscanf(x, "%g", &f); err != nil {
				return nil, fmt.Errorf("types: invalid number %q: %w", x, err)
			}
			return f, nil
		}
	}
	return nil, storeerrors.NewConfigurationError(storeerrors.CodeUnsupportedType,
		fmt.Sprintf("cannot read %T as %s", stored, dt))
}

func asString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	}
	return "", storeerrors.NewConfigurationError(storeerrors.CodeUnsupportedType,
		fmt.Sprintf("expected text, got %T", v))
}

func unsupported(v any) error {
	return storeerrors.NewConfigurationError(storeerrors.CodeUnsupportedType,
		fmt.Sprintf("unsupported attribute value of type %T", v)).
		WithDetails(map[string]interface{}{"type": fmt.Sprintf("%T", v)})
}

// EqualValues compares two attribute trees structurally. Numbers compare by
// value across kinds, dates with time.Time.Equal and locators by their
// string form.
func EqualValues(a, b any) bool {
	na, errA := Normalize(a)
	nb, errB := Normalize(b)
	if errA != nil || errB != nil {
		return false
	}
	return equalNormalized(na, nb)
}

func equalNormalized(a, b any) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, v := range x {
			w, ok := y[k]
			if !ok || !equalNormalized(v, w) {
				return false
			}
		}
		return true
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !equalNormalized(x[i], y[i]) {
				return false
			}
		}
		return true
	case []byte:
		y, ok := b.([]byte)
		return ok && bytes.Equal(x, y)
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	case *url.URL:
		y, ok := b.(*url.URL)
		return ok && x.String() == y.String()
	case int64:
		switch y := b.(type) {
		case int64:
			return x == y
		case float64:
			return float64(x) == y
		}
		return false
	case float64:
		switch y := b.(type) {
		case float64:
			return x == y || (math.IsNaN(x) && math.IsNaN(y))
		case int64:
			return x == float64(y)
		}
		return false
	}
	return a == b
}
