package flatten

import (
	"bytes"
	"fmt"
	"net/url"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/arkilian/nanostore/pkg/types"
)

// urlExtID is the msgpack extension type carrying *url.URL values.
const urlExtID int8 = 1

func init() {
	msgpack.RegisterExtEncoder(urlExtID, (*url.URL)(nil), func(_ *msgpack.Encoder, v reflect.Value) ([]byte, error) {
		u := v.Interface().(*url.URL)
		return []byte(u.String()), nil
	})
	msgpack.RegisterExtDecoder(urlExtID, (*url.URL)(nil), func(d *msgpack.Decoder, v reflect.Value, extLen int) error {
		buf := make([]byte, extLen)
		if err := d.ReadFull(buf); err != nil {
			return err
		}
		u, err := url.Parse(string(buf))
		if err != nil {
			return fmt.Errorf("flatten: invalid url in snapshot: %w", err)
		}
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v.Elem().Set(reflect.ValueOf(*u))
		return nil
	})
}

// Encode serializes an attribute tree into a snapshot. The tree is
// normalized first and map keys are written in sorted order, so equal trees
// always produce identical bytes.
func Encode(attrs map[string]any) ([]byte, error) {
	normalized, err := types.Normalize(attrs)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	err = enc.Encode(normalized)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, fmt.Errorf("flatten: encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode deserializes a snapshot produced by Encode. Numbers come back as
// int64 or float64, dates as UTC time.Time and binary values as []byte.
func Decode(snapshot []byte) (map[string]any, error) {
	var r bytes.Reader
	r.Reset(snapshot)
	dec := msgpack.GetDecoder()
	dec.Reset(&r)
	v, err := dec.DecodeInterface()
	msgpack.PutDecoder(dec)
	if err != nil {
		return nil, fmt.Errorf("flatten: decode snapshot: %w", err)
	}
	if v == nil {
		return map[string]any{}, nil
	}

	normalized, err := types.Normalize(v)
	if err != nil {
		return nil, fmt.Errorf("flatten: decode snapshot: %w", err)
	}
	attrs, ok := normalized.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("flatten: snapshot root is %T, not a map", normalized)
	}
	return attrs, nil
}
