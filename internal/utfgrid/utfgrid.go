// Package utfgrid reads and writes UTFGrid interactivity documents.
package utfgrid

import (
	"bytes"
	"encoding/json"
	"io"
	"reflect"
	"regexp"

	"github.com/klauspost/compress/zlib"
	"github.com/zeebo/errs"
)

// GridFormatError malformed JSONP/JSON or conflicting grid data
var GridFormatError = errs.Class("grid format")

// Reserved top-level fields of a UTFGrid document.
const (
	FieldGrid = "grid"
	FieldKeys = "keys"
	FieldData = "data"
)

var (
	callbackRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$.]*$`)
	jsonpRe    = regexp.MustCompile(`(?s)^\s*([A-Za-z_$][A-Za-z0-9_$.]*)\s*\((.*)\)\s*;?\s*$`)
)

// unwrapped reports whether callback asks for raw JSON: empty, "false" or
// "null".
func unwrapped(callback string) bool {
	switch callback {
	case "", "false", "null":
		return true
	}
	return false
}

// ValidCallback reports whether name can be used as a JSONP callback.
func ValidCallback(name string) bool {
	return name == "" || callbackRe.MatchString(name)
}

// Decode unwraps a grid file. With an empty, "false" or "null" callback the
// content must be raw JSON, otherwise it must be wrapped as callback(<json>);
// with the same name.
func Decode(b []byte, callback string) (map[string]interface{}, error) {
	payload := b
	if !unwrapped(callback) {
		m := jsonpRe.FindSubmatch(b)
		if m == nil {
			return nil, GridFormatError.New("missing %s(...) wrapper", callback)
		}
		if string(m[1]) != callback {
			return nil, GridFormatError.New("callback %q does not match %q", m[1], callback)
		}
		payload = m[2]
	}

	var doc map[string]interface{}
	if err := unmarshal(payload, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, GridFormatError.New("grid is not an object")
	}
	return doc, nil
}

// DecodeValue decodes a single JSON value, keeping numbers exact.
func DecodeValue(b []byte) (interface{}, error) {
	var v interface{}
	if err := unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// unmarshal decodes exactly one JSON value into v. Numbers stay json.Number
// so integers beyond 2^53 survive a round trip.
func unmarshal(b []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return GridFormatError.Wrap(err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return GridFormatError.New("trailing content after JSON value")
	}
	return nil
}

// Encode serializes doc, wrapped in callback(...); unless callback is empty,
// "false" or "null".
func Encode(doc map[string]interface{}, callback string) ([]byte, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, GridFormatError.Wrap(err)
	}
	if unwrapped(callback) {
		return b, nil
	}
	var buf bytes.Buffer
	buf.Grow(len(b) + len(callback) + 3)
	buf.WriteString(callback)
	buf.WriteByte('(')
	buf.Write(b)
	buf.WriteString(");")
	return buf.Bytes(), nil
}

// Split removes the data field from doc and returns it separately. doc is
// not modified.
func Split(doc map[string]interface{}) (map[string]interface{}, map[string]interface{}, error) {
	grid := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		grid[k] = v
	}
	raw, ok := grid[FieldData]
	if !ok || raw == nil {
		delete(grid, FieldData)
		return grid, nil, nil
	}
	data, ok := raw.(map[string]interface{})
	if !ok {
		return nil, nil, GridFormatError.New("%s is not an object", FieldData)
	}
	delete(grid, FieldData)
	return grid, data, nil
}

// Merge adds overlay entries to the data field of doc. The grid and keys
// fields are never touched; an overlay entry that disagrees with one already
// in data is an error.
func Merge(doc map[string]interface{}, overlay map[string]interface{}) error {
	if len(overlay) == 0 {
		return nil
	}
	data := map[string]interface{}{}
	if raw, ok := doc[FieldData]; ok && raw != nil {
		existing, ok := raw.(map[string]interface{})
		if !ok {
			return GridFormatError.New("%s is not an object", FieldData)
		}
		data = existing
	}
	for k, v := range overlay {
		if old, ok := data[k]; ok && !equalJSON(old, v) {
			return GridFormatError.New("data key %q collides with existing value", k)
		}
	}
	for k, v := range overlay {
		data[k] = v
	}
	doc[FieldData] = data
	return nil
}

// Keys returns the non-empty string entries of the keys field.
func Keys(doc map[string]interface{}) []string {
	raw, _ := doc[FieldKeys].([]interface{})
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		if s, ok := k.(string); ok && s != "" {
			keys = append(keys, s)
		}
	}
	return keys
}

// Compress serializes and zlib-compresses a grid for storage.
func Compress(grid map[string]interface{}) ([]byte, error) {
	b, err := json.Marshal(grid)
	if err != nil {
		return nil, GridFormatError.Wrap(err)
	}
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(b); err != nil {
		return nil, errs.Wrap(err)
	}
	if err := zw.Close(); err != nil {
		return nil, errs.Wrap(err)
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(blob []byte) (map[string]interface{}, error) {
	zr, err := zlib.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, GridFormatError.Wrap(err)
	}
	defer func() { _ = zr.Close() }()
	b, err := io.ReadAll(zr)
	if err != nil {
		return nil, GridFormatError.Wrap(err)
	}
	return Decode(b, "")
}

func equalJSON(a, b interface{}) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	var av, bv interface{}
	if unmarshal(ab, &av) != nil || unmarshal(bb, &bv) != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}
