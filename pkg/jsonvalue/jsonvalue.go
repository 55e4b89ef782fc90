package jsonvalue

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind identifies the concrete JSON type held by a Value.
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

// Entry is one key/value pair of an Object, in the order it was first seen.
type Entry struct {
	Key   string
	Value *Value
}

// Value is a JSON value that preserves object key insertion order. Number
// is kept as its original decimal text so re-serialization round-trips
// exactly, without any float round-trip concerns.
type Value struct {
	Kind    Kind
	BoolV   bool
	NumberV string
	StringV string
	ArrayV  []*Value
	ObjectV []Entry
}

func NewNull() *Value           { return &Value{Kind: Null} }
func NewBool(b bool) *Value     { return &Value{Kind: Bool, BoolV: b} }
func NewNumber(s string) *Value { return &Value{Kind: Number, NumberV: s} }
func NewString(s string) *Value { return &Value{Kind: String, StringV: s} }
func NewArray(items ...*Value) *Value {
	return &Value{Kind: Array, ArrayV: items}
}
func NewObject() *Value { return &Value{Kind: Object, ObjectV: nil} }

// Set appends key/value if key is new, or updates it in place (keeping its
// original position) if key was already present.
func (v *Value) Set(key string, val *Value) {
	for i := range v.ObjectV {
		if v.ObjectV[i].Key == key {
			v.ObjectV[i].Value = val
			return
		}
	}
	v.ObjectV = append(v.ObjectV, Entry{Key: key, Value: val})
}

// Get looks up a key in an Object value.
func (v *Value) Get(key string) (*Value, bool) {
	if v == nil || v.Kind != Object {
		return nil, false
	}
	for _, e := range v.ObjectV {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// GetString returns the string value of key, if present and a string.
func (v *Value) GetString(key string) (string, bool) {
	sub, ok := v.Get(key)
	if !ok || sub == nil || sub.Kind != String {
		return "", false
	}
	return sub.StringV, true
}

// Len returns the number of elements of an Array value, else 0.
func (v *Value) Len() int {
	if v == nil || v.Kind != Array {
		return 0
	}
	return len(v.ArrayV)
}

// At returns the i-th element of an Array value.
func (v *Value) At(i int) *Value {
	if v == nil || v.Kind != Array || i < 0 || i >= len(v.ArrayV) {
		return nil
	}
	return v.ArrayV[i]
}

// Serialize renders the canonical JSON text of v: insertion-ordered object
// keys, no extraneous whitespace, RFC 8259 string escaping, and HTML
// characters left unescaped (argument values routinely contain '<', '>',
// '&' that must survive untouched).
func (v *Value) Serialize() string {
	var buf bytes.Buffer
	v.writeTo(&buf)
	return buf.String()
}

func (v *Value) writeTo(buf *bytes.Buffer) {
	if v == nil {
		buf.WriteString("null")
		return
	}
	switch v.Kind {
	case Null:
		buf.WriteString("null")
	case Bool:
		if v.BoolV {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Number:
		buf.WriteString(v.NumberV)
	case String:
		writeJSONString(buf, v.StringV)
	case Array:
		buf.WriteByte('[')
		for i, item := range v.ArrayV {
			if i > 0 {
				buf.WriteByte(',')
			}
			item.writeTo(buf)
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, e := range v.ObjectV {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeJSONString(buf, e.Key)
			buf.WriteByte(':')
			e.Value.writeTo(buf)
		}
		buf.WriteByte('}')
	default:
		panic(fmt.Sprintf("jsonvalue: unknown kind %d", v.Kind))
	}
}

// writeJSONString encodes s as an RFC 8259 JSON string without escaping
// HTML-sensitive runes, matching encoding/json's Encoder with
// SetEscapeHTML(false).
func writeJSONString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	// Encoder.Encode appends a trailing newline; trim it back off. It also
	// writes to buf directly so we must snip after the fact.
	start := buf.Len()
	_ = enc.Encode(s)
	b := buf.Bytes()
	// drop trailing '\n'
	end := buf.Len()
	if end > start && b[end-1] == '\n' {
		buf.Truncate(end - 1)
	}
}
