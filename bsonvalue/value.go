// Package bsonvalue implements the document value model the rest of the
// engine treats as an external collaborator: a small BSON-like tagged
// union, a deterministic length-prefixed codec, a total-order comparator,
// and ObjectID generation.
package bsonvalue

import (
	"fmt"
)

// Kind tags a Value's variant.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt32
	KindInt64
	KindDouble
	KindString
	KindBinary
	KindObjectID
	KindDateTime
	KindTimestamp
	KindRegex
	KindMinKey
	KindMaxKey
	KindArray
	KindDocument
)

// Field is one name/value pair within a Document, kept in a slice
// rather than a map so insertion order survives encode/decode round
// trips — catalog stability depends on this.
type Field struct {
	Name  string
	Value Value
}

// Value is the tagged union every stored document field and index key
// projection is built from.
type Value struct {
	Kind Kind

	Bool      bool
	Int32     int32
	Int64     int64
	Double    float64
	Str       string
	BinSubtype byte
	Bin       []byte
	OID       ObjectID
	DateTime  int64  // milliseconds since epoch
	TimeT     uint32 // timestamp seconds
	TimeI     uint32 // timestamp increment
	RegexPat  string
	RegexOpts string
	Array     []Value
	Doc       []Field
}

func Null() Value                 { return Value{Kind: KindNull} }
func Bool(b bool) Value            { return Value{Kind: KindBool, Bool: b} }
func Int32(v int32) Value          { return Value{Kind: KindInt32, Int32: v} }
func Int64(v int64) Value          { return Value{Kind: KindInt64, Int64: v} }
func Double(v float64) Value       { return Value{Kind: KindDouble, Double: v} }
func String(s string) Value        { return Value{Kind: KindString, Str: s} }
func Binary(subtype byte, b []byte) Value {
	return Value{Kind: KindBinary, BinSubtype: subtype, Bin: b}
}
func ObjectIDValue(id ObjectID) Value { return Value{Kind: KindObjectID, OID: id} }
func DateTime(ms int64) Value         { return Value{Kind: KindDateTime, DateTime: ms} }
func Timestamp(t, i uint32) Value     { return Value{Kind: KindTimestamp, TimeT: t, TimeI: i} }
func Regex(pattern, opts string) Value {
	return Value{Kind: KindRegex, RegexPat: pattern, RegexOpts: opts}
}
func MinKey() Value           { return Value{Kind: KindMinKey} }
func MaxKey() Value           { return Value{Kind: KindMaxKey} }
func ArrayOf(vs []Value) Value { return Value{Kind: KindArray, Array: vs} }
func DocumentOf(fields []Field) Value {
	return Value{Kind: KindDocument, Doc: fields}
}

// Get returns the value of the named top-level field and whether it
// was present. v must be a Document.
func (v Value) Get(name string) (Value, bool) {
	for _, f := range v.Doc {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// GetPath resolves a dot-separated path ("a.b.c") through nested
// documents, used by the filter matcher and the index key projector.
func (v Value) GetPath(path string) (Value, bool) {
	cur := v
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '.' {
			segment := path[start:i]
			next, ok := cur.Get(segment)
			if !ok {
				return Value{}, false
			}
			cur = next
			start = i + 1
		}
	}
	return cur, true
}

// WithField returns a copy of the document with name set to value,
// appending a new field if name was not already present.
func (v Value) WithField(name string, value Value) Value {
	out := make([]Field, 0, len(v.Doc)+1)
	replaced := false
	for _, f := range v.Doc {
		if f.Name == name {
			out = append(out, Field{Name: name, Value: value})
			replaced = true
			continue
		}
		out = append(out, f)
	}
	if !replaced {
		out = append(out, Field{Name: name, Value: value})
	}
	return Value{Kind: KindDocument, Doc: out}
}

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%v", v.Bool)
	case KindInt32:
		return fmt.Sprintf("%d", v.Int32)
	case KindInt64:
		return fmt.Sprintf("%d", v.Int64)
	case KindDouble:
		return fmt.Sprintf("%g", v.Double)
	case KindString:
		return v.Str
	case KindObjectID:
		return v.OID.Hex()
	case KindDocument:
		return fmt.Sprintf("Document(%d fields)", len(v.Doc))
	case KindArray:
		return fmt.Sprintf("Array(%d elements)", len(v.Array))
	default:
		return fmt.Sprintf("Value(kind=%d)", v.Kind)
	}
}
