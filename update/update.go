// Package update implements the minimal update-operator application
// Collection Storage's update path drives: $set and $inc, both resolved
// through dotted-path lookup, returning a modified copy of the document.
package update

import (
	"fmt"

	"monolite/bsonvalue"
)

// Apply returns a copy of doc with every operator in spec applied.
// spec is a document of operator name -> {field: value, ...}, e.g.
// {"$set": {"age": 31}, "$inc": {"score": 1}}.
func Apply(doc bsonvalue.Value, spec bsonvalue.Value) (bsonvalue.Value, error) {
	out := doc
	for _, op := range spec.Doc {
		var err error
		switch op.Name {
		case "$set":
			out, err = applySet(out, op.Value)
		case "$inc":
			out, err = applyInc(out, op.Value)
		default:
			return bsonvalue.Value{}, fmt.Errorf("update: unsupported operator %q", op.Name)
		}
		if err != nil {
			return bsonvalue.Value{}, err
		}
	}
	return out, nil
}

func applySet(doc bsonvalue.Value, fields bsonvalue.Value) (bsonvalue.Value, error) {
	out := doc
	for _, f := range fields.Doc {
		var err error
		out, err = setPath(out, f.Name, f.Value)
		if err != nil {
			return bsonvalue.Value{}, err
		}
	}
	return out, nil
}

func applyInc(doc bsonvalue.Value, fields bsonvalue.Value) (bsonvalue.Value, error) {
	out := doc
	for _, f := range fields.Doc {
		current, ok := out.GetPath(f.Name)
		if !ok {
			current = bsonvalue.Int32(0)
		}
		summed, err := addNumeric(current, f.Value)
		if err != nil {
			return bsonvalue.Value{}, fmt.Errorf("update: $inc on %q: %w", f.Name, err)
		}
		out, err = setPath(out, f.Name, summed)
		if err != nil {
			return bsonvalue.Value{}, err
		}
	}
	return out, nil
}

func addNumeric(a, b bsonvalue.Value) (bsonvalue.Value, error) {
	av, aok := asFloat(a)
	bv, bok := asFloat(b)
	if !aok || !bok {
		return bsonvalue.Value{}, fmt.Errorf("non-numeric operand")
	}
	if a.Kind == bsonvalue.KindDouble || b.Kind == bsonvalue.KindDouble {
		return bsonvalue.Double(av + bv), nil
	}
	if a.Kind == bsonvalue.KindInt64 || b.Kind == bsonvalue.KindInt64 {
		return bsonvalue.Int64(int64(av + bv)), nil
	}
	return bsonvalue.Int32(int32(av + bv)), nil
}

func asFloat(v bsonvalue.Value) (float64, bool) {
	switch v.Kind {
	case bsonvalue.KindInt32:
		return float64(v.Int32), true
	case bsonvalue.KindInt64:
		return float64(v.Int64), true
	case bsonvalue.KindDouble:
		return v.Double, true
	default:
		return 0, false
	}
}

// setPath assigns value at a (possibly nested, dot-separated) path
// within doc, creating intermediate documents as needed.
func setPath(doc bsonvalue.Value, path string, value bsonvalue.Value) (bsonvalue.Value, error) {
	dot := -1
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			dot = i
			break
		}
	}
	if dot < 0 {
		return doc.WithField(path, value), nil
	}

	head, rest := path[:dot], path[dot+1:]
	child, ok := doc.Get(head)
	if !ok {
		child = bsonvalue.DocumentOf(nil)
	}
	if child.Kind != bsonvalue.KindDocument {
		return bsonvalue.Value{}, fmt.Errorf("update: cannot descend into non-document field %q", head)
	}
	updatedChild, err := setPath(child, rest, value)
	if err != nil {
		return bsonvalue.Value{}, err
	}
	return doc.WithField(head, updatedChild), nil
}
