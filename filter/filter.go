// Package filter implements the minimal query-filter matcher the
// Collection Storage layer drives find/update/delete with: direct field
// equality and the $eq, $ne, $gt, $gte, $lt, $lte and $exists operators,
// all resolved through dotted-path lookup.
package filter

import "monolite/bsonvalue"

// Filter is a document of field name -> expected value or operator
// document, e.g. {"age": 30} or {"age": {"$eq": 30}}.
type Filter = bsonvalue.Value

// Match reports whether doc satisfies every field constraint in f. An
// empty filter matches everything.
func Match(doc bsonvalue.Value, f Filter) bool {
	for _, clause := range f.Doc {
		actual, ok := doc.GetPath(clause.Name)
		if !matchClause(actual, ok, clause.Value) {
			return false
		}
	}
	return true
}

// matchClause evaluates one field's constraint, which is either a bare
// value (direct equality) or an operator document like {"$eq": value}.
func matchClause(actual bsonvalue.Value, present bool, expected bsonvalue.Value) bool {
	if expected.Kind == bsonvalue.KindDocument && isOperatorDocument(expected) {
		for _, op := range expected.Doc {
			if !evalOperator(op.Name, actual, present, op.Value) {
				return false
			}
		}
		return true
	}
	if !present {
		return expected.Kind == bsonvalue.KindNull
	}
	return bsonvalue.Equal(actual, expected)
}

func isOperatorDocument(v bsonvalue.Value) bool {
	if len(v.Doc) == 0 {
		return false
	}
	for _, f := range v.Doc {
		if len(f.Name) == 0 || f.Name[0] != '$' {
			return false
		}
	}
	return true
}

func evalOperator(op string, actual bsonvalue.Value, present bool, operand bsonvalue.Value) bool {
	switch op {
	case "$eq":
		if !present {
			return operand.Kind == bsonvalue.KindNull
		}
		return bsonvalue.Equal(actual, operand)
	case "$ne":
		if !present {
			return operand.Kind != bsonvalue.KindNull
		}
		return !bsonvalue.Equal(actual, operand)
	case "$gt":
		return present && bsonvalue.Compare(actual, operand) > 0
	case "$gte":
		return present && bsonvalue.Compare(actual, operand) >= 0
	case "$lt":
		return present && bsonvalue.Compare(actual, operand) < 0
	case "$lte":
		return present && bsonvalue.Compare(actual, operand) <= 0
	case "$exists":
		want := operand.Kind == bsonvalue.KindBool && operand.Bool
		return present == want
	default:
		return false
	}
}
