package filter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"monolite/bsonvalue"
)

func doc() bsonvalue.Value {
	return bsonvalue.DocumentOf([]bsonvalue.Field{
		{Name: "name", Value: bsonvalue.String("ada")},
		{Name: "age", Value: bsonvalue.Int32(37)},
		{Name: "address", Value: bsonvalue.DocumentOf([]bsonvalue.Field{
			{Name: "city", Value: bsonvalue.String("london")},
		})},
	})
}

func TestDirectEqualityMatch(t *testing.T) {
	f := bsonvalue.DocumentOf([]bsonvalue.Field{{Name: "name", Value: bsonvalue.String("ada")}})
	require.True(t, Match(doc(), f))
}

func TestDirectEqualityMismatch(t *testing.T) {
	f := bsonvalue.DocumentOf([]bsonvalue.Field{{Name: "name", Value: bsonvalue.String("grace")}})
	require.False(t, Match(doc(), f))
}

func TestDottedPathMatch(t *testing.T) {
	f := bsonvalue.DocumentOf([]bsonvalue.Field{{Name: "address.city", Value: bsonvalue.String("london")}})
	require.True(t, Match(doc(), f))
}

func TestEqOperator(t *testing.T) {
	f := bsonvalue.DocumentOf([]bsonvalue.Field{
		{Name: "age", Value: bsonvalue.DocumentOf([]bsonvalue.Field{
			{Name: "$eq", Value: bsonvalue.Int32(37)},
		})},
	})
	require.True(t, Match(doc(), f))
}

func TestGtOperator(t *testing.T) {
	f := bsonvalue.DocumentOf([]bsonvalue.Field{
		{Name: "age", Value: bsonvalue.DocumentOf([]bsonvalue.Field{
			{Name: "$gt", Value: bsonvalue.Int32(30)},
		})},
	})
	require.True(t, Match(doc(), f))

	f2 := bsonvalue.DocumentOf([]bsonvalue.Field{
		{Name: "age", Value: bsonvalue.DocumentOf([]bsonvalue.Field{
			{Name: "$gt", Value: bsonvalue.Int32(40)},
		})},
	})
	require.False(t, Match(doc(), f2))
}

func TestExistsOperator(t *testing.T) {
	f := bsonvalue.DocumentOf([]bsonvalue.Field{
		{Name: "missing", Value: bsonvalue.DocumentOf([]bsonvalue.Field{
			{Name: "$exists", Value: bsonvalue.Bool(false)},
		})},
	})
	require.True(t, Match(doc(), f))
}

func TestEmptyFilterMatchesEverything(t *testing.T) {
	require.True(t, Match(doc(), bsonvalue.DocumentOf(nil)))
}
