package update

import (
	"testing"

	"github.com/stretchr/testify/require"

	"monolite/bsonvalue"
)

func TestSetAddsAndReplacesFields(t *testing.T) {
	doc := bsonvalue.DocumentOf([]bsonvalue.Field{
		{Name: "name", Value: bsonvalue.String("ada")},
	})
	spec := bsonvalue.DocumentOf([]bsonvalue.Field{
		{Name: "$set", Value: bsonvalue.DocumentOf([]bsonvalue.Field{
			{Name: "name", Value: bsonvalue.String("grace")},
			{Name: "age", Value: bsonvalue.Int32(40)},
		})},
	})

	out, err := Apply(doc, spec)
	require.NoError(t, err)
	v, _ := out.Get("name")
	require.Equal(t, "grace", v.Str)
	v, _ = out.Get("age")
	require.Equal(t, int32(40), v.Int32)
}

func TestSetNestedPathCreatesIntermediateDocument(t *testing.T) {
	doc := bsonvalue.DocumentOf(nil)
	spec := bsonvalue.DocumentOf([]bsonvalue.Field{
		{Name: "$set", Value: bsonvalue.DocumentOf([]bsonvalue.Field{
			{Name: "address.city", Value: bsonvalue.String("london")},
		})},
	})

	out, err := Apply(doc, spec)
	require.NoError(t, err)
	v, ok := out.GetPath("address.city")
	require.True(t, ok)
	require.Equal(t, "london", v.Str)
}

func TestIncOnMissingFieldStartsFromZero(t *testing.T) {
	doc := bsonvalue.DocumentOf(nil)
	spec := bsonvalue.DocumentOf([]bsonvalue.Field{
		{Name: "$inc", Value: bsonvalue.DocumentOf([]bsonvalue.Field{
			{Name: "score", Value: bsonvalue.Int32(5)},
		})},
	})

	out, err := Apply(doc, spec)
	require.NoError(t, err)
	v, ok := out.Get("score")
	require.True(t, ok)
	require.Equal(t, int32(5), v.Int32)
}

func TestIncAccumulates(t *testing.T) {
	doc := bsonvalue.DocumentOf([]bsonvalue.Field{{Name: "score", Value: bsonvalue.Int32(10)}})
	spec := bsonvalue.DocumentOf([]bsonvalue.Field{
		{Name: "$inc", Value: bsonvalue.DocumentOf([]bsonvalue.Field{
			{Name: "score", Value: bsonvalue.Int32(3)},
		})},
	})

	out, err := Apply(doc, spec)
	require.NoError(t, err)
	v, _ := out.Get("score")
	require.Equal(t, int32(13), v.Int32)
}

func TestUnsupportedOperatorErrors(t *testing.T) {
	doc := bsonvalue.DocumentOf(nil)
	spec := bsonvalue.DocumentOf([]bsonvalue.Field{
		{Name: "$unset", Value: bsonvalue.DocumentOf(nil)},
	})
	_, err := Apply(doc, spec)
	require.Error(t, err)
}
