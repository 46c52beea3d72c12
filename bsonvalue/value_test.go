package bsonvalue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeDocumentRoundTrip(t *testing.T) {
	doc := DocumentOf([]Field{
		{Name: "_id", Value: ObjectIDValue(NewObjectID())},
		{Name: "name", Value: String("ada")},
		{Name: "age", Value: Int32(37)},
		{Name: "active", Value: Bool(true)},
		{Name: "tags", Value: ArrayOf([]Value{String("a"), String("b")})},
		{Name: "address", Value: DocumentOf([]Field{
			{Name: "city", Value: String("london")},
		})},
	})

	encoded := Encode(doc)
	decoded, err := DecodeDocument(encoded)
	require.NoError(t, err)
	require.Equal(t, len(doc.Doc), len(decoded.Doc))
	for i, f := range doc.Doc {
		require.Equal(t, f.Name, decoded.Doc[i].Name)
		require.True(t, Equal(f.Value, decoded.Doc[i].Value), "field %s", f.Name)
	}
}

func TestGetPathResolvesNestedFields(t *testing.T) {
	doc := DocumentOf([]Field{
		{Name: "address", Value: DocumentOf([]Field{
			{Name: "city", Value: String("london")},
		})},
	})
	v, ok := doc.GetPath("address.city")
	require.True(t, ok)
	require.Equal(t, "london", v.Str)

	_, ok = doc.GetPath("address.zip")
	require.False(t, ok)
}

func TestCompareTypeOrder(t *testing.T) {
	ordered := []Value{
		MinKey(),
		Null(),
		Int32(5),
		String("x"),
		DocumentOf(nil),
		ArrayOf(nil),
		Binary(0, []byte{1}),
		ObjectIDValue(NewObjectID()),
		Bool(false),
		DateTime(0),
		Regex("x", ""),
		MaxKey(),
	}
	for i := 0; i < len(ordered)-1; i++ {
		require.Negative(t, Compare(ordered[i], ordered[i+1]), "index %d", i)
	}
}

func TestCompareNumbersAcrossSubtypes(t *testing.T) {
	require.Zero(t, Compare(Int32(5), Int64(5)))
	require.Zero(t, Compare(Int32(5), Double(5.0)))
	require.Negative(t, Compare(Int32(4), Double(5.0)))
}

func TestObjectIDMonotonicCounter(t *testing.T) {
	a := NewObjectID()
	b := NewObjectID()
	require.NotEqual(t, a, b)

	counter := func(id ObjectID) uint32 {
		return uint32(id[9])<<16 | uint32(id[10])<<8 | uint32(id[11])
	}
	require.Equal(t, (counter(a)+1)&0xFFFFFF, counter(b))
}

func TestObjectIDHexRoundTrip(t *testing.T) {
	id := NewObjectID()
	parsed, err := ObjectIDFromHex(id.Hex())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestWithFieldReplacesExistingOrAppends(t *testing.T) {
	doc := DocumentOf([]Field{{Name: "a", Value: Int32(1)}})
	updated := doc.WithField("a", Int32(2))
	v, ok := updated.Get("a")
	require.True(t, ok)
	require.Equal(t, int32(2), v.Int32)

	withB := doc.WithField("b", Int32(3))
	require.Len(t, withB.Doc, 2)
}
