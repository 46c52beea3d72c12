package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"monolite/bsonvalue"
	"monolite/catalog"
)

func TestCollectionIsCreatedOnFirstReference(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.mono"))
	require.NoError(t, err)
	defer db.Close()

	require.Empty(t, db.CollectionNames())

	c, err := db.Collection("widgets")
	require.NoError(t, err)
	require.NotNil(t, c)
	require.Equal(t, []string{"widgets"}, db.CollectionNames())

	// A second reference returns the same open handle, not a fresh one.
	again, err := db.Collection("widgets")
	require.NoError(t, err)
	require.Same(t, c, again)
}

// TestDataSurvivesReopen exercises S1/S6 end to end: documents inserted
// into two collections, one with a secondary index, are all present
// after closing and reopening the file.
func TestDataSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.mono")
	db, err := Open(path)
	require.NoError(t, err)

	users, err := db.Collection("users")
	require.NoError(t, err)
	require.NoError(t, users.CreateIndex(catalog.IndexMeta{Name: "by_email", Keys: []string{"email"}, Unique: true}))
	_, err = users.Insert([]bsonvalue.Value{
		bsonvalue.DocumentOf([]bsonvalue.Field{{Name: "email", Value: bsonvalue.String("a@example.com")}}),
	})
	require.NoError(t, err)

	orders, err := db.Collection("orders")
	require.NoError(t, err)
	_, err = orders.Insert([]bsonvalue.Value{
		bsonvalue.DocumentOf([]bsonvalue.Field{{Name: "total", Value: bsonvalue.Int32(42)}}),
	})
	require.NoError(t, err)

	require.NoError(t, db.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	require.ElementsMatch(t, []string{"users", "orders"}, reopened.CollectionNames())

	users2, err := reopened.Collection("users")
	require.NoError(t, err)
	require.EqualValues(t, 1, users2.Count())

	// The secondary unique index must still reject the original value.
	_, err = users2.Insert([]bsonvalue.Value{
		bsonvalue.DocumentOf([]bsonvalue.Field{{Name: "email", Value: bsonvalue.String("a@example.com")}}),
	})
	require.Error(t, err)

	orders2, err := reopened.Collection("orders")
	require.NoError(t, err)
	require.EqualValues(t, 1, orders2.Count())
}

func TestDropCollectionRemovesItFromCatalog(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.mono"))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Collection("temp")
	require.NoError(t, err)

	dropped, err := db.DropCollection("temp")
	require.NoError(t, err)
	require.True(t, dropped)
	require.Empty(t, db.CollectionNames())

	dropped, err = db.DropCollection("temp")
	require.NoError(t, err)
	require.False(t, dropped)
}
