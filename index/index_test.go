package index

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"monolite/bsonvalue"
	"monolite/catalog"
	"monolite/pager"
)

func openPager(t *testing.T) *pager.Pager {
	t.Helper()
	p, err := pager.Open(filepath.Join(t.TempDir(), "test.mono"))
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func newManager(t *testing.T, p *pager.Pager) *Manager {
	t.Helper()
	idTree, err := CreateIDIndex(p)
	require.NoError(t, err)
	meta := &catalog.CollectionMeta{IDIndexRootPageID: idTree.RootPageID()}
	return Open(p, meta)
}

func TestInsertAndFindByID(t *testing.T) {
	p := openPager(t)
	m := newManager(t, p)

	id := bsonvalue.ObjectIDValue(bsonvalue.NewObjectID())
	doc := bsonvalue.DocumentOf([]bsonvalue.Field{{Name: "_id", Value: id}})

	_, err := m.InsertDocument(doc, id)
	require.NoError(t, err)

	key := encodeKey(doc, m.specs["_id"], id)
	_, ok, err := m.trees["_id"].Search(key)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDuplicateIDRejected(t *testing.T) {
	p := openPager(t)
	m := newManager(t, p)

	id := bsonvalue.ObjectIDValue(bsonvalue.NewObjectID())
	doc := bsonvalue.DocumentOf([]bsonvalue.Field{{Name: "_id", Value: id}})

	_, err := m.InsertDocument(doc, id)
	require.NoError(t, err)
	_, err = m.InsertDocument(doc, id)
	require.Error(t, err)
}

func TestSecondaryUniqueIndexEnforced(t *testing.T) {
	p := openPager(t)
	m := newManager(t, p)

	root, err := m.CreateIndex(catalog.IndexMeta{Name: "by_email", Keys: []string{"email"}, Unique: true})
	require.NoError(t, err)
	require.NotZero(t, root)

	id1 := bsonvalue.ObjectIDValue(bsonvalue.NewObjectID())
	doc1 := bsonvalue.DocumentOf([]bsonvalue.Field{
		{Name: "_id", Value: id1},
		{Name: "email", Value: bsonvalue.String("a@example.com")},
	})
	_, err = m.InsertDocument(doc1, id1)
	require.NoError(t, err)

	id2 := bsonvalue.ObjectIDValue(bsonvalue.NewObjectID())
	doc2 := bsonvalue.DocumentOf([]bsonvalue.Field{
		{Name: "_id", Value: id2},
		{Name: "email", Value: bsonvalue.String("a@example.com")},
	})
	_, err = m.InsertDocument(doc2, id2)
	require.Error(t, err)
}

func TestNonUniqueIndexAllowsDuplicateValues(t *testing.T) {
	p := openPager(t)
	m := newManager(t, p)

	_, err := m.CreateIndex(catalog.IndexMeta{Name: "by_tag", Keys: []string{"tag"}, Unique: false})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		id := bsonvalue.ObjectIDValue(bsonvalue.NewObjectID())
		doc := bsonvalue.DocumentOf([]bsonvalue.Field{
			{Name: "_id", Value: id},
			{Name: "tag", Value: bsonvalue.String("shared")},
		})
		_, err := m.InsertDocument(doc, id)
		require.NoError(t, err)
	}

	all, err := m.trees["by_tag"].All()
	require.NoError(t, err)
	require.Len(t, all, 5)
}

func TestRemoveDocumentDeletesAllEntries(t *testing.T) {
	p := openPager(t)
	m := newManager(t, p)
	_, err := m.CreateIndex(catalog.IndexMeta{Name: "by_email", Keys: []string{"email"}, Unique: true})
	require.NoError(t, err)

	id := bsonvalue.ObjectIDValue(bsonvalue.NewObjectID())
	doc := bsonvalue.DocumentOf([]bsonvalue.Field{
		{Name: "_id", Value: id},
		{Name: "email", Value: bsonvalue.String("a@example.com")},
	})
	_, err = m.InsertDocument(doc, id)
	require.NoError(t, err)

	require.NoError(t, m.RemoveDocument(doc, id))

	all, err := m.trees["_id"].All()
	require.NoError(t, err)
	require.Empty(t, all)
	all, err = m.trees["by_email"].All()
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestReplaceDocumentUpdatesIndexEntries(t *testing.T) {
	p := openPager(t)
	m := newManager(t, p)
	_, err := m.CreateIndex(catalog.IndexMeta{Name: "by_email", Keys: []string{"email"}, Unique: true})
	require.NoError(t, err)

	id := bsonvalue.ObjectIDValue(bsonvalue.NewObjectID())
	oldDoc := bsonvalue.DocumentOf([]bsonvalue.Field{
		{Name: "_id", Value: id},
		{Name: "email", Value: bsonvalue.String("old@example.com")},
	})
	_, err = m.InsertDocument(oldDoc, id)
	require.NoError(t, err)

	newDoc := bsonvalue.DocumentOf([]bsonvalue.Field{
		{Name: "_id", Value: id},
		{Name: "email", Value: bsonvalue.String("new@example.com")},
	})
	require.NoError(t, m.ReplaceDocument(oldDoc, newDoc, id))

	oldKey := encodeKey(oldDoc, m.specs["by_email"], id)
	_, ok, err := m.trees["by_email"].Search(oldKey)
	require.NoError(t, err)
	require.False(t, ok)

	newKey := encodeKey(newDoc, m.specs["by_email"], id)
	_, ok, err = m.trees["by_email"].Search(newKey)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRollbackRemovesOnlyCommittedIndexes(t *testing.T) {
	p := openPager(t)
	m := newManager(t, p)
	_, err := m.CreateIndex(catalog.IndexMeta{Name: "by_email", Keys: []string{"email"}, Unique: true})
	require.NoError(t, err)

	id1 := bsonvalue.ObjectIDValue(bsonvalue.NewObjectID())
	doc1 := bsonvalue.DocumentOf([]bsonvalue.Field{
		{Name: "_id", Value: id1},
		{Name: "email", Value: bsonvalue.String("dup@example.com")},
	})
	_, err = m.InsertDocument(doc1, id1)
	require.NoError(t, err)

	id2 := bsonvalue.ObjectIDValue(bsonvalue.NewObjectID())
	doc2 := bsonvalue.DocumentOf([]bsonvalue.Field{
		{Name: "_id", Value: id2},
		{Name: "email", Value: bsonvalue.String("dup@example.com")},
	})
	committed, err := m.InsertDocument(doc2, id2)
	require.Error(t, err)
	require.Equal(t, []string{"_id"}, committed)

	require.NoError(t, m.RemoveEntriesFor(doc2, id2, committed))

	all, err := m.trees["_id"].All()
	require.NoError(t, err)
	require.Len(t, all, 1)
}
