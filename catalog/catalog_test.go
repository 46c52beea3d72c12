package catalog

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"monolite/page"
	"monolite/pager"
)

func openTemp(t *testing.T) *pager.Pager {
	t.Helper()
	p, err := pager.Open(filepath.Join(t.TempDir(), "test.mono"))
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestEmptyDatabaseHasNoCollections(t *testing.T) {
	p := openTemp(t)
	c, err := Load(p)
	require.NoError(t, err)
	require.Empty(t, c.Collections)
}

func TestSaveLoadSingleCollectionRoundTrip(t *testing.T) {
	p := openTemp(t)
	c, err := Load(p)
	require.NoError(t, err)

	c.UpsertCollection(CollectionMeta{
		Name:          "users",
		FirstPageID:   1,
		LastPageID:    3,
		DocumentCount: 42,
		Indexes: []IndexMeta{
			{Name: "by_email", Keys: []string{"email"}, Unique: true, RootPageID: 7},
		},
	})
	require.NoError(t, c.Save())

	reloaded, err := Load(p)
	require.NoError(t, err)
	require.Len(t, reloaded.Collections, 1)
	got, ok := reloaded.FindCollection("users")
	require.True(t, ok)
	require.Equal(t, uint64(42), got.DocumentCount)
	require.Len(t, got.Indexes, 1)
	require.Equal(t, "by_email", got.Indexes[0].Name)
	require.True(t, got.Indexes[0].Unique)
}

func TestDropCollectionRemovesIt(t *testing.T) {
	p := openTemp(t)
	c, err := Load(p)
	require.NoError(t, err)
	c.UpsertCollection(CollectionMeta{Name: "temp"})
	require.NoError(t, c.Save())

	require.True(t, c.DropCollection("temp"))
	require.NoError(t, c.Save())

	reloaded, err := Load(p)
	require.NoError(t, err)
	require.Empty(t, reloaded.Collections)
}

// TestManyCollectionsForceMultiPageChain exercises S6: 200 collections
// each with 5 indexes overflow a single page and must span a chain;
// reopening recovers every name, key, and root page id identically.
func TestManyCollectionsForceMultiPageChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.mono")
	p, err := pager.Open(path)
	require.NoError(t, err)

	c, err := Load(p)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		var indexes []IndexMeta
		for j := 0; j < 5; j++ {
			indexes = append(indexes, IndexMeta{
				Name:       fmt.Sprintf("idx_%d_%d", i, j),
				Keys:       []string{fmt.Sprintf("field_%d", j)},
				Unique:     j == 0,
				RootPageID: page.ID(i*10 + j),
			})
		}
		c.UpsertCollection(CollectionMeta{
			Name:          fmt.Sprintf("collection_%03d", i),
			FirstPageID:   page.ID(i),
			LastPageID:    page.ID(i + 1),
			DocumentCount: uint64(i),
			Indexes:       indexes,
		})
	}
	require.NoError(t, c.Save())
	require.NoError(t, p.Close())

	p2, err := pager.Open(path)
	require.NoError(t, err)
	defer p2.Close()

	reloaded, err := Load(p2)
	require.NoError(t, err)
	require.Len(t, reloaded.Collections, 200)

	for i := 0; i < 200; i++ {
		name := fmt.Sprintf("collection_%03d", i)
		got, ok := reloaded.FindCollection(name)
		require.True(t, ok, "missing %s", name)
		require.Equal(t, uint64(i), got.DocumentCount)
		require.Len(t, got.Indexes, 5)
		for j, idx := range got.Indexes {
			require.Equal(t, fmt.Sprintf("idx_%d_%d", i, j), idx.Name)
			require.Equal(t, page.ID(i*10+j), idx.RootPageID)
		}
	}
}
