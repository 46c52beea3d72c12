package bptree

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"monolite/pager"
)

func openTree(t *testing.T, unique bool) *Tree {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mono")
	p, err := pager.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	tree, err := Create(p, unique)
	require.NoError(t, err)
	return tree
}

func TestInsertSearchRoundTrip(t *testing.T) {
	tree := openTree(t, true)
	require.NoError(t, tree.Insert([]byte("alpha"), []byte("1")))
	require.NoError(t, tree.Insert([]byte("beta"), []byte("2")))
	require.NoError(t, tree.Insert([]byte("gamma"), []byte("3")))

	v, ok, err := tree.Search([]byte("beta"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("2"), v)

	_, ok, err = tree.Search([]byte("missing"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUniqueTreeRejectsDuplicate(t *testing.T) {
	tree := openTree(t, true)
	require.NoError(t, tree.Insert([]byte("k"), []byte("v1")))
	err := tree.Insert([]byte("k"), []byte("v2"))
	require.Error(t, err)
}

func TestNonUniqueTreeAllowsDistinctSuffixedKeys(t *testing.T) {
	tree := openTree(t, false)
	require.NoError(t, tree.Insert([]byte("k_1"), []byte("v1")))
	require.NoError(t, tree.Insert([]byte("k_2"), []byte("v2")))

	all, err := tree.All()
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestManyInsertsForceSplitsAndStayOrdered(t *testing.T) {
	tree := openTree(t, true)
	n := 500
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%05d", i))
		require.NoError(t, tree.Insert(key, []byte(fmt.Sprintf("val-%d", i))))
	}
	require.NoError(t, tree.Verify())

	all, err := tree.All()
	require.NoError(t, err)
	require.Len(t, all, n)
	for i := 0; i < n; i++ {
		require.Equal(t, []byte(fmt.Sprintf("key-%05d", i)), all[i].Key)
	}
}

func TestRangeScanBounds(t *testing.T) {
	tree := openTree(t, true)
	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("k%03d", i))
		require.NoError(t, tree.Insert(key, key))
	}

	results, err := tree.RangeScan([]byte("k010"), []byte("k020"), true, false, 0)
	require.NoError(t, err)
	require.Len(t, results, 10)
	require.Equal(t, []byte("k010"), results[0].Key)
	require.Equal(t, []byte("k019"), results[len(results)-1].Key)
}

func TestDeleteRemovesKeyAndRebalances(t *testing.T) {
	tree := openTree(t, true)
	n := 300
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("k-%05d", i))
		require.NoError(t, tree.Insert(key, key))
	}

	for i := 0; i < n; i += 2 {
		key := []byte(fmt.Sprintf("k-%05d", i))
		require.NoError(t, tree.Delete(key))
	}
	require.NoError(t, tree.Verify())

	all, err := tree.All()
	require.NoError(t, err)
	require.Len(t, all, n/2)
	for i := 1; i < n; i += 2 {
		key := []byte(fmt.Sprintf("k-%05d", i))
		_, ok, err := tree.Search(key)
		require.NoError(t, err)
		require.True(t, ok, "key %s should remain", key)
	}
}

func TestDeleteAbsentKeyIsNoOp(t *testing.T) {
	tree := openTree(t, true)
	require.NoError(t, tree.Insert([]byte("a"), []byte("1")))
	require.NoError(t, tree.Delete([]byte("does-not-exist")))
	v, ok, err := tree.Search([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)
}

func TestRandomInsertDeleteKeepsInvariants(t *testing.T) {
	tree := openTree(t, true)
	rng := rand.New(rand.NewSource(42))
	present := map[string]bool{}

	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("rk-%04d", rng.Intn(400))
		if rng.Intn(3) == 0 && present[key] {
			require.NoError(t, tree.Delete([]byte(key)))
			delete(present, key)
		} else {
			err := tree.Insert([]byte(key), []byte(key))
			if present[key] {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				present[key] = true
			}
		}
	}

	require.NoError(t, tree.Verify())
	all, err := tree.All()
	require.NoError(t, err)
	require.Len(t, all, len(present))
}

func TestRejectsOversizedKey(t *testing.T) {
	tree := openTree(t, true)
	big := make([]byte, MaxKeyLen+1)
	err := tree.Insert(big, []byte("v"))
	require.Error(t, err)
}

func TestRejectsOversizedValue(t *testing.T) {
	tree := openTree(t, true)
	big := make([]byte, MaxValueLen+1)
	err := tree.Insert([]byte("k"), big)
	require.Error(t, err)
}

func TestReopenPreservesTree(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.mono")
	p, err := pager.Open(path)
	require.NoError(t, err)

	tree, err := Create(p, true)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		key := []byte(fmt.Sprintf("rk-%04d", i))
		require.NoError(t, tree.Insert(key, key))
	}
	root := tree.RootPageID()
	require.NoError(t, p.Close())

	p2, err := pager.Open(path)
	require.NoError(t, err)
	defer p2.Close()

	tree2 := Open(p2, root, true)
	require.NoError(t, tree2.Verify())
	all, err := tree2.All()
	require.NoError(t, err)
	require.Len(t, all, 100)
}
