package pager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"monolite/page"
)

func openTemp(t *testing.T) (*Pager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mono")
	p, err := Open(path)
	require.NoError(t, err)
	return p, path
}

func TestNewFileHasOneMetaPage(t *testing.T) {
	p, _ := openTemp(t)
	defer p.Close()
	require.Equal(t, uint32(1), p.PageCount())
}

func TestAllocateExtendsAndPersists(t *testing.T) {
	p, path := openTemp(t)
	pg, err := p.AllocatePage(page.TypeData)
	require.NoError(t, err)
	require.Equal(t, page.ID(1), pg.ID)
	require.Equal(t, uint32(2), p.PageCount())
	require.NoError(t, p.Close())

	p2, err := Open(path)
	require.NoError(t, err)
	defer p2.Close()
	require.Equal(t, uint32(2), p2.PageCount())
}

func TestFreeThenReallocateReusesPage(t *testing.T) {
	p, _ := openTemp(t)
	defer p.Close()

	pg, err := p.AllocatePage(page.TypeData)
	require.NoError(t, err)
	require.NoError(t, p.FreePage(pg.ID))
	require.Equal(t, 1, p.FreePageCount())

	reused, err := p.AllocatePage(page.TypeIndex)
	require.NoError(t, err)
	require.Equal(t, pg.ID, reused.ID)
	require.Equal(t, 0, p.FreePageCount())
}

func TestPersistenceAcrossReopen(t *testing.T) {
	p, path := openTemp(t)
	pg, err := p.AllocatePage(page.TypeData)
	require.NoError(t, err)
	copy(pg.Data[:5], []byte("hello"))
	require.NoError(t, p.WritePage(pg))
	require.NoError(t, p.Flush())
	require.NoError(t, p.Close())

	p2, err := Open(path)
	require.NoError(t, err)
	defer p2.Close()

	got, err := p2.ReadPage(pg.ID)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got.Data[:5])
}

func TestCrashBeforeDataFileWriteIsHealedByReplay(t *testing.T) {
	p, path := openTemp(t)
	pg, err := p.AllocatePage(page.TypeData)
	require.NoError(t, err)
	copy(pg.Data[:4], []byte("abcd"))

	data := pg.Marshal()
	_, err = p.wal.WritePageRecord(pg.ID, data)
	require.NoError(t, err)
	require.NoError(t, p.wal.Sync())
	// Simulate a crash: the data-file write for this page never happens.
	require.NoError(t, p.wal.Close())
	require.NoError(t, p.file.Close())

	p2, err := Open(path)
	require.NoError(t, err)
	defer p2.Close()

	got, err := p2.ReadPage(pg.ID)
	require.NoError(t, err)
	require.Equal(t, []byte("abcd"), got.Data[:4])
}

func TestWALTailCorruptionStillOpens(t *testing.T) {
	p, path := openTemp(t)
	pg, err := p.AllocatePage(page.TypeData)
	require.NoError(t, err)
	require.NoError(t, p.WritePage(pg))
	require.NoError(t, p.wal.Sync())
	require.NoError(t, p.wal.Close())
	require.NoError(t, p.file.Close())

	walPath := path + ".wal"
	f, err := os.OpenFile(walPath, os.O_RDWR, 0644)
	require.NoError(t, err)
	fi, err := f.Stat()
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0, 0, 0, 0}, fi.Size()-4)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	p2, err := Open(path)
	require.NoError(t, err)
	defer p2.Close()
	require.True(t, p2.PageCount() >= 1)
}

func TestCacheEvictsNonDirtyFirst(t *testing.T) {
	p, _ := openTemp(t)
	defer p.Close()
	p.capacity = 2

	a, err := p.AllocatePage(page.TypeData)
	require.NoError(t, err)
	require.NoError(t, p.WritePage(a)) // flushed, not dirty in cache bookkeeping sense beyond this
	p.mu.Lock()
	delete(p.dirty, a.ID)
	p.mu.Unlock()

	b, err := p.AllocatePage(page.TypeData)
	require.NoError(t, err)
	p.mu.Lock()
	delete(p.dirty, b.ID)
	p.mu.Unlock()

	// Cache is now at capacity with a, b both non-dirty. Allocating a third
	// page should evict one of them rather than growing past capacity.
	c, err := p.AllocatePage(page.TypeData)
	require.NoError(t, err)
	p.mu.Lock()
	delete(p.dirty, c.ID)
	cacheLen := len(p.cache)
	p.mu.Unlock()
	require.LessOrEqual(t, cacheLen, p.capacity)
	_ = c
}
