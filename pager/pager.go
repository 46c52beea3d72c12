// Package pager owns the single data file: the file header, the
// in-memory free-list mirror, a bounded page cache, and the WAL-first
// discipline that makes every mutation crash-safe.
package pager

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"monolite/monoerr"
	"monolite/monolog"
	"monolite/page"
	"monolite/wal"
)

// DefaultCacheCapacity is the default number of pages the read cache holds.
const DefaultCacheCapacity = 1000

// Pager is the single owner of the database file handle.
type Pager struct {
	mu sync.Mutex

	file   *os.File
	path   string
	header *FileHeader
	wal    *wal.WAL

	cache    map[page.ID]*page.Page
	cacheLRU []page.ID // oldest first; admission/eviction order
	dirty    map[page.ID]bool
	pageLSN  map[page.ID]wal.LSN

	freeList []page.ID
	capacity int
}

// Open opens an existing database file or creates a new one, replaying
// any pending WAL records first.
func Open(path string) (*Pager, error) {
	exists := true
	if _, err := os.Stat(path); os.IsNotExist(err) {
		exists = false
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("pager: open %s: %w", path, err)
	}
	if err := lockExclusive(f); err != nil {
		f.Close()
		return nil, err
	}

	p := &Pager{
		file:     f,
		path:     path,
		cache:    make(map[page.ID]*page.Page),
		dirty:    make(map[page.ID]bool),
		pageLSN:  make(map[page.ID]wal.LSN),
		capacity: DefaultCacheCapacity,
	}

	if exists {
		if err := p.readHeader(); err != nil {
			unlock(f)
			f.Close()
			return nil, err
		}
	} else {
		if err := p.initNewFile(); err != nil {
			unlock(f)
			f.Close()
			return nil, err
		}
	}

	w, err := wal.Open(wal.PathFor(path))
	if err != nil {
		unlock(f)
		f.Close()
		return nil, fmt.Errorf("pager: open wal: %w", err)
	}
	p.wal = w

	if exists {
		if err := p.recover(); err != nil {
			w.Close()
			unlock(f)
			f.Close()
			return nil, fmt.Errorf("pager: recover: %w", err)
		}
	}

	if err := p.loadFreeList(); err != nil {
		w.Close()
		unlock(f)
		f.Close()
		return nil, err
	}

	return p, nil
}

func nowMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}

func (p *Pager) initNewFile() error {
	now := nowMillis()
	p.header = &FileHeader{
		Magic:      Magic,
		Version:    FormatVersion,
		PageSize:   page.Size,
		PageCount:  1,
		CreateTime: now,
		ModifyTime: now,
	}
	if err := p.writeHeaderLocked(); err != nil {
		return err
	}

	meta := page.New(0, page.TypeMeta)
	if _, err := p.file.WriteAt(meta.Marshal(), p.pageOffset(0)); err != nil {
		return fmt.Errorf("pager: write initial meta page: %w", err)
	}
	p.header.MetaPageID = 0
	return p.writeHeaderLocked()
}

func (p *Pager) readHeader() error {
	buf := make([]byte, HeaderSize)
	if _, err := p.file.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("pager: read header: %w", err)
	}
	h, err := unmarshalHeader(buf)
	if err != nil {
		return err
	}
	p.header = h
	return nil
}

func (p *Pager) writeHeaderLocked() error {
	if _, err := p.file.WriteAt(p.header.marshal(), 0); err != nil {
		return fmt.Errorf("pager: write header: %w", err)
	}
	return nil
}

func (p *Pager) pageOffset(id page.ID) int64 {
	return int64(HeaderSize) + int64(id)*int64(page.Size)
}

// loadFreeList walks the on-disk free-page chain starting at the
// header's free-list head, following each page's NextPageID link.
func (p *Pager) loadFreeList() error {
	p.freeList = nil
	id := p.header.FreeListHead
	for id != 0 {
		pg, err := p.readPageFromDisk(id)
		if err != nil {
			return err
		}
		p.freeList = append(p.freeList, id)
		id = pg.NextPageID
	}
	return nil
}

func (p *Pager) readPageFromDisk(id page.ID) (*page.Page, error) {
	buf := make([]byte, page.Size)
	if _, err := p.file.ReadAt(buf, p.pageOffset(id)); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: page %d does not exist", monoerr.ErrNotFound, id)
		}
		return nil, fmt.Errorf("pager: read page %d: %w", id, err)
	}
	return page.Unmarshal(buf)
}

// ReadPage returns the page with the given id, serving from cache when
// possible.
func (p *Pager) ReadPage(id page.ID) (*page.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readPageLocked(id)
}

func (p *Pager) readPageLocked(id page.ID) (*page.Page, error) {
	if pg, ok := p.cache[id]; ok {
		p.touch(id)
		return pg, nil
	}

	pg, err := p.readPageFromDisk(id)
	if err != nil {
		return nil, err
	}
	p.admit(pg)
	return pg, nil
}

// touch moves id to the most-recently-used end of the eviction order.
func (p *Pager) touch(id page.ID) {
	for i, cur := range p.cacheLRU {
		if cur == id {
			p.cacheLRU = append(p.cacheLRU[:i], p.cacheLRU[i+1:]...)
			break
		}
	}
	p.cacheLRU = append(p.cacheLRU, id)
}

// admit adds pg to the cache, evicting the first non-dirty entry found
// (in LRU order) if the cache is full. If every cached page is dirty,
// admission proceeds without eviction, per the cache's read-accelerator
// contract — correctness lives in the WAL, not the cache.
func (p *Pager) admit(pg *page.Page) {
	if _, exists := p.cache[pg.ID]; !exists && len(p.cache) >= p.capacity {
		for i, id := range p.cacheLRU {
			if !p.dirty[id] {
				delete(p.cache, id)
				p.cacheLRU = append(p.cacheLRU[:i], p.cacheLRU[i+1:]...)
				break
			}
		}
	}
	p.cache[pg.ID] = pg
	p.touch(pg.ID)
}

// AllocatePage allocates a page, preferring the free-list head and
// extending the file otherwise. It follows WAL-ahead discipline: the
// alloc and meta-update WAL records are written and synced before any
// in-memory or on-disk state changes.
func (p *Pager) AllocatePage(typ page.Type) (*page.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fromFreeList := len(p.freeList) > 0

	var id page.ID
	var oldFreeListHead, newFreeListHead page.ID
	var oldPageCount, newPageCount uint32

	if fromFreeList {
		id = p.freeList[0]
		freed, err := p.readPageLocked(id)
		if err != nil {
			return nil, err
		}
		oldFreeListHead = p.header.FreeListHead
		newFreeListHead = freed.NextPageID
	} else {
		id = page.ID(p.header.PageCount)
		oldPageCount = p.header.PageCount
		newPageCount = p.header.PageCount + 1
	}

	if _, err := p.wal.WriteAllocRecord(id, typ); err != nil {
		return nil, err
	}
	if fromFreeList {
		if _, err := p.wal.WriteMetaRecord(wal.MetaFreeListHead, uint32(oldFreeListHead), uint32(newFreeListHead)); err != nil {
			return nil, err
		}
	} else {
		if _, err := p.wal.WriteMetaRecord(wal.MetaPageCount, oldPageCount, newPageCount); err != nil {
			return nil, err
		}
	}
	if err := p.wal.Sync(); err != nil {
		return nil, err
	}

	newPage := page.New(id, typ)

	if fromFreeList {
		p.freeList = p.freeList[1:]
		p.header.FreeListHead = newFreeListHead
	} else {
		p.header.PageCount = newPageCount
		if _, err := p.file.WriteAt(newPage.Marshal(), p.pageOffset(id)); err != nil {
			return nil, fmt.Errorf("pager: write new page %d: %w", id, err)
		}
	}
	p.header.ModifyTime = nowMillis()
	if err := p.writeHeaderLocked(); err != nil {
		return nil, err
	}

	p.admit(newPage)
	p.markDirtyLocked(id)

	return newPage, nil
}

// FreePage returns a page to the free list: it is retyped to TypeFree and
// prepended to the on-disk free chain.
func (p *Pager) FreePage(id page.ID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	oldFreeListHead := p.header.FreeListHead

	if _, err := p.wal.WriteFreeRecord(id); err != nil {
		return err
	}
	if _, err := p.wal.WriteMetaRecord(wal.MetaFreeListHead, uint32(oldFreeListHead), uint32(id)); err != nil {
		return err
	}
	if err := p.wal.Sync(); err != nil {
		return err
	}

	pg, err := p.readPageLocked(id)
	if err != nil {
		return err
	}
	pg.Type = page.TypeFree
	pg.NextPageID = oldFreeListHead

	if err := p.writePageLocked(pg); err != nil {
		return err
	}

	p.header.FreeListHead = id
	p.header.ModifyTime = nowMillis()
	if err := p.writeHeaderLocked(); err != nil {
		return err
	}

	p.freeList = append([]page.ID{id}, p.freeList...)
	p.markDirtyLocked(id)

	return nil
}

// WritePage logs a page-write WAL record and then writes the page to the
// data file, recording the LSN used for that page in memory. Recovery
// does not consult that record: it replays every record after the
// checkpoint.
func (p *Pager) WritePage(pg *page.Page) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writePageLocked(pg)
}

func (p *Pager) writePageLocked(pg *page.Page) error {
	data := pg.Marshal()

	lsn, err := p.wal.WritePageRecord(pg.ID, data)
	if err != nil {
		return err
	}
	p.pageLSN[pg.ID] = lsn

	if _, err := p.file.WriteAt(data, p.pageOffset(pg.ID)); err != nil {
		return fmt.Errorf("pager: write page %d: %w", pg.ID, err)
	}

	p.admit(pg)
	p.markDirtyLocked(pg.ID)
	return nil
}

// markDirtyLocked records that the cached copy of id has been mutated
// and must survive eviction until the next Flush; callers must already
// hold p.mu. AllocatePage, FreePage, and writePageLocked all route
// through this one place rather than touching p.dirty directly.
func (p *Pager) markDirtyLocked(id page.ID) {
	if _, ok := p.cache[id]; ok {
		p.dirty[id] = true
	}
}

// MarkDirty records that the cached copy of id has been mutated and must
// be flushed.
func (p *Pager) MarkDirty(id page.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.markDirtyLocked(id)
}

// Flush syncs the WAL, writes every dirty page, fsyncs the data file,
// rewrites the header, and checkpoints the WAL — after Flush returns,
// every prior mutation is durable in the data file.
func (p *Pager) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked()
}

func (p *Pager) flushLocked() error {
	if err := p.wal.Sync(); err != nil {
		return err
	}

	flushed := 0
	for id := range p.dirty {
		pg, ok := p.cache[id]
		if !ok {
			continue
		}
		if err := p.writePageLocked(pg); err != nil {
			return err
		}
		flushed++
	}
	p.dirty = make(map[page.ID]bool)

	p.header.ModifyTime = nowMillis()
	if err := p.writeHeaderLocked(); err != nil {
		return err
	}
	if err := p.file.Sync(); err != nil {
		return fmt.Errorf("pager: fsync: %w", err)
	}

	current := p.wal.GetCurrentLSN()
	if current > 1 {
		if err := p.wal.Checkpoint(current - 1); err != nil {
			return err
		}
	}

	if flushed > 0 {
		monolog.FlushSummary(flushed, page.Size)
	}
	return nil
}

// Close flushes all pending state and closes the data file and WAL.
func (p *Pager) Close() error {
	p.mu.Lock()
	if err := p.flushLocked(); err != nil {
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()

	if err := p.wal.Close(); err != nil {
		return err
	}
	unlock(p.file)
	return p.file.Close()
}

// PageCount returns the total number of pages in the file.
func (p *Pager) PageCount() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.header.PageCount
}

// FreePageCount returns the number of pages currently on the free list.
func (p *Pager) FreePageCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.freeList)
}

// SetCatalogPageID persists the catalog's root page id in the file header.
func (p *Pager) SetCatalogPageID(id page.ID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.header.CatalogPageID = id
	return p.writeHeaderLocked()
}

// CatalogPageID returns the file header's catalog page id, or 0 if the
// database has no collections.
func (p *Pager) CatalogPageID() page.ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.header.CatalogPageID
}

// Header returns a copy of the current file header.
func (p *Pager) Header() FileHeader {
	p.mu.Lock()
	defer p.mu.Unlock()
	return *p.header
}
