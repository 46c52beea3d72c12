package pager

import (
	"encoding/binary"
	"fmt"

	"monolite/monolog"
	"monolite/page"
	"monolite/wal"
)

// recover replays WAL records with LSN greater than the WAL's checkpoint
// LSN against the data file, then makes sure the file's physical size
// matches the header's page count before handing control back to the
// caller.
func (p *Pager) recover() error {
	checkpointLSN := p.wal.GetCheckpointLSN()

	records, err := p.wal.ReadRecordsFrom(checkpointLSN + 1)
	if err != nil {
		return fmt.Errorf("pager: read wal records: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	allocTypes := make(map[page.ID]page.Type)

	for _, rec := range records {
		switch rec.Type {
		case wal.RecordPageWrite:
			if len(rec.Payload) == page.Size {
				if _, err := p.file.WriteAt(rec.Payload, p.pageOffset(rec.PageID)); err != nil {
					return fmt.Errorf("pager: redo page write %d: %w", rec.PageID, err)
				}
			}

		case wal.RecordAllocPage:
			if uint32(rec.PageID) >= p.header.PageCount {
				p.header.PageCount = uint32(rec.PageID) + 1
			}
			typ := page.TypeData
			if len(rec.Payload) >= 1 {
				typ = page.Type(rec.Payload[0])
				allocTypes[rec.PageID] = typ
			}
			// A page reused from the free list may have had only its
			// WAL alloc record and header update land before a crash,
			// leaving the physical page still typed TypeFree. If the
			// physical page already exists, re-initialize it with the
			// recorded type; a later page-write record in this same
			// replay, if any, overwrites it and keeps redo ordering intact.
			if existing, statErr := p.file.Stat(); statErr == nil {
				offset := p.pageOffset(rec.PageID)
				if offset+int64(page.Size) <= existing.Size() {
					init := page.New(rec.PageID, typ)
					if _, err := p.file.WriteAt(init.Marshal(), offset); err != nil {
						return fmt.Errorf("pager: redo alloc init %d: %w", rec.PageID, err)
					}
				}
			}

		case wal.RecordFreePage:
			// No-op here; its effect on FreeListHead lands via the
			// paired meta-update record.

		case wal.RecordMetaUpdate:
			if len(rec.Payload) >= 9 {
				subtype := wal.MetaSubtype(rec.Payload[0])
				newValue := binary.LittleEndian.Uint32(rec.Payload[5:9])
				switch subtype {
				case wal.MetaFreeListHead:
					p.header.FreeListHead = page.ID(newValue)
				case wal.MetaPageCount:
					p.header.PageCount = newValue
				case wal.MetaCatalogPageID:
					p.header.CatalogPageID = page.ID(newValue)
				}
			}

		case wal.RecordCheckpoint:
			// Informational only; the WAL's own header already tracks
			// the checkpoint LSN it was reopened with.
		}
	}

	if err := p.file.Sync(); err != nil {
		return fmt.Errorf("pager: sync after recovery: %w", err)
	}

	if err := p.extendFileToPageCount(allocTypes); err != nil {
		return err
	}

	if err := p.writeHeaderLocked(); err != nil {
		return err
	}

	monolog.RecoverySummary(len(records), p.header.PageCount)
	return nil
}

// extendFileToPageCount ensures the file's physical size matches
// HeaderSize + PageCount*page.Size, initializing any missing trailing
// pages — including rewriting a short trailing "half page" left by a
// crash mid-write — using the recorded alloc type where known, else
// TypeData.
func (p *Pager) extendFileToPageCount(allocTypes map[page.ID]page.Type) error {
	expected := int64(HeaderSize) + int64(p.header.PageCount)*int64(page.Size)

	fi, err := p.file.Stat()
	if err != nil {
		return fmt.Errorf("pager: stat: %w", err)
	}
	actual := fi.Size()
	if actual >= expected {
		return nil
	}

	start := actual
	if actual > int64(HeaderSize) {
		rel := actual - int64(HeaderSize)
		if rem := rel % int64(page.Size); rem != 0 {
			start = actual - rem
		}
	} else {
		start = int64(HeaderSize)
	}

	for offset := start; offset < expected; offset += int64(page.Size) {
		id := page.ID((offset - int64(HeaderSize)) / int64(page.Size))
		typ := page.TypeData
		if t, ok := allocTypes[id]; ok {
			typ = t
		}
		blank := page.New(id, typ)
		if _, err := p.file.WriteAt(blank.Marshal(), offset); err != nil {
			return fmt.Errorf("pager: extend file at page %d: %w", id, err)
		}
	}
	return nil
}
