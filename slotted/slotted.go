// Package slotted implements the variable-length record container that
// lives inside a data page's 4072-byte data area: a slot directory that
// grows forward from offset 0, and records that grow backward from the
// end of the area.
package slotted

import (
	"encoding/binary"

	"monolite/monoerr"
	"monolite/page"
)

const (
	// SlotSize is the fixed width of one slot directory entry: a 2-byte
	// offset, a 2-byte length, and a 2-byte flags word.
	SlotSize = 6

	flagDeleted = uint16(1) << 0
)

// Page wraps a page.Page's data area with slotted-page record semantics.
// It does not own the underlying page.Page; callers mutate pg.Data in
// place and are responsible for persisting pg afterwards.
type Page struct {
	pg *page.Page
}

// Wrap returns a slotted view over an existing data page.
func Wrap(pg *page.Page) *Page {
	return &Page{pg: pg}
}

func (s *Page) slotOffset(i uint16) int {
	return int(i) * SlotSize
}

func (s *Page) slotDirEnd() int {
	return s.slotOffset(s.pg.ItemCount)
}

func (s *Page) readSlot(i uint16) (offset, length, flags uint16) {
	off := s.slotOffset(i)
	data := s.pg.Data[off : off+SlotSize]
	offset = binary.LittleEndian.Uint16(data[0:2])
	length = binary.LittleEndian.Uint16(data[2:4])
	flags = binary.LittleEndian.Uint16(data[4:6])
	return
}

func (s *Page) writeSlot(i uint16, offset, length, flags uint16) {
	off := s.slotOffset(i)
	data := s.pg.Data[off : off+SlotSize]
	binary.LittleEndian.PutUint16(data[0:2], offset)
	binary.LittleEndian.PutUint16(data[2:4], length)
	binary.LittleEndian.PutUint16(data[4:6], flags)
}

// minLiveOffset returns the lowest record offset currently occupied by
// any slot, live or deleted — deleted slots retain their bytes until
// Compact runs, so they still bound where new records may be appended.
// An empty page has nothing occupying the tail, so the boundary is the
// end of the data area.
func (s *Page) minLiveOffset() uint16 {
	min := uint16(page.DataSize)
	for i := uint16(0); i < s.pg.ItemCount; i++ {
		offset, _, _ := s.readSlot(i)
		if offset < min {
			min = offset
		}
	}
	return min
}

// recomputeFreeSpace refreshes the cached FreeSpace header field.
func (s *Page) recomputeFreeSpace() {
	s.pg.FreeSpace = s.minLiveOffset() - uint16(s.slotDirEnd())
}

// InsertRecord appends rec to the tail of the data area and allocates a
// new slot for it, returning the slot index.
func (s *Page) InsertRecord(rec []byte) (uint16, error) {
	recLen := uint16(len(rec))
	dirEnd := s.slotDirEnd()
	minOffset := s.minLiveOffset()

	newDirEnd := dirEnd + SlotSize
	if uint16(newDirEnd) > minOffset || minOffset-uint16(newDirEnd) < recLen {
		return 0, monoerr.ErrPageFull
	}

	newOffset := minOffset - recLen
	copy(s.pg.Data[newOffset:newOffset+recLen], rec)

	slotIndex := s.pg.ItemCount
	s.writeSlot(slotIndex, newOffset, recLen, 0)
	s.pg.ItemCount++
	s.recomputeFreeSpace()

	return slotIndex, nil
}

// GetRecord returns the bytes stored at slot, or nil if the slot is out
// of range or deleted.
func (s *Page) GetRecord(slot uint16) []byte {
	if slot >= s.pg.ItemCount {
		return nil
	}
	offset, length, flags := s.readSlot(slot)
	if flags&flagDeleted != 0 {
		return nil
	}
	out := make([]byte, length)
	copy(out, s.pg.Data[offset:offset+length])
	return out
}

// UpdateRecord replaces the bytes at slot. If the new value fits in the
// old record's footprint it is rewritten in place; otherwise the old
// slot's bytes are marked deleted and the new value is appended at a
// fresh offset, keeping the same slot index.
func (s *Page) UpdateRecord(slot uint16, rec []byte) error {
	if slot >= s.pg.ItemCount {
		return monoerr.ErrNotFound
	}
	offset, oldLen, flags := s.readSlot(slot)
	newLen := uint16(len(rec))

	if newLen <= oldLen {
		copy(s.pg.Data[offset:offset+newLen], rec)
		s.writeSlot(slot, offset, newLen, flags&^flagDeleted)
		s.recomputeFreeSpace()
		return nil
	}

	// Reclaim the old slot's space by marking it deleted, then try to
	// fit the new record between the slot directory and the lowest
	// record any other slot still holds.
	s.writeSlot(slot, offset, oldLen, flags|flagDeleted)
	s.recomputeFreeSpace()

	minOffset := uint16(page.DataSize)
	for i := uint16(0); i < s.pg.ItemCount; i++ {
		if o, _, _ := s.readSlot(i); i != slot && o < minOffset {
			minOffset = o
		}
	}
	if int(minOffset)-s.slotDirEnd() < int(newLen) {
		// Cannot fit even after reclaiming; restore the old slot so the
		// page is left unchanged and the caller can relocate instead.
		s.writeSlot(slot, offset, oldLen, flags&^flagDeleted)
		s.recomputeFreeSpace()
		return monoerr.ErrPageFull
	}

	newOffset := minOffset - newLen
	copy(s.pg.Data[newOffset:newOffset+newLen], rec)
	s.writeSlot(slot, newOffset, newLen, 0)
	s.recomputeFreeSpace()
	return nil
}

// DeleteRecord marks a slot deleted without reclaiming its directory
// entry; the bytes remain until the next Compact.
func (s *Page) DeleteRecord(slot uint16) error {
	if slot >= s.pg.ItemCount {
		return monoerr.ErrNotFound
	}
	offset, length, flags := s.readSlot(slot)
	s.writeSlot(slot, offset, length, flags|flagDeleted)
	s.recomputeFreeSpace()
	return nil
}

// IsDeleted reports whether slot is marked deleted. Out-of-range slots
// report true since they hold nothing live.
func (s *Page) IsDeleted(slot uint16) bool {
	if slot >= s.pg.ItemCount {
		return true
	}
	_, _, flags := s.readSlot(slot)
	return flags&flagDeleted != 0
}

// Count returns the number of slot directory entries, live or deleted.
func (s *Page) Count() uint16 {
	return s.pg.ItemCount
}

// Compact packs all live records to the tail of the data area, rebuilds
// the slot directory, and returns a mapping from old slot index to new
// slot index (entries for deleted slots are absent from the mapping).
func (s *Page) Compact() map[uint16]uint16 {
	type liveRecord struct {
		oldSlot uint16
		bytes   []byte
	}

	var live []liveRecord
	for i := uint16(0); i < s.pg.ItemCount; i++ {
		offset, length, flags := s.readSlot(i)
		if flags&flagDeleted != 0 {
			continue
		}
		bytes := make([]byte, length)
		copy(bytes, s.pg.Data[offset:offset+length])
		live = append(live, liveRecord{oldSlot: i, bytes: bytes})
	}

	var cleared [page.DataSize]byte
	s.pg.Data = cleared
	s.pg.ItemCount = 0

	mapping := make(map[uint16]uint16, len(live))
	tail := uint16(page.DataSize)
	for newSlot, rec := range live {
		recLen := uint16(len(rec.bytes))
		tail -= recLen
		copy(s.pg.Data[tail:tail+recLen], rec.bytes)
		s.writeSlot(uint16(newSlot), tail, recLen, 0)
		mapping[rec.oldSlot] = uint16(newSlot)
	}
	s.pg.ItemCount = uint16(len(live))
	s.recomputeFreeSpace()

	return mapping
}

// MaxRecordLen is the largest record that could ever fit in an otherwise
// empty page, after accounting for that record's own slot entry.
func MaxRecordLen() uint16 {
	return page.DataSize - SlotSize
}
