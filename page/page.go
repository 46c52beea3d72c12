// Package page implements the fixed 4096-byte frame that every on-disk
// structure (data pages, index nodes, catalog pages, free pages) is built
// out of: a 24-byte header, a 4072-byte data area, and a checksum over
// that data area.
package page

import (
	"encoding/binary"

	"monolite/monoerr"
)

const (
	// Size is the total size of a page frame on disk, header included.
	Size = 4096

	// HeaderSize is the fixed header at the front of every page.
	HeaderSize = 24

	// DataSize is the usable data area after the header.
	DataSize = Size - HeaderSize
)

// Type identifies what a page's data area holds.
type Type uint8

const (
	TypeFree     Type = 0
	TypeMeta     Type = 1
	TypeCatalog  Type = 2
	TypeData     Type = 3
	TypeIndex    Type = 4
	TypeOverflow Type = 5
	TypeFreeList Type = 6
)

// ID is a page's address within the data file; ID 0 is the first page
// after the 64-byte file header.
type ID uint32

// Page is the in-memory form of one 4096-byte frame.
type Page struct {
	ID         ID
	Type       Type
	Flags      uint8
	ItemCount  uint16
	FreeSpace  uint16
	NextPageID ID
	PrevPageID ID
	Data       [DataSize]byte
}

// New creates a blank page of the given type with an empty data area.
func New(id ID, typ Type) *Page {
	return &Page{
		ID:        id,
		Type:      typ,
		FreeSpace: DataSize,
	}
}

// checksum computes the XOR of consecutive little-endian 32-bit words over
// the data area, zero-padding a trailing partial word.
func checksum(data []byte) uint32 {
	var sum uint32
	var i int
	for ; i+4 <= len(data); i += 4 {
		sum ^= binary.LittleEndian.Uint32(data[i : i+4])
	}
	if i < len(data) {
		var tail [4]byte
		copy(tail[:], data[i:])
		sum ^= binary.LittleEndian.Uint32(tail[:])
	}
	return sum
}

// Marshal serializes the page to its on-disk 4096-byte representation.
func (p *Page) Marshal() []byte {
	buf := make([]byte, Size)

	cs := checksum(p.Data[:])

	binary.LittleEndian.PutUint32(buf[0:4], uint32(p.ID))
	buf[4] = byte(p.Type)
	buf[5] = p.Flags
	binary.LittleEndian.PutUint16(buf[6:8], p.ItemCount)
	binary.LittleEndian.PutUint16(buf[8:10], p.FreeSpace)
	binary.LittleEndian.PutUint32(buf[10:14], uint32(p.NextPageID))
	binary.LittleEndian.PutUint32(buf[14:18], uint32(p.PrevPageID))
	binary.LittleEndian.PutUint32(buf[18:22], cs)
	// buf[22:24] reserved, left zero.

	copy(buf[HeaderSize:], p.Data[:])
	return buf
}

// Unmarshal parses a 4096-byte frame into a Page, verifying the checksum.
func Unmarshal(buf []byte) (*Page, error) {
	if len(buf) != Size {
		return nil, monoerr.ErrCorruptPage
	}

	p := &Page{
		ID:         ID(binary.LittleEndian.Uint32(buf[0:4])),
		Type:       Type(buf[4]),
		Flags:      buf[5],
		ItemCount:  binary.LittleEndian.Uint16(buf[6:8]),
		FreeSpace:  binary.LittleEndian.Uint16(buf[8:10]),
		NextPageID: ID(binary.LittleEndian.Uint32(buf[10:14])),
		PrevPageID: ID(binary.LittleEndian.Uint32(buf[14:18])),
	}
	storedChecksum := binary.LittleEndian.Uint32(buf[18:22])

	copy(p.Data[:], buf[HeaderSize:])

	if checksum(p.Data[:]) != storedChecksum {
		return nil, monoerr.ErrCorruptPage
	}

	return p, nil
}
