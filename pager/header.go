package pager

import (
	"encoding/binary"
	"fmt"

	"monolite/monoerr"
	"monolite/page"
)

const (
	// Magic identifies a monolite data file ("MONO").
	Magic uint32 = 0x4D4F4E4F

	// FormatVersion is the on-disk format version this build writes and
	// requires on open.
	FormatVersion uint16 = 1

	// HeaderSize is the fixed prefix before page 0.
	HeaderSize = 64
)

// FileHeader is the 64-byte prefix of the data file.
type FileHeader struct {
	Magic         uint32
	Version       uint16
	PageSize      uint16
	PageCount     uint32
	FreeListHead  page.ID
	MetaPageID    page.ID
	CatalogPageID page.ID
	CreateTime    uint64
	ModifyTime    uint64
}

func (h *FileHeader) marshal() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint16(buf[6:8], h.PageSize)
	binary.LittleEndian.PutUint32(buf[8:12], h.PageCount)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(h.FreeListHead))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(h.MetaPageID))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(h.CatalogPageID))
	binary.LittleEndian.PutUint64(buf[24:32], h.CreateTime)
	binary.LittleEndian.PutUint64(buf[32:40], h.ModifyTime)
	// buf[40:64] reserved, left zero.
	return buf
}

func unmarshalHeader(buf []byte) (*FileHeader, error) {
	if len(buf) != HeaderSize {
		return nil, fmt.Errorf("pager: header must be %d bytes, got %d", HeaderSize, len(buf))
	}

	h := &FileHeader{
		Magic:    binary.LittleEndian.Uint32(buf[0:4]),
		Version:  binary.LittleEndian.Uint16(buf[4:6]),
		PageSize: binary.LittleEndian.Uint16(buf[6:8]),
	}
	if h.Magic != Magic {
		return nil, fmt.Errorf("%w: bad file magic %x", monoerr.ErrCorruptPage, h.Magic)
	}
	if h.Version != FormatVersion {
		return nil, fmt.Errorf("pager: unsupported format version %d", h.Version)
	}
	if h.PageSize != page.Size {
		return nil, fmt.Errorf("pager: page size %d does not match build's %d", h.PageSize, page.Size)
	}

	h.PageCount = binary.LittleEndian.Uint32(buf[8:12])
	h.FreeListHead = page.ID(binary.LittleEndian.Uint32(buf[12:16]))
	h.MetaPageID = page.ID(binary.LittleEndian.Uint32(buf[16:20]))
	h.CatalogPageID = page.ID(binary.LittleEndian.Uint32(buf[20:24]))
	h.CreateTime = binary.LittleEndian.Uint64(buf[24:32])
	h.ModifyTime = binary.LittleEndian.Uint64(buf[32:40])

	return h, nil
}
