// Package catalog implements the serialized directory of collections
// and their indexes: a single document stored in one page, or chained
// across several when it outgrows one page's data area.
package catalog

import (
	"encoding/binary"
	"fmt"

	"monolite/monoerr"
	"monolite/monolog"
	"monolite/page"
)

// MultiPageMagic marks the first page of a catalog chain spanning more
// than one page.
const MultiPageMagic = 0x4D504354 // "MPCT"

// Backend is the subset of the pager the catalog needs.
type Backend interface {
	ReadPage(id page.ID) (*page.Page, error)
	AllocatePage(typ page.Type) (*page.Page, error)
	WritePage(pg *page.Page) error
	FreePage(id page.ID) error
	SetCatalogPageID(id page.ID) error
	CatalogPageID() page.ID
}

// IndexMeta describes one index on a collection.
type IndexMeta struct {
	Name        string
	Keys        []string // dotted-path field names, in projection order
	Unique      bool
	RootPageID  page.ID
}

// CollectionMeta describes one collection's page chain and indexes.
// IDIndexRootPageID is the root of the implicit unique index kept on
// "_id"; user-created secondary indexes live in Indexes.
type CollectionMeta struct {
	Name              string
	FirstPageID       page.ID
	LastPageID        page.ID
	DocumentCount     uint64
	IDIndexRootPageID page.ID
	Indexes           []IndexMeta
}

// Catalog is the in-memory, decoded form of the catalog document.
type Catalog struct {
	backend     Backend
	Collections []CollectionMeta
}

// Load reads the catalog page id from the file header and decodes it.
// A catalog page id of 0 means the database has no collections yet.
func Load(backend Backend) (*Catalog, error) {
	c := &Catalog{backend: backend}

	rootID := backend.CatalogPageID()
	if rootID == 0 {
		return c, nil
	}

	payload, err := readChain(backend, rootID)
	if err != nil {
		return nil, err
	}

	collections, err := decode(payload)
	if err != nil {
		return nil, err
	}
	c.Collections = collections
	return c, nil
}

// readChain reads the catalog payload starting at rootID, following
// either the single-document-in-one-page form or the multi-page-chain
// form depending on the leading magic.
func readChain(backend Backend, rootID page.ID) ([]byte, error) {
	first, err := backend.ReadPage(rootID)
	if err != nil {
		return nil, err
	}

	if len(first.Data) >= 8 && binary.LittleEndian.Uint32(first.Data[0:4]) == MultiPageMagic {
		totalLen := binary.LittleEndian.Uint32(first.Data[4:8])
		pageCount := binary.LittleEndian.Uint32(first.Data[8:12])

		payload := make([]byte, 0, totalLen)
		payload = append(payload, first.Data[12:]...)

		id := first.NextPageID
		for i := uint32(1); i < pageCount; i++ {
			if id == 0 {
				return nil, fmt.Errorf("%w: catalog chain ended early at %d/%d pages", monoerr.ErrCorruptPage, i, pageCount)
			}
			pg, err := backend.ReadPage(id)
			if err != nil {
				return nil, err
			}
			payload = append(payload, pg.Data[:]...)
			id = pg.NextPageID
		}

		if uint32(len(payload)) > totalLen {
			payload = payload[:totalLen]
		}
		return payload, nil
	}

	if len(first.Data) < 4 {
		return nil, fmt.Errorf("%w: catalog page too short", monoerr.ErrCorruptPage)
	}
	docLen := binary.LittleEndian.Uint32(first.Data[0:4])
	if int(docLen) > len(first.Data) {
		return nil, fmt.Errorf("%w: catalog document length %d exceeds page data area", monoerr.ErrCorruptPage, docLen)
	}
	return first.Data[:docLen], nil
}

// Save encodes the catalog and writes it back, reusing the existing
// chain where possible and freeing any now-excess pages.
func (c *Catalog) Save() error {
	payload := encode(c.Collections)

	oldChain, err := c.existingChainPageIDs()
	if err != nil {
		return err
	}

	var newChain []page.ID
	if len(payload) <= page.DataSize {
		newChain, err = c.writeSinglePage(payload, oldChain)
	} else {
		newChain, err = c.writeMultiPageChain(payload, oldChain)
	}
	if err != nil {
		return err
	}

	if err := c.backend.SetCatalogPageID(newChain[0]); err != nil {
		return err
	}

	for _, id := range oldChain {
		if !containsID(newChain, id) {
			if err := c.backend.FreePage(id); err != nil {
				return err
			}
		}
	}
	monolog.CatalogWriteSummary(len(newChain), len(payload))
	return nil
}

func containsID(ids []page.ID, target page.ID) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}

func (c *Catalog) existingChainPageIDs() ([]page.ID, error) {
	rootID := c.backend.CatalogPageID()
	if rootID == 0 {
		return nil, nil
	}
	var ids []page.ID
	id := rootID
	for id != 0 {
		pg, err := c.backend.ReadPage(id)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		id = pg.NextPageID
	}
	return ids, nil
}

func (c *Catalog) writeSinglePage(payload []byte, oldChain []page.ID) ([]page.ID, error) {
	var pg *page.Page
	var err error
	if len(oldChain) > 0 {
		pg, err = c.backend.ReadPage(oldChain[0])
	} else {
		pg, err = c.backend.AllocatePage(page.TypeCatalog)
	}
	if err != nil {
		return nil, err
	}

	var data [page.DataSize]byte
	copy(data[:], payload)

	pg.Type = page.TypeCatalog
	pg.Data = data
	pg.NextPageID = 0
	if err := c.backend.WritePage(pg); err != nil {
		return nil, err
	}
	return []page.ID{pg.ID}, nil
}

func (c *Catalog) writeMultiPageChain(payload []byte, oldChain []page.ID) ([]page.ID, error) {
	firstHeaderRoom := page.DataSize - 12
	chunks := chunkPayload(payload, firstHeaderRoom, page.DataSize)
	needed := len(chunks)

	var ids []page.ID
	for i := 0; i < needed; i++ {
		if i < len(oldChain) {
			ids = append(ids, oldChain[i])
		} else {
			pg, err := c.backend.AllocatePage(page.TypeCatalog)
			if err != nil {
				return nil, err
			}
			ids = append(ids, pg.ID)
		}
	}

	for i, chunk := range chunks {
		pg, err := c.backend.ReadPage(ids[i])
		if err != nil {
			if i >= len(oldChain) {
				pg = page.New(ids[i], page.TypeCatalog)
			} else {
				return nil, err
			}
		}
		pg.Type = page.TypeCatalog

		var data [page.DataSize]byte
		if i == 0 {
			binary.LittleEndian.PutUint32(data[0:4], MultiPageMagic)
			binary.LittleEndian.PutUint32(data[4:8], uint32(len(payload)))
			binary.LittleEndian.PutUint32(data[8:12], uint32(needed))
			copy(data[12:], chunk)
		} else {
			copy(data[:], chunk)
		}
		pg.Data = data

		if i < len(ids)-1 {
			pg.NextPageID = ids[i+1]
		} else {
			pg.NextPageID = 0
		}

		if err := c.backend.WritePage(pg); err != nil {
			return nil, err
		}
	}

	return ids, nil
}

// chunkPayload splits payload into a first chunk of at most firstSize
// bytes and subsequent chunks of at most restSize bytes.
func chunkPayload(payload []byte, firstSize, restSize int) [][]byte {
	var chunks [][]byte
	if len(payload) <= firstSize {
		return [][]byte{payload}
	}
	chunks = append(chunks, payload[:firstSize])
	rest := payload[firstSize:]
	for len(rest) > 0 {
		n := restSize
		if n > len(rest) {
			n = len(rest)
		}
		chunks = append(chunks, rest[:n])
		rest = rest[n:]
	}
	return chunks
}

// FindCollection returns the metadata for name, if present.
func (c *Catalog) FindCollection(name string) (*CollectionMeta, bool) {
	for i := range c.Collections {
		if c.Collections[i].Name == name {
			return &c.Collections[i], true
		}
	}
	return nil, false
}

// UpsertCollection adds meta, or replaces the existing entry with the
// same name.
func (c *Catalog) UpsertCollection(meta CollectionMeta) {
	for i := range c.Collections {
		if c.Collections[i].Name == meta.Name {
			c.Collections[i] = meta
			return
		}
	}
	c.Collections = append(c.Collections, meta)
}

// DropCollection removes name from the catalog, reporting whether it
// was present.
func (c *Catalog) DropCollection(name string) bool {
	for i := range c.Collections {
		if c.Collections[i].Name == name {
			c.Collections = append(c.Collections[:i], c.Collections[i+1:]...)
			return true
		}
	}
	return false
}
