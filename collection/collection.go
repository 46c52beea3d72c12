// Package collection implements Collection Storage: a per-collection
// doubly-linked chain of data pages, document placement, and the
// insert/find/update/delete/distinct/count surface that drives it,
// coordinating with the Index Manager on every mutation.
package collection

import (
	"errors"
	"fmt"
	"strings"

	"monolite/bsonvalue"
	"monolite/catalog"
	"monolite/filter"
	"monolite/index"
	"monolite/monoerr"
	"monolite/page"
	"monolite/slotted"
	"monolite/update"
)

const (
	// maxDocumentBytes is the 16 MiB document size ceiling.
	maxDocumentBytes = 16 << 20
	// maxBatchSize bounds a single Insert call.
	maxBatchSize = 100_000
	// defaultCacheMaxCost is the decoded-document cache's cost budget,
	// in the same units as the cost passed to docCache.set (bytes).
	defaultCacheMaxCost = 8 << 20
)

// Backend is the subset of the pager a collection needs.
type Backend interface {
	ReadPage(id page.ID) (*page.Page, error)
	AllocatePage(typ page.Type) (*page.Page, error)
	WritePage(pg *page.Page) error
	FreePage(id page.ID) error
}

// Collection is one open collection: its catalog metadata, its page
// chain, its indexes, and an optional decoded-document accelerator.
//
// meta is looked up by name on every access rather than cached as a
// pointer: UpsertCollection can append to the catalog's backing slice
// and reallocate it when a sibling collection is created later, which
// would silently strand a cached pointer on the old array.
type Collection struct {
	backend   Backend
	cat       *catalog.Catalog
	name      string
	idx       *index.Manager
	cache     *docCache
	onDegrade func()
	degraded  bool
}

func (c *Collection) meta() *catalog.CollectionMeta {
	m, _ := c.cat.FindCollection(c.name)
	return m
}

// Degraded reports whether this handle hit an unrecoverable
// rollback/restore failure and must be reopened before further use.
func (c *Collection) Degraded() bool {
	return c.degraded
}

// checkDegraded rejects further mutations once the handle is degraded,
// per monoerr.ErrDegraded's documented contract.
func (c *Collection) checkDegraded() error {
	if c.degraded {
		return fmt.Errorf("%w: reopen required", monoerr.ErrDegraded)
	}
	return nil
}

// degrade marks the handle unusable after cause leaves the document
// and its index entries out of sync with no further undo available,
// per spec.md:202, and notifies the owning database so db.Collection
// also starts refusing new work.
func (c *Collection) degrade(cause error) error {
	c.degraded = true
	if c.onDegrade != nil {
		c.onDegrade()
	}
	return fmt.Errorf("%w: %v", monoerr.ErrDegraded, cause)
}

// ValidateName enforces the collection-name rules: non-empty, must not
// start with "system.", must not contain '$' or a null byte.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name must not be empty", monoerr.ErrInvalidArgument)
	}
	if strings.HasPrefix(name, "system.") {
		return fmt.Errorf("%w: collection name %q must not start with \"system.\"", monoerr.ErrInvalidArgument, name)
	}
	if strings.ContainsAny(name, "$\x00") {
		return fmt.Errorf("%w: collection name %q must not contain '$' or a null byte", monoerr.ErrInvalidArgument, name)
	}
	return nil
}

// Open returns the named collection, creating it (an empty data page
// plus an implicit unique "_id" index) if it does not already exist in
// cat. onDegrade, if non-nil, is called the first time this handle hits
// an unrecoverable rollback/restore failure, letting the owning
// database mark itself degraded too.
func Open(backend Backend, cat *catalog.Catalog, name string, onDegrade func()) (*Collection, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	meta, exists := cat.FindCollection(name)
	if !exists {
		firstPage, err := backend.AllocatePage(page.TypeData)
		if err != nil {
			return nil, err
		}
		idTree, err := index.CreateIDIndex(backend)
		if err != nil {
			return nil, err
		}
		cat.UpsertCollection(catalog.CollectionMeta{
			Name:              name,
			FirstPageID:       firstPage.ID,
			LastPageID:        firstPage.ID,
			IDIndexRootPageID: idTree.RootPageID(),
		})
		meta, _ = cat.FindCollection(name)
	}

	cache, err := newDocCache(defaultCacheMaxCost)
	if err != nil {
		return nil, err
	}

	return &Collection{
		backend:   backend,
		cat:       cat,
		name:      name,
		idx:       index.Open(backend, meta),
		cache:     cache,
		onDegrade: onDegrade,
	}, nil
}

// Close releases the collection's in-process accelerator cache.
func (c *Collection) Close() {
	c.cache.close()
}

// Count returns the collection's live document count.
func (c *Collection) Count() uint64 {
	return c.meta().DocumentCount
}

func (c *Collection) syncIndexRootsAndSave() error {
	meta := c.meta()
	roots := c.idx.RootPageIDs()
	if root, ok := roots["_id"]; ok {
		meta.IDIndexRootPageID = root
	}
	for i := range meta.Indexes {
		if root, ok := roots[meta.Indexes[i].Name]; ok {
			meta.Indexes[i].RootPageID = root
		}
	}
	return c.cat.Save()
}

// ensureDocumentID returns doc unchanged if it already carries an "_id"
// field, or a copy with a freshly generated ObjectID prepended.
func ensureDocumentID(doc bsonvalue.Value) (bsonvalue.Value, bsonvalue.Value) {
	if existing, ok := doc.Get("_id"); ok {
		return doc, existing
	}
	id := bsonvalue.ObjectIDValue(bsonvalue.NewObjectID())
	fields := make([]bsonvalue.Field, 0, len(doc.Doc)+1)
	fields = append(fields, bsonvalue.Field{Name: "_id", Value: id})
	fields = append(fields, doc.Doc...)
	return bsonvalue.DocumentOf(fields), id
}

// placement records where one document landed, for rollback on a
// later batch member's failure.
type placement struct {
	pageID  page.ID
	slot    uint16
	id      bsonvalue.Value
	doc     bsonvalue.Value
	indexes []string
}

// Insert encodes and places each document, generating an "_id" for any
// that lacks one, maintaining index coherence across the whole batch:
// if any document fails (duplicate key, oversized document), every
// document already placed earlier in this call is rolled back and the
// call returns only that error.
func (c *Collection) Insert(docs []bsonvalue.Value) ([]bsonvalue.Value, error) {
	if err := c.checkDegraded(); err != nil {
		return nil, err
	}
	if len(docs) > maxBatchSize {
		return nil, fmt.Errorf("%w: batch of %d documents exceeds limit of %d", monoerr.ErrInvalidArgument, len(docs), maxBatchSize)
	}

	var placements []placement
	var ids []bsonvalue.Value

	for _, doc := range docs {
		withID, id := ensureDocumentID(doc)
		encoded := bsonvalue.Encode(withID)
		if len(encoded) > maxDocumentBytes {
			if rerr := c.rollback(placements); rerr != nil {
				return nil, c.degrade(rerr)
			}
			return nil, fmt.Errorf("%w: document of %d bytes exceeds %d byte limit", monoerr.ErrInvalidArgument, len(encoded), maxDocumentBytes)
		}

		pageID, slot, err := c.appendRecord(encoded)
		if err != nil {
			if rerr := c.rollback(placements); rerr != nil {
				return nil, c.degrade(rerr)
			}
			return nil, err
		}

		committed, err := c.idx.InsertDocument(withID, id)
		if err != nil {
			if rerr := c.idx.RemoveEntriesFor(withID, id, committed); rerr != nil {
				return nil, c.degrade(rerr)
			}
			if rerr := c.deleteRecord(pageID, slot); rerr != nil {
				return nil, c.degrade(rerr)
			}
			if rerr := c.rollback(placements); rerr != nil {
				return nil, c.degrade(rerr)
			}
			return nil, err
		}

		placements = append(placements, placement{pageID: pageID, slot: slot, id: id, doc: withID, indexes: committed})
		ids = append(ids, id)
		c.meta().DocumentCount++
	}

	if err := c.syncIndexRootsAndSave(); err != nil {
		return nil, err
	}
	return ids, nil
}

// rollback undoes placements in reverse order: index entries first,
// then the slotted-page record, matching the source's batch-failure
// discipline. A non-nil return means an undo step itself failed partway
// through the list — the remaining placements were never reverted, so
// the caller must treat the handle as degraded rather than report a
// plain operation error.
func (c *Collection) rollback(placements []placement) error {
	for i := len(placements) - 1; i >= 0; i-- {
		p := placements[i]
		if err := c.idx.RemoveEntriesFor(p.doc, p.id, p.indexes); err != nil {
			return err
		}
		if err := c.deleteRecord(p.pageID, p.slot); err != nil {
			return err
		}
		c.meta().DocumentCount--
	}
	return nil
}

// appendRecord places encoded at the tail of the last page, allocating
// and linking a fresh page if the last one is full.
func (c *Collection) appendRecord(encoded []byte) (page.ID, uint16, error) {
	meta := c.meta()
	last, err := c.backend.ReadPage(meta.LastPageID)
	if err != nil {
		return 0, 0, err
	}

	sp := slotted.Wrap(last)
	slot, err := sp.InsertRecord(encoded)
	if err == nil {
		if werr := c.backend.WritePage(last); werr != nil {
			return 0, 0, werr
		}
		return last.ID, slot, nil
	}
	if !errors.Is(err, monoerr.ErrPageFull) {
		return 0, 0, err
	}

	next, err := c.backend.AllocatePage(page.TypeData)
	if err != nil {
		return 0, 0, err
	}
	next.PrevPageID = last.ID
	last.NextPageID = next.ID
	if err := c.backend.WritePage(last); err != nil {
		return 0, 0, err
	}

	sp = slotted.Wrap(next)
	slot, err = sp.InsertRecord(encoded)
	if err != nil {
		return 0, 0, err
	}
	if err := c.backend.WritePage(next); err != nil {
		return 0, 0, err
	}

	meta.LastPageID = next.ID
	return next.ID, slot, nil
}

func (c *Collection) deleteRecord(id page.ID, slot uint16) error {
	pg, err := c.backend.ReadPage(id)
	if err != nil {
		return err
	}
	sp := slotted.Wrap(pg)
	if err := sp.DeleteRecord(slot); err != nil {
		return err
	}
	c.cache.invalidate(id, slot)
	return c.backend.WritePage(pg)
}

func (c *Collection) updateRecordBytes(id page.ID, slot uint16, encoded []byte) error {
	pg, err := c.backend.ReadPage(id)
	if err != nil {
		return err
	}
	sp := slotted.Wrap(pg)
	if err := sp.UpdateRecord(slot, encoded); err != nil {
		return err
	}
	c.cache.invalidate(id, slot)
	return c.backend.WritePage(pg)
}

// decodeAt returns the document stored at (id, slot), or false if the
// slot is empty/deleted.
func (c *Collection) decodeAt(id page.ID, slot uint16) (bsonvalue.Value, bool, error) {
	if doc, ok := c.cache.get(id, slot); ok {
		return doc, true, nil
	}

	pg, err := c.backend.ReadPage(id)
	if err != nil {
		return bsonvalue.Value{}, false, err
	}
	sp := slotted.Wrap(pg)
	raw := sp.GetRecord(slot)
	if raw == nil {
		return bsonvalue.Value{}, false, nil
	}
	doc, err := bsonvalue.DecodeDocument(raw)
	if err != nil {
		return bsonvalue.Value{}, false, err
	}
	c.cache.set(id, slot, doc, int64(len(raw)))
	return doc, true, nil
}

// visit is called once per live document with its physical location.
// Returning false stops iteration early.
type visit func(id page.ID, slot uint16, doc bsonvalue.Value) (keepGoing bool, err error)

func (c *Collection) iterate(fn visit) error {
	pageID := c.meta().FirstPageID
	for pageID != 0 {
		pg, err := c.backend.ReadPage(pageID)
		if err != nil {
			return err
		}
		sp := slotted.Wrap(pg)
		count := sp.Count()
		for slot := uint16(0); slot < count; slot++ {
			if sp.IsDeleted(slot) {
				continue
			}
			doc, ok, err := c.decodeAt(pageID, slot)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			keepGoing, err := fn(pageID, slot, doc)
			if err != nil {
				return err
			}
			if !keepGoing {
				return nil
			}
		}
		pageID = pg.NextPageID
	}
	return nil
}

// Find returns every document matching f.
func (c *Collection) Find(f filter.Filter) ([]bsonvalue.Value, error) {
	var out []bsonvalue.Value
	err := c.iterate(func(_ page.ID, _ uint16, doc bsonvalue.Value) (bool, error) {
		if filter.Match(doc, f) {
			out = append(out, doc)
		}
		return true, nil
	})
	return out, err
}

// FindOne returns the first document matching f, or false if none do.
func (c *Collection) FindOne(f filter.Filter) (bsonvalue.Value, bool, error) {
	var found bsonvalue.Value
	var ok bool
	err := c.iterate(func(_ page.ID, _ uint16, doc bsonvalue.Value) (bool, error) {
		if filter.Match(doc, f) {
			found, ok = doc, true
			return false, nil
		}
		return true, nil
	})
	return found, ok, err
}

// Distinct returns the distinct values of field across documents
// matching f.
func (c *Collection) Distinct(field string, f filter.Filter) ([]bsonvalue.Value, error) {
	var out []bsonvalue.Value
	err := c.iterate(func(_ page.ID, _ uint16, doc bsonvalue.Value) (bool, error) {
		if !filter.Match(doc, f) {
			return true, nil
		}
		v, ok := doc.GetPath(field)
		if !ok {
			return true, nil
		}
		for _, existing := range out {
			if bsonvalue.Equal(existing, v) {
				return true, nil
			}
		}
		out = append(out, v)
		return true, nil
	})
	return out, err
}

// CountMatching returns the number of documents matching f.
func (c *Collection) CountMatching(f filter.Filter) (int, error) {
	if len(f.Doc) == 0 {
		return int(c.meta().DocumentCount), nil
	}
	n := 0
	err := c.iterate(func(_ page.ID, _ uint16, doc bsonvalue.Value) (bool, error) {
		if filter.Match(doc, f) {
			n++
		}
		return true, nil
	})
	return n, err
}

// Update applies updateSpec to every document matching f, returning the
// number of documents modified. If upsert is true and no document
// matches, a new document is inserted built from f's direct-equality
// clauses with updateSpec applied on top.
func (c *Collection) Update(f filter.Filter, updateSpec bsonvalue.Value, upsert bool) (int, error) {
	if err := c.checkDegraded(); err != nil {
		return 0, err
	}
	matched := 0
	var iterErr error

	err := c.iterate(func(id page.ID, slot uint16, oldDoc bsonvalue.Value) (bool, error) {
		if !filter.Match(oldDoc, f) {
			return true, nil
		}
		newDoc, err := update.Apply(oldDoc, updateSpec)
		if err != nil {
			iterErr = err
			return false, nil
		}
		if err := c.applyUpdateToSlot(id, slot, oldDoc, newDoc); err != nil {
			iterErr = err
			return false, nil
		}
		matched++
		return true, nil
	})
	if err != nil {
		return matched, err
	}
	if iterErr != nil {
		return matched, iterErr
	}

	if matched == 0 && upsert {
		doc := upsertSeed(f, updateSpec)
		if _, err := c.Insert([]bsonvalue.Value{doc}); err != nil {
			return 0, err
		}
		return 1, nil
	}

	if matched > 0 {
		if err := c.syncIndexRootsAndSave(); err != nil {
			return matched, err
		}
	}
	return matched, nil
}

// applyUpdateToSlot writes newDoc's bytes to (id, slot) and mirrors the
// change into every index; a uniqueness violation restores the
// original bytes so the document write and the index state stay in
// sync. If the restore write itself fails, the handle is degraded
// rather than returning the uniqueness error as if nothing diverged.
func (c *Collection) applyUpdateToSlot(id page.ID, slot uint16, oldDoc, newDoc bsonvalue.Value) error {
	oldEncoded := bsonvalue.Encode(oldDoc)
	newEncoded := bsonvalue.Encode(newDoc)
	if len(newEncoded) > maxDocumentBytes {
		return fmt.Errorf("%w: updated document of %d bytes exceeds %d byte limit", monoerr.ErrInvalidArgument, len(newEncoded), maxDocumentBytes)
	}

	docID, _ := oldDoc.Get("_id")

	if err := c.updateRecordBytes(id, slot, newEncoded); err != nil {
		return err
	}
	if err := c.idx.ReplaceDocument(oldDoc, newDoc, docID); err != nil {
		if rerr := c.updateRecordBytes(id, slot, oldEncoded); rerr != nil {
			return c.degrade(rerr)
		}
		return err
	}
	return nil
}

// upsertSeed builds a starting document from a filter's direct
// equality clauses (operator clauses are skipped) before applying the
// update specification on top.
func upsertSeed(f filter.Filter, updateSpec bsonvalue.Value) bsonvalue.Value {
	var fields []bsonvalue.Field
	for _, clause := range f.Doc {
		if clause.Value.Kind == bsonvalue.KindDocument {
			continue // operator clause ($gt, $exists, ...); not a literal to seed with
		}
		fields = append(fields, clause)
	}
	seed := bsonvalue.DocumentOf(fields)
	applied, err := update.Apply(seed, updateSpec)
	if err != nil {
		return seed
	}
	return applied
}

// Delete removes every document matching f, returning the number
// removed.
func (c *Collection) Delete(f filter.Filter) (int, error) {
	return c.deleteMatching(f, false)
}

// DeleteOne removes at most one document matching f.
func (c *Collection) DeleteOne(f filter.Filter) (int, error) {
	return c.deleteMatching(f, true)
}

func (c *Collection) deleteMatching(f filter.Filter, single bool) (int, error) {
	if err := c.checkDegraded(); err != nil {
		return 0, err
	}
	type hit struct {
		id   page.ID
		slot uint16
		doc  bsonvalue.Value
	}
	var hits []hit

	err := c.iterate(func(id page.ID, slot uint16, doc bsonvalue.Value) (bool, error) {
		if !filter.Match(doc, f) {
			return true, nil
		}
		hits = append(hits, hit{id, slot, doc})
		return !single, nil
	})
	if err != nil {
		return 0, err
	}

	for _, h := range hits {
		docID, _ := h.doc.Get("_id")
		if err := c.idx.RemoveDocument(h.doc, docID); err != nil {
			return 0, err
		}
		if err := c.deleteRecord(h.id, h.slot); err != nil {
			return 0, err
		}
		c.meta().DocumentCount--
	}

	if len(hits) > 0 {
		if err := c.syncIndexRootsAndSave(); err != nil {
			return len(hits), err
		}
	}
	return len(hits), nil
}

// CreateIndex adds a new secondary index, building it from the
// collection's existing documents.
func (c *Collection) CreateIndex(spec catalog.IndexMeta) error {
	if err := c.checkDegraded(); err != nil {
		return err
	}
	root, err := c.idx.CreateIndex(spec)
	if err != nil {
		return err
	}
	spec.RootPageID = root
	meta := c.meta()
	meta.Indexes = append(meta.Indexes, spec)

	err = c.iterate(func(_ page.ID, _ uint16, doc bsonvalue.Value) (bool, error) {
		docID, _ := doc.Get("_id")
		err := c.idx.InsertDocumentInto(spec.Name, doc, docID)
		return true, err
	})
	if err != nil {
		return err
	}
	return c.syncIndexRootsAndSave()
}
