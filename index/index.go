// Package index implements the Index Manager: binds B+Trees to
// collections, encodes index keys from documents, enforces uniqueness,
// and coordinates with document mutations driven by the collection layer.
package index

import (
	"monolite/bptree"
	"monolite/bsonvalue"
	"monolite/catalog"
	"monolite/page"
)

// Manager opens and mutates the B+Trees backing one collection's
// indexes, keyed by index name. The implicit "_id" index is always
// present and unique.
type Manager struct {
	backend bptree.Backend
	trees   map[string]*bptree.Tree
	specs   map[string]catalog.IndexMeta
}

// Open wires up a Manager from a collection's catalog metadata,
// opening each index's existing tree by root page id.
func Open(backend bptree.Backend, meta *catalog.CollectionMeta) *Manager {
	m := &Manager{
		backend: backend,
		trees:   make(map[string]*bptree.Tree),
		specs:   make(map[string]catalog.IndexMeta),
	}

	idSpec := catalog.IndexMeta{Name: "_id", Keys: []string{"_id"}, Unique: true, RootPageID: meta.IDIndexRootPageID}
	m.specs["_id"] = idSpec
	m.trees["_id"] = bptree.Open(backend, meta.IDIndexRootPageID, true)

	for _, idx := range meta.Indexes {
		m.specs[idx.Name] = idx
		m.trees[idx.Name] = bptree.Open(backend, idx.RootPageID, idx.Unique)
	}
	return m
}

// CreateIDIndex allocates the fresh "_id" index tree for a new, empty
// collection and returns its root page id for the catalog to persist.
func CreateIDIndex(backend bptree.Backend) (*bptree.Tree, error) {
	return bptree.Create(backend, true)
}

// CreateIndex allocates a new secondary index's tree.
func (m *Manager) CreateIndex(spec catalog.IndexMeta) (page.ID, error) {
	tree, err := bptree.Create(m.backend, spec.Unique)
	if err != nil {
		return 0, err
	}
	spec.RootPageID = tree.RootPageID()
	m.specs[spec.Name] = spec
	m.trees[spec.Name] = tree
	return spec.RootPageID, nil
}

// DropIndex discards a secondary index's tree reference; the caller is
// responsible for reclaiming its pages (out of scope: the B+Tree has no
// bulk-free operation, matching the source's own behavior).
func (m *Manager) DropIndex(name string) {
	delete(m.trees, name)
	delete(m.specs, name)
}

// IndexNames returns every index name this manager knows about,
// including the implicit "_id" index.
func (m *Manager) IndexNames() []string {
	names := make([]string, 0, len(m.trees))
	for name := range m.trees {
		names = append(names, name)
	}
	return names
}

// RootPageIDs returns the current root page id for every managed
// index, used to persist updated roots after splits/merges.
func (m *Manager) RootPageIDs() map[string]page.ID {
	out := make(map[string]page.ID, len(m.trees))
	for name, tree := range m.trees {
		out[name] = tree.RootPageID()
	}
	return out
}

// encodeKey concatenates the codec encoding of each projected field in
// spec.Keys. A missing field contributes a single null byte. Non-unique
// indexes are suffixed with a null byte and the encoded document id to
// guarantee tree-level uniqueness while preserving logical-key order.
func encodeKey(doc bsonvalue.Value, spec catalog.IndexMeta, docID bsonvalue.Value) []byte {
	var key []byte
	for _, field := range spec.Keys {
		v, ok := doc.GetPath(field)
		if !ok {
			key = append(key, 0)
			continue
		}
		key = append(key, bsonvalue.Encode(v)...)
	}
	if !spec.Unique {
		key = append(key, 0)
		key = append(key, bsonvalue.Encode(bsonvalue.DocumentOf([]bsonvalue.Field{
			{Name: "_id", Value: docID},
		}))...)
	}
	return key
}

// InsertDocument adds index entries for doc (keyed by docID) into every
// managed index. If any index rejects the key as a duplicate, the
// returned committed names list the indexes already written; the caller
// passes them to RemoveEntriesFor to roll back — InsertDocument itself
// does not retry.
func (m *Manager) InsertDocument(doc bsonvalue.Value, docID bsonvalue.Value) (committed []string, err error) {
	for _, name := range m.orderedNames() {
		spec := m.specs[name]
		key := encodeKey(doc, spec, docID)
		value := bsonvalue.Encode(docID)
		if ierr := m.trees[name].Insert(key, value); ierr != nil {
			return committed, ierr
		}
		committed = append(committed, name)
	}
	return committed, nil
}

// InsertDocumentInto adds a single index entry for doc into exactly the
// named index, used by Collection Storage to backfill a newly created
// index against documents that already exist — unlike InsertDocument,
// it never touches any other managed index, so it can't collide with
// entries those indexes already hold for this document.
func (m *Manager) InsertDocumentInto(name string, doc bsonvalue.Value, docID bsonvalue.Value) error {
	spec := m.specs[name]
	key := encodeKey(doc, spec, docID)
	return m.trees[name].Insert(key, bsonvalue.Encode(docID))
}

// RemoveEntriesFor deletes doc's entries from exactly the named
// indexes, used both for ordinary document deletion and for rollback
// after a partial InsertDocument failure.
func (m *Manager) RemoveEntriesFor(doc bsonvalue.Value, docID bsonvalue.Value, names []string) error {
	for _, name := range names {
		spec, ok := m.specs[name]
		if !ok {
			continue
		}
		key := encodeKey(doc, spec, docID)
		if err := m.trees[name].Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// RemoveDocument deletes doc's entries from every managed index.
func (m *Manager) RemoveDocument(doc bsonvalue.Value, docID bsonvalue.Value) error {
	return m.RemoveEntriesFor(doc, docID, m.orderedNames())
}

// ReplaceDocument removes the pre-image's entries and inserts the
// post-image's, used by Collection Storage's update path. If the new
// entries violate uniqueness, the post-image entries already written are
// removed and the pre-image's entries are re-inserted before the error
// is returned; the caller still restores the document bytes itself.
func (m *Manager) ReplaceDocument(oldDoc, newDoc bsonvalue.Value, docID bsonvalue.Value) error {
	if err := m.RemoveDocument(oldDoc, docID); err != nil {
		return err
	}
	committed, err := m.InsertDocument(newDoc, docID)
	if err != nil {
		if rerr := m.RemoveEntriesFor(newDoc, docID, committed); rerr != nil {
			return rerr
		}
		if _, rerr := m.InsertDocument(oldDoc, docID); rerr != nil {
			return rerr
		}
	}
	return err
}

func (m *Manager) orderedNames() []string {
	names := make([]string, 0, len(m.specs))
	names = append(names, "_id")
	for name := range m.specs {
		if name != "_id" {
			names = append(names, name)
		}
	}
	return names
}
