// Package database is the top-level handle an embedding application
// opens: one data file, its catalog, and the collections opened out of
// it, mirroring the storage engine's own role as the thing that wires
// the pager, catalog, and index manager together behind one API.
package database

import (
	"fmt"
	"sync"

	"monolite/catalog"
	"monolite/collection"
	"monolite/monoerr"
	"monolite/pager"
)

// DB is one open database file.
type DB struct {
	mu          sync.Mutex
	pager       *pager.Pager
	cat         *catalog.Catalog
	collections map[string]*collection.Collection
	degraded    bool
}

// Open opens path, creating it if it does not exist, replaying any
// pending WAL records, and decoding the catalog.
func Open(path string) (*DB, error) {
	p, err := pager.Open(path)
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", path, err)
	}

	cat, err := catalog.Load(p)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("database: load catalog: %w", err)
	}

	return &DB{
		pager:       p,
		cat:         cat,
		collections: make(map[string]*collection.Collection),
	}, nil
}

// Close flushes and closes the underlying file.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, c := range db.collections {
		c.Close()
	}
	return db.pager.Close()
}

// CollectionNames lists every collection currently in the catalog.
func (db *DB) CollectionNames() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	names := make([]string, 0, len(db.cat.Collections))
	for _, m := range db.cat.Collections {
		names = append(names, m.Name)
	}
	return names
}

// Collection returns the named collection, creating it on first
// reference, matching the source's get-or-create accessor semantics.
func (db *DB) Collection(name string) (*collection.Collection, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.degraded {
		return nil, monoerr.ErrDegraded
	}

	if c, ok := db.collections[name]; ok {
		return c, nil
	}

	c, err := collection.Open(db.pager, db.cat, name, db.markDegraded)
	if err != nil {
		return nil, err
	}
	db.collections[name] = c
	return c, nil
}

// markDegraded flags the database handle as degraded, the database-level
// half of a Collection's onDegrade callback: once a collection hits an
// unrecoverable rollback/restore failure, every other collection opened
// from this handle must also refuse further work until reopened.
func (db *DB) markDegraded() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.degraded = true
}

// DropCollection removes name from the catalog and drops its in-process
// handle. Its data and index pages are left allocated: neither the
// B+Tree nor the slotted page format supports bulk reclamation, so
// freeing a whole collection's pages is the same out-of-scope gap
// DropIndex already documents for a single index.
func (db *DB) DropCollection(name string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if c, ok := db.collections[name]; ok {
		c.Close()
		delete(db.collections, name)
	}

	if !db.cat.DropCollection(name) {
		return false, nil
	}
	if err := db.cat.Save(); err != nil {
		db.degraded = true
		return false, err
	}
	return true, nil
}
