package bptree

import (
	"fmt"

	"monolite/monoerr"
	"monolite/page"
)

// Backend is the subset of the pager the tree needs: page I/O and
// allocation. Satisfied by *pager.Pager.
type Backend interface {
	ReadPage(id page.ID) (*page.Page, error)
	AllocatePage(typ page.Type) (*page.Page, error)
	WritePage(pg *page.Page) error
	FreePage(id page.ID) error
}

// Tree is a persistent B+Tree over one Backend, rooted at a page id
// recorded by the caller (typically the catalog).
type Tree struct {
	backend Backend
	root    page.ID
	unique  bool
}

// Create allocates a fresh, empty tree (a single empty leaf root).
func Create(backend Backend, unique bool) (*Tree, error) {
	pg, err := backend.AllocatePage(page.TypeIndex)
	if err != nil {
		return nil, err
	}
	root := newLeaf(pg.ID)
	t := &Tree{backend: backend, root: pg.ID, unique: unique}
	if err := t.writeNode(root); err != nil {
		return nil, err
	}
	return t, nil
}

// Open wraps an existing tree rooted at rootID.
func Open(backend Backend, rootID page.ID, unique bool) *Tree {
	return &Tree{backend: backend, root: rootID, unique: unique}
}

// RootPageID returns the tree's current root page id, which callers
// persist (e.g. in the catalog) across reopens.
func (t *Tree) RootPageID() page.ID {
	return t.root
}

func (t *Tree) readNode(id page.ID) (*Node, error) {
	pg, err := t.backend.ReadPage(id)
	if err != nil {
		return nil, err
	}
	return unmarshalNode(id, pg.Data[:])
}

func (t *Tree) writeNode(n *Node) error {
	data, err := n.marshal()
	if err != nil {
		return err
	}
	pg := page.New(n.PageID, page.TypeIndex)
	pg.Data = data
	if n.IsLeaf {
		pg.NextPageID = n.Next
		pg.PrevPageID = n.Prev
	}
	pg.ItemCount = uint16(len(n.Keys))
	return t.backend.WritePage(pg)
}

func (t *Tree) allocNode(isLeaf bool) (*Node, error) {
	pg, err := t.backend.AllocatePage(page.TypeIndex)
	if err != nil {
		return nil, err
	}
	if isLeaf {
		return newLeaf(pg.ID), nil
	}
	return newInternal(pg.ID), nil
}

// validateKeyValue enforces the key/value length limits from spec.
func validateKeyValue(key, value []byte) error {
	if len(key) > MaxKeyLen {
		return fmt.Errorf("%w: key length %d exceeds %d", monoerr.ErrInvalidArgument, len(key), MaxKeyLen)
	}
	if value != nil && len(value) > MaxValueLen {
		return fmt.Errorf("%w: value length %d exceeds %d", monoerr.ErrInvalidArgument, len(value), MaxValueLen)
	}
	return nil
}

// childIndex returns the leftmost child index i such that key <
// node.Keys[i], i.e. the child the search/insert should descend into.
func childIndex(n *Node, key []byte) int {
	for i, k := range n.Keys {
		if compareKeys(key, k) < 0 {
			return i
		}
	}
	return len(n.Keys)
}

// leafInsertIndex returns the sorted insertion index for key within a
// leaf's key slice, along with whether key already exists there.
func leafInsertIndex(n *Node, key []byte) (int, bool) {
	for i, k := range n.Keys {
		c := compareKeys(key, k)
		if c == 0 {
			return i, true
		}
		if c < 0 {
			return i, false
		}
	}
	return len(n.Keys), false
}

// Search descends to the leaf that would contain key and performs a
// linear search, returning the stored value and true, or nil, false.
func (t *Tree) Search(key []byte) ([]byte, bool, error) {
	n, err := t.readNode(t.root)
	if err != nil {
		return nil, false, err
	}
	for !n.IsLeaf {
		idx := childIndex(n, key)
		n, err = t.readNode(n.Children[idx])
		if err != nil {
			return nil, false, err
		}
	}
	for i, k := range n.Keys {
		c := compareKeys(key, k)
		if c == 0 {
			return n.Values[i], true, nil
		}
		if c < 0 {
			break // keys are ascending; key would have sorted before here
		}
	}
	return nil, false, nil
}

// findLeafContaining descends to the leaf that would hold key (or the
// first leaf, if key is nil).
func (t *Tree) findLeafContaining(key []byte) (*Node, error) {
	n, err := t.readNode(t.root)
	if err != nil {
		return nil, err
	}
	for !n.IsLeaf {
		var idx int
		if key == nil {
			idx = 0
		} else {
			idx = childIndex(n, key)
		}
		n, err = t.readNode(n.Children[idx])
		if err != nil {
			return nil, err
		}
	}
	return n, nil
}

// RangeResult is one (key, value) pair returned by RangeScan.
type RangeResult struct {
	Key   []byte
	Value []byte
}

// RangeScan walks the leaf chain starting from the leaf containing min
// (or the first leaf, if min is nil), emitting entries within
// [min, max] subject to the inclusivity flags, stopping at limit entries
// (0 means unlimited) or once past max.
func (t *Tree) RangeScan(min, max []byte, minInclusive, maxInclusive bool, limit int) ([]RangeResult, error) {
	leaf, err := t.findLeafContaining(min)
	if err != nil {
		return nil, err
	}

	var out []RangeResult
	for leaf != nil {
		for i, k := range leaf.Keys {
			if min != nil {
				c := compareKeys(k, min)
				if c < 0 || (c == 0 && !minInclusive) {
					continue
				}
			}
			if max != nil {
				c := compareKeys(k, max)
				if c > 0 || (c == 0 && !maxInclusive) {
					return out, nil
				}
			}
			out = append(out, RangeResult{Key: k, Value: leaf.Values[i]})
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
		if leaf.Next == 0 {
			break
		}
		leaf, err = t.readNode(leaf.Next)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// All walks the entire leaf chain in order; a convenience over RangeScan.
func (t *Tree) All() ([]RangeResult, error) {
	return t.RangeScan(nil, nil, true, true, 0)
}

// Verify checks the structural invariants from the testable-properties
// list: strictly ascending keys within each node (respecting the bounds
// propagated from ancestors), correct children-vs-keys counts on
// internal nodes, and a leaf chain whose prev/next pointers are mutual
// inverses with strictly increasing boundary keys.
func (t *Tree) Verify() error {
	_, _, err := t.verifyNode(t.root, nil, nil)
	if err != nil {
		return err
	}
	return t.verifyLeafChain()
}

func (t *Tree) verifyNode(id page.ID, minKey, maxKey []byte) (firstKey, lastKey []byte, err error) {
	n, err := t.readNode(id)
	if err != nil {
		return nil, nil, err
	}

	for i := 1; i < len(n.Keys); i++ {
		if compareKeys(n.Keys[i-1], n.Keys[i]) >= 0 {
			return nil, nil, fmt.Errorf("bptree: node %d keys not strictly ascending at index %d", id, i)
		}
	}
	for _, k := range n.Keys {
		if minKey != nil && compareKeys(k, minKey) < 0 {
			return nil, nil, fmt.Errorf("bptree: node %d key below inherited lower bound", id)
		}
		if maxKey != nil && compareKeys(k, maxKey) >= 0 {
			return nil, nil, fmt.Errorf("bptree: node %d key at/above inherited upper bound", id)
		}
	}

	if n.IsLeaf {
		if len(n.Values) != len(n.Keys) {
			return nil, nil, fmt.Errorf("bptree: leaf %d values/keys length mismatch", id)
		}
		if len(n.Keys) == 0 {
			return nil, nil, nil
		}
		return n.Keys[0], n.Keys[len(n.Keys)-1], nil
	}

	if len(n.Children) != len(n.Keys)+1 {
		return nil, nil, fmt.Errorf("bptree: internal %d children/keys length mismatch", id)
	}

	var first, last []byte
	for i, child := range n.Children {
		childMin, childMax := minKey, maxKey
		if i > 0 {
			childMin = n.Keys[i-1]
		}
		if i < len(n.Keys) {
			childMax = n.Keys[i]
		}
		cf, cl, err := t.verifyNode(child, childMin, childMax)
		if err != nil {
			return nil, nil, err
		}
		if i == 0 {
			first = cf
		}
		if i == len(n.Children)-1 {
			last = cl
		}
	}
	return first, last, nil
}

func (t *Tree) verifyLeafChain() error {
	leaf, err := t.findLeafContaining(nil)
	if err != nil {
		return err
	}

	var prevID page.ID
	var prevLastKey []byte
	for leaf != nil {
		if leaf.Prev != prevID {
			return fmt.Errorf("bptree: leaf %d prev pointer %d does not match actual predecessor %d", leaf.PageID, leaf.Prev, prevID)
		}
		if len(leaf.Keys) > 0 {
			if prevLastKey != nil && compareKeys(prevLastKey, leaf.Keys[0]) >= 0 {
				return fmt.Errorf("bptree: leaf chain out of order at %d", leaf.PageID)
			}
			prevLastKey = leaf.Keys[len(leaf.Keys)-1]
		}
		prevID = leaf.PageID
		if leaf.Next == 0 {
			break
		}
		leaf, err = t.readNode(leaf.Next)
		if err != nil {
			return err
		}
	}
	return nil
}
