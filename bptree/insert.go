package bptree

import (
	"monolite/monoerr"
	"monolite/page"
)

// isFull reports whether n has reached either the count-driven or the
// byte-driven capacity limit and must be split before another entry is
// routed through it.
func isFull(n *Node) bool {
	if len(n.Keys) >= Order-1 {
		return true
	}
	return n.serializedSize() >= SplitThreshold
}

// Insert adds key/value to the tree. Unique trees reject a duplicate
// key with ErrDuplicateKey; non-unique trees expect the caller to have
// already disambiguated the key (e.g. by suffixing an id) before
// calling Insert, and so never observe a collision here.
func (t *Tree) Insert(key, value []byte) error {
	if err := validateKeyValue(key, value); err != nil {
		return err
	}

	root, err := t.readNode(t.root)
	if err != nil {
		return err
	}

	if isFull(root) {
		newRoot, err := t.allocNode(false)
		if err != nil {
			return err
		}
		newRoot.Children = []page.ID{root.PageID}
		if err := t.splitChildAt(newRoot, 0, root); err != nil {
			return err
		}
		t.root = newRoot.PageID
		root = newRoot
	}

	return t.insertInto(root, key, value)
}

// insertInto descends from n, pre-splitting any full child encountered
// along the way so that no split ever needs to propagate back up after
// the fact.
func (t *Tree) insertInto(n *Node, key, value []byte) error {
	if n.IsLeaf {
		idx, exists := leafInsertIndex(n, key)
		if exists {
			if t.unique {
				return monoerr.ErrDuplicateKey
			}
			n.Keys[idx] = key
			n.Values[idx] = value
			return t.writeNode(n)
		}
		n.Keys = append(n.Keys, nil)
		n.Values = append(n.Values, nil)
		copy(n.Keys[idx+1:], n.Keys[idx:])
		copy(n.Values[idx+1:], n.Values[idx:])
		n.Keys[idx] = key
		n.Values[idx] = value
		return t.writeNode(n)
	}

	idx := childIndex(n, key)
	child, err := t.readNode(n.Children[idx])
	if err != nil {
		return err
	}

	if isFull(child) {
		if err := t.splitChildAt(n, idx, child); err != nil {
			return err
		}
		idx = childIndex(n, key)
		child, err = t.readNode(n.Children[idx])
		if err != nil {
			return err
		}
	}

	return t.insertInto(child, key, value)
}

// splitChildAt splits parent.Children[idx] (== child) into two nodes,
// inserting the promoted key and new sibling pointer into parent at the
// right position, and persists parent, child, and the new sibling.
func (t *Tree) splitChildAt(parent *Node, idx int, child *Node) error {
	var sibling *Node
	var upKey []byte
	var err error

	if child.IsLeaf {
		sibling, upKey, err = splitLeaf(t, child)
	} else {
		sibling, upKey, err = splitInternal(t, child)
	}
	if err != nil {
		return err
	}

	parent.Keys = append(parent.Keys, nil)
	copy(parent.Keys[idx+1:], parent.Keys[idx:])
	parent.Keys[idx] = upKey

	parent.Children = append(parent.Children, 0)
	copy(parent.Children[idx+2:], parent.Children[idx+1:])
	parent.Children[idx+1] = sibling.PageID

	if err := t.writeNode(child); err != nil {
		return err
	}
	if err := t.writeNode(sibling); err != nil {
		return err
	}
	return t.writeNode(parent)
}
