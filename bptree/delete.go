package bptree

import "monolite/page"

// Delete removes key from the tree. Deleting an absent key is not an
// error: it is a no-op, matching the idempotent-delete expectation
// placed on the collection layer above this tree.
func (t *Tree) Delete(key []byte) error {
	root, err := t.readNode(t.root)
	if err != nil {
		return err
	}

	if err := t.deleteFrom(root, key); err != nil {
		return err
	}

	root, err = t.readNode(t.root)
	if err != nil {
		return err
	}
	if !root.IsLeaf && len(root.Keys) == 0 {
		// The root collapsed to a single child; promote it. The old root
		// page is left in place — reclaiming it is the caller's call,
		// since nothing below the tree knows whether another reference
		// to it still exists.
		t.root = root.Children[0]
	}
	return nil
}

func (t *Tree) deleteFrom(n *Node, key []byte) error {
	if n.IsLeaf {
		idx, exists := leafInsertIndex(n, key)
		if !exists {
			return nil
		}
		n.Keys = append(n.Keys[:idx], n.Keys[idx+1:]...)
		n.Values = append(n.Values[:idx], n.Values[idx+1:]...)
		return t.writeNode(n)
	}

	idx := childIndex(n, key)
	child, err := t.readNode(n.Children[idx])
	if err != nil {
		return err
	}
	if err := t.deleteFrom(child, key); err != nil {
		return err
	}

	child, err = t.readNode(n.Children[idx])
	if err != nil {
		return err
	}
	if underflowed(child) {
		if err := t.fixUnderflow(n, idx); err != nil {
			return err
		}
	}
	return t.writeNode(n)
}

func underflowed(n *Node) bool {
	return len(n.Keys) < MinKeys
}

// fixUnderflow repairs parent.Children[idx], which has fallen below
// MinKeys, by borrowing a entry from a sibling if one has spare
// capacity, or merging with a sibling otherwise. It rewrites parent's
// keys/children in place.
func (t *Tree) fixUnderflow(parent *Node, idx int) error {
	child, err := t.readNode(parent.Children[idx])
	if err != nil {
		return err
	}

	if idx > 0 {
		left, err := t.readNode(parent.Children[idx-1])
		if err != nil {
			return err
		}
		if len(left.Keys) > MinKeys {
			return t.borrowFromLeft(parent, idx-1, left, child)
		}
	}

	if idx < len(parent.Children)-1 {
		right, err := t.readNode(parent.Children[idx+1])
		if err != nil {
			return err
		}
		if len(right.Keys) > MinKeys {
			return t.borrowFromRight(parent, idx, child, right)
		}
	}

	if idx > 0 {
		left, err := t.readNode(parent.Children[idx-1])
		if err != nil {
			return err
		}
		return t.mergeChildren(parent, idx-1, left, child)
	}

	right, err := t.readNode(parent.Children[idx+1])
	if err != nil {
		return err
	}
	return t.mergeChildren(parent, idx, child, right)
}

func (t *Tree) borrowFromLeft(parent *Node, leftIdx int, left, right *Node) error {
	if right.IsLeaf {
		n := len(left.Keys)
		borrowedKey := left.Keys[n-1]
		borrowedVal := left.Values[n-1]
		left.Keys = left.Keys[:n-1]
		left.Values = left.Values[:n-1]

		right.Keys = append([][]byte{borrowedKey}, right.Keys...)
		right.Values = append([][]byte{borrowedVal}, right.Values...)
		parent.Keys[leftIdx] = right.Keys[0]
	} else {
		n := len(left.Keys)
		borrowedKey := left.Keys[n-1]
		borrowedChild := left.Children[len(left.Children)-1]
		left.Keys = left.Keys[:n-1]
		left.Children = left.Children[:len(left.Children)-1]

		right.Keys = append([][]byte{parent.Keys[leftIdx]}, right.Keys...)
		right.Children = append([]page.ID{borrowedChild}, right.Children...)
		parent.Keys[leftIdx] = borrowedKey
	}

	if err := t.writeNode(left); err != nil {
		return err
	}
	return t.writeNode(right)
}

func (t *Tree) borrowFromRight(parent *Node, leftIdx int, left, right *Node) error {
	if left.IsLeaf {
		borrowedKey := right.Keys[0]
		borrowedVal := right.Values[0]
		right.Keys = right.Keys[1:]
		right.Values = right.Values[1:]

		left.Keys = append(left.Keys, borrowedKey)
		left.Values = append(left.Values, borrowedVal)
		parent.Keys[leftIdx] = right.Keys[0]
	} else {
		borrowedKey := right.Keys[0]
		borrowedChild := right.Children[0]
		right.Keys = right.Keys[1:]
		right.Children = right.Children[1:]

		left.Keys = append(left.Keys, parent.Keys[leftIdx])
		left.Children = append(left.Children, borrowedChild)
		parent.Keys[leftIdx] = borrowedKey
	}

	if err := t.writeNode(left); err != nil {
		return err
	}
	return t.writeNode(right)
}

// mergeChildren folds parent.Children[rightIdx] into
// parent.Children[leftIdx] and removes the separator key and the
// now-empty right slot from parent. The merged-away page is freed
// through the backend.
func (t *Tree) mergeChildren(parent *Node, leftIdx int, left, right *Node) error {
	if left.IsLeaf {
		left.Keys = append(left.Keys, right.Keys...)
		left.Values = append(left.Values, right.Values...)
		left.Next = right.Next
		if right.Next != 0 {
			nextSibling, err := t.readNode(right.Next)
			if err != nil {
				return err
			}
			nextSibling.Prev = left.PageID
			if err := t.writeNode(nextSibling); err != nil {
				return err
			}
		}
	} else {
		left.Keys = append(left.Keys, parent.Keys[leftIdx])
		left.Keys = append(left.Keys, right.Keys...)
		left.Children = append(left.Children, right.Children...)
	}

	parent.Keys = append(parent.Keys[:leftIdx], parent.Keys[leftIdx+1:]...)
	parent.Children = append(parent.Children[:leftIdx+1], parent.Children[leftIdx+2:]...)

	if err := t.writeNode(left); err != nil {
		return err
	}
	return t.backend.FreePage(right.PageID)
}
