package bptree

// entrySize returns the serialized footprint of entry i in n: the key
// plus whichever payload rides alongside it (a value in a leaf, a
// trailing child pointer in an internal node).
func entrySize(n *Node, i int) int {
	size := 2 + len(n.Keys[i])
	if n.IsLeaf {
		size += 2 + len(n.Values[i])
	} else {
		size += 4 // the child pointer to the right of Keys[i]
	}
	return size
}

// splitPoint scans left to right accumulating serialized entry size and
// returns the first index whose cumulative size reaches half of the
// node's total. maxMid further bounds the result (len(Keys)-1 for a
// leaf, which keeps the split key itself as the right half's first key;
// len(Keys)-2 for an internal node, whose split key is promoted out of
// both halves and so must leave at least one key on each side).
func splitPoint(n *Node, maxMid int) int {
	if maxMid < 1 {
		maxMid = 1
	}
	total := 0
	for i := range n.Keys {
		total += entrySize(n, i)
	}
	half := total / 2

	running := 0
	mid := 1
	for i := range n.Keys {
		running += entrySize(n, i)
		if running >= half {
			mid = i + 1
			break
		}
	}
	if mid < 1 {
		mid = 1
	}
	if mid > maxMid {
		mid = maxMid
	}
	return mid
}

// splitLeaf divides a leaf into two, returning the new right sibling and
// the key that should be copied up to the parent (the right sibling's
// first key). The leaf chain is relinked, including rewriting any
// previously-existing next sibling's Prev pointer; the caller is
// responsible for persisting both returned nodes.
func splitLeaf(t *Tree, left *Node) (right *Node, upKey []byte, err error) {
	mid := splitPoint(left, len(left.Keys)-1)

	right, err = t.allocNode(true)
	if err != nil {
		return nil, nil, err
	}

	right.Keys = append(right.Keys, left.Keys[mid:]...)
	right.Values = append(right.Values, left.Values[mid:]...)
	left.Keys = left.Keys[:mid]
	left.Values = left.Values[:mid]

	right.Next = left.Next
	right.Prev = left.PageID
	left.Next = right.PageID

	if right.Next != 0 {
		nextSibling, err := t.readNode(right.Next)
		if err != nil {
			return nil, nil, err
		}
		nextSibling.Prev = right.PageID
		if err := t.writeNode(nextSibling); err != nil {
			return nil, nil, err
		}
	}

	return right, right.Keys[0], nil
}

// splitInternal divides an internal node into two, returning the new
// right sibling and the key promoted to the parent (removed from both
// children, since internal separators are not duplicated in a B+Tree).
func splitInternal(t *Tree, left *Node) (right *Node, upKey []byte, err error) {
	mid := splitPoint(left, len(left.Keys)-2)

	right, err = t.allocNode(false)
	if err != nil {
		return nil, nil, err
	}

	upKey = left.Keys[mid]
	right.Keys = append(right.Keys, left.Keys[mid+1:]...)
	right.Children = append(right.Children, left.Children[mid+1:]...)

	left.Keys = left.Keys[:mid]
	left.Children = left.Children[:mid+1]

	return right, upKey, nil
}
