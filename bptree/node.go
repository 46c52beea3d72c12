// Package bptree implements a persistent B+Tree mapping opaque byte-string
// keys to opaque byte-string values, with unique and non-unique variants,
// serialized into 4096-byte pages via the pager package.
package bptree

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"monolite/page"
)

const (
	// Order upper-bounds the number of keys any node may hold before a
	// split is forced purely by count.
	Order = 50

	// MinKeys is the minimum number of keys a non-root node must retain
	// after a delete before it is considered underflowing.
	MinKeys = (Order - 1) / 2

	// MaxNodeBytes is the byte-driven ceiling on a serialized node's
	// size: max_page_data - 64.
	MaxNodeBytes = page.DataSize - 64

	// SplitThreshold is 3/4 of MaxNodeBytes: insertion that would push a
	// node's serialized size past this triggers a split.
	SplitThreshold = MaxNodeBytes * 3 / 4

	// MaxKeyLen is a page-data quarter, the largest key this tree accepts.
	MaxKeyLen = page.DataSize / 4

	// MaxValueLen is the largest value a leaf entry may hold.
	MaxValueLen = 256
)

// Node is the in-memory form of one B+Tree page.
type Node struct {
	PageID   page.ID
	IsLeaf   bool
	Keys     [][]byte
	Values   [][]byte  // leaf only; len(Values) == len(Keys)
	Children []page.ID // internal only; len(Children) == len(Keys)+1
	Next     page.ID   // leaf only
	Prev     page.ID   // leaf only
}

func newLeaf(id page.ID) *Node {
	return &Node{PageID: id, IsLeaf: true}
}

func newInternal(id page.ID) *Node {
	return &Node{PageID: id, IsLeaf: false}
}

// serializedSize returns the byte size of the node's marshaled form.
func (n *Node) serializedSize() int {
	size := 1 + 2 + 4 + 4 // is-leaf, key_count, next, prev
	for _, k := range n.Keys {
		size += 2 + len(k)
	}
	if n.IsLeaf {
		for _, v := range n.Values {
			size += 2 + len(v)
		}
	} else {
		size += 4 * len(n.Children)
	}
	return size
}

// marshal serializes the node into a page's data area.
func (n *Node) marshal() ([page.DataSize]byte, error) {
	var buf [page.DataSize]byte
	size := n.serializedSize()
	if size > page.DataSize {
		return buf, fmt.Errorf("bptree: node %d serializes to %d bytes, exceeds page capacity", n.PageID, size)
	}

	w := buf[:0]
	if n.IsLeaf {
		w = append(w, 1)
	} else {
		w = append(w, 0)
	}
	w = appendU16(w, uint16(len(n.Keys)))
	w = appendU32(w, uint32(n.Next))
	w = appendU32(w, uint32(n.Prev))

	for _, k := range n.Keys {
		w = appendU16(w, uint16(len(k)))
		w = append(w, k...)
	}

	if n.IsLeaf {
		for _, v := range n.Values {
			w = appendU16(w, uint16(len(v)))
			w = append(w, v...)
		}
	} else {
		for _, c := range n.Children {
			w = appendU32(w, uint32(c))
		}
	}

	copy(buf[:], w)
	return buf, nil
}

func appendU16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

// unmarshalNode parses a node out of a page's data area.
func unmarshalNode(id page.ID, data []byte) (*Node, error) {
	if len(data) < 11 {
		return nil, fmt.Errorf("bptree: node %d: data area too short", id)
	}
	n := &Node{PageID: id}
	n.IsLeaf = data[0] == 1
	keyCount := int(binary.LittleEndian.Uint16(data[1:3]))
	n.Next = page.ID(binary.LittleEndian.Uint32(data[3:7]))
	n.Prev = page.ID(binary.LittleEndian.Uint32(data[7:11]))

	off := 11
	n.Keys = make([][]byte, keyCount)
	for i := 0; i < keyCount; i++ {
		if off+2 > len(data) {
			return nil, fmt.Errorf("bptree: node %d: truncated key length", id)
		}
		klen := int(binary.LittleEndian.Uint16(data[off : off+2]))
		off += 2
		if off+klen > len(data) {
			return nil, fmt.Errorf("bptree: node %d: truncated key", id)
		}
		key := make([]byte, klen)
		copy(key, data[off:off+klen])
		n.Keys[i] = key
		off += klen
	}

	if n.IsLeaf {
		n.Values = make([][]byte, keyCount)
		for i := 0; i < keyCount; i++ {
			if off+2 > len(data) {
				return nil, fmt.Errorf("bptree: node %d: truncated value length", id)
			}
			vlen := int(binary.LittleEndian.Uint16(data[off : off+2]))
			off += 2
			if off+vlen > len(data) {
				return nil, fmt.Errorf("bptree: node %d: truncated value", id)
			}
			val := make([]byte, vlen)
			copy(val, data[off:off+vlen])
			n.Values[i] = val
			off += vlen
		}
	} else {
		n.Children = make([]page.ID, keyCount+1)
		for i := 0; i <= keyCount; i++ {
			if off+4 > len(data) {
				return nil, fmt.Errorf("bptree: node %d: truncated child id", id)
			}
			n.Children[i] = page.ID(binary.LittleEndian.Uint32(data[off : off+4]))
			off += 4
		}
	}

	return n, nil
}

// compareKeys orders keys lexicographically over raw bytes, ties broken
// by length (shorter precedes longer) — equivalent to Go's bytes.Compare
// since a byte-wise lexicographic comparison already treats a prefix as
// smaller than any extension of it.
func compareKeys(a, b []byte) int {
	return bytes.Compare(a, b)
}
