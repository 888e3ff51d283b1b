// ABOUTME: B+Tree node layout over fixed-size byte pages
// ABOUTME: Copy-on-write node builders used by insert, delete, split and merge

package btree

import (
	"bytes"
	"encoding/binary"
)

const (
	nodeInternal = 1 // internal nodes, values unused
	nodeLeaf     = 2 // leaf nodes carry values
)

const (
	header = 4

	// PageSize is the size of one node page. Nodes under construction may
	// temporarily use two pages before being split.
	PageSize = 16384
	// MaxKeySize bounds a single key stored in the tree.
	MaxKeySize = 4096
	// MaxValSize bounds a single value stored in the tree. Callers keep large
	// payloads out of line and store a pointer instead.
	MaxValSize = 256
)

// BNode is a node page:
//
//	| type | nkeys | pointers   | offsets    | key-values
//	|  2B  |  2B   | nkeys * 8B | nkeys * 2B | ...
//
// and each key-value is | klen 2B | vlen 2B | key | val |.
type BNode []byte

func (node BNode) btype() uint16 {
	return binary.LittleEndian.Uint16(node[0:2])
}

func (node BNode) nkeys() uint16 {
	return binary.LittleEndian.Uint16(node[2:4])
}

func (node BNode) setHeader(btype uint16, nkeys uint16) {
	binary.LittleEndian.PutUint16(node[0:2], btype)
	binary.LittleEndian.PutUint16(node[2:4], nkeys)
}

func (node BNode) getPtr(idx uint16) uint64 {
	if idx >= node.nkeys() {
		panic("btree: pointer index out of range")
	}
	return binary.LittleEndian.Uint64(node[header+8*idx:])
}

func (node BNode) setPtr(idx uint16, val uint64) {
	if idx >= node.nkeys() {
		panic("btree: pointer index out of range")
	}
	binary.LittleEndian.PutUint64(node[header+8*idx:], val)
}

func offsetPos(node BNode, idx uint16) uint16 {
	if idx < 1 || idx > node.nkeys() {
		panic("btree: offset index out of range")
	}
	return header + 8*node.nkeys() + 2*(idx-1)
}

// getOffset returns the offset of the idx-th KV relative to the first one.
func (node BNode) getOffset(idx uint16) uint16 {
	if idx == 0 {
		return 0
	}
	return binary.LittleEndian.Uint16(node[offsetPos(node, idx):])
}

func (node BNode) setOffset(idx uint16, offset uint16) {
	binary.LittleEndian.PutUint16(node[offsetPos(node, idx):], offset)
}

func (node BNode) kvPos(idx uint16) uint16 {
	if idx > node.nkeys() {
		panic("btree: kv index out of range")
	}
	return header + 10*node.nkeys() + node.getOffset(idx)
}

func (node BNode) getKey(idx uint16) []byte {
	if idx >= node.nkeys() {
		panic("btree: key index out of range")
	}
	pos := node.kvPos(idx)
	klen := binary.LittleEndian.Uint16(node[pos:])
	return node[pos+4:][:klen]
}

func (node BNode) getVal(idx uint16) []byte {
	if idx >= node.nkeys() {
		panic("btree: value index out of range")
	}
	pos := node.kvPos(idx)
	klen := binary.LittleEndian.Uint16(node[pos+0:])
	vlen := binary.LittleEndian.Uint16(node[pos+2:])
	return node[pos+4+klen:][:vlen]
}

// nbytes is the used size of the node.
func (node BNode) nbytes() uint16 {
	return node.kvPos(node.nkeys())
}

// nodeLookupLE returns the index of the last key <= key. Index 0 always
// qualifies: it is either the empty sentinel or a copy of the parent's key.
func nodeLookupLE(node BNode, key []byte) uint16 {
	nkeys := node.nkeys()
	found := uint16(0)
	for i := uint16(1); i < nkeys; i++ {
		cmp := bytes.Compare(node.getKey(i), key)
		if cmp <= 0 {
			found = i
		}
		if cmp >= 0 {
			break
		}
	}
	return found
}

// nodeAppendRange copies n KVs starting at srcOld in old to dstNew in new.
func nodeAppendRange(new BNode, old BNode, dstNew uint16, srcOld uint16, n uint16) {
	if srcOld+n > old.nkeys() || dstNew+n > new.nkeys() {
		panic("btree: append range out of bounds")
	}
	if n == 0 {
		return
	}

	if old.btype() == nodeInternal {
		for i := uint16(0); i < n; i++ {
			new.setPtr(dstNew+i, old.getPtr(srcOld+i))
		}
	}

	dstBegin := new.getOffset(dstNew)
	srcBegin := old.getOffset(srcOld)
	for i := uint16(1); i <= n; i++ {
		new.setOffset(dstNew+i, dstBegin+old.getOffset(srcOld+i)-srcBegin)
	}

	begin := old.kvPos(srcOld)
	end := old.kvPos(srcOld + n)
	copy(new[new.kvPos(dstNew):], old[begin:end])
}

func nodeAppendKV(new BNode, idx uint16, ptr uint64, key []byte, val []byte) {
	new.setPtr(idx, ptr)

	pos := new.kvPos(idx)
	binary.LittleEndian.PutUint16(new[pos+0:], uint16(len(key)))
	binary.LittleEndian.PutUint16(new[pos+2:], uint16(len(val)))
	copy(new[pos+4:], key)
	copy(new[pos+4+uint16(len(key)):], val)

	new.setOffset(idx+1, new.getOffset(idx)+4+uint16(len(key)+len(val)))
}

// nodeSplit2 moves the tail of old into right so that right fits in a page.
// left may still be oversized; nodeSplit3 splits it again.
func nodeSplit2(left BNode, right BNode, old BNode) {
	nkeys := old.nkeys()
	if nkeys < 2 {
		panic("btree: cannot split a node with fewer than 2 keys")
	}

	nleft := nkeys / 2
	leftBytes := func() uint16 {
		return header + 10*nleft + old.getOffset(nleft)
	}
	rightBytes := func() uint16 {
		return old.nbytes() - leftBytes() + header
	}
	for nleft > 1 && leftBytes() > PageSize {
		nleft--
	}
	for nleft < nkeys-1 && rightBytes() > PageSize {
		nleft++
	}

	left.setHeader(old.btype(), nleft)
	nodeAppendRange(left, old, 0, 0, nleft)
	right.setHeader(old.btype(), nkeys-nleft)
	nodeAppendRange(right, old, 0, nleft, nkeys-nleft)
}

// nodeSplit3 splits an oversized node into at most 3 page-sized nodes.
func nodeSplit3(old BNode) (uint16, [3]BNode) {
	if old.nbytes() <= PageSize {
		return 1, [3]BNode{old[:PageSize]}
	}

	left := BNode(make([]byte, 2*PageSize))
	right := BNode(make([]byte, PageSize))
	nodeSplit2(left, right, old)
	if left.nbytes() <= PageSize {
		return 2, [3]BNode{left[:PageSize], right}
	}

	leftleft := BNode(make([]byte, 2*PageSize))
	middle := BNode(make([]byte, PageSize))
	nodeSplit2(leftleft, middle, left)
	if leftleft.nbytes() > PageSize {
		panic("btree: node does not fit after 3-way split")
	}
	return 3, [3]BNode{leftleft[:PageSize], middle, right}
}

func init() {
	node1max := header + 8 + 2 + 4 + MaxKeySize + MaxValSize
	if node1max > PageSize {
		panic("btree: max key-value exceeds page size")
	}
}
