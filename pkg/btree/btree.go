// ABOUTME: Copy-on-write B+Tree over pages supplied by a Pager
// ABOUTME: Insert, Get and Delete never modify a page in place

package btree

import (
	"bytes"
	"fmt"
)

// Pager owns the pages of a tree. Pages handed to Alloc are never written
// again by the tree, so a Pager may keep superseded pages alive for
// snapshots and release them later.
type Pager interface {
	Page(ptr uint64) []byte
	Alloc(node []byte) uint64
	Free(ptr uint64)
}

// BTree is an ordered map of byte keys to byte values. The leftmost leaf
// holds an empty sentinel key, so callers must not use empty keys.
type BTree struct {
	root  uint64
	pager Pager
}

// New returns an empty tree backed by p.
func New(p Pager) *BTree {
	return &BTree{pager: p}
}

// Root returns the root page pointer, 0 for an empty tree.
func (tree *BTree) Root() uint64 {
	return tree.root
}

// SetRoot points the tree at a previously saved root.
func (tree *BTree) SetRoot(root uint64) {
	tree.root = root
}

// Pages calls fn with every page reachable from the root, children first.
func (tree *BTree) Pages(fn func(ptr uint64)) {
	if tree.root == 0 {
		return
	}
	var walk func(ptr uint64)
	walk = func(ptr uint64) {
		node := tree.node(ptr)
		if node.btype() == nodeInternal {
			for i := uint16(0); i < node.nkeys(); i++ {
				walk(node.getPtr(i))
			}
		}
		fn(ptr)
	}
	walk(tree.root)
}

func (tree *BTree) node(ptr uint64) BNode {
	return BNode(tree.pager.Page(ptr))
}

func checkKV(key, val []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("btree: empty key")
	}
	if len(key) > MaxKeySize {
		return fmt.Errorf("btree: key of %d bytes exceeds %d", len(key), MaxKeySize)
	}
	if len(val) > MaxValSize {
		return fmt.Errorf("btree: value of %d bytes exceeds %d", len(val), MaxValSize)
	}
	return nil
}

// Get looks up key.
func (tree *BTree) Get(key []byte) ([]byte, bool) {
	if tree.root == 0 {
		return nil, false
	}
	node := tree.node(tree.root)
	for {
		idx := nodeLookupLE(node, key)
		switch node.btype() {
		case nodeLeaf:
			if bytes.Equal(key, node.getKey(idx)) {
				return node.getVal(idx), true
			}
			return nil, false
		case nodeInternal:
			node = tree.node(node.getPtr(idx))
		default:
			panic("btree: bad node type")
		}
	}
}

// Insert adds or replaces key.
func (tree *BTree) Insert(key []byte, val []byte) error {
	if err := checkKV(key, val); err != nil {
		return err
	}

	if tree.root == 0 {
		root := BNode(make([]byte, PageSize))
		root.setHeader(nodeLeaf, 2)
		nodeAppendKV(root, 0, 0, nil, nil)
		nodeAppendKV(root, 1, 0, key, val)
		tree.root = tree.pager.Alloc(root)
		return nil
	}

	node := treeInsert(tree, tree.node(tree.root), key, val)
	nsplit, split := nodeSplit3(node)
	tree.pager.Free(tree.root)

	if nsplit > 1 {
		root := BNode(make([]byte, PageSize))
		root.setHeader(nodeInternal, nsplit)
		for i, knode := range split[:nsplit] {
			ptr, first := tree.pager.Alloc(knode), knode.getKey(0)
			nodeAppendKV(root, uint16(i), ptr, first, nil)
		}
		tree.root = tree.pager.Alloc(root)
	} else {
		tree.root = tree.pager.Alloc(split[0])
	}
	return nil
}

// treeInsert returns a copy of node with key inserted. The copy may be up to
// two pages and is split by the caller.
func treeInsert(tree *BTree, node BNode, key []byte, val []byte) BNode {
	new := BNode(make([]byte, 2*PageSize))

	idx := nodeLookupLE(node, key)
	switch node.btype() {
	case nodeLeaf:
		if bytes.Equal(key, node.getKey(idx)) {
			leafUpdate(new, node, idx, key, val)
		} else {
			leafInsert(new, node, idx+1, key, val)
		}
	case nodeInternal:
		kptr := node.getPtr(idx)
		knode := treeInsert(tree, tree.node(kptr), key, val)
		nsplit, split := nodeSplit3(knode)
		tree.pager.Free(kptr)
		nodeReplaceKidN(tree, new, node, idx, split[:nsplit]...)
	default:
		panic("btree: bad node type")
	}
	return new
}

func leafInsert(new BNode, old BNode, idx uint16, key []byte, val []byte) {
	new.setHeader(nodeLeaf, old.nkeys()+1)
	nodeAppendRange(new, old, 0, 0, idx)
	nodeAppendKV(new, idx, 0, key, val)
	nodeAppendRange(new, old, idx+1, idx, old.nkeys()-idx)
}

func leafUpdate(new BNode, old BNode, idx uint16, key []byte, val []byte) {
	new.setHeader(nodeLeaf, old.nkeys())
	nodeAppendRange(new, old, 0, 0, idx)
	nodeAppendKV(new, idx, 0, key, val)
	nodeAppendRange(new, old, idx+1, idx+1, old.nkeys()-(idx+1))
}

// nodeReplaceKidN replaces the link at idx with links to kids.
func nodeReplaceKidN(tree *BTree, new BNode, old BNode, idx uint16, kids ...BNode) {
	inc := uint16(len(kids))
	new.setHeader(nodeInternal, old.nkeys()+inc-1)
	nodeAppendRange(new, old, 0, 0, idx)
	for i, kid := range kids {
		nodeAppendKV(new, idx+uint16(i), tree.pager.Alloc(kid), kid.getKey(0), nil)
	}
	nodeAppendRange(new, old, idx+inc, idx+1, old.nkeys()-(idx+1))
}

// Delete removes key and reports whether it was present.
func (tree *BTree) Delete(key []byte) bool {
	if tree.root == 0 || len(key) == 0 {
		return false
	}

	updated := treeDelete(tree, tree.node(tree.root), key)
	if len(updated) == 0 {
		return false
	}

	tree.pager.Free(tree.root)
	if updated.btype() == nodeInternal && updated.nkeys() == 1 {
		tree.root = updated.getPtr(0)
	} else {
		tree.root = tree.pager.Alloc(updated)
	}
	return true
}

func treeDelete(tree *BTree, node BNode, key []byte) BNode {
	idx := nodeLookupLE(node, key)
	switch node.btype() {
	case nodeLeaf:
		if !bytes.Equal(key, node.getKey(idx)) {
			return nil
		}
		new := BNode(make([]byte, PageSize))
		leafDelete(new, node, idx)
		return new
	case nodeInternal:
		return nodeDelete(tree, node, idx, key)
	default:
		panic("btree: bad node type")
	}
}

func leafDelete(new BNode, old BNode, idx uint16) {
	new.setHeader(nodeLeaf, old.nkeys()-1)
	nodeAppendRange(new, old, 0, 0, idx)
	nodeAppendRange(new, old, idx, idx+1, old.nkeys()-(idx+1))
}

func nodeDelete(tree *BTree, node BNode, idx uint16, key []byte) BNode {
	kptr := node.getPtr(idx)
	updated := treeDelete(tree, tree.node(kptr), key)
	if len(updated) == 0 {
		return nil
	}
	tree.pager.Free(kptr)

	new := BNode(make([]byte, PageSize))
	mergeDir, sibling := shouldMerge(tree, node, idx, updated)
	switch {
	case mergeDir < 0:
		merged := BNode(make([]byte, PageSize))
		nodeMerge(merged, sibling, updated)
		tree.pager.Free(node.getPtr(idx - 1))
		nodeReplace2Kid(new, node, idx-1, tree.pager.Alloc(merged), merged.getKey(0))
	case mergeDir > 0:
		merged := BNode(make([]byte, PageSize))
		nodeMerge(merged, updated, sibling)
		tree.pager.Free(node.getPtr(idx + 1))
		nodeReplace2Kid(new, node, idx, tree.pager.Alloc(merged), merged.getKey(0))
	case updated.nkeys() == 0:
		// only child became empty; the parent empties too and is merged above
		new.setHeader(nodeInternal, 0)
	default:
		nodeReplaceKidN(tree, new, node, idx, updated)
	}
	return new
}

// shouldMerge picks a sibling to merge a shrunken child into.
func shouldMerge(tree *BTree, node BNode, idx uint16, updated BNode) (int, BNode) {
	if updated.nbytes() > PageSize/4 {
		return 0, nil
	}
	if idx > 0 {
		sibling := tree.node(node.getPtr(idx - 1))
		if sibling.nbytes()+updated.nbytes()-header <= PageSize {
			return -1, sibling
		}
	}
	if idx+1 < node.nkeys() {
		sibling := tree.node(node.getPtr(idx + 1))
		if sibling.nbytes()+updated.nbytes()-header <= PageSize {
			return +1, sibling
		}
	}
	return 0, nil
}

func nodeMerge(new BNode, left BNode, right BNode) {
	btype := left.btype()
	if left.nkeys() == 0 {
		btype = right.btype()
	}
	new.setHeader(btype, left.nkeys()+right.nkeys())
	nodeAppendRange(new, left, 0, 0, left.nkeys())
	nodeAppendRange(new, right, left.nkeys(), 0, right.nkeys())
}

// nodeReplace2Kid replaces the two links at idx and idx+1 with one.
func nodeReplace2Kid(new BNode, old BNode, idx uint16, ptr uint64, key []byte) {
	new.setHeader(nodeInternal, old.nkeys()-1)
	nodeAppendRange(new, old, 0, 0, idx)
	nodeAppendKV(new, idx, ptr, key, nil)
	nodeAppendRange(new, old, idx+1, idx+2, old.nkeys()-(idx+2))
}
