// ABOUTME: B+Tree iterator for ordered scans in both directions
// ABOUTME: Holds the root-to-leaf path so Next and Prev can cross leaves

package btree

import "bytes"

// BIter walks the keys of a tree. It reads the pages reachable from the root
// at seek time; callers re-seek after mutating the tree.
type BIter struct {
	tree *BTree
	path []BNode  // nodes from root to current leaf
	pos  []uint16 // position at each level
}

// NewIterator creates an unpositioned iterator.
func (tree *BTree) NewIterator() *BIter {
	return &BIter{
		tree: tree,
		path: make([]BNode, 0, 8),
		pos:  make([]uint16, 0, 8),
	}
}

func (iter *BIter) reset() bool {
	iter.path = iter.path[:0]
	iter.pos = iter.pos[:0]
	return iter.tree.root != 0
}

// SeekLE positions the iterator at the last key <= key, which may be the
// empty sentinel. Returns false if the tree is empty.
func (iter *BIter) SeekLE(key []byte) bool {
	if !iter.reset() {
		return false
	}
	node := iter.tree.node(iter.tree.root)
	for {
		idx := nodeLookupLE(node, key)
		iter.path = append(iter.path, node)
		iter.pos = append(iter.pos, idx)
		if node.btype() == nodeLeaf {
			return true
		}
		node = iter.tree.node(node.getPtr(idx))
	}
}

// SeekGE positions the iterator at the first key >= key.
func (iter *BIter) SeekGE(key []byte) bool {
	if !iter.SeekLE(key) {
		return false
	}
	if iter.Valid() && bytes.Compare(iter.Key(), key) >= 0 {
		return true
	}
	return iter.Next()
}

// SeekFirst positions the iterator at the sentinel.
func (iter *BIter) SeekFirst() bool {
	return iter.SeekLE(nil)
}

// SeekLast positions the iterator at the largest key.
func (iter *BIter) SeekLast() bool {
	if !iter.reset() {
		return false
	}
	node := iter.tree.node(iter.tree.root)
	iter.path = append(iter.path, node)
	iter.pos = append(iter.pos, node.nkeys()-1)
	return iter.descend(false)
}

// Valid reports whether the iterator is on a key.
func (iter *BIter) Valid() bool {
	if len(iter.path) == 0 {
		return false
	}
	leaf := iter.path[len(iter.path)-1]
	return iter.pos[len(iter.pos)-1] < leaf.nkeys()
}

// Key returns the current key; the slice aliases the page.
func (iter *BIter) Key() []byte {
	if !iter.Valid() {
		return nil
	}
	return iter.path[len(iter.path)-1].getKey(iter.pos[len(iter.pos)-1])
}

// Val returns the current value; the slice aliases the page.
func (iter *BIter) Val() []byte {
	if !iter.Valid() {
		return nil
	}
	return iter.path[len(iter.path)-1].getVal(iter.pos[len(iter.pos)-1])
}

// Next moves to the following key. Returns false at the end.
func (iter *BIter) Next() bool {
	if len(iter.path) == 0 {
		return false
	}
	level := len(iter.pos) - 1
	iter.pos[level]++
	if iter.pos[level] < iter.path[level].nkeys() {
		return true
	}

	for level > 0 {
		iter.path = iter.path[:level]
		iter.pos = iter.pos[:level]
		level--
		iter.pos[level]++
		if iter.pos[level] < iter.path[level].nkeys() {
			return iter.descend(true)
		}
	}
	// leave the iterator invalid past the end
	iter.path = iter.path[:0]
	iter.pos = iter.pos[:0]
	return false
}

// Prev moves to the preceding key. Returns false before the beginning.
func (iter *BIter) Prev() bool {
	if len(iter.path) == 0 {
		return false
	}
	level := len(iter.pos) - 1
	if iter.pos[level] > 0 {
		iter.pos[level]--
		return true
	}

	for level > 0 {
		iter.path = iter.path[:level]
		iter.pos = iter.pos[:level]
		level--
		if iter.pos[level] > 0 {
			iter.pos[level]--
			return iter.descend(false)
		}
	}
	iter.path = iter.path[:0]
	iter.pos = iter.pos[:0]
	return false
}

// descend follows the current internal position down to a leaf, taking the
// leftmost or rightmost child at every level below.
func (iter *BIter) descend(leftmost bool) bool {
	for {
		level := len(iter.path) - 1
		node := iter.path[level]
		if node.btype() == nodeLeaf {
			return node.nkeys() > 0
		}
		child := iter.tree.node(node.getPtr(iter.pos[level]))
		iter.path = append(iter.path, child)
		if leftmost || child.nkeys() == 0 {
			iter.pos = append(iter.pos, 0)
		} else {
			iter.pos = append(iter.pos, child.nkeys()-1)
		}
	}
}

// Ascend calls fn for each key >= start in ascending order until fn returns
// false. The sentinel is skipped.
func (tree *BTree) Ascend(start []byte, fn func(key, val []byte) bool) {
	iter := tree.NewIterator()
	if !iter.SeekGE(start) {
		return
	}
	for ok := true; ok && iter.Valid(); ok = iter.Next() {
		if len(iter.Key()) == 0 {
			continue
		}
		if !fn(iter.Key(), iter.Val()) {
			return
		}
	}
}

// Descend calls fn for each key <= start in descending order until fn
// returns false. A nil start begins at the largest key.
func (tree *BTree) Descend(start []byte, fn func(key, val []byte) bool) {
	iter := tree.NewIterator()
	var ok bool
	if start == nil {
		ok = iter.SeekLast()
	} else {
		ok = iter.SeekLE(start)
	}
	for ; ok && iter.Valid(); ok = iter.Prev() {
		if len(iter.Key()) == 0 {
			return
		}
		if !fn(iter.Key(), iter.Val()) {
			return
		}
	}
}
