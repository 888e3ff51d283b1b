// ABOUTME: Bidirectional iterator over a storage Tree
// ABOUTME: Hides the B+Tree sentinel and resolves out-of-line values

package storage

import "github.com/nainya/idbstore/pkg/btree"

// Iter is positioned on one key of a Tree. It is invalidated by writes to
// the tree; re-seek after mutating.
type Iter struct {
	t  *Tree
	it *btree.BIter
}

// SeekGE positions at the first key >= key. A nil key seeks the first key.
func (t *Tree) SeekGE(key []byte) *Iter {
	iter := &Iter{t: t, it: t.bt.NewIterator()}
	if iter.it.SeekGE(key) && len(iter.it.Key()) == 0 {
		iter.it.Next()
	}
	return iter
}

// SeekLE positions at the last key <= key. A nil key seeks the last key.
func (t *Tree) SeekLE(key []byte) *Iter {
	iter := &Iter{t: t, it: t.bt.NewIterator()}
	if key == nil {
		iter.it.SeekLast()
	} else {
		iter.it.SeekLE(key)
	}
	return iter
}

// Valid reports whether the iterator is on a key.
func (i *Iter) Valid() bool {
	return i.it.Valid() && len(i.it.Key()) > 0
}

// Key returns the current key. The slice must not be modified.
func (i *Iter) Key() []byte {
	if !i.Valid() {
		return nil
	}
	return i.it.Key()
}

// Value returns the current value. The slice must not be modified.
func (i *Iter) Value() []byte {
	if !i.Valid() {
		return nil
	}
	return i.t.deref(i.it.Val())
}

// Next moves to the following key.
func (i *Iter) Next() bool {
	return i.it.Next() && i.Valid()
}

// Prev moves to the preceding key. Stepping back from the first key
// leaves the iterator invalid.
func (i *Iter) Prev() bool {
	return i.it.Prev() && i.Valid()
}
