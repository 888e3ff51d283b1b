// ABOUTME: In-memory ordered byte map on a copy-on-write B+Tree
// ABOUTME: Snapshots keep superseded pages alive so a writer can roll back

package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/nainya/idbstore/pkg/btree"
)

// Values up to inlineMax bytes live inside the leaf; larger ones are kept
// out of line in a blob page and the leaf stores its pointer.
const (
	valInline = 0
	valBlob   = 1

	inlineMax = btree.MaxValSize - 1
)

// heap is the page space of one tree. Node pages and value blobs share the
// pointer space.
type heap struct {
	next  uint64
	pages map[uint64][]byte
	snap  *snapshot
}

// snapshot is the state saved by Begin.
type snapshot struct {
	root      uint64
	count     int
	allocated map[uint64]struct{}
	freed     []uint64
}

func (h *heap) Page(ptr uint64) []byte {
	page, ok := h.pages[ptr]
	if !ok {
		panic(fmt.Sprintf("storage: bad page pointer %d", ptr))
	}
	return page
}

func (h *heap) Alloc(page []byte) uint64 {
	h.next++
	h.pages[h.next] = page
	if h.snap != nil {
		h.snap.allocated[h.next] = struct{}{}
	}
	return h.next
}

// Free releases a page at once if nothing older can reach it, otherwise it
// is released when the snapshot commits.
func (h *heap) Free(ptr uint64) {
	if h.snap == nil {
		delete(h.pages, ptr)
		return
	}
	if _, ok := h.snap.allocated[ptr]; ok {
		delete(h.snap.allocated, ptr)
		delete(h.pages, ptr)
		return
	}
	h.snap.freed = append(h.snap.freed, ptr)
}

// Tree is an ordered map of non-empty byte keys to byte values. It is not
// safe for concurrent use.
type Tree struct {
	heap  heap
	bt    *btree.BTree
	count int
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	t := &Tree{heap: heap{pages: make(map[uint64][]byte)}}
	t.bt = btree.New(&t.heap)
	return t
}

// Len returns the number of keys.
func (t *Tree) Len() int {
	return t.count
}

// Pages returns the number of live pages, including those pinned by an
// open snapshot.
func (t *Tree) Pages() int {
	return len(t.heap.pages)
}

// Get returns the value for key. The slice must not be modified.
func (t *Tree) Get(key []byte) ([]byte, bool) {
	ref, ok := t.bt.Get(key)
	if !ok {
		return nil, false
	}
	return t.deref(ref), true
}

// Has reports whether key is present.
func (t *Tree) Has(key []byte) bool {
	_, ok := t.bt.Get(key)
	return ok
}

// Set inserts or replaces key and reports whether the key is new.
func (t *Tree) Set(key, val []byte) (bool, error) {
	old, exists := t.bt.Get(key)
	var oldBlob uint64
	if exists && old[0] == valBlob {
		oldBlob = binary.LittleEndian.Uint64(old[1:])
	}

	var ref []byte
	if len(val) <= inlineMax {
		ref = make([]byte, 1+len(val))
		ref[0] = valInline
		copy(ref[1:], val)
	} else {
		blob := make([]byte, len(val))
		copy(blob, val)
		ref = make([]byte, 9)
		ref[0] = valBlob
		binary.LittleEndian.PutUint64(ref[1:], t.heap.Alloc(blob))
	}

	if err := t.bt.Insert(key, ref); err != nil {
		if ref[0] == valBlob {
			t.heap.Free(binary.LittleEndian.Uint64(ref[1:]))
		}
		return false, err
	}
	if oldBlob != 0 {
		t.heap.Free(oldBlob)
	}
	if !exists {
		t.count++
	}
	return !exists, nil
}

// Delete removes key and reports whether it was present.
func (t *Tree) Delete(key []byte) bool {
	old, exists := t.bt.Get(key)
	if !exists {
		return false
	}
	var oldBlob uint64
	if old[0] == valBlob {
		oldBlob = binary.LittleEndian.Uint64(old[1:])
	}
	t.bt.Delete(key)
	if oldBlob != 0 {
		t.heap.Free(oldBlob)
	}
	t.count--
	return true
}

// Clear removes every key.
func (t *Tree) Clear() {
	var blobs []uint64
	t.bt.Ascend(nil, func(_, ref []byte) bool {
		if ref[0] == valBlob {
			blobs = append(blobs, binary.LittleEndian.Uint64(ref[1:]))
		}
		return true
	})
	t.bt.Pages(t.heap.Free)
	for _, ptr := range blobs {
		t.heap.Free(ptr)
	}
	t.bt.SetRoot(0)
	t.count = 0
}

// Begin saves the current state. Until Commit or Rollback, pages replaced
// by writes stay allocated. Begin on a tree with an open snapshot is a no-op.
func (t *Tree) Begin() {
	if t.heap.snap != nil {
		return
	}
	t.heap.snap = &snapshot{
		root:      t.bt.Root(),
		count:     t.count,
		allocated: make(map[uint64]struct{}),
	}
}

// InSnapshot reports whether Begin was called without a matching Commit or
// Rollback.
func (t *Tree) InSnapshot() bool {
	return t.heap.snap != nil
}

// Commit keeps the writes made since Begin and releases replaced pages.
func (t *Tree) Commit() {
	snap := t.heap.snap
	if snap == nil {
		return
	}
	t.heap.snap = nil
	for _, ptr := range snap.freed {
		delete(t.heap.pages, ptr)
	}
}

// Rollback restores the state saved by Begin and discards pages written
// since.
func (t *Tree) Rollback() {
	snap := t.heap.snap
	if snap == nil {
		return
	}
	t.heap.snap = nil
	for ptr := range snap.allocated {
		delete(t.heap.pages, ptr)
	}
	t.bt.SetRoot(snap.root)
	t.count = snap.count
}

func (t *Tree) deref(ref []byte) []byte {
	if ref[0] == valBlob {
		return t.heap.Page(binary.LittleEndian.Uint64(ref[1:]))
	}
	return ref[1:]
}
