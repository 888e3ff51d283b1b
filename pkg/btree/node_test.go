// ABOUTME: Unit tests for B+Tree node layout
// ABOUTME: Covers header, pointer and KV access plus node splitting

package btree

import (
	"bytes"
	"fmt"
	"testing"
)

func TestNodeHeader(t *testing.T) {
	node := make(BNode, PageSize)
	node.setHeader(nodeLeaf, 3)

	if node.btype() != nodeLeaf {
		t.Errorf("Expected node type %d, got %d", nodeLeaf, node.btype())
	}
	if node.nkeys() != 3 {
		t.Errorf("Expected 3 keys, got %d", node.nkeys())
	}
}

func TestNodePointers(t *testing.T) {
	node := make(BNode, PageSize)
	node.setHeader(nodeInternal, 3)

	for i := uint16(0); i < 3; i++ {
		node.setPtr(i, uint64(100*(i+1)))
	}
	for i := uint16(0); i < 3; i++ {
		if got := node.getPtr(i); got != uint64(100*(i+1)) {
			t.Errorf("Pointer %d: expected %d, got %d", i, 100*(i+1), got)
		}
	}
}

func TestNodeAppendKVs(t *testing.T) {
	node := make(BNode, PageSize)
	node.setHeader(nodeLeaf, 3)

	keys := []string{"a", "b", "c"}
	for i, k := range keys {
		nodeAppendKV(node, uint16(i), 0, []byte(k), []byte("val_"+k))
	}

	for i, k := range keys {
		if got := node.getKey(uint16(i)); string(got) != k {
			t.Errorf("Key %d: expected %s, got %s", i, k, got)
		}
		if got := node.getVal(uint16(i)); string(got) != "val_"+k {
			t.Errorf("Value %d: expected val_%s, got %s", i, k, got)
		}
	}

	// 3 KVs of 4+1+5 bytes each
	if want := uint16(header + 10*3 + 3*10); node.nbytes() != want {
		t.Errorf("Expected %d bytes, got %d", want, node.nbytes())
	}
}

func TestNodeLookupLE(t *testing.T) {
	node := make(BNode, PageSize)
	node.setHeader(nodeLeaf, 4)
	nodeAppendKV(node, 0, 0, nil, nil)
	nodeAppendKV(node, 1, 0, []byte("b"), nil)
	nodeAppendKV(node, 2, 0, []byte("d"), nil)
	nodeAppendKV(node, 3, 0, []byte("f"), nil)

	cases := map[string]uint16{"a": 0, "b": 1, "c": 1, "d": 2, "e": 2, "z": 3}
	for key, want := range cases {
		if got := nodeLookupLE(node, []byte(key)); got != want {
			t.Errorf("lookup %q: expected %d, got %d", key, want, got)
		}
	}
}

func TestNodeSplit3(t *testing.T) {
	old := make(BNode, 2*PageSize)
	n := uint16(60)
	old.setHeader(nodeLeaf, n)
	val := bytes.Repeat([]byte("v"), MaxValSize)
	for i := uint16(0); i < n; i++ {
		nodeAppendKV(old, i, 0, []byte(fmt.Sprintf("key%03d", i)), val)
	}
	if old.nbytes() <= PageSize {
		t.Fatalf("test node should be oversized, got %d bytes", old.nbytes())
	}

	nsplit, parts := nodeSplit3(old)
	if nsplit < 2 {
		t.Fatalf("Expected a split, got %d parts", nsplit)
	}

	total := uint16(0)
	for _, part := range parts[:nsplit] {
		if part.nbytes() > PageSize {
			t.Errorf("part of %d bytes exceeds page", part.nbytes())
		}
		if len(part) != PageSize {
			t.Errorf("part buffer is %d bytes, expected %d", len(part), PageSize)
		}
		for i := uint16(0); i < part.nkeys(); i++ {
			want := fmt.Sprintf("key%03d", total+i)
			if string(part.getKey(i)) != want {
				t.Errorf("Expected %s, got %s", want, part.getKey(i))
			}
		}
		total += part.nkeys()
	}
	if total != n {
		t.Errorf("Expected %d keys after split, got %d", n, total)
	}
}
