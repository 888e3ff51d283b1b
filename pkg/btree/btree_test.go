// ABOUTME: Integration tests for B+Tree operations
// ABOUTME: Runs Insert, Get, Delete against an in-memory pager with a reference map

package btree

import (
	"bytes"
	"fmt"
	"math/rand"
	"sort"
	"testing"
)

// memPager keeps pages in a map and checks for double frees.
type memPager struct {
	next  uint64
	pages map[uint64]BNode
}

func (p *memPager) Page(ptr uint64) []byte {
	node, ok := p.pages[ptr]
	if !ok {
		panic(fmt.Sprintf("page %d not found", ptr))
	}
	return node
}

func (p *memPager) Alloc(node []byte) uint64 {
	if BNode(node).nbytes() > PageSize {
		panic("node too large")
	}
	p.next++
	p.pages[p.next] = node
	return p.next
}

func (p *memPager) Free(ptr uint64) {
	if p.pages[ptr] == nil {
		panic(fmt.Sprintf("page %d not allocated", ptr))
	}
	delete(p.pages, ptr)
}

type testContext struct {
	tree  *BTree
	pager *memPager
	ref   map[string]string
}

func newTestContext() *testContext {
	pager := &memPager{pages: map[uint64]BNode{}}
	return &testContext{
		tree:  New(pager),
		pager: pager,
		ref:   map[string]string{},
	}
}

func (c *testContext) add(t *testing.T, key string, val string) {
	t.Helper()
	if err := c.tree.Insert([]byte(key), []byte(val)); err != nil {
		t.Fatalf("insert %s: %v", key, err)
	}
	c.ref[key] = val
}

func (c *testContext) del(key string) bool {
	delete(c.ref, key)
	return c.tree.Delete([]byte(key))
}

// verify walks the tree and compares it with the reference map.
func (c *testContext) verify(t *testing.T) {
	t.Helper()
	var keys []string
	for k := range c.ref {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var got []string
	c.tree.Ascend(nil, func(key, val []byte) bool {
		got = append(got, string(key))
		if c.ref[string(key)] != string(val) {
			t.Errorf("key %s: expected %s, got %s", key, c.ref[string(key)], val)
		}
		return true
	})
	if len(got) != len(keys) {
		t.Fatalf("Expected %d keys, got %d", len(keys), len(got))
	}
	for i := range keys {
		if keys[i] != got[i] {
			t.Fatalf("position %d: expected %s, got %s", i, keys[i], got[i])
		}
	}
}

func TestBTreeBasicInsertGet(t *testing.T) {
	c := newTestContext()
	c.add(t, "key1", "val1")
	c.add(t, "key2", "val2")
	c.add(t, "key3", "val3")

	val, ok := c.tree.Get([]byte("key2"))
	if !ok {
		t.Fatal("key2 not found")
	}
	if string(val) != "val2" {
		t.Errorf("Expected val2, got %s", val)
	}
	if _, ok := c.tree.Get([]byte("key4")); ok {
		t.Error("Expected key4 to not exist")
	}
}

func TestBTreeUpdate(t *testing.T) {
	c := newTestContext()
	c.add(t, "key1", "val1")
	c.add(t, "key1", "val1_updated")

	val, ok := c.tree.Get([]byte("key1"))
	if !ok || string(val) != "val1_updated" {
		t.Errorf("Expected val1_updated, got %s", val)
	}
	c.verify(t)
}

func TestBTreeDelete(t *testing.T) {
	c := newTestContext()
	c.add(t, "key1", "val1")
	c.add(t, "key2", "val2")
	c.add(t, "key3", "val3")

	if !c.del("key2") {
		t.Error("Expected successful delete")
	}
	if _, ok := c.tree.Get([]byte("key2")); ok {
		t.Error("key2 should be deleted")
	}
	if c.tree.Delete([]byte("key2")) {
		t.Error("Expected second delete to report absence")
	}
	c.verify(t)
}

func TestBTreeManyInsertions(t *testing.T) {
	c := newTestContext()
	for i := 0; i < 5000; i++ {
		c.add(t, fmt.Sprintf("key%05d", i), fmt.Sprintf("value%05d", i))
	}
	for i := 0; i < 5000; i++ {
		key := fmt.Sprintf("key%05d", i)
		val, ok := c.tree.Get([]byte(key))
		if !ok || string(val) != fmt.Sprintf("value%05d", i) {
			t.Fatalf("Key %s: got %q, %v", key, val, ok)
		}
	}
	c.verify(t)
}

func TestBTreeRandomInsertDelete(t *testing.T) {
	c := newTestContext()
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20000; i++ {
		key := fmt.Sprintf("k%04d", rng.Intn(3000))
		if rng.Intn(3) == 0 {
			c.del(key)
		} else {
			c.add(t, key, fmt.Sprintf("v%d", i))
		}
	}
	c.verify(t)

	for k := range c.ref {
		if !c.del(k) {
			t.Fatalf("delete %s failed", k)
		}
	}
	c.verify(t)

	c.add(t, "again", "v")
	c.verify(t)
}

func TestBTreeLargeKeysAndValues(t *testing.T) {
	c := newTestContext()
	val := bytes.Repeat([]byte("x"), MaxValSize)
	for i := 0; i < 200; i++ {
		key := append(bytes.Repeat([]byte{'k'}, MaxKeySize-4), fmt.Sprintf("%04d", i)...)
		if err := c.tree.Insert(key, val); err != nil {
			t.Fatalf("insert: %v", err)
		}
		c.ref[string(key)] = string(val)
	}
	c.verify(t)

	if err := c.tree.Insert(bytes.Repeat([]byte{'k'}, MaxKeySize+1), nil); err == nil {
		t.Error("Expected oversized key to be rejected")
	}
	if err := c.tree.Insert([]byte("k"), bytes.Repeat([]byte{'v'}, MaxValSize+1)); err == nil {
		t.Error("Expected oversized value to be rejected")
	}
	if err := c.tree.Insert(nil, nil); err == nil {
		t.Error("Expected empty key to be rejected")
	}
}

func TestBTreeEmptyTree(t *testing.T) {
	c := newTestContext()
	if _, ok := c.tree.Get([]byte("key1")); ok {
		t.Error("Expected Get to fail on empty tree")
	}
	if c.tree.Delete([]byte("key1")) {
		t.Error("Expected Delete to fail on empty tree")
	}
}

func TestBTreeRootSnapshot(t *testing.T) {
	// A saved root stays readable as long as its pages are not freed.
	pager := &memPager{pages: map[uint64]BNode{}}
	keep := &keepPager{memPager: pager}
	tree := New(keep)
	for i := 0; i < 100; i++ {
		_ = tree.Insert([]byte(fmt.Sprintf("a%03d", i)), []byte("old"))
	}
	saved := tree.Root()
	for i := 0; i < 100; i++ {
		_ = tree.Insert([]byte(fmt.Sprintf("a%03d", i)), []byte("new"))
	}
	tree.Delete([]byte("a050"))

	tree.SetRoot(saved)
	for i := 0; i < 100; i++ {
		val, ok := tree.Get([]byte(fmt.Sprintf("a%03d", i)))
		if !ok || string(val) != "old" {
			t.Fatalf("a%03d: got %q, %v", i, val, ok)
		}
	}
}

// keepPager ignores frees so old roots remain valid.
type keepPager struct {
	*memPager
}

func (p *keepPager) Free(uint64) {}
