// ABOUTME: Record storage for object stores and index maintenance
// ABOUTME: Index entries are keyed by encoded index key then primary key

package idb

import (
	"bytes"
	"math"
	"sort"

	"github.com/nainya/idbstore/pkg/keys"
	"github.com/nainya/idbstore/pkg/storage"
	"github.com/nainya/idbstore/pkg/value"
)

// maxGenerator is the largest key a key generator hands out.
const maxGenerator = 1 << 53

// storeState is the shared state of one object store. Its trees map the
// encoded primary key to the serialized value.
type storeState struct {
	name          string
	keyPath       keys.KeyPath
	autoIncrement bool
	gen           float64
	records       *storage.Tree
	indexes       map[string]*indexState
	deleted       bool
}

// indexState is the shared state of one index. Each entry is
// enc(index key) + enc(primary key) with an empty value.
type indexState struct {
	name       string
	store      *storeState
	keyPath    keys.KeyPath
	unique     bool
	multiEntry bool
	entries    *storage.Tree
	deleted    bool
}

func (ss *storeState) sortedIndexes() []*indexState {
	out := make([]*indexState, 0, len(ss.indexes))
	for _, ix := range ss.indexes {
		out = append(out, ix)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (ss *storeState) indexNames() []string {
	names := make([]string, 0, len(ss.indexes))
	for name := range ss.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// keysFor returns the index keys v contributes. Values whose key path does
// not yield a valid key are not indexed.
func (ix *indexState) keysFor(v value.Value) []keys.Key {
	if ix.multiEntry {
		ks, err := ix.keyPath.EvaluateMulti(v)
		if err != nil {
			return nil
		}
		return ks
	}
	k, err := ix.keyPath.Evaluate(v)
	if err != nil || k.IsNone() {
		return nil
	}
	return []keys.Key{k}
}

func entryKey(ik, pk []byte) []byte {
	out := make([]byte, 0, len(ik)+len(pk))
	return append(append(out, ik...), pk...)
}

// conflict reports whether the index maps ik to a primary key other than pk.
func (ix *indexState) conflict(ik, pk []byte) bool {
	for it := ix.entries.SeekGE(ik); it.Valid(); it.Next() {
		k := it.Key()
		if !bytes.HasPrefix(k, ik) {
			return false
		}
		if !bytes.Equal(k[len(ik):], pk) {
			return true
		}
	}
	return false
}

// indexEntries computes the entries v needs in ix under primary key pk and
// checks uniqueness.
func (ix *indexState) indexEntries(v value.Value, pk []byte) ([][]byte, error) {
	var out [][]byte
	for _, ik := range ix.keysFor(v) {
		enc, err := keys.Encode(ik)
		if err != nil {
			return nil, wrapError(ErrData, err, "index %q key %s", ix.name, ik)
		}
		if ix.unique && ix.conflict(enc, pk) {
			return nil, newError(ErrConstraint, "index %q already contains key %s", ix.name, ik)
		}
		out = append(out, entryKey(enc, pk))
	}
	return out, nil
}

// storeRecord writes v, the transaction's private copy, under key. A None
// key asks the key generator for one.
func (tx *Transaction) storeRecord(ss *storeState, v value.Value, key keys.Key, noOverwrite bool) (keys.Key, error) {
	if ss.autoIncrement {
		switch {
		case key.IsNone():
			if ss.gen > maxGenerator {
				return keys.None, newError(ErrConstraint, "key generator of %q is exhausted", ss.name)
			}
			key = keys.Number(ss.gen)
			tx.saveGen(ss)
			ss.gen++
			if !ss.keyPath.IsNone() {
				if err := ss.keyPath.Inject(v, key); err != nil {
					return keys.None, wrapError(ErrData, err, "generated key")
				}
			}
		case key.Kind() == keys.KindNumber && key.Num() >= ss.gen:
			tx.saveGen(ss)
			ss.gen = min(math.Floor(key.Num())+1, maxGenerator+1)
		}
	}

	pk, err := keys.Encode(key)
	if err != nil {
		return keys.None, wrapError(ErrData, err, "primary key")
	}
	old, exists := ss.records.Get(pk)
	if exists && noOverwrite {
		return keys.None, newError(ErrConstraint, "key %s already exists in %q", key, ss.name)
	}
	data, err := tx.f.cloner.Serialize(v)
	if err != nil {
		return keys.None, wrapError(ErrDataClone, err, "store %q", ss.name)
	}

	type pending struct {
		ix      *indexState
		entries [][]byte
	}
	var adds []pending
	for _, ix := range ss.sortedIndexes() {
		entries, err := ix.indexEntries(v, pk)
		if err != nil {
			return keys.None, err
		}
		adds = append(adds, pending{ix, entries})
	}

	if exists {
		tx.removeRecord(ss, pk, bytes.Clone(old))
	}
	tx.touch(ss.records)
	if _, err := ss.records.Set(pk, data); err != nil {
		return keys.None, wrapError(ErrData, err, "store %q", ss.name)
	}
	for _, a := range adds {
		if len(a.entries) > 0 {
			tx.touch(a.ix.entries)
		}
		for _, e := range a.entries {
			if _, err := a.ix.entries.Set(e, nil); err != nil {
				return keys.None, wrapError(ErrData, err, "index %q", a.ix.name)
			}
		}
	}
	return key, nil
}

// removeRecord deletes the record at pk and its index entries. data is the
// stored value, used to find the entries.
func (tx *Transaction) removeRecord(ss *storeState, pk, data []byte) {
	if len(ss.indexes) > 0 {
		if v, err := tx.f.cloner.Deserialize(data); err == nil {
			for _, ix := range ss.indexes {
				for _, ik := range ix.keysFor(v) {
					enc, err := keys.Encode(ik)
					if err != nil {
						continue
					}
					tx.touch(ix.entries)
					ix.entries.Delete(entryKey(enc, pk))
				}
			}
		}
	}
	tx.touch(ss.records)
	ss.records.Delete(pk)
}

// clearStore removes every record and index entry.
func (tx *Transaction) clearStore(ss *storeState) {
	tx.touch(ss.records)
	ss.records.Clear()
	for _, ix := range ss.indexes {
		tx.touch(ix.entries)
		ix.entries.Clear()
	}
}

// buildIndex indexes the records already in the store.
func (tx *Transaction) buildIndex(ix *indexState) error {
	ss := ix.store
	for it := ss.records.SeekGE(nil); it.Valid(); it.Next() {
		v, err := tx.f.cloner.Deserialize(it.Value())
		if err != nil {
			return wrapError(ErrData, err, "record in %q", ss.name)
		}
		pk := bytes.Clone(it.Key())
		for _, ik := range ix.keysFor(v) {
			enc, err := keys.Encode(ik)
			if err != nil {
				continue
			}
			if ix.unique && ix.conflict(enc, pk) {
				return newError(ErrConstraint, "index %q: duplicate key %s", ix.name, ik)
			}
			tx.touch(ix.entries)
			if _, err := ix.entries.Set(entryKey(enc, pk), nil); err != nil {
				return wrapError(ErrData, err, "index %q", ix.name)
			}
		}
	}
	return nil
}

// loadValue deserializes the record at pk, or returns nil when absent.
func (tx *Transaction) loadValue(ss *storeState, pk []byte) (value.Value, error) {
	data, ok := ss.records.Get(pk)
	if !ok {
		return nil, nil
	}
	v, err := tx.f.cloner.Deserialize(data)
	if err != nil {
		return nil, wrapError(ErrData, err, "record in %q", ss.name)
	}
	return v, nil
}
