package idb

import (
	"github.com/nainya/idbstore/pkg/keys"
	"github.com/nainya/idbstore/pkg/value"
)

// Index is an index as seen from one transaction.
type Index struct {
	store *ObjectStore
	ix    *indexState
}

func (x *Index) Name() string              { return x.ix.name }
func (x *Index) KeyPath() keys.KeyPath     { return x.ix.keyPath }
func (x *Index) Unique() bool              { return x.ix.unique }
func (x *Index) MultiEntry() bool          { return x.ix.multiEntry }
func (x *Index) ObjectStore() *ObjectStore { return x.store }

func (x *Index) entries() span {
	return span{tree: x.ix.entries, index: true}
}

func (x *Index) check() error {
	if x.ix.deleted || x.store.ss.deleted {
		return newError(ErrInvalidState, "index %q was deleted", x.ix.name)
	}
	return nil
}

func (x *Index) lookup(k keys.Key) (*keys.KeyRange, error) {
	if err := x.check(); err != nil {
		return nil, err
	}
	if _, err := encodeKey(k); err != nil {
		return nil, err
	}
	r, err := keys.Only(k)
	if err != nil {
		return nil, wrapError(ErrData, err, "index %q", x.ix.name)
	}
	return r, nil
}

// Get resolves to the value of the record with the lowest primary key
// among those indexed under k, or nil.
func (x *Index) Get(k keys.Key) *Request {
	r, err := x.lookup(k)
	tx := x.store.tx
	return tx.op(x, "index.get", err, func() (any, error) {
		p, ok := x.entries().first(r, Next)
		if !ok {
			return nil, nil
		}
		v, err := tx.loadValue(x.store.ss, p.penc)
		if v == nil || err != nil {
			return nil, err
		}
		return v, nil
	})
}

// GetKey is Get resolving to the primary key.
func (x *Index) GetKey(k keys.Key) *Request {
	r, err := x.lookup(k)
	return x.store.tx.op(x, "index.getKey", err, func() (any, error) {
		p, ok := x.entries().first(r, Next)
		if !ok {
			return nil, nil
		}
		return p.pk, nil
	})
}

// GetAll resolves to the values indexed in r, ordered by index key then
// primary key.
func (x *Index) GetAll(r *keys.KeyRange, count int) *Request {
	tx := x.store.tx
	return tx.op(x, "index.getAll", x.check(), func() (any, error) {
		out := []value.Value{}
		var err error
		x.entries().each(r, Next, count, func(p position) bool {
			var v value.Value
			if v, err = tx.loadValue(x.store.ss, p.penc); err != nil {
				return false
			}
			out = append(out, v)
			return true
		})
		return out, err
	})
}

// GetAllKeys resolves to the primary keys indexed in r.
func (x *Index) GetAllKeys(r *keys.KeyRange, count int) *Request {
	return x.store.tx.op(x, "index.getAllKeys", x.check(), func() (any, error) {
		out := []keys.Key{}
		x.entries().each(r, Next, count, func(p position) bool {
			out = append(out, p.pk)
			return true
		})
		return out, nil
	})
}

// Count resolves to the number of entries in r. A multiEntry record counts
// once per key.
func (x *Index) Count(r *keys.KeyRange) *Request {
	return x.store.tx.op(x, "index.count", x.check(), func() (any, error) {
		n := 0
		x.entries().each(r, Next, 0, func(position) bool {
			n++
			return true
		})
		return n, nil
	})
}

// OpenCursor resolves to a cursor over the index entries in r.
func (x *Index) OpenCursor(r *keys.KeyRange, dir Direction) *Request {
	return openCursor(x, x.store, x.entries(), r, dir, false, x.check())
}

// OpenKeyCursor is OpenCursor without values.
func (x *Index) OpenKeyCursor(r *keys.KeyRange, dir Direction) *Request {
	return openCursor(x, x.store, x.entries(), r, dir, true, x.check())
}
