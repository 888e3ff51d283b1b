// ABOUTME: ObjectStore handles: record requests and index management
// ABOUTME: Values are cloned when a request is issued, keys checked up front

package idb

import (
	"github.com/nainya/idbstore/pkg/keys"
	"github.com/nainya/idbstore/pkg/storage"
	"github.com/nainya/idbstore/pkg/value"
)

// ObjectStore is a store as seen from one transaction.
type ObjectStore struct {
	tx      *Transaction
	ss      *storeState
	indexes map[*indexState]*Index
}

func (s *ObjectStore) Name() string              { return s.ss.name }
func (s *ObjectStore) KeyPath() keys.KeyPath     { return s.ss.keyPath }
func (s *ObjectStore) AutoIncrement() bool       { return s.ss.autoIncrement }
func (s *ObjectStore) Transaction() *Transaction { return s.tx }

// IndexNames lists the store's indexes by name.
func (s *ObjectStore) IndexNames() []string { return s.ss.indexNames() }

func (s *ObjectStore) records() span {
	return span{tree: s.ss.records}
}

// check returns the error a new request on the store starts with.
func (s *ObjectStore) check(write bool) error {
	if s.ss.deleted {
		return newError(ErrInvalidState, "object store %q was deleted", s.ss.name)
	}
	if write {
		return s.tx.writable()
	}
	return nil
}

func (tx *Transaction) op(source any, name string, err error, exec func() (any, error)) *Request {
	r := newRequest(tx.f, source, tx, name)
	r.exec = exec
	return tx.issue(r, err)
}

func encodeKey(k keys.Key) ([]byte, error) {
	enc, err := keys.Encode(k)
	if err != nil {
		return nil, wrapError(ErrData, err, "key %s", k)
	}
	return enc, nil
}

// Put stores v, replacing any record with the same key. Pass keys.None
// when the store has a key path or a key generator. The request resolves
// to the record's key.
func (s *ObjectStore) Put(v value.Value, key keys.Key) *Request {
	return s.put("put", v, key, false)
}

// Add is Put that fails with a ConstraintError if the key exists.
func (s *ObjectStore) Add(v value.Value, key keys.Key) *Request {
	return s.put("add", v, key, true)
}

func (s *ObjectStore) put(op string, v value.Value, key keys.Key, noOverwrite bool) *Request {
	var copied value.Value
	err := s.check(true)
	if err == nil {
		copied, key, err = s.prepare(v, key)
	}
	return s.tx.op(s, op, err, func() (any, error) {
		k, err := s.tx.storeRecord(s.ss, copied, key, noOverwrite)
		if err != nil {
			return nil, err
		}
		return k, nil
	})
}

// prepare clones v and settles the key as far as possible before the
// request is queued.
func (s *ObjectStore) prepare(v value.Value, key keys.Key) (value.Value, keys.Key, error) {
	ss := s.ss
	inline := !ss.keyPath.IsNone()
	switch {
	case inline && !key.IsNone():
		return nil, key, newError(ErrData, "store %q uses in-line keys", ss.name)
	case !inline && !ss.autoIncrement && key.IsNone():
		return nil, key, newError(ErrData, "store %q needs an explicit key", ss.name)
	case !key.IsNone():
		if _, err := encodeKey(key); err != nil {
			return nil, key, err
		}
	}

	copied, err := s.tx.f.cloner.Clone(v)
	if err != nil {
		return nil, key, wrapError(ErrDataClone, err, "store %q", ss.name)
	}
	if !inline {
		return copied, key, nil
	}

	k, err := ss.keyPath.Evaluate(copied)
	if err != nil {
		return nil, key, wrapError(ErrData, err, "key path %s", ss.keyPath)
	}
	if k.IsNone() {
		if !ss.autoIncrement {
			return nil, key, newError(ErrData, "key path %s yields no key", ss.keyPath)
		}
		if !ss.keyPath.CanInject(copied) {
			return nil, key, newError(ErrData, "cannot store a generated key at %s", ss.keyPath)
		}
		return copied, keys.None, nil
	}
	if _, err := encodeKey(k); err != nil {
		return nil, key, err
	}
	return copied, k, nil
}

// Get resolves to a copy of the value stored under k, or nil.
func (s *ObjectStore) Get(k keys.Key) *Request {
	pk, err := encodeKey(k)
	if e := s.check(false); e != nil {
		err = e
	}
	return s.tx.op(s, "get", err, func() (any, error) {
		v, err := s.tx.loadValue(s.ss, pk)
		if v == nil || err != nil {
			return nil, err
		}
		return v, nil
	})
}

// GetKey resolves to the first key in r, or nil.
func (s *ObjectStore) GetKey(r *keys.KeyRange) *Request {
	return s.tx.op(s, "getKey", s.check(false), func() (any, error) {
		p, ok := s.records().first(r, Next)
		if !ok {
			return nil, nil
		}
		return p.pk, nil
	})
}

// GetAll resolves to copies of the values in r in key order, at most count
// of them when count > 0.
func (s *ObjectStore) GetAll(r *keys.KeyRange, count int) *Request {
	return s.tx.op(s, "getAll", s.check(false), func() (any, error) {
		out := []value.Value{}
		var err error
		s.records().each(r, Next, count, func(p position) bool {
			var v value.Value
			if v, err = s.tx.loadValue(s.ss, p.penc); err != nil {
				return false
			}
			out = append(out, v)
			return true
		})
		return out, err
	})
}

// GetAllKeys resolves to the keys in r, at most count when count > 0.
func (s *ObjectStore) GetAllKeys(r *keys.KeyRange, count int) *Request {
	return s.tx.op(s, "getAllKeys", s.check(false), func() (any, error) {
		out := []keys.Key{}
		s.records().each(r, Next, count, func(p position) bool {
			out = append(out, p.pk)
			return true
		})
		return out, nil
	})
}

// Count resolves to the number of records in r.
func (s *ObjectStore) Count(r *keys.KeyRange) *Request {
	return s.tx.op(s, "count", s.check(false), func() (any, error) {
		if r == nil {
			return s.ss.records.Len(), nil
		}
		n := 0
		s.records().each(r, Next, 0, func(position) bool {
			n++
			return true
		})
		return n, nil
	})
}

// Delete removes the record under k, if any.
func (s *ObjectStore) Delete(k keys.Key) *Request {
	pk, err := encodeKey(k)
	if e := s.check(true); e != nil {
		err = e
	}
	return s.tx.op(s, "delete", err, func() (any, error) {
		if data, ok := s.ss.records.Get(pk); ok {
			s.tx.removeRecord(s.ss, pk, append([]byte(nil), data...))
		}
		return nil, nil
	})
}

// DeleteRange removes every record in r.
func (s *ObjectStore) DeleteRange(r *keys.KeyRange) *Request {
	return s.tx.op(s, "delete", s.check(true), func() (any, error) {
		type doomed struct{ pk, data []byte }
		var victims []doomed
		s.records().each(r, Next, 0, func(p position) bool {
			data, _ := s.ss.records.Get(p.raw)
			victims = append(victims, doomed{p.raw, append([]byte(nil), data...)})
			return true
		})
		for _, d := range victims {
			s.tx.removeRecord(s.ss, d.pk, d.data)
		}
		return nil, nil
	})
}

// Clear removes every record.
func (s *ObjectStore) Clear() *Request {
	return s.tx.op(s, "clear", s.check(true), func() (any, error) {
		s.tx.clearStore(s.ss)
		return nil, nil
	})
}

// OpenCursor resolves to a cursor over the records in r, or nil when r is
// empty.
func (s *ObjectStore) OpenCursor(r *keys.KeyRange, dir Direction) *Request {
	return openCursor(s, s, s.records(), r, dir, false, s.check(false))
}

// OpenKeyCursor is OpenCursor without values.
func (s *ObjectStore) OpenKeyCursor(r *keys.KeyRange, dir Direction) *Request {
	return openCursor(s, s, s.records(), r, dir, true, s.check(false))
}

// Index returns a handle on the named index.
func (s *ObjectStore) Index(name string) (*Index, error) {
	if s.tx.state.Finished() {
		return nil, newError(ErrInvalidState, "transaction has finished")
	}
	if s.ss.deleted {
		return nil, newError(ErrInvalidState, "object store %q was deleted", s.ss.name)
	}
	ix, ok := s.ss.indexes[name]
	if !ok {
		return nil, newError(ErrNotFound, "index %q on %q", name, s.ss.name)
	}
	return s.indexHandle(ix), nil
}

func (s *ObjectStore) indexHandle(ix *indexState) *Index {
	if h, ok := s.indexes[ix]; ok {
		return h
	}
	h := &Index{store: s, ix: ix}
	s.indexes[ix] = h
	return h
}

// schemaTx returns the store's transaction if it may change the schema.
func (s *ObjectStore) schemaTx() (*Transaction, error) {
	tx := s.tx
	switch {
	case tx.mode != VersionChange || tx.state != TxActive:
		return nil, newError(ErrInvalidState, "schema changes need a running version change transaction")
	case !tx.active:
		return nil, newError(ErrTransactionInactive, "version change transaction is not active")
	case s.ss.deleted:
		return nil, newError(ErrInvalidState, "object store %q was deleted", s.ss.name)
	}
	return tx, nil
}

// CreateIndex adds an index and fills it from the existing records. If
// they violate a unique index the version change transaction aborts with
// a ConstraintError.
func (s *ObjectStore) CreateIndex(name string, kp keys.KeyPath, opts IndexOptions) (*Index, error) {
	tx, err := s.schemaTx()
	if err != nil {
		return nil, err
	}
	if kp.IsNone() {
		return nil, newError(ErrSyntax, "index %q needs a key path", name)
	}
	if err := kp.Validate(); err != nil {
		return nil, wrapError(ErrSyntax, err, "index %q", name)
	}
	if _, ok := s.ss.indexes[name]; ok {
		return nil, newError(ErrConstraint, "index %q already exists on %q", name, s.ss.name)
	}
	if opts.MultiEntry && kp.IsCompound() {
		return nil, newError(ErrInvalidAccess, "multiEntry index %q cannot use a compound key path", name)
	}

	ix := &indexState{
		name:       name,
		store:      s.ss,
		keyPath:    kp,
		unique:     opts.Unique,
		multiEntry: opts.MultiEntry,
		entries:    storage.NewTree(),
	}
	s.ss.indexes[name] = ix
	tx.undo.schema = append(tx.undo.schema, func() {
		delete(s.ss.indexes, name)
		ix.deleted = true
	})
	if err := tx.buildIndex(ix); err != nil {
		tx.db.st.log.Warn("index build failed").Str("index", name).Err(err).Send()
		tx.doom(err)
	}
	return s.indexHandle(ix), nil
}

// DeleteIndex removes an index. It is only allowed during an upgrade.
func (s *ObjectStore) DeleteIndex(name string) error {
	tx, err := s.schemaTx()
	if err != nil {
		return err
	}
	ix, ok := s.ss.indexes[name]
	if !ok {
		return newError(ErrNotFound, "index %q on %q", name, s.ss.name)
	}
	delete(s.ss.indexes, name)
	ix.deleted = true
	tx.undo.schema = append(tx.undo.schema, func() {
		s.ss.indexes[name] = ix
		ix.deleted = false
	})
	return nil
}
