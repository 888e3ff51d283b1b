// ABOUTME: Cursors iterate a store or index one request at a time
// ABOUTME: Each move re-seeks from the current key so writes in between are seen

package idb

import (
	"github.com/nainya/idbstore/pkg/keys"
	"github.com/nainya/idbstore/pkg/value"
)

// Cursor is positioned on one entry of a store or index. It is delivered
// as the result of the request that opened or moved it; a nil result
// means the cursor ran off the end of its range.
type Cursor struct {
	tx      *Transaction
	source  any
	store   *ObjectStore
	sp      span
	r       *keys.KeyRange
	dir     Direction
	keyOnly bool

	pos      position
	val      value.Value
	gotValue bool
}

func openCursor(source any, store *ObjectStore, sp span, r *keys.KeyRange, dir Direction, keyOnly bool, err error) *Request {
	if err == nil && (dir < Next || dir > PrevUnique) {
		err = newError(ErrInvalidAccess, "unknown cursor direction %s", dir)
	}
	c := &Cursor{tx: store.tx, source: source, store: store, sp: sp, r: r, dir: dir, keyOnly: keyOnly}
	op := "openCursor"
	if keyOnly {
		op = "openKeyCursor"
	}
	return c.tx.op(source, op, err, func() (any, error) {
		p, ok := sp.first(r, dir)
		return c.land(p, ok)
	})
}

// Key is the index key for index cursors and the primary key otherwise.
func (c *Cursor) Key() keys.Key        { return c.pos.key }
func (c *Cursor) PrimaryKey() keys.Key { return c.pos.pk }

// Value is a copy of the record's value; nil for key cursors.
func (c *Cursor) Value() value.Value { return c.val }

func (c *Cursor) Direction() Direction { return c.dir }

// Source is the *ObjectStore or *Index the cursor iterates.
func (c *Cursor) Source() any { return c.source }

func (c *Cursor) land(p position, ok bool) (any, error) {
	if !ok {
		c.pos, c.val = position{}, nil
		return nil, nil
	}
	c.pos = p
	c.val = nil
	if !c.keyOnly {
		v, err := c.tx.loadValue(c.store.ss, p.penc)
		if err != nil {
			return nil, err
		}
		c.val = v
	}
	c.gotValue = true
	return c, nil
}

func (c *Cursor) sourceGone() bool {
	if x, ok := c.source.(*Index); ok && x.ix.deleted {
		return true
	}
	return c.store.ss.deleted
}

// movable returns the error for moving the cursor now.
func (c *Cursor) movable() error {
	switch {
	case c.sourceGone():
		return newError(ErrInvalidState, "cursor source was deleted")
	case !c.gotValue:
		return newError(ErrInvalidState, "cursor is not positioned on an entry")
	}
	return nil
}

// move queues a cursor request. The cursor gives up its position only if
// the request is accepted.
func (c *Cursor) move(op string, err error, seek func() (position, bool)) *Request {
	if err == nil && c.tx.state == TxActive && c.tx.active {
		c.gotValue = false
	}
	return c.tx.op(c, op, err, func() (any, error) {
		p, ok := seek()
		return c.land(p, ok)
	})
}

// Continue moves to the next entry, or to the first entry at or beyond
// key when key is not keys.None.
func (c *Cursor) Continue(key keys.Key) *Request {
	err := c.movable()
	if err == nil && !key.IsNone() {
		if _, e := encodeKey(key); e != nil {
			err = e
		} else if cmp := keys.Compare(key, c.pos.key); (c.dir.forward() && cmp <= 0) || (!c.dir.forward() && cmp >= 0) {
			err = newError(ErrData, "continue key %s does not move the cursor %s", key, c.dir)
		}
	}
	return c.move("continue", err, func() (position, bool) {
		if key.IsNone() {
			return c.sp.step(c.r, c.dir, c.pos)
		}
		return c.sp.seekKey(c.r, c.dir, key)
	})
}

// Advance skips count entries.
func (c *Cursor) Advance(count uint32) *Request {
	err := c.movable()
	if err == nil && count == 0 {
		err = newError(ErrData, "advance count must be positive")
	}
	return c.move("advance", err, func() (position, bool) {
		p, ok := c.pos, true
		for i := uint32(0); i < count && ok; i++ {
			p, ok = c.sp.step(c.r, c.dir, p)
		}
		return p, ok
	})
}

// ContinuePrimaryKey moves an index cursor to the first entry at or beyond
// (key, pk) in its direction.
func (c *Cursor) ContinuePrimaryKey(key, pk keys.Key) *Request {
	err := c.movable()
	if err == nil {
		err = c.checkEntryTarget(key, pk)
	}
	return c.move("continuePrimaryKey", err, func() (position, bool) {
		return c.sp.seekEntry(c.r, c.dir, key, pk)
	})
}

func (c *Cursor) checkEntryTarget(key, pk keys.Key) error {
	if !c.sp.index {
		return newError(ErrInvalidAccess, "continuePrimaryKey needs an index cursor")
	}
	if c.dir.unique() {
		return newError(ErrInvalidAccess, "continuePrimaryKey cannot be used with %s", c.dir)
	}
	if _, err := encodeKey(key); err != nil {
		return err
	}
	if _, err := encodeKey(pk); err != nil {
		return err
	}
	cmp := keys.Compare(key, c.pos.key)
	if cmp == 0 {
		cmp = keys.Compare(pk, c.pos.pk)
	}
	if (c.dir.forward() && cmp <= 0) || (!c.dir.forward() && cmp >= 0) {
		return newError(ErrData, "target (%s, %s) does not move the cursor %s", key, pk, c.dir)
	}
	return nil
}

func (c *Cursor) writable() error {
	if err := c.tx.writable(); err != nil {
		return err
	}
	switch {
	case c.sourceGone():
		return newError(ErrInvalidState, "cursor source was deleted")
	case c.keyOnly:
		return newError(ErrInvalidState, "key cursors cannot modify records")
	case !c.gotValue:
		return newError(ErrInvalidState, "cursor is not positioned on an entry")
	}
	return nil
}

// Update replaces the record under the cursor. With an in-line key path
// the new value must keep the same key.
func (c *Cursor) Update(v value.Value) *Request {
	var copied value.Value
	err := c.writable()
	ss := c.store.ss
	if err == nil {
		if copied, err = c.tx.f.cloner.Clone(v); err != nil {
			err = wrapError(ErrDataClone, err, "store %q", ss.name)
		}
	}
	if err == nil && !ss.keyPath.IsNone() {
		k, e := ss.keyPath.Evaluate(copied)
		if e != nil || !keys.Equal(k, c.pos.pk) {
			err = newError(ErrData, "updated value must keep key %s", c.pos.pk)
		}
	}
	pk := c.pos.pk
	return c.tx.op(c, "update", err, func() (any, error) {
		k, err := c.tx.storeRecord(ss, copied, pk, false)
		if err != nil {
			return nil, err
		}
		return k, nil
	})
}

// Delete removes the record under the cursor.
func (c *Cursor) Delete() *Request {
	penc := c.pos.penc
	return c.tx.op(c, "delete", c.writable(), func() (any, error) {
		ss := c.store.ss
		if data, ok := ss.records.Get(penc); ok {
			c.tx.removeRecord(ss, penc, append([]byte(nil), data...))
		}
		return nil, nil
	})
}
