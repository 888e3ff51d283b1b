// ABOUTME: Range scans over store and index trees in either direction
// ABOUTME: Positions are re-sought by encoded key on every step

package idb

import (
	"bytes"
	"fmt"

	"github.com/nainya/idbstore/pkg/keys"
	"github.com/nainya/idbstore/pkg/storage"
)

// Direction of a cursor.
type Direction int

const (
	Next Direction = iota
	NextUnique
	Prev
	PrevUnique
)

func (d Direction) String() string {
	switch d {
	case Next:
		return "next"
	case NextUnique:
		return "nextunique"
	case Prev:
		return "prev"
	case PrevUnique:
		return "prevunique"
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

func (d Direction) forward() bool { return d == Next || d == NextUnique }
func (d Direction) unique() bool  { return d == NextUnique || d == PrevUnique }

// position is one tree entry. For a store tree key and pk are the same.
type position struct {
	key  keys.Key
	pk   keys.Key
	kenc []byte // encoded key
	penc []byte // encoded primary key
	raw  []byte // tree key
}

// span reads one store or index tree.
type span struct {
	tree  *storage.Tree
	index bool
}

func (s span) decode(it *storage.Iter) (position, bool) {
	if !it.Valid() {
		return position{}, false
	}
	raw := bytes.Clone(it.Key())
	k, rest, err := keys.Split(raw)
	if err != nil {
		return position{}, false
	}
	p := position{key: k, pk: k, raw: raw, kenc: raw[:len(raw)-len(rest)], penc: raw}
	if s.index {
		pk, err := keys.Decode(rest)
		if err != nil {
			return position{}, false
		}
		p.pk, p.penc = pk, rest
	}
	return p, true
}

// ge finds the first entry >= b; nil means the first entry.
func (s span) ge(b []byte) (position, bool) {
	return s.decode(s.tree.SeekGE(b))
}

// le finds the last entry <= b; nil means the last entry.
func (s span) le(b []byte) (position, bool) {
	return s.decode(s.tree.SeekLE(b))
}

// lt finds the last entry < b.
func (s span) lt(b []byte) (position, bool) {
	it := s.tree.SeekLE(b)
	if it.Valid() && bytes.Equal(it.Key(), b) {
		it.Prev()
	}
	return s.decode(it)
}

// after finds the first entry > b.
func (s span) after(b []byte) (position, bool) {
	return s.ge(append(bytes.Clone(b), 0))
}

// firstOfKey moves a position to the lowest primary key with the same key.
func (s span) firstOfKey(p position) position {
	if !s.index {
		return p
	}
	if q, ok := s.ge(p.kenc); ok {
		return q
	}
	return p
}

func belowUpper(r *keys.KeyRange, k keys.Key) bool {
	if r == nil || r.Upper().IsNone() {
		return true
	}
	c := keys.Compare(k, r.Upper())
	return c < 0 || (c == 0 && !r.UpperOpen())
}

func aboveLower(r *keys.KeyRange, k keys.Key) bool {
	if r == nil || r.Lower().IsNone() {
		return true
	}
	c := keys.Compare(k, r.Lower())
	return c > 0 || (c == 0 && !r.LowerOpen())
}

// first returns the first entry of r in direction d.
func (s span) first(r *keys.KeyRange, d Direction) (position, bool) {
	var (
		p  position
		ok bool
	)
	if d.forward() {
		var start []byte
		if r != nil && !r.Lower().IsNone() {
			start = keys.Append(nil, r.Lower())
			if r.LowerOpen() {
				start = keys.Successor(start)
			}
		}
		p, ok = s.ge(start)
	} else {
		switch {
		case r == nil || r.Upper().IsNone():
			p, ok = s.le(nil)
		case r.UpperOpen():
			p, ok = s.lt(keys.Append(nil, r.Upper()))
		default:
			p, ok = s.le(keys.Successor(keys.Append(nil, r.Upper())))
		}
		if ok && d == PrevUnique {
			p = s.firstOfKey(p)
		}
	}
	return s.bounded(r, p, ok)
}

// step returns the entry after p in direction d.
func (s span) step(r *keys.KeyRange, d Direction, p position) (position, bool) {
	var (
		q  position
		ok bool
	)
	switch d {
	case Next:
		q, ok = s.after(p.raw)
	case NextUnique:
		q, ok = s.ge(keys.Successor(p.kenc))
	case Prev:
		q, ok = s.lt(p.raw)
	case PrevUnique:
		q, ok = s.lt(p.kenc)
		if ok {
			q = s.firstOfKey(q)
		}
	}
	return s.bounded(r, q, ok)
}

// seekKey returns the first entry in direction d whose key is at or beyond
// target.
func (s span) seekKey(r *keys.KeyRange, d Direction, target keys.Key) (position, bool) {
	enc := keys.Append(nil, target)
	var (
		p  position
		ok bool
	)
	if d.forward() {
		p, ok = s.ge(enc)
	} else {
		p, ok = s.le(keys.Successor(enc))
		if ok && d == PrevUnique {
			p = s.firstOfKey(p)
		}
	}
	return s.bounded(r, p, ok)
}

// seekEntry returns the first index entry in direction d at or beyond
// (key, pk).
func (s span) seekEntry(r *keys.KeyRange, d Direction, key, pk keys.Key) (position, bool) {
	target := entryKey(keys.Append(nil, key), keys.Append(nil, pk))
	var (
		p  position
		ok bool
	)
	if d.forward() {
		p, ok = s.ge(target)
	} else {
		p, ok = s.le(target)
	}
	return s.bounded(r, p, ok)
}

func (s span) bounded(r *keys.KeyRange, p position, ok bool) (position, bool) {
	if !ok || !belowUpper(r, p.key) || !aboveLower(r, p.key) {
		return position{}, false
	}
	return p, true
}

// each calls fn for the entries of r in direction d until fn returns false
// or limit entries were visited. A zero limit means no limit.
func (s span) each(r *keys.KeyRange, d Direction, limit int, fn func(position) bool) {
	n := 0
	for p, ok := s.first(r, d); ok; p, ok = s.step(r, d, p) {
		if !fn(p) {
			return
		}
		n++
		if limit > 0 && n >= limit {
			return
		}
	}
}
