// ABOUTME: Wire format for cloned values built on protowire primitives
// ABOUTME: Composites get arena indexes; repeats are written as references

package clone

import (
	"fmt"
	"math"
	"math/big"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/nainya/idbstore/pkg/value"
)

const formatVersion = 1

const (
	tagUndefined = iota + 1
	tagNull
	tagFalse
	tagTrue
	tagNumber
	tagString
	tagBigInt
	tagBinary
	tagArray
	tagObject
	tagDate
	tagRegExp
	tagMap
	tagSet
	tagError
	tagBoxed
	tagRef
)

// Serialize encodes v. Shared composites are written once and referenced
// afterwards, so cycles terminate.
func (c *Cloner) Serialize(v value.Value) ([]byte, error) {
	e := &encoder{mode: c.mode, seen: make(map[value.Value]uint64)}
	e.buf = append(make([]byte, 0, 64), formatVersion)
	if err := e.write(v); err != nil {
		return nil, err
	}
	return e.buf, nil
}

// Deserialize decodes bytes produced by Serialize into fresh values.
func (c *Cloner) Deserialize(b []byte) (value.Value, error) {
	if len(b) == 0 || b[0] != formatVersion {
		return nil, fmt.Errorf("%w: bad format version", ErrCorrupt)
	}
	d := &decoder{buf: b[1:]}
	v, err := d.read()
	if err != nil {
		return nil, err
	}
	if len(d.buf) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(d.buf))
	}
	return v, nil
}

// Clone returns a deep copy of v with the same sharing structure.
func (c *Cloner) Clone(v value.Value) (value.Value, error) {
	b, err := c.Serialize(v)
	if err != nil {
		return nil, err
	}
	return c.Deserialize(b)
}

func uncloneable(v value.Value) bool {
	if v == nil {
		return false
	}
	k := v.Kind()
	return k == value.KindSymbol || k == value.KindFunction
}

type encoder struct {
	mode Mode
	buf  []byte
	seen map[value.Value]uint64
}

func (e *encoder) tag(t uint64) {
	e.buf = protowire.AppendVarint(e.buf, t)
}

func (e *encoder) str(s string) {
	e.buf = protowire.AppendString(e.buf, s)
}

func (e *encoder) lossy() bool {
	return e.mode == Lossy
}

func (e *encoder) write(v value.Value) error {
	if v == nil {
		e.tag(tagUndefined)
		return nil
	}
	if uncloneable(v) {
		if e.lossy() {
			e.tag(tagUndefined)
			return nil
		}
		return fmt.Errorf("%w: %s", ErrDataClone, v.Kind())
	}

	if v.Kind().Composite() {
		if idx, ok := e.seen[v]; ok {
			e.tag(tagRef)
			e.buf = protowire.AppendVarint(e.buf, idx)
			return nil
		}
		e.seen[v] = uint64(len(e.seen))
	}

	switch x := v.(type) {
	case value.Undefined:
		e.tag(tagUndefined)
	case value.Null:
		e.tag(tagNull)
	case value.Bool:
		if x {
			e.tag(tagTrue)
		} else {
			e.tag(tagFalse)
		}
	case value.Number:
		e.tag(tagNumber)
		e.buf = protowire.AppendFixed64(e.buf, math.Float64bits(float64(x)))
	case value.String:
		e.tag(tagString)
		e.str(string(x))
	case *value.BigInt:
		e.tag(tagBigInt)
		e.buf = protowire.AppendVarint(e.buf, uint64(x.Int.Sign()+1))
		e.buf = protowire.AppendBytes(e.buf, x.Int.Bytes())
	case *value.Binary:
		e.tag(tagBinary)
		e.buf = protowire.AppendBytes(e.buf, x.Data)
	case *value.Date:
		e.tag(tagDate)
		e.buf = protowire.AppendFixed64(e.buf, math.Float64bits(x.Millis))
	case *value.RegExp:
		e.tag(tagRegExp)
		e.str(x.Source)
		e.str(x.Flags)
	case *value.Error:
		e.tag(tagError)
		e.str(x.Name)
		e.str(x.Message)
		e.str(x.Stack)
	case *value.Boxed:
		e.tag(tagBoxed)
		return e.write(x.Prim)
	case *value.Array:
		e.tag(tagArray)
		e.buf = protowire.AppendVarint(e.buf, uint64(len(x.Elems)))
		for _, elem := range x.Elems {
			if err := e.write(elem); err != nil {
				return err
			}
		}
	case *value.Map:
		entries := x.Entries()
		if e.lossy() {
			kept := entries[:0]
			for _, en := range entries {
				if !uncloneable(en.Key) && !uncloneable(en.Value) {
					kept = append(kept, en)
				}
			}
			entries = kept
		}
		e.tag(tagMap)
		e.buf = protowire.AppendVarint(e.buf, uint64(len(entries)))
		for _, en := range entries {
			if err := e.write(en.Key); err != nil {
				return err
			}
			if err := e.write(en.Value); err != nil {
				return err
			}
		}
	case *value.Set:
		items := x.Values()
		if e.lossy() {
			kept := items[:0]
			for _, it := range items {
				if !uncloneable(it) {
					kept = append(kept, it)
				}
			}
			items = kept
		}
		e.tag(tagSet)
		e.buf = protowire.AppendVarint(e.buf, uint64(len(items)))
		for _, it := range items {
			if err := e.write(it); err != nil {
				return err
			}
		}
	case value.Enumerable:
		// *value.Object and any foreign enumerable encode as a plain object
		type prop struct {
			key string
			val value.Value
		}
		var props []prop
		for _, k := range x.Keys() {
			pv, _ := x.Get(k)
			if e.lossy() && uncloneable(pv) {
				continue
			}
			props = append(props, prop{k, pv})
		}
		e.tag(tagObject)
		e.buf = protowire.AppendVarint(e.buf, uint64(len(props)))
		for _, p := range props {
			e.str(p.key)
			if err := e.write(p.val); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: %s", ErrDataClone, v.Kind())
	}
	return nil
}

type decoder struct {
	buf   []byte
	table []value.Value
}

func (d *decoder) varint() (uint64, error) {
	v, n := protowire.ConsumeVarint(d.buf)
	if n < 0 {
		return 0, fmt.Errorf("%w: %v", ErrCorrupt, protowire.ParseError(n))
	}
	d.buf = d.buf[n:]
	return v, nil
}

func (d *decoder) fixed64() (uint64, error) {
	v, n := protowire.ConsumeFixed64(d.buf)
	if n < 0 {
		return 0, fmt.Errorf("%w: %v", ErrCorrupt, protowire.ParseError(n))
	}
	d.buf = d.buf[n:]
	return v, nil
}

func (d *decoder) bytes() ([]byte, error) {
	v, n := protowire.ConsumeBytes(d.buf)
	if n < 0 {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, protowire.ParseError(n))
	}
	d.buf = d.buf[n:]
	return v, nil
}

func (d *decoder) str() (string, error) {
	b, err := d.bytes()
	return string(b), err
}

// count reads a length and rejects values that cannot fit the input.
func (d *decoder) count() (int, error) {
	n, err := d.varint()
	if err != nil {
		return 0, err
	}
	if n > uint64(len(d.buf)) {
		return 0, fmt.Errorf("%w: count %d exceeds input", ErrCorrupt, n)
	}
	return int(n), nil
}

// register adds a composite to the table before its children are read.
func (d *decoder) register(v value.Value) {
	d.table = append(d.table, v)
}

func (d *decoder) read() (value.Value, error) {
	t, err := d.varint()
	if err != nil {
		return nil, err
	}

	switch t {
	case tagUndefined:
		return value.Undefined{}, nil
	case tagNull:
		return value.Null{}, nil
	case tagFalse:
		return value.Bool(false), nil
	case tagTrue:
		return value.Bool(true), nil
	case tagNumber:
		bits, err := d.fixed64()
		return value.Number(math.Float64frombits(bits)), err
	case tagString:
		s, err := d.str()
		return value.String(s), err
	case tagRef:
		idx, err := d.varint()
		if err != nil {
			return nil, err
		}
		if idx >= uint64(len(d.table)) {
			return nil, fmt.Errorf("%w: reference %d out of range", ErrCorrupt, idx)
		}
		return d.table[idx], nil
	}
	return d.readComposite(t)
}

func (d *decoder) readComposite(t uint64) (value.Value, error) {
	switch t {
	case tagBigInt:
		bi := &value.BigInt{Int: new(big.Int)}
		d.register(bi)
		sign, err := d.varint()
		if err != nil {
			return nil, err
		}
		mag, err := d.bytes()
		if err != nil {
			return nil, err
		}
		bi.Int.SetBytes(mag)
		if sign == 0 {
			bi.Int.Neg(bi.Int)
		}
		return bi, nil
	case tagBinary:
		bin := &value.Binary{}
		d.register(bin)
		data, err := d.bytes()
		bin.Data = append([]byte{}, data...)
		return bin, err
	case tagDate:
		date := &value.Date{}
		d.register(date)
		bits, err := d.fixed64()
		date.Millis = math.Float64frombits(bits)
		return date, err
	case tagRegExp:
		re := &value.RegExp{}
		d.register(re)
		var err error
		if re.Source, err = d.str(); err != nil {
			return nil, err
		}
		re.Flags, err = d.str()
		return re, err
	case tagError:
		ev := &value.Error{}
		d.register(ev)
		var err error
		if ev.Name, err = d.str(); err != nil {
			return nil, err
		}
		if ev.Message, err = d.str(); err != nil {
			return nil, err
		}
		ev.Stack, err = d.str()
		return ev, err
	case tagBoxed:
		boxed := &value.Boxed{}
		d.register(boxed)
		prim, err := d.read()
		boxed.Prim = prim
		return boxed, err
	case tagArray:
		arr := &value.Array{}
		d.register(arr)
		n, err := d.count()
		if err != nil {
			return nil, err
		}
		arr.Elems = make([]value.Value, n)
		for i := range arr.Elems {
			if arr.Elems[i], err = d.read(); err != nil {
				return nil, err
			}
		}
		return arr, nil
	case tagObject:
		obj := value.NewObject()
		d.register(obj)
		n, err := d.count()
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			k, err := d.str()
			if err != nil {
				return nil, err
			}
			v, err := d.read()
			if err != nil {
				return nil, err
			}
			obj.Set(k, v)
		}
		return obj, nil
	case tagMap:
		m := value.NewMap()
		d.register(m)
		n, err := d.count()
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			k, err := d.read()
			if err != nil {
				return nil, err
			}
			v, err := d.read()
			if err != nil {
				return nil, err
			}
			m.Set(k, v)
		}
		return m, nil
	case tagSet:
		s := value.NewSet()
		d.register(s)
		n, err := d.count()
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			v, err := d.read()
			if err != nil {
				return nil, err
			}
			s.Add(v)
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: unknown tag %d", ErrCorrupt, t)
}
