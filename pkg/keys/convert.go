package keys

import (
	"math"

	"github.com/nainya/idbstore/pkg/value"
)

// FromValue converts a stored value to a key. Numbers, dates, strings,
// binary data and arrays of those convert; anything else, and any invalid
// or cyclic member, is ErrInvalidKey.
func FromValue(v value.Value) (Key, error) {
	return fromValue(v, nil)
}

func fromValue(v value.Value, path []*value.Array) (Key, error) {
	switch x := v.(type) {
	case value.Number:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return None, ErrInvalidKey
		}
		return Number(f), nil
	case *value.Date:
		if !x.Valid() {
			return None, ErrInvalidKey
		}
		return DateMillis(x.Millis), nil
	case value.String:
		return String(string(x)), nil
	case *value.Binary:
		return Binary(x.Data), nil
	case *value.Array:
		for _, p := range path {
			if p == x {
				return None, ErrInvalidKey
			}
		}
		path = append(path, x)
		elems := make([]Key, len(x.Elems))
		for i, e := range x.Elems {
			k, err := fromValue(e, path)
			if err != nil {
				return None, err
			}
			elems[i] = k
		}
		return Key{kind: KindArray, arr: elems}, nil
	}
	return None, ErrInvalidKey
}

// ToValue converts a key to a freshly allocated value.
func ToValue(k Key) value.Value {
	switch k.kind {
	case KindNumber:
		return value.Number(k.num)
	case KindDate:
		return &value.Date{Millis: k.num}
	case KindString:
		return value.String(k.str)
	case KindBinary:
		return value.NewBinary([]byte(k.str))
	case KindArray:
		arr := &value.Array{Elems: make([]value.Value, len(k.arr))}
		for i, e := range k.arr {
			arr.Elems[i] = ToValue(e)
		}
		return arr
	}
	return value.Undefined{}
}
