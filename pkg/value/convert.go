// ABOUTME: Conversion between plain Go data and Values
// ABOUTME: Shared maps and slices convert to shared composites, so cycles survive

package value

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"regexp"
	"sort"
	"time"
)

// ErrUnsupported is returned by FromGo for Go types with no Value form.
var ErrUnsupported = errors.New("value: unsupported Go type")

var timeType = reflect.TypeOf(time.Time{})

type refKey struct {
	ptr  uintptr
	typ  reflect.Type
	size int
}

// FromGo converts Go data to a Value. It understands nil, bool, integers,
// floats, string, []byte, time.Time, *big.Int, *regexp.Regexp, error,
// Value, slices, arrays, maps with string keys, and structs (exported
// fields, in declaration order). Go funcs become Function values.
func FromGo(x any) (Value, error) {
	c := &fromGo{seen: make(map[refKey]Value)}
	return c.convert(reflect.ValueOf(x))
}

// MustFromGo is FromGo for literals in tests and examples.
func MustFromGo(x any) Value {
	v, err := FromGo(x)
	if err != nil {
		panic(err)
	}
	return v
}

type fromGo struct {
	seen map[refKey]Value
}

func (c *fromGo) convert(rv reflect.Value) (Value, error) {
	if !rv.IsValid() {
		return Null{}, nil
	}

	switch x := rv.Interface().(type) {
	case Value:
		return x, nil
	case []byte:
		return NewBinary(x), nil
	case time.Time:
		return NewDate(x), nil
	case *big.Int:
		if x == nil {
			return Null{}, nil
		}
		return NewBigInt(x), nil
	case *regexp.Regexp:
		if x == nil {
			return Null{}, nil
		}
		return &RegExp{Source: x.String()}, nil
	case error:
		return &Error{Name: "Error", Message: x.Error()}, nil
	}

	switch rv.Kind() {
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Number(float64(rv.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Number(float64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return Number(rv.Float()), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return Null{}, nil
		}
		if rv.Kind() == reflect.Pointer {
			key := refKey{ptr: rv.Pointer(), typ: rv.Type()}
			if v, ok := c.seen[key]; ok {
				return v, nil
			}
			if rv.Elem().Kind() == reflect.Struct && rv.Elem().Type() != timeType {
				return c.structValue(rv.Elem(), &key)
			}
		}
		return c.convert(rv.Elem())
	case reflect.Slice:
		if rv.IsNil() {
			return Null{}, nil
		}
		key := refKey{ptr: rv.Pointer(), typ: rv.Type(), size: rv.Len()}
		if v, ok := c.seen[key]; ok {
			return v, nil
		}
		arr := &Array{Elems: make([]Value, rv.Len())}
		c.seen[key] = arr
		return arr, c.fill(arr, rv)
	case reflect.Array:
		arr := &Array{Elems: make([]Value, rv.Len())}
		return arr, c.fill(arr, rv)
	case reflect.Map:
		if rv.IsNil() {
			return Null{}, nil
		}
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: map key %s", ErrUnsupported, rv.Type().Key())
		}
		key := refKey{ptr: rv.Pointer(), typ: rv.Type()}
		if v, ok := c.seen[key]; ok {
			return v, nil
		}
		obj := NewObject()
		c.seen[key] = obj
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		for _, k := range keys {
			v, err := c.convert(rv.MapIndex(k))
			if err != nil {
				return nil, err
			}
			obj.Set(k.String(), v)
		}
		return obj, nil
	case reflect.Struct:
		return c.structValue(rv, nil)
	case reflect.Func:
		return &Function{Name: rv.Type().String()}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, rv.Type())
}

func (c *fromGo) fill(arr *Array, rv reflect.Value) error {
	for i := 0; i < rv.Len(); i++ {
		v, err := c.convert(rv.Index(i))
		if err != nil {
			return err
		}
		arr.Elems[i] = v
	}
	return nil
}

func (c *fromGo) structValue(rv reflect.Value, key *refKey) (Value, error) {
	obj := NewObject()
	if key != nil {
		c.seen[*key] = obj
	}
	typ := rv.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		v, err := c.convert(rv.Field(i))
		if err != nil {
			return nil, err
		}
		obj.Set(field.Name, v)
	}
	return obj, nil
}

// ToGo converts a Value to plain Go data: nil, bool, float64, string,
// []byte, time.Time, *big.Int, []any and map[string]any. Other composites
// are returned as their Value. Shared and cyclic composites map to shared
// Go maps and slices.
func ToGo(v Value) any {
	return toGo(v, make(map[Value]any))
}

func toGo(v Value, seen map[Value]any) any {
	switch x := v.(type) {
	case nil, Undefined, Null:
		return nil
	case Bool:
		return bool(x)
	case Number:
		return float64(x)
	case String:
		return string(x)
	case *BigInt:
		return new(big.Int).Set(x.Int)
	case *Binary:
		return append([]byte(nil), x.Data...)
	case *Date:
		return x.Time()
	case *Array:
		if out, ok := seen[x]; ok {
			return out
		}
		out := make([]any, len(x.Elems))
		seen[x] = out
		for i, e := range x.Elems {
			out[i] = toGo(e, seen)
		}
		return out
	case Enumerable:
		if out, ok := seen[x]; ok {
			return out
		}
		out := make(map[string]any)
		seen[x] = out
		for _, k := range x.Keys() {
			e, _ := x.Get(k)
			out[k] = toGo(e, seen)
		}
		return out
	}
	return v
}
