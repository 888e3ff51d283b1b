// ABOUTME: Deep equality and printable rendering of Values
// ABOUTME: Both walk cyclic graphs without looping

package value

import (
	"bytes"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
)

type pair struct {
	a, b Value
}

// Equal reports whether a and b are structurally equal. Shared-reference
// topology is not compared; two graphs that unfold to the same infinite
// tree are equal.
func Equal(a, b Value) bool {
	return equal(a, b, make(map[pair]bool))
}

func equal(a, b Value, seen map[pair]bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	if a.Kind().Composite() {
		p := pair{a, b}
		if seen[p] {
			return true
		}
		seen[p] = true
	}

	switch x := a.(type) {
	case Undefined, Null:
		return true
	case Bool:
		return x == b.(Bool)
	case Number:
		y := b.(Number)
		return x == y || (math.IsNaN(float64(x)) && math.IsNaN(float64(y)))
	case String:
		return x == b.(String)
	case *BigInt:
		return x.Int.Cmp(b.(*BigInt).Int) == 0
	case *Binary:
		return bytes.Equal(x.Data, b.(*Binary).Data)
	case *Date:
		y := b.(*Date)
		return x.Millis == y.Millis || (!x.Valid() && !y.Valid())
	case *RegExp:
		return *x == *b.(*RegExp)
	case *Error:
		y := b.(*Error)
		return x.Name == y.Name && x.Message == y.Message
	case *Boxed:
		return equal(x.Prim, b.(*Boxed).Prim, seen)
	case *Array:
		y := b.(*Array)
		if len(x.Elems) != len(y.Elems) {
			return false
		}
		for i := range x.Elems {
			if !equal(x.Elems[i], y.Elems[i], seen) {
				return false
			}
		}
		return true
	case *Map:
		y := b.(*Map)
		if len(x.entries) != len(y.entries) {
			return false
		}
		for i := range x.entries {
			if !equal(x.entries[i].Key, y.entries[i].Key, seen) ||
				!equal(x.entries[i].Value, y.entries[i].Value, seen) {
				return false
			}
		}
		return true
	case *Set:
		y := b.(*Set)
		if len(x.items) != len(y.items) {
			return false
		}
		for i := range x.items {
			if !equal(x.items[i], y.items[i], seen) {
				return false
			}
		}
		return true
	case *Symbol, *Function:
		return a == b
	case Enumerable:
		y, ok := b.(Enumerable)
		if !ok {
			return false
		}
		xk, yk := x.Keys(), y.Keys()
		if len(xk) != len(yk) {
			return false
		}
		for _, k := range xk {
			yv, ok := y.Get(k)
			if !ok {
				return false
			}
			xv, _ := x.Get(k)
			if !equal(xv, yv, seen) {
				return false
			}
		}
		return true
	}
	return false
}

// Format renders v for humans, marking repeated visits on the current path
// as [Circular].
func Format(v Value) string {
	var sb strings.Builder
	format(&sb, v, make(map[Value]bool))
	return sb.String()
}

func format(sb *strings.Builder, v Value, path map[Value]bool) {
	if v != nil && v.Kind().Composite() {
		if path[v] {
			sb.WriteString("[Circular]")
			return
		}
		path[v] = true
		defer delete(path, v)
	}

	switch x := v.(type) {
	case nil, Undefined:
		sb.WriteString("undefined")
	case Null:
		sb.WriteString("null")
	case Bool:
		sb.WriteString(strconv.FormatBool(bool(x)))
	case Number:
		sb.WriteString(formatNumber(float64(x)))
	case String:
		sb.WriteString(strconv.Quote(string(x)))
	case *BigInt:
		sb.WriteString(x.Int.String())
		sb.WriteByte('n')
	case *Binary:
		sb.WriteString("Binary<")
		sb.WriteString(hex.EncodeToString(x.Data))
		sb.WriteByte('>')
	case *Date:
		if x.Valid() {
			sb.WriteString("Date(" + x.Time().Format("2006-01-02T15:04:05.000Z07:00") + ")")
		} else {
			sb.WriteString("Date(Invalid)")
		}
	case *RegExp:
		sb.WriteString("/" + x.Source + "/" + x.Flags)
	case *Error:
		sb.WriteString(x.Name + ": " + x.Message)
	case *Boxed:
		sb.WriteString("[" + x.Prim.Kind().String() + ": ")
		format(sb, x.Prim, path)
		sb.WriteByte(']')
	case *Array:
		sb.WriteByte('[')
		for i, e := range x.Elems {
			if i > 0 {
				sb.WriteString(", ")
			}
			format(sb, e, path)
		}
		sb.WriteByte(']')
	case *Map:
		sb.WriteString("Map{")
		for i, e := range x.entries {
			if i > 0 {
				sb.WriteString(", ")
			}
			format(sb, e.Key, path)
			sb.WriteString(" => ")
			format(sb, e.Value, path)
		}
		sb.WriteByte('}')
	case *Set:
		sb.WriteString("Set{")
		for i, e := range x.items {
			if i > 0 {
				sb.WriteString(", ")
			}
			format(sb, e, path)
		}
		sb.WriteByte('}')
	case *Symbol:
		sb.WriteString("Symbol(" + x.Description + ")")
	case *Function:
		sb.WriteString("function " + x.Name)
	case Enumerable:
		sb.WriteByte('{')
		for i, k := range x.Keys() {
			if i > 0 {
				sb.WriteString(", ")
			}
			e, _ := x.Get(k)
			sb.WriteString(k + ": ")
			format(sb, e, path)
		}
		sb.WriteByte('}')
	default:
		sb.WriteString("<" + v.Kind().String() + ">")
	}
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
