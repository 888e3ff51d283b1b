// ABOUTME: Tagged variant of the values an object store can hold
// ABOUTME: Composite kinds are pointers so that identity survives cloning

package value

import (
	"math"
	"math/big"
	"time"
)

// Kind classifies a Value.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindBigInt
	KindBinary
	KindArray
	KindObject
	KindDate
	KindRegExp
	KindMap
	KindSet
	KindError
	KindBoxed
	KindSymbol
	KindFunction
	// KindOther is any foreign type implementing Enumerable.
	KindOther
)

var kindNames = [...]string{
	KindUndefined: "undefined",
	KindNull:      "null",
	KindBool:      "boolean",
	KindNumber:    "number",
	KindString:    "string",
	KindBigInt:    "bigint",
	KindBinary:    "binary",
	KindArray:     "array",
	KindObject:    "object",
	KindDate:      "date",
	KindRegExp:    "regexp",
	KindMap:       "map",
	KindSet:       "set",
	KindError:     "error",
	KindBoxed:     "boxed",
	KindSymbol:    "symbol",
	KindFunction:  "function",
	KindOther:     "other",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Composite reports whether values of this kind have identity.
func (k Kind) Composite() bool {
	return k >= KindBigInt
}

// Value is any storable value.
type Value interface {
	Kind() Kind
}

// Enumerable is implemented by object-like values. Types outside this
// package that implement it are stored as plain objects.
type Enumerable interface {
	Value
	Keys() []string
	Get(key string) (Value, bool)
}

type (
	Undefined struct{}
	Null      struct{}
	Bool      bool
	Number    float64
	String    string
)

func (Undefined) Kind() Kind { return KindUndefined }
func (Null) Kind() Kind      { return KindNull }
func (Bool) Kind() Kind      { return KindBool }
func (Number) Kind() Kind    { return KindNumber }
func (String) Kind() Kind    { return KindString }

// BigInt is an arbitrary precision integer.
type BigInt struct {
	Int *big.Int
}

func NewBigInt(i *big.Int) *BigInt {
	return &BigInt{Int: new(big.Int).Set(i)}
}

func (*BigInt) Kind() Kind { return KindBigInt }

// Binary is an opaque byte buffer.
type Binary struct {
	Data []byte
}

func NewBinary(b []byte) *Binary {
	return &Binary{Data: append([]byte(nil), b...)}
}

func (*Binary) Kind() Kind { return KindBinary }

// Array is an ordered list. Holes are represented by Undefined.
type Array struct {
	Elems []Value
}

func NewArray(elems ...Value) *Array {
	return &Array{Elems: elems}
}

func (*Array) Kind() Kind { return KindArray }

// Len returns the number of elements.
func (a *Array) Len() int { return len(a.Elems) }

// Append adds elements at the end.
func (a *Array) Append(vs ...Value) { a.Elems = append(a.Elems, vs...) }

// Date is a point in time in milliseconds since the Unix epoch. A NaN
// value is an invalid date.
type Date struct {
	Millis float64
}

func NewDate(t time.Time) *Date {
	return &Date{Millis: float64(t.UnixMilli())}
}

func (*Date) Kind() Kind { return KindDate }

// Valid reports whether d denotes a time.
func (d *Date) Valid() bool {
	return !math.IsNaN(d.Millis) && !math.IsInf(d.Millis, 0)
}

// Time converts d to a time.Time in UTC.
func (d *Date) Time() time.Time {
	return time.UnixMilli(int64(d.Millis)).UTC()
}

// RegExp is a regular expression source and flags. It is stored, not
// compiled.
type RegExp struct {
	Source string
	Flags  string
}

func (*RegExp) Kind() Kind { return KindRegExp }

// Error is an error object.
type Error struct {
	Name    string
	Message string
	Stack   string
}

func (*Error) Kind() Kind { return KindError }

// Boxed wraps a Bool, Number, String or *BigInt in an object.
type Boxed struct {
	Prim Value
}

func (*Boxed) Kind() Kind { return KindBoxed }

// Symbol and Function cannot be cloned. They exist so that callers can
// hand such values to the codec and observe the strict or lossy outcome.
type Symbol struct {
	Description string
}

func (*Symbol) Kind() Kind { return KindSymbol }

type Function struct {
	Name string
}

func (*Function) Kind() Kind { return KindFunction }

// SameValueZero is the equality used for Map keys and Set members:
// primitives by value with NaN equal to NaN and -0 equal to 0, composites
// by identity. Enumerable implementations must be comparable, which pointer
// types are.
func SameValueZero(a, b Value) bool {
	if x, ok := a.(Number); ok {
		y, ok := b.(Number)
		if !ok {
			return false
		}
		if math.IsNaN(float64(x)) && math.IsNaN(float64(y)) {
			return true
		}
		return x == y
	}
	return a == b
}
