// ABOUTME: Key is the tagged variant used for primary and index keys
// ABOUTME: Numbers, dates, strings, binary and arrays of those

package keys

import (
	"encoding/hex"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind orders key types: Number < Date < String < Binary < Array.
type Kind uint8

const (
	KindNone Kind = iota
	KindNumber
	KindDate
	KindString
	KindBinary
	KindArray
)

var kindNames = [...]string{"none", "number", "date", "string", "binary", "array"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Key is an immutable key value. The zero Key is None, the absent key.
type Key struct {
	kind Kind
	num  float64
	str  string
	arr  []Key
}

// None is the absent key.
var None Key

// Number returns a number key. -0 is stored as 0.
func Number(f float64) Key {
	if f == 0 {
		f = 0
	}
	return Key{kind: KindNumber, num: f}
}

// Date returns a date key with millisecond precision.
func Date(t time.Time) Key {
	return DateMillis(float64(t.UnixMilli()))
}

// DateMillis returns a date key from milliseconds since the Unix epoch.
func DateMillis(ms float64) Key {
	if ms == 0 {
		ms = 0
	}
	return Key{kind: KindDate, num: ms}
}

func String(s string) Key {
	return Key{kind: KindString, str: s}
}

// Binary returns a binary key holding a copy of b.
func Binary(b []byte) Key {
	return Key{kind: KindBinary, str: string(b)}
}

// Array returns an array key holding a copy of elems.
func Array(elems ...Key) Key {
	return Key{kind: KindArray, arr: append([]Key{}, elems...)}
}

func (k Key) Kind() Kind { return k.kind }

// IsNone reports whether k is the absent key.
func (k Key) IsNone() bool { return k.kind == KindNone }

// Num returns the number of a number key or the milliseconds of a date key.
func (k Key) Num() float64 { return k.num }

// Time returns a date key as a time.
func (k Key) Time() time.Time { return time.UnixMilli(int64(k.num)).UTC() }

// Str returns the text of a string key.
func (k Key) Str() string { return k.str }

// Bytes returns a copy of a binary key's bytes.
func (k Key) Bytes() []byte { return []byte(k.str) }

// Elems returns the elements of an array key. The slice must not be
// modified.
func (k Key) Elems() []Key { return k.arr }

// String renders k for logs and the shell.
func (k Key) String() string {
	var sb strings.Builder
	k.format(&sb)
	return sb.String()
}

func (k Key) format(sb *strings.Builder) {
	switch k.kind {
	case KindNone:
		sb.WriteString("<none>")
	case KindNumber:
		switch {
		case math.IsNaN(k.num):
			sb.WriteString("NaN")
		case math.IsInf(k.num, 0):
			if k.num < 0 {
				sb.WriteByte('-')
			}
			sb.WriteString("Infinity")
		default:
			sb.WriteString(strconv.FormatFloat(k.num, 'g', -1, 64))
		}
	case KindDate:
		if math.IsNaN(k.num) || math.IsInf(k.num, 0) {
			sb.WriteString("Date(Invalid)")
			return
		}
		sb.WriteString("Date(" + k.Time().Format("2006-01-02T15:04:05.000Z07:00") + ")")
	case KindString:
		sb.WriteString(strconv.Quote(k.str))
	case KindBinary:
		sb.WriteString("0x" + hex.EncodeToString([]byte(k.str)))
	case KindArray:
		sb.WriteByte('[')
		for i, e := range k.arr {
			if i > 0 {
				sb.WriteString(", ")
			}
			e.format(sb)
		}
		sb.WriteByte(']')
	}
}

// Validate checks that k can be stored: it must not be None, numbers and
// dates must be finite, and array elements must be valid.
func Validate(k Key) error {
	switch k.kind {
	case KindNumber, KindDate:
		if math.IsNaN(k.num) || math.IsInf(k.num, 0) {
			return ErrInvalidKey
		}
	case KindString, KindBinary:
	case KindArray:
		for _, e := range k.arr {
			if err := Validate(e); err != nil {
				return err
			}
		}
	default:
		return ErrInvalidKey
	}
	return nil
}

// Valid is Validate as a predicate.
func Valid(k Key) bool {
	return Validate(k) == nil
}
