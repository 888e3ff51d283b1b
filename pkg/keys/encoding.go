// ABOUTME: Order-preserving, self-delimiting byte encoding for keys
// ABOUTME: bytes.Compare on encodings agrees with Compare on keys

package keys

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Type tags, ascending in key order. The array terminator 0x00 sorts below
// every tag, so a shorter array sorts before any extension of it.
const (
	tagEnd    = 0x00
	tagNumber = 0x10
	tagDate   = 0x20
	tagString = 0x30
	tagBinary = 0x40
	tagArray  = 0x50
)

// MaxEncodedKey bounds the encoding of one key. Index entries concatenate
// an index key and a primary key and must fit a tree key.
const MaxEncodedKey = 2048

// Encode validates k and returns its encoding.
func Encode(k Key) ([]byte, error) {
	if err := Validate(k); err != nil {
		return nil, err
	}
	out := Append(make([]byte, 0, 16), k)
	if len(out) > MaxEncodedKey {
		return nil, fmt.Errorf("%w: %d encoded bytes exceeds %d", ErrKeyTooLarge, len(out), MaxEncodedKey)
	}
	return out, nil
}

// MustEncode is Encode for keys already known to be valid.
func MustEncode(k Key) []byte {
	out, err := Encode(k)
	if err != nil {
		panic(err)
	}
	return out
}

// Append appends the encoding of k to dst without validation.
func Append(dst []byte, k Key) []byte {
	switch k.kind {
	case KindNumber:
		return appendFloat(append(dst, tagNumber), k.num)
	case KindDate:
		return appendFloat(append(dst, tagDate), k.num)
	case KindString:
		return appendEscaped(append(dst, tagString), k.str)
	case KindBinary:
		return appendEscaped(append(dst, tagBinary), k.str)
	case KindArray:
		dst = append(dst, tagArray)
		for _, e := range k.arr {
			dst = Append(dst, e)
		}
		return append(dst, tagEnd)
	}
	panic(fmt.Sprintf("keys: cannot encode %s key", k.kind))
}

// appendFloat flips the sign bit of non-negative numbers and all bits of
// negative ones so that big-endian bytes sort numerically.
func appendFloat(dst []byte, f float64) []byte {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	return binary.BigEndian.AppendUint64(dst, bits)
}

func readFloat(b []byte) float64 {
	bits := binary.BigEndian.Uint64(b)
	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits)
}

// appendEscaped writes s with 0x00 as 0x01 0x01 and 0x01 as 0x01 0x02, then
// a 0x00 terminator.
func appendEscaped(dst []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		switch b := s[i]; b {
		case 0x00:
			dst = append(dst, 0x01, 0x01)
		case 0x01:
			dst = append(dst, 0x01, 0x02)
		default:
			dst = append(dst, b)
		}
	}
	return append(dst, 0x00)
}

func readEscaped(b []byte) (string, []byte, error) {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		switch b[i] {
		case 0x00:
			return string(out), b[i+1:], nil
		case 0x01:
			if i+1 >= len(b) || (b[i+1] != 0x01 && b[i+1] != 0x02) {
				return "", nil, fmt.Errorf("%w: bad escape at %d", ErrCorrupt, i)
			}
			out = append(out, b[i+1]-1)
			i++
		default:
			out = append(out, b[i])
		}
	}
	return "", nil, fmt.Errorf("%w: unterminated string", ErrCorrupt)
}

// Split decodes the key at the front of b and returns the remaining bytes.
func Split(b []byte) (Key, []byte, error) {
	if len(b) == 0 {
		return None, nil, fmt.Errorf("%w: empty input", ErrCorrupt)
	}
	tag, rest := b[0], b[1:]
	switch tag {
	case tagNumber, tagDate:
		if len(rest) < 8 {
			return None, nil, fmt.Errorf("%w: short number", ErrCorrupt)
		}
		f := readFloat(rest[:8])
		if tag == tagDate {
			return DateMillis(f), rest[8:], nil
		}
		return Number(f), rest[8:], nil
	case tagString, tagBinary:
		s, rest, err := readEscaped(rest)
		if err != nil {
			return None, nil, err
		}
		if tag == tagBinary {
			return Key{kind: KindBinary, str: s}, rest, nil
		}
		return String(s), rest, nil
	case tagArray:
		var elems []Key
		for {
			if len(rest) == 0 {
				return None, nil, fmt.Errorf("%w: unterminated array", ErrCorrupt)
			}
			if rest[0] == tagEnd {
				return Key{kind: KindArray, arr: elems}, rest[1:], nil
			}
			var (
				e   Key
				err error
			)
			e, rest, err = Split(rest)
			if err != nil {
				return None, nil, err
			}
			elems = append(elems, e)
		}
	}
	return None, nil, fmt.Errorf("%w: unknown tag 0x%02x", ErrCorrupt, tag)
}

// Decode decodes a complete encoding.
func Decode(b []byte) (Key, error) {
	k, rest, err := Split(b)
	if err != nil {
		return None, err
	}
	if len(rest) != 0 {
		return None, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(rest))
	}
	return k, nil
}

// Successor returns a byte string greater than enc followed by anything a
// key encoding can start with, and less than the encoding of any greater
// key. Seeking to it skips every index entry whose key is enc.
func Successor(enc []byte) []byte {
	out := make([]byte, len(enc)+1)
	copy(out, enc)
	out[len(enc)] = 0xFF
	return out
}
