// ABOUTME: Key paths locate keys inside stored values
// ABOUTME: Evaluate, multiEntry expansion and generated-key injection

package keys

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf16"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nainya/idbstore/pkg/value"
)

// KeyPath is absent, a single path, or a compound list of paths. A single
// path is "" for the value itself or a dotted identifier chain.
type KeyPath struct {
	paths    []string
	compound bool
}

// Path returns a single key path.
func Path(p string) KeyPath {
	return KeyPath{paths: []string{p}}
}

// Paths returns a compound key path.
func Paths(ps ...string) KeyPath {
	return KeyPath{paths: append([]string{}, ps...), compound: true}
}

// IsNone reports whether no key path is set.
func (kp KeyPath) IsNone() bool { return kp.paths == nil }

// IsCompound reports whether kp is a list of paths.
func (kp KeyPath) IsCompound() bool { return kp.compound }

// Strings returns the component paths.
func (kp KeyPath) Strings() []string { return append([]string(nil), kp.paths...) }

func (kp KeyPath) String() string {
	switch {
	case kp.IsNone():
		return "null"
	case kp.compound:
		return "[" + strings.Join(kp.paths, ", ") + "]"
	}
	return kp.paths[0]
}

// Validate checks every component. A compound path must be non-empty.
func (kp KeyPath) Validate() error {
	if kp.IsNone() {
		return nil
	}
	if kp.compound && len(kp.paths) == 0 {
		return fmt.Errorf("%w: empty compound path", ErrInvalidKeyPath)
	}
	for _, p := range kp.paths {
		if _, err := parse(p); err != nil {
			return err
		}
	}
	return nil
}

var segmentCache, _ = lru.New[string, []string](512)

// parse splits p into identifiers. Results are cached.
func parse(p string) ([]string, error) {
	if segs, ok := segmentCache.Get(p); ok {
		return segs, nil
	}
	var segs []string
	if p != "" {
		segs = strings.Split(p, ".")
		for _, s := range segs {
			if !isIdentifier(s) {
				return nil, fmt.Errorf("%w: %q", ErrInvalidKeyPath, p)
			}
		}
	}
	segmentCache.Add(p, segs)
	return segs, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '$' || r == '_' || unicode.IsLetter(r):
		case i > 0 && (unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Pc, r)):
		default:
			return false
		}
	}
	return true
}

// extract walks one path. The boolean is false when a step is missing.
func extract(v value.Value, p string) (value.Value, bool, error) {
	segs, err := parse(p)
	if err != nil {
		return nil, false, err
	}
	for _, seg := range segs {
		switch x := v.(type) {
		case value.String:
			if seg != "length" {
				return nil, false, nil
			}
			v = value.Number(len(utf16.Encode([]rune(string(x)))))
		case *value.Array:
			if seg != "length" {
				return nil, false, nil
			}
			v = value.Number(x.Len())
		case *value.Binary:
			if seg != "length" && seg != "byteLength" {
				return nil, false, nil
			}
			v = value.Number(len(x.Data))
		case value.Enumerable:
			next, ok := x.Get(seg)
			if !ok {
				return nil, false, nil
			}
			v = next
		default:
			return nil, false, nil
		}
	}
	return v, true, nil
}

// Evaluate extracts the key kp designates in v. It returns None with a nil
// error when a single path finds nothing; a found value that is not a valid
// key, or any missing part of a compound path, is ErrInvalidKey.
func (kp KeyPath) Evaluate(v value.Value) (Key, error) {
	if kp.IsNone() {
		return None, fmt.Errorf("%w: no key path", ErrInvalidKeyPath)
	}
	if !kp.compound {
		found, ok, err := extract(v, kp.paths[0])
		if err != nil || !ok {
			return None, err
		}
		return FromValue(found)
	}
	elems := make([]Key, len(kp.paths))
	for i, p := range kp.paths {
		found, ok, err := extract(v, p)
		if err != nil {
			return None, err
		}
		if !ok {
			return None, fmt.Errorf("%w: %q not found", ErrInvalidKey, p)
		}
		k, err := FromValue(found)
		if err != nil {
			return None, err
		}
		elems[i] = k
	}
	return Key{kind: KindArray, arr: elems}, nil
}

// EvaluateMulti extracts the keys of a multiEntry index: each valid element
// of an array value, without duplicates, in key order. A non-array value
// yields itself when it is a valid key.
func (kp KeyPath) EvaluateMulti(v value.Value) ([]Key, error) {
	if kp.IsNone() || kp.compound {
		return nil, fmt.Errorf("%w: multiEntry needs a single path", ErrInvalidKeyPath)
	}
	found, ok, err := extract(v, kp.paths[0])
	if err != nil || !ok {
		return nil, err
	}
	arr, isArray := found.(*value.Array)
	if !isArray {
		k, err := FromValue(found)
		if err != nil {
			return nil, nil
		}
		return []Key{k}, nil
	}

	out := make([]Key, 0, arr.Len())
	for _, e := range arr.Elems {
		k, err := FromValue(e)
		if err != nil {
			continue
		}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return Compare(out[i], out[j]) < 0 })
	uniq := out[:0]
	for i, k := range out {
		if i == 0 || !Equal(k, out[i-1]) {
			uniq = append(uniq, k)
		}
	}
	return uniq, nil
}

// CanInject reports whether Inject would succeed on v: every step before
// the last must be an object or absent.
func (kp KeyPath) CanInject(v value.Value) bool {
	if kp.IsNone() || kp.compound {
		return false
	}
	segs, err := parse(kp.paths[0])
	if err != nil || len(segs) == 0 {
		return false
	}
	for _, seg := range segs[:len(segs)-1] {
		obj, ok := v.(*value.Object)
		if !ok {
			return false
		}
		next, ok := obj.Get(seg)
		if !ok {
			return true
		}
		v = next
	}
	_, ok := v.(*value.Object)
	return ok
}

// Inject stores k at kp inside v, creating intermediate objects.
func (kp KeyPath) Inject(v value.Value, k Key) error {
	if !kp.CanInject(v) {
		return fmt.Errorf("%w: cannot inject at %s", ErrInvalidKeyPath, kp)
	}
	segs, _ := parse(kp.paths[0])
	obj := v.(*value.Object)
	for _, seg := range segs[:len(segs)-1] {
		next, ok := obj.Get(seg)
		if !ok {
			child := value.NewObject()
			obj.Set(seg, child)
			obj = child
			continue
		}
		obj = next.(*value.Object)
	}
	obj.Set(segs[len(segs)-1], ToValue(k))
	return nil
}
