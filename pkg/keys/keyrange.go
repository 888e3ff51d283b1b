// ABOUTME: KeyRange describes an interval of keys with open or closed bounds
// ABOUTME: A nil *KeyRange matches every key

package keys

import "fmt"

// KeyRange is immutable once constructed. A None bound is unbounded.
type KeyRange struct {
	lower, upper         Key
	lowerOpen, upperOpen bool
}

// Only returns the range holding exactly k.
func Only(k Key) (*KeyRange, error) {
	if err := Validate(k); err != nil {
		return nil, err
	}
	return &KeyRange{lower: k, upper: k}, nil
}

// LowerBound returns the range of keys above k.
func LowerBound(k Key, open bool) (*KeyRange, error) {
	if err := Validate(k); err != nil {
		return nil, err
	}
	return &KeyRange{lower: k, lowerOpen: open}, nil
}

// UpperBound returns the range of keys below k.
func UpperBound(k Key, open bool) (*KeyRange, error) {
	if err := Validate(k); err != nil {
		return nil, err
	}
	return &KeyRange{upper: k, upperOpen: open}, nil
}

// Bound returns the range between lower and upper.
func Bound(lower, upper Key, lowerOpen, upperOpen bool) (*KeyRange, error) {
	if err := Validate(lower); err != nil {
		return nil, err
	}
	if err := Validate(upper); err != nil {
		return nil, err
	}
	switch c := Compare(lower, upper); {
	case c > 0:
		return nil, fmt.Errorf("%w: lower %s above upper %s", ErrInvalidRange, lower, upper)
	case c == 0 && (lowerOpen || upperOpen):
		return nil, fmt.Errorf("%w: equal bounds with an open side", ErrInvalidRange)
	}
	return &KeyRange{lower: lower, upper: upper, lowerOpen: lowerOpen, upperOpen: upperOpen}, nil
}

func (r *KeyRange) Lower() Key      { return r.lower }
func (r *KeyRange) Upper() Key      { return r.upper }
func (r *KeyRange) LowerOpen() bool { return r.lowerOpen }
func (r *KeyRange) UpperOpen() bool { return r.upperOpen }

// IsOnly reports whether r holds a single key.
func (r *KeyRange) IsOnly() bool {
	return r != nil && !r.lower.IsNone() && !r.lowerOpen && !r.upperOpen && Equal(r.lower, r.upper)
}

// Includes reports whether k lies in r.
func (r *KeyRange) Includes(k Key) bool {
	if r == nil {
		return true
	}
	if !r.lower.IsNone() {
		c := Compare(r.lower, k)
		if c > 0 || (c == 0 && r.lowerOpen) {
			return false
		}
	}
	if !r.upper.IsNone() {
		c := Compare(k, r.upper)
		if c > 0 || (c == 0 && r.upperOpen) {
			return false
		}
	}
	return true
}

func (r *KeyRange) String() string {
	if r == nil {
		return "(*)"
	}
	lb, ub := "[", "]"
	if r.lowerOpen {
		lb = "("
	}
	if r.upperOpen {
		ub = ")"
	}
	lo, hi := "-inf", "+inf"
	if !r.lower.IsNone() {
		lo = r.lower.String()
	}
	if !r.upper.IsNone() {
		hi = r.upper.String()
	}
	return lb + lo + ", " + hi + ub
}
