package keys

import "strings"

// Compare returns -1, 0 or +1 as a sorts before, equal to, or after b.
// Both keys should be valid; None sorts before everything.
func Compare(a, b Key) int {
	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}
		return 1
	}
	switch a.kind {
	case KindNumber, KindDate:
		switch {
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		}
		return 0
	case KindString, KindBinary:
		// Go strings compare bytewise, which for UTF-8 is code point order
		return strings.Compare(a.str, b.str)
	case KindArray:
		n := min(len(a.arr), len(b.arr))
		for i := 0; i < n; i++ {
			if c := Compare(a.arr[i], b.arr[i]); c != 0 {
				return c
			}
		}
		switch {
		case len(a.arr) < len(b.arr):
			return -1
		case len(a.arr) > len(b.arr):
			return 1
		}
	}
	return 0
}

// Equal reports whether a and b compare equal.
func Equal(a, b Key) bool {
	return Compare(a, b) == 0
}
