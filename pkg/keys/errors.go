package keys

import "errors"

var (
	// ErrInvalidKey marks a value that is not a valid key: NaN or infinite
	// numbers, invalid dates, cyclic arrays, or unsupported kinds.
	ErrInvalidKey = errors.New("keys: invalid key")

	// ErrKeyTooLarge marks a key whose encoding exceeds MaxEncodedKey.
	ErrKeyTooLarge = errors.New("keys: key too large")

	// ErrInvalidRange marks a range whose lower bound is above its upper
	// bound, or an empty range with equal open bounds.
	ErrInvalidRange = errors.New("keys: invalid key range")

	// ErrInvalidKeyPath marks a key path that is not an identifier chain.
	ErrInvalidKeyPath = errors.New("keys: invalid key path")

	// ErrCorrupt marks bytes that are not a key encoding.
	ErrCorrupt = errors.New("keys: corrupt encoding")
)
