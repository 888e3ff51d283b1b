package clone

import "errors"

var (
	// ErrDataClone marks a value the codec cannot clone in strict mode.
	ErrDataClone = errors.New("clone: value cannot be cloned")

	// ErrCorrupt marks bytes that are not a serialized value.
	ErrCorrupt = errors.New("clone: corrupt data")
)
