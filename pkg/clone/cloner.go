// ABOUTME: Structural clone codec with cycle and shared-reference support
// ABOUTME: Serialize, Deserialize and Clone, plus the process-wide installer

package clone

import (
	"fmt"
	"strings"
	"sync"
)

// Mode selects what happens to values that cannot be cloned.
type Mode int

const (
	// Strict fails with ErrDataClone.
	Strict Mode = iota
	// Lossy drops them: properties and entries are omitted, array slots
	// become undefined and a top-level value becomes undefined.
	Lossy
)

func (m Mode) String() string {
	if m == Lossy {
		return "lossy"
	}
	return "strict"
}

// ParseMode accepts "strict" or "lossy".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return Strict, nil
	case "lossy":
		return Lossy, nil
	}
	return Strict, fmt.Errorf("clone: unknown mode %q", s)
}

// Cloner serializes values. It holds no per-call state and is safe for
// concurrent use.
type Cloner struct {
	mode Mode
}

// Option configures a Cloner.
type Option func(*Cloner)

// WithMode sets the handling of uncloneable values.
func WithMode(m Mode) Option {
	return func(c *Cloner) { c.mode = m }
}

// New returns a Cloner, strict unless configured otherwise.
func New(opts ...Option) *Cloner {
	c := &Cloner{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cloner) Mode() Mode { return c.mode }

var (
	installOnce sync.Once
	installed   *Cloner
)

// Install returns the process-wide Cloner, constructing it on first call.
// Later calls return the same instance and ignore their options.
func Install(opts ...Option) *Cloner {
	installOnce.Do(func() {
		installed = New(opts...)
	})
	return installed
}
