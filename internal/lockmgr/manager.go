// ABOUTME: FIFO scope lock manager for transaction scheduling
// ABOUTME: Grants in creation order; overlapping writers are serialized

package lockmgr

import (
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Mode is the access a request needs.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
	VersionChange
)

func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "readonly"
	case ReadWrite:
		return "readwrite"
	case VersionChange:
		return "versionchange"
	}
	return "unknown"
}

type entry struct {
	owner   uuid.UUID
	scope   []string
	mode    Mode
	granted bool
}

// conflicts reports whether a and b may not run at the same time.
func conflicts(a, b *entry) bool {
	if a.mode == VersionChange || b.mode == VersionChange {
		return true
	}
	if a.mode == ReadOnly && b.mode == ReadOnly {
		return false
	}
	for _, s := range a.scope {
		if slices.Contains(b.scope, s) {
			return true
		}
	}
	return false
}

// Manager is safe for concurrent use.
type Manager struct {
	mu    sync.Mutex
	queue []*entry
	waits int
}

func New() *Manager {
	return &Manager{}
}

// Acquire queues a request for owner and reports whether it was granted
// immediately. An owner may hold at most one request.
func (m *Manager) Acquire(owner uuid.UUID, scope []string, mode Mode) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := &entry{owner: owner, scope: slices.Clone(scope), mode: mode}
	m.queue = append(m.queue, e)
	e.granted = m.grantable(len(m.queue) - 1)
	if !e.granted {
		m.waits++
	}
	return e.granted
}

func (m *Manager) grantable(i int) bool {
	for _, earlier := range m.queue[:i] {
		if conflicts(earlier, m.queue[i]) {
			return false
		}
	}
	return true
}

// Release removes owner's request, granted or not, and returns the owners
// that became granted as a result, in queue order.
func (m *Manager) Release(owner uuid.UUID) []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := slices.IndexFunc(m.queue, func(e *entry) bool { return e.owner == owner })
	if idx < 0 {
		return nil
	}
	m.queue = slices.Delete(m.queue, idx, idx+1)

	var granted []uuid.UUID
	for i, e := range m.queue {
		if !e.granted && m.grantable(i) {
			e.granted = true
			granted = append(granted, e.owner)
		}
	}
	return granted
}

// Granted reports whether owner currently holds its locks.
func (m *Manager) Granted(owner uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.queue {
		if e.owner == owner {
			return e.granted
		}
	}
	return false
}

// Len returns the number of queued requests, granted or waiting.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Waits returns how many requests had to wait since creation.
func (m *Manager) Waits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waits
}
