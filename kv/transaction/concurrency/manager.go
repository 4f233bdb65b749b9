// Package concurrency tracks the highest timestamp observed by any read or write
// in this process. A write must not become visible below that high-water mark,
// otherwise a read which was already served would silently miss it.
package concurrency

import "go.uber.org/atomic"

// Manager is shared by all commands in a process. It is safe for concurrent use.
type Manager struct {
	maxTs atomic.Uint64
}

func NewManager() *Manager {
	return &Manager{}
}

// UpdateMaxTs raises the high-water mark to ts if ts is larger.
func (m *Manager) UpdateMaxTs(ts uint64) {
	for {
		cur := m.maxTs.Load()
		if ts <= cur || m.maxTs.CompareAndSwap(cur, ts) {
			return
		}
	}
}

// MaxTs returns the highest timestamp observed so far.
func (m *Manager) MaxTs() uint64 {
	return m.maxTs.Load()
}
