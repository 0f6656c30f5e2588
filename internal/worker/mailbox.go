package worker

import (
	"sync"
)

// FrameResult is one published frame.
//
// Pix may be shared with the frame cache and must be treated as read-only.
type FrameResult struct {
	Pix    []byte // tightly packed RGBA, Width*Height*4 bytes
	Width  int
	Height int
	ID     uint64 // strictly increasing per mailbox
	Ready  bool

	Anim     string // animation identity the frame belongs to
	Frame    int    // quantized frame index
	CacheHit bool
}

// Mailbox is a single-slot, latest-wins handoff from the worker to the
// consumer. Publishing over an unconsumed result replaces it.
type Mailbox struct {
	mu     sync.Mutex
	slot   FrameResult // Ready=false means consumed or empty
	nextID uint64
	drops  uint64 // results overwritten before anyone took them
}

// Publish stores r with the next identity and returns that identity.
func (m *Mailbox) Publish(r FrameResult) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.slot.Ready {
		m.drops++
	}
	m.nextID++
	r.ID = m.nextID
	r.Ready = true
	m.slot = r
	return r.ID
}

// TryTake returns the pending result and marks the slot consumed.
// It reports false when nothing was published since the last take.
func (m *Mailbox) TryTake() (FrameResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.slot.Ready {
		return FrameResult{}, false
	}
	r := m.slot
	m.slot = FrameResult{}
	return r, true
}

// LastID returns the identity of the most recent publish.
func (m *Mailbox) LastID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextID
}

// Drops returns how many results were replaced before being taken.
func (m *Mailbox) Drops() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drops
}
