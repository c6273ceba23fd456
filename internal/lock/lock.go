// Package lock provides per-record mutual exclusion for sync actions.
//
// Each import/export/update action holds the lock for its local record id
// only for the duration of that single action, so unrelated records sync
// concurrently while two triggers (a timer tick and a manual refresh, say)
// cannot duplicate work on the same record. A holder that never releases —
// a crashed goroutine, an abandoned cycle — is recovered by TTL takeover
// rather than blocking forever.
package lock

import (
	"sync"
	"time"
)

// DefaultTTL is how old a held lock must be before it is considered
// abandoned and eligible for takeover.
const DefaultTTL = 30 * time.Second

// Manager tracks in-process locks keyed by local record id. Locks are never
// persisted; a process restart clears them all.
type Manager struct {
	mu   sync.Mutex
	held map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewManager creates a Manager with the default TTL.
func NewManager() *Manager {
	return NewManagerTTL(DefaultTTL)
}

// NewManagerTTL creates a Manager with a custom takeover TTL.
func NewManagerTTL(ttl time.Duration) *Manager {
	return &Manager{
		held: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Acquire attempts to take the lock for id. It returns true if the lock was
// free, or if the previous holder's lock is older than the TTL (stale-lock
// takeover). It returns false while a younger lock is held.
func (m *Manager) Acquire(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if at, ok := m.held[id]; ok && now.Sub(at) < m.ttl {
		return false
	}
	m.held[id] = now
	return true
}

// Release frees the lock for id unconditionally. Releasing an unheld lock
// is a no-op; callers release on every exit path, error paths included.
func (m *Manager) Release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, id)
}

// Locked reports whether a non-stale lock is currently held for id.
func (m *Manager) Locked(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	at, ok := m.held[id]
	return ok && m.now().Sub(at) < m.ttl
}

// SetNowFunc overrides the clock, for tests that age locks artificially.
func (m *Manager) SetNowFunc(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}
