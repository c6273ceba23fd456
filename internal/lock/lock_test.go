package lock

import (
	"sync"
	"testing"
	"time"
)

// TestAcquire_Free tests acquiring a free lock.
func TestAcquire_Free(t *testing.T) {
	m := NewManager()

	if !m.Acquire("rec-1") {
		t.Fatal("Acquire() on free lock returned false")
	}
	if !m.Locked("rec-1") {
		t.Error("Locked() = false after Acquire()")
	}
}

// TestAcquire_Held tests that a younger lock blocks a second acquire.
func TestAcquire_Held(t *testing.T) {
	m := NewManager()

	if !m.Acquire("rec-1") {
		t.Fatal("First Acquire() failed")
	}
	if m.Acquire("rec-1") {
		t.Error("Second Acquire() succeeded while lock held")
	}
}

// TestAcquire_Independent tests that locks on different ids do not interact.
func TestAcquire_Independent(t *testing.T) {
	m := NewManager()

	if !m.Acquire("rec-1") {
		t.Fatal("Acquire(rec-1) failed")
	}
	if !m.Acquire("rec-2") {
		t.Error("Acquire(rec-2) blocked by unrelated lock")
	}
}

// TestRelease tests that a released lock can be re-acquired.
func TestRelease(t *testing.T) {
	m := NewManager()

	m.Acquire("rec-1")
	m.Release("rec-1")

	if m.Locked("rec-1") {
		t.Error("Locked() = true after Release()")
	}
	if !m.Acquire("rec-1") {
		t.Error("Acquire() failed after Release()")
	}
}

// TestRelease_Unheld tests that releasing an unheld lock is a no-op.
func TestRelease_Unheld(t *testing.T) {
	m := NewManager()
	m.Release("rec-1")

	if !m.Acquire("rec-1") {
		t.Error("Acquire() failed after releasing unheld lock")
	}
}

// TestAcquire_StaleTakeover tests TTL-based takeover of an abandoned lock.
func TestAcquire_StaleTakeover(t *testing.T) {
	m := NewManager()

	base := time.Now()
	now := base
	m.SetNowFunc(func() time.Time { return now })

	if !m.Acquire("rec-1") {
		t.Fatal("First Acquire() failed")
	}

	// Just under the TTL: still held.
	now = base.Add(DefaultTTL - time.Second)
	if m.Acquire("rec-1") {
		t.Error("Acquire() took over a lock younger than the TTL")
	}

	// At the TTL: the holder is considered crashed and the lock is taken.
	now = base.Add(DefaultTTL)
	if !m.Acquire("rec-1") {
		t.Error("Acquire() failed to take over a stale lock")
	}

	// Takeover refreshes the timestamp, so a third acquire blocks again.
	now = now.Add(time.Second)
	if m.Acquire("rec-1") {
		t.Error("Acquire() succeeded immediately after takeover")
	}
}

// TestLocked_Stale tests that a stale lock reports as unlocked.
func TestLocked_Stale(t *testing.T) {
	m := NewManagerTTL(10 * time.Second)

	base := time.Now()
	now := base
	m.SetNowFunc(func() time.Time { return now })

	m.Acquire("rec-1")
	now = base.Add(11 * time.Second)

	if m.Locked("rec-1") {
		t.Error("Locked() = true for a stale lock")
	}
}

// TestAcquire_Concurrent tests that exactly one of many concurrent
// acquirers wins.
func TestAcquire_Concurrent(t *testing.T) {
	m := NewManager()

	const goroutines = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Acquire("rec-1") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("wins = %d, want 1", wins)
	}
}
