package status

import (
	"testing"
	"time"

	"github.com/fbgallet/calsync/internal/metadata"
	"github.com/fbgallet/calsync/internal/remote"
)

var syncedAt = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// pair builds a record/snapshot pair with modification instants offset
// from the last sync by the given durations.
func pair(localOffset, remoteOffset time.Duration) (*metadata.SyncRecord, *remote.Snapshot) {
	rec := &metadata.SyncRecord{
		LocalID:         "rec-1",
		RemoteID:        "evt-1",
		CalendarID:      "primary",
		LastSyncAt:      syncedAt,
		LocalUpdatedAt:  syncedAt.Add(localOffset),
		RemoteUpdatedAt: syncedAt,
	}
	snap := &remote.Snapshot{
		ID:      "evt-1",
		Updated: syncedAt.Add(remoteOffset),
	}
	return rec, snap
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		localOffset  time.Duration
		remoteOffset time.Duration
		want         State
	}{
		{"neither changed", -time.Hour, -time.Hour, StateSynced},
		{"exactly at sync instant", 0, 0, StateSynced},
		{"local changed", time.Minute, -time.Hour, StatePendingPush},
		{"remote changed", -time.Hour, time.Minute, StatePendingPull},
		{"both changed", time.Minute, time.Minute, StateConflict},
		{"both changed, far apart", 48 * time.Hour, time.Second, StateConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, snap := pair(tt.localOffset, tt.remoteOffset)
			if got := Classify(rec, snap); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestClassify_NilRecord tests that an unlinked record is local-only.
func TestClassify_NilRecord(t *testing.T) {
	_, snap := pair(0, 0)
	if got := Classify(nil, snap); got != StateLocalOnly {
		t.Errorf("Classify(nil, snap) = %v, want %v", got, StateLocalOnly)
	}
}

// TestClassify_NilSnapshot tests that a missing remote side is local-only.
func TestClassify_NilSnapshot(t *testing.T) {
	rec, _ := pair(0, 0)
	if got := Classify(rec, nil); got != StateLocalOnly {
		t.Errorf("Classify(rec, nil) = %v, want %v", got, StateLocalOnly)
	}
}

// TestClassify_ZeroSnapshotUpdated tests the fallback to the stored remote
// instant when the snapshot carries no modification time.
func TestClassify_ZeroSnapshotUpdated(t *testing.T) {
	rec, _ := pair(0, 0)
	rec.RemoteUpdatedAt = syncedAt.Add(time.Minute)
	snap := &remote.Snapshot{ID: "evt-1"}

	if got := Classify(rec, snap); got != StatePendingPull {
		t.Errorf("Classify() = %v, want %v", got, StatePendingPull)
	}
}

// TestClassify_Pure tests that classification does not mutate its inputs
// and is stable across calls.
func TestClassify_Pure(t *testing.T) {
	rec, snap := pair(time.Minute, time.Minute)
	before := *rec

	first := Classify(rec, snap)
	second := Classify(rec, snap)

	if first != second {
		t.Errorf("Classify() not deterministic: %v then %v", first, second)
	}
	if *rec != before {
		t.Error("Classify() mutated the sync record")
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateLocalOnly, "local-only"},
		{StatePendingPush, "pending-push"},
		{StatePendingPull, "pending-pull"},
		{StateConflict, "conflict"},
		{StateSynced, "synced"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
