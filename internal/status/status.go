// Package status classifies a sync-record/remote-snapshot pair into a sync
// state.
//
// Classify is a pure function of its inputs: no clock, no I/O, no side
// effects. The orchestrator and the diagnostic CLI use it identically, so
// what the engine would do and what `calsync status` reports can never
// disagree.
package status

import (
	"github.com/fbgallet/calsync/internal/metadata"
	"github.com/fbgallet/calsync/internal/remote"
)

// State is the sync relationship between a local record and its remote
// counterpart.
type State int

const (
	// StateLocalOnly means no usable link exists: either the record was
	// never synced, or the remote side is gone.
	StateLocalOnly State = iota

	// StatePendingPush means the local side changed since the last sync
	// and must be written to the remote.
	StatePendingPush

	// StatePendingPull means the remote side changed since the last sync
	// and must be written locally.
	StatePendingPull

	// StateConflict means both sides changed since the last sync.
	// Conflicts are never auto-resolved.
	StateConflict

	// StateSynced means neither side changed since the last sync.
	StateSynced
)

// String implements fmt.Stringer for diagnostics.
func (s State) String() string {
	switch s {
	case StateLocalOnly:
		return "local-only"
	case StatePendingPush:
		return "pending-push"
	case StatePendingPull:
		return "pending-pull"
	case StateConflict:
		return "conflict"
	case StateSynced:
		return "synced"
	default:
		return "unknown"
	}
}

// Classify returns the sync state for a record/snapshot pair.
//
// A nil record means the local record was never linked; a nil snapshot with
// a record present means the remote record may have been deleted. Both
// classify as local-only. Otherwise the two modification timestamps are
// compared against the last sync instant: both newer is a conflict, one
// newer is pending in that direction, neither newer is synced.
func Classify(rec *metadata.SyncRecord, snap *remote.Snapshot) State {
	if rec == nil {
		return StateLocalOnly
	}
	if snap == nil {
		return StateLocalOnly
	}

	// The snapshot carries the current remote modification instant; the
	// record's stored copy is only a fallback for snapshots without one.
	remoteUpdated := snap.Updated
	if remoteUpdated.IsZero() {
		remoteUpdated = rec.RemoteUpdatedAt
	}

	remoteChanged := remoteUpdated.After(rec.LastSyncAt)
	localChanged := rec.LocalUpdatedAt.After(rec.LastSyncAt)

	switch {
	case remoteChanged && localChanged:
		return StateConflict
	case remoteChanged:
		return StatePendingPull
	case localChanged:
		return StatePendingPush
	default:
		return StateSynced
	}
}
