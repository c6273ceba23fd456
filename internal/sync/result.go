package sync

import (
	"errors"
	"time"

	"github.com/fbgallet/calsync/internal/metadata"
	"github.com/fbgallet/calsync/internal/recovery"
	"github.com/fbgallet/calsync/internal/remote"
)

// ErrLockContention means another sync action currently holds the record's
// lock. The record is skipped for this cycle and retried on the next one.
var ErrLockContention = errors.New("record locked by another sync action")

// ConflictCandidate pairs a sync record with the remote snapshot that
// conflicts with it. Candidates are transient: they are surfaced to the
// caller for explicit human resolution and never persisted.
type ConflictCandidate struct {
	// CalendarID is the remote calendar the snapshot came from.
	CalendarID string

	// Record is the sync record at classification time.
	Record *metadata.SyncRecord

	// Snapshot is the current remote state.
	Snapshot *remote.Snapshot
}

// Choice selects how a conflict is resolved.
type Choice string

const (
	// ChoiceRemote overwrites the local record with the remote snapshot.
	ChoiceRemote Choice = "remote"

	// ChoiceLocal marks the pair synced without touching the remote
	// record. The caller must separately export if the local version
	// should win remotely too.
	ChoiceLocal Choice = "local"

	// ChoiceBoth keeps both versions: the remote snapshot is imported
	// as a second, independently linked local record, and the original
	// local record is re-exported as its own remote record with a
	// suppression marker so deduplication never re-merges the pair.
	ChoiceBoth Choice = "both"
)

// Result accumulates the outcome of one incremental sync cycle. No single
// record's failure aborts the cycle; per-record errors are collected here.
type Result struct {
	// Calendar is the calendar id the cycle ran against.
	Calendar string

	// Imported is how many remote records were created locally.
	Imported int

	// Updated counts applied updates in either direction.
	Updated int

	// Deleted is how many cancelled remote records were deleted locally.
	Deleted int

	// Skipped counts records that needed no action, plus lock-contention
	// skips retried next cycle.
	Skipped int

	// Conflicts holds pairs awaiting explicit resolution. Conflicts are
	// never auto-resolved.
	Conflicts []*ConflictCandidate

	// Errors holds per-record failures.
	Errors []error

	// Recovery is the back-link recovery pre-pass report.
	Recovery *recovery.Report

	// Duration is the cycle's wall time.
	Duration time.Duration
}

// CycleResult is one calendar's outcome within a full sync.
type CycleResult struct {
	Calendar string
	Result   *Result
	Err      error
}
