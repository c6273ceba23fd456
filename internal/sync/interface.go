// Package sync implements the orchestration engine that keeps the local
// document store and a remote calendar eventually consistent.
package sync

import (
	"github.com/fbgallet/calsync/internal/store"
)

// LocalStore is the local document store consumed by the engine.
//
// The engine treats the store as an external collaborator: records are
// created under date partitions, moved between partitions when their
// remote start date changes, and carry child marker records for multi-day
// spans. *store.Store implements this interface.
type LocalStore interface {
	// CreateRecord creates a record under a date partition (parentID is
	// a YYYY-MM-DD date) or as a child of an existing record (parentID
	// is a record id), returning the new record's id.
	CreateRecord(parentID, content string) (string, error)

	// UpdateRecord replaces a record's content.
	//
	// Returns store.ErrNotFound if the record no longer exists.
	UpdateRecord(id, content string) error

	// DeleteRecord removes a record and its children. Idempotence is
	// the caller's concern: deleting a missing record is an error.
	DeleteRecord(id string) error

	// MoveRecord relocates a record to a different date partition.
	MoveRecord(id, newParentID string) error

	// RecordContent returns a record's content.
	RecordContent(id string) (string, error)

	// RecordExists reports whether a record exists.
	RecordExists(id string) bool

	// Get returns the full record, including its modification time.
	Get(id string) (*store.Record, error)

	// ChildRecords returns the direct children of a record.
	ChildRecords(id string) ([]*store.Record, error)
}
