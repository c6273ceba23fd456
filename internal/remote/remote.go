// Package remote defines the calendar service boundary for calsync.
//
// The sync engine never touches provider SDK types directly. Remote records
// are parsed into Snapshot values at this boundary, and malformed payloads
// are rejected with a ParseError instead of being silently defaulted.
package remote

import (
	"context"
	"time"
)

// Kind distinguishes the two remote record variants.
type Kind string

const (
	// KindEvent is a timed or all-day calendar event.
	KindEvent Kind = "event"

	// KindTask is a task with a due date, mapped from the tasks service.
	KindTask Kind = "task"
)

// Remote record statuses, as reported by the provider.
const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusTentative = "tentative"
	StatusOpen      = "needsAction"
	StatusCompleted = "completed"
)

// Snapshot is a parsed, validated remote record.
//
// Snapshots are read-only views of the provider state at list time. The
// engine classifies them against sync records but never mutates them.
type Snapshot struct {
	// ID is the provider-assigned record id.
	ID string

	// Kind tags the record as an event or a task.
	Kind Kind

	// Summary is the record title.
	Summary string

	// Description is the free-form body. Back-links and suppression
	// markers live here.
	Description string

	// Start and End bound the record in time. All-day records carry
	// midnight wall-clock times in the calendar's zone. Tasks carry
	// their due date as both Start and End.
	Start time.Time
	End   time.Time

	// AllDay is true for date-only records.
	AllDay bool

	// Status is the provider status (confirmed, cancelled, ...).
	Status string

	// Updated is the provider's last-modification instant.
	Updated time.Time

	// Created is the provider's creation instant, used for keeper
	// selection during deduplication.
	Created time.Time

	// Etag is the provider's opaque version token.
	Etag string
}

// Cancelled reports whether the remote record has been deleted or declined
// on the provider side.
func (s *Snapshot) Cancelled() bool {
	return s.Status == StatusCancelled
}

// Payload is the writable subset of a remote record, used for create and
// update calls.
type Payload struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	AllDay      bool

	// Completed marks a task done. Ignored for events.
	Completed bool
}

// CreateResult carries the identifying fields returned by a create call.
type CreateResult struct {
	ID      string
	Etag    string
	Updated time.Time
}

// UpdateResult carries the version fields returned by an update call.
type UpdateResult struct {
	Etag    string
	Updated time.Time
}

// ListOptions tunes a ListEvents call.
type ListOptions struct {
	// UpdatedMin restricts results to records modified at or after the
	// given instant. Zero means no restriction.
	UpdatedMin time.Time

	// ShowDeleted includes cancelled records in the listing. The sync
	// engine needs these to propagate remote deletions.
	ShowDeleted bool

	// MaxResults caps the page size (0 = provider default).
	MaxResults int64
}

// API is the remote calendar service consumed by the sync engine.
//
// Implementations map provider SDK errors into this package's taxonomy:
// authentication failures become *AuthError, everything else retryable
// becomes *APIError. Both event calendars and task lists implement the
// same surface so the engine can drive either domain.
type API interface {
	// ListEvents returns records within [timeMin, timeMax), in the order
	// the provider returns them.
	ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time, opts ListOptions) ([]*Snapshot, error)

	// CreateEvent creates a record and returns its id and version fields.
	CreateEvent(ctx context.Context, calendarID string, p *Payload) (*CreateResult, error)

	// UpdateEvent overwrites a record and returns the new version fields.
	UpdateEvent(ctx context.Context, calendarID, id string, p *Payload) (*UpdateResult, error)

	// DeleteEvent removes a record. Deleting an already-removed record
	// is not an error.
	DeleteEvent(ctx context.Context, calendarID, id string) error
}
