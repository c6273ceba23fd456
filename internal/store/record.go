// Package store implements the local hierarchical document store.
//
// Records are individual JSON files grouped under date-partition
// directories:
//
//	<root>/2026-08-29/a1b2c3d4e5f6.json
//
// Top-level records belong directly to a date partition; child records
// (end-date markers for multi-day events) reference a parent record id and
// live in the parent's partition. Files are the source of truth — there is
// no in-memory cache — so concurrent processes and the daemon's filesystem
// watcher all observe the same state.
package store

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// PartitionLayout is the date-partition directory name format.
const PartitionLayout = "2006-01-02"

// Record is one document node.
type Record struct {
	// ID is the record's stable identifier.
	ID string `json:"id"`

	// Partition is the date container the record belongs to (YYYY-MM-DD).
	Partition string `json:"partition"`

	// ParentID links a child record (end-date marker) to its parent.
	// Empty for top-level records.
	ParentID string `json:"parent_id,omitempty"`

	// Content is the record body.
	Content string `json:"content"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks required Record fields.
func (r *Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if r.Partition == "" {
		return fmt.Errorf("partition is required")
	}
	if _, err := time.Parse(PartitionLayout, r.Partition); err != nil {
		return fmt.Errorf("partition must be a %s date: %w", PartitionLayout, err)
	}
	if r.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if r.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}

// Filename returns the canonical filename for this record: {id}.json
func (r *Record) Filename() string {
	return r.ID + ".json"
}

// NewID generates a random record id.
func NewID() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform is broken; fall back
		// to a time-derived id rather than panicking mid-sync.
		return fmt.Sprintf("t%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

// readRecordFile reads and validates a record JSON file.
func readRecordFile(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record file %s: %w", path, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse record file %s: %w", path, err)
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid record file %s: %w", path, err)
	}
	return &rec, nil
}

// writeRecordFile writes a record to its partition directory.
func writeRecordFile(root string, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("cannot write invalid record: %w", err)
	}

	dir := filepath.Join(root, rec.Partition)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create partition directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", rec.ID, err)
	}

	path := filepath.Join(dir, rec.Filename())
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write record file %s: %w", path, err)
	}
	return nil
}
