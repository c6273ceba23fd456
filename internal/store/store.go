package store

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound is returned when no record exists for a given id.
var ErrNotFound = errors.New("record not found")

// Store is a file-backed hierarchical document store.
type Store struct {
	root   string
	logger *log.Logger
}

// New creates a store rooted at the given directory, creating it if needed.
//
// If logger is nil, a default logger writing to stderr is used.
func New(root string, logger *log.Logger) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("root cannot be empty")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}
	return &Store{root: root, logger: logger}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// CreateRecord creates a record and returns its id.
//
// parentID is either a date partition (YYYY-MM-DD), producing a top-level
// record, or an existing record id, producing a child record in the
// parent's partition.
func (s *Store) CreateRecord(parentID, content string) (string, error) {
	now := time.Now()
	rec := &Record{
		ID:        NewID(),
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := time.Parse(PartitionLayout, parentID); err == nil {
		rec.Partition = parentID
	} else {
		parent, err := s.Get(parentID)
		if err != nil {
			return "", fmt.Errorf("parent record %s: %w", parentID, err)
		}
		rec.Partition = parent.Partition
		rec.ParentID = parent.ID
	}

	if err := writeRecordFile(s.root, rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// Get returns the record for id, or ErrNotFound.
func (s *Store) Get(id string) (*Record, error) {
	path, err := s.locate(id)
	if err != nil {
		return nil, err
	}
	return readRecordFile(path)
}

// UpdateRecord replaces a record's content and bumps its timestamp.
func (s *Store) UpdateRecord(id, content string) error {
	rec, err := s.Get(id)
	if err != nil {
		return err
	}
	rec.Content = content
	rec.UpdatedAt = time.Now()
	return writeRecordFile(s.root, rec)
}

// DeleteRecord removes a record and its child records. Deleting a record
// that does not exist returns ErrNotFound.
func (s *Store) DeleteRecord(id string) error {
	path, err := s.locate(id)
	if err != nil {
		return err
	}

	children, err := s.ChildRecords(id)
	if err != nil {
		return err
	}
	for _, child := range children {
		childPath := filepath.Join(s.root, child.Partition, child.Filename())
		if err := os.Remove(childPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete child record %s: %w", child.ID, err)
		}
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	return nil
}

// MoveRecord relocates a record to a different date partition. Child
// records move with their parent.
func (s *Store) MoveRecord(id, newParentID string) error {
	if _, err := time.Parse(PartitionLayout, newParentID); err != nil {
		return fmt.Errorf("move target must be a %s date partition: %w", PartitionLayout, err)
	}

	rec, err := s.Get(id)
	if err != nil {
		return err
	}
	if rec.Partition == newParentID {
		return nil
	}

	children, err := s.ChildRecords(id)
	if err != nil {
		return err
	}

	oldPath := filepath.Join(s.root, rec.Partition, rec.Filename())
	rec.Partition = newParentID
	rec.UpdatedAt = time.Now()
	if err := writeRecordFile(s.root, rec); err != nil {
		return err
	}
	if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove moved record %s: %w", id, err)
	}

	for _, child := range children {
		childOld := filepath.Join(s.root, child.Partition, child.Filename())
		child.Partition = newParentID
		if err := writeRecordFile(s.root, child); err != nil {
			return err
		}
		if err := os.Remove(childOld); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove moved child %s: %w", child.ID, err)
		}
	}
	return nil
}

// RecordContent returns a record's content.
func (s *Store) RecordContent(id string) (string, error) {
	rec, err := s.Get(id)
	if err != nil {
		return "", err
	}
	return rec.Content, nil
}

// RecordExists reports whether a record exists.
func (s *Store) RecordExists(id string) bool {
	_, err := s.locate(id)
	return err == nil
}

// ChildRecords returns the direct children of a record, in partition order.
func (s *Store) ChildRecords(id string) ([]*Record, error) {
	var children []*Record
	err := s.walk(func(rec *Record) {
		if rec.ParentID == id {
			children = append(children, rec)
		}
	})
	if err != nil {
		return nil, err
	}
	return children, nil
}

// ListPartition returns the top-level records of one date partition.
// A missing partition is an empty result, not an error.
func (s *Store) ListPartition(date string) ([]*Record, error) {
	dir := filepath.Join(s.root, date)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read partition %s: %w", date, err)
	}

	var recs []*Record
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		rec, err := readRecordFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			s.logger.Printf("Warning: skipping invalid record file %s: %v", entry.Name(), err)
			continue
		}
		if rec.ParentID == "" {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

// locate returns the file path holding id, or ErrNotFound.
func (s *Store) locate(id string) (string, error) {
	if id == "" {
		return "", ErrNotFound
	}
	partitions, err := s.partitions()
	if err != nil {
		return "", err
	}
	for _, p := range partitions {
		path := filepath.Join(s.root, p, id+".json")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("record %s: %w", id, ErrNotFound)
}

// partitions lists the date-partition directories under the root.
func (s *Store) partitions() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read store root: %w", err)
	}
	var out []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := time.Parse(PartitionLayout, entry.Name()); err != nil {
			continue
		}
		out = append(out, entry.Name())
	}
	return out, nil
}

// walk visits every valid record in the store.
func (s *Store) walk(visit func(*Record)) error {
	partitions, err := s.partitions()
	if err != nil {
		return err
	}
	for _, p := range partitions {
		dir := filepath.Join(s.root, p)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("failed to read partition %s: %w", p, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			rec, err := readRecordFile(filepath.Join(dir, entry.Name()))
			if err != nil {
				s.logger.Printf("Warning: skipping invalid record file %s: %v", entry.Name(), err)
				continue
			}
			visit(rec)
		}
	}
	return nil
}
