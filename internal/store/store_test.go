package store

import (
	"errors"
	"testing"
)

// testStore creates a store in a temp directory.
func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return s
}

// TestCreateRecord_TopLevel tests creating a record under a date partition.
func TestCreateRecord_TopLevel(t *testing.T) {
	s := testStore(t)

	id, err := s.CreateRecord("2026-03-10", "09:00 Standup")
	if err != nil {
		t.Fatalf("CreateRecord() failed: %v", err)
	}

	rec, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if rec.Partition != "2026-03-10" {
		t.Errorf("Partition = %q, want %q", rec.Partition, "2026-03-10")
	}
	if rec.ParentID != "" {
		t.Errorf("ParentID = %q, want empty", rec.ParentID)
	}
	if rec.Content != "09:00 Standup" {
		t.Errorf("Content = %q", rec.Content)
	}
}

// TestCreateRecord_Child tests creating a child in the parent's partition.
func TestCreateRecord_Child(t *testing.T) {
	s := testStore(t)

	parentID, err := s.CreateRecord("2026-03-10", "Conference")
	if err != nil {
		t.Fatalf("CreateRecord() failed: %v", err)
	}

	childID, err := s.CreateRecord(parentID, "ends: 2026-03-12")
	if err != nil {
		t.Fatalf("CreateRecord(child) failed: %v", err)
	}

	child, err := s.Get(childID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if child.ParentID != parentID {
		t.Errorf("ParentID = %q, want %q", child.ParentID, parentID)
	}
	if child.Partition != "2026-03-10" {
		t.Errorf("child Partition = %q, want parent's partition", child.Partition)
	}
}

// TestCreateRecord_MissingParent tests that a bad parent id fails.
func TestCreateRecord_MissingParent(t *testing.T) {
	s := testStore(t)

	if _, err := s.CreateRecord("no-such-record", "content"); err == nil {
		t.Error("CreateRecord() succeeded with a missing parent")
	}
}

// TestGet_NotFound tests the sentinel error.
func TestGet_NotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.Get("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

// TestUpdateRecord tests content replacement and timestamp bumping.
func TestUpdateRecord(t *testing.T) {
	s := testStore(t)

	id, _ := s.CreateRecord("2026-03-10", "before")
	created, _ := s.Get(id)

	if err := s.UpdateRecord(id, "after"); err != nil {
		t.Fatalf("UpdateRecord() failed: %v", err)
	}

	rec, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if rec.Content != "after" {
		t.Errorf("Content = %q, want %q", rec.Content, "after")
	}
	if rec.UpdatedAt.Before(created.UpdatedAt) {
		t.Error("UpdatedAt went backwards after update")
	}

	if err := s.UpdateRecord("nope", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateRecord(missing) error = %v, want ErrNotFound", err)
	}
}

// TestDeleteRecord_Cascades tests that children are deleted with the parent.
func TestDeleteRecord_Cascades(t *testing.T) {
	s := testStore(t)

	parentID, _ := s.CreateRecord("2026-03-10", "Conference")
	childID, _ := s.CreateRecord(parentID, "ends: 2026-03-12")

	if err := s.DeleteRecord(parentID); err != nil {
		t.Fatalf("DeleteRecord() failed: %v", err)
	}
	if s.RecordExists(parentID) {
		t.Error("parent still exists after delete")
	}
	if s.RecordExists(childID) {
		t.Error("child survived parent deletion")
	}

	if err := s.DeleteRecord(parentID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteRecord() error = %v, want ErrNotFound", err)
	}
}

// TestMoveRecord tests relocation between partitions, children included.
func TestMoveRecord(t *testing.T) {
	s := testStore(t)

	parentID, _ := s.CreateRecord("2026-03-10", "Conference")
	childID, _ := s.CreateRecord(parentID, "ends: 2026-03-12")

	if err := s.MoveRecord(parentID, "2026-03-11"); err != nil {
		t.Fatalf("MoveRecord() failed: %v", err)
	}

	rec, err := s.Get(parentID)
	if err != nil {
		t.Fatalf("Get() after move failed: %v", err)
	}
	if rec.Partition != "2026-03-11" {
		t.Errorf("Partition = %q, want %q", rec.Partition, "2026-03-11")
	}

	child, err := s.Get(childID)
	if err != nil {
		t.Fatalf("Get(child) after move failed: %v", err)
	}
	if child.Partition != "2026-03-11" {
		t.Errorf("child Partition = %q, want %q", child.Partition, "2026-03-11")
	}

	// The old partition must not still hold the record.
	old, err := s.ListPartition("2026-03-10")
	if err != nil {
		t.Fatalf("ListPartition() failed: %v", err)
	}
	if len(old) != 0 {
		t.Errorf("old partition still holds %d record(s)", len(old))
	}
}

// TestMoveRecord_BadTarget tests that a non-date target is rejected.
func TestMoveRecord_BadTarget(t *testing.T) {
	s := testStore(t)
	id, _ := s.CreateRecord("2026-03-10", "x")

	if err := s.MoveRecord(id, "not-a-date"); err == nil {
		t.Error("MoveRecord() accepted a non-date target")
	}
}

// TestListPartition tests that only top-level records are listed.
func TestListPartition(t *testing.T) {
	s := testStore(t)

	parentID, _ := s.CreateRecord("2026-03-10", "Conference")
	s.CreateRecord(parentID, "ends: 2026-03-12")
	s.CreateRecord("2026-03-10", "09:00 Standup")

	recs, err := s.ListPartition("2026-03-10")
	if err != nil {
		t.Fatalf("ListPartition() failed: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("ListPartition() returned %d records, want 2 (children excluded)", len(recs))
	}

	empty, err := s.ListPartition("2030-01-01")
	if err != nil {
		t.Fatalf("ListPartition(missing) failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("missing partition returned %d records", len(empty))
	}
}

// TestChildRecords tests direct-children lookup.
func TestChildRecords(t *testing.T) {
	s := testStore(t)

	parentID, _ := s.CreateRecord("2026-03-10", "Conference")
	c1, _ := s.CreateRecord(parentID, "ends: 2026-03-12")
	c2, _ := s.CreateRecord(parentID, "note")

	children, err := s.ChildRecords(parentID)
	if err != nil {
		t.Fatalf("ChildRecords() failed: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("ChildRecords() returned %d, want 2", len(children))
	}
	ids := map[string]bool{children[0].ID: true, children[1].ID: true}
	if !ids[c1] || !ids[c2] {
		t.Errorf("ChildRecords() = %v, want %s and %s", ids, c1, c2)
	}
}

// TestExpandRefs tests inline reference expansion.
func TestExpandRefs(t *testing.T) {
	s := testStore(t)

	// Fix the ids by creating then reading back.
	aID, _ := s.CreateRecord("2026-03-10", "hello")
	content := "say ((" + aID + ")) twice: ((" + aID + "))"

	got := s.ExpandRefs(content)
	want := "say hello twice: hello"
	if got != want {
		t.Errorf("ExpandRefs() = %q, want %q", got, want)
	}
}

// TestExpandRefs_Nested tests multi-level expansion.
func TestExpandRefs_Nested(t *testing.T) {
	s := testStore(t)

	innerID, _ := s.CreateRecord("2026-03-10", "world")
	outerID, _ := s.CreateRecord("2026-03-10", "hello (("+innerID+"))")

	got := s.ExpandRefs("((" + outerID + "))")
	if got != "hello world" {
		t.Errorf("ExpandRefs() = %q, want %q", got, "hello world")
	}
}

// TestExpandRefs_Cycle tests that circular references terminate.
func TestExpandRefs_Cycle(t *testing.T) {
	s := testStore(t)

	aID, _ := s.CreateRecord("2026-03-10", "placeholder")
	bID, _ := s.CreateRecord("2026-03-10", "b says (("+aID+"))")
	if err := s.UpdateRecord(aID, "a says (("+bID+"))"); err != nil {
		t.Fatalf("UpdateRecord() failed: %v", err)
	}

	// Must terminate; the back-reference into the cycle stays literal.
	got := s.ExpandRefs("((" + aID + "))")
	want := "a says b says ((" + aID + "))"
	if got != want {
		t.Errorf("ExpandRefs() = %q, want %q", got, want)
	}
}

// TestExpandRefs_Missing tests that unknown references stay literal.
func TestExpandRefs_Missing(t *testing.T) {
	s := testStore(t)

	content := "see ((doesnotexist))"
	if got := s.ExpandRefs(content); got != content {
		t.Errorf("ExpandRefs() = %q, want unchanged", got)
	}
}
