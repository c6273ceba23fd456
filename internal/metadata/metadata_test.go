package metadata

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// testStore opens an initialized store in a temp directory.
func testStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "metadata.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return s
}

func testRecord(localID string) *SyncRecord {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return &SyncRecord{
		LocalID:         localID,
		RemoteID:        "evt-" + localID,
		CalendarID:      "primary",
		Etag:            `"v1"`,
		RemoteUpdatedAt: now,
		LocalUpdatedAt:  now,
		LastSyncAt:      now,
		RemoteEndDate:   time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC),
	}
}

// TestInitSchema_Idempotent tests that schema creation can run twice.
func TestInitSchema_Idempotent(t *testing.T) {
	s := testStore(t)
	if err := s.InitSchema(); err != nil {
		t.Errorf("Second InitSchema() failed: %v", err)
	}
}

// TestSaveGet_Roundtrip tests that a saved record reads back identically.
func TestSaveGet_Roundtrip(t *testing.T) {
	ns := testStore(t).Namespace(DomainEvents)

	want := testRecord("a1")
	if err := ns.Save(want); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := ns.Get("a1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got == nil {
		t.Fatal("Get() returned nil for saved record")
	}

	if got.RemoteID != want.RemoteID {
		t.Errorf("RemoteID = %q, want %q", got.RemoteID, want.RemoteID)
	}
	if got.Etag != want.Etag {
		t.Errorf("Etag = %q, want %q", got.Etag, want.Etag)
	}
	if !got.RemoteUpdatedAt.Equal(want.RemoteUpdatedAt) {
		t.Errorf("RemoteUpdatedAt = %v, want %v", got.RemoteUpdatedAt, want.RemoteUpdatedAt)
	}
	if !got.RemoteEndDate.Equal(want.RemoteEndDate) {
		t.Errorf("RemoteEndDate = %v, want %v", got.RemoteEndDate, want.RemoteEndDate)
	}
}

// TestSaveGet_SubsecondPrecision tests that fractional-second instants
// survive the round-trip. Provider timestamps carry milliseconds; losing
// them would make freshly synced pairs misclassify.
func TestSaveGet_SubsecondPrecision(t *testing.T) {
	ns := testStore(t).Namespace(DomainEvents)

	want := testRecord("a1")
	want.RemoteUpdatedAt = time.Date(2026, 3, 10, 12, 0, 0, 123456789, time.UTC)
	want.LocalUpdatedAt = time.Date(2026, 3, 10, 12, 0, 1, 500000000, time.UTC)
	want.LastSyncAt = time.Date(2026, 3, 10, 12, 0, 2, 1000, time.UTC)
	if err := ns.Save(want); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := ns.Get("a1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if !got.RemoteUpdatedAt.Equal(want.RemoteUpdatedAt) {
		t.Errorf("RemoteUpdatedAt = %v, want %v", got.RemoteUpdatedAt, want.RemoteUpdatedAt)
	}
	if !got.LocalUpdatedAt.Equal(want.LocalUpdatedAt) {
		t.Errorf("LocalUpdatedAt = %v, want %v", got.LocalUpdatedAt, want.LocalUpdatedAt)
	}
	if !got.LastSyncAt.Equal(want.LastSyncAt) {
		t.Errorf("LastSyncAt = %v, want %v", got.LastSyncAt, want.LastSyncAt)
	}
}

// TestGet_Missing tests that a missing id returns nil, not an error.
func TestGet_Missing(t *testing.T) {
	ns := testStore(t).Namespace(DomainEvents)

	got, err := ns.Get("nope")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got != nil {
		t.Errorf("Get() = %+v, want nil", got)
	}
}

// TestSave_Upsert tests that saving the same local id replaces the record
// rather than duplicating it.
func TestSave_Upsert(t *testing.T) {
	ns := testStore(t).Namespace(DomainEvents)

	rec := testRecord("a1")
	if err := ns.Save(rec); err != nil {
		t.Fatalf("First Save() failed: %v", err)
	}

	rec.Etag = `"v2"`
	rec.RemoteID = "evt-a1" // unchanged
	if err := ns.Save(rec); err != nil {
		t.Fatalf("Second Save() failed: %v", err)
	}

	got, err := ns.Get("a1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Etag != `"v2"` {
		t.Errorf("Etag = %q, want %q", got.Etag, `"v2"`)
	}

	all, err := ns.List()
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("List() returned %d records, want 1", len(all))
	}
}

// TestNamespaces_Isolated tests that domains do not see each other's
// records even for the same local id.
func TestNamespaces_Isolated(t *testing.T) {
	s := testStore(t)
	events := s.Namespace(DomainEvents)
	tasks := s.Namespace(DomainTasks)

	if err := events.Save(testRecord("a1")); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := tasks.Get("a1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got != nil {
		t.Error("tasks namespace sees a record saved in the events namespace")
	}

	taskRec := testRecord("a1")
	taskRec.RemoteID = "task-a1"
	taskRec.OpenTask = true
	if err := tasks.Save(taskRec); err != nil {
		t.Fatalf("Save() in tasks namespace failed: %v", err)
	}

	eventsGot, err := events.Get("a1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if eventsGot.RemoteID != "evt-a1" {
		t.Errorf("events record overwritten across namespaces: RemoteID = %q", eventsGot.RemoteID)
	}
}

// TestFindByRemoteID tests the reverse lookup.
func TestFindByRemoteID(t *testing.T) {
	ns := testStore(t).Namespace(DomainEvents)

	if err := ns.Save(testRecord("a1")); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := ns.FindByRemoteID("evt-a1")
	if err != nil {
		t.Fatalf("FindByRemoteID() failed: %v", err)
	}
	if got == nil || got.LocalID != "a1" {
		t.Errorf("FindByRemoteID() = %+v, want local id a1", got)
	}

	missing, err := ns.FindByRemoteID("evt-nope")
	if err != nil {
		t.Fatalf("FindByRemoteID() failed: %v", err)
	}
	if missing != nil {
		t.Errorf("FindByRemoteID() = %+v for unknown remote id, want nil", missing)
	}
}

// TestUpdate_Patch tests partial updates through Patch.
func TestUpdate_Patch(t *testing.T) {
	ns := testStore(t).Namespace(DomainEvents)

	if err := ns.Save(testRecord("a1")); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	etag := `"v9"`
	at := time.Date(2026, 3, 12, 8, 0, 0, 0, time.UTC)
	err := ns.Update("a1", Patch{Etag: &etag, LastSyncAt: &at})
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	got, err := ns.Get("a1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Etag != etag {
		t.Errorf("Etag = %q, want %q", got.Etag, etag)
	}
	if !got.LastSyncAt.Equal(at) {
		t.Errorf("LastSyncAt = %v, want %v", got.LastSyncAt, at)
	}
	if got.RemoteID != "evt-a1" {
		t.Errorf("RemoteID changed by unrelated patch: %q", got.RemoteID)
	}
}

// TestDelete tests removal.
func TestDelete(t *testing.T) {
	ns := testStore(t).Namespace(DomainEvents)

	if err := ns.Save(testRecord("a1")); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if err := ns.Delete("a1"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	got, err := ns.Get("a1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got != nil {
		t.Error("record still present after Delete()")
	}
}

// TestCleanupOlderThan tests age-based cleanup with open-task retention.
func TestCleanupOlderThan(t *testing.T) {
	ns := testStore(t).Namespace(DomainTasks)

	old := testRecord("old")
	old.RemoteEndDate = time.Now().AddDate(0, 0, -60)
	if err := ns.Save(old); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	openOld := testRecord("open-old")
	openOld.RemoteID = "evt-open-old"
	openOld.RemoteEndDate = time.Now().AddDate(0, 0, -60)
	openOld.OpenTask = true
	if err := ns.Save(openOld); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	recent := testRecord("recent")
	recent.RemoteID = "evt-recent"
	recent.RemoteEndDate = time.Now().AddDate(0, 0, -5)
	if err := ns.Save(recent); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	removed, retained, err := ns.CleanupOlderThan(30)
	if err != nil {
		t.Fatalf("CleanupOlderThan() failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if retained != 1 {
		t.Errorf("retained = %d, want 1", retained)
	}

	if got, _ := ns.Get("old"); got != nil {
		t.Error("aged-out record survived cleanup")
	}
	if got, _ := ns.Get("open-old"); got == nil {
		t.Error("open task was removed by age-based cleanup")
	}
	if got, _ := ns.Get("recent"); got == nil {
		t.Error("recent record was removed")
	}
}

// TestCleanupAll tests that full cleanup removes open tasks too.
func TestCleanupAll(t *testing.T) {
	ns := testStore(t).Namespace(DomainTasks)

	openOld := testRecord("open-old")
	openOld.RemoteEndDate = time.Now().AddDate(0, 0, -60)
	openOld.OpenTask = true
	if err := ns.Save(openOld); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	removed, err := ns.CleanupAll()
	if err != nil {
		t.Fatalf("CleanupAll() failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
}

// TestStats tests record and open-task counting.
func TestStats(t *testing.T) {
	ns := testStore(t).Namespace(DomainTasks)

	a := testRecord("a")
	a.OpenTask = true
	b := testRecord("b")
	b.RemoteID = "evt-b"
	for _, rec := range []*SyncRecord{a, b} {
		if err := ns.Save(rec); err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
	}

	stats, err := ns.Stats()
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	if stats.Count != 2 {
		t.Errorf("Count = %d, want 2", stats.Count)
	}
	if stats.OpenCount != 1 {
		t.Errorf("OpenCount = %d, want 1", stats.OpenCount)
	}
}

// TestDedupCooldown_Persistence tests that the dedup run instant survives
// a store reopen.
func TestDedupCooldown_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := s.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if err := s.SetLastDedupRun(ctx, "primary", at); err != nil {
		t.Fatalf("SetLastDedupRun() failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer s.Close()

	got, err := s.LastDedupRun(ctx, "primary")
	if err != nil {
		t.Fatalf("LastDedupRun() failed: %v", err)
	}
	if !got.Equal(at) {
		t.Errorf("LastDedupRun() = %v, want %v", got, at)
	}

	other, err := s.LastDedupRun(ctx, "other-calendar")
	if err != nil {
		t.Fatalf("LastDedupRun() failed: %v", err)
	}
	if !other.IsZero() {
		t.Errorf("LastDedupRun() for unknown calendar = %v, want zero", other)
	}
}

// TestValidate tests SyncRecord field validation.
func TestValidate(t *testing.T) {
	rec := testRecord("a1")
	if err := rec.Validate(); err != nil {
		t.Errorf("Validate() failed for complete record: %v", err)
	}

	missing := testRecord("a1")
	missing.RemoteID = ""
	if err := missing.Validate(); err == nil {
		t.Error("Validate() accepted a record without remote id")
	}

	noLocal := testRecord("")
	if err := noLocal.Validate(); err == nil {
		t.Error("Validate() accepted a record without local id")
	}
}
