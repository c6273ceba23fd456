package dedup

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/fbgallet/calsync/internal/metadata"
	"github.com/fbgallet/calsync/internal/remote"
)

// fakeAPI records deletions and can fail selected ids.
type fakeAPI struct {
	deleted []string
	failIDs map[string]bool
}

func (f *fakeAPI) ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time, opts remote.ListOptions) ([]*remote.Snapshot, error) {
	return nil, nil
}

func (f *fakeAPI) CreateEvent(ctx context.Context, calendarID string, p *remote.Payload) (*remote.CreateResult, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeAPI) UpdateEvent(ctx context.Context, calendarID, id string, p *remote.Payload) (*remote.UpdateResult, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeAPI) DeleteEvent(ctx context.Context, calendarID, id string) error {
	if f.failIDs[id] {
		return fmt.Errorf("delete %s: simulated failure", id)
	}
	f.deleted = append(f.deleted, id)
	return nil
}

// testEngine builds an engine over a real metadata store and a fake API.
func testEngine(t *testing.T) (*Engine, *fakeAPI, *metadata.Store) {
	t.Helper()

	meta, err := metadata.Open(filepath.Join(t.TempDir(), "metadata.db"))
	if err != nil {
		t.Fatalf("metadata.Open() failed: %v", err)
	}
	t.Cleanup(func() { meta.Close() })
	if err := meta.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	api := &fakeAPI{failIDs: make(map[string]bool)}
	engine := New(api, meta.Namespace(metadata.DomainEvents), meta, nil)
	return engine, api, meta
}

func snap(id, summary string, start time.Time) *remote.Snapshot {
	return &remote.Snapshot{
		ID:      id,
		Kind:    remote.KindEvent,
		Summary: summary,
		Start:   start,
		Status:  remote.StatusConfirmed,
		Created: start.Add(-time.Hour),
		Updated: start.Add(-time.Hour),
	}
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Standup", "standup"},
		{"  Standup  ", "standup"},
		{"STANDUP", "standup"},
		{"{{[[TODO]]}} Buy milk", "buy milk"},
		{"{{TODO}} Buy milk", "buy milk"},
		{"{{[[DONE]]}} Buy milk", "buy milk"},
		{"[ ] Buy milk", "buy milk"},
		{"[x] Buy milk", "buy milk"},
		{"[[Project Alpha]] review", "project alpha review"},
		{"[notes](https://example.com) review", "notes review"},
		{"((abc123def456)) follow-up", "follow-up"},
		{"** Important: meeting", "important: meeting"},
		{"Weekly   sync\treview", "weekly sync review"},
		{"", ""},
		{"((abc123))", ""},
	}

	for _, tt := range tests {
		if got := NormalizeTitle(tt.in); got != tt.want {
			t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsDuplicate(t *testing.T) {
	e, _, _ := testEngine(t)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)

	a := snap("a", "Standup", start)
	b := snap("b", "standup", start)

	if !e.IsDuplicate(a, b) {
		t.Error("IsDuplicate() = false for same title and start")
	}

	// Never a duplicate of itself.
	if e.IsDuplicate(a, a) {
		t.Error("IsDuplicate(a, a) = true")
	}

	// Different start minute.
	c := snap("c", "Standup", start.Add(time.Minute))
	if e.IsDuplicate(a, c) {
		t.Error("IsDuplicate() = true for different start minutes")
	}

	// Same wall-clock time in a different zone representation.
	zone := time.FixedZone("X", 3600)
	d := snap("d", "Standup", time.Date(2026, 3, 10, 9, 0, 0, 0, zone))
	if !e.IsDuplicate(a, d) {
		t.Error("IsDuplicate() = false for same wall-clock in another zone")
	}

	// Suppression marker blocks matching in either direction.
	kept := snap("k", "Standup", start)
	kept.Description = "backup copy " + SuppressMarker
	if e.IsDuplicate(a, kept) || e.IsDuplicate(kept, a) {
		t.Error("IsDuplicate() = true despite suppression marker")
	}

	// Empty normalized titles never match.
	e1, e2 := snap("e1", "((ref))", start), snap("e2", "((ref))", start)
	if e.IsDuplicate(e1, e2) {
		t.Error("IsDuplicate() = true for empty normalized titles")
	}

	// Mismatched end minutes disqualify; a missing end on one side does not.
	f1, f2 := snap("f1", "Standup", start), snap("f2", "Standup", start)
	f1.End = start.Add(30 * time.Minute)
	f2.End = start.Add(45 * time.Minute)
	if e.IsDuplicate(f1, f2) {
		t.Error("IsDuplicate() = true for different end minutes")
	}
	f2.End = time.Time{}
	if !e.IsDuplicate(f1, f2) {
		t.Error("IsDuplicate() = false when only one side has an end")
	}
}

// TestDeduplicateAll_RemovesAllButOne tests the k-1 removal property.
func TestDeduplicateAll_RemovesAllButOne(t *testing.T) {
	e, api, _ := testEngine(t)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)

	snaps := []*remote.Snapshot{
		snap("a", "Standup", start),
		snap("b", "Standup", start),
		snap("c", "standup", start),
		snap("other", "Retro", start),
	}

	report, err := e.DeduplicateAll(context.Background(), "primary", snaps, true)
	if err != nil {
		t.Fatalf("DeduplicateAll() failed: %v", err)
	}

	if report.Scanned != 4 {
		t.Errorf("Scanned = %d, want 4", report.Scanned)
	}
	if report.Groups != 1 {
		t.Errorf("Groups = %d, want 1", report.Groups)
	}
	if report.Removed != 2 {
		t.Errorf("Removed = %d, want 2", report.Removed)
	}
	if len(api.deleted) != 2 {
		t.Errorf("deleted %d records remotely, want 2", len(api.deleted))
	}
	for _, id := range api.deleted {
		if id == "other" {
			t.Error("unrelated record was deleted")
		}
	}
}

// TestDeduplicateAll_LinkedMemberWins tests keeper preference for the
// linked member even when it is not the oldest.
func TestDeduplicateAll_LinkedMemberWins(t *testing.T) {
	e, api, meta := testEngine(t)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)

	older := snap("older", "Standup", start)
	older.Created = start.Add(-48 * time.Hour)
	linked := snap("linked", "Standup", start)

	ns := meta.Namespace(metadata.DomainEvents)
	err := ns.Save(&metadata.SyncRecord{
		LocalID:         "loc-1",
		RemoteID:        "linked",
		CalendarID:      "primary",
		RemoteUpdatedAt: start,
		LocalUpdatedAt:  start,
		LastSyncAt:      start,
	})
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	report, err := e.DeduplicateAll(context.Background(), "primary",
		[]*remote.Snapshot{older, linked}, true)
	if err != nil {
		t.Fatalf("DeduplicateAll() failed: %v", err)
	}

	if report.Removed != 1 {
		t.Fatalf("Removed = %d, want 1", report.Removed)
	}
	if api.deleted[0] != "older" {
		t.Errorf("deleted %q, want the unlinked member %q", api.deleted[0], "older")
	}
}

// TestDeduplicateAll_BackLinkCountsAsLinked tests that an embedded
// back-link protects a member like a metadata entry does.
func TestDeduplicateAll_BackLinkCountsAsLinked(t *testing.T) {
	e, api, _ := testEngine(t)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)

	plain := snap("plain", "Standup", start)
	plain.Created = start.Add(-48 * time.Hour)
	backLinked := snap("back-linked", "Standup", start)
	backLinked.Description = "calsync://events/loc-9"

	_, err := e.DeduplicateAll(context.Background(), "primary",
		[]*remote.Snapshot{plain, backLinked}, true)
	if err != nil {
		t.Fatalf("DeduplicateAll() failed: %v", err)
	}

	if len(api.deleted) != 1 || api.deleted[0] != "plain" {
		t.Errorf("deleted = %v, want [plain]", api.deleted)
	}
}

// TestDeduplicateAll_Idempotent tests that re-running on the surviving set
// removes nothing further.
func TestDeduplicateAll_Idempotent(t *testing.T) {
	e, api, _ := testEngine(t)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)

	snaps := []*remote.Snapshot{
		snap("a", "Standup", start),
		snap("b", "Standup", start),
	}

	first, err := e.DeduplicateAll(context.Background(), "primary", snaps, true)
	if err != nil {
		t.Fatalf("First DeduplicateAll() failed: %v", err)
	}
	if first.Removed != 1 {
		t.Fatalf("first Removed = %d, want 1", first.Removed)
	}

	// Survivors: everything not deleted.
	deleted := map[string]bool{}
	for _, id := range api.deleted {
		deleted[id] = true
	}
	var survivors []*remote.Snapshot
	for _, s := range snaps {
		if !deleted[s.ID] {
			survivors = append(survivors, s)
		}
	}

	second, err := e.DeduplicateAll(context.Background(), "primary", survivors, true)
	if err != nil {
		t.Fatalf("Second DeduplicateAll() failed: %v", err)
	}
	if second.Removed != 0 {
		t.Errorf("second Removed = %d, want 0", second.Removed)
	}
}

// TestDeduplicateAll_Cooldown tests automatic-pass throttling and manual
// bypass.
func TestDeduplicateAll_Cooldown(t *testing.T) {
	e, _, _ := testEngine(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	now := base
	e.SetNowFunc(func() time.Time { return now })

	first, err := e.DeduplicateAll(ctx, "primary", nil, false)
	if err != nil {
		t.Fatalf("First pass failed: %v", err)
	}
	if first.Throttled {
		t.Error("first automatic pass was throttled")
	}

	// Within the cooldown: throttled.
	now = base.Add(Cooldown - time.Minute)
	second, err := e.DeduplicateAll(ctx, "primary", nil, false)
	if err != nil {
		t.Fatalf("Second pass failed: %v", err)
	}
	if !second.Throttled {
		t.Error("automatic pass within cooldown was not throttled")
	}

	// Manual invocation bypasses the cooldown.
	forced, err := e.DeduplicateAll(ctx, "primary", nil, true)
	if err != nil {
		t.Fatalf("Forced pass failed: %v", err)
	}
	if forced.Throttled {
		t.Error("forced pass was throttled")
	}

	// The forced pass must not reset the automatic clock: one cooldown
	// after the FIRST automatic pass, the next automatic pass runs even
	// though the forced one happened in between.
	now = base.Add(Cooldown + time.Minute)
	third, err := e.DeduplicateAll(ctx, "primary", nil, false)
	if err != nil {
		t.Fatalf("Third pass failed: %v", err)
	}
	if third.Throttled {
		t.Error("forced pass delayed the next automatic pass")
	}
}

// TestDeduplicateAll_FailuresCounted tests that a failed deletion is
// counted, not fatal.
func TestDeduplicateAll_FailuresCounted(t *testing.T) {
	e, api, _ := testEngine(t)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)

	a := snap("a", "Standup", start)
	b := snap("b", "Standup", start)
	c := snap("c", "Standup", start)
	// The keeper is the oldest member (a); one of the two removals fails.
	a.Created = start.Add(-72 * time.Hour)
	api.failIDs["b"] = true

	report, err := e.DeduplicateAll(context.Background(), "primary",
		[]*remote.Snapshot{a, b, c}, true)
	if err != nil {
		t.Fatalf("DeduplicateAll() failed: %v", err)
	}

	if report.Failed != 1 {
		t.Errorf("Failed = %d, want 1", report.Failed)
	}
	if report.Removed != 1 {
		t.Errorf("Removed = %d, want 1", report.Removed)
	}
}

// TestDeduplicateAll_CancelledIgnored tests that cancelled records never
// join a duplicate group.
func TestDeduplicateAll_CancelledIgnored(t *testing.T) {
	e, api, _ := testEngine(t)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)

	live := snap("live", "Standup", start)
	gone := snap("gone", "Standup", start)
	gone.Status = remote.StatusCancelled

	report, err := e.DeduplicateAll(context.Background(), "primary",
		[]*remote.Snapshot{live, gone}, true)
	if err != nil {
		t.Fatalf("DeduplicateAll() failed: %v", err)
	}
	if report.Groups != 0 || len(api.deleted) != 0 {
		t.Errorf("cancelled record joined a group: groups=%d deleted=%v",
			report.Groups, api.deleted)
	}
}
