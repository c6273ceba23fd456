// Package dedup detects and removes duplicate remote records.
//
// Duplicates appear when an export runs twice for the same local record —
// a lost metadata store, a crashed cycle, two devices exporting the same
// note. Two remote records are duplicates when their titles match after
// normalization and their start (and, when both carry one, end) times match
// at minute granularity on wall-clock components. Wall-clock comparison
// tolerates the different timezone representations the two sides produce
// for the same moment.
//
// The bulk pass keeps exactly one member per duplicate group — preferring
// the member already linked to a local record — and schedules the rest for
// remote deletion. It is an independent maintenance operation: it holds no
// per-record lock and automatic invocations are gated by a 24h cooldown.
package dedup

import (
	"context"
	"fmt"
	"log"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/fbgallet/calsync/internal/metadata"
	"github.com/fbgallet/calsync/internal/recovery"
	"github.com/fbgallet/calsync/internal/remote"
)

// Cooldown is the minimum interval between automatic bulk passes for one
// calendar. Manual invocation bypasses it.
const Cooldown = 24 * time.Hour

// SuppressMarker, when present in a remote record's description, excludes
// the record from duplicate detection. The conflict resolver stamps it on
// deliberate "keep both" duplicates so they are never re-merged.
const SuppressMarker = "calsync-keep"

var (
	// Status markers: {{[[TODO]]}}, {{TODO}}, and checkbox forms.
	statusPattern = regexp.MustCompile(`\{\{\[\[(?:TODO|DONE)\]\]\}\}|\{\{(?:TODO|DONE)\}\}|\[(?: |x|X)\]`)

	// Block references are dropped entirely; wiki links and markdown
	// links keep their visible text.
	blockRefPattern = regexp.MustCompile(`\(\([a-zA-Z0-9_-]+\)\)`)
	wikiLinkPattern = regexp.MustCompile(`\[\[([^\[\]]*)\]\]`)
	mdLinkPattern   = regexp.MustCompile(`\[([^\[\]]*)\]\([^()]*\)`)

	// Leading decoration: anything before the first letter or digit.
	leadingJunkPattern = regexp.MustCompile(`^[^\p{L}\p{N}]+`)

	whitespacePattern = regexp.MustCompile(`\s+`)
)

// NormalizeTitle reduces a record title to its comparable core: status
// markers and reference syntax stripped, leading decoration removed,
// lower-cased, whitespace collapsed.
func NormalizeTitle(title string) string {
	t := statusPattern.ReplaceAllString(title, " ")
	t = blockRefPattern.ReplaceAllString(t, " ")
	t = wikiLinkPattern.ReplaceAllString(t, "$1")
	t = mdLinkPattern.ReplaceAllString(t, "$1")
	t = leadingJunkPattern.ReplaceAllString(t, "")
	t = strings.ToLower(t)
	t = whitespacePattern.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// minuteKey renders a time's wall-clock components at minute granularity.
func minuteKey(t time.Time) string {
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d",
		t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute())
}

// CooldownStore persists the automatic-run timestamp across restarts.
// *metadata.Store satisfies it.
type CooldownStore interface {
	LastDedupRun(ctx context.Context, calendarID string) (time.Time, error)
	SetLastDedupRun(ctx context.Context, calendarID string, at time.Time) error
}

// Report summarizes one bulk pass.
type Report struct {
	// Throttled is true when an automatic pass was skipped because the
	// cooldown has not elapsed. No other field is meaningful then.
	Throttled bool

	// Scanned is how many remote records were examined.
	Scanned int

	// Groups is how many confirmed duplicate groups were found.
	Groups int

	// Removed is how many duplicate records were deleted remotely.
	Removed int

	// Failed is how many removals errored. Failures are counted, not
	// fatal; the next pass retries them.
	Failed int
}

// Engine finds and resolves duplicates for one metadata namespace.
type Engine struct {
	api      remote.API
	meta     *metadata.Namespace
	cooldown CooldownStore
	logger   *log.Logger
	now      func() time.Time
}

// New creates a dedup engine. If logger is nil, a default logger writing
// to stderr is used.
func New(api remote.API, meta *metadata.Namespace, cooldown CooldownStore, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[dedup] ", log.LstdFlags)
	}
	return &Engine{
		api:      api,
		meta:     meta,
		cooldown: cooldown,
		logger:   logger,
		now:      time.Now,
	}
}

// SetNowFunc overrides the clock, for cooldown tests.
func (e *Engine) SetNowFunc(now func() time.Time) { e.now = now }

// IsDuplicate reports whether two remote records describe the same thing.
//
// A record is never a duplicate of itself, and records carrying the
// suppression marker are never duplicates of anything.
func (e *Engine) IsDuplicate(a, b *remote.Snapshot) bool {
	if a == nil || b == nil || a.ID == b.ID {
		return false
	}
	if strings.Contains(a.Description, SuppressMarker) || strings.Contains(b.Description, SuppressMarker) {
		return false
	}

	titleA := NormalizeTitle(a.Summary)
	if titleA == "" || titleA != NormalizeTitle(b.Summary) {
		return false
	}
	if minuteKey(a.Start) != minuteKey(b.Start) {
		return false
	}
	if !a.End.IsZero() && !b.End.IsZero() && minuteKey(a.End) != minuteKey(b.End) {
		return false
	}
	return true
}

// DeduplicateAll runs the bulk pass over a calendar's remote record set.
//
// With force=false the pass is cooldown-gated; force=true (manual
// invocation) always runs. The pass is idempotent: re-running it on the
// surviving set removes nothing further.
func (e *Engine) DeduplicateAll(ctx context.Context, calendarID string, snaps []*remote.Snapshot, force bool) (*Report, error) {
	report := &Report{}

	if !force {
		last, err := e.cooldown.LastDedupRun(ctx, calendarID)
		if err != nil {
			return nil, fmt.Errorf("failed to check dedup cooldown: %w", err)
		}
		if !last.IsZero() && e.now().Sub(last) < Cooldown {
			report.Throttled = true
			return report, nil
		}
	}

	// Group by normalized title + start minute, then confirm within each
	// group by end minute. One linear pass over the record set.
	groups := make(map[string][]*remote.Snapshot)
	for _, snap := range snaps {
		report.Scanned++
		if snap.Cancelled() || strings.Contains(snap.Description, SuppressMarker) {
			continue
		}
		title := NormalizeTitle(snap.Summary)
		if title == "" {
			continue
		}
		key := title + "|" + minuteKey(snap.Start)
		groups[key] = append(groups[key], snap)
	}

	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		for _, confirmed := range splitByEnd(group) {
			if len(confirmed) < 2 {
				continue
			}
			report.Groups++
			e.resolveGroup(ctx, calendarID, confirmed, report)
		}
	}

	// Only automatic passes advance the cooldown clock; a manual run in
	// between must not delay the next scheduled pass.
	if !force {
		if err := e.cooldown.SetLastDedupRun(ctx, calendarID, e.now()); err != nil {
			e.logger.Printf("Warning: failed to record dedup run: %v", err)
		}
	}

	e.logger.Printf("Dedup pass complete: scanned=%d groups=%d removed=%d failed=%d",
		report.Scanned, report.Groups, report.Removed, report.Failed)
	return report, nil
}

// splitByEnd sub-groups a start-time group by end minute to confirm true
// duplicates. Records without an end time share one sub-group.
func splitByEnd(group []*remote.Snapshot) [][]*remote.Snapshot {
	byEnd := make(map[string][]*remote.Snapshot)
	for _, snap := range group {
		key := ""
		if !snap.End.IsZero() {
			key = minuteKey(snap.End)
		}
		byEnd[key] = append(byEnd[key], snap)
	}
	out := make([][]*remote.Snapshot, 0, len(byEnd))
	for _, sub := range byEnd {
		out = append(out, sub)
	}
	return out
}

// resolveGroup picks a keeper and deletes the rest.
func (e *Engine) resolveGroup(ctx context.Context, calendarID string, group []*remote.Snapshot, report *Report) {
	keeper := e.pickKeeper(ctx, group)

	for _, snap := range group {
		if snap.ID == keeper.ID {
			continue
		}
		if err := ctx.Err(); err != nil {
			return
		}
		if err := e.api.DeleteEvent(ctx, calendarID, snap.ID); err != nil {
			e.logger.Printf("Warning: failed to remove duplicate %s (%q): %v", snap.ID, snap.Summary, err)
			report.Failed++
			continue
		}
		e.logger.Printf("Removed duplicate: %s (%q), keeping %s", snap.ID, snap.Summary, keeper.ID)
		report.Removed++
	}
}

// pickKeeper selects the surviving member of a confirmed duplicate group:
// first a member linked to a local record (a reverse metadata entry or an
// embedded back-link), else the earliest-created member. Ties break on id
// so repeated passes agree.
func (e *Engine) pickKeeper(ctx context.Context, group []*remote.Snapshot) *remote.Snapshot {
	sorted := make([]*remote.Snapshot, len(group))
	copy(sorted, group)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := createdOrUpdated(sorted[i]), createdOrUpdated(sorted[j])
		if !a.Equal(b) {
			return a.Before(b)
		}
		return sorted[i].ID < sorted[j].ID
	})

	for _, snap := range sorted {
		if e.isLinked(ctx, snap) {
			return snap
		}
	}
	return sorted[0]
}

func createdOrUpdated(snap *remote.Snapshot) time.Time {
	if !snap.Created.IsZero() {
		return snap.Created
	}
	return snap.Updated
}

// isLinked reports whether a remote record is tied to a local record.
func (e *Engine) isLinked(ctx context.Context, snap *remote.Snapshot) bool {
	rec, err := e.meta.FindByRemoteIDContext(ctx, snap.ID)
	if err != nil {
		e.logger.Printf("Warning: failed to check link for %s: %v", snap.ID, err)
		return false
	}
	if rec != nil {
		return true
	}
	_, _, ok := recovery.ExtractBackLink(snap.Description)
	return ok
}
