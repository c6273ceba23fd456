// Package recovery reconstructs lost sync records from back-links.
//
// Every remote record calsync creates carries a back-link in its
// description: a fixed-format locator naming the domain and local record id
// it was exported from. When the metadata store forgets a link (storage
// loss, a wiped cache), the back-link is the only remaining tie between the
// two sides. The recovery pass scans fetched remote records and rebuilds
// sync records from those locators before any auto-export runs; otherwise
// the exporter would create duplicate remote records for links it no
// longer knows about.
package recovery

import (
	"context"
	"fmt"
	"log"
	"os"
	"regexp"
	"time"

	"github.com/fbgallet/calsync/internal/metadata"
	"github.com/fbgallet/calsync/internal/remote"
)

// backLinkPattern matches the locator embedded in remote descriptions:
// calsync://<domain>/<localId>
var backLinkPattern = regexp.MustCompile(`calsync://([a-z]+)/([a-zA-Z0-9_-]+)`)

// FormatBackLink renders the locator for embedding in a remote description.
func FormatBackLink(domain, localID string) string {
	return fmt.Sprintf("calsync://%s/%s", domain, localID)
}

// ExtractBackLink parses the first back-link out of a description. It
// returns ok=false when the description carries none.
func ExtractBackLink(description string) (domain, localID string, ok bool) {
	m := backLinkPattern.FindStringSubmatch(description)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// LocalStore is the slice of the local store the recovery pass needs.
type LocalStore interface {
	RecordExists(id string) bool
}

// Report summarizes one recovery pass.
type Report struct {
	// Scanned is how many remote records were examined.
	Scanned int

	// Recovered is how many sync records were rebuilt.
	Recovered int

	// Failed counts back-links whose local record no longer exists
	// (unrecoverable) plus store errors.
	Failed int

	// Skipped counts records with no back-link, a foreign-domain
	// back-link, or an already-present sync record.
	Skipped int
}

// Engine rebuilds sync records for one metadata namespace.
type Engine struct {
	meta   *metadata.Namespace
	local  LocalStore
	logger *log.Logger
	now    func() time.Time
}

// New creates a recovery engine. If logger is nil, a default logger
// writing to stderr is used.
func New(meta *metadata.Namespace, local LocalStore, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[recovery] ", log.LstdFlags)
	}
	return &Engine{
		meta:   meta,
		local:  local,
		logger: logger,
		now:    time.Now,
	}
}

// Recover scans remote records and rebuilds missing sync records from their
// back-links. Individual failures are counted, not fatal to the pass.
func (e *Engine) Recover(ctx context.Context, calendarID string, snaps []*remote.Snapshot) (*Report, error) {
	report := &Report{}

	for _, snap := range snaps {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++

		domain, localID, ok := ExtractBackLink(snap.Description)
		if !ok || domain != e.meta.Domain() {
			report.Skipped++
			continue
		}

		existing, err := e.meta.FindByRemoteIDContext(ctx, snap.ID)
		if err != nil {
			e.logger.Printf("Warning: failed to look up remote id %s: %v", snap.ID, err)
			report.Failed++
			continue
		}
		if existing != nil {
			// Already linked; nothing lost.
			report.Skipped++
			continue
		}

		if !e.local.RecordExists(localID) {
			e.logger.Printf("Unrecoverable back-link: local record %s is gone (remote %s)", localID, snap.ID)
			report.Failed++
			continue
		}

		now := e.now()
		rec := &metadata.SyncRecord{
			LocalID:         localID,
			RemoteID:        snap.ID,
			CalendarID:      calendarID,
			Etag:            snap.Etag,
			RemoteUpdatedAt: snap.Updated,
			// Best-effort timestamps: the true local modification
			// instant is unknown after a metadata loss, so both
			// sides are marked as reconciled now.
			LocalUpdatedAt: now,
			LastSyncAt:     now,
			RemoteEndDate:  snap.End,
			OpenTask:       snap.Kind == remote.KindTask && snap.Status == remote.StatusOpen,
		}
		if err := e.meta.SaveContext(ctx, rec); err != nil {
			e.logger.Printf("Warning: failed to save recovered sync record %s: %v", localID, err)
			report.Failed++
			continue
		}

		e.logger.Printf("Recovered link: %s <-> %s", localID, snap.ID)
		report.Recovered++
	}

	return report, nil
}
