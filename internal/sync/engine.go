package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fbgallet/calsync/internal/config"
	"github.com/fbgallet/calsync/internal/lock"
	"github.com/fbgallet/calsync/internal/metadata"
	"github.com/fbgallet/calsync/internal/recovery"
	"github.com/fbgallet/calsync/internal/remote"
	"github.com/fbgallet/calsync/internal/status"
)

// Options tunes an Engine.
type Options struct {
	// PastDays and FutureDays bound the listing window around now.
	PastDays   int
	FutureDays int

	// Logger for engine activity. Nil means a default stderr logger.
	Logger *log.Logger
}

// Engine drives synchronization between the local store and one remote
// service for a single domain (events or tasks).
//
// Each import/export/update action is individually lock-guarded per local
// record id, so unrelated records may sync concurrently while two triggers
// cannot duplicate work on the same record. No lock spans a whole cycle.
type Engine struct {
	local    LocalStore
	api      remote.API
	meta     *metadata.Namespace
	locks    *lock.Manager
	recovery *recovery.Engine

	pastDays   int
	futureDays int
	logger     *log.Logger
	now        func() time.Time
}

// New creates an Engine.
//
// The recovery engine must share the same metadata namespace. If opts is
// nil, defaults apply (30 days back, 90 days forward).
func New(local LocalStore, api remote.API, meta *metadata.Namespace, locks *lock.Manager, rec *recovery.Engine, opts *Options) *Engine {
	if opts == nil {
		opts = &Options{}
	}
	if opts.PastDays <= 0 {
		opts.PastDays = config.DefaultPastDays
	}
	if opts.FutureDays <= 0 {
		opts.FutureDays = config.DefaultFutureDays
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Engine{
		local:      local,
		api:        api,
		meta:       meta,
		locks:      locks,
		recovery:   rec,
		pastDays:   opts.PastDays,
		futureDays: opts.FutureDays,
		logger:     logger,
		now:        time.Now,
	}
}

// IncrementalSync reconciles one calendar against the local store.
//
// Remote records updated since the calendar's sync cursor are fetched
// within the engine's window, the recovery pre-pass repairs lost links,
// and each record is classified and acted on in listing order. The cursor
// is advanced to now on completion, partial completion included: actions
// already committed stand even when the cycle is abandoned.
//
// An authentication failure aborts the cycle immediately. Any other
// per-record failure is recorded in the result and the cycle continues.
func (e *Engine) IncrementalSync(ctx context.Context, cal *config.CalendarConfig) (*Result, error) {
	start := e.now()
	result := &Result{Calendar: cal.ID}
	defer func() {
		result.Duration = e.now().Sub(start)
	}()

	timeMin := start.AddDate(0, 0, -e.pastDays)
	timeMax := start.AddDate(0, 0, e.futureDays)

	snaps, err := e.api.ListEvents(ctx, cal.ID, timeMin, timeMax, remote.ListOptions{
		UpdatedMin:  cal.LastSyncTime(),
		ShowDeleted: true,
	})
	if err != nil {
		// A failed listing completes nothing; the cursor must stay put so
		// the missed span is re-fetched next cycle.
		return result, fmt.Errorf("failed to list remote records: %w", err)
	}

	// The listing succeeded, so every record in the window up to this
	// instant has been seen. From here the cursor advances even when the
	// cycle is abandoned partway: committed actions stand, and anything
	// unprocessed surfaces again through its own next modification.
	defer func() {
		cal.LastSync = start.Format(time.RFC3339)
	}()

	// Repair lost links before anything else; otherwise a later export
	// pass would create duplicate remote records for forgotten links.
	report, err := e.recovery.Recover(ctx, cal.ID, snaps)
	result.Recovery = report
	if err != nil {
		return result, err
	}

	for _, snap := range snaps {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := e.syncOne(ctx, cal, snap, result); err != nil {
			if remote.IsAuth(err) {
				return result, err
			}
			if errors.Is(err, ErrLockContention) {
				result.Skipped++
				continue
			}
			e.logger.Printf("Warning: failed to sync remote record %s: %v", snap.ID, err)
			result.Errors = append(result.Errors, err)
		}
	}

	e.logger.Printf("Incremental sync complete for %s: imported=%d updated=%d deleted=%d conflicts=%d skipped=%d errors=%d",
		cal.ID, result.Imported, result.Updated, result.Deleted,
		len(result.Conflicts), result.Skipped, len(result.Errors))
	return result, nil
}

// syncOne classifies and applies the action for a single remote record.
func (e *Engine) syncOne(ctx context.Context, cal *config.CalendarConfig, snap *remote.Snapshot, result *Result) error {
	rec, err := e.meta.FindByRemoteIDContext(ctx, snap.ID)
	if err != nil {
		return err
	}

	if snap.Cancelled() {
		if rec == nil {
			result.Skipped++
			return nil
		}
		if err := e.applyRemoteDelete(ctx, rec); err != nil {
			return err
		}
		result.Deleted++
		return nil
	}

	if rec == nil {
		if _, err := e.applyImport(ctx, cal, snap); err != nil {
			return err
		}
		result.Imported++
		return nil
	}

	// Refresh the local modification instant from the store so the
	// classifier sees the current local state, not the stored copy.
	if localRec, err := e.local.Get(rec.LocalID); err == nil {
		rec.LocalUpdatedAt = localRec.UpdatedAt
	}

	switch status.Classify(rec, snap) {
	case status.StateConflict:
		result.Conflicts = append(result.Conflicts, &ConflictCandidate{
			CalendarID: cal.ID,
			Record:     rec,
			Snapshot:   snap,
		})
	case status.StatePendingPull:
		if err := e.applyRemoteToLocalUpdate(ctx, cal, rec.LocalID, snap); err != nil {
			return err
		}
		result.Updated++
	case status.StatePendingPush:
		if err := e.applyLocalToRemoteUpdate(ctx, cal, rec.LocalID, false); err != nil {
			return err
		}
		result.Updated++
	default:
		result.Skipped++
	}
	return nil
}

// ListWindow fetches the calendar's full remote record set within the
// engine's window, ignoring the sync cursor. The deduplication pass runs
// over this listing.
func (e *Engine) ListWindow(ctx context.Context, calendarID string) ([]*remote.Snapshot, error) {
	now := e.now()
	return e.api.ListEvents(ctx, calendarID,
		now.AddDate(0, 0, -e.pastDays), now.AddDate(0, 0, e.futureDays),
		remote.ListOptions{})
}

// Lookup returns the sync record linking a local id in this engine's
// domain, or nil when unlinked.
func (e *Engine) Lookup(ctx context.Context, localID string) (*metadata.SyncRecord, error) {
	return e.meta.GetContext(ctx, localID)
}

// PushRecord exports a single local record to the remote calendar, creating
// the remote record if the local one is unlinked. Used by the daemon when
// the filesystem watcher sees a local edit.
func (e *Engine) PushRecord(ctx context.Context, cal *config.CalendarConfig, localID string) error {
	return e.applyLocalToRemoteUpdate(ctx, cal, localID, false)
}

// Runner drives full sync cycles across every enabled calendar.
type Runner struct {
	cfg     *config.Config
	engines map[string]*Engine // keyed by domain
	logger  *log.Logger
}

// NewRunner creates a Runner dispatching each calendar to the engine for
// its domain.
func NewRunner(cfg *config.Config, engines map[string]*Engine, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Runner{cfg: cfg, engines: engines, logger: logger}
}

// Engine returns the engine for a domain, or nil.
func (r *Runner) Engine(domain string) *Engine {
	return r.engines[domain]
}

// FullSync runs IncrementalSync over every enabled calendar sequentially.
// One calendar's failure is recorded and does not block the others.
func (r *Runner) FullSync(ctx context.Context) []CycleResult {
	var results []CycleResult

	for _, cal := range r.cfg.EnabledCalendars() {
		if err := ctx.Err(); err != nil {
			return results
		}

		engine, ok := r.engines[cal.Domain]
		if !ok {
			r.logger.Printf("Warning: no engine for domain %q, skipping calendar %s", cal.Domain, cal.ID)
			results = append(results, CycleResult{
				Calendar: cal.ID,
				Err:      fmt.Errorf("no engine for domain %q", cal.Domain),
			})
			continue
		}

		res, err := engine.IncrementalSync(ctx, cal)
		if err != nil {
			r.logger.Printf("Warning: sync failed for calendar %s: %v", cal.ID, err)
		}
		results = append(results, CycleResult{Calendar: cal.ID, Result: res, Err: err})
	}

	if err := r.cfg.Save(); err != nil {
		r.logger.Printf("Warning: failed to persist sync cursors: %v", err)
	}
	return results
}
