// Package daemon provides the long-running sync process.
//
// The daemon:
//  1. Runs a full sync cycle on a fixed interval
//  2. Watches the local store for record edits and pushes them remotely
//  3. Runs the cooldown-gated deduplication pass periodically
//  4. Handles graceful shutdown
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fbgallet/calsync/internal/config"
	"github.com/fbgallet/calsync/internal/dashboard"
	"github.com/fbgallet/calsync/internal/dedup"
	"github.com/fbgallet/calsync/internal/metadata"
	"github.com/fbgallet/calsync/internal/store"
	syncer "github.com/fbgallet/calsync/internal/sync"
)

// Options holds daemon tuning knobs.
type Options struct {
	// SyncInterval is the full sync cycle period. Zero means the
	// configured default.
	SyncInterval time.Duration

	// DedupInterval is how often the deduplication pass is attempted.
	// The pass itself is still gated by the 24h cooldown.
	DedupInterval time.Duration

	// DebounceInterval is how long a file change must sit in the queue
	// before it is pushed, batching rapid editor saves together.
	DebounceInterval time.Duration

	// Logger for daemon activity.
	Logger *log.Logger

	// Dashboard, when non-nil, receives sync and dedup events.
	Dashboard *dashboard.Handler
}

// Daemon orchestrates interval syncing and local-edit pushing.
type Daemon struct {
	cfg    *config.Config
	runner *syncer.Runner
	dedups map[string]*dedup.Engine // keyed by domain
	opts   *Options
	logger *log.Logger

	watcher       *fsnotify.Watcher
	changeQueue   map[string]pendingChange // local record id -> change
	changeQueueMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon.
//
// dedups maps each domain to its deduplication engine; domains without an
// entry skip the automatic dedup pass.
func New(cfg *config.Config, runner *syncer.Runner, dedups map[string]*dedup.Engine, opts *Options) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if opts == nil {
		opts = &Options{}
	}
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = cfg.SyncInterval
	}
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = config.DefaultSyncInterval
	}
	if opts.DedupInterval <= 0 {
		opts.DedupInterval = time.Hour
	}
	if opts.DebounceInterval <= 0 {
		opts.DebounceInterval = 2 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		cfg:         cfg,
		runner:      runner,
		dedups:      dedups,
		opts:        opts,
		logger:      logger,
		watcher:     watcher,
		changeQueue: make(map[string]pendingChange),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// An initial full sync runs immediately, then the interval loop, the
// filesystem watcher, and the dedup loop run until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.logger.Printf("Starting daemon (sync every %s)", d.opts.SyncInterval)

	d.runFullSync(ctx)

	if err := d.watchStoreRoot(); err != nil {
		return err
	}

	d.wg.Add(4)
	go d.syncLoop()
	go d.watchFileEvents()
	go d.processChangeQueue()
	go d.dedupLoop()

	select {
	case <-ctx.Done():
		d.logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.logger.Println("Stopping daemon")
	d.cancel()

	if err := d.watcher.Close(); err != nil {
		d.logger.Printf("Error closing watcher: %v", err)
	}
	d.wg.Wait()

	d.logger.Println("Daemon stopped")
	return nil
}

// watchStoreRoot watches the store root and every existing partition
// directory. New partition directories are added from the event loop.
func (d *Daemon) watchStoreRoot() error {
	root := d.cfg.StoreRoot
	if err := d.watcher.Add(root); err != nil {
		return fmt.Errorf("failed to watch store root %s: %w", root, err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("failed to read store root %s: %w", root, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := time.Parse(store.PartitionLayout, entry.Name()); err != nil {
			continue
		}
		if err := d.watcher.Add(filepath.Join(root, entry.Name())); err != nil {
			d.logger.Printf("Warning: failed to watch partition %s: %v", entry.Name(), err)
		}
	}

	d.logger.Printf("Watching local store: %s", root)
	return nil
}

// syncLoop runs a full sync cycle on the configured interval.
func (d *Daemon) syncLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.opts.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.runFullSync(d.ctx)
		}
	}
}

func (d *Daemon) runFullSync(ctx context.Context) {
	for _, cycle := range d.runner.FullSync(ctx) {
		if cycle.Err != nil {
			continue
		}
		d.opts.Dashboard.OnSyncComplete(cycle.Result)
	}
}

// watchFileEvents monitors filesystem events and queues record changes.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			d.handleEvent(event)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.logger.Printf("Watcher error: %v", err)
		}
	}
}

func (d *Daemon) handleEvent(event fsnotify.Event) {
	// A new partition directory needs its own watch.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if _, err := time.Parse(store.PartitionLayout, filepath.Base(event.Name)); err == nil {
				if err := d.watcher.Add(event.Name); err != nil {
					d.logger.Printf("Warning: failed to watch new partition %s: %v", event.Name, err)
				}
			}
			return
		}
	}

	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove) == 0 {
		return
	}
	if filepath.Ext(event.Name) != ".json" {
		return
	}

	id, path := resolveChange(event.Name)
	d.changeQueueMu.Lock()
	d.changeQueue[id] = pendingChange{path: path, queuedAt: time.Now()}
	d.changeQueueMu.Unlock()
}

// pendingChange is one debounced record edit awaiting a push.
type pendingChange struct {
	path     string
	queuedAt time.Time
}

// resolveChange maps a changed record file to the record that should be
// pushed and that record's own file. Child marker records push their
// parent, which lives in the same partition directory.
func resolveChange(path string) (id, recordPath string) {
	id = strings.TrimSuffix(filepath.Base(path), ".json")

	data, err := os.ReadFile(path)
	if err != nil {
		// Deleted file; push the id itself so a stale link gets purged.
		return id, path
	}
	var rec store.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return id, path
	}
	if rec.ParentID != "" {
		return rec.ParentID, filepath.Join(filepath.Dir(path), rec.ParentID+".json")
	}
	return id, path
}

// processChangeQueue pushes debounced record changes.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.opts.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.flushChanges()
		}
	}
}

func (d *Daemon) flushChanges() {
	d.changeQueueMu.Lock()
	now := time.Now()
	ready := make(map[string]pendingChange)
	for id, change := range d.changeQueue {
		if now.Sub(change.queuedAt) < d.opts.DebounceInterval {
			continue
		}
		ready[id] = change
		delete(d.changeQueue, id)
	}
	d.changeQueueMu.Unlock()

	for id, change := range ready {
		if err := d.pushChange(d.ctx, id, change.path); err != nil {
			d.logger.Printf("Warning: failed to push local change %s: %v", id, err)
		}
	}
}

// pushChange exports one changed local record. Linked records push to
// their own calendar; unlinked records export to the first enabled
// calendar of their domain, which creates the remote record. A record
// linked to a disabled calendar is left alone until that calendar is
// re-enabled.
func (d *Daemon) pushChange(ctx context.Context, localID, path string) error {
	for _, domain := range []string{metadata.DomainEvents, metadata.DomainTasks} {
		engine := d.runner.Engine(domain)
		if engine == nil {
			continue
		}
		rec, err := engine.Lookup(ctx, localID)
		if err != nil {
			return err
		}
		if rec == nil {
			continue
		}
		cal := d.cfg.Calendar(rec.CalendarID)
		if cal == nil || !cal.Enabled {
			d.logger.Printf("Skipping %s: linked calendar %s is not enabled", localID, rec.CalendarID)
			return nil
		}
		d.logger.Printf("Pushing local change: %s -> %s", localID, cal.ID)
		return engine.PushRecord(ctx, cal, localID)
	}

	// Unlinked: export as a new remote record on the first enabled
	// calendar of the record's domain. Task-marker content goes to the
	// tasks domain, everything else to events.
	domain, ok := recordDomain(path)
	if !ok {
		// The record is already gone and had no link; nothing to push.
		return nil
	}
	engine := d.runner.Engine(domain)
	if engine == nil {
		return nil
	}
	for _, cal := range d.cfg.EnabledCalendars() {
		if cal.Domain != domain {
			continue
		}
		d.logger.Printf("Exporting new local record: %s -> %s", localID, cal.ID)
		return engine.PushRecord(ctx, cal, localID)
	}
	return nil
}

// recordDomain classifies an unlinked record's sync domain from its
// content. ok is false when the record file no longer exists.
func recordDomain(path string) (domain string, ok bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	var rec store.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", false
	}
	content := strings.TrimSpace(rec.Content)
	if strings.HasPrefix(content, "{{[[TODO]]}}") || strings.HasPrefix(content, "{{[[DONE]]}}") {
		return metadata.DomainTasks, true
	}
	return metadata.DomainEvents, true
}

// dedupLoop periodically attempts the deduplication pass. The pass is
// cooldown-gated per calendar, so most attempts are throttled no-ops.
func (d *Daemon) dedupLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.opts.DedupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.runDedup(d.ctx)
		}
	}
}

func (d *Daemon) runDedup(ctx context.Context) {
	for _, cal := range d.cfg.EnabledCalendars() {
		engine := d.runner.Engine(cal.Domain)
		deduper := d.dedups[cal.Domain]
		if engine == nil || deduper == nil {
			continue
		}

		snaps, err := engine.ListWindow(ctx, cal.ID)
		if err != nil {
			d.logger.Printf("Warning: dedup listing failed for %s: %v", cal.ID, err)
			continue
		}
		report, err := deduper.DeduplicateAll(ctx, cal.ID, snaps, false)
		if err != nil {
			d.logger.Printf("Warning: dedup failed for %s: %v", cal.ID, err)
			continue
		}
		if !report.Throttled {
			d.opts.Dashboard.OnDedupComplete(cal.ID, report)
		}
	}
}
