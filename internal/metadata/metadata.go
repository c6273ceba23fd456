// Package metadata provides the durable sync-record store for calsync.
//
// Every synchronized local record has exactly one SyncRecord linking it to
// its remote counterpart. The store is an embedded SQLite database (WAL
// mode for concurrent reads) with one namespace per synchronization domain:
// calendar events and tasks keep structurally identical records in separate
// namespaces.
//
// All mutations are immediately visible to subsequent reads within the
// process (read-your-writes).
package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Domains used by calsync. Other domains are legal; these are the two the
// CLI wires up.
const (
	DomainEvents = "events"
	DomainTasks  = "tasks"
)

// SyncRecord links one local record to one remote record.
//
// Invariants: at most one SyncRecord per local id, and a given remote id is
// referenced by at most one SyncRecord (enforced by a unique index).
type SyncRecord struct {
	// LocalID is the local store record id.
	LocalID string

	// RemoteID is the provider record id.
	RemoteID string

	// CalendarID is the remote calendar (or task list) the record lives in.
	CalendarID string

	// Etag is the provider's opaque version token from the last sync.
	Etag string

	// RemoteUpdatedAt is the provider's last-modification instant as of
	// the last sync.
	RemoteUpdatedAt time.Time

	// LocalUpdatedAt is the local record's last-modification instant.
	LocalUpdatedAt time.Time

	// LastSyncAt is when the pair was last reconciled.
	LastSyncAt time.Time

	// RemoteEndDate is the record's end date, kept at day precision for
	// retention decisions.
	RemoteEndDate time.Time

	// OpenTask protects still-open tasks from age-based cleanup.
	OpenTask bool
}

// Validate checks required SyncRecord fields.
func (r *SyncRecord) Validate() error {
	if r.LocalID == "" {
		return fmt.Errorf("local id is required")
	}
	if r.RemoteID == "" {
		return fmt.Errorf("remote id is required")
	}
	if r.CalendarID == "" {
		return fmt.Errorf("calendar id is required")
	}
	return nil
}

// Patch is a partial SyncRecord update. Nil fields are left unchanged.
type Patch struct {
	RemoteID        *string
	CalendarID      *string
	Etag            *string
	RemoteUpdatedAt *time.Time
	LocalUpdatedAt  *time.Time
	LastSyncAt      *time.Time
	RemoteEndDate   *time.Time
	OpenTask        *bool
}

// Stats summarizes one namespace.
type Stats struct {
	// Count is the number of sync records.
	Count int

	// OpenCount is the number of records flagged as open tasks.
	OpenCount int

	// SizeBytes is the approximate on-disk size of the whole database.
	SizeBytes int64
}

// Store wraps the SQLite connection holding all namespaces.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates a store at the given path, creating parent directories and
// the schema as needed. The caller must Close the store when done.
//
// Example:
//
//	store, err := metadata.Open(".calsync/metadata.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create metadata directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping metadata database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	// WAL keeps readers unblocked while sync cycles write.
	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := s.InitSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close metadata database: %w", err)
	}
	s.conn = nil
	return nil
}

// InitSchema creates tables and indexes. Idempotent.
func (s *Store) InitSchema() error {
	return s.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
func (s *Store) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sync_records (
		domain TEXT NOT NULL,
		local_id TEXT NOT NULL,
		remote_id TEXT NOT NULL,
		calendar_id TEXT NOT NULL,
		etag TEXT NOT NULL DEFAULT '',
		remote_updated_at TEXT,
		local_updated_at TEXT,
		last_sync_at TEXT,
		remote_end_date TEXT,
		open_task INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (domain, local_id)
	);

	-- A remote record may be linked by at most one sync record.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_sync_records_remote
	    ON sync_records(domain, remote_id);

	CREATE INDEX IF NOT EXISTS idx_sync_records_end
	    ON sync_records(domain, remote_end_date);

	-- Engine-level housekeeping state (dedup cooldowns and the like).
	CREATE TABLE IF NOT EXISTS maintenance (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Namespace returns a domain-scoped view of the store.
func (s *Store) Namespace(domain string) *Namespace {
	return &Namespace{store: s, domain: domain}
}

// LastDedupRun returns when the automatic dedup pass last ran for the given
// calendar, or the zero time if it never has.
func (s *Store) LastDedupRun(ctx context.Context, calendarID string) (time.Time, error) {
	var value string
	err := s.conn.QueryRowContext(ctx,
		"SELECT value FROM maintenance WHERE key = ?", dedupKey(calendarID)).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read dedup cooldown: %w", err)
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse dedup cooldown: %w", err)
	}
	return t, nil
}

// SetLastDedupRun records a dedup pass for cooldown gating.
func (s *Store) SetLastDedupRun(ctx context.Context, calendarID string, at time.Time) error {
	_, err := s.conn.ExecContext(ctx, `
	INSERT INTO maintenance (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, dedupKey(calendarID), at.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record dedup run: %w", err)
	}
	return nil
}

func dedupKey(calendarID string) string {
	return "dedup_last_run:" + calendarID
}
