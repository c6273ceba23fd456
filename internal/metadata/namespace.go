package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Namespace is a domain-scoped view of the store. Calendar events and tasks
// each get their own namespace with structurally identical records.
type Namespace struct {
	store  *Store
	domain string
}

// Domain returns the namespace's domain name.
func (n *Namespace) Domain() string { return n.domain }

// Get returns the sync record for a local id, or nil if none exists.
func (n *Namespace) Get(localID string) (*SyncRecord, error) {
	return n.GetContext(context.Background(), localID)
}

// GetContext returns the sync record for a local id with context support.
func (n *Namespace) GetContext(ctx context.Context, localID string) (*SyncRecord, error) {
	row := n.store.conn.QueryRowContext(ctx, `
	SELECT local_id, remote_id, calendar_id, etag,
	       remote_updated_at, local_updated_at, last_sync_at,
	       remote_end_date, open_task
	FROM sync_records
	WHERE domain = ? AND local_id = ?
	`, n.domain, localID)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync record %s: %w", localID, err)
	}
	return rec, nil
}

// Save inserts or replaces the sync record for rec.LocalID.
func (n *Namespace) Save(rec *SyncRecord) error {
	return n.SaveContext(context.Background(), rec)
}

// SaveContext inserts or replaces a sync record with context support.
func (n *Namespace) SaveContext(ctx context.Context, rec *SyncRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid sync record: %w", err)
	}

	query := `
	INSERT INTO sync_records (
		domain, local_id, remote_id, calendar_id, etag,
		remote_updated_at, local_updated_at, last_sync_at,
		remote_end_date, open_task
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(domain, local_id) DO UPDATE SET
		remote_id = excluded.remote_id,
		calendar_id = excluded.calendar_id,
		etag = excluded.etag,
		remote_updated_at = excluded.remote_updated_at,
		local_updated_at = excluded.local_updated_at,
		last_sync_at = excluded.last_sync_at,
		remote_end_date = excluded.remote_end_date,
		open_task = excluded.open_task
	`
	_, err := n.store.conn.ExecContext(ctx, query,
		n.domain,
		rec.LocalID,
		rec.RemoteID,
		rec.CalendarID,
		rec.Etag,
		timeToNullString(rec.RemoteUpdatedAt, time.RFC3339Nano),
		timeToNullString(rec.LocalUpdatedAt, time.RFC3339Nano),
		timeToNullString(rec.LastSyncAt, time.RFC3339Nano),
		timeToNullString(rec.RemoteEndDate, "2006-01-02"),
		boolToInt(rec.OpenTask),
	)
	if err != nil {
		return fmt.Errorf("failed to save sync record %s: %w", rec.LocalID, err)
	}
	return nil
}

// Update merges non-nil patch fields into an existing record. If no record
// exists for localID this is a no-op.
func (n *Namespace) Update(localID string, patch Patch) error {
	return n.UpdateContext(context.Background(), localID, patch)
}

// UpdateContext merges a patch with context support.
func (n *Namespace) UpdateContext(ctx context.Context, localID string, patch Patch) error {
	var sets []string
	var args []interface{}

	if patch.RemoteID != nil {
		sets = append(sets, "remote_id = ?")
		args = append(args, *patch.RemoteID)
	}
	if patch.CalendarID != nil {
		sets = append(sets, "calendar_id = ?")
		args = append(args, *patch.CalendarID)
	}
	if patch.Etag != nil {
		sets = append(sets, "etag = ?")
		args = append(args, *patch.Etag)
	}
	if patch.RemoteUpdatedAt != nil {
		sets = append(sets, "remote_updated_at = ?")
		args = append(args, patch.RemoteUpdatedAt.Format(time.RFC3339Nano))
	}
	if patch.LocalUpdatedAt != nil {
		sets = append(sets, "local_updated_at = ?")
		args = append(args, patch.LocalUpdatedAt.Format(time.RFC3339Nano))
	}
	if patch.LastSyncAt != nil {
		sets = append(sets, "last_sync_at = ?")
		args = append(args, patch.LastSyncAt.Format(time.RFC3339Nano))
	}
	if patch.RemoteEndDate != nil {
		sets = append(sets, "remote_end_date = ?")
		args = append(args, patch.RemoteEndDate.Format("2006-01-02"))
	}
	if patch.OpenTask != nil {
		sets = append(sets, "open_task = ?")
		args = append(args, boolToInt(*patch.OpenTask))
	}

	if len(sets) == 0 {
		return nil
	}

	query := "UPDATE sync_records SET " + strings.Join(sets, ", ") +
		" WHERE domain = ? AND local_id = ?"
	args = append(args, n.domain, localID)

	if _, err := n.store.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update sync record %s: %w", localID, err)
	}
	return nil
}

// Delete removes the sync record for a local id. Idempotent.
func (n *Namespace) Delete(localID string) error {
	return n.DeleteContext(context.Background(), localID)
}

// DeleteContext removes a sync record with context support.
func (n *Namespace) DeleteContext(ctx context.Context, localID string) error {
	_, err := n.store.conn.ExecContext(ctx,
		"DELETE FROM sync_records WHERE domain = ? AND local_id = ?", n.domain, localID)
	if err != nil {
		return fmt.Errorf("failed to delete sync record %s: %w", localID, err)
	}
	return nil
}

// FindByRemoteID returns the sync record referencing a remote id, or nil.
func (n *Namespace) FindByRemoteID(remoteID string) (*SyncRecord, error) {
	return n.FindByRemoteIDContext(context.Background(), remoteID)
}

// FindByRemoteIDContext looks up by remote id with context support.
func (n *Namespace) FindByRemoteIDContext(ctx context.Context, remoteID string) (*SyncRecord, error) {
	row := n.store.conn.QueryRowContext(ctx, `
	SELECT local_id, remote_id, calendar_id, etag,
	       remote_updated_at, local_updated_at, last_sync_at,
	       remote_end_date, open_task
	FROM sync_records
	WHERE domain = ? AND remote_id = ?
	`, n.domain, remoteID)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find sync record by remote id %s: %w", remoteID, err)
	}
	return rec, nil
}

// List returns every sync record in the namespace.
func (n *Namespace) List() ([]*SyncRecord, error) {
	return n.ListContext(context.Background())
}

// ListContext returns every sync record with context support.
func (n *Namespace) ListContext(ctx context.Context) ([]*SyncRecord, error) {
	rows, err := n.store.conn.QueryContext(ctx, `
	SELECT local_id, remote_id, calendar_id, etag,
	       remote_updated_at, local_updated_at, last_sync_at,
	       remote_end_date, open_task
	FROM sync_records
	WHERE domain = ?
	ORDER BY local_id ASC
	`, n.domain)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync records: %w", err)
	}
	defer rows.Close()

	var recs []*SyncRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync record: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync records: %w", err)
	}
	return recs, nil
}

// Stats returns record counts and the approximate database size.
func (n *Namespace) Stats() (*Stats, error) {
	return n.StatsContext(context.Background())
}

// StatsContext returns stats with context support.
func (n *Namespace) StatsContext(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := n.store.conn.QueryRowContext(ctx, `
	SELECT COUNT(*), COALESCE(SUM(open_task), 0)
	FROM sync_records WHERE domain = ?
	`, n.domain).Scan(&stats.Count, &stats.OpenCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count sync records: %w", err)
	}

	var pageCount, pageSize int64
	if err := n.store.conn.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		if err := n.store.conn.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err == nil {
			stats.SizeBytes = pageCount * pageSize
		}
	}
	return stats, nil
}

// CleanupOlderThan removes records whose end date precedes today minus the
// given number of days, keeping records flagged as open tasks. Returns how
// many were removed and how many aged records were retained.
func (n *Namespace) CleanupOlderThan(days int) (removed, retained int, err error) {
	return n.CleanupOlderThanContext(context.Background(), days)
}

// CleanupOlderThanContext performs age-based cleanup with context support.
func (n *Namespace) CleanupOlderThanContext(ctx context.Context, days int) (removed, retained int, err error) {
	cutoff := time.Now().AddDate(0, 0, -days).Format("2006-01-02")

	err = n.store.conn.QueryRowContext(ctx, `
	SELECT COUNT(*) FROM sync_records
	WHERE domain = ? AND remote_end_date < ? AND open_task = 1
	`, n.domain, cutoff).Scan(&retained)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count retained records: %w", err)
	}

	res, err := n.store.conn.ExecContext(ctx, `
	DELETE FROM sync_records
	WHERE domain = ? AND remote_end_date < ? AND open_task = 0
	`, n.domain, cutoff)
	if err != nil {
		return 0, retained, fmt.Errorf("failed to clean up sync records: %w", err)
	}
	affected, _ := res.RowsAffected()
	return int(affected), retained, nil
}

// CleanupAll removes every record ending before today, open tasks included.
func (n *Namespace) CleanupAll() (int, error) {
	return n.CleanupAllContext(context.Background())
}

// CleanupAllContext performs full cleanup with context support.
func (n *Namespace) CleanupAllContext(ctx context.Context) (int, error) {
	today := time.Now().Format("2006-01-02")
	res, err := n.store.conn.ExecContext(ctx, `
	DELETE FROM sync_records WHERE domain = ? AND remote_end_date < ?
	`, n.domain, today)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up sync records: %w", err)
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*SyncRecord, error) {
	var rec SyncRecord
	var remoteUpdated, localUpdated, lastSync, endDate sql.NullString
	var openTask int

	err := row.Scan(
		&rec.LocalID,
		&rec.RemoteID,
		&rec.CalendarID,
		&rec.Etag,
		&remoteUpdated,
		&localUpdated,
		&lastSync,
		&endDate,
		&openTask,
	)
	if err != nil {
		return nil, err
	}

	// RFC3339Nano parses both fractional and whole-second values.
	rec.RemoteUpdatedAt = nullStringToTime(remoteUpdated, time.RFC3339Nano)
	rec.LocalUpdatedAt = nullStringToTime(localUpdated, time.RFC3339Nano)
	rec.LastSyncAt = nullStringToTime(lastSync, time.RFC3339Nano)
	rec.RemoteEndDate = nullStringToTime(endDate, "2006-01-02")
	rec.OpenTask = openTask != 0
	return &rec, nil
}

func timeToNullString(t time.Time, layout string) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(layout), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStringToTime(ns sql.NullString, layout string) time.Time {
	if !ns.Valid {
		return time.Time{}
	}
	t, err := time.Parse(layout, ns.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
