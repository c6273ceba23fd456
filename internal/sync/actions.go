package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fbgallet/calsync/internal/config"
	"github.com/fbgallet/calsync/internal/dedup"
	"github.com/fbgallet/calsync/internal/metadata"
	"github.com/fbgallet/calsync/internal/recovery"
	"github.com/fbgallet/calsync/internal/remote"
	"github.com/fbgallet/calsync/internal/store"
)

// applyImport creates a local record from a remote snapshot and links the
// pair with a new sync record.
//
// Imports lock on the remote id: the local id does not exist yet, and two
// concurrent triggers importing the same remote record is exactly the
// duplication the lock prevents.
func (e *Engine) applyImport(ctx context.Context, cal *config.CalendarConfig, snap *remote.Snapshot) (string, error) {
	lockID := "remote:" + snap.ID
	if !e.locks.Acquire(lockID) {
		return "", fmt.Errorf("import %s: %w", snap.ID, ErrLockContention)
	}
	defer e.locks.Release(lockID)

	partition := snap.Start.Format(store.PartitionLayout)
	localID, err := e.local.CreateRecord(partition, buildLocalContent(snap))
	if err != nil {
		return "", fmt.Errorf("failed to create local record for %s: %w", snap.ID, err)
	}

	if multiDay(snap) {
		if _, err := e.local.CreateRecord(localID, endMarkerContent(snap.End)); err != nil {
			e.logger.Printf("Warning: failed to create end marker for %s: %v", localID, err)
		}
	}

	now := e.now()
	rec := &metadata.SyncRecord{
		LocalID:         localID,
		RemoteID:        snap.ID,
		CalendarID:      cal.ID,
		Etag:            snap.Etag,
		RemoteUpdatedAt: snap.Updated,
		LocalUpdatedAt:  now,
		LastSyncAt:      now,
		RemoteEndDate:   endDay(snap),
		OpenTask:        snap.Kind == remote.KindTask && snap.Status == remote.StatusOpen,
	}
	if err := e.meta.SaveContext(ctx, rec); err != nil {
		return "", fmt.Errorf("failed to save sync record for %s: %w", localID, err)
	}

	e.logger.Printf("Imported %s -> %s (%q)", snap.ID, localID, snap.Summary)
	return localID, nil
}

// applyRemoteDelete propagates a cancelled remote record: the local record
// is deleted and the sync record dropped.
func (e *Engine) applyRemoteDelete(ctx context.Context, rec *metadata.SyncRecord) error {
	if !e.locks.Acquire(rec.LocalID) {
		return fmt.Errorf("delete %s: %w", rec.LocalID, ErrLockContention)
	}
	defer e.locks.Release(rec.LocalID)

	if err := e.local.DeleteRecord(rec.LocalID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to delete local record %s: %w", rec.LocalID, err)
	}
	if err := e.meta.DeleteContext(ctx, rec.LocalID); err != nil {
		return err
	}

	e.logger.Printf("Deleted local record %s (remote %s cancelled)", rec.LocalID, rec.RemoteID)
	return nil
}

// applyRemoteToLocalUpdate overwrites a local record with the remote
// snapshot, relocating it if the start date changed partitions. When the
// local record is gone, the stale sync record is purged and the snapshot
// re-imported instead.
func (e *Engine) applyRemoteToLocalUpdate(ctx context.Context, cal *config.CalendarConfig, localID string, snap *remote.Snapshot) error {
	if !e.locks.Acquire(localID) {
		return fmt.Errorf("update %s: %w", localID, ErrLockContention)
	}

	if !e.local.RecordExists(localID) {
		e.locks.Release(localID)
		if err := e.meta.DeleteContext(ctx, localID); err != nil {
			return err
		}
		e.logger.Printf("Local record %s missing, re-importing %s", localID, snap.ID)
		_, err := e.applyImport(ctx, cal, snap)
		return err
	}
	defer e.locks.Release(localID)

	if err := e.local.UpdateRecord(localID, buildLocalContent(snap)); err != nil {
		return fmt.Errorf("failed to update local record %s: %w", localID, err)
	}

	localRec, err := e.local.Get(localID)
	if err != nil {
		return fmt.Errorf("failed to read back local record %s: %w", localID, err)
	}

	partition := snap.Start.Format(store.PartitionLayout)
	if localRec.Partition != partition {
		if err := e.local.MoveRecord(localID, partition); err != nil {
			return fmt.Errorf("failed to move local record %s: %w", localID, err)
		}
	}

	if err := e.ensureEndMarker(localID, snap); err != nil {
		e.logger.Printf("Warning: failed to refresh end marker for %s: %v", localID, err)
	}

	localRec, err = e.local.Get(localID)
	if err != nil {
		return fmt.Errorf("failed to read back local record %s: %w", localID, err)
	}

	now := e.now()
	end := endDay(snap)
	open := snap.Kind == remote.KindTask && snap.Status == remote.StatusOpen
	err = e.meta.UpdateContext(ctx, localID, metadata.Patch{
		Etag:            &snap.Etag,
		RemoteUpdatedAt: &snap.Updated,
		LocalUpdatedAt:  &localRec.UpdatedAt,
		LastSyncAt:      &now,
		RemoteEndDate:   &end,
		OpenTask:        &open,
	})
	if err != nil {
		return err
	}

	e.logger.Printf("Updated local record %s from remote %s", localID, snap.ID)
	return nil
}

// ensureEndMarker creates, updates, or removes the end-date marker child
// to match the snapshot's span.
func (e *Engine) ensureEndMarker(localID string, snap *remote.Snapshot) error {
	children, err := e.local.ChildRecords(localID)
	if err != nil {
		return err
	}

	var marker *store.Record
	for _, child := range children {
		if _, ok := parseEndMarker(child.Content); ok {
			marker = child
			break
		}
	}

	if !multiDay(snap) {
		if marker != nil {
			return e.local.DeleteRecord(marker.ID)
		}
		return nil
	}

	content := endMarkerContent(snap.End)
	if marker == nil {
		_, err := e.local.CreateRecord(localID, content)
		return err
	}
	if marker.Content != content {
		return e.local.UpdateRecord(marker.ID, content)
	}
	return nil
}

// applyLocalToRemoteUpdate exports a local record: creating the remote
// record when the local one is unlinked, updating it otherwise. The
// exported description carries the back-link the recovery engine depends
// on; suppress additionally stamps the dedup suppression marker.
func (e *Engine) applyLocalToRemoteUpdate(ctx context.Context, cal *config.CalendarConfig, localID string, suppress bool) error {
	if !e.locks.Acquire(localID) {
		return fmt.Errorf("export %s: %w", localID, ErrLockContention)
	}
	defer e.locks.Release(localID)

	localRec, err := e.local.Get(localID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Nothing to export and nothing to re-import from; drop
			// the stale link if one exists.
			if derr := e.meta.DeleteContext(ctx, localID); derr != nil {
				return derr
			}
			e.logger.Printf("Local record %s is gone, purged stale sync record", localID)
			return nil
		}
		return err
	}

	endDate := time.Time{}
	if children, err := e.local.ChildRecords(localID); err == nil {
		for _, child := range children {
			if end, ok := parseEndMarker(child.Content); ok {
				endDate = end
				break
			}
		}
	}

	description := recovery.FormatBackLink(e.meta.Domain(), localID)
	if suppress {
		description += "\n" + dedup.SuppressMarker
	}

	payload, err := payloadFromRecord(e.meta.Domain(), localRec, endDate, description)
	if err != nil {
		return err
	}

	rec, err := e.meta.GetContext(ctx, localID)
	if err != nil {
		return err
	}

	now := e.now()
	open := e.meta.Domain() == metadata.DomainTasks && !payload.Completed
	end := time.Date(payload.End.Year(), payload.End.Month(), payload.End.Day(), 0, 0, 0, 0, time.UTC)

	if rec == nil {
		created, err := e.api.CreateEvent(ctx, cal.ID, payload)
		if err != nil {
			return err
		}
		rec = &metadata.SyncRecord{
			LocalID:         localID,
			RemoteID:        created.ID,
			CalendarID:      cal.ID,
			Etag:            created.Etag,
			RemoteUpdatedAt: created.Updated,
			LocalUpdatedAt:  localRec.UpdatedAt,
			LastSyncAt:      now,
			RemoteEndDate:   end,
			OpenTask:        open,
		}
		if err := e.meta.SaveContext(ctx, rec); err != nil {
			return err
		}
		e.logger.Printf("Exported %s -> %s (%q)", localID, created.ID, payload.Summary)
		return nil
	}

	updated, err := e.api.UpdateEvent(ctx, cal.ID, rec.RemoteID, payload)
	if err != nil {
		return err
	}
	err = e.meta.UpdateContext(ctx, localID, metadata.Patch{
		Etag:            &updated.Etag,
		RemoteUpdatedAt: &updated.Updated,
		LocalUpdatedAt:  &localRec.UpdatedAt,
		LastSyncAt:      &now,
		RemoteEndDate:   &end,
		OpenTask:        &open,
	})
	if err != nil {
		return err
	}

	e.logger.Printf("Pushed %s -> %s (%q)", localID, rec.RemoteID, payload.Summary)
	return nil
}
