package sync

import (
	"context"
	"fmt"

	"github.com/fbgallet/calsync/internal/config"
	"github.com/fbgallet/calsync/internal/metadata"
)

// ResolveConflict applies an explicit resolution choice to a surfaced
// conflict candidate. Conflicts are only ever resolved through this entry
// point; the sync cycle itself never picks a side.
func (e *Engine) ResolveConflict(ctx context.Context, cal *config.CalendarConfig, cand *ConflictCandidate, choice Choice) error {
	switch choice {
	case ChoiceRemote:
		return e.applyRemoteToLocalUpdate(ctx, cal, cand.Record.LocalID, cand.Snapshot)

	case ChoiceLocal:
		// The local version wins: record the remote state we examined so
		// the pair classifies as synced, but leave the remote record
		// untouched until the next local edit pushes it.
		now := e.now()
		return e.meta.UpdateContext(ctx, cand.Record.LocalID, metadata.Patch{
			Etag:            &cand.Snapshot.Etag,
			RemoteUpdatedAt: &cand.Snapshot.Updated,
			LastSyncAt:      &now,
		})

	case ChoiceBoth:
		// Unlink the pair, import the remote version as a fresh local
		// record, then re-export the original local record as its own
		// remote record carrying the suppression marker so dedup never
		// re-merges the two.
		if err := e.meta.DeleteContext(ctx, cand.Record.LocalID); err != nil {
			return err
		}
		if _, err := e.applyImport(ctx, cal, cand.Snapshot); err != nil {
			return err
		}
		return e.applyLocalToRemoteUpdate(ctx, cal, cand.Record.LocalID, true)

	default:
		return fmt.Errorf("unknown resolution choice %q", choice)
	}
}
