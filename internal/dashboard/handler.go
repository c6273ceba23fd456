package dashboard

import (
	"encoding/json"
	"log"
	"time"

	"github.com/fbgallet/calsync/internal/dedup"
	"github.com/fbgallet/calsync/internal/metadata"
	"github.com/fbgallet/calsync/internal/recovery"
	"github.com/fbgallet/calsync/internal/sync"
)

// Handler formats engine results as dashboard messages. It bridges between
// the daemon's sync loop and the WebSocket server; every On* method is safe
// to call with a nil Handler, so callers need no dashboard-enabled check.
type Handler struct {
	server *Server
	logger *log.Logger
}

// NewHandler creates a handler broadcasting through the given server.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{server: server, logger: logger}
}

func (h *Handler) send(t MessageType, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", t, err)
		return
	}
	h.server.Broadcast(Message{Type: t, Timestamp: time.Now(), Data: raw})
}

// OnSyncComplete broadcasts a finished sync cycle, its recovery pre-pass,
// and any surfaced conflicts.
func (h *Handler) OnSyncComplete(res *sync.Result) {
	if h == nil || res == nil {
		return
	}
	h.send(MessageTypeSyncComplete, SyncCompleteData{
		Calendar:  res.Calendar,
		Imported:  res.Imported,
		Updated:   res.Updated,
		Deleted:   res.Deleted,
		Skipped:   res.Skipped,
		Conflicts: len(res.Conflicts),
		Errors:    len(res.Errors),
		Duration:  res.Duration,
	})
	if res.Recovery != nil {
		h.OnRecoveryComplete(res.Calendar, res.Recovery)
	}
	for _, cand := range res.Conflicts {
		h.OnConflict(cand)
	}
}

// OnConflict broadcasts one conflict awaiting resolution.
func (h *Handler) OnConflict(cand *sync.ConflictCandidate) {
	if h == nil || cand == nil {
		return
	}
	h.send(MessageTypeConflictFound, ConflictData{
		Calendar: cand.CalendarID,
		LocalID:  cand.Record.LocalID,
		RemoteID: cand.Snapshot.ID,
		Summary:  cand.Snapshot.Summary,
	})
}

// OnDedupComplete broadcasts a deduplication pass report.
func (h *Handler) OnDedupComplete(calendarID string, report *dedup.Report) {
	if h == nil || report == nil {
		return
	}
	h.send(MessageTypeDedupComplete, DedupCompleteData{
		Calendar:  calendarID,
		Throttled: report.Throttled,
		Scanned:   report.Scanned,
		Groups:    report.Groups,
		Removed:   report.Removed,
		Failed:    report.Failed,
	})
}

// OnRecoveryComplete broadcasts a back-link recovery report.
func (h *Handler) OnRecoveryComplete(calendarID string, report *recovery.Report) {
	if h == nil || report == nil {
		return
	}
	h.send(MessageTypeRecoveryComplete, RecoveryCompleteData{
		Calendar:  calendarID,
		Scanned:   report.Scanned,
		Recovered: report.Recovered,
		Failed:    report.Failed,
		Skipped:   report.Skipped,
	})
}

// OnStats broadcasts per-domain metadata store statistics.
func (h *Handler) OnStats(stats map[string]*metadata.Stats) {
	if h == nil || len(stats) == 0 {
		return
	}
	data := StatsData{Domains: make(map[string]DomainStats, len(stats))}
	for domain, s := range stats {
		data.Domains[domain] = DomainStats{
			Records:   s.Count,
			OpenTasks: s.OpenCount,
			SizeBytes: s.SizeBytes,
		}
	}
	h.send(MessageTypeStats, data)
}
