package sync

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fbgallet/calsync/internal/metadata"
	"github.com/fbgallet/calsync/internal/remote"
	"github.com/fbgallet/calsync/internal/store"
)

// endMarkerPrefix starts the content of a child end-date marker record.
const endMarkerPrefix = "ends: "

var (
	// timedPattern matches a timed record: "09:00 Standup" or
	// "09:00 - 09:30 Standup".
	timedPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?:\s*-\s*(\d{1,2}):(\d{2}))?\s+(.+)$`)

	// Task status markers at the head of a record's content.
	todoPattern = regexp.MustCompile(`^\{\{\[\[TODO\]\]\}\}\s*`)
	donePattern = regexp.MustCompile(`^\{\{\[\[DONE\]\]\}\}\s*`)
)

// buildLocalContent renders a remote snapshot as local record content.
//
// Tasks carry a TODO/DONE status marker; timed events carry their
// wall-clock times so a later export round-trips them.
func buildLocalContent(snap *remote.Snapshot) string {
	if snap.Kind == remote.KindTask {
		marker := "{{[[TODO]]}}"
		if snap.Status == remote.StatusCompleted {
			marker = "{{[[DONE]]}}"
		}
		return marker + " " + snap.Summary
	}

	if snap.AllDay || snap.Start.IsZero() {
		return snap.Summary
	}
	if !snap.End.IsZero() && !snap.End.Equal(snap.Start) {
		return fmt.Sprintf("%s - %s %s",
			snap.Start.Format("15:04"), snap.End.Format("15:04"), snap.Summary)
	}
	return snap.Start.Format("15:04") + " " + snap.Summary
}

// taskDone reports whether local content carries a DONE marker.
func taskDone(content string) bool {
	return donePattern.MatchString(content)
}

// stripTaskMarkers removes a leading TODO/DONE marker.
func stripTaskMarkers(content string) string {
	content = todoPattern.ReplaceAllString(content, "")
	content = donePattern.ReplaceAllString(content, "")
	return strings.TrimSpace(content)
}

// payloadFromRecord builds the remote payload for a local record.
//
// The record's partition supplies the date; a leading "HH:MM" or
// "HH:MM - HH:MM" in the content supplies event times, otherwise the
// record exports as all-day. endDate, when non-zero, comes from the
// record's end-date marker child.
func payloadFromRecord(domain string, rec *store.Record, endDate time.Time, description string) (*remote.Payload, error) {
	day, err := time.ParseInLocation(store.PartitionLayout, rec.Partition, time.Local)
	if err != nil {
		return nil, fmt.Errorf("record %s has invalid partition %q: %w", rec.ID, rec.Partition, err)
	}

	content := strings.TrimSpace(rec.Content)
	p := &remote.Payload{Description: description}

	if domain == metadata.DomainTasks {
		p.Summary = stripTaskMarkers(content)
		p.Start = day
		p.End = day
		p.AllDay = true
		p.Completed = taskDone(content)
		return p, nil
	}

	if m := timedPattern.FindStringSubmatch(content); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		if h < 24 && min < 60 {
			p.Start = time.Date(day.Year(), day.Month(), day.Day(), h, min, 0, 0, time.Local)
			if m[3] != "" {
				h2, _ := strconv.Atoi(m[3])
				min2, _ := strconv.Atoi(m[4])
				p.End = time.Date(day.Year(), day.Month(), day.Day(), h2, min2, 0, 0, time.Local)
				if p.End.Before(p.Start) {
					// Past-midnight span.
					p.End = p.End.AddDate(0, 0, 1)
				}
			} else {
				p.End = p.Start.Add(time.Hour)
			}
			p.Summary = m[5]
			return p, nil
		}
	}

	p.Summary = content
	p.Start = day
	p.End = day
	p.AllDay = true
	if !endDate.IsZero() && endDate.After(day) {
		p.End = endDate
	}
	return p, nil
}

// endMarkerContent renders an end-date marker child record.
func endMarkerContent(end time.Time) string {
	return endMarkerPrefix + end.Format(store.PartitionLayout)
}

// parseEndMarker extracts the end date from a marker record's content.
func parseEndMarker(content string) (time.Time, bool) {
	if !strings.HasPrefix(content, endMarkerPrefix) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(store.PartitionLayout, strings.TrimPrefix(content, endMarkerPrefix), time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// multiDay reports whether a snapshot spans more than one calendar day.
func multiDay(snap *remote.Snapshot) bool {
	if snap.End.IsZero() {
		return false
	}
	sy, sm, sd := snap.Start.Date()
	ey, em, ed := snap.End.Date()
	return sy != ey || sm != em || sd != ed
}

// endDay truncates a snapshot's end to day precision for retention.
func endDay(snap *remote.Snapshot) time.Time {
	end := snap.End
	if end.IsZero() {
		end = snap.Start
	}
	return time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
}
