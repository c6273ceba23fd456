package remote

import (
	"context"
	"log"
	"os"
	"time"

	"google.golang.org/api/calendar/v3"
)

// GoogleCalendar implements API against the Google Calendar v3 service.
type GoogleCalendar struct {
	srv    *calendar.Service
	logger *log.Logger
}

// NewGoogleCalendar wraps an authenticated calendar service. If logger is
// nil, a default logger writing to stderr is used.
func NewGoogleCalendar(srv *calendar.Service, logger *log.Logger) *GoogleCalendar {
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return &GoogleCalendar{srv: srv, logger: logger}
}

// ListEvents implements API.ListEvents.
//
// Results are returned in the provider's listing order. Recurring events
// are expanded into single instances so the engine sees concrete times.
func (g *GoogleCalendar) ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time, opts ListOptions) ([]*Snapshot, error) {
	call := g.srv.Events.List(calendarID).
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		SingleEvents(true).
		Context(ctx)

	if !opts.UpdatedMin.IsZero() {
		call = call.UpdatedMin(opts.UpdatedMin.Format(time.RFC3339))
	}
	if opts.ShowDeleted {
		call = call.ShowDeleted(true)
	}
	if opts.MaxResults > 0 {
		call = call.MaxResults(opts.MaxResults)
	}

	var snaps []*Snapshot
	pageToken := ""
	for {
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		events, err := call.Do()
		if err != nil {
			return nil, wrapErr("list events", err)
		}
		snaps = append(snaps, parseEvents(events.Items, g.logger)...)
		pageToken = events.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return snaps, nil
}

// CreateEvent implements API.CreateEvent.
func (g *GoogleCalendar) CreateEvent(ctx context.Context, calendarID string, p *Payload) (*CreateResult, error) {
	created, err := g.srv.Events.Insert(calendarID, eventFromPayload(p)).Context(ctx).Do()
	if err != nil {
		return nil, wrapErr("create event", err)
	}
	updated, _ := time.Parse(time.RFC3339, created.Updated)
	return &CreateResult{ID: created.Id, Etag: created.Etag, Updated: updated}, nil
}

// UpdateEvent implements API.UpdateEvent.
func (g *GoogleCalendar) UpdateEvent(ctx context.Context, calendarID, id string, p *Payload) (*UpdateResult, error) {
	patched, err := g.srv.Events.Patch(calendarID, id, eventFromPayload(p)).Context(ctx).Do()
	if err != nil {
		return nil, wrapErr("update event", err)
	}
	updated, _ := time.Parse(time.RFC3339, patched.Updated)
	return &UpdateResult{Etag: patched.Etag, Updated: updated}, nil
}

// DeleteEvent implements API.DeleteEvent. Deleting a record that is already
// gone remotely is treated as success.
func (g *GoogleCalendar) DeleteEvent(ctx context.Context, calendarID, id string) error {
	err := g.srv.Events.Delete(calendarID, id).Context(ctx).Do()
	if err != nil && !IsNotFound(err) {
		return wrapErr("delete event", err)
	}
	return nil
}

// parseEvents validates a page of raw events, skipping malformed ones.
// One bad record must not abort the whole listing: the rest of the window
// still needs to sync.
func parseEvents(items []*calendar.Event, logger *log.Logger) []*Snapshot {
	var snaps []*Snapshot
	for _, ev := range items {
		snap, err := ParseEvent(ev)
		if err != nil {
			logger.Printf("Warning: skipping malformed remote record: %v", err)
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps
}

// ParseEvent validates a raw calendar event into a Snapshot.
//
// Events without an id or a usable start time fail with *ParseError.
// Cancelled events often arrive with no times at all; those are accepted
// with zero Start/End since only the id matters for deletion propagation.
func ParseEvent(ev *calendar.Event) (*Snapshot, error) {
	if ev == nil || ev.Id == "" {
		return nil, &ParseError{Field: "id", Reason: "missing event id"}
	}

	snap := &Snapshot{
		ID:          ev.Id,
		Kind:        KindEvent,
		Summary:     ev.Summary,
		Description: ev.Description,
		Status:      ev.Status,
		Etag:        ev.Etag,
	}

	if ev.Updated != "" {
		t, err := time.Parse(time.RFC3339, ev.Updated)
		if err != nil {
			return nil, &ParseError{ID: ev.Id, Field: "updated", Reason: err.Error()}
		}
		snap.Updated = t
	}
	if ev.Created != "" {
		if t, err := time.Parse(time.RFC3339, ev.Created); err == nil {
			snap.Created = t
		}
	}

	start, allDay, err := parseEventTime(ev.Id, "start", ev.Start)
	if err != nil {
		return nil, err
	}
	end, _, err := parseEventTime(ev.Id, "end", ev.End)
	if err != nil {
		return nil, err
	}

	if start.IsZero() && ev.Status != StatusCancelled {
		return nil, &ParseError{ID: ev.Id, Field: "start", Reason: "missing start time"}
	}

	snap.Start = start
	snap.End = end
	snap.AllDay = allDay
	return snap, nil
}

// parseEventTime resolves an EventDateTime into a concrete time. All-day
// events carry a Date, timed events a DateTime; both absent is only legal
// for cancelled stubs, which the caller checks.
func parseEventTime(id, field string, edt *calendar.EventDateTime) (time.Time, bool, error) {
	if edt == nil {
		return time.Time{}, false, nil
	}
	if edt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, edt.DateTime)
		if err != nil {
			return time.Time{}, false, &ParseError{ID: id, Field: field, Reason: err.Error()}
		}
		return t, false, nil
	}
	if edt.Date != "" {
		t, err := time.ParseInLocation("2006-01-02", edt.Date, time.Local)
		if err != nil {
			return time.Time{}, false, &ParseError{ID: id, Field: field, Reason: err.Error()}
		}
		return t, true, nil
	}
	return time.Time{}, false, nil
}

// eventFromPayload builds the provider event for create/patch calls.
func eventFromPayload(p *Payload) *calendar.Event {
	ev := &calendar.Event{
		Summary:     p.Summary,
		Description: p.Description,
	}
	if p.AllDay {
		ev.Start = &calendar.EventDateTime{Date: p.Start.Format("2006-01-02")}
		end := p.End
		if end.IsZero() {
			end = p.Start
		}
		// The provider treats all-day end dates as exclusive.
		ev.End = &calendar.EventDateTime{Date: end.AddDate(0, 0, 1).Format("2006-01-02")}
	} else {
		ev.Start = &calendar.EventDateTime{DateTime: p.Start.Format(time.RFC3339)}
		end := p.End
		if end.IsZero() {
			end = p.Start.Add(time.Hour)
		}
		ev.End = &calendar.EventDateTime{DateTime: end.Format(time.RFC3339)}
	}
	return ev
}
