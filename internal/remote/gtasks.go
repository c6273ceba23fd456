package remote

import (
	"context"
	"log"
	"os"
	"time"

	tasks "google.golang.org/api/tasks/v1"
)

// GoogleTasks implements API against the Google Tasks v1 service.
//
// Task lists are addressed through the same calendarID parameter the engine
// uses for event calendars, so both domains share one orchestration path.
// Tasks carry only a due date; it is surfaced as an all-day Start==End pair.
type GoogleTasks struct {
	srv    *tasks.Service
	logger *log.Logger
}

// NewGoogleTasks wraps an authenticated tasks service. If logger is nil, a
// default logger writing to stderr is used.
func NewGoogleTasks(srv *tasks.Service, logger *log.Logger) *GoogleTasks {
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return &GoogleTasks{srv: srv, logger: logger}
}

// ListEvents implements API.ListEvents over a task list.
func (g *GoogleTasks) ListEvents(ctx context.Context, listID string, timeMin, timeMax time.Time, opts ListOptions) ([]*Snapshot, error) {
	call := g.srv.Tasks.List(listID).
		DueMin(timeMin.Format(time.RFC3339)).
		DueMax(timeMax.Format(time.RFC3339)).
		ShowCompleted(true).
		ShowHidden(true).
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
		list, err := call.Do()
		if err != nil {
			return nil, wrapErr("list tasks", err)
		}
		snaps = append(snaps, parseTasks(list.Items, g.logger)...)
		pageToken = list.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return snaps, nil
}

// CreateEvent implements API.CreateEvent by inserting a task.
func (g *GoogleTasks) CreateEvent(ctx context.Context, listID string, p *Payload) (*CreateResult, error) {
	created, err := g.srv.Tasks.Insert(listID, taskFromPayload(p)).Context(ctx).Do()
	if err != nil {
		return nil, wrapErr("create task", err)
	}
	updated, _ := time.Parse(time.RFC3339, created.Updated)
	return &CreateResult{ID: created.Id, Etag: created.Etag, Updated: updated}, nil
}

// UpdateEvent implements API.UpdateEvent by patching a task.
func (g *GoogleTasks) UpdateEvent(ctx context.Context, listID, id string, p *Payload) (*UpdateResult, error) {
	patched, err := g.srv.Tasks.Patch(listID, id, taskFromPayload(p)).Context(ctx).Do()
	if err != nil {
		return nil, wrapErr("update task", err)
	}
	updated, _ := time.Parse(time.RFC3339, patched.Updated)
	return &UpdateResult{Etag: patched.Etag, Updated: updated}, nil
}

// DeleteEvent implements API.DeleteEvent by deleting a task.
func (g *GoogleTasks) DeleteEvent(ctx context.Context, listID, id string) error {
	err := g.srv.Tasks.Delete(listID, id).Context(ctx).Do()
	if err != nil && !IsNotFound(err) {
		return wrapErr("delete task", err)
	}
	return nil
}

// parseTasks validates a page of raw tasks, skipping malformed ones so a
// single bad record cannot abort the listing.
func parseTasks(items []*tasks.Task, logger *log.Logger) []*Snapshot {
	var snaps []*Snapshot
	for _, task := range items {
		snap, err := ParseTask(task)
		if err != nil {
			logger.Printf("Warning: skipping malformed remote record: %v", err)
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps
}

// ParseTask validates a raw task into a Snapshot.
//
// Deleted tasks are mapped to the cancelled status so the engine's deletion
// path handles both domains uniformly. Tasks without a due date are rejected:
// undated tasks have no date partition to live under locally.
func ParseTask(task *tasks.Task) (*Snapshot, error) {
	if task == nil || task.Id == "" {
		return nil, &ParseError{Field: "id", Reason: "missing task id"}
	}

	snap := &Snapshot{
		ID:          task.Id,
		Kind:        KindTask,
		Summary:     task.Title,
		Description: task.Notes,
		Status:      task.Status,
		Etag:        task.Etag,
		AllDay:      true,
	}
	if task.Deleted {
		snap.Status = StatusCancelled
	}

	if task.Updated != "" {
		t, err := time.Parse(time.RFC3339, task.Updated)
		if err != nil {
			return nil, &ParseError{ID: task.Id, Field: "updated", Reason: err.Error()}
		}
		snap.Updated = t
	}

	if task.Due == "" {
		if snap.Status == StatusCancelled {
			return snap, nil
		}
		return nil, &ParseError{ID: task.Id, Field: "due", Reason: "missing due date"}
	}
	due, err := time.Parse(time.RFC3339, task.Due)
	if err != nil {
		return nil, &ParseError{ID: task.Id, Field: "due", Reason: err.Error()}
	}
	// The tasks service reports due dates as midnight UTC instants;
	// keep the date components and drop the zone offset.
	day := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.Local)
	snap.Start = day
	snap.End = day
	return snap, nil
}

// taskFromPayload builds the provider task for insert/patch calls.
func taskFromPayload(p *Payload) *tasks.Task {
	task := &tasks.Task{
		Title:  p.Summary,
		Notes:  p.Description,
		Status: StatusOpen,
	}
	if p.Completed {
		task.Status = StatusCompleted
	}
	if !p.Start.IsZero() {
		due := time.Date(p.Start.Year(), p.Start.Month(), p.Start.Day(), 0, 0, 0, 0, time.UTC)
		task.Due = due.Format(time.RFC3339)
	}
	return task
}
