package client

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DeadlinesClient covers /api/v1/deadlines.
type DeadlinesClient struct {
	client *Client
}

// CreateDeadlineRequest creates a deadline. DeadlineDate accepts RFC 3339
// or a plain YYYY-MM-DD date.
type CreateDeadlineRequest struct {
	Title        string  `json:"title"`
	Description  string  `json:"description,omitempty"`
	DeadlineDate string  `json:"deadline_date"`
	ProcessID    *string `json:"process_id,omitempty"`
}

// UpdateDeadlineRequest is a partial update; nil fields are left unchanged.
type UpdateDeadlineRequest struct {
	Title        *string `json:"title,omitempty"`
	Description  *string `json:"description,omitempty"`
	DeadlineDate *string `json:"deadline_date,omitempty"`
	ProcessID    *string `json:"process_id,omitempty"`
}

// ListDeadlinesOptions filters a deadline listing. Zero values are omitted.
type ListDeadlinesOptions struct {
	Status      []string
	AlertStatus []string
	ProcessID   string
	DueFrom     time.Time
	DueTo       time.Time
	Page        int
	PageSize    int
}

func (o *ListDeadlinesOptions) query() string {
	if o == nil {
		return ""
	}
	q := url.Values{}
	if len(o.Status) > 0 {
		q.Set("status", strings.Join(o.Status, ","))
	}
	if len(o.AlertStatus) > 0 {
		q.Set("alert_status", strings.Join(o.AlertStatus, ","))
	}
	if o.ProcessID != "" {
		q.Set("process_id", o.ProcessID)
	}
	if !o.DueFrom.IsZero() {
		q.Set("due_from", o.DueFrom.UTC().Format(time.RFC3339))
	}
	if !o.DueTo.IsZero() {
		q.Set("due_to", o.DueTo.UTC().Format(time.RFC3339))
	}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(o.PageSize))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func deadlinePath(id string) string {
	return apiPrefix + "/deadlines/" + url.PathEscape(id)
}

func (d *DeadlinesClient) Create(ctx context.Context, req *CreateDeadlineRequest) (*Deadline, error) {
	var out Deadline
	if err := d.client.post(ctx, apiPrefix+"/deadlines", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (d *DeadlinesClient) Get(ctx context.Context, id string) (*Deadline, error) {
	var out Deadline
	if _, err := d.client.get(ctx, deadlinePath(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns one page of the caller's deadlines.
func (d *DeadlinesClient) List(ctx context.Context, opts *ListDeadlinesOptions) (*Page[Deadline], error) {
	var items []Deadline
	p, err := d.client.get(ctx, apiPrefix+"/deadlines"+opts.query(), &items)
	if err != nil {
		return nil, err
	}
	return toPage(items, p), nil
}

func (d *DeadlinesClient) Update(ctx context.Context, id string, req *UpdateDeadlineRequest) (*Deadline, error) {
	var out Deadline
	if err := d.client.put(ctx, deadlinePath(id), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (d *DeadlinesClient) Delete(ctx context.Context, id string) error {
	return d.client.delete(ctx, deadlinePath(id))
}

// Complete marks the deadline done; no further alerts fire for it.
func (d *DeadlinesClient) Complete(ctx context.Context, id string) (*Deadline, error) {
	return d.transition(ctx, id, "complete")
}

func (d *DeadlinesClient) Reopen(ctx context.Context, id string) (*Deadline, error) {
	return d.transition(ctx, id, "reopen")
}

// Acknowledge records that the owner has seen an overdue deadline.
func (d *DeadlinesClient) Acknowledge(ctx context.Context, id string) (*Deadline, error) {
	return d.transition(ctx, id, "acknowledge")
}

func (d *DeadlinesClient) transition(ctx context.Context, id, action string) (*Deadline, error) {
	var out Deadline
	if err := d.client.post(ctx, deadlinePath(id)+"/"+action, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PreviewAlerts shows what the engine would fire at at. A zero at means now
// on the server.
func (d *DeadlinesClient) PreviewAlerts(ctx context.Context, id string, at time.Time) (*AlertPreview, error) {
	path := deadlinePath(id) + "/alerts"
	if !at.IsZero() {
		path += "?at=" + url.QueryEscape(at.UTC().Format(time.RFC3339))
	}
	var out AlertPreview
	if _, err := d.client.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
