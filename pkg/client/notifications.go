package client

import (
	"context"
	"net/url"
	"strconv"

	"github.com/turtacn/LexAlert/pkg/types/common"
)

// NotificationsClient covers /api/v1/notifications.
type NotificationsClient struct {
	client *Client
}

// ListNotificationsOptions filters a notification listing.
type ListNotificationsOptions struct {
	UnreadOnly bool
	Page       int
	PageSize   int
}

func (n *NotificationsClient) List(ctx context.Context, opts *ListNotificationsOptions) (*Page[Notification], error) {
	q := url.Values{}
	if opts != nil {
		if opts.UnreadOnly {
			q.Set("unread", "true")
		}
		if opts.Page > 0 {
			q.Set("page", strconv.Itoa(opts.Page))
		}
		if opts.PageSize > 0 {
			q.Set("page_size", strconv.Itoa(opts.PageSize))
		}
	}
	path := apiPrefix + "/notifications"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var items []Notification
	p, err := n.client.get(ctx, path, &items)
	if err != nil {
		return nil, err
	}
	return toPage(items, p), nil
}

// Modal returns the unread notifications that should block the UI.
func (n *NotificationsClient) Modal(ctx context.Context) ([]Notification, error) {
	var items []Notification
	if _, err := n.client.get(ctx, apiPrefix+"/notifications/modal", &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (n *NotificationsClient) MarkRead(ctx context.Context, id string) error {
	return n.client.post(ctx, apiPrefix+"/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

// AdminClient covers /api/v1/admin. The token must belong to an operator.
type AdminClient struct {
	client *Client
}

// Dispatch runs the alert dispatcher now and returns its report. A 409
// APIError means another run holds the lock.
func (a *AdminClient) Dispatch(ctx context.Context) (*RunReport, error) {
	var out RunReport
	if err := a.client.post(ctx, apiPrefix+"/admin/dispatch", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func toPage[T any](items []T, p *common.Pagination) *Page[T] {
	page := &Page[T]{Items: items}
	if p != nil {
		page.Page = p.Page
		page.PageSize = p.PageSize
		page.Total = p.Total
	}
	return page
}
