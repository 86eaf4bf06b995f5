// Package client is a Go client for the LexAlert REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/LexAlert/pkg/errors"
	"github.com/turtacn/LexAlert/pkg/types/common"
)

const Version = "0.1.0"

const apiPrefix = "/api/v1"

var defaultUserAgent = "lexalert-go-client/" + Version

// ErrInvalidConfig is returned by NewClient for a missing or malformed base
// URL or token.
var ErrInvalidConfig = errors.New(errors.CodeInvalidParam, "invalid client configuration")

// Logger defines the logging interface used by the Client
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debugf(format string, args ...interface{}) {}
func (noopLogger) Infof(format string, args ...interface{})  {}
func (noopLogger) Errorf(format string, args ...interface{}) {}

// Client talks to a LexAlert API server with a bearer token.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	token        string
	userAgent    string
	logger       Logger
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
	requestID    func() string

	deadlines         *DeadlinesClient
	deadlinesOnce     sync.Once
	notifications     *NotificationsClient
	notificationsOnce sync.Once
	admin             *AdminClient
	adminOnce         sync.Once
}

// APIError represents an error response from the API
type APIError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	RequestID  string `json:"request_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lexalert: %s (HTTP %d): %s [request_id=%s]", e.Code, e.StatusCode, e.Message, e.RequestID)
}

func (e *APIError) IsNotFound() bool     { return e.StatusCode == http.StatusNotFound }
func (e *APIError) IsUnauthorized() bool { return e.StatusCode == http.StatusUnauthorized }
func (e *APIError) IsForbidden() bool    { return e.StatusCode == http.StatusForbidden }
func (e *APIError) IsConflict() bool     { return e.StatusCode == http.StatusConflict }
func (e *APIError) IsRateLimited() bool  { return e.StatusCode == http.StatusTooManyRequests }

func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// envelope mirrors the server's response wrapper with the payload left raw.
type envelope struct {
	Success    bool                `json:"success"`
	Data       json.RawMessage     `json:"data,omitempty"`
	Error      *common.ErrorDetail `json:"error,omitempty"`
	Pagination *common.Pagination  `json:"pagination,omitempty"`
	RequestID  string              `json:"request_id,omitempty"`
}

// NewClient creates a client for the API at baseURL, e.g. http://localhost:8080.
func NewClient(baseURL string, token string, opts ...Option) (*Client, error) {
	if baseURL == "" || token == "" {
		return nil, ErrInvalidConfig
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid baseURL: %v", ErrInvalidConfig, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("%w: baseURL scheme must be http or https", ErrInvalidConfig)
	}

	c := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		token:        token,
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		userAgent:    defaultUserAgent,
		logger:       &noopLogger{},
		retryMax:     DefaultRetryMax,
		retryWaitMin: DefaultRetryWaitMin,
		retryWaitMax: DefaultRetryWaitMax,
		requestID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Deadlines returns the deadlines sub-client (lazy initialization, thread-safe)
func (c *Client) Deadlines() *DeadlinesClient {
	c.deadlinesOnce.Do(func() {
		c.deadlines = &DeadlinesClient{client: c}
	})
	return c.deadlines
}

// Notifications returns the notifications sub-client
func (c *Client) Notifications() *NotificationsClient {
	c.notificationsOnce.Do(func() {
		c.notifications = &NotificationsClient{client: c}
	})
	return c.notifications
}

// Admin returns the operator sub-client
func (c *Client) Admin() *AdminClient {
	c.adminOnce.Do(func() {
		c.admin = &AdminClient{client: c}
	})
	return c.admin
}

// do performs an HTTP request with retry logic, unwraps the response
// envelope into result and returns its pagination block, if any.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, result interface{}) (*common.Pagination, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	fullURL := c.baseURL + path

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = b
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryMax; attempt++ {
		if attempt > 0 {
			backoff := c.calculateBackoff(attempt)
			c.logger.Debugf("Retry attempt %d after %v", attempt, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		requestID := c.requestID()
		if requestID == "" {
			requestID = uuid.NewString()
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("X-Request-ID", requestID)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Errorf("Request failed: %v", err)
			lastErr = err
			continue
		}
		c.logger.Debugf("%s %s %d (%v)", method, path, resp.StatusCode, time.Since(start))

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < c.retryMax {
			if seconds, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil {
				c.logger.Infof("Rate limited, retrying after %d seconds", seconds)
				select {
				case <-time.After(time.Duration(seconds) * time.Second):
					continue
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
		}

		if resp.StatusCode >= 400 {
			lastErr = decodeError(resp.StatusCode, respBody, requestID)
			if resp.StatusCode >= 500 {
				continue
			}
			return nil, lastErr
		}

		return decodeEnvelope(respBody, result)
	}
	return nil, lastErr
}

func decodeError(status int, body []byte, requestID string) *APIError {
	apiErr := &APIError{StatusCode: status, RequestID: requestID}
	if len(body) == 0 {
		return apiErr
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error == nil {
		apiErr.Message = string(body)
		return apiErr
	}
	apiErr.Code = env.Error.Code
	apiErr.Message = env.Error.Message
	if env.RequestID != "" {
		apiErr.RequestID = env.RequestID
	}
	return apiErr
}

func decodeEnvelope(body []byte, result interface{}) (*common.Pagination, error) {
	if len(body) == 0 {
		return nil, nil
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if result != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response data: %w", err)
		}
	}
	return env.Pagination, nil
}

func (c *Client) get(ctx context.Context, path string, result interface{}) (*common.Pagination, error) {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, result interface{}) error {
	_, err := c.do(ctx, http.MethodPost, path, body, result)
	return err
}

func (c *Client) put(ctx context.Context, path string, body interface{}, result interface{}) error {
	_, err := c.do(ctx, http.MethodPut, path, body, result)
	return err
}

func (c *Client) delete(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodDelete, path, nil, nil)
	return err
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.retryWaitMin * time.Duration(1<<uint(attempt-1))
	if backoff > c.retryWaitMax {
		backoff = c.retryWaitMax
	}
	// up to 25% jitter
	if quarter := int64(backoff / 4); quarter > 0 {
		backoff += time.Duration(rand.Int63n(quarter))
	}
	return backoff
}
