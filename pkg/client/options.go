package client

import (
	"net/http"
	"strings"
	"time"
)

// Defaults applied by NewClient before any Option runs.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultRetryMax     = 3
	DefaultRetryWaitMin = 500 * time.Millisecond
	DefaultRetryWaitMax = 5 * time.Second
)

// Option configures a Client in NewClient.
type Option func(*Client)

// WithHTTPClient replaces the transport. A nil client is ignored.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithTimeout sets the per-attempt timeout. The underlying http.Client is
// copied so a client passed to WithHTTPClient is never mutated.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d <= 0 {
			return
		}
		hc := http.Client{}
		if c.httpClient != nil {
			hc = *c.httpClient
		}
		hc.Timeout = d
		c.httpClient = &hc
	}
}

// WithLogger routes client debug and error output. A nil logger is ignored.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRetryMax caps retries of 5xx, 429 and network failures. Zero disables
// retries; negative values are ignored.
func WithRetryMax(retryMax int) Option {
	return func(c *Client) {
		if retryMax >= 0 {
			c.retryMax = retryMax
		}
	}
}

// WithRetryWait sets the exponential backoff bounds. A non-positive min is
// ignored, and a max below min is raised to min.
func WithRetryWait(min, max time.Duration) Option {
	return func(c *Client) {
		if min <= 0 {
			return
		}
		if max < min {
			max = min
		}
		c.retryWaitMin = min
		c.retryWaitMax = max
	}
}

// WithUserAgent prepends product to the default User-Agent, so server
// access logs still carry the client version.
func WithUserAgent(product string) Option {
	return func(c *Client) {
		if product = strings.TrimSpace(product); product != "" {
			c.userAgent = product + " " + defaultUserAgent
		}
	}
}

// WithRequestIDFunc overrides the X-Request-ID generator, e.g. to propagate
// an inbound request id. Empty results fall back to a random UUID.
func WithRequestIDFunc(fn func() string) Option {
	return func(c *Client) {
		if fn != nil {
			c.requestID = fn
		}
	}
}
