package backend

import (
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/sammcj/creator-scout/internal/utils/httpclient"
)

// HTTPClient is the transport the backend client sends through; tests swap in httptest servers
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// RateLimitedHTTPClient paces calls to the backend across all tools in the process
type RateLimitedHTTPClient struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewRateLimitedHTTPClient allows requestsPerSecond with no burst. Non-positive rates fall back to 1.
// Deadlines come from request contexts; the underlying client has none.
func NewRateLimitedHTTPClient(requestsPerSecond float64, logger *logrus.Logger) *RateLimitedHTTPClient {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &RateLimitedHTTPClient{
		client:  httpclient.New(0, logger),
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// Do blocks for a token, giving up if the request context ends first
func (c *RateLimitedHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	return c.client.Do(req)
}

// Limit is the configured requests per second
func (c *RateLimitedHTTPClient) Limit() float64 {
	return float64(c.limiter.Limit())
}

// timeoutFor returns the budget for an endpoint class
func (c *Client) timeoutFor(long bool) time.Duration {
	if long {
		return c.longTimeout
	}
	return c.shortTimeout
}
