package health

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPChecker reports whether an HTTP endpoint answers.
//
// A product endpoint that answers 401 to an anonymous probe is up, so by
// default any status below 500 counts as reachable.
type HTTPChecker struct {
	URL    string
	Client *http.Client

	// Accept decides whether a status code is healthy
	Accept func(status int) bool
}

// NewHTTPChecker creates a reachability checker for url
func NewHTTPChecker(url string) *HTTPChecker {
	return &HTTPChecker{
		URL:    url,
		Client: &http.Client{Timeout: 5 * time.Second},
		Accept: func(status int) bool { return status < http.StatusInternalServerError },
	}
}

// Check issues a single GET
func (h *HTTPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return Unhealthy(start, fmt.Sprintf("failed to create request: %v", err))
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return Unhealthy(start, fmt.Sprintf("request to %s failed: %v", h.URL, err))
	}
	resp.Body.Close()

	msg := fmt.Sprintf("HTTP %d from %s", resp.StatusCode, h.URL)
	if !h.Accept(resp.StatusCode) {
		return Unhealthy(start, msg)
	}
	return Healthy(start, msg)
}

// Type returns the health check type
func (h *HTTPChecker) Type() CheckType {
	return CheckTypeHTTP
}
