// Package source holds the platform fetchers and the HTTP plumbing they share.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pullview/internal/domain"
)

const (
	maxBodyBytes     = 5 << 20
	maxErrorBodySize = 512
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// GetJSON issues an uncached GET to rawURL and decodes the JSON response into v.
// Non-2xx statuses and undecodable payloads are returned as *domain.UpstreamError.
func GetJSON(ctx context.Context, client HTTPClient, platform, rawURL, userAgent string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &domain.UpstreamError{
			Platform: platform,
			Status:   resp.StatusCode,
			Body:     truncate(strings.TrimSpace(string(body)), maxErrorBodySize),
		}
	}

	if err := json.Unmarshal(body, v); err != nil {
		return &domain.UpstreamError{
			Platform: platform,
			Body:     "decode response: " + err.Error(),
		}
	}

	return nil
}

// NewHTTPClient returns the client fetchers use when none is injected. net/http keeps
// no response cache, so every call reaches the origin.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
