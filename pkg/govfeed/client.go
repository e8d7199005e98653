// Package govfeed fetches flood and shelter records from the government feed
// and turns each raw element into a validated candidate or a rejection.
package govfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds one feed request end to end.
	DefaultTimeout = 10 * time.Second
	maxFeedBytes   = 8 << 20
)

var (
	// ErrFeedUnavailable covers transport errors, timeouts and non-2xx replies.
	ErrFeedUnavailable = errors.New("feed unavailable")
	// ErrFeedFormatInvalid means the body was not a JSON array.
	ErrFeedFormatInvalid = errors.New("feed format invalid")
)

// StatusError carries the HTTP status of a rejected feed call.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("feed responded %d %s", e.Status, http.StatusText(e.Status))
}

// Client calls the government feed over HTTP with a bearer key.
type Client struct {
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a feed client. timeout <= 0 uses DefaultTimeout.
func NewClient(apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Fetch GETs url and returns the elements of the top-level JSON array.
// Failures wrap ErrFeedUnavailable or ErrFeedFormatInvalid.
func (c *Client) Fetch(ctx context.Context, url string) ([]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrFeedUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, fmt.Errorf("%w: %w", ErrFeedUnavailable, &StatusError{Status: resp.StatusCode})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrFeedUnavailable, err)
	}
	if len(body) > maxFeedBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrFeedFormatInvalid, maxFeedBytes)
	}
	return decodeArray(body)
}

func decodeArray(body []byte) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "[") {
		return nil, fmt.Errorf("%w: expected a JSON array", ErrFeedFormatInvalid)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFeedFormatInvalid, err)
	}
	return items, nil
}
