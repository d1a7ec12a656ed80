package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultFetchTimeout is the per-call deadline when the caller's context
// carries none.
const DefaultFetchTimeout = 10 * time.Second

// maxBodyBytes caps response reads so a misbehaving upstream cannot
// exhaust memory.
const maxBodyBytes = 4 << 20

// StatusError is returned for non-2xx upstream responses. Callers can
// branch on the status code (404 is "not found", which providers treat as
// absence rather than failure).
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s returned %d: %s", e.URL, e.StatusCode, e.Body)
}

// NotFound reports whether err is a StatusError with a 404 status.
func NotFound(err error) bool {
	se, ok := err.(*StatusError)
	return ok && se.StatusCode == http.StatusNotFound
}

// Client is the shared outbound-HTTP helper. Every provider routes through
// it so deadlines, auth and cancellation propagate uniformly.
type Client struct {
	http    *http.Client
	timeout time.Duration
	bearer  string
	headers map[string]string
}

// NewClient builds a helper with the given per-call timeout; zero means
// DefaultFetchTimeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
		headers: make(map[string]string),
	}
}

// WithBearer attaches a bearer token to every outbound request.
func (c *Client) WithBearer(token string) *Client {
	c.bearer = token
	return c
}

// WithHeader attaches a fixed header to every outbound request.
func (c *Client) WithHeader(key, value string) *Client {
	c.headers[key] = value
	return c
}

func (c *Client) do(ctx context.Context, method, url string, body io.Reader, contentType string) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", url, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: url, Body: truncate(string(data), 256)}
	}
	return data, nil
}

// GetJSON fetches url and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, url string, out interface{}) error {
	data, err := c.do(ctx, http.MethodGet, url, nil, "")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// PostJSON sends body as JSON and decodes the response into out (out may
// be nil when the response body is irrelevant).
func (c *Client) PostJSON(ctx context.Context, url string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request for %s: %w", url, err)
	}
	data, err := c.do(ctx, http.MethodPost, url, bytes.NewReader(payload), "application/json")
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// GetText fetches url and returns the raw body, for non-JSON upstreams
// such as raw-file verification.
func (c *Client) GetText(ctx context.Context, url string) (string, error) {
	data, err := c.do(ctx, http.MethodGet, url, nil, "")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
