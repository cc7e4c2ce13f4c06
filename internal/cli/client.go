package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNotSignedIn is returned when the server redirects a request to login.
var ErrNotSignedIn = errors.New("not signed in")

// ErrLoading is returned while the server has not hydrated its auth state.
var ErrLoading = errors.New("server is still loading the session, try again")

// Client calls the dashboard API. Redirects are reported, never followed, so
// guard decisions stay visible.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Response is a raw API response.
type Response struct {
	Status   int
	Location string
	Body     []byte
}

func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// APIError is a JSON error envelope returned by the server.
type APIError struct {
	Status      int
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("unexpected status %d", e.Status)
}

func (c *Client) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &Response{Status: resp.StatusCode, Location: resp.Header.Get("Location"), Body: raw}, nil
}

// guarded maps the guard outcomes shared by every protected route.
func guarded(resp *Response) error {
	switch {
	case resp.Status == http.StatusServiceUnavailable:
		return ErrLoading
	case resp.Status == http.StatusSeeOther && resp.Location != "":
		return ErrNotSignedIn
	case resp.Status >= http.StatusBadRequest:
		apiErr := &APIError{Status: resp.Status}
		_ = json.Unmarshal(resp.Body, apiErr)
		return apiErr
	}
	return nil
}
