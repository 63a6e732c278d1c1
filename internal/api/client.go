// Package api is the console's transport adapter: a thin typed client over
// the manager's JSON HTTP routes. It normalizes outcomes but does not retry;
// retry policy belongs to the callers (the poller swallows, the stream
// listener reconnects, user actions surface the error).
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RequestError is any non-2xx response, reduced to a human-readable message.
// The message is chosen by three ordered rules: a "message" field from a
// JSON-object body, else the trimmed text body, else "HTTP <status>".
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return e.Message
}

// Client talks to one manager instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a Client for the manager at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewWithHTTPClient is used by tests to inject an httptest client.
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: hc}
}

// BaseURL reports the configured server address.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("server not reachable — is the OCR manager running? (%w)", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RequestError{Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, raw)}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// errorMessage applies the three-rule precedence chain for failure bodies:
// a non-empty "message" field from a JSON-object body wins, then a non-empty
// trimmed text body, then the generic "HTTP <status>".
func errorMessage(status int, raw []byte) string {
	fallback := fmt.Sprintf("HTTP %d", status)

	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		if text := strings.TrimSpace(string(raw)); text != "" {
			return text
		}
		return fallback
	}
	switch v := body.(type) {
	case map[string]any:
		if msg, ok := v["message"].(string); ok && msg != "" {
			return msg
		}
	case string:
		if text := strings.TrimSpace(v); text != "" {
			return text
		}
	}
	return fallback
}

// Credentials fetches the full credential list.
func (c *Client) Credentials(ctx context.Context) ([]Credential, error) {
	var out []Credential
	if err := c.do(ctx, http.MethodGet, "/api/credentials", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ScanCredentials triggers server-side key discovery and returns the
// post-scan credential list.
func (c *Client) ScanCredentials(ctx context.Context) ([]Credential, error) {
	var out []Credential
	if err := c.do(ctx, http.MethodPost, "/api/credentials/scan", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AdjustUsage overrides a credential's used-units counter. Callers validate
// the adjustment before reaching this layer.
func (c *Client) AdjustUsage(ctx context.Context, id string, adj UsageAdjustment) error {
	path := "/api/credentials/" + url.PathEscape(id) + "/usage"
	return c.do(ctx, http.MethodPatch, path, adj, nil)
}

// Jobs fetches all jobs with their nested items, in the server's
// most-recent-first order.
func (c *Client) Jobs(ctx context.Context) ([]Job, error) {
	var out []Job
	if err := c.do(ctx, http.MethodGet, "/api/jobs", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateJob submits a new job and returns its id.
func (c *Client) CreateJob(ctx context.Context, req CreateJobRequest) (string, error) {
	var out CreateJobResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs", req, &out); err != nil {
		return "", err
	}
	return out.JobID, nil
}

// StartJob asks the scheduler to begin executing a pending job.
func (c *Client) StartJob(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/start", nil, nil)
}

// StopJob asks the scheduler to stop a running job.
func (c *Client) StopJob(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/stop", nil, nil)
}

// FolderStats resolves a candidate folder and counts its supported images.
func (c *Client) FolderStats(ctx context.Context, path string) (FolderStats, error) {
	var out FolderStats
	q := "/api/folders/stats?path=" + url.QueryEscape(path)
	if err := c.do(ctx, http.MethodGet, q, nil, &out); err != nil {
		return FolderStats{}, err
	}
	return out, nil
}

// PickFolder opens the host-side native folder dialog.
func (c *Client) PickFolder(ctx context.Context) (PickFolderResult, error) {
	var out PickFolderResult
	if err := c.do(ctx, http.MethodPost, "/api/system/pick-folder", nil, &out); err != nil {
		return PickFolderResult{}, err
	}
	return out, nil
}

// ExternalLinks fetches the cloud-console shortcut URLs.
func (c *Client) ExternalLinks(ctx context.Context) (ExternalLinks, error) {
	var out ExternalLinks
	if err := c.do(ctx, http.MethodGet, "/api/meta/external-links", nil, &out); err != nil {
		return ExternalLinks{}, err
	}
	return out, nil
}

// OpenEvents opens the server-push stream. The caller owns the returned body
// and must close it; events.Listener does the line-level parsing.
func (c *Client) OpenEvents(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/events", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream outlives any sane request timeout, so it bypasses the
	// client-wide deadline and relies on ctx for teardown.
	hc := &http.Client{Transport: c.httpClient.Transport}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opening event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &RequestError{Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, raw)}
	}
	return resp.Body, nil
}
