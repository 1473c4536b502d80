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

// Client talks to a running daemon's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// APIError is a non-2xx response decoded from the error payload.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Kind)
	}
	return e.Message
}

// NewClient builds a client for the daemon at addr (host:port).
func NewClient(addr string) *Client {
	return &Client{
		baseURL: "http://" + strings.TrimPrefix(addr, "http://"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Health checks the daemon is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// Tag applies a tag edit.
func (c *Client) Tag(ctx context.Context, req TagRequest) (SampleView, error) {
	var view SampleView
	err := c.do(ctx, http.MethodPost, "/api/v1/tags", req, &view)
	return view, err
}

// SetFields writes fields on one sample.
func (c *Client) SetFields(ctx context.Context, req FieldRequest) (SampleView, error) {
	var view SampleView
	err := c.do(ctx, http.MethodPost, "/api/v1/fields", req, &view)
	return view, err
}

// BulkSetFields assigns fields across many samples.
func (c *Client) BulkSetFields(ctx context.Context, req BulkFieldRequest) ([]BulkFieldResult, error) {
	var results []BulkFieldResult
	err := c.do(ctx, http.MethodPost, "/api/v1/fields/bulk", req, &results)
	return results, err
}

// ListSamples returns every sample.
func (c *Client) ListSamples(ctx context.Context) ([]SampleView, error) {
	var samples []SampleView
	err := c.do(ctx, http.MethodGet, "/api/v1/samples", nil, &samples)
	return samples, err
}

// GetSample fetches one sample.
func (c *Client) GetSample(ctx context.Context, sampleID string) (SampleView, error) {
	var view SampleView
	err := c.do(ctx, http.MethodGet, "/api/v1/samples/"+escapePath(sampleID), nil, &view)
	return view, err
}

// Conflicts returns a sample's conflict history.
func (c *Client) Conflicts(ctx context.Context, sampleID string) ([]ConflictView, error) {
	var views []ConflictView
	err := c.do(ctx, http.MethodGet, "/api/v1/samples/"+escapePath(sampleID)+"/conflicts", nil, &views)
	return views, err
}

type selectionPayload struct {
	SampleIDs []string `json:"sample_ids"`
}

type selectionCount struct {
	Count int `json:"count"`
}

// Select adds samples to a session's selection.
func (c *Client) Select(ctx context.Context, sessionID string, sampleIDs []string) (int, error) {
	var resp selectionCount
	err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+url.PathEscape(sessionID)+"/selection", selectionPayload{SampleIDs: sampleIDs}, &resp)
	return resp.Count, err
}

// Deselect removes samples from a session's selection.
func (c *Client) Deselect(ctx context.Context, sessionID string, sampleIDs []string) (int, error) {
	var resp selectionCount
	err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+url.PathEscape(sessionID)+"/selection/remove", selectionPayload{SampleIDs: sampleIDs}, &resp)
	return resp.Count, err
}

// ClearSelection empties a session's selection.
func (c *Client) ClearSelection(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/sessions/"+url.PathEscape(sessionID)+"/selection", nil, nil)
}

// Selection lists a session's selected sample ids.
func (c *Client) Selection(ctx context.Context, sessionID string) ([]string, error) {
	var resp struct {
		SampleIDs []string `json:"sample_ids"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/sessions/"+url.PathEscape(sessionID)+"/selection", nil, &resp)
	return resp.SampleIDs, err
}

type exportPayload struct {
	SessionID string `json:"session_id"`
	Format    string `json:"format"`
}

// Export queues an export job for the session's selection.
func (c *Client) Export(ctx context.Context, sessionID, format string) (JobView, error) {
	var job JobView
	err := c.do(ctx, http.MethodPost, "/api/v1/exports", exportPayload{SessionID: sessionID, Format: format}, &job)
	return job, err
}

// Sync queues a media library sync job.
func (c *Client) Sync(ctx context.Context) (JobView, error) {
	var job JobView
	err := c.do(ctx, http.MethodPost, "/api/v1/sync", struct{}{}, &job)
	return job, err
}

// ListJobs returns all jobs, newest first.
func (c *Client) ListJobs(ctx context.Context) ([]JobView, error) {
	var views []JobView
	err := c.do(ctx, http.MethodGet, "/api/v1/jobs", nil, &views)
	return views, err
}

// JobStatus returns one job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (JobView, error) {
	var job JobView
	err := c.do(ctx, http.MethodGet, "/api/v1/jobs/"+url.PathEscape(jobID), nil, &job)
	return job, err
}

// CancelJob stops a job.
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/jobs/"+url.PathEscape(jobID)+"/cancel", struct{}{}, nil)
}

// PauseJob pauses a running job.
func (c *Client) PauseJob(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/jobs/"+url.PathEscape(jobID)+"/pause", struct{}{}, nil)
}

// ResumeJob resumes a paused job.
func (c *Client) ResumeJob(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/jobs/"+url.PathEscape(jobID)+"/resume", struct{}{}, nil)
}

// Formats lists registered export formats.
func (c *Client) Formats(ctx context.Context) ([]string, error) {
	var resp struct {
		Formats []string `json:"formats"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/formats", nil, &resp)
	return resp.Formats, err
}

func (c *Client) do(ctx context.Context, method, path string, payload, result any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		message := resp.Status
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errBody); decodeErr == nil && errBody.Error != "" {
			message = errBody.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Kind: errBody.Kind, Message: message}
	}

	if result == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

// escapePath escapes a sample id for use in a URL path while keeping the
// slashes that are part of the id.
func escapePath(sampleID string) string {
	parts := strings.Split(sampleID, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
