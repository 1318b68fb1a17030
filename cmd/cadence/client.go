package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cadence/internal/daemon"
	"cadence/internal/jobs"
)

// apiClient talks to the daemon's HTTP API.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

func newAPIClient(address string) *apiClient {
	base := strings.TrimSpace(address)
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &apiClient{
		baseURL:    strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *apiClient) Submit(url, format string) (*jobs.Job, error) {
	payload := map[string]string{"url": url}
	if format != "" {
		payload["format"] = format
	}
	var job jobs.Job
	if err := c.do(http.MethodPost, "/api/jobs", payload, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *apiClient) List() ([]jobs.Job, error) {
	var list []jobs.Job
	if err := c.do(http.MethodGet, "/api/jobs", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *apiClient) Get(id string) (*jobs.Job, error) {
	var job jobs.Job
	if err := c.do(http.MethodGet, "/api/jobs/"+id, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *apiClient) Cancel(id string) (*jobs.Job, error) {
	var job jobs.Job
	if err := c.do(http.MethodPost, "/api/jobs/"+id+"/cancel", nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *apiClient) Remove(id string) error {
	return c.do(http.MethodDelete, "/api/jobs/"+id, nil, nil)
}

func (c *apiClient) ClearCompleted() (int, error) {
	var resp map[string]int
	if err := c.do(http.MethodPost, "/api/jobs/clear-completed", nil, &resp); err != nil {
		return 0, err
	}
	return resp["removed"], nil
}

func (c *apiClient) JobLogs(id string) ([]jobs.LogEntry, error) {
	var entries []jobs.LogEntry
	if err := c.do(http.MethodGet, "/api/jobs/"+id+"/logs", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *apiClient) GlobalLogs() ([]jobs.LogEntry, error) {
	var entries []jobs.LogEntry
	if err := c.do(http.MethodGet, "/api/logs", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *apiClient) Status() (*daemon.Status, error) {
	var status daemon.Status
	if err := c.do(http.MethodGet, "/api/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *apiClient) do(method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("is the cadence daemon running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
		return fmt.Errorf("%s", payload.Error)
	}
	return fmt.Errorf("daemon returned %s", resp.Status)
}
