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

// Client talks to the daemon's HTTP API. Used by the operator CLI.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for the given bind address. A bare host:port is
// promoted to an http URL.
func NewClient(address string) *Client {
	base := strings.TrimSpace(address)
	if base != "" && !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Status fetches daemon runtime information.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	var status DaemonStatus
	if err := c.get(ctx, "/api/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// FileHistory fetches the full stage trail for a file.
func (c *Client) FileHistory(ctx context.Context, fileID string) (*FileHistoryResponse, error) {
	var history FileHistoryResponse
	path := "/api/files/" + url.PathEscape(fileID) + "/history"
	if err := c.get(ctx, path, &history); err != nil {
		return nil, err
	}
	return &history, nil
}

// CompleteStage finishes the file's current stage.
func (c *Client) CompleteStage(ctx context.Context, fileID string, req CompleteRequest) (*CompleteResponse, error) {
	var result CompleteResponse
	path := "/api/files/" + url.PathEscape(fileID) + "/complete"
	if err := c.post(ctx, path, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Assign stamps a worker onto the file's open entry.
func (c *Client) Assign(ctx context.Context, fileID string, req AssignRequest) (*AssignResponse, error) {
	var result AssignResponse
	path := "/api/files/" + url.PathEscape(fileID) + "/assign"
	if err := c.post(ctx, path, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Reassign moves a file's current stage to a different worker.
func (c *Client) Reassign(ctx context.Context, fileID string, req ReassignRequest) (*ReassignResponse, error) {
	var result ReassignResponse
	path := "/api/files/" + url.PathEscape(fileID) + "/reassign"
	if err := c.post(ctx, path, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Breaches fetches the on-demand SLA report.
func (c *Client) Breaches(ctx context.Context) (*BreachListResponse, error) {
	var report BreachListResponse
	if err := c.get(ctx, "/api/breaches", &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Notifications lists a recipient's stored notifications.
func (c *Client) Notifications(ctx context.Context, recipient string, unreadOnly bool) (*NotificationListResponse, error) {
	var list NotificationListResponse
	path := "/api/notifications?recipient=" + url.QueryEscape(recipient)
	if unreadOnly {
		path += "&unread=true"
	}
	if err := c.get(ctx, path, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// MarkNotificationRead marks one notification as read.
func (c *Client) MarkNotificationRead(ctx context.Context, id, recipient string) error {
	path := "/api/notifications/" + url.PathEscape(id) + "/read?recipient=" + url.QueryEscape(recipient)
	return c.post(ctx, path, nil, nil)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("daemon api address is not configured")
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon api request: %w", err)
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
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		return fmt.Errorf("daemon api: %s (status %d)", payload.Error, resp.StatusCode)
	}
	return fmt.Errorf("daemon api: status %d", resp.StatusCode)
}
