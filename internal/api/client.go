package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"encodesync/internal/broadcast"
	"encodesync/internal/services"
)

// Error is a non-2xx API response.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned %d", e.StatusCode)
	}
	return e.Message
}

// Unwrap maps the HTTP status onto the matching services marker.
func (e *Error) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return services.ErrValidation
	case http.StatusUnauthorized:
		return services.ErrAuthentication
	case http.StatusNotFound:
		return services.ErrNotFound
	case http.StatusConflict:
		return services.ErrInvalidState
	case http.StatusServiceUnavailable:
		return services.ErrServiceUnavailable
	case http.StatusGatewayTimeout:
		return services.ErrTimeout
	default:
		return nil
	}
}

// Client talks to the daemon HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client for the daemon at baseURL.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Health reports whether the daemon answers /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// Status retrieves the daemon status.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	var resp DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListAssets returns assets, optionally filtered by status.
func (c *Client) ListAssets(ctx context.Context, statuses ...string) ([]Asset, error) {
	query := url.Values{}
	for _, status := range statuses {
		if status = strings.TrimSpace(status); status != "" {
			query.Add("status", status)
		}
	}
	path := "/api/assets"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var resp AssetListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Assets, nil
}

// GetAsset returns a single asset.
func (c *Client) GetAsset(ctx context.Context, id string) (*Asset, error) {
	var resp AssetResponse
	if err := c.do(ctx, http.MethodGet, assetPath(id, ""), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Asset, nil
}

// CreateAsset creates a draft asset.
func (c *Client) CreateAsset(ctx context.Context, req CreateAssetRequest) (*Asset, error) {
	var resp AssetResponse
	if err := c.do(ctx, http.MethodPost, "/api/assets", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Asset, nil
}

// Submit starts an encoding job for the asset.
func (c *Client) Submit(ctx context.Context, id, sourceKey string) (*JobResponse, error) {
	var resp JobResponse
	if err := c.do(ctx, http.MethodPost, assetPath(id, "submit"), SubmitRequest{SourceKey: sourceKey}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cancel asks the encoder to cancel the asset's current job.
func (c *Client) Cancel(ctx context.Context, id string) (*JobResponse, error) {
	var resp JobResponse
	if err := c.do(ctx, http.MethodPost, assetPath(id, "cancel"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification asks the daemon to send a test notification.
func (c *Client) TestNotification(ctx context.Context) (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.do(ctx, http.MethodPost, "/api/notifications/test", nil, &resp); err != nil {
		return &resp, err
	}
	return &resp, nil
}

// TailLogs fetches daemon log lines. A negative offset returns the last
// lines; otherwise lines after offset, waiting up to wait for new ones.
func (c *Client) TailLogs(ctx context.Context, offset int64, lines int, wait time.Duration) (*LogTailResponse, error) {
	query := url.Values{}
	query.Set("lines", strconv.Itoa(lines))
	if offset >= 0 {
		query.Set("offset", strconv.FormatInt(offset, 10))
	}
	if wait > 0 {
		query.Set("wait", strconv.Itoa(int(wait/time.Second)))
	}
	var resp LogTailResponse
	if err := c.do(ctx, http.MethodGet, "/api/logs?"+query.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Follow streams status snapshots for an asset until ctx ends, the daemon
// closes the stream, or fn returns an error. The stream has no client
// timeout.
func (c *Client) Follow(ctx context.Context, id string, fn func(broadcast.Snapshot) error) error {
	req, err := c.newRequest(ctx, http.MethodGet, assetPath(id, "events"), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	streaming := &http.Client{Transport: c.http.Transport}
	resp, err := streaming.Do(req)
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	var data bytes.Buffer
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case line == "" && data.Len() > 0:
			var snapshot broadcast.Snapshot
			if err := json.Unmarshal(data.Bytes(), &snapshot); err != nil {
				return fmt.Errorf("decode snapshot: %w", err)
			}
			data.Reset()
			if err := fn(snapshot); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("read event stream: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &Error{StatusCode: resp.StatusCode}
	var payload ErrorResponse
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		apiErr.Message = payload.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

func assetPath(id, action string) string {
	path := "/api/assets/" + url.PathEscape(id)
	if action != "" {
		path += "/" + action
	}
	return path
}
