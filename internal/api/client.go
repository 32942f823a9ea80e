// Package api is the HTTP client for the teenguard backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/yahdeeez/teenguard/internal/domain"
)

// Error is a non-2xx backend response. Detail carries the backend's error
// string when present, for direct user display.
type Error struct {
	StatusCode int
	Detail     string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// AuthResponse is the login/register result.
type AuthResponse struct {
	Token  string        `json:"token"`
	Parent domain.Parent `json:"parent"`
}

// Client talks JSON to the backend under a fixed /api base path. The bearer
// token from login is attached to all subsequent authenticated calls.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger

	mu    sync.RWMutex
	token string
}

// NewClient creates a backend client. baseURL is the server root, without
// the /api suffix.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		logger:  logger,
	}
}

// SetToken installs a bearer token (e.g. one restored from the local store).
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token, empty if unauthenticated.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Login authenticates a parent account and keeps the returned token.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	body := map[string]string{"email": email, "password": password}
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &resp, false); err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

// Register creates a parent account and keeps the returned token.
func (c *Client) Register(ctx context.Context, email, password, name string) (*AuthResponse, error) {
	body := map[string]string{"email": email, "password": password, "name": name}
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", body, &resp, false); err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

// Teens lists the monitored-subject profiles of the authenticated parent.
func (c *Client) Teens(ctx context.Context) ([]domain.Teen, error) {
	var teens []domain.Teen
	if err := c.do(ctx, http.MethodGet, "/api/teens", nil, &teens, true); err != nil {
		return nil, err
	}
	return teens, nil
}

// CreateTeen registers a new monitored-subject profile.
func (c *Client) CreateTeen(ctx context.Context, name, deviceID string) (*domain.Teen, error) {
	body := map[string]string{"name": name, "device_id": deviceID}
	var teen domain.Teen
	if err := c.do(ctx, http.MethodPost, "/api/teens", body, &teen, true); err != nil {
		return nil, err
	}
	return &teen, nil
}

// Dashboard fetches one full aggregated snapshot for a teen.
func (c *Client) Dashboard(ctx context.Context, teenID string) (*domain.DashboardSnapshot, error) {
	var snap domain.DashboardSnapshot
	if err := c.do(ctx, http.MethodGet, "/api/dashboard/"+teenID, nil, &snap, true); err != nil {
		return nil, err
	}
	return &snap, nil
}

// TeenLocations fetches recent locations, most-recent-first.
func (c *Client) TeenLocations(ctx context.Context, teenID string, limit int) ([]domain.Location, error) {
	var locs []domain.Location
	path := fmt.Sprintf("/api/teens/%s/locations?limit=%d", teenID, limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &locs, true); err != nil {
		return nil, err
	}
	return locs, nil
}

// Alerts fetches the parent's alerts, newest first.
func (c *Client) Alerts(ctx context.Context, unreadOnly bool) ([]domain.Alert, error) {
	path := "/api/alerts"
	if unreadOnly {
		path += "?unread_only=true"
	}
	var alerts []domain.Alert
	if err := c.do(ctx, http.MethodGet, path, nil, &alerts, true); err != nil {
		return nil, err
	}
	return alerts, nil
}

// MarkAlertRead acknowledges one alert.
func (c *Client) MarkAlertRead(ctx context.Context, alertID string) error {
	return c.do(ctx, http.MethodPut, "/api/alerts/"+alertID+"/read", nil, nil, true)
}

// do issues one JSON request. Non-2xx responses are returned as *Error with
// the backend's detail string when the body carries one.
func (c *Client) do(ctx context.Context, method, path string, body, out any, authed bool) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		token := c.Token()
		if token == "" {
			return &Error{StatusCode: http.StatusUnauthorized, Detail: "not logged in"}
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{StatusCode: resp.StatusCode, Detail: errorDetail(data)}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// errorDetail extracts the backend's error string from a response body.
func errorDetail(data []byte) string {
	var body struct {
		Detail string `json:"detail"`
		Err    string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	if body.Detail != "" {
		return body.Detail
	}
	return body.Err
}
