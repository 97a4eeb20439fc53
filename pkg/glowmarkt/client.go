package glowmarkt

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

const (
	maxResponseBytes = 1 << 20
)

type RestClient interface {
	Authenticate(ctx context.Context, appId, username, password string) (*AuthResponse, error)
	ListDevices(ctx context.Context, appId, token string) ([]Device, error)
	ListResources(ctx context.Context, appId, token string) ([]Resource, error)
	CurrentUsage(ctx context.Context, appId, token, resourceId string) (*CurrentUsage, error)
}

// Client is a stateless Glowmarkt API client. Application id and token are
// always passed by the caller.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DEFAULT_BASE_URL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Authenticate exchanges credentials for a token. Only 401/403 or an explicit
// valid:false are ErrInvalidAuth, every other failure is ErrCannotConnect.
func (c *Client) Authenticate(ctx context.Context, appId, username, password string) (*AuthResponse, error) {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return nil, err
	}

	status, respBody, err := c.do(ctx, http.MethodPost, "/auth", body, appId, "")
	if err != nil {
		return nil, err
	}
	if err := authStatusError(status); err != nil {
		return nil, err
	}

	var auth AuthResponse
	if err := json.Unmarshal(respBody, &auth); err != nil {
		return nil, fmt.Errorf("%w: decode auth response: %w", ErrCannotConnect, err)
	}
	if auth.Valid == nil {
		return nil, fmt.Errorf("%w: auth response without valid flag", ErrCannotConnect)
	}
	if !*auth.Valid {
		return nil, fmt.Errorf("%w: credentials rejected", ErrInvalidAuth)
	}
	if auth.Token == "" {
		return nil, fmt.Errorf("%w: auth response without token", ErrCannotConnect)
	}
	return &auth, nil
}

func (c *Client) ListDevices(ctx context.Context, appId, token string) ([]Device, error) {
	var devices []Device
	if err := c.getJSON(ctx, "/device", appId, token, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

func (c *Client) ListResources(ctx context.Context, appId, token string) ([]Resource, error) {
	var resources []Resource
	if err := c.getJSON(ctx, "/resource", appId, token, &resources); err != nil {
		return nil, err
	}
	return resources, nil
}

func (c *Client) CurrentUsage(ctx context.Context, appId, token, resourceId string) (*CurrentUsage, error) {
	var usage CurrentUsage
	path := fmt.Sprintf("/resource/%s/current", url.PathEscape(resourceId))
	if err := c.getJSON(ctx, path, appId, token, &usage); err != nil {
		return nil, err
	}
	return &usage, nil
}

// getJSON performs an authenticated GET. Any non-2xx status means the token
// was not accepted.
func (c *Client) getJSON(ctx context.Context, path, appId, token string, target any) error {
	status, body, err := c.do(ctx, http.MethodGet, path, nil, appId, token)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("%w: GET %s status %d", ErrInvalidAuth, path, status)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("%w: decode %s: %w", ErrCannotConnect, path, err)
	}
	return nil
}

// authStatusError maps a 401/403 from /auth to ErrInvalidAuth and any other
// non-2xx status to ErrCannotConnect.
func authStatusError(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: POST /auth status %d", ErrInvalidAuth, status)
	default:
		return fmt.Errorf("%w: POST /auth status %d", ErrCannotConnect, status)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, appId, token string) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("applicationId", appId)
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("token", token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s %s: %w", ErrCannotConnect, method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: read %s: %w", ErrCannotConnect, path, err)
	}
	return resp.StatusCode, respBody, nil
}

// ensure interface compliance
var _ RestClient = (*Client)(nil)
