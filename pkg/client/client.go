package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrNotReady is returned by Open while the dashboard is not ready yet.
var ErrNotReady = errors.New("dashboard not ready")

// ErrFailed is returned by WaitReady when the launcher ends in the failed state.
var ErrFailed = errors.New("launcher failed")

// Client talks to the launcher's control API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:3100/launcher",
		Timeout: 10 * time.Second,
	}
}

// New creates a new launcher API client
func New(config Config) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if the launcher is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	_, err := c.Status(ctx)
	if err != nil {
		c.logger.Debug("Launcher unreachable", "error", err)
	}
	return err == nil
}

// Status returns the current snapshot.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var s Status
	err := c.doRequest(ctx, http.MethodGet, c.baseURL+"/status", &s)
	return s, err
}

// Open asks the launcher to open the dashboard in a browser. It returns
// ErrNotReady until the launcher is ready.
func (c *Client) Open(ctx context.Context) (Status, error) {
	var s Status
	err := c.doRequest(ctx, http.MethodPost, c.baseURL+"/open", &s)
	return s, err
}

// Processes lists the processes the launcher spawned.
func (c *Client) Processes(ctx context.Context) ([]Process, error) {
	var out []Process
	err := c.doRequest(ctx, http.MethodGet, c.baseURL+"/processes", &out)
	return out, err
}

// WaitReady polls Status every interval until the launcher is ready, fails,
// or ctx is done. Transient request errors are retried.
func (c *Client) WaitReady(ctx context.Context, interval time.Duration) (Status, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last Status
	for {
		s, err := c.Status(ctx)
		if err == nil {
			last = s
			switch s.State {
			case "ready":
				return s, nil
			case "failed":
				return s, fmt.Errorf("%w: %s", ErrFailed, s.Error)
			}
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}

// doRequest performs HTTP request with common error handling and decodes a
// successful JSON response into out.
func (c *Client) doRequest(ctx context.Context, method, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("HTTP request failed", "error", err, "url", url)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
		c.logger.Error("Failed to decode error response", "status", resp.StatusCode)
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if resp.StatusCode == http.StatusConflict {
		return ErrNotReady
	}

	c.logger.Error("API request failed", "error", errorResp.Error, "status", resp.StatusCode)
	return fmt.Errorf("API error: %s", errorResp.Error)
}
