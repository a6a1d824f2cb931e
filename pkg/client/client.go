package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Client speaks JSON over HTTP to a running sentinel daemon.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // optional logger for client operations
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a new sentinel API client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8080/api"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		client:  &http.Client{Timeout: config.Timeout},
		logger:  config.Logger,
	}
}

// Status fetches the supervisor status document.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.do(ctx, http.MethodGet, "/status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Healthz asks the daemon for one live worker probe.
func (c *Client) Healthz(ctx context.Context) (bool, error) {
	var out HealthzResponse
	err := c.do(ctx, http.MethodGet, "/healthz", &out)
	if err != nil {
		return false, err
	}
	return out.Healthy, nil
}

// Restart requests a graceful worker restart and waits for the daemon's reply.
func (c *Client) Restart(ctx context.Context) error {
	var out OKResponse
	return c.do(ctx, http.MethodPost, "/restart", &out)
}

// Stop asks the daemon to stop supervising and shut the worker down.
func (c *Client) Stop(ctx context.Context) error {
	var out OKResponse
	return c.do(ctx, http.MethodPost, "/stop", &out)
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("api request", "method", method, "url", url)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	// /healthz answers 503 with a valid body when the worker is unhealthy
	if resp.StatusCode >= 400 && !(path == "/healthz" && resp.StatusCode == http.StatusServiceUnavailable) {
		var e ErrorResponse
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("daemon error (%d): %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("daemon error: status %d", resp.StatusCode)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
