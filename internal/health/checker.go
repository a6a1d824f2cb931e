package health

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single probe when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// StatusHealthy is the only payload status accepted as healthy.
const StatusHealthy = "healthy"

// Checker probes the worker's HTTP health endpoint. A probe succeeds only
// when the request completes with a 2xx status and the JSON payload's
// "status" field equals "healthy". Every other outcome (connection error,
// timeout, non-2xx, malformed payload, other status strings) is simply
// unhealthy; errors never cross this boundary.
type Checker struct {
	url     string
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
}

type healthPayload struct {
	Status string `json:"status"`
}

func New(url string, timeout time.Duration, logger *slog.Logger) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		url:     url,
		timeout: timeout,
		client:  &http.Client{},
		logger:  logger,
	}
}

func (c *Checker) URL() string { return c.url }

// Check performs one bounded probe. The result is recomputed on every
// call, never cached.
func (c *Checker) Check(ctx context.Context) bool {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodGet, c.url, nil)
	if err != nil {
		c.logger.Debug("health probe: bad request", "url", c.url, "error", err)
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("health probe failed", "url", c.url, "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("health probe: unexpected status", "url", c.url, "code", resp.StatusCode)
		return false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.logger.Debug("health probe: read failed", "url", c.url, "error", err)
		return false
	}
	var p healthPayload
	if err := json.Unmarshal(body, &p); err != nil {
		c.logger.Debug("health probe: malformed payload", "url", c.url, "error", err)
		return false
	}
	return p.Status == StatusHealthy
}
