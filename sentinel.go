// Package sentinel supervises a single external worker process: it
// starts the worker, waits for its HTTP health endpoint to report
// healthy, monitors it, restarts it on crash or failed health check, and
// shuts it down gracefully.
package sentinel

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/sentinel/internal/config"
	"github.com/loykin/sentinel/internal/health"
	"github.com/loykin/sentinel/internal/history"
	"github.com/loykin/sentinel/internal/history/factory"
	"github.com/loykin/sentinel/internal/metrics"
	iapi "github.com/loykin/sentinel/internal/server"
	"github.com/loykin/sentinel/internal/supervisor"
	"github.com/loykin/sentinel/internal/worker"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = worker.Spec

type WorkerStatus = worker.Status

type Options = supervisor.Options

type State = supervisor.State

type Status = supervisor.Status

type HistorySink = history.Sink

// Failure classes returned by Run.
var (
	ErrStartFailed    = supervisor.ErrStartFailed
	ErrStartupTimeout = supervisor.ErrStartupTimeout
	ErrRestartFailed  = supervisor.ErrRestartFailed
)

// Supervisor is a thin facade over the internal supervisor.
// It provides a stable public API for embedding.
type Supervisor struct{ inner *supervisor.Supervisor }

// New builds a supervisor for spec whose worker exposes its health at
// healthURL. Zero fields in opts take defaults.
func New(spec Spec, healthURL string, opts Options) *Supervisor {
	return NewWithLogger(spec, healthURL, opts, slog.Default())
}

// NewWithLogger is New with an explicit logger.
func NewWithLogger(spec Spec, healthURL string, opts Options, logger *slog.Logger) *Supervisor {
	checker := health.New(healthURL, opts.ProbeTimeout, logger)
	return &Supervisor{inner: supervisor.New(spec, checker, opts, logger, nil)}
}

func (s *Supervisor) Run(ctx context.Context) error { return s.inner.Run(ctx) }
func (s *Supervisor) Start() error                  { return s.inner.Start() }

func (s *Supervisor) CheckHealth(ctx context.Context) bool {
	return s.inner.CheckHealth(ctx)
}

func (s *Supervisor) WaitForStartup(ctx context.Context) bool {
	return s.inner.WaitForStartup(ctx)
}

func (s *Supervisor) Monitor(ctx context.Context) error { return s.inner.Monitor(ctx) }
func (s *Supervisor) Restart(ctx context.Context) error { return s.inner.Restart(ctx, "api") }
func (s *Supervisor) Shutdown()                         { s.inner.Shutdown() }
func (s *Supervisor) Status() Status                    { return s.inner.Status() }
func (s *Supervisor) SetEnv(env []string)               { s.inner.SetEnv(env) }
func (s *Supervisor) SetHistorySink(sink HistorySink)   { s.inner.SetSink(sink) }

// NewHistorySink builds a history sink from a DSN
// (sqlite path, postgres:// or clickhouse://).
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// LoadConfig parses the unified TOML configuration.
func LoadConfig(path string) (*cfg.Config, error) { return cfg.Load(path) }

// NewHTTPServer starts the control API server for the given supervisor.
func NewHTTPServer(addr, basePath string, s *Supervisor) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, s.inner)
}

// NewHTTPHandler returns the control API handler for mounting in an
// existing server (gin, echo, net/http).
func NewHTTPHandler(basePath string, s *Supervisor) http.Handler {
	return iapi.NewRouter(s.inner, basePath).Handler()
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It returns any immediate listen error; otherwise it
// runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
