package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// fakeDaemon emulates the control API surface the client talks to.
func fakeDaemon(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(StatusResponse{
			State:     "monitoring",
			HealthURL: "http://localhost:5001/health",
			Worker: WorkerStatus{
				Name:      "svc",
				Running:   true,
				PID:       4242,
				StartedAt: time.Now(),
				Restarts:  1,
			},
		})
	})
	mux.HandleFunc("/api/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(HealthzResponse{Healthy: false})
	})
	mux.HandleFunc("/api/restart", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_ = json.NewEncoder(w).Encode(OKResponse{OK: true})
	})
	mux.HandleFunc("/api/stop", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "shutdown already in progress"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientStatus(t *testing.T) {
	srv := fakeDaemon(t)
	c := New(Config{BaseURL: srv.URL + "/api"})

	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.State != "monitoring" || st.Worker.PID != 4242 || st.Worker.Restarts != 1 {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestClientHealthzTolerates503(t *testing.T) {
	srv := fakeDaemon(t)
	c := New(Config{BaseURL: srv.URL + "/api"})

	healthy, err := c.Healthz(context.Background())
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	if healthy {
		t.Fatalf("expected unhealthy report")
	}
}

func TestClientRestart(t *testing.T) {
	srv := fakeDaemon(t)
	c := New(Config{BaseURL: srv.URL + "/api"})
	if err := c.Restart(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
}

func TestClientErrorResponse(t *testing.T) {
	srv := fakeDaemon(t)
	c := New(Config{BaseURL: srv.URL + "/api"})
	err := c.Stop(context.Background())
	if err == nil {
		t.Fatalf("expected daemon error")
	}
	if !strings.Contains(err.Error(), "shutdown already in progress") {
		t.Fatalf("error body not surfaced: %v", err)
	}
}

func TestClientConnectionError(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1/api", Timeout: 500 * time.Millisecond})
	if _, err := c.Status(context.Background()); err == nil {
		t.Fatalf("expected connection error")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.BaseURL != "http://localhost:8080/api" || cfg.Timeout != 10*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}
