package client

import "time"

// StatusResponse mirrors the daemon's /status document.
type StatusResponse struct {
	State     string       `json:"state"`
	HealthURL string       `json:"health_url"`
	Worker    WorkerStatus `json:"worker"`
}

// WorkerStatus is the worker part of the status document.
type WorkerStatus struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at"`
	Restarts  int       `json:"restarts"`
}

// HealthzResponse mirrors /healthz.
type HealthzResponse struct {
	Healthy bool `json:"healthy"`
}

// OKResponse is the generic success reply.
type OKResponse struct {
	OK bool `json:"ok"`
}

// ErrorResponse is the generic failure reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
