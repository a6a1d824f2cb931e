package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/sentinel/internal/supervisor"
)

// Router provides embeddable HTTP handlers for the supervisor control API.
// Endpoints:
//
//	GET  {basePath}/status   : supervisor state + worker status
//	GET  {basePath}/healthz  : proxies one live probe of the worker
//	POST {basePath}/restart  : graceful restart, waits for the worker to report healthy
//	POST {basePath}/stop     : stop supervision; the monitor loop drains and exits
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	sup      *supervisor.Supervisor
	basePath string
}

// NewRouter constructs a Router with a configurable basePath.
// Example basePath: "/api" results in /api/status, /api/restart, /api/stop.
func NewRouter(sup *supervisor.Supervisor, basePath string) *Router {
	return &Router{sup: sup, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in
// any server or mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/healthz", r.handleHealthz)
	group.POST("/restart", r.handleRestart)
	group.POST("/stop", r.handleStop)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Call Close on the returned server to shut it down.
func NewServer(addr, basePath string, sup *supervisor.Supervisor) (*http.Server, error) {
	r := NewRouter(sup, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type healthzResp struct {
	Healthy bool `json:"healthy"`
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.sup.Status())
}

func (r *Router) handleHealthz(c *gin.Context) {
	ok := r.sup.CheckHealth(c.Request.Context())
	code := http.StatusOK
	if !ok {
		code = http.StatusServiceUnavailable
	}
	writeJSON(c, code, healthzResp{Healthy: ok})
}

func (r *Router) handleRestart(c *gin.Context) {
	if err := r.sup.Restart(c.Request.Context(), "api"); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStop(c *gin.Context) {
	r.sup.Shutdown()
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
