package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/sentinel/internal/health"
	"github.com/loykin/sentinel/internal/history"
	"github.com/loykin/sentinel/internal/metrics"
	"github.com/loykin/sentinel/internal/worker"
)

// State identifies where the supervisor is in its lifecycle.
type State string

const (
	StateIdle         State = "idle"
	StateStarting     State = "starting"
	StateReady        State = "ready"
	StateMonitoring   State = "monitoring"
	StateRestarting   State = "restarting"
	StateShuttingDown State = "shutting_down"
	StateStopped      State = "stopped"
)

// Failure classes surfaced by Run. Health probe failures never appear
// here; they are plain booleans at the CheckHealth boundary.
var (
	ErrStartFailed    = errors.New("worker start failed")
	ErrStartupTimeout = errors.New("worker did not become healthy within the startup window")
	ErrRestartFailed  = errors.New("worker restart failed")
)

// Options tune the supervision timing. Zero values take defaults.
type Options struct {
	ProbeTimeout    time.Duration // per health probe (default 5s)
	StartupMaxWait  int           // startup probe attempts, one per PollInterval (default 30)
	PollInterval    time.Duration // interval between startup probes (default 1s)
	MonitorInterval time.Duration // interval between monitor iterations (default 10s)
	GracePeriod     time.Duration // SIGTERM-to-SIGKILL window for an unhealthy worker (default 2s)
	ShutdownTimeout time.Duration // SIGTERM-to-SIGKILL window at shutdown (default 10s)
	ErrorBackoff    time.Duration // pause after a panicked monitor iteration (default 5s)
}

func (o Options) withDefaults() Options {
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = 5 * time.Second
	}
	if o.StartupMaxWait <= 0 {
		o.StartupMaxWait = 30
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.MonitorInterval <= 0 {
		o.MonitorInterval = 10 * time.Second
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = 2 * time.Second
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 10 * time.Second
	}
	if o.ErrorBackoff <= 0 {
		o.ErrorBackoff = 5 * time.Second
	}
	return o
}

// Status is the externally visible view of the supervisor.
type Status struct {
	State     State         `json:"state"`
	HealthURL string        `json:"health_url"`
	Worker    worker.Status `json:"worker"`
}

// Supervisor owns the lifecycle of exactly one worker process: start it,
// wait until its health endpoint reports healthy, monitor it, restart it
// on crash or failed health check, and stop it cleanly on shutdown.
// At most one live worker handle exists at any time: Start, Restart and
// Shutdown are serialized through opMu, so control API calls arriving on
// server goroutines cannot interleave with the monitor loop's restarts.
type Supervisor struct {
	w       *worker.Worker
	checker *health.Checker
	opts    Options
	logger  *slog.Logger
	sink    history.Sink
	env     []string

	opMu sync.Mutex // serializes Start, Restart and Shutdown

	mu       sync.Mutex
	state    State
	running  bool
	shutDown bool
}

// New builds a supervisor for the given worker spec. sink may be nil to
// disable history export; env overrides the worker environment when set.
func New(spec worker.Spec, checker *health.Checker, opts Options, logger *slog.Logger, sink history.Sink) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		w:       worker.New(spec),
		checker: checker,
		opts:    opts.withDefaults(),
		logger:  logger.With("worker", spec.Name),
		sink:    sink,
		state:   StateIdle,
	}
}

// SetEnv replaces the merged environment passed to the worker on start.
func (s *Supervisor) SetEnv(env []string) {
	s.mu.Lock()
	s.env = env
	s.mu.Unlock()
}

// SetSink installs (or replaces) the history sink.
func (s *Supervisor) SetSink(sink history.Sink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns a snapshot of supervisor state and worker status.
func (s *Supervisor) Status() Status {
	return Status{
		State:     s.State(),
		HealthURL: s.checker.URL(),
		Worker:    s.w.Snapshot(),
	}
}

func (s *Supervisor) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	name := s.w.Spec().Name
	s.mu.Unlock()
	if prev == next {
		return
	}
	metrics.RecordStateTransition(name, string(prev), string(next))
	metrics.SetCurrentState(name, string(prev), false)
	metrics.SetCurrentState(name, string(next), true)
	s.logger.Debug("state transition", "from", string(prev), "to", string(next))
}

func (s *Supervisor) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start spawns the worker. Idempotent: when a live handle exists it
// returns nil immediately. Launch failures are logged and returned,
// never panicked.
func (s *Supervisor) Start() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.start()
}

func (s *Supervisor) start() error {
	if s.w.Alive() {
		s.logger.Info("worker already running", "pid", s.w.PID())
		return nil
	}
	spec := s.w.Spec()
	s.logger.Info("starting worker", "command", spec.Command)

	s.mu.Lock()
	env := s.env
	s.mu.Unlock()

	if err := s.w.Start(env); err != nil {
		if errors.Is(err, worker.ErrAlreadyRunning) {
			return nil
		}
		s.logger.Error("failed to start worker", "error", err)
		return fmt.Errorf("%w: %v", ErrStartFailed, err)
	}
	s.logger.Info("worker started", "pid", s.w.PID())
	metrics.IncStart(spec.Name)
	s.record(history.EventStart)
	return nil
}

// CheckHealth performs one bounded health probe against the worker.
func (s *Supervisor) CheckHealth(ctx context.Context) bool {
	begin := time.Now()
	ok := s.checker.Check(ctx)
	metrics.ObserveProbeDuration(s.w.Spec().Name, time.Since(begin).Seconds())
	return ok
}

// WaitForStartup polls the health endpoint once per poll interval, up to
// StartupMaxWait attempts. It returns true on the first healthy probe and
// false early when the worker process has already exited, so a dead
// worker never makes the caller sit out the full window.
func (s *Supervisor) WaitForStartup(ctx context.Context) bool {
	s.logger.Info("waiting for worker to become ready")
	for i := 0; i < s.opts.StartupMaxWait; i++ {
		if s.CheckHealth(ctx) {
			s.logger.Info("worker is healthy and ready")
			return true
		}
		if s.w.Exited() {
			s.logger.Warn("worker process died during startup")
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(s.opts.PollInterval):
		}
	}
	s.logger.Warn("worker failed to become healthy within timeout",
		"attempts", s.opts.StartupMaxWait)
	return false
}

// Restart reaps the current worker run if needed and brings up a fresh
// one, waiting for it to report healthy. Used by the monitor loop and by
// the control API; overlapping calls run one at a time.
func (s *Supervisor) Restart(ctx context.Context, reason string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.restart(ctx, reason)
}

func (s *Supervisor) restart(ctx context.Context, reason string) error {
	s.setState(StateRestarting)
	name := s.w.Spec().Name

	if s.w.Alive() {
		_ = s.w.Stop(s.opts.GracePeriod)
	}

	s.w.IncRestarts()
	metrics.IncRestart(name, reason)
	s.record(history.EventRestart)

	if err := s.start(); err != nil {
		return fmt.Errorf("%w: %v", ErrRestartFailed, err)
	}
	if !s.WaitForStartup(ctx) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrRestartFailed
	}
	s.setState(StateMonitoring)
	return nil
}

// Monitor blocks, watching the worker until ctx is cancelled, Shutdown is
// requested, or a restart attempt fails (the supervisor gives up rather
// than spin-restart indefinitely). A panic in one iteration never kills
// the loop; it is logged and the loop resumes after a short backoff.
func (s *Supervisor) Monitor(ctx context.Context) error {
	s.logger.Info("monitoring worker", "interval", s.opts.MonitorInterval)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if !s.isRunning() {
			return nil
		}

		err, panicked := s.monitorOnce(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			s.logger.Error("giving up: restart failed", "error", err)
			return err
		}
		if panicked {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.opts.ErrorBackoff):
			}
		}
	}
}

// monitorOnce runs a single monitor iteration. panicked reports that the
// iteration blew up and the caller should back off before the next one.
func (s *Supervisor) monitorOnce(ctx context.Context) (err error, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("monitor iteration panicked", "panic", r)
			err = nil
			panicked = true
		}
	}()

	switch {
	case s.w.Exited():
		st := s.w.Snapshot()
		s.logger.Warn("worker process died, restarting", "pid", st.PID, "exit_error", st.ExitErr)
		s.record(history.EventStop)
		metrics.IncStop(s.w.Spec().Name)
		if err := s.Restart(ctx, "crash"); err != nil {
			return err, false
		}
	case !s.CheckHealth(ctx):
		metrics.IncProbeFailure(s.w.Spec().Name)
		s.logger.Warn("worker health check failed, restarting", "pid", s.w.PID())
		s.record(history.EventUnhealthy)
		if err := s.Restart(ctx, "unhealthy"); err != nil {
			return err, false
		}
	default:
		select {
		case <-ctx.Done():
		case <-time.After(s.opts.MonitorInterval):
		}
	}
	return nil, false
}

// Shutdown stops supervision and terminates the worker with the
// two-phase policy (SIGTERM, bounded wait, SIGKILL). Idempotent: calling
// it again, or with no worker spawned, is a no-op. A worker whose exit
// was already reaped gets no second stop record; the stop here covers
// only the process Shutdown itself terminates.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	s.running = false
	already := s.shutDown
	s.shutDown = true
	s.mu.Unlock()
	if already {
		return
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.setState(StateShuttingDown)
	if s.w.Alive() {
		s.logger.Info("shutting down worker", "pid", s.w.PID())
		_ = s.w.Stop(s.opts.ShutdownTimeout)
		metrics.IncStop(s.w.Spec().Name)
		s.record(history.EventStop)
		s.logger.Info("worker shutdown complete")
	}
	s.w.RemovePIDFile()
	s.setState(StateStopped)
}

// Run is the supervisor entry point: start, wait for the worker to
// become healthy, then monitor. Shutdown runs on every exit path. The
// returned error identifies the failing phase (launch, startup wait, or
// restart); nil means a clean, signal-driven exit.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	defer s.Shutdown()

	s.setState(StateStarting)
	if err := s.Start(); err != nil {
		return err
	}
	if !s.WaitForStartup(ctx) {
		if ctx.Err() != nil {
			return nil
		}
		return ErrStartupTimeout
	}
	s.setState(StateReady)
	s.logger.Info("worker is running and healthy", "health_url", s.checker.URL())

	s.setState(StateMonitoring)
	return s.Monitor(ctx)
}

// record exports a lifecycle event to the history sink; sink errors are
// logged and never affect supervision.
func (s *Supervisor) record(t history.EventType) {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink == nil {
		return
	}
	st := s.w.Snapshot()
	rec := history.Record{
		Name:      st.Name,
		PID:       st.PID,
		StartedAt: st.StartedAt,
		StoppedAt: st.StoppedAt,
		Restarts:  st.Restarts,
	}
	if st.ExitErr != nil {
		rec.ExitErr = st.ExitErr.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sink.Send(ctx, history.Event{Type: t, OccurredAt: time.Now(), Record: rec}); err != nil {
		s.logger.Warn("history sink send failed", "type", string(t), "error", err)
	}
}
