//go:build !windows

package worker

import (
	"bytes"
	"errors"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// ErrAlreadyRunning is returned by Start when a live run is still owned.
var ErrAlreadyRunning = errors.New("worker already running")

// Worker is the handle to the single supervised child process. It is
// owned by exactly one supervisor; a new run may only be started after
// the previous one has been reaped.
type Worker struct {
	spec     Spec
	mu       sync.Mutex
	starting bool // a spawn is in flight; blocks concurrent Start
	cmd      *exec.Cmd
	status   Status
	restarts int
	outW     io.WriteCloser
	errW     io.WriteCloser
	waitDone chan struct{} // closed by the reaper when cmd.Wait returns
}

func New(spec Spec) *Worker { return &Worker{spec: spec} }

func (w *Worker) Spec() Spec {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.spec
}

// Start spawns a new run of the worker. The child gets its own process
// group so that Stop/Kill can signal the whole tree. Captured stdio goes
// to the configured rotating log files, or /dev/null when unconfigured.
// Exactly one reaper goroutine per run performs cmd.Wait. The starting
// flag is held across the check-then-spawn window so overlapping Start
// calls cannot both pass the liveness check and register two children.
func (w *Worker) Start(mergedEnv []string) error {
	w.mu.Lock()
	if w.starting {
		w.mu.Unlock()
		return ErrAlreadyRunning
	}
	w.starting = true
	spec := w.spec
	w.mu.Unlock()

	if w.Alive() {
		w.clearStarting()
		return ErrAlreadyRunning
	}

	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if len(mergedEnv) > 0 {
		cmd.Env = mergedEnv
	} else if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if spec.Log.Dir != "" || spec.Log.StdoutPath != "" || spec.Log.StderrPath != "" {
		if spec.Log.Dir != "" {
			_ = os.MkdirAll(spec.Log.Dir, 0o750)
		}
		outW, errW, _ := spec.Log.Writers(spec.Name)
		if outW != nil {
			cmd.Stdout = outW
		} else {
			cmd.Stdout, _ = os.OpenFile(os.DevNull, os.O_RDWR, 0)
		}
		if errW != nil {
			cmd.Stderr = errW
		} else {
			cmd.Stderr, _ = os.OpenFile(os.DevNull, os.O_RDWR, 0)
		}
		w.mu.Lock()
		w.outW, w.errW = outW, errW
		w.mu.Unlock()
	} else {
		null, _ := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		cmd.Stdout = null
		cmd.Stderr = null
	}

	if err := cmd.Start(); err != nil {
		w.closeWriters()
		w.clearStarting()
		return err
	}

	w.mu.Lock()
	w.starting = false
	w.cmd = cmd
	w.waitDone = make(chan struct{})
	w.status.Name = spec.Name
	w.status.Running = true
	w.status.PID = cmd.Process.Pid
	w.status.StartedAt = time.Now()
	w.status.StoppedAt = time.Time{}
	w.status.ExitErr = nil
	w.status.Restarts = w.restarts
	wd := w.waitDone
	w.mu.Unlock()

	w.writePIDFile()
	go w.reap(cmd, wd)
	return nil
}

// reap is the single waiter for one run. It records the exit result,
// closes log writers, and releases anyone blocked on WaitDone.
func (w *Worker) reap(cmd *exec.Cmd, wd chan struct{}) {
	err := cmd.Wait()
	w.mu.Lock()
	w.status.Running = false
	w.status.StoppedAt = time.Now()
	w.status.ExitErr = err
	w.mu.Unlock()
	w.closeWriters()
	close(wd)
}

// WaitDone returns the channel closed when the current run has been
// reaped, or nil when no run was ever started.
func (w *Worker) WaitDone() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.waitDone
}

// Exited reports, without blocking, whether the current run has ended.
// True when no run was started or the reaper has already collected it.
func (w *Worker) Exited() bool {
	w.mu.Lock()
	wd := w.waitDone
	w.mu.Unlock()
	if wd == nil {
		return true
	}
	select {
	case <-wd:
		return true
	default:
		return false
	}
}

// PID returns the pid of the current run, or 0.
func (w *Worker) PID() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cmd != nil && w.cmd.Process != nil {
		return w.cmd.Process.Pid
	}
	return 0
}

// IncRestarts bumps and returns the restart counter.
func (w *Worker) IncRestarts() int {
	w.mu.Lock()
	w.restarts++
	v := w.restarts
	w.status.Restarts = v
	w.mu.Unlock()
	return v
}

// Snapshot returns a copy of the current status.
func (w *Worker) Snapshot() Status {
	w.mu.Lock()
	s := w.status
	w.mu.Unlock()
	return s
}

// Alive centralizes liveness: first the exec pid (with Linux zombie
// detection), then any configured detectors. Liveness is always derived
// by probing, never cached.
func (w *Worker) Alive() bool {
	alive, _ := w.DetectAlive()
	return alive
}

// DetectAlive probes liveness and reports which method detected the worker.
func (w *Worker) DetectAlive() (bool, string) {
	w.mu.Lock()
	cmd := w.cmd
	spec := w.spec
	w.mu.Unlock()

	if cmd != nil && cmd.Process != nil && !w.Exited() {
		pid := cmd.Process.Pid
		if runtime.GOOS == "linux" {
			if isZombieLinux(pid) {
				return false, ""
			}
			if syscall.Kill(pid, 0) == nil {
				return true, "exec:pid"
			}
		} else {
			if syscall.Kill(-pid, 0) == nil {
				return true, "exec:pid"
			}
		}
	}

	for _, d := range spec.BuildDetectors() {
		ok, _ := d.Alive()
		if ok {
			return true, d.Describe()
		}
	}
	return false, ""
}

// isZombieLinux returns true if /proc/<pid>/status reports state Z.
func isZombieLinux(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}

// Stop performs the two-phase termination: SIGTERM to the process group,
// bounded wait for the reaper, then SIGKILL escalation. Idempotent; a
// worker that is already gone returns immediately.
func (w *Worker) Stop(grace time.Duration) error {
	w.mu.Lock()
	cmd := w.cmd
	wd := w.waitDone
	w.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if !w.Alive() {
		return w.exitErr()
	}
	pid := cmd.Process.Pid
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	select {
	case <-wd:
	case <-time.After(grace):
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		select {
		case <-wd:
		case <-time.After(200 * time.Millisecond):
			// best-effort
		}
	}
	return w.exitErr()
}

// Kill sends SIGKILL to the process group and waits briefly for the reap.
func (w *Worker) Kill() error {
	w.mu.Lock()
	cmd := w.cmd
	wd := w.waitDone
	w.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	if wd != nil {
		select {
		case <-wd:
		case <-time.After(200 * time.Millisecond):
			// best-effort
		}
	}
	return w.exitErr()
}

func (w *Worker) clearStarting() {
	w.mu.Lock()
	w.starting = false
	w.mu.Unlock()
}

func (w *Worker) exitErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status.ExitErr
}

func (w *Worker) closeWriters() {
	w.mu.Lock()
	out, errw := w.outW, w.errW
	w.outW, w.errW = nil, nil
	w.mu.Unlock()
	if out != nil {
		_ = out.Close()
	}
	if errw != nil {
		_ = errw.Close()
	}
}
