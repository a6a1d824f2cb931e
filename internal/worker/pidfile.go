//go:build !windows

package worker

import (
	"os"
	"path/filepath"
	"strconv"
)

func (w *Worker) writePIDFile() {
	w.mu.Lock()
	pidFile := w.spec.PIDFile
	pid := 0
	if w.cmd != nil && w.cmd.Process != nil {
		pid = w.cmd.Process.Pid
	}
	w.mu.Unlock()

	if pidFile == "" || pid == 0 {
		return
	}
	_ = os.MkdirAll(filepath.Dir(pidFile), 0o750)
	_ = os.WriteFile(pidFile, []byte(strconv.Itoa(pid)), 0o600)
}

// RemovePIDFile best-effort
func (w *Worker) RemovePIDFile() {
	w.mu.Lock()
	pidFile := w.spec.PIDFile
	w.mu.Unlock()

	if pidFile == "" {
		return
	}
	_ = os.Remove(pidFile)
}
