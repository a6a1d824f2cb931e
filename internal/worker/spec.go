package worker

import (
	"os/exec"
	"strings"

	"github.com/loykin/sentinel/internal/detector"
	"github.com/loykin/sentinel/internal/logger"
)

// DetectorConfig represents a detector configuration parsed from config files.
type DetectorConfig struct {
	Type    string `json:"type" mapstructure:"type"`
	Path    string `json:"path" mapstructure:"path"`
	PID     int    `json:"pid" mapstructure:"pid"`
	Command string `json:"command" mapstructure:"command"`
}

// Spec describes the worker process to supervise.
type Spec struct {
	Name            string              `json:"name"`
	Command         string              `json:"command"`  // command to start the worker (shell)
	WorkDir         string              `json:"work_dir"` // optional working dir
	Env             []string            `json:"env"`      // optional extra env
	PIDFile         string              `json:"pid_file"` // optional pidfile path; if set a PIDFileDetector is used
	Detectors       []detector.Detector `json:"-" mapstructure:"-"`
	DetectorConfigs []DetectorConfig    `json:"detectors" mapstructure:"detectors"`
	Log             logger.Config       `json:"log"`
}

// BuildCommand constructs an *exec.Cmd for the spec's Command.
// It avoids invoking a shell when not necessary, and it respects an
// explicit shell invocation already present in the command string
// (e.g., "sh -c 'python service.py'"), avoiding double-wrapping.
func (s *Spec) BuildCommand() *exec.Cmd {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		// #nosec G204
		return exec.Command("/bin/true")
	}
	if afterC, ok := parseExplicitShell(cmdStr); ok {
		// Always use absolute shell path to avoid PATH dependency when Env is overridden.
		// #nosec G204
		return exec.Command("/bin/sh", "-c", afterC)
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	name := parts[0]
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// #nosec G204
	return exec.Command(name, args...)
}

// parseExplicitShell detects patterns like "sh -c <ARG>" or "/bin/sh -c <ARG>"
// at the beginning of cmdStr. It returns (afterCArg, true) when matched,
// preserving the substring after "-c " to keep quoting intact.
func parseExplicitShell(cmdStr string) (string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	candidates := []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "}
	for _, p := range candidates {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return after, true
		}
	}
	return "", false
}

// BuildDetectors materializes configured detectors plus the implicit
// pidfile detector when PIDFile is set.
func (s *Spec) BuildDetectors() []detector.Detector {
	dets := make([]detector.Detector, 0, len(s.Detectors)+len(s.DetectorConfigs)+1)
	if s.PIDFile != "" {
		dets = append(dets, detector.PIDFileDetector{PIDFile: s.PIDFile})
	}
	dets = append(dets, s.Detectors...)
	for _, dc := range s.DetectorConfigs {
		switch dc.Type {
		case "pidfile":
			if dc.Path != "" {
				dets = append(dets, detector.PIDFileDetector{PIDFile: dc.Path})
			}
		case "pid":
			if dc.PID > 0 {
				dets = append(dets, detector.PIDDetector{PID: dc.PID})
			}
		case "command":
			if dc.Command != "" {
				dets = append(dets, detector.CommandDetector{Command: dc.Command})
			}
		}
	}
	return dets
}
