package detector

// Detector is a strategy that determines whether the worker process is
// running. Implementations may check a PID file, a PID number, or run a
// probe command. Implementations must be safe for concurrent use.
type Detector interface {
	// Alive returns true if the worker is detected as running.
	Alive() (bool, error)
	// Describe returns a human-readable description of the detection method.
	Describe() string
}
