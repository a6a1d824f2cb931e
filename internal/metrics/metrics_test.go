package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// Register flips a package-global switch, so one test drives the whole
// lifecycle: register, repeat-register, record, gather.
func TestRegisterAndRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("repeat register: %v", err)
	}

	IncStart("w")
	IncRestart("w", "crash")
	IncStop("w")
	IncProbeFailure("w")
	ObserveProbeDuration("w", 0.01)
	RecordStateTransition("w", "idle", "starting")
	SetCurrentState("w", "starting", true)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	want := map[string]bool{
		"sentinel_worker_starts_total":                false,
		"sentinel_worker_restarts_total":              false,
		"sentinel_worker_stops_total":                 false,
		"sentinel_health_probe_failures_total":        false,
		"sentinel_health_probe_duration_seconds":      false,
		"sentinel_supervisor_state_transitions_total": false,
		"sentinel_supervisor_current_state":           false,
	}
	for _, mf := range mfs {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Fatalf("metric %s not gathered", name)
		}
	}
}
