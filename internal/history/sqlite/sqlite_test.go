package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/sentinel/internal/history"
)

func newTestSink(t *testing.T) *Sink {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSendAndRecent(t *testing.T) {
	s := newTestSink(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	events := []history.Event{
		{Type: history.EventStart, OccurredAt: base, Record: history.Record{Name: "svc", PID: 100}},
		{Type: history.EventUnhealthy, OccurredAt: base.Add(10 * time.Second), Record: history.Record{Name: "svc", PID: 100}},
		{Type: history.EventRestart, OccurredAt: base.Add(20 * time.Second), Record: history.Record{Name: "svc", PID: 100, Restarts: 1, ExitErr: "signal: killed"}},
		{Type: history.EventStart, OccurredAt: base.Add(30 * time.Second), Record: history.Record{Name: "other", PID: 200}},
	}
	for _, e := range events {
		if err := s.Send(ctx, e); err != nil {
			t.Fatalf("send %s: %v", e.Type, err)
		}
	}

	got, err := s.Recent(ctx, "svc", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events for svc, got %d", len(got))
	}
	if got[0].Type != history.EventRestart {
		t.Fatalf("expected newest first, got %s", got[0].Type)
	}
	if got[0].Record.ExitErr != "signal: killed" {
		t.Fatalf("exit error not round-tripped: %q", got[0].Record.ExitErr)
	}
	if got[2].Type != history.EventStart {
		t.Fatalf("expected oldest event last, got %s", got[2].Type)
	}
}

func TestRecentLimit(t *testing.T) {
	s := newTestSink(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		e := history.Event{
			Type:       history.EventStart,
			OccurredAt: time.Now().Add(time.Duration(i) * time.Second),
			Record:     history.Record{Name: "svc", PID: 100 + i},
		}
		if err := s.Send(ctx, e); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	got, err := s.Recent(ctx, "svc", 4)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected limit of 4, got %d", len(got))
	}
}

func TestPurgeOlderThan(t *testing.T) {
	s := newTestSink(t)
	ctx := context.Background()
	old := history.Event{Type: history.EventStop, OccurredAt: time.Now().Add(-48 * time.Hour), Record: history.Record{Name: "svc"}}
	fresh := history.Event{Type: history.EventStart, OccurredAt: time.Now(), Record: history.Record{Name: "svc"}}
	if err := s.Send(ctx, old); err != nil {
		t.Fatalf("send old: %v", err)
	}
	if err := s.Send(ctx, fresh); err != nil {
		t.Fatalf("send fresh: %v", err)
	}

	n, err := s.PurgeOlderThan(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged row, got %d", n)
	}
	got, err := s.Recent(ctx, "svc", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 || got[0].Type != history.EventStart {
		t.Fatalf("unexpected rows after purge: %+v", got)
	}
}

func TestNewRejectsEmptyPath(t *testing.T) {
	if _, err := New("sqlite://"); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
