package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWritersFromDir(t *testing.T) {
	dir := t.TempDir()
	c := Config{Dir: dir}
	outW, errW, err := c.Writers("svc")
	if err != nil {
		t.Fatalf("writers: %v", err)
	}
	if outW == nil || errW == nil {
		t.Fatalf("expected both writers when dir is set")
	}
	if _, err := outW.Write([]byte("hello out\n")); err != nil {
		t.Fatalf("write stdout: %v", err)
	}
	if _, err := errW.Write([]byte("hello err\n")); err != nil {
		t.Fatalf("write stderr: %v", err)
	}
	_ = outW.Close()
	_ = errW.Close()

	if _, err := os.Stat(filepath.Join(dir, "svc.stdout.log")); err != nil {
		t.Fatalf("stdout log not created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "svc.stderr.log")); err != nil {
		t.Fatalf("stderr log not created: %v", err)
	}
}

func TestWritersExplicitPathsOverrideDir(t *testing.T) {
	dir := t.TempDir()
	c := Config{
		Dir:        dir,
		StdoutPath: filepath.Join(dir, "custom-out.log"),
	}
	outW, errW, err := c.Writers("svc")
	if err != nil {
		t.Fatalf("writers: %v", err)
	}
	if _, err := outW.Write([]byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = outW.Close()
	_ = errW.Close()
	if _, err := os.Stat(filepath.Join(dir, "custom-out.log")); err != nil {
		t.Fatalf("explicit stdout path not used: %v", err)
	}
}

func TestWritersUnconfigured(t *testing.T) {
	outW, errW, err := Config{}.Writers("svc")
	if err != nil {
		t.Fatalf("writers: %v", err)
	}
	if outW != nil || errW != nil {
		t.Fatalf("expected nil writers for empty config")
	}
}

func TestValOr(t *testing.T) {
	if got := valOr(0, DefaultMaxSizeMB); got != DefaultMaxSizeMB {
		t.Fatalf("valOr(0) = %d", got)
	}
	if got := valOr(42, DefaultMaxSizeMB); got != 42 {
		t.Fatalf("valOr(42) = %d", got)
	}
}

func TestColorTextHandler(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false))

	log.Warn("disk almost full")
	out := buf.String()
	if !strings.Contains(out, "\033[33mWARN\033[0m") {
		t.Fatalf("warn line missing yellow level prefix: %q", out)
	}
	if strings.Contains(out, "time=") {
		t.Fatalf("time attribute not stripped: %q", out)
	}

	buf.Reset()
	log.Error("probe failed")
	if !strings.Contains(buf.String(), "\033[31mERROR\033[0m") {
		t.Fatalf("error line missing red level prefix: %q", buf.String())
	}
}

func TestColorTextHandlerKeepsTime(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewColorTextHandler(&buf, nil, true))
	log.Info("worker started")
	if !strings.Contains(buf.String(), "time=") {
		t.Fatalf("time attribute missing with showTime: %q", buf.String())
	}
}
