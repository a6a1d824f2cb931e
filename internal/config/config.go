package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/sentinel/internal/logger"
	"github.com/loykin/sentinel/internal/worker"
)

// Config is the unified TOML configuration for the supervisor daemon.
type Config struct {
	Env      []string       `toml:"env" mapstructure:"env"`
	EnvFiles []string       `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv bool           `toml:"use_os_env" mapstructure:"use_os_env"`
	Worker   WorkerConfig   `toml:"worker" mapstructure:"worker"`
	Health   HealthConfig   `toml:"health" mapstructure:"health"`
	Log      *LogConfig     `toml:"log" mapstructure:"log"`
	Server   *ServerConfig  `toml:"server" mapstructure:"server"`
	Metrics  *MetricsConfig `toml:"metrics" mapstructure:"metrics"`
	History  *HistoryConfig `toml:"history" mapstructure:"history"`
}

type WorkerConfig struct {
	Name      string                  `toml:"name" mapstructure:"name"`
	Command   string                  `toml:"command" mapstructure:"command"`
	WorkDir   string                  `toml:"workdir" mapstructure:"workdir"`
	Env       []string                `toml:"env" mapstructure:"env"`
	PIDFile   string                  `toml:"pidfile" mapstructure:"pidfile"`
	Detectors []worker.DetectorConfig `toml:"detectors" mapstructure:"detectors"`
}

// HealthConfig carries probe and monitor timing. Durations accept Go
// duration strings ("5s", "1m").
type HealthConfig struct {
	URL             string        `toml:"url" mapstructure:"url"`
	ProbeTimeout    time.Duration `toml:"probe_timeout" mapstructure:"probe_timeout"`
	StartupMaxWait  int           `toml:"startup_max_wait" mapstructure:"startup_max_wait"`
	PollInterval    time.Duration `toml:"poll_interval" mapstructure:"poll_interval"`
	MonitorInterval time.Duration `toml:"monitor_interval" mapstructure:"monitor_interval"`
	GracePeriod     time.Duration `toml:"grace_period" mapstructure:"grace_period"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	ErrorBackoff    time.Duration `toml:"error_backoff" mapstructure:"error_backoff"`
}

type LogConfig struct {
	Dir        string `toml:"dir" mapstructure:"dir"`
	Stdout     string `toml:"stdout" mapstructure:"stdout"`
	Stderr     string `toml:"stderr" mapstructure:"stderr"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

type HistoryConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	DSN     string `toml:"dsn" mapstructure:"dsn"`
}

// Load parses the TOML config at path and validates required fields.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	if strings.TrimSpace(c.Worker.Command) == "" {
		return nil, fmt.Errorf("worker.command is required")
	}
	if strings.TrimSpace(c.Health.URL) == "" {
		return nil, fmt.Errorf("health.url is required")
	}
	if c.Worker.Name == "" {
		c.Worker.Name = "worker"
	}
	return &c, nil
}

// WorkerSpec builds the worker.Spec, folding top-level log settings in.
func (c *Config) WorkerSpec() worker.Spec {
	var logCfg logger.Config
	if c.Log != nil {
		logCfg = logger.Config{
			Dir:        c.Log.Dir,
			StdoutPath: c.Log.Stdout,
			StderrPath: c.Log.Stderr,
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAgeDays: c.Log.MaxAgeDays,
			Compress:   c.Log.Compress,
		}
	}
	return worker.Spec{
		Name:            c.Worker.Name,
		Command:         c.Worker.Command,
		WorkDir:         c.Worker.WorkDir,
		Env:             c.Worker.Env,
		PIDFile:         c.Worker.PIDFile,
		DetectorConfigs: c.Worker.Detectors,
		Log:             logCfg,
	}
}

// GlobalEnv merges environment sources with the precedence: OS env (when
// use_os_env) provides the base, then env files in order, then the
// inline env list overrides last. Returns nil when no source applies.
func (c *Config) GlobalEnv() ([]string, error) {
	if !c.UseOSEnv && len(c.EnvFiles) == 0 && len(c.Env) == 0 {
		return nil, nil
	}
	m := make(map[string]string)
	if c.UseOSEnv {
		for _, kv := range os.Environ() {
			if i := strings.IndexByte(kv, '='); i >= 0 {
				m[kv[:i]] = kv[i+1:]
			}
		}
	}
	for _, p := range c.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range c.Env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out, nil
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines (no export,
// no quotes). Lines starting with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			m[k] = v
		}
	}
	return m, nil
}
