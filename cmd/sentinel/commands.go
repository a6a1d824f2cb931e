package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loykin/sentinel"
	"github.com/loykin/sentinel/internal/logger"
)

// buildRoot creates the root command and wires all subcommands.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	clientFlags := &ClientFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createRunCommand(globalFlags),
		createStatusCommand(clientFlags),
		createRestartCommand(clientFlags),
		createStopCommand(clientFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "sentinel",
		Short: "Health-checked supervisor for a single worker process",
		Long: `Sentinel starts one worker process, polls its HTTP health endpoint
until it reports healthy, then keeps monitoring it and restarts it when
it crashes or fails a health check.

Examples:
  sentinel run --config=sentinel.toml
  sentinel status --api-url=http://localhost:8080/api
  sentinel restart --api-url=http://localhost:8080/api`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file")
	root.PersistentFlags().BoolVar(&flags.Verbose, "verbose", false, "enable debug logging")
	return root
}

// createRunCommand creates the run subcommand (the supervisor entry point).
func createRunCommand(globalFlags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [config.toml]",
		Short: "Run the supervisor daemon",
		Long: `Start the worker defined in the config, wait for it to become healthy,
and monitor it until interrupted. Exits non-zero when the worker could
never be brought to (or back to) a healthy state.

Examples:
  sentinel run --config=sentinel.toml
  sentinel run sentinel.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := globalFlags.ConfigPath
			if len(args) > 0 {
				configPath = args[0]
			}
			if configPath == "" {
				return fmt.Errorf("config file required. Use --config=sentinel.toml or provide as argument")
			}
			return runSupervisor(configPath, globalFlags.Verbose)
		},
	}
	return cmd
}

func runSupervisor(configPath string, verbose bool) error {
	cfg, err := sentinel.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(logger.NewColorTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}, true))
	slog.SetDefault(log)

	sup := sentinel.NewWithLogger(cfg.WorkerSpec(), cfg.Health.URL, sentinel.Options{
		ProbeTimeout:    cfg.Health.ProbeTimeout,
		StartupMaxWait:  cfg.Health.StartupMaxWait,
		PollInterval:    cfg.Health.PollInterval,
		MonitorInterval: cfg.Health.MonitorInterval,
		GracePeriod:     cfg.Health.GracePeriod,
		ShutdownTimeout: cfg.Health.ShutdownTimeout,
		ErrorBackoff:    cfg.Health.ErrorBackoff,
	}, log)

	env, err := cfg.GlobalEnv()
	if err != nil {
		return fmt.Errorf("error loading environment: %w", err)
	}
	if env != nil {
		sup.SetEnv(env)
	}

	if cfg.History != nil && cfg.History.Enabled {
		sink, err := sentinel.NewHistorySink(cfg.History.DSN)
		if err != nil {
			return fmt.Errorf("error creating history sink: %w", err)
		}
		sup.SetHistorySink(sink)
	}

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		if err := sentinel.RegisterMetricsDefault(); err != nil {
			log.Warn("failed to register metrics", "error", err)
		}
		if cfg.Metrics.Listen != "" {
			go func() {
				if err := sentinel.ServeMetrics(cfg.Metrics.Listen); err != nil {
					log.Warn("metrics server error", "error", err)
				}
			}()
		}
	}

	if cfg.Server != nil && cfg.Server.Listen != "" {
		srv, err := sentinel.NewHTTPServer(cfg.Server.Listen, cfg.Server.BasePath, sup)
		if err != nil {
			return fmt.Errorf("failed to create control server: %w", err)
		}
		defer func() { _ = srv.Close() }()
		log.Info("control API listening", "addr", cfg.Server.Listen, "base_path", cfg.Server.BasePath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return sup.Run(ctx)
}

// createStatusCommand creates the status subcommand.
func createStatusCommand(clientFlags *ClientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show supervisor and worker status",
		Long: `Show the state of a running sentinel daemon and its worker.

Examples:
  sentinel status
  sentinel status --api-url=http://remote:8080/api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newAPIClient(clientFlags)
			st, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("state:     %s\n", st.State)
			fmt.Printf("worker:    %s\n", st.Worker.Name)
			fmt.Printf("running:   %v\n", st.Worker.Running)
			fmt.Printf("pid:       %d\n", st.Worker.PID)
			fmt.Printf("restarts:  %d\n", st.Worker.Restarts)
			fmt.Printf("health:    %s\n", st.HealthURL)
			return nil
		},
	}
	addClientFlags(cmd, clientFlags)
	return cmd
}

// createRestartCommand creates the restart subcommand.
func createRestartCommand(clientFlags *ClientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Gracefully restart the worker",
		Long: `Ask a running sentinel daemon to stop the worker, start a fresh one,
and wait until it reports healthy.

Examples:
  sentinel restart
  sentinel restart --api-url=http://remote:8080/api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newAPIClient(clientFlags)
			if err := c.Restart(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("worker restarted")
			return nil
		},
	}
	addClientFlags(cmd, clientFlags)
	return cmd
}

// createStopCommand creates the stop subcommand.
func createStopCommand(clientFlags *ClientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop supervision and shut the worker down",
		Long: `Ask a running sentinel daemon to stop supervising: the worker is
terminated gracefully and the daemon exits.

Examples:
  sentinel stop
  sentinel stop --api-url=http://remote:8080/api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newAPIClient(clientFlags)
			if err := c.Stop(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("supervision stopped")
			return nil
		},
	}
	addClientFlags(cmd, clientFlags)
	return cmd
}
