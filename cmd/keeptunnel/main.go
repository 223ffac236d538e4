package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/btouchard/keeptunnel/internal/config"
	"github.com/btouchard/keeptunnel/internal/lifecycle"
	"github.com/btouchard/keeptunnel/internal/status"
	"github.com/btouchard/keeptunnel/internal/tunnel"
)

var version = "dev"

func main() {
	if err := execute(newRootCmd()); err != nil {
		os.Exit(1)
	}
}

// execute runs cmd and reports any error on its stderr.
func execute(cmd *cobra.Command) error {
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
		fmt.Fprintf(cmd.ErrOrStderr(), "Run '%s --help' for usage.\n", cmd.Name())
	}
	return err
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "keeptunnel",
		Short:         "Keep a public ngrok tunnel to a local port, recycling it before the session limit",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				slog.Error("failed to load configuration", "error", err)
				return err
			}

			setupLogging(cfg)

			slog.Info("starting keeptunnel",
				"version", version,
				"port", cfg.Tunnel.Port,
				"proto", cfg.Tunnel.Proto,
				"max_age", cfg.Cycle.MaxAge.String(),
				"check_interval", cfg.Cycle.CheckInterval.String())

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			if err := run(ctx, cfg); err != nil {
				slog.Error("tunnel loop stopped", "error", err)
				return err
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	rootCmd.AddCommand(checkCmd(&configPath), versionCmd())

	return rootCmd
}

func checkCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(*configPath); err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "keeptunnel %s\n", version)
		},
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogging sends JSON logs to stderr (and the optional log file);
// stdout is reserved for the tunnel announcements.
func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlers := []slog.Handler{
		slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	}

	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			slog.Warn("failed to open log file, using stderr only", "path", cfg.Log.File, "error", err)
		} else {
			handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
		}
	}

	logger := slog.New(slog.NewMultiHandler(handlers...))
	slog.SetDefault(logger)
}

func run(ctx context.Context, cfg *config.Config) error {
	// --- Tunnel Provider ---
	provider := tunnel.NewNgrok(tunnel.Options{
		AuthToken: cfg.Tunnel.AuthToken,
		Proto:     cfg.Tunnel.Proto,
		Domain:    cfg.Tunnel.Domain,
		Region:    cfg.Tunnel.Region,
	})

	// --- Lifecycle Loop ---
	loop := lifecycle.New(provider, lifecycle.Options{
		Port:          cfg.Tunnel.Port,
		MaxAge:        cfg.Cycle.MaxAge,
		CheckInterval: cfg.Cycle.CheckInterval,
		Out:           os.Stdout,
	})

	// --- Status Endpoint (optional) ---
	statusCtx, stopStatus := context.WithCancel(ctx)
	defer stopStatus()

	statusDone := make(chan struct{})
	if cfg.Status.Addr != "" {
		go func() {
			defer close(statusDone)
			if err := status.Serve(statusCtx, cfg.Status.Addr, status.NewRouter(loop, time.Now)); err != nil {
				slog.Warn("status endpoint stopped", "error", err)
			}
		}()
	} else {
		close(statusDone)
	}

	err := loop.Run(ctx)

	stopStatus()
	<-statusDone

	if err == nil {
		slog.Info("shutting down")
	}
	return err
}
