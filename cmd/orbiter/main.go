package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rzbill/orbiter/internal/bridge"
	clientcmd "github.com/rzbill/orbiter/internal/cmd/client"
	serverrun "github.com/rzbill/orbiter/internal/cmd/server"
	cfgpkg "github.com/rzbill/orbiter/internal/config"
	"github.com/rzbill/orbiter/internal/runtime"
	pebblestore "github.com/rzbill/orbiter/internal/storage/pebble"
	"github.com/rzbill/orbiter/internal/workload"
	logpkg "github.com/rzbill/orbiter/pkg/log"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	// Respect ORBITER_LOG_LEVEL for both CLI and server start output
	level := os.Getenv("ORBITER_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)

	// Redirect standard library logs (used by Pebble) to our logger
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "orbiter",
		Short: "Orbiter runtime CLI",
		Long:  "Orbiter is a single-binary workflow and pipeline runtime. This CLI manages the server and basic operations.",
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("orbiter", version)
		},
	}
	rootCmd.AddCommand(versionCmd)

	// server start
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the orbiter server (HTTP, scheduler, consumer)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			httpAddr, _ := cmd.Flags().GetString("http")
			configPath, _ := cmd.Flags().GetString("config")
			fsyncMode, _ := cmd.Flags().GetString("fsync")
			fsyncIntervalMs, _ := cmd.Flags().GetInt("fsync-interval-ms")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")

			mode := pebblestore.FsyncModeAlways
			switch fsyncMode {
			case "never":
				mode = pebblestore.FsyncModeNever
			case "interval":
				mode = pebblestore.FsyncModeInterval
			case "always":
				mode = pebblestore.FsyncModeAlways
			default:
				return fmt.Errorf("invalid --fsync; use always|interval|never")
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfgpkg.FromEnv(&cfg)
			if logLevel != "" {
				cfg.LogLevel = logLevel
				_ = os.Setenv("ORBITER_LOG_LEVEL", logLevel)
			}
			if logFormat != "" {
				cfg.LogFormat = logFormat
				_ = os.Setenv("ORBITER_LOG_FORMAT", logFormat)
			}
			if err := serverrun.Run(ctx, serverrun.Options{
				DataDir:       dataDir,
				HTTPAddr:      httpAddr,
				Fsync:         mode,
				FsyncInterval: time.Duration(fsyncIntervalMs) * time.Millisecond,
				Config:        cfg,
			}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	serverStartCmd.Flags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	serverStartCmd.Flags().String("http", ":8080", "HTTP listen address")
	serverStartCmd.Flags().String("config", os.Getenv("ORBITER_CONFIG"), "Path to JSON config file")
	serverStartCmd.Flags().String("fsync", "always", "Fsync mode: always|interval|never")
	serverStartCmd.Flags().Int("fsync-interval-ms", 5, "When --fsync=interval, group-commit window in ms (default 5)")
	serverStartCmd.Flags().String("log-level", os.Getenv("ORBITER_LOG_LEVEL"), "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", os.Getenv("ORBITER_LOG_FORMAT"), "Log format: text|json (default text)")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	// tick: one-shot generate-and-forward pass against a local data dir.
	// Useful for development and cron-style operation without the server.
	tickCmd := &cobra.Command{
		Use:   "tick",
		Short: "Run one workload-generation and bridge pass, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			configPath, _ := cmd.Flags().GetString("config")

			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfgpkg.FromEnv(&cfg)
			if dataDir == "" {
				dataDir = cfgpkg.DefaultDataDir()
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			rt, err := runtime.Open(runtime.Options{
				DataDir: filepath.Join(dataDir, "store"),
				Fsync:   pebblestore.FsyncModeAlways,
				Config:  cfg,
				Logger:  logger,
			})
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.Gen() == nil {
				return fmt.Errorf("genai api key not configured; set ORBITER_GENAI_API_KEY")
			}

			gen := workload.New(rt.Store(), rt.Gen(), workload.Options{
				ItemsPerTick: cfg.Pipeline.ItemsPerTick,
				Logger:       logger,
			})
			b, err := bridge.New(rt.Store(), rt.Queue(), bridge.Options{
				Filter: cfg.Pipeline.Filter,
				Logger: logger,
			})
			if err != nil {
				return err
			}
			pk, err := gen.RunOnce(ctx)
			if err != nil {
				return err
			}
			forwarded, err := b.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("tick: batch=%s forwarded=%d\n", pk, forwarded)
			return nil
		},
	}
	tickCmd.Flags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	tickCmd.Flags().String("config", os.Getenv("ORBITER_CONFIG"), "Path to JSON config file")
	rootCmd.AddCommand(tickCmd)

	// client command groups
	rootCmd.AddCommand(clientcmd.NewOrchestrationCommand(apiURL))
	rootCmd.AddCommand(clientcmd.NewWorkItemsCommand(apiURL))
	rootCmd.AddCommand(clientcmd.NewDLQCommand(apiURL))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func apiURL() string {
	if v := os.Getenv("ORBITER_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}
