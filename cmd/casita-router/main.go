// Casita-router is the message router of the casita control plane.
//
// It sits between field devices and services on the MQTT broker:
// validates and persists announce/update/alert/response traffic into
// the device database, answers system/get, system/set, and
// system/select requests, and fans state changes back out on
// system/notify. Configuration is loaded from a YAML file discovered
// automatically (see [config.DefaultSearchPaths]) or, when none exists,
// from environment variables alone.
//
// Usage:
//
//	casita-router serve          Start the router
//	casita-router healthcheck    Probe the database and exit 0/1
//	casita-router version        Print version and build information
//	casita-router -o json version
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jobichi/casita/internal/buildinfo"
	"github.com/jobichi/casita/internal/config"
	"github.com/jobichi/casita/internal/mqtt"
	"github.com/jobichi/casita/internal/router"
	"github.com/jobichi/casita/internal/store"
	"github.com/jobichi/casita/internal/topics"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run] so the full
// startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand: the flag
// package relies on package-level globals, which makes it impossible to
// call run() concurrently from tests, and the surface here is tiny.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string
	var command string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "healthcheck":
		return runHealthcheck(ctx, stdout, configPath)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "casita-router - device/service message router")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: casita-router [flags] <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve         Start the router")
	fmt.Fprintln(w, "  healthcheck   Probe the device database, exit 0/1")
	fmt.Fprintln(w, "  version       Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	return nil
}

func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// runHealthcheck opens the store and pings it. It is the container
// liveness probe: exit code is all that matters.
func runHealthcheck(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DatabasePath(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return fmt.Errorf("healthcheck: %w", err)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := st.Ping(ctx); err != nil {
		return fmt.Errorf("healthcheck: %w", err)
	}
	fmt.Fprintln(stdout, "ok")
	return nil
}

// runServe is the primary operating mode: open the store, connect to
// the broker, and dispatch messages until SIGINT/SIGTERM.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting casita-router",
		"version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure now that the desired level and format are known; the
	// initial logger only covers the startup banner.
	{
		level := slog.LevelInfo
		if cfg.LogLevel != "" {
			level, _ = config.ParseLogLevel(cfg.LogLevel)
		}
		logger = newLogger(stdout, level, cfg.LogFormat)
	}
	logger.Info("config loaded", "path", cfgPath, "broker", cfg.MQTT.BrokerURL())

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	st, err := store.Open(cfg.DatabasePath(), logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	logger.Info("store open", "path", cfg.DatabasePath())

	instanceID, err := mqtt.LoadOrCreateInstanceID(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("instance id: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conn, err := mqtt.Dial(ctx, cfg.MQTT, mqtt.Options{
		ClientID:      "casita-router-" + instanceID,
		Subscriptions: topics.RouterSubscriptions(),
	}, logger)
	if err != nil {
		return fmt.Errorf("broker: %w", err)
	}
	defer func() {
		disconnectCtx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer dcancel()
		if err := conn.Disconnect(disconnectCtx); err != nil {
			logger.Warn("mqtt disconnect failed", "err", err)
		}
	}()

	r := router.New(st, conn, logger)
	logger.Info("router running")
	r.Run(ctx, conn.Messages())

	logger.Info("casita-router stopped")
	return nil
}

func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// loadConfig finds and loads the config file. When no file exists
// anywhere on the search path, environment variables alone configure
// the process, which is the normal container deployment.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		return config.FromEnv(), "(env)", nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}
