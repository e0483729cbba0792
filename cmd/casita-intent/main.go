// Casita-intent is the voice intent service of the casita control
// plane.
//
// It keeps an in-memory mirror of the router's device tables (filled
// from a select dump requested on every broker connect and kept warm by
// the notify fan-out), listens for speech-to-text transcriptions, and
// converts recognized utterances into validated system/set commands.
//
// Usage:
//
//	casita-intent serve      Start the service
//	casita-intent version    Print version and build information
//	casita-intent -o json version
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
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jobichi/casita/internal/buildinfo"
	"github.com/jobichi/casita/internal/config"
	"github.com/jobichi/casita/internal/events"
	"github.com/jobichi/casita/internal/intent"
	"github.com/jobichi/casita/internal/mqtt"
	"github.com/jobichi/casita/internal/snapshot"
	"github.com/jobichi/casita/internal/topics"
)

func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

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
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "casita-intent - voice intent service")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: casita-intent [flags] <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve      Start the service")
	fmt.Fprintln(w, "  version    Show version information")
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

func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting casita-intent",
		"version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	{
		level := slog.LevelInfo
		if cfg.LogLevel != "" {
			level, _ = config.ParseLogLevel(cfg.LogLevel)
		}
		logger = newLogger(stdout, level, cfg.LogFormat)
	}

	service := cfg.Service.Name
	logger.Info("config loaded",
		"path", cfgPath, "broker", cfg.MQTT.BrokerURL(),
		"service", service, "require_snapshot", cfg.Service.RequireSnapshot)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	instanceID, err := mqtt.LoadOrCreateInstanceID(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("instance id: %w", err)
	}

	bus := events.New()
	mirror := snapshot.New(service, bus, logger)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// The pipeline needs the connection for publishing and the
	// connection needs the pipeline's snapshot request on connect, so
	// the OnConnect hook closes over an atomically late-bound pointer.
	var pipelinePtr atomic.Pointer[intent.Pipeline]

	subs := append(topics.ServiceSubscriptions(service),
		topics.Subscription{Filter: intent.TranscriptionTopic, QoS: 1})

	conn, err := mqtt.Dial(ctx, cfg.MQTT, mqtt.Options{
		ClientID:      service + "-" + instanceID,
		Subscriptions: subs,
		OnConnect: func(ctx context.Context) {
			bus.Emit(events.SourceBroker, events.KindConnectionUp, nil)
			if p := pipelinePtr.Load(); p != nil {
				p.RequestSnapshot(ctx)
			}
		},
		OnConnectionDown: func(err error) {
			bus.Emit(events.SourceBroker, events.KindConnectionDown,
				map[string]any{"error": err.Error()})
		},
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

	pipeline := intent.NewPipeline(intent.PipelineOptions{
		Service:         service,
		RequireSnapshot: cfg.Service.RequireSnapshot,
	}, mirror, conn, bus, logger)
	pipelinePtr.Store(pipeline)

	// If the broker was already up when Dial returned, OnConnect fired
	// before the pipeline existed; request the dump once here as well.
	// Dump rows upsert, so a duplicate request is harmless.
	pipeline.RequestSnapshot(ctx)

	// Tail the event bus at debug level.
	evch := bus.Subscribe(64)
	defer bus.Unsubscribe(evch)
	go func() {
		for ev := range evch {
			logger.Debug("event", "source", ev.Source, "kind", ev.Kind, "data", ev.Data)
		}
	}()

	logger.Info("intent service running")
	for {
		select {
		case <-ctx.Done():
			logger.Info("casita-intent stopped")
			return nil
		case msg, ok := <-conn.Messages():
			if !ok {
				return nil
			}
			pipeline.HandleMessage(ctx, msg)
		}
	}
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
