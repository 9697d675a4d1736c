// Package main implements vsslink-probe, a diagnostic CLI for VSS
// databrokers. It resolves signal metadata, reads and writes values, and
// watches signals for updates, exercising the same SDK paths an embedded
// application would use.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tr-sdv-sandbox/vsslink/broker"
	"github.com/tr-sdv-sandbox/vsslink/client"
	"github.com/tr-sdv-sandbox/vsslink/config"
	"github.com/tr-sdv-sandbox/vsslink/metric"
	"github.com/tr-sdv-sandbox/vsslink/pkg/retry"
	"github.com/tr-sdv-sandbox/vsslink/resolver"
	"github.com/tr-sdv-sandbox/vsslink/vss"
)

const version = "0.1.0"

type cliFlags struct {
	configPath  string
	brokerURL   string
	list        string
	get         string
	set         string
	watch       string
	watchFor    time.Duration
	showVersion bool
}

func main() {
	if err := run(); err != nil {
		slog.Error("probe failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags() *cliFlags {
	cfg := &cliFlags{}
	flag.StringVar(&cfg.configPath, "config", "", "Path to YAML config file")
	flag.StringVar(&cfg.brokerURL, "broker", "", "Databroker URL (overrides config)")
	flag.StringVar(&cfg.list, "list", "", "List signal metadata under a VSS branch")
	flag.StringVar(&cfg.get, "get", "", "Read the current value of a signal path")
	flag.StringVar(&cfg.set, "set", "", "Write a signal as path=value")
	flag.StringVar(&cfg.watch, "watch", "", "Subscribe to comma-separated signal paths")
	flag.DurationVar(&cfg.watchFor, "watch-for", 0, "Stop watching after this duration (0 = until interrupted)")
	flag.BoolVar(&cfg.showVersion, "version", false, "Show version information")
	flag.Parse()
	return cfg
}

func setupLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel())); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func run() error {
	flags := parseFlags()
	if flags.showVersion {
		fmt.Printf("vsslink-probe %s\n", version)
		return nil
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if flags.brokerURL != "" {
		cfg.Broker.URL = flags.brokerURL
	}
	logger := setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := metric.NewRegistry()
	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Listen, registry, logger)
	}

	conn, err := broker.NewConn(cfg.Broker.URL,
		broker.WithLogger(logger),
		broker.WithName(cfg.Client.Name),
		broker.WithConnectTimeout(cfg.Broker.ConnectTimeout),
		broker.WithMaxReconnects(cfg.Broker.MaxReconnects),
		broker.WithMetrics(registry.Core()),
	)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	// The databroker may still be coming up when the probe starts.
	if err := retry.Do(ctx, retry.Quick(), func() error { return conn.Connect(ctx) }); err != nil {
		return err
	}

	rpc := broker.NewClient(conn)
	c := client.New(rpc,
		client.WithLogger(logger),
		client.WithMetrics(registry.Core()),
		client.WithName(cfg.Client.Name),
		client.WithConnectWait(cfg.Client.ConnectWait),
		client.WithBackoff(cfg.Client.BackoffInitial, cfg.Client.BackoffMax),
	)

	switch {
	case flags.list != "":
		return listSignals(ctx, c.Resolver(), flags.list)
	case flags.get != "":
		return getSignal(ctx, c, flags.get)
	case flags.set != "":
		return setSignal(ctx, c, flags.set)
	case flags.watch != "":
		return watchSignals(ctx, c, flags.watch, flags.watchFor)
	default:
		flag.Usage()
		return fmt.Errorf("one of -list, -get, -set or -watch is required")
	}
}

func serveMetrics(listen string, registry *metric.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.Handler())
	logger.Info("metrics endpoint listening", "addr", listen)
	if err := http.ListenAndServe(listen, mux); err != nil {
		logger.Error("metrics endpoint failed", "error", err)
	}
}

func listSignals(ctx context.Context, r *resolver.Resolver, root string) error {
	handles, err := r.List(ctx, root)
	if err != nil {
		return err
	}
	for _, h := range handles {
		fmt.Printf("%-60s id=%-6d %-12s %s\n", h.Path, h.ID, h.Type, h.Class)
	}
	fmt.Printf("%d signals under %s\n", len(handles), root)
	return nil
}

func getSignal(ctx context.Context, c *client.Client, path string) error {
	h, err := c.Resolver().Resolve(ctx, path)
	if err != nil {
		return err
	}
	qv, err := c.Get(ctx, *h)
	if err != nil {
		return err
	}
	fmt.Printf("%s = %s (quality %s, at %s)\n", path, qv.Value, qv.Quality, qv.Timestamp.Format(time.RFC3339))
	return nil
}

func setSignal(ctx context.Context, c *client.Client, assignment string) error {
	path, raw, ok := strings.Cut(assignment, "=")
	if !ok {
		return fmt.Errorf("-set expects path=value, got %q", assignment)
	}
	h, err := c.Resolver().Resolve(ctx, path)
	if err != nil {
		return err
	}
	value, err := parseValue(h.Type, raw)
	if err != nil {
		return err
	}
	if err := c.Set(ctx, *h, vss.Valid(value)); err != nil {
		return err
	}
	fmt.Printf("%s <- %s\n", path, value)
	return nil
}

func watchSignals(ctx context.Context, c *client.Client, paths string, watchFor time.Duration) error {
	for _, path := range strings.Split(paths, ",") {
		path = strings.TrimSpace(path)
		h, err := c.Resolver().Resolve(ctx, path)
		if err != nil {
			return err
		}
		p := path
		if err := c.Subscribe(*h, func(qv vss.QualifiedValue) {
			fmt.Printf("%s %s = %s (quality %s)\n",
				qv.Timestamp.Format(time.RFC3339), p, qv.Value, qv.Quality)
		}); err != nil {
			return err
		}
	}

	if err := c.Start(); err != nil {
		return err
	}
	defer c.Stop()
	if err := c.WaitUntilReady(30 * time.Second); err != nil {
		return err
	}

	if watchFor > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(watchFor):
		}
	} else {
		<-ctx.Done()
	}
	return nil
}
