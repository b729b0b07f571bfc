package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/edgelink/internal/config"
	"github.com/danmuck/edgelink/internal/logging"
	"github.com/danmuck/edgelink/internal/observability"
)

type options struct {
	mode   string
	config string
	force  bool
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.mode, "mode", "ping", "run mode: serve|ping|init")
	flag.StringVar(&opts.config, "config", "", "path to link.toml (defaults when empty; required for init)")
	flag.BoolVar(&opts.force, "force", false, "overwrite an existing config in init mode")
	flag.Parse()
	opts.mode = strings.ToLower(strings.TrimSpace(opts.mode))
	return opts
}

func main() {
	opts := parseFlags()
	logging.ConfigureRuntime()
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "linkctl: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	if opts.mode == "init" {
		if opts.config == "" {
			return errors.New("init requires -config")
		}
		if err := config.WriteTemplate(opts.config, opts.force); err != nil {
			return err
		}
		fmt.Printf("wrote link config template to %s\n", opts.config)
		return nil
	}

	cfg, err := loadConfig(opts.config)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		shutdown := serveMetrics(cfg.Metrics.Addr)
		defer shutdown()
	}

	switch opts.mode {
	case "serve":
		return runServe(ctx, cfg)
	case "ping":
		return runPing(ctx, cfg)
	default:
		return fmt.Errorf("unknown mode %q (supported: serve, ping, init)", opts.mode)
	}
}

func loadConfig(path string) (config.LinkConfig, error) {
	if strings.TrimSpace(path) == "" {
		return config.DefaultLinkConfig(), nil
	}
	return config.LoadLinkConfig(path)
}

func serveMetrics(addr string) func() {
	log := logging.For("linkctl")
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("linkctl metrics listener failed")
		}
	}()
	log.Info().Str("addr", addr).Msg("linkctl metrics listening")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
