// cmd/buttond/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ocfkit/buttond/internal/button"
	"github.com/ocfkit/buttond/internal/config"
	"github.com/ocfkit/buttond/internal/input"
	"github.com/ocfkit/buttond/internal/loop"
	"github.com/ocfkit/buttond/internal/resource"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: buttond <config.yaml>")
		os.Exit(2)
	}

	cfgPath := os.Args[1]

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config validation failed: %v\n", err)
		os.Exit(1)
	}
	config.Normalize(cfg)

	logger := newLogger(cfg.Log)
	defer logger.Sync()
	log := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --------------------
	// Input backend
	// --------------------

	src, simulated, err := input.Build(cfg.Input, log.Named("input"))
	if err != nil {
		log.Fatalw("input build failed", "mode", cfg.Input.Mode, "err", err)
	}
	if src != nil {
		defer func() {
			if err := src.Close(); err != nil {
				log.Warnw("input close failed", "err", err)
			}
		}()
	}
	if simulated {
		log.Infow("no hardware input, running simulated button")
	}

	var reader button.Reader
	if src != nil {
		reader = src
	}
	sampler := button.NewSampler(reader, log.Named("sampler"))

	// --------------------
	// Resource layer
	// --------------------

	srv := resource.NewServer(cfg.Device.Listen, log.Named("coap"))

	res, err := srv.Register(resource.Descriptor{
		Path:          cfg.Device.Path,
		ResourceTypes: []string{button.ResourceType},
		Interfaces:    []string{"oic.if.baseline"},
		Discoverable:  true,
		Observable:    true,
		Properties:    sampler.Current(),
	})
	if err != nil {
		log.Fatalw("resource register failed", "path", cfg.Device.Path, "err", err)
	}

	// --------------------
	// Notification loop
	// --------------------

	interval := time.Duration(cfg.Poll.IntervalMs) * time.Millisecond
	lp := loop.New(sampler, res, interval, log.Named("loop"))
	res.SetHandler(lp)

	go lp.Run(ctx)

	if cfg.Presence.Enabled {
		announce(log, resource.PresenceCreate, cfg.Presence.TTLSec)
	}

	// --------------------
	// Serve until interrupt
	// --------------------

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	log.Infow("button resource up",
		"path", cfg.Device.Path,
		"listen", cfg.Device.Listen,
		"interval", interval,
		"simulated", simulated,
	)

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Fatalw("coap serve failed", "err", err)
		}
		return
	}

	// --------------------
	// Shutdown: best effort, always exit 0
	// --------------------

	log.Infow("interrupt, shutting down")

	if err := srv.Unregister(res); err != nil {
		log.Warnw("unregister failed", "err", err)
	}
	if cfg.Presence.Enabled {
		announce(log, resource.PresenceDelete, 0)
	}
	srv.Stop()
}

func announce(log *zap.SugaredLogger, trigger string, ttl int) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := resource.Announce(ctx, trigger, ttl, []string{button.ResourceType}); err != nil {
		log.Infow("presence announce failed", "trigger", trigger, "err", err)
	}
}

func newLogger(cfg config.LogConfig) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if cfg.Development {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	return l
}
