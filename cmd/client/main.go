package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"worldsmith.dev/internal/config"
	"worldsmith.dev/internal/game"
	"worldsmith.dev/internal/network"
	"worldsmith.dev/internal/persistence/indexdb"
	framelog "worldsmith.dev/internal/persistence/log"
	"worldsmith.dev/internal/transport/ws"
	"worldsmith.dev/internal/ui"
)

func main() {
	var (
		configPath  = flag.String("config", "./configs/client.yaml", "client config path (defaults apply when missing)")
		addr        = flag.String("addr", "", "authority ws url (overrides server.address)")
		resourceAPI = flag.String("resource_api", "", "resource api base url (overrides resource_api.url)")
		dataDir     = flag.String("data", "", "runtime data directory (overrides persistence.data_dir)")
		record      = flag.Bool("record", false, "record every frame to <data>/frames")
		disableDB   = flag.Bool("disable_db", false, "disable the sqlite traffic index")
		untagged    = flag.Bool("untagged", false, "send frames without the kind discriminant")
		statsEvery  = flag.Duration("stats_every", 30*time.Second, "log network stats interval (0 disables)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[client] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if v := strings.TrimSpace(*addr); v != "" {
		cfg.Server.Address = v
	}
	if v := strings.TrimSpace(*resourceAPI); v != "" {
		cfg.ResourceAPI.URL = v
	}
	if v := strings.TrimSpace(*dataDir); v != "" {
		cfg.Persistence.DataDir = v
	}
	if *record {
		cfg.Persistence.Record = true
	}
	if *disableDB {
		cfg.Persistence.DisableDB = true
	}
	if *untagged {
		cfg.Wire.Tagged = false
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("config: %v", err)
	}

	if err := run(logger, cfg, *statsEvery); err != nil {
		logger.Fatalf("%v", err)
	}
}

// run owns every resource opened after config load, so deferred closes
// (frame log, index) always happen before main exits.
func run(logger *log.Logger, cfg config.Config, statsEvery time.Duration) error {
	var recorder network.Recorder
	if cfg.Persistence.Record {
		fr := framelog.NewFrameRecorder(cfg.Persistence.DataDir)
		defer func() {
			if err := fr.Close(); err != nil {
				logger.Printf("close frame log: %v", err)
			}
		}()
		recorder = fr
		logger.Printf("recording frames to %s", framelog.FramesDir(cfg.Persistence.DataDir))
	}

	opts := game.Options{
		Config:     cfg,
		Logger:     logger,
		Recorder:   recorder,
		StatsEvery: statsEvery,
		Transport: ws.NewTransport(ws.Options{
			HandshakeTimeout: cfg.Server.HandshakeTimeout(),
			WriteTimeout:     cfg.Server.WriteTimeout(),
			ReadTimeout:      cfg.Server.ReadTimeout(),
			MaxFrameBytes:    cfg.Server.MaxFrameBytes,
		}),
	}
	if !cfg.Persistence.DisableDB {
		idx, err := indexdb.OpenSQLite(filepath.Join(cfg.Persistence.DataDir, "index", "traffic.sqlite"))
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		defer idx.Close()
		opts.Observer = idx
		opts.Sessions = idx
	}

	console := ui.NewConsole(os.Stdout)
	opts.UI = console

	g, err := game.New(opts)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		if err := console.ReadLines(ctx, os.Stdin, g); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("stdin: %v", err)
		}
	}()

	logger.Printf("connecting to %s (resource api %s, %d Hz)", cfg.Server.Address, cfg.ResourceAPI.URL, cfg.Loop.TickRateHz)
	if err := g.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("loop: %v", err)
	}
	logger.Printf("bye: %s", g.Network().Stats())
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
