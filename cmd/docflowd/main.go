package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"docflow/internal/analytics"
	"docflow/internal/config"
	"docflow/internal/daemon"
	"docflow/internal/history"
	"docflow/internal/logging"
	"docflow/internal/notify"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := history.Open(cfg)
	if err != nil {
		log.Fatalf("open stage history store: %v", err)
	}
	notifications, err := notify.OpenStore(cfg)
	if err != nil {
		log.Fatalf("open notification store: %v", err)
	}
	sink, err := analytics.OpenSink(cfg)
	if err != nil {
		log.Fatalf("open analytics sink: %v", err)
	}

	d, err := daemon.New(cfg, store, notifications, sink, logger)
	if err != nil {
		log.Fatalf("create daemon: %v", err)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		log.Fatalf("start daemon: %v", err)
	}

	<-ctx.Done()
	logger.Info("docflowd shutting down")
	d.Stop()
}
