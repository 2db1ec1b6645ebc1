package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"radardeck/internal/config"
	"radardeck/internal/logging"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./radardeck.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := newRuntime(cfg, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
	defer rt.Close()

	log.Info("radardeck starting", zap.String("config", configPath), zap.String("source", cfg.Source.Kind))
	if err := rt.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("radardeck stopped", zap.Error(err))
		rt.Close()
		_ = log.Sync()
		os.Exit(1)
	}
	log.Info("radardeck stopping", zap.Any("stats", rt.dec.Stats()))
}
