package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"partners/internal/config"
	"partners/internal/connectors"
	"partners/internal/detector"
	"partners/internal/listener"
	"partners/internal/logger"
	"partners/internal/pipeline"
	"partners/internal/storage"
	"partners/internal/store"
)

func main() {
	cfg, err := config.Load()
	must(err)

	log := logger.New(os.Stderr, cfg.LogLevel)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	st := store.New(db)

	policy, err := pipeline.NewPolicy(cfg.Thresholds)
	must(err)
	analysis := pipeline.NewAnalysisService(log, st, detector.NewClient(cfg), policy, db)
	if _, err := analysis.Hydrate(); err != nil && !errors.Is(err, pipeline.ErrCacheWrite) {
		must(err)
	}

	conn, err := connectors.New(cfg, cfg.MailListenerProvider)
	must(err)

	svc := listener.NewService(log, cfg, db, conn, analysis)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
