package listener

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"partners/internal/config"
	"partners/internal/connectors"
	"partners/internal/pipeline"
	"partners/internal/storage"
)

type Service struct {
	log      *slog.Logger
	cfg      config.Config
	provider string
	fetcher  *connectors.FetchService
	intake   *pipeline.IntakeService
}

// NewService wires one mailbox to the analysis pipeline. connector is chosen
// by the caller so tests can supply a fake mailbox.
func NewService(log *slog.Logger, cfg config.Config, db *storage.DB, connector connectors.MailConnector, analysis *pipeline.AnalysisService) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		log:      log.With("module", "listener"),
		cfg:      cfg,
		provider: strings.ToLower(strings.TrimSpace(cfg.MailListenerProvider)),
		fetcher:  connectors.NewFetchService(log, db, cfg.RawMailDir, connector),
		intake:   pipeline.NewIntakeService(log, db, analysis),
	}
}

// Run polls until ctx is cancelled. A failed cycle is logged and retried on
// the next tick.
func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.MailListenerIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	s.log.Info("listener started", "provider", s.provider, "label", s.cfg.MailListenerLabel, "interval", interval)

	for {
		if _, err := s.RunCycle(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("listener cycle failed", "err", err)
		}

		select {
		case <-ctx.Done():
			s.log.Info("listener stopped")
			return nil
		case <-time.After(interval):
		}
	}
}

type CycleResult struct {
	Fetched   int
	Stored    int
	Processed int
	Skipped   int
	Failed    int
	Exported  []string
}

func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	var out CycleResult

	fetched, err := s.fetcher.FetchAndStore(ctx, s.cfg.MailListenerLabel, s.cfg.MailListenerFetchMax)
	if err != nil {
		return out, err
	}
	out.Fetched, out.Stored = fetched.Fetched, fetched.Stored

	results, err := s.intake.ProcessPending(ctx, s.cfg.MailListenerProcessBatch, s.provider)
	if err != nil {
		return out, err
	}

	for _, res := range results {
		switch res.Status {
		case pipeline.IntakeProcessed:
			out.Processed++
		case pipeline.IntakeSkipped:
			out.Skipped++
		case pipeline.IntakeFailed:
			out.Failed++
		}
		if !s.cfg.MailListenerAutoExport {
			continue
		}
		for _, snap := range res.Snapshots {
			path := filepath.Join(s.cfg.OutputDir, "listener", pipeline.ExportFilename(snap.AnalysisID, "csv"))
			if err := pipeline.WriteCSV(snap.Records, path); err != nil {
				return out, err
			}
			out.Exported = append(out.Exported, path)
		}
	}

	s.log.Info("listener cycle done", "provider", s.provider, "fetched", out.Fetched, "stored", out.Stored,
		"processed", out.Processed, "skipped", out.Skipped, "failed", out.Failed, "exported", len(out.Exported))
	return out, nil
}
