package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"partners/internal"
	"partners/internal/util"
)

const (
	IntakeFetched   = "fetched"
	IntakeProcessed = "processed"
	IntakeSkipped   = "skipped"
	IntakeFailed    = "failed"
)

// IntakeStore is the bookkeeping the intake flow needs from storage.
type IntakeStore interface {
	GetIntakeMessage(provider, messageID string) (*internal.IntakeMessage, error)
	// ListIntakeByStatus returns up to limit messages oldest first. An empty
	// provider matches every provider.
	ListIntakeByStatus(status, provider string, limit int) ([]internal.IntakeMessage, error)
	UpdateIntakeStatus(id int, status, analysisID string) error
}

// IntakeService turns stored mailbox messages into analyses.
type IntakeService struct {
	log      *slog.Logger
	db       IntakeStore
	analysis *AnalysisService
}

type IntakeResult struct {
	Message   internal.IntakeMessage
	Status    string
	Snapshots []*internal.Snapshot
}

func NewIntakeService(log *slog.Logger, db IntakeStore, analysis *AnalysisService) *IntakeService {
	if log == nil {
		log = slog.Default()
	}
	return &IntakeService{log: log.With("module", "intake"), db: db, analysis: analysis}
}

func (s *IntakeService) ProcessByProviderMessageID(ctx context.Context, provider, messageID string) (IntakeResult, error) {
	msg, err := s.db.GetIntakeMessage(provider, messageID)
	if err != nil {
		return IntakeResult{}, err
	}
	if msg == nil {
		return IntakeResult{}, fmt.Errorf("message not found: provider=%s messageId=%s", provider, messageID)
	}
	return s.ProcessMessage(ctx, *msg)
}

// ProcessPending works through fetched messages oldest first. A message that
// fails is marked failed and the batch continues; only cancellation stops it.
func (s *IntakeService) ProcessPending(ctx context.Context, limit int, provider string) ([]IntakeResult, error) {
	pending, err := s.db.ListIntakeByStatus(IntakeFetched, provider, limit)
	if err != nil {
		return nil, err
	}

	results := make([]IntakeResult, 0, len(pending))
	for _, msg := range pending {
		res, err := s.ProcessMessage(ctx, msg)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			s.log.Error("message failed", "provider", msg.Provider, "messageId", msg.MessageID, "err", err)
		}
		results = append(results, res)
	}
	return results, nil
}

// ProcessMessage analyzes every upload found in one message. Each upload
// replaces the current snapshot, so the last one stays loaded. A snapshot
// that could not be written to the cache is live and counts as analyzed.
func (s *IntakeService) ProcessMessage(ctx context.Context, msg internal.IntakeMessage) (IntakeResult, error) {
	res := IntakeResult{Message: msg}

	raw, err := os.ReadFile(msg.RawRef)
	if err != nil {
		return s.finish(res, IntakeFailed, err)
	}
	uploads, subject, err := ExtractUploadsFromEmailRaw(raw)
	if err != nil {
		return s.finish(res, IntakeFailed, err)
	}
	if len(uploads) == 0 {
		s.log.Info("no upload in message", "messageId", msg.MessageID, "subject", util.FirstNonEmpty(subject, msg.Subject))
		return s.finish(res, IntakeSkipped, nil)
	}

	var errs []error
	for _, up := range uploads {
		snap, err := s.analysis.AnalyzeRows(ctx, up.Filename, up.Rows)
		if snap != nil && errors.Is(err, ErrCacheWrite) {
			s.log.Warn("snapshot not cached", "messageId", msg.MessageID, "filename", up.Filename, "err", err)
			err = nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			errs = append(errs, fmt.Errorf("%s: %w", up.Filename, err))
			continue
		}
		res.Snapshots = append(res.Snapshots, snap)
	}

	if len(res.Snapshots) == 0 {
		return s.finish(res, IntakeFailed, errors.Join(errs...))
	}
	for _, err := range errs {
		s.log.Warn("upload skipped", "messageId", msg.MessageID, "err", err)
	}
	return s.finish(res, IntakeProcessed, nil)
}

func (s *IntakeService) finish(res IntakeResult, status string, cause error) (IntakeResult, error) {
	ids := make([]string, 0, len(res.Snapshots))
	for _, snap := range res.Snapshots {
		ids = append(ids, snap.AnalysisID)
	}
	res.Status = status
	if err := s.db.UpdateIntakeStatus(res.Message.ID, status, strings.Join(ids, ",")); err != nil {
		return res, errors.Join(cause, err)
	}
	return res, cause
}
