package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"partners/internal"
	"partners/internal/store"
)

// ErrNoSnapshot is returned by operations that need a completed analysis.
var ErrNoSnapshot = errors.New("no analysis loaded")

// ErrCacheWrite means the snapshot is live in memory but was not persisted.
// The returned snapshot is still valid.
var ErrCacheWrite = errors.New("snapshot cache write failed")

// Detector runs duplicate detection on an upload workbook.
type Detector interface {
	Detect(ctx context.Context, filename string, workbook []byte) (internal.AnalysisPayload, error)
}

// MetadataWriter records bookkeeping values such as the last analysis id.
type MetadataWriter interface {
	SetMetadata(key, value string) error
}

const MetaLastAnalysisID = "last_analysis_id"

type AnalysisService struct {
	log      *slog.Logger
	store    *store.Store
	detector Detector
	policy   Policy
	meta     MetadataWriter
	now      func() time.Time
}

// NewAnalysisService wires the pieces of an analysis run. detector and meta
// may be nil; without a detector only ImportPayload works.
func NewAnalysisService(log *slog.Logger, st *store.Store, detector Detector, policy Policy, meta MetadataWriter) *AnalysisService {
	if log == nil {
		log = slog.Default()
	}
	return &AnalysisService{
		log:      log.With("module", "analysis"),
		store:    st,
		detector: detector,
		policy:   policy,
		meta:     meta,
		now:      time.Now,
	}
}

func (s *AnalysisService) Policy() Policy {
	return s.policy
}

// AnalyzeFile parses an upload from disk (.xlsx, .html or .htm) and runs it
// through detection.
func (s *AnalysisService) AnalyzeFile(ctx context.Context, path string) (*internal.Snapshot, error) {
	parsed, err := ParseUploadFile(path)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return s.AnalyzeRows(ctx, filepath.Base(path), parsed)
}

// AnalyzeRows sends the accepted rows to the detector and stores the
// classified result. Row errors from parsing are carried into the summary.
func (s *AnalysisService) AnalyzeRows(ctx context.Context, filename string, parsed ParseResult) (*internal.Snapshot, error) {
	if len(parsed.Rows) == 0 {
		if len(parsed.Errors) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoRecords, strings.Join(parsed.Errors, "; "))
		}
		return nil, ErrNoRecords
	}
	if s.detector == nil {
		return nil, errors.New("detection service not configured")
	}

	workbook, err := BuildUploadWorkbook(parsed.Rows)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	s.log.Info("detection started", "filename", filename, "rows", len(parsed.Rows), "rowErrors", len(parsed.Errors))
	payload, err := s.detector.Detect(ctx, filename, workbook)
	if err != nil {
		s.log.Error("detection failed", "filename", filename, "err", err)
		return nil, err
	}
	s.log.Info("detection finished", "filename", filename, "results", len(payload.Results), "ms", time.Since(start).Milliseconds())

	return s.commit(filename, payload, parsed.Errors)
}

// ImportPayload stores a detection response obtained elsewhere, for example
// a JSON file saved from an earlier run.
func (s *AnalysisService) ImportPayload(ctx context.Context, filename string, payload internal.AnalysisPayload) (*internal.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.commit(filename, payload, nil)
}

// Hydrate loads the cached snapshot and recomputes it under the service
// policy, so a cache written under other thresholds never shows stale
// statuses. It returns nil when nothing is cached.
func (s *AnalysisService) Hydrate() (*internal.Snapshot, error) {
	if err := s.store.Hydrate(); err != nil {
		return nil, err
	}
	cached, ok := s.store.Get()
	if !ok {
		return nil, nil
	}
	next := s.policy.Reclassify(cached)
	if err := s.store.Set(next); err != nil {
		s.log.Warn("snapshot cache write failed", "analysisId", next.AnalysisID, "err", err)
		return next, fmt.Errorf("%w: %v", ErrCacheWrite, err)
	}
	s.log.Info("snapshot hydrated", "analysisId", next.AnalysisID, "records", next.TotalRecords,
		"duplicates", next.Progress.Duplicates, "potential", next.Progress.PotentialDuplicates, "noMatch", next.Progress.NoMatch)
	return next, nil
}

// Reclassify recomputes the current snapshot under p and stores the result.
func (s *AnalysisService) Reclassify(p Policy) (*internal.Snapshot, error) {
	current, ok := s.store.Get()
	if !ok {
		return nil, ErrNoSnapshot
	}
	next := p.Reclassify(current)
	if err := s.store.Set(next); err != nil {
		return next, fmt.Errorf("%w: %v", ErrCacheWrite, err)
	}
	s.log.Info("snapshot reclassified", "analysisId", next.AnalysisID,
		"duplicates", next.Progress.Duplicates, "potential", next.Progress.PotentialDuplicates, "noMatch", next.Progress.NoMatch)
	return next, nil
}

// Current returns the stored snapshot or ErrNoSnapshot.
func (s *AnalysisService) Current() (*internal.Snapshot, error) {
	snap, ok := s.store.Get()
	if !ok {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

func (s *AnalysisService) commit(filename string, payload internal.AnalysisPayload, rowErrors []string) (*internal.Snapshot, error) {
	snap := BuildSnapshot(s.policy, filename, payload, rowErrors, s.now())
	if err := s.store.Set(snap); err != nil {
		s.log.Warn("snapshot cache write failed", "analysisId", snap.AnalysisID, "err", err)
		return snap, fmt.Errorf("%w: %v", ErrCacheWrite, err)
	}
	if s.meta != nil {
		if err := s.meta.SetMetadata(MetaLastAnalysisID, snap.AnalysisID); err != nil {
			s.log.Warn("metadata write failed", "err", err)
		}
	}
	s.log.Info("snapshot stored", "analysisId", snap.AnalysisID, "records", snap.TotalRecords,
		"duplicates", snap.Progress.Duplicates, "potential", snap.Progress.PotentialDuplicates, "noMatch", snap.Progress.NoMatch)
	return snap, nil
}

// BuildSnapshot turns a detection payload into a snapshot, one record per
// result in payload order. Statuses are recomputed by p; the payload's own
// status field is not trusted. A zero score without a reference match means
// the service found nothing to compare against and is kept as unknown.
func BuildSnapshot(p Policy, filename string, payload internal.AnalysisPayload, rowErrors []string, createdAt time.Time) *internal.Snapshot {
	records := make([]internal.ResultRecord, 0, len(payload.Results))
	for _, r := range payload.Results {
		score := r.Similarity
		if score != nil && *score == 0 && r.ClarisaMatch == nil {
			score = nil
		}
		rec := internal.ResultRecord{
			ID:                   r.ID,
			CandidateReferenceID: r.ClarisaMatch,
			SimilarityScore:      score,
			Reason:               r.Reason,
			Fields:               internal.NewOriginalFields(r.InstitutionName, r.Acronym, r.WebPage, r.Type, r.Country, r.ID),
		}
		records = append(records, p.Apply(rec))
	}

	errs := append(append([]string{}, rowErrors...), payload.Progress.Errors...)
	processed := payload.Progress.Processed
	if processed == 0 {
		processed = len(records)
	}
	summary := p.Summarize(records, processed, errs)

	analysisID := strings.TrimSpace(payload.FileID)
	if analysisID == "" {
		analysisID = uuid.NewString()
	}
	return internal.NewSnapshot(analysisID, filename, createdAt, records, summary)
}
