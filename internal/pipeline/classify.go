package pipeline

import (
	"partners/internal"
	"partners/internal/config"
)

// Policy maps a similarity score to a status tier. It is the only place a
// status is derived; payload statuses from the detection service are ignored.
type Policy struct {
	th config.Thresholds
}

// NewPolicy rejects a threshold triple that is out of order.
func NewPolicy(th config.Thresholds) (Policy, error) {
	if err := th.Validate(); err != nil {
		return Policy{}, err
	}
	return Policy{th: th}, nil
}

func (p Policy) Thresholds() config.Thresholds {
	return p.th
}

// Classify applies inclusive lower bounds: a score equal to a threshold
// belongs to the higher tier. A nil score is no_match.
func (p Policy) Classify(score *float64) internal.Status {
	if score == nil {
		return internal.StatusNoMatch
	}
	switch s := *score; {
	case s >= p.th.Duplicate:
		return internal.StatusDuplicate
	case s >= p.th.Potential:
		return internal.StatusPotentialDuplicate
	default:
		return internal.StatusNoMatch
	}
}

func (p Policy) IsExact(score *float64) bool {
	return score != nil && *score >= p.th.Exact
}

// Apply sets the record status from its score. The reference match is exposed
// only for duplicate and potential_duplicate records.
func (p Policy) Apply(rec internal.ResultRecord) internal.ResultRecord {
	rec.Status = p.Classify(rec.SimilarityScore)
	rec.MatchedReferenceID = nil
	if rec.Status != internal.StatusNoMatch && rec.CandidateReferenceID != nil {
		id := *rec.CandidateReferenceID
		rec.MatchedReferenceID = &id
	}
	return rec
}

// Summarize counts tiers over records. Processed and Errors come from the caller.
func (p Policy) Summarize(records []internal.ResultRecord, processed int, errs []string) internal.ProgressSummary {
	sum := internal.ProgressSummary{
		Processed: processed,
		Total:     len(records),
		Errors:    append([]string{}, errs...),
	}
	for _, rec := range records {
		switch rec.Status {
		case internal.StatusDuplicate:
			sum.Duplicates++
		case internal.StatusPotentialDuplicate:
			sum.PotentialDuplicates++
		default:
			sum.NoMatch++
		}
		if p.IsExact(rec.SimilarityScore) {
			sum.ExactMatches++
		}
	}
	return sum
}

// Reclassify returns a new snapshot with every status recomputed under p.
// The input snapshot is left untouched. A nil snapshot stays nil.
func (p Policy) Reclassify(snap *internal.Snapshot) *internal.Snapshot {
	if snap == nil {
		return nil
	}
	records := make([]internal.ResultRecord, len(snap.Records))
	for i, rec := range snap.Records {
		records[i] = p.Apply(rec)
	}
	summary := p.Summarize(records, snap.Progress.Processed, snap.Progress.Errors)
	return internal.NewSnapshot(snap.AnalysisID, snap.Filename, snap.CreatedAt, records, summary)
}
