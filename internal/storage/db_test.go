package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partners/internal"
	"partners/internal/util"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "partners.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sampleSnapshot(id string) *internal.Snapshot {
	records := []internal.ResultRecord{
		{
			ID:                   "1",
			Status:               internal.StatusDuplicate,
			MatchedReferenceID:   util.IntPtr(42),
			CandidateReferenceID: util.IntPtr(42),
			SimilarityScore:      util.FloatPtr(0.97),
			Reason:               "Exact name match",
			Fields:               internal.NewOriginalFields("Acme Corp", "ACME", "https://acme.test", "Company", "US", "1"),
		},
		{
			ID:     "2",
			Status: internal.StatusNoMatch,
			Fields: internal.OriginalFields{"Short"},
		},
	}
	progress := internal.ProgressSummary{Processed: 2, Total: 2, Duplicates: 1, NoMatch: 1, Errors: []string{"Row 4: Missing or empty 'country_id'"}}
	return internal.NewSnapshot(id, id+".xlsx", time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC), records, progress)
}

func TestLoadSnapshotEmpty(t *testing.T) {
	db := openTemp(t)
	snap, err := db.LoadSnapshot()
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSnapshotSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partners.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.SaveSnapshot(sampleSnapshot("a-1")))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	got, err := db.LoadSnapshot()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a-1", got.AnalysisID)
	assert.Equal(t, "a-1.xlsx", got.Filename)
	assert.True(t, got.CreatedAt.Equal(time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)))
	require.Len(t, got.Records, 2)
	assert.Equal(t, 2, got.TotalRecords)

	first := got.Records[0]
	assert.Equal(t, internal.StatusDuplicate, first.Status)
	require.NotNil(t, first.MatchedReferenceID)
	assert.Equal(t, 42, *first.MatchedReferenceID)
	require.NotNil(t, first.SimilarityScore)
	assert.InDelta(t, 0.97, *first.SimilarityScore, 1e-9)
	assert.Equal(t, "ACME", first.Acronym())

	second := got.Records[1]
	assert.Nil(t, second.MatchedReferenceID)
	assert.Nil(t, second.SimilarityScore)
	assert.Equal(t, "", second.Acronym())

	assert.Equal(t, 1, got.Progress.Duplicates)
	assert.Equal(t, []string{"Row 4: Missing or empty 'country_id'"}, got.Progress.Errors)
}

func TestSaveSnapshotReplacesPrevious(t *testing.T) {
	db := openTemp(t)
	require.NoError(t, db.SaveSnapshot(sampleSnapshot("a")))

	replacement := internal.NewSnapshot("b", "b.xlsx", time.Now(), []internal.ResultRecord{{ID: "9", Status: internal.StatusNoMatch}}, internal.ProgressSummary{})
	require.NoError(t, db.SaveSnapshot(replacement))

	got, err := db.LoadSnapshot()
	require.NoError(t, err)
	assert.Equal(t, "b", got.AnalysisID)
	require.Len(t, got.Records, 1)
	assert.Equal(t, "9", got.Records[0].ID)
}

func TestClearSnapshot(t *testing.T) {
	db := openTemp(t)
	require.NoError(t, db.SaveSnapshot(sampleSnapshot("a")))
	require.NoError(t, db.ClearSnapshot())

	got, err := db.LoadSnapshot()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestIntakeMessages(t *testing.T) {
	db := openTemp(t)

	row, err := db.UpsertIntakeMessage("imap", "INBOX:7", "Partners batch", "ops@example.test", "2026-03-01T10:00:00Z", "h1", "/raw/1.eml")
	require.NoError(t, err)
	assert.Equal(t, "fetched", row.Status)

	again, err := db.UpsertIntakeMessage("imap", "INBOX:7", "Partners batch (fwd)", "ops@example.test", "2026-03-01T10:00:00Z", "h2", "/raw/1.eml")
	require.NoError(t, err)
	assert.Equal(t, row.ID, again.ID)
	assert.Equal(t, "Partners batch (fwd)", again.Subject)

	_, err = db.UpsertIntakeMessage("imap", "INBOX:8", "Other", "x@example.test", "2026-03-01T11:00:00Z", "h3", "/raw/2.eml")
	require.NoError(t, err)

	pending, err := db.ListIntakeByStatus("fetched", "", 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "INBOX:7", pending[0].MessageID)

	require.NoError(t, db.UpdateIntakeStatus(row.ID, "processed", "analysis-1"))
	pending, err = db.ListIntakeByStatus("fetched", "", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	got, err := db.GetIntakeMessage("imap", "INBOX:7")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "processed", got.Status)
	assert.Equal(t, "analysis-1", got.AnalysisID)

	missing, err := db.GetIntakeMessage("gmail", "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListIntakeByStatusScopesProviderBeforeLimit(t *testing.T) {
	db := openTemp(t)

	_, err := db.UpsertIntakeMessage("gmail", "g1", "a", "x@example.test", "2026-03-01T08:00:00Z", "h1", "/raw/g1.eml")
	require.NoError(t, err)
	_, err = db.UpsertIntakeMessage("gmail", "g2", "b", "x@example.test", "2026-03-01T09:00:00Z", "h2", "/raw/g2.eml")
	require.NoError(t, err)
	_, err = db.UpsertIntakeMessage("imap", "INBOX:1", "c", "x@example.test", "2026-03-01T10:00:00Z", "h3", "/raw/i1.eml")
	require.NoError(t, err)

	imap, err := db.ListIntakeByStatus("fetched", "imap", 1)
	require.NoError(t, err)
	require.Len(t, imap, 1)
	assert.Equal(t, "INBOX:1", imap[0].MessageID)

	all, err := db.ListIntakeByStatus("fetched", "", 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "g1", all[0].MessageID)
	assert.Equal(t, "g2", all[1].MessageID)
}

func TestMetadata(t *testing.T) {
	db := openTemp(t)
	v, err := db.GetMetadata("last_analysis_id")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, db.SetMetadata("last_analysis_id", "a"))
	require.NoError(t, db.SetMetadata("last_analysis_id", "b"))
	v, err = db.GetMetadata("last_analysis_id")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "b", *v)
}
