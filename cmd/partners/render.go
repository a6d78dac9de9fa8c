package main

import (
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"

	"partners/internal"
	"partners/internal/pipeline"
)

func printSummary(snap *internal.Snapshot) {
	p := snap.Progress
	fmt.Printf("analysis %s file=%s records=%d processed=%d\n", snap.AnalysisID, snap.Filename, snap.TotalRecords, p.Processed)
	fmt.Printf("  duplicates=%d potential=%d noMatch=%d exact=%d errors=%d\n", p.Duplicates, p.PotentialDuplicates, p.NoMatch, p.ExactMatches, len(p.Errors))
	for _, e := range p.Errors {
		fmt.Printf("  ! %s\n", e)
	}
}

func printView(w io.Writer, snap *internal.Snapshot, res pipeline.ViewResult, page int) {
	fmt.Fprintf(w, "analysis %s: %d matched, page %d/%d\n", snap.AnalysisID, res.TotalMatched, page, res.TotalPages)
	if len(res.Items) == 0 {
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Institution", "Acronym", "Status", "Similarity", "Match", "Country"})
	table.SetAutoWrapText(false)
	for _, rec := range res.Items {
		match := "-"
		if rec.MatchedReferenceID != nil {
			match = fmt.Sprint(*rec.MatchedReferenceID)
		}
		table.Append([]string{
			rec.ID,
			rec.InstitutionName(),
			rec.Acronym(),
			rec.Status.Label(),
			pipeline.FormatScore(rec.SimilarityScore, "unknown"),
			match,
			rec.Fields.Get(internal.ColCountryID),
		})
	}
	table.Render()
}

func printIntake(res pipeline.IntakeResult) {
	fmt.Fprintf(os.Stdout, "message id=%d provider=%s messageId=%s status=%s analyses=%d\n",
		res.Message.ID, res.Message.Provider, res.Message.MessageID, res.Status, len(res.Snapshots))
}
