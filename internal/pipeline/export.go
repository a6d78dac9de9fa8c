package pipeline

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"partners/internal"
)

const missingValue = "-"

var exportHeaders = []string{
	"ID", "Institution Name", "Acronym", "Status", "Similarity",
	"CLARISA Match", "Reason", "Web Page", "Type", "Country",
}

// ExportFilename follows analysis_results_<analysis_id>.<ext>.
func ExportFilename(analysisID, ext string) string {
	return fmt.Sprintf("analysis_results_%s.%s", analysisID, strings.TrimPrefix(ext, "."))
}

// ExportCSV renders the filtered records with every field quoted.
func ExportCSV(records []internal.ResultRecord) []byte {
	var buf bytes.Buffer
	writeCSVLine(&buf, exportHeaders)
	for _, rec := range records {
		writeCSVLine(&buf, exportRow(rec))
	}
	return buf.Bytes()
}

// ExportRowsToXLSX writes the same columns as ExportCSV to an xlsx workbook.
func ExportRowsToXLSX(records []internal.ResultRecord, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, rec := range records {
		r := i + 2
		for c, value := range exportRow(rec) {
			cell, _ := excelize.CoordinatesToCellName(c+1, r)
			_ = f.SetCellValue(sheet, cell, value)
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func WriteCSV(records []internal.ResultRecord, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(outputPath, ExportCSV(records), 0o644)
}

func exportRow(rec internal.ResultRecord) []string {
	return []string{
		rec.ID,
		rec.InstitutionName(),
		rec.Acronym(),
		rec.Status.Label(),
		FormatScore(rec.SimilarityScore, missingValue),
		formatRef(rec.MatchedReferenceID),
		orDash(rec.Reason),
		orDash(rec.Fields.Get(internal.ColWebPage)),
		orDash(rec.Fields.Get(internal.ColInstitutionType)),
		orDash(rec.Fields.Get(internal.ColCountryID)),
	}
}

// FormatScore renders a similarity as a one-decimal percentage.
func FormatScore(score *float64, missing string) string {
	if score == nil {
		return missing
	}
	return strconv.FormatFloat(*score*100, 'f', 1, 64) + "%"
}

func formatRef(id *int) string {
	if id == nil {
		return missingValue
	}
	return strconv.Itoa(*id)
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return missingValue
	}
	return v
}

func writeCSVLine(buf *bytes.Buffer, fields []string) {
	for i, field := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(strings.ReplaceAll(field, `"`, `""`))
		buf.WriteByte('"')
	}
	buf.WriteByte('\n')
}
