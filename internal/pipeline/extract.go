package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	"github.com/xuri/excelize/v2"

	"partners/internal"
	"partners/internal/util"
)

var (
	ErrMissingColumns = errors.New("missing required columns")
	ErrNoRecords      = errors.New("no valid records found")
)

var (
	requiredColumns = []string{"id", "partner_name", "institution_type", "country_id"}
	optionalColumns = []string{"acronym", "web_page"}
)

// ParseResult holds the accepted rows and one message per rejected row.
type ParseResult struct {
	Rows   []internal.UploadRow
	Errors []string
}

// Upload is one spreadsheet found in an inbound message.
type Upload struct {
	Filename string
	Rows     ParseResult
}

// ParseUploadXLSX reads the first sheet of an upload workbook. A missing
// required column fails the whole file; a row with an empty required cell is
// skipped and reported.
func ParseUploadXLSX(content []byte) (ParseResult, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return ParseResult{}, fmt.Errorf("invalid excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return ParseResult{}, ErrNoRecords
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return ParseResult{}, err
	}
	return parseTable(rows)
}

// ParseUploadHTML reads the first <table> whose header row carries the
// required columns.
func ParseUploadHTML(html string) (ParseResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ParseResult{}, err
	}

	var (
		result ParseResult
		found  bool
		last   error = ErrMissingColumns
	)
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		grid := [][]string{}
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			cells := []string{}
			row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, util.NormalizeSpaces(cell.Text()))
			})
			grid = append(grid, cells)
		})
		parsed, err := parseTable(grid)
		if err != nil {
			last = err
			return true
		}
		result, found = parsed, true
		return false
	})
	if !found {
		return ParseResult{}, last
	}
	return result, nil
}

// ExtractUploadsFromEmailRaw pulls .xlsx attachments and HTML body tables
// out of a raw RFC 822 message.
func ExtractUploadsFromEmailRaw(raw []byte) ([]Upload, string, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, "", err
	}

	uploads := []Upload{}
	for _, att := range env.Attachments {
		filename := strings.TrimSpace(att.FileName)
		if !strings.HasSuffix(strings.ToLower(filename), ".xlsx") {
			continue
		}
		parsed, err := ParseUploadXLSX(att.Content)
		if err != nil {
			continue
		}
		uploads = append(uploads, Upload{Filename: filename, Rows: parsed})
	}

	if len(uploads) == 0 && env.HTML != "" {
		if parsed, err := ParseUploadHTML(env.HTML); err == nil {
			uploads = append(uploads, Upload{Filename: "message-body.html", Rows: parsed})
		}
	}

	return uploads, env.GetHeader("Subject"), nil
}

// BuildUploadWorkbook writes rows back out with the canonical header, which
// is the body sent to the detection service.
func BuildUploadWorkbook(rows []internal.UploadRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	headers := append(append([]string{}, requiredColumns...), optionalColumns...)
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, row := range rows {
		values := []string{row.ID, row.PartnerName, row.InstitutionType, row.CountryID, row.Acronym, row.WebPage}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, i+2)
			_ = f.SetCellStr(sheet, cell, v)
		}
	}

	buf := bytes.NewBuffer(nil)
	if _, err := f.WriteTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func parseTable(grid [][]string) (ParseResult, error) {
	if len(grid) == 0 {
		return ParseResult{}, ErrNoRecords
	}

	index := map[string]int{}
	for i, h := range grid[0] {
		key := util.NormalizeHeader(h)
		if key == "" {
			continue
		}
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	missing := []string{}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return ParseResult{}, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	cell := func(cells []string, col string) string {
		idx, ok := index[col]
		if !ok || idx >= len(cells) {
			return ""
		}
		return util.NormalizeSpaces(cells[idx])
	}

	result := ParseResult{Rows: []internal.UploadRow{}, Errors: []string{}}
	for i, cells := range grid[1:] {
		rowNumber := i + 2
		if blankRow(cells) {
			continue
		}

		row := internal.UploadRow{
			RowNumber:       rowNumber,
			ID:              cell(cells, "id"),
			PartnerName:     cell(cells, "partner_name"),
			Acronym:         cell(cells, "acronym"),
			WebPage:         cell(cells, "web_page"),
			InstitutionType: cell(cells, "institution_type"),
			CountryID:       cell(cells, "country_id"),
		}

		rowOK := true
		for _, col := range requiredColumns {
			if cell(cells, col) == "" {
				result.Errors = append(result.Errors, "Row "+strconv.Itoa(rowNumber)+": Missing or empty '"+col+"'")
				rowOK = false
			}
		}
		if rowOK {
			result.Rows = append(result.Rows, row)
		}
	}

	return result, nil
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
