package internal

import "time"

type Status string

const (
	StatusDuplicate          Status = "duplicate"
	StatusPotentialDuplicate Status = "potential_duplicate"
	StatusNoMatch            Status = "no_match"
)

// Label is the operator-facing name used in views and exports.
func (s Status) Label() string {
	switch s {
	case StatusDuplicate:
		return "Duplicate"
	case StatusPotentialDuplicate:
		return "Potential Duplicate"
	case StatusNoMatch:
		return "No Match"
	default:
		return string(s)
	}
}

// Column indexes into OriginalFields. The order matches the upload template.
type Column int

const (
	ColInstitutionName Column = iota
	ColAcronym
	ColWebPage
	ColInstitutionType
	ColCountryID
	ColSourceRowID

	ColumnCount = 6
)

var ColumnNames = [ColumnCount]string{
	"partner_name",
	"acronym",
	"web_page",
	"institution_type",
	"country_id",
	"id",
}

type OriginalFields []string

// Get returns "" for columns a malformed record does not carry.
func (f OriginalFields) Get(col Column) string {
	if col < 0 || int(col) >= len(f) {
		return ""
	}
	return f[col]
}

func NewOriginalFields(name, acronym, webPage, institutionType, countryID, rowID string) OriginalFields {
	return OriginalFields{name, acronym, webPage, institutionType, countryID, rowID}
}

// ResultRecord is one classified upload row. CandidateReferenceID is the best
// registry entry the detection service reported; MatchedReferenceID carries it
// only while Status is not no_match.
type ResultRecord struct {
	ID                   string         `json:"id"`
	Status               Status         `json:"status"`
	MatchedReferenceID   *int           `json:"matchedReferenceId,omitempty"`
	CandidateReferenceID *int           `json:"candidateReferenceId,omitempty"`
	SimilarityScore      *float64       `json:"similarityScore,omitempty"`
	Reason               string         `json:"reason,omitempty"`
	Fields               OriginalFields `json:"fields"`
}

func (r ResultRecord) InstitutionName() string { return r.Fields.Get(ColInstitutionName) }
func (r ResultRecord) Acronym() string         { return r.Fields.Get(ColAcronym) }

type ProgressSummary struct {
	Processed           int      `json:"processed"`
	Total               int      `json:"total"`
	Duplicates          int      `json:"duplicates"`
	PotentialDuplicates int      `json:"potentialDuplicates"`
	NoMatch             int      `json:"noMatch"`
	ExactMatches        int      `json:"exactMatches"`
	Errors              []string `json:"errors"`
}

// Snapshot is the result set of one completed upload. It is replaced, never edited.
type Snapshot struct {
	AnalysisID   string          `json:"analysisId"`
	Filename     string          `json:"filename"`
	CreatedAt    time.Time       `json:"createdAt"`
	TotalRecords int             `json:"totalRecords"`
	Records      []ResultRecord  `json:"records"`
	Progress     ProgressSummary `json:"progress"`
}

func NewSnapshot(analysisID, filename string, createdAt time.Time, records []ResultRecord, progress ProgressSummary) *Snapshot {
	owned := make([]ResultRecord, len(records))
	copy(owned, records)
	progress.Errors = append([]string(nil), progress.Errors...)
	return &Snapshot{
		AnalysisID:   analysisID,
		Filename:     filename,
		CreatedAt:    createdAt,
		TotalRecords: len(owned),
		Records:      owned,
		Progress:     progress,
	}
}

// UploadRow is one validated row of an uploaded spreadsheet.
type UploadRow struct {
	RowNumber       int
	ID              string
	PartnerName     string
	Acronym         string
	WebPage         string
	InstitutionType string
	CountryID       string
}

// AnalysisPayload mirrors the detection service response body.
type AnalysisPayload struct {
	FileID       string          `json:"file_id"`
	TotalRecords int             `json:"total_records"`
	Results      []PayloadResult `json:"results"`
	Progress     PayloadProgress `json:"progress"`
}

type PayloadResult struct {
	ID              string
	InstitutionName string
	Acronym         string
	Status          string
	Similarity      *float64
	ClarisaMatch    *int
	Reason          string
	WebPage         string
	Type            string
	Country         string
}

type PayloadProgress struct {
	Processed           int      `json:"processed"`
	Total               int      `json:"total"`
	Duplicates          int      `json:"duplicates"`
	PotentialDuplicates int      `json:"potential_duplicates"`
	Errors              []string `json:"errors"`
}

type IntakeMessage struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
	AnalysisID string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}
