// Package dartmodel holds the request-scoped data types shared across the
// search pipeline: the plan the Query Expander produces, the shards the
// Search Executor runs, the hits they return, the documents the Fetcher
// enriches, and the final synthesis result.
package dartmodel

import "time"

// ResolvedCompany is a company name the pipeline has matched to a canonical
// DART corp code, along with the name it should be displayed under.
type ResolvedCompany struct {
	DisplayName string `json:"display_name"`
	CorpCode    string `json:"corp_code"`
	StockCode   string `json:"stock_code,omitempty"`
}

// DateRange is an inclusive calendar-day bound, both ends in YYYY-MM-DD form.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// CategoryGuess is one of the Doc-Type Mapper's ranked candidates.
type CategoryGuess struct {
	Code       string  `json:"code"`
	Confidence float64 `json:"confidence"`
}

// QueryPlan is the Query Expander's output and the Search Executor's input.
type QueryPlan struct {
	OriginalQuery      string            `json:"original_query"`
	Companies          []ResolvedCompany `json:"companies"`
	AmbiguousCompanies []CompanyMatch    `json:"ambiguous_companies,omitempty"`
	DateRange          DateRange         `json:"date_range"`
	Category           CategoryGuess     `json:"category"`
	MajorEventTypes    []string          `json:"major_event_types,omitempty"`
	SecurityTypes      []string          `json:"security_types,omitempty"`
	ReportItemTypes    []string          `json:"report_item_types,omitempty"`
	Keywords           []string          `json:"keywords,omitempty"`
	NeedsConfirmation  bool              `json:"needs_confirmation"`
	Parallel           bool              `json:"-"`
}

// CompanyMatch is one candidate the Company Validator considered for a
// user-typed name, carried on the plan when a match needs confirmation.
type CompanyMatch struct {
	Query      string          `json:"query"`
	Candidates []NamedSimScore `json:"candidates"`
}

// NamedSimScore pairs a candidate company name with its similarity score.
type NamedSimScore struct {
	Name      string `json:"name"`
	CorpCode  string `json:"corp_code,omitempty"`
	StockCode string `json:"stock_code,omitempty"`
	Score     int    `json:"score"`
}

// SearchShard is a single upstream search call.
type SearchShard struct {
	CorpCode        string `json:"corp_code,omitempty"`
	Start           string `json:"start"`
	End             string `json:"end"`
	CategoryDetail  string `json:"category_detail,omitempty"`
	PageSize        int    `json:"page_size"`
}

// DisclosureHit is a single row returned by an upstream search.
type DisclosureHit struct {
	ReceiptNo     string `json:"rcept_no"`
	CorpName      string `json:"corp_name"`
	ReportName    string `json:"report_nm"`
	ReceiptDate   string `json:"rcept_dt"`
	Submitter     string `json:"flr_nm"`
	RemarkCode    string `json:"rm,omitempty"`
	CorpClass     string `json:"corp_cls,omitempty"`
	CorpCode      string `json:"corp_code,omitempty"`
}

// DedupKey returns the hit's identity for deduplication: the receipt number
// when present, otherwise the company|title|date fallback named in the
// specification.
func (h DisclosureHit) DedupKey() string {
	if h.ReceiptNo != "" {
		return h.ReceiptNo
	}
	return h.CorpName + "|" + h.ReportName + "|" + h.ReceiptDate
}

// Document source tags, one per rung of the Document Fetcher's fallback
// ladder.
const (
	SourceDetailedAPI     = "detailed_api"
	SourceOriginalDoc     = "original_document"
	SourceDownloadedFile  = "downloaded_file"
	SourceURLOnly         = "url_only"
)

// ProcessedDocument is a DisclosureHit enriched by the Fetcher.
type ProcessedDocument struct {
	DisclosureHit
	Content        string         `json:"content"`
	StructuredData map[string]any `json:"structured_data"`
	Source         string         `json:"source"`
	ReportType     string         `json:"report_type"`
	URL            string         `json:"url,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// SynthesisSummary is the aggregate statistics block of a Synthesis Result.
type SynthesisSummary struct {
	TotalDocuments int               `json:"total_documents"`
	Companies      []string          `json:"companies"`
	DateRange      DateRange         `json:"date_range"`
	Confidence     float64           `json:"confidence"`
	CountsByType   map[string]int    `json:"counts_by_type,omitempty"`
	Timeline       []TimelineEntry   `json:"timeline,omitempty"`
}

// TimelineEntry groups same-day events for the Synthesizer's reverse
// chronological timeline.
type TimelineEntry struct {
	Date   string   `json:"date"`
	Events []string `json:"events"`
}

// DocumentDescriptor is a trimmed reference to a processed document, used in
// both the Synthesizer's "key findings" list and the final result set.
type DocumentDescriptor struct {
	CorpName    string `json:"corp_name"`
	ReportName  string `json:"report_nm"`
	ReceiptDate string `json:"rcept_dt"`
	ReceiptNo   string `json:"rcept_no"`
	ViewerURL   string `json:"viewer_url"`
	Content     string `json:"content,omitempty"`
}

// SynthesisResult is the pipeline's terminal success payload.
type SynthesisResult struct {
	Query     string               `json:"query"`
	Answer    string               `json:"answer"`
	Summary   SynthesisSummary     `json:"summary"`
	Documents []DocumentDescriptor `json:"documents"`
	CreatedAt time.Time            `json:"created_at"`
}

// ViewerURL builds the stable DART viewer URL for a receipt number.
func ViewerURL(receiptNo string) string {
	return "https://dart.fss.or.kr/dsaf001/main.do?rcpNo=" + receiptNo
}
