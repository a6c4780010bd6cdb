// Package documentfetcher resolves each surviving search hit to a
// Processed Document: structured fields from a category-specific Gateway
// endpoint when available, falling back through the original document
// body, a downloaded archive, and finally a bare viewer URL.
package documentfetcher

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"github.com/myeongjunkim/dart-deep-search/internal/cache"
	"github.com/myeongjunkim/dart-deep-search/internal/contentcleaner"
	"github.com/myeongjunkim/dart-deep-search/internal/dartgateway"
	"github.com/myeongjunkim/dart-deep-search/internal/dartmodel"
	"github.com/myeongjunkim/dart-deep-search/pkg/safe"
)

const (
	defaultMaxConcurrent  = 3
	minOriginalContentLen = 1000

	FetchAuto     = "auto"
	FetchDetailed = "detailed"
	FetchOriginal = "original"
)

const (
	familyPeriodicReport         = "periodic_report"
	familyMajorReport            = "major_report"
	familySecuritiesRegistration = "securities_registration"
	familyOwnershipDisclosure    = "ownership_disclosure"
)

// Reader is the narrow Gateway contract this package drives.
type Reader interface {
	PeriodicReportItem(ctx context.Context, corpCode, itemName string, year int) ([]dartgateway.Row, error)
	MajorEvents(ctx context.Context, corpCode, eventType, startYear, endYear string) ([]dartgateway.Row, error)
	SecuritiesRegistration(ctx context.Context, corpCode, secType, startYear, endYear string) ([]dartgateway.Row, error)
	Shareholders(ctx context.Context, corpCode string, kind dartgateway.ShareholderType) ([]dartgateway.Row, error)
	GetDocumentBody(ctx context.Context, receiptNo string, includeAll bool) (string, error)
	DownloadArchive(ctx context.Context, receiptNo string) ([]byte, error)
}

// Cacher is the narrow cache contract this package drives, satisfied by
// *internal/cache.Cache.
type Cacher interface {
	GetOrLoad(ctx context.Context, key, operation string, dest any, load func(ctx context.Context) (any, error)) error
}

// Fetcher turns filtered hits into Processed Documents.
type Fetcher struct {
	reader        Reader
	cache         Cacher
	maxConcurrent int
}

// New constructs a Fetcher. cache may be nil to disable caching.
// maxConcurrent<=0 uses the default of 3.
func New(reader Reader, c Cacher, maxConcurrent int) *Fetcher {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	return &Fetcher{reader: reader, cache: c, maxConcurrent: maxConcurrent}
}

// FetchAll fetches every hit's document, bounded to the Fetcher's
// concurrency cap. Individual failures are captured in each document's
// Error field and never abort the batch. Documents are returned in the
// order of hits.
func (f *Fetcher) FetchAll(ctx context.Context, hits []dartmodel.DisclosureHit, plan dartmodel.QueryPlan, mode string) []dartmodel.ProcessedDocument {
	results := make([]dartmodel.ProcessedDocument, len(hits))
	p := pool.New().WithMaxGoroutines(f.maxConcurrent)
	for i, hit := range hits {
		i, hit := i, hit
		p.Go(func() {
			safe.WithRecover(func() {
				results[i] = f.FetchOne(ctx, hit, plan, mode)
			}, func(err error) {
				slog.Error("documentfetcher: fetch goroutine panicked", "rcept_no", hit.ReceiptNo, "err", err)
				results[i] = dartmodel.ProcessedDocument{DisclosureHit: hit, Error: err.Error()}
			})()
		})
	}
	p.Wait()
	return results
}

// FetchOne resolves a single hit to a Processed Document, consulting the
// cache (keyed on receipt number, corp code, effective category, and
// fetch mode) when one is configured.
func (f *Fetcher) FetchOne(ctx context.Context, hit dartmodel.DisclosureHit, plan dartmodel.QueryPlan, mode string) dartmodel.ProcessedDocument {
	if mode == "" {
		mode = FetchAuto
	}
	category := effectiveCategory(hit, plan)

	if f.cache == nil {
		return f.fetch(ctx, hit, plan, mode, category)
	}

	key := cache.Key("documentfetcher.fetch", map[string]any{
		"rcept_no":   hit.ReceiptNo,
		"corp_code":  hit.CorpCode,
		"category":   category,
		"fetch_mode": mode,
	})

	var doc dartmodel.ProcessedDocument
	err := f.cache.GetOrLoad(ctx, key, "documentfetcher.fetch", &doc, func(ctx context.Context) (any, error) {
		return f.fetch(ctx, hit, plan, mode, category), nil
	})
	if err != nil {
		slog.Warn("documentfetcher: cache lookup failed, fetching uncached", "rcept_no", hit.ReceiptNo, "err", err)
		return f.fetch(ctx, hit, plan, mode, category)
	}
	return doc
}

func (f *Fetcher) fetch(ctx context.Context, hit dartmodel.DisclosureHit, plan dartmodel.QueryPlan, mode, category string) dartmodel.ProcessedDocument {
	doc := dartmodel.ProcessedDocument{DisclosureHit: hit, ReportType: category}

	family := apiFamily(category)
	if (mode == FetchAuto || mode == FetchDetailed) && family != "" && hit.CorpCode != "" {
		sections := f.fetchStructured(ctx, hit.CorpCode, hit.ReceiptNo, family, plan)
		if len(sections) > 0 {
			doc.StructuredData = sectionsToMap(sections)
			doc.Content = synthesizeContent(sections)
			doc.Source = dartmodel.SourceDetailedAPI
			return doc
		}
		if mode == FetchDetailed {
			doc.Error = "no structured data available for this document"
			return doc
		}
	}

	if mode == FetchAuto || mode == FetchOriginal {
		body, err := f.reader.GetDocumentBody(ctx, hit.ReceiptNo, false)
		if err != nil {
			slog.Warn("documentfetcher: document body fetch failed", "rcept_no", hit.ReceiptNo, "err", err)
		} else if len([]rune(body)) > minOriginalContentLen && !strings.HasPrefix(strings.TrimSpace(body), "http") {
			doc.Content = contentcleaner.Clean(body, true)
			doc.Source = dartmodel.SourceOriginalDoc
			return doc
		}
	}

	raw, err := f.reader.DownloadArchive(ctx, hit.ReceiptNo)
	if err != nil {
		slog.Warn("documentfetcher: archive download failed", "rcept_no", hit.ReceiptNo, "err", err)
		doc.Error = err.Error()
	} else if text, extractErr := extractArchiveText(raw); extractErr == nil && strings.TrimSpace(text) != "" {
		doc.Content = contentcleaner.Clean(text, true)
		doc.Source = dartmodel.SourceDownloadedFile
		return doc
	}

	doc.URL = dartmodel.ViewerURL(hit.ReceiptNo)
	doc.Source = dartmodel.SourceURLOnly
	return doc
}

// effectiveCategory picks the category code used to determine the API
// family: an inference from the report title takes precedence, falling
// back to the plan's own category guess.
func effectiveCategory(hit dartmodel.DisclosureHit, plan dartmodel.QueryPlan) string {
	if inferred := inferReportType(hit.ReportName); inferred != "" {
		return inferred
	}
	return plan.Category.Code
}

// inferReportType guesses a category code from a hit's report title,
// used when the upstream search result didn't carry one.
func inferReportType(reportName string) string {
	switch {
	case strings.Contains(reportName, "사업보고서"):
		return "A001"
	case strings.Contains(reportName, "반기보고서"):
		return "A002"
	case strings.Contains(reportName, "분기보고서"):
		return "A003"
	case strings.Contains(reportName, "주요사항"):
		return "B001"
	case strings.Contains(reportName, "주요경영"):
		return "B002"
	case strings.Contains(reportName, "대량보유"), strings.Contains(reportName, "5%"):
		return "D001"
	case strings.Contains(reportName, "임원") && strings.Contains(reportName, "주주"):
		return "D002"
	case strings.Contains(reportName, "증권신고"):
		switch {
		case strings.Contains(reportName, "지분"):
			return "C001"
		case strings.Contains(reportName, "채무"), strings.Contains(reportName, "채권"):
			return "C002"
		case strings.Contains(reportName, "파생"):
			return "C003"
		}
	}
	return ""
}

func apiFamily(category string) string {
	if category == "" {
		return ""
	}
	switch category[0] {
	case 'A':
		return familyPeriodicReport
	case 'B':
		return familyMajorReport
	case 'C':
		return familySecuritiesRegistration
	case 'D':
		return familyOwnershipDisclosure
	default:
		return ""
	}
}

// structuredSection is one labeled field group collected from a
// category-specific endpoint, kept in a slice rather than a map so that
// content synthesis has a stable, deterministic order.
type structuredSection struct {
	key string
	row dartgateway.Row
}

func (f *Fetcher) fetchStructured(ctx context.Context, corpCode, receiptNo, family string, plan dartmodel.QueryPlan) []structuredSection {
	year := yearFromReceiptNo(receiptNo)

	switch family {
	case familyPeriodicReport:
		items := plan.ReportItemTypes
		if len(items) == 0 {
			items = []string{"배당"}
		}
		var sections []structuredSection
		for _, item := range items {
			rows, err := f.reader.PeriodicReportItem(ctx, corpCode, item, year)
			if err != nil {
				slog.Warn("documentfetcher: periodic report item fetch failed", "item", item, "err", err)
				continue
			}
			if row, ok := matchReceiptNo(rows, receiptNo); ok {
				sections = append(sections, structuredSection{key: "business_" + item, row: row})
			}
		}
		return sections

	case familyMajorReport:
		var sections []structuredSection
		for _, eventType := range plan.MajorEventTypes {
			rows, err := f.reader.MajorEvents(ctx, corpCode, eventType, strconv.Itoa(year), "")
			if err != nil {
				slog.Warn("documentfetcher: major event fetch failed", "event_type", eventType, "err", err)
				continue
			}
			if row, ok := matchReceiptNo(rows, receiptNo); ok {
				sections = append(sections, structuredSection{key: "event_" + eventType, row: row})
			}
		}
		return sections

	case familySecuritiesRegistration:
		var sections []structuredSection
		for _, secType := range plan.SecurityTypes {
			rows, err := f.reader.SecuritiesRegistration(ctx, corpCode, secType, strconv.Itoa(year), "")
			if err != nil {
				slog.Warn("documentfetcher: securities registration fetch failed", "securities_type", secType, "err", err)
				continue
			}
			if row, ok := matchReceiptNo(rows, receiptNo); ok {
				sections = append(sections, structuredSection{key: "securities_" + secType, row: row})
			}
		}
		return sections

	case familyOwnershipDisclosure:
		rows, err := f.reader.Shareholders(ctx, corpCode, dartgateway.ShareholderMajor)
		if err != nil {
			slog.Warn("documentfetcher: shareholders fetch failed", "err", err)
			return nil
		}
		if row, ok := matchReceiptNo(rows, receiptNo); ok {
			return []structuredSection{{key: "major_shareholders", row: row}}
		}
		return nil

	default:
		return nil
	}
}

func matchReceiptNo(rows []dartgateway.Row, receiptNo string) (dartgateway.Row, bool) {
	for _, row := range rows {
		if row.GetReply("rcept_no").String() == receiptNo || row.GetReply("rcp_no").String() == receiptNo {
			return row, true
		}
	}
	return nil, false
}

func yearFromReceiptNo(receiptNo string) int {
	if len(receiptNo) < 4 {
		return 0
	}
	year, err := strconv.Atoi(receiptNo[:4])
	if err != nil || year < 2000 || year > 2030 {
		return 0
	}
	return year
}

var sectionLabels = map[string]string{
	"major_shareholders": "주요주주",
}

func sectionLabel(key string) string {
	switch {
	case strings.HasPrefix(key, "business_"):
		return "사업보고서 - " + strings.TrimPrefix(key, "business_")
	case strings.HasPrefix(key, "event_"):
		return "주요사항 - " + strings.TrimPrefix(key, "event_")
	case strings.HasPrefix(key, "securities_"):
		return "증권신고 - " + strings.TrimPrefix(key, "securities_")
	}
	if label, ok := sectionLabels[key]; ok {
		return label
	}
	return key
}

// synthesizeContent renders labeled sections into plain text, in the
// order they were collected.
func synthesizeContent(sections []structuredSection) string {
	var sb strings.Builder
	for _, s := range sections {
		sb.WriteString("\n=== ")
		sb.WriteString(sectionLabel(s.key))
		sb.WriteString(" ===\n")
		sb.WriteString(formatRow(s.row))
	}
	return strings.TrimSpace(sb.String())
}

func formatRow(row dartgateway.Row) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		if k == "status" || k == "message" || k == "result" {
			continue
		}
		value := row.GetReply(k).String()
		if value == "" {
			continue
		}
		if len([]rune(value)) > 500 {
			value = string([]rune(value)[:500])
		}
		sb.WriteString("  • ")
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(value)
		sb.WriteString("\n")
	}
	return sb.String()
}

func sectionsToMap(sections []structuredSection) map[string]any {
	m := make(map[string]any, len(sections))
	for _, s := range sections {
		m[s.key] = s.row
	}
	return m
}

// extractArchiveText unzips a downloaded filing archive and concatenates
// the text of every XML/HTML member, leaving markup removal to the
// content cleaner.
func extractArchiveText(raw []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, file := range zr.File {
		lower := strings.ToLower(file.Name)
		if !strings.HasSuffix(lower, ".xml") && !strings.HasSuffix(lower, ".html") && !strings.HasSuffix(lower, ".htm") {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		sb.Write(data)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
