// Package synthesizer aggregates the fetcher's Processed Documents into a
// Synthesis Result: counts, a distinct-company set, the covered date
// range, a reverse-chronological timeline, a handful of key findings, and
// a prose answer. The prose comes from an LLM summarization prompt when a
// classifier is available, and from a fixed template otherwise.
package synthesizer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/myeongjunkim/dart-deep-search/ai/tokenizer"
	"github.com/myeongjunkim/dart-deep-search/internal/contentcleaner"
	"github.com/myeongjunkim/dart-deep-search/internal/dartmodel"
	pkgtext "github.com/myeongjunkim/dart-deep-search/pkg/text"
)

const (
	maxKeyFindings       = 5
	maxTimelineDates     = 10
	maxEventsPerDate     = 3
	maxCompaniesInLine   = 5
	maxReportTypesInLine = 3
	evidenceTokenBudget  = 8000
)

// Classifier is the narrow text-in/text-out contract the Synthesizer
// drives an LLM through. Satisfied by *llmclient.Client.
type Classifier interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Synthesizer turns a batch of Processed Documents into a Synthesis Result.
type Synthesizer struct {
	classifier Classifier
	tok        tokenizer.Estimator
}

// New constructs a Synthesizer. classifier may be nil, in which case
// Synthesize always produces the rule-based template answer.
func New(classifier Classifier) *Synthesizer {
	return &Synthesizer{
		classifier: classifier,
		tok:        tokenizer.NewTiktokenWithCL100KBase(),
	}
}

type analysis struct {
	companies    []string
	dateRange    dartmodel.DateRange
	reportCounts map[string]int
	keywordHits  []string
}

// Synthesize aggregates docs and produces the final Synthesis Result for
// query. confidence is a caller-supplied [0,1] score (e.g. derived from the
// filter's retention ratio); it passes straight through to the summary.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, plan dartmodel.QueryPlan, docs []dartmodel.ProcessedDocument, confidence float64) dartmodel.SynthesisResult {
	an := analyze(docs, plan.Keywords)
	findings := keyFindings(docs)
	timeline := buildTimeline(docs)

	var answer string
	if s.classifier != nil {
		llmAnswer, err := s.generateLLMAnswer(ctx, query, an, findings, timeline, docs)
		if err != nil {
			slog.Warn("synthesizer: LLM synthesis failed, falling back to template", "error", err)
			answer = ruleBasedAnswer(query, an, findings, timeline)
		} else {
			answer = llmAnswer
		}
	} else {
		answer = ruleBasedAnswer(query, an, findings, timeline)
	}

	return dartmodel.SynthesisResult{
		Query:  query,
		Answer: answer,
		Summary: dartmodel.SynthesisSummary{
			TotalDocuments: len(docs),
			Companies:      an.companies,
			DateRange:      an.dateRange,
			Confidence:     confidence,
			CountsByType:   an.reportCounts,
			Timeline:       timeline,
		},
		Documents: formatDocuments(docs),
	}
}

func analyze(docs []dartmodel.ProcessedDocument, keywords []string) analysis {
	an := analysis{reportCounts: map[string]int{}}
	if len(docs) == 0 {
		return an
	}

	companySeen := map[string]bool{}
	var dates []string

	for _, doc := range docs {
		if doc.CorpName != "" && !companySeen[doc.CorpName] {
			companySeen[doc.CorpName] = true
			an.companies = append(an.companies, doc.CorpName)
		}
		if doc.ReceiptDate != "" {
			dates = append(dates, doc.ReceiptDate)
		}
		if doc.ReportName != "" {
			an.reportCounts[doc.ReportName]++
		}
	}

	if len(dates) > 0 {
		sort.Strings(dates)
		an.dateRange = dartmodel.DateRange{Start: dates[0], End: dates[len(dates)-1]}
	}

	for _, kw := range keywords {
		lowered := strings.ToLower(kw)
		for _, doc := range docs {
			haystack := strings.ToLower(doc.ReportName + " " + doc.Content)
			if strings.Contains(haystack, lowered) {
				an.keywordHits = append(an.keywordHits, kw)
				break
			}
		}
	}

	return an
}

func keyFindings(docs []dartmodel.ProcessedDocument) []dartmodel.DocumentDescriptor {
	top := docs
	if len(top) > maxKeyFindings {
		top = top[:maxKeyFindings]
	}
	return lo.Map(top, func(doc dartmodel.ProcessedDocument, _ int) dartmodel.DocumentDescriptor {
		return dartmodel.DocumentDescriptor{
			CorpName:    doc.CorpName,
			ReportName:  doc.ReportName,
			ReceiptDate: doc.ReceiptDate,
			ReceiptNo:   doc.ReceiptNo,
			ViewerURL:   dartmodel.ViewerURL(doc.ReceiptNo),
		}
	})
}

func buildTimeline(docs []dartmodel.ProcessedDocument) []dartmodel.TimelineEntry {
	byDate := map[string][]dartmodel.ProcessedDocument{}
	for _, doc := range docs {
		if doc.ReceiptDate == "" {
			continue
		}
		byDate[doc.ReceiptDate] = append(byDate[doc.ReceiptDate], doc)
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	if len(dates) > maxTimelineDates {
		dates = dates[:maxTimelineDates]
	}

	timeline := make([]dartmodel.TimelineEntry, 0, len(dates))
	for _, date := range dates {
		dayDocs := byDate[date]
		if len(dayDocs) > maxEventsPerDate {
			dayDocs = dayDocs[:maxEventsPerDate]
		}
		events := lo.Map(dayDocs, func(doc dartmodel.ProcessedDocument, _ int) string {
			return fmt.Sprintf("[%s] %s", doc.CorpName, doc.ReportName)
		})
		timeline = append(timeline, dartmodel.TimelineEntry{Date: date, Events: events})
	}
	return timeline
}

func formatDocuments(docs []dartmodel.ProcessedDocument) []dartmodel.DocumentDescriptor {
	return lo.Map(docs, func(doc dartmodel.ProcessedDocument, _ int) dartmodel.DocumentDescriptor {
		return dartmodel.DocumentDescriptor{
			CorpName:    doc.CorpName,
			ReportName:  doc.ReportName,
			ReceiptDate: doc.ReceiptDate,
			ReceiptNo:   doc.ReceiptNo,
			ViewerURL:   dartmodel.ViewerURL(doc.ReceiptNo),
			Content:     contentcleaner.CleanForLLM(doc.Content, 2000),
		}
	})
}

const synthesisSystemPrompt = `당신은 DART 공시 정보를 분석하는 전문가입니다. 공시 문서의 구체적인 내용을 분석하여 정확한 정보를 제공합니다.`

const synthesisUserTemplate = `사용자 질의: {{.Query}}

검색 결과 통계:
- 총 문서 수: {{.TotalCount}}
- 관련 기업: {{.CompaniesLine}}
- 기간: {{.DateRangeLine}}
- 주요 공시 유형: {{.ReportTypesLine}}

주요 공시 목록:
{{.FindingsBlock}}

최근 동향:
{{.TimelineBlock}}

참고 문서 발췌:
{{.EvidenceBlock}}

위 정보를 바탕으로 사용자 질의에 대한 구체적이고 정확한 답변을 작성하세요. 공시 문서의 핵심 내용을 인용하며 설명하고, 필요하면 기업별/시간순으로 정리하세요.`

func (s *Synthesizer) generateLLMAnswer(ctx context.Context, query string, an analysis, findings []dartmodel.DocumentDescriptor, timeline []dartmodel.TimelineEntry, docs []dartmodel.ProcessedDocument) (string, error) {
	prompt, err := pkgtext.NewRenderer().
		WithTemplate(synthesisUserTemplate).
		WithVariables(map[string]any{
			"Query":           query,
			"TotalCount":      len(docs),
			"CompaniesLine":   companiesLine(an.companies),
			"DateRangeLine":   dateRangeLine(an.dateRange),
			"ReportTypesLine": reportTypesLine(an.reportCounts),
			"FindingsBlock":   findingsBlock(findings),
			"TimelineBlock":   timelineBlock(timeline),
			"EvidenceBlock":   s.evidenceBlock(docs),
		}).
		Render()
	if err != nil {
		return "", err
	}

	return s.classifier.Complete(ctx, synthesisSystemPrompt, prompt)
}

// evidenceBlock concatenates the cleaned content of the top few documents,
// trimmed to a token budget so the prompt stays within the model's window
// regardless of how many long filings were fetched.
func (s *Synthesizer) evidenceBlock(docs []dartmodel.ProcessedDocument) string {
	top := docs
	if len(top) > maxKeyFindings {
		top = top[:maxKeyFindings]
	}

	var sb strings.Builder
	for _, doc := range top {
		fmt.Fprintf(&sb, "### [%s] %s (%s)\n%s\n\n", doc.CorpName, doc.ReportName, doc.ReceiptDate, contentcleaner.CleanForLLM(doc.Content, 2000))
	}

	text := sb.String()
	if s.tok == nil {
		return text
	}
	count, err := s.tok.EstimateText(context.Background(), text)
	if err != nil || count <= evidenceTokenBudget {
		return text
	}

	// Degrade gracefully: drop documents from the tail until the estimate
	// fits, rather than truncating mid-document.
	for len(top) > 1 {
		top = top[:len(top)-1]
		sb.Reset()
		for _, doc := range top {
			fmt.Fprintf(&sb, "### [%s] %s (%s)\n%s\n\n", doc.CorpName, doc.ReportName, doc.ReceiptDate, contentcleaner.CleanForLLM(doc.Content, 2000))
		}
		text = sb.String()
		count, err = s.tok.EstimateText(context.Background(), text)
		if err == nil && count <= evidenceTokenBudget {
			break
		}
	}
	return text
}

func ruleBasedAnswer(query string, an analysis, findings []dartmodel.DocumentDescriptor, timeline []dartmodel.TimelineEntry) string {
	var lines []string

	lines = append(lines, fmt.Sprintf("'%s'에 대한 검색 결과입니다.\n", query))
	lines = append(lines, fmt.Sprintf("총 %d건의 관련 공시를 찾았습니다.", totalFrom(an)))

	if an.dateRange.Start != "" && an.dateRange.End != "" {
		lines = append(lines, fmt.Sprintf("기간: %s ~ %s", an.dateRange.Start, an.dateRange.End))
	}
	if len(an.companies) > 0 {
		lines = append(lines, fmt.Sprintf("관련 기업: %s", companiesLine(an.companies)))
	}
	if len(an.reportCounts) > 0 {
		lines = append(lines, fmt.Sprintf("주요 공시 유형: %s", reportTypesLine(an.reportCounts)))
	}

	if len(findings) > 0 {
		lines = append(lines, "\n### 주요 공시:")
		limit := 3
		if len(findings) < limit {
			limit = len(findings)
		}
		for i, f := range findings[:limit] {
			lines = append(lines, fmt.Sprintf("%d. [%s] %s (%s)", i+1, f.CorpName, f.ReportName, f.ReceiptDate))
		}
	}

	if len(timeline) > 0 && len(timeline[0].Events) > 0 {
		lines = append(lines, "\n### 최근 동향:")
		lines = append(lines, fmt.Sprintf("%s: %s", timeline[0].Date, strings.Join(timeline[0].Events, ", ")))
	}

	return strings.Join(lines, "\n")
}

func totalFrom(an analysis) int {
	total := 0
	for _, c := range an.reportCounts {
		total += c
	}
	return total
}

func companiesLine(companies []string) string {
	if len(companies) == 0 {
		return "없음"
	}
	shown := companies
	if len(shown) > maxCompaniesInLine {
		shown = shown[:maxCompaniesInLine]
	}
	return strings.Join(shown, ", ")
}

func dateRangeLine(r dartmodel.DateRange) string {
	if r.Start == "" || r.End == "" {
		return "알 수 없음"
	}
	return r.Start + " ~ " + r.End
}

func reportTypesLine(counts map[string]int) string {
	if len(counts) == 0 {
		return "없음"
	}
	type pair struct {
		name  string
		count int
	}
	pairs := make([]pair, 0, len(counts))
	for name, count := range counts {
		pairs = append(pairs, pair{name, count})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].name < pairs[j].name
	})
	if len(pairs) > maxReportTypesInLine {
		pairs = pairs[:maxReportTypesInLine]
	}
	parts := lo.Map(pairs, func(p pair, _ int) string {
		return fmt.Sprintf("%s(%d건)", p.name, p.count)
	})
	return strings.Join(parts, ", ")
}

func findingsBlock(findings []dartmodel.DocumentDescriptor) string {
	if len(findings) == 0 {
		return "없음"
	}
	lines := lo.Map(findings, func(f dartmodel.DocumentDescriptor, i int) string {
		return fmt.Sprintf("%d. [%s] %s (%s) - %s", i+1, f.CorpName, f.ReportName, f.ReceiptDate, f.ViewerURL)
	})
	return strings.Join(lines, "\n")
}

func timelineBlock(timeline []dartmodel.TimelineEntry) string {
	if len(timeline) == 0 {
		return "없음"
	}
	lines := lo.Map(timeline, func(t dartmodel.TimelineEntry, _ int) string {
		return fmt.Sprintf("%s: %s", t.Date, strings.Join(t.Events, ", "))
	})
	return strings.Join(lines, "\n")
}
