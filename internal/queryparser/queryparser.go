// Package queryparser extracts structured search attributes — companies,
// document-type phrases, date expressions, and domain keywords — from a
// natural-language query. An LLM does the extraction when available; a
// deterministic pattern-based extractor always produces a usable result.
package queryparser

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
)

// CompanyMention is a company reference the parser found, tagged by
// whether the matched text looks like a stock code or a bare name.
type CompanyMention struct {
	Text string
	Type string // "company_name" or "stock_code"
}

// DocTypeMention is a document-type phrase the parser recognized.
type DocTypeMention struct {
	Text string
	Code string
}

// DateMention is a date expression the parser recognized, tagged with one
// of the typed attribute classes named in spec.md §4.5.
type DateMention struct {
	Text string
	Type string // current_year, last_year, relative_window, specific_year, quarter, first_half, second_half
}

// KeywordMention is a domain keyword the parser recognized.
type KeywordMention struct {
	Text string
}

// ParsedQuery is the parser's structured output.
type ParsedQuery struct {
	Companies []CompanyMention
	DocTypes  []DocTypeMention
	Dates     []DateMention
	Keywords  []KeywordMention
}

// CompanyNames returns the plain-name mentions (excluding stock codes).
func (p ParsedQuery) CompanyNames() []string {
	var names []string
	for _, c := range p.Companies {
		if c.Type == "company_name" {
			names = append(names, c.Text)
		}
	}
	return names
}

// StockCodes returns the stock-code mentions.
func (p ParsedQuery) StockCodes() []string {
	var codes []string
	for _, c := range p.Companies {
		if c.Type == "stock_code" {
			codes = append(codes, c.Text)
		}
	}
	return codes
}

// DocTypeNames returns the recognized document-type phrase texts.
func (p ParsedQuery) DocTypeNames() []string {
	names := make([]string, len(p.DocTypes))
	for i, d := range p.DocTypes {
		names[i] = d.Text
	}
	return names
}

// KeywordTexts returns the recognized keyword texts.
func (p ParsedQuery) KeywordTexts() []string {
	texts := make([]string, len(p.Keywords))
	for i, k := range p.Keywords {
		texts[i] = k.Text
	}
	return texts
}

// Classifier is the narrow text-in/text-out contract the Parser drives an
// LLM through. Satisfied by *llmclient.Client.
type Classifier interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Parser extracts structured search attributes from a query.
type Parser struct {
	classifier Classifier
}

// New constructs a Parser. classifier may be nil, in which case Parse
// always uses the deterministic fallback.
func New(classifier Classifier) *Parser {
	return &Parser{classifier: classifier}
}

const systemPrompt = `You extract structured search parameters from Korean financial disclosure queries.
Respond with a single JSON object:
{
  "companies": [{"text": "...", "type": "company_name"|"stock_code"}],
  "doc_types": [{"text": "...", "code": "..."}],
  "dates": [{"text": "...", "type": "current_year"|"last_year"|"relative_window"|"specific_year"|"quarter"|"first_half"|"second_half"}],
  "keywords": [{"text": "..."}]
}`

// Parse extracts structured attributes from query. It tries the LLM path
// first when a classifier is configured; any failure (error, empty, or
// malformed response) falls back to the deterministic extractor, which is
// guaranteed to always return a usable result.
func (p *Parser) Parse(ctx context.Context, query string) ParsedQuery {
	if p.classifier != nil {
		if parsed, ok := p.parseWithLLM(ctx, query); ok {
			return parsed
		}
	}
	return fallbackParse(query)
}

func (p *Parser) parseWithLLM(ctx context.Context, query string) (ParsedQuery, bool) {
	content, err := p.classifier.Complete(ctx, systemPrompt, query)
	if err != nil {
		slog.Warn("queryparser: LLM extraction failed, falling back to rule-based parser", "err", err)
		return ParsedQuery{}, false
	}

	match := jsonObject.FindString(content)
	if match == "" {
		slog.Warn("queryparser: LLM response had no JSON object, falling back")
		return ParsedQuery{}, false
	}

	var raw struct {
		Companies []CompanyMention `json:"companies"`
		DocTypes  []DocTypeMention `json:"doc_types"`
		Dates     []DateMention    `json:"dates"`
		Keywords  []KeywordMention `json:"keywords"`
	}
	if err := json.Unmarshal([]byte(match), &raw); err != nil {
		slog.Warn("queryparser: malformed LLM extraction output, falling back", "err", err)
		return ParsedQuery{}, false
	}

	return ParsedQuery{
		Companies: raw.Companies,
		DocTypes:  raw.DocTypes,
		Dates:     raw.Dates,
		Keywords:  raw.Keywords,
	}, true
}

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

var stockCodePattern = regexp.MustCompile(`\b\d{6}\b`)

// majorCompanies is the hard-coded short list of well-known enterprise
// names the fallback extractor recognizes directly, in lieu of a full
// registry lookup (the registry itself lives behind the Company Validator,
// which the parser must not depend on to stay a standalone, dependency-free
// fallback).
var majorCompanies = []string{
	"삼성전자", "LG전자", "SK하이닉스", "현대차", "현대자동차",
	"네이버", "카카오", "쿠팡", "배달의민족", "토스",
	"포스코", "롯데", "신세계", "한화", "두산",
	"CJ", "GS", "KT", "LG화학", "SK이노베이션",
}

// corporateFormSuffixes are trailing tokens that mark a preceding run of
// Hangul/alphanumeric characters as a company name, used when a name isn't
// on the major-companies list.
var corporateFormSuffixes = []string{"주식회사", "㈜", "홀딩스", "그룹"}

var corporateFormPattern = regexp.MustCompile(
	`([\x{AC00}-\x{D7A3}A-Za-z0-9]{2,20})(?:주식회사|㈜|홀딩스|그룹)`,
)

var docTypePatterns = []struct {
	name string
	code string
}{
	{"사업보고서", "A001"},
	{"반기보고서", "A002"},
	{"분기보고서", "A003"},
	{"주요사항보고서", "B001"},
	{"감사보고서", "F001"},
	{"증권신고서", "C001"},
	{"자기주식", "E001"},
	{"주식매수선택권", "E004"},
}

var datePatterns = []struct {
	pattern *regexp.Regexp
	dtype   string
}{
	{regexp.MustCompile(`올해|금년`), "current_year"},
	{regexp.MustCompile(`작년|지난해`), "last_year"},
	{regexp.MustCompile(`최근\s*\d+\s*(?:년|개월|주|일)`), "relative_window"},
	{regexp.MustCompile(`\d{4}\s*년\s*\d{1,2}\s*월`), "specific_year"},
	{regexp.MustCompile(`\d{4}\s*년\s*\d\s*분기`), "quarter"},
	{regexp.MustCompile(`\d{4}\s*년\s*상반기`), "first_half"},
	{regexp.MustCompile(`\d{4}\s*년\s*하반기`), "second_half"},
	{regexp.MustCompile(`\d{4}\s*년`), "specific_year"},
	{regexp.MustCompile(`\d\s*분기`), "quarter"},
	{regexp.MustCompile(`상반기`), "first_half"},
	{regexp.MustCompile(`하반기`), "second_half"},
}

var keywordPatterns = []string{
	"매출", "영업이익", "순이익", "배당", "증자", "감자",
	"인수합병", "M&A", "실적", "재무제표", "자산", "부채",
}

// fallbackParse is the deterministic extractor guaranteed to always
// produce a usable plan: 6-digit stock codes, a hard-coded major-company
// list, Korean corporate-form suffix patterns, and keyword patterns for
// dates and categories.
func fallbackParse(query string) ParsedQuery {
	var parsed ParsedQuery

	for _, code := range stockCodePattern.FindAllString(query, -1) {
		parsed.Companies = append(parsed.Companies, CompanyMention{Text: code, Type: "stock_code"})
	}

	seen := make(map[string]bool)
	for _, name := range majorCompanies {
		if strings.Contains(query, name) {
			parsed.Companies = append(parsed.Companies, CompanyMention{Text: name, Type: "company_name"})
			seen[name] = true
		}
	}
	for _, m := range corporateFormPattern.FindAllStringSubmatch(query, -1) {
		full := m[0]
		if !seen[full] {
			parsed.Companies = append(parsed.Companies, CompanyMention{Text: full, Type: "company_name"})
			seen[full] = true
		}
	}

	for _, dt := range docTypePatterns {
		if strings.Contains(query, dt.name) {
			parsed.DocTypes = append(parsed.DocTypes, DocTypeMention{Text: dt.name, Code: dt.code})
		}
	}

	for _, dp := range datePatterns {
		for _, m := range dp.pattern.FindAllString(query, -1) {
			parsed.Dates = append(parsed.Dates, DateMention{Text: m, Type: dp.dtype})
		}
	}

	for _, kw := range keywordPatterns {
		if strings.Contains(query, kw) {
			parsed.Keywords = append(parsed.Keywords, KeywordMention{Text: kw})
		}
	}

	return parsed
}
