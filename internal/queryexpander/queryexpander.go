// Package queryexpander combines the Query Parser, Company Validator, Date
// Parser, and Doc-Type Mapper into a single canonical Query Plan, then
// tiles that plan into the Search Shards the Search Executor runs.
package queryexpander

import (
	"context"
	"strings"
	"time"

	"github.com/myeongjunkim/dart-deep-search/internal/companyvalidator"
	"github.com/myeongjunkim/dart-deep-search/internal/dartmodel"
	"github.com/myeongjunkim/dart-deep-search/internal/dateparser"
	"github.com/myeongjunkim/dart-deep-search/internal/docmapper"
	"github.com/myeongjunkim/dart-deep-search/internal/queryparser"
)

const (
	companyMatchThreshold    = 80
	categoryConfidenceFloor  = 0.5
	maxShardSpanDays         = 90
	defaultShardPageSize     = 100
)

// majorEventTypes, securitiesTypes, and businessReportTypes are the
// detailed sub-type vocabularies the expander scans the query and
// extracted keywords against, surfaced on the plan as MajorEventTypes,
// SecurityTypes, and ReportItemTypes.
var majorEventTypes = []string{
	"부도발생", "영업정지", "회생절차", "해산사유", "유상증자", "무상증자", "유무상증자",
	"감자", "관리절차개시", "소송", "해외상장결정", "해외상장폐지결정", "해외상장",
	"해외상장폐지", "전환사채발행", "신주인수권부사채발행", "교환사채발행", "관리절차중단",
	"조건부자본증권발행", "자산양수도", "타법인증권양도", "유형자산양도", "유형자산양수",
	"타법인증권양수", "영업양도", "영업양수", "자기주식취득신탁계약해지",
	"자기주식취득신탁계약체결", "자기주식처분", "자기주식취득", "주식교환",
	"회사분할합병", "회사분할", "회사합병", "사채권양수", "사채권양도결정",
}

var securitiesTypes = []string{
	"주식의포괄적교환이전", "합병", "증권예탁증권", "채무증권", "지분증권", "분할",
}

var businessReportTypes = []string{
	"조건부자본증권미상환", "미등기임원보수", "회사채미상환", "단기사채미상환", "기업어음미상환",
	"채무증권발행", "사모자금사용", "공모자금사용", "임원전체보수승인", "임원전체보수유형",
	"주식총수", "회계감사", "감사용역", "회계감사용역계약", "사외이사", "신종자본증권미상환",
	"증자", "배당", "자기주식", "최대주주", "최대주주변동", "소액주주", "임원", "직원",
	"임원개인보수", "임원전체보수", "개인별보수", "타법인출자",
}

// Expander owns the four resolution stages and assembles their output into
// a plan and its shards.
type Expander struct {
	parser    *queryparser.Parser
	validator *companyvalidator.Validator
	mapper    *docmapper.Mapper
	parallel  bool
	now       func() time.Time
}

// New constructs an Expander. parallel is the plan-level strategy flag the
// Search Executor reads to decide whether shards run concurrently.
func New(parser *queryparser.Parser, validator *companyvalidator.Validator, mapper *docmapper.Mapper, parallel bool) *Expander {
	return &Expander{parser: parser, validator: validator, mapper: mapper, parallel: parallel, now: time.Now}
}

// Expand runs the full pipeline: parse, resolve companies, compute the date
// range, choose a category, assemble the plan, and tile it into shards.
func (e *Expander) Expand(ctx context.Context, query string) (dartmodel.QueryPlan, []dartmodel.SearchShard) {
	now := e.now()
	parsed := e.parser.Parse(ctx, query)

	plan := dartmodel.QueryPlan{
		OriginalQuery: query,
		Keywords:      parsed.KeywordTexts(),
		Parallel:      e.parallel,
	}

	plan.DateRange = e.resolveDateRange(parsed, now)
	e.resolveCompanies(&plan, parsed)

	guesses := e.mapper.Map(ctx, query, docmapper.ParserContext{
		DocTypeNames: parsed.DocTypeNames(),
		Keywords:     parsed.KeywordTexts(),
	}, 3)
	if len(guesses) > 0 {
		plan.Category = guesses[0]
	}

	detailedTypes(query, plan.Keywords, &plan)

	shards := buildShards(plan)
	return plan, shards
}

func (e *Expander) resolveDateRange(parsed queryparser.ParsedQuery, now time.Time) dartmodel.DateRange {
	var texts []string
	for _, d := range parsed.Dates {
		texts = append(texts, d.Text)
	}
	if len(texts) == 0 {
		return dateparser.Default(now)
	}
	if r, ok := dateparser.ParseExpression(strings.Join(texts, " "), now); ok {
		return r
	}
	return dateparser.Default(now)
}

func (e *Expander) resolveCompanies(plan *dartmodel.QueryPlan, parsed queryparser.ParsedQuery) {
	for _, c := range parsed.Companies {
		var result companyvalidator.Result
		resolved := false

		if c.Type == "stock_code" {
			if r, ok := e.validator.ByStockCode(c.Text); ok {
				result = r
				resolved = true
			}
		}
		if !resolved {
			result = e.validator.Find(c.Text, companyMatchThreshold)
		}

		switch result.Status {
		case companyvalidator.StatusExact, companyvalidator.StatusFuzzy:
			plan.Companies = append(plan.Companies, dartmodel.ResolvedCompany{
				DisplayName: result.Company,
				CorpCode:    result.CorpCode,
				StockCode:   result.StockCode,
			})
			if result.NeedsConfirmation {
				plan.NeedsConfirmation = true
			}
		case companyvalidator.StatusAmbiguous:
			plan.AmbiguousCompanies = append(plan.AmbiguousCompanies, dartmodel.CompanyMatch{
				Query:      c.Text,
				Candidates: result.Candidates,
			})
			plan.NeedsConfirmation = true
		case companyvalidator.StatusNotFound:
			// Unresolved mentions are dropped silently; the orchestrator's
			// empty-params short-circuit handles the case where nothing
			// resolved at all.
		}
	}
}

// detailedTypes replicates the original expander's sub-type extraction:
// the query and extracted keywords, whitespace-stripped and lowercased,
// are scanned against each vocabulary list.
func detailedTypes(query string, keywords []string, plan *dartmodel.QueryPlan) {
	searchText := normalizeForMatch(query)
	if len(keywords) > 0 {
		searchText += normalizeForMatch(strings.Join(keywords, ""))
	}

	for _, t := range majorEventTypes {
		if strings.Contains(searchText, normalizeForMatch(t)) {
			plan.MajorEventTypes = append(plan.MajorEventTypes, t)
		}
	}
	for _, t := range securitiesTypes {
		if strings.Contains(searchText, normalizeForMatch(t)) {
			plan.SecurityTypes = append(plan.SecurityTypes, t)
		}
	}
	for _, t := range businessReportTypes {
		if strings.Contains(searchText, normalizeForMatch(t)) {
			plan.ReportItemTypes = append(plan.ReportItemTypes, t)
		}
	}
}

func normalizeForMatch(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\t", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}

// buildShards tiles the plan into Search Shards: one per resolved company
// when any are fixed, otherwise up to 90-day windows tiling the date range
// from newest to oldest without overlap or gaps.
func buildShards(plan dartmodel.QueryPlan) []dartmodel.SearchShard {
	categoryDetail := ""
	if plan.Category.Confidence >= categoryConfidenceFloor {
		categoryDetail = plan.Category.Code
	}

	if len(plan.Companies) > 0 {
		shards := make([]dartmodel.SearchShard, len(plan.Companies))
		for i, c := range plan.Companies {
			shards[i] = dartmodel.SearchShard{
				CorpCode:       c.CorpCode,
				Start:          plan.DateRange.Start,
				End:            plan.DateRange.End,
				CategoryDetail: categoryDetail,
				PageSize:       defaultShardPageSize,
			}
		}
		return shards
	}

	start, ok1 := dateparser.ParseDate(plan.DateRange.Start)
	end, ok2 := dateparser.ParseDate(plan.DateRange.End)
	if !ok1 || !ok2 {
		return []dartmodel.SearchShard{{
			Start:          plan.DateRange.Start,
			End:            plan.DateRange.End,
			CategoryDetail: categoryDetail,
			PageSize:       defaultShardPageSize,
		}}
	}

	var shards []dartmodel.SearchShard
	currentEnd := end
	for !currentEnd.Before(start) {
		currentStart := currentEnd.AddDate(0, 0, -(maxShardSpanDays - 1))
		if currentStart.Before(start) {
			currentStart = start
		}
		shards = append(shards, dartmodel.SearchShard{
			Start:          dateparser.Format(currentStart),
			End:            dateparser.Format(currentEnd),
			CategoryDetail: categoryDetail,
			PageSize:       defaultShardPageSize,
		})
		currentEnd = currentStart.AddDate(0, 0, -1)
	}

	return shards
}
