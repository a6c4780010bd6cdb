// Package documentfilter narrows an ordered list of disclosure hits down
// to the ones actually relevant to the user's query, using an LLM when
// available and a deterministic rule-based fallback otherwise.
package documentfilter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/myeongjunkim/dart-deep-search/internal/dartmodel"
	"github.com/myeongjunkim/dart-deep-search/pkg/slices"
)

const (
	maxToFilter   = 100
	batchSize     = 100
	ruleBasedTopK = 30
	minRetained   = 5
	maxLooseNums  = 10
)

// Classifier is the narrow text-in/text-out contract the Filter drives an
// LLM through.
type Classifier interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Filter narrows an ordered hit list to the ones relevant to query.
type Filter struct {
	classifier Classifier
}

// New constructs a Filter. classifier may be nil, in which case Filter
// always uses the rule-based fallback.
func New(classifier Classifier) *Filter {
	return &Filter{classifier: classifier}
}

// Filter narrows hits to the ones relevant to query, preserving their
// relative order. When nothing would survive filtering, the top 5 input
// hits are retained instead of returning an empty result.
func (f *Filter) Filter(ctx context.Context, query string, plan dartmodel.QueryPlan, hits []dartmodel.DisclosureHit) []dartmodel.DisclosureHit {
	if len(hits) == 0 {
		return nil
	}

	var filtered []dartmodel.DisclosureHit
	if f.classifier != nil {
		filtered = f.llmFilter(ctx, query, plan, hits)
	} else {
		filtered = ruleBasedFilter(hits)
	}

	if len(filtered) == 0 {
		slog.Warn("documentfilter: filtering eliminated every hit, retaining top 5")
		return topN(hits, minRetained)
	}
	return filtered
}

func (f *Filter) llmFilter(ctx context.Context, query string, plan dartmodel.QueryPlan, hits []dartmodel.DisclosureHit) []dartmodel.DisclosureHit {
	toFilter := hits
	if len(toFilter) > maxToFilter {
		toFilter = toFilter[:maxToFilter]
	}

	var filtered []dartmodel.DisclosureHit
	for _, batch := range slices.Chunk(toFilter, batchSize) {
		indices, reason, ok := f.filterBatch(ctx, query, plan, batch)
		if !ok {
			slog.Warn("documentfilter: batch filter response unparseable, including top 5 as fallback")
			filtered = append(filtered, topN(batch, minRetained)...)
			continue
		}

		slog.Info("documentfilter: batch filtered", "selected", len(indices), "of", len(batch), "reason", reason)
		for _, idx := range indices {
			if idx >= 0 && idx < len(batch) {
				filtered = append(filtered, batch[idx])
			}
		}
	}
	return filtered
}

const systemPrompt = "당신은 DART 공시 문서의 관련성을 평가하는 전문가입니다. 사용자 질의에 직접적으로 필요한 문서만 선별해주세요."

func (f *Filter) filterBatch(ctx context.Context, query string, plan dartmodel.QueryPlan, batch []dartmodel.DisclosureHit) ([]int, string, bool) {
	prompt := buildPrompt(query, plan, batch)

	response, err := f.classifier.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		slog.Warn("documentfilter: LLM call failed", "err", err)
		return nil, "", false
	}

	result := parseFilterResponse(response)
	if result == nil {
		return nil, "", false
	}

	sortedIndices := append([]int(nil), result.RelevantIndices...)
	sortInts(sortedIndices)
	return sortedIndices, result.Reason, true
}

func buildPrompt(query string, plan dartmodel.QueryPlan, batch []dartmodel.DisclosureHit) string {
	var sb strings.Builder
	sb.WriteString("사용자 질의: ")
	sb.WriteString(query)
	sb.WriteString("\n\n다음 공시 문서들 중 사용자 질의에 답변하기 위해 실제로 처리가 필요한 문서만 선별해주세요.\n\n문서 목록:\n")
	for i, h := range batch {
		sb.WriteString(fmt.Sprintf("%d. [%s] %s (%s)\n", i, h.CorpName, h.ReportName, h.ReceiptDate))
	}
	sb.WriteString("\nJSON 형식으로 응답: {\"relevant_indices\": [0, 2, 3], \"reason\": \"선별 이유\"}")
	return sb.String()
}

type filterResult struct {
	RelevantIndices []int  `json:"relevant_indices"`
	Reason          string `json:"reason"`
}

var (
	fencedJSON       = regexp.MustCompile(`(?s)` + "```(?:json)?\\s*(\\{.*?\\})\\s*```")
	bareJSON         = regexp.MustCompile(`(?s)\{.*\}`)
	relevantIndices  = regexp.MustCompile(`relevant_indices["\s]*:\s*\[([^\]]*)\]`)
	reasonPattern    = regexp.MustCompile(`reason["\s]*:\s*["']([^"']*)["']`)
	looseIntegers    = regexp.MustCompile(`\b(\d+)\b`)
)

// parseFilterResponse tries, in order: a fenced JSON code block, a bare
// JSON object, a direct "relevant_indices: [...]" pattern, and finally a
// loose extraction of the first few integers in the text. Returns nil when
// none of these strategies yields anything usable.
func parseFilterResponse(text string) *filterResult {
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		if r := tryUnmarshalFilterResult(m[1]); r != nil {
			return r
		}
	}
	if m := bareJSON.FindString(text); m != "" {
		if r := tryUnmarshalFilterResult(m); r != nil {
			return r
		}
	}
	if m := relevantIndices.FindStringSubmatch(text); m != nil {
		indices := parseIntList(m[1])
		if len(indices) > 0 {
			reason := "자동 추출됨"
			if rm := reasonPattern.FindStringSubmatch(text); rm != nil {
				reason = rm[1]
			}
			return &filterResult{RelevantIndices: indices, Reason: reason}
		}
	}
	if nums := looseIntegers.FindAllStringSubmatch(text, -1); len(nums) > 0 {
		var indices []int
		for _, n := range nums {
			if len(indices) >= maxLooseNums {
				break
			}
			if v, err := strconv.Atoi(n[1]); err == nil {
				indices = append(indices, v)
			}
		}
		if len(indices) > 0 {
			return &filterResult{RelevantIndices: indices, Reason: "응답에서 숫자 패턴 추출"}
		}
	}
	return nil
}

func tryUnmarshalFilterResult(s string) *filterResult {
	var r filterResult
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return nil
	}
	return &r
}

func parseIntList(s string) []int {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if v, err := strconv.Atoi(part); err == nil {
			out = append(out, v)
		}
	}
	return out
}

func sortInts(xs []int) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}

// ruleBasedFilter keeps the top K most recent hits, per spec.md §4.9's
// default K=30.
func ruleBasedFilter(hits []dartmodel.DisclosureHit) []dartmodel.DisclosureHit {
	return topN(hits, ruleBasedTopK)
}

func topN(hits []dartmodel.DisclosureHit, n int) []dartmodel.DisclosureHit {
	if len(hits) <= n {
		return hits
	}
	return hits[:n]
}
