// Package orchestrator drives the full deep-search pipeline: expand the
// query, confirm ambiguous companies, search, filter, fetch, and
// synthesize. Each phase is isolated behind a typed terminal Response so a
// caller never has to inspect an error string to know why a query did not
// reach a synthesized answer.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/myeongjunkim/dart-deep-search/internal/dartmodel"
	"github.com/myeongjunkim/dart-deep-search/internal/documentfetcher"
	"github.com/myeongjunkim/dart-deep-search/internal/documentfilter"
	"github.com/myeongjunkim/dart-deep-search/internal/queryexpander"
	"github.com/myeongjunkim/dart-deep-search/internal/searchexecutor"
	"github.com/myeongjunkim/dart-deep-search/internal/synthesizer"
	"github.com/myeongjunkim/dart-deep-search/pkg/ptr"
)

// Status is the terminal state a pipeline run ends in.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusNeedsUserInput Status = "needs_user_input"
	StatusNoResults      Status = "no_results"
	StatusError          Status = "error"
)

// Response is the Orchestrator's single output shape for every terminal
// state. Only the fields relevant to Status are populated; callers should
// switch on Status before reading anything else.
type Response struct {
	Status Status `json:"status"`
	Query  string `json:"query"`

	// Populated when Status == success.
	Answer    string                        `json:"answer,omitempty"`
	Summary   *dartmodel.SynthesisSummary   `json:"summary,omitempty"`
	Documents []dartmodel.DocumentDescriptor `json:"documents,omitempty"`

	// Populated when Status == needs_user_input.
	AmbiguousCompanies []dartmodel.CompanyMatch `json:"ambiguous_companies,omitempty"`

	// Populated when Status in {needs_user_input, no_results, error}.
	Message string `json:"message,omitempty"`

	// Populated when Status == error.
	Phase string `json:"phase,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

const emptyParamsMessage = "Dart 공시 관련 답변이 필요하시군요. '삼성전자', '영업이익 공시', '유상증자' 와 같이 구체적인 기업명이나 공시 관련 용어로 다시 검색해 주시면 더 정확한 결과를 얻으실 수 있습니다."
const needsConfirmationMessage = "입력하신 기업명을 확인해주세요."
const noResultsMessage = "검색 결과가 없습니다."

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	expander  *queryexpander.Expander
	executor  *searchexecutor.Executor
	filter    *documentfilter.Filter
	fetcher   *documentfetcher.Fetcher
	synth     *synthesizer.Synthesizer
	fetchMode string
}

// New constructs an Orchestrator from its already-wired stage components.
// fetchMode is passed straight through to the Document Fetcher
// (documentfetcher.FetchAuto when empty).
func New(expander *queryexpander.Expander, executor *searchexecutor.Executor, filter *documentfilter.Filter, fetcher *documentfetcher.Fetcher, synth *synthesizer.Synthesizer, fetchMode string) *Orchestrator {
	if fetchMode == "" {
		fetchMode = documentfetcher.FetchAuto
	}
	return &Orchestrator{
		expander:  expander,
		executor:  executor,
		filter:    filter,
		fetcher:   fetcher,
		synth:     synth,
		fetchMode: fetchMode,
	}
}

// Run executes the full pipeline for query and returns its terminal
// Response. Run never returns a Go error: every failure mode, expected or
// not, is surfaced as a Response with Status == error.
func (o *Orchestrator) Run(ctx context.Context, query string) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("orchestrator: panic recovered", "query", query, "recover", r)
			resp = errorResponse(query, "run", fmt.Sprintf("%v", r))
		}
	}()

	start := time.Now()

	// Phase 1: expand.
	plan, shards := o.expander.Expand(ctx, query)
	slog.Info("orchestrator: phase expand complete", "query", query, "elapsed", time.Since(start))

	if isEmptyParams(plan) {
		return Response{Status: StatusNeedsUserInput, Query: query, Message: emptyParamsMessage, CreatedAt: time.Now()}
	}

	// Phase 2: confirm ambiguous companies.
	if plan.NeedsConfirmation {
		return Response{
			Status:             StatusNeedsUserInput,
			Query:              query,
			Message:            needsConfirmationMessage,
			AmbiguousCompanies: plan.AmbiguousCompanies,
			CreatedAt:          time.Now(),
		}
	}

	// Phase 3: search.
	searchStart := time.Now()
	hits := o.executor.Run(ctx, shards, plan.Parallel)
	slog.Info("orchestrator: phase search complete", "query", query, "hits", len(hits), "elapsed", time.Since(searchStart))

	if len(hits) == 0 {
		return Response{Status: StatusNoResults, Query: query, Message: noResultsMessage, CreatedAt: time.Now()}
	}

	// Phase 4: filter.
	filterStart := time.Now()
	filtered := o.filter.Filter(ctx, query, plan, hits)
	slog.Info("orchestrator: phase filter complete", "query", query, "retained", len(filtered), "of", len(hits), "elapsed", time.Since(filterStart))

	// Phase 5: fetch.
	fetchStart := time.Now()
	docs := o.fetcher.FetchAll(ctx, filtered, plan, o.fetchMode)
	slog.Info("orchestrator: phase fetch complete", "query", query, "documents", len(docs), "elapsed", time.Since(fetchStart))

	// Phase 6: synthesize.
	synthStart := time.Now()
	confidence := retentionConfidence(len(hits), len(filtered))
	result := o.synth.Synthesize(ctx, query, plan, docs, confidence)
	slog.Info("orchestrator: phase synthesize complete", "query", query, "elapsed", time.Since(synthStart), "total_elapsed", time.Since(start))

	return Response{
		Status:    StatusSuccess,
		Query:     query,
		Answer:    result.Answer,
		Summary:   ptr.Pointer(result.Summary),
		Documents: result.Documents,
		CreatedAt: result.CreatedAt,
	}
}

// isEmptyParams reports whether the expanded plan has nothing to search
// on: no resolved companies, no ambiguous candidates awaiting
// confirmation, and no document-type category.
func isEmptyParams(plan dartmodel.QueryPlan) bool {
	return len(plan.Companies) == 0 && len(plan.AmbiguousCompanies) == 0 && plan.Category.Code == ""
}

// retentionConfidence is a simple proxy for how confident the pipeline is
// in its own result set: the fraction of searched hits the filter judged
// relevant. A plan with nothing to filter (filter ran over zero hits, which
// Run already short-circuits before reaching here) is not a case this
// function needs to handle.
func retentionConfidence(totalHits, retained int) float64 {
	if totalHits == 0 {
		return 0
	}
	return float64(retained) / float64(totalHits)
}

func errorResponse(query, phase, message string) Response {
	return Response{
		Status:    StatusError,
		Query:     query,
		Phase:     phase,
		Message:   message,
		CreatedAt: time.Now(),
	}
}
