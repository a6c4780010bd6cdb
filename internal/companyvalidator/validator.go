package companyvalidator

import (
	"sort"

	"github.com/myeongjunkim/dart-deep-search/internal/dartmodel"
)

// Status is the outcome of a Find call, one of the four states spec.md
// §4.4 names.
type Status string

const (
	StatusExact     Status = "exact"
	StatusFuzzy     Status = "fuzzy"
	StatusAmbiguous Status = "ambiguous"
	StatusNotFound  Status = "not_found"
)

const (
	defaultThreshold  = 70
	autoAcceptScore   = 95
	runnerUpMargin    = 10
	maxCandidates     = 5
)

// Result is the outcome of resolving one company name or code.
type Result struct {
	Status            Status
	Company           string
	CorpCode          string
	StockCode         string
	Score             int
	Candidates        []dartmodel.NamedSimScore
	NeedsConfirmation bool
}

// BatchResult pairs a Result with the query that produced it, mirroring
// the original's find_companies_batch output shape.
type BatchResult struct {
	Result
	OriginalQuery string
}

// Validator resolves company names/codes against a Registry.
type Validator struct {
	registry *Registry
}

// New constructs a Validator over an already-loaded Registry.
func New(registry *Registry) *Validator {
	return &Validator{registry: registry}
}

// Find resolves query to a canonical company, per spec.md §4.4's four
// states. A threshold <= 0 uses the default of 70.
func (v *Validator) Find(query string, threshold int) Result {
	if threshold <= 0 {
		threshold = defaultThreshold
	}

	if query == "" || v.registry.Len() == 0 {
		return Result{Status: StatusNotFound}
	}

	if rec, ok := v.registry.ByExactName(query); ok {
		return Result{
			Status:     StatusExact,
			Company:    rec.CorpName,
			CorpCode:   rec.CorpCode,
			StockCode:  rec.StockCode,
			Score:      100,
			Candidates: []dartmodel.NamedSimScore{{Name: rec.CorpName, CorpCode: rec.CorpCode, StockCode: rec.StockCode, Score: 100}},
		}
	}

	scored := rankCandidates(query, v.registry.Records())
	if len(scored) == 0 {
		return Result{Status: StatusNotFound}
	}

	var candidates []dartmodel.NamedSimScore
	for _, c := range scored {
		if c.Score >= threshold {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return Result{Status: StatusNotFound, Score: scored[0].Score}
	}

	// Ambiguous whenever the best candidate misses auto-accept (<95) or sits
	// within runnerUpMargin points of the runner-up, per spec.md §4.4.
	best := candidates[0]
	clearLead := len(scored) < 2 || best.Score-scored[1].Score > runnerUpMargin
	if best.Score >= autoAcceptScore && clearLead {
		return Result{
			Status:     StatusFuzzy,
			Company:    best.Name,
			CorpCode:   best.CorpCode,
			StockCode:  best.StockCode,
			Score:      best.Score,
			Candidates: candidates,
		}
	}
	return Result{
		Status:            StatusAmbiguous,
		Score:             best.Score,
		Candidates:        candidates,
		NeedsConfirmation: true,
	}
}

// FindBatch resolves every query in queries independently, preserving
// input order.
func (v *Validator) FindBatch(queries []string, threshold int) []BatchResult {
	out := make([]BatchResult, len(queries))
	for i, q := range queries {
		out[i] = BatchResult{Result: v.Find(q, threshold), OriginalQuery: q}
	}
	return out
}

// ByStockCode resolves a 6-digit stock code directly, bypassing fuzzy
// matching entirely, per spec.md's stock-code scenario.
func (v *Validator) ByStockCode(stockCode string) (Result, bool) {
	rec, ok := v.registry.ByStockCode(stockCode)
	if !ok {
		return Result{Status: StatusNotFound}, false
	}
	return Result{
		Status:    StatusExact,
		Company:   rec.CorpName,
		CorpCode:  rec.CorpCode,
		StockCode: rec.StockCode,
		Score:     100,
		Candidates: []dartmodel.NamedSimScore{
			{Name: rec.CorpName, CorpCode: rec.CorpCode, StockCode: rec.StockCode, Score: 100},
		},
	}, true
}

func rankCandidates(query string, records []CorpRecord) []dartmodel.NamedSimScore {
	scored := make([]dartmodel.NamedSimScore, 0, len(records))
	for _, rec := range records {
		scored = append(scored, dartmodel.NamedSimScore{
			Name:      rec.CorpName,
			CorpCode:  rec.CorpCode,
			StockCode: rec.StockCode,
			Score:     similarity(query, rec.CorpName),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > maxCandidates {
		scored = scored[:maxCandidates]
	}
	return scored
}
