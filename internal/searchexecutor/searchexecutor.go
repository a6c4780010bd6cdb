// Package searchexecutor runs a Query Plan's Search Shards against the
// DART Gateway, concurrently or sequentially per the plan's strategy
// flag, then deduplicates, sorts, and truncates the aggregate hit set.
package searchexecutor

import (
	"context"
	"log/slog"
	"sort"

	"github.com/sourcegraph/conc/pool"

	"github.com/myeongjunkim/dart-deep-search/internal/dartgateway"
	"github.com/myeongjunkim/dart-deep-search/internal/dartmodel"
	"github.com/myeongjunkim/dart-deep-search/pkg/safe"
	"github.com/myeongjunkim/dart-deep-search/pkg/sets"
)

// Searcher is the narrow Gateway contract this package drives.
type Searcher interface {
	SearchDisclosures(ctx context.Context, p dartgateway.SearchParams) ([]dartmodel.DisclosureHit, error)
}

const defaultMaxResults = 100

// Executor runs shards against a Searcher.
type Executor struct {
	searcher   Searcher
	maxResults int
}

// New constructs an Executor. maxResults<=0 uses the default of 100.
func New(searcher Searcher, maxResults int) *Executor {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &Executor{searcher: searcher, maxResults: maxResults}
}

type shardOutcome struct {
	hits []dartmodel.DisclosureHit
	err  error
}

// Run executes every shard in plan, concurrently when plan.Parallel and
// there is more than one shard, otherwise sequentially with early exit
// once the soft result ceiling is reached. Per-shard errors are isolated
// and logged; they never abort the aggregate.
func (e *Executor) Run(ctx context.Context, shards []dartmodel.SearchShard, parallel bool) []dartmodel.DisclosureHit {
	var all []dartmodel.DisclosureHit

	if parallel && len(shards) > 1 {
		p := pool.NewWithResults[shardOutcome]()
		for _, shard := range shards {
			shard := shard
			p.Go(func() shardOutcome {
				var outcome shardOutcome
				safe.WithRecover(func() {
					hits, err := e.searchShard(ctx, shard)
					outcome = shardOutcome{hits: hits, err: err}
				}, func(err error) {
					slog.Error("searchexecutor: shard goroutine panicked", "err", err)
					outcome = shardOutcome{err: err}
				})()
				return outcome
			})
		}
		for _, outcome := range p.Wait() {
			if outcome.err != nil {
				slog.Warn("searchexecutor: shard search failed, excluding from aggregate", "err", outcome.err)
				continue
			}
			all = append(all, outcome.hits...)
		}
	} else {
		for _, shard := range shards {
			hits, err := e.searchShard(ctx, shard)
			if err != nil {
				slog.Warn("searchexecutor: shard search failed, excluding from aggregate", "err", err)
				continue
			}
			all = append(all, hits...)
			if len(all) >= e.maxResults {
				break
			}
		}
	}

	unique := dedupe(all)
	sortByReceiptDateDesc(unique)
	if len(unique) > e.maxResults {
		unique = unique[:e.maxResults]
	}
	return unique
}

func (e *Executor) searchShard(ctx context.Context, shard dartmodel.SearchShard) ([]dartmodel.DisclosureHit, error) {
	return e.searcher.SearchDisclosures(ctx, dartgateway.SearchParams{
		CorpCode:       shard.CorpCode,
		Start:          shard.Start,
		End:            shard.End,
		CategoryDetail: shard.CategoryDetail,
		PageSize:       shard.PageSize,
	})
}

// dedupe collapses hits sharing a DedupKey, keeping the first occurrence.
func dedupe(hits []dartmodel.DisclosureHit) []dartmodel.DisclosureHit {
	seen := sets.NewHashSet[string]()
	unique := make([]dartmodel.DisclosureHit, 0, len(hits))
	for _, h := range hits {
		key := h.DedupKey()
		if h.ReceiptNo == "" {
			slog.Warn("searchexecutor: hit missing receipt number, deduplicating by company|title|date", "key", key)
		}
		if !seen.Add(key) {
			continue
		}
		unique = append(unique, h)
	}
	return unique
}

func sortByReceiptDateDesc(hits []dartmodel.DisclosureHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].ReceiptDate != hits[j].ReceiptDate {
			return hits[i].ReceiptDate > hits[j].ReceiptDate
		}
		return hits[i].ReceiptNo > hits[j].ReceiptNo
	})
}
