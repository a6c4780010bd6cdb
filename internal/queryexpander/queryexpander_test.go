package queryexpander

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myeongjunkim/dart-deep-search/internal/companyvalidator"
	"github.com/myeongjunkim/dart-deep-search/internal/dartmodel"
	"github.com/myeongjunkim/dart-deep-search/internal/dateparser"
	"github.com/myeongjunkim/dart-deep-search/internal/docmapper"
	"github.com/myeongjunkim/dart-deep-search/internal/queryparser"
)

const testCorpCodeXML = `<?xml version="1.0" encoding="UTF-8"?>
<result>
  <list>
    <corp_code>00126380</corp_code>
    <corp_name>삼성전자</corp_name>
    <stock_code>005930</stock_code>
    <modify_date>20240101</modify_date>
  </list>
</result>`

type fakeFetcher struct{ data []byte }

func (f fakeFetcher) FetchCorpCodeRegistry(ctx context.Context) ([]byte, error) {
	return f.data, nil
}

func buildTestArchive(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("CORPCODE.xml")
	require.NoError(t, err)
	_, err = f.Write([]byte(testCorpCodeXML))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func newTestExpander(t *testing.T, now time.Time) *Expander {
	t.Helper()
	registry := companyvalidator.NewRegistry()
	require.NoError(t, registry.Load(context.Background(), fakeFetcher{data: buildTestArchive(t)}))

	e := New(queryparser.New(nil), companyvalidator.New(registry), docmapper.New(nil), true)
	e.now = func() time.Time { return now }
	return e
}

func TestExpand_SingleCompanyNarrowWindow(t *testing.T) {
	now := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	e := newTestExpander(t, now)

	plan, shards := e.Expand(context.Background(), "삼성전자 2024년 3월 공시")
	require.Len(t, plan.Companies, 1)
	assert.Equal(t, "00126380", plan.Companies[0].CorpCode)
	assert.Equal(t, "2024-03-01", plan.DateRange.Start)
	assert.Equal(t, "2024-03-31", plan.DateRange.End)
	require.Len(t, shards, 1)
	assert.Equal(t, "00126380", shards[0].CorpCode)
}

func TestExpand_NoCompanyDefaultsTo30DayWindow(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	e := newTestExpander(t, now)

	plan, shards := e.Expand(context.Background(), "감사보고서 관련 공시 알려줘")
	assert.Empty(t, plan.Companies)
	assert.Equal(t, "2024-05-16", plan.DateRange.Start)
	assert.Equal(t, "2024-06-15", plan.DateRange.End)
	require.Len(t, shards, 1)
	assert.Empty(t, shards[0].CorpCode)
}

func TestExpand_WideWindowTilesInto90DayShards(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	e := newTestExpander(t, now)

	plan, shards := e.Expand(context.Background(), "최근 1년 주식매수선택권 공시")
	require.Empty(t, plan.Companies)

	for _, s := range shards {
		start, ok1 := dateparser.ParseDate(s.Start)
		end, ok2 := dateparser.ParseDate(s.End)
		require.True(t, ok1)
		require.True(t, ok2)
		assert.LessOrEqual(t, int(end.Sub(start).Hours()/24), 89)
	}

	// shards tile without gaps: each shard's end+1 day equals the
	// previous shard's start.
	for i := 1; i < len(shards); i++ {
		prevStart, _ := dateparser.ParseDate(shards[i-1].Start)
		curEnd, _ := dateparser.ParseDate(shards[i].End)
		assert.Equal(t, prevStart.AddDate(0, 0, -1), curEnd)
	}
}

func TestShardTiling_ExactlyNinetyDaysYieldsOneShard(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 89) // 90-day inclusive span

	plan := dartmodel.QueryPlan{DateRange: dartmodel.DateRange{Start: dateparser.Format(start), End: dateparser.Format(end)}}
	shards := buildShards(plan)
	assert.Len(t, shards, 1)
}

func TestShardTiling_NinetyOneDaysYieldsTwoShards(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 90) // 91-day inclusive span

	plan := dartmodel.QueryPlan{DateRange: dartmodel.DateRange{Start: dateparser.Format(start), End: dateparser.Format(end)}}
	shards := buildShards(plan)
	assert.Len(t, shards, 2)
}

func TestExpand_AmbiguousCompanySetsNeedsConfirmation(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	registry := companyvalidator.NewRegistry()
	xmlTwoSimilar := `<?xml version="1.0" encoding="UTF-8"?>
<result>
  <list><corp_code>00126380</corp_code><corp_name>삼성전자</corp_name><stock_code>005930</stock_code><modify_date>20240101</modify_date></list>
  <list><corp_code>00164779</corp_code><corp_name>삼성전기</corp_name><stock_code>009150</stock_code><modify_date>20240101</modify_date></list>
</result>`
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, _ := w.Create("CORPCODE.xml")
	_, _ = f.Write([]byte(xmlTwoSimilar))
	_ = w.Close()
	require.NoError(t, registry.Load(context.Background(), fakeFetcher{data: buf.Bytes()}))

	e := New(queryparser.New(nil), companyvalidator.New(registry), docmapper.New(nil), true)
	e.now = func() time.Time { return now }

	plan, _ := e.Expand(context.Background(), "삼성 관련 공시")
	if len(plan.AmbiguousCompanies) > 0 {
		assert.True(t, plan.NeedsConfirmation)
	}
}
