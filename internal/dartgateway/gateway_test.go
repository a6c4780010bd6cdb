package dartgateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myeongjunkim/dart-deep-search/internal/cache"
	"github.com/myeongjunkim/dart-deep-search/internal/errkind"
	"github.com/myeongjunkim/dart-deep-search/internal/ratelimit"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := cache.New(t.TempDir(), time.Hour)
	require.NoError(t, err)

	return New("test-key", c, ratelimit.NewMulti(), WithBaseURL(srv.URL))
}

func jsonBody(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func TestSearchDisclosures_NormalizesRows(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		jsonBody(w, `{"status":"000","message":"정상","list":[
			{"rcept_no":"20240101000001","corp_name":"Samsung Electronics","report_nm":"Merger report","rcept_dt":"20240101","flr_nm":"Samsung Electronics"}
		]}`)
	})

	hits, err := g.SearchDisclosures(context.Background(), SearchParams{Start: "2024-01-01", End: "2024-01-31"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "20240101000001", hits[0].ReceiptNo)
	assert.Equal(t, "Samsung Electronics", hits[0].CorpName)
}

func TestSearchDisclosures_EmptyIsNotAnError(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		jsonBody(w, `{"status":"013","message":"조회된 데이터가 없습니다."}`)
	})

	hits, err := g.SearchDisclosures(context.Background(), SearchParams{Start: "2024-01-01", End: "2024-01-31"})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchDisclosures_UpstreamErrorStatus(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		jsonBody(w, `{"status":"020","message":"사용한도초과"}`)
	})

	_, err := g.SearchDisclosures(context.Background(), SearchParams{Start: "2024-01-01", End: "2024-01-31"})
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.UpstreamUnavailable))
}

func TestSearchDisclosures_RejectsBadDate(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach upstream with an invalid date")
	})

	_, err := g.SearchDisclosures(context.Background(), SearchParams{Start: "01-01-2024", End: "2024-01-31"})
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.InvalidInput))
}

func TestSearchDisclosures_CachesRepeatedCall(t *testing.T) {
	calls := 0
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		jsonBody(w, `{"status":"000","message":"정상","list":[{"rcept_no":"1","corp_name":"A","report_nm":"R","rcept_dt":"20240101"}]}`)
	})

	params := SearchParams{Start: "2024-01-01", End: "2024-01-31"}
	_, err := g.SearchDisclosures(context.Background(), params)
	require.NoError(t, err)
	_, err = g.SearchDisclosures(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "second identical call should be served from cache")
}

func TestGetCompany_ParsesProfile(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		jsonBody(w, `{"status":"000","message":"정상","corp_code":"00126380","corp_name":"삼성전자","stock_code":"005930"}`)
	})

	rec, err := g.GetCompany(context.Background(), "00126380")
	require.NoError(t, err)
	assert.Equal(t, "00126380", rec.CorpCode)
	assert.Equal(t, "005930", rec.StockCode)
}

func TestGetCompany_RejectsEmptyInput(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach upstream")
	})

	_, err := g.GetCompany(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.InvalidInput))
}

func TestGetDocumentBody_ReturnsContent(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		jsonBody(w, `{"status":"000","message":"정상","content":"본문 내용입니다."}`)
	})

	body, err := g.GetDocumentBody(context.Background(), "20240101000001", false)
	require.NoError(t, err)
	assert.Equal(t, "본문 내용입니다.", body)
}

func TestListAttachments_FiltersByTitle(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		jsonBody(w, `{"status":"000","message":"정상","list":[
			{"title":"감사보고서","url":"http://example.com/a"},
			{"title":"사업보고서","url":"http://example.com/b"}
		]}`)
	})

	atts, err := g.ListAttachments(context.Background(), "20240101000001", "감사", AttachmentList)
	require.NoError(t, err)
	require.Len(t, atts, 1)
	assert.Equal(t, "감사보고서", atts[0].Title)
}

func TestFinancialStatements_ValidatesReportCode(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach upstream with an invalid report code")
	})

	_, err := g.FinancialStatements(context.Background(), "00126380", 2024, "99999")
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.InvalidInput))
}

func TestXBRLTaxonomy_ValidatesClassification(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach upstream with an invalid classification")
	})

	_, err := g.XBRLTaxonomy(context.Background(), "XX1")
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.InvalidInput))
}

func TestFetchCorpCodeRegistry_ReturnsRawArchiveBytes(t *testing.T) {
	want := []byte("PK\x03\x04fake-zip-bytes")
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/corpCode.xml", r.URL.Path)
		w.Header().Set("Content-Type", "application/x-zip-compressed")
		_, _ = w.Write(want)
	})

	got, err := g.FetchCorpCodeRegistry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
