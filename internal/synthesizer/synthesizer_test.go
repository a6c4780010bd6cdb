package synthesizer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myeongjunkim/dart-deep-search/internal/dartmodel"
)

type stubClassifier struct {
	response string
	err      error
	calls    int
}

func (s *stubClassifier) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	s.calls++
	return s.response, s.err
}

func sampleDocs() []dartmodel.ProcessedDocument {
	return []dartmodel.ProcessedDocument{
		{
			DisclosureHit: dartmodel.DisclosureHit{
				CorpName: "삼성전자", ReportName: "주요사항보고서", ReceiptDate: "20240115", ReceiptNo: "20240115000001",
			},
			Content: "합병 비율은 1:0.5 입니다.",
		},
		{
			DisclosureHit: dartmodel.DisclosureHit{
				CorpName: "SK하이닉스", ReportName: "주요사항보고서", ReceiptDate: "20240110", ReceiptNo: "20240110000002",
			},
			Content: "합병 계약을 체결하였습니다.",
		},
		{
			DisclosureHit: dartmodel.DisclosureHit{
				CorpName: "삼성전자", ReportName: "사업보고서", ReceiptDate: "20240110", ReceiptNo: "20240110000003",
			},
			Content: "연간 실적 보고서입니다.",
		},
	}
}

func TestSynthesize_NilClassifierProducesRuleBasedAnswer(t *testing.T) {
	s := New(nil)
	result := s.Synthesize(context.Background(), "합병 공시", dartmodel.QueryPlan{Keywords: []string{"합병"}}, sampleDocs(), 0.8)

	assert.Equal(t, "합병 공시", result.Query)
	assert.Contains(t, result.Answer, "3건")
	assert.Equal(t, 3, result.Summary.TotalDocuments)
	assert.ElementsMatch(t, []string{"삼성전자", "SK하이닉스"}, result.Summary.Companies)
	assert.Equal(t, "20240110", result.Summary.DateRange.Start)
	assert.Equal(t, "20240115", result.Summary.DateRange.End)
	assert.Equal(t, 0.8, result.Summary.Confidence)
	require.Len(t, result.Documents, 3)
}

func TestSynthesize_TimelineIsReverseChronologicalAndCapped(t *testing.T) {
	s := New(nil)
	result := s.Synthesize(context.Background(), "q", dartmodel.QueryPlan{}, sampleDocs(), 0)

	require.NotEmpty(t, result.Summary.Timeline)
	assert.Equal(t, "20240115", result.Summary.Timeline[0].Date)
	assert.Equal(t, "20240110", result.Summary.Timeline[1].Date)
	assert.Len(t, result.Summary.Timeline[1].Events, 2)
}

func TestSynthesize_EmptyDocumentsProducesZeroedSummary(t *testing.T) {
	s := New(nil)
	result := s.Synthesize(context.Background(), "q", dartmodel.QueryPlan{}, nil, 0)

	assert.Equal(t, 0, result.Summary.TotalDocuments)
	assert.Empty(t, result.Summary.Companies)
	assert.Empty(t, result.Summary.Timeline)
	assert.Empty(t, result.Documents)
}

func TestSynthesize_UsesLLMAnswerWhenClassifierSucceeds(t *testing.T) {
	stub := &stubClassifier{response: "LLM이 작성한 답변입니다."}
	s := New(stub)
	result := s.Synthesize(context.Background(), "합병 공시", dartmodel.QueryPlan{}, sampleDocs(), 0.5)

	assert.Equal(t, "LLM이 작성한 답변입니다.", result.Answer)
	assert.Equal(t, 1, stub.calls)
}

func TestSynthesize_FallsBackToRuleBasedWhenLLMErrors(t *testing.T) {
	stub := &stubClassifier{err: assertError("upstream down")}
	s := New(stub)
	result := s.Synthesize(context.Background(), "합병 공시", dartmodel.QueryPlan{}, sampleDocs(), 0.5)

	assert.Contains(t, result.Answer, "3건")
}

func TestReportTypesLine_SortsByCountDescending(t *testing.T) {
	line := reportTypesLine(map[string]int{"A": 1, "B": 3, "C": 2})
	assert.Equal(t, "B(3건), C(2건), A(1건)", line)
}

func TestCompaniesLine_EmptyReturnsPlaceholder(t *testing.T) {
	assert.Equal(t, "없음", companiesLine(nil))
}

func TestDateRangeLine_EmptyReturnsPlaceholder(t *testing.T) {
	assert.Equal(t, "알 수 없음", dateRangeLine(dartmodel.DateRange{}))
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func assertError(msg string) error { return assertErr(msg) }
