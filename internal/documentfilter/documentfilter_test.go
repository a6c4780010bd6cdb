package documentfilter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myeongjunkim/dart-deep-search/internal/dartmodel"
)

type stubClassifier struct {
	response string
	err      error
}

func (s stubClassifier) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return s.response, s.err
}

func hitsN(n int) []dartmodel.DisclosureHit {
	hits := make([]dartmodel.DisclosureHit, n)
	for i := range hits {
		hits[i] = dartmodel.DisclosureHit{
			ReceiptNo:   string(rune('a' + i)),
			CorpName:    "회사",
			ReportName:  "보고서",
			ReceiptDate: "20240101",
		}
	}
	return hits
}

func TestFilter_NilClassifierUsesRuleBasedTopK(t *testing.T) {
	f := New(nil)
	hits := hitsN(40)
	filtered := f.Filter(context.Background(), "삼성전자 실적", dartmodel.QueryPlan{}, hits)
	assert.Len(t, filtered, ruleBasedTopK)
	assert.Equal(t, hits[0].ReceiptNo, filtered[0].ReceiptNo)
}

func TestFilter_BareJSONObjectResponse(t *testing.T) {
	f := New(stubClassifier{response: `{"relevant_indices": [0, 2], "reason": "관련 문서"}`})
	hits := hitsN(3)
	filtered := f.Filter(context.Background(), "질의", dartmodel.QueryPlan{}, hits)
	require.Len(t, filtered, 2)
	assert.Equal(t, hits[0].ReceiptNo, filtered[0].ReceiptNo)
	assert.Equal(t, hits[2].ReceiptNo, filtered[1].ReceiptNo)
}

func TestFilter_FencedJSONCodeBlockResponse(t *testing.T) {
	f := New(stubClassifier{response: "다음과 같습니다:\n```json\n{\"relevant_indices\": [1], \"reason\": \"유일한 관련 문서\"}\n```"})
	hits := hitsN(3)
	filtered := f.Filter(context.Background(), "질의", dartmodel.QueryPlan{}, hits)
	require.Len(t, filtered, 1)
	assert.Equal(t, hits[1].ReceiptNo, filtered[0].ReceiptNo)
}

func TestFilter_RelevantIndicesRegexFallback(t *testing.T) {
	f := New(stubClassifier{response: `선별 결과 relevant_indices: [0, 1] 이고 reason: "첫 두 문서가 적절함"`})
	hits := hitsN(3)
	filtered := f.Filter(context.Background(), "질의", dartmodel.QueryPlan{}, hits)
	require.Len(t, filtered, 2)
}

func TestFilter_LooseIntegerExtractionFallback(t *testing.T) {
	f := New(stubClassifier{response: "문서 0과 문서 2가 관련 있습니다."})
	hits := hitsN(3)
	filtered := f.Filter(context.Background(), "질의", dartmodel.QueryPlan{}, hits)
	require.Len(t, filtered, 2)
}

func TestFilter_UnparseableResponseFallsBackToTop5OfBatch(t *testing.T) {
	f := New(stubClassifier{response: "전혀 관련 없는 설명입니다 without any numbers"})
	hits := hitsN(10)
	filtered := f.Filter(context.Background(), "질의", dartmodel.QueryPlan{}, hits)
	assert.Len(t, filtered, minRetained)
}

func TestFilter_LLMErrorFallsBackToTop5OfBatch(t *testing.T) {
	f := New(stubClassifier{err: errors.New("upstream down")})
	hits := hitsN(10)
	filtered := f.Filter(context.Background(), "질의", dartmodel.QueryPlan{}, hits)
	assert.Len(t, filtered, minRetained)
}

func TestFilter_EmptyLLMSelectionRetainsTop5(t *testing.T) {
	f := New(stubClassifier{response: `{"relevant_indices": [], "reason": "관련 문서 없음"}`})
	hits := hitsN(10)
	filtered := f.Filter(context.Background(), "질의", dartmodel.QueryPlan{}, hits)
	assert.Len(t, filtered, minRetained)
	assert.Equal(t, hits[0].ReceiptNo, filtered[0].ReceiptNo)
}

func TestFilter_OutOfRangeIndicesAreIgnored(t *testing.T) {
	f := New(stubClassifier{response: `{"relevant_indices": [0, 99], "reason": "일부 유효"}`})
	hits := hitsN(3)
	filtered := f.Filter(context.Background(), "질의", dartmodel.QueryPlan{}, hits)
	require.Len(t, filtered, 1)
	assert.Equal(t, hits[0].ReceiptNo, filtered[0].ReceiptNo)
}

func TestFilter_PreservesInputOrderRegardlessOfLLMReturnOrder(t *testing.T) {
	f := New(stubClassifier{response: `{"relevant_indices": [2, 0, 1], "reason": "순서 뒤섞임"}`})
	hits := hitsN(3)
	filtered := f.Filter(context.Background(), "질의", dartmodel.QueryPlan{}, hits)
	require.Len(t, filtered, 3)
	assert.Equal(t, hits[0].ReceiptNo, filtered[0].ReceiptNo)
	assert.Equal(t, hits[1].ReceiptNo, filtered[1].ReceiptNo)
	assert.Equal(t, hits[2].ReceiptNo, filtered[2].ReceiptNo)
}

func TestFilter_EmptyInputReturnsNil(t *testing.T) {
	f := New(stubClassifier{response: `{"relevant_indices": [0], "reason": "n/a"}`})
	filtered := f.Filter(context.Background(), "질의", dartmodel.QueryPlan{}, nil)
	assert.Nil(t, filtered)
}

func TestFilter_MoreThan100HitsOnlySubmitsFirst100ToLLM(t *testing.T) {
	var seenBatchSize int
	f := New(stubClassifierFunc(func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
		seenBatchSize++
		return `{"relevant_indices": [0], "reason": "첫 문서"}`, nil
	}))
	hits := hitsN(120)
	filtered := f.Filter(context.Background(), "질의", dartmodel.QueryPlan{}, hits)
	require.Len(t, filtered, 1)
	assert.Equal(t, 1, seenBatchSize)
}

type stubClassifierFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

func (f stubClassifierFunc) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f(ctx, systemPrompt, userPrompt)
}
