package docmapper

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClassifier struct {
	response string
	err      error
}

func (s stubClassifier) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return s.response, s.err
}

func TestMap_LLMPathParsesJSONArray(t *testing.T) {
	m := New(stubClassifier{response: `Sure, here you go:
[{"code": "A001", "confidence": 0.9}, {"code": "B001", "confidence": 0.4}]`})

	guesses := m.Map(context.Background(), "삼성전자 사업보고서", ParserContext{}, 0)
	require.Len(t, guesses, 2)
	assert.Equal(t, "A001", guesses[0].Code)
	assert.Equal(t, 0.9, guesses[0].Confidence)
}

func TestMap_LLMErrorFallsBackToKeywordScorer(t *testing.T) {
	m := New(stubClassifier{err: errors.New("upstream down")})

	guesses := m.Map(context.Background(), "자사주 매입 공시", ParserContext{}, 0)
	require.NotEmpty(t, guesses)
	assert.Equal(t, "B001", guesses[0].Code)
}

func TestMap_LLMMalformedOutputFallsBack(t *testing.T) {
	m := New(stubClassifier{response: "not json at all"})

	guesses := m.Map(context.Background(), "자사주 매입 공시", ParserContext{}, 0)
	require.NotEmpty(t, guesses)
	assert.Equal(t, "B001", guesses[0].Code)
}

func TestMap_NilClassifierUsesFallback(t *testing.T) {
	m := New(nil)

	guesses := m.Map(context.Background(), "감사보고서 알려줘", ParserContext{}, 0)
	require.NotEmpty(t, guesses)
	assert.Equal(t, "F001", guesses[0].Code)
}

func TestFallbackMap_NoMatchReturnsDefault(t *testing.T) {
	guesses := fallbackMap("완전히 무관한 문장입니다", ParserContext{}, 3)
	require.Len(t, guesses, 1)
	assert.Equal(t, defaultCode, guesses[0].Code)
	assert.Equal(t, defaultConfidence, guesses[0].Confidence)
}

func TestFallbackMap_TopScoreNormalizedToOne(t *testing.T) {
	guesses := fallbackMap("자기주식취득 공시 확인", ParserContext{}, 3)
	require.NotEmpty(t, guesses)
	assert.Equal(t, 1.0, guesses[0].Confidence)
}

func TestFallbackMap_DocTypeNamesWeighDouble(t *testing.T) {
	// "감사보고서" appears in both the raw query and the parser's doc-type
	// names; the doc-type-name hit should dominate any equally-keyword
	// category that only appears once in the query.
	pctx := ParserContext{DocTypeNames: []string{"감사보고서"}}
	guesses := fallbackMap("감사보고서 최신 내역", pctx, 3)
	require.NotEmpty(t, guesses)
	assert.Equal(t, "F001", guesses[0].Code)
}

func TestFallbackMap_RespectsMaxTypes(t *testing.T) {
	guesses := fallbackMap("사업보고서 반기보고서 분기보고서 감사보고서", ParserContext{}, 2)
	assert.LessOrEqual(t, len(guesses), 2)
}

func TestName_KnownAndUnknownCodes(t *testing.T) {
	assert.Equal(t, "사업보고서", Name("A001"))
	assert.Equal(t, "ZZZZ", Name("ZZZZ"))
}
