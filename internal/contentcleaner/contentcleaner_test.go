package contentcleaner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean_EmptyInputReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", Clean("", true))
	assert.Equal(t, "", Clean("   \n\t", true))
}

func TestClean_StripsScriptAndStyleTags(t *testing.T) {
	html := `<html><head><style>.a{color:red}</style></head><body><script>alert(1)</script><p>본문 내용</p></body></html>`
	out := Clean(html, true)
	assert.Contains(t, out, "본문 내용")
	assert.NotContains(t, out, "alert")
	assert.NotContains(t, out, "color:red")
}

func TestClean_DecodesHTMLEntities(t *testing.T) {
	out := Clean("<p>A&amp;B 주식회사</p>", true)
	assert.Contains(t, out, "A&B 주식회사")
}

func TestClean_FormatsTableAsPipeDelimitedRows(t *testing.T) {
	html := `<table><tr><th>구분</th><th>금액</th></tr><tr><td>매출</td><td>100</td></tr></table>`
	out := Clean(html, true)
	assert.Contains(t, out, "구분 | 금액")
	assert.Contains(t, out, "매출 | 100")
}

func TestClean_PreserveStructureFalseFlattensToOneLine(t *testing.T) {
	html := `<p>첫째 줄</p><p>둘째 줄</p>`
	out := Clean(html, false)
	assert.NotContains(t, out, "\n")
	assert.Contains(t, out, "첫째 줄")
	assert.Contains(t, out, "둘째 줄")
}

func TestClean_CollapsesExcessiveBlankLines(t *testing.T) {
	html := "<p>A</p>\n\n\n\n<p>B</p>"
	out := Clean(html, true)
	assert.False(t, strings.Contains(out, "\n\n\n"))
}

func TestClean_StripsDisallowedSpecialCharacters(t *testing.T) {
	out := Clean("<p>정상 텍스트 ^ 비정상 문자 ☆</p>", true)
	assert.NotContains(t, out, "^")
	assert.NotContains(t, out, "☆")
	assert.Contains(t, out, "정상 텍스트")
}

func TestCleanForLLM_ShortContentUntouched(t *testing.T) {
	out := CleanForLLM("<p>짧은 내용</p>", 10000)
	assert.Equal(t, "짧은 내용", out)
}

func TestCleanForLLM_LongContentTrimmedWithElisionMarker(t *testing.T) {
	long := strings.Repeat("가", 200)
	out := CleanForLLM("<p>"+long+"</p>", 100)
	assert.Contains(t, out, "중간 내용 생략")
	assert.True(t, len([]rune(out)) < 200)
}

func TestCleanForLLM_DefaultMaxLengthAppliedWhenNonPositive(t *testing.T) {
	long := strings.Repeat("나", 15000)
	out := CleanForLLM(long, 0)
	assert.True(t, len([]rune(out)) <= defaultMaxLength+100)
}
