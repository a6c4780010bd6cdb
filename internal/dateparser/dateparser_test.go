package dateparser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

func TestParseDate_RoundTrip(t *testing.T) {
	cases := []string{"2024-01-05", "2024.01.05", "20240105", "2024-1-5"}
	for _, c := range cases {
		t.Run(c, func(t *testing.T) {
			parsed, ok := ParseDate(c)
			require.True(t, ok)
			assert.Equal(t, "2024-01-05", Format(parsed))
		})
	}
}

func TestParseDate_RejectsGarbage(t *testing.T) {
	_, ok := ParseDate("not-a-date")
	assert.False(t, ok)
}

func TestParseExpression_RelativeYears(t *testing.T) {
	r, ok := ParseExpression("최근 2년 공시 내역", fixedNow)
	require.True(t, ok)
	assert.Equal(t, "2024-06-15", r.End)
	assert.Equal(t, Format(fixedNow.AddDate(0, 0, -730)), r.Start)
}

func TestParseExpression_RelativeMonths(t *testing.T) {
	r, ok := ParseExpression("최근 3개월", fixedNow)
	require.True(t, ok)
	assert.Equal(t, Format(fixedNow.AddDate(0, 0, -90)), r.Start)
	assert.Equal(t, "2024-06-15", r.End)
}

func TestParseExpression_ThisYear(t *testing.T) {
	r, ok := ParseExpression("올해 실적 공시", fixedNow)
	require.True(t, ok)
	assert.Equal(t, "2024-01-01", r.Start)
	assert.Equal(t, "2024-06-15", r.End)
}

func TestParseExpression_LastYear(t *testing.T) {
	r, ok := ParseExpression("작년 사업보고서", fixedNow)
	require.True(t, ok)
	assert.Equal(t, "2023-01-01", r.Start)
	assert.Equal(t, "2023-12-31", r.End)
}

func TestParseExpression_SpecificYear(t *testing.T) {
	r, ok := ParseExpression("2022년 공시", fixedNow)
	require.True(t, ok)
	assert.Equal(t, "2022-01-01", r.Start)
	assert.Equal(t, "2022-12-31", r.End)
}

func TestParseExpression_YearMonth(t *testing.T) {
	r, ok := ParseExpression("2024년 2월 공시", fixedNow)
	require.True(t, ok)
	assert.Equal(t, "2024-02-01", r.Start)
	assert.Equal(t, "2024-02-29", r.End) // 2024 is a leap year
}

func TestParseExpression_QuarterWithYear(t *testing.T) {
	r, ok := ParseExpression("2023년 3분기 실적", fixedNow)
	require.True(t, ok)
	assert.Equal(t, "2023-07-01", r.Start)
	assert.Equal(t, "2023-09-30", r.End)
}

func TestParseExpression_QuarterCurrentYear(t *testing.T) {
	r, ok := ParseExpression("2분기 실적", fixedNow)
	require.True(t, ok)
	assert.Equal(t, "2024-04-01", r.Start)
	assert.Equal(t, "2024-06-30", r.End)
}

func TestParseExpression_HalfWithYear(t *testing.T) {
	r, ok := ParseExpression("2023년 하반기 공시", fixedNow)
	require.True(t, ok)
	assert.Equal(t, "2023-07-01", r.Start)
	assert.Equal(t, "2023-12-31", r.End)
}

func TestParseExpression_HalfCurrentYear(t *testing.T) {
	r, ok := ParseExpression("상반기 실적 공시", fixedNow)
	require.True(t, ok)
	assert.Equal(t, "2024-01-01", r.Start)
	assert.Equal(t, "2024-06-30", r.End)
}

func TestParseExpression_SpecificDate(t *testing.T) {
	r, ok := ParseExpression("2024-03-10에 제출된 공시", fixedNow)
	require.True(t, ok)
	assert.Equal(t, "2024-03-10", r.Start)
	assert.Equal(t, "2024-03-10", r.End)
}

func TestParseExpression_ExplicitRange(t *testing.T) {
	r, ok := ParseExpression("2024-01-01 ~ 2024-03-31 사이 공시", fixedNow)
	require.True(t, ok)
	assert.Equal(t, "2024-01-01", r.Start)
	assert.Equal(t, "2024-03-31", r.End)
}

func TestParseExpression_Yesterday(t *testing.T) {
	r, ok := ParseExpression("어제 공시된 내역", fixedNow)
	require.True(t, ok)
	assert.Equal(t, "2024-06-14", r.Start)
	assert.Equal(t, "2024-06-14", r.End)
}

func TestParseExpression_Today(t *testing.T) {
	r, ok := ParseExpression("오늘 공시", fixedNow)
	require.True(t, ok)
	assert.Equal(t, "2024-06-15", r.Start)
	assert.Equal(t, "2024-06-15", r.End)
}

func TestParseExpression_LastMonth(t *testing.T) {
	r, ok := ParseExpression("지난달 공시 내역", fixedNow)
	require.True(t, ok)
	assert.Equal(t, "2024-05-01", r.Start)
	assert.Equal(t, "2024-05-31", r.End)
}

func TestParseExpression_ThisMonth(t *testing.T) {
	r, ok := ParseExpression("이번달 공시", fixedNow)
	require.True(t, ok)
	assert.Equal(t, "2024-06-01", r.Start)
	assert.Equal(t, "2024-06-15", r.End)
}

func TestParseExpression_NoMatchReturnsFalse(t *testing.T) {
	_, ok := ParseExpression("삼성전자 관련 공시를 알려줘", fixedNow)
	assert.False(t, ok)
}

func TestDefault_Is30DayWindow(t *testing.T) {
	r := Default(fixedNow)
	assert.Equal(t, "2024-05-16", r.Start)
	assert.Equal(t, "2024-06-15", r.End)
}

func TestQuarterRange_InvalidQuarter(t *testing.T) {
	_, err := QuarterRange(2024, 5)
	assert.Error(t, err)
}

func TestHalfRange_InvalidHalf(t *testing.T) {
	_, err := HalfRange(2024, 3)
	assert.Error(t, err)
}

func TestMonthRange_DecemberSpansYearBoundary(t *testing.T) {
	r := MonthRange(2023, 12)
	assert.Equal(t, "2023-12-01", r.Start)
	assert.Equal(t, "2023-12-31", r.End)
}
