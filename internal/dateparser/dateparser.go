// Package dateparser turns a natural-language date expression into a
// calendar-day [start, end] bound in DART's YYYY-MM-DD form. It understands
// relative phrases ("최근 N년/개월/주/일", "올해", "작년"), specific years,
// year-months, quarters, halves, explicit literal dates, and explicit
// "A ~ B" ranges, falling back to a default window when nothing matches.
package dateparser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/myeongjunkim/dart-deep-search/internal/dartmodel"
)

const (
	canonicalLayout = "2006-01-02"
	defaultWindow   = 30 * 24 * time.Hour
)

// Default returns the fallback window the Query Expander applies when an
// expression carries no recognizable date phrase: the 30 days ending now.
func Default(now time.Time) dartmodel.DateRange {
	return dartmodel.DateRange{
		Start: Format(now.Add(-defaultWindow)),
		End:   Format(now),
	}
}

// Format renders t in DART's canonical YYYY-MM-DD form.
func Format(t time.Time) string {
	return t.Format(canonicalLayout)
}

// ParseDate parses a single date literal in any of the three supported
// forms (YYYY-MM-DD, YYYY.MM.DD, YYYYMMDD, the first two tolerant of
// unpadded month/day) into a time.Time at midnight UTC.
func ParseDate(s string) (time.Time, bool) {
	if t, ok := parseSeparated(strings.ReplaceAll(s, ".", "-"), "-"); ok {
		return t, true
	}
	return parseCompact(s)
}

func parseSeparated(s, sep string) (time.Time, bool) {
	parts := strings.Split(s, sep)
	if len(parts) != 3 {
		return time.Time{}, false
	}
	year, err1 := strconv.Atoi(parts[0])
	month, err2 := strconv.Atoi(parts[1])
	day, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

func parseCompact(s string) (time.Time, bool) {
	if len(s) != 8 {
		return time.Time{}, false
	}
	year, err1 := strconv.Atoi(s[0:4])
	month, err2 := strconv.Atoi(s[4:6])
	day, err3 := strconv.Atoi(s[6:8])
	if err1 != nil || err2 != nil || err3 != nil || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

type patternHandler struct {
	pattern *regexp.Regexp
	handle  func(now time.Time, m []string) (time.Time, time.Time, bool)
}

var patterns = []patternHandler{
	{
		regexp.MustCompile(`최근\s*(\d+)\s*년`),
		func(now time.Time, m []string) (time.Time, time.Time, bool) {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				return time.Time{}, time.Time{}, false
			}
			return now.AddDate(0, 0, -365*n), now, true
		},
	},
	{
		regexp.MustCompile(`최근\s*(\d+)\s*개월`),
		func(now time.Time, m []string) (time.Time, time.Time, bool) {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				return time.Time{}, time.Time{}, false
			}
			return now.AddDate(0, 0, -30*n), now, true
		},
	},
	{
		regexp.MustCompile(`최근\s*(\d+)\s*주`),
		func(now time.Time, m []string) (time.Time, time.Time, bool) {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				return time.Time{}, time.Time{}, false
			}
			return now.AddDate(0, 0, -7*n), now, true
		},
	},
	{
		regexp.MustCompile(`최근\s*(\d+)\s*일`),
		func(now time.Time, m []string) (time.Time, time.Time, bool) {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				return time.Time{}, time.Time{}, false
			}
			return now.AddDate(0, 0, -n), now, true
		},
	},
	{
		regexp.MustCompile(`올해`),
		func(now time.Time, m []string) (time.Time, time.Time, bool) {
			return time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location()), now, true
		},
	},
	{
		regexp.MustCompile(`작년`),
		func(now time.Time, m []string) (time.Time, time.Time, bool) {
			y := now.Year() - 1
			return time.Date(y, 1, 1, 0, 0, 0, 0, now.Location()), time.Date(y, 12, 31, 0, 0, 0, 0, now.Location()), true
		},
	},
	{
		regexp.MustCompile(`(\d{4})\s*년\s*(상반기|하반기)`),
		func(now time.Time, m []string) (time.Time, time.Time, bool) {
			year, err := strconv.Atoi(m[1])
			if err != nil {
				return time.Time{}, time.Time{}, false
			}
			r, err := HalfRange(year, halfNumber(m[2]))
			if err != nil {
				return time.Time{}, time.Time{}, false
			}
			return rangeToTimes(r, now.Location())
		},
	},
	{
		regexp.MustCompile(`(상반기|하반기)`),
		func(now time.Time, m []string) (time.Time, time.Time, bool) {
			r, err := HalfRange(now.Year(), halfNumber(m[1]))
			if err != nil {
				return time.Time{}, time.Time{}, false
			}
			return rangeToTimes(r, now.Location())
		},
	},
	{
		regexp.MustCompile(`(\d{4})\s*년\s*(\d{1,2})\s*월`),
		func(now time.Time, m []string) (time.Time, time.Time, bool) {
			year, err1 := strconv.Atoi(m[1])
			month, err2 := strconv.Atoi(m[2])
			if err1 != nil || err2 != nil || month < 1 || month > 12 {
				return time.Time{}, time.Time{}, false
			}
			r := MonthRange(year, month)
			return rangeToTimes(r, now.Location())
		},
	},
	{
		regexp.MustCompile(`(\d{4})\s*년`),
		func(now time.Time, m []string) (time.Time, time.Time, bool) {
			year, err := strconv.Atoi(m[1])
			if err != nil {
				return time.Time{}, time.Time{}, false
			}
			return time.Date(year, 1, 1, 0, 0, 0, 0, now.Location()),
				time.Date(year, 12, 31, 0, 0, 0, 0, now.Location()), true
		},
	},
	{
		regexp.MustCompile(`(\d{4})[.-](\d{1,2})[.-](\d{1,2})`),
		func(now time.Time, m []string) (time.Time, time.Time, bool) {
			t, ok := ParseDate(m[1] + "-" + m[2] + "-" + m[3])
			if !ok {
				return time.Time{}, time.Time{}, false
			}
			return t, t, true
		},
	},
}

var quarterWithYear = regexp.MustCompile(`(\d{4})\s*년\s*(\d)\s*분기`)
var quarterBare = regexp.MustCompile(`(\d)\s*분기`)
var explicitRange = regexp.MustCompile(`(\d{4}[.-]\d{1,2}[.-]\d{1,2})\s*[~-]\s*(\d{4}[.-]\d{1,2}[.-]\d{1,2})`)

func halfNumber(s string) int {
	if s == "상반기" {
		return 1
	}
	return 2
}

func rangeToTimes(r dartmodel.DateRange, loc *time.Location) (time.Time, time.Time, bool) {
	start, ok1 := ParseDate(r.Start)
	end, ok2 := ParseDate(r.End)
	if !ok1 || !ok2 {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// ParseExplicitRange recognizes an explicit "A ~ B" literal range anywhere
// in query, without attempting any relative-phrase interpretation.
func ParseExplicitRange(query string) (dartmodel.DateRange, bool) {
	m := explicitRange.FindStringSubmatch(query)
	if m == nil {
		return dartmodel.DateRange{}, false
	}
	start, ok1 := ParseDate(m[1])
	end, ok2 := ParseDate(m[2])
	if !ok1 || !ok2 {
		return dartmodel.DateRange{}, false
	}
	return dartmodel.DateRange{Start: Format(start), End: Format(end)}, true
}

// ParseExpression recognizes a single relative or absolute date phrase in
// query and resolves it against now. It returns ok=false when nothing in
// query matched any supported pattern, leaving the caller to apply Default.
func ParseExpression(query string, now time.Time) (dartmodel.DateRange, bool) {
	if r, ok := ParseExplicitRange(query); ok {
		return r, true
	}

	// Quarter phrases are checked ahead of the general patterns below: a
	// bare "(\d{4})년" year pattern would otherwise swallow "2023년 3분기"
	// as a plain year range before the quarter-specific match ever ran.
	if m := quarterWithYear.FindStringSubmatch(query); m != nil {
		year, err1 := strconv.Atoi(m[1])
		quarter, err2 := strconv.Atoi(m[2])
		if err1 == nil && err2 == nil {
			if r, err := QuarterRange(year, quarter); err == nil {
				return r, true
			}
		}
	}

	for _, p := range patterns {
		m := p.pattern.FindStringSubmatch(query)
		if m == nil {
			continue
		}
		start, end, ok := p.handle(now, m)
		if !ok {
			continue
		}
		return dartmodel.DateRange{Start: Format(start), End: Format(end)}, true
	}

	switch {
	case strings.Contains(query, "지난달"), strings.Contains(query, "전월"):
		firstOfThisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		lastOfLastMonth := firstOfThisMonth.AddDate(0, 0, -1)
		firstOfLastMonth := time.Date(lastOfLastMonth.Year(), lastOfLastMonth.Month(), 1, 0, 0, 0, 0, now.Location())
		return dartmodel.DateRange{Start: Format(firstOfLastMonth), End: Format(lastOfLastMonth)}, true

	case strings.Contains(query, "이번달"), strings.Contains(query, "당월"):
		firstOfThisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return dartmodel.DateRange{Start: Format(firstOfThisMonth), End: Format(now)}, true

	case strings.Contains(query, "어제"):
		yesterday := now.AddDate(0, 0, -1)
		return dartmodel.DateRange{Start: Format(yesterday), End: Format(yesterday)}, true

	case strings.Contains(query, "오늘"):
		return dartmodel.DateRange{Start: Format(now), End: Format(now)}, true
	}

	if m := quarterBare.FindStringSubmatch(query); m != nil {
		quarter, err := strconv.Atoi(m[1])
		if err == nil {
			if r, err := QuarterRange(now.Year(), quarter); err == nil {
				return r, true
			}
		}
	}

	return dartmodel.DateRange{}, false
}

// MonthRange returns the first and last calendar day of year-month.
func MonthRange(year, month int) dartmodel.DateRange {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	return dartmodel.DateRange{Start: Format(start), End: Format(end)}
}

var quarterStartMonth = map[int]int{1: 1, 2: 4, 3: 7, 4: 10}

// QuarterRange returns the calendar span of the given fiscal quarter (1-4).
func QuarterRange(year, quarter int) (dartmodel.DateRange, error) {
	startMonth, ok := quarterStartMonth[quarter]
	if !ok {
		return dartmodel.DateRange{}, invalidPeriodError{kind: "quarter", value: quarter}
	}
	start := time.Date(year, time.Month(startMonth), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 3, -1)
	return dartmodel.DateRange{Start: Format(start), End: Format(end)}, nil
}

// HalfRange returns the calendar span of the given half (1 = Jan-Jun,
// 2 = Jul-Dec).
func HalfRange(year, half int) (dartmodel.DateRange, error) {
	switch half {
	case 1:
		return dartmodel.DateRange{
			Start: Format(time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)),
			End:   Format(time.Date(year, 6, 30, 0, 0, 0, 0, time.UTC)),
		}, nil
	case 2:
		return dartmodel.DateRange{
			Start: Format(time.Date(year, 7, 1, 0, 0, 0, 0, time.UTC)),
			End:   Format(time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC)),
		}, nil
	default:
		return dartmodel.DateRange{}, invalidPeriodError{kind: "half", value: half}
	}
}

type invalidPeriodError struct {
	kind  string
	value int
}

func (e invalidPeriodError) Error() string {
	return "dateparser: invalid " + e.kind
}
