package dartgateway

import (
	"regexp"
	"time"

	"github.com/myeongjunkim/dart-deep-search/internal/errkind"
)

// DisclosureKinds maps the top-level disclosure-kind letter to its label,
// per spec.md §6's category code space.
var DisclosureKinds = map[string]string{
	"A": "정기보고서", "B": "주요사항보고서", "C": "발행공시", "D": "지분공시",
	"E": "기타공시", "F": "외부감사 관련", "G": "펀드공시", "H": "자산유동화",
	"I": "거래소 공시", "J": "공정위 공시",
}

// ReportCodes is the recognized set for the financial-statements endpoint's
// report_code parameter.
var ReportCodes = map[string]string{
	"11011": "사업보고서", "11012": "반기보고서",
	"11013": "1분기보고서", "11014": "3분기보고서",
}

// XBRLClassifications is the recognized set for the XBRL taxonomy endpoint.
var XBRLClassifications = map[string]string{
	"BS1": "재무상태표", "IS1": "손익계산서", "CIS1": "포괄손익계산서",
	"CF1": "현금흐름표", "SCE1": "자본변동표",
}

var dateFormat = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

func validateDate(op, field, value string) error {
	if value == "" {
		return nil
	}
	if !dateFormat.MatchString(value) {
		return errkind.New(errkind.InvalidInput, op, invalidFieldError{field: field, value: value, want: "YYYY-MM-DD"})
	}
	if _, err := time.Parse("2006-01-02", value); err != nil {
		return errkind.New(errkind.InvalidInput, op, invalidFieldError{field: field, value: value, want: "YYYY-MM-DD"})
	}
	return nil
}

func validateCategoryDetail(op, code string) error {
	if code == "" {
		return nil
	}
	if len(code) < 1 {
		return errkind.New(errkind.InvalidInput, op, invalidFieldError{field: "category_detail", value: code, want: "letter+3 digits"})
	}
	letter := code[:1]
	if _, ok := DisclosureKinds[letter]; !ok {
		return errkind.New(errkind.InvalidInput, op, invalidFieldError{field: "category_detail", value: code, want: "known disclosure-kind letter"})
	}
	return nil
}

func validateReportCode(op, code string) error {
	if _, ok := ReportCodes[code]; !ok {
		return errkind.New(errkind.InvalidInput, op, invalidFieldError{field: "report_code", value: code, want: "one of 11011/11012/11013/11014"})
	}
	return nil
}

func validateXBRLClass(op, class string) error {
	if _, ok := XBRLClassifications[class]; !ok {
		return errkind.New(errkind.InvalidInput, op, invalidFieldError{field: "classification", value: class, want: "one of BS1/IS1/CIS1/CF1/SCE1"})
	}
	return nil
}

func validateNonEmpty(op, field, value string) error {
	if value == "" {
		return errkind.New(errkind.InvalidInput, op, invalidFieldError{field: field, value: value, want: "non-empty"})
	}
	return nil
}

type invalidFieldError struct {
	field string
	value string
	want  string
}

func (e invalidFieldError) Error() string {
	return e.field + "=" + e.value + " (want " + e.want + ")"
}
