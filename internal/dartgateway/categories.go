package dartgateway

import (
	"context"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/myeongjunkim/dart-deep-search/pkg/kv"
)

// Row is one normalized record from a category-specific reader: an open map
// of whatever fields the upstream endpoint returned, per spec.md §9's
// "dynamic typing used for upstream row shapes" design note.
type Row = kv.KSVA

func parseRows(raw []byte) []Row {
	var rows []Row
	for _, item := range gjson.GetBytes(raw, "list").Array() {
		row := kv.NewKSVA()
		item.ForEach(func(k, v gjson.Result) bool {
			row.Put(k.String(), v.Value())
			return true
		})
		rows = append(rows, row)
	}
	return rows
}

func (g *Gateway) categoryCall(ctx context.Context, op, path string, values url.Values) ([]Row, error) {
	env, err := g.call(ctx, op, path, values)
	if err != nil {
		return nil, err
	}
	if env.empty() {
		return nil, nil
	}
	if !env.ok() {
		return nil, upstreamError(op, env)
	}
	return parseRows(env.Raw), nil
}

// PeriodicReportItem reads a named item (e.g. dividends, executives,
// treasury stock) from a company's periodic report (category family A).
func (g *Gateway) PeriodicReportItem(ctx context.Context, corpCode, itemName string, year int) ([]Row, error) {
	const op = "dartgateway.PeriodicReportItem"
	if err := validateNonEmpty(op, "corp_code", corpCode); err != nil {
		return nil, err
	}
	if err := validateNonEmpty(op, "item", itemName); err != nil {
		return nil, err
	}

	values := url.Values{}
	values.Set("corp_code", corpCode)
	values.Set("item", itemName)
	values.Set("bsns_year", strconv.Itoa(year))
	return g.categoryCall(ctx, op, "/report.json", values)
}

// MajorEvents reads major-event reports (category family B) of the given
// event type within an optional year range.
func (g *Gateway) MajorEvents(ctx context.Context, corpCode, eventType, startYear, endYear string) ([]Row, error) {
	const op = "dartgateway.MajorEvents"
	if err := validateNonEmpty(op, "corp_code", corpCode); err != nil {
		return nil, err
	}
	if err := validateNonEmpty(op, "event_type", eventType); err != nil {
		return nil, err
	}

	values := url.Values{}
	values.Set("corp_code", corpCode)
	values.Set("event", eventType)
	if startYear != "" {
		values.Set("bgn_year", startYear)
	}
	if endYear != "" {
		values.Set("end_year", endYear)
	}
	return g.categoryCall(ctx, op, "/event.json", values)
}

// SecuritiesRegistration reads securities-registration filings (category
// family C) of the given type within an optional year range.
func (g *Gateway) SecuritiesRegistration(ctx context.Context, corpCode, secType, startYear, endYear string) ([]Row, error) {
	const op = "dartgateway.SecuritiesRegistration"
	if err := validateNonEmpty(op, "corp_code", corpCode); err != nil {
		return nil, err
	}
	if err := validateNonEmpty(op, "securities_type", secType); err != nil {
		return nil, err
	}

	values := url.Values{}
	values.Set("corp_code", corpCode)
	values.Set("regstate", secType)
	if startYear != "" {
		values.Set("bgn_year", startYear)
	}
	if endYear != "" {
		values.Set("end_year", endYear)
	}
	return g.categoryCall(ctx, op, "/regstate.json", values)
}

// ShareholderType distinguishes the two ownership-disclosure endpoints
// (category family D).
type ShareholderType string

const (
	ShareholderMajor     ShareholderType = "major"     // 대량보유상황보고
	ShareholderExecutive ShareholderType = "executive" // 임원ㆍ주요주주소유보고
)

// Shareholders reads ownership-disclosure filings (category family D).
func (g *Gateway) Shareholders(ctx context.Context, corpCode string, kind ShareholderType) ([]Row, error) {
	const op = "dartgateway.Shareholders"
	if err := validateNonEmpty(op, "corp_code", corpCode); err != nil {
		return nil, err
	}

	path := "/majorstock.json"
	if kind == ShareholderExecutive {
		path = "/elestock.json"
	}

	values := url.Values{}
	values.Set("corp_code", corpCode)
	return g.categoryCall(ctx, op, path, values)
}

// FinancialStatements reads a company's financial statements for a fiscal
// year under the given report code.
func (g *Gateway) FinancialStatements(ctx context.Context, corpCode string, year int, reportCode string) ([]Row, error) {
	const op = "dartgateway.FinancialStatements"
	if err := validateNonEmpty(op, "corp_code", corpCode); err != nil {
		return nil, err
	}
	if err := validateReportCode(op, reportCode); err != nil {
		return nil, err
	}

	values := url.Values{}
	values.Set("corp_code", corpCode)
	values.Set("bsns_year", strconv.Itoa(year))
	values.Set("reprt_code", reportCode)
	return g.categoryCall(ctx, op, "/fnlttSinglAcnt.json", values)
}

// XBRLTaxonomy reads the standard XBRL account taxonomy for a statement
// classification.
func (g *Gateway) XBRLTaxonomy(ctx context.Context, classification string) ([]Row, error) {
	const op = "dartgateway.XBRLTaxonomy"
	if err := validateXBRLClass(op, classification); err != nil {
		return nil, err
	}

	values := url.Values{}
	values.Set("sj_div", classification)
	return g.categoryCall(ctx, op, "/xbrlTaxonomy.json", values)
}
