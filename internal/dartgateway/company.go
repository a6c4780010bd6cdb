package dartgateway

import (
	"context"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/myeongjunkim/dart-deep-search/pkg/kv"
)

// CompanyRecord is the normalized company-profile row, kept as an open
// KSVA map the way the original treats upstream rows as open dictionaries
// (spec.md §9's "dynamic typing" design note) plus the handful of named
// fields the Company Validator and Query Expander actually consume.
type CompanyRecord struct {
	CorpCode  string
	CorpName  string
	StockCode string
	Extra     kv.KSVA
}

// GetCompany fetches a company's profile. nameOrCode is sent upstream
// unchanged as the corp_code parameter; a display name or stock code is not
// translated to a corp code first.
func (g *Gateway) GetCompany(ctx context.Context, nameOrCode string) (CompanyRecord, error) {
	const op = "dartgateway.GetCompany"
	if err := validateNonEmpty(op, "company", nameOrCode); err != nil {
		return CompanyRecord{}, err
	}

	values := url.Values{}
	values.Set("corp_code", nameOrCode)

	env, err := g.call(ctx, "get_company", "/company.json", values)
	if err != nil {
		return CompanyRecord{}, err
	}
	if env.empty() {
		return CompanyRecord{}, nil
	}
	if !env.ok() {
		return CompanyRecord{}, upstreamError(op, env)
	}

	return parseCompanyRecord(env.Raw), nil
}

func parseCompanyRecord(raw []byte) CompanyRecord {
	extra := kv.NewKSVA()
	gjson.ParseBytes(raw).ForEach(func(k, v gjson.Result) bool {
		extra.Put(k.String(), v.Value())
		return true
	})
	return CompanyRecord{
		CorpCode:  extra.GetReply("corp_code").String(),
		CorpName:  extra.GetReply("corp_name").String(),
		StockCode: extra.GetReply("stock_code").String(),
		Extra:     extra,
	}
}

// ResolveCorpCode returns the corp code of the profile GetCompany fetches
// for nameOrCode. The argument reaches upstream as corp_code, so display
// names and stock codes are not looked up.
func (g *Gateway) ResolveCorpCode(ctx context.Context, nameOrCode string) (string, error) {
	rec, err := g.GetCompany(ctx, nameOrCode)
	if err != nil {
		return "", err
	}
	return rec.CorpCode, nil
}
