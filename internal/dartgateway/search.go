package dartgateway

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/myeongjunkim/dart-deep-search/internal/dartmodel"
	"github.com/myeongjunkim/dart-deep-search/internal/errkind"
)

// SearchParams are the search_disclosures inputs named in spec.md §4.3.
type SearchParams struct {
	CorpCode       string
	Start          string // YYYY-MM-DD
	End            string // YYYY-MM-DD
	CategoryDetail string // pblntf_detail_ty, opaque except first-letter routing
	FinalOnly      bool
	PageSize       int
}

// SearchDisclosures lists disclosures matching params, normalized into
// DisclosureHit records. An UpstreamEmpty result is a zero-length, nil-error
// return, per spec.md §4.2/§7 ("UpstreamEmpty is not an error").
func (g *Gateway) SearchDisclosures(ctx context.Context, p SearchParams) ([]dartmodel.DisclosureHit, error) {
	const op = "dartgateway.SearchDisclosures"

	if err := validateDate(op, "start", p.Start); err != nil {
		return nil, err
	}
	if err := validateDate(op, "end", p.End); err != nil {
		return nil, err
	}
	if err := validateCategoryDetail(op, p.CategoryDetail); err != nil {
		return nil, err
	}

	values := url.Values{}
	if p.CorpCode != "" {
		values.Set("corp_code", p.CorpCode)
	}
	if p.Start != "" {
		values.Set("bgn_de", strings.ReplaceAll(p.Start, "-", ""))
	}
	if p.End != "" {
		values.Set("end_de", strings.ReplaceAll(p.End, "-", ""))
	}
	if p.CategoryDetail != "" {
		values.Set("pblntf_detail_ty", p.CategoryDetail)
	}
	if p.FinalOnly {
		values.Set("last_reprt_at", "Y")
	}
	pageSize := p.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	values.Set("page_count", strconv.Itoa(pageSize))

	env, err := g.call(ctx, "search_disclosures", "/list.json", values)
	if err != nil {
		return nil, err
	}
	if env.empty() {
		return nil, nil
	}
	if !env.ok() {
		return nil, upstreamError(op, env)
	}

	var hits []dartmodel.DisclosureHit
	for _, row := range gjson.GetBytes(env.Raw, "list").Array() {
		hits = append(hits, dartmodel.DisclosureHit{
			ReceiptNo:   row.Get("rcept_no").String(),
			CorpName:    row.Get("corp_name").String(),
			ReportName:  row.Get("report_nm").String(),
			ReceiptDate: row.Get("rcept_dt").String(),
			Submitter:   row.Get("flr_nm").String(),
			RemarkCode:  row.Get("rm").String(),
			CorpClass:   row.Get("corp_cls").String(),
			CorpCode:    row.Get("corp_code").String(),
		})
	}
	return hits, nil
}

func upstreamError(op string, env upstreamEnvelope) error {
	return errkind.New(errkind.UpstreamUnavailable, op, upstreamStatusError{status: env.Status, message: env.Message})
}

type upstreamStatusError struct {
	status  string
	message string
}

func (e upstreamStatusError) Error() string {
	return e.status + ": " + e.message
}
