package dartgateway

import (
	"context"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/myeongjunkim/dart-deep-search/pkg/kv"
)

// AttachmentMode selects which of the upstream's three attachment views to
// return, per spec.md §4.3's list_attachments(..., mode).
type AttachmentMode string

const (
	AttachmentList  AttachmentMode = "list"  // attach_doc_list: titles + viewer links
	AttachmentDocs  AttachmentMode = "docs"  // attach_docs: sub-document bodies
	AttachmentFiles AttachmentMode = "files" // attach_files: raw downloadable files
)

// Attachment is one row of an attachment listing.
type Attachment struct {
	Title string
	URL   string
	Extra kv.KSVA
}

// GetDocumentBody retrieves a filing's raw body text. includeAll requests
// every section concatenated rather than the summary section alone.
func (g *Gateway) GetDocumentBody(ctx context.Context, receiptNo string, includeAll bool) (string, error) {
	const op = "dartgateway.GetDocumentBody"
	if err := validateNonEmpty(op, "rcept_no", receiptNo); err != nil {
		return "", err
	}

	values := url.Values{}
	values.Set("rcept_no", receiptNo)
	if includeAll {
		values.Set("all", "Y")
	}

	env, err := g.call(ctx, "get_document_body", "/document.json", values)
	if err != nil {
		return "", err
	}
	if env.empty() {
		return "", nil
	}
	if !env.ok() {
		return "", upstreamError(op, env)
	}

	if body := gjson.GetBytes(env.Raw, "content").String(); body != "" {
		return body, nil
	}
	return gjson.GetBytes(env.Raw, "document").String(), nil
}

// ListAttachments lists a filing's attachments in the requested mode,
// optionally filtered to titles containing titleFilter.
func (g *Gateway) ListAttachments(ctx context.Context, receiptNo string, titleFilter string, mode AttachmentMode) ([]Attachment, error) {
	const op = "dartgateway.ListAttachments"
	if err := validateNonEmpty(op, "rcept_no", receiptNo); err != nil {
		return nil, err
	}

	values := url.Values{}
	values.Set("rcept_no", receiptNo)
	values.Set("mode", string(mode))
	if titleFilter != "" {
		values.Set("match", titleFilter)
	}

	env, err := g.call(ctx, "list_attachments", "/document_attachments.json", values)
	if err != nil {
		return nil, err
	}
	if env.empty() {
		return nil, nil
	}
	if !env.ok() {
		return nil, upstreamError(op, env)
	}

	var out []Attachment
	for _, row := range gjson.GetBytes(env.Raw, "list").Array() {
		extra := kv.NewKSVA()
		row.ForEach(func(k, v gjson.Result) bool {
			extra.Put(k.String(), v.Value())
			return true
		})
		if titleFilter != "" && !strings.Contains(strings.ToLower(extra.GetReply("title").String()), strings.ToLower(titleFilter)) {
			continue
		}
		out = append(out, Attachment{
			Title: extra.GetReply("title").String(),
			URL:   extra.GetReply("url").String(),
			Extra: extra,
		})
	}
	return out, nil
}

// DownloadArchive fetches the ZIP archive of a filing by receipt number.
// Callers extract XML/HTML members themselves (internal/documentfetcher's
// fallback ladder).
func (g *Gateway) DownloadArchive(ctx context.Context, receiptNo string) ([]byte, error) {
	const op = "dartgateway.DownloadArchive"
	if err := validateNonEmpty(op, "rcept_no", receiptNo); err != nil {
		return nil, err
	}
	return g.downloadArchive(ctx, receiptNo)
}
