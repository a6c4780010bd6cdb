// Package companyvalidator resolves user-typed company names and stock
// codes to canonical DART corp codes, fuzzy-matching against a registry
// loaded once per process from the upstream corporation-code listing.
package companyvalidator

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/myeongjunkim/dart-deep-search/internal/errkind"
	xmlstream "github.com/myeongjunkim/dart-deep-search/pkg/xml"
)

// CorpRecord is a single row of the upstream corporation-code registry.
type CorpRecord struct {
	CorpCode  string
	CorpName  string
	StockCode string
}

// RegistryFetcher downloads the raw CORPCODE.xml ZIP archive. Satisfied by
// *dartgateway.Gateway; declared narrow here so tests can supply a fake
// without importing the gateway package.
type RegistryFetcher interface {
	FetchCorpCodeRegistry(ctx context.Context) ([]byte, error)
}

// Registry is the in-memory corporation-code listing, read-only after Load
// per spec.md §5's shared-resource model: "the company registry loaded by
// the Validator is read-only after init."
type Registry struct {
	mu          sync.RWMutex
	records     []CorpRecord
	byName      map[string]CorpRecord
	byStockCode map[string]CorpRecord
}

// NewRegistry returns an empty, unloaded registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:      make(map[string]CorpRecord),
		byStockCode: make(map[string]CorpRecord),
	}
}

// Load fetches and parses the registry via fetcher, replacing any
// previously loaded data. Intended to run once at process start.
func (r *Registry) Load(ctx context.Context, fetcher RegistryFetcher) error {
	const op = "companyvalidator.Registry.Load"

	raw, err := fetcher.FetchCorpCodeRegistry(ctx)
	if err != nil {
		return err
	}

	records, err := parseCorpCodeArchive(raw)
	if err != nil {
		return errkind.New(errkind.Internal, op, err)
	}

	byName := make(map[string]CorpRecord, len(records))
	byStockCode := make(map[string]CorpRecord, len(records))
	for _, rec := range records {
		byName[rec.CorpName] = rec
		if rec.StockCode != "" {
			byStockCode[rec.StockCode] = rec
		}
	}

	r.mu.Lock()
	r.records = records
	r.byName = byName
	r.byStockCode = byStockCode
	r.mu.Unlock()
	return nil
}

// Records returns a snapshot of every loaded record.
func (r *Registry) Records() []CorpRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CorpRecord, len(r.records))
	copy(out, r.records)
	return out
}

// ByExactName returns the record whose corp_name equals name exactly.
func (r *Registry) ByExactName(name string) (CorpRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byName[name]
	return rec, ok
}

// ByStockCode resolves a 6-digit stock code directly, never by fuzzy match,
// per spec.md's "stock code 005930 resolves by direct lookup, never by
// fuzzy" scenario.
func (r *Registry) ByStockCode(stockCode string) (CorpRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byStockCode[stockCode]
	return rec, ok
}

// Len reports how many records are currently loaded.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

func parseCorpCodeArchive(raw []byte) ([]CorpRecord, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, err
	}

	var xmlFile *zip.File
	for _, f := range zr.File {
		if strings.EqualFold(f.Name, "CORPCODE.xml") {
			xmlFile = f
			break
		}
	}
	if xmlFile == nil && len(zr.File) > 0 {
		xmlFile = zr.File[0]
	}
	if xmlFile == nil {
		return nil, errors.New("companyvalidator: registry archive has no members")
	}

	rc, err := xmlFile.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}

	var records []CorpRecord
	listener := &xmlstream.ElementListener{
		Name:          xmlstream.Name{Local: "list"},
		MaxBufferSize: 8192,
		OnComplete: func(el xmlstream.Element) error {
			records = append(records, CorpRecord{
				CorpCode:  childText(el, "corp_code"),
				CorpName:  childText(el, "corp_name"),
				StockCode: childText(el, "stock_code"),
			})
			return nil
		},
	}

	scanner, err := xmlstream.NewStreamScanner(&xmlstream.StreamScannerConfig{
		Listeners: []*xmlstream.ElementListener{listener},
	})
	if err != nil {
		return nil, err
	}
	if err := scanner.Scan(bytes.NewReader(body)); err != nil {
		return nil, err
	}
	return records, nil
}

func childText(e xmlstream.Element, name string) string {
	for _, content := range e.Contents {
		child, ok := content.(xmlstream.Element)
		if !ok || child.Start.Name.Local != name {
			continue
		}
		var sb strings.Builder
		for _, c := range child.Contents {
			if cd, ok := c.(xmlstream.CharData); ok {
				sb.Write(cd)
			}
		}
		return strings.TrimSpace(sb.String())
	}
	return ""
}
