// Package dartgateway is a thin typed facade over the upstream DART
// (Korean financial disclosure) HTTP API. Every exported operation
// validates its inputs; the JSON operations then consult the cache and, on
// a miss, acquire a dart_api rate-limit permit, call upstream and normalize
// the response into flat records with canonical field names. The
// corp-code registry and archive downloads take a permit and skip the cache.
package dartgateway

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"github.com/myeongjunkim/dart-deep-search/internal/cache"
	"github.com/myeongjunkim/dart-deep-search/internal/errkind"
	"github.com/myeongjunkim/dart-deep-search/internal/ratelimit"
)

const (
	defaultBaseURL = "https://opendart.fss.or.kr/api"
	defaultTimeout = 30 * time.Second
	archiveTimeout = 60 * time.Second
	serviceName    = "dart_api"
)

// Gateway is the facade's concrete implementation. It owns no state beyond
// its collaborators; cache and rate limiter are shared across a process the
// way spec.md's Concurrency & Resource Model requires.
type Gateway struct {
	apiKey  string
	baseURL string

	httpClient    *http.Client
	archiveClient *http.Client

	cache   *cache.Cache
	limiter *ratelimit.Multi
}

// Option configures a Gateway at construction.
type Option func(*Gateway)

// WithBaseURL overrides the upstream API root, for tests and alternate
// environments.
func WithBaseURL(base string) Option {
	return func(g *Gateway) { g.baseURL = base }
}

// WithHTTPClient overrides the client used for ordinary (non-archive) calls.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.httpClient = c }
}

// New constructs a Gateway. cache and limiter are required collaborators;
// the orchestrator owns their construction and lifetime per spec.md §9's
// note against cross-cutting singletons.
func New(apiKey string, c *cache.Cache, limiter *ratelimit.Multi, opts ...Option) *Gateway {
	g := &Gateway{
		apiKey:        apiKey,
		baseURL:       defaultBaseURL,
		httpClient:    &http.Client{Timeout: defaultTimeout},
		archiveClient: &http.Client{Timeout: archiveTimeout},
		cache:         c,
		limiter:       limiter,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// upstreamEnvelope is the shape every JSON endpoint responds with: a status
// code ("000" on success, "013" for no-data, anything else an error), a
// human message, and (on success) a "list" array or a flat object. Fields
// are exported so the cache's JSON round trip preserves them.
type upstreamEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Raw     []byte `json:"raw"`
}

func (e upstreamEnvelope) ok() bool    { return e.Status == "000" }
func (e upstreamEnvelope) empty() bool { return e.Status == "013" }

// call performs a rate-limited, cached GET against path with the given
// query values, parsing the DART envelope. op identifies the cache/rate
// scope and is echoed into error messages.
func (g *Gateway) call(ctx context.Context, op, path string, values url.Values) (upstreamEnvelope, error) {
	values = cloneValues(values)
	values.Set("crtfc_key", g.apiKey)

	params := make(map[string]any, len(values))
	for k, v := range values {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	key := cache.Key(op, params)

	var cached upstreamEnvelope
	if found, err := g.cache.Get(ctx, key, &cached); err != nil {
		return upstreamEnvelope{}, err
	} else if found {
		return cached, nil
	}

	if _, err := g.limiter.Acquire(ctx, serviceName); err != nil {
		return upstreamEnvelope{}, err
	}
	defer g.limiter.Release(serviceName)

	env, err := g.doGet(ctx, path, values)
	if err != nil {
		return upstreamEnvelope{}, err
	}

	if env.ok() || env.empty() {
		if setErr := g.cache.Set(ctx, key, op, env); setErr != nil {
			slog.Warn("dartgateway: cache write failed", "op", op, "err", setErr)
		}
	}
	return env, nil
}

func (g *Gateway) doGet(ctx context.Context, path string, values url.Values) (upstreamEnvelope, error) {
	u := g.baseURL + path + "?" + values.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return upstreamEnvelope{}, errkind.New(errkind.Internal, "dartgateway.doGet", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return upstreamEnvelope{}, errkind.New(errkind.Cancelled, "dartgateway.doGet", ctx.Err())
		}
		return upstreamEnvelope{}, errkind.New(errkind.UpstreamUnavailable, "dartgateway.doGet", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return upstreamEnvelope{}, errkind.New(errkind.UpstreamUnavailable, "dartgateway.doGet", err)
	}

	if resp.StatusCode != http.StatusOK {
		return upstreamEnvelope{}, errkind.New(errkind.UpstreamUnavailable, "dartgateway.doGet",
			httpStatusError{code: resp.StatusCode})
	}

	status := gjson.GetBytes(body, "status").String()
	message := gjson.GetBytes(body, "message").String()
	if status == "" {
		status = "000"
	}
	return upstreamEnvelope{Status: status, Message: message, Raw: body}, nil
}

// downloadArchive fetches a ZIP by receipt number through the slower
// archive client and longer timeout, bypassing the JSON envelope parsing
// (the response body is a binary ZIP).
func (g *Gateway) downloadArchive(ctx context.Context, receiptNo string) ([]byte, error) {
	if _, err := g.limiter.Acquire(ctx, serviceName); err != nil {
		return nil, err
	}
	defer g.limiter.Release(serviceName)

	values := url.Values{}
	values.Set("crtfc_key", g.apiKey)
	values.Set("rcept_no", receiptNo)

	u := g.baseURL + "/document.xml?" + values.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errkind.New(errkind.Internal, "dartgateway.downloadArchive", err)
	}

	resp, err := g.archiveClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errkind.New(errkind.Cancelled, "dartgateway.downloadArchive", ctx.Err())
		}
		return nil, errkind.New(errkind.UpstreamUnavailable, "dartgateway.downloadArchive", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errkind.New(errkind.UpstreamUnavailable, "dartgateway.downloadArchive",
			httpStatusError{code: resp.StatusCode})
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, errkind.New(errkind.UpstreamUnavailable, "dartgateway.downloadArchive", err)
	}
	return buf.Bytes(), nil
}

// FetchCorpCodeRegistry downloads the full corporation-code registry as a
// ZIP archive (a single CORPCODE.xml member). The Company Validator loads
// this once per process and keeps it read-only thereafter, per spec.md §5's
// shared-resource model; the gateway does not parse or cache it, since it is
// neither a JSON envelope nor something worth re-fetching inside a process
// lifetime.
func (g *Gateway) FetchCorpCodeRegistry(ctx context.Context) ([]byte, error) {
	if _, err := g.limiter.Acquire(ctx, serviceName); err != nil {
		return nil, err
	}
	defer g.limiter.Release(serviceName)

	values := url.Values{}
	values.Set("crtfc_key", g.apiKey)

	u := g.baseURL + "/corpCode.xml?" + values.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errkind.New(errkind.Internal, "dartgateway.FetchCorpCodeRegistry", err)
	}

	resp, err := g.archiveClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errkind.New(errkind.Cancelled, "dartgateway.FetchCorpCodeRegistry", ctx.Err())
		}
		return nil, errkind.New(errkind.UpstreamUnavailable, "dartgateway.FetchCorpCodeRegistry", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errkind.New(errkind.UpstreamUnavailable, "dartgateway.FetchCorpCodeRegistry",
			httpStatusError{code: resp.StatusCode})
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, errkind.New(errkind.UpstreamUnavailable, "dartgateway.FetchCorpCodeRegistry", err)
	}
	return buf.Bytes(), nil
}

type httpStatusError struct{ code int }

func (e httpStatusError) Error() string {
	return http.StatusText(e.code)
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v)+1)
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
