// Command dartdeepsearch is a minimal, flag-based entrypoint that wires the
// engine's components together and runs a single deep-search query. It
// exists so the engine is runnable and testable end to end; the MCP/tool-
// call transport shell that would front it in production is out of scope.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/myeongjunkim/dart-deep-search/internal/cache"
	"github.com/myeongjunkim/dart-deep-search/internal/companyvalidator"
	"github.com/myeongjunkim/dart-deep-search/internal/config"
	"github.com/myeongjunkim/dart-deep-search/internal/dartgateway"
	"github.com/myeongjunkim/dart-deep-search/internal/documentfetcher"
	"github.com/myeongjunkim/dart-deep-search/internal/documentfilter"
	"github.com/myeongjunkim/dart-deep-search/internal/docmapper"
	"github.com/myeongjunkim/dart-deep-search/internal/llmclient"
	"github.com/myeongjunkim/dart-deep-search/internal/orchestrator"
	"github.com/myeongjunkim/dart-deep-search/internal/queryexpander"
	"github.com/myeongjunkim/dart-deep-search/internal/queryparser"
	"github.com/myeongjunkim/dart-deep-search/internal/ratelimit"
	"github.com/myeongjunkim/dart-deep-search/internal/searchexecutor"
	"github.com/myeongjunkim/dart-deep-search/internal/synthesizer"
)

func main() {
	query := flag.String("query", "", "deep-search query; reads stdin when omitted")
	fetchMode := flag.String("fetch-mode", documentfetcher.FetchAuto, "document fetch mode: auto, detailed, or original")
	flag.Parse()

	if err := run(*query, *fetchMode); err != nil {
		slog.Error("dartdeepsearch: fatal", "err", err)
		os.Exit(1)
	}
}

func run(query, fetchMode string) error {
	if strings.TrimSpace(query) == "" {
		var err error
		query, err = readQueryFromStdin()
		if err != nil {
			return fmt.Errorf("reading query from stdin: %w", err)
		}
	}

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := cache.New(cfg.CachePath, cfg.CacheTTL, cache.WithNegativeUpstreamEmpty(cfg.CacheNegativeUpstreamEmpty))
	if err != nil {
		return fmt.Errorf("constructing cache: %w", err)
	}

	limiter := ratelimit.NewMulti()
	gateway := dartgateway.New(cfg.DartAPIKey, c, limiter)

	registry := companyvalidator.NewRegistry()
	if err := registry.Load(ctx, gateway); err != nil {
		slog.Warn("dartdeepsearch: company registry load failed, company resolution will be empty", "err", err)
	}
	validator := companyvalidator.New(registry)

	llmCfg := llmclient.FromAppConfig(cfg)
	var llm *llmclient.Client
	if llmCfg.Usable() {
		llm, err = llmclient.New(llmCfg)
		if err != nil {
			return fmt.Errorf("constructing llm client: %w", err)
		}
	} else {
		slog.Warn("dartdeepsearch: no usable LLM configuration, running with rule-based fallbacks only")
	}

	// Each classifier-consuming component declares its own narrow Classifier
	// interface; assigning *llmclient.Client into these only when llm is
	// non-nil keeps an absent LLM as a true nil interface value rather than
	// a non-nil interface wrapping a nil pointer.
	var parserClassifier queryparser.Classifier
	var mapperClassifier docmapper.Classifier
	var filterClassifier documentfilter.Classifier
	var synthClassifier synthesizer.Classifier
	if llm != nil {
		parserClassifier = llm
		mapperClassifier = llm
		filterClassifier = llm
		synthClassifier = llm
	}

	parser := queryparser.New(parserClassifier)
	mapper := docmapper.New(mapperClassifier)
	expander := queryexpander.New(parser, validator, mapper, cfg.ParallelDownloads > 1)
	executor := searchexecutor.New(gateway, cfg.MaxSearchResults)
	filter := documentfilter.New(filterClassifier)
	fetcher := documentfetcher.New(gateway, c, cfg.ParallelDownloads)
	synth := synthesizer.New(synthClassifier)

	o := orchestrator.New(expander, executor, filter, fetcher, synth, fetchMode)

	resp := o.Run(ctx, query)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func readQueryFromStdin() (string, error) {
	r := bufio.NewReader(os.Stdin)
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	q := strings.TrimSpace(string(b))
	if q == "" {
		return "", fmt.Errorf("no query provided via -query or stdin")
	}
	return q, nil
}
