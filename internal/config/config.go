// Package config loads the engine's runtime configuration from environment
// variables. No config-file or flag library appears anywhere in the
// retrieval pack for this concern, so this package is a deliberate
// stdlib-only exception to the "use a library" rule (see DESIGN.md).
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every recognized environment key from the external
// interfaces section, plus the derived rate-limit/concurrency defaults the
// Rate Limiter and Document Fetcher need when the corresponding env var is
// unset.
type Config struct {
	DartAPIKey string

	CachePath string
	CacheTTL  time.Duration

	// DartAPIDailyQuota is DART_API_RATE_LIMIT, the daily call quota used to
	// derive the dart_api service's rolling-window limit.
	DartAPIDailyQuota int

	MaxSearchResults int
	ParallelDownloads int

	LLMProvider    string
	LLMBaseURL     string
	LLMAPIKey      string
	LLMModel       string
	LLMTemperature float64
	LLMMaxTokens   int

	// CacheNegativeUpstreamEmpty controls whether a zero-row UpstreamEmpty
	// result is written to the cache like any other success value. Default
	// false, matching the specification's stated default cache behavior.
	CacheNegativeUpstreamEmpty bool
}

// Load populates a Config from the process environment, falling back to the
// documented defaults for anything unset.
func Load() *Config {
	return &Config{
		DartAPIKey: os.Getenv("DART_API_KEY"),

		CachePath: getenvOr("DART_CACHE_PATH", "./.dart-cache"),
		CacheTTL:  time.Duration(getenvIntOr("DART_CACHE_TTL", 24)) * time.Hour,

		DartAPIDailyQuota: getenvIntOr("DART_API_RATE_LIMIT", 20000),
		MaxSearchResults:  getenvIntOr("DART_MAX_SEARCH_RESULTS", 100),
		ParallelDownloads: getenvIntOr("DART_PARALLEL_DOWNLOADS", 3),

		LLMProvider:    getenvOr("LLM_PROVIDER", ""),
		LLMBaseURL:     getenvOr("LLM_BASE_URL", ""),
		LLMAPIKey:      os.Getenv("LLM_API_KEY"),
		LLMModel:       getenvOr("LLM_MODEL", ""),
		LLMTemperature: getenvFloatOr("LLM_TEMPERATURE", 0.2),
		LLMMaxTokens:   getenvIntOr("LLM_MAX_TOKENS", 2048),

		CacheNegativeUpstreamEmpty: getenvBoolOr("DART_CACHE_NEGATIVE_EMPTY", false),
	}
}

func getenvOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvIntOr(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvFloatOr(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolOr(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
