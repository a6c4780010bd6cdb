// Package llmclient wraps a single OpenAI-compatible chat completion
// endpoint behind the narrow text-in/text-out Classifier contract every
// other package in this engine drives an LLM through. It has no
// multi-provider abstraction, no tool-calling, and no conversation memory:
// one system prompt, one user prompt, one completion, per call.
package llmclient

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/myeongjunkim/dart-deep-search/ai/tokenizer"
	"github.com/myeongjunkim/dart-deep-search/internal/config"
	"github.com/myeongjunkim/dart-deep-search/internal/errkind"
	pkgsync "github.com/myeongjunkim/dart-deep-search/pkg/sync"
)

const (
	defaultTimeout           = 30 * time.Second
	defaultPromptTokenBudget = 6000
	ollamaDummyKey           = "ollama"
	vllmDummyKey             = "dummy-key"
)

// Config holds what a Client needs to reach one OpenAI-compatible chat
// completion endpoint. Provider selects how BaseURL/APIKey are resolved the
// way llm_client.py's LLMClientConfig picks between "openai", "vllm", and
// "ollama" modes; any other value (including empty) is treated as "openai".
type Config struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// FromAppConfig builds a llmclient.Config from the process-wide
// configuration, copying its LLM settings as they are; Usable reports
// whether the result names a usable provider.
func FromAppConfig(cfg *config.Config) Config {
	return Config{
		Provider:    cfg.LLMProvider,
		BaseURL:     cfg.LLMBaseURL,
		APIKey:      cfg.LLMAPIKey,
		Model:       cfg.LLMModel,
		Temperature: cfg.LLMTemperature,
		MaxTokens:   cfg.LLMMaxTokens,
	}
}

// Usable reports whether this configuration has enough information to
// build a Client. "vllm" and "ollama" providers can run without a real API
// key (a placeholder is supplied), but they still need a base URL and a
// model name; "openai" needs a real API key.
func (c Config) Usable() bool {
	switch c.Provider {
	case "vllm", "ollama":
		return c.BaseURL != "" && c.Model != ""
	default:
		return c.APIKey != "" && c.Model != ""
	}
}

// Client is a stateless, concurrency-safe wrapper around one chat
// completion endpoint. The zero value is not usable; construct with New.
type Client struct {
	api        *openai.Client
	model       string
	temp        float64
	maxTokens   int64
	timeout     time.Duration
	tok         tokenizer.Tokenizer
	tokenBudget int
}

// New constructs a Client from cfg. Returns an error if cfg is not Usable.
func New(cfg Config) (*Client, error) {
	if !cfg.Usable() {
		return nil, errors.New("llmclient: configuration is not usable (missing provider, base URL, API key, or model)")
	}

	opts := []option.RequestOption{option.WithAPIKey(resolveAPIKey(cfg))}
	baseURL := resolveBaseURL(cfg)
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(opts...)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	temp := cfg.Temperature
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}

	return &Client{
		api:         &client,
		model:       cfg.Model,
		temp:        temp,
		maxTokens:   int64(maxTokens),
		timeout:     timeout,
		tok:         tokenizer.NewTiktokenWithCL100KBase(),
		tokenBudget: defaultPromptTokenBudget,
	}, nil
}

// resolveAPIKey mirrors LLMClientConfig.get_openai_client: vllm/ollama
// modes accept a placeholder key since the upstream server does not check
// it, but the HTTP client still requires a non-empty Authorization header.
func resolveAPIKey(cfg Config) string {
	switch cfg.Provider {
	case "ollama":
		if cfg.APIKey != "" {
			return cfg.APIKey
		}
		return ollamaDummyKey
	case "vllm":
		if cfg.APIKey != "" {
			return cfg.APIKey
		}
		return vllmDummyKey
	default:
		return cfg.APIKey
	}
}

func resolveBaseURL(cfg Config) string {
	if cfg.BaseURL == "" {
		return ""
	}
	if cfg.Provider == "ollama" && !strings.HasSuffix(cfg.BaseURL, "/v1") {
		return strings.TrimRight(cfg.BaseURL, "/") + "/v1"
	}
	return cfg.BaseURL
}

// Complete sends a single system+user turn and returns the assistant's
// reply text. The call is bounded by both ctx and the Client's configured
// timeout, whichever elapses first; on cancellation or timeout the
// underlying request is abandoned and a kinded error is returned so callers
// (documentfilter, docmapper, queryparser, synthesizer) can fall back to
// their deterministic paths without inspecting error strings.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	userPrompt = c.trimToBudget(userPrompt)

	task := pkgsync.NewFutureTask(func(interrupt <-chan struct{}) (string, error) {
		callCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-interrupt:
				cancel()
			case <-callCtx.Done():
			}
		}()
		return c.call(callCtx, systemPrompt, userPrompt)
	})
	go task.Run()

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := task.GetWithContext(timeoutCtx)
	if err == nil {
		return result, nil
	}

	switch {
	case errors.Is(err, pkgsync.ErrFutureTimedOut), errors.Is(err, context.DeadlineExceeded):
		return "", errkind.New(errkind.LLMUnavailable, "llmclient.Complete", err)
	case errors.Is(err, context.Canceled):
		return "", errkind.New(errkind.Cancelled, "llmclient.Complete", err)
	default:
		return "", errkind.New(errkind.LLMUnavailable, "llmclient.Complete", err)
	}
}

func (c *Client) call(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(c.temp),
		MaxTokens:   openai.Int(c.maxTokens),
	})
	if err != nil {
		return "", errkind.New(errkind.LLMUnavailable, "llmclient.call", err)
	}
	if len(resp.Choices) == 0 {
		return "", errkind.New(errkind.LLMMalformed, "llmclient.call", errors.New("no choices in response"))
	}

	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", errkind.New(errkind.LLMMalformed, "llmclient.call", errors.New("empty completion content"))
	}
	return content, nil
}

// trimToBudget keeps userPrompt under the Client's token budget by cutting
// from the middle, the same head/tail-preserving shape
// contentcleaner.CleanForLLM uses for document bodies: a prompt is usually
// dominated by pasted evidence text, and both ends tend to carry the most
// identifying information (titles/headers at the top, totals/conclusions
// at the bottom).
func (c *Client) trimToBudget(prompt string) string {
	if c.tok == nil || c.tokenBudget <= 0 {
		return prompt
	}

	tokens, err := c.tok.Encode(context.Background(), prompt)
	if err != nil || len(tokens) <= c.tokenBudget {
		return prompt
	}

	half := c.tokenBudget / 2
	headTokens := tokens[:half]
	tailTokens := tokens[len(tokens)-half:]

	head, errHead := c.tok.Decode(context.Background(), headTokens)
	tail, errTail := c.tok.Decode(context.Background(), tailTokens)
	if errHead != nil || errTail != nil {
		slog.Warn("llmclient: token trim decode failed, truncating by rune count instead", "error", errors.Join(errHead, errTail))
		runes := []rune(prompt)
		if len(runes) <= c.tokenBudget*4 {
			return prompt
		}
		return string(runes[:c.tokenBudget*4])
	}

	return head + "\n\n... [중간 내용 생략] ...\n\n" + tail
}
