package llmclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myeongjunkim/dart-deep-search/ai/tokenizer"
	"github.com/myeongjunkim/dart-deep-search/internal/errkind"
)

func TestConfig_Usable(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"openai with key and model", Config{Provider: "openai", APIKey: "sk-x", Model: "gpt-4o-mini"}, true},
		{"openai without key", Config{Provider: "openai", Model: "gpt-4o-mini"}, false},
		{"openai without model", Config{Provider: "openai", APIKey: "sk-x"}, false},
		{"vllm with base url and model, no key", Config{Provider: "vllm", BaseURL: "http://localhost:8000/v1", Model: "llama3"}, true},
		{"vllm without base url", Config{Provider: "vllm", Model: "llama3"}, false},
		{"ollama with base url and model", Config{Provider: "ollama", BaseURL: "http://localhost:11434", Model: "llama3.1:8b"}, true},
		{"empty config", Config{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.cfg.Usable())
		})
	}
}

func TestNew_RejectsUnusableConfig(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestNew_BuildsClientForUsableOpenAIConfig(t *testing.T) {
	client, err := New(Config{Provider: "openai", APIKey: "sk-test", Model: "gpt-4o-mini", Temperature: 0.1, MaxTokens: 500})
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Equal(t, "gpt-4o-mini", client.model)
	assert.Equal(t, int64(500), client.maxTokens)
	assert.Equal(t, defaultTimeout, client.timeout)
}

func TestNew_AppliesDefaultMaxTokensAndTimeout(t *testing.T) {
	client, err := New(Config{Provider: "openai", APIKey: "sk-test", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), client.maxTokens)
	assert.Equal(t, defaultTimeout, client.timeout)
}

func TestNew_HonorsExplicitTimeout(t *testing.T) {
	client, err := New(Config{Provider: "openai", APIKey: "sk-test", Model: "m", Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, client.timeout)
}

func TestResolveAPIKey_VllmFallsBackToDummyKey(t *testing.T) {
	assert.Equal(t, vllmDummyKey, resolveAPIKey(Config{Provider: "vllm"}))
	assert.Equal(t, "real-key", resolveAPIKey(Config{Provider: "vllm", APIKey: "real-key"}))
}

func TestResolveAPIKey_OllamaFallsBackToDummyKey(t *testing.T) {
	assert.Equal(t, ollamaDummyKey, resolveAPIKey(Config{Provider: "ollama"}))
}

func TestResolveAPIKey_OpenAIUsesConfiguredKey(t *testing.T) {
	assert.Equal(t, "sk-abc", resolveAPIKey(Config{Provider: "openai", APIKey: "sk-abc"}))
}

func TestResolveBaseURL_OllamaGetsV1Suffix(t *testing.T) {
	assert.Equal(t, "http://localhost:11434/v1", resolveBaseURL(Config{Provider: "ollama", BaseURL: "http://localhost:11434"}))
	assert.Equal(t, "http://localhost:11434/v1", resolveBaseURL(Config{Provider: "ollama", BaseURL: "http://localhost:11434/v1"}))
}

func TestResolveBaseURL_VllmPassesThrough(t *testing.T) {
	assert.Equal(t, "http://localhost:8000/v1", resolveBaseURL(Config{Provider: "vllm", BaseURL: "http://localhost:8000/v1"}))
}

func TestResolveBaseURL_EmptyStaysEmpty(t *testing.T) {
	assert.Equal(t, "", resolveBaseURL(Config{Provider: "openai"}))
}

func TestTrimToBudget_ShortPromptUntouched(t *testing.T) {
	c := &Client{tok: tokenizer.NewTiktokenWithCL100KBase(), tokenBudget: defaultPromptTokenBudget}
	assert.Equal(t, "짧은 프롬프트", c.trimToBudget("짧은 프롬프트"))
}

func TestTrimToBudget_LongPromptTrimmedWithElisionMarker(t *testing.T) {
	c := &Client{tok: tokenizer.NewTiktokenWithCL100KBase(), tokenBudget: 20}
	long := ""
	for i := 0; i < 500; i++ {
		long += "문서 내용 토큰 예시 텍스트 "
	}
	out := c.trimToBudget(long)
	assert.Contains(t, out, "중간 내용 생략")
	assert.Less(t, len(out), len(long))
}

func TestTrimToBudget_NilTokenizerReturnsPromptUnchanged(t *testing.T) {
	c := &Client{tok: nil, tokenBudget: 10}
	assert.Equal(t, "안녕하세요", c.trimToBudget("안녕하세요"))
}

func TestComplete_CancelledContextReturnsCancelledKind(t *testing.T) {
	client, err := New(Config{Provider: "openai", APIKey: "sk-test", Model: "gpt-4o-mini", Timeout: time.Minute})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.Complete(ctx, "system", "user")
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.Cancelled))
}
