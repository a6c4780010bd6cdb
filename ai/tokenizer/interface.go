// Package tokenizer provides interfaces for text tokenization operations,
// used to budget prompt and evidence text against a model's context window.
package tokenizer

import "context"

// TextEstimator estimates the number of tokens in text content.
// This interface is useful for calculating text token usage before making API calls
// to AI services that have token limits or charge based on token consumption.
type TextEstimator interface {
	// EstimateText estimates the number of tokens in the given text.
	EstimateText(ctx context.Context, text string) (int, error)
}

// Encoder converts text into a token sequence.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]int, error)
}

// Decoder converts a token sequence back into text.
type Decoder interface {
	Decode(ctx context.Context, tokens []int) (string, error)
}

// Tokenizer combines both encoding and decoding capabilities.
type Tokenizer interface {
	Encoder
	Decoder
}

// Estimator is the subset of Tokenizer used for budget checks.
type Estimator interface {
	TextEstimator
}
