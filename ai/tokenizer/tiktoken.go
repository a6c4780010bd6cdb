package tokenizer

import (
	"context"

	"github.com/pkoukk/tiktoken-go"
)

var _ Estimator = (*Tiktoken)(nil)
var _ Tokenizer = (*Tiktoken)(nil)

// Tiktoken is a token count estimator implementation using the tiktoken library.
// It provides token estimation for text content based on OpenAI's tokenization models.
type Tiktoken struct {
	encodingName string
	encoding     *tiktoken.Tiktoken
}

// NewTiktokenWithCL100KBase creates a new Tiktoken instance using the CL100K_BASE encoding model.
func NewTiktokenWithCL100KBase() *Tiktoken {
	cli, err := NewTiktoken(tiktoken.MODEL_CL100K_BASE)
	if err != nil {
		panic(err)
	}
	return cli
}

// NewTiktoken creates a new Tiktoken instance with the specified encoding name.
func NewTiktoken(encodingName string) (*Tiktoken, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, err
	}
	return &Tiktoken{
		encodingName: encodingName,
		encoding:     encoding,
	}, nil
}

// EstimateText estimates the number of tokens in the given text.
func (t *Tiktoken) EstimateText(_ context.Context, text string) (int, error) {
	return len(t.encoding.Encode(text, nil, nil)), nil
}

func (t *Tiktoken) Encode(_ context.Context, text string) ([]int, error) {
	return t.encoding.Encode(text, nil, nil), nil
}

func (t *Tiktoken) Decode(_ context.Context, tokens []int) (string, error) {
	return t.encoding.Decode(tokens), nil
}
