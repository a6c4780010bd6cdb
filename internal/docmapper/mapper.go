// Package docmapper resolves a user query and the Query Parser's extracted
// document-type phrases to ranked DART category codes. An LLM classifier is
// tried first; a priority-weighted keyword scorer over a built-in catalog
// is the deterministic fallback.
package docmapper

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/myeongjunkim/dart-deep-search/internal/dartmodel"
)

const defaultMaxTypes = 3

// Classifier is the narrow text-in/text-out contract the Mapper drives an
// LLM through. Satisfied by *llmclient.Client.
type Classifier interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ParserContext carries the Query Parser's extracted hints the fallback
// scorer weighs alongside the raw query text.
type ParserContext struct {
	DocTypeNames []string // names of document-type phrases the parser extracted
	Keywords     []string // domain keywords the parser extracted
}

// Mapper resolves queries to category codes.
type Mapper struct {
	classifier Classifier
}

// New constructs a Mapper. classifier may be nil, in which case Map always
// uses the deterministic fallback.
func New(classifier Classifier) *Mapper {
	return &Mapper{classifier: classifier}
}

// Map returns up to maxTypes ranked (code, confidence) guesses. maxTypes<=0
// uses the default of 3.
func (m *Mapper) Map(ctx context.Context, query string, pctx ParserContext, maxTypes int) []dartmodel.CategoryGuess {
	if maxTypes <= 0 {
		maxTypes = defaultMaxTypes
	}

	if m.classifier != nil {
		if guesses := m.classifyWithLLM(ctx, query, pctx, maxTypes); guesses != nil {
			return guesses
		}
	}
	return fallbackMap(query, pctx, maxTypes)
}

var jsonArray = regexp.MustCompile(`(?s)\[.*\]`)

func (m *Mapper) classifyWithLLM(ctx context.Context, query string, pctx ParserContext, maxTypes int) []dartmodel.CategoryGuess {
	system := "You are a Korean financial disclosure document-type classification expert."
	prompt := buildPrompt(query, pctx)

	content, err := m.classifier.Complete(ctx, system, prompt)
	if err != nil {
		slog.Warn("docmapper: LLM classification failed, falling back to keyword scorer", "err", err)
		return nil
	}

	match := jsonArray.FindString(content)
	if match == "" {
		return nil
	}

	var raw []struct {
		Code       string  `json:"code"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(match), &raw); err != nil {
		slog.Warn("docmapper: malformed LLM classification output", "err", err)
		return nil
	}
	if len(raw) == 0 {
		return nil
	}

	guesses := make([]dartmodel.CategoryGuess, 0, len(raw))
	for _, r := range raw {
		if r.Code == "" {
			continue
		}
		guesses = append(guesses, dartmodel.CategoryGuess{Code: r.Code, Confidence: r.Confidence})
	}
	if len(guesses) == 0 {
		return nil
	}
	if len(guesses) > maxTypes {
		guesses = guesses[:maxTypes]
	}
	return guesses
}

func buildPrompt(query string, pctx ParserContext) string {
	var sb strings.Builder
	sb.WriteString("Classify the following query against this category catalog. ")
	sb.WriteString("Respond with a JSON array of objects: [{\"code\": \"...\", \"confidence\": 0.0-1.0}].\n\n")
	sb.WriteString("Catalog:\n")
	for _, c := range categoryTable {
		sb.WriteString("- ")
		sb.WriteString(c.Code)
		sb.WriteString(" (")
		sb.WriteString(c.Name)
		sb.WriteString("): ")
		sb.WriteString(strings.Join(c.Keywords, ", "))
		sb.WriteString("\n")
	}
	sb.WriteString("\nQuery: ")
	sb.WriteString(query)
	if len(pctx.DocTypeNames) > 0 {
		sb.WriteString("\nExtracted document-type phrases: ")
		sb.WriteString(strings.Join(pctx.DocTypeNames, ", "))
	}
	if len(pctx.Keywords) > 0 {
		sb.WriteString("\nExtracted keywords: ")
		sb.WriteString(strings.Join(pctx.Keywords, ", "))
	}
	return sb.String()
}

// fallbackMap implements spec.md §4.6's priority-weighted keyword scorer:
// matches in parser-extracted doc-type names weigh ×2, matches in the raw
// query weigh ×1, matches in parser-extracted keywords weigh ×0.5; the
// result is normalized so the top score is 1.0.
func fallbackMap(query string, pctx ParserContext, maxTypes int) []dartmodel.CategoryGuess {
	queryLower := strings.ToLower(query)
	scores := make(map[string]float64)

	for _, name := range pctx.DocTypeNames {
		nameLower := strings.ToLower(name)
		for _, c := range categoryTable {
			if containsAnyKeyword(nameLower, c.Keywords) {
				scores[c.Code] += float64(c.Priority) * 2
			}
		}
	}

	for _, c := range categoryTable {
		if containsAnyKeyword(queryLower, c.Keywords) {
			scores[c.Code] += float64(c.Priority)
		}
	}

	for _, kw := range pctx.Keywords {
		kwLower := strings.ToLower(kw)
		for _, c := range categoryTable {
			if containsAnyKeyword(kwLower, c.Keywords) {
				scores[c.Code] += float64(c.Priority) * 0.5
			}
		}
	}

	if len(scores) == 0 {
		return []dartmodel.CategoryGuess{{Code: defaultCode, Confidence: defaultConfidence}}
	}

	type scored struct {
		code  string
		score float64
	}
	ranked := make([]scored, 0, len(scores))
	for code, score := range scores {
		ranked = append(ranked, scored{code, score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].code < ranked[j].code
	})

	maxScore := ranked[0].score
	if len(ranked) > maxTypes {
		ranked = ranked[:maxTypes]
	}

	guesses := make([]dartmodel.CategoryGuess, len(ranked))
	for i, r := range ranked {
		guesses[i] = dartmodel.CategoryGuess{Code: r.code, Confidence: r.score / maxScore}
	}
	return guesses
}

func containsAnyKeyword(haystack string, keywords []string) bool {
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
