package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"contractflow/internal/services/llm"
)

// maxPromptRunes bounds the contract text sent to the model.
const maxPromptRunes = 30000

// Completer is the slice of llm.Client the extractor needs.
type Completer interface {
	CompleteJSON(ctx context.Context, prompt string) (string, error)
	Model() string
}

// LLMExtractor asks a chat completion model for the contract fields.
type LLMExtractor struct {
	client Completer
}

// NewLLMExtractor wraps client.
func NewLLMExtractor(client Completer) *LLMExtractor {
	return &LLMExtractor{client: client}
}

// Extract sends text to the model and scores what comes back. An answer that
// is not valid JSON yields empty fields and the minimum confidence rather
// than an error, so the contract still reaches review.
func (x *LLMExtractor) Extract(ctx context.Context, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, errors.New("extract: contract text is empty")
	}
	answer, err := x.client.CompleteJSON(ctx, buildPrompt(text))
	if err != nil {
		return Result{}, fmt.Errorf("extract: %w", err)
	}
	var raw rawFields
	if err := llm.DecodeJSON(answer, &raw); err != nil {
		raw = rawFields{}
	}
	fields := raw.normalize()
	return Result{
		Fields:     fields,
		Confidence: Confidence(fields),
		Model:      x.client.Model(),
	}, nil
}

func buildPrompt(text string) string {
	if runes := []rune(text); len(runes) > maxPromptRunes {
		text = string(runes[:maxPromptRunes])
	}
	var b strings.Builder
	b.WriteString("Extract the key terms from the contract below and answer with JSON only, no commentary.\n\n")
	b.WriteString("Contract text:\n")
	b.WriteString(text)
	b.WriteString("\n\nUse null for anything the text does not state. Shape:\n")
	b.WriteString(`{
  "total_amount": total contract value as a number,
  "subject_matter": what the contract is for,
  "sign_date": signing date (ISO 8601),
  "effective_date": date the contract takes effect (ISO 8601),
  "expire_date": date the contract ends (ISO 8601),
  "parties": [
    {
      "party_type": "甲方" or "乙方",
      "party_name": organisation name,
      "tax_number": tax registration number if present,
      "legal_representative": legal representative if present,
      "address": address if present
    }
  ]
}`)
	return b.String()
}
