package extract

import (
	"context"

	"contractflow/internal/store"
)

// Job asks for the fields of one contract's OCR text.
type Job struct {
	ID         string
	ContractID string
	Text       string
}

// Result is the outcome of a job. Err set means extraction failed and the
// other fields are empty.
type Result struct {
	Fields     store.ExtractedFields
	Confidence float64
	Model      string
	Err        error
}

// Extractor reads fields from contract text.
type Extractor interface {
	Extract(ctx context.Context, text string) (Result, error)
}

// ResultHandler receives finished jobs.
type ResultHandler interface {
	OnExtraction(ctx context.Context, job Job, res Result) error
}
