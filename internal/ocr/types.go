package ocr

import (
	"context"
	"time"
)

// Job is one extraction request.
type Job struct {
	ID          string
	ContractID  string
	FileRef     string
	Filename    string
	ContentType string
}

// Result is the outcome of a job. Err set means extraction failed.
type Result struct {
	Text string
	Err  error
}

// Failed builds a failure result.
func Failed(err error) Result {
	return Result{Err: err}
}

// Collaborator accepts jobs without waiting for extraction. The returned
// reference identifies the job on the collaborator side.
type Collaborator interface {
	Submit(ctx context.Context, job Job) (string, error)
}

// ResultHandler receives results from collaborators.
type ResultHandler interface {
	OnResult(ctx context.Context, jobID string, res Result) error
}

// Applier writes results into contract state. Implementations return an
// error matching services.ErrStaleResult when the job no longer owns its
// contract.
type Applier interface {
	ApplyOCRResult(ctx context.Context, jobID, text string) error
	ApplyOCRFailure(ctx context.Context, jobID, reason string) error
}

// ActiveJob describes a job currently being extracted.
type ActiveJob struct {
	JobID      string    `json:"job_id"`
	ContractID string    `json:"contract_id"`
	StartedAt  time.Time `json:"started_at"`
}

// QueueStatus summarises collaborator load.
type QueueStatus struct {
	Backend   string      `json:"backend"`
	Workers   int         `json:"workers"`
	Capacity  int         `json:"capacity"`
	Queued    int         `json:"queued"`
	Active    []ActiveJob `json:"active"`
	Submitted int64       `json:"submitted"`
	Completed int64       `json:"completed"`
	Failed    int64       `json:"failed"`
}

// StatusReporter is implemented by collaborators that expose queue state.
type StatusReporter interface {
	Status() QueueStatus
}
