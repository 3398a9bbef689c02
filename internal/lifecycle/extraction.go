package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"contractflow/internal/extract"
	"contractflow/internal/logging"
	"contractflow/internal/services"
	"contractflow/internal/store"
)

// startExtraction stamps an OcrCompleted contract with a running extraction
// under a fresh job id and submits it. A refused job is recorded as a failed
// extraction so the contract still moves on to review.
func (e *Engine) startExtraction(ctx context.Context, id string) {
	jobID := uuid.NewString()
	c, err := e.update(ctx, id, func(c *store.Contract) error {
		if c.State != store.StateOCRCompleted {
			return fmt.Errorf("contract %s is %s: %w", id, c.State, services.ErrInvalidState)
		}
		c.Extraction = &store.Extraction{
			JobID:     jobID,
			Status:    store.ExtractionRunning,
			UpdatedAt: e.now(),
		}
		return nil
	})
	if err != nil {
		logging.WithContext(ctx, e.logger).Warn("field extraction not started", logging.Error(err))
		return
	}

	job := extract.Job{ID: jobID, ContractID: c.ID, Text: c.OCRText}
	if err := e.extractor.Submit(ctx, job); err != nil {
		logging.WithContext(ctx, e.logger).Warn("field extraction submit failed",
			logging.String(logging.FieldJobID, jobID),
			logging.Error(err),
		)
		if applyErr := e.ApplyExtraction(ctx, c.ID, jobID, extract.Result{Err: fmt.Errorf("submit: %w", err)}); applyErr != nil {
			logging.WithContext(ctx, e.logger).Error("record extraction submit failure", logging.Error(applyErr))
		}
	}
}

// OnExtraction applies a finished extraction job. Stale results are logged
// and swallowed.
func (e *Engine) OnExtraction(ctx context.Context, job extract.Job, res extract.Result) error {
	ctx = services.WithContractID(ctx, job.ContractID)
	err := e.ApplyExtraction(ctx, job.ContractID, job.ID, res)
	if errors.Is(err, services.ErrStaleResult) {
		logging.WithContext(ctx, e.logger).Warn("discarded stale extraction result",
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldEventType, "stale_result"),
			logging.Error(err),
		)
		return nil
	}
	return err
}

// ApplyExtraction records the outcome of extraction job jobID on contract id.
// Only the job that owns the contract's running extraction may write, and
// only while the contract is undecided. Repeating a recorded outcome is a
// no-op. Once recorded, an OcrCompleted contract is queued for review when
// automatic queueing is on, whether or not extraction succeeded.
func (e *Engine) ApplyExtraction(ctx context.Context, id, jobID string, res extract.Result) error {
	outcome := &store.Extraction{
		JobID:     jobID,
		Status:    store.ExtractionCompleted,
		Model:     res.Model,
		UpdatedAt: e.now(),
	}
	if res.Err != nil {
		outcome.Status = store.ExtractionFailed
		outcome.Error = res.Err.Error()
	} else {
		fields := res.Fields
		outcome.Fields = &fields
		outcome.Confidence = res.Confidence
		outcome.RequiresReview = res.Confidence < e.reviewThreshold
	}

	applied := false
	updated, err := e.update(ctx, id, func(c *store.Contract) error {
		applied = false
		current := c.Extraction
		if c.State == store.StateDeleted || c.State.IsDecided() || current == nil || current.JobID != jobID {
			return staleExtraction(c, jobID)
		}
		if current.Status != store.ExtractionRunning {
			if current.Status == outcome.Status {
				return store.ErrUnchanged
			}
			return staleExtraction(c, jobID)
		}
		c.Extraction = outcome
		applied = true
		return nil
	})
	if errors.Is(err, services.ErrNotFound) {
		return fmt.Errorf("extraction job %s: %w", jobID, services.ErrStaleResult)
	}
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	ctx = services.WithContractID(ctx, id)
	if outcome.Status == store.ExtractionFailed {
		logging.WithContext(ctx, e.logger).Warn("field extraction failed",
			logging.String(logging.FieldJobID, jobID),
			logging.String("reason", outcome.Error),
			logging.String(logging.FieldEventType, "extraction_failed"),
		)
	} else {
		logging.WithContext(ctx, e.logger).Info("fields extracted",
			logging.String(logging.FieldJobID, jobID),
			logging.Float64("confidence", outcome.Confidence),
			logging.Bool("requires_review", outcome.RequiresReview),
			logging.String("model", outcome.Model),
		)
	}
	if updated.State == store.StateOCRCompleted {
		e.autoQueue(ctx, id)
	}
	return nil
}

// ResumeExtraction restarts extraction for OcrCompleted contracts whose job
// was lost with the previous process or never started. It does nothing when
// extraction is not configured.
func (e *Engine) ResumeExtraction(ctx context.Context) (int, error) {
	if e.extractor == nil {
		return 0, nil
	}
	var ids []string
	filter := store.Filter{States: []store.State{store.StateOCRCompleted}, Ascending: true}
	for c, err := range e.store.Iterate(ctx, filter, store.DefaultPageLimit) {
		if err != nil {
			return 0, fmt.Errorf("scan completed contracts: %w", err)
		}
		if c.Extraction == nil || c.Extraction.Status == store.ExtractionRunning {
			ids = append(ids, c.ID)
		}
	}
	for _, id := range ids {
		e.startExtraction(services.WithContractID(ctx, id), id)
	}
	return len(ids), nil
}

func staleExtraction(c *store.Contract, jobID string) error {
	return fmt.Errorf("extraction job %s for contract %s in state %s: %w", jobID, c.ID, c.State, services.ErrStaleResult)
}
