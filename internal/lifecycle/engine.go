package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"contractflow/internal/blob"
	"contractflow/internal/config"
	"contractflow/internal/extract"
	"contractflow/internal/logging"
	"contractflow/internal/ocr"
	"contractflow/internal/services"
	"contractflow/internal/store"
)

// Store is the persistence surface the engine writes through.
type Store interface {
	Create(ctx context.Context, in store.NewContract) (*store.Contract, error)
	Get(ctx context.Context, id string) (*store.Contract, error)
	Update(ctx context.Context, id string, mutator func(*store.Contract) error) (*store.Contract, error)
	FindByOCRJob(ctx context.Context, jobID string) (*store.Contract, error)
	List(ctx context.Context, filter store.Filter, page store.Page) (store.PageResult, error)
	Iterate(ctx context.Context, filter store.Filter, pageSize int) iter.Seq2[*store.Contract, error]
}

// DeleteOutcome reports what Delete did.
type DeleteOutcome string

const (
	Deleted        DeleteOutcome = "deleted"
	AlreadyDeleted DeleteOutcome = "already_deleted"
)

// Engine drives contracts through the lifecycle.
type Engine struct {
	store   Store
	blobs   blob.Store
	gateway *ocr.Gateway
	logger  *slog.Logger

	extractor       ExtractionQueue
	reviewThreshold float64

	autoOCR         bool
	autoQueueReview bool
	attempts        int
	maxUploadBytes  int64
	now             func() time.Time
}

// ExtractionQueue accepts field extraction jobs without waiting for them.
type ExtractionQueue interface {
	Submit(ctx context.Context, job extract.Job) error
}

// Option customizes an Engine.
type Option func(*Engine)

// WithExtraction runs field extraction between OcrCompleted and review.
// Finished jobs must be delivered back through OnExtraction.
func WithExtraction(queue ExtractionQueue) Option {
	return func(e *Engine) {
		e.extractor = queue
	}
}

// New builds an engine whose OCR results flow back through the returned
// engine's Gateway.
func New(cfg *config.Config, st Store, blobs blob.Store, collab ocr.Collaborator, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:           st,
		blobs:           blobs,
		logger:          logging.NewComponentLogger(logger, "lifecycle"),
		reviewThreshold: cfg.Extraction.ReviewThreshold,
		autoOCR:         cfg.Workflow.AutoOCR,
		autoQueueReview: cfg.Workflow.AutoQueueReview,
		attempts:        cfg.Workflow.ConflictRetries + 1,
		maxUploadBytes:  cfg.MaxUploadBytes(),
		now:             func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	e.gateway = ocr.NewGateway(collab, e, logger)
	return e
}

// Gateway returns the OCR gateway collaborators deliver results to.
func (e *Engine) Gateway() *ocr.Gateway {
	return e.gateway
}

// UploadRequest describes a new document.
type UploadRequest struct {
	ContractNumber string
	ContractType   store.ContractType
	Filename       string
	ContentType    string
	CreatedBy      string
	Size           int64
	Body           io.Reader
	// AutoOCR overrides workflow.auto_ocr when set.
	AutoOCR *bool
}

func (r UploadRequest) validate(maxBytes int64) error {
	var problems []string
	if strings.TrimSpace(r.ContractNumber) == "" {
		problems = append(problems, "contract_number is required")
	}
	if _, ok := store.ParseContractType(string(r.ContractType)); !ok {
		problems = append(problems, fmt.Sprintf("contract_type %q must be purchase, sales or lease", r.ContractType))
	}
	if strings.TrimSpace(r.Filename) == "" {
		problems = append(problems, "filename is required")
	}
	if r.Body == nil {
		problems = append(problems, "file content is required")
	}
	if maxBytes > 0 && r.Size > maxBytes {
		problems = append(problems, fmt.Sprintf("file exceeds %d bytes", maxBytes))
	}
	if len(problems) > 0 {
		return services.Wrap(services.ErrValidation, "lifecycle", "upload", strings.Join(problems, "; "), nil)
	}
	return nil
}

// Upload stores the document content and creates an Uploaded contract. When
// automatic OCR is on, extraction is requested before returning; a failed
// request is logged and does not fail the upload.
func (e *Engine) Upload(ctx context.Context, req UploadRequest) (*store.Contract, error) {
	if err := req.validate(e.maxUploadBytes); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	ref, err := e.blobs.Put(ctx, blob.ObjectName(id, req.Filename), req.Body, req.Size, req.ContentType)
	if err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}
	c, err := e.store.Create(ctx, store.NewContract{
		ID:             id,
		FileRef:        ref,
		ContractNumber: strings.TrimSpace(req.ContractNumber),
		ContractType:   req.ContractType,
		Filename:       req.Filename,
		ContentType:    req.ContentType,
		Size:           req.Size,
		CreatedBy:      strings.TrimSpace(req.CreatedBy),
	})
	if err != nil {
		return nil, fmt.Errorf("create contract: %w", err)
	}
	ctx = services.WithContractID(ctx, c.ID)
	logging.WithContext(ctx, e.logger).Info("contract uploaded",
		logging.String("file_ref", ref),
		logging.String("contract_number", c.ContractNumber),
		logging.Int64("size", c.Size),
	)

	autoOCR := e.autoOCR
	if req.AutoOCR != nil {
		autoOCR = *req.AutoOCR
	}
	if !autoOCR {
		return c, nil
	}
	started, err := e.RequestOCR(ctx, c.ID)
	if err != nil {
		logging.WithContext(ctx, e.logger).Warn("automatic ocr request failed", logging.Error(err))
		if latest, getErr := e.store.Get(ctx, c.ID); getErr == nil {
			return latest, nil
		}
		return c, nil
	}
	return started, nil
}

// RequestOCR moves an Uploaded or OcrFailed contract to OcrInProgress under a
// fresh job id and submits the job. If the collaborator refuses the job the contract is
// marked OcrFailed and the submission error is returned.
func (e *Engine) RequestOCR(ctx context.Context, id string) (*store.Contract, error) {
	jobID := uuid.NewString()
	c, err := e.update(ctx, id, func(c *store.Contract) error {
		if c.State == store.StateDeleted {
			return fmt.Errorf("contract %s: %w", id, services.ErrNotFound)
		}
		next, err := Next(c.State, EventOCRRequested)
		if err != nil {
			return err
		}
		c.State = next
		c.OCRJobID = jobID
		c.OCRError = ""
		c.Extraction = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	ctx = services.WithContractID(ctx, id)
	e.logTransition(ctx, c, EventOCRRequested)

	job := ocr.Job{
		ID:          jobID,
		ContractID:  c.ID,
		FileRef:     c.FileRef,
		Filename:    c.Filename,
		ContentType: c.ContentType,
	}
	if err := e.gateway.Submit(ctx, job); err != nil {
		if failErr := e.ApplyOCRFailure(ctx, jobID, err.Error()); failErr != nil {
			logging.WithContext(ctx, e.logger).Error("mark ocr failure after submit error", logging.Error(failErr))
		}
		return nil, err
	}
	return c, nil
}

// ApplyOCRResult records extracted text for jobID. Repeating an identical
// result is a no-op; any other result for a job that no longer owns an
// OcrInProgress contract is stale.
func (e *Engine) ApplyOCRResult(ctx context.Context, jobID, text string) error {
	c, err := e.contractForJob(ctx, jobID)
	if err != nil {
		return err
	}
	applied := false
	updated, err := e.update(ctx, c.ID, func(next *store.Contract) error {
		applied = false
		if next.OCRJobID != jobID || next.State == store.StateDeleted {
			return staleResult(next, jobID)
		}
		if next.State != store.StateOCRInProgress {
			if next.State.HasOCRText() && next.OCRText == text {
				return store.ErrUnchanged
			}
			return staleResult(next, jobID)
		}
		state, err := Next(next.State, EventOCRResult)
		if err != nil {
			return err
		}
		next.State = state
		next.OCRText = text
		applied = true
		return nil
	})
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}
	ctx = services.WithContractID(ctx, updated.ID)
	e.logTransition(ctx, updated, EventOCRResult)

	if e.extractor != nil {
		e.startExtraction(ctx, updated.ID)
		return nil
	}
	e.autoQueue(ctx, updated.ID)
	return nil
}

func (e *Engine) autoQueue(ctx context.Context, id string) {
	if !e.autoQueueReview {
		return
	}
	if _, err := e.QueueForReview(ctx, id); err != nil {
		logging.WithContext(ctx, e.logger).Warn("automatic review queueing failed", logging.Error(err))
	}
}

// ApplyOCRFailure marks the contract owned by jobID as OcrFailed.
func (e *Engine) ApplyOCRFailure(ctx context.Context, jobID, reason string) error {
	c, err := e.contractForJob(ctx, jobID)
	if err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "extraction failed"
	}
	applied := false
	updated, err := e.update(ctx, c.ID, func(next *store.Contract) error {
		applied = false
		if next.OCRJobID != jobID || next.State == store.StateDeleted {
			return staleResult(next, jobID)
		}
		if next.State != store.StateOCRInProgress {
			if next.State == store.StateOCRFailed && next.OCRError == reason {
				return store.ErrUnchanged
			}
			return staleResult(next, jobID)
		}
		state, err := Next(next.State, EventOCRFailed)
		if err != nil {
			return err
		}
		next.State = state
		next.OCRError = reason
		applied = true
		return nil
	})
	if err != nil {
		return err
	}
	if applied {
		e.logTransition(services.WithContractID(ctx, updated.ID), updated, EventOCRFailed, logging.String("reason", reason))
	}
	return nil
}

// QueueForReview moves an OcrCompleted contract into PendingReview. Queueing a
// contract that is already pending is a no-op.
func (e *Engine) QueueForReview(ctx context.Context, id string) (*store.Contract, error) {
	applied := false
	c, err := e.update(ctx, id, func(c *store.Contract) error {
		applied = false
		switch c.State {
		case store.StateDeleted:
			return fmt.Errorf("contract %s: %w", id, services.ErrNotFound)
		case store.StatePendingReview:
			return store.ErrUnchanged
		}
		next, err := Next(c.State, EventQueueForReview)
		if err != nil {
			return err
		}
		now := e.now()
		c.State = next
		c.QueuedAt = &now
		applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if applied {
		e.logTransition(services.WithContractID(ctx, id), c, EventQueueForReview)
	}
	return c, nil
}

// Delete soft-deletes a contract. Deleting an already deleted contract
// succeeds with AlreadyDeleted.
func (e *Engine) Delete(ctx context.Context, id string) (DeleteOutcome, error) {
	outcome := Deleted
	c, err := e.update(ctx, id, func(c *store.Contract) error {
		if c.State == store.StateDeleted {
			outcome = AlreadyDeleted
			return store.ErrUnchanged
		}
		outcome = Deleted
		next, err := Next(c.State, EventDelete)
		if err != nil {
			return err
		}
		now := e.now()
		c.State = next
		c.DeletedAt = &now
		return nil
	})
	if err != nil {
		return "", err
	}
	if outcome == Deleted {
		e.logTransition(services.WithContractID(ctx, id), c, EventDelete)
	}
	return outcome, nil
}

// Detail returns a visible contract. Deleted contracts are reported as not
// found.
func (e *Engine) Detail(ctx context.Context, id string) (*store.Contract, error) {
	c, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.State == store.StateDeleted {
		return nil, fmt.Errorf("contract %s: %w", id, services.ErrNotFound)
	}
	return c, nil
}

// List returns one page of visible contracts, newest first.
func (e *Engine) List(ctx context.Context, page store.Page) (store.PageResult, error) {
	return e.store.List(ctx, store.Filter{ExcludeDeleted: true}, page)
}

// OCRText returns the extracted text once OCR has completed.
func (e *Engine) OCRText(ctx context.Context, id string) (string, error) {
	c, err := e.Detail(ctx, id)
	if err != nil {
		return "", err
	}
	if !c.State.HasOCRText() {
		if c.State == store.StateOCRFailed {
			return "", fmt.Errorf("contract %s ocr failed (%s): %w", id, c.OCRError, services.ErrNotReady)
		}
		return "", fmt.Errorf("contract %s is %s: %w", id, c.State, services.ErrNotReady)
	}
	return c.OCRText, nil
}

// ResumeOCR resubmits every OcrInProgress contract under its existing job id.
// It is used at daemon start to recover jobs lost with the previous process.
func (e *Engine) ResumeOCR(ctx context.Context) (int, error) {
	var jobs []ocr.Job
	filter := store.Filter{States: []store.State{store.StateOCRInProgress}, Ascending: true}
	for c, err := range e.store.Iterate(ctx, filter, store.DefaultPageLimit) {
		if err != nil {
			return 0, fmt.Errorf("scan in-progress contracts: %w", err)
		}
		jobs = append(jobs, ocr.Job{
			ID:          c.OCRJobID,
			ContractID:  c.ID,
			FileRef:     c.FileRef,
			Filename:    c.Filename,
			ContentType: c.ContentType,
		})
	}
	resumed := 0
	for _, job := range jobs {
		if err := e.gateway.Submit(ctx, job); err != nil {
			jobCtx := services.WithContractID(ctx, job.ContractID)
			logging.WithContext(jobCtx, e.logger).Warn("resume ocr job failed",
				logging.String(logging.FieldJobID, job.ID),
				logging.Error(err),
			)
			// A refused job leaves the contract retryable through RequestOCR.
			if failErr := e.ApplyOCRFailure(jobCtx, job.ID, "resume: "+err.Error()); failErr != nil {
				logging.WithContext(jobCtx, e.logger).Error("mark ocr failure after resume error", logging.Error(failErr))
			}
			continue
		}
		resumed++
	}
	return resumed, nil
}

func (e *Engine) update(ctx context.Context, id string, mutator func(*store.Contract) error) (*store.Contract, error) {
	var out *store.Contract
	err := RetryConflicts(ctx, e.attempts, func(attempt int) error {
		c, err := e.store.Update(ctx, id, mutator)
		if err != nil {
			if errors.Is(err, services.ErrConflict) {
				logging.WithContext(services.WithContractID(ctx, id), e.logger).Debug("write conflict",
					logging.Int("attempt", attempt),
				)
			}
			return err
		}
		out = c
		return nil
	})
	return out, err
}

func (e *Engine) contractForJob(ctx context.Context, jobID string) (*store.Contract, error) {
	c, err := e.store.FindByOCRJob(ctx, jobID)
	if errors.Is(err, services.ErrNotFound) {
		return nil, fmt.Errorf("ocr job %s is unknown: %w", jobID, services.ErrStaleResult)
	}
	return c, err
}

func staleResult(c *store.Contract, jobID string) error {
	return fmt.Errorf("ocr job %s for contract %s in state %s: %w", jobID, c.ID, c.State, services.ErrStaleResult)
}

func (e *Engine) logTransition(ctx context.Context, c *store.Contract, event Event, extra ...logging.Attr) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEvent, string(event)),
		logging.String(logging.FieldState, string(c.State)),
		logging.Int64("version", c.Version),
	}
	attrs = append(attrs, extra...)
	logging.WithContext(ctx, e.logger).Info("contract transitioned", logging.Args(attrs...)...)
}
