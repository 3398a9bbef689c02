package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"contractflow/internal/logging"
	"contractflow/internal/services"
)

// Gateway dispatches jobs and applies their results.
type Gateway struct {
	collab  Collaborator
	applier Applier
	logger  *slog.Logger
}

// NewGateway wires a collaborator to the component that owns contract state.
func NewGateway(collab Collaborator, applier Applier, logger *slog.Logger) *Gateway {
	return &Gateway{
		collab:  collab,
		applier: applier,
		logger:  logging.NewComponentLogger(logger, "ocr"),
	}
}

// Submit hands job to the collaborator and returns once it is accepted.
func (g *Gateway) Submit(ctx context.Context, job Job) error {
	if g.collab == nil {
		return errors.New("ocr collaborator not configured")
	}
	ref, err := g.collab.Submit(ctx, job)
	if err != nil {
		return fmt.Errorf("submit ocr job %s: %w", job.ID, err)
	}
	logging.WithContext(ctx, g.logger).Info("ocr job submitted",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldContractID, job.ContractID),
		logging.String("remote_ref", ref),
	)
	return nil
}

// OnResult applies a collaborator result. Stale results are logged and
// swallowed.
func (g *Gateway) OnResult(ctx context.Context, jobID string, res Result) error {
	var err error
	if res.Err != nil {
		err = g.applier.ApplyOCRFailure(ctx, jobID, res.Err.Error())
	} else {
		err = g.applier.ApplyOCRResult(ctx, jobID, res.Text)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, services.ErrStaleResult):
		logging.WithContext(ctx, g.logger).Warn("discarded stale ocr result",
			logging.String(logging.FieldJobID, jobID),
			logging.String(logging.FieldEventType, "stale_result"),
			logging.Bool("failure", res.Err != nil),
			logging.Error(err),
		)
		return nil
	default:
		return err
	}
}
