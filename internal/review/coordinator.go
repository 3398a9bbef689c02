// Package review records human decisions on contracts awaiting review.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"contractflow/internal/config"
	"contractflow/internal/lifecycle"
	"contractflow/internal/logging"
	"contractflow/internal/services"
	"contractflow/internal/store"
)

// Store is the persistence surface the coordinator needs.
type Store interface {
	Get(ctx context.Context, id string) (*store.Contract, error)
	Update(ctx context.Context, id string, mutator func(*store.Contract) error) (*store.Contract, error)
	List(ctx context.Context, filter store.Filter, page store.Page) (store.PageResult, error)
}

// Coordinator lists the review queue and records decisions.
type Coordinator struct {
	store           Store
	logger          *slog.Logger
	attempts        int
	maxCommentBytes int
	now             func() time.Time
}

// NewCoordinator builds a coordinator using cfg's retry and comment limits.
func NewCoordinator(cfg *config.Config, st Store, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		store:           st,
		logger:          logging.NewComponentLogger(logger, "review"),
		attempts:        cfg.Workflow.ConflictRetries + 1,
		maxCommentBytes: cfg.Review.MaxCommentBytes,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// ListPending returns contracts awaiting review, longest waiting first.
func (c *Coordinator) ListPending(ctx context.Context, page store.Page) (store.PageResult, error) {
	return c.store.List(ctx, store.Filter{
		States:     []store.State{store.StatePendingReview},
		Ascending:  true,
		ByQueuedAt: true,
	}, page)
}

// Validate checks a decision before any state is read.
func (c *Coordinator) Validate(d lifecycle.Decision) error {
	var problems []string
	if strings.TrimSpace(d.ContractID) == "" {
		problems = append(problems, "contract_id is required")
	}
	if d.Verdict != store.VerdictApprove && d.Verdict != store.VerdictReject {
		problems = append(problems, fmt.Sprintf("decision %q must be approve or reject", d.Verdict))
	}
	if strings.TrimSpace(d.Reviewer) == "" {
		problems = append(problems, "reviewer is required")
	}
	if c.maxCommentBytes > 0 && len(d.Comment) > c.maxCommentBytes {
		problems = append(problems, fmt.Sprintf("comment exceeds %d bytes", c.maxCommentBytes))
	}
	if len(problems) > 0 {
		return services.Wrap(services.ErrValidation, "review", "submit decision", strings.Join(problems, "; "), nil)
	}
	return nil
}

// SubmitDecision records d on a PendingReview contract.
//
// A lost write is retried only while the contract is still undecided; if the
// re-read shows another reviewer's decision the conflict is returned as is.
func (c *Coordinator) SubmitDecision(ctx context.Context, d lifecycle.Decision) (*store.Contract, error) {
	if err := c.Validate(d); err != nil {
		return nil, err
	}
	ctx = services.WithContractID(ctx, d.ContractID)
	logger := logging.WithContext(ctx, c.logger)

	for attempt := 1; ; attempt++ {
		updated, err := c.store.Update(ctx, d.ContractID, func(next *store.Contract) error {
			return lifecycle.ApplyDecision(next, d, c.now())
		})
		if err == nil {
			logger.Info("review decision recorded",
				logging.String("decision", string(d.Verdict)),
				logging.String("reviewer", d.Reviewer),
				logging.String(logging.FieldState, string(updated.State)),
			)
			return updated, nil
		}
		if !errors.Is(err, services.ErrConflict) || attempt >= c.attempts {
			return nil, err
		}

		current, getErr := c.store.Get(ctx, d.ContractID)
		if getErr != nil {
			return nil, getErr
		}
		if current.State != store.StatePendingReview || current.ReviewDecision != nil {
			logger.Info("review decision lost race",
				logging.String("decision", string(d.Verdict)),
				logging.String("reviewer", d.Reviewer),
				logging.String(logging.FieldState, string(current.State)),
			)
			return nil, fmt.Errorf("contract %s was decided concurrently: %w", d.ContractID, err)
		}
		logger.Debug("retrying review decision after unrelated write", logging.Int("attempt", attempt))

		select {
		case <-time.After(time.Duration(attempt) * 5 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
