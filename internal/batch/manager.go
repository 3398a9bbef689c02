package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"contractflow/internal/config"
	"contractflow/internal/lifecycle"
	"contractflow/internal/logging"
	"contractflow/internal/services"
)

// Outcome is the per-id result of a batch delete.
type Outcome string

const (
	OutcomeDeleted        Outcome = "deleted"
	OutcomeAlreadyDeleted Outcome = "already_deleted"
	OutcomeNotFound       Outcome = "not_found"
	OutcomeFailed         Outcome = "failed"
	// OutcomeCancelled marks ids never dispatched because the caller cancelled.
	OutcomeCancelled Outcome = "cancelled"
)

// Entry is one id's line in a Report.
type Entry struct {
	ID      string
	Outcome Outcome
	Error   string
}

// Report lists one entry per distinct id in first-seen order.
type Report struct {
	Entries []Entry
}

// Outcome returns the outcome recorded for id.
func (r Report) Outcome(id string) (Outcome, bool) {
	for _, e := range r.Entries {
		if e.ID == id {
			return e.Outcome, true
		}
	}
	return "", false
}

// Counts tallies entries by outcome.
func (r Report) Counts() map[Outcome]int {
	counts := make(map[Outcome]int)
	for _, e := range r.Entries {
		counts[e.Outcome]++
	}
	return counts
}

// Deleter deletes a single contract.
type Deleter interface {
	Delete(ctx context.Context, id string) (lifecycle.DeleteOutcome, error)
}

// Manager runs batch operations against a Deleter.
type Manager struct {
	deleter Deleter
	workers int
	maxIDs  int
	logger  *slog.Logger
}

// NewManager sizes the worker pool and request limit from cfg.
func NewManager(cfg *config.Config, deleter Deleter, logger *slog.Logger) *Manager {
	workers := cfg.Batch.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Manager{
		deleter: deleter,
		workers: workers,
		maxIDs:  cfg.Batch.MaxIDs,
		logger:  logging.NewComponentLogger(logger, "batch"),
	}
}

// BatchDelete deletes every distinct id in ids. Cancelling ctx stops new
// dispatches; deletions already running finish and are reported.
func (m *Manager) BatchDelete(ctx context.Context, ids []string) (Report, error) {
	unique, err := m.normalize(ids)
	if err != nil {
		return Report{}, err
	}
	report := Report{Entries: make([]Entry, len(unique))}
	for i, id := range unique {
		report.Entries[i] = Entry{ID: id, Outcome: OutcomeCancelled}
	}
	if len(unique) == 0 {
		return report, nil
	}

	// In-flight deletions outlive the caller's cancellation.
	workCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	slots := make(chan struct{}, m.workers)
	dispatched := 0
dispatch:
	for i, id := range unique {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}
		// Both cases may be ready at once; a cancelled batch never starts
		// another delete.
		if ctx.Err() != nil {
			<-slots
			break
		}
		dispatched++
		g.Go(func() error {
			defer func() { <-slots }()
			report.Entries[i] = m.deleteOne(workCtx, id)
			return nil
		})
	}
	_ = g.Wait()

	counts := report.Counts()
	logging.WithContext(ctx, m.logger).Info("batch delete finished",
		logging.Int("requested", len(ids)),
		logging.Int("distinct", len(unique)),
		logging.Int("dispatched", dispatched),
		logging.Int(string(OutcomeDeleted), counts[OutcomeDeleted]),
		logging.Int(string(OutcomeAlreadyDeleted), counts[OutcomeAlreadyDeleted]),
		logging.Int(string(OutcomeNotFound), counts[OutcomeNotFound]),
		logging.Int(string(OutcomeFailed), counts[OutcomeFailed]),
		logging.Int(string(OutcomeCancelled), counts[OutcomeCancelled]),
	)
	return report, nil
}

func (m *Manager) normalize(ids []string) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			return nil, services.Wrap(services.ErrValidation, "batch", "delete", "ids must not be blank", nil)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if m.maxIDs > 0 && len(unique) > m.maxIDs {
		return nil, services.Wrap(services.ErrValidation, "batch", "delete",
			fmt.Sprintf("%d ids exceeds the limit of %d", len(unique), m.maxIDs), nil)
	}
	return unique, nil
}

func (m *Manager) deleteOne(ctx context.Context, id string) Entry {
	outcome, err := m.deleter.Delete(ctx, id)
	switch {
	case err == nil && outcome == lifecycle.AlreadyDeleted:
		return Entry{ID: id, Outcome: OutcomeAlreadyDeleted}
	case err == nil:
		return Entry{ID: id, Outcome: OutcomeDeleted}
	case errors.Is(err, services.ErrNotFound):
		return Entry{ID: id, Outcome: OutcomeNotFound}
	default:
		logging.WithContext(services.WithContractID(ctx, id), m.logger).Warn("batch delete item failed", logging.Error(err))
		return Entry{ID: id, Outcome: OutcomeFailed, Error: err.Error()}
	}
}
