package testsupport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"contractflow/internal/config"
	"contractflow/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewContract inserts an Uploaded contract with a synthetic file reference.
func NewContract(t testing.TB, st *store.Store, number string) *store.Contract {
	t.Helper()

	c, err := st.Create(context.Background(), store.NewContract{
		FileRef:        fmt.Sprintf("contract-raw/%s.txt", number),
		ContractNumber: number,
		ContractType:   store.ContractPurchase,
		Filename:       number + ".txt",
		ContentType:    "text/plain",
		CreatedBy:      "tester",
	})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return c
}

// SeedContract inserts a contract and writes it directly into the requested
// state, filling the fields that state implies. It bypasses lifecycle checks
// and exists only to set up fixtures.
func SeedContract(t testing.TB, st *store.Store, number string, state store.State) *store.Contract {
	t.Helper()

	c := NewContract(t, st, number)
	if state == store.StateUploaded {
		return c
	}
	now := time.Now().UTC()
	updated, err := st.Update(context.Background(), c.ID, func(next *store.Contract) error {
		next.State = state
		if state != store.StateDeleted {
			next.OCRJobID = "seed-" + c.ID
		}
		if state.HasOCRText() {
			next.OCRText = "seeded text for " + number
		}
		if state == store.StateOCRFailed {
			next.OCRError = "seeded failure"
		}
		if state == store.StatePendingReview || state.IsDecided() {
			next.QueuedAt = &now
		}
		if state.IsDecided() {
			verdict := store.VerdictApprove
			if state == store.StateRejected {
				verdict = store.VerdictReject
			}
			next.ReviewDecision = &store.ReviewDecision{DecidedBy: "seed", Decision: verdict, Timestamp: now}
		}
		if state == store.StateDeleted {
			next.DeletedAt = &now
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed contract %s into %s: %v", number, state, err)
	}
	return updated
}
