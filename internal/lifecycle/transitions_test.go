package lifecycle_test

import (
	"errors"
	"testing"
	"time"

	"contractflow/internal/lifecycle"
	"contractflow/internal/services"
	"contractflow/internal/store"
)

var allEvents = []lifecycle.Event{
	lifecycle.EventOCRRequested,
	lifecycle.EventOCRResult,
	lifecycle.EventOCRFailed,
	lifecycle.EventQueueForReview,
	lifecycle.EventApprove,
	lifecycle.EventReject,
	lifecycle.EventDelete,
}

func TestTransitionsOnlyMoveForward(t *testing.T) {
	for _, from := range store.AllStates() {
		for _, event := range allEvents {
			to, err := lifecycle.Next(from, event)
			if err != nil {
				if !errors.Is(err, services.ErrInvalidState) {
					t.Fatalf("%s --%s--> unexpected error kind: %v", from, event, err)
				}
				continue
			}
			if lifecycle.IsRetry(from, event) {
				if to != store.StateOCRInProgress {
					t.Fatalf("retry from %s should restart OCR, got %s", from, to)
				}
				continue
			}
			if lifecycle.Rank(to) <= lifecycle.Rank(from) {
				t.Fatalf("%s --%s--> %s moves backwards", from, event, to)
			}
		}
	}
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from  store.State
		event lifecycle.Event
		to    store.State
	}{
		{store.StateUploaded, lifecycle.EventOCRRequested, store.StateOCRInProgress},
		{store.StateOCRInProgress, lifecycle.EventOCRResult, store.StateOCRCompleted},
		{store.StateOCRInProgress, lifecycle.EventOCRFailed, store.StateOCRFailed},
		{store.StateOCRCompleted, lifecycle.EventQueueForReview, store.StatePendingReview},
		{store.StatePendingReview, lifecycle.EventApprove, store.StateApproved},
		{store.StatePendingReview, lifecycle.EventReject, store.StateRejected},
		{store.StateApproved, lifecycle.EventDelete, store.StateDeleted},
		{store.StateOCRFailed, lifecycle.EventDelete, store.StateDeleted},
		{store.StateOCRFailed, lifecycle.EventOCRRequested, store.StateOCRInProgress},
	}
	for _, tc := range cases {
		got, err := lifecycle.Next(tc.from, tc.event)
		if err != nil || got != tc.to {
			t.Fatalf("%s --%s--> expected %s, got %s (%v)", tc.from, tc.event, tc.to, got, err)
		}
	}
	if _, err := lifecycle.Next(store.StateDeleted, lifecycle.EventDelete); err == nil {
		t.Fatal("expected delete from Deleted to be rejected by Next")
	}
}

func TestTerminalStates(t *testing.T) {
	terminal := map[store.State]bool{
		store.StateApproved: true,
		store.StateRejected: true,
		store.StateDeleted:  true,
	}
	for _, st := range store.AllStates() {
		if got := lifecycle.IsTerminal(st); got != terminal[st] {
			t.Fatalf("IsTerminal(%s) = %v", st, got)
		}
	}
}

func TestApplyDecision(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	approve := lifecycle.Decision{Verdict: store.VerdictApprove, Reviewer: " alice ", Comment: "ok"}

	pending := &store.Contract{ID: "c1", State: store.StatePendingReview}
	if err := lifecycle.ApplyDecision(pending, approve, now); err != nil {
		t.Fatalf("ApplyDecision: %v", err)
	}
	if pending.State != store.StateApproved || pending.ReviewDecision.DecidedBy != "alice" || !pending.ReviewDecision.Timestamp.Equal(now) {
		t.Fatalf("unexpected decided contract: %#v", pending)
	}

	err := lifecycle.ApplyDecision(pending, lifecycle.Decision{Verdict: store.VerdictReject, Reviewer: "bob"}, now)
	if !errors.Is(err, services.ErrAlreadyDecided) || !errors.Is(err, services.ErrInvalidState) {
		t.Fatalf("expected AlreadyDecided (also InvalidState), got %v", err)
	}

	for _, st := range []store.State{store.StateUploaded, store.StateOCRInProgress, store.StateOCRCompleted, store.StateOCRFailed} {
		for _, verdict := range []store.Verdict{store.VerdictApprove, store.VerdictReject} {
			c := &store.Contract{ID: "c", State: st}
			err := lifecycle.ApplyDecision(c, lifecycle.Decision{Verdict: verdict, Reviewer: "r"}, now)
			if !errors.Is(err, services.ErrInvalidState) || errors.Is(err, services.ErrAlreadyDecided) {
				t.Fatalf("%s/%s: expected plain InvalidState, got %v", st, verdict, err)
			}
		}
	}

	deleted := &store.Contract{ID: "d", State: store.StateDeleted}
	if err := lifecycle.ApplyDecision(deleted, approve, now); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected NotFound for deleted contract, got %v", err)
	}
	bad := &store.Contract{ID: "b", State: store.StatePendingReview}
	if err := lifecycle.ApplyDecision(bad, lifecycle.Decision{Verdict: "maybe"}, now); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
