package lifecycle

import (
	"fmt"

	"contractflow/internal/services"
	"contractflow/internal/store"
)

// Event names a lifecycle transition trigger.
type Event string

const (
	EventOCRRequested   Event = "ocr_requested"
	EventOCRResult      Event = "ocr_result"
	EventOCRFailed      Event = "ocr_failed"
	EventQueueForReview Event = "queue_for_review"
	EventApprove        Event = "approve"
	EventReject         Event = "reject"
	EventDelete         Event = "delete"
)

var transitions = map[store.State]map[Event]store.State{
	store.StateUploaded: {
		EventOCRRequested: store.StateOCRInProgress,
	},
	store.StateOCRInProgress: {
		EventOCRResult: store.StateOCRCompleted,
		EventOCRFailed: store.StateOCRFailed,
	},
	store.StateOCRFailed: {
		EventOCRRequested: store.StateOCRInProgress,
	},
	store.StateOCRCompleted: {
		EventQueueForReview: store.StatePendingReview,
	},
	store.StatePendingReview: {
		EventApprove: store.StateApproved,
		EventReject:  store.StateRejected,
	},
}

// Next returns the state reached from "from" on event. Delete is legal from
// every state except Deleted.
func Next(from store.State, event Event) (store.State, error) {
	if event == EventDelete {
		if from == store.StateDeleted {
			return "", invalidTransition(from, event)
		}
		return store.StateDeleted, nil
	}
	if to, ok := transitions[from][event]; ok {
		return to, nil
	}
	return "", invalidTransition(from, event)
}

// IsTerminal reports whether no event other than delete leaves state.
func IsTerminal(state store.State) bool {
	if state == store.StateDeleted {
		return true
	}
	return len(transitions[state]) == 0
}

// IsRetry reports whether from --event--> to is the OCR re-submission edge,
// the only transition that re-enters an earlier state.
func IsRetry(from store.State, event Event) bool {
	return from == store.StateOCRFailed && event == EventOCRRequested
}

// rank orders states along the graph so callers can assert forward motion.
var rank = map[store.State]int{
	store.StateUploaded:      0,
	store.StateOCRInProgress: 1,
	store.StateOCRCompleted:  2,
	store.StateOCRFailed:     2,
	store.StatePendingReview: 3,
	store.StateApproved:      4,
	store.StateRejected:      4,
	store.StateDeleted:       5,
}

// Rank returns the depth of state in the lifecycle graph.
func Rank(state store.State) int {
	return rank[state]
}

func invalidTransition(from store.State, event Event) error {
	return fmt.Errorf("%s not allowed from %s: %w", event, from, services.ErrInvalidState)
}

func verdictEvent(v store.Verdict) (Event, bool) {
	switch v {
	case store.VerdictApprove:
		return EventApprove, true
	case store.VerdictReject:
		return EventReject, true
	default:
		return "", false
	}
}
