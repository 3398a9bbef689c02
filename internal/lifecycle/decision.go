package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"contractflow/internal/services"
	"contractflow/internal/store"
)

// Decision is a reviewer's verdict on one contract.
type Decision struct {
	ContractID string
	Verdict    store.Verdict
	Reviewer   string
	Comment    string
}

// ApplyDecision moves c out of PendingReview and records d. It is meant to run
// inside a store.Update mutator.
func ApplyDecision(c *store.Contract, d Decision, at time.Time) error {
	event, ok := verdictEvent(d.Verdict)
	if !ok {
		return fmt.Errorf("decision %q: %w", d.Verdict, services.ErrValidation)
	}
	switch {
	case c.State == store.StateDeleted:
		return fmt.Errorf("contract %s: %w", c.ID, services.ErrNotFound)
	case c.ReviewDecision != nil || c.State.IsDecided():
		return fmt.Errorf("contract %s is %s: %w", c.ID, c.State, services.ErrAlreadyDecided)
	}
	next, err := Next(c.State, event)
	if err != nil {
		return err
	}
	c.State = next
	c.ReviewDecision = &store.ReviewDecision{
		DecidedBy: strings.TrimSpace(d.Reviewer),
		Decision:  d.Verdict,
		Timestamp: at.UTC(),
		Comment:   d.Comment,
	}
	return nil
}
