package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrConflict     = errors.New("conflict")
	ErrNotReady     = errors.New("not ready")
	ErrStaleResult  = errors.New("stale result")
	ErrValidation   = errors.New("validation error")
)

// ErrAlreadyDecided reports a second review decision. It also matches
// ErrInvalidState because a decided contract is no longer pending review.
var ErrAlreadyDecided error = alreadyDecidedError{}

type alreadyDecidedError struct{}

func (alreadyDecidedError) Error() string { return "already decided" }

func (alreadyDecidedError) Is(target error) bool { return target == ErrInvalidState }

// Kind names returned by ErrorKind. They double as the machine readable error
// codes of the HTTP API.
const (
	KindNotFound       = "not_found"
	KindInvalidState   = "invalid_state"
	KindAlreadyDecided = "already_decided"
	KindConflict       = "conflict"
	KindNotReady       = "not_ready"
	KindStaleResult    = "stale_result"
	KindValidation     = "validation"
	KindInternal       = "internal"
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker. The marker should be one of the exported
// sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrValidation
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ErrorKind classifies err against the taxonomy. AlreadyDecided is checked
// before InvalidState since it matches both.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAlreadyDecided):
		return KindAlreadyDecided
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrNotReady):
		return KindNotReady
	case errors.Is(err, ErrStaleResult):
		return KindStaleResult
	case errors.Is(err, ErrValidation):
		return KindValidation
	default:
		return KindInternal
	}
}

// IsRetryable reports whether err may succeed when the caller re-reads and
// tries again. Only write conflicts qualify.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "workflow failure"
	}
	return strings.Join(parts, ": ")
}
