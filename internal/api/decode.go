package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"contractflow/internal/lifecycle"
	"contractflow/internal/services"
	"contractflow/internal/store"
)

// DecodeReview reads a ReviewRequest, rejecting unknown and missing fields.
func DecodeReview(r io.Reader) (lifecycle.Decision, error) {
	var req ReviewRequest
	if err := decodeStrict(r, &req); err != nil {
		return lifecycle.Decision{}, err
	}
	var missing []string
	if req.ContractID == nil {
		missing = append(missing, "contract_id")
	}
	if req.Decision == nil {
		missing = append(missing, "decision")
	}
	if req.Reviewer == nil {
		missing = append(missing, "reviewer")
	}
	if len(missing) > 0 {
		return lifecycle.Decision{}, services.Wrap(services.ErrValidation, "api", "decode review",
			"missing required fields: "+strings.Join(missing, ", "), nil)
	}
	return lifecycle.Decision{
		ContractID: strings.TrimSpace(*req.ContractID),
		Verdict:    store.Verdict(strings.ToLower(strings.TrimSpace(*req.Decision))),
		Reviewer:   *req.Reviewer,
		Comment:    req.Comment,
	}, nil
}

// DecodeIDs reads the batch delete body: a JSON array of contract ids.
func DecodeIDs(r io.Reader) ([]string, error) {
	var ids []string
	if err := decodeStrict(r, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func decodeStrict(r io.Reader, dst any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		return services.Wrap(services.ErrValidation, "api", "decode", "invalid JSON body", err)
	}
	// Anything but whitespace after the value is an error, stray closing
	// brackets included.
	if _, err := dec.Token(); err != io.EOF {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		return services.Wrap(services.ErrValidation, "api", "decode", "unexpected data after JSON body", err)
	}
	return nil
}

// EncodeError builds the error envelope for err.
func EncodeError(err error, requestID string) (int, ErrorResponse) {
	status, code := StatusForError(err)
	message := err.Error()
	if code == services.KindInternal {
		message = "internal error"
	}
	return status, ErrorResponse{
		Error:     ErrorBody{Code: code, Message: message},
		RequestID: requestID,
	}
}

// Unauthorized is the envelope for a missing or wrong bearer token.
func Unauthorized(requestID string) ErrorResponse {
	return ErrorResponse{
		Error:     ErrorBody{Code: "unauthorized", Message: "missing or invalid bearer token"},
		RequestID: requestID,
	}
}

// ErrorFromResponse turns an error envelope back into a typed error so CLI
// callers can match it with errors.Is.
func ErrorFromResponse(status int, body ErrorResponse) error {
	marker := markerForCode(body.Error.Code)
	msg := body.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("http %d", status)
	}
	if marker == nil {
		return fmt.Errorf("%s (http %d)", msg, status)
	}
	return &RemoteError{Status: status, Code: body.Error.Code, Message: msg, RequestID: body.RequestID, marker: marker}
}

// RemoteError is an error reported by the daemon.
type RemoteError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
	marker    error
}

func (e *RemoteError) Error() string { return e.Message }

func (e *RemoteError) Unwrap() error { return e.marker }

func markerForCode(code string) error {
	switch code {
	case services.KindNotFound:
		return services.ErrNotFound
	case services.KindInvalidState:
		return services.ErrInvalidState
	case services.KindAlreadyDecided:
		return services.ErrAlreadyDecided
	case services.KindConflict:
		return services.ErrConflict
	case services.KindNotReady:
		return services.ErrNotReady
	case services.KindValidation:
		return services.ErrValidation
	default:
		return nil
	}
}
