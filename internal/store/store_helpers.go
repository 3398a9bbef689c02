package store

import (
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"contractflow/internal/services"
)

const contractColumns = "id, file_ref, state, contract_number, contract_type, filename, content_type, size_bytes, created_by, ocr_text, ocr_job_id, ocr_error, extraction, review_decision, reviewed_by, review_comment, reviewed_at, queued_at, deleted_at, version, created_at, updated_at"

// timeLayout is fixed width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func scanContract(scanner interface{ Scan(dest ...any) error }) (*Contract, error) {
	var (
		id             string
		fileRef        string
		stateStr       string
		contractNumber sql.NullString
		contractType   sql.NullString
		filename       sql.NullString
		contentType    sql.NullString
		size           int64
		createdBy      sql.NullString
		ocrText        sql.NullString
		ocrJobID       sql.NullString
		ocrError       sql.NullString
		extraction     sql.NullString
		decision       sql.NullString
		reviewedBy     sql.NullString
		reviewComment  sql.NullString
		reviewedRaw    sql.NullString
		queuedRaw      sql.NullString
		deletedRaw     sql.NullString
		version        int64
		createdRaw     string
		updatedRaw     string
	)

	if err := scanner.Scan(
		&id,
		&fileRef,
		&stateStr,
		&contractNumber,
		&contractType,
		&filename,
		&contentType,
		&size,
		&createdBy,
		&ocrText,
		&ocrJobID,
		&ocrError,
		&extraction,
		&decision,
		&reviewedBy,
		&reviewComment,
		&reviewedRaw,
		&queuedRaw,
		&deletedRaw,
		&version,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	c := &Contract{
		ID:             id,
		FileRef:        fileRef,
		State:          State(stateStr),
		ContractNumber: contractNumber.String,
		ContractType:   ContractType(contractType.String),
		Filename:       filename.String,
		ContentType:    contentType.String,
		Size:           size,
		CreatedBy:      createdBy.String,
		OCRText:        ocrText.String,
		OCRJobID:       ocrJobID.String,
		OCRError:       ocrError.String,
		QueuedAt:       parseNullableTime(queuedRaw),
		DeletedAt:      parseNullableTime(deletedRaw),
		Version:        version,
	}
	if extraction.Valid && extraction.String != "" {
		var x Extraction
		if err := json.Unmarshal([]byte(extraction.String), &x); err != nil {
			return nil, fmt.Errorf("decode extraction for %s: %w", id, err)
		}
		c.Extraction = &x
	}
	if decision.Valid {
		c.ReviewDecision = &ReviewDecision{
			DecidedBy: reviewedBy.String,
			Decision:  Verdict(decision.String),
			Comment:   reviewComment.String,
		}
		if ts := parseNullableTime(reviewedRaw); ts != nil {
			c.ReviewDecision.Timestamp = *ts
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		c.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		c.UpdatedAt = updated
	}
	return c, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableExtraction(x *Extraction) (any, error) {
	if x == nil {
		return nil, nil
	}
	data, err := json.Marshal(x)
	if err != nil {
		return nil, fmt.Errorf("encode extraction: %w", err)
	}
	return string(data), nil
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func parseNullableTime(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	ts, err := parseTimeString(raw.String)
	if err != nil {
		return nil
	}
	return &ts
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

// ErrInvalidCursor is returned for cursors this store did not issue.
var ErrInvalidCursor = fmt.Errorf("invalid cursor: %w", services.ErrValidation)

// cursor marks the last row of a page: its sort timestamp and id.
type cursor struct {
	sortKey string
	id      string
}

func encodeCursor(c cursor) string {
	return base64.RawURLEncoding.EncodeToString([]byte(c.sortKey + "|" + c.id))
}

func decodeCursor(raw string) (cursor, error) {
	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return cursor{}, ErrInvalidCursor
	}
	sortKey, id, ok := strings.Cut(string(data), "|")
	if !ok || sortKey == "" || id == "" {
		return cursor{}, ErrInvalidCursor
	}
	if _, err := parseTimeString(sortKey); err != nil {
		return cursor{}, ErrInvalidCursor
	}
	return cursor{sortKey: sortKey, id: id}, nil
}
