package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/google/uuid"

	"contractflow/internal/services"
)

// ErrUnchanged may be returned by an Update mutator to skip the write. Update
// then returns the current contract and a nil error.
var ErrUnchanged = errors.New("contract unchanged")

// Create inserts a new contract in the Uploaded state with version 1.
func (s *Store) Create(ctx context.Context, in NewContract) (*Contract, error) {
	if strings.TrimSpace(in.FileRef) == "" {
		return nil, fmt.Errorf("create contract: file ref required: %w", services.ErrValidation)
	}
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	timestamp := formatTime(s.now())

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO contracts (
            id, file_ref, state, contract_number, contract_type, filename,
            content_type, size_bytes, created_by, version, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		id,
		in.FileRef,
		StateUploaded,
		nullableString(in.ContractNumber),
		nullableString(string(in.ContractType)),
		nullableString(in.Filename),
		nullableString(in.ContentType),
		in.Size,
		nullableString(in.CreatedBy),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert contract: %w", err)
	}
	return s.Get(ctx, id)
}

// Get fetches a contract by identifier, including soft-deleted rows.
func (s *Store) Get(ctx context.Context, id string) (*Contract, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+contractColumns+` FROM contracts WHERE id = ?`, id)
	c, err := scanContract(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("contract %s: %w", id, services.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get contract: %w", err)
	}
	return c, nil
}

// FindByOCRJob returns the contract stamped with the given OCR job identifier.
func (s *Store) FindByOCRJob(ctx context.Context, jobID string) (*Contract, error) {
	if jobID == "" {
		return nil, fmt.Errorf("ocr job: %w", services.ErrNotFound)
	}
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+contractColumns+` FROM contracts WHERE ocr_job_id = ?`, jobID)
	c, err := scanContract(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ocr job %s: %w", jobID, services.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find by ocr job: %w", err)
	}
	return c, nil
}

// Update applies mutator to a copy of the current contract and persists it only
// if nobody else wrote the row in between. The immutable fields (ID, FileRef,
// CreatedAt) are restored after the mutator runs. A mutator error aborts
// without writing and is returned unchanged.
func (s *Store) Update(ctx context.Context, id string, mutator func(*Contract) error) (*Contract, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next := current.Clone()
	if err := mutator(next); err != nil {
		if errors.Is(err, ErrUnchanged) {
			return current, nil
		}
		return nil, err
	}

	next.ID = current.ID
	next.FileRef = current.FileRef
	next.CreatedAt = current.CreatedAt
	next.Version = current.Version + 1
	next.UpdatedAt = s.now()
	if !next.UpdatedAt.After(current.UpdatedAt) {
		next.UpdatedAt = current.UpdatedAt.Add(1)
	}

	var (
		decision   any
		reviewedBy any
		comment    any
		reviewedAt any
	)
	if d := next.ReviewDecision; d != nil {
		decision = string(d.Decision)
		reviewedBy = nullableString(d.DecidedBy)
		comment = nullableString(d.Comment)
		reviewedAt = nullableTime(&d.Timestamp)
	}

	extraction, err := nullableExtraction(next.Extraction)
	if err != nil {
		return nil, err
	}

	res, err := s.execWithRetry(
		ctx,
		`UPDATE contracts
         SET state = ?, contract_number = ?, contract_type = ?, filename = ?,
             content_type = ?, size_bytes = ?, created_by = ?, ocr_text = ?,
             ocr_job_id = ?, ocr_error = ?, extraction = ?, review_decision = ?, reviewed_by = ?,
             review_comment = ?, reviewed_at = ?, queued_at = ?, deleted_at = ?,
             version = ?, updated_at = ?
         WHERE id = ? AND version = ?`,
		next.State,
		nullableString(next.ContractNumber),
		nullableString(string(next.ContractType)),
		nullableString(next.Filename),
		nullableString(next.ContentType),
		next.Size,
		nullableString(next.CreatedBy),
		nullableOCRText(next),
		nullableString(next.OCRJobID),
		nullableString(next.OCRError),
		extraction,
		decision,
		reviewedBy,
		comment,
		reviewedAt,
		nullableTime(next.QueuedAt),
		nullableTime(next.DeletedAt),
		next.Version,
		formatTime(next.UpdatedAt),
		current.ID,
		current.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("update contract: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update contract rows: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("contract %s version %d: %w", id, current.Version, services.ErrConflict)
	}
	return next, nil
}

// nullableOCRText keeps empty extraction results distinguishable from absent
// text once OCR has completed.
func nullableOCRText(c *Contract) any {
	if c.OCRText == "" && !c.State.HasOCRText() {
		return nil
	}
	return c.OCRText
}

// List returns one page of contracts matching filter.
func (s *Store) List(ctx context.Context, filter Filter, page Page) (PageResult, error) {
	ctx = ensureContext(ctx)
	limit := page.normalizedLimit()

	sortExpr := "created_at"
	if filter.ByQueuedAt {
		sortExpr = "COALESCE(queued_at, created_at)"
	}
	order, cmp := "DESC", "<"
	if filter.Ascending {
		order, cmp = "ASC", ">"
	}

	var (
		clauses []string
		args    []any
	)
	if filter.ExcludeDeleted {
		clauses = append(clauses, "state <> ?")
		args = append(args, StateDeleted)
	}
	if len(filter.States) > 0 {
		clauses = append(clauses, "state IN ("+makePlaceholders(len(filter.States))+")")
		for _, st := range filter.States {
			args = append(args, st)
		}
	}
	if page.Cursor != "" {
		cur, err := decodeCursor(page.Cursor)
		if err != nil {
			return PageResult{}, err
		}
		clauses = append(clauses, fmt.Sprintf("(%[1]s %[2]s ? OR (%[1]s = ? AND id %[2]s ?))", sortExpr, cmp))
		args = append(args, cur.sortKey, cur.sortKey, cur.id)
	}

	query := `SELECT ` + contractColumns + `, ` + sortExpr + ` FROM contracts`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY %s %s, id %s LIMIT ?", sortExpr, order, order)
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return PageResult{}, fmt.Errorf("list contracts: %w", err)
	}
	defer rows.Close()

	var (
		result   PageResult
		sortKeys []string
	)
	for rows.Next() {
		var sortKey string
		c, err := scanContract(sortKeyScanner{rows: rows, sortKey: &sortKey})
		if err != nil {
			return PageResult{}, fmt.Errorf("scan contract: %w", err)
		}
		result.Contracts = append(result.Contracts, c)
		sortKeys = append(sortKeys, sortKey)
	}
	if err := rows.Err(); err != nil {
		return PageResult{}, fmt.Errorf("iterate contracts: %w", err)
	}

	if len(result.Contracts) > limit {
		result.Contracts = result.Contracts[:limit]
		last := result.Contracts[limit-1]
		result.NextCursor = encodeCursor(cursor{sortKey: sortKeys[limit-1], id: last.ID})
	}
	return result, nil
}

// sortKeyScanner appends the trailing sort column to a contract row scan.
type sortKeyScanner struct {
	rows    *sql.Rows
	sortKey *string
}

func (s sortKeyScanner) Scan(dest ...any) error {
	return s.rows.Scan(append(dest, s.sortKey)...)
}

// Iterate lazily walks every contract matching filter, fetching pageSize rows
// at a time.
func (s *Store) Iterate(ctx context.Context, filter Filter, pageSize int) iter.Seq2[*Contract, error] {
	return s.IterateFrom(ctx, filter, "", pageSize)
}

// IterateFrom resumes a lazy walk after the row identified by cursor.
func (s *Store) IterateFrom(ctx context.Context, filter Filter, cursor string, pageSize int) iter.Seq2[*Contract, error] {
	return func(yield func(*Contract, error) bool) {
		next := cursor
		for {
			if err := ensureContext(ctx).Err(); err != nil {
				yield(nil, err)
				return
			}
			page, err := s.List(ctx, filter, Page{Limit: pageSize, Cursor: next})
			if err != nil {
				yield(nil, err)
				return
			}
			for _, c := range page.Contracts {
				if !yield(c, nil) {
					return
				}
			}
			if page.NextCursor == "" {
				return
			}
			next = page.NextCursor
		}
	}
}

// Stats returns the number of contracts per state. Every state is present.
func (s *Store) Stats(ctx context.Context) (map[State]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT state, COUNT(*) FROM contracts GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[State]int, len(allStates))
	for _, st := range allStates {
		stats[st] = 0
	}
	for rows.Next() {
		var (
			state string
			count int
		)
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[State(state)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}
	return stats, nil
}
