package api

import (
	"errors"
	"net/http"
	"time"

	"contractflow/internal/batch"
	"contractflow/internal/ocr"
	"contractflow/internal/services"
	"contractflow/internal/store"
)

// FromContract converts a store record to its API representation.
func FromContract(c *store.Contract) Contract {
	if c == nil {
		return Contract{}
	}
	dto := Contract{
		ID:             c.ID,
		ContractNumber: c.ContractNumber,
		ContractType:   string(c.ContractType),
		State:          string(c.State),
		FileRef:        c.FileRef,
		Filename:       c.Filename,
		ContentType:    c.ContentType,
		Size:           c.Size,
		CreatedBy:      c.CreatedBy,
		OCRJobID:       c.OCRJobID,
		OCRError:       c.OCRError,
		HasOCRText:     c.State.HasOCRText(),
		QueuedAt:       formatTime(c.QueuedAt),
		Version:        c.Version,
		CreatedAt:      formatTime(&c.CreatedAt),
		UpdatedAt:      formatTime(&c.UpdatedAt),
	}
	if x := c.Extraction; x != nil {
		dto.Extraction = fromExtraction(x)
	}
	if d := c.ReviewDecision; d != nil {
		dto.ReviewDecision = &ReviewDecision{
			DecidedBy: d.DecidedBy,
			Decision:  string(d.Decision),
			Timestamp: formatTime(&d.Timestamp),
			Comment:   d.Comment,
		}
	}
	return dto
}

func fromExtraction(x *store.Extraction) *Extraction {
	out := &Extraction{
		Status:         string(x.Status),
		Confidence:     x.Confidence,
		RequiresReview: x.RequiresReview,
		Model:          x.Model,
		Error:          x.Error,
		UpdatedAt:      formatTime(&x.UpdatedAt),
	}
	if f := x.Fields; f != nil {
		out.TotalAmount = f.TotalAmount
		out.SubjectMatter = f.SubjectMatter
		out.SignDate = f.SignDate
		out.EffectiveDate = f.EffectiveDate
		out.ExpireDate = f.ExpireDate
		for _, p := range f.Parties {
			out.Parties = append(out.Parties, Party(p))
		}
	}
	return out
}

// FromContracts converts a slice, never returning nil.
func FromContracts(items []*store.Contract) []Contract {
	out := make([]Contract, 0, len(items))
	for _, c := range items {
		out = append(out, FromContract(c))
	}
	return out
}

// FromPage converts a store page.
func FromPage(page store.PageResult) ContractListResponse {
	return ContractListResponse{
		Contracts:  FromContracts(page.Contracts),
		NextCursor: page.NextCursor,
	}
}

// FromBatchReport converts a batch delete report.
func FromBatchReport(report batch.Report) BatchDeleteResponse {
	resp := BatchDeleteResponse{
		Results: make([]BatchDeleteResult, 0, len(report.Entries)),
		Counts:  make(map[string]int),
	}
	for _, e := range report.Entries {
		resp.Results = append(resp.Results, BatchDeleteResult{ID: e.ID, Outcome: string(e.Outcome), Error: e.Error})
		resp.Counts[string(e.Outcome)]++
	}
	return resp
}

// FromQueueStatus converts an OCR backend snapshot.
func FromQueueStatus(status ocr.QueueStatus) OCRQueueResponse {
	resp := OCRQueueResponse{
		Backend:   status.Backend,
		Workers:   status.Workers,
		Queued:    status.Queued,
		Capacity:  status.Capacity,
		Active:    make([]ActiveJob, 0, len(status.Active)),
		Submitted: status.Submitted,
		Completed: status.Completed,
		Failed:    status.Failed,
	}
	for _, job := range status.Active {
		resp.Active = append(resp.Active, ActiveJob{
			JobID:      job.JobID,
			ContractID: job.ContractID,
			StartedAt:  formatTime(&job.StartedAt),
		})
	}
	return resp
}

// StatusForError maps an error to its HTTP status and machine readable code.
func StatusForError(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return http.StatusRequestEntityTooLarge, services.KindValidation
	}
	kind := services.ErrorKind(err)
	switch kind {
	case services.KindNotFound:
		return http.StatusNotFound, kind
	case services.KindInvalidState, services.KindAlreadyDecided, services.KindConflict, services.KindNotReady:
		return http.StatusConflict, kind
	case services.KindValidation:
		return http.StatusBadRequest, kind
	default:
		return http.StatusInternalServerError, services.KindInternal
	}
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
