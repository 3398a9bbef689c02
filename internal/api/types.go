package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Contract describes a contract in a transport-friendly format.
type Contract struct {
	ID             string          `json:"id"`
	ContractNumber string          `json:"contract_number"`
	ContractType   string          `json:"contract_type"`
	State          string          `json:"state"`
	FileRef        string          `json:"file_ref"`
	Filename       string          `json:"filename,omitempty"`
	ContentType    string          `json:"content_type,omitempty"`
	Size           int64           `json:"size"`
	CreatedBy      string          `json:"created_by"`
	OCRJobID       string          `json:"ocr_job_id,omitempty"`
	OCRError       string          `json:"ocr_error,omitempty"`
	HasOCRText     bool            `json:"has_ocr_text"`
	Extraction     *Extraction     `json:"extraction,omitempty"`
	ReviewDecision *ReviewDecision `json:"review_decision,omitempty"`
	QueuedAt       string          `json:"queued_at,omitempty"`
	Version        int64           `json:"version"`
	CreatedAt      string          `json:"created_at,omitempty"`
	UpdatedAt      string          `json:"updated_at,omitempty"`
}

// Extraction carries the fields read out of the OCR text. Fields are absent
// while Status is running or failed.
type Extraction struct {
	Status         string   `json:"status"`
	Confidence     float64  `json:"confidence"`
	RequiresReview bool     `json:"requires_review"`
	Model          string   `json:"model,omitempty"`
	Error          string   `json:"error,omitempty"`
	TotalAmount    *float64 `json:"total_amount,omitempty"`
	SubjectMatter  string   `json:"subject_matter,omitempty"`
	SignDate       string   `json:"sign_date,omitempty"`
	EffectiveDate  string   `json:"effective_date,omitempty"`
	ExpireDate     string   `json:"expire_date,omitempty"`
	Parties        []Party  `json:"parties,omitempty"`
	UpdatedAt      string   `json:"updated_at,omitempty"`
}

// Party is a contract signatory.
type Party struct {
	PartyType           string `json:"party_type"`
	PartyName           string `json:"party_name"`
	TaxNumber           string `json:"tax_number,omitempty"`
	LegalRepresentative string `json:"legal_representative,omitempty"`
	Address             string `json:"address,omitempty"`
}

// ReviewDecision is the recorded outcome of a review.
type ReviewDecision struct {
	DecidedBy string `json:"decided_by"`
	Decision  string `json:"decision"`
	Timestamp string `json:"timestamp"`
	Comment   string `json:"comment,omitempty"`
}

// ContractResponse wraps a single contract.
type ContractResponse struct {
	Contract Contract `json:"contract"`
}

// ContractListResponse is one page of contracts.
type ContractListResponse struct {
	Contracts  []Contract `json:"contracts"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// OCRTextResponse carries extracted text.
type OCRTextResponse struct {
	ContractID string `json:"contract_id"`
	Text       string `json:"text"`
}

// ReviewRequest is the review submission payload. Pointer fields distinguish
// missing from empty.
type ReviewRequest struct {
	ContractID *string `json:"contract_id"`
	Decision   *string `json:"decision"`
	Reviewer   *string `json:"reviewer"`
	Comment    string  `json:"comment,omitempty"`
}

// DeleteResponse reports a single delete.
type DeleteResponse struct {
	ContractID string `json:"contract_id"`
	Outcome    string `json:"outcome"`
}

// BatchDeleteResult is one id's outcome.
type BatchDeleteResult struct {
	ID      string `json:"id"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

// BatchDeleteResponse lists every distinct requested id.
type BatchDeleteResponse struct {
	Results []BatchDeleteResult `json:"results"`
	Counts  map[string]int      `json:"counts"`
}

// ActiveJob is an OCR job currently being processed.
type ActiveJob struct {
	JobID      string `json:"job_id"`
	ContractID string `json:"contract_id"`
	StartedAt  string `json:"started_at"`
}

// OCRQueueResponse summarizes the OCR backend's queue.
type OCRQueueResponse struct {
	Backend   string      `json:"backend"`
	Workers   int         `json:"workers"`
	Queued    int         `json:"queued"`
	Capacity  int         `json:"capacity"`
	Active    []ActiveJob `json:"active"`
	Submitted int64       `json:"submitted"`
	Completed int64       `json:"completed"`
	Failed    int64       `json:"failed"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	Version      string         `json:"version,omitempty"`
	StartedAt    string         `json:"started_at,omitempty"`
	DatabasePath string         `json:"database_path"`
	LockFilePath string         `json:"lock_file_path"`
	Storage      string         `json:"storage_backend"`
	OCR          string         `json:"ocr_backend"`
	Counts       map[string]int `json:"counts"`
}

// ErrorBody is the inner error object.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the envelope for every error reply.
type ErrorResponse struct {
	Error     ErrorBody `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
}
