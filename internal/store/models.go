package store

import "time"

// State is a contract lifecycle state.
type State string

const (
	StateUploaded      State = "uploaded"
	StateOCRInProgress State = "ocr_in_progress"
	StateOCRCompleted  State = "ocr_completed"
	StateOCRFailed     State = "ocr_failed"
	StatePendingReview State = "pending_review"
	StateApproved      State = "approved"
	StateRejected      State = "rejected"
	StateDeleted       State = "deleted"
)

var allStates = []State{
	StateUploaded,
	StateOCRInProgress,
	StateOCRCompleted,
	StateOCRFailed,
	StatePendingReview,
	StateApproved,
	StateRejected,
	StateDeleted,
}

// AllStates returns every lifecycle state in graph order.
func AllStates() []State {
	out := make([]State, len(allStates))
	copy(out, allStates)
	return out
}

// ParseState converts a string into a State, reporting whether it is known.
func ParseState(value string) (State, bool) {
	for _, st := range allStates {
		if string(st) == value {
			return st, true
		}
	}
	return "", false
}

// HasOCRText reports whether contracts in this state carry extracted text.
func (s State) HasOCRText() bool {
	switch s {
	case StateOCRCompleted, StatePendingReview, StateApproved, StateRejected:
		return true
	default:
		return false
	}
}

// IsDecided reports whether a review decision has been recorded.
func (s State) IsDecided() bool {
	return s == StateApproved || s == StateRejected
}

// ContractType classifies a contract document.
type ContractType string

const (
	ContractPurchase ContractType = "purchase"
	ContractSales    ContractType = "sales"
	ContractLease    ContractType = "lease"
)

// ParseContractType validates a contract type string.
func ParseContractType(value string) (ContractType, bool) {
	switch ContractType(value) {
	case ContractPurchase, ContractSales, ContractLease:
		return ContractType(value), true
	default:
		return "", false
	}
}

// Verdict is the outcome of a human review.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
)

// ReviewDecision is written exactly once when a contract leaves PendingReview.
type ReviewDecision struct {
	DecidedBy string
	Decision  Verdict
	Timestamp time.Time
	Comment   string
}

// ExtractionStatus tracks field extraction for a contract whose OCR finished.
type ExtractionStatus string

const (
	ExtractionRunning   ExtractionStatus = "running"
	ExtractionCompleted ExtractionStatus = "completed"
	ExtractionFailed    ExtractionStatus = "failed"
)

// Party is one signatory found in the contract text.
type Party struct {
	PartyType           string `json:"party_type,omitempty"`
	PartyName           string `json:"party_name,omitempty"`
	TaxNumber           string `json:"tax_number,omitempty"`
	LegalRepresentative string `json:"legal_representative,omitempty"`
	Address             string `json:"address,omitempty"`
}

// ExtractedFields are the structured values read out of the OCR text. Dates
// are kept as the ISO strings the extractor produced.
type ExtractedFields struct {
	TotalAmount   *float64 `json:"total_amount,omitempty"`
	SubjectMatter string   `json:"subject_matter,omitempty"`
	SignDate      string   `json:"sign_date,omitempty"`
	EffectiveDate string   `json:"effective_date,omitempty"`
	ExpireDate    string   `json:"expire_date,omitempty"`
	Parties       []Party  `json:"parties,omitempty"`
}

// Extraction is the latest field extraction attempt. JobID ties results to
// the attempt that produced them.
type Extraction struct {
	JobID          string           `json:"job_id"`
	Status         ExtractionStatus `json:"status"`
	Fields         *ExtractedFields `json:"fields,omitempty"`
	Confidence     float64          `json:"confidence,omitempty"`
	RequiresReview bool             `json:"requires_review,omitempty"`
	Model          string           `json:"model,omitempty"`
	Error          string           `json:"error,omitempty"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func (x *Extraction) clone() *Extraction {
	out := *x
	if x.Fields != nil {
		fields := *x.Fields
		if x.Fields.TotalAmount != nil {
			amount := *x.Fields.TotalAmount
			fields.TotalAmount = &amount
		}
		fields.Parties = append([]Party(nil), x.Fields.Parties...)
		out.Fields = &fields
	}
	return &out
}

// Contract is the persisted record for an uploaded document.
type Contract struct {
	ID             string
	FileRef        string
	State          State
	ContractNumber string
	ContractType   ContractType
	Filename       string
	ContentType    string
	Size           int64
	CreatedBy      string
	OCRText        string
	OCRJobID       string
	OCRError       string
	Extraction     *Extraction
	ReviewDecision *ReviewDecision
	QueuedAt       *time.Time
	DeletedAt      *time.Time
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Clone returns a deep copy so mutators never alias stored values.
func (c *Contract) Clone() *Contract {
	if c == nil {
		return nil
	}
	out := *c
	if c.Extraction != nil {
		out.Extraction = c.Extraction.clone()
	}
	if c.ReviewDecision != nil {
		decision := *c.ReviewDecision
		out.ReviewDecision = &decision
	}
	if c.QueuedAt != nil {
		queued := *c.QueuedAt
		out.QueuedAt = &queued
	}
	if c.DeletedAt != nil {
		deleted := *c.DeletedAt
		out.DeletedAt = &deleted
	}
	return &out
}

// NewContract carries the creation-time fields of a contract. ID is generated
// when empty.
type NewContract struct {
	ID             string
	FileRef        string
	ContractNumber string
	ContractType   ContractType
	Filename       string
	ContentType    string
	Size           int64
	CreatedBy      string
}

// Filter narrows List and Iterate.
type Filter struct {
	ExcludeDeleted bool
	States         []State
	// Ascending walks oldest first instead of newest first.
	Ascending bool
	// ByQueuedAt orders by the time contracts entered review, falling back to
	// creation time.
	ByQueuedAt bool
}

// Page requests one slice of a listing.
type Page struct {
	Limit  int
	Cursor string
}

// PageResult is one slice of a listing. NextCursor is empty on the last page.
type PageResult struct {
	Contracts  []*Contract
	NextCursor string
}

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

func (p Page) normalizedLimit() int {
	switch {
	case p.Limit <= 0:
		return DefaultPageLimit
	case p.Limit > MaxPageLimit:
		return MaxPageLimit
	default:
		return p.Limit
	}
}
