package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"contractflow/internal/batch"
	"contractflow/internal/services"
	"contractflow/internal/store"
)

func TestFromContractIncludesDecision(t *testing.T) {
	decided := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	c := &store.Contract{
		ID:             "c1",
		ContractNumber: "PO-1",
		ContractType:   store.ContractPurchase,
		State:          store.StateApproved,
		FileRef:        "contract-raw/c1/po.txt",
		CreatedBy:      "alice",
		OCRText:        "hidden from listings",
		Version:        5,
		CreatedAt:      decided.Add(-time.Hour),
		UpdatedAt:      decided,
		ReviewDecision: &store.ReviewDecision{
			DecidedBy: "bob",
			Decision:  store.VerdictApprove,
			Timestamp: decided,
			Comment:   "ok",
		},
	}
	dto := FromContract(c)
	if dto.State != "approved" || dto.ContractType != "purchase" {
		t.Fatalf("unexpected enums: %+v", dto)
	}
	if !dto.HasOCRText {
		t.Fatal("expected has_ocr_text for approved contract")
	}
	if dto.ReviewDecision == nil || dto.ReviewDecision.DecidedBy != "bob" || dto.ReviewDecision.Decision != "approve" {
		t.Fatalf("unexpected decision: %+v", dto.ReviewDecision)
	}
	if dto.ReviewDecision.Timestamp != "2026-03-04T05:06:07.000Z" {
		t.Fatalf("unexpected timestamp format: %q", dto.ReviewDecision.Timestamp)
	}
	if dto.QueuedAt != "" {
		t.Fatalf("expected empty queued_at, got %q", dto.QueuedAt)
	}
}

func TestFromContractsNeverNil(t *testing.T) {
	if got := FromContracts(nil); got == nil {
		t.Fatal("expected empty slice, got nil")
	}
}

func TestFromBatchReportCounts(t *testing.T) {
	report := batch.Report{Entries: []batch.Entry{
		{ID: "a", Outcome: batch.OutcomeDeleted},
		{ID: "b", Outcome: batch.OutcomeNotFound},
		{ID: "c", Outcome: batch.OutcomeDeleted},
	}}
	resp := FromBatchReport(report)
	if len(resp.Results) != 3 || resp.Results[1].Outcome != "not_found" {
		t.Fatalf("unexpected results: %+v", resp.Results)
	}
	if resp.Counts["deleted"] != 2 || resp.Counts["not_found"] != 1 {
		t.Fatalf("unexpected counts: %v", resp.Counts)
	}
}

func TestStatusForError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("get: %w", services.ErrNotFound), http.StatusNotFound, "not_found"},
		{services.ErrInvalidState, http.StatusConflict, "invalid_state"},
		{fmt.Errorf("decide: %w", services.ErrAlreadyDecided), http.StatusConflict, "already_decided"},
		{services.ErrConflict, http.StatusConflict, "conflict"},
		{services.ErrNotReady, http.StatusConflict, "not_ready"},
		{services.ErrValidation, http.StatusBadRequest, "validation"},
		{&http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge, "validation"},
		{errors.New("disk full"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		status, code := StatusForError(tc.err)
		if status != tc.status || code != tc.code {
			t.Fatalf("StatusForError(%v) = %d %s, want %d %s", tc.err, status, code, tc.status, tc.code)
		}
	}
}

func TestEncodeErrorHidesInternalDetail(t *testing.T) {
	status, body := EncodeError(errors.New("open /secret/path: permission denied"), "req-1")
	if status != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", status)
	}
	if strings.Contains(body.Error.Message, "/secret") {
		t.Fatalf("internal detail leaked: %q", body.Error.Message)
	}
	if body.RequestID != "req-1" {
		t.Fatalf("unexpected request id %q", body.RequestID)
	}
}

func TestDecodeReview(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: `{"contract_id":"c1","decision":"Approve","reviewer":"bob","comment":"fine"}`},
		{name: "comment optional", body: `{"contract_id":"c1","decision":"reject","reviewer":"bob"}`},
		{name: "unknown field", body: `{"contract_id":"c1","decision":"approve","reviewer":"bob","priority":1}`, wantErr: true},
		{name: "missing reviewer", body: `{"contract_id":"c1","decision":"approve"}`, wantErr: true},
		{name: "not json", body: `decision=approve`, wantErr: true},
		{name: "trailing data", body: `{"contract_id":"c1","decision":"approve","reviewer":"bob"} {}`, wantErr: true},
		{name: "trailing brace", body: `{"contract_id":"c1","decision":"approve","reviewer":"bob"}}`, wantErr: true},
		{name: "trailing bracket", body: `{"contract_id":"c1","decision":"approve","reviewer":"bob"}]`, wantErr: true},
		{name: "trailing whitespace", body: "{\"contract_id\":\"c1\",\"decision\":\"approve\",\"reviewer\":\"bob\"}\n\t "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := DecodeReview(strings.NewReader(tc.body))
			if tc.wantErr {
				if !errors.Is(err, services.ErrValidation) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeReview: %v", err)
			}
			if d.ContractID != "c1" || d.Reviewer != "bob" {
				t.Fatalf("unexpected decision: %+v", d)
			}
			if d.Verdict != store.VerdictApprove && d.Verdict != store.VerdictReject {
				t.Fatalf("verdict not normalised: %q", d.Verdict)
			}
		})
	}
}

func TestDecodeIDsRejectsTrailingData(t *testing.T) {
	for _, body := range []string{`["a"]]`, `["a"]}`, `["a"] ["b"]`, `["a"],`} {
		if _, err := DecodeIDs(strings.NewReader(body)); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", body, err)
		}
	}
	ids, err := DecodeIDs(strings.NewReader("[\"a\",\"b\"]\n"))
	if err != nil {
		t.Fatalf("DecodeIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestFromContractIncludesExtraction(t *testing.T) {
	amount := 98000.0
	updated := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	c := &store.Contract{
		ID:    "c2",
		State: store.StatePendingReview,
		Extraction: &store.Extraction{
			JobID:  "x-1",
			Status: store.ExtractionCompleted,
			Fields: &store.ExtractedFields{
				TotalAmount:   &amount,
				SubjectMatter: "servers",
				SignDate:      "2026-01-05",
				Parties:       []store.Party{{PartyType: "party_a", PartyName: "Acme", TaxNumber: "913100"}},
			},
			Confidence:     0.64,
			RequiresReview: true,
			Model:          "qwen-plus",
			UpdatedAt:      updated,
		},
	}
	x := FromContract(c).Extraction
	if x == nil {
		t.Fatal("expected extraction in dto")
	}
	if x.Status != "completed" || x.Confidence != 0.64 || !x.RequiresReview || x.Model != "qwen-plus" {
		t.Fatalf("unexpected scoring: %+v", x)
	}
	if x.TotalAmount == nil || *x.TotalAmount != amount || x.SubjectMatter != "servers" || x.SignDate != "2026-01-05" {
		t.Fatalf("unexpected fields: %+v", x)
	}
	if len(x.Parties) != 1 || x.Parties[0].PartyName != "Acme" || x.Parties[0].TaxNumber != "913100" {
		t.Fatalf("unexpected parties: %+v", x.Parties)
	}
	if x.UpdatedAt != "2026-03-04T05:06:07.000Z" {
		t.Fatalf("unexpected updated_at %q", x.UpdatedAt)
	}

	if FromContract(&store.Contract{ID: "c3", State: store.StateUploaded}).Extraction != nil {
		t.Fatal("expected no extraction for fresh contract")
	}
}

func TestErrorFromResponseRoundTrip(t *testing.T) {
	status, body := EncodeError(fmt.Errorf("contract c1: %w", services.ErrAlreadyDecided), "req-9")
	err := ErrorFromResponse(status, body)
	if !errors.Is(err, services.ErrAlreadyDecided) {
		t.Fatalf("expected already decided, got %v", err)
	}
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.RequestID != "req-9" || remote.Status != http.StatusConflict {
		t.Fatalf("unexpected remote error: %#v", err)
	}
}
