package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"contractflow/internal/api"
	"contractflow/internal/batch"
	"contractflow/internal/blob"
	"contractflow/internal/config"
	"contractflow/internal/daemon"
	"contractflow/internal/lifecycle"
	"contractflow/internal/logging"
	"contractflow/internal/ocr"
	"contractflow/internal/review"
	"contractflow/internal/store"
	"contractflow/internal/testsupport"
)

type harness struct {
	cfg    *config.Config
	store  *store.Store
	daemon *daemon.Daemon
	server *httptest.Server
	token  string
}

func newHarness(t *testing.T, remote bool, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Paths.APIBind = ""
	if remote {
		cfg.OCR.Backend = config.OCRRemote
		cfg.OCR.Seed = "test-seed"
	}
	st := testsupport.MustOpenStore(t, cfg)
	blobs, err := blob.NewFilesystemStore(cfg.Storage.BlobDir, cfg.Storage.MinioBucket)
	if err != nil {
		t.Fatalf("NewFilesystemStore: %v", err)
	}
	logger := logging.NewNop()

	components := daemon.Components{Store: st}
	var collab ocr.Collaborator
	if remote {
		components.Remote = ocr.NewRemoteExtractor(cfg, blobs, logger)
		collab = components.Remote
	} else {
		components.Local = ocr.NewLocalExtractor(cfg, blobs, logger)
		collab = components.Local
	}
	components.Engine = lifecycle.New(cfg, st, blobs, collab, logger)
	components.Review = review.NewCoordinator(cfg, st, logger)
	components.Batch = batch.NewManager(cfg, components.Engine, logger)

	d, err := daemon.New(cfg, components, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)

	srv := httptest.NewServer(d.Handler())
	t.Cleanup(srv.Close)
	return &harness{cfg: cfg, store: st, daemon: d, server: srv, token: cfg.Paths.APIToken}
}

func (h *harness) do(t *testing.T, method, path string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, h.server.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (h *harness) doJSON(t *testing.T, method, path string, payload any) *http.Response {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	return h.do(t, method, path, body, "application/json")
}

func (h *harness) upload(t *testing.T, number, content string, autoOCR bool) api.Contract {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("contract_number", number)
	_ = mw.WriteField("contract_type", "purchase")
	_ = mw.WriteField("created_by", "alice")
	if autoOCR {
		_ = mw.WriteField("auto_ocr", "true")
	} else {
		_ = mw.WriteField("auto_ocr", "false")
	}
	part, err := mw.CreateFormFile("file", number+".txt")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = part.Write([]byte(content))
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	resp := h.do(t, http.MethodPost, "/api/contracts/upload", &buf, mw.FormDataContentType())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload: expected 201, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
	var out api.ContractResponse
	decode(t, resp, &out)
	return out.Contract
}

func (h *harness) waitForState(t *testing.T, id string, want store.State) api.Contract {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var last api.Contract
	for time.Now().Before(deadline) {
		resp := h.do(t, http.MethodGet, "/api/contracts/"+id, nil, "")
		if resp.StatusCode == http.StatusOK {
			var out api.ContractResponse
			decode(t, resp, &out)
			last = out.Contract
			if last.State == string(want) {
				return last
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("contract %s never reached %s (last %q)", id, want, last.State)
	return last
}

func TestContractLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t, false, testsupport.WithAutomation(false, true))

	uploaded := h.upload(t, "PO-42", "Purchase of 10 widgets.", true)
	if uploaded.ContractNumber != "PO-42" || uploaded.CreatedBy != "alice" {
		t.Fatalf("unexpected upload response: %+v", uploaded)
	}
	pending := h.waitForState(t, uploaded.ID, store.StatePendingReview)
	if !pending.HasOCRText || pending.QueuedAt == "" {
		t.Fatalf("expected queued contract with text, got %+v", pending)
	}

	resp := h.do(t, http.MethodGet, "/api/contracts/"+uploaded.ID+"/ocr-text", nil, "")
	var text api.OCRTextResponse
	decode(t, resp, &text)
	if text.Text != "Purchase of 10 widgets." {
		t.Fatalf("unexpected ocr text %q", text.Text)
	}

	resp = h.do(t, http.MethodGet, "/api/contracts/pending-review", nil, "")
	var queue api.ContractListResponse
	decode(t, resp, &queue)
	if len(queue.Contracts) != 1 || queue.Contracts[0].ID != uploaded.ID {
		t.Fatalf("expected contract in pending list, got %+v", queue.Contracts)
	}

	decision := map[string]string{"contract_id": uploaded.ID, "decision": "approve", "reviewer": "bob", "comment": "looks fine"}
	resp = h.doJSON(t, http.MethodPost, "/api/contracts/review", decision)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("review: expected 200, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
	var approved api.ContractResponse
	decode(t, resp, &approved)
	if approved.Contract.State != "approved" || approved.Contract.ReviewDecision == nil || approved.Contract.ReviewDecision.DecidedBy != "bob" {
		t.Fatalf("unexpected review result: %+v", approved.Contract)
	}

	decision["decision"] = "reject"
	resp = h.doJSON(t, http.MethodPost, "/api/contracts/review", decision)
	expectError(t, resp, http.StatusConflict, "already_decided")

	resp = h.do(t, http.MethodDelete, "/api/contracts/"+uploaded.ID, nil, "")
	var deleted api.DeleteResponse
	decode(t, resp, &deleted)
	if deleted.Outcome != string(lifecycle.Deleted) {
		t.Fatalf("expected deleted, got %q", deleted.Outcome)
	}
	resp = h.do(t, http.MethodDelete, "/api/contracts/"+uploaded.ID, nil, "")
	decode(t, resp, &deleted)
	if deleted.Outcome != string(lifecycle.AlreadyDeleted) {
		t.Fatalf("expected already_deleted, got %q", deleted.Outcome)
	}

	resp = h.do(t, http.MethodGet, "/api/contracts/"+uploaded.ID, nil, "")
	expectError(t, resp, http.StatusNotFound, "not_found")
}

func TestManualTransitionsAndErrorCodes(t *testing.T) {
	h := newHarness(t, false)

	c := h.upload(t, "SO-1", "sales terms", false)
	if c.State != string(store.StateUploaded) {
		t.Fatalf("expected uploaded, got %s", c.State)
	}

	resp := h.do(t, http.MethodGet, "/api/contracts/"+c.ID+"/ocr-text", nil, "")
	expectError(t, resp, http.StatusConflict, "not_ready")

	resp = h.do(t, http.MethodPost, "/api/contracts/"+c.ID+"/queue-review", nil, "")
	expectError(t, resp, http.StatusConflict, "invalid_state")

	resp = h.doJSON(t, http.MethodPost, "/api/contracts/review", map[string]string{"contract_id": c.ID, "decision": "approve", "reviewer": "bob"})
	expectError(t, resp, http.StatusConflict, "invalid_state")

	resp = h.do(t, http.MethodPost, "/api/contracts/"+c.ID+"/ocr", nil, "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("request ocr: expected 202, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
	h.waitForState(t, c.ID, store.StateOCRCompleted)

	resp = h.do(t, http.MethodPost, "/api/contracts/"+c.ID+"/queue-review", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("queue review: expected 200, got %d", resp.StatusCode)
	}

	resp = h.do(t, http.MethodGet, "/api/contracts/missing-id", nil, "")
	expectError(t, resp, http.StatusNotFound, "not_found")
}

func TestReviewPayloadValidation(t *testing.T) {
	h := newHarness(t, false)
	c := testsupport.SeedContract(t, h.store, "PO-7", store.StatePendingReview)

	cases := []struct {
		name string
		body string
	}{
		{name: "unknown field", body: `{"contract_id":"` + c.ID + `","decision":"approve","reviewer":"bob","score":5}`},
		{name: "missing decision", body: `{"contract_id":"` + c.ID + `","reviewer":"bob"}`},
		{name: "bad verdict", body: `{"contract_id":"` + c.ID + `","decision":"maybe","reviewer":"bob"}`},
		{name: "blank reviewer", body: `{"contract_id":"` + c.ID + `","decision":"approve","reviewer":"  "}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := h.do(t, http.MethodPost, "/api/contracts/review", strings.NewReader(tc.body), "application/json")
			expectError(t, resp, http.StatusBadRequest, "validation")
		})
	}

	got, err := h.store.Get(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != store.StatePendingReview {
		t.Fatalf("rejected payloads must not change state, got %s", got.State)
	}
}

func TestListPaginationOverHTTP(t *testing.T) {
	h := newHarness(t, false)
	for _, n := range []string{"A", "B", "C"} {
		testsupport.NewContract(t, h.store, n)
	}
	testsupport.SeedContract(t, h.store, "gone", store.StateDeleted)

	seen := map[string]bool{}
	cursor := ""
	for page := 0; page < 5; page++ {
		path := "/api/contracts/?limit=2"
		if cursor != "" {
			path += "&cursor=" + cursor
		}
		resp := h.do(t, http.MethodGet, path, nil, "")
		var out api.ContractListResponse
		decode(t, resp, &out)
		for _, c := range out.Contracts {
			seen[c.ContractNumber] = true
		}
		cursor = out.NextCursor
		if cursor == "" {
			break
		}
	}
	if len(seen) != 3 || seen["gone"] {
		t.Fatalf("expected exactly A, B, C across pages, got %v", seen)
	}

	resp := h.do(t, http.MethodGet, "/api/contracts/?cursor=%25%25bogus", nil, "")
	expectError(t, resp, http.StatusBadRequest, "validation")
}

func TestBatchDeleteOverHTTP(t *testing.T) {
	h := newHarness(t, false)
	valid := testsupport.SeedContract(t, h.store, "valid", store.StateOCRCompleted)
	gone := testsupport.SeedContract(t, h.store, "gone", store.StateDeleted)

	resp := h.doJSON(t, http.MethodPost, "/api/contracts/batch-delete", []string{valid.ID, gone.ID, "nope", valid.ID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("batch delete: expected 200, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
	var out api.BatchDeleteResponse
	decode(t, resp, &out)
	want := map[string]string{valid.ID: "deleted", gone.ID: "already_deleted", "nope": "not_found"}
	if len(out.Results) != len(want) {
		t.Fatalf("expected %d results, got %+v", len(want), out.Results)
	}
	for _, r := range out.Results {
		if want[r.ID] != r.Outcome {
			t.Fatalf("%s: expected %s, got %s", r.ID, want[r.ID], r.Outcome)
		}
	}

	resp = h.do(t, http.MethodPost, "/api/contracts/batch-delete", strings.NewReader(`{"ids":["x"]}`), "application/json")
	expectError(t, resp, http.StatusBadRequest, "validation")
}

func TestAuthRequiredWhenTokenConfigured(t *testing.T) {
	h := newHarness(t, false, testsupport.WithAPIToken("secret"))

	req, _ := http.NewRequest(http.MethodGet, h.server.URL+"/api/status", nil)
	req.Header.Set("X-Request-ID", "req-abc")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	defer resp.Body.Close()
	var body api.ErrorResponse
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "unauthorized" || body.RequestID != "req-abc" {
		t.Fatalf("unexpected envelope: %+v", body)
	}

	resp = h.do(t, http.MethodGet, "/api/status", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}
	if resp.Header.Get(daemon.RequestIDHeader) == "" {
		t.Fatal("expected generated request id header")
	}
}

func TestStatusAndQueueEndpoints(t *testing.T) {
	h := newHarness(t, false)
	testsupport.SeedContract(t, h.store, "p1", store.StatePendingReview)
	testsupport.SeedContract(t, h.store, "a1", store.StateApproved)

	resp := h.do(t, http.MethodGet, "/api/status", nil, "")
	var status api.DaemonStatus
	decode(t, resp, &status)
	if !status.Running || status.Counts["pending_review"] != 1 || status.Counts["approved"] != 1 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.OCR != config.OCRLocal {
		t.Fatalf("unexpected ocr backend %q", status.OCR)
	}

	resp = h.do(t, http.MethodGet, "/api/ocr/queue", nil, "")
	var queue api.OCRQueueResponse
	decode(t, resp, &queue)
	if queue.Backend != config.OCRLocal || queue.Workers != h.cfg.OCR.Workers {
		t.Fatalf("unexpected queue status: %+v", queue)
	}
}

func TestRemoteCallbackAppliesResult(t *testing.T) {
	h := newHarness(t, true, testsupport.WithAPIToken("secret"))
	c := testsupport.SeedContract(t, h.store, "R-1", store.StateOCRInProgress)

	content := `{"task_id":"t1","data_id":"` + c.OCRJobID + `","state":"failed","err_msg":"scan unreadable"}`
	payload := ocr.CallbackPayload{Checksum: ocr.Checksum(c.OCRJobID, "test-seed", content), Content: content}

	raw, _ := json.Marshal(payload)
	// The callback carries no bearer token.
	resp, err := http.Post(h.server.URL+"/api/ocr/callback", "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST callback: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	got, err := h.store.Get(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != store.StateOCRFailed || got.OCRError != "scan unreadable" {
		t.Fatalf("expected ocr_failed with reason, got %s %q", got.State, got.OCRError)
	}

	// Redelivery after the contract moved on is swallowed as stale.
	resp2, err := http.Post(h.server.URL+"/api/ocr/callback", "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST callback: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("expected stale redelivery to be accepted, got %d", resp2.StatusCode)
	}

	payload.Checksum = strings.Repeat("0", 64)
	raw, _ = json.Marshal(payload)
	resp3, err := http.Post(h.server.URL+"/api/ocr/callback", "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST callback: %v", err)
	}
	defer resp3.Body.Close()
	if resp3.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad checksum, got %d", resp3.StatusCode)
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	h := newHarness(t, false)

	if err := h.daemon.Start(context.Background()); err == nil {
		t.Fatal("expected second start to fail")
	}

	other, err := daemon.New(h.cfg, daemon.Components{
		Store:  h.store,
		Engine: h.daemon.Engine,
		Review: h.daemon.Review,
		Batch:  h.daemon.Batch,
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := other.Start(context.Background()); err == nil {
		other.Stop()
		t.Fatal("expected lock contention to block a second daemon")
	}

	h.daemon.Stop()
	status, err := h.daemon.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
	if err := other.Start(context.Background()); err != nil {
		t.Fatalf("expected start after lock release, got %v", err)
	}
	other.Stop()
}

func decode(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	if resp.StatusCode >= 300 {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, readBody(t, resp))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func expectError(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	if resp.StatusCode != status {
		t.Fatalf("expected %d, got %d: %s", status, resp.StatusCode, readBody(t, resp))
	}
	var body api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, body.Error.Code, body.Error.Message)
	}
	if body.RequestID == "" {
		t.Fatal("expected request_id in error envelope")
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	raw, _ := io.ReadAll(resp.Body)
	return string(raw)
}
