package ocr_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"contractflow/internal/blob"
	"contractflow/internal/logging"
	"contractflow/internal/ocr"
	"contractflow/internal/testsupport"
)

type delivered struct {
	jobID string
	res   ocr.Result
}

type chanHandler struct {
	results chan delivered
	entered chan struct{}
	release chan struct{}
}

func (h *chanHandler) OnResult(_ context.Context, jobID string, res ocr.Result) error {
	if h.entered != nil {
		h.entered <- struct{}{}
		<-h.release
	}
	h.results <- delivered{jobID: jobID, res: res}
	return nil
}

func waitResult(t *testing.T, ch <-chan delivered) delivered {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for ocr result")
		return delivered{}
	}
}

func TestLocalExtractorExtractsText(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	blobs, err := blob.NewFilesystemStore(cfg.Storage.BlobDir, cfg.Storage.MinioBucket)
	if err != nil {
		t.Fatalf("NewFilesystemStore: %v", err)
	}
	ctx := context.Background()
	ref, err := blobs.Put(ctx, "c1/contract.txt", strings.NewReader("Résumé of terms"), -1, "text/plain")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	x := ocr.NewLocalExtractor(cfg, blobs, logging.NewNop())
	handler := &chanHandler{results: make(chan delivered, 4)}
	x.Start(ctx, handler)
	defer x.Stop()

	if _, err := x.Submit(ctx, ocr.Job{ID: "job-1", ContractID: "c1", FileRef: ref, ContentType: "text/plain"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	got := waitResult(t, handler.results)
	if got.jobID != "job-1" || got.res.Err != nil {
		t.Fatalf("unexpected result: %+v", got)
	}
	if got.res.Text != "Résumé of terms" {
		t.Fatalf("expected NFC text, got %q", got.res.Text)
	}
}

func TestLocalExtractorReportsUnsupportedContent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	blobs, err := blob.NewFilesystemStore(cfg.Storage.BlobDir, cfg.Storage.MinioBucket)
	if err != nil {
		t.Fatalf("NewFilesystemStore: %v", err)
	}
	x := ocr.NewLocalExtractor(cfg, blobs, logging.NewNop())
	handler := &chanHandler{results: make(chan delivered, 4)}
	ctx := context.Background()
	x.Start(ctx, handler)
	defer x.Stop()

	if _, err := x.Submit(ctx, ocr.Job{ID: "job-pdf", FileRef: "contract-raw/x.pdf", ContentType: "application/pdf"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	got := waitResult(t, handler.results)
	if !errors.Is(got.res.Err, ocr.ErrUnsupportedContent) {
		t.Fatalf("expected unsupported content failure, got %+v", got.res)
	}
	if st := x.Status(); st.Failed != 1 || st.Submitted != 1 {
		t.Fatalf("unexpected counters: %+v", st)
	}
}

func TestLocalExtractorRejectsWhenNotRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	x := ocr.NewLocalExtractor(cfg, nil, logging.NewNop())
	if _, err := x.Submit(context.Background(), ocr.Job{ID: "j"}); !errors.Is(err, ocr.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestLocalExtractorQueueFull(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.OCR.Workers = 1
	cfg.OCR.QueueSize = 1
	blobs, err := blob.NewFilesystemStore(cfg.Storage.BlobDir, cfg.Storage.MinioBucket)
	if err != nil {
		t.Fatalf("NewFilesystemStore: %v", err)
	}
	x := ocr.NewLocalExtractor(cfg, blobs, logging.NewNop())
	handler := &chanHandler{
		results: make(chan delivered, 4),
		entered: make(chan struct{}, 4),
		release: make(chan struct{}),
	}
	ctx := context.Background()
	x.Start(ctx, handler)
	defer x.Stop()

	job := func(id string) ocr.Job {
		return ocr.Job{ID: id, FileRef: "contract-raw/missing.pdf", ContentType: "application/pdf"}
	}
	if _, err := x.Submit(ctx, job("a")); err != nil {
		t.Fatalf("Submit a: %v", err)
	}
	select {
	case <-handler.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never picked up first job")
	}

	if st := x.Status(); len(st.Active) != 1 || st.Active[0].JobID != "a" {
		t.Fatalf("expected job a active, got %+v", st.Active)
	}
	if _, err := x.Submit(ctx, job("b")); err != nil {
		t.Fatalf("Submit b: %v", err)
	}
	if _, err := x.Submit(ctx, job("c")); !errors.Is(err, ocr.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if st := x.Status(); st.Queued != 1 || st.Capacity != 1 {
		t.Fatalf("unexpected queue status: %+v", st)
	}

	close(handler.release)
	waitResult(t, handler.results)
	waitResult(t, handler.results)
}
