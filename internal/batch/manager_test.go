package batch_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"contractflow/internal/batch"
	"contractflow/internal/blob"
	"contractflow/internal/config"
	"contractflow/internal/lifecycle"
	"contractflow/internal/logging"
	"contractflow/internal/services"
	"contractflow/internal/store"
	"contractflow/internal/testsupport"
)

func TestBatchDeleteMixedOutcomes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	blobs, err := blob.NewFilesystemStore(cfg.Storage.BlobDir, cfg.Storage.MinioBucket)
	if err != nil {
		t.Fatalf("NewFilesystemStore: %v", err)
	}
	engine := lifecycle.New(cfg, st, blobs, nil, logging.NewNop())
	mgr := batch.NewManager(cfg, engine, logging.NewNop())

	valid := testsupport.SeedContract(t, st, "valid", store.StatePendingReview)
	gone := testsupport.SeedContract(t, st, "gone", store.StateDeleted)

	report, err := mgr.BatchDelete(context.Background(), []string{valid.ID, gone.ID, "does-not-exist"})
	if err != nil {
		t.Fatalf("BatchDelete returned aggregate error: %v", err)
	}
	if len(report.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(report.Entries))
	}
	want := map[string]batch.Outcome{
		valid.ID:         batch.OutcomeDeleted,
		gone.ID:          batch.OutcomeAlreadyDeleted,
		"does-not-exist": batch.OutcomeNotFound,
	}
	for id, outcome := range want {
		got, ok := report.Outcome(id)
		if !ok || got != outcome {
			t.Fatalf("%s: expected %s, got %s", id, outcome, got)
		}
	}

	c, err := st.Get(context.Background(), valid.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if c.State != store.StateDeleted {
		t.Fatalf("expected valid contract deleted, got %s", c.State)
	}
}

func TestBatchDeleteEmptyInput(t *testing.T) {
	mgr := batch.NewManager(defaultConfig(), &stubDeleter{}, logging.NewNop())
	report, err := mgr.BatchDelete(context.Background(), nil)
	if err != nil {
		t.Fatalf("BatchDelete: %v", err)
	}
	if len(report.Entries) != 0 {
		t.Fatalf("expected empty report, got %v", report.Entries)
	}
}

func TestBatchDeleteCollapsesDuplicates(t *testing.T) {
	deleter := &stubDeleter{}
	mgr := batch.NewManager(defaultConfig(), deleter, logging.NewNop())

	report, err := mgr.BatchDelete(context.Background(), []string{"a", "b", "a", " a ", "b"})
	if err != nil {
		t.Fatalf("BatchDelete: %v", err)
	}
	if len(report.Entries) != 2 || report.Entries[0].ID != "a" || report.Entries[1].ID != "b" {
		t.Fatalf("expected a,b once each in first-seen order, got %v", report.Entries)
	}
	if got := deleter.calls.Load(); got != 2 {
		t.Fatalf("expected 2 deletions, got %d", got)
	}
}

func TestBatchDeleteIsolatesFailures(t *testing.T) {
	deleter := &stubDeleter{fail: map[string]error{"bad": errors.New("disk I/O error")}}
	mgr := batch.NewManager(defaultConfig(), deleter, logging.NewNop())

	report, err := mgr.BatchDelete(context.Background(), []string{"ok-1", "bad", "ok-2"})
	if err != nil {
		t.Fatalf("BatchDelete: %v", err)
	}
	counts := report.Counts()
	if counts[batch.OutcomeDeleted] != 2 || counts[batch.OutcomeFailed] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
	for _, e := range report.Entries {
		if e.ID == "bad" && e.Error == "" {
			t.Fatal("expected failure message on failed entry")
		}
	}
}

func TestBatchDeleteBoundsConcurrency(t *testing.T) {
	cfg := defaultConfig()
	cfg.Batch.Workers = 3
	deleter := &stubDeleter{delay: 10 * time.Millisecond}
	mgr := batch.NewManager(cfg, deleter, logging.NewNop())

	ids := make([]string, 20)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%d", i)
	}
	report, err := mgr.BatchDelete(context.Background(), ids)
	if err != nil {
		t.Fatalf("BatchDelete: %v", err)
	}
	if report.Counts()[batch.OutcomeDeleted] != 20 {
		t.Fatalf("expected 20 deletions, got %v", report.Counts())
	}
	if peak := deleter.peak.Load(); peak > 3 {
		t.Fatalf("expected at most 3 concurrent deletions, saw %d", peak)
	}
}

func TestBatchDeleteCancellationStopsDispatch(t *testing.T) {
	cfg := defaultConfig()
	cfg.Batch.Workers = 1
	ctx, cancel := context.WithCancel(context.Background())
	deleter := &stubDeleter{delay: 50 * time.Millisecond, onCall: func(id string) {
		if id == "first" {
			cancel()
		}
	}}
	mgr := batch.NewManager(cfg, deleter, logging.NewNop())

	ids := []string{"first", "second", "third", "fourth"}
	report, err := mgr.BatchDelete(ctx, ids)
	if err != nil {
		t.Fatalf("BatchDelete: %v", err)
	}
	if got, _ := report.Outcome("first"); got != batch.OutcomeDeleted {
		t.Fatalf("in-flight deletion should complete, got %s", got)
	}
	for _, id := range ids[1:] {
		if got, _ := report.Outcome(id); got != batch.OutcomeCancelled {
			t.Fatalf("%s: expected cancelled after cancellation, got %s", id, got)
		}
	}
	if calls := deleter.calls.Load(); calls != 1 {
		t.Fatalf("expected only the in-flight delete to run, got %d calls", calls)
	}
	if len(report.Entries) != 4 {
		t.Fatalf("expected every id reported, got %d", len(report.Entries))
	}
	if deleter.ctxErr.Load() {
		t.Fatal("in-flight deletion saw a cancelled context")
	}
}

func TestBatchDeleteCancelledBeforeStart(t *testing.T) {
	cfg := defaultConfig()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	deleter := &stubDeleter{}
	mgr := batch.NewManager(cfg, deleter, logging.NewNop())

	report, err := mgr.BatchDelete(ctx, []string{"a", "b"})
	if err != nil {
		t.Fatalf("BatchDelete: %v", err)
	}
	if deleter.calls.Load() != 0 {
		t.Fatalf("expected no deletes after cancellation, got %d", deleter.calls.Load())
	}
	if report.Counts()[batch.OutcomeCancelled] != 2 {
		t.Fatalf("expected both ids cancelled, got %v", report.Counts())
	}
}

func TestBatchDeleteValidation(t *testing.T) {
	cfg := defaultConfig()
	cfg.Batch.MaxIDs = 2
	mgr := batch.NewManager(cfg, &stubDeleter{}, logging.NewNop())

	if _, err := mgr.BatchDelete(context.Background(), []string{"a", "b", "c"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for oversize batch, got %v", err)
	}
	if _, err := mgr.BatchDelete(context.Background(), []string{"a", ""}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for blank id, got %v", err)
	}
	if _, err := mgr.BatchDelete(context.Background(), []string{"a", "a", "b", "b"}); err != nil {
		t.Fatalf("duplicates should count once against the limit, got %v", err)
	}
}

func defaultConfig() *config.Config {
	cfg := config.Default()
	return &cfg
}

type stubDeleter struct {
	mu      sync.Mutex
	fail    map[string]error
	delay   time.Duration
	onCall  func(id string)
	calls   atomic.Int32
	running atomic.Int32
	peak    atomic.Int32
	ctxErr  atomic.Bool
}

func (s *stubDeleter) Delete(ctx context.Context, id string) (lifecycle.DeleteOutcome, error) {
	s.calls.Add(1)
	cur := s.running.Add(1)
	defer s.running.Add(-1)
	s.mu.Lock()
	if cur > s.peak.Load() {
		s.peak.Store(cur)
	}
	s.mu.Unlock()

	if s.onCall != nil {
		s.onCall(id)
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if ctx.Err() != nil {
		s.ctxErr.Store(true)
	}
	if err, ok := s.fail[id]; ok {
		return "", err
	}
	return lifecycle.Deleted, nil
}
