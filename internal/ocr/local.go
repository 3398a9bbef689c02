package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"contractflow/internal/blob"
	"contractflow/internal/config"
	"contractflow/internal/logging"
)

// ErrQueueFull is returned when the local extraction queue has no room.
var ErrQueueFull = errors.New("ocr queue full")

// ErrNotRunning is returned when jobs arrive before Start or after Stop.
var ErrNotRunning = errors.New("ocr workers not running")

// LocalExtractor extracts text in-process with a fixed pool of workers.
type LocalExtractor struct {
	blobs    blob.Store
	workers  int
	maxBytes int64
	logger   *slog.Logger

	queue chan Job

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	active  map[string]ActiveJob
	wg      sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewLocalExtractor sizes the pool and queue from cfg.
func NewLocalExtractor(cfg *config.Config, blobs blob.Store, logger *slog.Logger) *LocalExtractor {
	workers := cfg.OCR.Workers
	if workers <= 0 {
		workers = 1
	}
	capacity := cfg.OCR.QueueSize
	if capacity <= 0 {
		capacity = 1
	}
	maxBytes := cfg.MaxUploadBytes()
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	return &LocalExtractor{
		blobs:    blobs,
		workers:  workers,
		maxBytes: maxBytes,
		logger:   logging.NewComponentLogger(logger, "ocr-local"),
		queue:    make(chan Job, capacity),
		active:   make(map[string]ActiveJob),
	}
}

// Start launches the workers. Results are delivered to handler.
func (x *LocalExtractor) Start(ctx context.Context, handler ResultHandler) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	x.cancel = cancel
	x.running = true
	for i := 0; i < x.workers; i++ {
		x.wg.Add(1)
		go x.worker(runCtx, handler)
	}
	x.logger.Info("ocr workers started", logging.Int("workers", x.workers), logging.Int("capacity", cap(x.queue)))
}

// Stop cancels the workers and waits for them to exit. Queued jobs that were
// never started stay in the queue.
func (x *LocalExtractor) Stop() {
	x.mu.Lock()
	if !x.running {
		x.mu.Unlock()
		return
	}
	x.running = false
	cancel := x.cancel
	x.mu.Unlock()

	cancel()
	x.wg.Wait()
}

// Submit enqueues job without blocking.
func (x *LocalExtractor) Submit(ctx context.Context, job Job) (string, error) {
	x.mu.Lock()
	running := x.running
	x.mu.Unlock()
	if !running {
		return "", ErrNotRunning
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case x.queue <- job:
		x.submitted.Add(1)
		return job.ID, nil
	default:
		return "", ErrQueueFull
	}
}

// Status reports queue depth and jobs in progress.
func (x *LocalExtractor) Status() QueueStatus {
	x.mu.Lock()
	active := make([]ActiveJob, 0, len(x.active))
	for _, job := range x.active {
		active = append(active, job)
	}
	x.mu.Unlock()
	sort.Slice(active, func(i, j int) bool { return active[i].StartedAt.Before(active[j].StartedAt) })

	return QueueStatus{
		Backend:   config.OCRLocal,
		Workers:   x.workers,
		Capacity:  cap(x.queue),
		Queued:    len(x.queue),
		Active:    active,
		Submitted: x.submitted.Load(),
		Completed: x.completed.Load(),
		Failed:    x.failed.Load(),
	}
}

func (x *LocalExtractor) worker(ctx context.Context, handler ResultHandler) {
	defer x.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-x.queue:
			x.run(ctx, job, handler)
		}
	}
}

func (x *LocalExtractor) run(ctx context.Context, job Job, handler ResultHandler) {
	x.mu.Lock()
	x.active[job.ID] = ActiveJob{JobID: job.ID, ContractID: job.ContractID, StartedAt: time.Now().UTC()}
	x.mu.Unlock()
	defer func() {
		x.mu.Lock()
		delete(x.active, job.ID)
		x.mu.Unlock()
	}()

	started := time.Now()
	res := x.extract(ctx, job)
	if res.Err != nil {
		x.failed.Add(1)
	} else {
		x.completed.Add(1)
	}
	x.logger.Debug("ocr job finished",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldContractID, job.ContractID),
		logging.Duration("elapsed", time.Since(started)),
		logging.Bool("failed", res.Err != nil),
	)

	if err := handler.OnResult(ctx, job.ID, res); err != nil {
		x.logger.Error("apply ocr result failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldContractID, job.ContractID),
			logging.Error(err),
		)
	}
}

func (x *LocalExtractor) extract(ctx context.Context, job Job) Result {
	if !isTextDocument(job.ContentType, job.Filename) {
		return Failed(fmt.Errorf("%w: %s", ErrUnsupportedContent, describeContent(job)))
	}
	rc, err := x.blobs.Open(ctx, job.FileRef)
	if err != nil {
		return Failed(fmt.Errorf("open document: %w", err))
	}
	defer rc.Close()

	text, err := decodeText(rc, x.maxBytes)
	if err != nil {
		return Failed(err)
	}
	return Result{Text: text}
}

func describeContent(job Job) string {
	if job.ContentType != "" {
		return job.ContentType
	}
	if job.Filename != "" {
		return job.Filename
	}
	return "unknown type"
}
