package extract

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"contractflow/internal/logging"
)

// ErrQueueFull is returned when the extraction queue has no room.
var ErrQueueFull = errors.New("extraction queue full")

// ErrNotRunning is returned when jobs arrive before Start or after Stop.
var ErrNotRunning = errors.New("extraction workers not running")

// Runner executes jobs on a fixed pool of workers.
type Runner struct {
	extractor Extractor
	workers   int
	timeout   time.Duration
	logger    *slog.Logger

	queue chan Job

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRunner sizes the pool. timeout bounds a single job; zero means no bound.
func NewRunner(x Extractor, workers, queueSize int, timeout time.Duration, logger *slog.Logger) *Runner {
	return &Runner{
		extractor: x,
		workers:   max(workers, 1),
		timeout:   timeout,
		logger:    logging.NewComponentLogger(logger, "extract"),
		queue:     make(chan Job, max(queueSize, 1)),
	}
}

// Start launches the workers. Results are delivered to handler.
func (r *Runner) Start(ctx context.Context, handler ResultHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	for range r.workers {
		r.wg.Add(1)
		go r.worker(runCtx, handler)
	}
	r.logger.Info("extraction workers started", logging.Int("workers", r.workers), logging.Int("capacity", cap(r.queue)))
}

// Stop cancels the workers and waits for them to exit.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel := r.cancel
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
}

// Submit enqueues job without blocking.
func (r *Runner) Submit(ctx context.Context, job Job) error {
	r.mu.Lock()
	running := r.running
	r.mu.Unlock()
	if !running {
		return ErrNotRunning
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case r.queue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (r *Runner) worker(ctx context.Context, handler ResultHandler) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-r.queue:
			r.run(ctx, job, handler)
		}
	}
}

func (r *Runner) run(ctx context.Context, job Job, handler ResultHandler) {
	jobCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	started := time.Now()
	res, err := r.extractor.Extract(jobCtx, job.Text)
	if err != nil {
		res = Result{Err: err}
	}
	// Shutdown is not a verdict on the contract; the job is resumed on restart.
	if ctx.Err() != nil {
		return
	}
	r.logger.Debug("extraction job finished",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldContractID, job.ContractID),
		logging.Duration("elapsed", time.Since(started)),
		logging.Bool("failed", res.Err != nil),
	)
	if err := handler.OnExtraction(ctx, job, res); err != nil {
		r.logger.Error("apply extraction result failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldContractID, job.ContractID),
			logging.Error(err),
		)
	}
}
