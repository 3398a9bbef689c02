package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"contractflow/internal/batch"
	"contractflow/internal/config"
	"contractflow/internal/extract"
	"contractflow/internal/lifecycle"
	"contractflow/internal/logging"
	"contractflow/internal/ocr"
	"contractflow/internal/review"
	"contractflow/internal/store"
)

// Components are the services the daemon serves. Local and Remote are
// mutually exclusive; the one matching cfg.OCR.Backend is set. Extraction is
// set only when field extraction is enabled.
type Components struct {
	Store      *store.Store
	Engine     *lifecycle.Engine
	Review     *review.Coordinator
	Batch      *batch.Manager
	Local      *ocr.LocalExtractor
	Remote     *ocr.RemoteExtractor
	Extraction *extract.Runner
}

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	Components

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	startedAt time.Time
	cancel    context.CancelFunc
	api       *apiServer
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	StartedAt    time.Time
	DatabasePath string
	LockFilePath string
	Counts       map[store.State]int
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, c Components, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || c.Store == nil || c.Engine == nil || c.Review == nil || c.Batch == nil {
		return nil, errors.New("daemon requires config, store, engine, review coordinator, and batch manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		Components: c,
		lockPath:   cfg.LockPath(),
		lock:       flock.New(cfg.LockPath()),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, starts OCR workers, resumes in-flight jobs
// and begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another contractflowd instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if d.Extraction != nil {
		d.Extraction.Start(runCtx, d.Engine)
		resumed, err := d.Engine.ResumeExtraction(runCtx)
		if err != nil {
			d.logger.Warn("resume field extraction failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "extraction_resume_failed"),
			)
		} else if resumed > 0 {
			d.logger.Info("resumed field extraction", logging.Int("count", resumed))
		}
	}
	if d.Local != nil {
		d.Local.Start(runCtx, d.Engine.Gateway())
		resumed, err := d.Engine.ResumeOCR(runCtx)
		if err != nil {
			d.logger.Warn("resume ocr jobs failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "ocr_resume_failed"),
			)
		} else if resumed > 0 {
			d.logger.Info("resumed ocr jobs", logging.Int("count", resumed))
		}
	}

	if err := d.api.start(runCtx); err != nil {
		cancel()
		d.stopWorkers()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.startedAt = time.Now().UTC()
	d.running.Store(true)
	d.logger.Info("contractflow daemon started",
		logging.String("lock", d.lockPath),
		logging.String("storage_backend", d.cfg.Storage.Backend),
		logging.String("ocr_backend", d.cfg.OCR.Backend),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.stopWorkers()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("contractflow daemon stopped")
}

func (d *Daemon) stopWorkers() {
	if d.Local != nil {
		d.Local.Stop()
	}
	if d.Extraction != nil {
		d.Extraction.Stop()
	}
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.Store.Close()
}

// Handler returns the API handler, for embedding or tests.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler
}

// Addr returns the API listen address once started.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

// OCRStatus reports the active backend's queue.
func (d *Daemon) OCRStatus() ocr.QueueStatus {
	switch {
	case d.Local != nil:
		return d.Local.Status()
	case d.Remote != nil:
		return d.Remote.Status()
	default:
		return ocr.QueueStatus{Backend: d.cfg.OCR.Backend, Active: []ocr.ActiveJob{}}
	}
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	counts, err := d.Store.Stats(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("contract stats: %w", err)
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StartedAt:    d.startedAt,
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
		Counts:       counts,
	}, nil
}
