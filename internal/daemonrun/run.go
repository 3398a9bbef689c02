// Package daemonrun assembles and runs the contractflowd process: logging,
// preflight checks, the store, the blob backend, the OCR collaborator and the
// HTTP daemon, until the context is cancelled or a signal arrives.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"contractflow/internal/batch"
	"contractflow/internal/blob"
	"contractflow/internal/config"
	"contractflow/internal/daemon"
	"contractflow/internal/extract"
	"contractflow/internal/lifecycle"
	"contractflow/internal/logging"
	"contractflow/internal/ocr"
	"contractflow/internal/preflight"
	"contractflow/internal/review"
	"contractflow/internal/services/llm"
	"contractflow/internal/store"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the contractflow daemon runtime loop.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logPath := filepath.Join(cfg.Paths.LogDir, "contractflowd.log")
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if failed := logPreflight(signalCtx, logger, cfg); len(failed) > 0 {
		return fmt.Errorf("preflight failed: %s: %s", failed[0].Name, failed[0].Detail)
	}

	pidPath := filepath.Join(cfg.Paths.DataDir, "contractflowd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open contract store", logging.Error(err))
		return err
	}

	components, err := Build(signalCtx, cfg, st, logger)
	if err != nil {
		_ = st.Close()
		return err
	}

	d, err := daemon.New(cfg, components, logger)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("contractflow daemon shutting down")
	return nil
}

// Build wires the domain services around an open store.
func Build(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger) (daemon.Components, error) {
	blobs, err := blob.New(ctx, cfg)
	if err != nil {
		return daemon.Components{}, fmt.Errorf("open blob storage: %w", err)
	}

	components := daemon.Components{Store: st}
	var collab ocr.Collaborator
	switch cfg.OCR.Backend {
	case config.OCRRemote:
		components.Remote = ocr.NewRemoteExtractor(cfg, blobs, logger)
		collab = components.Remote
	default:
		components.Local = ocr.NewLocalExtractor(cfg, blobs, logger)
		collab = components.Local
	}

	var opts []lifecycle.Option
	if cfg.Extraction.Enabled {
		components.Extraction = newExtractionRunner(cfg, logger)
		opts = append(opts, lifecycle.WithExtraction(components.Extraction))
	}

	components.Engine = lifecycle.New(cfg, st, blobs, collab, logger, opts...)
	components.Review = review.NewCoordinator(cfg, st, logger)
	components.Batch = batch.NewManager(cfg, components.Engine, logger)
	return components, nil
}

func newExtractionRunner(cfg *config.Config, logger *slog.Logger) *extract.Runner {
	x := cfg.Extraction
	client := llm.NewClient(llm.Config{
		APIKey:         x.APIKey,
		BaseURL:        x.APIURL,
		Model:          x.Model,
		TimeoutSeconds: x.RequestTimeout,
		Temperature:    x.Temperature,
	})
	// Retries run inside one job, so a job may outlive a single request.
	jobTimeout := 4 * time.Duration(x.RequestTimeout) * time.Second
	return extract.NewRunner(extract.NewLLMExtractor(client), x.Workers, x.QueueSize, jobTimeout, logger)
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) []preflight.Result {
	results := preflight.RunAll(ctx, cfg)
	for _, r := range results {
		if r.Passed {
			logger.Debug("preflight check passed", logging.String("check", r.Name), logging.String("detail", r.Detail))
			continue
		}
		logger.Warn("preflight check failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.Bool("critical", r.Critical),
			logging.String(logging.FieldEventType, "preflight_failed"),
		)
	}
	return preflight.Failed(results)
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
