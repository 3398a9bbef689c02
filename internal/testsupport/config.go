package testsupport

import (
	"path/filepath"
	"testing"

	"contractflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Automation switches default to off so tests drive every transition
// explicitly; use WithAutomation to turn them on.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Storage.BlobDir = filepath.Join(base, "blobs")
	cfgVal.Workflow.AutoOCR = false
	cfgVal.Workflow.AutoQueueReview = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithAPIToken sets the bearer token required by the API server.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithAutomation toggles automatic OCR on upload and automatic review queueing.
func WithAutomation(autoOCR, autoQueueReview bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.AutoOCR = autoOCR
		b.cfg.Workflow.AutoQueueReview = autoQueueReview
	}
}

// WithBatchWorkers overrides the batch delete worker pool size.
func WithBatchWorkers(workers int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Batch.Workers = workers
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
