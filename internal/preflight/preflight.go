package preflight

import (
	"context"

	"contractflow/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Detail   string `json:"detail,omitempty"`
	Critical bool   `json:"critical"`
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	data := CheckDirectoryAccess("Data directory", cfg.Paths.DataDir)
	data.Critical = true
	results := []Result{data, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir)}

	if cfg.Storage.Backend == config.StorageFilesystem {
		blobs := CheckDirectoryAccess("Blob directory", cfg.Storage.BlobDir)
		blobs.Critical = true
		results = append(results, blobs)
	}

	if cfg.OCR.Backend == config.OCRRemote {
		results = append(results, CheckOCRService(ctx, cfg.OCR.APIURL, cfg.OCR.APIToken))
	}

	return results
}

// Failed returns the critical results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if r.Critical && !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
