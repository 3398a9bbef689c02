package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateOCR(); err != nil {
		return err
	}
	if err := c.validateExtraction(); err != nil {
		return err
	}
	if err := c.validateLimits(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageFilesystem:
		if c.Storage.BlobDir == "" {
			return errors.New("storage.blob_dir must be set for the filesystem backend")
		}
	case StorageMinio:
		if c.Storage.MinioEndpoint == "" {
			return errors.New("storage.minio_endpoint must be set when storage.backend is minio")
		}
		if c.Storage.MinioAccessKey == "" || c.Storage.MinioSecretKey == "" {
			return errors.New("storage.minio_access_key and storage.minio_secret_key must be set (or MINIO_ACCESS_KEY/MINIO_SECRET_KEY)")
		}
	default:
		return fmt.Errorf("storage.backend: unsupported value %q (want filesystem or minio)", c.Storage.Backend)
	}
	return nil
}

func (c *Config) validateOCR() error {
	switch c.OCR.Backend {
	case OCRLocal:
		return nil
	case OCRRemote:
		if c.OCR.APIURL == "" {
			return errors.New("ocr.api_url must be set when ocr.backend is remote")
		}
		if _, err := url.ParseRequestURI(c.OCR.APIURL); err != nil {
			return fmt.Errorf("ocr.api_url: %w", err)
		}
		if c.OCR.CallbackURL == "" {
			return errors.New("ocr.callback_url must be set when ocr.backend is remote")
		}
		if c.OCR.Seed == "" {
			return errors.New("ocr.seed must be set when ocr.backend is remote so callbacks can be verified")
		}
		if c.Storage.Backend != StorageMinio {
			return errors.New("ocr.backend remote requires storage.backend minio so the service can fetch documents")
		}
		return nil
	default:
		return fmt.Errorf("ocr.backend: unsupported value %q (want local or remote)", c.OCR.Backend)
	}
}

func (c *Config) validateExtraction() error {
	if c.Extraction.ReviewThreshold > 1 {
		return errors.New("extraction.review_threshold must be between 0 and 1")
	}
	if c.Extraction.Temperature < 0 || c.Extraction.Temperature > 2 {
		return errors.New("extraction.temperature must be between 0 and 2")
	}
	if !c.Extraction.Enabled {
		return nil
	}
	if _, err := url.ParseRequestURI(c.Extraction.APIURL); err != nil {
		return fmt.Errorf("extraction.api_url: %w", err)
	}
	if c.Extraction.APIKey == "" {
		return errors.New("extraction.api_key must be set when extraction is enabled (or EXTRACTION_API_KEY)")
	}
	return nil
}

func (c *Config) validateLimits() error {
	if c.Workflow.ConflictRetries > 10 {
		return errors.New("workflow.conflict_retries must be at most 10")
	}
	if c.Batch.Workers > 64 {
		return errors.New("batch.workers must be at most 64")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
