package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeOCR()
	c.normalizeExtraction()
	c.normalizeLimits()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("CONTRACTFLOW_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeStorage() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaultStorageBackend
	}
	if strings.TrimSpace(c.Storage.BlobDir) == "" {
		c.Storage.BlobDir = defaultBlobDir
	}
	var err error
	if c.Storage.BlobDir, err = expandPath(c.Storage.BlobDir); err != nil {
		return fmt.Errorf("storage.blob_dir: %w", err)
	}
	c.Storage.MinioEndpoint = strings.TrimSpace(c.Storage.MinioEndpoint)
	c.Storage.MinioBucket = strings.TrimSpace(c.Storage.MinioBucket)
	if c.Storage.MinioBucket == "" {
		c.Storage.MinioBucket = defaultMinioBucket
	}
	if c.Storage.MinioAccessKey == "" {
		if value, ok := os.LookupEnv("MINIO_ACCESS_KEY"); ok {
			c.Storage.MinioAccessKey = strings.TrimSpace(value)
		}
	}
	if c.Storage.MinioSecretKey == "" {
		if value, ok := os.LookupEnv("MINIO_SECRET_KEY"); ok {
			c.Storage.MinioSecretKey = strings.TrimSpace(value)
		}
	}
	if c.Storage.MinioPresignHours <= 0 {
		c.Storage.MinioPresignHours = defaultMinioPresignHours
	}
	if c.Storage.MaxUploadMiB <= 0 {
		c.Storage.MaxUploadMiB = defaultMaxUploadMiB
	}
	return nil
}

func (c *Config) normalizeOCR() {
	c.OCR.Backend = strings.ToLower(strings.TrimSpace(c.OCR.Backend))
	if c.OCR.Backend == "" {
		c.OCR.Backend = defaultOCRBackend
	}
	if c.OCR.Workers <= 0 {
		c.OCR.Workers = defaultOCRWorkers
	}
	if c.OCR.QueueSize <= 0 {
		c.OCR.QueueSize = defaultOCRQueueSize
	}
	c.OCR.APIURL = strings.TrimRight(strings.TrimSpace(c.OCR.APIURL), "/")
	c.OCR.CallbackURL = strings.TrimSpace(c.OCR.CallbackURL)
	if strings.TrimSpace(c.OCR.ModelVersion) == "" {
		c.OCR.ModelVersion = defaultOCRModelVersion
	}
	if c.OCR.APIToken == "" {
		if value, ok := os.LookupEnv("OCR_API_TOKEN"); ok {
			c.OCR.APIToken = strings.TrimSpace(value)
		}
	}
	if c.OCR.RequestTimeout <= 0 {
		c.OCR.RequestTimeout = defaultOCRRequestTimeout
	}
}

func (c *Config) normalizeExtraction() {
	c.Extraction.APIURL = strings.TrimSpace(c.Extraction.APIURL)
	if c.Extraction.APIURL == "" {
		c.Extraction.APIURL = defaultExtractionURL
	}
	c.Extraction.Model = strings.TrimSpace(c.Extraction.Model)
	if c.Extraction.Model == "" {
		c.Extraction.Model = defaultExtractionModel
	}
	c.Extraction.APIKey = strings.TrimSpace(c.Extraction.APIKey)
	if c.Extraction.APIKey == "" {
		if value, ok := os.LookupEnv("EXTRACTION_API_KEY"); ok {
			c.Extraction.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Extraction.Workers <= 0 {
		c.Extraction.Workers = defaultExtractionWorkers
	}
	if c.Extraction.QueueSize <= 0 {
		c.Extraction.QueueSize = defaultExtractionQueue
	}
	if c.Extraction.RequestTimeout <= 0 {
		c.Extraction.RequestTimeout = defaultExtractionTimeout
	}
	if c.Extraction.ReviewThreshold <= 0 {
		c.Extraction.ReviewThreshold = defaultReviewThreshold
	}
}

func (c *Config) normalizeLimits() {
	if c.Workflow.ConflictRetries <= 0 {
		c.Workflow.ConflictRetries = defaultConflictRetries
	}
	if c.Batch.Workers <= 0 {
		c.Batch.Workers = defaultBatchWorkers
	}
	if c.Batch.MaxIDs <= 0 {
		c.Batch.MaxIDs = defaultBatchMaxIDs
	}
	if c.Review.MaxCommentBytes <= 0 {
		c.Review.MaxCommentBytes = defaultMaxCommentBytes
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
