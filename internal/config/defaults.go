package config

const (
	defaultDataDir           = "~/.local/share/contractflow"
	defaultLogDir            = "~/.local/share/contractflow/logs"
	defaultBlobDir           = "~/.local/share/contractflow/blobs"
	defaultAPIBind           = "127.0.0.1:7610"
	defaultStorageBackend    = StorageFilesystem
	defaultMinioBucket       = "contract-raw"
	defaultMinioPresignHours = 24
	defaultOCRBackend        = OCRLocal
	defaultOCRWorkers        = 2
	defaultOCRQueueSize      = 256
	defaultOCRModelVersion   = "vlm"
	defaultOCRRequestTimeout = 60
	defaultExtractionURL     = "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"
	defaultExtractionModel   = "qwen-plus"
	defaultExtractionWorkers = 2
	defaultExtractionQueue   = 256
	defaultExtractionTimeout = 60
	defaultExtractionTemp    = 0.1
	defaultReviewThreshold   = 0.8
	defaultConflictRetries   = 3
	defaultBatchWorkers      = 8
	defaultBatchMaxIDs       = 1000
	defaultMaxCommentBytes   = 4096
	defaultMaxUploadMiB      = 64
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Storage: Storage{
			Backend:           defaultStorageBackend,
			BlobDir:           defaultBlobDir,
			MinioBucket:       defaultMinioBucket,
			MinioPresignHours: defaultMinioPresignHours,
			MaxUploadMiB:      defaultMaxUploadMiB,
		},
		OCR: OCR{
			Backend:        defaultOCRBackend,
			Workers:        defaultOCRWorkers,
			QueueSize:      defaultOCRQueueSize,
			ModelVersion:   defaultOCRModelVersion,
			RequestTimeout: defaultOCRRequestTimeout,
		},
		Extraction: Extraction{
			APIURL:          defaultExtractionURL,
			Model:           defaultExtractionModel,
			Workers:         defaultExtractionWorkers,
			QueueSize:       defaultExtractionQueue,
			RequestTimeout:  defaultExtractionTimeout,
			Temperature:     defaultExtractionTemp,
			ReviewThreshold: defaultReviewThreshold,
		},
		Workflow: Workflow{
			AutoOCR:         true,
			AutoQueueReview: true,
			ConflictRetries: defaultConflictRetries,
		},
		Batch: Batch{
			Workers: defaultBatchWorkers,
			MaxIDs:  defaultBatchMaxIDs,
		},
		Review: Review{
			MaxCommentBytes: defaultMaxCommentBytes,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
