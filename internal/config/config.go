package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Storage backends for uploaded contract content.
const (
	StorageFilesystem = "filesystem"
	StorageMinio      = "minio"
)

// OCR backends.
const (
	OCRLocal  = "local"
	OCRRemote = "remote"
)

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Storage selects where uploaded contract files live. fileRef values stored
// on contracts are opaque "bucket/object" strings resolved by this backend.
type Storage struct {
	Backend           string `toml:"backend"`
	BlobDir           string `toml:"blob_dir"`
	MinioEndpoint     string `toml:"minio_endpoint"`
	MinioAccessKey    string `toml:"minio_access_key"`
	MinioSecretKey    string `toml:"minio_secret_key"`
	MinioBucket       string `toml:"minio_bucket"`
	MinioUseSSL       bool   `toml:"minio_use_ssl"`
	MinioPresignHours int    `toml:"minio_presign_hours"`
	MaxUploadMiB      int    `toml:"max_upload_mib"`
}

// OCR configures the text extraction collaborator.
type OCR struct {
	Backend        string `toml:"backend"`
	Workers        int    `toml:"workers"`
	QueueSize      int    `toml:"queue_size"`
	APIURL         string `toml:"api_url"`
	APIToken       string `toml:"api_token"`
	ModelVersion   string `toml:"model_version"`
	CallbackURL    string `toml:"callback_url"`
	Seed           string `toml:"seed"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Extraction configures AI field extraction after OCR. The endpoint must speak
// the OpenAI-compatible chat completions protocol.
type Extraction struct {
	Enabled         bool    `toml:"enabled"`
	APIURL          string  `toml:"api_url"`
	APIKey          string  `toml:"api_key"`
	Model           string  `toml:"model"`
	Workers         int     `toml:"workers"`
	QueueSize       int     `toml:"queue_size"`
	RequestTimeout  int     `toml:"request_timeout"`
	Temperature     float64 `toml:"temperature"`
	ReviewThreshold float64 `toml:"review_threshold"`
}

// Workflow contains lifecycle automation switches.
type Workflow struct {
	AutoOCR         bool `toml:"auto_ocr"`
	AutoQueueReview bool `toml:"auto_queue_review"`
	ConflictRetries int  `toml:"conflict_retries"`
}

// Batch bounds set-oriented operations.
type Batch struct {
	Workers int `toml:"workers"`
	MaxIDs  int `toml:"max_ids"`
}

// Review contains limits applied to submitted review decisions.
type Review struct {
	MaxCommentBytes int `toml:"max_comment_bytes"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for contractflow.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - Storage: blob backend for uploaded files (filesystem or MinIO)
//   - OCR: local worker pool or remote extraction service
//   - Extraction: optional LLM field extraction between OCR and review
//   - Workflow: lifecycle automation and conflict retry budget
//   - Batch: worker pool size and request limits for batch delete
//   - Review: decision payload limits
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Storage    Storage    `toml:"storage"`
	OCR        OCR        `toml:"ocr"`
	Extraction Extraction `toml:"extraction"`
	Workflow   Workflow   `toml:"workflow"`
	Batch      Batch      `toml:"batch"`
	Review     Review     `toml:"review"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/contractflow/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("contractflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir}
	if c.Storage.Backend == StorageFilesystem {
		dirs = append(dirs, c.Storage.BlobDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the contract database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "contracts.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "contractflowd.lock")
}

// OCRRequestTimeout returns the remote OCR request timeout.
func (c *Config) OCRRequestTimeout() time.Duration {
	return time.Duration(c.OCR.RequestTimeout) * time.Second
}

// MaxUploadBytes returns the upload size limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Storage.MaxUploadMiB) << 20
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
