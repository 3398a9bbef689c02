package ocr

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"contractflow/internal/blob"
	"contractflow/internal/config"
	"contractflow/internal/logging"
)

// ErrBadChecksum is returned for callbacks that fail verification.
var ErrBadChecksum = errors.New("ocr callback checksum mismatch")

// ErrCallbackPending is returned for progress callbacks that carry no result.
var ErrCallbackPending = errors.New("ocr callback carries no result yet")

const maxPageBytes = 32 << 20

// RemoteExtractor submits jobs to a MinerU-style extraction service.
type RemoteExtractor struct {
	apiURL       string
	apiToken     string
	modelVersion string
	callbackURL  string
	seed         string
	blobs        blob.Store
	httpClient   *http.Client
	logger       *slog.Logger

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

type taskRequest struct {
	URL          string `json:"url"`
	ModelVersion string `json:"model_version"`
	Callback     string `json:"callback,omitempty"`
	Seed         string `json:"seed,omitempty"`
	DataID       string `json:"data_id,omitempty"`
}

type taskResponse struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
	Data    struct {
		TaskID string `json:"task_id"`
	} `json:"data"`
}

// CallbackPayload is the body the extraction service posts back.
type CallbackPayload struct {
	Checksum string `json:"checksum"`
	Content  string `json:"content"`
}

// CallbackContent is the JSON document carried in CallbackPayload.Content.
type CallbackContent struct {
	TaskID    string `json:"task_id"`
	DataID    string `json:"data_id"`
	State     string `json:"state"`
	FullPages []struct {
		PageNo int    `json:"page_no"`
		MDURL  string `json:"md_url"`
	} `json:"full_pages"`
	ErrorMsg string `json:"err_msg"`
}

// NewRemoteExtractor builds a client from cfg.OCR.
func NewRemoteExtractor(cfg *config.Config, blobs blob.Store, logger *slog.Logger) *RemoteExtractor {
	return &RemoteExtractor{
		apiURL:       strings.TrimRight(cfg.OCR.APIURL, "/"),
		apiToken:     cfg.OCR.APIToken,
		modelVersion: cfg.OCR.ModelVersion,
		callbackURL:  cfg.OCR.CallbackURL,
		seed:         cfg.OCR.Seed,
		blobs:        blobs,
		httpClient:   &http.Client{Timeout: cfg.OCRRequestTimeout()},
		logger:       logging.NewComponentLogger(logger, "ocr-remote"),
	}
}

// Submit creates an extraction task. Our job id travels as data_id and comes
// back in the callback.
func (r *RemoteExtractor) Submit(ctx context.Context, job Job) (string, error) {
	docURL, err := r.blobs.URL(ctx, job.FileRef)
	if err != nil {
		return "", fmt.Errorf("document url: %w", err)
	}
	body, err := json.Marshal(taskRequest{
		URL:          docURL,
		ModelVersion: r.modelVersion,
		Callback:     r.callbackURL,
		Seed:         r.seed,
		DataID:       job.ID,
	})
	if err != nil {
		return "", fmt.Errorf("marshal task: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.apiURL+"/extract/task", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send task: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read task response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("ocr service returned %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	var result taskResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("parse task response: %w", err)
	}
	if result.Code != 0 {
		return "", fmt.Errorf("ocr service error: %s", result.Message)
	}
	r.submitted.Add(1)
	return result.Data.TaskID, nil
}

// Checksum computes sha256(uid + seed + content) as hex.
func Checksum(uid, seed, content string) string {
	sum := sha256.Sum256([]byte(uid + seed + content))
	return hex.EncodeToString(sum[:])
}

// VerifyCallback checks the payload checksum against its data_id.
func (r *RemoteExtractor) VerifyCallback(payload CallbackPayload) (CallbackContent, error) {
	var content CallbackContent
	if err := json.Unmarshal([]byte(payload.Content), &content); err != nil {
		return CallbackContent{}, fmt.Errorf("parse callback content: %w", err)
	}
	if content.DataID == "" {
		return CallbackContent{}, errors.New("callback content missing data_id")
	}
	expected := Checksum(content.DataID, r.seed, payload.Content)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(payload.Checksum))) != 1 {
		return CallbackContent{}, ErrBadChecksum
	}
	return content, nil
}

// HandleCallback verifies payload and turns it into a result for its job.
// Progress callbacks return ErrCallbackPending.
func (r *RemoteExtractor) HandleCallback(ctx context.Context, payload CallbackPayload) (string, Result, error) {
	content, err := r.VerifyCallback(payload)
	if err != nil {
		return "", Result{}, err
	}
	switch content.State {
	case "done":
		text, err := r.fetchPages(ctx, content)
		if err != nil {
			r.failed.Add(1)
			return content.DataID, Failed(err), nil
		}
		r.completed.Add(1)
		return content.DataID, Result{Text: text}, nil
	case "failed":
		r.failed.Add(1)
		msg := content.ErrorMsg
		if msg == "" {
			msg = "extraction failed"
		}
		return content.DataID, Failed(errors.New(msg)), nil
	default:
		r.logger.Debug("ocr progress callback",
			logging.String(logging.FieldJobID, content.DataID),
			logging.String("remote_state", content.State),
		)
		return content.DataID, Result{}, ErrCallbackPending
	}
}

func (r *RemoteExtractor) fetchPages(ctx context.Context, content CallbackContent) (string, error) {
	if len(content.FullPages) == 0 {
		return "", errors.New("callback reported done without pages")
	}
	parts := make([]string, 0, len(content.FullPages))
	for _, page := range content.FullPages {
		if page.MDURL == "" {
			continue
		}
		text, err := r.fetch(ctx, page.MDURL)
		if err != nil {
			return "", fmt.Errorf("fetch page %d: %w", page.PageNo, err)
		}
		parts = append(parts, text)
	}
	if len(parts) == 0 {
		return "", errors.New("callback pages carry no markdown")
	}
	return strings.Join(parts, "\n\n"), nil
}

func (r *RemoteExtractor) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}
	return decodeText(resp.Body, maxPageBytes)
}

// Status reports submission counters.
func (r *RemoteExtractor) Status() QueueStatus {
	return QueueStatus{
		Backend:   config.OCRRemote,
		Active:    []ActiveJob{},
		Submitted: r.submitted.Load(),
		Completed: r.completed.Load(),
		Failed:    r.failed.Load(),
	}
}
