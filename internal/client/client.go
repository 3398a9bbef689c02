// Package client is the HTTP client the contractflow CLI uses to talk to
// contractflowd. Errors reported by the daemon come back as *api.RemoteError
// and match the services sentinels with errors.Is.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"contractflow/internal/api"
	"contractflow/internal/config"
)

// RetryConfig bounds retries of idempotent reads.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Client calls the contractflowd HTTP API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	retry      RetryConfig
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithRetry overrides the read retry policy.
func WithRetry(cfg RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// New builds a client for baseURL.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		retry:      RetryConfig{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.MaxAttempts < 1 {
		c.retry.MaxAttempts = 1
	}
	return c
}

// FromConfig targets the daemon bound at cfg.Paths.APIBind.
func FromConfig(cfg *config.Config, opts ...Option) (*Client, error) {
	base, err := BaseURL(cfg.Paths.APIBind)
	if err != nil {
		return nil, err
	}
	return New(base, cfg.Paths.APIToken, opts...), nil
}

// BaseURL turns a listen address into a URL a client can dial. Wildcard hosts
// are replaced by loopback.
func BaseURL(bind string) (string, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return "", errors.New("api_bind is not configured")
	}
	if strings.HasPrefix(bind, "http://") || strings.HasPrefix(bind, "https://") {
		return strings.TrimRight(bind, "/"), nil
	}
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return "", fmt.Errorf("parse api_bind %q: %w", bind, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port), nil
}

// UploadParams describes a document to upload.
type UploadParams struct {
	Path           string
	ContractNumber string
	ContractType   string
	CreatedBy      string
	ContentType    string
	AutoOCR        *bool
}

// Upload sends the file at p.Path.
func (c *Client) Upload(ctx context.Context, p UploadParams) (api.Contract, error) {
	f, err := os.Open(p.Path)
	if err != nil {
		return api.Contract{}, fmt.Errorf("open %s: %w", p.Path, err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(mw, f, p))
	}()

	var out api.ContractResponse
	if err := c.send(ctx, http.MethodPost, "/api/contracts/upload", pr, mw.FormDataContentType(), &out); err != nil {
		return api.Contract{}, err
	}
	return out.Contract, nil
}

func writeUploadForm(mw *multipart.Writer, f io.Reader, p UploadParams) error {
	fields := [][2]string{
		{"contract_number", p.ContractNumber},
		{"contract_type", p.ContractType},
		{"created_by", p.CreatedBy},
	}
	if p.AutoOCR != nil {
		fields = append(fields, [2]string{"auto_ocr", strconv.FormatBool(*p.AutoOCR)})
	}
	for _, field := range fields {
		if err := mw.WriteField(field[0], field[1]); err != nil {
			return err
		}
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(p.Path)))
	contentType := p.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	return mw.Close()
}

// List returns one page of contracts.
func (c *Client) List(ctx context.Context, limit int, cursor string) (api.ContractListResponse, error) {
	var out api.ContractListResponse
	err := c.get(ctx, "/api/contracts/"+pageQuery(limit, cursor), &out)
	return out, err
}

// Pending returns one page of the review queue, oldest first.
func (c *Client) Pending(ctx context.Context, limit int, cursor string) (api.ContractListResponse, error) {
	var out api.ContractListResponse
	err := c.get(ctx, "/api/contracts/pending-review"+pageQuery(limit, cursor), &out)
	return out, err
}

// Get returns one contract.
func (c *Client) Get(ctx context.Context, id string) (api.Contract, error) {
	var out api.ContractResponse
	err := c.get(ctx, "/api/contracts/"+url.PathEscape(id), &out)
	return out.Contract, err
}

// OCRText returns the extracted text of a contract.
func (c *Client) OCRText(ctx context.Context, id string) (string, error) {
	var out api.OCRTextResponse
	err := c.get(ctx, "/api/contracts/"+url.PathEscape(id)+"/ocr-text", &out)
	return out.Text, err
}

// RequestOCR starts extraction for an uploaded contract.
func (c *Client) RequestOCR(ctx context.Context, id string) (api.Contract, error) {
	var out api.ContractResponse
	err := c.send(ctx, http.MethodPost, "/api/contracts/"+url.PathEscape(id)+"/ocr", nil, "", &out)
	return out.Contract, err
}

// QueueForReview moves an extracted contract into the review queue.
func (c *Client) QueueForReview(ctx context.Context, id string) (api.Contract, error) {
	var out api.ContractResponse
	err := c.send(ctx, http.MethodPost, "/api/contracts/"+url.PathEscape(id)+"/queue-review", nil, "", &out)
	return out.Contract, err
}

// Review submits a decision.
func (c *Client) Review(ctx context.Context, contractID, decision, reviewer, comment string) (api.Contract, error) {
	req := api.ReviewRequest{ContractID: &contractID, Decision: &decision, Reviewer: &reviewer, Comment: comment}
	var out api.ContractResponse
	err := c.sendJSON(ctx, http.MethodPost, "/api/contracts/review", req, &out)
	return out.Contract, err
}

// Delete soft-deletes a contract.
func (c *Client) Delete(ctx context.Context, id string) (api.DeleteResponse, error) {
	var out api.DeleteResponse
	err := c.send(ctx, http.MethodDelete, "/api/contracts/"+url.PathEscape(id), nil, "", &out)
	return out, err
}

// BatchDelete deletes many contracts.
func (c *Client) BatchDelete(ctx context.Context, ids []string) (api.BatchDeleteResponse, error) {
	if ids == nil {
		ids = []string{}
	}
	var out api.BatchDeleteResponse
	err := c.sendJSON(ctx, http.MethodPost, "/api/contracts/batch-delete", ids, &out)
	return out, err
}

// Status returns daemon status.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var out api.DaemonStatus
	err := c.get(ctx, "/api/status", &out)
	return out, err
}

// OCRQueue returns the OCR backend's queue.
func (c *Client) OCRQueue(ctx context.Context) (api.OCRQueueResponse, error) {
	var out api.OCRQueueResponse
	err := c.get(ctx, "/api/ocr/queue", &out)
	return out, err
}

func pageQuery(limit int, cursor string) string {
	values := url.Values{}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		values.Set("cursor", cursor)
	}
	if len(values) == 0 {
		return ""
	}
	return "?" + values.Encode()
}

func (c *Client) get(ctx context.Context, path string, dst any) error {
	var err error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		err = c.send(ctx, http.MethodGet, path, nil, "", dst)
		if err == nil || !retryable(err) || attempt == c.retry.MaxAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retry.BaseDelay * time.Duration(attempt)):
		}
	}
	return err
}

func (c *Client) sendJSON(ctx context.Context, method, path string, payload, dst any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.send(ctx, method, path, bytes.NewReader(raw), "application/json", dst)
}

func (c *Client) send(ctx context.Context, method, path string, body io.Reader, contentType string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &transportError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if dst == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var envelope api.ErrorResponse
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Error.Code == "" {
		msg := strings.TrimSpace(string(raw))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &statusError{status: resp.StatusCode, msg: msg}
	}
	return api.ErrorFromResponse(resp.StatusCode, envelope)
}

type transportError struct{ err error }

func (e *transportError) Error() string {
	return fmt.Sprintf("connect to daemon: %v (is contractflowd running?)", e.err)
}

func (e *transportError) Unwrap() error { return e.err }

type statusError struct {
	status int
	msg    string
}

func (e *statusError) Error() string { return fmt.Sprintf("%s (http %d)", e.msg, e.status) }

func retryable(err error) bool {
	var te *transportError
	if errors.As(err, &te) {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.status == http.StatusBadGateway || se.status == http.StatusServiceUnavailable || se.status == http.StatusGatewayTimeout
	}
	return false
}
