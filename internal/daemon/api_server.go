package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"contractflow/internal/api"
	"contractflow/internal/config"
	"contractflow/internal/lifecycle"
	"contractflow/internal/logging"
	"contractflow/internal/ocr"
	"contractflow/internal/services"
	"contractflow/internal/store"
)

// multipartMemory is how much of an upload is buffered before spilling to disk.
const multipartMemory = 8 << 20

type apiServer struct {
	bind        string
	cfg         *config.Config
	logger      *slog.Logger
	daemon      *Daemon
	handler     http.Handler
	maxUpload   int64
	maxJSONBody int64

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:        strings.TrimSpace(cfg.Paths.APIBind),
		cfg:         cfg,
		logger:      logging.NewComponentLogger(logger, "api-server"),
		daemon:      d,
		maxUpload:   cfg.MaxUploadBytes(),
		maxJSONBody: 1 << 20,
	}
	srv.handler = srv.routes()
	return srv
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		// Authenticated by payload checksum, not by bearer token.
		r.Post("/ocr/callback", s.handleOCRCallback)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(s.cfg.Paths.APIToken))

			r.Get("/status", s.handleStatus)
			r.Get("/ocr/queue", s.handleOCRQueue)

			r.Route("/contracts", func(r chi.Router) {
				r.Get("/", s.handleList)
				r.Post("/upload", s.handleUpload)
				r.Get("/pending-review", s.handlePending)
				r.Post("/review", s.handleReview)
				r.Post("/batch-delete", s.handleBatchDelete)
				r.Get("/{id}", s.handleDetail)
				r.Delete("/{id}", s.handleDelete)
				r.Get("/{id}/ocr-text", s.handleOCRText)
				r.Post("/{id}/ocr", s.handleRequestOCR)
				r.Post("/{id}/queue-review", s.handleQueueReview)
			})
		})
	})
	return r
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *apiServer) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.daemon.Status(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	counts := make(map[string]int, len(status.Counts))
	for state, n := range status.Counts {
		counts[string(state)] = n
	}
	payload := api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		Storage:      s.cfg.Storage.Backend,
		OCR:          s.cfg.OCR.Backend,
		Counts:       counts,
	}
	if !status.StartedAt.IsZero() {
		payload.StartedAt = status.StartedAt.Format(time.RFC3339)
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleOCRQueue(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.FromQueueStatus(s.daemon.OCRStatus()))
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.daemon.Engine.List(r.Context(), page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromPage(result))
}

func (s *apiServer) handlePending(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.daemon.Review.ListPending(r.Context(), page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromPage(result))
}

func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		s.writeError(w, r, bodyError("parse multipart form", err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, services.Wrap(services.ErrValidation, "api", "upload", "file part is required", err))
		return
	}
	defer file.Close()

	req := lifecycle.UploadRequest{
		ContractNumber: r.FormValue("contract_number"),
		ContractType:   store.ContractType(strings.ToLower(strings.TrimSpace(r.FormValue("contract_type")))),
		Filename:       header.Filename,
		ContentType:    header.Header.Get("Content-Type"),
		CreatedBy:      r.FormValue("created_by"),
		Size:           header.Size,
		Body:           file,
	}
	if raw := strings.TrimSpace(r.FormValue("auto_ocr")); raw != "" {
		auto, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, r, services.Wrap(services.ErrValidation, "api", "upload", "auto_ocr must be a boolean", err))
			return
		}
		req.AutoOCR = &auto
	}

	c, err := s.daemon.Engine.Upload(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.ContractResponse{Contract: api.FromContract(c)})
}

func (s *apiServer) handleDetail(w http.ResponseWriter, r *http.Request) {
	c, err := s.daemon.Engine.Detail(r.Context(), contractID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ContractResponse{Contract: api.FromContract(c)})
}

func (s *apiServer) handleOCRText(w http.ResponseWriter, r *http.Request) {
	id := contractID(r)
	text, err := s.daemon.Engine.OCRText(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.OCRTextResponse{ContractID: id, Text: text})
}

func (s *apiServer) handleRequestOCR(w http.ResponseWriter, r *http.Request) {
	c, err := s.daemon.Engine.RequestOCR(r.Context(), contractID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.ContractResponse{Contract: api.FromContract(c)})
}

func (s *apiServer) handleQueueReview(w http.ResponseWriter, r *http.Request) {
	c, err := s.daemon.Engine.QueueForReview(r.Context(), contractID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ContractResponse{Contract: api.FromContract(c)})
}

func (s *apiServer) handleReview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxJSONBody)
	decision, err := api.DecodeReview(r.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx := services.WithContractID(r.Context(), decision.ContractID)
	c, err := s.daemon.Review.SubmitDecision(ctx, decision)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ContractResponse{Contract: api.FromContract(c)})
}

func (s *apiServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := contractID(r)
	outcome, err := s.daemon.Engine.Delete(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.DeleteResponse{ContractID: id, Outcome: string(outcome)})
}

func (s *apiServer) handleBatchDelete(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxJSONBody)
	ids, err := api.DecodeIDs(r.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	report, err := s.daemon.Batch.BatchDelete(r.Context(), ids)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromBatchReport(report))
}

func (s *apiServer) handleOCRCallback(w http.ResponseWriter, r *http.Request) {
	if s.daemon.Remote == nil {
		s.writeError(w, r, services.Wrap(services.ErrNotFound, "api", "ocr callback", "remote ocr is not configured", nil))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxJSONBody)
	var payload ocr.CallbackPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, r, bodyError("decode callback", err))
		return
	}
	jobID, result, err := s.daemon.Remote.HandleCallback(r.Context(), payload)
	switch {
	case errors.Is(err, ocr.ErrCallbackPending):
		s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "pending"})
		return
	case errors.Is(err, ocr.ErrBadChecksum):
		s.logger.Warn("rejected ocr callback",
			logging.String(logging.FieldEventType, "ocr_callback_rejected"),
			logging.Error(err),
		)
		s.writeJSON(w, http.StatusUnauthorized, api.Unauthorized(requestIDFrom(r)))
		return
	case err != nil:
		s.writeError(w, r, services.Wrap(services.ErrValidation, "api", "ocr callback", "malformed callback", err))
		return
	}
	if err := s.daemon.Engine.Gateway().OnResult(r.Context(), jobID, result); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func pageFromQuery(r *http.Request) (store.Page, error) {
	query := r.URL.Query()
	page := store.Page{Cursor: strings.TrimSpace(query.Get("cursor"))}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return store.Page{}, services.Wrap(services.ErrValidation, "api", "list", "limit must be a non-negative integer", nil)
		}
		page.Limit = limit
	}
	return page, nil
}

func contractID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "id"))
}

func bodyError(op string, err error) error {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return err
	}
	return services.Wrap(services.ErrValidation, "api", op, "malformed request body", err)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := api.EncodeError(err, requestIDFrom(r))
	ctx := r.Context()
	if status >= http.StatusInternalServerError {
		logging.WithContext(ctx, s.logger).Error("request failed",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
	} else {
		logging.WithContext(ctx, s.logger).Debug("request rejected",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.String("code", body.Error.Code),
			logging.Error(err),
		)
	}
	s.writeJSON(w, status, body)
}
