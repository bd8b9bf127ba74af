// Package server exposes the translation pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/task"
	"pdf-translator/internal/types"
)

// Service is what the HTTP layer needs from the orchestrator.
type Service interface {
	Create(pdfData []byte, filename, targetLanguage string) (*task.Task, error)
	Run(ctx context.Context, taskID string) error
	GetTask(taskID string) (*task.Task, error)
	GetTranslationData(taskID string) (*task.TranslationData, error)
	GetPositionData(taskID string) (*task.PositionData, error)
	Regenerate(ctx context.Context, taskID string, edited *task.TranslationData) error
	TranslatedPDF(taskID string) ([]byte, error)
	Cancel(taskID string) error
}

// Server is the HTTP front end.
type Server struct {
	service Service
	cfg     *types.Config
	http    *http.Server
}

// New creates a Server with its routes mounted.
func New(service Service, cfg *types.Config) *Server {
	s := &Server{service: service, cfg: cfg}
	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes builds the router. Exposed separately so tests can mount it on
// httptest servers.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Get("/health", s.handleHealth)
		r.Get("/download/{id}", s.handleDownload)
		r.Route("/translation/{id}", func(r chi.Router) {
			r.Get("/status", s.handleStatus)
			r.Get("/data", s.handleGetData)
			r.Put("/data", s.handlePutData)
			r.Post("/cancel", s.handleCancel)
		})
	})
	return r
}

// ListenAndServe blocks serving HTTP until Shutdown.
func (s *Server) ListenAndServe() error {
	logger.Info("http server listening", logger.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// handleUpload accepts a multipart PDF upload, creates the task and starts
// processing in the background. The response carries the task record so the
// client can poll status immediately.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	targetLanguage := r.FormValue("target_language")
	t, err := s.service.Create(data, header.Filename, targetLanguage)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	go func() {
		if err := s.service.Run(context.Background(), t.ID); err != nil {
			logger.Error("background task run failed", err, logger.String("task", t.ID))
		}
	}()

	writeJSON(w, http.StatusAccepted, t)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	t, err := s.service.GetTask(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// taskData is the GET data payload: the editable translation snapshot plus
// the region positions an editor needs to lay it out.
type taskData struct {
	Translation *task.TranslationData `json:"translation"`
	Positions   *task.PositionData    `json:"positions"`
}

func (s *Server) handleGetData(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	translation, err := s.service.GetTranslationData(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	positions, err := s.service.GetPositionData(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, taskData{Translation: translation, Positions: positions})
}

// handlePutData applies an edited translation snapshot and regenerates the
// document. Validation failures leave the stored data untouched and return
// 400; the regenerated task record is returned on success.
func (s *Server) handlePutData(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var edited task.TranslationData
	if err := json.NewDecoder(r.Body).Decode(&edited); err != nil {
		writeError(w, http.StatusBadRequest, "malformed translation data")
		return
	}

	if err := s.service.Regenerate(r.Context(), id, &edited); err != nil {
		writeServiceError(w, err)
		return
	}

	t, err := s.service.GetTask(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Cancel(chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	t, err := s.service.GetTask(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if t.Status != task.StatusCompleted {
		writeError(w, http.StatusConflict, fmt.Sprintf("task is %s, not completed", t.Status))
		return
	}

	data, err := s.service.TranslatedPDF(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="translated.pdf"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps pipeline errors onto HTTP statuses: invalid input
// is the caller's fault, missing state is 404, the rest is 500.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case types.IsCode(err, types.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case types.IsCode(err, types.ErrStorage):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
