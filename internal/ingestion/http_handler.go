package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/rpattn/bulkimport/internal/domain"
	"github.com/rpattn/bulkimport/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const defaultMaxUploadBytes = 32 << 20

// Handler exposes the import service over HTTP.
type Handler struct {
	service        *Service
	logger         *slog.Logger
	maxUploadBytes int64
	router         chi.Router
}

// HandlerOption customises a Handler.
type HandlerOption func(*Handler)

// WithHandlerLogger sets the logger used for request errors.
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMaxUploadBytes caps the multipart body size.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// NewHTTPHandler wraps the service.
func NewHTTPHandler(service *Service, opts ...HandlerOption) *Handler {
	h := &Handler{
		service:        service,
		logger:         slog.Default(),
		maxUploadBytes: defaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.router = chi.NewRouter()
	h.Routes(h.router)
	return h
}

// Routes mounts the import API on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/importers", h.handleListImporters)
	r.Get("/importers/{name}/template", h.handleTemplate)
	r.Post("/imports", h.handleStartImport)
	r.Get("/imports", h.handleListJobs)
	r.Get("/imports/{id}", h.handleGetJob)
	r.Get("/imports/{id}/progress", h.handleProgress)
	r.Post("/imports/{id}/rerun", h.handleRerun)
}

// ServeHTTP serves the API on its own router.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

type importerView struct {
	Name        string            `json:"name"`
	Label       string            `json:"label"`
	Description string            `json:"description,omitempty"`
	CanRerun    bool              `json:"can_rerun"`
	KeyField    string            `json:"key_field,omitempty"`
	Fields      []domain.FieldDef `json:"fields"`
}

// jobView adds the derived statistics and the capped error list to a job.
type jobView struct {
	domain.ImportJob
	ErrorDetails       ErrorDisplay `json:"error_details"`
	DurationSeconds    *float64     `json:"duration_seconds,omitempty"`
	SuccessRate        float64      `json:"success_rate"`
	ProgressPercentage float64      `json:"progress_percentage"`
}

func newJobView(job domain.ImportJob) jobView {
	view := jobView{
		ImportJob:          job,
		ErrorDetails:       DisplayErrors(job.ErrorDetails, DefaultErrorDisplayLimit),
		SuccessRate:        job.SuccessRate(),
		ProgressPercentage: job.ProgressPercentage(),
	}
	if elapsed, ok := job.Duration(); ok {
		seconds := elapsed.Seconds()
		view.DurationSeconds = &seconds
	}
	return view
}

func (h *Handler) handleListImporters(w http.ResponseWriter, r *http.Request) {
	importers := h.service.Importers()
	views := make([]importerView, 0, len(importers))
	for _, importer := range importers {
		views = append(views, importerView{
			Name:        importer.Name,
			Label:       importer.DisplayLabel(),
			Description: importer.Description,
			CanRerun:    importer.CanRerun,
			KeyField:    importer.KeyField,
			Fields:      importer.Schema.Fields(),
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleTemplate(w http.ResponseWriter, r *http.Request) {
	importer, err := h.service.Importer(chi.URLParam(r, "name"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	formatTag := r.URL.Query().Get("format")
	if formatTag == "" {
		formatTag = string(FormatDelimited)
	}
	format, err := ParseFormat(formatTag)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	body, err := GenerateTemplate(importer, format)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", TemplateFileName(importer, format)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) handleStartImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid form data: %v", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("file required: %v", err))
		return
	}
	defer file.Close()

	importerName := strings.TrimSpace(r.FormValue("importer"))
	if importerName == "" {
		writeError(w, http.StatusBadRequest, "importer is required")
		return
	}

	job, err := h.service.StartImport(r.Context(), ImportRequest{
		ImporterName: importerName,
		Format:       strings.TrimSpace(r.FormValue("format")),
		FileName:     header.Filename,
		Data:         file,
		CreatedBy:    strings.TrimSpace(r.FormValue("created_by")),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, newJobView(job))
}

func (h *Handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var statuses []domain.ImportJobStatus
	for _, raw := range strings.Split(query.Get("status"), ",") {
		if raw = strings.TrimSpace(raw); raw != "" {
			statuses = append(statuses, domain.ImportJobStatus(raw))
		}
	}

	limit, err := intParam(query.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	offset, err := intParam(query.Get("offset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	jobs, err := h.service.ListJobs(r.Context(), statuses, limit, offset)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	views := make([]jobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, newJobView(job))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	job, err := h.service.GetJob(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newJobView(job))
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	report, err := h.service.Progress(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleRerun(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	job, err := h.service.Rerun(r.Context(), id, strings.TrimSpace(r.URL.Query().Get("created_by")))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, newJobView(job))
}

func jobIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return uuid.Nil, false
	}
	return id, true
}

func intParam(raw string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrImporterNotFound), errors.Is(err, repository.ErrImportJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, ErrRerunNotAllowed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"request_id", middleware.GetReqID(r.Context()),
	)
	writeError(w, status, err.Error())
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
