package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/expenseflow/internal/api/middleware"
	"github.com/dvloznov/expenseflow/internal/extraction"
	"github.com/dvloznov/expenseflow/internal/jobs"
	"github.com/dvloznov/expenseflow/internal/pipeline"
	"github.com/dvloznov/expenseflow/internal/store"
)

// maxUploadBytes caps the accepted upload size (10 MiB).
const maxUploadBytes = 10 << 20

// ExpensesHandler handles expense-related endpoints.
type ExpensesHandler struct {
	store     store.ExpenseStore
	svc       *pipeline.Service
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewExpensesHandler creates a new expenses handler. publisher may be nil
// when the async ingestion path is disabled.
func NewExpensesHandler(st store.ExpenseStore, svc *pipeline.Service, publisher jobs.Publisher, log zerolog.Logger) *ExpensesHandler {
	return &ExpensesHandler{
		store:     st,
		svc:       svc,
		publisher: publisher,
		log:       log,
	}
}

// ListExpenses handles GET /api/expenses
func (h *ExpensesHandler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	opts := store.ListOptions{SortBy: store.SortByDate, Descending: true}

	query := r.URL.Query()
	switch query.Get("sort") {
	case "", "date":
	case "value":
		opts.SortBy = store.SortByValue
	case "description":
		opts.SortBy = store.SortByDescription
	default:
		middleware.WriteError(w, http.StatusBadRequest, "Invalid sort field")
		return
	}
	if order := query.Get("order"); order == "asc" {
		opts.Descending = false
	}

	expenses, err := h.store.ListAll(ctx, opts)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list expenses")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list expenses")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"expenses": expenses,
		"count":    len(expenses),
	})
}

// DeleteAll handles DELETE /api/expenses
func (h *ExpensesHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	deleted, err := h.store.DeleteAll(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to delete expenses")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to delete expenses")
		return
	}

	h.log.Info().Int64("deleted", deleted).Msg("Deleted all expenses")
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"deleted_count": deleted,
	})
}

// ProcessText handles POST /api/expenses/text
func (h *ExpensesHandler) ProcessText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TextInput   string `json:"text_input"`
		SaveAtFront bool   `json:"save_at_front"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// save_at_front means the client keeps the records itself; the server
	// runs the full pipeline but skips persistence.
	outcome, err := h.svc.ProcessText(r.Context(), req.TextInput, !req.SaveAtFront)
	if err != nil {
		h.writePipelineError(w, err)
		return
	}

	middleware.WriteJSON(w, outcomeStatusCode(outcome), outcome)
}

// UploadFile handles POST /api/expenses/upload
func (h *ExpensesHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "File is required")
		return
	}
	defer file.Close()

	if !acceptableUpload(header.Filename, header.Header.Get("Content-Type")) {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid file type. Only .csv and .txt files are supported.")
		return
	}

	saveAtFront := false
	if v := r.FormValue("save_at_front"); v != "" {
		saveAtFront, _ = strconv.ParseBool(v)
	}

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read uploaded file")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read uploaded file")
		return
	}
	if len(data) > maxUploadBytes {
		middleware.WriteError(w, http.StatusBadRequest, "File too large")
		return
	}

	outcome, err := h.svc.ProcessFile(r.Context(), header.Filename, data, !saveAtFront)
	if err != nil {
		h.writePipelineError(w, err)
		return
	}

	middleware.WriteJSON(w, outcomeStatusCode(outcome), outcome)
}

// IngestGCS handles POST /api/expenses/ingest
func (h *ExpensesHandler) IngestGCS(w http.ResponseWriter, r *http.Request) {
	if h.publisher == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Async ingestion is not configured")
		return
	}

	var req struct {
		GCSURI      string `json:"gcs_uri"`
		SaveAtFront bool   `json:"save_at_front"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !strings.HasPrefix(req.GCSURI, "gs://") {
		middleware.WriteError(w, http.StatusBadRequest, "gcs_uri must be a gs:// URI")
		return
	}

	job := &jobs.IngestDocumentJob{
		GCSURI:  req.GCSURI,
		Persist: !req.SaveAtFront,
	}

	if err := h.publisher.PublishIngest(r.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue ingestion job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue ingestion job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("gcs_uri", req.GCSURI).Msg("Ingestion job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// writePipelineError maps pipeline entry errors to HTTP responses.
func (h *ExpensesHandler) writePipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrEmptyInput):
		middleware.WriteError(w, http.StatusBadRequest, "Input is empty")
	case errors.Is(err, pipeline.ErrInvalidEncoding):
		middleware.WriteError(w, http.StatusBadRequest, "File is not valid UTF-8 text")
	case errors.Is(err, extraction.ErrUnavailable):
		h.log.Error().Err(err).Msg("Extraction service unavailable")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Extraction service unavailable")
	default:
		h.log.Error().Err(err).Msg("Pipeline failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// outcomeStatusCode maps a batch outcome to its HTTP status code: fully
// rejected batches are client errors, mixed batches are multi-status.
func outcomeStatusCode(o *pipeline.Outcome) int {
	switch o.Status {
	case pipeline.StatusError:
		return http.StatusBadRequest
	case pipeline.StatusPartialSuccess:
		return http.StatusMultiStatus
	default:
		return http.StatusOK
	}
}

// acceptableUpload gates uploads to CSV and plain-text statements.
func acceptableUpload(filename, contentType string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
	default:
		return false
	}

	if contentType == "" {
		return true
	}
	// Content-Type may carry parameters, e.g. "text/csv; charset=utf-8".
	mediaType := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	switch mediaType {
	case "text/csv", "text/plain", "application/octet-stream":
		return true
	}
	return false
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
