package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/psearch-ai/transform-engine/pkg/models"
	"github.com/psearch-ai/transform-engine/pkg/services"
	"github.com/psearch-ai/transform-engine/pkg/tasks"
)

// GenerateRequest starts a transformation pipeline run. DestinationSchema
// and SourceDataSampleJSON are optional: without them the run uses the
// configured default schema and fetches its own sample rows.
type GenerateRequest struct {
	SourceTable          string                    `json:"source_table"`
	DestinationTable     string                    `json:"destination_table"`
	SourceFields         []string                  `json:"source_fields"`
	DestinationSchema    *models.DestinationSchema `json:"destination_schema,omitempty"`
	SourceDataSampleJSON string                    `json:"source_data_sample_json,omitempty"`
	CriticalFields       []string                  `json:"critical_fields,omitempty"`
	MaxFixAttempts       int                       `json:"max_fix_attempts,omitempty"`
}

// GenerateResponse acknowledges an accepted pipeline run.
type GenerateResponse struct {
	TaskID string `json:"task_id"`
}

// ValidateRequest asks for a synchronous dry-run validation.
type ValidateRequest struct {
	SQL string `json:"sql"`
}

// SimpleFixRequest asks for a one-shot fix of a failed script.
type SimpleFixRequest struct {
	SQL          string `json:"sql"`
	ErrorMessage string `json:"error_message"`
}

// SimpleFixResponse carries the corrected script.
type SimpleFixResponse struct {
	FixedSQL string `json:"fixed_sql"`
}

// AnalyzeRequest asks for an explanation of the differences between two
// versions of a script.
type AnalyzeRequest struct {
	OriginalSQL string `json:"original_sql"`
	FixedSQL    string `json:"fixed_sql"`
}

// SQLHandler serves the transformation API.
type SQLHandler struct {
	pipeline  *services.Pipeline
	validator *services.Validator
	fixer     *services.Fixer
	analyzer  *services.DiffAnalyzer
	store     tasks.Store
	logger    *zap.Logger
}

func NewSQLHandler(
	pipeline *services.Pipeline,
	validator *services.Validator,
	fixer *services.Fixer,
	analyzer *services.DiffAnalyzer,
	store tasks.Store,
	logger *zap.Logger,
) *SQLHandler {
	return &SQLHandler{
		pipeline:  pipeline,
		validator: validator,
		fixer:     fixer,
		analyzer:  analyzer,
		store:     store,
		logger:    logger.Named("handlers.sql"),
	}
}

// RegisterRoutes attaches the SQL endpoints to mux.
func (h *SQLHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sql/generate", h.Generate)
	mux.HandleFunc("GET /api/sql/tasks", h.ListTasks)
	mux.HandleFunc("GET /api/sql/tasks/{id}", h.GetTask)
	mux.HandleFunc("POST /api/sql/validate", h.Validate)
	mux.HandleFunc("POST /api/sql/simple-fix", h.SimpleFix)
	mux.HandleFunc("POST /api/sql/analyze", h.Analyze)
}

// Generate accepts a pipeline run and returns 202 with the task id.
func (h *SQLHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), h.logger)
		return
	}
	if req.SourceTable == "" || req.DestinationTable == "" {
		WriteError(w, http.StatusBadRequest, "source_table and destination_table are required", h.logger)
		return
	}
	if len(req.SourceFields) == 0 {
		WriteError(w, http.StatusBadRequest, "source_fields is required", h.logger)
		return
	}
	if req.DestinationSchema != nil && len(req.DestinationSchema.Fields) == 0 {
		WriteError(w, http.StatusBadRequest, "destination_schema must define at least one field", h.logger)
		return
	}

	var sampleRows []map[string]any
	if req.SourceDataSampleJSON != "" {
		if err := json.Unmarshal([]byte(req.SourceDataSampleJSON), &sampleRows); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid source_data_sample_json: "+err.Error(), h.logger)
			return
		}
	}

	taskID := h.pipeline.Start(services.PipelineParams{
		SourceTable:       req.SourceTable,
		DestinationTable:  req.DestinationTable,
		SourceFields:      req.SourceFields,
		DestinationSchema: req.DestinationSchema,
		SampleRows:        sampleRows,
		CriticalFields:    req.CriticalFields,
		MaxFixAttempts:    req.MaxFixAttempts,
	})

	h.logger.Info("pipeline run accepted",
		zap.String("task_id", taskID),
		zap.String("source_table", req.SourceTable),
		zap.String("destination_table", req.DestinationTable))
	WriteJSON(w, http.StatusAccepted, GenerateResponse{TaskID: taskID}, h.logger)
}

// GetTask returns the full task record, or 404.
func (h *SQLHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	task := h.store.Get(id)
	if task == nil {
		WriteError(w, http.StatusNotFound, "task not found: "+id, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, task, h.logger)
}

// ListTasks returns summaries of all tasks, newest first.
func (h *SQLHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	summaries := h.store.Summaries()
	if summaries == nil {
		summaries = []models.TaskSummary{}
	}
	WriteJSON(w, http.StatusOK, summaries, h.logger)
}

// Validate runs a synchronous dry-run validation of the posted SQL.
func (h *SQLHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), h.logger)
		return
	}
	result := h.validator.Validate(r.Context(), req.SQL)
	WriteJSON(w, http.StatusOK, result, h.logger)
}

// SimpleFix runs the one-shot fixer, typically after a run ended in
// failed_validation_final_sql_available.
func (h *SQLHandler) SimpleFix(w http.ResponseWriter, r *http.Request) {
	var req SimpleFixRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), h.logger)
		return
	}
	if req.SQL == "" || req.ErrorMessage == "" {
		WriteError(w, http.StatusBadRequest, "sql and error_message are required", h.logger)
		return
	}

	fixed, err := h.fixer.SimpleFix(r.Context(), req.SQL, req.ErrorMessage)
	if err != nil {
		h.logger.Error("simple fix failed", zap.Error(err))
		WriteError(w, http.StatusUnprocessableEntity, err.Error(), h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, SimpleFixResponse{FixedSQL: fixed}, h.logger)
}

// Analyze explains the differences between an original and a fixed script.
func (h *SQLHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), h.logger)
		return
	}
	if req.OriginalSQL == "" || req.FixedSQL == "" {
		WriteError(w, http.StatusBadRequest, "original_sql and fixed_sql are required", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, h.analyzer.Analyze(r.Context(), req.OriginalSQL, req.FixedSQL), h.logger)
}
