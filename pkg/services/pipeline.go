package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/psearch-ai/transform-engine/pkg/models"
	"github.com/psearch-ai/transform-engine/pkg/tasks"
)

const (
	// DefaultMaxFixAttempts bounds the validate/fix loop.
	DefaultMaxFixAttempts = 3

	// DefaultPipelineTimeout is the wall-clock ceiling for one full run.
	DefaultPipelineTimeout = 10 * time.Minute

	// TaskTypeSQLTransformation labels pipeline tasks in the store.
	TaskTypeSQLTransformation = "sql_transformation"

	sampleRowLimit = 3
)

// PipelineParams are the inputs for one transformation run.
type PipelineParams struct {
	SourceTable       string
	DestinationTable  string
	SourceFields      []string
	DestinationSchema *models.DestinationSchema // nil for the default schema
	SampleRows        []map[string]any          // nil to fetch from the warehouse
	CriticalFields    []string                  // nil for DefaultCriticalFields
	MaxFixAttempts    int                       // <=0 for DefaultMaxFixAttempts
}

// Pipeline orchestrates generation, enhancement, validation, and fixing,
// reporting progress through the task store.
type Pipeline struct {
	generator      *Generator
	analyzer       *FieldAnalyzer
	enhancer       *Enhancer
	validator      *Validator
	fixer          *Fixer
	sampler        SampleFetcher
	store          tasks.Store
	timeout        time.Duration
	maxFixAttempts int
	defaultSchema  *models.DestinationSchema
	logger         *zap.Logger
}

// PipelineOption customizes a Pipeline.
type PipelineOption func(*Pipeline)

// WithPipelineTimeout bounds each background run.
func WithPipelineTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) { p.timeout = d }
}

// WithMaxFixAttempts sets the fix budget used when a run does not specify one.
func WithMaxFixAttempts(n int) PipelineOption {
	return func(p *Pipeline) { p.maxFixAttempts = n }
}

// WithDefaultSchema sets the destination schema used when a run does not
// provide one.
func WithDefaultSchema(schema *models.DestinationSchema) PipelineOption {
	return func(p *Pipeline) { p.defaultSchema = schema }
}

func NewPipeline(
	generator *Generator,
	analyzer *FieldAnalyzer,
	enhancer *Enhancer,
	validator *Validator,
	fixer *Fixer,
	sampler SampleFetcher,
	store tasks.Store,
	logger *zap.Logger,
	opts ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		generator:      generator,
		analyzer:       analyzer,
		enhancer:       enhancer,
		validator:      validator,
		fixer:          fixer,
		sampler:        sampler,
		store:          store,
		timeout:        DefaultPipelineTimeout,
		maxFixAttempts: DefaultMaxFixAttempts,
		logger:         logger.Named("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start registers a task and runs the pipeline in the background, returning
// the task id immediately.
func (p *Pipeline) Start(params PipelineParams) string {
	taskID := uuid.NewString()
	p.store.Init(taskID, TaskTypeSQLTransformation, map[string]any{
		"source_table":      params.SourceTable,
		"destination_table": params.DestinationTable,
		"source_fields":     params.SourceFields,
	})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		p.Execute(ctx, taskID, params)
	}()
	return taskID
}

// Execute runs the full pipeline for an already-initialized task. It always
// leaves the task in a terminal status: completed, failed, or
// failed_validation_final_sql_available.
func (p *Pipeline) Execute(ctx context.Context, taskID string, params PipelineParams) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("pipeline panicked: %v", r)
			p.logger.Error("pipeline panic", zap.String("task_id", taskID), zap.Any("panic", r))
			p.store.AddLog(taskID, "FATAL ERROR in pipeline: "+msg)
			p.store.UpdateStatus(taskID, models.StatusFailed, nil, &msg)
		}
	}()

	logger := p.logger.With(zap.String("task_id", taskID))
	p.store.AddLog(taskID, fmt.Sprintf("SQL Transformation Pipeline started for %s to %s.", params.SourceTable, params.DestinationTable))
	p.store.UpdateStatus(taskID, models.StatusPipelineStarted, nil, nil)

	schema := params.DestinationSchema
	if schema == nil {
		schema = p.defaultSchema
	}
	if schema == nil {
		var err error
		schema, err = models.DefaultSchema()
		if err != nil {
			p.fail(taskID, fmt.Errorf("no destination schema available: %w", err))
			return
		}
	}

	maxFixAttempts := params.MaxFixAttempts
	if maxFixAttempts <= 0 {
		maxFixAttempts = p.maxFixAttempts
	}
	if maxFixAttempts <= 0 {
		maxFixAttempts = DefaultMaxFixAttempts
	}

	// Step 1: initial generation
	p.store.UpdateStatus(taskID, models.StatusGenerating, nil, nil)
	p.store.AddLog(taskID, "Step 1: Generating initial SQL.")
	currentSQL, err := p.generator.Generate(ctx, params.SourceTable, params.DestinationTable, params.SourceFields, schema)
	if err != nil {
		p.fail(taskID, fmt.Errorf("initial SQL generation failed: %w", err))
		return
	}
	p.store.AddLog(taskID, fmt.Sprintf("Initial SQL generated (preview: %s).", models.Preview(currentSQL, 100)))

	// Sample rows feed enhancement only; failing to get them is not fatal.
	sampleRows := params.SampleRows
	if sampleRows == nil && p.sampler != nil {
		p.store.AddLog(taskID, "Source data sample not provided by caller, attempting to fetch from BigQuery.")
		rows, err := p.sampler.FetchSample(ctx, params.SourceTable, sampleRowLimit)
		switch {
		case err != nil:
			p.store.AddLog(taskID, "WARNING: Failed to fetch source data sample: "+err.Error())
			logger.Warn("sample fetch failed", zap.Error(err))
		case len(rows) == 0:
			p.store.AddLog(taskID, "No rows returned from source data sample query. Semantic enhancement might be skipped.")
		default:
			sampleRows = rows
			p.store.AddLog(taskID, fmt.Sprintf("Successfully fetched %d sample rows from source table.", len(rows)))
		}
	}

	// Steps 2 and 3: analysis and enhancement, only when a sample exists
	if len(sampleRows) > 0 {
		p.store.UpdateStatus(taskID, models.StatusAnalyzing, nil, nil)
		p.store.AddLog(taskID, "Step 2: Identifying fields for semantic refinement.")
		defaulted := p.analyzer.IdentifyDefaultedFields(currentSQL, params.CriticalFields)
		p.store.AddLog(taskID, fmt.Sprintf("Defaulted critical fields found: %v.", orNone(defaulted)))

		if len(defaulted) > 0 {
			p.store.UpdateStatus(taskID, models.StatusEnhancing, nil, nil)
			p.store.AddLog(taskID, fmt.Sprintf("Step 3: Performing semantic enhancement for: %v.", defaulted))
			enhanced, enhanceErr := p.enhancer.Enhance(ctx, currentSQL, params.SourceTable, params.SourceFields, sampleRows, defaulted, schema)
			currentSQL = enhanced // original SQL comes back on error
			if enhanceErr != nil {
				p.store.AddLog(taskID, fmt.Sprintf("WARNING: Semantic enhancement issue: %s. Continuing with previous SQL.", enhanceErr))
				logger.Warn("semantic enhancement failed", zap.Error(enhanceErr))
			} else {
				p.store.AddLog(taskID, fmt.Sprintf("Semantic enhancement applied (preview: %s).", models.Preview(currentSQL, 100)))
			}
		} else {
			p.store.AddLog(taskID, "Skipping semantic enhancement: No critical fields identified as needing refinement.")
		}
	} else {
		p.store.AddLog(taskID, "Skipping semantic enhancement: No source data sample could be provided or fetched.")
	}

	// Steps 4 and 5: validate, then fix, up to maxFixAttempts fixes
	var lastError string
	for attempt := 0; attempt <= maxFixAttempts; attempt++ {
		p.store.UpdateStatus(taskID, models.StatusValidatingAttempt(attempt+1), nil, nil)
		if attempt == 0 {
			p.store.AddLog(taskID, "Step 4: Initial Validation.")
		} else {
			p.store.AddLog(taskID, fmt.Sprintf("Step 4: Validation Attempt %d.", attempt+1))
		}

		validation := p.validator.Validate(ctx, currentSQL)
		if validation.Valid {
			p.store.AddLog(taskID, "SQL validation successful. "+validation.Message)
			p.store.UpdateStatus(taskID, models.StatusCompleted, &currentSQL, nil)
			logger.Info("pipeline completed successfully")
			return
		}

		lastError = validation.ErrorMessage
		if lastError == "" {
			lastError = "Unknown validation error"
		}
		p.store.AddLog(taskID, "SQL validation failed: "+lastError)
		logger.Warn("validation failed", zap.Int("attempt", attempt+1), zap.String("error", models.Preview(lastError, 200)))

		if attempt >= maxFixAttempts {
			break
		}

		p.store.UpdateStatus(taskID, models.StatusFixingAttempt(attempt+1), nil, nil)
		p.store.AddLog(taskID, fmt.Sprintf("Step 5: Attempting SQL fix (Attempt %d/%d). Error: %s...", attempt+1, maxFixAttempts, models.Preview(lastError, 100)))

		fix, fixErr := p.fixer.Fix(ctx, currentSQL, lastError)
		if fixErr != nil {
			p.fail(taskID, fmt.Errorf("SQL fixing attempt %d failed: %w", attempt+1, fixErr))
			return
		}
		p.store.AddLog(taskID, fmt.Sprintf("SQL fix attempt %d applied (preview: %s).", attempt+1, models.Preview(fix.SQL, 100)))
		currentSQL = fix.SQL
	}

	// Fix budget exhausted: the last script stays available for manual work.
	finalMsg := fmt.Sprintf("Max fix attempts (%d) reached. SQL remains invalid. Last error: %s", maxFixAttempts, lastError)
	logger.Error("pipeline exhausted fix attempts", zap.String("last_error", models.Preview(lastError, 200)))
	p.store.AddLog(taskID, "ERROR: "+finalMsg)
	p.store.UpdateStatus(taskID, models.StatusFailedValidationFinalSQL, &currentSQL, &lastError)
}

func (p *Pipeline) fail(taskID string, err error) {
	msg := err.Error()
	p.logger.Error("pipeline failed", zap.String("task_id", taskID), zap.Error(err))
	p.store.AddLog(taskID, "FATAL ERROR in pipeline: "+msg)
	p.store.UpdateStatus(taskID, models.StatusFailed, nil, &msg)
}

func orNone(fields []string) any {
	if len(fields) == 0 {
		return "None"
	}
	return fields
}
