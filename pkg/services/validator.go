package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultValidationTimeout bounds a single dry-run call.
const DefaultValidationTimeout = 30 * time.Second

// SyntaxErrorDetail locates a syntax error inside the script.
type SyntaxErrorDetail struct {
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// ValidationResult is the outcome of a dry-run validation. ErrorMessage
// always keeps the raw warehouse text; the parsed fields are conveniences
// for callers and fix prompts.
type ValidationResult struct {
	Valid            bool               `json:"valid"`
	Message          string             `json:"message,omitempty"`
	ErrorMessage     string             `json:"error_message,omitempty"`
	ErrorType        string             `json:"error_type,omitempty"`
	InvalidField     string             `json:"invalid_field,omitempty"`
	UnrecognizedName string             `json:"unrecognized_name,omitempty"`
	SyntaxError      *SyntaxErrorDetail `json:"syntax_error,omitempty"`
	ErrorLocation    string             `json:"error_location,omitempty"`
	BytesProcessed   int64              `json:"estimated_bytes_processed,omitempty"`
	JobID            string             `json:"job_id,omitempty"`
	JobLocation      string             `json:"job_location,omitempty"`
}

var (
	invalidFieldRe     = regexp.MustCompile(`(?i)Invalid field name "([^"]+)"(?: \[at (\d+):(\d+)\])?`)
	unrecognizedNameRe = regexp.MustCompile(`Unrecognized name: ([a-zA-Z0-9_.]+)(?: \[at (\d+):(\d+)\])?`)
	syntaxErrorRe      = regexp.MustCompile(`Syntax error: ([^\[]+)(?:\[at (\d+):(\d+)\])?`)
)

// Validator checks SQL against the warehouse without executing it.
type Validator struct {
	runner  DryRunner
	timeout time.Duration
	logger  *zap.Logger
}

func NewValidator(runner DryRunner, logger *zap.Logger) *Validator {
	return &Validator{
		runner:  runner,
		timeout: DefaultValidationTimeout,
		logger:  logger.Named("validator"),
	}
}

// Validate never returns an error: every failure mode folds into an invalid
// ValidationResult so the fix loop always has something to work with.
func (v *Validator) Validate(ctx context.Context, sql string) *ValidationResult {
	if strings.TrimSpace(sql) == "" {
		v.logger.Warn("sql script is empty, validation skipped")
		return &ValidationResult{
			Valid:        false,
			Message:      "SQL script is empty.",
			ErrorMessage: "SQL script is empty.",
		}
	}

	stats, err := v.runner.DryRun(ctx, sql, v.timeout)
	if err == nil {
		result := &ValidationResult{
			Valid:          true,
			BytesProcessed: stats.TotalBytesProcessed,
			JobID:          stats.JobID,
			JobLocation:    stats.Location,
		}
		result.Message = fmt.Sprintf("SQL syntax validated successfully (estimated bytes: %d)", stats.TotalBytesProcessed)
		v.logger.Info("dry run validation passed",
			zap.Int64("estimated_bytes", stats.TotalBytesProcessed),
			zap.String("job_id", stats.JobID))
		return result
	}

	var invalid *InvalidQueryError
	if errors.As(err, &invalid) {
		v.logger.Warn("dry run rejected sql", zap.String("error", invalid.Message))
		return v.parseRejection(invalid.Message)
	}

	// Infrastructure failures (network, auth, timeout) are still reported as
	// invalid with the error type so callers can tell them apart.
	v.logger.Error("dry run failed", zap.Error(err))
	return &ValidationResult{
		Valid:        false,
		Message:      fmt.Sprintf("An unexpected error occurred during SQL validation: %T.", err),
		ErrorMessage: err.Error(),
		ErrorType:    fmt.Sprintf("%T", err),
	}
}

func (v *Validator) parseRejection(raw string) *ValidationResult {
	result := &ValidationResult{
		Valid:        false,
		Message:      "SQL validation failed.",
		ErrorMessage: raw,
	}
	if m := invalidFieldRe.FindStringSubmatch(raw); m != nil {
		result.InvalidField = m[1]
		if m[2] != "" {
			result.ErrorLocation = m[2] + ":" + m[3]
		}
	}
	if m := unrecognizedNameRe.FindStringSubmatch(raw); m != nil {
		result.UnrecognizedName = m[1]
		if m[2] != "" {
			result.ErrorLocation = m[2] + ":" + m[3]
		}
	}
	if m := syntaxErrorRe.FindStringSubmatch(raw); m != nil {
		detail := &SyntaxErrorDetail{Message: strings.TrimSpace(m[1])}
		if m[2] != "" {
			detail.Line, _ = strconv.Atoi(m[2])
			detail.Column, _ = strconv.Atoi(m[3])
			result.ErrorLocation = m[2] + ":" + m[3]
		}
		result.SyntaxError = detail
	}
	return result
}

