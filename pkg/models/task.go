package models

import (
	"fmt"
	"strings"
	"time"
)

// Status is a pipeline phase name. The validate/fix loop produces numbered
// phases, so the full set is open-ended; use the constructor helpers for
// those and the constants for everything else.
type Status string

const (
	StatusReceived        Status = "received"
	StatusPipelineStarted Status = "pipeline_started"
	StatusGenerating      Status = "generating_initial_sql"
	StatusAnalyzing       Status = "analyzing_for_semantic_enhancement"
	StatusEnhancing       Status = "performing_semantic_enhancement"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"

	// StatusFailedValidationFinalSQL means the fix-attempt budget ran out but
	// the last (still invalid) script is preserved in Result for manual
	// follow-up.
	StatusFailedValidationFinalSQL Status = "failed_validation_final_sql_available"
)

// StatusValidatingAttempt returns the phase for validation attempt n (1-based;
// attempt 1 is the initial validation).
func StatusValidatingAttempt(n int) Status {
	return Status(fmt.Sprintf("validating_sql_attempt_%d", n))
}

// StatusFixingAttempt returns the phase for fix attempt n (1-based).
func StatusFixingAttempt(n int) Status {
	return Status(fmt.Sprintf("fixing_sql_attempt_%d", n))
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusFailedValidationFinalSQL
}

// Failure reports whether s is a failure outcome.
func (s Status) Failure() bool {
	return s == StatusFailed || s == StatusFailedValidationFinalSQL
}

// LogEntry is one append-only task log line.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Task tracks one asynchronous pipeline run.
type Task struct {
	TaskID       string         `json:"task_id"`
	TaskType     string         `json:"task_type"`
	Status       Status         `json:"status"`
	InputDetails map[string]any `json:"input_details"`
	Result       *string        `json:"result"`
	Error        *string        `json:"error"`
	Logs         []LogEntry     `json:"logs"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Clone returns a deep copy safe to hand to callers while the pipeline keeps
// mutating the original.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.Result != nil {
		r := *t.Result
		c.Result = &r
	}
	if t.Error != nil {
		e := *t.Error
		c.Error = &e
	}
	c.Logs = make([]LogEntry, len(t.Logs))
	copy(c.Logs, t.Logs)
	c.InputDetails = make(map[string]any, len(t.InputDetails))
	for k, v := range t.InputDetails {
		c.InputDetails[k] = v
	}
	return &c
}

// Summary projects the fields a listing endpoint needs.
func (t *Task) Summary() TaskSummary {
	s := TaskSummary{
		TaskID:    t.TaskID,
		TaskType:  t.TaskType,
		Status:    t.Status,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
	if t.Error != nil {
		s.Error = *t.Error
	}
	return s
}

// TaskSummary is the diagnostic listing view of a task.
type TaskSummary struct {
	TaskID    string    `json:"task_id"`
	TaskType  string    `json:"task_type"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Error     string    `json:"error,omitempty"`
}

// Preview truncates s for log lines so full SQL scripts never land in logs.
func Preview(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
