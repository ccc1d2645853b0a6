package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusConstructors(t *testing.T) {
	assert.Equal(t, Status("validating_sql_attempt_1"), StatusValidatingAttempt(1))
	assert.Equal(t, Status("validating_sql_attempt_4"), StatusValidatingAttempt(4))
	assert.Equal(t, Status("fixing_sql_attempt_2"), StatusFixingAttempt(2))
}

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusFailed, StatusFailedValidationFinalSQL}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "expected %s to be terminal", s)
	}

	running := []Status{
		StatusReceived,
		StatusPipelineStarted,
		StatusGenerating,
		StatusAnalyzing,
		StatusEnhancing,
		StatusValidatingAttempt(3),
		StatusFixingAttempt(1),
	}
	for _, s := range running {
		assert.False(t, s.Terminal(), "expected %s to not be terminal", s)
	}
}

func TestStatusFailure(t *testing.T) {
	assert.True(t, StatusFailed.Failure())
	assert.True(t, StatusFailedValidationFinalSQL.Failure())
	assert.False(t, StatusCompleted.Failure())
	assert.False(t, StatusGenerating.Failure())
}

func TestTaskClone(t *testing.T) {
	result := "SELECT 1"
	errMsg := "boom"
	original := &Task{
		TaskID:       "t-1",
		TaskType:     "sql_transformation",
		Status:       StatusCompleted,
		InputDetails: map[string]any{"source_table": "p.d.src"},
		Result:       &result,
		Error:        &errMsg,
		Logs:         []LogEntry{{Timestamp: time.Now(), Message: "one"}},
	}

	clone := original.Clone()
	require.NotNil(t, clone)

	*clone.Result = "mutated"
	*clone.Error = "mutated"
	clone.InputDetails["source_table"] = "other"
	clone.Logs[0].Message = "mutated"

	assert.Equal(t, "SELECT 1", *original.Result)
	assert.Equal(t, "boom", *original.Error)
	assert.Equal(t, "p.d.src", original.InputDetails["source_table"])
	assert.Equal(t, "one", original.Logs[0].Message)
}

func TestTaskCloneNil(t *testing.T) {
	var task *Task
	assert.Nil(t, task.Clone())
}

func TestTaskSummary(t *testing.T) {
	errMsg := "validation failed"
	task := &Task{
		TaskID:   "t-1",
		TaskType: "sql_transformation",
		Status:   StatusFailed,
		Error:    &errMsg,
	}

	s := task.Summary()
	assert.Equal(t, "t-1", s.TaskID)
	assert.Equal(t, StatusFailed, s.Status)
	assert.Equal(t, "validation failed", s.Error)

	task.Error = nil
	assert.Empty(t, task.Summary().Error)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("short", 10))
	assert.Equal(t, "0123456789...", Preview("0123456789abcdef", 10))
	assert.Equal(t, "line one line two", Preview("line one\nline two", 50))
	assert.Equal(t, "", Preview("", 10))
}
