package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockDryRunner struct {
	DryRunFunc func(ctx context.Context, sql string, timeout time.Duration) (*DryRunStats, error)
	calls      int
}

func (m *mockDryRunner) DryRun(ctx context.Context, sql string, timeout time.Duration) (*DryRunStats, error) {
	m.calls++
	return m.DryRunFunc(ctx, sql, timeout)
}

type mockSampleFetcher struct {
	FetchSampleFunc func(ctx context.Context, table string, limit int) ([]map[string]any, error)
	calls           int
}

func (m *mockSampleFetcher) FetchSample(ctx context.Context, table string, limit int) ([]map[string]any, error) {
	m.calls++
	return m.FetchSampleFunc(ctx, table, limit)
}

func TestValidateEmptySQL(t *testing.T) {
	runner := &mockDryRunner{DryRunFunc: func(ctx context.Context, sql string, timeout time.Duration) (*DryRunStats, error) {
		t.Fatal("dry run must not be called for empty SQL")
		return nil, nil
	}}
	v := NewValidator(runner, zap.NewNop())

	result := v.Validate(context.Background(), "   \n ")
	assert.False(t, result.Valid)
	assert.Equal(t, "SQL script is empty.", result.ErrorMessage)
	assert.Equal(t, 0, runner.calls)
}

func TestValidateSuccess(t *testing.T) {
	runner := &mockDryRunner{DryRunFunc: func(ctx context.Context, sql string, timeout time.Duration) (*DryRunStats, error) {
		assert.Equal(t, DefaultValidationTimeout, timeout)
		return &DryRunStats{TotalBytesProcessed: 12345, JobID: "job-1", Location: "US"}, nil
	}}
	v := NewValidator(runner, zap.NewNop())

	result := v.Validate(context.Background(), "SELECT 1")
	assert.True(t, result.Valid)
	assert.Equal(t, int64(12345), result.BytesProcessed)
	assert.Equal(t, "job-1", result.JobID)
	assert.Contains(t, result.Message, "12345")
}

func TestValidateParsesInvalidField(t *testing.T) {
	raw := `Invalid field name "source.productName" [at 3:7]`
	runner := &mockDryRunner{DryRunFunc: func(ctx context.Context, sql string, timeout time.Duration) (*DryRunStats, error) {
		return nil, &InvalidQueryError{Message: raw}
	}}
	v := NewValidator(runner, zap.NewNop())

	result := v.Validate(context.Background(), "SELECT bad")
	assert.False(t, result.Valid)
	assert.Equal(t, raw, result.ErrorMessage)
	assert.Equal(t, "source.productName", result.InvalidField)
	assert.Equal(t, "3:7", result.ErrorLocation)
}

func TestValidateParsesUnrecognizedName(t *testing.T) {
	runner := &mockDryRunner{DryRunFunc: func(ctx context.Context, sql string, timeout time.Duration) (*DryRunStats, error) {
		return nil, &InvalidQueryError{Message: "Unrecognized name: some_column [at 1:23]"}
	}}
	v := NewValidator(runner, zap.NewNop())

	result := v.Validate(context.Background(), "SELECT some_column")
	assert.False(t, result.Valid)
	assert.Equal(t, "some_column", result.UnrecognizedName)
	assert.Equal(t, "1:23", result.ErrorLocation)
}

func TestValidateParsesSyntaxError(t *testing.T) {
	runner := &mockDryRunner{DryRunFunc: func(ctx context.Context, sql string, timeout time.Duration) (*DryRunStats, error) {
		return nil, &InvalidQueryError{Message: "Syntax error: Expected end of input but got keyword AS [at 5:1]"}
	}}
	v := NewValidator(runner, zap.NewNop())

	result := v.Validate(context.Background(), "SELECT 1 AS AS")
	assert.False(t, result.Valid)
	require.NotNil(t, result.SyntaxError)
	assert.Equal(t, "Expected end of input but got keyword AS", result.SyntaxError.Message)
	assert.Equal(t, 5, result.SyntaxError.Line)
	assert.Equal(t, 1, result.SyntaxError.Column)
}

func TestValidateKeepsRawTextWhenUnparseable(t *testing.T) {
	runner := &mockDryRunner{DryRunFunc: func(ctx context.Context, sql string, timeout time.Duration) (*DryRunStats, error) {
		return nil, &InvalidQueryError{Message: "something completely novel went wrong"}
	}}
	v := NewValidator(runner, zap.NewNop())

	result := v.Validate(context.Background(), "SELECT 1")
	assert.False(t, result.Valid)
	assert.Equal(t, "something completely novel went wrong", result.ErrorMessage)
	assert.Empty(t, result.InvalidField)
	assert.Nil(t, result.SyntaxError)
}

func TestValidateInfrastructureError(t *testing.T) {
	runner := &mockDryRunner{DryRunFunc: func(ctx context.Context, sql string, timeout time.Duration) (*DryRunStats, error) {
		return nil, errors.New("dial tcp: connection refused")
	}}
	v := NewValidator(runner, zap.NewNop())

	result := v.Validate(context.Background(), "SELECT 1")
	assert.False(t, result.Valid)
	assert.Contains(t, result.ErrorMessage, "connection refused")
	assert.NotEmpty(t, result.ErrorType)
}
