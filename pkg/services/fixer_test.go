package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/psearch-ai/transform-engine/pkg/llm"
)

func TestFixUsesToolCall(t *testing.T) {
	mock := &llm.MockTextGenerator{
		GenerateFunc: func(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResult, error) {
			require.NotNil(t, req.Tool)
			assert.Equal(t, "sql_fix_output", req.Tool.Name)
			return &llm.GenerateResult{
				ToolCall: &llm.ToolCall{
					Name:      "sql_fix_output",
					Arguments: `{"fixed_sql": "SELECT name FROM t", "changes": ["replaced bad column"], "reasoning": "column did not exist"}`,
				},
				FinishReason: llm.FinishReasonToolCall,
			}, nil
		},
	}
	f := NewFixer(mock, zap.NewNop())

	fix, err := f.Fix(context.Background(), "SELECT bad FROM t", "Unrecognized name: bad")
	require.NoError(t, err)
	assert.Equal(t, "SELECT name FROM t", fix.SQL)
	assert.Equal(t, []string{"replaced bad column"}, fix.Changes)
	assert.Equal(t, "column did not exist", fix.Reasoning)
}

func TestFixFallsBackToMarkdownText(t *testing.T) {
	mock := &llm.MockTextGenerator{
		GenerateFunc: func(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResult, error) {
			return &llm.GenerateResult{
				Text:         "Here is the fix:\n```sql\nSELECT name FROM t\n```",
				FinishReason: llm.FinishReasonStop,
			}, nil
		},
	}
	f := NewFixer(mock, zap.NewNop())

	fix, err := f.Fix(context.Background(), "SELECT bad FROM t", "Unrecognized name: bad")
	require.NoError(t, err)
	assert.Equal(t, "SELECT name FROM t", fix.SQL)
	assert.Empty(t, fix.Changes)
}

func TestFixFallsBackToRawText(t *testing.T) {
	mock := &llm.MockTextGenerator{
		GenerateFunc: func(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResult, error) {
			return &llm.GenerateResult{
				Text:         "SELECT name FROM t",
				FinishReason: llm.FinishReasonStop,
			}, nil
		},
	}
	f := NewFixer(mock, zap.NewNop())

	fix, err := f.Fix(context.Background(), "SELECT bad FROM t", "Unrecognized name: bad")
	require.NoError(t, err)
	assert.Equal(t, "SELECT name FROM t", fix.SQL)
}

func TestFixMalformedToolArgsFallsBack(t *testing.T) {
	mock := &llm.MockTextGenerator{
		GenerateFunc: func(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResult, error) {
			return &llm.GenerateResult{
				ToolCall:     &llm.ToolCall{Name: "sql_fix_output", Arguments: `{not json`},
				Text:         "```sql\nSELECT 1\n```",
				FinishReason: llm.FinishReasonToolCall,
			}, nil
		},
	}
	f := NewFixer(mock, zap.NewNop())

	fix, err := f.Fix(context.Background(), "SELECT bad", "boom")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", fix.SQL)
}

func TestFixRecoversStatementFromProse(t *testing.T) {
	mock := &llm.MockTextGenerator{
		GenerateFunc: func(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResult, error) {
			return &llm.GenerateResult{
				Text:         "The column was renamed. Use this instead:\nSELECT name FROM t",
				FinishReason: llm.FinishReasonStop,
			}, nil
		},
	}
	f := NewFixer(mock, zap.NewNop())

	fix, err := f.Fix(context.Background(), "SELECT bad FROM t", "Unrecognized name: bad")
	require.NoError(t, err)
	assert.Equal(t, "SELECT name FROM t", fix.SQL)
}

func TestFixRejectsNonSQL(t *testing.T) {
	mock := &llm.MockTextGenerator{
		GenerateFunc: func(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResult, error) {
			return &llm.GenerateResult{
				Text:         "I cannot fix this query, sorry.",
				FinishReason: llm.FinishReasonStop,
			}, nil
		},
	}
	f := NewFixer(mock, zap.NewNop())

	_, err := f.Fix(context.Background(), "SELECT bad", "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable SQL")
}

func TestFixPropagatesGenerationError(t *testing.T) {
	mock := &llm.MockTextGenerator{
		GenerateFunc: func(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResult, error) {
			return nil, errors.New("model unavailable")
		},
	}
	f := NewFixer(mock, zap.NewNop())

	_, err := f.Fix(context.Background(), "SELECT bad", "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")
}

func TestFixNormalizesOutput(t *testing.T) {
	mock := &llm.MockTextGenerator{
		GenerateFunc: func(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResult, error) {
			return &llm.GenerateResult{
				ToolCall: &llm.ToolCall{
					Name:      "sql_fix_output",
					Arguments: `{"fixed_sql": "CREATE OR REPLACE TABLE` + "`a.b.c`" + `AS SELECT 1", "changes": []}`,
				},
				FinishReason: llm.FinishReasonToolCall,
			}, nil
		},
	}
	f := NewFixer(mock, zap.NewNop())

	fix, err := f.Fix(context.Background(), "x", "y")
	require.NoError(t, err)
	assert.Equal(t, "CREATE OR REPLACE TABLE `a.b.c` AS SELECT 1", fix.SQL)
}

func TestSimpleFix(t *testing.T) {
	mock := &llm.MockTextGenerator{
		GenerateFunc: func(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResult, error) {
			assert.Nil(t, req.Tool)
			assert.InDelta(t, 0.1, float64(req.Temperature), 0.001)
			return &llm.GenerateResult{
				Text:         "```sql\nSELECT fixed FROM t\n```",
				FinishReason: llm.FinishReasonStop,
			}, nil
		},
	}
	f := NewFixer(mock, zap.NewNop())

	sql, err := f.SimpleFix(context.Background(), "SELECT broken FROM t", "Unrecognized name: broken")
	require.NoError(t, err)
	assert.Equal(t, "SELECT fixed FROM t", sql)
}

func TestSimpleFixRejectsProse(t *testing.T) {
	mock := &llm.MockTextGenerator{
		GenerateFunc: func(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResult, error) {
			return &llm.GenerateResult{Text: "Sorry, cannot help.", FinishReason: llm.FinishReasonStop}, nil
		},
	}
	f := NewFixer(mock, zap.NewNop())

	_, err := f.SimpleFix(context.Background(), "SELECT 1", "boom")
	require.Error(t, err)
}
