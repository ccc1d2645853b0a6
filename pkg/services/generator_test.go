package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/psearch-ai/transform-engine/pkg/llm"
	"github.com/psearch-ai/transform-engine/pkg/models"
)

func testSchema() *models.DestinationSchema {
	return &models.DestinationSchema{
		Fields: []models.SchemaField{
			{Name: "id", Type: "STRING", Mode: "REQUIRED"},
			{Name: "name", Type: "STRING"},
			{Name: "priceInfo", Type: "RECORD", Fields: []models.SchemaField{
				{Name: "price", Type: "FLOAT"},
				{Name: "currencyCode", Type: "STRING"},
			}},
		},
	}
}

func TestGenerateHappyPath(t *testing.T) {
	mock := &llm.MockTextGenerator{
		GenerateFunc: func(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResult, error) {
			assert.Contains(t, req.Prompt, "`proj.ds.source`")
			assert.Contains(t, req.Prompt, "`proj.ds.dest`")
			assert.Contains(t, req.Prompt, "`product_ID`")
			assert.InDelta(t, 0.2, float64(req.Temperature), 0.001)
			assert.Equal(t, 32768, req.MaxTokens)
			return &llm.GenerateResult{
				Text:         "```sql\nCREATE OR REPLACE TABLE `proj.ds.dest` AS SELECT source.product_ID AS id FROM `proj.ds.source` AS source\n```",
				FinishReason: llm.FinishReasonStop,
			}, nil
		},
	}
	g := NewGenerator(mock, zap.NewNop())

	sql, err := g.Generate(context.Background(), "proj.ds.source", "proj.ds.dest", []string{"product_ID"}, testSchema())
	require.NoError(t, err)
	assert.Contains(t, sql, "CREATE OR REPLACE TABLE `proj.ds.dest` AS SELECT")
}

func TestGenerateRawTextFallback(t *testing.T) {
	mock := &llm.MockTextGenerator{
		GenerateFunc: func(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResult, error) {
			return &llm.GenerateResult{
				Text:         "CREATE OR REPLACE TABLE `a.b.c` AS SELECT 1 AS id",
				FinishReason: llm.FinishReasonStop,
			}, nil
		},
	}
	g := NewGenerator(mock, zap.NewNop())

	sql, err := g.Generate(context.Background(), "s", "a.b.c", nil, testSchema())
	require.NoError(t, err)
	assert.Equal(t, "CREATE OR REPLACE TABLE `a.b.c` AS SELECT 1 AS id", sql)
}

func TestGenerateTruncationIsFailure(t *testing.T) {
	mock := &llm.MockTextGenerator{
		GenerateFunc: func(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResult, error) {
			return &llm.GenerateResult{
				Text:         "CREATE OR REPLACE TABLE `a.b.c` AS SELECT",
				FinishReason: llm.FinishReasonLength,
			}, nil
		},
	}
	g := NewGenerator(mock, zap.NewNop())

	_, err := g.Generate(context.Background(), "s", "d", nil, testSchema())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "truncated")
}

func TestGenerateRejectsProse(t *testing.T) {
	mock := &llm.MockTextGenerator{
		GenerateFunc: func(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResult, error) {
			return &llm.GenerateResult{Text: "I am unable to write that script.", FinishReason: llm.FinishReasonStop}, nil
		},
	}
	g := NewGenerator(mock, zap.NewNop())

	_, err := g.Generate(context.Background(), "s", "d", nil, testSchema())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not SQL")
}

func TestGenerateRequiresSchema(t *testing.T) {
	g := NewGenerator(&llm.MockTextGenerator{}, zap.NewNop())
	_, err := g.Generate(context.Background(), "s", "d", nil, nil)
	require.Error(t, err)
}

func TestGeneratePropagatesClientError(t *testing.T) {
	mock := &llm.MockTextGenerator{
		GenerateFunc: func(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResult, error) {
			return nil, errors.New("rate limited")
		},
	}
	g := NewGenerator(mock, zap.NewNop())

	_, err := g.Generate(context.Background(), "s", "d", nil, testSchema())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestEnhanceReturnsOriginalOnFailure(t *testing.T) {
	original := "SELECT NULL AS name FROM t"

	mock := &llm.MockTextGenerator{
		GenerateFunc: func(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResult, error) {
			return nil, errors.New("model unavailable")
		},
	}
	e := NewEnhancer(mock, zap.NewNop())

	got, err := e.Enhance(context.Background(), original, "s", []string{"ItemName"}, []map[string]any{{"ItemName": "x"}}, []string{"name"}, testSchema())
	require.Error(t, err)
	assert.Equal(t, original, got, "failed enhancement must hand back the original SQL")
}

func TestEnhanceReturnsOriginalOnProse(t *testing.T) {
	original := "SELECT NULL AS name FROM t"

	mock := &llm.MockTextGenerator{
		GenerateFunc: func(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResult, error) {
			return &llm.GenerateResult{Text: "No improvements possible.", FinishReason: llm.FinishReasonStop}, nil
		},
	}
	e := NewEnhancer(mock, zap.NewNop())

	got, err := e.Enhance(context.Background(), original, "s", nil, nil, []string{"name"}, testSchema())
	require.Error(t, err)
	assert.Equal(t, original, got)
}

func TestEnhanceSuccess(t *testing.T) {
	mock := &llm.MockTextGenerator{
		GenerateFunc: func(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResult, error) {
			assert.Contains(t, req.Prompt, "CRITICAL DESTINATION FIELDS TO REFINE: [name]")
			assert.Contains(t, req.Prompt, "ItemName")
			return &llm.GenerateResult{
				Text:         "```sql\nSELECT source.ItemName AS name FROM t AS source\n```",
				FinishReason: llm.FinishReasonStop,
			}, nil
		},
	}
	e := NewEnhancer(mock, zap.NewNop())

	got, err := e.Enhance(context.Background(),
		"SELECT NULL AS name FROM t AS source",
		"s", []string{"ItemName"},
		[]map[string]any{{"ItemName": "Cool Gadget"}},
		[]string{"name"}, testSchema())
	require.NoError(t, err)
	assert.Equal(t, "SELECT source.ItemName AS name FROM t AS source", got)
}

func TestEnhanceScreensInjectionInSample(t *testing.T) {
	mock := &llm.MockTextGenerator{
		GenerateFunc: func(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResult, error) {
			assert.NotContains(t, req.Prompt, "DROP TABLE")
			assert.Contains(t, req.Prompt, "[REDACTED]")
			return &llm.GenerateResult{Text: "SELECT 1", FinishReason: llm.FinishReasonStop}, nil
		},
	}
	e := NewEnhancer(mock, zap.NewNop())

	_, err := e.Enhance(context.Background(), "SELECT NULL AS name FROM t", "s",
		[]string{"desc"},
		[]map[string]any{{"desc": "x'; DROP TABLE products; --"}},
		[]string{"name"}, testSchema())
	require.NoError(t, err)
}
