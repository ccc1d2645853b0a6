package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/psearch-ai/transform-engine/pkg/llm"
	"github.com/psearch-ai/transform-engine/pkg/models"
	"github.com/psearch-ai/transform-engine/pkg/sqltext"
)

const simpleFixTemperature = 0.1

// sqlFixTool is the structured-output tool the fixer steers the model toward.
var sqlFixTool = &llm.ToolSpec{
	Name:        "sql_fix_output",
	Description: "Return the corrected BigQuery GoogleSQL script together with the list of changes made.",
	Properties: map[string]llm.Property{
		"fixed_sql": {
			Type:        "string",
			Description: "The complete, corrected BigQuery GoogleSQL script.",
		},
		"changes": {
			Type:        "array",
			Description: "Human-readable descriptions of each change made.",
			Items:       &llm.Property{Type: "string"},
		},
		"reasoning": {
			Type:        "string",
			Description: "Why these changes fix the reported error.",
		},
	},
	Required: []string{"fixed_sql", "changes"},
}

type sqlFixArgs struct {
	FixedSQL  string   `json:"fixed_sql"`
	Changes   []string `json:"changes"`
	Reasoning string   `json:"reasoning"`
}

// FixResult is a successful fix attempt.
type FixResult struct {
	SQL       string
	Changes   []string
	Reasoning string
}

// Fixer asks the model to repair a script that failed dry-run validation.
type Fixer struct {
	gen    llm.TextGenerator
	logger *zap.Logger
}

func NewFixer(gen llm.TextGenerator, logger *zap.Logger) *Fixer {
	return &Fixer{gen: gen, logger: logger.Named("fixer")}
}

// Fix returns the repaired script or an error; it never returns a partial
// script alongside an error. Extraction runs through ordered strategies: tool
// arguments first, then fenced SQL in the text, then the raw text itself,
// and finally the first statement buried in prose.
func (f *Fixer) Fix(ctx context.Context, sql, validationError string) (*FixResult, error) {
	f.logger.Info("attempting sql fix", zap.String("error", models.Preview(validationError, 150)))

	result, err := f.gen.Generate(ctx, &llm.GenerateRequest{
		Prompt:      f.buildPrompt(sql, validationError),
		Temperature: generationTemperature,
		MaxTokens:   generationMaxTokens,
		Tool:        sqlFixTool,
	})
	if err != nil {
		return nil, fmt.Errorf("sql fix: %w", err)
	}

	fix := f.extract(result)
	if fix == nil {
		return nil, fmt.Errorf("sql fix: no usable SQL in response (preview: %s)", models.Preview(result.Text, 200))
	}

	fix.SQL = sqltext.Normalize(fix.SQL)
	if !sqltext.LooksLikeSQL(fix.SQL) {
		return nil, fmt.Errorf("sql fix: fixed content is not SQL (preview: %s)", models.Preview(fix.SQL, 200))
	}

	f.logger.Info("sql fix produced",
		zap.Int("sql_chars", len(fix.SQL)),
		zap.Strings("changes", fix.Changes))
	return fix, nil
}

// extract tries each response shape in order of trustworthiness.
func (f *Fixer) extract(result *llm.GenerateResult) *FixResult {
	// 1. structured tool call
	if result.ToolCall != nil && result.ToolCall.Name == sqlFixTool.Name {
		var args sqlFixArgs
		if err := json.Unmarshal([]byte(result.ToolCall.Arguments), &args); err != nil {
			f.logger.Warn("could not parse tool call arguments", zap.Error(err))
		} else if args.FixedSQL != "" {
			return &FixResult{SQL: args.FixedSQL, Changes: args.Changes, Reasoning: args.Reasoning}
		} else {
			f.logger.Warn("tool call arguments missing fixed_sql")
		}
	}

	if result.Text == "" {
		return nil
	}

	// 2. fenced or raw SQL in the text response
	if extracted := sqltext.ExtractFromMarkdown(result.Text); extracted != "" {
		f.logger.Warn("no valid tool call, using SQL extracted from text response")
		return &FixResult{SQL: extracted}
	}

	// 3. model ignored both the tool and the fences
	if raw := sqltext.Normalize(result.Text); sqltext.LooksLikeSQL(raw) {
		f.logger.Warn("raw text response appears to be SQL, using it directly")
		return &FixResult{SQL: raw}
	}

	// 4. commentary before an unfenced script
	if stmt := sqltext.FirstStatement(result.Text); stmt != "" {
		f.logger.Warn("recovered SQL statement from prose response")
		return &FixResult{SQL: stmt}
	}
	return nil
}

func (f *Fixer) buildPrompt(sql, errorMessage string) string {
	var b strings.Builder
	b.WriteString("You are an expert SQL engineer. Fix the following BigQuery GoogleSQL script based on the error message.\n\n")
	fmt.Fprintf(&b, "ERROR MESSAGE:\n%s\n\n", errorMessage)
	fmt.Fprintf(&b, "ORIGINAL SQL SCRIPT:\n```sql\n%s\n```\n\n", sql)
	b.WriteString("SPECIFIC GUIDANCE FOR COMMON ERRORS:\n")
	b.WriteString("1. For \"Invalid field reference\" or \"Unrecognized name\" errors - check if the field exists in the source. If not, provide an appropriate default value (NULL for most types, empty array [] for ARRAY, 0 for NUMERIC/INT64, FALSE for BOOL, STRUCT() for STRUCT). Ensure the alias in the SELECT statement matches the destination schema.\n")
	b.WriteString("2. For \"Syntax error\" - carefully check backtick formatting around table and field names, spacing between keywords and identifiers, and correct use of commas and parentheses.\n")
	b.WriteString("3. For nested field errors - ensure all parts of the path exist and add appropriate IFNULL or SAFE navigation.\n")
	b.WriteString("4. Ensure all table references are correctly formatted (`project.dataset.table`).\n")
	b.WriteString("5. The fixed SQL script MUST be a complete and executable BigQuery GoogleSQL query.\n\n")
	fmt.Fprintf(&b, "Your response MUST be ONLY a call to the `%s` function. Do NOT include any other explanatory text or markdown formatting.\n", sqlFixTool.Name)
	return b.String()
}

// SimpleFix is the last-chance variant: a bare prompt expecting plain SQL
// text back, used by the synchronous fix endpoint after the pipeline has
// given up.
func (f *Fixer) SimpleFix(ctx context.Context, sql, errorMessage string) (string, error) {
	f.logger.Info("attempting simple sql fix", zap.String("error", models.Preview(errorMessage, 150)))

	var b strings.Builder
	b.WriteString("The following BigQuery GoogleSQL query failed with an error.\n")
	b.WriteString("Please provide a corrected version of the SQL query.\n")
	b.WriteString("Output ONLY the complete, corrected BigQuery GoogleSQL query. Do not include any other text or explanations.\n\n")
	fmt.Fprintf(&b, "FAILED SQL QUERY:\n```sql\n%s\n```\n\n", sql)
	fmt.Fprintf(&b, "BIGQUERY ERROR MESSAGE:\n```\n%s\n```\n\n", errorMessage)
	b.WriteString("CORRECTED SQL QUERY:\n")

	result, err := f.gen.Generate(ctx, &llm.GenerateRequest{
		Prompt:      b.String(),
		Temperature: simpleFixTemperature,
		MaxTokens:   generationMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("simple sql fix: %w", err)
	}
	if result.Text == "" {
		return "", fmt.Errorf("simple sql fix: empty response")
	}

	fixed := sqltext.ExtractFromMarkdown(result.Text)
	if fixed == "" {
		raw := sqltext.Normalize(result.Text)
		if !sqltext.LooksLikeSQL(raw) {
			return "", fmt.Errorf("simple sql fix: response is not SQL (preview: %s)", models.Preview(result.Text, 200))
		}
		fixed = raw
	}
	return fixed, nil
}
