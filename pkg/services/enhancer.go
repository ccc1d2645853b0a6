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

// Enhancer rewrites defaulted critical-field mappings using a sample of real
// source data. Enhancement is best-effort: every failure path returns the
// ORIGINAL sql unchanged together with the error, so the pipeline can keep
// going with what it has.
type Enhancer struct {
	gen    llm.TextGenerator
	logger *zap.Logger
}

func NewEnhancer(gen llm.TextGenerator, logger *zap.Logger) *Enhancer {
	return &Enhancer{gen: gen, logger: logger.Named("enhancer")}
}

// Enhance returns the refined script, or currentSQL plus a non-nil error when
// enhancement could not improve it. Sample rows are screened for injection
// payloads before being embedded in the prompt.
func (e *Enhancer) Enhance(
	ctx context.Context,
	currentSQL string,
	sourceTable string,
	sourceFields []string,
	sampleRows []map[string]any,
	fieldsToRefine []string,
	schema *models.DestinationSchema,
) (string, error) {
	if schema == nil {
		return currentSQL, fmt.Errorf("no destination schema available for enhancement")
	}

	screened := sqltext.ScreenSampleValues(sampleRows)
	sampleJSON, err := json.MarshalIndent(screened, "", "  ")
	if err != nil {
		return currentSQL, fmt.Errorf("marshal sample rows: %w", err)
	}
	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return currentSQL, fmt.Errorf("marshal destination schema: %w", err)
	}

	prompt := e.buildPrompt(currentSQL, sourceTable, sourceFields, string(sampleJSON), string(schemaJSON), fieldsToRefine)

	e.logger.Info("performing semantic enhancement",
		zap.String("source_table", sourceTable),
		zap.Strings("fields_to_refine", fieldsToRefine),
		zap.Int("sample_rows", len(sampleRows)))

	result, err := e.gen.Generate(ctx, &llm.GenerateRequest{
		Prompt:      prompt,
		Temperature: generationTemperature,
		MaxTokens:   generationMaxTokens,
	})
	if err != nil {
		return currentSQL, fmt.Errorf("semantic enhancement: %w", err)
	}
	if result.Truncated() {
		return currentSQL, fmt.Errorf("semantic enhancement: response truncated at token limit")
	}
	if result.Text == "" {
		return currentSQL, fmt.Errorf("semantic enhancement: empty response")
	}

	refined := sqltext.ExtractFromMarkdown(result.Text)
	if refined == "" {
		raw := sqltext.Normalize(result.Text)
		if !sqltext.LooksLikeSQL(raw) {
			return currentSQL, fmt.Errorf("semantic enhancement: response is not SQL (preview: %s)", models.Preview(result.Text, 200))
		}
		refined = raw
	}

	e.logger.Info("semantic enhancement applied", zap.Int("sql_chars", len(refined)))
	return refined, nil
}

func (e *Enhancer) buildPrompt(
	currentSQL, sourceTable string,
	sourceFields []string,
	sampleJSON, schemaJSON string,
	fieldsToRefine []string,
) string {
	quoted := make([]string, len(sourceFields))
	for i, f := range sourceFields {
		quoted[i] = "`" + f + "`"
	}

	var b strings.Builder
	b.WriteString("You are a data mapping expert specializing in BigQuery GoogleSQL transformations.\n")
	b.WriteString("Your task is to refine an existing BigQuery SQL query by improving the mappings for a specific list of critical destination fields.\n\n")

	fmt.Fprintf(&b, "ORIGINAL SQL QUERY:\n```sql\n%s\n```\n\n", currentSQL)
	fmt.Fprintf(&b, "SOURCE TABLE NAME: `%s`\n", sourceTable)
	fmt.Fprintf(&b, "SOURCE SCHEMA FIELDS (available columns in source): [%s]\n", strings.Join(quoted, ", "))
	fmt.Fprintf(&b, "SOURCE DATA SAMPLE (first rows, JSON array):\n```json\n%s\n```\n", sampleJSON)
	fmt.Fprintf(&b, "DESTINATION SCHEMA (target structure):\n```json\n%s\n```\n", schemaJSON)
	fmt.Fprintf(&b, "CRITICAL DESTINATION FIELDS TO REFINE: [%s]\n\n", strings.Join(fieldsToRefine, ", "))

	b.WriteString("INSTRUCTIONS:\n")
	b.WriteString("1. For each field listed in CRITICAL DESTINATION FIELDS TO REFINE:\n")
	b.WriteString("   a. Examine its current mapping in the ORIGINAL SQL QUERY.\n")
	b.WriteString("   b. If the current mapping is NULL or a generic default (0, \"\", []), analyze the SOURCE SCHEMA FIELDS and the SOURCE DATA SAMPLE.\n")
	b.WriteString("   c. Identify the source field that is the best semantic match, based on its name and the content observed in the sample.\n")
	b.WriteString("   d. Update the SELECT expression for that field. Ensure type compatibility with the destination type; use SAFE_CAST if necessary.\n")
	b.WriteString("      Add a comment: -- Semantically mapped [destination_field] from source.[chosen_source_field] based on data sample.\n")
	b.WriteString("   e. If no confident semantic match exists, leave the original mapping as is and add a comment:\n")
	b.WriteString("      -- No confident semantic match found for [destination_field] in source data sample.\n")
	b.WriteString("2. PRESERVATION: preserve all other mappings, JOINs, WHERE clauses, and the overall structure. Only modify SELECT expressions for the listed fields.\n")
	b.WriteString("3. OUTPUT: your response MUST be only the complete, modified BigQuery GoogleSQL script. No explanatory text or markdown.\n")
	return b.String()
}
