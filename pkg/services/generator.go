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

const (
	generationTemperature = 0.2
	generationMaxTokens   = 32768
)

// Generator produces the initial, syntax-focused transformation script. It
// maps fields by name only; semantic guessing is the Enhancer's job.
type Generator struct {
	gen    llm.TextGenerator
	logger *zap.Logger
}

func NewGenerator(gen llm.TextGenerator, logger *zap.Logger) *Generator {
	return &Generator{gen: gen, logger: logger.Named("generator")}
}

// Generate returns the initial SQL script for the source to destination
// transformation, or an error when no usable script could be obtained.
func (g *Generator) Generate(
	ctx context.Context,
	sourceTable, destinationTable string,
	sourceFields []string,
	schema *models.DestinationSchema,
) (string, error) {
	if schema == nil {
		return "", fmt.Errorf("no destination schema available")
	}

	prompt, err := g.buildPrompt(sourceTable, destinationTable, sourceFields, schema)
	if err != nil {
		return "", err
	}

	g.logger.Info("generating initial sql",
		zap.String("source_table", sourceTable),
		zap.String("destination_table", destinationTable),
		zap.Int("source_fields", len(sourceFields)))

	result, err := g.gen.Generate(ctx, &llm.GenerateRequest{
		Prompt:      prompt,
		Temperature: generationTemperature,
		MaxTokens:   generationMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("initial sql generation: %w", err)
	}
	if result.Truncated() {
		return "", fmt.Errorf("initial sql generation: response truncated at token limit")
	}
	if result.Text == "" {
		return "", fmt.Errorf("initial sql generation: empty response")
	}

	sql := sqltext.ExtractFromMarkdown(result.Text)
	if sql == "" {
		// Extraction can be too strict when the model skips fences; take
		// the raw text if it opens with a statement keyword.
		raw := sqltext.Normalize(result.Text)
		if !sqltext.LooksLikeSQL(raw) {
			return "", fmt.Errorf("initial sql generation: response is not SQL (preview: %s)", models.Preview(result.Text, 200))
		}
		sql = raw
	}

	g.logger.Info("initial sql generated", zap.Int("sql_chars", len(sql)))
	return sql, nil
}

func (g *Generator) buildPrompt(
	sourceTable, destinationTable string,
	sourceFields []string,
	schema *models.DestinationSchema,
) (string, error) {
	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal destination schema: %w", err)
	}

	quoted := make([]string, len(sourceFields))
	for i, f := range sourceFields {
		quoted[i] = "`" + f + "`"
	}

	var b strings.Builder
	b.WriteString("You are an expert GoogleSQL engineer specializing in BigQuery transformations.\n")
	b.WriteString("Your primary goal is to generate a syntactically valid and executable BigQuery GoogleSQL script.\n")
	b.WriteString("This script will transform data from a source table to a destination table, precisely matching the destination schema structure.\n")
	b.WriteString("Focus on syntactic correctness for BigQuery and complete schema coverage. Do NOT perform semantic guessing or complex logic at this stage.\n\n")

	fmt.Fprintf(&b, "SOURCE TABLE NAME: `%s`\n", sourceTable)
	fmt.Fprintf(&b, "SOURCE SCHEMA FIELDS (available columns in source): [%s]\n", strings.Join(quoted, ", "))
	fmt.Fprintf(&b, "DESTINATION TABLE NAME: `%s`\n", destinationTable)
	fmt.Fprintf(&b, "DESTINATION SCHEMA (target structure):\n```json\n%s\n```\n\n", schemaJSON)

	b.WriteString("MANDATORY BigQuery GoogleSQL SYNTAX AND FORMATTING:\n")
	fmt.Fprintf(&b, "1. The script MUST start exactly with `CREATE OR REPLACE TABLE \\`%s\\` AS SELECT ...`.\n", destinationTable)
	b.WriteString("   - There MUST be exactly one space after `TABLE` and before the first backtick.\n")
	b.WriteString("   - There MUST be exactly one space after the closing backtick of the table name and before `AS`.\n")
	b.WriteString("2. All GoogleSQL keywords (SELECT, FROM, WHERE, AND, OR, AS, CAST, STRUCT, IFNULL, SAFE_CAST, etc.) MUST be surrounded by single spaces.\n")
	b.WriteString("3. Use BigQuery-specific functions and data types (e.g., SAFE_CAST for robust type conversions, TIMESTAMP, DATE, NUMERIC, STRUCT, ARRAY).\n")
	b.WriteString("4. Do NOT use backticks around nested field references (source.priceInfo.cost is correct, NOT source.`priceInfo`.`cost`).\n\n")

	b.WriteString("MAPPING AND DEFAULTING RULES:\n")
	b.WriteString("1. Direct Name Mapping: if a destination field name matches a source field name case-insensitively, map it directly (source.someField AS someField).\n")
	b.WriteString("2. Basic Type-Correct Defaults: for any destination field without a direct case-insensitive name match, apply a type-correct default:\n")
	b.WriteString("   - STRING, TIMESTAMP, DATE, GEOGRAPHY: NULL\n")
	b.WriteString("   - INT64, NUMERIC, FLOAT64, BIGNUMERIC: 0\n")
	b.WriteString("   - ARRAY: [] (an empty array)\n")
	b.WriteString("   - BOOL: FALSE\n")
	b.WriteString("   - STRUCT: a STRUCT() constructor with all sub-fields set to their respective basic defaults.\n")
	b.WriteString("   Add a comment for each defaulted field: -- Defaulted [destination_field_name] to [default_value] as no direct source match found.\n")
	b.WriteString("3. Type Compatibility: use SAFE_CAST where needed (SAFE_CAST(source.price_string AS FLOAT64) AS price).\n")
	b.WriteString("4. Complete Coverage: EVERY field defined in the DESTINATION SCHEMA must be present in the SELECT statement.\n\n")

	b.WriteString("Your response MUST be only the complete BigQuery GoogleSQL script. Do not include any explanatory text, markdown formatting, or anything else outside the SQL script itself.\n")
	return b.String(), nil
}
