package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"go.uber.org/zap"

	"github.com/psearch-ai/transform-engine/pkg/llm"
	"github.com/psearch-ai/transform-engine/pkg/models"
)

const diffAnalysisMaxTokens = 2048

var sqlDiffTool = &llm.ToolSpec{
	Name:        "sql_diff_analysis",
	Description: "Analyzes differences between original and fixed SQL scripts",
	Properties: map[string]llm.Property{
		"changes": {
			Type:        "array",
			Description: "List of significant changes made in the fixed SQL.",
			Items:       &llm.Property{Type: "string"},
		},
		"primary_issue_type": {
			Type:        "string",
			Description: "The main type of issue that was fixed (e.g., 'missing field', 'syntax error', 'backtick formatting').",
		},
		"removed_lines_count": {
			Type:        "integer",
			Description: "Number of lines removed in the fix.",
		},
		"added_lines_count": {
			Type:        "integer",
			Description: "Number of lines added in the fix.",
		},
	},
	Required: []string{"changes", "primary_issue_type"},
}

type sqlDiffArgs struct {
	Changes           []string `json:"changes"`
	PrimaryIssueType  string   `json:"primary_issue_type"`
	RemovedLinesCount *int     `json:"removed_lines_count"`
	AddedLinesCount   *int     `json:"added_lines_count"`
}

// DiffAnalysis explains what changed between an original and a fixed script.
// DiffText and the line counts are always populated from the textual diff;
// Changes and PrimaryIssueType come from the model, with Error recording why
// they are absent when the model could not be used.
type DiffAnalysis struct {
	DiffText          string   `json:"diff_text"`
	Changes           []string `json:"changes,omitempty"`
	PrimaryIssueType  string   `json:"primary_issue_type,omitempty"`
	RemovedLinesCount int      `json:"removed_lines_count"`
	AddedLinesCount   int      `json:"added_lines_count"`
	Error             string   `json:"error,omitempty"`
}

// DiffAnalyzer explains the differences between two versions of a script,
// typically the script that failed validation and the fixer's repair. A nil
// generator degrades to the plain textual diff.
type DiffAnalyzer struct {
	gen    llm.TextGenerator
	logger *zap.Logger
}

func NewDiffAnalyzer(gen llm.TextGenerator, logger *zap.Logger) *DiffAnalyzer {
	return &DiffAnalyzer{gen: gen, logger: logger.Named("diffanalyzer")}
}

// Analyze never fails: the unified diff and line counts are computed locally,
// and any model problem is reported inside the result.
func (a *DiffAnalyzer) Analyze(ctx context.Context, originalSQL, fixedSQL string) *DiffAnalysis {
	diffText, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(originalSQL),
		B:        difflib.SplitLines(fixedSQL),
		FromFile: "original.sql",
		ToFile:   "fixed.sql",
		Context:  3,
	})
	if err != nil {
		a.logger.Warn("unified diff failed", zap.Error(err))
	}

	removed, added := countDiffLines(diffText)
	analysis := &DiffAnalysis{
		DiffText:          diffText,
		RemovedLinesCount: removed,
		AddedLinesCount:   added,
	}

	if a.gen == nil {
		analysis.Changes = []string{"SQL structure was modified. Model analysis not enabled."}
		analysis.PrimaryIssueType = "unknown (model analysis not enabled)"
		return analysis
	}

	result, genErr := a.gen.Generate(ctx, &llm.GenerateRequest{
		Prompt:      a.buildPrompt(originalSQL, fixedSQL, diffText),
		Temperature: generationTemperature,
		MaxTokens:   diffAnalysisMaxTokens,
		Tool:        sqlDiffTool,
	})
	if genErr != nil {
		a.logger.Error("diff analysis generation failed", zap.Error(genErr))
		analysis.Error = genErr.Error()
		return analysis
	}

	switch {
	case result.ToolCall != nil && result.ToolCall.Name == sqlDiffTool.Name:
		var args sqlDiffArgs
		if err := json.Unmarshal([]byte(result.ToolCall.Arguments), &args); err != nil {
			a.logger.Warn("could not parse diff analysis arguments", zap.Error(err))
			analysis.Error = "failed to parse diff analysis tool call arguments"
			return analysis
		}
		analysis.Changes = args.Changes
		analysis.PrimaryIssueType = args.PrimaryIssueType
		if args.RemovedLinesCount != nil {
			analysis.RemovedLinesCount = *args.RemovedLinesCount
		}
		if args.AddedLinesCount != nil {
			analysis.AddedLinesCount = *args.AddedLinesCount
		}
		a.logger.Info("diff analysis succeeded",
			zap.String("primary_issue_type", analysis.PrimaryIssueType),
			zap.Int("changes", len(analysis.Changes)))
	case result.Text != "":
		a.logger.Warn("diff analysis returned text instead of a tool call",
			zap.String("preview", models.Preview(result.Text, 200)))
		analysis.Error = "model returned text instead of the expected tool call"
	default:
		analysis.Error = fmt.Sprintf("no tool call or text in diff analysis response (finish reason: %s)", result.FinishReason)
	}
	return analysis
}

// countDiffLines tallies removed and added lines, skipping the ---/+++ file
// headers.
func countDiffLines(diffText string) (removed, added int) {
	for _, line := range strings.Split(diffText, "\n") {
		switch {
		case strings.HasPrefix(line, "---") || strings.HasPrefix(line, "+++"):
		case strings.HasPrefix(line, "-"):
			removed++
		case strings.HasPrefix(line, "+"):
			added++
		}
	}
	return removed, added
}

func (a *DiffAnalyzer) buildPrompt(originalSQL, fixedSQL, diffText string) string {
	var b strings.Builder
	b.WriteString("You are an expert SQL analyst. Analyze the differences between the original and fixed SQL scripts.\n\n")
	fmt.Fprintf(&b, "ORIGINAL SQL:\n```sql\n%s\n```\n\n", originalSQL)
	fmt.Fprintf(&b, "FIXED SQL:\n```sql\n%s\n```\n\n", fixedSQL)
	fmt.Fprintf(&b, "DIFF (unified format):\n```diff\n%s\n```\n\n", diffText)
	b.WriteString("Provide a detailed analysis of the significant changes made between the scripts.\n")
	b.WriteString("Specifically focus on:\n")
	b.WriteString("1. Field replacements or remapping (e.g., `source.old_field AS alias` changed to `source.new_field AS alias` or `NULL AS alias`).\n")
	b.WriteString("2. Syntax corrections (e.g., backtick usage, spacing, keyword changes).\n")
	b.WriteString("3. Value handling changes (e.g., adding `IFNULL`, `SAFE_CAST`, or changing default values).\n")
	b.WriteString("4. Structural changes (e.g., modifications to JOIN conditions, WHERE clauses, or entire subqueries added/removed).\n")
	b.WriteString("5. Identify the primary type of issue that was likely fixed.\n\n")
	fmt.Fprintf(&b, "Your response MUST be ONLY a call to the `%s` function. Do NOT include any other explanatory text.\n", sqlDiffTool.Name)
	return b.String()
}
