// Package llm abstracts text generation over OpenAI-compatible, Anthropic,
// and Gemini backends behind a single TextGenerator interface.
package llm

import "context"

// FinishReason explains why generation stopped.
type FinishReason string

const (
	FinishReasonStop     FinishReason = "stop"
	FinishReasonLength   FinishReason = "length"
	FinishReasonToolCall FinishReason = "tool_call"
	FinishReasonOther    FinishReason = "other"
)

// Property is one parameter of a tool schema. Items describes array element
// schemas.
type Property struct {
	Type        string
	Description string
	Items       *Property
}

// ToolSpec declares a single structured-output tool the model must call.
type ToolSpec struct {
	Name        string
	Description string
	Properties  map[string]Property
	Required    []string
}

// ParametersSchema renders the spec as a JSON-schema object map, the shape
// both OpenAI and Anthropic accept verbatim.
func (t *ToolSpec) ParametersSchema() map[string]any {
	props := make(map[string]any, len(t.Properties))
	for name, p := range t.Properties {
		props[name] = p.schema()
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   t.Required,
	}
}

func (p Property) schema() map[string]any {
	s := map[string]any{"type": p.Type}
	if p.Description != "" {
		s["description"] = p.Description
	}
	if p.Items != nil {
		s["items"] = p.Items.schema()
	}
	return s
}

// GenerateRequest is a single-turn generation call.
type GenerateRequest struct {
	Prompt      string
	Temperature float32
	MaxTokens   int
	Tool        *ToolSpec // when set, the model is steered to call it
}

// ToolCall is the structured output of a tool invocation.
type ToolCall struct {
	Name      string
	Arguments string // raw JSON
}

// GenerateResult carries whichever of text and tool call the model produced.
type GenerateResult struct {
	Text         string
	ToolCall     *ToolCall
	FinishReason FinishReason
}

// Truncated reports whether the output was cut off by the token limit.
func (r *GenerateResult) Truncated() bool {
	return r.FinishReason == FinishReasonLength
}

// TextGenerator is the single collaborator interface the SQL services use.
// Implementations must be safe for concurrent use.
type TextGenerator interface {
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error)
	Model() string
}
