package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"github.com/psearch-ai/transform-engine/pkg/retry"
)

// GeminiClient talks to the Gemini API via the google.golang.org/genai SDK.
type GeminiClient struct {
	client *genai.Client
	model  string
	retry  retry.Config
	logger *zap.Logger
}

func NewGeminiClient(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if model == "" {
		return nil, errors.New("gemini: model is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiClient{
		client: client,
		model:  model,
		retry:  retry.DefaultConfig(),
		logger: logger.Named("llm.gemini"),
	}, nil
}

func (c *GeminiClient) Model() string { return c.model }

func (c *GeminiClient) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	temp := req.Temperature
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.Tool != nil {
		cfg.Tools = []*genai.Tool{{
			FunctionDeclarations: []*genai.FunctionDeclaration{{
				Name:        req.Tool.Name,
				Description: req.Tool.Description,
				Parameters:  toGenaiSchema(req.Tool),
			}},
		}}
		cfg.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode:                 genai.FunctionCallingConfigModeAny,
				AllowedFunctionNames: []string{req.Tool.Name},
			},
		}
	}

	c.logger.Debug("sending generation request",
		zap.String("model", c.model),
		zap.Int("prompt_chars", len(req.Prompt)),
		zap.Bool("tool", req.Tool != nil))

	resp, err := retry.DoWithResult(ctx, c.retry, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		r, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.Prompt), cfg)
		if err != nil {
			return nil, c.classify(err)
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini: response contained no candidates")
	}

	cand := resp.Candidates[0]
	result := &GenerateResult{FinishReason: mapGeminiFinish(cand.FinishReason)}
	for _, part := range cand.Content.Parts {
		if part.Text != "" {
			result.Text += part.Text
		}
		if part.FunctionCall != nil {
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				return nil, fmt.Errorf("gemini: marshal function args: %w", err)
			}
			result.ToolCall = &ToolCall{Name: part.FunctionCall.Name, Arguments: string(args)}
			result.FinishReason = FinishReasonToolCall
		}
	}

	c.logger.Debug("generation complete",
		zap.String("finish_reason", string(result.FinishReason)),
		zap.Int("text_chars", len(result.Text)),
		zap.Bool("tool_call", result.ToolCall != nil))
	return result, nil
}

func (c *GeminiClient) classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return ClassifyError(err, gerr.Code)
	}
	var aerr genai.APIError
	if errors.As(err, &aerr) {
		return ClassifyError(err, aerr.Code)
	}
	return ClassifyError(err, 0)
}

func toGenaiSchema(t *ToolSpec) *genai.Schema {
	props := make(map[string]*genai.Schema, len(t.Properties))
	for name, p := range t.Properties {
		props[name] = propertySchema(p)
	}
	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: props,
		Required:   t.Required,
	}
}

func propertySchema(p Property) *genai.Schema {
	s := &genai.Schema{Description: p.Description}
	switch p.Type {
	case "string":
		s.Type = genai.TypeString
	case "number":
		s.Type = genai.TypeNumber
	case "integer":
		s.Type = genai.TypeInteger
	case "boolean":
		s.Type = genai.TypeBoolean
	case "array":
		s.Type = genai.TypeArray
		if p.Items != nil {
			s.Items = propertySchema(*p.Items)
		}
	case "object":
		s.Type = genai.TypeObject
	default:
		s.Type = genai.TypeString
	}
	return s
}

func mapGeminiFinish(r genai.FinishReason) FinishReason {
	switch r {
	case genai.FinishReasonStop:
		return FinishReasonStop
	case genai.FinishReasonMaxTokens:
		return FinishReasonLength
	default:
		return FinishReasonOther
	}
}

var _ TextGenerator = (*GeminiClient)(nil)
