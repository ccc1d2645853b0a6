package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/psearch-ai/transform-engine/pkg/retry"
)

// OpenAIClient talks to OpenAI or any API-compatible endpoint.
type OpenAIClient struct {
	client *openai.Client
	model  string
	retry  retry.Config
	logger *zap.Logger
}

// NewOpenAIClient builds a client for the given endpoint and model. Endpoint
// may be empty for the hosted API.
func NewOpenAIClient(apiKey, endpoint, model string, logger *zap.Logger) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	if model == "" {
		return nil, errors.New("openai: model is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if endpoint != "" {
		cfg.BaseURL = endpoint
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		retry:  retry.DefaultConfig(),
		logger: logger.Named("llm.openai"),
	}, nil
}

func (c *OpenAIClient) Model() string { return c.model }

func (c *OpenAIClient) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
	}
	if req.Tool != nil {
		chatReq.Tools = []openai.Tool{{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        req.Tool.Name,
				Description: req.Tool.Description,
				Parameters:  req.Tool.ParametersSchema(),
			},
		}}
		chatReq.ToolChoice = openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: req.Tool.Name},
		}
	}

	c.logger.Debug("sending generation request",
		zap.String("model", c.model),
		zap.Int("prompt_chars", len(req.Prompt)),
		zap.Bool("tool", req.Tool != nil))

	resp, err := retry.DoWithResult(ctx, c.retry, func(ctx context.Context) (openai.ChatCompletionResponse, error) {
		r, err := c.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return r, c.classify(err)
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: response contained no choices")
	}

	choice := resp.Choices[0]
	result := &GenerateResult{
		Text:         choice.Message.Content,
		FinishReason: mapOpenAIFinish(choice.FinishReason),
	}
	if len(choice.Message.ToolCalls) > 0 {
		tc := choice.Message.ToolCalls[0]
		result.ToolCall = &ToolCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments}
	}

	c.logger.Debug("generation complete",
		zap.String("finish_reason", string(result.FinishReason)),
		zap.Int("text_chars", len(result.Text)),
		zap.Bool("tool_call", result.ToolCall != nil))
	return result, nil
}

func (c *OpenAIClient) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return ClassifyError(err, apiErr.HTTPStatusCode)
	}
	return ClassifyError(err, 0)
}

func mapOpenAIFinish(r openai.FinishReason) FinishReason {
	switch r {
	case openai.FinishReasonStop:
		return FinishReasonStop
	case openai.FinishReasonLength:
		return FinishReasonLength
	case openai.FinishReasonToolCalls:
		return FinishReasonToolCall
	default:
		return FinishReasonOther
	}
}

var _ TextGenerator = (*OpenAIClient)(nil)
