package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	anthropic "github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/psearch-ai/transform-engine/pkg/retry"
)

// AnthropicClient talks to the Anthropic Messages API.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
	retry  retry.Config
	logger *zap.Logger
}

func NewAnthropicClient(apiKey, model string, logger *zap.Logger) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	if model == "" {
		return nil, errors.New("anthropic: model is required")
	}
	return &AnthropicClient{
		client: anthropic.NewClient(apiKey),
		model:  model,
		retry:  retry.DefaultConfig(),
		logger: logger.Named("llm.anthropic"),
	}, nil
}

func (c *AnthropicClient) Model() string { return c.model }

func (c *AnthropicClient) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	temp := req.Temperature
	msgReq := anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		MaxTokens:   req.MaxTokens,
		Temperature: &temp,
		Messages: []anthropic.Message{
			anthropic.NewUserTextMessage(req.Prompt),
		},
	}
	if req.Tool != nil {
		msgReq.Tools = []anthropic.ToolDefinition{{
			Name:        req.Tool.Name,
			Description: req.Tool.Description,
			InputSchema: req.Tool.ParametersSchema(),
		}}
		msgReq.ToolChoice = &anthropic.ToolChoice{
			Type: "tool",
			Name: req.Tool.Name,
		}
	}

	c.logger.Debug("sending generation request",
		zap.String("model", c.model),
		zap.Int("prompt_chars", len(req.Prompt)),
		zap.Bool("tool", req.Tool != nil))

	resp, err := retry.DoWithResult(ctx, c.retry, func(ctx context.Context) (anthropic.MessagesResponse, error) {
		r, err := c.client.CreateMessages(ctx, msgReq)
		if err != nil {
			return r, c.classify(err)
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}

	result := &GenerateResult{FinishReason: mapAnthropicStop(resp.StopReason)}
	for _, content := range resp.Content {
		switch content.Type {
		case anthropic.MessagesContentTypeText:
			if content.Text != nil {
				result.Text += *content.Text
			}
		case anthropic.MessagesContentTypeToolUse:
			if content.MessageContentToolUse == nil {
				continue
			}
			args, err := json.Marshal(content.MessageContentToolUse.Input)
			if err != nil {
				return nil, fmt.Errorf("anthropic: marshal tool input: %w", err)
			}
			result.ToolCall = &ToolCall{
				Name:      content.MessageContentToolUse.Name,
				Arguments: string(args),
			}
		}
	}

	c.logger.Debug("generation complete",
		zap.String("finish_reason", string(result.FinishReason)),
		zap.Int("text_chars", len(result.Text)),
		zap.Bool("tool_call", result.ToolCall != nil))
	return result, nil
}

func (c *AnthropicClient) classify(err error) error {
	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		return ClassifyError(err, reqErr.StatusCode)
	}
	return ClassifyError(err, 0)
}

func mapAnthropicStop(r anthropic.MessagesStopReason) FinishReason {
	switch r {
	case anthropic.MessagesStopReasonEndTurn, anthropic.MessagesStopReasonStopSequence:
		return FinishReasonStop
	case anthropic.MessagesStopReasonMaxTokens:
		return FinishReasonLength
	case anthropic.MessagesStopReasonToolUse:
		return FinishReasonToolCall
	default:
		return FinishReasonOther
	}
}

var _ TextGenerator = (*AnthropicClient)(nil)
