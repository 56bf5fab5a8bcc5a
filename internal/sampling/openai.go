package sampling

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// chatCompletions captures the subset of the OpenAI SDK used here, so tests
// can substitute a fake instead of issuing real HTTP calls.
type chatCompletions interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIBackend implements Sampler on top of the OpenAI Chat Completions
// API.
type OpenAIBackend struct {
	chat         chatCompletions
	defaultModel string
}

// NewOpenAIBackend constructs a Sampler from an OpenAI API key and the
// model identifier to use when a Request does not name one.
func NewOpenAIBackend(apiKey, defaultModel string) (*OpenAIBackend, error) {
	if apiKey == "" {
		return nil, errors.New("sampling: openai api key is required")
	}
	if defaultModel == "" {
		return nil, errors.New("sampling: openai default model is required")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIBackend{chat: &client.Chat.Completions, defaultModel: defaultModel}, nil
}

func (b *OpenAIBackend) Sample(ctx context.Context, req Request) (Result, error) {
	if len(req.Messages) == 0 {
		return Result{}, errors.New("sampling: openai: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = b.defaultModel
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Text))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Text))
		default:
			messages = append(messages, openai.UserMessage(m.Text))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(modelID),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	resp, err := b.chat.New(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("sampling: openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, errors.New("sampling: openai: response had no choices")
	}

	result := Result{Text: resp.Choices[0].Message.Content}
	if resp.Usage.PromptTokens != 0 || resp.Usage.CompletionTokens != 0 {
		result.Usage = &Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		}
	}
	return result, nil
}

var _ Sampler = (*OpenAIBackend)(nil)
