package sampling

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// messagesClient captures the subset of the Anthropic SDK used here, so
// tests can substitute a fake instead of issuing real HTTP calls.
type messagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicBackend implements Sampler on top of the Anthropic Claude
// Messages API.
type AnthropicBackend struct {
	msg          messagesClient
	defaultModel string
}

// NewAnthropicBackend constructs a Sampler from an Anthropic API key and the
// model identifier to use when a Request does not name one.
func NewAnthropicBackend(apiKey, defaultModel string) (*AnthropicBackend, error) {
	if apiKey == "" {
		return nil, errors.New("sampling: anthropic api key is required")
	}
	if defaultModel == "" {
		return nil, errors.New("sampling: anthropic default model is required")
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicBackend{msg: &client.Messages, defaultModel: defaultModel}, nil
}

func (b *AnthropicBackend) Sample(ctx context.Context, req Request) (Result, error) {
	if len(req.Messages) == 0 {
		return Result{}, errors.New("sampling: anthropic: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = b.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	var conversation []sdk.MessageParam
	var system []sdk.TextBlockParam
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, sdk.TextBlockParam{Text: m.Text})
		case RoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Text)))
		default:
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(m.Text)))
		}
	}
	if len(conversation) == 0 {
		return Result{}, errors.New("sampling: anthropic: at least one user/assistant message is required")
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(modelID),
		MaxTokens: int64(maxTokens),
		Messages:  conversation,
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}

	msg, err := b.msg.New(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("sampling: anthropic messages.new: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			text += block.Text
		}
	}
	result := Result{Text: text}
	if msg.Usage.InputTokens != 0 || msg.Usage.OutputTokens != 0 {
		result.Usage = &Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		}
	}
	return result, nil
}

var _ Sampler = (*AnthropicBackend)(nil)
