package sampling

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// converseClient captures the subset of the Bedrock runtime client used
// here, so tests can substitute a fake instead of issuing real AWS calls.
type converseClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockBackend implements Sampler on top of the AWS Bedrock Converse API,
// for deployments that route Claude calls through Bedrock rather than the
// Anthropic API directly.
type BedrockBackend struct {
	runtime      converseClient
	defaultModel string
}

// NewBedrockBackend constructs a Sampler from an already-configured Bedrock
// runtime client and the model identifier to use when a Request does not
// name one.
func NewBedrockBackend(runtime *bedrockruntime.Client, defaultModel string) (*BedrockBackend, error) {
	if runtime == nil {
		return nil, errors.New("sampling: bedrock runtime client is required")
	}
	if defaultModel == "" {
		return nil, errors.New("sampling: bedrock default model is required")
	}
	return &BedrockBackend{runtime: runtime, defaultModel: defaultModel}, nil
}

func (b *BedrockBackend) Sample(ctx context.Context, req Request) (Result, error) {
	if len(req.Messages) == 0 {
		return Result{}, errors.New("sampling: bedrock: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = b.defaultModel
	}

	var conversation []brtypes.Message
	var system []brtypes.SystemContentBlock
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Text})
		case RoleAssistant:
			conversation = append(conversation, brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Text}},
			})
		default:
			conversation = append(conversation, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Text}},
			})
		}
	}
	if len(conversation) == 0 {
		return Result{}, errors.New("sampling: bedrock: at least one user/assistant message is required")
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: conversation,
	}
	if len(system) > 0 {
		input.System = system
	}
	var cfg brtypes.InferenceConfiguration
	if req.MaxTokens > 0 {
		cfg.MaxTokens = aws.Int32(int32(req.MaxTokens))
	}
	if req.Temperature > 0 {
		cfg.Temperature = aws.Float32(float32(req.Temperature))
	}
	if cfg.MaxTokens != nil || cfg.Temperature != nil {
		input.InferenceConfig = &cfg
	}

	out, err := b.runtime.Converse(ctx, input)
	if err != nil {
		return Result{}, fmt.Errorf("sampling: bedrock converse: %w", err)
	}

	var text string
	if msgOutput, ok := out.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msgOutput.Value.Content {
			if tb, ok := block.(*brtypes.ContentBlockMemberText); ok {
				text += tb.Value
			}
		}
	}
	result := Result{Text: text}
	if u := out.Usage; u != nil && (u.InputTokens != nil || u.OutputTokens != nil) {
		usage := &Usage{}
		if u.InputTokens != nil {
			usage.InputTokens = int(*u.InputTokens)
		}
		if u.OutputTokens != nil {
			usage.OutputTokens = int(*u.OutputTokens)
		}
		result.Usage = usage
	}
	return result, nil
}

var _ Sampler = (*BedrockBackend)(nil)
