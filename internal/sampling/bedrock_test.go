package sampling

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/require"
)

type fakeConverseClient struct {
	out *bedrockruntime.ConverseOutput
	err error
	got *bedrockruntime.ConverseInput
}

func (f *fakeConverseClient) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.got = params
	return f.out, f.err
}

func TestBedrockBackendSampleReturnsAssistantText(t *testing.T) {
	fake := &fakeConverseClient{
		out: &bedrockruntime.ConverseOutput{
			Output: &brtypes.ConverseOutputMemberMessage{
				Value: brtypes.Message{
					Role: brtypes.ConversationRoleAssistant,
					Content: []brtypes.ContentBlock{
						&brtypes.ContentBlockMemberText{Value: "bedrock says hi"},
					},
				},
			},
			Usage: &brtypes.TokenUsage{InputTokens: aws.Int32(4), OutputTokens: aws.Int32(2)},
		},
	}
	b := &BedrockBackend{runtime: fake, defaultModel: "anthropic.claude-default"}

	result, err := b.Sample(context.Background(), Request{
		Messages: []Message{
			{Role: RoleSystem, Text: "be terse"},
			{Role: RoleUser, Text: "summarize this"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "bedrock says hi", result.Text)
	require.NotNil(t, result.Usage)
	require.Equal(t, 4, result.Usage.InputTokens)
	require.Equal(t, 2, result.Usage.OutputTokens)
	require.Equal(t, "anthropic.claude-default", *fake.got.ModelId)
}

func TestBedrockBackendSampleRequiresMessages(t *testing.T) {
	b := &BedrockBackend{runtime: &fakeConverseClient{}, defaultModel: "anthropic.claude-default"}
	_, err := b.Sample(context.Background(), Request{})
	require.Error(t, err)
}
