package sampling

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/require"
)

func TestUnavailableSampleReturnsErrUnavailable(t *testing.T) {
	_, err := (Unavailable{}).Sample(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Text: "hi"}},
	})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestNewWithEmptyBackendReturnsUnavailable(t *testing.T) {
	s, err := New(context.Background(), BackendConfig{})
	require.NoError(t, err)
	_, ok := s.(Unavailable)
	require.True(t, ok)
}

func TestNewWithUnknownBackendFails(t *testing.T) {
	_, err := New(context.Background(), BackendConfig{Backend: "does-not-exist"})
	require.Error(t, err)
}

func TestNewAnthropicBackendRequiresAPIKeyAndModel(t *testing.T) {
	_, err := NewAnthropicBackend("", "claude")
	require.Error(t, err)
	_, err = NewAnthropicBackend("key", "")
	require.Error(t, err)
}

func TestNewOpenAIBackendRequiresAPIKeyAndModel(t *testing.T) {
	_, err := NewOpenAIBackend("", "gpt")
	require.Error(t, err)
	_, err = NewOpenAIBackend("key", "")
	require.Error(t, err)
}

func TestNewBedrockBackendRequiresRuntimeAndModel(t *testing.T) {
	_, err := NewBedrockBackend(nil, "anthropic.claude")
	require.Error(t, err)
	_, err = NewBedrockBackend(&bedrockruntime.Client{}, "")
	require.Error(t, err)
}

func TestErrUnavailableMessageIsDeterministic(t *testing.T) {
	require.True(t, errors.Is(ErrUnavailable, ErrUnavailable))
	require.Equal(t, "sampling unavailable: no AI sampling backend is configured", ErrUnavailable.Error())
}
