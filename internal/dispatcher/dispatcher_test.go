package dispatcher

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ado-mcp/ado-work-mcp/internal/envelope"
)

const echoSchema = `{
	"type": "object",
	"properties": {
		"message": {"type": "string", "minLength": 1}
	},
	"required": ["message"],
	"additionalProperties": false,
	"description": "requires a non-empty 'message' string"
}`

func echoTool() Tool {
	return Tool{
		Name:        "echo",
		InputSchema: json.RawMessage(echoSchema),
		Handler: func(_ context.Context, raw json.RawMessage) envelope.Envelope {
			var params struct {
				Message string `json:"message"`
			}
			_ = json.Unmarshal(raw, &params)
			return envelope.Ok("echo", params.Message)
		},
	}
}

func TestDispatchUnknownToolReturnsErrorEnvelope(t *testing.T) {
	d := New()
	env := d.Dispatch(context.Background(), "nope", json.RawMessage(`{}`))
	require.False(t, env.Success)
	require.Contains(t, env.Errors[0], "unknown tool")
}

func TestDispatchValidInputCallsHandler(t *testing.T) {
	d := New()
	require.NoError(t, d.Register(echoTool()))

	env := d.Dispatch(context.Background(), "echo", json.RawMessage(`{"message":"hi"}`))
	require.True(t, env.Success)
	require.Equal(t, "hi", env.Data)
}

func TestDispatchInvalidInputNeverCallsHandler(t *testing.T) {
	called := false
	d := New()
	require.NoError(t, d.Register(Tool{
		Name:        "echo",
		InputSchema: json.RawMessage(echoSchema),
		Handler: func(_ context.Context, _ json.RawMessage) envelope.Envelope {
			called = true
			return envelope.Ok("echo", nil)
		},
	}))

	env := d.Dispatch(context.Background(), "echo", json.RawMessage(`{}`))
	require.False(t, env.Success)
	require.False(t, called)
	require.NotEmpty(t, env.Errors)
	require.Contains(t, env.Errors[0], "Validation error:")
}

func TestDispatchValidationErrorIncludesTipFromSchemaDescription(t *testing.T) {
	d := New()
	require.NoError(t, d.Register(echoTool()))

	env := d.Dispatch(context.Background(), "echo", json.RawMessage(`{}`))
	last := env.Errors[len(env.Errors)-1]
	require.Contains(t, last, "requires a non-empty 'message' string")
}

func TestDispatchAdditionalPropertiesRejected(t *testing.T) {
	d := New()
	require.NoError(t, d.Register(echoTool()))

	env := d.Dispatch(context.Background(), "echo", json.RawMessage(`{"message":"hi","extra":1}`))
	require.False(t, env.Success)
}

func TestDispatchNoSchemaSkipsValidation(t *testing.T) {
	d := New()
	require.NoError(t, d.Register(Tool{
		Name: "no-input",
		Handler: func(_ context.Context, _ json.RawMessage) envelope.Envelope {
			return envelope.Ok("no-input", "ran")
		},
	}))

	env := d.Dispatch(context.Background(), "no-input", nil)
	require.True(t, env.Success)
	require.Equal(t, "ran", env.Data)
}

func TestRegisterRejectsMalformedSchema(t *testing.T) {
	d := New()
	err := d.Register(Tool{Name: "bad", InputSchema: json.RawMessage(`{"type":`)})
	require.Error(t, err)
}

func TestNamesIncludesGetPromptsByDefault(t *testing.T) {
	d := New()
	require.Contains(t, d.Names(), "get-prompts")
}

func TestNamesIsSorted(t *testing.T) {
	d := New()
	require.NoError(t, d.Register(Tool{Name: "zeta", Handler: func(context.Context, json.RawMessage) envelope.Envelope { return envelope.Ok("z", nil) }}))
	require.NoError(t, d.Register(Tool{Name: "alpha", Handler: func(context.Context, json.RawMessage) envelope.Envelope { return envelope.Ok("a", nil) }}))

	names := d.Names()
	require.Equal(t, []string{"alpha", "get-prompts", "zeta"}, names)
}

func TestLookupReturnsRegisteredTool(t *testing.T) {
	d := New()
	require.NoError(t, d.Register(echoTool()))

	tool, ok := d.Lookup("echo")
	require.True(t, ok)
	require.Equal(t, "echo", tool.Name)

	_, ok = d.Lookup("missing")
	require.False(t, ok)
}

func TestGetPromptsListsRegisteredPromptsSortedByName(t *testing.T) {
	d := New()
	d.RegisterPrompt(PromptTemplate{Name: "triage", Description: "Triage a bug", Content: "You are triaging..."})
	d.RegisterPrompt(PromptTemplate{Name: "analyze", Description: "Analyze backlog", Content: "You are analyzing..."})

	env := d.Dispatch(context.Background(), "get-prompts", json.RawMessage(`{}`))
	require.True(t, env.Success)

	summaries, ok := env.Data.([]promptSummary)
	require.True(t, ok)
	require.Len(t, summaries, 2)
	require.Equal(t, "analyze", summaries[0].Name)
	require.Equal(t, "triage", summaries[1].Name)
	require.Empty(t, summaries[0].Content, "content omitted unless includeContent is set")
}

func TestGetPromptsIncludeContentReturnsBody(t *testing.T) {
	d := New()
	d.RegisterPrompt(PromptTemplate{Name: "triage", Content: "You are triaging..."})

	env := d.Dispatch(context.Background(), "get-prompts", json.RawMessage(`{"includeContent":true}`))
	summaries := env.Data.([]promptSummary)
	require.Equal(t, "You are triaging...", summaries[0].Content)
}

func TestGetPromptsByNameReturnsSinglePrompt(t *testing.T) {
	d := New()
	d.RegisterPrompt(PromptTemplate{Name: "triage", Content: "body"})

	env := d.Dispatch(context.Background(), "get-prompts", json.RawMessage(`{"promptName":"triage"}`))
	require.True(t, env.Success)
	summary := env.Data.(promptSummary)
	require.Equal(t, "triage", summary.Name)
	require.Equal(t, "body", summary.Content)
}

func TestGetPromptsUnknownNameFails(t *testing.T) {
	d := New()
	env := d.Dispatch(context.Background(), "get-prompts", json.RawMessage(`{"promptName":"nope"}`))
	require.False(t, env.Success)
}
