package openapi

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ado-mcp/ado-work-mcp/internal/dispatcher"
	"github.com/ado-mcp/ado-work-mcp/internal/envelope"
)

const pingSchema = `{
	"type": "object",
	"properties": {"name": {"type": "string"}},
	"required": ["name"],
	"additionalProperties": false
}`

func testDispatcher(t *testing.T) *dispatcher.Dispatcher {
	t.Helper()
	d := dispatcher.New()
	require.NoError(t, d.Register(dispatcher.Tool{
		Name:        "ping",
		Description: "Replies with a greeting.",
		InputSchema: json.RawMessage(pingSchema),
		Handler: func(context.Context, json.RawMessage) envelope.Envelope {
			return envelope.Ok("ping", "pong")
		},
	}))
	require.NoError(t, d.Register(dispatcher.Tool{
		Name:             "dream",
		Description:      "Asks an AI backend for something.",
		RequiresSampling: true,
		Handler: func(context.Context, json.RawMessage) envelope.Envelope {
			return envelope.Ok("dream", "")
		},
	}))
	return d
}

func TestGenerateIncludesEveryRegisteredTool(t *testing.T) {
	doc, err := Generate(testDispatcher(t), "ado-work-mcp", "0.1.0")
	require.NoError(t, err)
	require.Equal(t, "ado-work-mcp", doc.Info.Title)

	for _, name := range []string{"ping", "dream", "get-prompts"} {
		item := doc.Paths.Find("/tools/" + name)
		require.NotNil(t, item, "expected path for tool %s", name)
		require.NotNil(t, item.Post)
	}
}

func TestGenerateMarksSamplingRequiringTools(t *testing.T) {
	doc, err := Generate(testDispatcher(t), "t", "v")
	require.NoError(t, err)

	dream := doc.Paths.Find("/tools/dream").Post
	require.Equal(t, true, dream.Extensions[extRequiresSampling])

	ping := doc.Paths.Find("/tools/ping").Post
	require.Nil(t, ping.Extensions[extRequiresSampling])
}

func TestGenerateSetsRequestBodyFromToolSchema(t *testing.T) {
	doc, err := Generate(testDispatcher(t), "t", "v")
	require.NoError(t, err)

	ping := doc.Paths.Find("/tools/ping").Post
	require.NotNil(t, ping.RequestBody)
	require.NotNil(t, ping.RequestBody.Value)

	dream := doc.Paths.Find("/tools/dream").Post
	require.Nil(t, dream.RequestBody)
}

func TestGenerateEveryOperationHas200400500Responses(t *testing.T) {
	doc, err := Generate(testDispatcher(t), "t", "v")
	require.NoError(t, err)

	ping := doc.Paths.Find("/tools/ping").Post
	for _, code := range []string{"200", "400", "500"} {
		require.NotNil(t, ping.Responses.Value(code), "missing %s response", code)
	}
}

func TestMarshalJSONProducesValidJSON(t *testing.T) {
	doc, err := Generate(testDispatcher(t), "t", "v")
	require.NoError(t, err)

	data, err := MarshalJSON(doc)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	require.Equal(t, "3.0.3", out["openapi"])
}
