package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ado-mcp/ado-work-mcp/internal/dispatcher"
	"github.com/ado-mcp/ado-work-mcp/internal/envelope"
	"github.com/ado-mcp/ado-work-mcp/internal/queryhandle"
	"github.com/ado-mcp/ado-work-mcp/internal/sampling"
)

const summarizeWorkItemsSchema = `{
	"type": "object",
	"properties": {
		"queryHandle": {"type": "string", "minLength": 1},
		"selector": {"type": "object"},
		"instructions": {"type": "string"}
	},
	"required": ["queryHandle"],
	"additionalProperties": false,
	"description": "requires a 'queryHandle' from query-work-items; 'instructions' steers the summary"
}`

type summarizeWorkItemsParams struct {
	QueryHandle  string               `json:"queryHandle"`
	Selector     queryhandle.Selector `json:"selector"`
	Instructions string               `json:"instructions"`
}

type summarizeWorkItemsResult struct {
	Summary string `json:"summary"`
}

// summarizeWorkItemsTool is this server's one sampling-dependent tool: it
// turns a query handle's resolved items into a natural-language digest via
// the configured Sampler, exercising the boundary described as "an opaque
// (promptMessages) -> {text, usage?} call" and the deterministic
// unavailable envelope when no backend is configured.
func summarizeWorkItemsTool(deps Deps) dispatcher.Tool {
	return dispatcher.Tool{
		Name:             "summarize-work-items",
		Description:      "Produce a natural-language summary of the work items a query handle resolves to.",
		InputSchema:      json.RawMessage(summarizeWorkItemsSchema),
		RequiresSampling: true,
		Handler: func(ctx context.Context, raw json.RawMessage) envelope.Envelope {
			var params summarizeWorkItemsParams
			if err := json.Unmarshal(raw, &params); err != nil {
				return envelope.Err("tools.summarize-work-items", "Validation error: params: "+err.Error())
			}

			rec := deps.Store.GetQueryData(params.QueryHandle)
			if rec == nil {
				return envelope.Err("tools.summarize-work-items", "unknown or expired query handle")
			}
			selector := params.Selector
			if !selector.All && selector.Indices == nil && (selector.Criteria == nil || selector.Criteria.IsEmpty()) {
				selector = queryhandle.Selector{All: true}
			}
			ids := deps.Store.ResolveItemSelector(params.QueryHandle, selector)

			prompt := buildSummaryPrompt(rec, ids, params.Instructions)
			result, err := deps.Sampler.Sample(ctx, sampling.Request{
				Messages: []sampling.Message{
					{Role: sampling.RoleSystem, Text: "You summarize Azure DevOps work item lists concisely for an engineering lead."},
					{Role: sampling.RoleUser, Text: prompt},
				},
				MaxTokens: 512,
			})
			if err != nil {
				if errors.Is(err, sampling.ErrUnavailable) {
					return envelope.Err("tools.summarize-work-items", sampling.ErrUnavailable.Error())
				}
				return envelope.Err("tools.summarize-work-items", err.Error())
			}

			return envelope.Ok("tools.summarize-work-items", summarizeWorkItemsResult{Summary: result.Text})
		},
	}
}

func buildSummaryPrompt(rec *queryhandle.Record, ids []int, instructions string) string {
	var b strings.Builder
	b.WriteString("Summarize the following work items")
	if instructions != "" {
		fmt.Fprintf(&b, " (%s)", instructions)
	}
	b.WriteString(":\n")

	sorted := append([]int(nil), ids...)
	sort.Ints(sorted)
	for _, id := range sorted {
		wi := rec.WorkItemContext[id]
		fmt.Fprintf(&b, "- #%d %q [%s/%s] assigned to %q\n", id, wi.Title, wi.Type, wi.State, wi.AssignedTo)
	}
	return b.String()
}
