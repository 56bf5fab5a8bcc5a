// Package tools registers this server's concrete tool handlers —
// query-work-items, get-work-item, bulk-update, get-metrics, and
// summarize-work-items — into a dispatcher.Dispatcher. It is the seam between the domain engines
// (internal/bulk, internal/queryhandle, internal/adoclient) and the
// protocol-facing registry that validates and routes calls to them.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ado-mcp/ado-work-mcp/internal/adoclient"
	"github.com/ado-mcp/ado-work-mcp/internal/bulk"
	"github.com/ado-mcp/ado-work-mcp/internal/dispatcher"
	"github.com/ado-mcp/ado-work-mcp/internal/envelope"
	"github.com/ado-mcp/ado-work-mcp/internal/metrics"
	"github.com/ado-mcp/ado-work-mcp/internal/queryhandle"
	"github.com/ado-mcp/ado-work-mcp/internal/sampling"
)

// Deps collects everything the registered tool handlers need. DefaultProject
// is used whenever a call omits its project (per the CLI surface's
// areaPath-derived fallback). Sampler defaults to sampling.Unavailable{}
// when the process has no AI sampling backend configured.
type Deps struct {
	Client         adoclient.Client
	Store          *queryhandle.Store
	Bulk           *bulk.Engine
	Metrics        *metrics.Sink
	Sampler        sampling.Sampler
	DefaultProject string
	Clock          func() time.Time
}

// RegisterAll wires every tool this server ships into d.
func RegisterAll(d *dispatcher.Dispatcher, deps Deps) error {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Sampler == nil {
		deps.Sampler = sampling.Unavailable{}
	}
	for _, t := range []dispatcher.Tool{
		queryWorkItemsTool(deps),
		getWorkItemTool(deps),
		bulkUpdateTool(deps),
		getMetricsTool(deps),
		summarizeWorkItemsTool(deps),
	} {
		if err := d.Register(t); err != nil {
			return fmt.Errorf("tools: register %s: %w", t.Name, err)
		}
	}
	return nil
}

func (d Deps) project(explicit string) string {
	if explicit != "" {
		return explicit
	}
	return d.DefaultProject
}

const queryWorkItemsSchema = `{
	"type": "object",
	"properties": {
		"project": {"type": "string"},
		"wiql": {"type": "string", "minLength": 1},
		"ttlSeconds": {"type": "integer", "minimum": 0}
	},
	"required": ["wiql"],
	"additionalProperties": false,
	"description": "requires a non-empty 'wiql' query string; 'project' defaults to the server's configured project; omitting 'ttlSeconds' uses the server default, while 0 expires the handle immediately"
}`

type queryWorkItemsParams struct {
	Project    string `json:"project"`
	WIQL       string `json:"wiql"`
	TTLSeconds *int   `json:"ttlSeconds"`
}

type queryWorkItemsResult struct {
	QueryHandle string `json:"queryHandle"`
	Count       int    `json:"count"`
}

// queryWorkItemsTool forwards a WIQL string to the ADO client exactly as
// given — this server implements no WIQL engine of its own — and stores the
// matching ids behind a query handle for later bulk operations to select
// from.
func queryWorkItemsTool(deps Deps) dispatcher.Tool {
	return dispatcher.Tool{
		Name:        "query-work-items",
		Description: "Run a WIQL query against Azure DevOps and return a query handle naming the result set.",
		InputSchema: json.RawMessage(queryWorkItemsSchema),
		Handler: func(ctx context.Context, raw json.RawMessage) envelope.Envelope {
			var params queryWorkItemsParams
			if err := json.Unmarshal(raw, &params); err != nil {
				return envelope.Err("tools.query-work-items", "Validation error: params: "+err.Error())
			}
			project := deps.project(params.Project)

			items, err := deps.Client.QueryByWIQL(ctx, project, params.WIQL)
			if err != nil {
				return envelope.Err("tools.query-work-items", err.Error())
			}

			ids := make([]int, 0, len(items))
			itemContext := make(map[int]queryhandle.WorkItemContext, len(items))
			now := deps.Clock()
			for _, wi := range items {
				ids = append(ids, wi.ID)
				itemContext[wi.ID] = workItemContext(wi, now)
			}

			// A nil TTLSeconds ("omitted") maps to the negative sentinel
			// queryhandle.Store treats as "use DefaultTTL"; an explicit 0
			// is passed through so the handle expires immediately.
			ttl := time.Duration(-1)
			if params.TTLSeconds != nil {
				ttl = time.Duration(*params.TTLSeconds) * time.Second
			}
			handle := deps.Store.StoreQuery(ids, params.WIQL, queryhandle.QueryMetadata{
				"project":   project,
				"queryType": "wiql",
			}, ttl, itemContext, nil)

			return envelope.Ok("tools.query-work-items", queryWorkItemsResult{
				QueryHandle: handle,
				Count:       len(ids),
			})
		},
	}
}

// workItemContext derives the read-only context snapshot a query handle
// carries alongside an id. changedDate/daysInactive are best-effort: they
// are set only when the item's Fields carry "System.ChangedDate" as an
// RFC 3339 string.
func workItemContext(wi adoclient.WorkItem, now time.Time) queryhandle.WorkItemContext {
	ctx := queryhandle.WorkItemContext{
		Title:         wi.Title,
		State:         wi.State,
		Type:          wi.Type,
		AssignedTo:    wi.AssignedTo,
		Tags:          wi.Tags,
		IterationPath: wi.IterationPath,
	}
	raw, ok := wi.Fields["System.ChangedDate"].(string)
	if !ok {
		return ctx
	}
	changed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return ctx
	}
	ctx.ChangedDate = &changed
	days := int(now.Sub(changed).Hours() / 24)
	ctx.DaysInactive = &days
	return ctx
}

const getWorkItemSchema = `{
	"type": "object",
	"properties": {
		"project": {"type": "string"},
		"id": {"type": "integer", "minimum": 1}
	},
	"required": ["id"],
	"additionalProperties": false,
	"description": "requires a positive integer 'id'; 'project' defaults to the server's configured project"
}`

type getWorkItemParams struct {
	Project string `json:"project"`
	ID      int    `json:"id"`
}

// getWorkItemTool fetches a single work item outside of any bulk pipeline,
// for an agent that already knows the id it wants.
func getWorkItemTool(deps Deps) dispatcher.Tool {
	return dispatcher.Tool{
		Name:        "get-work-item",
		Description: "Fetch a single work item by id.",
		InputSchema: json.RawMessage(getWorkItemSchema),
		Handler: func(ctx context.Context, raw json.RawMessage) envelope.Envelope {
			var params getWorkItemParams
			if err := json.Unmarshal(raw, &params); err != nil {
				return envelope.Err("tools.get-work-item", "Validation error: params: "+err.Error())
			}
			wi, err := deps.Client.GetWorkItem(ctx, deps.project(params.Project), params.ID)
			if err != nil {
				return envelope.Err("tools.get-work-item", err.Error())
			}
			return envelope.Ok("tools.get-work-item", wi)
		},
	}
}

const bulkUpdateSchema = `{
	"type": "object",
	"properties": {
		"project": {"type": "string"},
		"queryHandle": {"type": "string", "minLength": 1},
		"selector": {"type": "object"},
		"actions": {"type": "array", "minItems": 1},
		"dryRun": {"type": "boolean"},
		"stopOnError": {"type": "boolean"},
		"maxPreviewItems": {"type": "integer", "minimum": 1}
	},
	"required": ["queryHandle", "actions"],
	"additionalProperties": false,
	"description": "requires a 'queryHandle' from query-work-items and a non-empty 'actions' list"
}`

// bulkUpdateTool is a thin adapter: bulk.Request's field names already
// match the JSON shape this tool accepts case-insensitively, so the params
// payload decodes straight into it.
func bulkUpdateTool(deps Deps) dispatcher.Tool {
	return dispatcher.Tool{
		Name:        "bulk-update",
		Description: "Run an ordered pipeline of actions across the work items a query handle and selector resolve to.",
		InputSchema: json.RawMessage(bulkUpdateSchema),
		Handler: func(ctx context.Context, raw json.RawMessage) envelope.Envelope {
			var req bulk.Request
			if err := json.Unmarshal(raw, &req); err != nil {
				return envelope.Err("tools.bulk-update", "Validation error: params: "+err.Error())
			}
			req.Project = deps.project(req.Project)
			return deps.Bulk.Execute(ctx, req)
		},
	}
}

const getMetricsSchema = `{
	"type": "object",
	"properties": {
		"name": {"type": "string"},
		"kind": {"type": "string", "enum": ["counter", "gauge", "histogram"]}
	},
	"additionalProperties": false
}`

type getMetricsParams struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type metricsSnapshot struct {
	Counters   map[string]float64                `json:"counters,omitempty"`
	Gauges     map[string]float64                `json:"gauges,omitempty"`
	Histograms map[string]metrics.HistogramStats `json:"histograms,omitempty"`
	UptimeMS   int64                              `json:"uptimeMs"`
}

// getMetricsTool is the introspection tool §3.7/component G describes:
// read access into the process-wide metrics sink, either as a full
// snapshot or narrowed to one named series.
func getMetricsTool(deps Deps) dispatcher.Tool {
	return dispatcher.Tool{
		Name:        "get-metrics",
		Description: "Read counters, gauges, and histogram summary stats from the process-wide metrics sink.",
		InputSchema: json.RawMessage(getMetricsSchema),
		Handler: func(_ context.Context, raw json.RawMessage) envelope.Envelope {
			var params getMetricsParams
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &params); err != nil {
					return envelope.Err("tools.get-metrics", "Validation error: params: "+err.Error())
				}
			}
			if deps.Metrics == nil {
				return envelope.Err("tools.get-metrics", "metrics sink not configured")
			}

			snap := metricsSnapshot{UptimeMS: deps.Metrics.Uptime().Milliseconds()}
			if params.Name != "" {
				switch params.Kind {
				case "gauge":
					snap.Gauges = map[string]float64{params.Name: deps.Metrics.Gauge(params.Name)}
				case "histogram":
					snap.Histograms = map[string]metrics.HistogramStats{params.Name: deps.Metrics.Histogram(params.Name)}
				default:
					snap.Counters = map[string]float64{params.Name: deps.Metrics.Counter(params.Name)}
				}
				return envelope.Ok("tools.get-metrics", snap)
			}

			snap.Counters = namedValues(deps.Metrics.CounterNames(), deps.Metrics.Counter)
			snap.Gauges = namedValues(deps.Metrics.GaugeNames(), deps.Metrics.Gauge)
			snap.Histograms = make(map[string]metrics.HistogramStats, len(deps.Metrics.HistogramNames()))
			for _, name := range deps.Metrics.HistogramNames() {
				snap.Histograms[name] = deps.Metrics.Histogram(name)
			}
			return envelope.Ok("tools.get-metrics", snap)
		},
	}
}

func namedValues(names []string, read func(string, ...string) float64) map[string]float64 {
	out := make(map[string]float64, len(names))
	for _, name := range names {
		out[name] = read(name)
	}
	return out
}
