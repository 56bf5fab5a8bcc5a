// Command ado-work-mcp runs the Azure DevOps work-item MCP server: a
// long-lived process that speaks framed JSON-RPC over stdin/stdout to an
// AI agent host and mediates every call into Azure DevOps work-tracking
// operations.
//
// # Configuration
//
// Flags (see --help for the full list), layered under ADO_MCP_-prefixed
// environment variables and an optional --config YAML file:
//
//	--organization        Azure DevOps organization name (required)
//	--project             Azure DevOps project name
//	--area-path           Azure DevOps area path (used to derive --project if omitted)
//	--sampling-backend     anthropic, openai, or bedrock (optional)
//	--debug-http-addr      address to serve /healthz, /metrics, /openapi.json on
//
// A handful of settings are read unprefixed, matching the host-launched
// convention other MCP servers in this family use:
//
//	MCP_FORCE_NEWLINE         - force newline-delimited output framing
//	MCP_FORCE_CONTENT_LENGTH  - force Content-Length output framing
//	MCP_DEBUG                 - enable verbose logging
//
// # Example
//
//	ado-work-mcp --organization contoso --project Widgets
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ado-mcp/ado-work-mcp/internal/adoclient"
	"github.com/ado-mcp/ado-work-mcp/internal/bulk"
	"github.com/ado-mcp/ado-work-mcp/internal/config"
	"github.com/ado-mcp/ado-work-mcp/internal/dispatcher"
	"github.com/ado-mcp/ado-work-mcp/internal/dispatcher/resources"
	"github.com/ado-mcp/ado-work-mcp/internal/httpapi"
	"github.com/ado-mcp/ado-work-mcp/internal/metrics"
	"github.com/ado-mcp/ado-work-mcp/internal/queryhandle"
	"github.com/ado-mcp/ado-work-mcp/internal/sampling"
	"github.com/ado-mcp/ado-work-mcp/internal/telemetry"
	"github.com/ado-mcp/ado-work-mcp/internal/token"
	"github.com/ado-mcp/ado-work-mcp/internal/tools"
	"github.com/ado-mcp/ado-work-mcp/internal/transport"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ado-work-mcp",
		Short:         "Model Context Protocol server for Azure DevOps work items",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	config.RegisterFlags(cmd)
	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := telemetry.NewNoopLogger()
	if cfg.Debug {
		logger = telemetry.NewClueLogger()
	}
	tracer := telemetry.NewOtelTracer()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tokens := token.New(token.NewAzureCLISource(cfg.AutoLaunchBrowser))
	client := adoclient.New(cfg.BaseURL, cfg.Organization, tokens, adoclient.WithTracer(tracer))

	store := queryhandle.New()
	defer store.StopCleanup()

	bulkEngine := bulk.New(store, client, bulk.WithTracer(tracer))

	sampler, err := sampling.New(ctx, sampling.BackendConfig{
		Backend: cfg.SamplingBackend,
		APIKey:  cfg.SamplingAPIKey,
		Model:   cfg.SamplingModel,
	})
	if err != nil {
		return fmt.Errorf("build sampling backend: %w", err)
	}

	metricsSink := metrics.New()
	// fanoutMetrics keeps raw samples in metricsSink for the get-metrics
	// introspection tool while also forwarding into whatever OTEL
	// MeterProvider the operator has configured (a no-op provider if none).
	fanoutMetrics := newMultiMetrics(metricsSink, telemetry.NewOtelMetrics())

	d := dispatcher.New(
		dispatcher.WithLogger(logger),
		dispatcher.WithMetrics(fanoutMetrics),
		dispatcher.WithTracer(tracer),
		dispatcher.WithResources(resources.Default()),
	)
	registerPrompts(d)

	if err := tools.RegisterAll(d, tools.Deps{
		Client:         client,
		Store:          store,
		Bulk:           bulkEngine,
		Metrics:        metricsSink,
		Sampler:        sampler,
		DefaultProject: cfg.EffectiveProject(),
	}); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}

	if cfg.DebugHTTPAddr != "" {
		go func() {
			srvCfg := httpapi.Config{
				Dispatcher:     d,
				Metrics:        metricsSink,
				OpenAPITitle:   "ado-work-mcp",
				OpenAPIVersion: "0.1.0",
			}
			if err := httpapi.Serve(cfg.DebugHTTPAddr, srvCfg); err != nil {
				logger.Error(ctx, "debug http surface stopped", "error", err)
			}
		}()
	}

	framing := transport.FramingContentLength
	if cfg.ForceNewline && !cfg.ForceContentLength {
		framing = transport.FramingNewline
	}

	tr := transport.New(os.Stdin, os.Stdout,
		transport.WithOutputFraming(framing),
		transport.WithLogger(logger),
	)
	tr.OnMessage(func(raw json.RawMessage) { handleMessage(ctx, tr, d, logger, raw) })
	tr.OnError(func(err error) { logger.Error(ctx, "transport read error", "error", err) })
	tr.OnClose(func() { cancel() })

	if err := tr.Start(ctx); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}

	<-ctx.Done()
	return tr.Close()
}

// multiMetrics fans a single Metrics call out to every backend it wraps, so
// the process-local metrics.Sink (read by get-metrics) and an OTEL exporter
// can both observe the same events without either side knowing about the
// other.
type multiMetrics []telemetry.Metrics

func newMultiMetrics(backends ...telemetry.Metrics) telemetry.Metrics { return multiMetrics(backends) }

func (m multiMetrics) IncCounter(name string, value float64, tags ...string) {
	for _, b := range m {
		b.IncCounter(name, value, tags...)
	}
}

func (m multiMetrics) RecordTimer(name string, d time.Duration, tags ...string) {
	for _, b := range m {
		b.RecordTimer(name, d, tags...)
	}
}

func (m multiMetrics) RecordGauge(name string, value float64, tags ...string) {
	for _, b := range m {
		b.RecordGauge(name, value, tags...)
	}
}

// rpcRequest is the subset of a JSON-RPC 2.0 request this server reads.
// ID is kept as raw JSON so a string id, a numeric id, or a missing id
// (a notification, which gets no response) round-trip untouched.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result"`
}

type readResourceParams struct {
	URI string `json:"uri"`
}

// handleMessage decodes one inbound frame, routes it to the dispatcher (or
// the resources catalogue, for the two methods the dispatcher serves
// outside the tool table), and writes back a JSON-RPC response carrying the
// Tool Result Envelope as its result. A malformed frame or a notification
// (no id) produces no response, matching JSON-RPC 2.0 semantics.
func handleMessage(ctx context.Context, tr *transport.Transport, d *dispatcher.Dispatcher, logger telemetry.Logger, raw json.RawMessage) {
	var req rpcRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		logger.Error(ctx, "malformed json-rpc frame", "error", err)
		return
	}

	var result any
	switch req.Method {
	case "resources/list":
		result = d.ListResources()
	case "resources/read":
		var params readResourceParams
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				logger.Error(ctx, "malformed resources/read params", "error", err)
				return
			}
		}
		result = d.ReadResource(params.URI)
	default:
		result = d.Dispatch(ctx, req.Method, req.Params)
	}

	if len(req.ID) == 0 {
		return // notification: no response expected
	}

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
	if err := tr.Send(ctx, resp); err != nil {
		logger.Error(ctx, "send response failed", "error", err, "method", req.Method)
	}
}

// registerPrompts seeds the prompt templates the get-prompts introspection
// tool reports, covering the two judgment calls an agent most often needs a
// nudge on: what to do with a stale query handle's contents, and how to
// stage a bulk mutation safely.
func registerPrompts(d *dispatcher.Dispatcher) {
	d.RegisterPrompt(dispatcher.PromptTemplate{
		Name:        "triage-stale-work-items",
		Description: "Summarize and recommend next actions for a set of work items returned by a query, focusing on staleness.",
		ArgNames:    []string{"queryHandle", "focus"},
		Content: `You have a query handle naming a set of Azure DevOps work items. For
each item, consider its state, assignee, and days since last change (when
available). Group the items by recommended action: needs follow-up,
safe to close, blocked, or no action needed. {{focus}} narrows which of
those groups to emphasize; if empty, cover all of them. Do not invent
field values you were not given.`,
	})
	d.RegisterPrompt(dispatcher.PromptTemplate{
		Name:        "plan-bulk-update",
		Description: "Draft a bulk-update action list for a stated goal, to review before running it without dryRun.",
		ArgNames:    []string{"goal", "queryHandle"},
		Content: `Given the stated goal and the work items behind the query handle,
propose an ordered list of bulk-update actions (comment, assign, add-tag,
remove-tag, transition-state, move-iteration, link, remove) that would
accomplish it. Default to recommending dryRun: true for the first run,
and call out any action whose effect is hard to reverse (transition-state,
remove).`,
	})
}
