// Package dispatcher routes inbound tool calls to their handlers: it holds
// the static tool table, validates every call's params against the tool's
// JSON Schema before the handler ever sees them, and wraps every outcome
// (including validation failures) in a Tool Result Envelope so the wire
// protocol never has to distinguish "handler ran and failed" from "handler
// never ran".
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.opentelemetry.io/otel/codes"

	"github.com/ado-mcp/ado-work-mcp/internal/dispatcher/resources"
	"github.com/ado-mcp/ado-work-mcp/internal/envelope"
	"github.com/ado-mcp/ado-work-mcp/internal/telemetry"
)

// HandlerFunc executes a tool's body once its input has already been
// validated against the tool's schema. raw is the original params payload,
// re-handed to the handler so it can unmarshal into its own concrete type.
type HandlerFunc func(ctx context.Context, raw json.RawMessage) envelope.Envelope

// Tool is one entry in the registry: a name, its input schema (a JSON
// Schema document, or nil if the tool takes no/unvalidated input), and the
// function that runs once validation passes.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     HandlerFunc
	// RequiresSampling marks tools whose handler calls out to the AI
	// sampling boundary (internal/sampling), so the OpenAPI generator can
	// flag them.
	RequiresSampling bool
}

// Dispatcher owns the static tool table and the compiled-schema cache.
// Tools are registered once at startup; Dispatch is safe for concurrent
// use by multiple worker tasks servicing the transport.
type Dispatcher struct {
	mu        sync.RWMutex
	tools     map[string]Tool
	schemas   map[string]*jsonschema.Schema
	prompts   map[string]PromptTemplate
	resources *resources.Catalogue
	logger    telemetry.Logger
	metrics   telemetry.Metrics
	tracer    telemetry.Tracer

	inflight atomic.Int64
}

// Option configures a Dispatcher at construction.
type Option func(*Dispatcher)

// WithLogger attaches a structured logger. Defaults to a no-op.
func WithLogger(l telemetry.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMetrics attaches a metrics sink. Defaults to a no-op.
func WithMetrics(m telemetry.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithTracer attaches a tracer. Defaults to a no-op, so outbound ADO calls
// made by a handler still carry an unbroken (if inert) span context.
func WithTracer(t telemetry.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// New constructs an empty Dispatcher. Register tools with Register before
// routing any calls.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
		prompts: make(map[string]PromptTemplate),
		logger:  telemetry.NoopLogger{},
		metrics: telemetry.NoopMetrics{},
		tracer:  telemetry.NoopTracer{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.Register(getPromptsTool(d)); err != nil {
		// getPromptsInputSchema is a constant compiled at package init;
		// a failure here means that constant is malformed, a programming
		// error rather than something callers can recover from.
		panic(fmt.Sprintf("dispatcher: register get-prompts: %v", err))
	}
	return d
}

// Register adds a tool to the table, compiling its input schema (if any)
// up front so a malformed schema fails at startup rather than on the first
// call. Registering a name twice replaces the earlier entry.
func (d *Dispatcher) Register(t Tool) error {
	var compiled *jsonschema.Schema
	if len(t.InputSchema) > 0 {
		var doc any
		if err := json.Unmarshal(t.InputSchema, &doc); err != nil {
			return fmt.Errorf("dispatcher: tool %q: unmarshal input schema: %w", t.Name, err)
		}
		c := jsonschema.NewCompiler()
		resourceID := t.Name + ".schema.json"
		if err := c.AddResource(resourceID, doc); err != nil {
			return fmt.Errorf("dispatcher: tool %q: add schema resource: %w", t.Name, err)
		}
		schema, err := c.Compile(resourceID)
		if err != nil {
			return fmt.Errorf("dispatcher: tool %q: compile schema: %w", t.Name, err)
		}
		compiled = schema
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.tools[t.Name] = t
	if compiled != nil {
		d.schemas[t.Name] = compiled
	} else {
		delete(d.schemas, t.Name)
	}
	return nil
}

// Names returns every registered tool name, sorted.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.tools))
	for name := range d.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the registered Tool by name.
func (d *Dispatcher) Lookup(name string) (Tool, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tools[name]
	return t, ok
}

// Dispatch routes one tool call: an unknown tool name, a schema validation
// failure, and a successful handler invocation all return through the same
// envelope shape. The protocol call itself always succeeds; only the
// envelope's success field carries the outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, toolName string, params json.RawMessage) envelope.Envelope {
	d.mu.RLock()
	t, ok := d.tools[toolName]
	schema := d.schemas[toolName]
	d.mu.RUnlock()

	if !ok {
		d.metrics.IncCounter("dispatcher_unknown_tool", 1, "tool="+toolName)
		return envelope.Err("dispatcher", fmt.Sprintf("unknown tool %q", toolName))
	}

	if schema != nil {
		if errs := validate(schema, params); len(errs) > 0 {
			d.metrics.IncCounter("dispatcher_validation_error", 1, "tool="+toolName)
			errs = append(errs, validationTip(t.InputSchema))
			return envelope.Err("dispatcher", errs...)
		}
	}

	d.metrics.IncCounter("dispatcher_call", 1, "tool="+toolName)

	ctx, span := d.tracer.Start(ctx, "dispatcher.dispatch."+toolName)
	inflight := d.inflight.Add(1)
	d.metrics.RecordGauge("dispatcher_inflight_calls", float64(inflight))
	start := time.Now()

	result := t.Handler(ctx, params)

	d.metrics.RecordTimer("dispatcher_call_duration", time.Since(start), "tool="+toolName)
	d.metrics.RecordGauge("dispatcher_inflight_calls", float64(d.inflight.Add(-1)))
	if !result.Success {
		d.metrics.IncCounter("dispatcher_call_error", 1, "tool="+toolName)
		span.SetStatus(codes.Error, strings.Join(result.Errors, "; "))
	}
	span.End()

	return result
}

// validate runs params (which may be empty, meaning "{}") through schema
// and renders every failure as "<field>: <message>".
func validate(schema *jsonschema.Schema, params json.RawMessage) []string {
	raw := params
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	// Decode through json.Number rather than json.Unmarshal's default
	// float64 so "integer" schema checks see the instance the way the
	// caller wrote it, not a float round-trip of it.
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return []string{fmt.Sprintf("Validation error: params: %s", err)}
	}
	err := schema.Validate(doc)
	if err == nil {
		return nil
	}
	return flattenValidationError(err)
}

// flattenValidationError renders a jsonschema validation failure into the
// "Validation error: <field>: <message>" shape the envelope contract
// requires. A *jsonschema.ValidationError's leaf causes (InstanceLocation
// plus its own error text) give the best per-field granularity; anything
// else falls back to a single message built from the root error's text.
func flattenValidationError(err error) []string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{fmt.Sprintf("Validation error: %s", err)}
	}

	var out []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			field := strings.Join(e.InstanceLocation, "/")
			if field == "" {
				field = "(root)"
			}
			out = append(out, fmt.Sprintf("Validation error: %s: %s", field, e.Error()))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	if len(out) == 0 {
		out = append(out, fmt.Sprintf("Validation error: %s", err))
	}
	return out
}

// validationTip pulls a single-line hint out of the schema's own
// description/title, shown alongside every validation error list so a
// caller correcting its params has somewhere to start.
func validationTip(schemaJSON json.RawMessage) string {
	var doc struct {
		Description string `json:"description"`
		Title       string `json:"title"`
	}
	if err := json.Unmarshal(schemaJSON, &doc); err != nil {
		return "Tip: see the tool's input schema for the expected shape."
	}
	if doc.Description != "" {
		return "Tip: " + doc.Description
	}
	if doc.Title != "" {
		return "Tip: expected shape is " + doc.Title
	}
	return "Tip: see the tool's input schema for the expected shape."
}
