// Package bulk implements the engine that applies a pipeline of actions to
// a subset of work items referenced by a query handle, with dry-run
// preview and per-item error isolation.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/ado-mcp/ado-work-mcp/internal/adoclient"
	"github.com/ado-mcp/ado-work-mcp/internal/envelope"
	"github.com/ado-mcp/ado-work-mcp/internal/queryhandle"
	"github.com/ado-mcp/ado-work-mcp/internal/telemetry"
)

// ActionKind names one of the recognized bulk-action variants.
type ActionKind string

const (
	ActionComment         ActionKind = "comment"
	ActionAssign          ActionKind = "assign"
	ActionUpdate          ActionKind = "update"
	ActionRemove          ActionKind = "remove"
	ActionTransitionState ActionKind = "transition-state"
	ActionMoveIteration   ActionKind = "move-iteration"
	ActionAddTag          ActionKind = "add-tag"
	ActionRemoveTag       ActionKind = "remove-tag"
	ActionLink            ActionKind = "link"
)

// LinkStrategy names how two handles' id lists are paired by a link action.
type LinkStrategy string

const (
	StrategyOneToOne   LinkStrategy = "one-to-one"
	StrategyOneToMany  LinkStrategy = "one-to-many"
	StrategyManyToOne  LinkStrategy = "many-to-one"
	StrategyManyToMany LinkStrategy = "many-to-many"
)

// Action is the sum type of bulk pipeline steps. Only the fields relevant
// to Kind are read.
type Action struct {
	Kind ActionKind

	// comment, assign, transition-state, move-iteration
	Comment string

	// assign
	AssignTo string

	// update
	Updates []adoclient.PatchOp

	// remove
	RemoveReason string

	// transition-state
	TargetState string
	Reason      string

	// move-iteration. UpdateChildItems is accepted but not read: only the
	// selected items are moved, never their child items.
	TargetIterationPath string
	UpdateChildItems    bool

	// add-tag, remove-tag (semicolon-separated)
	Tags string

	// link
	SourceQueryHandle string
	TargetQueryHandle string
	LinkType          string
	LinkStrategy      LinkStrategy
	SkipExisting      bool
}

// Request is one invocation of the engine.
type Request struct {
	Project         string
	QueryHandle     string
	Selector        queryhandle.Selector // zero value resolves to "all" below
	Actions         []Action
	DryRun          bool
	StopOnError     bool
	MaxPreviewItems int // 0 selects the action-class default
}

// ItemFailure records one per-item action failure.
type ItemFailure struct {
	ID    int    `json:"id"`
	Error string `json:"error"`
}

// ItemSuccess records one per-item action success.
type ItemSuccess struct {
	ID     int `json:"id"`
	Result any `json:"result,omitempty"`
}

// ActionResult aggregates the outcome of one action across all selected
// items.
type ActionResult struct {
	Kind      ActionKind    `json:"kind"`
	Successes []ItemSuccess `json:"successes"`
	Failures  []ItemFailure `json:"failures"`
	Skipped   bool          `json:"skipped"`
}

// Result is the data payload of a bulk operation envelope.
type Result struct {
	DryRun             bool           `json:"dry_run"`
	PreviewItems       []int          `json:"preview_items,omitempty"`
	PreviewMessage     string         `json:"preview_message,omitempty"`
	SelectedItemsCount int            `json:"selected_items_count"`
	TotalItemsInHandle int            `json:"total_items_in_handle"`
	ActionsCompleted   int            `json:"actions_completed"`
	ActionsFailed      int            `json:"actions_failed"`
	// Successful/Failed are item-level totals across every executed
	// action's Successes/Failures — the counts §7's "data may still
	// contain partial results" and the partial-failure E2E scenario
	// check (data.successful/data.failed), distinct from the
	// action-level ActionsCompleted/ActionsFailed above.
	Successful int            `json:"successful"`
	Failed     int            `json:"failed"`
	Actions    []ActionResult `json:"actions,omitempty"`
}

// Engine executes bulk requests against a query handle store and an ADO
// client.
type Engine struct {
	store  *queryhandle.Store
	client adoclient.Client

	itemTimeout time.Duration
	typeRank    map[string]int
	tracer      telemetry.Tracer
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithItemTimeout overrides the per-item call timeout (default 30s).
func WithItemTimeout(d time.Duration) Option {
	return func(e *Engine) { e.itemTimeout = d }
}

// WithTracer attaches a tracer; Execute starts one span per request, and
// every per-item client call it makes inherits that span's context.
// Defaults to a no-op.
func WithTracer(t telemetry.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// New constructs an Engine.
func New(store *queryhandle.Store, client adoclient.Client, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		client:      client,
		itemTimeout: 30 * time.Second,
		typeRank: map[string]int{
			"Epic": 4, "Feature": 3, "User Story": 2, "Product Backlog Item": 2,
			"Bug": 1, "Task": 1,
		},
		tracer: telemetry.NoopTracer{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

const defaultMaxPreviewItems = 5

// commentOnlyMaxPreviewItems is used when every requested action is a
// comment: previewing a comment carries no mutation risk, so a larger
// slice is more useful than the generic default.
const commentOnlyMaxPreviewItems = 10

// Execute runs req to completion (or preview, if DryRun), returning an
// envelope whose Data is a Result on every code path that gets past
// handle/selector and pre-flight validation. The whole run is wrapped in a single span;
// every client call it makes below inherits that span's context.
func (e *Engine) Execute(ctx context.Context, req Request) envelope.Envelope {
	ctx, span := e.tracer.Start(ctx, "bulk.execute")
	defer span.End()

	env := e.execute(ctx, req)
	if !env.Success {
		span.SetStatus(codes.Error, strings.Join(env.Errors, "; "))
	}
	return env
}

func (e *Engine) execute(ctx context.Context, req Request) envelope.Envelope {
	rec := e.store.GetQueryData(req.QueryHandle)
	if rec == nil {
		return envelope.Err("bulk-engine", fmt.Sprintf(
			"Query handle %q not found or expired", handlePrefix(req.QueryHandle)))
	}

	selector := req.Selector
	if !selector.All && selector.Indices == nil && selector.Criteria == nil {
		selector = queryhandle.Selector{All: true}
	}
	ids := e.store.ResolveItemSelector(req.QueryHandle, selector)
	if ids == nil {
		return envelope.Err("bulk-engine", "Invalid item selector")
	}
	if len(ids) == 0 {
		return envelope.Err("bulk-engine", "No work items matched")
	}

	maxPreview := req.MaxPreviewItems
	if maxPreview <= 0 {
		maxPreview = defaultMaxPreviewItems
		if allCommentActions(req.Actions) {
			maxPreview = commentOnlyMaxPreviewItems
		}
	}
	previewCount := maxPreview
	if previewCount > len(ids) {
		previewCount = len(ids)
	}
	preview := append([]int(nil), ids[:previewCount]...)
	var previewMsg string
	if previewCount < len(ids) {
		previewMsg = fmt.Sprintf("Showing %d of %d items...", previewCount, len(ids))
	}

	if req.DryRun {
		return envelope.Ok("bulk-engine", Result{
			DryRun:             true,
			PreviewItems:       preview,
			PreviewMessage:     previewMsg,
			SelectedItemsCount: len(ids),
			TotalItemsInHandle: len(rec.WorkItemIDs),
		})
	}

	var warnings []string
	if valErr := e.preflightValidate(ctx, req); valErr != "" {
		return envelope.Err("bulk-engine", valErr)
	}

	results := make([]ActionResult, 0, len(req.Actions))
	stopped := false
	for _, action := range req.Actions {
		if stopped {
			results = append(results, ActionResult{Kind: action.Kind, Skipped: true})
			continue
		}
		ar, w := e.runAction(ctx, req.Project, action, ids)
		warnings = append(warnings, w...)
		results = append(results, ar)
		if len(ar.Failures) > 0 && req.StopOnError {
			stopped = true
		}
	}

	completed, failed := 0, 0
	itemsSuccessful, itemsFailed := 0, 0
	for _, ar := range results {
		if ar.Skipped {
			continue
		}
		if len(ar.Failures) == 0 {
			completed++
		} else {
			failed++
		}
		itemsSuccessful += len(ar.Successes)
		itemsFailed += len(ar.Failures)
	}
	if itemsFailed > 0 {
		warnings = append(warnings, fmt.Sprintf("%d item(s) failed", itemsFailed))
	}

	result := Result{
		SelectedItemsCount: len(ids),
		TotalItemsInHandle: len(rec.WorkItemIDs),
		ActionsCompleted:   completed,
		ActionsFailed:      failed,
		Successful:         itemsSuccessful,
		Failed:             itemsFailed,
		Actions:            results,
	}

	if failed > 0 {
		env := envelope.ErrWithData("bulk-engine", result, fmt.Sprintf("%d of %d actions had failures", failed, len(results)))
		env.Warnings = append(env.Warnings, warnings...)
		return env
	}
	return envelope.Ok("bulk-engine", result, envelope.WithWarnings(warnings...))
}

func allCommentActions(actions []Action) bool {
	if len(actions) == 0 {
		return false
	}
	for _, a := range actions {
		if a.Kind != ActionComment {
			return false
		}
	}
	return true
}

func handlePrefix(handle string) string {
	const n = 12
	if len(handle) <= n {
		return handle
	}
	return handle[:n]
}

// preflightValidate validates every action that references an external
// entity before any side effects begin. Returns a non-empty error string
// if validation fails for any action in the pipeline.
func (e *Engine) preflightValidate(ctx context.Context, req Request) string {
	for _, action := range req.Actions {
		switch action.Kind {
		case ActionMoveIteration:
			exists, err := e.client.IterationPathExists(ctx, req.Project, action.TargetIterationPath)
			if err != nil {
				return fmt.Sprintf("Failed to validate iteration path %q: %v", action.TargetIterationPath, err)
			}
			if !exists {
				return fmt.Sprintf("Iteration path %q does not exist", action.TargetIterationPath)
			}
		case ActionLink:
			if _, ok := adoclient.LinkTypeRef[action.LinkType]; !ok {
				return fmt.Sprintf("Unknown link type %q", action.LinkType)
			}
		}
	}
	return ""
}

func (e *Engine) runAction(ctx context.Context, project string, action Action, ids []int) (ActionResult, []string) {
	if action.Kind == ActionLink {
		return e.runLink(ctx, project, action)
	}

	ar := ActionResult{Kind: action.Kind}
	var warnings []string
	for _, id := range ids {
		itemCtx, cancel := context.WithTimeout(ctx, e.itemTimeout)
		result, warn, err := e.runSingleItemAction(itemCtx, project, action, id)
		cancel()
		if warn != "" {
			warnings = append(warnings, warn)
		}
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = errors.New("timeout")
			}
			ar.Failures = append(ar.Failures, ItemFailure{ID: id, Error: err.Error()})
			continue
		}
		ar.Successes = append(ar.Successes, ItemSuccess{ID: id, Result: result})
	}
	return ar, warnings
}

func (e *Engine) runSingleItemAction(ctx context.Context, project string, action Action, id int) (any, string, error) {
	switch action.Kind {
	case ActionComment:
		return nil, "", e.client.AddComment(ctx, project, id, action.Comment)

	case ActionAssign:
		ops := []adoclient.PatchOp{{Op: "add", Path: "/fields/System.AssignedTo", Value: action.AssignTo}}
		if _, err := e.client.UpdateWorkItem(ctx, project, id, ops); err != nil {
			return nil, "", err
		}
		if action.Comment != "" {
			if err := e.client.AddComment(ctx, project, id, action.Comment); err != nil {
				return nil, "", err
			}
		}
		return nil, "", nil

	case ActionUpdate:
		wi, err := e.client.UpdateWorkItem(ctx, project, id, action.Updates)
		return wi, "", err

	case ActionRemove:
		if err := e.client.AddComment(ctx, project, id, action.RemoveReason); err != nil {
			return nil, "", err
		}
		return e.transitionState(ctx, project, id, "Removed", "", "")

	case ActionTransitionState:
		return e.transitionState(ctx, project, id, action.TargetState, action.Reason, action.Comment)

	case ActionMoveIteration:
		ops := []adoclient.PatchOp{{Op: "add", Path: "/fields/System.IterationPath", Value: action.TargetIterationPath}}
		if _, err := e.client.UpdateWorkItem(ctx, project, id, ops); err != nil {
			return nil, "", err
		}
		if action.Comment != "" {
			if err := e.client.AddComment(ctx, project, id, action.Comment); err != nil {
				return nil, "", err
			}
		}
		return nil, "", nil

	case ActionAddTag:
		return e.modifyTags(ctx, project, id, adoclient.SplitTags(action.Tags), true)

	case ActionRemoveTag:
		return e.modifyTags(ctx, project, id, adoclient.SplitTags(action.Tags), false)

	default:
		return nil, "", fmt.Errorf("unrecognized action kind %q", action.Kind)
	}
}

func (e *Engine) transitionState(ctx context.Context, project string, id int, targetState, reason, comment string) (any, string, error) {
	wi, err := e.client.GetWorkItem(ctx, project, id)
	if err != nil {
		return nil, "", err
	}

	if strings.EqualFold(wi.State, targetState) {
		return nil, fmt.Sprintf("item %d is already in state %q; skipped", id, targetState), nil
	}

	var warning string
	if strings.EqualFold(wi.State, "Removed") && !strings.EqualFold(targetState, "Removed") {
		warning = fmt.Sprintf("item %d is transitioning out of a terminal Removed state; backend may reject this", id)
	}

	ops := []adoclient.PatchOp{{Op: "add", Path: "/fields/System.State", Value: targetState}}
	if reason != "" {
		ops = append(ops, adoclient.PatchOp{Op: "add", Path: "/fields/System.Reason", Value: reason})
	}
	if _, err := e.client.UpdateWorkItem(ctx, project, id, ops); err != nil {
		return nil, warning, err
	}
	if comment != "" {
		if err := e.client.AddComment(ctx, project, id, comment); err != nil {
			return nil, warning, err
		}
	}
	return nil, warning, nil
}

func (e *Engine) modifyTags(ctx context.Context, project string, id int, delta []string, add bool) (any, string, error) {
	wi, err := e.client.GetWorkItem(ctx, project, id)
	if err != nil {
		return nil, "", err
	}

	var merged []string
	if add {
		merged = unionFold(wi.Tags, delta)
	} else {
		merged = subtractFold(wi.Tags, delta)
	}

	ops := []adoclient.PatchOp{{Op: "add", Path: "/fields/System.Tags", Value: adoclient.JoinTags(merged)}}
	if _, err := e.client.UpdateWorkItem(ctx, project, id, ops); err != nil {
		return nil, "", err
	}
	return merged, "", nil
}

// unionFold adds each entry of add to existing, skipping case-insensitive
// duplicates and preserving existing casing.
func unionFold(existing, add []string) []string {
	out := append([]string(nil), existing...)
	for _, a := range add {
		if !containsFold(out, a) {
			out = append(out, a)
		}
	}
	return out
}

// subtractFold removes entries of remove from existing by case-insensitive
// match, preserving the casing and order of whatever remains.
func subtractFold(existing, remove []string) []string {
	var out []string
	for _, e := range existing {
		if !containsFold(remove, e) {
			out = append(out, e)
		}
	}
	return out
}

func containsFold(set []string, v string) bool {
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
