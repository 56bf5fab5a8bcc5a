// Package adoclienttest provides an in-memory adoclient.Client double for
// tests, modeled on the controllable mock clients used elsewhere in this
// codebase's test suites.
package adoclienttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/ado-mcp/ado-work-mcp/internal/adoclient"
)

// Fake is an in-memory Client. Each method can be made to fail for a
// specific work-item id via FailNextFor, to simulate per-item error isolation.
type Fake struct {
	mu sync.Mutex

	items              map[int]*adoclient.WorkItem
	relations          map[int][]adoclient.Relation
	validPaths         map[string]bool
	failIDs            map[int]error
	comments           map[int][]string
	updateCalls        []updateCall
	linkCalls          []linkCall
	iterationPathCalls []string
	queryResults       map[string][]int
	wiqlCalls          []string
}

type updateCall struct {
	ID  int
	Ops []adoclient.PatchOp
}

type linkCall struct {
	SourceID, TargetID int
	LinkType           string
}

// New constructs an empty Fake. Use Seed to populate work items.
func New() *Fake {
	return &Fake{
		items:        make(map[int]*adoclient.WorkItem),
		relations:    make(map[int][]adoclient.Relation),
		validPaths:   make(map[string]bool),
		failIDs:      make(map[int]error),
		comments:     make(map[int][]string),
		queryResults: make(map[string][]int),
	}
}

// Seed registers a work item the fake will serve.
func (f *Fake) Seed(wi adoclient.WorkItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := wi
	f.items[wi.ID] = &cp
}

// SeedValidIterationPath marks a path as existing for IterationPathExists.
func (f *Fake) SeedValidIterationPath(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validPaths[path] = true
}

// SeedQueryResult makes QueryByWIQL return the given ids, in order, when
// called with the exact wiql string. Ids not already Seeded resolve to
// bare work items carrying only their ID rather than failing the call.
func (f *Fake) SeedQueryResult(wiql string, ids []int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryResults[wiql] = append([]int(nil), ids...)
}

// WIQLCalls returns every WIQL query string QueryByWIQL was called with, in
// order.
func (f *Fake) WIQLCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.wiqlCalls...)
}

// FailNextFor makes every call referencing id return err.
func (f *Fake) FailNextFor(id int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failIDs[id] = err
}

// Comments returns the comments recorded for id, in append order.
func (f *Fake) Comments(id int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.comments[id]...)
}

// UpdateCalls returns every UpdateWorkItem invocation, in order.
func (f *Fake) UpdateCalls() []updateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]updateCall(nil), f.updateCalls...)
}

// LinkCalls returns every AddLink invocation, in order.
func (f *Fake) LinkCalls() []linkCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]linkCall(nil), f.linkCalls...)
}

func (f *Fake) GetWorkItem(_ context.Context, _ string, id int) (*adoclient.WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failIDs[id]; ok {
		return nil, err
	}
	wi, ok := f.items[id]
	if !ok {
		return nil, fmt.Errorf("adoclienttest: work item %d not found", id)
	}
	cp := *wi
	return &cp, nil
}

func (f *Fake) UpdateWorkItem(_ context.Context, _ string, id int, ops []adoclient.PatchOp) (*adoclient.WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls = append(f.updateCalls, updateCall{ID: id, Ops: ops})

	if err, ok := f.failIDs[id]; ok {
		return nil, err
	}
	wi, ok := f.items[id]
	if !ok {
		return nil, fmt.Errorf("adoclienttest: work item %d not found", id)
	}
	for _, op := range ops {
		applyOp(wi, op, f)
	}
	cp := *wi
	return &cp, nil
}

func applyOp(wi *adoclient.WorkItem, op adoclient.PatchOp, f *Fake) {
	switch op.Path {
	case "/fields/System.History":
		if s, ok := op.Value.(string); ok {
			f.comments[wi.ID] = append(f.comments[wi.ID], s)
		}
	case "/fields/System.AssignedTo":
		if s, ok := op.Value.(string); ok {
			wi.AssignedTo = s
		}
	case "/fields/System.State":
		if s, ok := op.Value.(string); ok {
			wi.State = s
		}
	case "/fields/System.IterationPath":
		if s, ok := op.Value.(string); ok {
			wi.IterationPath = s
		}
	case "/fields/System.Tags":
		if s, ok := op.Value.(string); ok {
			wi.Tags = adoclient.SplitTags(s)
		}
	case "/relations/-":
		if rel, ok := op.Value.(map[string]any); ok {
			r := adoclient.Relation{Rel: fmt.Sprint(rel["rel"]), URL: fmt.Sprint(rel["url"])}
			f.relations[wi.ID] = append(f.relations[wi.ID], r)
		}
	}
}

func (f *Fake) AddComment(ctx context.Context, project string, id int, text string) error {
	_, err := f.UpdateWorkItem(ctx, project, id, []adoclient.PatchOp{
		{Op: "add", Path: "/fields/System.History", Value: text},
	})
	return err
}

func (f *Fake) GetRelations(_ context.Context, _ string, id int) ([]adoclient.Relation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failIDs[id]; ok {
		return nil, err
	}
	return append([]adoclient.Relation(nil), f.relations[id]...), nil
}

func (f *Fake) AddLink(_ context.Context, _ string, sourceID, targetID int, linkType string) error {
	f.mu.Lock()
	if err, ok := f.failIDs[sourceID]; ok {
		f.mu.Unlock()
		return err
	}
	f.linkCalls = append(f.linkCalls, linkCall{SourceID: sourceID, TargetID: targetID, LinkType: linkType})
	f.relations[sourceID] = append(f.relations[sourceID], adoclient.Relation{
		Rel: linkType,
		URL: fmt.Sprintf("https://fake.example.com/_apis/wit/workItems/%d", targetID),
	})
	f.mu.Unlock()
	return nil
}

func (f *Fake) IterationPathExists(_ context.Context, _ string, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.iterationPathCalls = append(f.iterationPathCalls, path)
	return f.validPaths[path], nil
}

func (f *Fake) QueryByWIQL(_ context.Context, _ string, wiql string) ([]adoclient.WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wiqlCalls = append(f.wiqlCalls, wiql)

	ids := f.queryResults[wiql]
	out := make([]adoclient.WorkItem, 0, len(ids))
	for _, id := range ids {
		if wi, ok := f.items[id]; ok {
			out = append(out, *wi)
			continue
		}
		out = append(out, adoclient.WorkItem{ID: id})
	}
	return out, nil
}

var _ adoclient.Client = (*Fake)(nil)
