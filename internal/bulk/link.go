package bulk

import (
	"context"
	"fmt"
	"strings"

	"github.com/ado-mcp/ado-work-mcp/internal/adoclient"
	"github.com/ado-mcp/ado-work-mcp/internal/queryhandle"
)

type pair struct {
	sourceID, targetID int
}

func (e *Engine) runLink(ctx context.Context, project string, action Action) (ActionResult, []string) {
	ar := ActionResult{Kind: ActionLink}
	var warnings []string

	sourceIDs := e.store.ResolveItemSelector(action.SourceQueryHandle, queryhandle.Selector{All: true})
	if sourceIDs == nil {
		ar.Failures = append(ar.Failures, ItemFailure{Error: fmt.Sprintf(
			"Source query handle %q not found or expired", handlePrefix(action.SourceQueryHandle))})
		return ar, warnings
	}
	targetIDs := e.store.ResolveItemSelector(action.TargetQueryHandle, queryhandle.Selector{All: true})
	if targetIDs == nil {
		ar.Failures = append(ar.Failures, ItemFailure{Error: fmt.Sprintf(
			"Target query handle %q not found or expired", handlePrefix(action.TargetQueryHandle))})
		return ar, warnings
	}

	pairs, pairWarnings := pairsForStrategy(action.LinkStrategy, sourceIDs, targetIDs)
	warnings = append(warnings, pairWarnings...)

	linkRef := adoclient.LinkTypeRef[action.LinkType]

	var existing map[int][]adoclient.Relation
	if action.SkipExisting {
		existing = make(map[int][]adoclient.Relation)
		for _, p := range uniqueSources(pairs) {
			rels, err := e.client.GetRelations(ctx, project, p)
			if err != nil {
				ar.Failures = append(ar.Failures, ItemFailure{ID: p, Error: err.Error()})
				continue
			}
			existing[p] = rels
		}
	}

	for _, p := range pairs {
		if p.sourceID == p.targetID {
			warnings = append(warnings, fmt.Sprintf("skipped self-link on item %d", p.sourceID))
			continue
		}

		if w := e.hierarchySanityWarning(ctx, project, action.LinkType, p); w != "" {
			warnings = append(warnings, w)
		}

		if action.SkipExisting && relationExists(existing[p.sourceID], linkRef, p.targetID) {
			warnings = append(warnings, fmt.Sprintf("skipped existing link %d -> %d", p.sourceID, p.targetID))
			continue
		}

		itemCtx, cancel := context.WithTimeout(ctx, e.itemTimeout)
		err := e.client.AddLink(itemCtx, project, p.sourceID, p.targetID, linkRef)
		cancel()
		if err != nil {
			ar.Failures = append(ar.Failures, ItemFailure{ID: p.sourceID, Error: err.Error()})
			continue
		}
		ar.Successes = append(ar.Successes, ItemSuccess{ID: p.sourceID, Result: fmt.Sprintf("linked to %d", p.targetID)})
	}

	return ar, warnings
}

func uniqueSources(pairs []pair) []int {
	seen := make(map[int]bool)
	var out []int
	for _, p := range pairs {
		if !seen[p.sourceID] {
			seen[p.sourceID] = true
			out = append(out, p.sourceID)
		}
	}
	return out
}

func relationExists(rels []adoclient.Relation, linkRef string, targetID int) bool {
	suffix := fmt.Sprintf("/%d", targetID)
	for _, r := range rels {
		if r.Rel == linkRef && strings.HasSuffix(r.URL, suffix) {
			return true
		}
	}
	return false
}

func pairsForStrategy(strategy LinkStrategy, sources, targets []int) ([]pair, []string) {
	var warnings []string
	switch strategy {
	case StrategyOneToOne:
		n := len(sources)
		if len(targets) < n {
			n = len(targets)
		}
		if len(sources) != len(targets) {
			warnings = append(warnings, fmt.Sprintf(
				"one-to-one strategy: source/target counts differ (%d vs %d); pairing first %d",
				len(sources), len(targets), n))
		}
		pairs := make([]pair, 0, n)
		for i := 0; i < n; i++ {
			pairs = append(pairs, pair{sourceID: sources[i], targetID: targets[i]})
		}
		return pairs, warnings

	case StrategyOneToMany:
		if len(sources) == 0 {
			return nil, warnings
		}
		if len(sources) > 1 {
			warnings = append(warnings, fmt.Sprintf(
				"one-to-many strategy expects a single source; using the first of %d", len(sources)))
		}
		src := sources[0]
		pairs := make([]pair, 0, len(targets))
		for _, t := range targets {
			pairs = append(pairs, pair{sourceID: src, targetID: t})
		}
		return pairs, warnings

	case StrategyManyToOne:
		if len(targets) == 0 {
			return nil, warnings
		}
		if len(targets) > 1 {
			warnings = append(warnings, fmt.Sprintf(
				"many-to-one strategy expects a single target; using the first of %d", len(targets)))
		}
		tgt := targets[0]
		pairs := make([]pair, 0, len(sources))
		for _, s := range sources {
			pairs = append(pairs, pair{sourceID: s, targetID: tgt})
		}
		return pairs, warnings

	case StrategyManyToMany:
		pairs := make([]pair, 0, len(sources)*len(targets))
		for _, s := range sources {
			for _, t := range targets {
				pairs = append(pairs, pair{sourceID: s, targetID: t})
			}
		}
		return pairs, warnings

	default:
		warnings = append(warnings, fmt.Sprintf("unrecognized link strategy %q; no pairs produced", strategy))
		return nil, warnings
	}
}

// hierarchySanityWarning flags a pair whose "Parent" link type would give a
// plausibly-larger item a plausibly-smaller parent (e.g. a Task parenting a
// Feature). For linkType Parent, the target becomes the source's parent;
// for Child, the source becomes the target's parent.
func (e *Engine) hierarchySanityWarning(ctx context.Context, project, linkType string, p pair) string {
	var parentID, childID int
	switch linkType {
	case "Parent":
		parentID, childID = p.targetID, p.sourceID
	case "Child":
		parentID, childID = p.sourceID, p.targetID
	default:
		return ""
	}

	parent, err := e.client.GetWorkItem(ctx, project, parentID)
	if err != nil {
		return ""
	}
	child, err := e.client.GetWorkItem(ctx, project, childID)
	if err != nil {
		return ""
	}

	parentRank, pok := e.typeRank[parent.Type]
	childRank, cok := e.typeRank[child.Type]
	if !pok || !cok {
		return ""
	}
	if parentRank < childRank {
		return fmt.Sprintf("questionable hierarchy: %s %d as parent of %s %d", parent.Type, parentID, child.Type, childID)
	}
	return ""
}
