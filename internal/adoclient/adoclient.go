// Package adoclient defines the boundary interface used to talk to the
// Azure DevOps REST API, plus an HTTP implementation wrapped in a circuit
// breaker and a rate limiter.
package adoclient

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// WorkItem is the subset of an Azure DevOps work item this server reads
// and writes.
type WorkItem struct {
	ID            int
	Title         string
	State         string
	Type          string
	AssignedTo    string
	Tags          []string
	IterationPath string
	AreaPath      string
	Fields        map[string]any
}

// Relation is one link entry on a work item, as returned by the relations
// expansion of the ADO work-item API.
type Relation struct {
	Rel string // e.g. "System.LinkTypes.Hierarchy-Forward"
	URL string
}

// PatchOp is one JSON-patch-like operation applied to a work item.
type PatchOp struct {
	Op    string // "add", "replace", "remove", "test"
	Path  string
	Value any
}

// Client is the boundary the Bulk Operation Engine and tool handlers call
// through. Implementations must percent-encode organization/project names
// in constructed URLs since both may contain spaces.
type Client interface {
	GetWorkItem(ctx context.Context, project string, id int) (*WorkItem, error)
	UpdateWorkItem(ctx context.Context, project string, id int, ops []PatchOp) (*WorkItem, error)
	AddComment(ctx context.Context, project string, id int, text string) error
	GetRelations(ctx context.Context, project string, id int) ([]Relation, error)
	AddLink(ctx context.Context, project string, sourceID, targetID int, linkType string) error
	IterationPathExists(ctx context.Context, project, path string) (bool, error)
	// QueryByWIQL executes a WIQL query and returns the matching work items
	// in result order. HTTPClient fetches every field of each matching item
	// (with relations expanded), not only those the query's SELECT list named.
	// This is the only entry point that produces the id sets a query tool
	// hands to queryhandle.Store.StoreQuery.
	QueryByWIQL(ctx context.Context, project, wiql string) ([]WorkItem, error)
}

// BuildWorkItemURL constructs the percent-encoded REST URL for a work item
// under organization/project, mirroring the encoding rule in the external
// interfaces contract: organization and project names may contain spaces
// and must be escaped as path segments.
func BuildWorkItemURL(baseURL, organization, project string, id int) string {
	return fmt.Sprintf("%s/%s/%s/_apis/wit/workitems/%d",
		strings.TrimRight(baseURL, "/"),
		url.PathEscape(organization),
		url.PathEscape(project),
		id,
	)
}

// LinkTypeRef maps the symbolic link types used in tool inputs to the
// backend reference names the ADO REST API expects.
var LinkTypeRef = map[string]string{
	"Parent":      "System.LinkTypes.Hierarchy-Reverse",
	"Child":       "System.LinkTypes.Hierarchy-Forward",
	"Related":     "System.LinkTypes.Related",
	"Successor":   "System.LinkTypes.Dependency-Forward",
	"Predecessor": "System.LinkTypes.Dependency-Reverse",
}

// RequestTimeout is the default per-call timeout for a single ADO REST
// call, applied by callers via context.WithTimeout.
const RequestTimeout = 30 * time.Second
