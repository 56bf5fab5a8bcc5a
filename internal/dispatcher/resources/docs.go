package resources

// Default builds the catalogue this server ships: short reference pages
// covering the pieces of the domain an agent is most likely to need
// reminding about mid-conversation (WIQL, query handles, bulk operations,
// link types) rather than a full Azure DevOps manual.
func Default() *Catalogue {
	return New([]Resource{
		{
			URI:         Slug("wiql-quick-reference"),
			Name:        "WIQL quick reference",
			Description: "Syntax primer for the Work Item Query Language used by query tools.",
			Text: `# WIQL quick reference

WIQL (Work Item Query Language) is a SQL-like language for selecting work
items.

` + "```sql" + `
SELECT [System.Id], [System.Title], [System.State]
FROM WorkItems
WHERE [System.TeamProject] = 'Contoso'
  AND [System.WorkItemType] = 'Bug'
  AND [System.State] <> 'Closed'
ORDER BY [System.ChangedDate] DESC
` + "```" + `

Common fields: ` + "`System.Id`" + `, ` + "`System.Title`" + `, ` + "`System.State`" + `,
` + "`System.WorkItemType`" + `, ` + "`System.AssignedTo`" + `, ` + "`System.Tags`" + `,
` + "`System.IterationPath`" + `, ` + "`System.ChangedDate`" + `.

Results from a query tool are held behind a query handle rather than
returned inline; see the query-handle-usage resource for how to act on
them.
`,
		},
		{
			URI:         Slug("query-handle-usage"),
			Name:        "Query handle usage",
			Description: "How query handles work and how to select items out of one.",
			Text: `# Query handle usage

A query tool returns a query handle (a ` + "`qh_`" + `-prefixed opaque token)
instead of the raw list of work items. Handles expire after a bounded TTL;
once expired they behave as if they never existed.

An item selector picks which items inside a handle a bulk operation acts
on. It is a JSON object carrying one of three shapes:

- ` + "`{\"all\": true}`" + ` — every item in the handle, in stored order.
- ` + "`{\"indices\": [0, 2, 5]}`" + ` — positions into the handle's stored order.
  Out-of-range indices are silently dropped.
- ` + "`{\"criteria\": {states, tags, titleContains, daysInactiveMin, daysInactiveMax}}`" + ` —
  matched against the context captured when the handle was created.

A bare string such as ` + "`\"all\"`" + ` or a bare index array is not accepted
as a selector.

Handles are read-only: selecting from one never mutates it, and the same
handle may be reused by several bulk operations.
`,
		},
		{
			URI:         Slug("bulk-operations"),
			Name:        "Bulk operations",
			Description: "Action kinds, dry-run semantics, and error isolation for bulk requests.",
			Text: `# Bulk operations

A bulk request names a query handle, a selector, and an ordered list of
actions. Supported action kinds: ` + "`comment`" + `, ` + "`assign`" + `,
` + "`update`" + `, ` + "`add-tag`" + `, ` + "`remove-tag`" + `, ` + "`transition-state`" + `,
` + "`move-iteration`" + `, ` + "`link`" + `, ` + "`remove`" + `.

- **Dry run.** Set ` + "`dryRun: true`" + ` to get a preview without mutating
  anything. Comment-only requests preview up to 10 items; everything else
  previews up to 5.
- **Pre-flight validation.** Before any action runs, every action in the
  request is checked for invalid external references (an unknown
  iteration path, an unrecognized link type). If any action fails
  pre-flight, nothing in the request runs.
- **Per-item isolation.** Within one action, a failure on one item never
  aborts the others; each item's outcome is reported independently.
- **Stop-on-error.** Set ` + "`stopOnError: true`" + ` to abort the remaining
  *actions* (not items) in the request after the first action that
  produces any per-item failure.
`,
		},
		{
			URI:         Slug("link-types"),
			Name:        "Link types and strategies",
			Description: "Recognized link type names and the source/target pairing strategies for the link action.",
			Text: `# Link types and strategies

Recognized link types: ` + "`Parent`" + `, ` + "`Child`" + `, ` + "`Related`" + `,
` + "`Successor`" + `, ` + "`Predecessor`" + `. Any other name fails pre-flight
validation.

The ` + "`link`" + ` action pairs every item of a source query handle
(` + "`sourceQueryHandle`" + `) against every item of a target query handle
(` + "`targetQueryHandle`" + `) using one of four strategies:

- ` + "`one-to-one`" + ` — pairs by position; a size mismatch truncates to the
  shorter list and warns.
- ` + "`one-to-many`" + ` — the single source links to every target.
- ` + "`many-to-one`" + ` — every source links to the single target.
- ` + "`many-to-many`" + ` — the full cartesian product of sources and targets.

Set ` + "`skipExisting: true`" + ` to silently skip a pair that is already
linked with the same type. A hierarchy sanity check warns (but does not
block) when a ` + "`Parent`" + `/` + "`Child`" + ` pair names a parent of a type that
cannot plausibly contain the child's type (e.g. a Task "parenting" a
Feature).
`,
		},
	})
}
