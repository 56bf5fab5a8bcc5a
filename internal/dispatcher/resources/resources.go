// Package resources holds the fixed documentation catalogue the dispatcher
// exposes under ado://docs/<slug> URIs: short markdown reference pages an
// AI agent can pull into context (WIQL syntax, bulk-operation usage, link
// type names) without a round trip to Azure DevOps's own docs site.
package resources

import (
	"errors"
	"sort"
)

// ErrNotFound is returned by Read for any URI absent from the catalogue.
// Its message is the literal contract string callers match on.
var ErrNotFound = errors.New("Resource not found")

// Resource is one markdown document in the catalogue.
type Resource struct {
	URI         string
	Name        string
	Description string
	Text        string
}

// Meta is the list-view projection of a Resource: everything but the body.
type Meta struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
}

// Content is the read-view projection of a Resource: the body plus the
// fields needed to interpret it.
type Content struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

// mimeType is constant across the whole catalogue: every resource here is
// a markdown document.
const mimeType = "text/markdown"

// Catalogue is an immutable, in-memory set of documentation resources keyed
// by their ado://docs/<slug> URI.
type Catalogue struct {
	bySlug map[string]Resource
}

// New builds a Catalogue from a slice of resources. Slugs must be unique;
// duplicates overwrite earlier entries, last write wins, matching how a
// package-level var literal would behave.
func New(resources []Resource) *Catalogue {
	c := &Catalogue{bySlug: make(map[string]Resource, len(resources))}
	for _, r := range resources {
		c.bySlug[r.URI] = r
	}
	return c
}

// List returns every resource's metadata, sorted by URI.
func (c *Catalogue) List() []Meta {
	uris := make([]string, 0, len(c.bySlug))
	for uri := range c.bySlug {
		uris = append(uris, uri)
	}
	sort.Strings(uris)

	out := make([]Meta, 0, len(uris))
	for _, uri := range uris {
		r := c.bySlug[uri]
		out = append(out, Meta{URI: r.URI, Name: r.Name, Description: r.Description, MimeType: mimeType})
	}
	return out
}

// Read returns the full content of one resource. Per the catalogue's
// contract, a missing URI is reported with the exact message
// "Resource not found" so callers can match on it verbatim.
func (c *Catalogue) Read(uri string) (Content, error) {
	r, ok := c.bySlug[uri]
	if !ok {
		return Content{}, ErrNotFound
	}
	return Content{URI: r.URI, MimeType: mimeType, Text: r.Text}, nil
}

// Slug builds the ado://docs/<slug> URI for a bare slug, so callers and
// tests don't hand-assemble the scheme.
func Slug(slug string) string {
	return "ado://docs/" + slug
}
