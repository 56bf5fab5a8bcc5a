package dispatcher

import (
	"github.com/ado-mcp/ado-work-mcp/internal/dispatcher/resources"
	"github.com/ado-mcp/ado-work-mcp/internal/envelope"
)

// WithResources attaches the documentation catalogue the list/read
// resource calls serve from. Without this option the Dispatcher has no
// resources registered and both calls report an empty catalogue.
func WithResources(catalogue *resources.Catalogue) Option {
	return func(d *Dispatcher) { d.resources = catalogue }
}

// ListResources returns the catalogue's metadata, envelope-wrapped for the
// same uniform handling the tool-call path gets.
func (d *Dispatcher) ListResources() envelope.Envelope {
	if d.resources == nil {
		return envelope.Ok("dispatcher.resources", []resources.Meta{})
	}
	return envelope.Ok("dispatcher.resources", d.resources.List())
}

// ReadResource returns one resource's content by URI, or a "Resource not
// found" error envelope.
func (d *Dispatcher) ReadResource(uri string) envelope.Envelope {
	if d.resources == nil {
		return envelope.Err("dispatcher.resources", resources.ErrNotFound.Error())
	}
	content, err := d.resources.Read(uri)
	if err != nil {
		return envelope.Err("dispatcher.resources", err.Error())
	}
	return envelope.Ok("dispatcher.resources", content)
}
