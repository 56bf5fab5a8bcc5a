// Package openapi generates the OpenAPI 3.0 document describing every
// registered tool as a POST /tools/<tool-name> operation, per this
// server's external interface contract: a request-body schema taken
// straight from the tool's own JSON Schema, and uniform 200/400/500
// responses shaped like the Tool Result Envelope. Tools whose handler
// calls out to the AI sampling boundary are marked with an
// "x-requires-sampling" extension so a generated client can surface that
// up front rather than discovering it from a runtime failure.
package openapi

import (
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/ado-mcp/ado-work-mcp/internal/dispatcher"
)

const extRequiresSampling = "x-requires-sampling"

// Generate builds the OpenAPI document for every tool currently registered
// on d. title/version populate the document's Info block.
func Generate(d *dispatcher.Dispatcher, title, version string) (*openapi3.T, error) {
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:   title,
			Version: version,
		},
		Paths: openapi3.NewPaths(),
	}

	for _, name := range d.Names() {
		tool, ok := d.Lookup(name)
		if !ok {
			continue
		}
		op, err := toolOperation(tool)
		if err != nil {
			return nil, fmt.Errorf("openapi: tool %q: %w", name, err)
		}
		doc.Paths.Set("/tools/"+name, &openapi3.PathItem{Post: op})
	}
	return doc, nil
}

func toolOperation(tool dispatcher.Tool) (*openapi3.Operation, error) {
	op := openapi3.NewOperation()
	op.OperationID = tool.Name
	op.Summary = tool.Description
	op.Responses = openapi3.NewResponses()
	op.Responses.Set("200", envelopeResponse("the protocol call succeeded; envelope.success carries the tool-level outcome"))
	op.Responses.Set("400", envelopeResponse("the request body failed schema validation or was malformed"))
	op.Responses.Set("500", envelopeResponse("the tool handler failed unexpectedly"))

	if len(tool.InputSchema) > 0 {
		schema := &openapi3.Schema{}
		if err := schema.UnmarshalJSON(tool.InputSchema); err != nil {
			return nil, fmt.Errorf("unmarshal input schema: %w", err)
		}
		op.RequestBody = &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().
				WithRequired(true).
				WithContent(openapi3.NewContentWithJSONSchema(schema)),
		}
	}

	if tool.RequiresSampling {
		if op.Extensions == nil {
			op.Extensions = map[string]any{}
		}
		op.Extensions[extRequiresSampling] = true
	}
	return op, nil
}

// envelopeResponse builds a response whose body schema is the uniform
// {success, data, errors, warnings, metadata} shape every tool call
// returns through, regardless of outcome.
func envelopeResponse(description string) *openapi3.ResponseRef {
	return &openapi3.ResponseRef{
		Value: openapi3.NewResponse().
			WithDescription(description).
			WithContent(openapi3.NewContentWithJSONSchema(envelopeSchema())),
	}
}

func envelopeSchema() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("success", openapi3.NewBoolSchema()).
		WithProperty("data", openapi3.NewSchema()).
		WithProperty("errors", openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema())).
		WithProperty("warnings", openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema())).
		WithProperty("metadata", openapi3.NewObjectSchema())
}

// MarshalJSON renders doc as the JSON document the debug HTTP surface
// serves at /openapi.json.
func MarshalJSON(doc *openapi3.T) ([]byte, error) {
	return json.Marshal(doc)
}
