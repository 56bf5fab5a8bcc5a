package dispatcher

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/ado-mcp/ado-work-mcp/internal/envelope"
)

// PromptTemplate is a named, reusable prompt body a host can surface to its
// user or feed to AI sampling. The dispatcher only catalogues these; it
// does not render or execute them.
type PromptTemplate struct {
	Name        string
	Description string
	ArgNames    []string
	Content     string
}

// RegisterPrompt adds a prompt template to the catalogue the get-prompts
// tool reports from. Registering a name twice replaces the earlier entry.
func (d *Dispatcher) RegisterPrompt(p PromptTemplate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.prompts == nil {
		d.prompts = make(map[string]PromptTemplate)
	}
	d.prompts[p.Name] = p
}

type getPromptsParams struct {
	PromptName     string         `json:"promptName,omitempty"`
	IncludeContent bool           `json:"includeContent,omitempty"`
	Args           map[string]any `json:"args,omitempty"`
}

type promptSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	ArgNames    []string `json:"argNames,omitempty"`
	Content     string   `json:"content,omitempty"`
}

// getPromptsInputSchema allows an empty object and an optional promptName,
// includeContent, args — matching "no parameters required" from the tool's
// description.
const getPromptsInputSchema = `{
	"type": "object",
	"properties": {
		"promptName": {"type": "string"},
		"includeContent": {"type": "boolean"},
		"args": {"type": "object"}
	},
	"additionalProperties": false
}`

// getPromptsTool builds the get-prompts introspection tool, closing over d
// so it can read the live prompt catalogue at call time.
func getPromptsTool(d *Dispatcher) Tool {
	return Tool{
		Name:        "get-prompts",
		Description: "List registered prompt templates, optionally filtered to one by name.",
		InputSchema: json.RawMessage(getPromptsInputSchema),
		Handler: func(_ context.Context, raw json.RawMessage) envelope.Envelope {
			var params getPromptsParams
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &params); err != nil {
					return envelope.Err("dispatcher.get-prompts", "Validation error: params: "+err.Error())
				}
			}

			d.mu.RLock()
			defer d.mu.RUnlock()

			if params.PromptName != "" {
				p, ok := d.prompts[params.PromptName]
				if !ok {
					return envelope.Err("dispatcher.get-prompts", "unknown prompt "+params.PromptName)
				}
				return envelope.Ok("dispatcher.get-prompts", promptSummary{
					Name:        p.Name,
					Description: p.Description,
					ArgNames:    p.ArgNames,
					Content:     p.Content,
				})
			}

			names := make([]string, 0, len(d.prompts))
			for name := range d.prompts {
				names = append(names, name)
			}
			sort.Strings(names)

			summaries := make([]promptSummary, 0, len(names))
			for _, name := range names {
				p := d.prompts[name]
				s := promptSummary{Name: p.Name, Description: p.Description, ArgNames: p.ArgNames}
				if params.IncludeContent {
					s.Content = p.Content
				}
				summaries = append(summaries, s)
			}
			return envelope.Ok("dispatcher.get-prompts", summaries)
		},
	}
}
