// Package tools defines the closed set of tools a researcher agent may
// call: reflection, web search, J-Quants data fetches and the two stock
// analysis tools. Tools are enumerated at setup time, never resolved by
// name lookup at call time.
package tools

import (
	"context"
	"encoding/json"

	"github.com/mfujita/kabuto/internal/llm"
)

// Tool is one invocable capability. Invoke returns the text appended to
// the researcher transcript as the tool result; an error is rendered as
// error text by the caller, never propagated past the turn.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Invoke(ctx context.Context, args json.RawMessage) (string, error)
}

// Defs converts a tool set into the wire definitions bound to a model call.
func Defs(set []Tool) []llm.ToolDef {
	defs := make([]llm.ToolDef, 0, len(set))
	for _, t := range set {
		defs = append(defs, llm.ToolDef{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	return defs
}

// ByName finds a tool in the set, or nil.
func ByName(set []Tool, name string) Tool {
	for _, t := range set {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

func toJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
