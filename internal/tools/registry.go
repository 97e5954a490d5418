package tools

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mfujita/kabuto/internal/config"
	"github.com/mfujita/kabuto/internal/jquants"
)

// ResearchCompleteTool is the marker a researcher calls when it judges
// its topic fully covered. Invoking it does nothing; the orchestration
// loop watches for the call itself.
type ResearchCompleteTool struct{}

func (ResearchCompleteTool) Name() string { return "research_complete" }
func (ResearchCompleteTool) Description() string {
	return "Call this when the research topic is fully covered and no further tool calls are needed."
}

func (ResearchCompleteTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (ResearchCompleteTool) Invoke(context.Context, json.RawMessage) (string, error) {
	return "Research marked complete.", nil
}

// Resolve builds the closed tool set for a run: reflection and the
// completion marker always, plus every external tool the configuration
// can back. A run with zero external tools cannot research anything, so
// that surfaces as an error instead of a silent loop.
func Resolve(cfg *config.Config, api *jquants.Client) ([]Tool, error) {
	var external []Tool
	if cfg.Search.Provider == "tavily" && cfg.Search.APIKey != "" {
		external = append(external, NewSearchTool(cfg.Search))
	}
	if api != nil {
		external = append(external,
			NewStatementsTool(api),
			NewPriceTool(api),
			NewValuationTool(api),
			NewGrowthTool(api),
		)
	}
	if len(external) == 0 {
		return nil, errors.New("no research tools configured: set a search API key or J-Quants credentials")
	}
	return append([]Tool{ThinkTool{}, ResearchCompleteTool{}}, external...), nil
}
