package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

const thinkDescription = "Strategic reflection tool for research planning and evaluation - MUST USE before and after each research step"

// ThinkTool records a reflection and echoes it back. It exists to force
// an observable reasoning step into the transcript; it has no side
// effects beyond a log line.
type ThinkTool struct{}

func (ThinkTool) Name() string        { return "think_tool" }
func (ThinkTool) Description() string { return thinkDescription }

func (ThinkTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"reflection": {
				"type": "string",
				"description": "Your detailed reflection on research strategy, progress, findings, gaps, and next steps"
			}
		},
		"required": ["reflection"]
	}`)
}

func (ThinkTool) Invoke(_ context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Reflection string `json:"reflection"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("think_tool: invalid arguments: %w", err)
	}
	slog.Debug("reflection recorded", "length", len(in.Reflection))
	return fmt.Sprintf("Reflection recorded: %s", in.Reflection), nil
}
