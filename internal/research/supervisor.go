package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mfujita/kabuto/internal/llm"
	"github.com/mfujita/kabuto/internal/tools"
)

const (
	toolConductResearch  = "conduct_research"
	toolResearchComplete = "research_complete"
	toolThink            = "think_tool"
)

// errorResearchOutput is substituted for a researcher that failed
// without producing any compressed output.
const errorResearchOutput = "Error synthesizing research report: Maximum retries exceeded"

// supervisorToolDefs are the exactly three tools bound to the
// supervisor model: dispatch, complete, and reflect.
func supervisorToolDefs() []llm.ToolDef {
	return []llm.ToolDef{
		{
			Name:        toolConductResearch,
			Description: "Delegate one research topic to a specialized sub-agent.",
			Parameters: []byte(`{
				"type": "object",
				"properties": {
					"research_topic": {"type": "string", "description": "The topic to research. Should be a single topic, described in high detail (at least a paragraph)."}
				},
				"required": ["research_topic"]
			}`),
		},
		{
			Name:        toolResearchComplete,
			Description: "Call this when the research brief is fully answered by the gathered findings.",
			Parameters:  []byte(`{"type": "object", "properties": {}}`),
		},
		{
			Name:        tools.ThinkTool{}.Name(),
			Description: tools.ThinkTool{}.Description(),
			Parameters:  tools.ThinkTool{}.Schema(),
		},
	}
}

// supervise runs the supervisor loop to completion and returns the
// accumulated compressed notes plus the per-turn raw note blobs. Model
// failures terminate the phase early with whatever notes exist;
// partial results beat total failure.
func (p *Pipeline) supervise(ctx context.Context, runID, brief string) (notes, rawNotes []string) {
	model := p.cfg.LLM.Research
	maxUnits := p.cfg.Research.MaxConcurrentUnits

	state := &SupervisorState{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: fmt.Sprintf(leadResearcherPrompt, maxUnits, p.today())},
			{Role: llm.RoleUser, Content: brief},
		},
	}

	for {
		state.ResearchIterations++
		resp, err := p.invoker.Invoke(ctx, &llm.Request{
			Model:     model.Model,
			MaxTokens: model.MaxTokens,
			Messages:  state.Messages,
			Tools:     supervisorToolDefs(),
		})
		if err != nil {
			slog.Error("supervisor turn failed, flushing notes", "run", runID, "error", err)
			return notesFromToolMessages(state.Messages), state.RawNotes
		}
		state.Messages = append(state.Messages, resp.Message())
		p.emit(runID, EventSupervisorTurn, map[string]any{
			"iteration":  state.ResearchIterations,
			"tool_calls": len(resp.ToolCalls),
		})

		exceeded := state.ResearchIterations >= p.cfg.Research.MaxResearcherIterations
		if exceeded || len(resp.ToolCalls) == 0 || resp.HasToolCall(toolResearchComplete) {
			return notesFromToolMessages(state.Messages), state.RawNotes
		}

		p.applyToolResults(ctx, runID, state, resp.ToolCalls)
	}
}

// applyToolResults partitions one supervisor response's tool calls into
// dispatches (capped), reflections, and overflow, runs the dispatches
// concurrently, and appends one result message per call in partition
// order with dispatch results keeping their call order.
func (p *Pipeline) applyToolResults(ctx context.Context, runID string, state *SupervisorState, calls []llm.ToolCall) {
	maxUnits := p.cfg.Research.MaxConcurrentUnits

	var dispatch, think, overflow []llm.ToolCall
	for _, tc := range calls {
		switch tc.Name {
		case toolConductResearch:
			if len(dispatch) < maxUnits {
				dispatch = append(dispatch, tc)
			} else {
				overflow = append(overflow, tc)
			}
		case toolThink:
			think = append(think, tc)
		case toolResearchComplete:
			// Already handled by the exit check; unreachable here.
		default:
			// Unrecognized tool calls are rejected like overflow, never
			// silently dropped.
			overflow = append(overflow, tc)
		}
	}

	outputs := make([]ResearcherOutput, len(dispatch))
	var wg sync.WaitGroup
	for i, tc := range dispatch {
		topic := topicArg(tc)
		p.emit(runID, EventUnitDispatched, map[string]any{"call_id": tc.ID, "topic": topic})
		wg.Add(1)
		go func(i int, topic, callID string) {
			defer wg.Done()
			out, err := p.runResearcher(ctx, topic)
			if err != nil {
				slog.Error("research unit failed", "run", runID, "call_id", callID, "error", err)
				out = ResearcherOutput{CompressedResearch: errorResearchOutput}
			}
			outputs[i] = out
			p.emit(runID, EventUnitCompleted, map[string]any{
				"call_id": callID, "compressed_length": len(out.CompressedResearch),
			})
		}(i, topic, tc.ID)
	}
	wg.Wait()

	var results []llm.Message
	for i, tc := range dispatch {
		content := outputs[i].CompressedResearch
		if content == "" {
			content = errorResearchOutput
		}
		results = append(results, llm.Message{
			Role: llm.RoleTool, Content: content, Name: tc.Name, ToolCallID: tc.ID,
		})
	}
	for _, tc := range think {
		reflection := reflectionArg(tc)
		results = append(results, llm.Message{
			Role: llm.RoleTool, Name: tc.Name, ToolCallID: tc.ID,
			Content: fmt.Sprintf("Reflection recorded: %s", reflection),
		})
	}
	for _, tc := range overflow {
		results = append(results, llm.Message{
			Role: llm.RoleTool, Name: tc.Name, ToolCallID: tc.ID,
			Content: fmt.Sprintf("Error: Did not run this research as you have already exceeded the maximum number of concurrent research units. Please try again with %d or fewer research units.", maxUnits),
		})
	}
	state.Messages = append(state.Messages, results...)

	var raw string
	for i, out := range outputs {
		if i > 0 {
			raw += "\n"
		}
		raw += out.RawNotes
	}
	state.RawNotes = append(state.RawNotes, raw)
}

func topicArg(tc llm.ToolCall) string {
	var args struct {
		ResearchTopic string `json:"research_topic"`
	}
	if err := json.Unmarshal(tc.Arguments, &args); err != nil || args.ResearchTopic == "" {
		return "No research topic provided"
	}
	return args.ResearchTopic
}

func reflectionArg(tc llm.ToolCall) string {
	var args struct {
		Reflection string `json:"reflection"`
	}
	if err := json.Unmarshal(tc.Arguments, &args); err != nil || args.Reflection == "" {
		return "No reflection provided"
	}
	return args.Reflection
}
