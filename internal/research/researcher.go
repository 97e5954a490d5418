package research

import (
	"context"
	"fmt"
	"sync"

	"github.com/mfujita/kabuto/internal/llm"
	"github.com/mfujita/kabuto/internal/tools"
)

// runResearcher executes one researcher instance over its topic: decide
// tools, execute them in parallel, loop or compress. The returned error
// covers only decide-stage model failures; tool failures are isolated
// into error-text results.
func (p *Pipeline) runResearcher(ctx context.Context, topic string) (ResearcherOutput, error) {
	model := p.cfg.LLM.Research
	state := &ResearcherState{
		Topic:    topic,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: topic}},
	}
	system := llm.Message{Role: llm.RoleSystem, Content: fmt.Sprintf(researcherSystemPrompt, p.today())}
	defs := tools.Defs(p.tools)

	for {
		state.ToolCallIterations++
		resp, err := p.invoker.Invoke(ctx, &llm.Request{
			Model:     model.Model,
			MaxTokens: model.MaxTokens,
			Messages:  append([]llm.Message{system}, state.Messages...),
			Tools:     defs,
		})
		if err != nil {
			return ResearcherOutput{}, fmt.Errorf("researcher turn: %w", err)
		}
		state.Messages = append(state.Messages, resp.Message())

		// Early exit: nothing to execute.
		if len(resp.ToolCalls) == 0 {
			break
		}

		state.Messages = append(state.Messages, p.executeToolCalls(ctx, resp.ToolCalls)...)

		// Late exit: iteration ceiling or explicit completion signal.
		if state.ToolCallIterations >= p.cfg.Research.MaxReactToolCalls || resp.HasToolCall(toolResearchComplete) {
			break
		}
	}
	return p.compressResearch(ctx, state.Messages), nil
}

// executeToolCalls fans out all calls of one model response, waits for
// all of them, and returns result messages in call order. A failing
// call yields error text for that call only.
func (p *Pipeline) executeToolCalls(ctx context.Context, calls []llm.ToolCall) []llm.Message {
	results := make([]llm.Message, len(calls))
	var wg sync.WaitGroup
	for i, tc := range calls {
		wg.Add(1)
		go func(i int, tc llm.ToolCall) {
			defer wg.Done()
			results[i] = llm.Message{
				Role:       llm.RoleTool,
				Name:       tc.Name,
				ToolCallID: tc.ID,
				Content:    p.executeToolSafely(ctx, tc),
			}
		}(i, tc)
	}
	wg.Wait()
	return results
}

func (p *Pipeline) executeToolSafely(ctx context.Context, tc llm.ToolCall) string {
	tool := tools.ByName(p.tools, tc.Name)
	if tool == nil {
		return fmt.Sprintf("Error executing tool: unknown tool %q", tc.Name)
	}
	out, err := tool.Invoke(ctx, tc.Arguments)
	if err != nil {
		return fmt.Sprintf("Error executing tool: %s", err)
	}
	return out
}
