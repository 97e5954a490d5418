package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mfujita/kabuto/internal/llm"
	"github.com/mfujita/kabuto/internal/tools"
)

func TestResearcherCeilingForcesSynthesis(t *testing.T) {
	cfg := testConfig()
	cfg.Research.MaxReactToolCalls = 3

	data := &fakeTool{name: "market_data"}
	turn := 0
	client := &scriptClient{}
	client.handle = func(stage string, req *llm.Request) (*llm.Response, error) {
		switch stage {
		case stageResearcher:
			turn++
			return callResponse(call(fmt.Sprintf("r%d", turn), "market_data", `{}`)), nil
		case stageCompress:
			return textResponse("final summary"), nil
		}
		return nil, errors.New("unexpected stage " + stage)
	}
	p := newTestPipeline(t, client, cfg, []tools.Tool{data})

	out, err := p.runResearcher(context.Background(), "Tokyo Electron fundamentals")
	if err != nil {
		t.Fatalf("runResearcher: %v", err)
	}

	if got := client.countStage(stageResearcher); got != 3 {
		t.Errorf("decide turns = %d, want the configured ceiling of 3", got)
	}
	if got := data.callCount(); got != 3 {
		t.Errorf("tool executions = %d, want 3", got)
	}
	if out.CompressedResearch != "final summary" {
		t.Errorf("compressed research = %q", out.CompressedResearch)
	}
	if got := strings.Count(out.RawNotes, "result from market_data"); got != 3 {
		t.Errorf("raw notes hold %d tool results, want 3", got)
	}
}

func TestResearcherExitsEarlyWithoutToolCalls(t *testing.T) {
	data := &fakeTool{name: "market_data"}
	client := &scriptClient{}
	client.handle = func(stage string, req *llm.Request) (*llm.Response, error) {
		switch stage {
		case stageResearcher:
			return textResponse("No tools needed, the topic is trivial."), nil
		case stageCompress:
			return textResponse("trivial summary"), nil
		}
		return nil, errors.New("unexpected stage " + stage)
	}
	p := newTestPipeline(t, client, testConfig(), []tools.Tool{data})

	out, err := p.runResearcher(context.Background(), "topic")
	if err != nil {
		t.Fatalf("runResearcher: %v", err)
	}
	if got := client.countStage(stageResearcher); got != 1 {
		t.Errorf("decide turns = %d, want 1", got)
	}
	if got := data.callCount(); got != 0 {
		t.Errorf("tool executions = %d, want 0", got)
	}
	if out.CompressedResearch != "trivial summary" {
		t.Errorf("compressed research = %q", out.CompressedResearch)
	}

	// The synthesis request carries the full transcript plus the
	// cleanup instruction as its final message.
	reqs := client.requests
	last := reqs[len(reqs)-1]
	if last.Messages[len(last.Messages)-1].Content != compressHumanMessage {
		t.Errorf("synthesis transcript does not end with the cleanup instruction")
	}
	if !transcriptContains(last, "No tools needed") {
		t.Errorf("synthesis transcript lost the model's answer")
	}
}

func TestResearcherStopsOnCompletionSignal(t *testing.T) {
	data := &fakeTool{name: "market_data"}
	turn := 0
	client := &scriptClient{}
	client.handle = func(stage string, req *llm.Request) (*llm.Response, error) {
		switch stage {
		case stageResearcher:
			turn++
			return callResponse(
				call("r1", "market_data", `{}`),
				call("r2", toolResearchComplete, `{}`),
			), nil
		case stageCompress:
			return textResponse("done"), nil
		}
		return nil, errors.New("unexpected stage " + stage)
	}
	p := newTestPipeline(t, client, testConfig(), []tools.Tool{data, tools.ResearchCompleteTool{}})

	out, err := p.runResearcher(context.Background(), "topic")
	if err != nil {
		t.Fatalf("runResearcher: %v", err)
	}
	if turn != 1 {
		t.Errorf("decide turns = %d, want 1 after the completion signal", turn)
	}
	if got := data.callCount(); got != 1 {
		t.Errorf("tool executions = %d, want 1", got)
	}
	if !strings.Contains(out.RawNotes, "Research marked complete.") {
		t.Errorf("raw notes missing the completion acknowledgement: %q", out.RawNotes)
	}
}

// One failing tool call must not disturb the other calls of the same
// turn, and every call gets a result in call order.
func TestResearcherIsolatesToolFailures(t *testing.T) {
	good := &fakeTool{name: "good"}
	flaky := &fakeTool{
		name:   "flaky",
		invoke: func(_ json.RawMessage) (string, error) { return "", errors.New("upstream 500") },
	}
	turn := 0
	client := &scriptClient{}
	client.handle = func(stage string, req *llm.Request) (*llm.Response, error) {
		switch stage {
		case stageResearcher:
			turn++
			if turn == 1 {
				return callResponse(
					call("r1", "good", `{}`),
					call("r2", "flaky", `{}`),
					call("r3", "no_such_tool", `{}`),
				), nil
			}
			return textResponse("wrapping up"), nil
		case stageCompress:
			return textResponse("summary"), nil
		}
		return nil, errors.New("unexpected stage " + stage)
	}
	p := newTestPipeline(t, client, testConfig(), []tools.Tool{good, flaky})

	if _, err := p.runResearcher(context.Background(), "topic"); err != nil {
		t.Fatalf("runResearcher: %v", err)
	}

	second := client.byStage(stageResearcher)[1]
	var results []llm.Message
	for _, m := range second.Messages {
		if m.Role == llm.RoleTool {
			results = append(results, m)
		}
	}
	if len(results) != 3 {
		t.Fatalf("tool results = %d, want 3", len(results))
	}
	if results[0].ToolCallID != "r1" || results[0].Content != "result from good" {
		t.Errorf("first result = %+v", results[0])
	}
	if results[1].ToolCallID != "r2" || results[1].Content != "Error executing tool: upstream 500" {
		t.Errorf("second result = %+v", results[1])
	}
	if results[2].ToolCallID != "r3" || !strings.Contains(results[2].Content, `unknown tool "no_such_tool"`) {
		t.Errorf("third result = %+v", results[2])
	}
}

func TestResearcherModelErrorPropagates(t *testing.T) {
	client := &scriptClient{}
	client.handle = func(stage string, req *llm.Request) (*llm.Response, error) {
		return nil, errors.New("model unavailable")
	}
	p := newTestPipeline(t, client, testConfig(), nil)

	if _, err := p.runResearcher(context.Background(), "topic"); err == nil {
		t.Fatal("expected decide-stage failure to surface as an error")
	}
	if got := client.countStage(stageCompress); got != 0 {
		t.Errorf("synthesis attempted %d times after a decide failure, want 0", got)
	}
}
