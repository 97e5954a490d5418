package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mfujita/kabuto/internal/config"
	"github.com/mfujita/kabuto/internal/llm"
	"github.com/mfujita/kabuto/internal/tools"
)

// Stages a model request can belong to, recovered from its shape.
const (
	stageBrief      = "brief"
	stageSupervisor = "supervisor"
	stageResearcher = "researcher"
	stageCompress   = "compress"
	stageReport     = "report"
)

func classify(req *llm.Request) string {
	if req.Schema != nil {
		return stageBrief
	}
	for _, t := range req.Tools {
		if t.Name == toolConductResearch {
			return stageSupervisor
		}
	}
	if len(req.Tools) > 0 {
		return stageResearcher
	}
	if len(req.Messages) > 0 && req.Messages[len(req.Messages)-1].Content == compressHumanMessage {
		return stageCompress
	}
	return stageReport
}

// scriptClient dispatches each model call to a handler and records a
// snapshot of every request.
type scriptClient struct {
	mu       sync.Mutex
	requests []*llm.Request
	handle   func(stage string, req *llm.Request) (*llm.Response, error)
}

func (c *scriptClient) Chat(_ context.Context, req *llm.Request) (*llm.Response, error) {
	snapshot := *req
	snapshot.Messages = append([]llm.Message{}, req.Messages...)
	c.mu.Lock()
	c.requests = append(c.requests, &snapshot)
	c.mu.Unlock()
	return c.handle(classify(req), req)
}

func (c *scriptClient) byStage(stage string) []*llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*llm.Request
	for _, r := range c.requests {
		if classify(r) == stage {
			out = append(out, r)
		}
	}
	return out
}

func (c *scriptClient) countStage(stage string) int {
	return len(c.byStage(stage))
}

func textResponse(content string) *llm.Response {
	return &llm.Response{Content: content}
}

func callResponse(calls ...llm.ToolCall) *llm.Response {
	return &llm.Response{ToolCalls: calls}
}

func call(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

func dispatchCall(id, topic string) llm.ToolCall {
	args, _ := json.Marshal(map[string]string{"research_topic": topic})
	return llm.ToolCall{ID: id, Name: toolConductResearch, Arguments: args}
}

// fakeTool is a scriptable researcher tool.
type fakeTool struct {
	name   string
	invoke func(args json.RawMessage) (string, error)

	mu    sync.Mutex
	calls int
}

func (f *fakeTool) Name() string            { return f.name }
func (f *fakeTool) Description() string     { return "test tool" }
func (f *fakeTool) Schema() json.RawMessage { return json.RawMessage(`{"type": "object"}`) }

func (f *fakeTool) Invoke(_ context.Context, args json.RawMessage) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.invoke != nil {
		return f.invoke(args)
	}
	return "result from " + f.name, nil
}

func (f *fakeTool) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// recordListener captures pipeline events for assertions.
type recordListener struct {
	mu     sync.Mutex
	events []Event
}

func (l *recordListener) OnEvent(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *recordListener) count(typ string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func testConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{
			Research:    config.ModelConfig{Model: "gpt-4.1", MaxTokens: 1000},
			Compression: config.ModelConfig{Model: "gpt-4.1-mini", MaxTokens: 1000},
			Report:      config.ModelConfig{Model: "gpt-4o", MaxTokens: 1000},
		},
		Research: config.ResearchConfig{
			MaxConcurrentUnits:         5,
			MaxResearcherIterations:    6,
			MaxReactToolCalls:          10,
			MaxStructuredOutputRetries: 3,
		},
	}
}

func testPolicy() llm.RetryPolicy {
	return llm.RetryPolicy{
		MaxAttempts:   5,
		MinWait:       time.Millisecond,
		MaxWait:       4 * time.Millisecond,
		RateLimitBase: time.Millisecond,
		RateLimitStep: time.Millisecond,
	}
}

func newTestPipeline(t *testing.T, client *scriptClient, cfg *config.Config, set []tools.Tool, opts ...Option) *Pipeline {
	t.Helper()
	base := []Option{
		WithRetryPolicy(client, testPolicy()),
		WithClock(func() time.Time { return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC) }),
	}
	return New(client, cfg, set, append(base, opts...)...)
}

func briefResponse(brief string) *llm.Response {
	return textResponse(fmt.Sprintf(`{"research_brief": %q}`, brief))
}

// lastMessageHasToolResult reports whether the request transcript holds
// a tool-result message containing the given substring.
func transcriptContains(req *llm.Request, substr string) bool {
	for _, m := range req.Messages {
		if strings.Contains(m.Content, substr) {
			return true
		}
	}
	return false
}
