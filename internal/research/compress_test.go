package research

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mfujita/kabuto/internal/llm"
)

func researcherTranscript() []llm.Message {
	return []llm.Message{
		{Role: llm.RoleUser, Content: "topic"},
		{Role: llm.RoleAssistant, Content: "thinking aloud"},
		{Role: llm.RoleTool, Name: "market_data", ToolCallID: "r1", Content: "data point"},
	}
}

func TestCompressReturnsFindingsAndRawNotes(t *testing.T) {
	client := &scriptClient{}
	client.handle = func(stage string, req *llm.Request) (*llm.Response, error) {
		return textResponse("clean findings"), nil
	}
	p := newTestPipeline(t, client, testConfig(), nil)

	out := p.compressResearch(context.Background(), researcherTranscript())

	if out.CompressedResearch != "clean findings" {
		t.Errorf("compressed research = %q", out.CompressedResearch)
	}
	if out.RawNotes != "thinking aloud\ndata point" {
		t.Errorf("raw notes = %q, want assistant and tool contents joined", out.RawNotes)
	}

	req := client.requests[0]
	if req.Model != "gpt-4.1-mini" {
		t.Errorf("synthesis used model %q, want the compression model", req.Model)
	}
	if req.Messages[len(req.Messages)-1].Content != compressHumanMessage {
		t.Errorf("transcript does not end with the cleanup instruction")
	}
}

// A context overflow prunes the transcript back through the most recent
// model message and retries with the shorter transcript.
func TestCompressPrunesOnTokenOverflow(t *testing.T) {
	overflow := &llm.ProviderError{
		Status: 400,
		Code:   "context_length_exceeded",
		Err:    llm.ErrContextLength,
	}
	client := &scriptClient{}
	client.handle = func(stage string, req *llm.Request) (*llm.Response, error) {
		if transcriptContains(req, "thinking aloud") {
			return nil, overflow
		}
		return textResponse("pruned findings"), nil
	}
	p := newTestPipeline(t, client, testConfig(), nil)

	out := p.compressResearch(context.Background(), researcherTranscript())

	if out.CompressedResearch != "pruned findings" {
		t.Fatalf("compressed research = %q", out.CompressedResearch)
	}

	last := client.requests[len(client.requests)-1]
	if transcriptContains(last, "thinking aloud") {
		t.Error("retried transcript still holds the pruned model message")
	}
	if !transcriptContains(last, "topic") {
		t.Error("retried transcript lost the messages before the pruned one")
	}
}

func TestCompressReturnsSentinelAfterRetries(t *testing.T) {
	client := &scriptClient{}
	client.handle = func(stage string, req *llm.Request) (*llm.Response, error) {
		return nil, errors.New("backend on fire")
	}
	p := newTestPipeline(t, client, testConfig(), nil)

	out := p.compressResearch(context.Background(), researcherTranscript())

	if out.CompressedResearch != errorResearchOutput {
		t.Errorf("compressed research = %q, want the synthesis error text", out.CompressedResearch)
	}
	// Raw notes survive even when synthesis fails for good.
	if !strings.Contains(out.RawNotes, "data point") {
		t.Errorf("raw notes = %q, want the tool results preserved", out.RawNotes)
	}
	// Three synthesis attempts, each retried by the invoker.
	if got := len(client.requests); got != 3*testPolicy().MaxAttempts {
		t.Errorf("model calls = %d, want %d", got, 3*testPolicy().MaxAttempts)
	}
}
