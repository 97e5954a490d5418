package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mfujita/kabuto/internal/llm"
)

const maxSynthesisAttempts = 3

// compressResearch turns a researcher transcript into a compact
// findings note. Context overflows prune the transcript back through
// the most recent assistant message and retry; any other failure burns
// an attempt as-is. After three failed attempts the sentinel error text
// is returned so the supervisor can treat it as absence of a finding.
func (p *Pipeline) compressResearch(ctx context.Context, messages []llm.Message) ResearcherOutput {
	model := p.cfg.LLM.Compression
	transcript := append(append([]llm.Message{}, messages...),
		llm.Message{Role: llm.RoleUser, Content: compressHumanMessage})

	for attempt := 0; attempt < maxSynthesisAttempts; attempt++ {
		req := &llm.Request{
			Model:     model.Model,
			MaxTokens: model.MaxTokens,
			Messages: append([]llm.Message{
				{Role: llm.RoleSystem, Content: fmt.Sprintf(compressSystemPrompt, p.today())},
			}, transcript...),
		}
		resp, err := p.invoker.Invoke(ctx, req)
		if err == nil {
			return ResearcherOutput{
				CompressedResearch: resp.Content,
				RawNotes:           rawNotes(transcript),
			}
		}
		if llm.IsTokenLimitExceeded(err, model.Model) {
			transcript = removeUpToLastAIMessage(transcript)
			slog.Warn("token limit exceeded while synthesizing, pruning transcript", "error", err)
			continue
		}
		slog.Error("error synthesizing research report", "error", err)
	}
	return ResearcherOutput{
		CompressedResearch: errorResearchOutput,
		RawNotes:           rawNotes(transcript),
	}
}

// rawNotes concatenates all tool results and model responses of a
// transcript, newline-joined.
func rawNotes(messages []llm.Message) string {
	var parts []string
	for _, m := range messages {
		if (m.Role == llm.RoleTool || m.Role == llm.RoleAssistant) && m.Content != "" {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n")
}
