// Package research implements the multi-agent research orchestration
// core: a pipeline that turns a user request into a research brief,
// supervises concurrently dispatched researcher agents, compresses
// their findings and synthesizes a final report.
package research

import "github.com/mfujita/kabuto/internal/llm"

// AgentState is the top-level run state. It lives for one run only.
type AgentState struct {
	Messages      []llm.Message
	ResearchBrief string
	Notes         []string
	RawNotes      []string
	FinalReport   string
}

// SupervisorState is owned exclusively by the supervisor loop.
type SupervisorState struct {
	Messages           []llm.Message
	ResearchIterations int
	Notes              []string
	RawNotes           []string
}

// ResearcherState is private to one researcher instance. Instances do
// not share state; each is seeded with only its own topic.
type ResearcherState struct {
	Messages           []llm.Message
	Topic              string
	ToolCallIterations int
}

// ResearcherOutput is the only data a researcher returns to its parent
// supervisor. The full private transcript never leaks upward.
type ResearcherOutput struct {
	CompressedResearch string
	RawNotes           string
}

// Result is what a completed pipeline run hands back to the caller.
type Result struct {
	FinalReport   string
	ResearchBrief string
	Notes         []string
	RawNotes      []string
	Messages      []llm.Message
}

// notesFromToolMessages extracts the contents of all tool-result
// messages in a transcript, in order. These are the compressed findings
// the supervisor accumulated.
func notesFromToolMessages(messages []llm.Message) []string {
	var notes []string
	for _, m := range messages {
		if m.Role == llm.RoleTool {
			notes = append(notes, m.Content)
		}
	}
	return notes
}

// removeUpToLastAIMessage truncates a transcript from the most recent
// assistant message onward, freeing context for a retry.
func removeUpToLastAIMessage(messages []llm.Message) []llm.Message {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llm.RoleAssistant {
			return messages[:i]
		}
	}
	return messages
}
