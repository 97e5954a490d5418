package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mfujita/kabuto/internal/config"
	"github.com/mfujita/kabuto/internal/llm"
	"github.com/mfujita/kabuto/internal/tools"
)

// Pipeline runs the three research stages: brief formulation,
// supervised research, final report synthesis. One Pipeline can serve
// many runs; each run gets its own state.
type Pipeline struct {
	invoker  *llm.Invoker
	cfg      *config.Config
	tools    []tools.Tool
	listener Listener
	now      func() time.Time
}

type Option func(*Pipeline)

// WithListener subscribes a listener to run lifecycle events.
func WithListener(l Listener) Option {
	return func(p *Pipeline) { p.listener = l }
}

// WithRetryPolicy overrides the model-call retry policy.
func WithRetryPolicy(client llm.Client, policy llm.RetryPolicy) Option {
	return func(p *Pipeline) { p.invoker = llm.NewInvoker(client, policy) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func New(client llm.Client, cfg *config.Config, set []tools.Tool, opts ...Option) *Pipeline {
	p := &Pipeline{
		invoker:  llm.NewInvoker(client, llm.DefaultRetryPolicy()),
		cfg:      cfg,
		tools:    set,
		listener: nopListener{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes a full research run over the given input messages.
func (p *Pipeline) Run(ctx context.Context, messages []llm.Message) (*Result, error) {
	return p.RunWithID(ctx, uuid.NewString(), messages)
}

// RunWithID executes a run under a caller-chosen run ID so that
// persisted rows and emitted events can be correlated.
func (p *Pipeline) RunWithID(ctx context.Context, runID string, messages []llm.Message) (*Result, error) {
	p.emit(runID, EventResearchStarted, map[string]any{"messages": len(messages)})

	brief, err := p.writeBrief(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("research brief: %w", err)
	}
	slog.Info("research brief written", "run", runID, "length", len(brief))

	notes, rawNotes := p.supervise(ctx, runID, brief)

	report, err := p.writeFinalReport(ctx, messages, brief, notes)
	if err != nil {
		return nil, err
	}
	p.emit(runID, EventResearchCompleted, map[string]any{"notes": len(notes), "report_length": len(report)})

	result := &Result{
		FinalReport:   report,
		ResearchBrief: brief,
		Notes:         notes,
		RawNotes:      rawNotes,
		Messages:      append(append([]llm.Message{}, messages...), llm.Message{Role: llm.RoleAssistant, Content: report}),
	}
	return result, nil
}

// writeBrief turns the raw input messages into a structured research
// brief via constrained model output.
func (p *Pipeline) writeBrief(ctx context.Context, messages []llm.Message) (string, error) {
	model := p.cfg.LLM.Research
	prompt := fmt.Sprintf(briefPrompt, p.today(), bufferString(messages))

	var out struct {
		ResearchBrief string `json:"research_brief"`
	}
	req := &llm.Request{
		Model:     model.Model,
		MaxTokens: model.MaxTokens,
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Schema: &llm.ResponseSchema{
			Name: "research_question",
			Schema: []byte(`{
				"type": "object",
				"properties": {
					"research_brief": {"type": "string", "description": "A research question that will be used to guide the research"}
				},
				"required": ["research_brief"],
				"additionalProperties": false
			}`),
		},
	}
	if err := p.invoker.InvokeStructured(ctx, req, &out, p.cfg.Research.MaxStructuredOutputRetries); err != nil {
		return "", err
	}
	if out.ResearchBrief == "" {
		return "", fmt.Errorf("model returned an empty research brief")
	}
	return out.ResearchBrief, nil
}

// writeFinalReport synthesizes the report from accumulated notes,
// shrinking the findings text on context overflows. The first overflow
// caps findings at four characters per token of the model's window;
// each further overflow shaves another 10%.
func (p *Pipeline) writeFinalReport(ctx context.Context, messages []llm.Message, brief string, notes []string) (string, error) {
	model := p.cfg.LLM.Report
	findings := strings.Join(notes, "\n")

	var limit int
	for attempt := 0; attempt <= 3; attempt++ {
		prompt := fmt.Sprintf(finalReportPrompt, p.today(), brief, bufferString(messages), findings)
		resp, err := p.invoker.Invoke(ctx, &llm.Request{
			Model:     model.Model,
			MaxTokens: model.MaxTokens,
			Messages:  []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		})
		if err == nil {
			return resp.Content, nil
		}
		if !llm.IsTokenLimitExceeded(err, model.Model) {
			return fmt.Sprintf("Error generating final report: %s", err), nil
		}
		if attempt == 0 {
			window := llm.ModelTokenLimit(model.Model)
			if window == 0 {
				return "", fmt.Errorf("final report: token limit exceeded but the context window of model %q is unknown; add it to the model token limit table", model.Model)
			}
			limit = window * 4
		} else {
			limit = limit * 9 / 10
		}
		if limit < len(findings) {
			findings = findings[:limit]
		}
		slog.Warn("final report overflowed context, truncating findings", "chars", limit)
	}
	return "Error generating final report: Maximum retries exceeded", nil
}

func (p *Pipeline) today() string {
	return p.now().Format("Mon Jan 2, 2006")
}

func bufferString(messages []llm.Message) string {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return b.String()
}
