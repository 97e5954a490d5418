package research

import "time"

// Event types emitted over a run's lifecycle.
const (
	EventResearchStarted   = "research.started"
	EventSupervisorTurn    = "supervisor.turn"
	EventUnitDispatched    = "unit.dispatched"
	EventUnitCompleted     = "unit.completed"
	EventResearchCompleted = "research.completed"
)

// Event is one lifecycle notification from a running pipeline.
type Event struct {
	Type   string         `json:"type"`
	RunID  string         `json:"run_id"`
	Time   time.Time      `json:"time"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Listener receives pipeline events. Implementations must not block;
// the pipeline calls OnEvent inline between orchestration steps.
type Listener interface {
	OnEvent(ev Event)
}

type nopListener struct{}

func (nopListener) OnEvent(Event) {}

func (p *Pipeline) emit(runID, typ string, fields map[string]any) {
	p.listener.OnEvent(Event{
		Type:   typ,
		RunID:  runID,
		Time:   p.now(),
		Fields: fields,
	})
}
