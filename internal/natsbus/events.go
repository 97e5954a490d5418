package natsbus

import (
	"log/slog"

	"github.com/mfujita/kabuto/internal/research"
)

// EventPublisher bridges pipeline lifecycle events onto the bus so the
// web layer and any external subscriber can follow a run live.
type EventPublisher struct {
	client *Client
}

func NewEventPublisher(client *Client) *EventPublisher {
	return &EventPublisher{client: client}
}

func (p *EventPublisher) OnEvent(ev research.Event) {
	if err := p.client.PublishJSON(TopicResearchRun(ev.RunID), ev); err != nil {
		slog.Warn("publish research event failed", "type", ev.Type, "run", ev.RunID, "error", err)
	}
}
