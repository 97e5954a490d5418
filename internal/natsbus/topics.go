package natsbus

import "fmt"

// Topic patterns for NATS pub/sub communication.

// TopicResearchRun carries every lifecycle event of one research run.
func TopicResearchRun(runID string) string {
	return fmt.Sprintf("events.research.%s", runID)
}

func TopicTaskRun(taskID string) string {
	return fmt.Sprintf("events.task.%s", taskID)
}

const (
	TopicEventsAll      = "events.>"
	TopicEventsResearch = "events.research.*"
	TopicEventsTask     = "events.task.*"
)
