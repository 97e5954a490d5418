package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/mfujita/kabuto/internal/config"
	"github.com/mfujita/kabuto/internal/natsbus"
	"github.com/mfujita/kabuto/internal/store"
)

// Runner executes one scheduled research prompt. The gateway wires the
// research pipeline in here; tests substitute a fake.
type Runner interface {
	RunScheduled(ctx context.Context, taskID, prompt string) error
}

type Scheduler struct {
	store        *store.Store
	runner       Runner
	natsClient   *natsbus.Client
	pollInterval time.Duration
	reloadCh     chan struct{}
}

func New(s *store.Store, runner Runner, natsClient *natsbus.Client, cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		store:        s,
		runner:       runner,
		natsClient:   natsClient,
		pollInterval: cfg.PollInterval,
		reloadCh:     make(chan struct{}, 1),
	}
}

// UpdateConfig updates the scheduler's poll interval, then signals the
// run loop to reset its ticker.
func (s *Scheduler) UpdateConfig(pollInterval time.Duration) {
	s.pollInterval = pollInterval
	select {
	case s.reloadCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	if s.pollInterval == 0 {
		s.pollInterval = 30 * time.Second
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	slog.Info("scheduler started", "poll_interval", s.pollInterval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-s.reloadCh:
			ticker.Reset(s.pollInterval)
			slog.Info("scheduler config reloaded", "poll_interval", s.pollInterval)
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *Scheduler) poll(ctx context.Context) {
	tasks, err := s.store.GetDueTasks(time.Now())
	if err != nil {
		slog.Error("failed to get due tasks", "error", err)
		return
	}

	for _, task := range tasks {
		s.execute(ctx, task)
	}
}

func (s *Scheduler) execute(ctx context.Context, task store.ScheduledTask) {
	slog.Info("executing scheduled task", "id", task.ID, "name", task.Name)

	err := s.runner.RunScheduled(ctx, task.ID, task.Prompt)

	var lastStatus, lastError string
	if err != nil {
		lastStatus = "error"
		lastError = err.Error()
		slog.Error("task execution failed", "id", task.ID, "error", err)
	} else {
		lastStatus = "success"
	}

	// Calculate next run time
	nextRun := CalculateNextRun(task.Schedule)

	if err := s.store.UpdateTaskRun(task.ID, lastStatus, lastError, nextRun); err != nil {
		slog.Error("failed to update task run", "id", task.ID, "error", err)
	}

	s.publishTaskExecuted(task, lastStatus)

	// Mark one-off tasks as completed when they have no next run
	if nextRun == nil {
		slog.Info("no next run, marking one-off task as completed", "id", task.ID, "name", task.Name)
		if err := s.store.UpdateTaskStatus(task.ID, "completed"); err != nil {
			slog.Error("failed to complete task", "id", task.ID, "error", err)
		}
	}
}

func (s *Scheduler) publishTaskExecuted(task store.ScheduledTask, status string) {
	if s.natsClient == nil {
		return
	}

	event := map[string]any{
		"type":      "task_executed",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data": map[string]any{
			"id":     task.ID,
			"name":   task.Name,
			"status": status,
		},
	}

	if err := s.natsClient.PublishJSON(natsbus.TopicTaskRun(task.ID), event); err != nil {
		slog.Warn("publish task event failed", "id", task.ID, "error", err)
	}
}
