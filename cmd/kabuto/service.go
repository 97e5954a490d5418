package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/mfujita/kabuto/internal/llm"
	"github.com/mfujita/kabuto/internal/research"
	"github.com/mfujita/kabuto/internal/store"
)

// researchService runs research requests through the pipeline and
// persists the results. It backs both the web API and the scheduler.
type researchService struct {
	pipeline *research.Pipeline
	store    *store.Store
	wg       sync.WaitGroup
}

func newResearchService(p *research.Pipeline, s *store.Store) *researchService {
	return &researchService{pipeline: p, store: s}
}

// StartResearch records a new run and executes it in the background.
// The returned run is in the "running" state; callers poll the store
// or watch bus events for completion.
func (svc *researchService) StartResearch(ctx context.Context, request string) (*store.ResearchRun, error) {
	run := &store.ResearchRun{
		ID:      uuid.NewString(),
		Request: request,
		Status:  "running",
	}
	if err := svc.store.SaveResearchRun(run); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}
	if err := svc.store.SaveMessage(&store.Message{RunID: run.ID, Sender: "user", Content: request}); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}

	svc.wg.Add(1)
	go func() {
		defer svc.wg.Done()
		// Detach from the request context; the run outlives the HTTP call.
		svc.execute(context.WithoutCancel(ctx), run.ID, request)
	}()
	return run, nil
}

// RunScheduled executes a scheduled prompt synchronously so the
// scheduler can record the outcome on the task.
func (svc *researchService) RunScheduled(ctx context.Context, taskID, prompt string) error {
	run := &store.ResearchRun{
		ID:      uuid.NewString(),
		Request: prompt,
		Status:  "running",
	}
	if err := svc.store.SaveResearchRun(run); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	if err := svc.store.SaveMessage(&store.Message{RunID: run.ID, Sender: "scheduler", Content: prompt}); err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	slog.Info("scheduled research started", "task", taskID, "run", run.ID)
	return svc.execute(ctx, run.ID, prompt)
}

func (svc *researchService) execute(ctx context.Context, runID, request string) error {
	messages := []llm.Message{{Role: llm.RoleUser, Content: request}}

	result, err := svc.pipeline.RunWithID(ctx, runID, messages)
	if err != nil {
		slog.Error("research run failed", "run", runID, "error", err)
		if serr := svc.store.CompleteResearchRun(runID, "failed", "", err.Error(), nil); serr != nil {
			slog.Error("record failed run", "run", runID, "error", serr)
		}
		return err
	}

	notes, merr := json.Marshal(result.Notes)
	if merr != nil {
		notes = nil
	}
	if err := svc.store.CompleteResearchRun(runID, "completed", result.ResearchBrief, result.FinalReport, notes); err != nil {
		slog.Error("record completed run", "run", runID, "error", err)
		return err
	}
	if err := svc.store.SaveMessage(&store.Message{RunID: runID, Sender: "assistant", Content: result.FinalReport}); err != nil {
		slog.Error("save report message", "run", runID, "error", err)
	}
	slog.Info("research run completed", "run", runID, "report_length", len(result.FinalReport))
	return nil
}

// Wait blocks until all background runs have finished.
func (svc *researchService) Wait() {
	svc.wg.Wait()
}
