package store

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/mfujita/kabuto/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(config.StoreConfig{Path: filepath.Join(dir, "test.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestResearchRunCRUD(t *testing.T) {
	s := newTestStore(t)

	run := &ResearchRun{
		ID:      "run-1",
		Request: "is 7203 undervalued?",
		Status:  "running",
	}
	if err := s.SaveResearchRun(run); err != nil {
		t.Fatalf("save research run: %v", err)
	}

	got, err := s.GetResearchRun("run-1")
	if err != nil {
		t.Fatalf("get research run: %v", err)
	}
	if got == nil {
		t.Fatal("expected run, got nil")
	}
	if got.Status != "running" {
		t.Errorf("expected status 'running', got '%s'", got.Status)
	}
	if got.CompletedAt != nil {
		t.Error("expected no completion time on a running run")
	}

	notes, _ := json.Marshal([]string{"finding one", "finding two"})
	if err := s.CompleteResearchRun("run-1", "completed", "the brief", "the report", notes); err != nil {
		t.Fatalf("complete research run: %v", err)
	}

	got, _ = s.GetResearchRun("run-1")
	if got.Status != "completed" {
		t.Errorf("expected status 'completed', got '%s'", got.Status)
	}
	if got.Brief != "the brief" || got.Report != "the report" {
		t.Errorf("brief/report not persisted: %q / %q", got.Brief, got.Report)
	}
	if got.CompletedAt == nil {
		t.Error("expected completion time to be set")
	}
	var decoded []string
	if err := json.Unmarshal(got.Notes, &decoded); err != nil || len(decoded) != 2 {
		t.Errorf("notes round-trip failed: %s", got.Notes)
	}

	// Not found
	missing, err := s.GetResearchRun("nonexistent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for nonexistent run")
	}

	// List ordering: newest first
	_ = s.SaveResearchRun(&ResearchRun{ID: "run-2", Request: "growth of 8035", Status: "running"})
	runs, err := s.ListResearchRuns()
	if err != nil {
		t.Fatalf("list research runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-2" {
		t.Errorf("expected newest run first, got '%s'", runs[0].ID)
	}
}

func TestMessageCRUD(t *testing.T) {
	s := newTestStore(t)

	_ = s.SaveResearchRun(&ResearchRun{ID: "run-1", Request: "q", Status: "running"})

	for i := 0; i < 5; i++ {
		_ = s.SaveMessage(&Message{
			RunID:   "run-1",
			Sender:  "user",
			Content: "message " + string(rune('A'+i)),
		})
	}

	messages, err := s.GetMessages("run-1", 10)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(messages) != 5 {
		t.Errorf("expected 5 messages, got %d", len(messages))
	}
	// Should be in chronological order
	if messages[0].Content != "message A" {
		t.Errorf("expected first message 'message A', got '%s'", messages[0].Content)
	}

	// Limit
	messages, err = s.GetMessages("run-1", 2)
	if err != nil {
		t.Fatalf("get messages limited: %v", err)
	}
	if len(messages) != 2 {
		t.Errorf("expected 2 messages, got %d", len(messages))
	}

	recent, err := s.GetRecentMessages(3)
	if err != nil {
		t.Fatalf("get recent messages: %v", err)
	}
	if len(recent) != 3 {
		t.Errorf("expected 3 recent messages, got %d", len(recent))
	}
	if recent[0].Content != "message E" {
		t.Errorf("expected newest message first, got '%s'", recent[0].Content)
	}
}

func TestScheduledTaskCRUD(t *testing.T) {
	s := newTestStore(t)

	now := time.Now()
	nextRun := now.Add(-1 * time.Minute) // Due now
	task := &ScheduledTask{
		ID:        "task-1",
		Name:      "Weekly toyota check",
		Schedule:  "0 9 * * 1",
		Prompt:    "re-evaluate 7203 fundamentals",
		Status:    "active",
		NextRunAt: &nextRun,
	}

	if err := s.SaveTask(task); err != nil {
		t.Fatalf("save task: %v", err)
	}

	got, err := s.GetTask("task-1")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Name != "Weekly toyota check" {
		t.Errorf("expected 'Weekly toyota check', got '%s'", got.Name)
	}

	// Due tasks
	due, err := s.GetDueTasks(time.Now())
	if err != nil {
		t.Fatalf("get due tasks: %v", err)
	}
	if len(due) != 1 {
		t.Errorf("expected 1 due task, got %d", len(due))
	}

	// Record a run outcome and push the next execution into the future.
	future := now.Add(time.Hour)
	if err := s.UpdateTaskRun("task-1", "ok", "", &future); err != nil {
		t.Fatalf("update task run: %v", err)
	}
	got, _ = s.GetTask("task-1")
	if got.LastStatus != "ok" {
		t.Errorf("expected last status 'ok', got '%s'", got.LastStatus)
	}
	due, _ = s.GetDueTasks(time.Now())
	if len(due) != 0 {
		t.Errorf("expected 0 due tasks after reschedule, got %d", len(due))
	}

	// Pause
	past := now.Add(-time.Minute)
	_ = s.UpdateTaskRun("task-1", "ok", "", &past)
	_ = s.UpdateTaskStatus("task-1", "paused")
	due, _ = s.GetDueTasks(time.Now())
	if len(due) != 0 {
		t.Errorf("expected 0 due tasks after pause, got %d", len(due))
	}

	if err := s.DeleteTask("task-1"); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	got, _ = s.GetTask("task-1")
	if got != nil {
		t.Error("expected nil after delete")
	}
}

func TestSecretCRUD(t *testing.T) {
	s := newTestStore(t)

	sec := &Secret{Name: "jquants_refresh_token", Value: []byte("ciphertext"), Nonce: []byte("nonce-12")}
	if err := s.SaveSecret(sec); err != nil {
		t.Fatalf("save secret: %v", err)
	}

	got, err := s.GetSecret("jquants_refresh_token")
	if err != nil {
		t.Fatalf("get secret: %v", err)
	}
	if got == nil {
		t.Fatal("expected secret, got nil")
	}
	if string(got.Value) != "ciphertext" || string(got.Nonce) != "nonce-12" {
		t.Errorf("value/nonce not persisted: %q / %q", got.Value, got.Nonce)
	}

	// Upsert replaces the ciphertext
	sec.Value = []byte("rotated")
	if err := s.SaveSecret(sec); err != nil {
		t.Fatalf("update secret: %v", err)
	}
	got, _ = s.GetSecret("jquants_refresh_token")
	if string(got.Value) != "rotated" {
		t.Errorf("expected rotated ciphertext, got %q", got.Value)
	}

	// Listings carry no ciphertext
	list, err := s.ListSecrets()
	if err != nil {
		t.Fatalf("list secrets: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 secret, got %d", len(list))
	}
	if list[0].Value != nil {
		t.Error("listing leaked ciphertext")
	}

	if err := s.DeleteSecret("jquants_refresh_token"); err != nil {
		t.Fatalf("delete secret: %v", err)
	}
	got, _ = s.GetSecret("jquants_refresh_token")
	if got != nil {
		t.Error("expected nil after delete")
	}
}
