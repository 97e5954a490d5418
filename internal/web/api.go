package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mfujita/kabuto/internal/scheduler"
	"github.com/mfujita/kabuto/internal/store"
)

func (s *Server) registerAPI(mux *http.ServeMux) {
	// Research runs
	mux.HandleFunc("POST /api/research", s.startResearch)
	mux.HandleFunc("GET /api/runs", s.listRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.getRun)
	mux.HandleFunc("DELETE /api/runs/{id}", s.deleteRun)
	mux.HandleFunc("GET /api/runs/{id}/messages", s.getRunMessages)
	mux.HandleFunc("GET /api/messages", s.getRecentMessages)

	// Tasks
	mux.HandleFunc("GET /api/tasks", s.listTasks)
	mux.HandleFunc("POST /api/tasks", s.createTask)
	mux.HandleFunc("PUT /api/tasks/{id}", s.updateTask)
	mux.HandleFunc("DELETE /api/tasks/completed", s.deleteCompletedTasks)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.deleteTask)

	// System
	mux.HandleFunc("GET /api/status", s.getStatus)
}

func (s *Server) startResearch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Request string `json:"request"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Request == "" {
		jsonError(w, "request is required", http.StatusBadRequest)
		return
	}

	run, err := s.research.StartResearch(r.Context(), body.Request)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, run)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListResearchRuns()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []store.ResearchRun{}
	}
	jsonResponse(w, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := s.store.GetResearchRun(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		jsonError(w, "run not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, run)
}

func (s *Server) deleteRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteResearchRun(id); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"status": "deleted"})
}

func (s *Server) getRunMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	messages, err := s.store.GetMessages(id, limit)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []store.Message{}
	}
	jsonResponse(w, messages)
}

func (s *Server) getRecentMessages(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	messages, err := s.store.GetRecentMessages(limit)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []store.Message{}
	}
	jsonResponse(w, messages)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.ListTasks()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]map[string]any, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskToAPI(t))
	}
	jsonResponse(w, out)
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string `json:"name"`
		Schedule string `json:"schedule"`
		Prompt   string `json:"prompt"`
		Enabled  *bool  `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Name == "" || body.Schedule == "" || body.Prompt == "" {
		jsonError(w, "name, schedule, and prompt are required", http.StatusBadRequest)
		return
	}

	// Normalize schedule (handles plain cron strings)
	normalized, err := scheduler.NormalizeSchedule(body.Schedule)
	if err != nil {
		jsonError(w, fmt.Sprintf("invalid schedule: %v", err), http.StatusBadRequest)
		return
	}

	status := "active"
	if body.Enabled != nil && !*body.Enabled {
		status = "paused"
	}

	t := store.ScheduledTask{
		ID:       uuid.New().String(),
		Name:     body.Name,
		Schedule: normalized,
		Prompt:   body.Prompt,
		Status:   status,
	}

	// Calculate initial next_run_at
	if status == "active" {
		t.NextRunAt = scheduler.CalculateNextRun(normalized)
	}

	if err := s.store.SaveTask(&t); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, taskToAPI(t))
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	existing, err := s.store.GetTask(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if existing == nil {
		jsonError(w, "task not found", http.StatusNotFound)
		return
	}

	var body struct {
		Name     *string `json:"name"`
		Schedule *string `json:"schedule"`
		Prompt   *string `json:"prompt"`
		Enabled  *bool   `json:"enabled"`
		Status   *string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// Apply updates
	if body.Name != nil {
		existing.Name = *body.Name
	}
	if body.Prompt != nil {
		existing.Prompt = *body.Prompt
	}

	// Handle enabled bool → status mapping
	if body.Enabled != nil {
		if *body.Enabled {
			existing.Status = "active"
		} else if existing.Status != "completed" {
			existing.Status = "paused"
		}
	} else if body.Status != nil {
		existing.Status = *body.Status
	}

	// Handle schedule change
	if body.Schedule != nil {
		normalized, err := scheduler.NormalizeSchedule(*body.Schedule)
		if err != nil {
			jsonError(w, fmt.Sprintf("invalid schedule: %v", err), http.StatusBadRequest)
			return
		}
		existing.Schedule = normalized
	}

	// Recalculate next_run_at
	if existing.Status == "active" {
		existing.NextRunAt = scheduler.CalculateNextRun(existing.Schedule)
	} else {
		existing.NextRunAt = nil
	}

	if err := s.store.SaveTask(existing); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, taskToAPI(*existing))
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteTask(id); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"status": "deleted"})
}

func (s *Server) deleteCompletedTasks(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.DeleteCompletedTasks()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]any{"status": "deleted", "count": count})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	runs, _ := s.store.ListResearchRuns()
	tasks, _ := s.store.ListTasks()

	activeRuns := 0
	for _, run := range runs {
		if run.Status == "running" {
			activeRuns++
		}
	}
	activeTasks := 0
	for _, t := range tasks {
		if t.Status == "active" {
			activeTasks++
		}
	}

	jsonResponse(w, map[string]any{
		"version":      s.version,
		"uptime":       formatUptime(time.Since(s.startedAt)),
		"total_runs":   len(runs),
		"active_runs":  activeRuns,
		"active_tasks": activeTasks,
	})
}

func taskToAPI(t store.ScheduledTask) map[string]any {
	m := map[string]any{
		"id":               t.ID,
		"name":             t.Name,
		"schedule":         t.Schedule,
		"schedule_display": scheduler.FormatSchedule(t.Schedule),
		"prompt":           t.Prompt,
		"enabled":          t.Status == "active",
		"status":           t.Status,
	}
	if t.LastRunAt != nil {
		m["last_run"] = formatMessageTime(*t.LastRunAt)
	}
	if t.NextRunAt != nil {
		m["next_run"] = formatMessageTime(*t.NextRunAt)
	}
	return m
}

func formatMessageTime(t time.Time) string {
	local := t.Local()
	now := time.Now()
	if local.Year() == now.Year() && local.YearDay() == now.YearDay() {
		return local.Format("15:04")
	}
	return local.Format("Jan 2 15:04")
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

func jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
