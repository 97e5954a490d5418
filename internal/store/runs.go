package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type ResearchRun struct {
	ID          string          `json:"id"`
	Request     string          `json:"request"`
	Brief       string          `json:"brief,omitempty"`
	Status      string          `json:"status"`
	Report      string          `json:"report,omitempty"`
	Notes       json.RawMessage `json:"notes,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

const runColumns = `id, request, brief, status, report, notes, started_at, completed_at`

func scanResearchRun(scanner interface {
	Scan(dest ...any) error
}) (*ResearchRun, error) {
	r := &ResearchRun{}
	var brief, report, notes *string
	err := scanner.Scan(&r.ID, &r.Request, &brief, &r.Status, &report, &notes, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	if brief != nil {
		r.Brief = *brief
	}
	if report != nil {
		r.Report = *report
	}
	if notes != nil {
		r.Notes = json.RawMessage(*notes)
	}
	return r, nil
}

func (s *Store) SaveResearchRun(r *ResearchRun) error {
	_, err := s.db.Exec(`
		INSERT INTO research_runs (id, request, brief, status, report, notes)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			brief = excluded.brief,
			status = excluded.status,
			report = excluded.report,
			notes = excluded.notes,
			completed_at = CASE WHEN excluded.status IN ('completed', 'failed') THEN CURRENT_TIMESTAMP ELSE completed_at END`,
		r.ID, r.Request, r.Brief, r.Status, r.Report, r.Notes)
	if err != nil {
		return fmt.Errorf("save research run: %w", err)
	}
	return nil
}

func (s *Store) GetResearchRun(id string) (*ResearchRun, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM research_runs WHERE id = ?`, id)
	r, err := scanResearchRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get research run: %w", err)
	}
	return r, nil
}

func (s *Store) ListResearchRuns() ([]ResearchRun, error) {
	rows, err := s.db.Query(`SELECT ` + runColumns + ` FROM research_runs ORDER BY started_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list research runs: %w", err)
	}
	defer rows.Close()

	var runs []ResearchRun
	for rows.Next() {
		r, err := scanResearchRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan research run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

func (s *Store) DeleteResearchRun(id string) error {
	_, err := s.db.Exec(`DELETE FROM research_runs WHERE id = ?`, id)
	return err
}

// CompleteResearchRun records the outcome of a finished run. Status is
// 'completed' or 'failed'; notes holds the compressed findings as JSON.
func (s *Store) CompleteResearchRun(id, status, brief, report string, notes json.RawMessage) error {
	_, err := s.db.Exec(`
		UPDATE research_runs
		SET status = ?, brief = ?, report = ?, notes = ?, completed_at = CURRENT_TIMESTAMP
		WHERE id = ?`, status, brief, report, notes, id)
	return err
}
