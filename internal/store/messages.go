package store

import (
	"encoding/json"
	"fmt"
	"time"
)

type Message struct {
	ID        int64           `json:"id"`
	RunID     string          `json:"run_id"`
	Sender    string          `json:"sender"`
	Content   string          `json:"content"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (s *Store) SaveMessage(msg *Message) error {
	result, err := s.db.Exec(`
		INSERT INTO messages (run_id, sender, content, metadata)
		VALUES (?, ?, ?, ?)`,
		msg.RunID, msg.Sender, msg.Content, msg.Metadata)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	msg.ID, _ = result.LastInsertId()
	return nil
}

func (s *Store) GetMessages(runID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, run_id, sender, content, metadata, created_at
		FROM messages
		WHERE run_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	// Reverse to get chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, rows.Err()
}

func (s *Store) GetRecentMessages(limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, run_id, sender, content, metadata, created_at
		FROM messages
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent messages: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	return messages, rows.Err()
}

func scanMessages(rows interface {
	Next() bool
	Scan(dest ...any) error
}) ([]Message, error) {
	var messages []Message
	for rows.Next() {
		var m Message
		var metadata *string
		if err := rows.Scan(&m.ID, &m.RunID, &m.Sender, &m.Content, &metadata, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if metadata != nil {
			m.Metadata = json.RawMessage(*metadata)
		}
		messages = append(messages, m)
	}
	return messages, nil
}
