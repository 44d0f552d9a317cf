package store

import (
	"fmt"
	"time"
)

// Turn is one appended interaction turn within a session. The summarizer
// reads windows of these; they are not memories themselves.
type Turn struct {
	ID           string
	SessionID    string
	Seq          int
	Modality     string
	UserText     string
	ResponseText string
	CreatedAt    int64
}

// AddTurn appends a turn at the given sequence number.
func (db *DB) AddTurn(sessionID string, seq int, modality, userText, responseText string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO turns (id, session_id, seq, modality, user_text, response_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, NewID(), sessionID, seq, modality, userText, responseText, now)
	if err != nil {
		return fmt.Errorf("add turn: %w", err)
	}
	return nil
}

// RecentTurns returns the last n turns of a session in ascending sequence
// order.
func (db *DB) RecentTurns(sessionID string, n int) ([]Turn, error) {
	rows, err := db.Query(`
		SELECT id, session_id, seq, modality, user_text, response_text, created_at
		FROM (
			SELECT id, session_id, seq, modality, user_text, response_text, created_at
			FROM turns WHERE session_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq
	`, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Seq, &t.Modality, &t.UserText, &t.ResponseText, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}
