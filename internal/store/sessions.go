package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Session holds per-session engine state: the turn counter driving the
// summarization cadence and the last observed emotional context. There is no
// global emotion state; everything is keyed by session.
type Session struct {
	SessionID        string
	Modality         string
	MessageCount     int
	LastEmotion      string
	EmotionIntensity float64
	StartedAt        int64
}

// ConversationSummary is a compressed window of five turns.
type ConversationSummary struct {
	ID           string
	SessionID    string
	MessageRange string // e.g. "1-5"
	Summary      string
	KeyTopics    []string
	CreatedAt    int64
}

// InitSession creates a session if it does not exist and returns it.
func (db *DB) InitSession(sessionID, modality string) (*Session, error) {
	if modality == "" {
		modality = "chat"
	}

	existing, err := db.GetSessionState(sessionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now().UnixMilli()
	_, err = db.Exec(`
		INSERT INTO sessions (session_id, modality, message_count, started_at)
		VALUES (?, ?, 0, ?)
	`, sessionID, modality, now)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return &Session{SessionID: sessionID, Modality: modality, StartedAt: now}, nil
}

// GetSessionState returns a session by id, or nil if not found.
func (db *DB) GetSessionState(sessionID string) (*Session, error) {
	var s Session
	var emotion sql.NullString
	var intensity sql.NullFloat64
	err := db.QueryRow(`
		SELECT session_id, modality, message_count, last_emotion, emotion_intensity, started_at
		FROM sessions WHERE session_id = ?
	`, sessionID).Scan(&s.SessionID, &s.Modality, &s.MessageCount, &emotion, &intensity, &s.StartedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	s.LastEmotion = emotion.String
	s.EmotionIntensity = intensity.Float64
	return &s, nil
}

// IncrementMessageCount advances the session's strictly increasing turn
// counter and returns the new count.
func (db *DB) IncrementMessageCount(sessionID string) (int, error) {
	_, err := db.Exec(`
		UPDATE sessions SET message_count = message_count + 1 WHERE session_id = ?
	`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("increment message count: %w", err)
	}

	var count int
	err = db.QueryRow(`SELECT message_count FROM sessions WHERE session_id = ?`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("read message count: %w", err)
	}
	return count, nil
}

// SetSessionEmotion records the session's last observed emotional context.
func (db *DB) SetSessionEmotion(sessionID, emotion string, intensity float64) error {
	_, err := db.Exec(`
		UPDATE sessions SET last_emotion = NULLIF(?, ''), emotion_intensity = ?
		WHERE session_id = ?
	`, emotion, intensity, sessionID)
	if err != nil {
		return fmt.Errorf("set session emotion: %w", err)
	}
	return nil
}

// AddSummary appends a conversation summary to the session.
func (db *DB) AddSummary(s *ConversationSummary) error {
	if s.ID == "" {
		s.ID = NewID()
	}
	if s.CreatedAt == 0 {
		s.CreatedAt = time.Now().UnixMilli()
	}
	topics, _ := json.Marshal(emptyIfNil(s.KeyTopics))

	_, err := db.Exec(`
		INSERT INTO conversation_summaries (id, session_id, message_range, summary, key_topics, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.ID, s.SessionID, s.MessageRange, s.Summary, string(topics), s.CreatedAt)
	if err != nil {
		return fmt.Errorf("add summary: %w", err)
	}
	return nil
}

// GetSummaries returns a session's summaries in message order.
func (db *DB) GetSummaries(sessionID string) ([]ConversationSummary, error) {
	rows, err := db.Query(`
		SELECT id, session_id, message_range, summary, key_topics, created_at
		FROM conversation_summaries WHERE session_id = ?
		ORDER BY created_at, id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get summaries: %w", err)
	}
	defer rows.Close()

	var summaries []ConversationSummary
	for rows.Next() {
		var s ConversationSummary
		var topics string
		if err := rows.Scan(&s.ID, &s.SessionID, &s.MessageRange, &s.Summary, &topics, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		if err := json.Unmarshal([]byte(topics), &s.KeyTopics); err != nil {
			return nil, fmt.Errorf("decode key_topics: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
