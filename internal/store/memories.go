package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// CrossModalRef annotates a memory with a reference to a related memory
// from a different modality. The list is append-only.
type CrossModalRef struct {
	Modality  string `json:"modality"`
	Reference string `json:"reference"`
	Timestamp int64  `json:"timestamp"`
}

// Memory represents a single retained observation.
type Memory struct {
	ID               string
	Type             string // interaction, fact, preference, insight, ... (open enum)
	Content          string
	Context          string
	Importance       int // 1-10
	Modality         string
	Tags             []string
	LinkedIDs        []string
	CrossModalRefs   []CrossModalRef
	AccessCount      int
	AccessModalities map[string]int
	Emotion          string
	EmotionIntensity float64
	UserSentiment    string
	SessionID        string
	CreatedAt        int64
	LastAccessed     *int64
}

// NewID returns a fresh ULID for store-assigned record ids.
func NewID() string {
	return ulid.Make().String()
}

const memoryColumns = `id, mem_type, content, context, importance, modality,
	tags, linked_ids, cross_modal_refs, access_modalities,
	access_count, emotion, emotion_intensity, user_sentiment, session_id, created_at, last_accessed`

// CreateMemory inserts a new memory, assigning id and created_at.
func (db *DB) CreateMemory(m *Memory) error {
	if m.ID == "" {
		m.ID = NewID()
	}
	if m.CreatedAt == 0 {
		m.CreatedAt = time.Now().UnixMilli()
	}
	if m.AccessModalities == nil {
		m.AccessModalities = map[string]int{}
	}

	tags, _ := json.Marshal(emptyIfNil(m.Tags))
	linked, _ := json.Marshal(emptyIfNil(m.LinkedIDs))
	refs, _ := json.Marshal(m.CrossModalRefs)
	if m.CrossModalRefs == nil {
		refs = []byte("[]")
	}
	accessMod, _ := json.Marshal(m.AccessModalities)

	_, err := db.Exec(`
		INSERT INTO memories (`+memoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?)
	`, m.ID, m.Type, m.Content, m.Context, m.Importance, m.Modality,
		string(tags), string(linked), string(refs), string(accessMod),
		m.AccessCount, m.Emotion, m.EmotionIntensity, m.UserSentiment, m.SessionID,
		m.CreatedAt, m.LastAccessed)
	if err != nil {
		return fmt.Errorf("create memory: %w", err)
	}
	return nil
}

// GetMemory returns a memory by id, or nil if not found.
func (db *DB) GetMemory(id string) (*Memory, error) {
	row := db.QueryRow(`SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	return m, nil
}

// ListMemories returns all memories in creation order. This is the store
// iteration order the linker's matching rule depends on.
func (db *DB) ListMemories() ([]Memory, error) {
	rows, err := db.Query(`SELECT ` + memoryColumns + ` FROM memories ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// TopMemoriesByImportance returns up to limit memories with importance >= min,
// highest importance first.
func (db *DB) TopMemoriesByImportance(min, limit int) ([]Memory, error) {
	rows, err := db.Query(`
		SELECT `+memoryColumns+` FROM memories
		WHERE importance >= ?
		ORDER BY importance DESC, created_at DESC
		LIMIT ?
	`, min, limit)
	if err != nil {
		return nil, fmt.Errorf("top memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// RecentMemories returns the most recently created memories, newest first.
func (db *DB) RecentMemories(limit int) ([]Memory, error) {
	rows, err := db.Query(`
		SELECT `+memoryColumns+` FROM memories ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// SearchMemories returns up to limit memories whose content or tags contain
// the query substring (case-insensitive), in creation order.
func (db *DB) SearchMemories(query string, limit int) ([]Memory, error) {
	like := "%" + query + "%"
	rows, err := db.Query(`
		SELECT `+memoryColumns+` FROM memories
		WHERE content LIKE ? OR tags LIKE ?
		ORDER BY created_at, id
		LIMIT ?
	`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// AppendMemoryLink adds linkID to the memory's linked set if absent.
// This is one direction of the undirected graph edge; callers serialize
// concurrent appends to the same target id.
func (db *DB) AppendMemoryLink(id, linkID string) error {
	m, err := db.GetMemory(id)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("append link: memory %s not found", id)
	}
	for _, existing := range m.LinkedIDs {
		if existing == linkID {
			return nil
		}
	}
	linked, _ := json.Marshal(append(m.LinkedIDs, linkID))
	_, err = db.Exec(`UPDATE memories SET linked_ids = ? WHERE id = ?`, string(linked), id)
	if err != nil {
		return fmt.Errorf("append link: %w", err)
	}
	return nil
}

// TouchMemory records a recall hit: access_count + 1, last_accessed = now,
// and the per-modality access counter.
func (db *DB) TouchMemory(id, modality string) error {
	m, err := db.GetMemory(id)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("touch memory: %s not found", id)
	}

	if m.AccessModalities == nil {
		m.AccessModalities = map[string]int{}
	}
	if modality != "" {
		m.AccessModalities[modality]++
	}
	accessMod, _ := json.Marshal(m.AccessModalities)

	now := time.Now().UnixMilli()
	_, err = db.Exec(`
		UPDATE memories SET access_count = access_count + 1, last_accessed = ?, access_modalities = ?
		WHERE id = ?
	`, now, string(accessMod), id)
	if err != nil {
		return fmt.Errorf("touch memory: %w", err)
	}
	return nil
}

// CountMemories returns the total number of memories.
func (db *DB) CountMemories() (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM memories").Scan(&count)
	return count, err
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*Memory, error) {
	var m Memory
	var context, emotion, sentiment, sessionID sql.NullString
	var intensity sql.NullFloat64
	var lastAccessed sql.NullInt64
	var tags, linked, refs, accessMod string

	err := row.Scan(&m.ID, &m.Type, &m.Content, &context, &m.Importance, &m.Modality,
		&tags, &linked, &refs, &accessMod,
		&m.AccessCount, &emotion, &intensity, &sentiment, &sessionID,
		&m.CreatedAt, &lastAccessed)
	if err != nil {
		return nil, err
	}

	m.Context = context.String
	m.Emotion = emotion.String
	m.EmotionIntensity = intensity.Float64
	m.UserSentiment = sentiment.String
	m.SessionID = sessionID.String
	if lastAccessed.Valid {
		m.LastAccessed = &lastAccessed.Int64
	}
	if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if err := json.Unmarshal([]byte(linked), &m.LinkedIDs); err != nil {
		return nil, fmt.Errorf("decode linked_ids: %w", err)
	}
	if err := json.Unmarshal([]byte(refs), &m.CrossModalRefs); err != nil {
		return nil, fmt.Errorf("decode cross_modal_refs: %w", err)
	}
	if err := json.Unmarshal([]byte(accessMod), &m.AccessModalities); err != nil {
		return nil, fmt.Errorf("decode access_modalities: %w", err)
	}
	return &m, nil
}

func scanMemories(rows *sql.Rows) ([]Memory, error) {
	var memories []Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		memories = append(memories, *m)
	}
	return memories, rows.Err()
}
