package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Source statuses.
const (
	SourceProcessing = "processing"
	SourceReady      = "ready"
	SourceError      = "error"
)

// maxExtractedFacts caps the extracted_facts list per source.
const maxExtractedFacts = 10

// KnowledgeSource represents an ingested external document, subject to
// periodic relevance review. Never deleted, only deactivated.
type KnowledgeSource struct {
	ID             string
	Title          string
	SourceType     string // file, url, text
	Content        string
	Summary        string
	ExtractedFacts []string
	Tags           []string
	Status         string
	Active         bool
	RelevanceScore int // 0-100
	AccessCount    int
	LastAccessed   *int64
	LastReviewed   *int64
	CreatedAt      int64
}

const sourceColumns = `id, title, source_type, content, summary, extracted_facts, tags,
	status, active, relevance_score, access_count, last_accessed, last_reviewed, created_at`

// CreateSource inserts a new knowledge source in processing status.
func (db *DB) CreateSource(s *KnowledgeSource) error {
	if s.ID == "" {
		s.ID = NewID()
	}
	if s.CreatedAt == 0 {
		s.CreatedAt = time.Now().UnixMilli()
	}
	if s.Status == "" {
		s.Status = SourceProcessing
	}
	s.Active = true

	facts, _ := json.Marshal(emptyIfNil(s.ExtractedFacts))
	tags, _ := json.Marshal(emptyIfNil(s.Tags))

	if s.RelevanceScore == 0 {
		s.RelevanceScore = 50
	}

	_, err := db.Exec(`
		INSERT INTO knowledge_sources (`+sourceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, 0, NULL, NULL, ?)
	`, s.ID, s.Title, s.SourceType, s.Content, s.Summary, string(facts), string(tags),
		s.Status, s.RelevanceScore, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("create source: %w", err)
	}
	return nil
}

// GetSource returns a knowledge source by id, or nil if not found.
func (db *DB) GetSource(id string) (*KnowledgeSource, error) {
	row := db.QueryRow(`SELECT `+sourceColumns+` FROM knowledge_sources WHERE id = ?`, id)
	s, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	return s, nil
}

// FinishIngest records the oracle's ingestion output and flips the source to
// ready (or error when ingestion failed).
func (db *DB) FinishIngest(id, summary string, facts, tags []string, score int, status string) error {
	if len(facts) > maxExtractedFacts {
		facts = facts[:maxExtractedFacts]
	}
	factsJSON, _ := json.Marshal(emptyIfNil(facts))
	tagsJSON, _ := json.Marshal(emptyIfNil(tags))

	_, err := db.Exec(`
		UPDATE knowledge_sources SET summary = ?, extracted_facts = ?, tags = ?, relevance_score = ?, status = ?
		WHERE id = ?
	`, summary, string(factsJSON), string(tagsJSON), score, status, id)
	if err != nil {
		return fmt.Errorf("finish ingest: %w", err)
	}
	return nil
}

// ListSourcesByStatus returns all sources with the given status in creation order.
func (db *DB) ListSourcesByStatus(status string) ([]KnowledgeSource, error) {
	rows, err := db.Query(`
		SELECT `+sourceColumns+` FROM knowledge_sources WHERE status = ? ORDER BY created_at, id
	`, status)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()
	return scanSources(rows)
}

// SearchSources returns up to limit active, ready sources whose title, tags,
// summary, or content contain the query substring (case-insensitive).
func (db *DB) SearchSources(query string, limit int) ([]KnowledgeSource, error) {
	like := "%" + query + "%"
	rows, err := db.Query(`
		SELECT `+sourceColumns+` FROM knowledge_sources
		WHERE active = 1 AND status = 'ready'
		  AND (title LIKE ? OR tags LIKE ? OR summary LIKE ? OR content LIKE ?)
		ORDER BY created_at, id
		LIMIT ?
	`, like, like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("search sources: %w", err)
	}
	defer rows.Close()
	return scanSources(rows)
}

// ReviewSource writes back a pruning run's verdict: relevance score,
// last_reviewed, and the active flag.
func (db *DB) ReviewSource(id string, score int, active bool) error {
	now := time.Now().UnixMilli()
	activeInt := 0
	if active {
		activeInt = 1
	}
	_, err := db.Exec(`
		UPDATE knowledge_sources SET relevance_score = ?, last_reviewed = ?, active = ?
		WHERE id = ?
	`, score, now, activeInt, id)
	if err != nil {
		return fmt.Errorf("review source: %w", err)
	}
	return nil
}

// TouchSource records a recall hit on a source.
func (db *DB) TouchSource(id string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE knowledge_sources SET access_count = access_count + 1, last_accessed = ?
		WHERE id = ?
	`, now, id)
	if err != nil {
		return fmt.Errorf("touch source: %w", err)
	}
	return nil
}

func scanSource(row rowScanner) (*KnowledgeSource, error) {
	var s KnowledgeSource
	var summary sql.NullString
	var active int
	var lastAccessed, lastReviewed sql.NullInt64
	var facts, tags string

	err := row.Scan(&s.ID, &s.Title, &s.SourceType, &s.Content, &summary, &facts, &tags,
		&s.Status, &active, &s.RelevanceScore, &s.AccessCount, &lastAccessed, &lastReviewed, &s.CreatedAt)
	if err != nil {
		return nil, err
	}

	s.Summary = summary.String
	s.Active = active != 0
	if lastAccessed.Valid {
		s.LastAccessed = &lastAccessed.Int64
	}
	if lastReviewed.Valid {
		s.LastReviewed = &lastReviewed.Int64
	}
	if err := json.Unmarshal([]byte(facts), &s.ExtractedFacts); err != nil {
		return nil, fmt.Errorf("decode extracted_facts: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &s.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return &s, nil
}

func scanSources(rows *sql.Rows) ([]KnowledgeSource, error) {
	var sources []KnowledgeSource
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, *s)
	}
	return sources, rows.Err()
}
