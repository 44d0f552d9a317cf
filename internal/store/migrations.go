package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "memories: retained observations across modalities",
		SQL: `
CREATE TABLE memories (
    id                TEXT PRIMARY KEY,
    mem_type          TEXT NOT NULL,
    content           TEXT NOT NULL,
    context           TEXT,
    importance        INTEGER NOT NULL CHECK (importance BETWEEN 1 AND 10),
    modality          TEXT NOT NULL CHECK (modality IN ('chat', 'voice', 'visual', 'system')),

    -- JSON-encoded collections
    tags              TEXT NOT NULL DEFAULT '[]',
    linked_ids        TEXT NOT NULL DEFAULT '[]',
    cross_modal_refs  TEXT NOT NULL DEFAULT '[]',
    access_modalities TEXT NOT NULL DEFAULT '{}',

    access_count      INTEGER NOT NULL DEFAULT 0,
    emotion           TEXT,
    emotion_intensity REAL,
    user_sentiment    TEXT,
    session_id        TEXT,
    created_at        INTEGER NOT NULL,
    last_accessed     INTEGER
);

CREATE INDEX idx_memories_created    ON memories(created_at);
CREATE INDEX idx_memories_importance ON memories(importance DESC);
CREATE INDEX idx_memories_session    ON memories(session_id);
`,
	},
	{
		Version:     2,
		Description: "knowledge_sources: ingested external documents",
		SQL: `
CREATE TABLE knowledge_sources (
    id              TEXT PRIMARY KEY,
    title           TEXT NOT NULL,
    source_type     TEXT NOT NULL CHECK (source_type IN ('file', 'url', 'text')),
    content         TEXT NOT NULL,
    summary         TEXT,
    extracted_facts TEXT NOT NULL DEFAULT '[]',
    tags            TEXT NOT NULL DEFAULT '[]',
    status          TEXT NOT NULL DEFAULT 'processing' CHECK (status IN ('processing', 'ready', 'error')),
    active          INTEGER NOT NULL DEFAULT 1,
    relevance_score INTEGER NOT NULL DEFAULT 50 CHECK (relevance_score BETWEEN 0 AND 100),
    access_count    INTEGER NOT NULL DEFAULT 0,
    last_accessed   INTEGER,
    last_reviewed   INTEGER,
    created_at      INTEGER NOT NULL
);

CREATE INDEX idx_sources_status ON knowledge_sources(status);
CREATE INDEX idx_sources_active ON knowledge_sources(active);
`,
	},
	{
		Version:     3,
		Description: "sessions + conversation_summaries: per-session turn state",
		SQL: `
CREATE TABLE sessions (
    session_id        TEXT PRIMARY KEY,
    modality          TEXT NOT NULL DEFAULT 'chat',
    message_count     INTEGER NOT NULL DEFAULT 0,
    last_emotion      TEXT,
    emotion_intensity REAL,
    started_at        INTEGER NOT NULL
);

CREATE TABLE conversation_summaries (
    id            TEXT PRIMARY KEY,
    session_id    TEXT NOT NULL,
    message_range TEXT NOT NULL,
    summary       TEXT NOT NULL,
    key_topics    TEXT NOT NULL DEFAULT '[]',
    created_at    INTEGER NOT NULL,

    FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);

CREATE INDEX idx_summaries_session ON conversation_summaries(session_id, created_at);

CREATE TABLE turns (
    id            TEXT PRIMARY KEY,
    session_id    TEXT NOT NULL,
    seq           INTEGER NOT NULL,
    modality      TEXT NOT NULL,
    user_text     TEXT NOT NULL,
    response_text TEXT NOT NULL,
    created_at    INTEGER NOT NULL,

    FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);

CREATE UNIQUE INDEX idx_turns_session_seq ON turns(session_id, seq);
`,
	},
	{
		Version:     4,
		Description: "correlations: cross-modal reasoning records",
		SQL: `
CREATE TABLE correlations (
    id                  TEXT PRIMARY KEY,
    correlation_type    TEXT NOT NULL CHECK (correlation_type IN ('semantic', 'temporal', 'causal', 'associative')),
    source_modality     TEXT NOT NULL,
    target_modality     TEXT NOT NULL,
    source_content      TEXT NOT NULL,
    target_content      TEXT NOT NULL,
    strength            INTEGER NOT NULL CHECK (strength BETWEEN 1 AND 10),
    reasoning_path      TEXT NOT NULL DEFAULT '[]',
    interpretation      TEXT,
    justification       TEXT,
    related_memory_ids  TEXT NOT NULL DEFAULT '[]',
    cognitive_layer     TEXT NOT NULL CHECK (cognitive_layer IN ('surface', 'intermediate', 'deep')),
    created_at          INTEGER NOT NULL
);

CREATE INDEX idx_correlations_created ON correlations(created_at DESC);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
