package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Cognitive layers, derived from correlation strength.
const (
	LayerSurface      = "surface"
	LayerIntermediate = "intermediate"
	LayerDeep         = "deep"
)

// ReasoningStep is one step of a correlation's justification trail.
type ReasoningStep struct {
	Step       int     `json:"step"`
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"` // 0-1
}

// Correlation is a derived cross-modal relationship between a live turn and
// existing memories. Immutable once written.
type Correlation struct {
	ID               string
	CorrelationType  string // semantic, temporal, causal, associative
	SourceModality   string
	TargetModality   string
	SourceContent    string
	TargetContent    string
	Strength         int // 1-10
	ReasoningPath    []ReasoningStep
	Interpretation   string
	Justification    string
	RelatedMemoryIDs []string
	CognitiveLayer   string
	CreatedAt        int64
}

// CognitiveLayerFor maps correlation strength to a cognitive layer:
// strength >= 8 is deep, 6-7 is intermediate, below 6 is surface.
func CognitiveLayerFor(strength int) string {
	switch {
	case strength >= 8:
		return LayerDeep
	case strength >= 6:
		return LayerIntermediate
	default:
		return LayerSurface
	}
}

const correlationColumns = `id, correlation_type, source_modality, target_modality,
	source_content, target_content, strength, reasoning_path, interpretation,
	justification, related_memory_ids, cognitive_layer, created_at`

// CreateCorrelation inserts a correlation record. The cognitive layer is
// derived from strength, never taken from the caller.
func (db *DB) CreateCorrelation(c *Correlation) error {
	if c.ID == "" {
		c.ID = NewID()
	}
	if c.CreatedAt == 0 {
		c.CreatedAt = time.Now().UnixMilli()
	}
	c.CognitiveLayer = CognitiveLayerFor(c.Strength)

	path, _ := json.Marshal(c.ReasoningPath)
	if c.ReasoningPath == nil {
		path = []byte("[]")
	}
	related, _ := json.Marshal(emptyIfNil(c.RelatedMemoryIDs))

	_, err := db.Exec(`
		INSERT INTO correlations (`+correlationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.CorrelationType, c.SourceModality, c.TargetModality,
		c.SourceContent, c.TargetContent, c.Strength, string(path), c.Interpretation,
		c.Justification, string(related), c.CognitiveLayer, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create correlation: %w", err)
	}
	return nil
}

// ListCorrelations returns the most recent correlations, newest first.
func (db *DB) ListCorrelations(limit int) ([]Correlation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT `+correlationColumns+` FROM correlations ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list correlations: %w", err)
	}
	defer rows.Close()

	var correlations []Correlation
	for rows.Next() {
		var c Correlation
		var interpretation, justification sql.NullString
		var path, related string
		if err := rows.Scan(&c.ID, &c.CorrelationType, &c.SourceModality, &c.TargetModality,
			&c.SourceContent, &c.TargetContent, &c.Strength, &path, &interpretation,
			&justification, &related, &c.CognitiveLayer, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan correlation: %w", err)
		}
		c.Interpretation = interpretation.String
		c.Justification = justification.String
		if err := json.Unmarshal([]byte(path), &c.ReasoningPath); err != nil {
			return nil, fmt.Errorf("decode reasoning_path: %w", err)
		}
		if err := json.Unmarshal([]byte(related), &c.RelatedMemoryIDs); err != nil {
			return nil, fmt.Errorf("decode related_memory_ids: %w", err)
		}
		correlations = append(correlations, c)
	}
	return correlations, rows.Err()
}
