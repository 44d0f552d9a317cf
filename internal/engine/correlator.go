package engine

import (
	"context"
	"encoding/json"
	"log"

	"github.com/keepsake-ai/keepsake/internal/oracle"
	"github.com/keepsake-ai/keepsake/internal/store"
)

// correlationContextSize is how many existing memories accompany a voice
// turn into correlation analysis.
const correlationContextSize = 5

var validCorrelationTypes = map[string]bool{
	"semantic":    true,
	"temporal":    true,
	"causal":      true,
	"associative": true,
}

type correlationEntry struct {
	CorrelationType     string                `json:"correlation_type"`
	SourceModality      string                `json:"source_modality"`
	TargetModality      string                `json:"target_modality"`
	SourceContent       string                `json:"source_content"`
	TargetContent       string                `json:"target_content"`
	CorrelationStrength int                   `json:"correlation_strength"`
	ReasoningPath       []store.ReasoningStep `json:"reasoning_path"`
	Interpretation      string                `json:"interpretation"`
	Justification       string                `json:"justification"`
}

type correlationAnalysis struct {
	Correlations     []correlationEntry `json:"correlations"`
	OverallCoherence float64            `json:"overall_cognitive_coherence"`
	RelatedMemoryIDs []string           `json:"related_memory_ids"`
}

// analyzeCorrelations asks the oracle for a reasoning graph connecting a
// voice turn to recent memories and persists each entry as a Correlation.
// Returns the number of correlations written.
//
// Fallback policy: every failure here is logged and swallowed: no
// Correlation is written and nothing propagates to the turn.
func (e *Engine) analyzeCorrelations(ctx context.Context, turn Turn) int {
	if e.Oracle == nil {
		return 0
	}

	recent, err := e.DB.RecentMemories(correlationContextSize)
	if err != nil {
		log.Printf("correlate: load memories for %s: %v", turn.SessionID, err)
		return 0
	}
	if len(recent) == 0 {
		return 0
	}

	lines := make([]string, len(recent))
	for i, m := range recent {
		lines[i] = m.ID + " [" + m.Modality + "]: " + m.Content
	}

	octx, cancel := e.oracleCtx(ctx)
	defer cancel()

	resp, err := e.Oracle.Complete(octx, oracle.CorrelationPrompt(turn.UserText, turn.ResponseText, lines))
	if err != nil {
		log.Printf("correlate: oracle failed for %s: %v", turn.SessionID, err)
		return 0
	}

	raw, err := extractJSONObject(resp.Content)
	if err != nil {
		log.Printf("correlate: malformed response for %s: %v", turn.SessionID, err)
		return 0
	}
	var analysis correlationAnalysis
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil {
		log.Printf("correlate: unmarshal for %s: %v", turn.SessionID, err)
		return 0
	}

	written := 0
	for _, entry := range analysis.Correlations {
		corrType := entry.CorrelationType
		if !validCorrelationTypes[corrType] {
			corrType = "associative"
		}
		sourceModality := entry.SourceModality
		if sourceModality == "" {
			sourceModality = turn.Modality
		}

		c := &store.Correlation{
			CorrelationType:  corrType,
			SourceModality:   sourceModality,
			TargetModality:   entry.TargetModality,
			SourceContent:    entry.SourceContent,
			TargetContent:    entry.TargetContent,
			Strength:         clampInt(entry.CorrelationStrength, 1, 10),
			ReasoningPath:    entry.ReasoningPath,
			Interpretation:   entry.Interpretation,
			Justification:    entry.Justification,
			RelatedMemoryIDs: analysis.RelatedMemoryIDs,
		}
		if err := e.DB.CreateCorrelation(c); err != nil {
			log.Printf("correlate: store for %s: %v", turn.SessionID, err)
			continue
		}
		written++
	}

	return written
}
