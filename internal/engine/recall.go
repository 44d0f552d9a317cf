package engine

import (
	"context"
	"encoding/json"
	"log"

	"github.com/keepsake-ai/keepsake/internal/oracle"
	"github.com/keepsake-ai/keepsake/internal/store"
)

// Result caps for keyword recall.
const (
	maxRecallMemories = 5
	maxRecallSources  = 3
)

// Contextual recap bounds.
const (
	recapPoolSize      = 10
	recapMinImportance = 5
	recapFallbackSize  = 3
	recapFallbackFloor = 7
)

// RecallResult holds a keyword recall's hits.
type RecallResult struct {
	Memories []store.Memory
	Sources  []store.KnowledgeSource
}

// Recall returns memories and active ready sources matching the query
// substring. Every returned record gets its access bookkeeping updated;
// those updates are best-effort and never fail the recall.
func (e *Engine) Recall(query, modality string) (*RecallResult, error) {
	memories, err := e.DB.SearchMemories(query, maxRecallMemories)
	if err != nil {
		return nil, err
	}
	sources, err := e.DB.SearchSources(query, maxRecallSources)
	if err != nil {
		return nil, err
	}

	for _, m := range memories {
		if err := e.DB.TouchMemory(m.ID, modality); err != nil {
			log.Printf("recall: touch memory %s: %v", m.ID, err)
		}
	}
	for _, s := range sources {
		if err := e.DB.TouchSource(s.ID); err != nil {
			log.Printf("recall: touch source %s: %v", s.ID, err)
		}
	}

	return &RecallResult{Memories: memories, Sources: sources}, nil
}

// RecapResult is a contextual recap: the selected memories and, when the
// oracle cooperated, a first-person narrative.
type RecapResult struct {
	Recap    string
	Memories []store.Memory
	Fallback bool
}

type recapSelection struct {
	SelectedIDs []string `json:"selected_ids"`
	Recap       string   `json:"recap"`
}

// Recap asks the oracle to pick the stored memories relevant to the current
// session context and narrate them.
//
// Fallback policy: on any oracle failure or malformed output, return the
// three highest-importance memories with importance >= 7, with no narrative.
func (e *Engine) Recap(ctx context.Context, sessionContext, modality string) (*RecapResult, error) {
	pool, err := e.DB.TopMemoriesByImportance(recapMinImportance, recapPoolSize)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return &RecapResult{}, nil
	}

	selected, recap, ok := e.recapSelect(ctx, sessionContext, pool)
	result := &RecapResult{Recap: recap, Memories: selected, Fallback: !ok}
	if !ok {
		result.Memories = recapFallback(pool)
	}

	for _, m := range result.Memories {
		if err := e.DB.TouchMemory(m.ID, modality); err != nil {
			log.Printf("recap: touch memory %s: %v", m.ID, err)
		}
	}
	return result, nil
}

func (e *Engine) recapSelect(ctx context.Context, sessionContext string, pool []store.Memory) ([]store.Memory, string, bool) {
	if e.Oracle == nil {
		return nil, "", false
	}

	lines := make([]string, len(pool))
	byID := make(map[string]store.Memory, len(pool))
	for i, m := range pool {
		lines[i] = m.ID + ": " + m.Content
		byID[m.ID] = m
	}

	octx, cancel := e.oracleCtx(ctx)
	defer cancel()

	resp, err := e.Oracle.Complete(octx, oracle.RecapPrompt(sessionContext, lines))
	if err != nil {
		log.Printf("recap: oracle failed, using importance fallback: %v", err)
		return nil, "", false
	}

	raw, err := extractJSONObject(resp.Content)
	if err != nil {
		log.Printf("recap: malformed response, using importance fallback: %v", err)
		return nil, "", false
	}
	var sel recapSelection
	if err := json.Unmarshal([]byte(raw), &sel); err != nil {
		log.Printf("recap: unmarshal, using importance fallback: %v", err)
		return nil, "", false
	}

	var selected []store.Memory
	for _, id := range sel.SelectedIDs {
		if m, ok := byID[id]; ok {
			selected = append(selected, m)
		}
	}
	return selected, sel.Recap, true
}

// recapFallback picks the top memories with importance >= 7 from a pool
// already ordered by importance descending.
func recapFallback(pool []store.Memory) []store.Memory {
	var out []store.Memory
	for _, m := range pool {
		if m.Importance >= recapFallbackFloor {
			out = append(out, m)
			if len(out) >= recapFallbackSize {
				break
			}
		}
	}
	return out
}
