package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/keepsake-ai/keepsake/internal/oracle"
	"github.com/keepsake-ai/keepsake/internal/store"
)

// deactivationThreshold: a source is deactivated only when the oracle says
// should_keep=false AND its score fell below this. A low score alone does
// not deactivate.
const deactivationThreshold = 30

// SourceScore is the relevance scorer's verdict for one knowledge source.
type SourceScore struct {
	RelevanceScore int    `json:"relevance_score"`
	ShouldKeep     bool   `json:"should_keep"`
	Reasoning      string `json:"reasoning"`
}

// ScoreSource asks the oracle to re-judge a knowledge source's relevance.
func (e *Engine) ScoreSource(ctx context.Context, src *store.KnowledgeSource) (*SourceScore, error) {
	if e.Oracle == nil {
		return nil, fmt.Errorf("no oracle configured")
	}

	octx, cancel := e.oracleCtx(ctx)
	defer cancel()

	resp, err := e.Oracle.Complete(octx, oracle.SourceScorePrompt(src.Title, src.Summary, src.AccessCount))
	if err != nil {
		return nil, err
	}

	raw, err := extractJSONObject(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("malformed score response: %w", err)
	}
	var score SourceScore
	if err := json.Unmarshal([]byte(raw), &score); err != nil {
		return nil, fmt.Errorf("unmarshal score: %w", err)
	}
	score.RelevanceScore = clampInt(score.RelevanceScore, 0, 100)
	return &score, nil
}

// PruneReport summarizes one pruning run.
type PruneReport struct {
	Reviewed    int
	Deactivated int
	Failed      int
}

// PruneSources re-scores every ready knowledge source and deactivates those
// the oracle no longer wants kept whose score dropped below the threshold.
//
// Fallback policy: per-item oracle failures are logged and the batch
// continues; one bad source never aborts the run. Every successfully scored
// source gets relevance_score and last_reviewed written back.
func (e *Engine) PruneSources(ctx context.Context) (*PruneReport, error) {
	sources, err := e.DB.ListSourcesByStatus(store.SourceReady)
	if err != nil {
		return nil, err
	}

	report := &PruneReport{}
	for i := range sources {
		src := &sources[i]

		score, err := e.ScoreSource(ctx, src)
		if err != nil {
			log.Printf("prune: score %s (%s): %v", src.ID, src.Title, err)
			report.Failed++
			continue
		}

		active := src.Active
		if !score.ShouldKeep && score.RelevanceScore < deactivationThreshold {
			active = false
		}

		if err := e.DB.ReviewSource(src.ID, score.RelevanceScore, active); err != nil {
			log.Printf("prune: review %s: %v", src.ID, err)
			report.Failed++
			continue
		}

		report.Reviewed++
		if src.Active && !active {
			report.Deactivated++
			log.Printf("prune: deactivated %s (%s): score %d, %s",
				src.ID, src.Title, score.RelevanceScore, score.Reasoning)
		}
	}

	return report, nil
}
