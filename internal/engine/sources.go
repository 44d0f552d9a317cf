package engine

import (
	"context"
	"encoding/json"
	"log"

	"github.com/keepsake-ai/keepsake/internal/oracle"
	"github.com/keepsake-ai/keepsake/internal/store"
)

type ingestResult struct {
	Summary        string   `json:"summary"`
	ExtractedFacts []string `json:"extracted_facts"`
	Tags           []string `json:"tags"`
	RelevanceScore int      `json:"relevance_score"`
}

// IngestSource stores an external document and asks the oracle for a
// summary, extracted facts, tags, and an initial relevance score.
//
// Fallback policy: the record is created first in processing status; if the
// oracle fails the source is kept with status=error and no error reaches
// the caller. Only the initial store create propagates.
func (e *Engine) IngestSource(ctx context.Context, title, sourceType, content string) (*store.KnowledgeSource, error) {
	src := &store.KnowledgeSource{
		Title:      title,
		SourceType: sourceType,
		Content:    content,
	}
	if err := e.DB.CreateSource(src); err != nil {
		return nil, err
	}

	result, ok := e.ingestJudgment(ctx, title, content)
	if !ok {
		if err := e.DB.FinishIngest(src.ID, "", nil, nil, src.RelevanceScore, store.SourceError); err != nil {
			log.Printf("ingest: mark error for %s: %v", src.ID, err)
		}
		src.Status = store.SourceError
		return src, nil
	}

	score := clampInt(result.RelevanceScore, 0, 100)
	if err := e.DB.FinishIngest(src.ID, result.Summary, result.ExtractedFacts,
		sanitizeTags(result.Tags), score, store.SourceReady); err != nil {
		log.Printf("ingest: finish for %s: %v", src.ID, err)
		return src, nil
	}

	src.Summary = result.Summary
	src.ExtractedFacts = result.ExtractedFacts
	src.Tags = sanitizeTags(result.Tags)
	src.RelevanceScore = score
	src.Status = store.SourceReady
	return src, nil
}

func (e *Engine) ingestJudgment(ctx context.Context, title, content string) (*ingestResult, bool) {
	if e.Oracle == nil {
		return nil, false
	}

	octx, cancel := e.oracleCtx(ctx)
	defer cancel()

	resp, err := e.Oracle.Complete(octx, oracle.SourceIngestPrompt(title, content))
	if err != nil {
		log.Printf("ingest: oracle failed for %q: %v", title, err)
		return nil, false
	}

	raw, err := extractJSONObject(resp.Content)
	if err != nil {
		log.Printf("ingest: malformed response for %q: %v", title, err)
		return nil, false
	}
	var result ingestResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		log.Printf("ingest: unmarshal for %q: %v", title, err)
		return nil, false
	}
	if result.Summary == "" {
		log.Printf("ingest: empty summary for %q", title)
		return nil, false
	}
	return &result, true
}
