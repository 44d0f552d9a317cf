package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/keepsake-ai/keepsake/internal/oracle"
	"github.com/keepsake-ai/keepsake/internal/store"
)

// summaryWindow is the summarization cadence: every fifth appended turn
// folds the previous five into a summary.
const summaryWindow = 5

// summaryImportance is the fixed importance of mirrored summary memories.
const summaryImportance = 6

type windowSummary struct {
	Summary   string   `json:"summary"`
	KeyTopics []string `json:"key_topics"`
}

// summarizeWindow compresses the last five turns into a ConversationSummary
// and mirrors it as a conversation_summary memory.
//
// Fallback policy: on any oracle or store failure the session's existing
// summaries are left unchanged and nil is returned. The cadence counter has
// already advanced, so a failed window is never retried.
func (e *Engine) summarizeWindow(ctx context.Context, sessionID string, count int) *store.ConversationSummary {
	if e.Oracle == nil {
		return nil
	}

	turns, err := e.DB.RecentTurns(sessionID, summaryWindow)
	if err != nil {
		log.Printf("summarize: load turns for %s: %v", sessionID, err)
		return nil
	}
	if len(turns) == 0 {
		return nil
	}

	lines := make([]string, 0, len(turns)*2)
	for _, t := range turns {
		lines = append(lines, "USER: "+t.UserText, "ASSISTANT: "+t.ResponseText)
	}

	octx, cancel := e.oracleCtx(ctx)
	defer cancel()

	resp, err := e.Oracle.Complete(octx, oracle.SummaryPrompt(lines))
	if err != nil {
		log.Printf("summarize: oracle failed for %s, keeping previous summaries: %v", sessionID, err)
		return nil
	}

	raw, err := extractJSONObject(resp.Content)
	if err != nil {
		log.Printf("summarize: malformed response for %s: %v", sessionID, err)
		return nil
	}
	var ws windowSummary
	if err := json.Unmarshal([]byte(raw), &ws); err != nil {
		log.Printf("summarize: unmarshal for %s: %v", sessionID, err)
		return nil
	}
	if ws.Summary == "" {
		log.Printf("summarize: empty summary for %s", sessionID)
		return nil
	}

	summary := &store.ConversationSummary{
		SessionID:    sessionID,
		MessageRange: fmt.Sprintf("%d-%d", count-summaryWindow+1, count),
		Summary:      ws.Summary,
		KeyTopics:    sanitizeTags(ws.KeyTopics),
	}
	if err := e.DB.AddSummary(summary); err != nil {
		log.Printf("summarize: store summary for %s: %v", sessionID, err)
		return nil
	}

	// Mirror as a memory so summaries surface in recall like anything else.
	mem := &store.Memory{
		Type:       "conversation_summary",
		Content:    ws.Summary,
		Context:    fmt.Sprintf("summary of messages %s", summary.MessageRange),
		Importance: summaryImportance,
		Modality:   "system",
		Tags:       summary.KeyTopics,
		SessionID:  sessionID,
	}
	if err := e.DB.CreateMemory(mem); err != nil {
		log.Printf("summarize: mirror memory for %s: %v", sessionID, err)
	}

	return summary
}
