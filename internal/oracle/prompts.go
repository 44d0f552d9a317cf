package oracle

import (
	"fmt"
	"strings"
)

// ExtractionPrompt asks the oracle whether an interaction turn is worth
// memorizing and, if so, for the memory fields.
func ExtractionPrompt(userText, responseText, modality, lastEmotion string) string {
	emotionNote := ""
	if lastEmotion != "" {
		emotionNote = fmt.Sprintf("\nThe user's last observed emotional state was: %s", lastEmotion)
	}

	return fmt.Sprintf(`You are a memory extraction system for a companion assistant. Decide whether this interaction is worth retaining as a long-term memory.

MODALITY: %s
USER: %s
ASSISTANT: %s%s

Only memorize genuinely useful, persistent knowledge about the user: facts, preferences, insights, topics of interest, emotionally significant moments. Skip small talk and session-specific detail.

Return ONLY a JSON object, no other text:
{
  "should_memorize": true|false,
  "type": "interaction|fact|preference|insight|topic_interest|emotional_moment",
  "content": "what to remember, one or two sentences",
  "importance": 1-10,
  "tags": ["lowercase", "keywords"],
  "user_sentiment": "positive|neutral|negative|mixed"
}

If nothing is worth memorizing, return: {"should_memorize": false}`, modality, userText, responseText, emotionNote)
}

// RecapPrompt asks the oracle to select the memories relevant to the current
// session context and narrate them in the first person.
func RecapPrompt(sessionContext string, memories []string) string {
	return fmt.Sprintf(`You are the memory of a companion assistant. Below are stored memories about the user, one per line, each prefixed with its id.

MEMORIES:
%s

CURRENT SESSION CONTEXT:
%s

Pick the memories genuinely relevant to the current context and write a short first-person recap the assistant can use ("I remember that you...").

Return ONLY a JSON object:
{
  "selected_ids": ["id", ...],
  "recap": "first-person natural language summary"
}`, strings.Join(memories, "\n"), sessionContext)
}

// SummaryPrompt asks the oracle to compress the last five turns of a
// conversation into a structured summary.
func SummaryPrompt(turns []string) string {
	return fmt.Sprintf(`Summarize the following five conversation turns. Capture what was discussed and decided, not the phrasing.

TURNS:
%s

Return ONLY a JSON object:
{
  "summary": "2-4 sentence summary",
  "key_topics": ["topic", ...]
}`, strings.Join(turns, "\n"))
}

// SourceIngestPrompt asks the oracle to summarize a newly ingested document.
func SourceIngestPrompt(title, content string) string {
	return fmt.Sprintf(`You are ingesting an external document into a knowledge base.

TITLE: %s
CONTENT:
%s

Return ONLY a JSON object:
{
  "summary": "2-4 sentence summary",
  "extracted_facts": ["standalone fact", ...],
  "tags": ["lowercase", "keywords"],
  "relevance_score": 0-100
}

Keep extracted_facts to at most 10 entries.`, title, content)
}

// SourceScorePrompt asks the oracle to re-judge the relevance of a stored
// knowledge source.
func SourceScorePrompt(title, summary string, accessCount int) string {
	return fmt.Sprintf(`You are reviewing a stored knowledge source for continued relevance to a personal companion assistant.

TITLE: %s
SUMMARY: %s
TIMES ACCESSED: %d

Judge how relevant this source still is and whether it should be kept available.

Return ONLY a JSON object:
{
  "relevance_score": 0-100,
  "should_keep": true|false,
  "reasoning": "one sentence"
}`, title, summary, accessCount)
}

// CorrelationPrompt asks the oracle to build a small reasoning graph
// connecting a voice turn to existing memories across modalities.
func CorrelationPrompt(transcript, responseText string, memories []string) string {
	return fmt.Sprintf(`You are analyzing a voice interaction for cross-modal connections to existing memories.

TRANSCRIPT: %s
ASSISTANT RESPONSE: %s

EXISTING MEMORIES (id-prefixed, one per line):
%s

Identify correlations between this turn and the memories. For each, explain the connection with a multi-step reasoning path and a confidence per step.

Return ONLY a JSON object:
{
  "correlations": [{
    "correlation_type": "semantic|temporal|causal|associative",
    "source_modality": "voice",
    "target_modality": "chat|voice|visual|system",
    "source_content": "what in this turn",
    "target_content": "what in the memory",
    "correlation_strength": 1-10,
    "reasoning_path": [{"step": 1, "reasoning": "...", "confidence": 0.0-1.0}],
    "interpretation": "what this connection means",
    "justification": "why it holds"
  }],
  "overall_cognitive_coherence": 0.0-1.0,
  "related_memory_ids": ["id", ...]
}

If there are no meaningful correlations, return {"correlations": [], "overall_cognitive_coherence": 0, "related_memory_ids": []}.`, transcript, responseText, strings.Join(memories, "\n"))
}
