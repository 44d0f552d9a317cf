package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/keepsake-ai/keepsake/internal/oracle"
	"github.com/keepsake-ai/keepsake/internal/store"
)

// maxLinkedMatches caps how many existing memories a new one links to.
const maxLinkedMatches = 3

// extractAndLink asks the oracle whether the turn is worth memorizing and,
// if so, creates the memory linked to related existing ones.
//
// Fallback policy: any oracle failure, timeout, or malformed output means
// the turn is simply not memorized; no error reaches the caller. Only a
// store failure creating the memory itself propagates; back-link updates
// are best-effort.
func (e *Engine) extractAndLink(ctx context.Context, turn Turn, lastEmotion string) (*store.Memory, error) {
	if e.Oracle == nil {
		return nil, nil
	}

	octx, cancel := e.oracleCtx(ctx)
	defer cancel()

	resp, err := e.Oracle.Complete(octx, oracle.ExtractionPrompt(turn.UserText, turn.ResponseText, turn.Modality, lastEmotion))
	if err != nil {
		log.Printf("extract: oracle failed for %s, skipping memorization: %v", turn.SessionID, err)
		return nil, nil
	}

	raw, err := extractJSONObject(resp.Content)
	if err != nil {
		log.Printf("extract: malformed response for %s, skipping memorization: %v", turn.SessionID, err)
		return nil, nil
	}

	var candidate extractionCandidate
	if err := json.Unmarshal([]byte(raw), &candidate); err != nil {
		log.Printf("extract: unmarshal for %s, skipping memorization: %v", turn.SessionID, err)
		return nil, nil
	}
	if !candidate.ShouldMemorize {
		return nil, nil
	}

	candidate, err = validateCandidate(candidate)
	if err != nil {
		log.Printf("extract: rejecting candidate for %s: %v", turn.SessionID, err)
		return nil, nil
	}

	matches, err := e.findRelated(candidate)
	if err != nil {
		// Matching is a read over existing memories; without it the new
		// memory is still worth keeping, just unlinked.
		log.Printf("extract: matching failed for %s, creating unlinked: %v", turn.SessionID, err)
		matches = nil
	}

	mem := &store.Memory{
		Type:             candidate.Type,
		Content:          candidate.Content,
		Context:          fmt.Sprintf("extracted from %s turn", turn.Modality),
		Importance:       candidate.Importance,
		Modality:         turn.Modality,
		Tags:             candidate.Tags,
		UserSentiment:    candidate.UserSentiment,
		Emotion:          turn.Emotion,
		EmotionIntensity: turn.EmotionIntensity,
		SessionID:        turn.SessionID,
	}
	for _, match := range matches {
		mem.LinkedIDs = append(mem.LinkedIDs, match.ID)
		if match.Modality != turn.Modality {
			mem.CrossModalRefs = append(mem.CrossModalRefs, store.CrossModalRef{
				Modality:  match.Modality,
				Reference: refText(match),
				Timestamp: match.CreatedAt,
			})
		}
	}

	if err := e.DB.CreateMemory(mem); err != nil {
		return nil, err
	}

	// Back-link each match. A failed update leaves the graph transiently
	// asymmetric; the forward link above is sufficient for recall.
	for _, match := range matches {
		mu := e.lockFor(match.ID)
		mu.Lock()
		err := e.DB.AppendMemoryLink(match.ID, mem.ID)
		mu.Unlock()
		if err != nil {
			log.Printf("extract: back-link %s -> %s: %v", match.ID, mem.ID, err)
		}
	}

	return mem, nil
}

// findRelated selects existing memories related to the candidate: shared
// tag, or the candidate's first three words appearing in the memory's
// content (case-insensitive). First three matches in store iteration order;
// deliberately no ranking beyond that.
func (e *Engine) findRelated(candidate extractionCandidate) ([]store.Memory, error) {
	existing, err := e.DB.ListMemories()
	if err != nil {
		return nil, err
	}

	candidateTags := make(map[string]bool, len(candidate.Tags))
	for _, t := range candidate.Tags {
		candidateTags[t] = true
	}
	prefix := strings.ToLower(firstWords(candidate.Content, 3))

	var matches []store.Memory
	for _, m := range existing {
		if tagOverlap(candidateTags, m.Tags) ||
			(prefix != "" && strings.Contains(strings.ToLower(m.Content), prefix)) {
			matches = append(matches, m)
			if len(matches) >= maxLinkedMatches {
				break
			}
		}
	}
	return matches, nil
}

func tagOverlap(set map[string]bool, tags []string) bool {
	for _, t := range tags {
		if set[strings.ToLower(t)] {
			return true
		}
	}
	return false
}

// firstWords returns the first n whitespace-separated words of s.
func firstWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}

// refText renders a cross-modal reference annotation for a matched memory.
func refText(m store.Memory) string {
	content := m.Content
	if len(content) > 50 {
		content = content[:50]
	}
	return fmt.Sprintf("%s: %s...", m.Type, content)
}
