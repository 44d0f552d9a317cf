package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/keepsake-ai/keepsake/internal/engine"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleSessionInit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Modality  string `json:"modality"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	sess, err := s.db.InitSession(req.SessionID, req.Modality)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":    sess.SessionID,
		"modality":      sess.Modality,
		"message_count": sess.MessageCount,
	})
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		UserText         string  `json:"user_text"`
		ResponseText     string  `json:"response_text"`
		Modality         string  `json:"modality"`
		Emotion          string  `json:"emotion"`
		EmotionIntensity float64 `json:"emotion_intensity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.UserText == "" {
		writeError(w, http.StatusBadRequest, "user_text required")
		return
	}

	result, err := s.engine.ProcessTurn(r.Context(), engine.Turn{
		SessionID:        sessionID,
		Modality:         req.Modality,
		UserText:         req.UserText,
		ResponseText:     req.ResponseText,
		Emotion:          req.Emotion,
		EmotionIntensity: req.EmotionIntensity,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]any{
		"message_count": result.MessageCount,
		"memorized":     result.Memory != nil,
		"correlations":  result.Correlations,
	}
	if result.Memory != nil {
		resp["memory_id"] = result.Memory.ID
		resp["linked_memory_ids"] = result.Memory.LinkedIDs
	}
	if result.Summary != nil {
		resp["summary_range"] = result.Summary.MessageRange
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q parameter required")
		return
	}
	modality := r.URL.Query().Get("modality")

	result, err := s.engine.Recall(query, modality)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type memJSON struct {
		ID         string   `json:"id"`
		Type       string   `json:"type"`
		Content    string   `json:"content"`
		Importance int      `json:"importance"`
		Modality   string   `json:"modality"`
		Tags       []string `json:"tags"`
	}
	type sourceJSON struct {
		ID      string `json:"id"`
		Title   string `json:"title"`
		Summary string `json:"summary"`
	}

	memories := make([]memJSON, len(result.Memories))
	for i, m := range result.Memories {
		memories[i] = memJSON{m.ID, m.Type, m.Content, m.Importance, m.Modality, m.Tags}
	}
	sources := make([]sourceJSON, len(result.Sources))
	for i, src := range result.Sources {
		sources[i] = sourceJSON{src.ID, src.Title, src.Summary}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"query":    query,
		"memories": memories,
		"sources":  sources,
	})
}

func (s *Server) handleRecap(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		Context  string `json:"context"`
		Modality string `json:"modality"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	result, err := s.engine.Recap(r.Context(), req.Context, req.Modality)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ids := make([]string, len(result.Memories))
	for i, m := range result.Memories {
		ids[i] = m.ID
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"recap":      result.Recap,
		"memory_ids": ids,
		"fallback":   result.Fallback,
	})
}

func (s *Server) handleSummaries(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	summaries, err := s.db.GetSummaries(sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type summaryJSON struct {
		MessageRange string   `json:"message_range"`
		Summary      string   `json:"summary"`
		KeyTopics    []string `json:"key_topics"`
		CreatedAt    int64    `json:"created_at"`
	}
	out := make([]summaryJSON, len(summaries))
	for i, s := range summaries {
		out[i] = summaryJSON{s.MessageRange, s.Summary, s.KeyTopics, s.CreatedAt}
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "summaries": out})
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	memoryID := chi.URLParam(r, "memoryID")

	m, err := s.db.GetMemory(memoryID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "memory not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":                 m.ID,
		"type":               m.Type,
		"content":            m.Content,
		"context":            m.Context,
		"importance":         m.Importance,
		"modality":           m.Modality,
		"tags":               m.Tags,
		"linked_memory_ids":  m.LinkedIDs,
		"cross_modal_refs":   m.CrossModalRefs,
		"access_count":       m.AccessCount,
		"access_modalities":  m.AccessModalities,
		"user_sentiment":     m.UserSentiment,
		"related_session_id": m.SessionID,
		"created_at":         m.CreatedAt,
		"last_accessed":      m.LastAccessed,
	})
}

func (s *Server) handleCorrelations(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	correlations, err := s.db.ListCorrelations(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type corrJSON struct {
		ID             string `json:"id"`
		Type           string `json:"correlation_type"`
		SourceModality string `json:"source_modality"`
		TargetModality string `json:"target_modality"`
		Strength       int    `json:"strength"`
		CognitiveLayer string `json:"cognitive_layer"`
		Interpretation string `json:"interpretation"`
		CreatedAt      int64  `json:"created_at"`
	}
	out := make([]corrJSON, len(correlations))
	for i, c := range correlations {
		out[i] = corrJSON{c.ID, c.CorrelationType, c.SourceModality, c.TargetModality,
			c.Strength, c.CognitiveLayer, c.Interpretation, c.CreatedAt}
	}
	writeJSON(w, http.StatusOK, map[string]any{"correlations": out})
}

func (s *Server) handleIngestSource(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}

	var req struct {
		Title      string `json:"title"`
		SourceType string `json:"source_type"`
		Content    string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Title == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "title and content required")
		return
	}
	switch req.SourceType {
	case "file", "url", "text":
	case "":
		req.SourceType = "text"
	default:
		writeError(w, http.StatusBadRequest, "source_type must be file, url, or text")
		return
	}

	src, err := s.engine.IngestSource(r.Context(), req.Title, req.SourceType, req.Content)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":              src.ID,
		"status":          src.Status,
		"summary":         src.Summary,
		"extracted_facts": src.ExtractedFacts,
		"tags":            src.Tags,
		"relevance_score": src.RelevanceScore,
	})
}

func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}

	report, err := s.engine.PruneSources(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reviewed":    report.Reviewed,
		"deactivated": report.Deactivated,
		"failed":      report.Failed,
	})
}
