package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/keepsake-ai/keepsake/internal/engine"
	"github.com/keepsake-ai/keepsake/internal/oracle"
	"github.com/keepsake-ai/keepsake/internal/store"
)

func testServer(t *testing.T, mock *oracle.MockClient) (*Server, *store.DB) {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	eng := engine.New(db, mock, 0)
	t.Cleanup(eng.Stop)
	return New(db, eng, "test"), db
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t, &oracle.MockClient{})

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %v", resp["status"])
	}
	if resp["db"] != true {
		t.Errorf("db = %v", resp["db"])
	}
}

func TestSessionInit(t *testing.T) {
	srv, _ := testServer(t, &oracle.MockClient{})

	body := `{"session_id":"sess-001","modality":"voice"}`
	req := httptest.NewRequest("POST", "/api/sessions/init", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["session_id"] != "sess-001" {
		t.Errorf("session_id = %v", resp["session_id"])
	}
	if resp["modality"] != "voice" {
		t.Errorf("modality = %v", resp["modality"])
	}
}

func TestSessionInitGeneratesID(t *testing.T) {
	srv, _ := testServer(t, &oracle.MockClient{})

	req := httptest.NewRequest("POST", "/api/sessions/init", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	id, _ := resp["session_id"].(string)
	if id == "" {
		t.Error("expected generated session_id")
	}
}

func TestTurnMemorizes(t *testing.T) {
	mock := &oracle.MockClient{Responses: []*oracle.Response{
		{Content: `{"should_memorize": true, "type": "fact", "content": "User has a cat named Miso", "importance": 6, "tags": ["pets"]}`, Provider: "mock"},
	}}
	srv, db := testServer(t, mock)

	body := `{"user_text":"My cat Miso knocked over a plant","response_text":"Cats will be cats!","modality":"chat"}`
	req := httptest.NewRequest("POST", "/api/sessions/sess-1/turns", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["memorized"] != true {
		t.Errorf("memorized = %v", resp["memorized"])
	}
	if resp["message_count"] != float64(1) {
		t.Errorf("message_count = %v", resp["message_count"])
	}
	memID, _ := resp["memory_id"].(string)
	if memID == "" {
		t.Fatal("expected memory_id")
	}

	m, _ := db.GetMemory(memID)
	if m == nil {
		t.Fatal("memory not persisted")
	}
}

func TestTurnRequiresUserText(t *testing.T) {
	srv, _ := testServer(t, &oracle.MockClient{})

	req := httptest.NewRequest("POST", "/api/sessions/sess-1/turns", strings.NewReader(`{"response_text":"hi"}`))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestRecall(t *testing.T) {
	srv, db := testServer(t, &oracle.MockClient{})

	m := &store.Memory{Type: "fact", Content: "enjoys pottery classes", Importance: 6, Modality: "chat",
		Tags: []string{"pottery"}}
	if err := db.CreateMemory(m); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/recall?q=pottery&modality=chat", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Query    string `json:"query"`
		Memories []struct {
			ID      string `json:"id"`
			Content string `json:"content"`
		} `json:"memories"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Query != "pottery" {
		t.Errorf("query = %q", resp.Query)
	}
	if len(resp.Memories) != 1 {
		t.Fatalf("memories = %d, want 1", len(resp.Memories))
	}
	if resp.Memories[0].ID != m.ID {
		t.Errorf("memory id = %q", resp.Memories[0].ID)
	}

	// The recall counted as an access.
	got, _ := db.GetMemory(m.ID)
	if got.AccessCount != 1 {
		t.Errorf("access_count = %d, want 1", got.AccessCount)
	}
}

func TestRecallRequiresQuery(t *testing.T) {
	srv, _ := testServer(t, &oracle.MockClient{})

	req := httptest.NewRequest("GET", "/api/recall", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestGetMemoryNotFound(t *testing.T) {
	srv, _ := testServer(t, &oracle.MockClient{})

	req := httptest.NewRequest("GET", "/api/memories/nope", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestGetMemory(t *testing.T) {
	srv, db := testServer(t, &oracle.MockClient{})

	m := &store.Memory{Type: "preference", Content: "tea over coffee", Importance: 7, Modality: "chat"}
	if err := db.CreateMemory(m); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/memories/"+m.ID, nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["content"] != "tea over coffee" {
		t.Errorf("content = %v", resp["content"])
	}
	if resp["importance"] != float64(7) {
		t.Errorf("importance = %v", resp["importance"])
	}
}

func TestIngestSource(t *testing.T) {
	mock := &oracle.MockClient{Responses: []*oracle.Response{
		{Content: `{"summary": "Notes on ferns.", "extracted_facts": ["Ferns like shade"], "tags": ["plants"], "relevance_score": 70}`, Provider: "mock"},
	}}
	srv, _ := testServer(t, mock)

	body := `{"title":"Fern Care","source_type":"text","content":"long text about ferns"}`
	req := httptest.NewRequest("POST", "/api/sources", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != "ready" {
		t.Errorf("status = %v", resp["status"])
	}
	if resp["relevance_score"] != float64(70) {
		t.Errorf("relevance_score = %v", resp["relevance_score"])
	}
}

func TestIngestSourceBadType(t *testing.T) {
	srv, _ := testServer(t, &oracle.MockClient{})

	body := `{"title":"t","source_type":"carrier-pigeon","content":"c"}`
	req := httptest.NewRequest("POST", "/api/sources", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestPrune(t *testing.T) {
	mock := &oracle.MockClient{Responses: []*oracle.Response{
		{Content: `{"relevance_score": 10, "should_keep": false, "reasoning": "stale"}`, Provider: "mock"},
	}}
	srv, db := testServer(t, mock)

	s := &store.KnowledgeSource{Title: "old doc", SourceType: "text", Content: "c"}
	if err := db.CreateSource(s); err != nil {
		t.Fatalf("CreateSource: %v", err)
	}
	if err := db.FinishIngest(s.ID, "sum", nil, nil, 50, store.SourceReady); err != nil {
		t.Fatalf("FinishIngest: %v", err)
	}

	req := httptest.NewRequest("POST", "/api/sources/prune", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["reviewed"] != float64(1) || resp["deactivated"] != float64(1) {
		t.Errorf("resp = %v", resp)
	}
}

func TestRecap(t *testing.T) {
	srv, db := testServer(t, &oracle.MockClient{Responses: []*oracle.Response{
		{Content: `{"selected_ids": [], "recap": "I remember our chats."}`, Provider: "mock"},
	}})

	m := &store.Memory{Type: "fact", Content: "c", Importance: 8, Modality: "chat"}
	if err := db.CreateMemory(m); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}

	body := `{"context":"back after a break","modality":"chat"}`
	req := httptest.NewRequest("POST", "/api/sessions/sess-1/recap", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["recap"] != "I remember our chats." {
		t.Errorf("recap = %v", resp["recap"])
	}
	if resp["fallback"] != false {
		t.Errorf("fallback = %v", resp["fallback"])
	}
}

func TestSummaries(t *testing.T) {
	srv, db := testServer(t, &oracle.MockClient{})

	db.InitSession("sess-1", "chat")
	if err := db.AddSummary(&store.ConversationSummary{
		SessionID: "sess-1", MessageRange: "1-5", Summary: "s", KeyTopics: []string{"x"},
	}); err != nil {
		t.Fatalf("AddSummary: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/sessions/sess-1/summaries", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Summaries []struct {
			MessageRange string `json:"message_range"`
		} `json:"summaries"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Summaries) != 1 || resp.Summaries[0].MessageRange != "1-5" {
		t.Errorf("summaries = %+v", resp.Summaries)
	}
}

func TestEngineRequired(t *testing.T) {
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	srv := New(db, nil, "test")

	req := httptest.NewRequest("GET", "/api/recall?q=x", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}
