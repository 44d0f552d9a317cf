package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/keepsake-ai/keepsake/internal/oracle"
	"github.com/keepsake-ai/keepsake/internal/store"
)

func seedMemory(t *testing.T, db *store.DB, content, modality string, tags []string, at int64) *store.Memory {
	t.Helper()
	m := &store.Memory{
		Type: "fact", Content: content, Importance: 5,
		Modality: modality, Tags: tags, CreatedAt: at,
	}
	if err := db.CreateMemory(m); err != nil {
		t.Fatalf("seed memory: %v", err)
	}
	return m
}

func TestLinkerCapsAtThreeOldest(t *testing.T) {
	db := testDB(t)

	base := time.Now().UnixMilli()
	var seeded []*store.Memory
	for i := 0; i < 7; i++ {
		m := seedMemory(t, db, fmt.Sprintf("note %d about food", i), "chat",
			[]string{"cuisine"}, base+int64(i))
		seeded = append(seeded, m)
	}

	resp := `{
		"should_memorize": true,
		"type": "preference",
		"content": "Loves Thai curry",
		"importance": 6,
		"tags": ["cuisine", "thai"]
	}`
	mock := &oracle.MockClient{Responses: []*oracle.Response{{Content: resp, Provider: "mock"}}}
	eng := New(db, mock, 0)

	result, err := eng.ProcessTurn(context.Background(), Turn{
		SessionID: "s1", UserText: "I love Thai curry",
	})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if result.Memory == nil {
		t.Fatal("expected memory")
	}
	if len(result.Memory.LinkedIDs) != 3 {
		t.Fatalf("linked = %d, want 3", len(result.Memory.LinkedIDs))
	}
	// First three in creation order, not the newest.
	for i := 0; i < 3; i++ {
		if result.Memory.LinkedIDs[i] != seeded[i].ID {
			t.Errorf("link %d = %s, want %s", i, result.Memory.LinkedIDs[i], seeded[i].ID)
		}
	}
}

func TestLinkerBackLinks(t *testing.T) {
	db := testDB(t)
	existing := seedMemory(t, db, "enjoys rock climbing", "chat", []string{"climbing"}, time.Now().UnixMilli())

	resp := `{
		"should_memorize": true,
		"type": "fact",
		"content": "Bought new climbing shoes",
		"importance": 5,
		"tags": ["climbing"]
	}`
	mock := &oracle.MockClient{Responses: []*oracle.Response{{Content: resp, Provider: "mock"}}}
	eng := New(db, mock, 0)

	result, err := eng.ProcessTurn(context.Background(), Turn{SessionID: "s1", UserText: "new shoes"})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if len(result.Memory.LinkedIDs) != 1 || result.Memory.LinkedIDs[0] != existing.ID {
		t.Fatalf("linked = %v", result.Memory.LinkedIDs)
	}

	// The edge is undirected: the old memory links back.
	old, _ := db.GetMemory(existing.ID)
	if len(old.LinkedIDs) != 1 || old.LinkedIDs[0] != result.Memory.ID {
		t.Errorf("back-link = %v, want [%s]", old.LinkedIDs, result.Memory.ID)
	}
}

func TestLinkerContentPrefixMatch(t *testing.T) {
	db := testDB(t)
	// No shared tags; the match rides on the candidate's first three words
	// appearing in the existing content, case-insensitive.
	existing := seedMemory(t, db, "Yesterday the User Mentioned The Beach trip plans", "chat", nil, time.Now().UnixMilli())

	resp := `{
		"should_memorize": true,
		"type": "fact",
		"content": "the user mentioned wanting to surf",
		"importance": 5,
		"tags": []
	}`
	mock := &oracle.MockClient{Responses: []*oracle.Response{{Content: resp, Provider: "mock"}}}
	eng := New(db, mock, 0)

	result, err := eng.ProcessTurn(context.Background(), Turn{SessionID: "s1", UserText: "surf"})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if len(result.Memory.LinkedIDs) != 1 || result.Memory.LinkedIDs[0] != existing.ID {
		t.Errorf("linked = %v, want [%s]", result.Memory.LinkedIDs, existing.ID)
	}
}

func TestLinkerCrossModalRefs(t *testing.T) {
	db := testDB(t)
	at := time.Now().UnixMilli()
	long := "a visual observation of the user's bookshelf full of science fiction novels and more"
	visual := seedMemory(t, db, long, "visual", []string{"books"}, at)
	sameModal := seedMemory(t, db, "likes reading", "chat", []string{"books"}, at+1)

	resp := `{
		"should_memorize": true,
		"type": "fact",
		"content": "Started a new novel",
		"importance": 5,
		"tags": ["books"]
	}`
	mock := &oracle.MockClient{Responses: []*oracle.Response{{Content: resp, Provider: "mock"}}}
	eng := New(db, mock, 0)

	result, err := eng.ProcessTurn(context.Background(), Turn{
		SessionID: "s1", Modality: "chat", UserText: "reading again",
	})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if len(result.Memory.LinkedIDs) != 2 {
		t.Fatalf("linked = %v", result.Memory.LinkedIDs)
	}
	// Only the cross-modality match gets an annotation.
	if len(result.Memory.CrossModalRefs) != 1 {
		t.Fatalf("cross_modal_refs = %+v", result.Memory.CrossModalRefs)
	}
	ref := result.Memory.CrossModalRefs[0]
	if ref.Modality != "visual" {
		t.Errorf("ref modality = %q", ref.Modality)
	}
	if ref.Timestamp != visual.CreatedAt {
		t.Errorf("ref timestamp = %d, want %d", ref.Timestamp, visual.CreatedAt)
	}
	want := "fact: " + long[:50] + "..."
	if ref.Reference != want {
		t.Errorf("ref = %q, want %q", ref.Reference, want)
	}
	_ = sameModal
}

func TestFirstWords(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"one two three four", 3, "one two three"},
		{"one two", 3, "one two"},
		{"", 3, ""},
		{"  spaced   out  words here ", 3, "spaced out words"},
	}
	for _, tt := range tests {
		if got := firstWords(tt.in, tt.n); got != tt.want {
			t.Errorf("firstWords(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestRefTextShortContent(t *testing.T) {
	m := store.Memory{Type: "fact", Content: "short"}
	got := refText(m)
	if got != "fact: short..." {
		t.Errorf("refText = %q", got)
	}
	if strings.Count(got, "...") != 1 {
		t.Errorf("unexpected ellipses in %q", got)
	}
}
