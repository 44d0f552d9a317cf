package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/keepsake-ai/keepsake/internal/oracle"
	"github.com/keepsake-ai/keepsake/internal/store"
)

func TestIngestSource(t *testing.T) {
	db := testDB(t)

	resp := `{
		"summary": "A guide to sourdough baking.",
		"extracted_facts": ["Starter needs daily feeding", "Bulk ferment takes 4-6 hours"],
		"tags": ["Baking", "sourdough", "baking"],
		"relevance_score": 85
	}`
	mock := &oracle.MockClient{Responses: []*oracle.Response{{Content: resp, Provider: "mock"}}}
	eng := New(db, mock, 0)

	src, err := eng.IngestSource(context.Background(), "Sourdough Guide", "url", "long document text")
	if err != nil {
		t.Fatalf("IngestSource: %v", err)
	}
	if src.Status != store.SourceReady {
		t.Errorf("status = %q, want ready", src.Status)
	}
	if src.Summary == "" {
		t.Error("expected summary")
	}
	if len(src.ExtractedFacts) != 2 {
		t.Errorf("facts = %v", src.ExtractedFacts)
	}
	// Tags are sanitized like memory tags.
	if len(src.Tags) != 2 || src.Tags[0] != "baking" {
		t.Errorf("tags = %v", src.Tags)
	}
	if src.RelevanceScore != 85 {
		t.Errorf("score = %d, want 85", src.RelevanceScore)
	}

	stored, _ := db.GetSource(src.ID)
	if stored.Status != store.SourceReady {
		t.Errorf("stored status = %q", stored.Status)
	}
}

func TestIngestSourceOracleFailureKeepsRecord(t *testing.T) {
	db := testDB(t)
	mock := &oracle.MockClient{Err: errors.New("down")}
	eng := New(db, mock, 0)

	src, err := eng.IngestSource(context.Background(), "doc", "text", "content")
	if err != nil {
		t.Fatalf("IngestSource: %v", err)
	}
	if src.Status != store.SourceError {
		t.Errorf("status = %q, want error", src.Status)
	}

	// The record survives in error status, never discarded.
	stored, _ := db.GetSource(src.ID)
	if stored == nil {
		t.Fatal("expected stored record")
	}
	if stored.Status != store.SourceError {
		t.Errorf("stored status = %q", stored.Status)
	}
	if stored.Content != "content" {
		t.Errorf("content = %q", stored.Content)
	}
}

func TestIngestSourceEmptySummaryIsError(t *testing.T) {
	db := testDB(t)
	mock := &oracle.MockClient{Responses: []*oracle.Response{
		{Content: `{"summary": "", "tags": [], "relevance_score": 50}`, Provider: "mock"},
	}}
	eng := New(db, mock, 0)

	src, err := eng.IngestSource(context.Background(), "doc", "text", "content")
	if err != nil {
		t.Fatalf("IngestSource: %v", err)
	}
	if src.Status != store.SourceError {
		t.Errorf("status = %q, want error", src.Status)
	}
}
