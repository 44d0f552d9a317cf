package store

import "testing"

func TestCognitiveLayerFor(t *testing.T) {
	tests := []struct {
		strength int
		want     string
	}{
		{1, LayerSurface},
		{5, LayerSurface},
		{6, LayerIntermediate},
		{7, LayerIntermediate},
		{8, LayerDeep},
		{10, LayerDeep},
	}
	for _, tt := range tests {
		if got := CognitiveLayerFor(tt.strength); got != tt.want {
			t.Errorf("CognitiveLayerFor(%d) = %q, want %q", tt.strength, got, tt.want)
		}
	}
}

func TestCreateCorrelationDerivesLayer(t *testing.T) {
	db := testDB(t)

	c := &Correlation{
		CorrelationType: "semantic",
		SourceModality:  "voice",
		TargetModality:  "chat",
		SourceContent:   "mentioned the garden again",
		TargetContent:   "user grows tomatoes",
		Strength:        9,
		CognitiveLayer:  "surface", // caller value must be ignored
		ReasoningPath: []ReasoningStep{
			{Step: 1, Reasoning: "same subject", Confidence: 0.9},
		},
		RelatedMemoryIDs: []string{"m1"},
	}
	if err := db.CreateCorrelation(c); err != nil {
		t.Fatalf("CreateCorrelation: %v", err)
	}
	if c.CognitiveLayer != LayerDeep {
		t.Errorf("cognitive_layer = %q, want deep", c.CognitiveLayer)
	}

	got, err := db.ListCorrelations(10)
	if err != nil {
		t.Fatalf("ListCorrelations: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 correlation, got %d", len(got))
	}
	if got[0].CognitiveLayer != LayerDeep {
		t.Errorf("stored cognitive_layer = %q, want deep", got[0].CognitiveLayer)
	}
	if len(got[0].ReasoningPath) != 1 || got[0].ReasoningPath[0].Confidence != 0.9 {
		t.Errorf("reasoning_path = %+v", got[0].ReasoningPath)
	}
}

func TestCreateCorrelationRejectsBadType(t *testing.T) {
	db := testDB(t)

	err := db.CreateCorrelation(&Correlation{
		CorrelationType: "telepathic",
		SourceModality:  "voice",
		TargetModality:  "chat",
		Strength:        5,
	})
	if err == nil {
		t.Error("expected CHECK violation for unknown correlation type")
	}
}
