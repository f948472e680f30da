package openai

import (
	"testing"
)

// TestModelDimensions_TextEmbedding3Small verifies 1536 dims for 3-small.
func TestModelDimensions_TextEmbedding3Small(t *testing.T) {
	if d := modelDimensions("text-embedding-3-small"); d != 1536 {
		t.Errorf("text-embedding-3-small: expected 1536 dimensions, got %d", d)
	}
}

// TestModelDimensions_TextEmbedding3Large verifies 3072 dims for 3-large.
func TestModelDimensions_TextEmbedding3Large(t *testing.T) {
	if d := modelDimensions("text-embedding-3-large"); d != 3072 {
		t.Errorf("text-embedding-3-large: expected 3072 dimensions, got %d", d)
	}
}

// TestModelDimensions_Unknown verifies that unknown models return a positive default.
func TestModelDimensions_Unknown(t *testing.T) {
	if d := modelDimensions("some-future-model"); d <= 0 {
		t.Errorf("unknown model: expected positive dimensions, got %d", d)
	}
}

// TestDimensions_MethodMatchesHelper verifies Provider.Dimensions() matches modelDimensions().
func TestDimensions_MethodMatchesHelper(t *testing.T) {
	cases := []string{
		"text-embedding-3-small",
		"text-embedding-3-large",
		"text-embedding-ada-002",
	}
	for _, model := range cases {
		p := &Provider{model: model}
		if got := p.Dimensions(); got != modelDimensions(model) {
			t.Errorf("model %s: Dimensions() = %d, want %d", model, got, modelDimensions(model))
		}
	}
}

// TestModelID verifies that ModelID returns the model string as-is.
func TestModelID(t *testing.T) {
	p := &Provider{model: "my-custom-embeddings-model"}
	if got := p.ModelID(); got != "my-custom-embeddings-model" {
		t.Errorf("ModelID() = %q", got)
	}
}

// TestNew_DefaultModel verifies that an empty model string defaults to text-embedding-3-small.
func TestNew_DefaultModel(t *testing.T) {
	p, err := New("sk-test", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ModelID() != string(DefaultModel) {
		t.Errorf("expected default model %s, got %s", DefaultModel, p.ModelID())
	}
}

// TestNew_MissingAPIKey checks that an empty API key is rejected.
func TestNew_MissingAPIKey(t *testing.T) {
	if _, err := New("", "text-embedding-3-small"); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

// TestFloat64ToFloat32 verifies the slice conversion keeps order and length.
func TestFloat64ToFloat32(t *testing.T) {
	out := float64ToFloat32([]float64{0.25, -1, 2})
	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
	if out[0] != 0.25 || out[1] != -1 || out[2] != 2 {
		t.Errorf("out = %v", out)
	}
}
