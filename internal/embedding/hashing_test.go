package embedding

import (
	"context"
	"math"
	"testing"
)

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestHashingEmbedder(t *testing.T) {
	e := NewHashingEmbedder(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, "The cat sat on the mat")
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 64 {
		t.Fatalf("len = %d", len(a))
	}
	if n := math.Sqrt(dot(a, a)); math.Abs(n-1) > 1e-5 {
		t.Errorf("embedding should be unit length, got %v", n)
	}

	again, _ := e.Embed(ctx, "the CAT sat on the mat!")
	if math.Abs(dot(a, again)-1) > 1e-5 {
		t.Error("case and punctuation should not change the embedding")
	}

	related, _ := e.Embed(ctx, "a cat on a mat")
	unrelated, _ := e.Embed(ctx, "quantum chromodynamics lecture notes")
	if dot(a, related) <= dot(a, unrelated) {
		t.Errorf("shared terms should score higher: related=%v unrelated=%v", dot(a, related), dot(a, unrelated))
	}

	empty, _ := e.Embed(ctx, "")
	for _, v := range empty {
		if v != 0 {
			t.Fatal("empty text should embed to the zero vector")
		}
	}
}

func TestHashingEmbedder_batchAndDefaults(t *testing.T) {
	e := NewHashingEmbedder(0)
	if e.Dimensions() != 384 {
		t.Errorf("default dimensions = %d", e.Dimensions())
	}
	out, err := e.EmbedBatch(context.Background(), []string{"one", "two"})
	if err != nil || len(out) != 2 {
		t.Fatalf("EmbedBatch: %v %d", err, len(out))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Embed(ctx, "x"); err == nil {
		t.Error("cancelled context should fail")
	}
}
