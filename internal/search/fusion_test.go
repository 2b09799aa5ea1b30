package search

import (
	"math"
	"testing"

	"github.com/hyperjump/kensaku/internal/models"
)

func hits(scores ...float64) []*models.Hit {
	out := make([]*models.Hit, len(scores))
	for i, s := range scores {
		out[i] = &models.Hit{Score: s}
	}
	return out
}

func TestNormalizeMinMax(t *testing.T) {
	tests := []struct {
		name string
		in   []*models.Hit
		want []float64
	}{
		{"empty", nil, []float64{}},
		{"singleton", hits(3.2), []float64{1}},
		{"all equal", hits(5, 5, 5), []float64{1, 1, 1}},
		{"nearly equal", hits(1, 1+1e-12), []float64{1, 1}},
		{"spread", hits(10, 5, 0), []float64{1, 0.5, 0}},
		{"negative", hits(-2, -4, -3), []float64{1, 0, 0.5}},
		{"nil hit", []*models.Hit{{Score: 2}, nil, {Score: 4}}, []float64{0, 0, 1}},
		{"nan and inf", hits(math.NaN(), 1, 3, math.Inf(1), math.Inf(-1)), []float64{0, 0, 1, 1, 0}},
		{"only nan", hits(math.NaN()), []float64{0}},
		{"span overflows", hits(math.MaxFloat64, -math.MaxFloat64, 0), []float64{1, 0, 0.5}},
		{"within relative tolerance", hits(1e6, 1e6+1e-6, 1e6-1e-6), []float64{1, 1, 1}},
		{"tiny but distinct", hits(1e-12, 0), []float64{1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeMinMax(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if math.Abs(got[i]-tt.want[i]) > 1e-12 {
					t.Errorf("[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNormalizeMinMax_bounds(t *testing.T) {
	in := hits(17.3, 0.2, 4, 99.9, 42, 42, -8)
	got := NormalizeMinMax(in)
	var sawZero, sawOne bool
	for i, v := range got {
		if v < 0 || v > 1 {
			t.Errorf("[%d] = %v out of [0,1]", i, v)
		}
		sawZero = sawZero || v == 0
		sawOne = sawOne || v == 1
	}
	if !sawZero || !sawOne {
		t.Errorf("min should map to 0 and max to 1: %v", got)
	}
}

func TestMergeKey(t *testing.T) {
	withID := MergeKey(&models.Hit{ID: "doc-1", Document: "x"})
	if withID != "doc-1" {
		t.Errorf("id should be used as key, got %s", withID)
	}
	a := MergeKey(&models.Hit{Document: "same text"})
	b := MergeKey(&models.Hit{Document: "same text", Score: 9})
	if a != b {
		t.Error("fallback key must depend only on the document text")
	}
	if a == MergeKey(&models.Hit{Document: "other text"}) {
		t.Error("different text should give different keys")
	}
	if MergeKey(nil) != MergeKey(&models.Hit{}) {
		t.Error("nil hit and empty hit should share the empty-text key")
	}
}

func TestMerge(t *testing.T) {
	lexical := []*models.Hit{
		{ID: "a", Document: "short", Metadata: map[string]interface{}{"src": "es"}, Score: 8},
		{ID: "b", Document: "bee", Score: 4},
		{Document: "no id here", Score: 2},
	}
	semantic := []*models.Hit{
		{ID: "a", Document: "a much longer text", Metadata: map[string]interface{}{"src": "qdrant"}, Score: 0.9},
		{ID: "c", Document: "sea", Score: 0.1},
		{Document: "no id here", Score: 0.5},
	}
	got := Merge(lexical, semantic)
	if len(got) != 4 {
		t.Fatalf("expected 4 merged results, got %d", len(got))
	}

	byKey := map[string]*models.FusedResult{}
	for _, r := range got {
		k := r.ID
		if k == "" {
			k = "noid"
		}
		byKey[k] = r
	}

	a := byKey["a"]
	if a.BM25Score != 1 || a.SemanticScore != 1 {
		t.Errorf("a scores: %+v", a)
	}
	if a.Document != "a much longer text" {
		t.Errorf("longer document should win, got %q", a.Document)
	}
	if a.Metadata["src"] != "qdrant" {
		t.Errorf("semantic metadata should win, got %v", a.Metadata)
	}

	b := byKey["b"]
	if b.SemanticScore != 0 || b.Metadata == nil {
		t.Errorf("lexical-only hit should have zero semantic score and non-nil metadata: %+v", b)
	}
	c := byKey["c"]
	if c.BM25Score != 0 || c.SemanticScore != 0 {
		t.Errorf("c is the semantic minimum and lexical-absent: %+v", c)
	}
	noid := byKey["noid"]
	if noid.BM25Score != 0 || noid.SemanticScore != 0.5 {
		t.Errorf("text-keyed hit should merge across backends: %+v", noid)
	}

	wantOrder := []string{"a", "b", "", "c"}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Errorf("order[%d] = %q, want %q", i, got[i].ID, id)
		}
	}
}

func TestMerge_duplicateKeys(t *testing.T) {
	lexical := []*models.Hit{
		{ID: "x", Document: "x", Score: 1},
		{ID: "y", Document: "y", Score: 0},
		{ID: "x", Document: "x longer", Metadata: map[string]interface{}{"n": 1}, Score: 3},
	}
	semantic := []*models.Hit{
		{ID: "y", Metadata: map[string]interface{}{"n": "first"}, Score: 0.2},
		{ID: "y", Metadata: map[string]interface{}{"n": "second"}, Score: 0.8},
	}
	got := Merge(lexical, semantic)
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	x, y := got[0], got[1]
	if x.ID != "x" || x.BM25Score != 1 || x.Document != "x longer" || x.Metadata["n"] != 1 {
		t.Errorf("x: %+v", x)
	}
	if y.SemanticScore != 1 || y.Metadata["n"] != "first" {
		t.Errorf("y: %+v", y)
	}
}

func TestFuse_scoreBounds(t *testing.T) {
	lexical := []*models.Hit{{ID: "a", Score: 12}, {ID: "b", Score: 3}, {ID: "c", Score: 7}}
	semantic := []*models.Hit{{ID: "c", Score: 0.3}, {ID: "d", Score: 0.9}, {ID: "a", Score: 0.1}}
	for _, alpha := range []float64{0, 0.25, 0.5, 0.75, 1} {
		got := Fuse(lexical, semantic, alpha, 10)
		if len(got) != 4 {
			t.Fatalf("alpha %v: expected 4 results, got %d", alpha, len(got))
		}
		for i, r := range got {
			if r.Score < 0 || r.Score > 1 {
				t.Errorf("alpha %v: score %v out of bounds", alpha, r.Score)
			}
			want := alpha*r.SemanticScore + (1-alpha)*r.BM25Score
			if math.Abs(r.Score-want) > 1e-12 {
				t.Errorf("alpha %v: score %v, want %v", alpha, r.Score, want)
			}
			if i > 0 && got[i-1].Score < r.Score {
				t.Errorf("alpha %v: results not sorted descending", alpha)
			}
		}
	}
}

func TestFuse_alphaBoundaries(t *testing.T) {
	lexical := []*models.Hit{{ID: "a", Score: 3}, {ID: "b", Score: 2}, {ID: "c", Score: 1}}
	semantic := []*models.Hit{{ID: "c", Score: 0.9}, {ID: "b", Score: 0.5}, {ID: "a", Score: 0.1}}

	lexOnly := Fuse(lexical, semantic, 0, 10)
	for i, id := range []string{"a", "b", "c"} {
		if lexOnly[i].ID != id {
			t.Errorf("alpha=0 order[%d] = %s, want %s", i, lexOnly[i].ID, id)
		}
	}
	semOnly := Fuse(lexical, semantic, 1, 10)
	for i, id := range []string{"c", "b", "a"} {
		if semOnly[i].ID != id {
			t.Errorf("alpha=1 order[%d] = %s, want %s", i, semOnly[i].ID, id)
		}
	}
}

func TestFuse_truncates(t *testing.T) {
	lexical := []*models.Hit{{ID: "a", Score: 3}, {ID: "b", Score: 2}, {ID: "c", Score: 1}}
	semantic := []*models.Hit{{ID: "d", Score: 0.9}, {ID: "e", Score: 0.5}}
	if got := Fuse(lexical, semantic, 0.5, 2); len(got) != 2 {
		t.Errorf("expected 2 results, got %d", len(got))
	}
	if got := Fuse(lexical, semantic, 0.5, 0); len(got) != 0 {
		t.Errorf("topK 0 should return nothing, got %d", len(got))
	}
}

func TestFuse_tiesKeepInsertionOrder(t *testing.T) {
	lexical := []*models.Hit{{ID: "l1", Score: 1}, {ID: "l2", Score: 1}}
	semantic := []*models.Hit{{ID: "s1", Score: 4}, {ID: "s2", Score: 4}}
	got := Fuse(lexical, semantic, 0.5, 10)
	for i, id := range []string{"l1", "l2", "s1", "s2"} {
		if got[i].ID != id {
			t.Errorf("order[%d] = %s, want %s", i, got[i].ID, id)
		}
	}
}
