// Package search provides hybrid (lexical + semantic) retrieval and result fusion.
package search

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"unicode/utf8"

	"github.com/hyperjump/kensaku/internal/models"
)

// DefaultTopK is used when a request does not ask for a positive number of results.
const DefaultTopK = 10

// closeRelTol is the relative tolerance under which min and max are treated as equal.
const closeRelTol = 1e-9

// NormalizeMinMax rescales hit scores onto [0,1]: the minimum maps to 0 and the maximum to 1.
// When every score is (nearly) equal, including a single hit, all scores become 1.0.
// The returned slice is parallel to hits. Non-finite scores never fail: NaN and -Inf
// normalize to 0, +Inf to 1.
func NormalizeMinMax(hits []*models.Hit) []float64 {
	out := make([]float64, len(hits))
	if len(hits) == 0 {
		return out
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, h := range hits {
		s := hitScore(h)
		if math.IsNaN(s) || math.IsInf(s, 0) {
			continue
		}
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}
	finite := !math.IsInf(lo, 1)
	flat := finite && isClose(lo, hi)

	for i, h := range hits {
		s := hitScore(h)
		switch {
		case math.IsNaN(s) || math.IsInf(s, -1):
			out[i] = 0
		case math.IsInf(s, 1):
			out[i] = 1
		case flat:
			out[i] = 1
		default:
			out[i] = scaleUnit(s, lo, hi)
		}
	}
	return out
}

// scaleUnit maps s from [lo,hi] onto [0,1]. Halving first keeps hi-lo finite when the
// range spans more than MaxFloat64.
func scaleUnit(s, lo, hi float64) float64 {
	if span := hi - lo; !math.IsInf(span, 0) {
		return (s - lo) / span
	}
	return (s/2 - lo/2) / (hi/2 - lo/2)
}

func isClose(a, b float64) bool {
	return math.Abs(a-b) <= closeRelTol*math.Max(math.Abs(a), math.Abs(b))
}

func hitScore(h *models.Hit) float64 {
	if h == nil {
		return math.NaN()
	}
	return h.Score
}

// MergeKey identifies the document a hit refers to: its id when present, otherwise a
// hash of its text. A hit with neither still gets a key.
func MergeKey(h *models.Hit) string {
	if h != nil && h.ID != "" {
		return h.ID
	}
	var text string
	if h != nil {
		text = h.Document
	}
	sum := sha256.Sum256([]byte(text))
	return "doc:" + hex.EncodeToString(sum[:])
}

// merged is a FusedResult under construction.
type merged struct {
	result       *models.FusedResult
	semanticMeta bool
}

// Merge combines normalized lexical and semantic hits by MergeKey. Result ids are the hits'
// own ids, empty for hits keyed by text. The results carry bm25_score and semantic_score
// but no blended score; their order is lexical list order followed by semantic-only hits
// in semantic list order.
//
// A key seen twice on the same side keeps the higher score. Document text is the longest
// contributing text. Metadata comes from the first semantic hit with non-empty metadata,
// falling back to the first non-empty lexical metadata.
func Merge(lexical, semantic []*models.Hit) []*models.FusedResult {
	lexNorm := NormalizeMinMax(lexical)
	semNorm := NormalizeMinMax(semantic)

	byKey := make(map[string]*merged, len(lexical)+len(semantic))
	order := make([]*merged, 0, len(lexical)+len(semantic))

	get := func(h *models.Hit) (*merged, bool) {
		key := MergeKey(h)
		if m, ok := byKey[key]; ok {
			return m, true
		}
		m := &merged{result: &models.FusedResult{}}
		byKey[key] = m
		order = append(order, m)
		return m, false
	}

	for i, h := range lexical {
		m, seen := get(h)
		r := m.result
		if !seen || lexNorm[i] > r.BM25Score {
			r.BM25Score = lexNorm[i]
		}
		if h == nil {
			continue
		}
		r.ID = h.ID
		takeLonger(r, h.Document)
		if len(r.Metadata) == 0 && len(h.Metadata) > 0 {
			r.Metadata = h.Metadata
		}
	}

	for i, h := range semantic {
		m, _ := get(h)
		r := m.result
		if semNorm[i] > r.SemanticScore {
			r.SemanticScore = semNorm[i]
		}
		if h == nil {
			continue
		}
		r.ID = h.ID
		takeLonger(r, h.Document)
		if !m.semanticMeta && len(h.Metadata) > 0 {
			r.Metadata = h.Metadata
			m.semanticMeta = true
		}
	}

	out := make([]*models.FusedResult, len(order))
	for i, m := range order {
		if m.result.Metadata == nil {
			m.result.Metadata = map[string]interface{}{}
		}
		out[i] = m.result
	}
	return out
}

func takeLonger(r *models.FusedResult, doc string) {
	if utf8.RuneCountInString(doc) > utf8.RuneCountInString(r.Document) {
		r.Document = doc
	}
}

// Fuse merges both hit lists, blends the normalized scores as
// alpha*semantic + (1-alpha)*bm25, sorts by score descending and keeps the first topK.
// Equal scores keep merge order. alpha is assumed to be in [0,1].
func Fuse(lexical, semantic []*models.Hit, alpha float64, topK int) []*models.FusedResult {
	results := Merge(lexical, semantic)
	for _, r := range results {
		r.Score = alpha*r.SemanticScore + (1-alpha)*r.BM25Score
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK >= 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}
