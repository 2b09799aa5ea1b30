package models

// Hit is one candidate returned by a single search backend.
// Score is on the backend's own scale (unbounded for BM25, similarity for vectors).
type Hit struct {
	ID       string                 `json:"id,omitempty"`
	Document string                 `json:"document"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Score    float64                `json:"score"`
}
