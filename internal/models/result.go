package models

// FusedResult is one row of a hybrid search response.
// BM25Score and SemanticScore are min-max normalized per backend; 0 means the
// document was absent from that backend's results.
type FusedResult struct {
	ID            string                 `json:"id"`
	Document      string                 `json:"document"`
	Metadata      map[string]interface{} `json:"metadata"`
	BM25Score     float64                `json:"bm25_score"`
	SemanticScore float64                `json:"semantic_score"`
	Score         float64                `json:"score"`
}

// SearchResponse is the response for a hybrid search request.
type SearchResponse struct {
	Results []*FusedResult `json:"results"`
}
