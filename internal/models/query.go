package models

import (
	"errors"
	"fmt"
)

// ErrInvalidAlpha is returned when a blend weight falls outside [0,1].
var ErrInvalidAlpha = errors.New("alpha must be between 0 and 1")

// SearchRequest represents a hybrid search request.
// Alpha is the weight of the semantic score; nil means the retriever's default.
type SearchRequest struct {
	Query  string                 `json:"query"`
	TopK   int                    `json:"top_k,omitempty"`
	Alpha  *float64               `json:"alpha,omitempty"`
	Filter map[string]interface{} `json:"filter,omitempty"`
}

// Validate applies defaults and bounds to the request. The query text itself is not
// checked: an empty query is passed through to the backends unchanged.
// defaultTopK applies when TopK <= 0; TopK is capped at maxTopK when maxTopK > 0.
func (r *SearchRequest) Validate(defaultTopK, maxTopK int) error {
	if r.TopK <= 0 {
		r.TopK = defaultTopK
	}
	if maxTopK > 0 && r.TopK > maxTopK {
		r.TopK = maxTopK
	}
	if r.Alpha != nil {
		if err := ValidateAlpha(*r.Alpha); err != nil {
			return err
		}
	}
	return nil
}

// WithFilter returns a copy of the request whose filter also contains key=value.
// The caller's filter map is not modified.
func (r *SearchRequest) WithFilter(key string, value interface{}) *SearchRequest {
	out := *r
	out.Filter = make(map[string]interface{}, len(r.Filter)+1)
	for k, v := range r.Filter {
		out.Filter[k] = v
	}
	out.Filter[key] = value
	return &out
}

// ValidateAlpha returns ErrInvalidAlpha when alpha is outside [0,1] or NaN.
func ValidateAlpha(alpha float64) error {
	if !(alpha >= 0 && alpha <= 1) {
		return fmt.Errorf("%w: got %v", ErrInvalidAlpha, alpha)
	}
	return nil
}
