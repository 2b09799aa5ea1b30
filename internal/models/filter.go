package models

import (
	"fmt"
	"sort"
	"strconv"
)

// FilterValue renders a metadata value the way filters compare it. Integral floats
// (as decoded from JSON) render without a fractional part so 7 and 7.0 match.
func FilterValue(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return FilterValue(float64(x))
	default:
		return fmt.Sprint(v)
	}
}

// MatchFilter reports whether metadata has every filter key with an equal value.
// A nil or empty filter matches everything.
func MatchFilter(metadata, filter map[string]interface{}) bool {
	for k, want := range filter {
		got, ok := metadata[k]
		if !ok || FilterValue(got) != FilterValue(want) {
			return false
		}
	}
	return true
}

// FilterTerms returns "key=value" strings for every scalar metadata entry, sorted.
// Nested maps and slices are skipped.
func FilterTerms(metadata map[string]interface{}) []string {
	terms := make([]string, 0, len(metadata))
	for k, v := range metadata {
		switch v.(type) {
		case map[string]interface{}, []interface{}, nil:
			continue
		}
		terms = append(terms, k+"="+FilterValue(v))
	}
	sort.Strings(terms)
	return terms
}
