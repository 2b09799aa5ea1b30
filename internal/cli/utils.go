// Package cli provides output and argument helpers for the kensaku command.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/pkg/utils"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText SearchOutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON SearchOutputFormat = "json"
)

// ParseOutputFormat maps a --output flag value to a format.
func ParseOutputFormat(s string) (SearchOutputFormat, error) {
	switch s {
	case "", string(OutputText):
		return OutputText, nil
	case string(OutputJSON):
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteSearchResults writes search results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format SearchOutputFormat) error {
	if response.Results == nil {
		response.Results = []*models.FusedResult{}
	}
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d results\n\n", len(response.Results))
	for i, result := range response.Results {
		writeOneResult(w, i+1, result)
	}
}

func writeOneResult(w io.Writer, rank int, result *models.FusedResult) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Score: %.4f (BM25: %.4f, Semantic: %.4f)\n",
		rank, result.Score, result.BM25Score, result.SemanticScore)
	if result.ID != "" {
		fmt.Fprintf(w, "ID: %s\n", result.ID)
	}
	if meta := FormatMetadata(result.Metadata); meta != "" {
		fmt.Fprintf(w, "Metadata: %s\n", meta)
	}
	fmt.Fprintf(w, "\n%s\n", utils.Truncate(result.Document, 200))
	fmt.Fprintln(w)
}

// FormatMetadata renders metadata as sorted key=value pairs.
func FormatMetadata(metadata map[string]interface{}) string {
	if len(metadata) == 0 {
		return ""
	}
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+models.FilterValue(metadata[k]))
	}
	return strings.Join(parts, " ")
}

// FilterFlag collects repeated --filter key=value flags. It implements flag.Value.
// Values that parse as integers, floats or booleans are stored typed.
type FilterFlag map[string]interface{}

// String implements flag.Value.
func (f FilterFlag) String() string {
	return FormatMetadata(f)
}

// Set implements flag.Value.
func (f FilterFlag) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	k = strings.TrimSpace(k)
	if !ok || k == "" {
		return fmt.Errorf("filter %q: want key=value", s)
	}
	f[k] = parseScalar(strings.TrimSpace(v))
	return nil
}

func parseScalar(v string) interface{} {
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	if x, err := strconv.ParseFloat(v, 64); err == nil {
		return x
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return v
}

// WriteStatus writes a status map (as returned by the /status endpoint) to w.
func WriteStatus(w io.Writer, status map[string]interface{}, format SearchOutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}
	keys := make([]string, 0, len(status))
	for k := range status {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if nested, ok := status[k].(map[string]interface{}); ok {
			fmt.Fprintf(w, "%s:\n", k)
			sub := make([]string, 0, len(nested))
			for nk := range nested {
				sub = append(sub, nk)
			}
			sort.Strings(sub)
			for _, nk := range sub {
				fmt.Fprintf(w, "  %s: %v\n", nk, nested[nk])
			}
			continue
		}
		fmt.Fprintf(w, "%s: %v\n", k, status[k])
	}
	return nil
}
