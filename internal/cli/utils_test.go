package cli

import (
	"bytes"
	"encoding/json"
	"flag"
	"strings"
	"testing"

	"github.com/hyperjump/kensaku/internal/models"
)

func sampleResponse() *models.SearchResponse {
	return &models.SearchResponse{
		Results: []*models.FusedResult{
			{
				ID:            "doc-1",
				Document:      "Content here",
				Metadata:      map[string]interface{}{"type": "question", "grade": float64(7)},
				BM25Score:     1,
				SemanticScore: 0.5,
				Score:         0.75,
			},
			{
				ID:            "doc-2",
				Document:      strings.Repeat("x", 300),
				BM25Score:     0,
				SemanticScore: 1,
				Score:         0.5,
			},
		},
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	var decoded models.SearchResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(decoded.Results) != 2 || decoded.Results[0].ID != "doc-1" {
		t.Fatalf("decoded results = %+v", decoded.Results)
	}
	if decoded.Results[0].BM25Score != 1 || decoded.Results[0].Score != 0.75 {
		t.Errorf("scores not preserved: %+v", decoded.Results[0])
	}
}

func TestWriteSearchResults_JSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, &models.SearchResponse{}, OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	if !strings.Contains(buf.String(), `"results": []`) {
		t.Errorf("empty response should encode an empty array, got %s", buf.String())
	}
}

func TestWriteSearchResults_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputText); err != nil {
		t.Fatalf("WriteSearchResults(text): %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Found 2 results",
		"Rank: 1 | Score: 0.7500 (BM25: 1.0000, Semantic: 0.5000)",
		"ID: doc-1",
		"Metadata: grade=7 type=question",
		"Content here",
		strings.Repeat("x", 200) + "...",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, strings.Repeat("x", 201)) {
		t.Error("long documents should be truncated")
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    SearchOutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"json", OutputJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseOutputFormat(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFilterFlag(t *testing.T) {
	filters := FilterFlag{}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Var(filters, "filter", "")
	err := fs.Parse([]string{
		"--filter", "type=question",
		"--filter", "grade=7",
		"--filter", "weight=0.5",
		"--filter", "public=true",
		"--filter", "note=a=b",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := map[string]interface{}{
		"type":   "question",
		"grade":  int64(7),
		"weight": 0.5,
		"public": true,
		"note":   "a=b",
	}
	if len(filters) != len(want) {
		t.Fatalf("filters = %v, want %v", filters, want)
	}
	for k, v := range want {
		if filters[k] != v {
			t.Errorf("filters[%q] = %#v, want %#v", k, filters[k], v)
		}
	}
	if !models.MatchFilter(map[string]interface{}{
		"type": "question", "grade": float64(7), "weight": 0.5, "public": true, "note": "a=b",
	}, filters) {
		t.Error("parsed filter should match equivalent JSON metadata")
	}
}

func TestFilterFlag_Invalid(t *testing.T) {
	for _, in := range []string{"novalue", "=x", ""} {
		if err := (FilterFlag{}).Set(in); err == nil {
			t.Errorf("Set(%q) should fail", in)
		}
	}
}

func TestFormatMetadata(t *testing.T) {
	if got := FormatMetadata(nil); got != "" {
		t.Errorf("FormatMetadata(nil) = %q", got)
	}
	got := FormatMetadata(map[string]interface{}{"b": "x", "a": float64(1)})
	if got != "a=1 b=x" {
		t.Errorf("FormatMetadata = %q, want %q", got, "a=1 b=x")
	}
}

func TestWriteStatus(t *testing.T) {
	status := map[string]interface{}{
		"documents": 3,
		"config":    map[string]interface{}{"lexical_provider": "bleve", "default_top_k": 10},
	}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, status, OutputText); err != nil {
		t.Fatalf("WriteStatus(text): %v", err)
	}
	want := "config:\n  default_top_k: 10\n  lexical_provider: bleve\ndocuments: 3\n"
	if buf.String() != want {
		t.Errorf("WriteStatus text = %q, want %q", buf.String(), want)
	}

	buf.Reset()
	if err := WriteStatus(&buf, status, OutputJSON); err != nil {
		t.Fatalf("WriteStatus(json): %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("status JSON: %v", err)
	}
	if decoded["documents"] != float64(3) {
		t.Errorf("documents = %v", decoded["documents"])
	}
}
