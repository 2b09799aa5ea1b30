// Package extract provides text extraction from various document formats.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Func extracts plain text from the raw bytes of one file format.
type Func func(content []byte) (string, error)

// Extractor maps file extensions to extraction functions. Unknown extensions are
// read as plain text.
type Extractor struct {
	funcs map[string]Func
}

// NewExtractor returns an Extractor with every built-in format registered.
func NewExtractor() *Extractor {
	e := &Extractor{funcs: make(map[string]Func)}
	for _, ext := range []string{".txt", ".md", ".rst"} {
		e.Register(ext, extractPlain)
	}
	e.Register(".pdf", extractPDF)
	e.Register(".docx", extractDOCX)
	e.Register(".pptx", extractPPTX)
	e.Register(".xlsx", extractExcel)
	for _, ext := range []string{".odt", ".odp", ".ods"} {
		e.Register(ext, extractOpenDocument)
	}
	e.Register(".rtf", extractRTF)
	return e
}

// Register sets the extraction function for ext, replacing any earlier one.
// ext is matched case-insensitively and may omit the leading dot.
func (e *Extractor) Register(ext string, fn Func) {
	e.funcs[normalizeExt(ext)] = fn
}

// Extensions returns the registered extensions, sorted.
func (e *Extractor) Extensions() []string {
	out := make([]string, 0, len(e.funcs))
	for ext := range e.funcs {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, filepath.Ext(path))
}

// ExtractBytes extracts text from content based on the given extension (e.g. ".pdf").
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	if fn, ok := e.funcs[normalizeExt(ext)]; ok {
		return fn(content)
	}
	return extractPlain(content)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
