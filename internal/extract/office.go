package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"
)

const (
	docxDocumentXMLPath  = "word/document.xml"
	contentTypesPath     = "[Content_Types].xml"
	docxMainContentType  = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
	pptxSlidePathPrefix  = "ppt/slides/slide"
	openDocumentBodyPath = "content.xml"
)

var (
	// <w:t>text</w:t> or <w:t xml:space="preserve">text</w:t>
	wtTag = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)
	atTag = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)

	// PartName of the main document override, in either attribute order.
	partNameRe  = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"`)
	partNameRe2 = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"[^>]+PartName="([^"]+)"`)

	xmlTag = regexp.MustCompile(`<[^>]*>`)
	spaces = regexp.MustCompile(`\s+`)
)

func openZip(content []byte, format string) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract %s: not a zip: %w", format, err)
	}
	return zr, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func findZipFile(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// joinMatches joins the first capture group of every match with single spaces.
func joinMatches(re *regexp.Regexp, xml string) string {
	var b strings.Builder
	for _, m := range re.FindAllStringSubmatch(xml, -1) {
		part := strings.TrimSpace(html.UnescapeString(m[1]))
		if part == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(part)
	}
	return b.String()
}

// docxMainDocumentPath reads the main document part from [Content_Types].xml,
// falling back to word/document.xml.
func docxMainDocumentPath(zr *zip.Reader) string {
	f := findZipFile(zr, contentTypesPath)
	if f == nil {
		return docxDocumentXMLPath
	}
	data, err := readZipFile(f)
	if err != nil {
		return docxDocumentXMLPath
	}
	s := string(data)
	if m := partNameRe.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimPrefix(m[1], "/")
	}
	if m := partNameRe2.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimPrefix(m[1], "/")
	}
	return docxDocumentXMLPath
}

// extractDOCX returns the <w:t> text runs of the main document part. Paragraph and
// run attributes are ignored, so documents with rsid attributes still yield text.
func extractDOCX(content []byte) (string, error) {
	zr, err := openZip(content, "DOCX")
	if err != nil {
		return "", err
	}
	docPath := docxMainDocumentPath(zr)
	f := findZipFile(zr, docPath)
	if f == nil {
		return "", fmt.Errorf("extract DOCX: %s not found", docPath)
	}
	data, err := readZipFile(f)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: read %s: %w", docPath, err)
	}
	return joinMatches(wtTag, string(data)), nil
}

// extractPPTX returns the <a:t> text runs of every slide, in slide order.
func extractPPTX(content []byte) (string, error) {
	zr, err := openZip(content, "PPTX")
	if err != nil {
		return "", err
	}
	var slides []*zip.File
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, pptxSlidePathPrefix) && strings.HasSuffix(f.Name, ".xml") {
			slides = append(slides, f)
		}
	}
	sort.Slice(slides, func(i, j int) bool {
		return slideNumber(slides[i].Name) < slideNumber(slides[j].Name)
	})
	parts := make([]string, 0, len(slides))
	for _, f := range slides {
		data, err := readZipFile(f)
		if err != nil {
			return "", fmt.Errorf("extract PPTX: read %s: %w", f.Name, err)
		}
		if text := joinMatches(atTag, string(data)); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

// slideNumber parses N from ppt/slides/slideN.xml; unparsable names sort last.
func slideNumber(name string) int {
	s := strings.TrimSuffix(strings.TrimPrefix(name, pptxSlidePathPrefix), ".xml")
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return int(^uint(0) >> 1)
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// extractOpenDocument returns the text of content.xml for ODT, ODP and ODS files:
// tags are dropped, entities decoded and whitespace collapsed, in document order.
func extractOpenDocument(content []byte) (string, error) {
	zr, err := openZip(content, "OpenDocument")
	if err != nil {
		return "", err
	}
	f := findZipFile(zr, openDocumentBodyPath)
	if f == nil {
		return "", fmt.Errorf("extract OpenDocument: %s not found", openDocumentBodyPath)
	}
	data, err := readZipFile(f)
	if err != nil {
		return "", fmt.Errorf("extract OpenDocument: read %s: %w", openDocumentBodyPath, err)
	}
	s := string(data)
	if i := strings.Index(s, "<office:body"); i >= 0 {
		s = s[i:]
	}
	s = xmlTag.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.TrimSpace(spaces.ReplaceAllString(s, " ")), nil
}
