package services

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// ExtractText determines the true file type from bytes (sniffing first,
// declared mime/extension second) and extracts plain text.
// Supported: PDF, DOCX, PPTX, TXT/MD, HTML (strip tags), JSON (canonicalized).
// Unknown binary formats return ErrUnsupportedFormat; callers treat that as
// a skip, never as a batch-fatal error.
func ExtractText(originalName string, mimeType string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	mt := strings.ToLower(strings.TrimSpace(mimeType))

	if len(data) == 0 {
		return "", fmt.Errorf("empty file: name=%s mime=%s", originalName, mimeType)
	}

	// 1) Sniff by magic bytes first (most reliable)
	if isPDF(data) {
		return extractPDF(data)
	}
	if isZip(data) {
		kind, err := detectOpenXMLKind(data)
		if err != nil {
			return "", fmt.Errorf("%w: zip container is not docx/pptx (name=%s)", ErrUnsupportedFormat, originalName)
		}
		switch kind {
		case "docx":
			return extractDOCX(data)
		case "pptx":
			return extractPPTX(data)
		default:
			return "", fmt.Errorf("%w: zip/openxml kind=%s name=%s", ErrUnsupportedFormat, kind, originalName)
		}
	}

	// 2) Structured text: canonicalize JSON rather than collapsing it
	if mt == "application/json" || ext == ".json" || looksLikeJSON(data) {
		if canon, ok := canonicalizeJSON(data); ok {
			return canon, nil
		}
		// Claimed JSON but unparsable; fall through to plain-text handling.
	}

	// 3) Sniff as HTML
	if looksLikeHTML(data) || mt == "text/html" || ext == ".html" || ext == ".htm" {
		return extractHTML(string(data)), nil
	}

	// 4) Plaintext (very common for .md/.txt)
	if isProbablyText(data) || mt == "text/plain" || ext == ".txt" || ext == ".md" || ext == ".markdown" {
		return collapseWhitespace(string(data)), nil
	}

	// 5) Claimed formats that failed their magic check are corrupted, not unsupported
	if mt == "application/pdf" || ext == ".pdf" {
		return "", fmt.Errorf("file claims pdf but missing %%PDF header: name=%s head=%s", originalName, firstBytesHex(data, 16))
	}
	if ext == ".docx" || ext == ".pptx" {
		return "", fmt.Errorf("file claims %s but is not a valid zip container: name=%s", ext, originalName)
	}

	// 6) Unknown binary
	return "", fmt.Errorf("%w: name=%s ext=%s mime=%s head=%s", ErrUnsupportedFormat, originalName, ext, mt, firstBytesHex(data, 16))
}

// ------------------------
// Sniff helpers
// ------------------------

func isPDF(b []byte) bool {
	return len(b) >= 5 && string(b[:5]) == "%PDF-"
}

func isZip(b []byte) bool {
	return len(b) >= 4 && b[0] == 'P' && b[1] == 'K' && b[2] == 3 && b[3] == 4
}

func looksLikeJSON(b []byte) bool {
	s := strings.TrimSpace(string(b[:min(len(b), 64)]))
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}

func looksLikeHTML(b []byte) bool {
	s := strings.ToLower(strings.TrimSpace(string(b[:min(len(b), 2048)])))
	if strings.HasPrefix(s, "<!doctype") || strings.HasPrefix(s, "<html") {
		return true
	}
	// also catch saved error pages
	return strings.Contains(s, "<html") && strings.Contains(s, "</html>")
}

func isProbablyText(b []byte) bool {
	sample := b[:min(len(b), 4096)]
	nul := 0
	good := 0
	for _, c := range sample {
		if c == 0x00 {
			nul++
			continue
		}
		if c == '\n' || c == '\r' || c == '\t' || (c >= 0x20 && c <= 0x7E) || c >= 0x80 {
			good++
		}
	}
	if nul > 0 {
		return false
	}
	return float64(good)/float64(len(sample)) > 0.9
}

func firstBytesHex(b []byte, n int) string {
	n = min(len(b), n)
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		out = append(out, hexdigits[b[i]>>4], hexdigits[b[i]&0x0f])
	}
	return string(out)
}

// ------------------------
// Extractors
// ------------------------

func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf plaintext: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("pdf read: %w", err)
	}
	return collapseWhitespace(string(b)), nil
}

func canonicalizeJSON(data []byte) (string, bool) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return "", false
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", false
	}
	return string(out), true
}

func detectOpenXMLKind(zipBytes []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return "", err
	}
	hasWord := false
	hasPpt := false
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "word/") {
			hasWord = true
		}
		if strings.HasPrefix(f.Name, "ppt/") {
			hasPpt = true
		}
	}
	switch {
	case hasWord && !hasPpt:
		return "docx", nil
	case hasPpt && !hasWord:
		return "pptx", nil
	default:
		return "unknown", fmt.Errorf("zip does not look like docx or pptx")
	}
}

func extractDOCX(zipBytes []byte) (string, error) {
	// DOCX: extract from word/document.xml, gather <w:t>
	return extractOpenXMLText(zipBytes, []string{"word/document.xml"}, []xmlTag{{Local: "t"}})
}

func extractPPTX(zipBytes []byte) (string, error) {
	// PPTX: scan ppt/slides/*.xml, gather <a:t>
	return extractOpenXMLTextByPrefix(zipBytes, "ppt/slides/", ".xml", []xmlTag{{Local: "t"}})
}

type xmlTag struct{ Local string }

func extractOpenXMLText(zipBytes []byte, files []string, tags []xmlTag) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return "", err
	}
	var out strings.Builder
	for _, target := range files {
		f := findZipFile(zr, target)
		if f == nil {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		b, _ := io.ReadAll(rc)
		_ = rc.Close()
		out.WriteString(extractTextFromXML(b, tags))
		out.WriteString("\n")
	}
	s := collapseWhitespace(out.String())
	if s == "" {
		return "", fmt.Errorf("no text extracted from openxml")
	}
	return s, nil
}

func extractOpenXMLTextByPrefix(zipBytes []byte, prefix string, suffix string, tags []xmlTag) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return "", err
	}
	var out strings.Builder
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, prefix) && strings.HasSuffix(f.Name, suffix) {
			rc, err := f.Open()
			if err != nil {
				return "", err
			}
			b, _ := io.ReadAll(rc)
			_ = rc.Close()
			out.WriteString(extractTextFromXML(b, tags))
			out.WriteString("\n")
		}
	}
	s := collapseWhitespace(out.String())
	if s == "" {
		return "", fmt.Errorf("no text extracted from openxml prefix %s", prefix)
	}
	return s, nil
}

func findZipFile(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func extractTextFromXML(xmlBytes []byte, tags []xmlTag) string {
	dec := xml.NewDecoder(bytes.NewReader(xmlBytes))
	var out strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		want := false
		for _, t := range tags {
			if t.Local == se.Name.Local {
				want = true
				break
			}
		}
		if !want {
			continue
		}
		var v string
		_ = dec.DecodeElement(&v, &se)
		if v != "" {
			out.WriteString(v)
			out.WriteString(" ")
		}
	}
	return out.String()
}

var htmlTagPattern = regexp.MustCompile(`(?s)<[^>]*>`)

func extractHTML(s string) string {
	s = htmlTagPattern.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	return collapseWhitespace(s)
}

func collapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
