// Package extractor converts uploaded files into plain text segments for
// chunking. PDF extraction is page-scoped so chunk metadata can carry page
// numbers; all other formats yield a single unpaged segment.
package extractor

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/stars1210JasonHe/Meinrag/internal/core/domain"
	"github.com/stars1210JasonHe/Meinrag/internal/core/ports"
)

var supportedExtensions = map[string]struct{}{
	".txt":  {},
	".md":   {},
	".pdf":  {},
	".html": {},
	".htm":  {},
	".xlsx": {},
}

// Supported reports whether the filename's extension can be extracted.
func Supported(filename string) bool {
	_, ok := supportedExtensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// SupportedExtensions returns the allow-list, sorted.
func SupportedExtensions() []string {
	out := make([]string, 0, len(supportedExtensions))
	for ext := range supportedExtensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(_ context.Context, filename string, data []byte) ([]ports.ExtractedSegment, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt", ".md":
		return extractPlaintext(filename, data)
	case ".pdf":
		return extractPDF(data)
	case ".html", ".htm":
		return extractHTML(data)
	case ".xlsx":
		return extractXLSX(data)
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract text",
			fmt.Errorf("unsupported file type %q", ext))
	}
}

func extractPlaintext(filename string, data []byte) ([]ports.ExtractedSegment, error) {
	if !utf8.Valid(data) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract text",
			fmt.Errorf("%s is not valid UTF-8", filename))
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, nil
	}
	return []ports.ExtractedSegment{{Text: text, Page: domain.PageUnknown}}, nil
}
