package extractor

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/stars1210JasonHe/Meinrag/internal/core/domain"
	"github.com/stars1210JasonHe/Meinrag/internal/core/ports"
)

func extractHTML(data []byte) ([]ports.ExtractedSegment, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var b strings.Builder
	collectText(root, &b)

	text := strings.TrimSpace(b.String())
	if text == "" {
		return nil, nil
	}
	return []ports.ExtractedSegment{{Text: text, Page: domain.PageUnknown}}, nil
}

func collectText(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		if trimmed := strings.TrimSpace(n.Data); trimmed != "" {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(trimmed)
		}
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "head":
			return
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, b)
	}
}
