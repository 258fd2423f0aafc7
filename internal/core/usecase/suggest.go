package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stars1210JasonHe/Meinrag/internal/core/ports"
	"github.com/stars1210JasonHe/Meinrag/internal/taxonomy"
)

const (
	maxSuggestedLabels = 3
	maxLabelLength     = 50
	suggestSampleChars = 1500
)

// Suggester classifies a document into collection labels with the chat model.
// It never fails: any model or parsing problem degrades to the default label.
type Suggester struct {
	generator ports.Generator
	logger    *slog.Logger
}

func NewSuggester(generator ports.Generator, logger *slog.Logger) *Suggester {
	return &Suggester{generator: generator, logger: logger}
}

func (s *Suggester) SuggestCollections(ctx context.Context, filename, text string) []string {
	sample := smartTruncate(text, suggestSampleChars)
	prompt := buildSuggestPrompt(filename, sample)

	response, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		s.logger.Warn("collection_suggest_failed", "filename", filename, "error", err)
		return []string{taxonomy.DefaultCollection}
	}

	if labels := parseSuggestedLabels(response); len(labels) > 0 {
		return labels
	}
	if labels := scanKnownCategories(response); len(labels) > 0 {
		s.logger.Debug("collection_suggest_fallback_scan", "filename", filename)
		return labels
	}

	s.logger.Warn("collection_suggest_unparseable",
		"filename", filename,
		"response_prefix", prefixForLog(response),
	)
	return []string{taxonomy.DefaultCollection}
}

func buildSuggestPrompt(filename, sample string) string {
	var b strings.Builder
	b.WriteString("Classify the document into one to three collection labels.\n")
	b.WriteString("Prefer labels from this list: ")
	b.WriteString(strings.Join(taxonomy.PrimaryCategories(), ", "))
	b.WriteString("\nRespond with ONLY a JSON array of lowercase labels, e.g. [\"technology\"].\n\n")
	fmt.Fprintf(&b, "Filename: %s\n\nDocument excerpt:\n%s\n", filename, sample)
	return b.String()
}

func parseSuggestedLabels(response string) []string {
	raw := stripCodeFences(response)
	start := strings.IndexByte(raw, '[')
	end := strings.LastIndexByte(raw, ']')
	if start < 0 || end <= start {
		return nil
	}

	var labels []string
	if err := json.Unmarshal([]byte(raw[start:end+1]), &labels); err != nil {
		return nil
	}
	return NormalizeCollections(labels)
}

// scanKnownCategories is the last-resort parse: look for any known primary
// category mentioned verbatim in the raw model response.
func scanKnownCategories(response string) []string {
	lowered := strings.ToLower(response)
	var out []string
	for _, category := range taxonomy.PrimaryCategories() {
		if strings.Contains(lowered, category) {
			out = append(out, category)
			if len(out) == maxSuggestedLabels {
				break
			}
		}
	}
	return out
}

// NormalizeCollections cleans caller- or model-provided labels: lowercase,
// spaces to hyphens, surrounding quotes and periods stripped, overlong and
// empty labels dropped, at most maxSuggestedLabels kept.
func NormalizeCollections(labels []string) []string {
	out := make([]string, 0, maxSuggestedLabels)
	seen := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		normalized := normalizeLabel(label)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
		if len(out) == maxSuggestedLabels {
			break
		}
	}
	return out
}

func normalizeLabel(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	label = strings.Trim(label, `"'.`)
	label = strings.ReplaceAll(label, " ", "-")
	if label == "" || len(label) > maxLabelLength {
		return ""
	}
	return label
}
