// Package taxonomy holds the static two-level collection taxonomy used to
// classify uploaded documents: primary category -> domain labels.
package taxonomy

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// DefaultCollection is assigned when classification resolves nothing.
const DefaultCollection = "other"

//go:embed taxonomy.yaml
var rawTaxonomy []byte

var (
	categories map[string][]string
	primaries  []string
	domains    []string
)

func init() {
	var err error
	categories, err = parse(rawTaxonomy)
	if err != nil {
		panic(fmt.Sprintf("taxonomy: embedded taxonomy.yaml is invalid: %v", err))
	}

	primaries = make([]string, 0, len(categories))
	for name := range categories {
		primaries = append(primaries, name)
	}
	sort.Strings(primaries)

	for _, name := range primaries {
		domains = append(domains, categories[name]...)
	}
}

func parse(raw []byte) (map[string][]string, error) {
	out := make(map[string][]string)
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty taxonomy")
	}
	if _, ok := out[DefaultCollection]; !ok {
		return nil, fmt.Errorf("taxonomy is missing the %q category", DefaultCollection)
	}
	return out, nil
}

// PrimaryCategories returns the top-level category labels, sorted.
func PrimaryCategories() []string {
	out := make([]string, len(primaries))
	copy(out, primaries)
	return out
}

// Domains returns every second-level label across all categories.
func Domains() []string {
	out := make([]string, len(domains))
	copy(out, domains)
	return out
}

// IsKnown reports whether label is a primary category or a domain.
func IsKnown(label string) bool {
	if _, ok := categories[label]; ok {
		return true
	}
	for _, d := range domains {
		if d == label {
			return true
		}
	}
	return false
}
