package taxonomy

import "testing"

func TestPrimaryCategories(t *testing.T) {
	primaries := PrimaryCategories()
	if len(primaries) != 11 {
		t.Fatalf("expected 11 primary categories, got %d: %v", len(primaries), primaries)
	}

	found := false
	for _, p := range primaries {
		if p == DefaultCollection {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("%q must be a primary category", DefaultCollection)
	}

	for i := 1; i < len(primaries); i++ {
		if primaries[i-1] >= primaries[i] {
			t.Fatalf("categories must be sorted: %v", primaries)
		}
	}
}

func TestPrimaryCategoriesIsACopy(t *testing.T) {
	first := PrimaryCategories()
	first[0] = "mutated"

	if PrimaryCategories()[0] == "mutated" {
		t.Fatal("callers must not be able to mutate the taxonomy")
	}
}

func TestIsKnown(t *testing.T) {
	cases := map[string]bool{
		"legal-compliance":     true, // primary
		"contracts-agreements": true, // domain under legal-compliance
		"computer-science-ai":  true,
		"other":                true,
		"unclassified":         true,
		"technology":           false,
		"":                     false,
	}
	for label, want := range cases {
		if got := IsKnown(label); got != want {
			t.Errorf("IsKnown(%q) = %v, want %v", label, got, want)
		}
	}
}

func TestDomainsCoverAllCategories(t *testing.T) {
	domains := Domains()
	if len(domains) == 0 {
		t.Fatal("expected domain labels")
	}
	for _, d := range domains {
		if !IsKnown(d) {
			t.Fatalf("domain %q must be known", d)
		}
	}
}
