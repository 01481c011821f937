package parse

import (
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// Uncategorized is assigned when no keyword group matches
const Uncategorized = "Uncategorized"

// Group is a named category and the keywords that select it
type Group struct {
	Name     string
	Keywords []string
}

type compiledGroup struct {
	name    string
	matcher *ahocorasick.Matcher
}

// Taxonomy maps free text to a category. Groups are tested in order and the
// first group with any keyword present as a substring wins.
// A Taxonomy is immutable after construction and safe for concurrent use.
type Taxonomy struct {
	groups   []compiledGroup
	fallback string
}

// DefaultGroups returns the built-in category groups in priority order
func DefaultGroups() []Group {
	return []Group{
		{Name: "Groceries", Keywords: []string{"grocery", "market", "food", "supermarket", "store"}},
		{Name: "Fuel", Keywords: []string{"fuel", "gas", "petrol", "station"}},
		{Name: "Health", Keywords: []string{"pharmacy", "medicine", "drug", "health"}},
		{Name: "Dining", Keywords: []string{"restaurant", "cafe", "dining", "food"}},
		{Name: "Transportation", Keywords: []string{"transport", "taxi", "uber", "bus"}},
		{Name: "Entertainment", Keywords: []string{"entertainment", "movie", "cinema", "game"}},
	}
}

// NewTaxonomy compiles groups into a Taxonomy
func NewTaxonomy(groups []Group) *Taxonomy {
	t := &Taxonomy{fallback: Uncategorized}
	for _, g := range groups {
		keywords := make([]string, 0, len(g.Keywords))
		for _, k := range g.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				keywords = append(keywords, k)
			}
		}
		if len(keywords) == 0 {
			continue
		}
		t.groups = append(t.groups, compiledGroup{
			name:    g.Name,
			matcher: ahocorasick.NewStringMatcher(keywords),
		})
	}
	return t
}

// DefaultTaxonomy returns a Taxonomy built from DefaultGroups
func DefaultTaxonomy() *Taxonomy {
	return NewTaxonomy(DefaultGroups())
}

// Infer returns the category for line
func (t *Taxonomy) Infer(line string) string {
	lower := []byte(strings.ToLower(line))
	for _, g := range t.groups {
		if len(g.matcher.MatchThreadSafe(lower)) > 0 {
			return g.name
		}
	}
	return t.fallback
}
