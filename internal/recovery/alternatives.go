package recovery

import (
	"regexp"
	"strings"

	"github.com/xkilldash9x/goalpilot/internal/action"
)

// Category is a semantic group of interchangeable selectors.
type Category struct {
	Name      string
	Selectors []string
}

// DefaultCatalog lists the built-in categories in lookup order.
func DefaultCatalog() []Category {
	return []Category{
		{Name: "search", Selectors: []string{
			"input[type='search']",
			"input[type='text']",
			"input[name='q']",
			"input[name='query']",
			"input[id*='search']",
			"input[class*='search']",
			"[role='searchbox']",
			"textarea[name='q']",
			"input[placeholder*='search' i]",
			"input[aria-label*='search' i]",
		}},
		{Name: "submit", Selectors: []string{
			"button[type='submit']",
			"input[type='submit']",
			"button[type='button']",
			"button:has([class*='submit'])",
			"button:has([class*='search'])",
			"button[class*='submit']",
			"button[class*='search']",
			"button[id*='submit']",
			"button[id*='search']",
			"[role='button'][class*='submit']",
			"[role='button'][class*='search']",
		}},
		{Name: "login", Selectors: []string{
			"button[type='submit']",
			"input[type='submit']",
			"button:has([class*='login'])",
			"button:has([class*='signin'])",
			"button[class*='login']",
			"button[class*='signin']",
			"a[class*='login']",
			"a[class*='signin']",
			"button[id*='login']",
			"button[id*='signin']",
		}},
		{Name: "play", Selectors: []string{
			"button[aria-label*='play' i]",
			"button[class*='play']",
			"button[id*='play']",
			"[role='button'][aria-label*='play' i]",
			"button:has([class*='play'])",
			".play-button",
			".ytp-play-button",
		}},
		{Name: "accept", Selectors: []string{
			"button:has([class*='accept'])",
			"button:has([class*='agree'])",
			"button[class*='accept']",
			"button[class*='agree']",
			"button[id*='accept']",
			"button[id*='agree']",
			"button[aria-label*='accept' i]",
			"button[aria-label*='agree' i]",
		}},
	}
}

// clickKeywords route a click on an uncategorized selector to a category by keyword.
var clickKeywords = []struct {
	keywords []string
	category string
}{
	{[]string{"submit"}, "submit"},
	{[]string{"login", "signin"}, "login"},
	{[]string{"play"}, "play"},
	{[]string{"accept", "agree"}, "accept"},
}

var inputTag = regexp.MustCompile(`(^|[\s>+~,])(input|textarea)\b`)

// Catalog looks up alternative selectors for a failing action.
type Catalog struct {
	categories []Category
	byName     map[string][]string
}

// NewCatalog builds a catalog. Nil categories select DefaultCatalog.
func NewCatalog(categories []Category) *Catalog {
	if categories == nil {
		categories = DefaultCatalog()
	}
	c := &Catalog{categories: categories, byName: make(map[string][]string, len(categories))}
	for _, cat := range categories {
		c.byName[cat.Name] = cat.Selectors
	}
	return c
}

// Alternatives returns the ordered alternative selectors for a, or nil when none are known.
// A category named in the selector wins; otherwise typing falls back to search inputs and
// clicking is routed by keyword.
func (c *Catalog) Alternatives(a action.Action) []string {
	sel := strings.ToLower(a.Selector)
	for _, cat := range c.categories {
		if strings.Contains(sel, cat.Name) {
			return append([]string(nil), cat.Selectors...)
		}
	}

	switch a.Kind {
	case action.KindTypeText:
		return append([]string(nil), c.byName["search"]...)
	case action.KindFocusInput:
		if inputTag.MatchString(sel) {
			return append([]string(nil), c.byName["search"]...)
		}
	case action.KindClickElement:
		for _, route := range clickKeywords {
			for _, kw := range route.keywords {
				if strings.Contains(sel, kw) {
					return append([]string(nil), c.byName[route.category]...)
				}
			}
		}
	}
	return nil
}

// HasAlternatives reports whether Alternatives would return anything.
func (c *Catalog) HasAlternatives(a action.Action) bool {
	return len(c.Alternatives(a)) > 0
}
