package sandbox

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/goalpilot/internal/action"
)

var errNotFound = errors.New("element not found")

// maxObservedText bounds the page text carried in an observation.
const maxObservedText = 300

// searchInputSelector is what counts as a search field when observing a page.
const searchInputSelector = "input[type='search'], [role='searchbox'], input[name='q'], textarea[name='q']"

// fallbackOrder is the order fallback selectors are tried in after the primary one.
var fallbackOrder = []action.SelectorStrategy{action.StrategyCSS, action.StrategyXPath, action.StrategyText}

// find returns the nodes matched by a's selector, trying its fallbacks in order when the
// primary selector matches nothing. The selector that matched is returned with them.
func (b *Browser) find(a action.Action) ([]*html.Node, string, error) {
	type candidate struct {
		strategy action.SelectorStrategy
		selector string
	}
	candidates := []candidate{{a.Strategy, a.Selector}}
	for _, strategy := range fallbackOrder {
		if sel, ok := a.Fallbacks[strategy]; ok && sel != "" {
			candidates = append(candidates, candidate{strategy, sel})
		}
	}

	var invalid error
	for _, c := range candidates {
		nodes, err := b.query(c.strategy, c.selector)
		if err != nil {
			if invalid == nil {
				invalid = err
			}
			continue
		}
		if len(nodes) > 0 {
			return nodes, c.selector, nil
		}
	}
	if invalid != nil && len(candidates) == 1 {
		return nil, "", invalid
	}
	return nil, "", fmt.Errorf("%w: %s", errNotFound, a.Selector)
}

// resolve returns the first node find matches.
func (b *Browser) resolve(a action.Action) (*html.Node, string, error) {
	nodes, sel, err := b.find(a)
	if err != nil {
		return nil, "", err
	}
	return nodes[0], sel, nil
}

func (b *Browser) query(strategy action.SelectorStrategy, selector string) ([]*html.Node, error) {
	if selector == "" {
		return nil, nil
	}
	switch strategy {
	case action.StrategyCSS, "":
		compiled, err := cascadia.Compile(selector)
		if err != nil {
			return nil, fmt.Errorf("invalid selector %q: %v", selector, err)
		}
		return b.page.doc.FindMatcher(compiled).Nodes, nil
	case action.StrategyXPath:
		nodes, err := htmlquery.QueryAll(b.page.doc.Nodes[0], selector)
		if err != nil {
			return nil, fmt.Errorf("invalid selector %q: %v", selector, err)
		}
		return nodes, nil
	case action.StrategyText:
		needle := strings.ToLower(selector)
		return b.page.doc.Find("body *").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return strings.Contains(strings.ToLower(ownText(s.Nodes[0])), needle)
		}).Nodes, nil
	}
	return nil, fmt.Errorf("invalid selector strategy %q", strategy)
}

// observe describes the current page. Called with b.mu held.
func (b *Browser) observe() *action.Observation {
	if b.page == nil {
		return &action.Observation{URL: "about:blank"}
	}
	doc := b.page.doc
	obs := &action.Observation{
		URL:     b.page.url,
		Title:   strings.TrimSpace(doc.Find("title").First().Text()),
		Buttons: doc.Find("button, input[type='submit'], input[type='button']").Length(),
		Links:   doc.Find("a[href]").Length(),
		Text:    truncate(strings.Join(strings.Fields(doc.Find("body").Text()), " "), maxObservedText),
	}

	seen := map[string]bool{}
	inputs := doc.Find(searchInputSelector)
	if s := b.page.site.SearchSelector; s != "" {
		if compiled, err := cascadia.Compile(s); err == nil {
			inputs = inputs.AddMatcher(compiled)
		}
	}
	inputs.Each(func(_ int, s *goquery.Selection) {
		d := describe(s.Nodes[0])
		if !seen[d] {
			seen[d] = true
			obs.SearchInputs = append(obs.SearchInputs, d)
		}
	})
	return obs
}

// describe renders a short css selector for n.
func describe(n *html.Node) string {
	if id := attr(n, "id"); id != "" {
		return n.Data + "#" + id
	}
	if name := attr(n, "name"); name != "" {
		return fmt.Sprintf("%s[name='%s']", n.Data, name)
	}
	if class := strings.Fields(attr(n, "class")); len(class) > 0 {
		return n.Data + "." + class[0]
	}
	return n.Data
}

func ownText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
