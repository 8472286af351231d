package sandbox

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/xkilldash9x/goalpilot/internal/site"
)

const (
	featuredCards = 3
	resultCards   = 5
)

var (
	tagRe  = regexp.MustCompile(`^[a-zA-Z][\w-]*`)
	partRe = regexp.MustCompile(`([#.])([\w-]+)|\[([\w-]+)(?:[*^$~|]?=['"]([^'"]*)['"])?\]`)
)

// voidTags never carry text content.
var voidTags = map[string]bool{"input": true, "img": true, "br": true}

// element renders the smallest element that selector matches. Only compound selectors
// made of a tag, ids, classes and attribute tests are supported, which is what the site
// table uses.
func element(selector, text string, extra ...string) string {
	tag := tagRe.FindString(selector)
	if tag == "" {
		tag = "div"
	}
	tag = strings.ToLower(tag)

	var id string
	var classes []string
	attrs := map[string]string{}
	var order []string
	for _, m := range partRe.FindAllStringSubmatch(selector[len(tagRe.FindString(selector)):], -1) {
		switch {
		case m[1] == "#":
			id = m[2]
		case m[1] == ".":
			classes = append(classes, m[2])
		case m[3] != "":
			if _, seen := attrs[m[3]]; !seen {
				order = append(order, m[3])
			}
			attrs[m[3]] = m[4]
		}
	}
	for i := 0; i+1 < len(extra); i += 2 {
		if _, seen := attrs[extra[i]]; !seen {
			order = append(order, extra[i])
		}
		attrs[extra[i]] = extra[i+1]
	}

	var b strings.Builder
	b.WriteString("<" + tag)
	if id != "" {
		fmt.Fprintf(&b, ` id="%s"`, html.EscapeString(id))
	}
	if len(classes) > 0 {
		fmt.Fprintf(&b, ` class="%s"`, html.EscapeString(strings.Join(classes, " ")))
	}
	for _, k := range order {
		fmt.Fprintf(&b, ` %s="%s"`, k, html.EscapeString(attrs[k]))
	}
	b.WriteString(">")
	if voidTags[tag] {
		return b.String()
	}
	b.WriteString(html.EscapeString(text))
	b.WriteString("</" + tag + ">")
	return b.String()
}

// searchForm renders s's search box and submit control. The box is typed as a search
// field so generic search detection finds it on every site.
func searchForm(s site.Site, value string) string {
	input := element(withTag(s.SearchSelector, "input"), "", "type", "search", "value", value, "aria-label", "Search")
	submit := element(withTag(s.SubmitSelector, "button"), "Search", "type", "submit")
	return fmt.Sprintf(`<form role="search" action="%s">%s%s</form>`,
		html.EscapeString(s.SearchPath), input, submit)
}

// withTag gives selectors without a type selector a default tag.
func withTag(selector, tag string) string {
	if tagRe.MatchString(selector) {
		return selector
	}
	return tag + selector
}

func nav(s site.Site) string {
	return fmt.Sprintf(`<nav><a href="%s">Home</a><a href="%s/about">About</a><a href="%s/help">Help</a></nav>`,
		html.EscapeString(s.URL), html.EscapeString(s.URL), html.EscapeString(s.URL))
}

func document(title, body string) string {
	return fmt.Sprintf("<!DOCTYPE html><html><head><title>%s</title></head><body>%s</body></html>",
		html.EscapeString(title), body)
}

// HomePage is the landing page of s: search form, navigation and a few featured cards.
func HomePage(s site.Site) string {
	var b strings.Builder
	b.WriteString(nav(s))
	b.WriteString(searchForm(s, ""))
	b.WriteString(`<section class="featured">`)
	for i := 1; i <= featuredCards; i++ {
		text := fmt.Sprintf("Featured on %s #%d: a popular pick with full details, ratings and recent reviews from other visitors.",
			displayName(s), i)
		b.WriteString(element(s.ResultSelector, text))
	}
	b.WriteString(`</section>`)
	return document(displayName(s), b.String())
}

// ResultsPage lists resultCards cards for query on s.
func ResultsPage(s site.Site, query string) string {
	var b strings.Builder
	b.WriteString(nav(s))
	b.WriteString(searchForm(s, query))
	b.WriteString(`<section class="results">`)
	for i := 1; i <= resultCards; i++ {
		text := fmt.Sprintf("%s result %d on %s: a detailed listing for %s with prices, ratings and availability.",
			capitalizeFirst(query), i, displayName(s), query)
		b.WriteString(element(s.ResultSelector, text))
	}
	b.WriteString(`</section>`)
	return document(query+" - "+displayName(s), b.String())
}

// displayName capitalizes known site names and leaves bare hosts alone.
func displayName(s site.Site) string {
	if s.Name == s.Host() {
		return s.Name
	}
	return capitalizeFirst(s.Name)
}

func capitalizeFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
