// Package site holds the table of well-known websites shared by the planner, which
// targets their search boxes, and the sandbox browser, which renders stand-ins for them.
package site

import (
	"net/url"
	"strings"
)

// Site describes where a website lives and which selectors reach its search and results.
type Site struct {
	Name           string `yaml:"name" json:"name"`
	URL            string `yaml:"url" json:"url"`
	SearchPath     string `yaml:"search_path" json:"search_path"`
	QueryParam     string `yaml:"query_param" json:"query_param"`
	SearchSelector string `yaml:"search_selector" json:"search_selector"`
	SubmitSelector string `yaml:"submit_selector" json:"submit_selector"`
	ResultSelector string `yaml:"result_selector" json:"result_selector"`
}

// DefaultName is the site used when a command names none.
const DefaultName = "google"

// Defaults returns the built-in sites in lookup order.
func Defaults() []Site {
	return []Site{
		{
			Name:           "youtube",
			URL:            "https://www.youtube.com",
			SearchPath:     "/results",
			QueryParam:     "search_query",
			SearchSelector: "input#search",
			SubmitSelector: "button#search-icon-legacy",
			ResultSelector: "ytd-video-renderer",
		},
		{
			Name:           "linkedin",
			URL:            "https://www.linkedin.com/jobs",
			SearchPath:     "/search",
			QueryParam:     "keywords",
			SearchSelector: "input.jobs-search-box__text-input",
			SubmitSelector: "button.jobs-search-box__submit-button",
			ResultSelector: "li.jobs-search-results__list-item",
		},
		{
			Name:           "amazon",
			URL:            "https://www.amazon.com",
			SearchPath:     "/s",
			QueryParam:     "k",
			SearchSelector: "#twotabsearchtextbox",
			SubmitSelector: "#nav-search-submit-button",
			ResultSelector: "div.s-result-item",
		},
		{
			Name:           "flipkart",
			URL:            "https://www.flipkart.com",
			SearchPath:     "/search",
			QueryParam:     "q",
			SearchSelector: "input[title*='Search for products']",
			SubmitSelector: "button[type='submit']",
			ResultSelector: "div.product-card",
		},
		{
			Name:           "github",
			URL:            "https://github.com",
			SearchPath:     "/search",
			QueryParam:     "q",
			SearchSelector: "input[name='q']",
			SubmitSelector: "button[type='submit']",
			ResultSelector: "div.search-result",
		},
		{
			Name:           "google",
			URL:            "https://www.google.com",
			SearchPath:     "/search",
			QueryParam:     "q",
			SearchSelector: "input[name='q']",
			SubmitSelector: "input[name='btnK']",
			ResultSelector: "div.g",
		},
	}
}

// Generic is the layout assumed for hosts outside the table.
func Generic(host string) Site {
	return Site{
		Name:           host,
		URL:            "https://" + host,
		SearchPath:     "/search",
		QueryParam:     "q",
		SearchSelector: "input[type='search']",
		SubmitSelector: "button[type='submit']",
		ResultSelector: "div.result",
	}
}

// SearchURL is the results page for query.
func (s Site) SearchURL(query string) string {
	return s.URL + s.SearchPath + "?" + url.Values{s.QueryParam: {query}}.Encode()
}

// Host is the host part of the site URL.
func (s Site) Host() string {
	u, err := url.Parse(s.URL)
	if err != nil {
		return ""
	}
	return u.Host
}

// Lookup returns the first site whose name occurs in text.
func Lookup(sites []Site, text string) (Site, bool) {
	lower := strings.ToLower(text)
	for _, s := range sites {
		if strings.Contains(lower, s.Name) {
			return s, true
		}
	}
	return Site{}, false
}

// ByName returns the site called name.
func ByName(sites []Site, name string) (Site, bool) {
	for _, s := range sites {
		if s.Name == name {
			return s, true
		}
	}
	return Site{}, false
}

// ForURL returns the site serving raw. A leading "www." is ignored on both sides.
func ForURL(sites []Site, raw string) (Site, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return Site{}, false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	for _, s := range sites {
		if strings.TrimPrefix(s.Host(), "www.") == host {
			return s, true
		}
	}
	return Site{}, false
}
