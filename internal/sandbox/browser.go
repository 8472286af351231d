// Package sandbox is an in-process stand-in for a real browser.
//
// Pages are generated from the known-site table: every site has a home page with a
// search form and featured cards, and a results page listing cards for a query. Actions
// are resolved against the parsed DOM with goquery (css), htmlquery (xpath) or a text
// match, so planners and the recovery policy see the same failures they would see on a
// live page: missing elements, disabled controls, unloaded pages and timeouts.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/goalpilot/internal/action"
	"github.com/xkilldash9x/goalpilot/internal/site"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// page is one loaded document.
type page struct {
	url   string
	site  site.Site
	query string
	doc   *goquery.Document
}

// Browser executes actions against generated pages. One Browser models one tab; it is
// safe for concurrent use but actions are applied one at a time.
type Browser struct {
	logger      *zap.Logger
	sites       []site.Site
	latency     time.Duration
	sleep       SleepFunc
	disabled    map[string]bool
	unreachable map[string]bool

	mu        sync.Mutex
	page      *page
	typed     map[string]string
	lastInput string
	history   []string
}

// Option configures a Browser.
type Option func(*Browser)

// WithSites replaces the site table pages are generated from.
func WithSites(sites []site.Site) Option {
	return func(b *Browser) {
		if len(sites) > 0 {
			b.sites = sites
		}
	}
}

// WithLatency delays every action by d, bounded by the action timeout and ctx.
func WithLatency(d time.Duration) Option {
	return func(b *Browser) { b.latency = d }
}

// WithSleep replaces the function used for latency and wait actions.
func WithSleep(fn SleepFunc) Option {
	return func(b *Browser) {
		if fn != nil {
			b.sleep = fn
		}
	}
}

// WithDisabled marks elements matched by the given css selectors as disabled on every page.
func WithDisabled(selectors ...string) Option {
	return func(b *Browser) {
		for _, s := range selectors {
			b.disabled[s] = true
		}
	}
}

// WithUnreachableHosts makes navigation to the given hosts fail with a network error.
func WithUnreachableHosts(hosts ...string) Option {
	return func(b *Browser) {
		for _, h := range hosts {
			b.unreachable[strings.TrimPrefix(strings.ToLower(h), "www.")] = true
		}
	}
}

// New creates a browser on a blank page.
func New(logger *zap.Logger, opts ...Option) (*Browser, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	b := &Browser{
		logger:      logger.Named("sandbox"),
		sites:       site.Defaults(),
		sleep:       sleep,
		disabled:    make(map[string]bool),
		unreachable: make(map[string]bool),
		typed:       make(map[string]string),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// URL is the address of the current page, empty before the first navigation.
func (b *Browser) URL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.page == nil {
		return ""
	}
	return b.page.url
}

// History lists every URL loaded, oldest first.
func (b *Browser) History() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.history...)
}

// Execute implements executor.ActionExecutor. Failures are reported in the outcome;
// every outcome carries an observation of the page as it is afterwards.
func (b *Browser) Execute(ctx context.Context, a action.Action) action.Outcome {
	ctx, cancel := context.WithTimeout(ctx, a.Timeout())
	defer cancel()

	if b.latency > 0 {
		if err := b.sleep(ctx, b.latency); err != nil {
			return b.fail(fmt.Sprintf("timeout: %v", err))
		}
	}
	if a.Kind == action.KindWait {
		if err := b.sleep(ctx, time.Duration(a.DurationMs)*time.Millisecond); err != nil {
			return b.fail(fmt.Sprintf("timeout: %v", err))
		}
	}

	b.mu.Lock()
	out := b.apply(a)
	if out.Observation == nil {
		out.Observation = b.observe()
	}
	b.mu.Unlock()

	log := b.logger.With(zap.String("kind", string(a.Kind)), zap.String("selector", a.Selector))
	if out.OK {
		log.Debug("Action succeeded", zap.String("result", out.Result))
	} else {
		log.Debug("Action failed", zap.String("error", out.Error))
	}
	return out
}

func (b *Browser) fail(msg string) action.Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	return action.Failed(msg, b.observe())
}

// apply runs a with b.mu held. Waits have already slept.
func (b *Browser) apply(a action.Action) action.Outcome {
	switch a.Kind {
	case action.KindOpenURL:
		return b.open(a.URL)
	case action.KindWait:
		return action.Succeeded(fmt.Sprintf("Waited %dms", a.DurationMs), nil)
	}

	if b.page == nil {
		return action.Failed("page not loaded", nil)
	}

	switch a.Kind {
	case action.KindWaitForNavigation:
		return action.Succeeded("Navigation settled", nil)
	case action.KindScrollPage:
		return action.Succeeded(fmt.Sprintf("Scrolled %s %dpx", a.Direction, a.Amount), nil)
	case action.KindScreenshot:
		return action.Succeeded("Screenshot captured", nil)
	case action.KindExtractLinks:
		return b.extractLinks()
	case action.KindExtractContent:
		return b.extract(a)
	case action.KindKeyPress:
		return b.keyPress(a)
	case action.KindPlayVideo, action.KindPauseVideo:
		return b.video(a)
	}

	target, sel, err := b.resolve(a)
	if err != nil {
		if a.Kind == action.KindWaitForElement && errors.Is(err, errNotFound) {
			return action.Failed("timeout waiting for "+a.Selector, nil)
		}
		return action.Failed(err.Error(), nil)
	}

	switch a.Kind {
	case action.KindWaitForElement, action.KindScrollUntilFound:
		return action.Succeeded("Element present: "+sel, nil)
	case action.KindHoverElement:
		return action.Succeeded("Hovered "+sel, nil)
	}

	if b.isDisabled(target) {
		return action.Failed("element disabled: "+a.Selector, nil)
	}

	switch a.Kind {
	case action.KindFocusInput:
		b.lastInput = sel
		return action.Succeeded("Focused "+sel, nil)
	case action.KindTypeText:
		if !isTextInput(target) {
			return action.Failed("element not interactable: "+a.Selector, nil)
		}
		b.typed[sel] = a.Text
		b.lastInput = sel
		return action.Succeeded(fmt.Sprintf("Typed %q into %s", a.Text, sel), nil)
	case action.KindClickElement:
		return b.click(target, sel)
	}
	return action.Failed(fmt.Sprintf("unsupported action %q", a.Kind), nil)
}

func (b *Browser) open(raw string) action.Outcome {
	if raw == "" || raw == "about:blank" {
		return action.Failed("page not loaded", nil)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return action.Failed(fmt.Sprintf("page not loaded: invalid url %q", raw), nil)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	if b.unreachable[host] {
		return action.Failed("network error: could not resolve host "+u.Host, nil)
	}

	s, ok := site.ForURL(b.sites, raw)
	if !ok {
		s = site.Generic(strings.ToLower(u.Host))
	}

	query := ""
	if search, err := url.Parse(s.SearchURL("")); err == nil && u.Path == search.Path {
		query = u.Query().Get(s.QueryParam)
	}
	markup := HomePage(s)
	if query != "" {
		markup = ResultsPage(s, query)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return action.Failed("page not loaded: "+err.Error(), nil)
	}
	b.page = &page{url: u.String(), site: s, query: query, doc: doc}
	b.typed = make(map[string]string)
	b.lastInput = ""
	b.history = append(b.history, b.page.url)
	return action.Succeeded("Opened "+b.page.url, nil)
}

// submit runs the search typed into the last focused input.
func (b *Browser) submit() (action.Outcome, bool) {
	query := strings.TrimSpace(b.typed[b.lastInput])
	if b.lastInput == "" || query == "" {
		return action.Outcome{}, false
	}
	out := b.open(b.page.site.SearchURL(query))
	if out.OK {
		out.Result = fmt.Sprintf("Searched for %q", query)
	}
	return out, true
}

func (b *Browser) keyPress(a action.Action) action.Outcome {
	if a.Selector != "" {
		target, sel, err := b.resolve(a)
		if err != nil {
			return action.Failed(err.Error(), nil)
		}
		if b.isDisabled(target) {
			return action.Failed("element disabled: "+a.Selector, nil)
		}
		b.lastInput = sel
	}
	if a.Key == "Enter" {
		if out, ok := b.submit(); ok {
			return out
		}
	}
	return action.Succeeded("Pressed "+a.Key, nil)
}

func (b *Browser) click(target *html.Node, sel string) action.Outcome {
	if isSubmit(target) {
		if out, ok := b.submit(); ok {
			return out
		}
		return action.Succeeded("Clicked "+sel+" with nothing to submit", nil)
	}
	if target.Data == "a" {
		if href := attr(target, "href"); href != "" {
			base, _ := url.Parse(b.page.url)
			ref, err := url.Parse(href)
			if err == nil && base != nil {
				return b.open(base.ResolveReference(ref).String())
			}
		}
	}
	return action.Succeeded("Clicked "+sel, nil)
}

func (b *Browser) extract(a action.Action) action.Outcome {
	if a.Selector == "" {
		a.Selector = b.page.site.ResultSelector
	}
	nodes, _, err := b.find(a)
	if err != nil {
		return action.Failed(err.Error(), nil)
	}
	data := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if text := strings.TrimSpace(goquery.NewDocumentFromNode(n).Text()); text != "" {
			data = append(data, text)
		}
	}
	if len(data) == 0 {
		return action.Failed("element not found: "+a.Selector+" has no text", nil)
	}
	out := action.Succeeded(fmt.Sprintf("Extracted %d items", len(data)), nil)
	out.Data = data
	return out
}

func (b *Browser) extractLinks() action.Outcome {
	var links []string
	b.page.doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		links = append(links, s.AttrOr("href", ""))
	})
	out := action.Succeeded(fmt.Sprintf("Extracted %d links", len(links)), nil)
	out.Data = links
	return out
}

func (b *Browser) video(a action.Action) action.Outcome {
	if b.page.site.Name != "youtube" || b.page.query == "" {
		return action.Failed("element not found: no video on page", nil)
	}
	if a.Kind == action.KindPlayVideo {
		return action.Succeeded("Playing video", nil)
	}
	return action.Succeeded("Paused video", nil)
}

func (b *Browser) isDisabled(n *html.Node) bool {
	if hasAttr(n, "disabled") {
		return true
	}
	for sel := range b.disabled {
		for _, d := range b.page.doc.Find(sel).Nodes {
			if d == n {
				return true
			}
		}
	}
	return false
}

func isTextInput(n *html.Node) bool {
	switch n.Data {
	case "textarea":
		return true
	case "input":
		switch attr(n, "type") {
		case "", "text", "search", "email", "url", "tel", "password", "number":
			return true
		}
	}
	return attr(n, "contenteditable") == "true"
}

func isSubmit(n *html.Node) bool {
	t := attr(n, "type")
	return (n.Data == "button" && (t == "" || t == "submit")) || (n.Data == "input" && t == "submit")
}
