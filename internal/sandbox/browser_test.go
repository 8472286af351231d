package sandbox

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/goalpilot/internal/action"
	"github.com/xkilldash9x/goalpilot/internal/site"
)

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newBrowser(t *testing.T, opts ...Option) *Browser {
	t.Helper()
	b, err := New(zaptest.NewLogger(t), append([]Option{WithSleep(noSleep)}, opts...)...)
	require.NoError(t, err)
	return b
}

func mustOK(t *testing.T, out action.Outcome) action.Outcome {
	t.Helper()
	require.True(t, out.OK, "unexpected failure: %s", out.Error)
	return out
}

func TestFixtures_MatchSiteSelectors(t *testing.T) {
	for _, s := range append(site.Defaults(), site.Generic("example.org")) {
		t.Run(s.Name, func(t *testing.T) {
			home, err := goquery.NewDocumentFromReader(strings.NewReader(HomePage(s)))
			require.NoError(t, err)
			assert.Equal(t, 1, home.Find(s.SearchSelector).Length(), "search box")
			assert.Equal(t, 1, home.Find(s.SubmitSelector).Length(), "submit control")
			assert.Equal(t, featuredCards, home.Find(s.ResultSelector).Length(), "featured cards")

			results, err := goquery.NewDocumentFromReader(strings.NewReader(ResultsPage(s, "usb hubs")))
			require.NoError(t, err)
			assert.Equal(t, resultCards, results.Find(s.ResultSelector).Length())
			assert.Equal(t, "usb hubs", results.Find(s.SearchSelector).AttrOr("value", ""))
		})
	}
}

func TestElement(t *testing.T) {
	assert.Equal(t, `<input id="search" type="search">`, element("input#search", "", "type", "search"))
	assert.Equal(t, `<div class="s-result-item">x &amp; y</div>`, element("div.s-result-item", "x & y"))
	assert.Equal(t, `<input title="Search for products">`, element("input[title*='Search for products']", ""))
	assert.Equal(t, `<div id="a" class="b c">t</div>`, element("#a.b.c", "t"))
}

func TestBrowser_RequiresLoadedPage(t *testing.T) {
	b := newBrowser(t)

	out := b.Execute(context.Background(), action.Click("#x"))
	assert.False(t, out.OK)
	assert.Equal(t, "page not loaded", out.Error)
	require.NotNil(t, out.Observation)
	assert.Equal(t, "about:blank", out.Observation.URL)

	for _, raw := range []string{"", "about:blank"} {
		out = b.Execute(context.Background(), action.OpenURL(raw))
		assert.False(t, out.OK)
		assert.Contains(t, out.Error, "page not loaded")
	}

	out = b.Execute(context.Background(), action.OpenURL("ftp://files.example.org"))
	assert.Contains(t, out.Error, "invalid url")

	mustOK(t, b.Execute(context.Background(), action.Wait(time.Second)))
}

func TestBrowser_SearchFlow(t *testing.T) {
	b := newBrowser(t)
	ctx := context.Background()

	out := mustOK(t, b.Execute(ctx, action.OpenURL("https://www.youtube.com")))
	assert.Equal(t, "https://www.youtube.com", out.Observation.URL)
	assert.Equal(t, "Youtube", out.Observation.Title)
	assert.Equal(t, []string{"input#search"}, out.Observation.SearchInputs)
	assert.Equal(t, 3, out.Observation.Links)
	assert.Equal(t, 1, out.Observation.Buttons)

	mustOK(t, b.Execute(ctx, action.WaitForElement("input#search")))
	mustOK(t, b.Execute(ctx, action.TypeText("input#search", "lofi beats")))
	out = mustOK(t, b.Execute(ctx, action.KeyPress("Enter")))
	assert.Equal(t, `Searched for "lofi beats"`, out.Result)
	assert.Equal(t, "https://www.youtube.com/results?search_query=lofi+beats", out.Observation.URL)
	assert.Equal(t, "lofi beats - Youtube", out.Observation.Title)

	out = mustOK(t, b.Execute(ctx, action.Extract("ytd-video-renderer")))
	require.Len(t, out.Data, resultCards)
	assert.True(t, strings.HasPrefix(out.Data[0], "Lofi beats result 1 on Youtube"), out.Data[0])

	mustOK(t, b.Execute(ctx, action.New(action.KindPlayVideo)))
	assert.Equal(t, []string{
		"https://www.youtube.com",
		"https://www.youtube.com/results?search_query=lofi+beats",
	}, b.History())
	assert.Equal(t, "https://www.youtube.com/results?search_query=lofi+beats", b.URL())
}

func TestBrowser_SubmitButtonAndLinks(t *testing.T) {
	b := newBrowser(t)
	ctx := context.Background()

	mustOK(t, b.Execute(ctx, action.OpenURL("https://www.amazon.com")))
	out := mustOK(t, b.Execute(ctx, action.Click("#nav-search-submit-button")))
	assert.Contains(t, out.Result, "nothing to submit")

	mustOK(t, b.Execute(ctx, action.TypeText("#twotabsearchtextbox", "usb hub")))
	out = mustOK(t, b.Execute(ctx, action.Click("#nav-search-submit-button")))
	assert.Equal(t, "https://www.amazon.com/s?k=usb+hub", out.Observation.URL)

	link := action.Click("//a[text()='Help']")
	link.Strategy = action.StrategyXPath
	out = mustOK(t, b.Execute(ctx, link))
	assert.Equal(t, "https://www.amazon.com/help", out.Observation.URL)

	out = mustOK(t, b.Execute(ctx, action.New(action.KindExtractLinks)))
	assert.Len(t, out.Data, 3)
}

func TestBrowser_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("element not found", func(t *testing.T) {
		b := newBrowser(t)
		mustOK(t, b.Execute(ctx, action.OpenURL("https://www.google.com")))
		out := b.Execute(ctx, action.Click("#nope"))
		assert.Equal(t, "element not found: #nope", out.Error)
		assert.Equal(t, "https://www.google.com", out.Observation.URL)
	})

	t.Run("wait times out", func(t *testing.T) {
		b := newBrowser(t)
		mustOK(t, b.Execute(ctx, action.OpenURL("https://www.google.com")))
		out := b.Execute(ctx, action.WaitForElement("div.g"))
		assert.True(t, out.OK, "featured cards are on the home page")
		out = b.Execute(ctx, action.WaitForElement("#spinner"))
		assert.Equal(t, "timeout waiting for #spinner", out.Error)
	})

	t.Run("disabled", func(t *testing.T) {
		b := newBrowser(t, WithDisabled("input[name='q']"))
		mustOK(t, b.Execute(ctx, action.OpenURL("https://www.google.com")))
		out := b.Execute(ctx, action.TypeText("input[name='q']", "x"))
		assert.Equal(t, "element disabled: input[name='q']", out.Error)
	})

	t.Run("not a text input", func(t *testing.T) {
		b := newBrowser(t)
		mustOK(t, b.Execute(ctx, action.OpenURL("https://www.google.com")))
		out := b.Execute(ctx, action.TypeText("nav", "x"))
		assert.Equal(t, "element not interactable: nav", out.Error)
	})

	t.Run("invalid selector", func(t *testing.T) {
		b := newBrowser(t)
		mustOK(t, b.Execute(ctx, action.OpenURL("https://www.google.com")))
		out := b.Execute(ctx, action.Click("div[["))
		assert.Contains(t, out.Error, "invalid selector")
	})

	t.Run("unreachable host", func(t *testing.T) {
		b := newBrowser(t, WithUnreachableHosts("www.flipkart.com"))
		out := b.Execute(ctx, action.OpenURL("https://www.flipkart.com"))
		assert.Equal(t, "network error: could not resolve host www.flipkart.com", out.Error)
	})

	t.Run("no video", func(t *testing.T) {
		b := newBrowser(t)
		mustOK(t, b.Execute(ctx, action.OpenURL("https://github.com")))
		out := b.Execute(ctx, action.New(action.KindPauseVideo))
		assert.Contains(t, out.Error, "element not found")
	})
}

func TestBrowser_SelectorStrategies(t *testing.T) {
	b := newBrowser(t)
	ctx := context.Background()
	mustOK(t, b.Execute(ctx, action.OpenURL("https://news.example.org")))

	byText := action.Click("About")
	byText.Strategy = action.StrategyText
	out := mustOK(t, b.Execute(ctx, byText))
	assert.Equal(t, "https://news.example.org/about", out.Observation.URL)

	withFallback := action.TypeText("#gone", "weather")
	withFallback.Fallbacks = map[action.SelectorStrategy]string{
		action.StrategyXPath: "//input[@type='search']",
	}
	out = mustOK(t, b.Execute(ctx, withFallback))
	assert.Contains(t, out.Result, "//input[@type='search']")

	out = mustOK(t, b.Execute(ctx, action.KeyPress("Enter")))
	assert.Equal(t, "https://news.example.org/search?q=weather", out.Observation.URL)

	extract := action.New(action.KindExtractContent)
	out = mustOK(t, b.Execute(ctx, extract))
	assert.Len(t, out.Data, resultCards, "extraction defaults to the result cards")
}

func TestBrowser_LatencyHonorsContext(t *testing.T) {
	b, err := New(zaptest.NewLogger(t), WithLatency(time.Hour))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := b.Execute(ctx, action.OpenURL("https://github.com"))
	assert.False(t, out.OK)
	assert.Contains(t, out.Error, "timeout")
	assert.Empty(t, b.URL())
}

func TestBrowser_WaitIsBoundedByActionTimeout(t *testing.T) {
	b, err := New(zaptest.NewLogger(t))
	require.NoError(t, err)

	wait := action.Wait(time.Hour)
	wait.TimeoutMs = 10
	out := b.Execute(context.Background(), wait)
	assert.False(t, out.OK)
	assert.Contains(t, out.Error, "deadline exceeded")
}
