package site

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	sites := Defaults()

	s, ok := Lookup(sites, "Search for lofi beats on YouTube")
	require.True(t, ok)
	assert.Equal(t, "youtube", s.Name)

	_, ok = Lookup(sites, "find the nearest bakery")
	assert.False(t, ok)
}

func TestForURL(t *testing.T) {
	sites := Defaults()
	tests := []struct {
		url  string
		want string
		ok   bool
	}{
		{"https://www.amazon.com/s?k=mice", "amazon", true},
		{"https://amazon.com", "amazon", true},
		{"https://github.com/search?q=zap", "github", true},
		{"https://www.linkedin.com/jobs/search?keywords=go", "linkedin", true},
		{"https://example.org", "", false},
		{"about:blank", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			s, ok := ForURL(sites, tt.url)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, s.Name)
		})
	}
}

func TestSearchURL(t *testing.T) {
	yt, ok := ByName(Defaults(), "youtube")
	require.True(t, ok)
	assert.Equal(t, "https://www.youtube.com/results?search_query=lofi+beats", yt.SearchURL("lofi beats"))

	g := Generic("example.org")
	assert.Equal(t, "https://example.org/search?q=a%26b", g.SearchURL("a&b"))
	assert.Equal(t, "example.org", g.Host())
}
