package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScraperConfig(t *testing.T) {
	s := NewWithConfig(ScraperConfig{
		MaxDepth:       5,
		RateLimit:      1.0,
		IgnorePatterns: []string{"/ignore/", "private"},
		Timeout:        10 * time.Second,
	})
	assert.Equal(t, 5, s.config.MaxDepth)
	assert.Equal(t, 10*time.Second, s.client.Timeout)

	d := New()
	assert.Equal(t, 0, d.config.MaxDepth)
	assert.Equal(t, 2.0, d.config.RateLimit)
}

func TestShouldProcessURL(t *testing.T) {
	s := NewWithConfig(ScraperConfig{
		IgnorePatterns:    []string{"/ignore/", "private"},
		AllowedExtensions: []string{".html", "/"},
	})
	c := &crawl{baseHost: "example.com"}

	tests := []struct {
		url      string
		expected bool
	}{
		{"https://example.com/docs/", true},
		{"https://example.com/page.html", true},
		{"https://example.com/ignore/page.html", false},
		{"https://other-domain.com/page.html", false},
		{"https://example.com/file.pdf", false},
		{"mailto:someone@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			u, err := url.Parse(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, s.shouldProcessURL(c, u))
		})
	}
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`
			<html>
				<head><title>Test Page</title><script>var tracking = 1;</script></head>
				<body>
					<main>
						<h1>Test Content</h1>
						<p>This is a test paragraph.</p>
						<a href="/page2.html">Link</a>
						<a href="/missing.html">Broken</a>
						<a href="https://elsewhere.example/">External</a>
					</main>
				</body>
			</html>
		`))
	})
	mux.HandleFunc("/page2.html", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>Second</title></head><body><article>Second page body</article><a href="/">home</a></body></html>`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestScrapeSinglePage(t *testing.T) {
	srv := newSite(t)
	s := NewWithConfig(ScraperConfig{RateLimit: 100})

	docs, err := s.Scrape(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	require.Len(t, docs, 1)

	doc := docs[0]
	assert.Equal(t, srv.URL+"/", doc.Source)
	assert.Equal(t, "Test Page", doc.Title)
	assert.Contains(t, doc.Text, "Test Content")
	assert.Contains(t, doc.Text, "This is a test paragraph.")
	assert.NotContains(t, doc.Text, "tracking")
}

func TestScrapeFollowsSameHostLinks(t *testing.T) {
	srv := newSite(t)
	var visited []string
	s := NewWithConfig(ScraperConfig{
		MaxDepth:   1,
		RateLimit:  100,
		OnProgress: func(u string) { visited = append(visited, u) },
	})

	docs, err := s.Scrape(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "Second", docs[1].Title)
	assert.Equal(t, "Second page body", docs[1].Text)
	assert.Equal(t, []string{srv.URL + "/", srv.URL + "/page2.html", srv.URL + "/missing.html"}, visited)
}

func TestScrapeErrors(t *testing.T) {
	srv := newSite(t)
	s := NewWithConfig(ScraperConfig{RateLimit: 100})

	_, err := s.Scrape(context.Background(), "not a url")
	assert.Error(t, err)

	_, err = s.Scrape(context.Background(), srv.URL+"/missing.html")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Scrape(ctx, srv.URL+"/")
	assert.ErrorIs(t, err, context.Canceled)
}
