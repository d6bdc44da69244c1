package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/xhad/vecdocs/internal/models"
	"golang.org/x/time/rate"
)

type ScraperConfig struct {
	// MaxDepth is how many links deep to follow from the start page.
	// Zero scrapes only the start page.
	MaxDepth          int
	RateLimit         float64 // requests per second
	IgnorePatterns    []string
	AllowedExtensions []string
	Timeout           time.Duration
	OnProgress        func(url string)
	Client            *http.Client
}

type Scraper struct {
	config  ScraperConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewWithConfig(config ScraperConfig) *Scraper {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxDepth < 0 {
		config.MaxDepth = 0
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	client := config.Client
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	return &Scraper{
		config:  config,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

func New() *Scraper {
	return NewWithConfig(ScraperConfig{})
}

// crawl holds the state of a single Scrape call.
type crawl struct {
	baseHost  string
	visited   map[string]bool
	documents []models.Document
}

func (s *Scraper) shouldProcessURL(c *crawl, u *url.URL) bool {
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.Host != c.baseHost {
		return false
	}

	path := strings.ToLower(u.Path)
	validExt := false
	for _, allowedExt := range s.config.AllowedExtensions {
		if strings.HasSuffix(path, allowedExt) {
			validExt = true
			break
		}
	}
	if !validExt {
		return false
	}

	for _, pattern := range s.config.IgnorePatterns {
		if strings.Contains(u.String(), pattern) {
			return false
		}
	}
	return true
}

func cleanContent(content string) string {
	content = strings.Join(strings.Fields(content), " ")

	noisePatterns := []string{
		"Cookie Policy",
		"Accept Cookies",
		"Privacy Policy",
		"Terms of Service",
	}
	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}

	return strings.TrimSpace(content)
}

func extractMainContent(doc *goquery.Document) string {
	doc.Find("script, style, noscript").Remove()

	selectors := []string{
		"main",
		"article",
		".content",
		"#content",
		".documentation",
		"#documentation",
	}

	var content string
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}

	if strings.TrimSpace(content) == "" {
		content = doc.Find("body").Text()
	}

	return cleanContent(content)
}

// Scrape fetches rawURL and, up to MaxDepth, the same-host pages it links to.
// Failures on linked pages are logged and skipped; a failure on the start
// page is returned.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) ([]models.Document, error) {
	start, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if !start.IsAbs() || start.Host == "" {
		return nil, fmt.Errorf("invalid url %q: must be absolute", rawURL)
	}

	c := &crawl{baseHost: start.Host, visited: make(map[string]bool)}
	if !s.shouldProcessURL(c, start) {
		return nil, fmt.Errorf("url %q is not an html page", rawURL)
	}

	if err := s.scrapeRecursive(ctx, c, start, 0); err != nil {
		return nil, err
	}
	return c.documents, nil
}

func (s *Scraper) scrapeRecursive(ctx context.Context, c *crawl, u *url.URL, depth int) error {
	u.Fragment = ""
	urlStr := u.String()
	if depth > s.config.MaxDepth || c.visited[urlStr] {
		return nil
	}
	if !s.shouldProcessURL(c, u) {
		return nil
	}

	c.visited[urlStr] = true
	if s.config.OnProgress != nil {
		s.config.OnProgress(urlStr)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return err
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = urlStr
	}

	var links []*url.URL
	if depth < s.config.MaxDepth {
		doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
			href, _ := selection.Attr("href")
			link, err := u.Parse(href)
			if err != nil {
				slog.Debug("Skipping unparsable link", "href", href, "error", err)
				return
			}
			links = append(links, link)
		})
	}

	c.documents = append(c.documents, models.Document{
		Title:  title,
		Text:   extractMainContent(doc),
		Source: urlStr,
	})

	for _, link := range links {
		if err := s.scrapeRecursive(ctx, c, link, depth+1); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("Error scraping URL", "url", link.String(), "error", err)
		}
	}
	return nil
}
