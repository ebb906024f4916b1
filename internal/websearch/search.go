// Package websearch performs live web lookups for company enrichment.
package websearch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

const (
	DefaultEndpoint = "https://html.duckduckgo.com/html/"

	defaultTimeout    = 15 * time.Second
	defaultMaxResults = 5
	maxBodyBytes      = 1 << 20
	userAgent         = "Mozilla/5.0 (compatible; fundscout/1.0)"
)

// Result is one web search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher runs a web search and returns up to maxResults hits.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

type Config struct {
	Endpoint      string
	RatePerSecond float64
	Timeout       time.Duration
	HTTPClient    *http.Client
}

// HTMLSearcher queries an HTML search endpoint that renders results as
// a.result__a links with .result__snippet text, and parses the page.
type HTMLSearcher struct {
	endpoint string
	limiter  *rate.Limiter
	client   *http.Client
}

var _ Searcher = (*HTMLSearcher)(nil)

// NewHTMLSearcher creates an HTMLSearcher. A non-positive rate disables
// outbound rate limiting.
func NewHTMLSearcher(cfg Config) *HTMLSearcher {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &HTMLSearcher{
		endpoint: cfg.Endpoint,
		limiter:  rate.NewLimiter(limit, 1),
		client:   client,
	}
}

func (s *HTMLSearcher) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search endpoint returned %d", resp.StatusCode)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("parsing search results: %w", err)
	}
	return parseResults(doc, maxResults), nil
}

// parseResults walks the document in order, starting a new result at each
// result link and attaching the first snippet that follows it.
func parseResults(doc *html.Node, maxResults int) []Result {
	results := []Result{}
	var current *Result

	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "a" && hasClass(n, "result__a"):
				if current != nil && current.URL != "" {
					results = append(results, *current)
					if len(results) >= maxResults {
						return false
					}
				}
				current = &Result{Title: textContent(n), URL: resolveRedirect(attr(n, "href"))}
				return true
			case hasClass(n, "result__snippet"):
				if current != nil && current.Snippet == "" {
					current.Snippet = textContent(n)
				}
				return true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}
		return true
	}

	if walk(doc) && current != nil && current.URL != "" && len(results) < maxResults {
		results = append(results, *current)
	}
	return results
}

// resolveRedirect unwraps /l/?uddg=<target> redirect links.
func resolveRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" && strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var parts []string
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.Join(parts, " ")
}
