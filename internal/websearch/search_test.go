package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const resultsPage = `<html><body>
<div class="result results_links">
  <h2><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Ftabby.ai%2F&amp;rut=abc">Tabby <b>BNPL</b></a></h2>
  <a class="result__snippet" href="#">Tabby is a buy now pay later company based in Riyadh.</a>
</div>
<div class="result results_links">
  <h2><a class="result__a" href="https://calo.app">Calo</a></h2>
  <div class="result__snippet">Personalized meal plans.</div>
</div>
<div class="result results_links">
  <h2><a class="result__a" href="https://kitopi.com">Kitopi</a></h2>
</div>
</body></html>`

func newTestServer(t *testing.T, queries *[]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if queries != nil {
			*queries = append(*queries, r.Form.Get("q"))
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(resultsPage))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSearch_ParsesResults(t *testing.T) {
	var queries []string
	srv := newTestServer(t, &queries)
	s := NewHTMLSearcher(Config{Endpoint: srv.URL})

	got, err := s.Search(context.Background(), "tabby headquarters", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(queries) != 1 || queries[0] != "tabby headquarters" {
		t.Errorf("unexpected queries: %v", queries)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d: %+v", len(got), got)
	}
	if got[0].Title != "Tabby BNPL" || got[0].URL != "https://tabby.ai/" {
		t.Errorf("unexpected first result: %+v", got[0])
	}
	if !strings.Contains(got[0].Snippet, "Riyadh") {
		t.Errorf("snippet not attached: %+v", got[0])
	}
	if got[1].Snippet != "Personalized meal plans." {
		t.Errorf("unexpected second snippet: %q", got[1].Snippet)
	}
	if got[2].Snippet != "" {
		t.Errorf("third result should have no snippet, got %q", got[2].Snippet)
	}
}

func TestSearch_MaxResults(t *testing.T) {
	srv := newTestServer(t, nil)
	got, err := NewHTMLSearcher(Config{Endpoint: srv.URL}).Search(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 || got[1].Title != "Calo" {
		t.Errorf("expected first two results, got %+v", got)
	}
}

func TestSearch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewHTMLSearcher(Config{Endpoint: srv.URL}).Search(context.Background(), "q", 5)
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("expected status error, got %v", err)
	}
}

func TestSearch_RateLimited(t *testing.T) {
	srv := newTestServer(t, nil)
	s := NewHTMLSearcher(Config{Endpoint: srv.URL, RatePerSecond: 0.01})

	if _, err := s.Search(context.Background(), "first", 1); err != nil {
		t.Fatalf("first Search: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := s.Search(ctx, "second", 1); err == nil {
		t.Error("expected the limiter to block past the deadline")
	}
}

func TestResolveRedirect(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fa", "https://example.com/a"},
		{"https://example.com", "https://example.com"},
		{"//example.com/x", "https://example.com/x"},
	}
	for _, c := range cases {
		if got := resolveRedirect(c.in); got != c.want {
			t.Errorf("resolveRedirect(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
