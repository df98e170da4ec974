package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFirecrawlScrape(t *testing.T) {
	var got firecrawlRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/scrape" {
			t.Fatalf("path = %q, want /v1/scrape", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer fc-test" {
			t.Fatalf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"markdown":"# Physics\n\nStuff."}}`))
	}))
	defer srv.Close()

	res, err := NewFirecrawl(srv.URL+"/", "fc-test").Scrape(context.Background(), "https://en.wikipedia.org/wiki/Physics", []Format{FormatMarkdown})
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if res.Content != "# Physics\n\nStuff." {
		t.Fatalf("res.Content = %q", res.Content)
	}
	if got.URL != "https://en.wikipedia.org/wiki/Physics" || len(got.Formats) != 1 || got.Formats[0] != FormatMarkdown {
		t.Fatalf("request = %+v", got)
	}
}

func TestFirecrawlStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewFirecrawl(srv.URL, "fc-test").Scrape(context.Background(), "https://example.com", nil)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusTooManyRequests {
		t.Fatalf("Scrape() error = %v, want 429 StatusError", err)
	}
}

func TestFirecrawlUnsuccessful(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"blocked"}`))
	}))
	defer srv.Close()

	_, err := NewFirecrawl(srv.URL, "fc-test").Scrape(context.Background(), "https://example.com", nil)
	if err == nil || !strings.Contains(err.Error(), "blocked") {
		t.Fatalf("Scrape() error = %v, want blocked", err)
	}
}

func TestNewScraperModes(t *testing.T) {
	if _, err := NewScraper(Config{Mode: "firecrawl"}); err == nil {
		t.Fatalf("NewScraper(firecrawl) expected error without api key")
	}
	if _, err := NewScraper(Config{Mode: "carrier-pigeon"}); err == nil {
		t.Fatalf("NewScraper() expected error for unknown mode")
	}
	s, err := NewScraper(Config{Mode: "browser"})
	if err != nil {
		t.Fatalf("NewScraper(browser) error = %v", err)
	}
	if _, ok := s.(*Browser); !ok {
		t.Fatalf("NewScraper(browser) = %T", s)
	}
	s, err = NewScraper(Config{Mode: "mock", Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewScraper(mock) error = %v", err)
	}
	if _, ok := s.(*timeoutScraper); !ok {
		t.Fatalf("NewScraper(mock, timeout) = %T, want *timeoutScraper", s)
	}
}

func TestMockScrape(t *testing.T) {
	m := NewMock()
	res, err := m.Scrape(context.Background(), "https://en.wikipedia.org/wiki/String_theory", nil)
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if !strings.HasPrefix(res.Content, "# String theory") {
		t.Fatalf("res.Content = %q", res.Content)
	}
	res, err = m.Scrape(context.Background(), "https://www.google.com/search?q=String+theory", nil)
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if !strings.Contains(res.Content, "String theory from www.google.com") {
		t.Fatalf("res.Content = %q", res.Content)
	}
}
