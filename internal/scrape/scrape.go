// Package scrape fetches web pages as text for topic enrichment.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Format names a representation requested from the scraper.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// Result is the scraped body in the first requested format available.
type Result struct {
	URL     string
	Content string
}

// Scraper fetches a single URL.
type Scraper interface {
	Scrape(ctx context.Context, url string, formats []Format) (Result, error)
}

// Config controls scraper construction.
type Config struct {
	Mode       string
	APIKey     string
	BaseURL    string
	ChromePath string
	Timeout    time.Duration
}

func NewScraper(cfg Config) (Scraper, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "firecrawl"
	}

	var s Scraper
	switch mode {
	case "firecrawl":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errors.New("firecrawl api key is required for firecrawl mode")
		}
		s = NewFirecrawl(cfg.BaseURL, cfg.APIKey)
	case "browser":
		s = NewBrowser(cfg.ChromePath)
	case "mock":
		s = NewMock()
	default:
		return nil, fmt.Errorf("unsupported scrape mode %q", cfg.Mode)
	}
	if cfg.Timeout > 0 {
		s = &timeoutScraper{next: s, timeout: cfg.Timeout}
	}
	return s, nil
}

type timeoutScraper struct {
	next    Scraper
	timeout time.Duration
}

func (s *timeoutScraper) Scrape(ctx context.Context, url string, formats []Format) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.Scrape(ctx, url, formats)
}
