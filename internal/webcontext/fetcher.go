// Package webcontext gathers short background text for a discussion topic.
package webcontext

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/roundtable/internal/scrape"
)

const (
	DefaultMaxChars = 500

	backgroundPrefix = "Topic background: "
	secondaryPrefix  = "\n\nAdditional context: "
)

// TopicContext is background text derived for one action. It is never cached.
type TopicContext struct {
	Text string `json:"text"`
	// MaxLength is the per-source character cap that was applied.
	MaxLength   int `json:"max_length"`
	SourceCount int `json:"source_count"`
}

// Fetcher scrapes an encyclopedia page and a search results page for a topic.
type Fetcher struct {
	scraper   scrape.Scraper
	maxChars  int
	logger    *slog.Logger
	onFailure func(err error)
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithMaxChars sets the per-source truncation limit in characters.
func WithMaxChars(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxChars = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithFailureHook registers fn to be called for every swallowed fetch failure.
func WithFailureHook(fn func(err error)) Option {
	return func(f *Fetcher) { f.onFailure = fn }
}

func New(scraper scrape.Scraper, opts ...Option) *Fetcher {
	f := &Fetcher{
		scraper:  scraper,
		maxChars: DefaultMaxChars,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// PrimaryURL is the encyclopedia article for topic.
func PrimaryURL(topic string) string {
	return "https://en.wikipedia.org/wiki/" + strings.ReplaceAll(topic, " ", "_")
}

// SecondaryURL is the web search for topic.
func SecondaryURL(topic string) string {
	return "https://www.google.com/search?q=" + strings.ReplaceAll(topic, " ", "+")
}

// Fetch returns the labelled background text, or "" when either source fails.
func (f *Fetcher) Fetch(ctx context.Context, topic string) string {
	return f.FetchTopicContext(ctx, topic).Text
}

// FetchTopicContext is Fetch with the derived metadata.
func (f *Fetcher) FetchTopicContext(ctx context.Context, topic string) TopicContext {
	out := TopicContext{MaxLength: f.maxChars}

	urls := [2]string{PrimaryURL(topic), SecondaryURL(topic)}
	var bodies [2]string

	g, gctx := errgroup.WithContext(ctx)
	for i, u := range urls {
		g.Go(func() error {
			res, err := f.scraper.Scrape(gctx, u, []scrape.Format{scrape.FormatMarkdown})
			if err != nil {
				return &fetchError{url: u, err: err}
			}
			bodies[i] = truncate(res.Content, f.maxChars)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		f.logger.Warn("could not fetch topic context", "topic", topic, "error", err)
		if f.onFailure != nil {
			f.onFailure(err)
		}
		return out
	}

	primary, secondary := bodies[0], bodies[1]
	for _, b := range bodies {
		if b != "" {
			out.SourceCount++
		}
	}

	text := primary
	if secondary != "" {
		text += secondaryPrefix + secondary
	}
	out.Text = backgroundPrefix + text
	return out
}

type fetchError struct {
	url string
	err error
}

func (e *fetchError) Error() string {
	return "scrape " + redact(e.url) + ": " + e.err.Error()
}

func (e *fetchError) Unwrap() error { return e.err }

func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Host + u.Path
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
