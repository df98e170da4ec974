package scrape

import (
	"context"
	"net/url"
	"strings"
)

// Mock returns canned content derived from the URL.
type Mock struct{}

func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Scrape(ctx context.Context, rawURL string, _ []Format) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return Result{}, err
	}
	subject := strings.ReplaceAll(strings.TrimPrefix(u.Path, "/wiki/"), "_", " ")
	if q := u.Query().Get("q"); q != "" {
		subject = q
	}
	subject = strings.TrimSpace(strings.Trim(subject, "/"))
	return Result{URL: rawURL, Content: "# " + subject + "\n\nNotes about " + subject + " from " + u.Host + "."}, nil
}
