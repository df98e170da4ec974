package scrape

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
)

// Browser renders pages in headless Chrome and returns the visible body text.
// Requested formats are ignored; the result is always plain text.
type Browser struct {
	execPath string
}

func NewBrowser(execPath string) *Browser {
	return &Browser{execPath: strings.TrimSpace(execPath)}
}

func (b *Browser) Scrape(ctx context.Context, url string, _ []Format) (Result, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	if b.execPath != "" {
		opts = append(opts, chromedp.ExecPath(b.execPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	var text string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Text("body", &text, chromedp.ByQuery),
	)
	if err != nil {
		return Result{}, fmt.Errorf("browser scrape %s: %w", url, err)
	}
	return Result{URL: url, Content: strings.TrimSpace(text)}, nil
}
