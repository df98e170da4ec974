package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const DefaultFirecrawlURL = "https://api.firecrawl.dev"

// StatusError reports a non-2xx reply from the scraping service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("firecrawl status %d: %s", e.Code, e.Body)
}

func (e *StatusError) HTTPStatus() int { return e.Code }

// Firecrawl scrapes through the Firecrawl v1 REST API.
type Firecrawl struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewFirecrawl(baseURL, apiKey string) *Firecrawl {
	return NewFirecrawlWithClient(baseURL, apiKey, &http.Client{})
}

func NewFirecrawlWithClient(baseURL, apiKey string, client *http.Client) *Firecrawl {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultFirecrawlURL
	}
	return &Firecrawl{baseURL: baseURL, apiKey: strings.TrimSpace(apiKey), client: client}
}

type firecrawlRequest struct {
	URL     string   `json:"url"`
	Formats []Format `json:"formats"`
}

type firecrawlResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Markdown string `json:"markdown"`
		HTML     string `json:"html"`
	} `json:"data"`
}

func (f *Firecrawl) Scrape(ctx context.Context, url string, formats []Format) (Result, error) {
	if len(formats) == 0 {
		formats = []Format{FormatMarkdown}
	}
	payload, err := json.Marshal(firecrawlRequest{URL: url, Formats: formats})
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/v1/scrape", bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.apiKey)

	res, err := f.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Result{}, &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out firecrawlResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}
	if !out.Success {
		msg := strings.TrimSpace(out.Error)
		if msg == "" {
			msg = "unsuccessful scrape"
		}
		return Result{}, errors.New("firecrawl: " + msg)
	}

	content := out.Data.Markdown
	if content == "" {
		content = out.Data.HTML
	}
	return Result{URL: url, Content: content}, nil
}
