package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-go-golems/sleuth/pkg/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// SearchHit is one web search result.
type SearchHit struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Markdown    string `json:"markdown,omitempty"`
}

// Page is the content of a scraped url.
type Page struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Markdown string `json:"markdown"`
}

type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchHit, error)
}

type Scraper interface {
	Scrape(ctx context.Context, url string) (*Page, error)
}

type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// APIError is a non successful answer of the Firecrawl API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("firecrawl: %d %s", e.StatusCode, e.Message)
}

// Client talks to the Firecrawl v1 REST API.
type Client struct {
	apiKey      string
	baseURL     string
	searchLimit int
	http        httpDoer
}

var _ Searcher = (*Client)(nil)
var _ Scraper = (*Client)(nil)

type ClientOption func(*Client)

func WithHTTPClient(c httpDoer) ClientOption {
	return func(cl *Client) {
		cl.http = c
	}
}

func WithSearchLimit(n int) ClientOption {
	return func(cl *Client) {
		cl.searchLimit = n
	}
}

func NewClient(s *settings.FirecrawlSettings, options ...ClientOption) *Client {
	baseURL := s.BaseURL
	if baseURL == "" {
		baseURL = settings.DefaultFirecrawlBaseURL
	}
	ret := &Client{
		apiKey:      s.APIKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		searchLimit: 5,
		http:        &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type searchResponse struct {
	Success bool        `json:"success"`
	Data    []SearchHit `json:"data"`
	Error   string      `json:"error,omitempty"`
}

func (c *Client) Search(ctx context.Context, query string) ([]SearchHit, error) {
	var resp searchResponse
	if err := c.post(ctx, "/v1/search", searchRequest{Query: query, Limit: c.searchLimit}, &resp); err != nil {
		return nil, errors.Wrapf(err, "search %q failed", query)
	}
	if !resp.Success {
		return nil, errors.Errorf("search %q failed: %s", query, resp.Error)
	}
	log.Debug().Str("query", query).Int("hits", len(resp.Data)).Msg("firecrawl search")
	return resp.Data, nil
}

type scrapeRequest struct {
	URL     string   `json:"url"`
	Formats []string `json:"formats"`
}

type scrapeResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Markdown string `json:"markdown"`
		Metadata struct {
			Title     string `json:"title"`
			SourceURL string `json:"sourceURL"`
		} `json:"metadata"`
	} `json:"data"`
	Error string `json:"error,omitempty"`
}

func (c *Client) Scrape(ctx context.Context, url string) (*Page, error) {
	var resp scrapeResponse
	if err := c.post(ctx, "/v1/scrape", scrapeRequest{URL: url, Formats: []string{"markdown"}}, &resp); err != nil {
		return nil, errors.Wrapf(err, "scrape %s failed", url)
	}
	if !resp.Success {
		return nil, errors.Errorf("scrape %s failed: %s", url, resp.Error)
	}
	log.Debug().Str("url", url).Int("length", len(resp.Data.Markdown)).Msg("firecrawl scrape")
	return &Page{
		URL:      url,
		Title:    resp.Data.Metadata.Title,
		Markdown: resp.Data.Markdown,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "could not decode firecrawl response")
	}
	return nil
}
