package firecrawl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-go-golems/sleuth/pkg/security"
	"github.com/pkg/errors"
)

const userAgent = "Mozilla/5.0 (compatible; sleuth/1.0; +https://github.com/go-go-golems/sleuth)"

// DirectScraper fetches pages itself and turns their HTML into plain
// markdown-like text. It is used when no Firecrawl API key is configured.
type DirectScraper struct {
	http     httpDoer
	maxBytes int64
	policy   security.URLPolicy
}

var _ Scraper = (*DirectScraper)(nil)

func NewDirectScraper(options ...DirectScraperOption) *DirectScraper {
	ret := &DirectScraper{
		http:     &http.Client{Timeout: 30 * time.Second},
		maxBytes: 5 << 20,
		policy:   security.DefaultScrapePolicy(),
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

type DirectScraperOption func(*DirectScraper)

func WithDirectHTTPClient(c httpDoer) DirectScraperOption {
	return func(d *DirectScraper) {
		d.http = c
	}
}

// WithURLPolicy replaces the default policy, which refuses local network
// targets.
func WithURLPolicy(p security.URLPolicy) DirectScraperOption {
	return func(d *DirectScraper) {
		d.policy = p
	}
}

func (d *DirectScraper) Scrape(ctx context.Context, rawURL string) (*Page, error) {
	u, err := d.policy.Validate(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Errorf("bad status: %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, d.maxBytes))
	if err != nil {
		return nil, errors.Wrap(err, "could not parse html")
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	return &Page{
		URL:      rawURL,
		Title:    title,
		Markdown: HTMLToText(doc, u),
	}, nil
}

const blockSelector = "h1, h2, h3, h4, h5, h6, p, li, td, th, blockquote, pre"

// HTMLToText renders the readable parts of doc as markdown-like text:
// headings, paragraphs and list items, followed by the page's links.
func HTMLToText(doc *goquery.Document, base *url.URL) string {
	doc.Find("script, style, noscript, iframe, svg, canvas, template, head").Remove()

	var sb strings.Builder
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		// nested blocks are rendered by their innermost element
		if s.Find(blockSelector).Length() > 0 {
			return
		}
		text := collapseWhitespace(s.Text())
		if text == "" {
			return
		}
		switch tag := goquery.NodeName(s); tag {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			sb.WriteString(strings.Repeat("#", int(tag[1]-'0')) + " " + text + "\n\n")
		case "li":
			sb.WriteString("- " + text + "\n")
		default:
			sb.WriteString(text + "\n\n")
		}
	})

	seen := map[string]bool{}
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil || href == "" || strings.HasPrefix(href, "#") {
			return
		}
		abs := ref.String()
		if base != nil {
			abs = base.ResolveReference(ref).String()
		}
		if seen[abs] {
			return
		}
		seen[abs] = true
		text := collapseWhitespace(s.Text())
		if text == "" {
			text = abs
		}
		links = append(links, fmt.Sprintf("- [%s](%s)", text, abs))
	})
	if len(links) > 0 {
		sb.WriteString("\n## Links\n\n")
		sb.WriteString(strings.Join(links, "\n"))
		sb.WriteString("\n")
	}

	return strings.TrimSpace(sb.String())
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
