package builtin

import (
	"context"
	"fmt"

	"github.com/go-go-golems/sleuth/pkg/datapoints"
	"github.com/go-go-golems/sleuth/pkg/firecrawl"
	"github.com/go-go-golems/sleuth/pkg/tools"
	"github.com/rs/zerolog/log"
)

type ScrapeInput struct {
	URL string `json:"url" jsonschema:"required,description=The url to scrape"`
}

type ScrapeResult struct {
	URL     string
	Content string
	Failed  bool
	Err     error
}

func (r *ScrapeResult) String() string {
	if r.Failed {
		return fmt.Sprintf("Unable to scrape the url %s: %v", r.URL, r.Err)
	}
	return r.Content
}

// NewScrapeTool returns the page content as markdown and records the url as
// scraped. Failures are reported to the model as text.
func NewScrapeTool(scraper firecrawl.Scraper, store *datapoints.Store) tools.Tool {
	return tools.NewFunc(ScrapeToolName, func(ctx context.Context, in ScrapeInput) (*ScrapeResult, error) {
		page, err := scraper.Scrape(ctx, in.URL)
		if err != nil {
			log.Warn().Err(err).Str("url", in.URL).Msg("scrape failed")
			return &ScrapeResult{URL: in.URL, Failed: true, Err: err}, nil
		}

		store.AddScrapedLink(in.URL)
		return &ScrapeResult{URL: in.URL, Content: page.Markdown}, nil
	})
}
