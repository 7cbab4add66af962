// Package builtin provides the search, scrape and update_data tools, bound to
// the data point store of one run.
package builtin

import (
	"github.com/go-go-golems/sleuth/pkg/datapoints"
	"github.com/go-go-golems/sleuth/pkg/firecrawl"
	"github.com/go-go-golems/sleuth/pkg/llm"
	"github.com/go-go-golems/sleuth/pkg/prompts"
	"github.com/go-go-golems/sleuth/pkg/tools"
	"github.com/pkg/errors"
)

const (
	SearchToolName     = "search"
	ScrapeToolName     = "scrape"
	UpdateDataToolName = "update_data"
)

// Deps are the collaborators of the builtin tools.
type Deps struct {
	Store     *datapoints.Store
	Searcher  firecrawl.Searcher
	Scraper   firecrawl.Scraper
	Completer llm.Completer
	// Model is used to extract information from search results.
	Model   string
	Prompts *prompts.Loader
}

// NewRegistry returns a registry with every builtin tool. The search tool is
// only registered when a Searcher is configured.
func NewRegistry(d Deps) (*tools.Registry, error) {
	if d.Store == nil {
		return nil, errors.New("builtin tools need a data point store")
	}

	reg, err := tools.NewRegistry()
	if err != nil {
		return nil, err
	}

	if d.Searcher != nil {
		if d.Completer == nil {
			return nil, errors.New("the search tool needs a completer")
		}
		if err := reg.Register(NewSearchTool(d)); err != nil {
			return nil, err
		}
	}
	if d.Scraper != nil {
		if err := reg.Register(NewScrapeTool(d.Scraper, d.Store)); err != nil {
			return nil, err
		}
	}
	if err := reg.Register(NewUpdateDataTool(d.Store)); err != nil {
		return nil, err
	}

	return reg, nil
}

// Schemas reflects the tool schemas from the input types of the builtin tools.
func Schemas() ([]tools.Schema, error) {
	defs := []struct {
		name        string
		description string
		input       interface{}
	}{
		{
			SearchToolName,
			"Search the internet for information about an entity. Returns the information found and related urls worth scraping further.",
			SearchInput{},
		},
		{
			ScrapeToolName,
			"Scrape a url and return its content as markdown.",
			ScrapeInput{},
		},
		{
			UpdateDataToolName,
			"Save the data points found, together with the url they were found at.",
			UpdateDataInput{},
		},
	}

	ret := make([]tools.Schema, 0, len(defs))
	for _, d := range defs {
		s, err := tools.SchemaFor(d.name, d.description, d.input)
		if err != nil {
			return nil, errors.Wrapf(err, "could not reflect schema of %s", d.name)
		}
		ret = append(ret, s)
	}
	return ret, nil
}
