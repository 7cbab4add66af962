package builtin

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-go-golems/sleuth/pkg/llm"
	"github.com/go-go-golems/sleuth/pkg/prompts"
	"github.com/go-go-golems/sleuth/pkg/tools"
	"github.com/rs/zerolog/log"
)

type SearchInput struct {
	Query      string `json:"query" jsonschema:"required,description=The search query to execute"`
	EntityName string `json:"entity_name" jsonschema:"required,description=The name of the entity we are looking for information about"`
}

// SearchResult is what the model learns from a search. Empty is set when the
// search or the extraction failed, Reason then says why.
type SearchResult struct {
	RelatedURLsToScrapeFurther []string      `json:"relatedUrlsToScrapeFurther"`
	InfoFound                  []interface{} `json:"infoFound"`

	Empty  bool   `json:"-"`
	Reason string `json:"-"`
}

func EmptySearchResult(reason string) *SearchResult {
	return &SearchResult{
		RelatedURLsToScrapeFurther: []string{},
		InfoFound:                  []interface{}{},
		Empty:                      true,
		Reason:                     reason,
	}
}

// NewSearchTool searches the web and lets the model extract the missing data
// points from the results. It never returns an error, failures yield an
// empty result.
func NewSearchTool(d Deps) tools.Tool {
	loader := d.Prompts
	if loader == nil {
		loader = prompts.NewDefaultLoader()
	}

	return tools.NewFunc(SearchToolName, func(ctx context.Context, in SearchInput) (*SearchResult, error) {
		hits, err := d.Searcher.Search(ctx, in.Query)
		if err != nil {
			log.Warn().Err(err).Str("query", in.Query).Msg("search failed")
			return EmptySearchResult(err.Error()), nil
		}

		b, err := json.MarshalIndent(hits, "", "  ")
		if err != nil {
			return EmptySearchResult(err.Error()), nil
		}

		prompt, err := loader.Load(prompts.ParseSearchResult, map[string]interface{}{
			"entity_name":    in.EntityName,
			"search_results": string(b),
			"data_points":    strings.Join(d.Store.Missing(), ", "),
		})
		if err != nil {
			log.Warn().Err(err).Msg("could not render search prompt")
			return EmptySearchResult(err.Error()), nil
		}

		answer, err := llm.CompleteText(ctx, d.Completer, d.Model, prompt, true)
		if err != nil {
			log.Warn().Err(err).Str("query", in.Query).Msg("could not extract search results")
			return EmptySearchResult(err.Error()), nil
		}

		ret := &SearchResult{}
		if err := json.Unmarshal([]byte(answer), ret); err != nil {
			log.Warn().Err(err).Str("answer", answer).Msg("search extraction is not valid JSON")
			return EmptySearchResult("could not parse extraction: " + err.Error()), nil
		}
		if ret.RelatedURLsToScrapeFurther == nil {
			ret.RelatedURLsToScrapeFurther = []string{}
		}
		if ret.InfoFound == nil {
			ret.InfoFound = []interface{}{}
		}
		return ret, nil
	})
}
