// Package scraper sets up agent runs that fill the data point store of an
// entity, either from its website or from the internet at large.
package scraper

import (
	"context"
	"encoding/json"

	"github.com/go-go-golems/sleuth/pkg/agent"
	"github.com/go-go-golems/sleuth/pkg/datapoints"
	"github.com/go-go-golems/sleuth/pkg/events"
	"github.com/go-go-golems/sleuth/pkg/firecrawl"
	"github.com/go-go-golems/sleuth/pkg/llm"
	"github.com/go-go-golems/sleuth/pkg/memory"
	"github.com/go-go-golems/sleuth/pkg/prompts"
	"github.com/go-go-golems/sleuth/pkg/settings"
	"github.com/go-go-golems/sleuth/pkg/tools"
	"github.com/go-go-golems/sleuth/pkg/tools/builtin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	WebsiteToolSet  = "website"
	InternetToolSet = "internet"
)

var ErrNoMissingDataPoints = errors.New("no data points to search for")

// Runner runs agents over a single data point store.
type Runner struct {
	store     *datapoints.Store
	completer llm.Completer
	settings  *settings.Settings

	searcher  firecrawl.Searcher
	scraper   firecrawl.Scraper
	prompts   *prompts.Loader
	tools     *tools.Loader
	bus       *events.Bus
	compactor memory.Compactor
}

type Option func(*Runner)

func WithSettings(s *settings.Settings) Option {
	return func(r *Runner) { r.settings = s }
}

func WithSearcher(s firecrawl.Searcher) Option {
	return func(r *Runner) { r.searcher = s }
}

func WithScraper(s firecrawl.Scraper) Option {
	return func(r *Runner) { r.scraper = s }
}

func WithPrompts(l *prompts.Loader) Option {
	return func(r *Runner) { r.prompts = l }
}

func WithToolLoader(l *tools.Loader) Option {
	return func(r *Runner) { r.tools = l }
}

func WithBus(bus *events.Bus) Option {
	return func(r *Runner) { r.bus = bus }
}

// WithCompactor overrides the compactor built from the memory settings.
func WithCompactor(c memory.Compactor) Option {
	return func(r *Runner) { r.compactor = c }
}

func NewRunner(store *datapoints.Store, completer llm.Completer, opts ...Option) (*Runner, error) {
	if store == nil {
		return nil, errors.New("runner needs a data point store")
	}
	if completer == nil {
		return nil, errors.New("runner needs a completer")
	}

	r := &Runner{
		store:     store,
		completer: completer,
	}
	for _, o := range opts {
		o(r)
	}

	if r.settings == nil {
		r.settings = settings.NewSettings()
	}
	if r.prompts == nil {
		r.prompts = prompts.NewOverlayLoader(r.settings.PromptsDir)
	}
	if r.tools == nil {
		if r.settings.ToolsDir != "" {
			r.tools = tools.NewDirLoader(r.settings.ToolsDir)
		} else {
			r.tools = tools.NewDefaultLoader()
		}
	}
	if r.bus == nil {
		r.bus = events.NewBus()
	}
	if r.compactor == nil {
		if r.settings.Memory.Enabled {
			c, err := memory.NewSummaryCompactor(completer, memory.ConfigFromSettings(r.settings))
			if err != nil {
				return nil, err
			}
			r.compactor = c
		} else {
			r.compactor = memory.Noop{}
		}
	}

	return r, nil
}

func (r *Runner) Store() *datapoints.Store {
	return r.store
}

// WebsiteScrape researches entity by scraping website and the pages it links to.
func (r *Runner) WebsiteScrape(ctx context.Context, entity string, website string) (*agent.Result, error) {
	return r.run(ctx, WebsiteToolSet, prompts.WebsiteScrapeSystem, prompts.WebsiteScrapeUser, map[string]interface{}{
		"entity_name": entity,
		"website":     website,
	})
}

// InternetSearchScrape researches entity with web searches.
func (r *Runner) InternetSearchScrape(ctx context.Context, entity string) (*agent.Result, error) {
	return r.run(ctx, InternetToolSet, prompts.InternetSearchScrapeSystem, prompts.InternetSearchScrapeUser, map[string]interface{}{
		"entity_name": entity,
	})
}

// Prepare loads the tool set and renders the prompts of a run. Configuration
// errors surface here, before any completion call.
func (r *Runner) Prepare(toolSet string, systemPrompt string, userPrompt string, vars map[string]interface{}) (*agent.Agent, agent.RunInput, error) {
	missing := r.store.Missing()
	if len(missing) == 0 {
		return nil, agent.RunInput{}, ErrNoMissingDataPoints
	}

	names, err := r.tools.LoadToolSet(toolSet)
	if err != nil {
		return nil, agent.RunInput{}, err
	}
	schemas, err := r.tools.LoadSchemas(names)
	if err != nil {
		return nil, agent.RunInput{}, err
	}

	all, err := builtin.NewRegistry(builtin.Deps{
		Store:     r.store,
		Searcher:  r.searcher,
		Scraper:   r.scraper,
		Completer: r.completer,
		Model:     r.settings.OpenAI.Model,
		Prompts:   r.prompts,
	})
	if err != nil {
		return nil, agent.RunInput{}, err
	}
	reg, err := all.Subset(names...)
	if err != nil {
		return nil, agent.RunInput{}, errors.Wrapf(err, "tool set %s", toolSet)
	}

	links, err := json.Marshal(r.store.ScrapedLinks())
	if err != nil {
		return nil, agent.RunInput{}, err
	}
	keys, err := json.Marshal(missing)
	if err != nil {
		return nil, agent.RunInput{}, err
	}
	vars_ := map[string]interface{}{
		"links_scraped":       string(links),
		"data_keys_to_search": string(keys),
	}
	for k, v := range vars {
		vars_[k] = v
	}

	system, err := r.prompts.Load(systemPrompt, vars_)
	if err != nil {
		return nil, agent.RunInput{}, err
	}
	user, err := r.prompts.Load(userPrompt, vars_)
	if err != nil {
		return nil, agent.RunInput{}, err
	}

	opts := []agent.Option{
		agent.WithBus(r.bus),
		agent.WithCompactor(r.compactor),
		agent.WithModel(r.settings.OpenAI.Model),
		agent.WithMaxTurns(r.settings.Agent.MaxTurns),
	}
	if r.settings.Agent.FirstToolCallOnly {
		opts = append(opts, agent.WithFirstToolCallOnly())
	}
	if r.settings.Agent.AbortOnToolError {
		opts = append(opts, agent.WithAbortOnToolError())
	}
	if r.settings.Agent.ValidateArguments {
		e, err := tools.NewExecutor(tools.WithArgumentValidation(schemas))
		if err != nil {
			return nil, agent.RunInput{}, err
		}
		opts = append(opts, agent.WithExecutor(e))
	}

	a, err := agent.New(r.completer, reg, schemas, opts...)
	if err != nil {
		return nil, agent.RunInput{}, err
	}

	return a, agent.RunInput{
		SystemPrompt: system,
		UserPrompt:   user,
		Plan:         r.settings.Agent.Plan,
	}, nil
}

func (r *Runner) run(ctx context.Context, toolSet string, systemPrompt string, userPrompt string, vars map[string]interface{}) (*agent.Result, error) {
	a, in, err := r.Prepare(toolSet, systemPrompt, userPrompt, vars)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("tool_set", toolSet).
		Strs("missing", r.store.Missing()).
		Msg("starting run")

	res, err := a.Run(ctx, in)
	if res != nil {
		log.Info().
			Str("run_id", res.RunID.String()).
			Str("state", res.State.String()).
			Int("turns", res.Turns).
			Strs("missing", r.store.Missing()).
			Msg("run ended")
	}
	return res, err
}
