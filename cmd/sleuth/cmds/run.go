package cmds

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-go-golems/sleuth/pkg/agent"
	"github.com/go-go-golems/sleuth/pkg/datapoints"
	"github.com/go-go-golems/sleuth/pkg/events"
	"github.com/go-go-golems/sleuth/pkg/firecrawl"
	"github.com/go-go-golems/sleuth/pkg/llm"
	"github.com/go-go-golems/sleuth/pkg/printer"
	"github.com/go-go-golems/sleuth/pkg/scraper"
	"github.com/go-go-golems/sleuth/pkg/settings"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

type runFlags struct {
	dataPointsFile   string
	dataPoints       []string
	plan             bool
	output           string
	events           bool
	quiet            bool
	saveConversation string
}

func (f *runFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.dataPointsFile, "data-points", "", "YAML or JSON file listing the data points to research")
	fs.StringSliceVar(&f.dataPoints, "data-point", nil, "Name of a data point to research (repeatable)")
	fs.BoolVar(&f.plan, "plan", false, "Ask the model for a plan before using tools")
	fs.StringVar(&f.output, "output", "text", "Output format of the data points (text, json, yaml)")
	fs.BoolVar(&f.events, "events", false, "Route agent events through the watermill router and log them")
	fs.BoolVar(&f.quiet, "quiet", false, "Do not echo the conversation")
	fs.StringVar(&f.saveConversation, "save-conversation", "", "Write the final conversation to this JSON file")
}

func loadSettings(f *runFlags) (*settings.Settings, error) {
	s, err := settings.FromViper(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if f.plan {
		s.Agent.Plan = true
	}
	if f.dataPointsFile != "" {
		s.DataPointsFile = f.dataPointsFile
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func loadStore(s *settings.Settings, names []string) (*datapoints.Store, error) {
	switch {
	case s.DataPointsFile != "" && len(names) > 0:
		return nil, errors.New("use either --data-points or --data-point, not both")
	case s.DataPointsFile != "":
		return datapoints.LoadFile(s.DataPointsFile)
	case len(names) > 0:
		return datapoints.NewFromNames(names...)
	default:
		return nil, errors.New("no data points given, use --data-points or --data-point")
	}
}

// research wires settings, store, tools and observers together and hands
// the runner to run.
func research(
	ctx context.Context,
	w io.Writer,
	f *runFlags,
	needsSearch bool,
	run func(ctx context.Context, r *scraper.Runner) (*agent.Result, error),
) error {
	s, err := loadSettings(f)
	if err != nil {
		return err
	}
	store, err := loadStore(s, f.dataPoints)
	if err != nil {
		return err
	}

	completer := llm.NewRetryingCompleter(llm.NewOpenAICompleter(&s.OpenAI))
	bus := events.NewBus()
	opts := []scraper.Option{
		scraper.WithSettings(s),
		scraper.WithBus(bus),
	}

	if s.Firecrawl.APIKey != "" {
		fc := firecrawl.NewClient(&s.Firecrawl)
		opts = append(opts, scraper.WithSearcher(fc), scraper.WithScraper(fc))
	} else {
		if needsSearch {
			return errors.New("searching needs a Firecrawl API key (set FIRECRAWL_API_KEY or firecrawl.api-key)")
		}
		log.Info().Msg("no Firecrawl API key configured, scraping pages directly")
		opts = append(opts, scraper.WithScraper(firecrawl.NewDirectScraper()))
	}

	if !f.quiet {
		var popts []printer.Option
		if isatty.IsTerminal(os.Stdout.Fd()) {
			popts = append(popts, printer.WithMarkdown("dark"), printer.WithMaxContentLength(500))
		}
		printer.New(os.Stdout, popts...).Subscribe(bus)
	}

	runner, err := scraper.NewRunner(store, completer, opts...)
	if err != nil {
		return err
	}

	var res *agent.Result
	runErr := withEventRouter(ctx, f.events, bus, func(ctx context.Context) error {
		var err error
		res, err = run(ctx, runner)
		return err
	})

	if errors.Is(runErr, scraper.ErrNoMissingDataPoints) {
		_, err := fmt.Fprintln(w, "No data points to search for")
		return err
	}

	if res != nil && f.saveConversation != "" {
		if err := res.Conversation.SaveToFile(f.saveConversation); err != nil {
			log.Error().Err(err).Str("file", f.saveConversation).Msg("could not save conversation")
		}
	}

	if err := WriteDataPoints(w, f.output, store.State()); err != nil {
		return err
	}
	return runErr
}

// withEventRouter runs fn, with bus events forwarded to a watermill router
// when enabled. The router is stopped once fn returns.
func withEventRouter(ctx context.Context, enabled bool, bus *events.Bus, fn func(ctx context.Context) error) error {
	if !enabled {
		return fn(ctx)
	}

	router, err := events.NewRouter(events.WithVerbose(viper.GetBool("verbose")))
	if err != nil {
		return err
	}
	router.AddLogHandlers()
	events.NewWatermillSink(router.Publisher).Attach(bus)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return router.Run(ctx)
	})
	eg.Go(func() error {
		defer func() {
			_ = router.Close()
		}()
		<-router.Running()
		return fn(ctx)
	})

	return eg.Wait()
}

func NewWebsiteCommand() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "website <entity> <url>",
		Short: "Research data points by scraping the website of an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return research(cmd.Context(), cmd.OutOrStdout(), f, false,
				func(ctx context.Context, r *scraper.Runner) (*agent.Result, error) {
					return r.WebsiteScrape(ctx, args[0], args[1])
				})
		},
	}
	f.register(cmd.Flags())
	return cmd
}

func NewSearchCommand() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "search <entity>",
		Short: "Research data points by searching the internet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return research(cmd.Context(), cmd.OutOrStdout(), f, true,
				func(ctx context.Context, r *scraper.Runner) (*agent.Result, error) {
					return r.InternetSearchScrape(ctx, args[0])
				})
		},
	}
	f.register(cmd.Flags())
	return cmd
}
