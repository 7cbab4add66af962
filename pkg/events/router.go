package events

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/go-go-golems/sleuth/pkg/helpers"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Router runs watermill handlers over an in-process gochannel pubsub.
// Events reach it through a WatermillSink attached to the run's Bus.
type Router struct {
	logger     watermill.LoggerAdapter
	Publisher  message.Publisher
	Subscriber message.Subscriber
	router     *message.Router
	verbose    bool
}

type RouterOption func(*Router)

func WithLogger(logger watermill.LoggerAdapter) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithVerbose logs watermill internals through zerolog and includes full
// payloads in LogEvents.
func WithVerbose(verbose bool) RouterOption {
	return func(r *Router) {
		r.verbose = verbose
		if verbose {
			r.logger = helpers.NewWatermill(log.Logger)
		}
	}
}

func NewRouter(options ...RouterOption) (*Router, error) {
	ret := &Router{
		logger: watermill.NopLogger{},
	}
	for _, o := range options {
		o(ret)
	}

	goPubSub := gochannel.NewGoChannel(gochannel.Config{
		BlockPublishUntilSubscriberAck: true,
	}, ret.logger)
	ret.Publisher = helpers.CorrelationPublisherDecorator{Publisher: goPubSub}
	ret.Subscriber = goPubSub

	router, err := message.NewRouter(message.RouterConfig{}, ret.logger)
	if err != nil {
		return nil, err
	}
	ret.router = router

	return ret, nil
}

func (r *Router) AddHandler(name string, topic string, f func(msg *message.Message) error) {
	r.router.AddNoPublisherHandler(name, topic, r.Subscriber, f)
}

// AddLogHandlers logs every event topic with zerolog.
func (r *Router) AddLogHandlers() {
	for _, name := range AllEventNames {
		r.AddHandler("log-"+string(name), string(name), r.LogEvent)
	}
}

func (r *Router) LogEvent(msg *message.Message) error {
	defer msg.Ack()

	var env Envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		log.Warn().Err(err).Str("message_id", msg.UUID).Msg("could not decode event")
		return nil
	}

	level := zerolog.InfoLevel
	if env.Name == EventAgentCallError || env.Name == EventToolCallErrorResponse {
		level = zerolog.WarnLevel
	}

	e := log.WithLevel(level).
		Str("event", string(env.Name)).
		Object("meta", env.Metadata).
		Str("run_id", msg.Metadata.Get(helpers.CorrelationIDMetadataKey))
	if r.verbose {
		e = e.RawJSON("payload", env.Payload)
	}
	e.Msg("agent event")
	return nil
}

func (r *Router) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

func (r *Router) Running() chan struct{} {
	return r.router.Running()
}

func (r *Router) IsRunning() bool {
	return r.router.IsRunning()
}

func (r *Router) Close() error {
	log.Debug().Msg("closing publisher")
	if err := r.Publisher.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close pubsub")
	}

	log.Debug().Msg("closing router")
	if err := r.router.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close router")
	}
	return nil
}
