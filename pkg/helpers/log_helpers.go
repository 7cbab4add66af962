package helpers

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/lithammer/shortuuid/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// WatermillZerologAdapter routes watermill's logs into zerolog. Watermill's
// field names are rewritten to the keys the rest of sleuth logs with, so a
// router line and an agent line about the same event can be matched up.
type WatermillZerologAdapter struct {
	logger zerolog.Logger
}

var _ watermill.LoggerAdapter = &WatermillZerologAdapter{}

// watermillFieldKeys maps watermill field names to sleuth's. Topics are
// event names.
var watermillFieldKeys = map[string]string{
	"topic":          "event",
	"handler_name":   "handler",
	"message_uuid":   "message_id",
	"correlation_id": "run_id",
}

func NewWatermill(logger zerolog.Logger) *WatermillZerologAdapter {
	return &WatermillZerologAdapter{
		logger: logger.With().Str("component", "watermill").Logger(),
	}
}

func eventFields(fields watermill.LogFields) map[string]interface{} {
	ret := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if renamed, ok := watermillFieldKeys[k]; ok {
			k = renamed
		}
		ret[k] = v
	}
	return ret
}

func (w *WatermillZerologAdapter) Error(msg string, err error, fields watermill.LogFields) {
	w.logger.Error().Err(err).Fields(eventFields(fields)).Msg(msg)
}

// Info is logged at debug level, watermill reports every subscriber and
// handler start at info.
func (w *WatermillZerologAdapter) Info(msg string, fields watermill.LogFields) {
	w.logger.Debug().Fields(eventFields(fields)).Msg(msg)
}

func (w *WatermillZerologAdapter) Debug(msg string, fields watermill.LogFields) {
	w.logger.Debug().Fields(eventFields(fields)).Msg(msg)
}

func (w *WatermillZerologAdapter) Trace(msg string, fields watermill.LogFields) {
	w.logger.Trace().Fields(eventFields(fields)).Msg(msg)
}

func (w *WatermillZerologAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &WatermillZerologAdapter{
		logger: w.logger.With().Fields(eventFields(fields)).Logger(),
	}
}

const CorrelationIDMetadataKey = "correlation_id"

type correlationIDKeyType string

const correlationIDKey correlationIDKeyType = "correlation_id"

func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// CorrelationIDFromContext returns the id stored in ctx. Without one, a new
// id prefixed with "gen_" is returned so that missing propagation shows up
// in the logs.
func CorrelationIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(correlationIDKey).(string); ok && v != "" {
		return v
	}

	log.Debug().Msg("no correlation id in context, generating one")
	return "gen_" + shortuuid.New()
}

// CorrelationPublisherDecorator stamps outgoing messages with the
// correlation id of their context, keeping ids that are already set.
type CorrelationPublisherDecorator struct {
	message.Publisher
}

func (c CorrelationPublisherDecorator) Publish(topic string, messages ...*message.Message) error {
	for _, msg := range messages {
		if msg.Metadata.Get(CorrelationIDMetadataKey) != "" {
			continue
		}
		msg.Metadata.Set(CorrelationIDMetadataKey, CorrelationIDFromContext(msg.Context()))
	}

	return c.Publisher.Publish(topic, messages...)
}
