package events

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
)

const EventNameMetadataKey = "event"

// Envelope is the JSON payload of a forwarded event.
type Envelope struct {
	Name     EventName       `json:"name"`
	Metadata Metadata        `json:"meta"`
	Payload  json.RawMessage `json:"payload"`
}

// WatermillSink forwards bus events to a watermill publisher, one topic per
// event name.
type WatermillSink struct {
	publisher message.Publisher
}

func NewWatermillSink(publisher message.Publisher) *WatermillSink {
	return &WatermillSink{publisher: publisher}
}

func (w *WatermillSink) PublishEvent(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Str("event", string(e.Name())).Msg("failed to marshal event")
		return err
	}
	b, err := json.Marshal(Envelope{
		Name:     e.Name(),
		Metadata: e.Meta(),
		Payload:  payload,
	})
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), b)
	msg.Metadata.Set(EventNameMetadataKey, string(e.Name()))
	msg.SetContext(ctx)

	topic := string(e.Name())
	if err := w.publisher.Publish(topic, msg); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("failed to publish event")
		return err
	}

	log.Trace().Str("topic", topic).Msg("published event")
	return nil
}

// Attach subscribes the sink to every event of bus.
func (w *WatermillSink) Attach(bus *Bus) []SubscriptionID {
	return bus.SubscribeAll(w.PublishEvent)
}
