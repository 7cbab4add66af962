package helpers

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillAdapterWritesFields(t *testing.T) {
	buf := &bytes.Buffer{}
	adapter := NewWatermill(zerolog.New(buf).Level(zerolog.DebugLevel))

	adapter.With(watermill.LogFields{"topic": "agent_response"}).
		Info("subscribed", watermill.LogFields{"handler_name": "log-agent_response", "pubsub": "gochannel"})

	out := buf.String()
	assert.Contains(t, out, `"level":"debug"`)
	assert.Contains(t, out, `"event":"agent_response"`)
	assert.Contains(t, out, `"handler":"log-agent_response"`)
	assert.Contains(t, out, `"pubsub":"gochannel"`)
	assert.Contains(t, out, `"component":"watermill"`)
	assert.NotContains(t, out, `"topic"`)
}

func TestWatermillAdapterNamesRunAndMessage(t *testing.T) {
	buf := &bytes.Buffer{}
	adapter := NewWatermill(zerolog.New(buf))

	adapter.Error("handler failed", errors.New("boom"), watermill.LogFields{
		"correlation_id": "run-1",
		"message_uuid":   "m-1",
	})

	out := buf.String()
	assert.Contains(t, out, `"level":"error"`)
	assert.Contains(t, out, `"error":"boom"`)
	assert.Contains(t, out, `"run_id":"run-1"`)
	assert.Contains(t, out, `"message_id":"m-1"`)
	assert.NotContains(t, out, "correlation_id")
}

func TestCorrelationPublisherDecorator(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 10}, watermill.NopLogger{})
	defer func() { _ = pubSub.Close() }()

	msgs, err := pubSub.Subscribe(context.Background(), "topic")
	require.NoError(t, err)

	pub := CorrelationPublisherDecorator{Publisher: pubSub}

	withID := message.NewMessage(watermill.NewUUID(), []byte("{}"))
	withID.SetContext(ContextWithCorrelationID(context.Background(), "run-1"))

	preset := message.NewMessage(watermill.NewUUID(), []byte("{}"))
	preset.Metadata.Set(CorrelationIDMetadataKey, "kept")

	generated := message.NewMessage(watermill.NewUUID(), []byte("{}"))

	require.NoError(t, pub.Publish("topic", withID, preset, generated))

	ids := map[string]string{}
	for i := 0; i < 3; i++ {
		m := <-msgs
		ids[m.UUID] = m.Metadata.Get(CorrelationIDMetadataKey)
		m.Ack()
	}
	assert.Equal(t, "run-1", ids[withID.UUID])
	assert.Equal(t, "kept", ids[preset.UUID])
	assert.True(t, strings.HasPrefix(ids[generated.UUID], "gen_"))
}
