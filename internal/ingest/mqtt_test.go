package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsumerTopicLayout(t *testing.T) {
	c := NewConsumer("tcp://localhost:1883", "noise", func(ctx context.Context, topic string, payload []byte) error {
		return nil
	})

	assert.Equal(t, []string{"noise/+", "noise/esp32/+"}, c.topics)
}

func TestConsumerConnectedBeforeStart(t *testing.T) {
	c := NewConsumer("tcp://localhost:1883", "noise", func(ctx context.Context, topic string, payload []byte) error {
		return nil
	})

	assert.False(t, c.Connected())
}

type stubMessage struct {
	topic   string
	payload []byte
}

func (m stubMessage) Duplicate() bool   { return false }
func (m stubMessage) Qos() byte         { return 1 }
func (m stubMessage) Retained() bool    { return false }
func (m stubMessage) Topic() string     { return m.topic }
func (m stubMessage) MessageID() uint16 { return 0 }
func (m stubMessage) Payload() []byte   { return m.payload }
func (m stubMessage) Ack()              {}

func TestOnMessageSwallowsHandlerErrors(t *testing.T) {
	calls := 0
	c := NewConsumer("tcp://localhost:1883", "noise", func(ctx context.Context, topic string, payload []byte) error {
		calls++
		return errors.New("rejected")
	})
	c.ctx = context.Background()

	// A rejected reading is logged and dropped; ingestion must not panic.
	c.onMessage(nil, stubMessage{topic: "noise/esp32-01", payload: []byte("{}")})
	assert.Equal(t, 1, calls)
}
