package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

var errPublishTimeout = errors.New("mqtt publish timed out")

// Handler processes one decoded transport message. Errors mean the message
// was rejected; the consumer logs them and keeps consuming.
type Handler func(ctx context.Context, topic string, payload []byte) error

// Consumer subscribes to the sensor topics on an external MQTT broker and
// feeds each payload into the pipeline. Reconnection and delivery retries are
// the broker client's responsibility, not the pipeline's.
type Consumer struct {
	client  mqtt.Client
	topics  []string
	handler Handler

	ctx    context.Context
	cancel context.CancelFunc
}

// NewConsumer creates a Consumer listening on "<prefix>/+" and
// "<prefix>/esp32/+", the topic layout the ESP32 firmware publishes to.
func NewConsumer(brokerURL, topicPrefix string, handler Handler) *Consumer {
	c := &Consumer{
		topics: []string{
			topicPrefix + "/+",
			topicPrefix + "/esp32/+",
		},
		handler: handler,
	}

	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID("noise-aggregator-" + uuid.NewString()[:8]).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("ingest: connection lost: %v", err)
		}).
		SetOnConnectHandler(func(client mqtt.Client) {
			// Runs on every (re)connect so subscriptions survive broker restarts.
			for _, topic := range c.topics {
				if token := client.Subscribe(topic, 1, c.onMessage); token.Wait() && token.Error() != nil {
					log.Printf("ingest: subscribe %s failed: %v", topic, token.Error())
					continue
				}
				log.Printf("ingest: subscribed to %s", topic)
			}
		})

	c.client = mqtt.NewClient(opts)
	return c
}

func (c *Consumer) onMessage(_ mqtt.Client, msg mqtt.Message) {
	if err := c.handler(c.ctx, msg.Topic(), msg.Payload()); err != nil {
		// One bad reading never aborts ingestion.
		log.Printf("ingest: reading rejected on %s: %v", msg.Topic(), err)
	}
}

// Start connects to the broker. The context bounds the lifetime of message
// handling; Stop (or cancelling the context's parent) ends it.
func (c *Consumer) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect to broker: %w", token.Error())
	}
	return nil
}

// Stop disconnects from the broker, allowing in-flight work to finish.
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.client.Disconnect(250)
}

// Connected reports whether the broker connection is currently up.
func (c *Consumer) Connected() bool {
	return c.client.IsConnectionOpen()
}

// Publisher republishes processed grids on the shared broker connection.
// A circuit breaker keeps repeated broker failures from slowing down the
// recompute path and exposes a degraded state to the health endpoints.
type Publisher struct {
	client  mqtt.Client
	topic   string
	circuit *gobreaker.CircuitBreaker
}

// Publisher returns a Publisher for the given topic over this consumer's
// broker connection.
func (c *Consumer) Publisher(topic string) *Publisher {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "mqtt-publish",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Publisher{
		client:  c.client,
		topic:   topic,
		circuit: cb,
	}
}

// Publish sends payload to the processed topic. It fails fast while the
// circuit is open.
func (p *Publisher) Publish(payload []byte) error {
	_, err := p.circuit.Execute(func() (interface{}, error) {
		token := p.client.Publish(p.topic, 1, false, payload)
		if !token.WaitTimeout(5 * time.Second) {
			return nil, errPublishTimeout
		}
		return nil, token.Error()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("transport degraded: %w", err)
	}
	return err
}

// Degraded reports whether the outbound path is currently failing.
func (p *Publisher) Degraded() bool {
	return p.circuit.State() != gobreaker.StateClosed
}
