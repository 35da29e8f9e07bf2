package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/oshokin/safezone/internal/config"
	"github.com/oshokin/safezone/internal/logger"
)

// Delivery settings.
const (
	// qosAtLeastOnce is used for positions and alarms.
	qosAtLeastOnce byte = 1
	// disconnectQuiesce is how long in-flight work may take on disconnect, in ms.
	disconnectQuiesce = 250
)

var (
	// errBrokerRequired is returned when no broker URL is configured.
	errBrokerRequired = errors.New("mqtt broker is required")
	// errTimeout is returned when the broker does not acknowledge in time.
	errTimeout = errors.New("mqtt operation timed out")
)

// Handler processes one message. Errors are logged and the message is dropped.
type Handler func(ctx context.Context, topic string, payload []byte) error

// Client is a connected MQTT session.
type Client struct {
	// client is the underlying paho client.
	client mqtt.Client
	// timeout bounds every broker round trip.
	timeout time.Duration
}

// Connect dials the broker described by cfg.
func Connect(ctx context.Context, cfg config.MQTT) (*Client, error) {
	if cfg.Broker == "" {
		return nil, errBrokerRequired
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "safezone-" + uuid.NewString()
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetConnectTimeout(config.DefaultTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.WarnKV(ctx, "MQTT connection lost", "broker", cfg.Broker, "error", err)
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			logger.InfoKV(ctx, "MQTT connected", "broker", cfg.Broker, "client_id", clientID)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}

	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	c := &Client{
		client:  mqtt.NewClient(opts),
		timeout: config.DefaultTimeout,
	}

	if err := c.wait(c.client.Connect()); err != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", cfg.Broker, err)
	}

	return c, nil
}

// wait blocks until the token completes or the timeout elapses.
func (c *Client) wait(token mqtt.Token) error {
	if !token.WaitTimeout(c.timeout) {
		return errTimeout
	}

	return token.Error()
}

// Publish sends a payload to a topic.
func (c *Client) Publish(topic string, payload []byte) error {
	if err := c.wait(c.client.Publish(topic, qosAtLeastOnce, false, payload)); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	return nil
}

// Subscribe routes messages matching filter to handler until Unsubscribe.
func (c *Client) Subscribe(ctx context.Context, filter string, handler Handler) error {
	callback := func(_ mqtt.Client, msg mqtt.Message) {
		if err := handler(ctx, msg.Topic(), msg.Payload()); err != nil {
			logger.WarnKV(ctx, "MQTT message dropped", "topic", msg.Topic(), "error", err)
		}
	}

	if err := c.wait(c.client.Subscribe(filter, qosAtLeastOnce, callback)); err != nil {
		return fmt.Errorf("subscribe to %s: %w", filter, err)
	}

	return nil
}

// Unsubscribe stops routing messages for the filters.
func (c *Client) Unsubscribe(filters ...string) error {
	if err := c.wait(c.client.Unsubscribe(filters...)); err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}

	return nil
}

// Close disconnects from the broker.
func (c *Client) Close() {
	c.client.Disconnect(disconnectQuiesce)
}
