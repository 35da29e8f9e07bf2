package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-resty/resty/v2"

	"github.com/oshokin/safezone/internal/logger"
	pb "github.com/oshokin/safezone/internal/pb/v1"
)

// Webhook client defaults.
const (
	webhookTimeout      = 10 * time.Second
	webhookRetries      = 3
	webhookRetryWait    = time.Second
	webhookRetryMaxWait = 5 * time.Second
)

// errWebhookStatus is returned for non-2xx webhook responses.
var errWebhookStatus = errors.New("webhook returned error status")

// LogSink writes notifications to the application log.
type LogSink struct{}

// Name implements Sink.
func (LogSink) Name() string { return "log" }

// Deliver implements Sink.
func (LogSink) Deliver(ctx context.Context, n Notification) error {
	logger.WarnKV(ctx, n.Subject(),
		"event_id", n.EventID,
		"owner_id", n.OwnerID,
		"entity_id", n.EntityID,
		"level", n.Level.String(),
		"zone", n.Context.Zone.String(),
		"location", n.Where(),
		"trigger", n.Context.Trigger.String())

	return nil
}

// WebhookSink posts notifications as JSON to an HTTP endpoint, typically the mail service.
type WebhookSink struct {
	// client is the configured HTTP client.
	client *resty.Client
	// url is the endpoint receiving notifications.
	url string
}

// NewWebhookSink creates a sink posting to url, authenticating with a bearer token when set.
func NewWebhookSink(url, token string) *WebhookSink {
	client := resty.New().
		SetTimeout(webhookTimeout).
		SetRetryCount(webhookRetries).
		SetRetryWaitTime(webhookRetryWait).
		SetRetryMaxWaitTime(webhookRetryMaxWait).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if token != "" {
		client.SetAuthToken(token)
	}

	return &WebhookSink{
		client: client,
		url:    url,
	}
}

// Name implements Sink.
func (s *WebhookSink) Name() string { return "webhook" }

// Deliver implements Sink. The event id is sent as Idempotency-Key.
func (s *WebhookSink) Deliver(ctx context.Context, n Notification) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", n.EventID).
		SetBody(n.Fields()).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("%w: %s", errWebhookStatus, resp.Status())
	}

	return nil
}

// RedisStreamSink appends notifications to a Redis stream with XADD.
type RedisStreamSink struct {
	// client is the Redis connection pool.
	client redis.UniversalClient
	// stream is the stream key.
	stream string
}

// NewRedisStreamSink creates a sink appending to stream.
func NewRedisStreamSink(client redis.UniversalClient, stream string) *RedisStreamSink {
	return &RedisStreamSink{
		client: client,
		stream: stream,
	}
}

// Name implements Sink.
func (s *RedisStreamSink) Name() string { return "redis" }

// Deliver implements Sink. Values are stored as strings.
func (s *RedisStreamSink) Deliver(ctx context.Context, n Notification) error {
	fields := n.Fields()

	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = fmt.Sprint(v)
	}

	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("append to stream %s: %w", s.stream, err)
	}

	return nil
}

// Publisher publishes a payload to a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// MQTTSink publishes notifications as JSON to <prefix>/<ownerID>/alarms.
type MQTTSink struct {
	// publisher is the broker connection.
	publisher Publisher
	// prefix is the topic prefix.
	prefix string
}

// NewMQTTSink creates a sink publishing under prefix.
func NewMQTTSink(publisher Publisher, prefix string) *MQTTSink {
	return &MQTTSink{
		publisher: publisher,
		prefix:    strings.TrimSuffix(prefix, "/"),
	}
}

// Name implements Sink.
func (s *MQTTSink) Name() string { return "mqtt" }

// Topic returns the topic notifications for owner are published to.
func (s *MQTTSink) Topic(ownerID string) string {
	return s.prefix + "/" + ownerID + "/alarms"
}

// Deliver implements Sink.
func (s *MQTTSink) Deliver(_ context.Context, n Notification) error {
	msg, err := pb.NewRequest(n.Fields())
	if err != nil {
		return err
	}

	payload, err := pb.MarshalJSON(msg)
	if err != nil {
		return err
	}

	if err = s.publisher.Publish(s.Topic(n.OwnerID), payload); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}

	return nil
}
