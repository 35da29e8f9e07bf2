package collar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/safezone/internal/broker"
	"github.com/oshokin/safezone/internal/domain/tracking"
	"github.com/oshokin/safezone/internal/logger"
	pb "github.com/oshokin/safezone/internal/pb/v1"
	"github.com/oshokin/safezone/internal/service/engine"
)

var (
	// errTopicMismatch is returned when a topic does not match the filter.
	errTopicMismatch = errors.New("topic does not match filter")
	// errEntityMismatch is returned when the payload names another entity than the topic.
	errEntityMismatch = errors.New("payload entity does not match topic")
)

// Ingester accepts positions.
type Ingester interface {
	Ingest(ctx context.Context, p tracking.Position) (*engine.IngestResult, error)
}

// Subscriber is the broker side of the listener.
type Subscriber interface {
	Subscribe(ctx context.Context, filter string, handler broker.Handler) error
	Unsubscribe(filters ...string) error
}

// Listener subscribes to collar topics and ingests every valid report.
type Listener struct {
	// ingester receives decoded positions.
	ingester Ingester
	// subscriber delivers broker messages.
	subscriber Subscriber
	// filter is the subscription filter with one "+" for the entity id.
	filter string
	// now stamps reports without a timestamp.
	now func() time.Time
}

// NewListener creates a listener for filter.
func NewListener(ingester Ingester, subscriber Subscriber, filter string) *Listener {
	return &Listener{
		ingester:   ingester,
		subscriber: subscriber,
		filter:     filter,
		now:        time.Now,
	}
}

// Run subscribes and blocks until ctx is done.
func (l *Listener) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "collar")

	if err := l.subscriber.Subscribe(ctx, l.filter, l.Handle); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Listening for collar positions", "filter", l.filter)

	<-ctx.Done()

	if err := l.subscriber.Unsubscribe(l.filter); err != nil {
		logger.WarnKV(ctx, "Failed to unsubscribe", "filter", l.filter, "error", err)
	}

	return nil
}

// Handle decodes one collar message and ingests it.
func (l *Listener) Handle(ctx context.Context, topic string, payload []byte) error {
	entityID, err := EntityIDFromTopic(l.filter, topic)
	if err != nil {
		return err
	}

	p, err := decode(entityID, payload)
	if err != nil {
		return err
	}

	if p.Producer == tracking.ProducerUnknown {
		p.Producer = tracking.ProducerCollar
	}

	res, err := l.ingester.Ingest(ctx, pb.StampPosition(p, l.now()))
	if err != nil {
		return fmt.Errorf("ingest position of %s: %w", entityID, err)
	}

	logger.DebugKV(ctx, "Collar position ingested",
		"entity_id", entityID,
		"zone", res.Zone.String(),
		"fired", len(res.Fired))

	return nil
}

// decode parses the JSON payload, taking the entity id from the topic when absent.
func decode(entityID string, payload []byte) (tracking.Position, error) {
	s, err := pb.UnmarshalJSON(payload)
	if err != nil {
		return tracking.Position{}, err
	}

	if s.Fields == nil {
		s.Fields = make(map[string]*structpb.Value)
	}

	switch named := pb.GetString(s, pb.KeyEntityID); named {
	case "":
		s.Fields[pb.KeyEntityID] = structpb.NewStringValue(entityID)
	case entityID:
	default:
		return tracking.Position{}, fmt.Errorf("%w: %q on topic of %q", errEntityMismatch, named, entityID)
	}

	return pb.DecodePosition(s)
}

// EntityIDFromTopic returns the topic level matched by the "+" of filter.
func EntityIDFromTopic(filter, topic string) (string, error) {
	var (
		filterLevels = strings.Split(filter, "/")
		topicLevels  = strings.Split(topic, "/")
		entityID     string
	)

	if len(filterLevels) != len(topicLevels) {
		return "", fmt.Errorf("%w: %s", errTopicMismatch, topic)
	}

	for i, level := range filterLevels {
		switch level {
		case "+":
			if entityID == "" {
				entityID = topicLevels[i]
			}
		case topicLevels[i]:
		default:
			return "", fmt.Errorf("%w: %s", errTopicMismatch, topic)
		}
	}

	if entityID == "" {
		return "", fmt.Errorf("%w: %s", errTopicMismatch, topic)
	}

	return entityID, nil
}
