package collar

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/safezone/internal/broker"
	"github.com/oshokin/safezone/internal/config"
	"github.com/oshokin/safezone/internal/domain/geofence"
	"github.com/oshokin/safezone/internal/domain/tracking"
	"github.com/oshokin/safezone/internal/service/engine"
)

// recordingIngester stores ingested positions.
type recordingIngester struct {
	// mu protects got.
	mu sync.Mutex
	// got are the received positions.
	got []tracking.Position
	// err is returned from Ingest when set.
	err error
}

// Ingest implements Ingester.
func (r *recordingIngester) Ingest(_ context.Context, p tracking.Position) (*engine.IngestResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}

	r.got = append(r.got, p)

	return &engine.IngestResult{Zone: geofence.ZoneSafe}, nil
}

// fakeSubscriber keeps the registered handler.
type fakeSubscriber struct {
	// mu protects the fields below.
	mu sync.Mutex
	// handler is the registered handler.
	handler broker.Handler
	// unsubscribed lists filters passed to Unsubscribe.
	unsubscribed []string
}

// Subscribe implements Subscriber.
func (s *fakeSubscriber) Subscribe(_ context.Context, _ string, handler broker.Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handler = handler

	return nil
}

// Unsubscribe implements Subscriber.
func (s *fakeSubscriber) Unsubscribe(filters ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unsubscribed = append(s.unsubscribed, filters...)

	return nil
}

// TestEntityIDFromTopic verifies wildcard extraction.
func TestEntityIDFromTopic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		topic   string
		want    string
		wantErr bool
	}{
		{name: "match", topic: "safezone/collars/cow-1/position", want: "cow-1"},
		{name: "other suffix", topic: "safezone/collars/cow-1/battery", wantErr: true},
		{name: "too short", topic: "safezone/collars/cow-1", wantErr: true},
		{name: "empty level", topic: "safezone/collars//position", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := EntityIDFromTopic(config.DefaultPositionTopic, tt.topic)
			if tt.wantErr {
				require.ErrorIs(t, err, errTopicMismatch)

				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

// TestHandle verifies decoding, defaults and rejections.
func TestHandle(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			ctx      = context.Background()
			ingester = new(recordingIngester)
			l        = NewListener(ingester, new(fakeSubscriber), config.DefaultPositionTopic)
			topic    = "safezone/collars/cow-1/position"
		)

		require.NoError(t, l.Handle(ctx, topic, []byte(`{"lat": 51.005, "lng": 4.005}`)))
		require.NoError(t, l.Handle(ctx, topic, []byte(
			`{"entity_id": "cow-1", "lat": 51.02, "lng": 4.005, "timestamp": "2026-03-01T06:00:40Z", "producer": "recovery"}`,
		)))

		err := l.Handle(ctx, topic, []byte(`{"entity_id": "cow-2", "lat": 51.0, "lng": 4.0}`))
		require.ErrorIs(t, err, errEntityMismatch)

		require.Error(t, l.Handle(ctx, topic, []byte(`not json`)))
		require.Error(t, l.Handle(ctx, topic, []byte(`{"lat": 51.0}`)))

		require.Len(t, ingester.got, 2)
		require.Equal(t, "cow-1", ingester.got[0].EntityID)
		require.Equal(t, geofence.Point{Lat: 51.005, Lng: 4.005}, ingester.got[0].Point)
		require.Equal(t, tracking.ProducerCollar, ingester.got[0].Producer)
		require.True(t, ingester.got[0].Timestamp.Equal(time.Now()), "missing timestamps are stamped on arrival")
		require.Equal(t, tracking.ProducerRecovery, ingester.got[1].Producer)
		require.True(t, ingester.got[1].Timestamp.Equal(time.Date(2026, 3, 1, 6, 0, 40, 0, time.UTC)))

		ingester.err = errors.New("store down")
		require.ErrorContains(t, l.Handle(ctx, topic, []byte(`{"lat": 51.0, "lng": 4.0}`)), "store down")
	})
}

// TestRun verifies subscription lifecycle.
func TestRun(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			sub         = new(fakeSubscriber)
			l           = NewListener(new(recordingIngester), sub, config.DefaultPositionTopic)
			ctx, cancel = context.WithCancel(context.Background())
			done        = make(chan error, 1)
		)

		go func() { done <- l.Run(ctx) }()

		synctest.Wait()
		require.NotNil(t, sub.handler)

		cancel()
		require.NoError(t, <-done)
		require.Equal(t, []string{config.DefaultPositionTopic}, sub.unsubscribed)
	})
}
