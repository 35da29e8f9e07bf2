package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/safezone/internal/domain/alarm"
	"github.com/oshokin/safezone/internal/domain/geofence"
	pb "github.com/oshokin/safezone/internal/pb/v1"
)

// recordingSink stores delivered notifications.
type recordingSink struct {
	// mu protects got.
	mu sync.Mutex
	// got are the delivered notifications.
	got []Notification
	// err is returned from Deliver when set.
	err error
}

// Name implements Sink.
func (s *recordingSink) Name() string { return "recording" }

// Deliver implements Sink.
func (s *recordingSink) Deliver(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.got = append(s.got, n)

	return s.err
}

// delivered returns a copy of the delivered notifications.
func (s *recordingSink) delivered() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Notification(nil), s.got...)
}

// fakeGeocoder resolves every point to a fixed name, or fails.
type fakeGeocoder struct {
	// name is the returned place name.
	name string
	// err is returned when set.
	err error
}

// Reverse implements Geocoder.
func (g fakeGeocoder) Reverse(context.Context, geofence.Point) (string, error) {
	return g.name, g.err
}

// sampleNotification returns a danger notification with a position.
func sampleNotification() Notification {
	return Notification{
		OwnerID:  "owner-1",
		EntityID: "cow-1",
		Level:    alarm.LevelDanger,
		Context: Context{
			EntityName:  "Bella",
			FarmID:      "farm-1",
			Zone:        geofence.ZoneDanger,
			Position:    &geofence.Point{Lat: 51.02, Lng: 4.005},
			BreachCount: 1,
			FiredAt:     time.Date(2026, 3, 1, 6, 0, 40, 0, time.UTC),
			Trigger:     TriggerIngest,
		},
	}
}

// TestQueue_DeliversToAllSinks verifies fan-out, event ids and enrichment.
func TestQueue_DeliversToAllSinks(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			first, second = new(recordingSink), &recordingSink{err: errors.New("smtp down")}
			q             = NewQueue(4, []Sink{second, first}, WithGeocoder(fakeGeocoder{name: "Meadow Lane, Ghent"}))
			ctx, cancel   = context.WithCancel(context.Background())
			done          = make(chan error, 1)
		)

		go func() { done <- q.Run(ctx) }()

		q.Notify(ctx, sampleNotification())
		synctest.Wait()

		got := first.delivered()
		require.Len(t, got, 1)
		require.NotEmpty(t, got[0].EventID)
		require.Equal(t, "Meadow Lane, Ghent", got[0].Context.Location)
		require.Len(t, second.delivered(), 1, "a failing sink is still attempted")
		require.EqualValues(t, 1, q.Delivered())

		cancel()
		require.NoError(t, <-done)
	})
}

// TestQueue_GeocoderFailureFallsBack verifies the coordinate fallback.
func TestQueue_GeocoderFailureFallsBack(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			sink        = new(recordingSink)
			q           = NewQueue(1, []Sink{sink}, WithGeocoder(fakeGeocoder{err: errors.New("timeout")}))
			ctx, cancel = context.WithCancel(context.Background())
		)

		defer cancel()

		go func() { _ = q.Run(ctx) }()

		n := sampleNotification()
		n.EventID = "evt-1"
		q.Notify(ctx, n)
		synctest.Wait()

		got := sink.delivered()
		require.Len(t, got, 1)
		require.Equal(t, "evt-1", got[0].EventID)
		require.Empty(t, got[0].Context.Location)
		require.Equal(t, "51.020000, 4.005000", got[0].Where())
	})
}

// TestQueue_DropsWhenFull verifies that Notify never blocks.
func TestQueue_DropsWhenFull(t *testing.T) {
	t.Parallel()

	q := NewQueue(1, nil)

	q.Notify(context.Background(), sampleNotification())
	q.Notify(context.Background(), sampleNotification())
	q.Notify(context.Background(), sampleNotification())

	require.EqualValues(t, 2, q.Dropped())
}

// TestQueue_RateLimit verifies that deliveries are spaced by the limiter.
func TestQueue_RateLimit(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			sink        = new(recordingSink)
			q           = NewQueue(8, []Sink{sink}, WithRateLimit(1, 1))
			ctx, cancel = context.WithCancel(context.Background())
		)

		defer cancel()

		go func() { _ = q.Run(ctx) }()

		for range 3 {
			q.Notify(ctx, sampleNotification())
		}

		synctest.Wait()
		require.Len(t, sink.delivered(), 1)

		time.Sleep(3 * time.Second)
		synctest.Wait()
		require.Len(t, sink.delivered(), 3)
	})
}

// TestNotification_Subject verifies one subject per level.
func TestNotification_Subject(t *testing.T) {
	t.Parallel()

	n := sampleNotification()
	require.Equal(t, "Bella is far outside the fence", n.Subject())

	n.Level = alarm.LevelWarning
	n.Context.Dwell = 26 * time.Second
	require.Equal(t, "Bella has been outside the fence for 26s", n.Subject())

	n.Level = alarm.LevelAudio
	n.Context.EntityName = ""
	require.Equal(t, "Audible alarm raised for cow-1", n.Subject())
}

// TestWebhookSink verifies the request sent to the webhook.
func TestWebhookSink(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		headers http.Header
		body    []byte
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()

		headers = r.Header.Clone()
		body, _ = io.ReadAll(r.Body)

		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	n := sampleNotification()
	n.EventID = "evt-42"

	require.NoError(t, NewWebhookSink(srv.URL, "secret").Deliver(context.Background(), n))

	mu.Lock()
	defer mu.Unlock()

	require.Equal(t, "evt-42", headers.Get("Idempotency-Key"))
	require.Equal(t, "Bearer secret", headers.Get("Authorization"))

	msg, err := pb.UnmarshalJSON(body)
	require.NoError(t, err)
	require.Equal(t, "danger", pb.GetString(msg, "level"))
	require.Equal(t, "cow-1", pb.GetString(msg, "entity_id"))
}

// TestWebhookSink_ErrorStatus verifies that 4xx responses are reported.
func TestWebhookSink_ErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	err := NewWebhookSink(srv.URL, "").Deliver(context.Background(), sampleNotification())
	require.ErrorIs(t, err, errWebhookStatus)
}

// TestRedisStreamSink verifies XADD against miniredis.
func TestRedisStreamSink(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	n := sampleNotification()
	n.EventID = "evt-7"

	require.NoError(t, NewRedisStreamSink(client, "safezone:alarms").Deliver(context.Background(), n))

	entries, err := client.XRange(context.Background(), "safezone:alarms", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "evt-7", entries[0].Values["event_id"])
	require.Equal(t, "3", entries[0].Values["level_number"])
}

// fakePublisher records published messages.
type fakePublisher struct {
	// topic is the last topic.
	topic string
	// payload is the last payload.
	payload []byte
}

// Publish implements Publisher.
func (p *fakePublisher) Publish(topic string, payload []byte) error {
	p.topic, p.payload = topic, payload

	return nil
}

// TestMQTTSink verifies the topic layout and payload.
func TestMQTTSink(t *testing.T) {
	t.Parallel()

	pub := new(fakePublisher)
	require.NoError(t, NewMQTTSink(pub, "safezone/owners/").Deliver(context.Background(), sampleNotification()))

	require.Equal(t, "safezone/owners/owner-1/alarms", pub.topic)

	msg, err := pb.UnmarshalJSON(pub.payload)
	require.NoError(t, err)
	require.Equal(t, "Bella", pb.GetString(msg, "entity_name"))
}
