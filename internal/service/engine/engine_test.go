package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/safezone/internal/config"
	"github.com/oshokin/safezone/internal/domain/alarm"
	"github.com/oshokin/safezone/internal/domain/geofence"
	"github.com/oshokin/safezone/internal/domain/tracking"
	entityrepo "github.com/oshokin/safezone/internal/repository/entity"
	"github.com/oshokin/safezone/internal/repository/fence"
	"github.com/oshokin/safezone/internal/service/notify"
)

// Points around the test fence, a square from 51.00/4.00 to 51.01/4.01.
var (
	//nolint:gochecknoglobals // Test fixture.
	safePoint = geofence.Point{Lat: 51.005, Lng: 4.005}
	//nolint:gochecknoglobals // Test fixture.
	warningPoint = geofence.Point{Lat: 51.0102, Lng: 4.005}
	//nolint:gochecknoglobals // Test fixture.
	dangerPoint = geofence.Point{Lat: 51.02, Lng: 4.005}
)

// recordingDispatcher stores notifications instead of delivering them.
type recordingDispatcher struct {
	// mu protects got.
	mu sync.Mutex
	// got are the received notifications.
	got []notify.Notification
}

// Notify implements notify.Dispatcher.
func (d *recordingDispatcher) Notify(_ context.Context, n notify.Notification) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.got = append(d.got, n)
}

// levels returns the levels of the received notifications in order.
func (d *recordingDispatcher) levels() []alarm.Level {
	d.mu.Lock()
	defer d.mu.Unlock()

	result := make([]alarm.Level, 0, len(d.got))
	for _, n := range d.got {
		result = append(result, n.Level)
	}

	return result
}

// flakyRepository fails writes while failSave is set.
type flakyRepository struct {
	*entityrepo.MemoryRepository

	// mu protects failSave.
	mu sync.Mutex
	// failSave makes Save fail.
	failSave bool
}

// setFailing toggles write failures.
func (r *flakyRepository) setFailing(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.failSave = fail
}

// Save implements entity.Repository.
func (r *flakyRepository) Save(ctx context.Context, e *tracking.Entity) error {
	r.mu.Lock()
	fail := r.failSave
	r.mu.Unlock()

	if fail {
		return errors.New("disk full")
	}

	return r.MemoryRepository.Save(ctx, e)
}

// failingSource always fails.
type failingSource struct{}

// GetFence implements fence.Source.
func (failingSource) GetFence(context.Context, string) (*geofence.Fence, error) {
	return nil, errors.New("connection refused")
}

// testFences returns a source with one square farm.
func testFences() fence.Source {
	return fence.NewStaticSource(map[string][]config.Vertex{
		"farm-1": {
			{Lat: 51.00, Lng: 4.00},
			{Lat: 51.00, Lng: 4.01},
			{Lat: 51.01, Lng: 4.01},
			{Lat: 51.01, Lng: 4.00},
		},
	})
}

// newTestEngine builds an engine on an in-memory store.
func newTestEngine(t *testing.T, repo entityrepo.Repository, fences fence.Source) (*Engine, *recordingDispatcher) {
	t.Helper()

	if repo == nil {
		repo = entityrepo.NewMemoryRepository()
	}

	if fences == nil {
		fences = testFences()
	}

	dispatcher := new(recordingDispatcher)

	e, err := New(Config{
		Entities:   repo,
		Fences:     fences,
		Dispatcher: dispatcher,
	})
	require.NoError(t, err)

	return e, dispatcher
}

// position builds a collar report at t0 plus offset.
func position(p geofence.Point, t0 time.Time, offset time.Duration) tracking.Position {
	return tracking.Position{
		EntityID:  "cow-1",
		Point:     p,
		Timestamp: t0.Add(offset),
		Producer:  tracking.ProducerCollar,
	}
}

// TestNew_RequiresCollaborators verifies configuration validation.
func TestNew_RequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.ErrorIs(t, err, errEntitiesRequired)

	_, err = New(Config{Entities: entityrepo.NewMemoryRepository()})
	require.ErrorIs(t, err, errFencesRequired)

	_, err = New(Config{Entities: entityrepo.NewMemoryRepository(), Fences: testFences()})
	require.ErrorIs(t, err, errDispatcherRequired)
}

// TestIngest_BreachCycle walks one cow out of the fence and back.
func TestIngest_BreachCycle(t *testing.T) {
	t.Parallel()

	var (
		ctx     = context.Background()
		t0      = time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
		e, sent = newTestEngine(t, nil, nil)
	)

	_, err := e.Assign(ctx, "cow-1", "farm-1", "owner-1", "Bella")
	require.NoError(t, err)

	res, err := e.Ingest(ctx, position(safePoint, t0, 0))
	require.NoError(t, err)
	require.Equal(t, geofence.ZoneSafe, res.Zone)
	require.True(t, res.Outcome.Initial)
	require.Zero(t, res.Entity.BreachCount)

	res, err = e.Ingest(ctx, position(warningPoint, t0, 10*time.Second))
	require.NoError(t, err)
	require.Equal(t, geofence.ZoneWarning, res.Zone)
	require.True(t, res.Outcome.Breach)
	require.Equal(t, 1, res.Entity.BreachCount)
	require.Empty(t, res.Fired)

	res, err = e.Ingest(ctx, position(warningPoint, t0, 30*time.Second))
	require.NoError(t, err)
	require.Empty(t, res.Fired, "20s in warning is below the dwell threshold")

	res, err = e.Ingest(ctx, position(warningPoint, t0, 36*time.Second))
	require.NoError(t, err)
	require.Len(t, res.Fired, 1)
	require.Equal(t, alarm.LevelWarning, res.Fired[0].Level)
	require.Equal(t, 26*time.Second, res.Entity.ActualUnsafe)

	res, err = e.Ingest(ctx, position(dangerPoint, t0, 40*time.Second))
	require.NoError(t, err)
	require.Equal(t, geofence.ZoneDanger, res.Zone)
	require.Len(t, res.Fired, 1)
	require.Equal(t, alarm.LevelDanger, res.Fired[0].Level)
	require.Equal(t, 1, res.Entity.BreachCount, "warning to danger is not a new breach")
	require.True(t, res.Entity.Triggered(alarm.LevelWarning))

	res, err = e.Ingest(ctx, position(safePoint, t0, 50*time.Second))
	require.NoError(t, err)
	require.True(t, res.Outcome.Reset)
	require.Equal(t, 1, res.Entity.BreachCount)
	require.Equal(t, 10*time.Second, res.Entity.CumulativeSafe)
	require.Equal(t, 40*time.Second, res.Entity.CumulativeUnsafe)

	for _, level := range alarm.Levels() {
		require.Nil(t, res.Entity.Alarms.FiredAt(level))
		require.Equal(t, alarm.SlotArmed, res.Entity.Alarms.State(level, res.Entity.Zone))
	}

	require.Equal(t, []alarm.Level{alarm.LevelWarning, alarm.LevelDanger}, sent.levels())

	stored, err := e.Entity(ctx, "cow-1")
	require.NoError(t, err)
	require.Equal(t, res.Entity, stored)
}

// TestIngest_Duplicate verifies that replayed positions fire nothing twice.
func TestIngest_Duplicate(t *testing.T) {
	t.Parallel()

	var (
		ctx     = context.Background()
		t0      = time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
		e, sent = newTestEngine(t, nil, nil)
	)

	_, err := e.Assign(ctx, "cow-1", "farm-1", "owner-1", "")
	require.NoError(t, err)

	_, err = e.Ingest(ctx, position(safePoint, t0, 0))
	require.NoError(t, err)

	first, err := e.Ingest(ctx, position(dangerPoint, t0, 5*time.Second))
	require.NoError(t, err)
	require.Len(t, first.Fired, 1)

	second, err := e.Ingest(ctx, position(dangerPoint, t0, 5*time.Second))
	require.NoError(t, err)
	require.Empty(t, second.Fired)
	require.Equal(t, first.Entity, second.Entity)
	require.Len(t, sent.levels(), 1)
}

// TestIngest_StaleTimestamp verifies that late events never move time backwards.
func TestIngest_StaleTimestamp(t *testing.T) {
	t.Parallel()

	var (
		ctx  = context.Background()
		t0   = time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
		e, _ = newTestEngine(t, nil, nil)
	)

	_, err := e.Assign(ctx, "cow-1", "farm-1", "owner-1", "")
	require.NoError(t, err)

	_, err = e.Ingest(ctx, position(safePoint, t0, 20*time.Second))
	require.NoError(t, err)

	res, err := e.Ingest(ctx, position(warningPoint, t0, 5*time.Second))
	require.NoError(t, err)
	require.Equal(t, 15*time.Second, res.Outcome.Skew)
	require.Equal(t, t0.Add(20*time.Second), res.Entity.LastZoneChange)
	require.Equal(t, t0.Add(20*time.Second), res.Entity.LastPositionAt)
	require.Equal(t, safePoint, *res.Entity.LastPosition)
	require.Zero(t, res.Entity.CumulativeSafe)
}

// TestIngest_Errors verifies the error taxonomy.
func TestIngest_Errors(t *testing.T) {
	t.Parallel()

	var (
		ctx  = context.Background()
		e, _ = newTestEngine(t, nil, nil)
	)

	_, err := e.Ingest(ctx, tracking.Position{EntityID: "cow-1", Point: geofence.Point{Lat: 95}})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = e.Ingest(ctx, tracking.Position{EntityID: "ghost", Point: safePoint})
	require.ErrorIs(t, err, ErrNotFound)
}

// TestIngest_UnknownZone verifies that fence problems leave accounting untouched.
func TestIngest_UnknownZone(t *testing.T) {
	t.Parallel()

	var (
		ctx  = context.Background()
		t0   = time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
		e, _ = newTestEngine(t, nil, failingSource{})
	)

	_, err := e.Assign(ctx, "cow-1", "farm-1", "owner-1", "")
	require.NoError(t, err)

	res, err := e.Ingest(ctx, position(dangerPoint, t0, 0))
	require.NoError(t, err)
	require.Equal(t, geofence.ZoneUnknown, res.Zone)
	require.Equal(t, geofence.ZoneUnknown, res.Entity.Zone)
	require.Empty(t, res.Fired)
	require.NotNil(t, res.Entity.LastPosition)

	fenced, _ := newTestEngine(t, nil, nil)

	_, err = fenced.Assign(ctx, "cow-2", "farm-without-fence", "owner-1", "")
	require.NoError(t, err)

	res, err = fenced.Ingest(ctx, tracking.Position{EntityID: "cow-2", Point: dangerPoint, Timestamp: t0})
	require.NoError(t, err)
	require.Equal(t, geofence.ZoneUnknown, res.Zone)
}

// TestIngest_UnknownZoneSkipsLadder verifies that an unclassified position
// never fires, even when the stored warning stint is already past the dwell.
func TestIngest_UnknownZoneSkipsLadder(t *testing.T) {
	t.Parallel()

	var (
		ctx  = context.Background()
		t0   = time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
		repo = entityrepo.NewMemoryRepository()
	)

	stored := tracking.New("cow-1", "farm-1", "owner-1")
	stored, _ = tracking.Advance(stored, geofence.ZoneSafe, t0)
	stored, _ = tracking.Advance(stored, geofence.ZoneWarning, t0.Add(10*time.Second))
	stored, _ = tracking.Advance(stored, geofence.ZoneWarning, t0.Add(40*time.Second))
	require.Equal(t, 30*time.Second, stored.Dwell())
	require.NoError(t, repo.Save(ctx, stored))

	e, sent := newTestEngine(t, repo, failingSource{})

	res, err := e.Ingest(ctx, position(warningPoint, t0, 45*time.Second))
	require.NoError(t, err)
	require.Equal(t, geofence.ZoneUnknown, res.Zone)
	require.Equal(t, geofence.ZoneWarning, res.Entity.Zone)
	require.Empty(t, res.Fired)
	require.Nil(t, res.Entity.Alarms.FiredAt(alarm.LevelWarning))
	require.Empty(t, sent.levels())
}

// TestIngest_StoreFailure verifies that a failed write does not advance state.
func TestIngest_StoreFailure(t *testing.T) {
	t.Parallel()

	var (
		ctx     = context.Background()
		t0      = time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
		repo    = &flakyRepository{MemoryRepository: entityrepo.NewMemoryRepository()}
		e, sent = newTestEngine(t, repo, nil)
	)

	_, err := e.Assign(ctx, "cow-1", "farm-1", "owner-1", "")
	require.NoError(t, err)

	_, err = e.Ingest(ctx, position(safePoint, t0, 0))
	require.NoError(t, err)

	repo.setFailing(true)

	_, err = e.Ingest(ctx, position(dangerPoint, t0, 10*time.Second))
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.Empty(t, sent.levels())

	stored, err := e.Entity(ctx, "cow-1")
	require.NoError(t, err)
	require.Equal(t, geofence.ZoneSafe, stored.Zone)

	repo.setFailing(false)

	res, err := e.Ingest(ctx, position(dangerPoint, t0, 10*time.Second))
	require.NoError(t, err)
	require.Len(t, res.Fired, 1)
}

// TestTriggerAlarm verifies the explicit request path and its refusals.
func TestTriggerAlarm(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			ctx     = context.Background()
			e, sent = newTestEngine(t, nil, nil)
		)

		_, err := e.Assign(ctx, "cow-1", "farm-1", "owner-1", "")
		require.NoError(t, err)

		res, err := e.TriggerAlarm(ctx, "cow-1", alarm.LevelAudio)
		require.NoError(t, err)
		require.False(t, res.Fired)
		require.Equal(t, alarm.ReasonNotArmed, res.Reason, "entity has no zone yet")

		_, err = e.Ingest(ctx, tracking.Position{EntityID: "cow-1", Point: warningPoint, Timestamp: time.Now()})
		require.NoError(t, err)

		res, err = e.TriggerAlarm(ctx, "cow-1", alarm.LevelAudio)
		require.NoError(t, err)
		require.True(t, res.Fired)
		require.True(t, time.Now().Equal(res.At))

		res, err = e.TriggerAlarm(ctx, "cow-1", alarm.LevelAudio)
		require.NoError(t, err)
		require.Equal(t, alarm.ReasonAlreadyFired, res.Reason)

		res, err = e.TriggerAlarm(ctx, "cow-1", alarm.Level(7))
		require.NoError(t, err)
		require.Equal(t, alarm.ReasonUnknownLevel, res.Reason)

		_, err = e.TriggerAlarm(ctx, "ghost", alarm.LevelAudio)
		require.ErrorIs(t, err, ErrNotFound)

		_, err = e.Unassign(ctx, "cow-1")
		require.NoError(t, err)

		res, err = e.TriggerAlarm(ctx, "cow-1", alarm.LevelDanger)
		require.NoError(t, err)
		require.Equal(t, alarm.ReasonNotArmed, res.Reason)

		require.Equal(t, []alarm.Level{alarm.LevelAudio}, sent.levels())
	})
}

// TestAssign verifies creation, renaming and farm changes.
func TestAssign(t *testing.T) {
	t.Parallel()

	var (
		ctx  = context.Background()
		e, _ = newTestEngine(t, nil, nil)
	)

	_, err := e.Assign(ctx, "", "farm-1", "owner-1", "")
	require.ErrorIs(t, err, ErrInvalidArgument)

	created, err := e.Assign(ctx, "cow-1", "farm-1", "owner-1", "Bella")
	require.NoError(t, err)
	require.True(t, created.Assigned())
	require.Equal(t, "Bella", created.Name)

	moved, err := e.Assign(ctx, "cow-1", "farm-2", "owner-2", "")
	require.NoError(t, err)
	require.Equal(t, "Bella", moved.Name)
	require.Equal(t, "farm-2", moved.FarmID)

	unassigned, err := e.Unassign(ctx, "cow-1")
	require.NoError(t, err)
	require.False(t, unassigned.Assigned())
	require.Equal(t, alarm.SlotNotApplicable, unassigned.Alarms.State(alarm.LevelAudio, unassigned.Zone))

	_, err = e.Unassign(ctx, "ghost")
	require.ErrorIs(t, err, ErrNotFound)

	all, err := e.Entities(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

// TestSubscribe verifies fan-out and cleanup.
func TestSubscribe(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			ctx         = context.Background()
			e, _        = newTestEngine(t, nil, nil)
			subCtx, end = context.WithCancel(ctx)
			updates     = e.Subscribe(subCtx, 1)
		)

		_, err := e.Assign(ctx, "cow-1", "farm-1", "owner-1", "")
		require.NoError(t, err)

		_, err = e.Ingest(ctx, tracking.Position{EntityID: "cow-1", Point: safePoint, Timestamp: time.Now()})
		require.NoError(t, err)

		u := <-updates
		require.Equal(t, "cow-1", u.Entity.ID)
		require.EqualValues(t, 1, e.DroppedUpdates(), "the ingest update did not fit the buffer")

		end()
		synctest.Wait()

		_, ok := <-updates
		require.False(t, ok)
	})
}
