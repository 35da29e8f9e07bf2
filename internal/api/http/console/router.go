package console

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/safezone/internal/domain/alarm"
	"github.com/oshokin/safezone/internal/domain/ownership"
	"github.com/oshokin/safezone/internal/domain/tracking"
	"github.com/oshokin/safezone/internal/logger"
	pb "github.com/oshokin/safezone/internal/pb/v1"
	"github.com/oshokin/safezone/internal/service/engine"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Service abstracts the engine operations the console API depends on.
type Service interface {
	Ingest(ctx context.Context, p tracking.Position) (*engine.IngestResult, error)
	TriggerAlarm(ctx context.Context, entityID string, level alarm.Level) (alarm.FireResult, error)
	Heartbeat(ctx context.Context, ownerID, entityID string) *ownership.Record
	Disconnect(ctx context.Context, ownerID string) *ownership.Record
	OwnsAlarming(ownerID string) bool
	Entity(ctx context.Context, id string) (*tracking.Entity, error)
	Entities(ctx context.Context) ([]*tracking.Entity, error)
	Assign(ctx context.Context, id, farmID, ownerID, name string) (*tracking.Entity, error)
	Unassign(ctx context.Context, id string) (*tracking.Entity, error)
}

// handler serves the console API.
type handler struct {
	// service provides the business logic.
	service Service
	// now stamps positions without a timestamp.
	now func() time.Time
}

// NewRouter builds the console API. Requests time out after timeout.
func NewRouter(service Service, timeout time.Duration) http.Handler {
	h := &handler{
		service: service,
		now:     time.Now,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	if timeout > 0 {
		r.Use(middleware.Timeout(timeout))
	}

	r.Get("/healthz", h.health)
	r.Post("/positions", h.ingest)

	r.Route("/entities", func(r chi.Router) {
		r.Get("/", h.listEntities)

		r.Route("/{entityID}", func(r chi.Router) {
			r.Get("/", h.getEntity)
			r.Put("/assignment", h.assign)
			r.Delete("/assignment", h.unassign)
			r.Get("/alarm-state", h.alarmState)
			r.Post("/alarms/{level}", h.triggerAlarm)
		})
	})

	r.Route("/consoles/{ownerID}", func(r chi.Router) {
		r.Post("/heartbeat", h.heartbeat)
		r.Post("/disconnect", h.disconnect)
	})

	return r
}

// requestLogger logs every request with zap at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			started = time.Now()
			ww      = middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ctx     = logger.WithKV(r.Context(), "request_id", middleware.GetReqID(r.Context()))
		)

		next.ServeHTTP(ww, r.WithContext(ctx))

		logger.DebugKV(ctx, "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(started))
	})
}

// readBody parses an optional JSON object body.
func readBody(w http.ResponseWriter, r *http.Request) (*structpb.Struct, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if len(data) == 0 {
		return &structpb.Struct{Fields: map[string]*structpb.Value{}}, nil
	}

	return pb.UnmarshalJSON(data)
}

// respond writes a message as JSON.
func respond(w http.ResponseWriter, r *http.Request, s *structpb.Struct) {
	render.JSON(w, r, s.AsMap())
}

// health answers liveness checks.
func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

// ingest accepts one position.
func (h *handler) ingest(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		_ = render.Render(w, r, errInvalidRequest(err))

		return
	}

	p, err := pb.DecodePosition(body)
	if err != nil {
		_ = render.Render(w, r, errInvalidRequest(err))

		return
	}

	res, err := h.service.Ingest(r.Context(), pb.StampPosition(p, h.now()))
	if err != nil {
		_ = render.Render(w, r, errFromService(r.Context(), err))

		return
	}

	out, err := pb.EncodeUpdate(res.Entity, res.Fired)
	if err != nil {
		_ = render.Render(w, r, errFromService(r.Context(), err))

		return
	}

	out.Fields["zone"] = structpb.NewStringValue(res.Zone.String())

	respond(w, r, out)
}

// listEntities returns entities filtered by the farm_id and owner_id query parameters.
func (h *handler) listEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := h.service.Entities(r.Context())
	if err != nil {
		_ = render.Render(w, r, errFromService(r.Context(), err))

		return
	}

	var (
		farmID  = r.URL.Query().Get(pb.KeyFarmID)
		ownerID = r.URL.Query().Get(pb.KeyOwnerID)
		matched = make([]*tracking.Entity, 0, len(entities))
	)

	for _, e := range entities {
		if (farmID == "" || e.FarmID == farmID) && (ownerID == "" || e.OwnerID == ownerID) {
			matched = append(matched, e)
		}
	}

	out, err := pb.EncodeEntityList(matched)
	if err != nil {
		_ = render.Render(w, r, errFromService(r.Context(), err))

		return
	}

	respond(w, r, out)
}

// getEntity returns one entity view.
func (h *handler) getEntity(w http.ResponseWriter, r *http.Request) {
	entity, err := h.service.Entity(r.Context(), chi.URLParam(r, "entityID"))
	if err != nil {
		_ = render.Render(w, r, errFromService(r.Context(), err))

		return
	}

	h.respondEntity(w, r, entity)
}

// assign binds the entity to the farm and owner in the body.
func (h *handler) assign(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		_ = render.Render(w, r, errInvalidRequest(err))

		return
	}

	entity, err := h.service.Assign(r.Context(),
		chi.URLParam(r, "entityID"),
		pb.GetString(body, pb.KeyFarmID),
		pb.GetString(body, pb.KeyOwnerID),
		pb.GetString(body, pb.KeyName))
	if err != nil {
		_ = render.Render(w, r, errFromService(r.Context(), err))

		return
	}

	h.respondEntity(w, r, entity)
}

// unassign removes the farm binding.
func (h *handler) unassign(w http.ResponseWriter, r *http.Request) {
	entity, err := h.service.Unassign(r.Context(), chi.URLParam(r, "entityID"))
	if err != nil {
		_ = render.Render(w, r, errFromService(r.Context(), err))

		return
	}

	h.respondEntity(w, r, entity)
}

// respondEntity writes an entity view.
func (h *handler) respondEntity(w http.ResponseWriter, r *http.Request, e *tracking.Entity) {
	view, err := pb.EncodeEntityView(e)
	if err != nil {
		_ = render.Render(w, r, errFromService(r.Context(), err))

		return
	}

	respond(w, r, view)
}

// alarmState returns the derived alarm state of one entity.
func (h *handler) alarmState(w http.ResponseWriter, r *http.Request) {
	entity, err := h.service.Entity(r.Context(), chi.URLParam(r, "entityID"))
	if err != nil {
		_ = render.Render(w, r, errFromService(r.Context(), err))

		return
	}

	view, err := pb.EncodeEntityView(entity)
	if err != nil {
		_ = render.Render(w, r, errFromService(r.Context(), err))

		return
	}

	render.JSON(w, r, map[string]any{
		pb.KeyEntityID:  entity.ID,
		"zone":          entity.Zone.String(),
		"breach_count":  entity.BreachCount,
		"dwell_seconds": entity.Dwell().Seconds(),
		"alarm_state":   pb.GetStruct(view, "alarm_state").AsMap(),
	})
}

// triggerAlarm requests one level. Refusals are answered with 200 and fired=false.
func (h *handler) triggerAlarm(w http.ResponseWriter, r *http.Request) {
	level, err := alarm.ParseLevel(chi.URLParam(r, "level"))
	if err != nil {
		_ = render.Render(w, r, errInvalidRequest(err))

		return
	}

	res, err := h.service.TriggerAlarm(r.Context(), chi.URLParam(r, "entityID"), level)
	if err != nil {
		_ = render.Render(w, r, errFromService(r.Context(), err))

		return
	}

	out, err := pb.EncodeFireResult(res)
	if err != nil {
		_ = render.Render(w, r, errFromService(r.Context(), err))

		return
	}

	respond(w, r, out)
}

// heartbeat refreshes a console session. The body may name the watched entity.
func (h *handler) heartbeat(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		_ = render.Render(w, r, errInvalidRequest(err))

		return
	}

	ownerID := chi.URLParam(r, "ownerID")
	h.respondSession(w, r, ownerID, h.service.Heartbeat(r.Context(), ownerID, pb.GetString(body, pb.KeyEntityID)))
}

// disconnect releases a console session.
func (h *handler) disconnect(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")
	h.respondSession(w, r, ownerID, h.service.Disconnect(r.Context(), ownerID))
}

// respondSession writes a session with the arbitration result.
func (h *handler) respondSession(w http.ResponseWriter, r *http.Request, ownerID string, record *ownership.Record) {
	out, err := pb.EncodeRecord(record)
	if err != nil {
		_ = render.Render(w, r, errFromService(r.Context(), err))

		return
	}

	out.Fields["server_owns_alarming"] = structpb.NewBoolValue(h.service.OwnsAlarming(ownerID))

	respond(w, r, out)
}
