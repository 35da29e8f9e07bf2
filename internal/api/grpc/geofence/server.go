package geofence

import (
	"context"
	"errors"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/safezone/internal/domain/alarm"
	"github.com/oshokin/safezone/internal/domain/ownership"
	"github.com/oshokin/safezone/internal/domain/tracking"
	"github.com/oshokin/safezone/internal/logger"
	pb "github.com/oshokin/safezone/internal/pb/v1"
	"github.com/oshokin/safezone/internal/service/engine"
)

// Service abstracts the engine operations the transport layer depends on.
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
	Subscribe(ctx context.Context, buffer int) <-chan engine.Update
}

// Server implements the GeofenceService gRPC API.
type Server struct {
	pb.UnimplementedGeofenceServiceServer

	// service provides the business logic.
	service Service
	// now stamps positions without a timestamp.
	now func() time.Time
}

// NewServer wires the provided service implementation into a gRPC handler.
func NewServer(service Service) *Server {
	return &Server{
		service: service,
		now:     time.Now,
	}
}

// Ingest applies one position and returns the updated entity and fired levels.
func (s *Server) Ingest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := pb.DecodePosition(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	res, err := s.service.Ingest(ctx, pb.StampPosition(p, s.now()))
	if err != nil {
		return nil, toStatus(ctx, err)
	}

	out, err := pb.EncodeUpdate(res.Entity, res.Fired)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	out.Fields["zone"] = structpb.NewStringValue(res.Zone.String())

	return out, nil
}

// TriggerAlarm requests one alarm level. AlreadyFired and NotArmed come back
// as a result with fired set to false.
func (s *Server) TriggerAlarm(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	entityID, err := pb.RequireString(req, pb.KeyEntityID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	level := alarm.LevelAudio

	if raw := levelArgument(req); raw != "" {
		if level, err = alarm.ParseLevel(raw); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
	}

	res, err := s.service.TriggerAlarm(ctx, entityID, level)
	if err != nil {
		return nil, toStatus(ctx, err)
	}

	out, err := pb.EncodeFireResult(res)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	return out, nil
}

// Heartbeat refreshes a console session and reports who owns alarming.
func (s *Server) Heartbeat(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ownerID, err := pb.RequireString(req, pb.KeyOwnerID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	record := s.service.Heartbeat(ctx, ownerID, pb.GetString(req, pb.KeyEntityID))

	return s.session(ownerID, record)
}

// Disconnect releases a console session.
func (s *Server) Disconnect(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ownerID, err := pb.RequireString(req, pb.KeyOwnerID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	return s.session(ownerID, s.service.Disconnect(ctx, ownerID))
}

// session renders a console record with the current arbitration result.
func (s *Server) session(ownerID string, record *ownership.Record) (*structpb.Struct, error) {
	out, err := pb.EncodeRecord(record)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	out.Fields["server_owns_alarming"] = structpb.NewBoolValue(s.service.OwnsAlarming(ownerID))

	return out, nil
}

// GetEntity returns one entity with its derived alarm state.
func (s *Server) GetEntity(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	entityID, err := pb.RequireString(req, pb.KeyEntityID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	entity, err := s.service.Entity(ctx, entityID)
	if err != nil {
		return nil, toStatus(ctx, err)
	}

	return encodeEntity(entity)
}

// ListEntities returns every entity, optionally filtered by farm_id and owner_id.
func (s *Server) ListEntities(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	entities, err := s.service.Entities(ctx)
	if err != nil {
		return nil, toStatus(ctx, err)
	}

	filter := newFilter(req)

	matched := make([]*tracking.Entity, 0, len(entities))
	for _, e := range entities {
		if filter.match(e) {
			matched = append(matched, e)
		}
	}

	out, err := pb.EncodeEntityList(matched)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	return out, nil
}

// Assign binds an entity to a farm and owner.
func (s *Server) Assign(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	entity, err := s.service.Assign(ctx,
		pb.GetString(req, pb.KeyEntityID),
		pb.GetString(req, pb.KeyFarmID),
		pb.GetString(req, pb.KeyOwnerID),
		pb.GetString(req, pb.KeyName))
	if err != nil {
		return nil, toStatus(ctx, err)
	}

	return encodeEntity(entity)
}

// Unassign removes an entity's farm binding.
func (s *Server) Unassign(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	entity, err := s.service.Unassign(ctx, pb.GetString(req, pb.KeyEntityID))
	if err != nil {
		return nil, toStatus(ctx, err)
	}

	return encodeEntity(entity)
}

// Subscribe streams entity updates matching farm_id, owner_id and entity_id
// until the client goes away.
func (s *Server) Subscribe(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	var (
		ctx     = logger.WithName(stream.Context(), "subscribe")
		filter  = newFilter(req)
		updates = s.service.Subscribe(ctx, engine.DefaultSubscriberBuffer)
	)

	logger.DebugKV(ctx, "Subscriber attached", "farm_id", filter.farmID, "owner_id", filter.ownerID)

	for u := range updates {
		if !filter.match(u.Entity) {
			continue
		}

		out, err := pb.EncodeUpdate(u.Entity, u.Fired)
		if err != nil {
			return status.Error(codes.Internal, err.Error())
		}

		out.Fields["trigger"] = structpb.NewStringValue(u.Trigger.String())

		if err = stream.Send(out); err != nil {
			return err
		}
	}

	return nil
}

// encodeEntity wraps an entity view in a response.
func encodeEntity(e *tracking.Entity) (*structpb.Struct, error) {
	view, err := pb.EncodeEntityView(e)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			pb.KeyEntity: structpb.NewStructValue(view),
		},
	}, nil
}

// levelArgument reads the level as a name or a number.
func levelArgument(req *structpb.Struct) string {
	v, ok := req.GetFields()[pb.KeyLevel]
	if !ok {
		return ""
	}

	if n, isNumber := v.GetKind().(*structpb.Value_NumberValue); isNumber {
		return strconv.Itoa(int(n.NumberValue))
	}

	return v.GetStringValue()
}

// filter selects entities by farm, owner and id. Empty fields match everything.
type filter struct {
	// farmID limits to one farm.
	farmID string
	// ownerID limits to one owner.
	ownerID string
	// entityID limits to one entity.
	entityID string
}

// newFilter reads a filter from a request.
func newFilter(req *structpb.Struct) filter {
	return filter{
		farmID:   pb.GetString(req, pb.KeyFarmID),
		ownerID:  pb.GetString(req, pb.KeyOwnerID),
		entityID: pb.GetString(req, pb.KeyEntityID),
	}
}

// match reports whether e passes the filter.
func (f filter) match(e *tracking.Entity) bool {
	return (f.farmID == "" || f.farmID == e.FarmID) &&
		(f.ownerID == "" || f.ownerID == e.OwnerID) &&
		(f.entityID == "" || f.entityID == e.ID)
}

// toStatus maps engine errors onto gRPC status codes.
func toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, engine.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, engine.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, engine.ErrStoreUnavailable):
		logger.ErrorKV(ctx, "Store unavailable", "error", err)

		return status.Error(codes.Unavailable, "store unavailable, retry later")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		logger.ErrorKV(ctx, "Request failed", "error", err)

		return status.Error(codes.Internal, "internal error")
	}
}
