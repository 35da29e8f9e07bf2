//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/safezone/internal/config"
	"github.com/oshokin/safezone/internal/domain/alarm"
	"github.com/oshokin/safezone/internal/domain/ownership"
	"github.com/oshokin/safezone/internal/domain/tracking"
	pb "github.com/oshokin/safezone/internal/pb/v1"
)

// Client wraps the gRPC GeofenceService client with typed helpers.
type Client struct {
	// conn is the underlying gRPC connection to the server.
	conn *grpc.ClientConn
	// api is the GeofenceService client interface.
	api pb.GeofenceServiceClient

	// callTimeout is the default timeout for individual unary calls.
	callTimeout time.Duration
	// dialOptions are appended to the default dial options.
	dialOptions []grpc.DialOption
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for unary calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithDialOptions adds gRPC dial options, e.g. a custom dialer.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *Client) {
		c.dialOptions = append(c.dialOptions, opts...)
	}
}

// Session is a console session as seen by the server.
type Session struct {
	// Record is the stored session.
	Record *ownership.Record
	// ServerOwnsAlarming is true when the server fires dwell-driven alarms for the owner.
	ServerOwnsAlarming bool
}

// Update is one streamed entity change.
type Update struct {
	// Entity is the state after the change.
	Entity *tracking.Entity
	// Fired lists the levels fired with the change.
	Fired []alarm.FireResult
	// Trigger names the path that produced the change.
	Trigger string
}

// Filter narrows listings and subscriptions. Empty fields match everything.
type Filter struct {
	// FarmID limits to one farm.
	FarmID string
	// OwnerID limits to one owner.
	OwnerID string
	// EntityID limits to one entity.
	EntityID string
}

// fields returns the filter as request fields.
func (f Filter) fields() map[string]any {
	return map[string]any{
		pb.KeyFarmID:   f.FarmID,
		pb.KeyOwnerID:  f.OwnerID,
		pb.KeyEntityID: f.EntityID,
	}
}

var (
	// errAddressRequired is returned when a required address value is missing.
	errAddressRequired = errors.New("address must be provided")
	// errEntityRequired is returned when a response lacks the entity.
	errEntityRequired = errors.New("response has no entity")
)

// Dial establishes a gRPC connection to the geofence server.
// Note: this uses insecure transport credentials; deploy on a trusted network
// or terminate TLS in a proxy until native TLS is added.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	client := &Client{
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	dialOptions := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, client.dialOptions...)

	conn, err := grpc.NewClient(address, dialOptions...)
	if err != nil {
		return nil, fmt.Errorf("dial geofence server: %w", err)
	}

	client.conn = conn
	client.api = pb.NewGeofenceServiceClient(conn)

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// Ingest sends one position and returns the updated entity and fired levels.
func (c *Client) Ingest(ctx context.Context, p tracking.Position) (*tracking.Entity, []alarm.FireResult, error) {
	req, err := pb.EncodePosition(p)
	if err != nil {
		return nil, nil, err
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.Ingest(callCtx, req)
	if err != nil {
		return nil, nil, fmt.Errorf("ingest: %w", err)
	}

	return pb.DecodeUpdate(resp)
}

// TriggerAlarm requests one alarm level for an entity.
func (c *Client) TriggerAlarm(ctx context.Context, entityID string, level alarm.Level) (alarm.FireResult, error) {
	req, err := pb.NewRequest(map[string]any{
		pb.KeyEntityID: entityID,
		pb.KeyLevel:    level.String(),
	})
	if err != nil {
		return alarm.FireResult{}, err
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.TriggerAlarm(callCtx, req)
	if err != nil {
		return alarm.FireResult{}, fmt.Errorf("trigger alarm: %w", err)
	}

	return pb.DecodeFireResult(resp)
}

// Heartbeat refreshes the owner's console session.
func (c *Client) Heartbeat(ctx context.Context, ownerID, entityID string) (*Session, error) {
	req, err := pb.NewRequest(map[string]any{
		pb.KeyOwnerID:  ownerID,
		pb.KeyEntityID: entityID,
	})
	if err != nil {
		return nil, err
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.Heartbeat(callCtx, req)
	if err != nil {
		return nil, fmt.Errorf("heartbeat: %w", err)
	}

	return decodeSession(resp)
}

// Disconnect releases the owner's console session.
func (c *Client) Disconnect(ctx context.Context, ownerID string) (*Session, error) {
	req, err := pb.NewRequest(map[string]any{pb.KeyOwnerID: ownerID})
	if err != nil {
		return nil, err
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.Disconnect(callCtx, req)
	if err != nil {
		return nil, fmt.Errorf("disconnect: %w", err)
	}

	return decodeSession(resp)
}

// Entity fetches one entity.
func (c *Client) Entity(ctx context.Context, entityID string) (*tracking.Entity, error) {
	req, err := pb.NewRequest(map[string]any{pb.KeyEntityID: entityID})
	if err != nil {
		return nil, err
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.GetEntity(callCtx, req)
	if err != nil {
		return nil, fmt.Errorf("get entity: %w", err)
	}

	return decodeEntity(resp)
}

// Entities lists the entities matching filter.
func (c *Client) Entities(ctx context.Context, filter Filter) ([]*tracking.Entity, error) {
	req, err := pb.NewRequest(filter.fields())
	if err != nil {
		return nil, err
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.ListEntities(callCtx, req)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}

	return pb.DecodeEntityList(resp)
}

// Assign binds an entity to a farm and owner.
func (c *Client) Assign(ctx context.Context, entityID, farmID, ownerID, name string) (*tracking.Entity, error) {
	req, err := pb.NewRequest(map[string]any{
		pb.KeyEntityID: entityID,
		pb.KeyFarmID:   farmID,
		pb.KeyOwnerID:  ownerID,
		pb.KeyName:     name,
	})
	if err != nil {
		return nil, err
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.Assign(callCtx, req)
	if err != nil {
		return nil, fmt.Errorf("assign: %w", err)
	}

	return decodeEntity(resp)
}

// Unassign removes an entity's farm binding.
func (c *Client) Unassign(ctx context.Context, entityID string) (*tracking.Entity, error) {
	req, err := pb.NewRequest(map[string]any{pb.KeyEntityID: entityID})
	if err != nil {
		return nil, err
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.Unassign(callCtx, req)
	if err != nil {
		return nil, fmt.Errorf("unassign: %w", err)
	}

	return decodeEntity(resp)
}

// Subscribe streams updates matching filter to handle until ctx is done,
// the server closes the stream or handle returns an error.
// The call timeout does not apply to the stream.
func (c *Client) Subscribe(ctx context.Context, filter Filter, handle func(Update) error) error {
	req, err := pb.NewRequest(filter.fields())
	if err != nil {
		return err
	}

	stream, err := c.api.Subscribe(ctx, req)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	for {
		msg, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("receive update: %w", err)
		}

		entity, fired, err := pb.DecodeUpdate(msg)
		if err != nil {
			return err
		}

		if err = handle(Update{Entity: entity, Fired: fired, Trigger: pb.GetString(msg, "trigger")}); err != nil {
			return err
		}
	}
}

// decodeEntity extracts the entity from a response.
func decodeEntity(resp *structpb.Struct) (*tracking.Entity, error) {
	s := pb.GetStruct(resp, pb.KeyEntity)
	if s == nil {
		return nil, errEntityRequired
	}

	return pb.DecodeEntity(s)
}

// decodeSession parses a Heartbeat or Disconnect response.
func decodeSession(resp *structpb.Struct) (*Session, error) {
	record, err := pb.DecodeRecord(resp)
	if err != nil {
		return nil, err
	}

	return &Session{
		Record:             record,
		ServerOwnsAlarming: pb.GetBool(resp, "server_owns_alarming"),
	}, nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
