package pb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "safezone.v1.GeofenceService"

// Full method names of the service.
const (
	GeofenceServiceIngestFullMethodName       = "/" + ServiceName + "/Ingest"
	GeofenceServiceTriggerAlarmFullMethodName = "/" + ServiceName + "/TriggerAlarm"
	GeofenceServiceHeartbeatFullMethodName    = "/" + ServiceName + "/Heartbeat"
	GeofenceServiceDisconnectFullMethodName   = "/" + ServiceName + "/Disconnect"
	GeofenceServiceGetEntityFullMethodName    = "/" + ServiceName + "/GetEntity"
	GeofenceServiceListEntitiesFullMethodName = "/" + ServiceName + "/ListEntities"
	GeofenceServiceAssignFullMethodName       = "/" + ServiceName + "/Assign"
	GeofenceServiceUnassignFullMethodName     = "/" + ServiceName + "/Unassign"
	GeofenceServiceSubscribeFullMethodName    = "/" + ServiceName + "/Subscribe"
)

// GeofenceServiceServer is the server API for the geofence service.
type GeofenceServiceServer interface {
	Ingest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	TriggerAlarm(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Heartbeat(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Disconnect(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetEntity(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListEntities(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Assign(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Unassign(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Subscribe(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error
}

// UnimplementedGeofenceServiceServer answers Unimplemented for every method.
// Embed it by value to stay forward compatible.
type UnimplementedGeofenceServiceServer struct{}

// Ingest is not implemented.
func (UnimplementedGeofenceServiceServer) Ingest(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Ingest not implemented")
}

// TriggerAlarm is not implemented.
func (UnimplementedGeofenceServiceServer) TriggerAlarm(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method TriggerAlarm not implemented")
}

// Heartbeat is not implemented.
func (UnimplementedGeofenceServiceServer) Heartbeat(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Heartbeat not implemented")
}

// Disconnect is not implemented.
func (UnimplementedGeofenceServiceServer) Disconnect(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Disconnect not implemented")
}

// GetEntity is not implemented.
func (UnimplementedGeofenceServiceServer) GetEntity(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetEntity not implemented")
}

// ListEntities is not implemented.
func (UnimplementedGeofenceServiceServer) ListEntities(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method ListEntities not implemented")
}

// Assign is not implemented.
func (UnimplementedGeofenceServiceServer) Assign(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Assign not implemented")
}

// Unassign is not implemented.
func (UnimplementedGeofenceServiceServer) Unassign(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Unassign not implemented")
}

// Subscribe is not implemented.
func (UnimplementedGeofenceServiceServer) Subscribe(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error {
	return status.Error(codes.Unimplemented, "method Subscribe not implemented")
}

// unaryMethod is the shape shared by every unary method of the service.
type unaryMethod func(srv GeofenceServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

// unaryHandler adapts a unary method to grpc.MethodHandler, honoring interceptors.
func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}

		server, _ := srv.(GeofenceServiceServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}

		handler := func(ctx context.Context, req any) (any, error) {
			typed, _ := req.(*structpb.Struct)

			return call(server, ctx, typed)
		}

		return interceptor(ctx, in, info, handler)
	}
}

// subscribeHandler adapts the Subscribe stream.
func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}

	server, _ := srv.(GeofenceServiceServer)

	return server.Subscribe(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// GeofenceServiceDesc is the grpc.ServiceDesc for the geofence service.
//
//nolint:gochecknoglobals // Service descriptors are package-level by convention.
var GeofenceServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GeofenceServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Ingest",
			Handler:    unaryHandler(GeofenceServiceIngestFullMethodName, GeofenceServiceServer.Ingest),
		},
		{
			MethodName: "TriggerAlarm",
			Handler:    unaryHandler(GeofenceServiceTriggerAlarmFullMethodName, GeofenceServiceServer.TriggerAlarm),
		},
		{
			MethodName: "Heartbeat",
			Handler:    unaryHandler(GeofenceServiceHeartbeatFullMethodName, GeofenceServiceServer.Heartbeat),
		},
		{
			MethodName: "Disconnect",
			Handler:    unaryHandler(GeofenceServiceDisconnectFullMethodName, GeofenceServiceServer.Disconnect),
		},
		{
			MethodName: "GetEntity",
			Handler:    unaryHandler(GeofenceServiceGetEntityFullMethodName, GeofenceServiceServer.GetEntity),
		},
		{
			MethodName: "ListEntities",
			Handler:    unaryHandler(GeofenceServiceListEntitiesFullMethodName, GeofenceServiceServer.ListEntities),
		},
		{
			MethodName: "Assign",
			Handler:    unaryHandler(GeofenceServiceAssignFullMethodName, GeofenceServiceServer.Assign),
		},
		{
			MethodName: "Unassign",
			Handler:    unaryHandler(GeofenceServiceUnassignFullMethodName, GeofenceServiceServer.Unassign),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "safezone/v1/geofence.proto",
}

// RegisterGeofenceServiceServer registers the implementation on a gRPC server.
func RegisterGeofenceServiceServer(s grpc.ServiceRegistrar, srv GeofenceServiceServer) {
	s.RegisterService(&GeofenceServiceDesc, srv)
}

// GeofenceServiceClient is the client API for the geofence service.
type GeofenceServiceClient interface {
	Ingest(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	TriggerAlarm(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Heartbeat(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Disconnect(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetEntity(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListEntities(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Assign(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Unassign(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Subscribe(
		ctx context.Context,
		in *structpb.Struct,
		opts ...grpc.CallOption,
	) (grpc.ServerStreamingClient[structpb.Struct], error)
}

// geofenceServiceClient implements GeofenceServiceClient over a connection.
type geofenceServiceClient struct {
	// cc is the underlying connection.
	cc grpc.ClientConnInterface
}

// NewGeofenceServiceClient creates a client bound to the connection.
func NewGeofenceServiceClient(cc grpc.ClientConnInterface) GeofenceServiceClient {
	return &geofenceServiceClient{cc: cc}
}

// invoke performs one unary call.
func (c *geofenceServiceClient) invoke(
	ctx context.Context,
	method string,
	in *structpb.Struct,
	opts ...grpc.CallOption,
) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

// Ingest sends one position event.
func (c *geofenceServiceClient) Ingest(
	ctx context.Context,
	in *structpb.Struct,
	opts ...grpc.CallOption,
) (*structpb.Struct, error) {
	return c.invoke(ctx, GeofenceServiceIngestFullMethodName, in, opts...)
}

// TriggerAlarm requests an explicit alarm level.
func (c *geofenceServiceClient) TriggerAlarm(
	ctx context.Context,
	in *structpb.Struct,
	opts ...grpc.CallOption,
) (*structpb.Struct, error) {
	return c.invoke(ctx, GeofenceServiceTriggerAlarmFullMethodName, in, opts...)
}

// Heartbeat refreshes a console session.
func (c *geofenceServiceClient) Heartbeat(
	ctx context.Context,
	in *structpb.Struct,
	opts ...grpc.CallOption,
) (*structpb.Struct, error) {
	return c.invoke(ctx, GeofenceServiceHeartbeatFullMethodName, in, opts...)
}

// Disconnect releases a console session.
func (c *geofenceServiceClient) Disconnect(
	ctx context.Context,
	in *structpb.Struct,
	opts ...grpc.CallOption,
) (*structpb.Struct, error) {
	return c.invoke(ctx, GeofenceServiceDisconnectFullMethodName, in, opts...)
}

// GetEntity reads one entity.
func (c *geofenceServiceClient) GetEntity(
	ctx context.Context,
	in *structpb.Struct,
	opts ...grpc.CallOption,
) (*structpb.Struct, error) {
	return c.invoke(ctx, GeofenceServiceGetEntityFullMethodName, in, opts...)
}

// ListEntities reads every entity, optionally filtered.
func (c *geofenceServiceClient) ListEntities(
	ctx context.Context,
	in *structpb.Struct,
	opts ...grpc.CallOption,
) (*structpb.Struct, error) {
	return c.invoke(ctx, GeofenceServiceListEntitiesFullMethodName, in, opts...)
}

// Assign binds an entity to a farm.
func (c *geofenceServiceClient) Assign(
	ctx context.Context,
	in *structpb.Struct,
	opts ...grpc.CallOption,
) (*structpb.Struct, error) {
	return c.invoke(ctx, GeofenceServiceAssignFullMethodName, in, opts...)
}

// Unassign removes an entity's farm binding.
func (c *geofenceServiceClient) Unassign(
	ctx context.Context,
	in *structpb.Struct,
	opts ...grpc.CallOption,
) (*structpb.Struct, error) {
	return c.invoke(ctx, GeofenceServiceUnassignFullMethodName, in, opts...)
}

// Subscribe opens the update stream.
func (c *geofenceServiceClient) Subscribe(
	ctx context.Context,
	in *structpb.Struct,
	opts ...grpc.CallOption,
) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &GeofenceServiceDesc.Streams[0], GeofenceServiceSubscribeFullMethodName, opts...)
	if err != nil {
		return nil, err
	}

	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	if err = x.SendMsg(in); err != nil {
		return nil, err
	}

	if err = x.CloseSend(); err != nil {
		return nil, err
	}

	return x, nil
}
