// Package geofence implements the gRPC transport of the geofence service.
//
// Requests and responses are google.protobuf.Struct messages built with the
// codecs in internal/pb/v1. Engine errors are mapped onto gRPC status codes;
// refused alarm requests are regular responses with fired set to false.
package geofence
