// Package pb describes the safezone.v1.GeofenceService gRPC API.
//
// Messages are google.protobuf.Struct values with a fixed set of keys, so the
// service needs no generated code: this package carries the service
// descriptor, a typed client and the encoders between domain types and
// Struct messages. The same encoders back the JSON persistence formats.
package pb
