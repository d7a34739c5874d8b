// Package wasigrpc lets generated gRPC clients run inside a sandboxed
// component whose only outbound networking is the host's outgoing HTTP
// capability.
//
// The idea is that client code builds a plain HTTP request, and an Endpoint
// translates it into the host's outgoing-request resource, issues it, and
// translates the incoming-response resource back. Framing, HTTP/2, TLS, DNS
// and connection pooling all stay on the host's side of the boundary.
//
// The channel package builds a grpc.ClientConnInterface on top of an
// Endpoint, so protoc-gen-go-grpc stubs can use it directly. An Endpoint is
// also an http.RoundTripper, and satisfies connect's HTTPClient.
package wasigrpc

import (
	"github.com/Aditya1404Sal/wasmcloud-grpc-client/types"
)

// OutgoingHandler is the host capability every Endpoint sends through.
type OutgoingHandler = types.OutgoingHandler

// HostError is the error type the host reports failures with.
type HostError = types.ErrorCode
