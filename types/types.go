// Package types describes the host's outgoing HTTP capability: the Go mirror of
// the wasi:http/types and wasi:http/outgoing-handler interfaces.
//
// Every value handed out by the host is a resource. Resources must be released
// with Drop on every exit path, including errors and cancellation. Drop is
// idempotent.
package types

import (
	"context"
	"time"
)

// Field is a single header entry. Values are raw bytes, as on the wire.
type Field struct {
	Name  string
	Value []byte
}

// Fields is an ordered header list. Duplicate names are kept in order.
type Fields []Field

// Clone returns a deep copy of the fields.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for i, fld := range f {
		out[i] = Field{Name: fld.Name, Value: append([]byte(nil), fld.Value...)}
	}
	return out
}

// OutgoingRequest is the host representation of a request about to be issued.
// Once passed to OutgoingHandler.Handle it belongs to the host.
type OutgoingRequest struct {
	Method        string
	Scheme        string
	Authority     string
	PathWithQuery string
	Headers       Fields
}

// RequestOptions are passed through to the host untouched. A zero duration
// means the host default.
type RequestOptions struct {
	ConnectTimeout      time.Duration
	FirstByteTimeout    time.Duration
	BetweenBytesTimeout time.Duration
}

// OutgoingHandler issues outgoing requests.
type OutgoingHandler interface {
	// Handle issues req. It returns the sink for the request body and a future
	// for the response. The body must be finished or dropped, the future must be
	// dropped. If Handle fails, nothing is returned and nothing needs releasing.
	Handle(ctx context.Context, req *OutgoingRequest, opts *RequestOptions) (OutgoingBody, FutureIncomingResponse, error)
}

// OutgoingBody is the write side of a request body.
type OutgoingBody interface {
	// Write hands p to the host. It blocks while the host applies backpressure
	// and must not retain p after returning.
	Write(ctx context.Context, p []byte) error
	// Finish signals end-of-body, with optional trailers.
	Finish(trailers Fields) error
	// Drop abandons the body; the host sees an incomplete request.
	Drop()
}

// FutureIncomingResponse resolves to the response once its headers arrive.
type FutureIncomingResponse interface {
	Get(ctx context.Context) (IncomingResponse, error)
	Drop()
}

// IncomingResponse is the host representation of response status and headers.
type IncomingResponse interface {
	Status() int
	Headers() Fields
	// Consume returns the response body. It may be called at most once.
	Consume() (IncomingBody, error)
	Drop()
}

// IncomingBody is the read side of a response body.
type IncomingBody interface {
	// Read returns at most max bytes. It returns io.EOF once the host has
	// signalled end-of-body.
	Read(ctx context.Context, max int) ([]byte, error)
	// Trailers returns the trailing headers. Only valid after Read returned
	// io.EOF.
	Trailers(ctx context.Context) (Fields, error)
	Drop()
}
