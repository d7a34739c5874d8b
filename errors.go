package wasigrpc

import (
	"context"
	stderrors "errors"

	"github.com/pkg/errors"

	"github.com/Aditya1404Sal/wasmcloud-grpc-client/types"
)

// Kind classifies the failure of a call.
type Kind uint8

const (
	// KindConfiguration means the endpoint or request URI is unusable. It is
	// always reported before the host is contacted.
	KindConfiguration Kind = iota + 1
	// KindTransport means the host could not establish or complete the call.
	KindTransport
	// KindProtocol means malformed header or body data on either side.
	KindProtocol
	// KindCancelled means the caller abandoned the call.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration error"
	case KindTransport:
		return "transport error"
	case KindProtocol:
		return "protocol error"
	case KindCancelled:
		return "cancelled"
	}
	return "unknown error"
}

// Sentinels for errors.Is.
var (
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrTransport     = &Error{Kind: KindTransport}
	ErrProtocol      = &Error{Kind: KindProtocol}
	ErrCancelled     = &Error{Kind: KindCancelled}
)

// Error is returned by every failing Endpoint operation.
type Error struct {
	Kind Kind
	// Op names the step that failed, e.g. "translate request" or "await response".
	Op  string
	Err error
}

func (e *Error) Error() string {
	s := "wasigrpc: " + e.Kind.String()
	if e.Op != "" {
		s += ": " + e.Op
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so the sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the Kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func configErrorf(op, format string, args ...interface{}) error {
	return &Error{Kind: KindConfiguration, Op: op, Err: errors.Errorf(format, args...)}
}

func protocolErrorf(op, format string, args ...interface{}) error {
	return &Error{Kind: KindProtocol, Op: op, Err: errors.Errorf(format, args...)}
}

// fromHost classifies an error returned by the host. Context errors take
// precedence: a call abandoned by its caller is Cancelled whatever the host
// reported.
func fromHost(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &Error{Kind: KindCancelled, Op: op, Err: ctxErr}
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindCancelled, Op: op, Err: err}
	}
	var code *types.ErrorCode
	if stderrors.As(err, &code) && code.Kind.IsProtocol() {
		return &Error{Kind: KindProtocol, Op: op, Err: errors.Wrap(err, "host")}
	}
	return &Error{Kind: KindTransport, Op: op, Err: errors.Wrap(err, "host")}
}

// fromBodyRead classifies a failure while pulling response bytes. Anything the
// host reports here is a Protocol error, except cancellation by the caller.
func fromBodyRead(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &Error{Kind: KindCancelled, Op: "read response body", Err: ctxErr}
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindCancelled, Op: "read response body", Err: err}
	}
	return &Error{Kind: KindProtocol, Op: "read response body", Err: errors.Wrap(err, "host")}
}
