package channel

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	spb "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	wasigrpc "github.com/Aditya1404Sal/wasmcloud-grpc-client"
	"github.com/Aditya1404Sal/wasmcloud-grpc-client/internal"
)

// codeFromHTTPStatus translates the HTTP status of a response which carries
// no grpc-status into a GRPC code.
func codeFromHTTPStatus(stat int) codes.Code {
	switch stat {
	case http.StatusBadRequest:
		return codes.Internal
	case http.StatusUnauthorized:
		return codes.Unauthenticated
	case http.StatusForbidden:
		return codes.PermissionDenied
	case http.StatusNotFound:
		return codes.Unimplemented
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return codes.Unavailable
	default:
		return codes.Unknown
	}
}

// statusFromError converts an error out of the Endpoint or the response body
// into a status error. Errors which already carry a status are returned as is.
func statusFromError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(interface{ GRPCStatus() *status.Status }); ok {
		return err
	}
	switch wasigrpc.KindOf(err) {
	case wasigrpc.KindCancelled:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return status.FromContextError(ctxErr).Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return status.Error(codes.DeadlineExceeded, err.Error())
		}
		return status.Error(codes.Canceled, err.Error())
	case wasigrpc.KindTransport:
		return status.Error(codes.Unavailable, err.Error())
	case wasigrpc.KindProtocol, wasigrpc.KindConfiguration:
		return status.Error(codes.Internal, err.Error())
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return status.FromContextError(ctxErr).Err()
	}
	return status.Error(codes.Unknown, err.Error())
}

// statusFromHeader extracts the call status from response headers or
// trailers. ok is false when h has no grpc-status.
func statusFromHeader(h wasigrpc.Header) (st *status.Status, ok bool) {
	raw := h.Get("grpc-status")
	if raw == "" {
		return nil, false
	}
	code, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return status.Newf(codes.Internal, "malformed grpc-status %q", raw), true
	}
	msg := h.Get("grpc-message")
	if decoded, err := url.PathUnescape(msg); err == nil {
		msg = decoded
	}

	if details := h.Get("grpc-status-details-bin"); details != "" {
		b, err := internal.DecodeBinHeader(details)
		if err == nil {
			var sp spb.Status
			if err := proto.Unmarshal(b, &sp); err == nil && sp.GetCode() == int32(code) {
				return status.FromProto(&sp), true
			}
		}
	}
	return status.New(codes.Code(code), msg), true
}
