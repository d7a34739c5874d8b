package internal

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"time"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/stats"

	wasigrpc "github.com/Aditya1404Sal/wasmcloud-grpc-client"
)

// reservedHeaders are owned by the gRPC wire protocol and never copied to or
// from user metadata.
var reservedHeaders = map[string]struct{}{
	"content-type":            {},
	"content-length":          {},
	"te":                      {},
	"trailer":                 {},
	"transfer-encoding":       {},
	"connection":              {},
	"keep-alive":              {},
	"upgrade":                 {},
	"user-agent":              {},
	"grpc-timeout":            {},
	"grpc-encoding":           {},
	"grpc-accept-encoding":    {},
	"grpc-status":             {},
	"grpc-message":            {},
	"grpc-status-details-bin": {},
}

// IsReservedHeader reports whether name belongs to the wire protocol.
func IsReservedHeader(name string) bool {
	name = strings.ToLower(name)
	if strings.HasPrefix(name, ":") {
		return true
	}
	_, ok := reservedHeaders[name]
	return ok
}

// ToHeader appends the given metadata to h. Reserved keys are skipped.
func ToHeader(h *wasigrpc.Header, mds ...metadata.MD) {
	for k, vs := range metadata.Join(mds...) {
		lowerK := strings.ToLower(k)
		if IsReservedHeader(lowerK) {
			continue
		}
		// binary headers must be base-64-encoded
		isBin := strings.HasSuffix(lowerK, "-bin")
		for _, v := range vs {
			if isBin {
				v = base64.RawStdEncoding.EncodeToString([]byte(v))
			}
			h.Add(lowerK, v)
		}
	}
}

// ToMetadata converts response headers or trailers into metadata. Reserved
// keys are skipped.
func ToMetadata(h wasigrpc.Header) (metadata.MD, error) {
	md := metadata.MD{}
	for _, f := range h {
		k := strings.ToLower(f.Name)
		if IsReservedHeader(k) {
			continue
		}
		v := f.Value
		if strings.HasSuffix(k, "-bin") {
			vv, err := DecodeBinHeader(v)
			if err != nil {
				return nil, err
			}
			v = string(vv)
		}
		md[k] = append(md[k], v)
	}
	return md, nil
}

// DecodeBinHeader decodes a -bin header value. Senders may or may not pad.
func DecodeBinHeader(v string) ([]byte, error) {
	if len(v)%4 == 0 {
		return base64.StdEncoding.DecodeString(v)
	}
	return base64.RawStdEncoding.DecodeString(v)
}

func StatsStartClientRPC(
	statsHandlers []stats.Handler,
	beginTime time.Time,
	method string,
	isClientStream bool,
	isServerStream bool,
	ctx context.Context,
) context.Context {
	for _, sh := range statsHandlers {
		ctx = sh.TagRPC(ctx, &stats.RPCTagInfo{
			FullMethodName: method,
		})
		sh.HandleRPC(ctx, &stats.Begin{
			Client:         true,
			BeginTime:      beginTime,
			IsClientStream: isClientStream,
			IsServerStream: isServerStream,
		})
	}
	return ctx
}

func StatsEndRPC(
	statsHandlers []stats.Handler,
	beginTime time.Time,
	endTime time.Time,
	appErr error,
	ctx context.Context,
) {
	for _, sh := range statsHandlers {
		end := &stats.End{
			Client:    true,
			BeginTime: beginTime,
			EndTime:   endTime,
		}
		if appErr != nil && !errors.Is(appErr, io.EOF) {
			end.Error = appErr
		}
		sh.HandleRPC(ctx, end)
	}
}
