// Package channel carries gRPC calls over a wasigrpc.Endpoint. Generated
// clients accept a *ClientConn wherever they take a grpc.ClientConnInterface.
package channel

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/encoding/proto"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/stats"
	"google.golang.org/grpc/status"

	wasigrpc "github.com/Aditya1404Sal/wasmcloud-grpc-client"
	"github.com/Aditya1404Sal/wasmcloud-grpc-client/internal"
)

const defaultUserAgent = "wasigrpc-go/0.1"

// Sender issues one HTTP call. *wasigrpc.Endpoint is a Sender.
type Sender interface {
	Send(ctx context.Context, req *wasigrpc.Request) (*wasigrpc.Response, error)
}

var _ Sender = (*wasigrpc.Endpoint)(nil)

type ClientConn struct {
	sender Sender

	codec          encoding.CodecV2
	clock          clock.Clock
	log            zerolog.Logger
	userAgent      string
	maxRecvMsgSize int

	unaryInterceptor        grpc.UnaryClientInterceptor
	chainUnaryInterceptors  []grpc.UnaryClientInterceptor
	streamInterceptor       grpc.StreamClientInterceptor
	chainStreamInterceptors []grpc.StreamClientInterceptor

	statsHandlers []stats.Handler
}

var _ grpc.ClientConnInterface = (*ClientConn)(nil)

func NewClientConn(s Sender, opts ...DialOption) *ClientConn {
	cc := ClientConn{
		sender:         s,
		codec:          encoding.GetCodecV2(proto.Name),
		clock:          clock.New(),
		log:            log.Logger,
		userAgent:      defaultUserAgent,
		maxRecvMsgSize: defaultMaxRecvMsgSize,
	}
	for _, opt := range opts {
		opt.apply(&cc)
	}

	cc.unaryInterceptor = chainedUnaryInterceptors(&cc)
	cc.streamInterceptor = chainedStreamInterceptors(&cc)

	return &cc
}

// Invoke performs a unary RPC and returns after the response is received
// into reply.
func (cc *ClientConn) Invoke(
	ctx context.Context,
	method string,
	args interface{},
	reply interface{},
	opts ...grpc.CallOption,
) error {
	if cc.unaryInterceptor != nil {
		// NOTE: grpc.ClientConn is a concrete type which leaks out of package grpc;
		// since we're not that concrete type, we're forced to pass nil here.
		return cc.unaryInterceptor(ctx, method, args, reply, nil, cc.asInvoker, opts...)
	}
	return cc.invoke(ctx, method, args, reply, opts...)
}

var unaryStreamDesc = &grpc.StreamDesc{ServerStreams: false, ClientStreams: false}

func (cc *ClientConn) invoke(
	ctx context.Context,
	method string,
	args interface{},
	reply interface{},
	opts ...grpc.CallOption,
) error {
	cs, err := cc.newStream(ctx, unaryStreamDesc, method, opts...)
	if err != nil {
		return err
	}
	if err := cs.SendMsg(args); err != nil && err != io.EOF {
		return err
	}
	if err := cs.CloseSend(); err != nil {
		return err
	}
	return cs.RecvMsg(reply)
}

func (cc *ClientConn) asInvoker(
	ctx context.Context,
	method string,
	req, reply interface{},
	_ *grpc.ClientConn,
	opts ...grpc.CallOption,
) error {
	return cc.invoke(ctx, method, req, reply, opts...)
}

// NewStream begins a streaming RPC.
func (cc *ClientConn) NewStream(
	ctx context.Context,
	desc *grpc.StreamDesc,
	method string,
	opts ...grpc.CallOption,
) (grpc.ClientStream, error) {
	if cc.streamInterceptor != nil {
		// NOTE: as for Invoke, the interceptor gets a nil *grpc.ClientConn.
		return cc.streamInterceptor(ctx, desc, nil, method, cc.asStreamer, opts...)
	}
	return cc.newStream(ctx, desc, method, opts...)
}

func (cc *ClientConn) newStream(
	ctx context.Context,
	desc *grpc.StreamDesc,
	method string,
	opts ...grpc.CallOption,
) (*clientStream, error) {
	if !strings.HasPrefix(method, "/") || strings.Count(method, "/") != 2 {
		return nil, status.Errorf(codes.Internal, "malformed method name %q", method)
	}
	co := cc.callOptions(opts)

	beginTime := cc.clock.Now()
	ctx = internal.StatsStartClientRPC(
		cc.statsHandlers,
		beginTime,
		method,
		desc.ClientStreams,
		desc.ServerStreams,
		ctx,
	)

	header := cc.requestHeader(ctx)
	for _, sh := range cc.statsHandlers {
		md, _ := internal.ToMetadata(header)
		sh.HandleRPC(ctx, &stats.OutHeader{
			Client:     true,
			FullMethod: method,
			Header:     md,
		})
	}

	pr, pw := io.Pipe()
	req := &wasigrpc.Request{
		Method: "POST",
		URL:    &url.URL{Path: method},
		Header: header,
		Body:   pr,
	}

	cs := newClientStream(ctx, cc, desc, method, co, pw, beginTime)
	go cs.send(req)

	return cs, nil
}

func (cc *ClientConn) asStreamer(
	ctx context.Context,
	desc *grpc.StreamDesc,
	_ *grpc.ClientConn,
	method string,
	opts ...grpc.CallOption,
) (grpc.ClientStream, error) {
	return cc.newStream(ctx, desc, method, opts...)
}

// requestHeader returns the headers of a call: the fixed gRPC ones, the
// deadline as grpc-timeout and the outgoing metadata of ctx.
func (cc *ClientConn) requestHeader(ctx context.Context) wasigrpc.Header {
	h := wasigrpc.Header{
		{Name: "content-type", Value: "application/grpc"},
		{Name: "te", Value: "trailers"},
		{Name: "user-agent", Value: cc.userAgent},
	}
	if deadline, ok := ctx.Deadline(); ok {
		h.Add("grpc-timeout", encodeTimeout(deadline.Sub(cc.clock.Now())))
	}
	if md, ok := metadata.FromOutgoingContext(ctx); ok {
		internal.ToHeader(&h, md)
	}
	return h
}

type callOptions struct {
	header         *metadata.MD
	trailer        *metadata.MD
	maxRecvMsgSize int
}

func (cc *ClientConn) callOptions(opts []grpc.CallOption) callOptions {
	co := callOptions{maxRecvMsgSize: cc.maxRecvMsgSize}
	for _, opt := range opts {
		switch o := opt.(type) {
		case grpc.HeaderCallOption:
			co.header = o.HeaderAddr
		case grpc.TrailerCallOption:
			co.trailer = o.TrailerAddr
		case grpc.MaxRecvMsgSizeCallOption:
			co.maxRecvMsgSize = o.MaxRecvMsgSize
		default:
			cc.log.Debug().Str("option", fmt.Sprintf("%T", opt)).Msg("call option ignored")
		}
	}
	return co
}

const maxTimeoutValue int64 = 100000000 - 1

// encodeTimeout formats t in the largest precision unit whose value fits the
// eight digits grpc-timeout allows.
func encodeTimeout(t time.Duration) string {
	if t <= 0 {
		return "0n"
	}
	units := []struct {
		d time.Duration
		s string
	}{
		{time.Nanosecond, "n"},
		{time.Microsecond, "u"},
		{time.Millisecond, "m"},
		{time.Second, "S"},
		{time.Minute, "M"},
	}
	for _, u := range units {
		if v := int64(t / u.d); v <= maxTimeoutValue {
			return fmt.Sprintf("%d%s", v, u.s)
		}
	}
	// Rounded up so the server never sees a shorter deadline.
	return fmt.Sprintf("%dH", int64((t+time.Hour-1)/time.Hour))
}

// chainedUnaryInterceptors chains all unary client interceptors into one.
func chainedUnaryInterceptors(cc *ClientConn) grpc.UnaryClientInterceptor {
	interceptors := cc.chainUnaryInterceptors
	if cc.unaryInterceptor != nil {
		interceptors = append(
			[]grpc.UnaryClientInterceptor{cc.unaryInterceptor},
			interceptors...,
		)
	}
	switch len(interceptors) {
	case 0:
		return nil
	case 1:
		return interceptors[0]
	default:
		return grpc_middleware.ChainUnaryClient(interceptors...)
	}
}

// chainedStreamInterceptors chains all stream client interceptors into one.
func chainedStreamInterceptors(cc *ClientConn) grpc.StreamClientInterceptor {
	interceptors := cc.chainStreamInterceptors
	if cc.streamInterceptor != nil {
		interceptors = append(
			[]grpc.StreamClientInterceptor{cc.streamInterceptor},
			interceptors...,
		)
	}
	switch len(interceptors) {
	case 0:
		return nil
	case 1:
		return interceptors[0]
	default:
		return grpc_middleware.ChainStreamClient(interceptors...)
	}
}
