package channel

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	spb "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/stats"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"

	wasigrpc "github.com/Aditya1404Sal/wasmcloud-grpc-client"
	"github.com/Aditya1404Sal/wasmcloud-grpc-client/internal/mocks"
	"github.com/Aditya1404Sal/wasmcloud-grpc-client/internal/testutil"
	"github.com/Aditya1404Sal/wasmcloud-grpc-client/types"
)

const checkMethod = "/grpc.health.v1.Health/Check"

func frame(t *testing.T, m proto.Message) []byte {
	b, err := proto.Marshal(m)
	require.NoError(t, err)
	n := len(b)
	return append([]byte{0, byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}, b...)
}

func fields(kv ...string) types.Fields {
	var fs types.Fields
	for i := 0; i+1 < len(kv); i += 2 {
		fs = append(fs, types.Field{Name: kv[i], Value: []byte(kv[i+1])})
	}
	return fs
}

var grpcHeaders = fields("content-type", "application/grpc")

func okTrailers(kv ...string) types.Fields {
	return append(fields("grpc-status", "0"), fields(kv...)...)
}

func serving(t *testing.T) []byte {
	return frame(t, &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING})
}

// newConn returns a ClientConn over an Endpoint over host.
func newConn(t *testing.T, host *testutil.Host, opts ...DialOption) *ClientConn {
	e, err := wasigrpc.NewEndpoint("http://localhost:50051", host)
	require.NoError(t, err)
	return NewClientConn(e, opts...)
}

func TestInvoke(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		is := require.New(t)

		var gotBody []byte
		host := testutil.NewHost(func(ctx context.Context, c *testutil.Call) (*testutil.Response, error) {
			body, _, err := c.WaitBody(ctx)
			if err != nil {
				return nil, err
			}
			gotBody = body
			return &testutil.Response{
				Status:   200,
				Headers:  append(fields("x-header", "h"), grpcHeaders...),
				Chunks:   [][]byte{serving(t)},
				Trailers: okTrailers("x-trailer", "t"),
			}, nil
		})
		cc := newConn(t, host)

		ctx := metadata.AppendToOutgoingContext(context.Background(), "x-md", "v", "x-bin", "\x00\x01")
		var header, trailer metadata.MD
		resp, err := healthpb.NewHealthClient(cc).Check(
			ctx,
			&healthpb.HealthCheckRequest{Service: "svc"},
			grpc.Header(&header),
			grpc.Trailer(&trailer),
		)
		is.NoError(err)
		is.Equal(healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
		is.Equal([]string{"h"}, header.Get("x-header"))
		is.Equal([]string{"t"}, trailer.Get("x-trailer"))
		is.Empty(trailer.Get("grpc-status"))

		is.Equal(frame(t, &healthpb.HealthCheckRequest{Service: "svc"}), gotBody)

		req := host.Calls()[0].Request
		is.Equal("POST", req.Method)
		is.Equal(checkMethod, req.PathWithQuery)
		h := wasigrpc.Header{}
		for _, f := range req.Headers {
			h.Add(f.Name, string(f.Value))
		}
		is.Equal("application/grpc", h.Get("content-type"))
		is.Equal("trailers", h.Get("te"))
		is.Equal(defaultUserAgent, h.Get("user-agent"))
		is.Equal("v", h.Get("x-md"))
		is.Equal(base64.RawStdEncoding.EncodeToString([]byte("\x00\x01")), h.Get("x-bin"))
		is.Empty(h.Get("grpc-timeout"))
	})

	t.Run("Timeout", func(t *testing.T) {
		is := require.New(t)

		mock := clock.NewMock()
		mock.Set(time.Now())
		host := testutil.NewHost(testutil.Canned(&testutil.Response{
			Status:   200,
			Headers:  grpcHeaders,
			Chunks:   [][]byte{serving(t)},
			Trailers: okTrailers(),
		}))
		cc := newConn(t, host, WithClock(mock))

		ctx, cancel := context.WithDeadline(context.Background(), mock.Now().Add(1500*time.Millisecond))
		defer cancel()
		_, err := healthpb.NewHealthClient(cc).Check(ctx, &healthpb.HealthCheckRequest{})
		is.NoError(err)

		var timeout string
		for _, f := range host.Calls()[0].Request.Headers {
			if f.Name == "grpc-timeout" {
				timeout = string(f.Value)
			}
		}
		is.Equal("1500000u", timeout)
	})

	t.Run("ErrorInTrailers", func(t *testing.T) {
		is := require.New(t)

		host := testutil.NewHost(testutil.Canned(&testutil.Response{
			Status:   200,
			Headers:  grpcHeaders,
			Trailers: fields("grpc-status", "5", "grpc-message", "no%20such%20service"),
		}))
		_, err := healthpb.NewHealthClient(newConn(t, host)).Check(context.Background(), &healthpb.HealthCheckRequest{})
		st, ok := status.FromError(err)
		is.True(ok)
		is.Equal(codes.NotFound, st.Code())
		is.Equal("no such service", st.Message())
	})

	t.Run("StatusDetails", func(t *testing.T) {
		is := require.New(t)

		detail, err := anypb.New(&healthpb.HealthCheckRequest{Service: "detail"})
		is.NoError(err)
		b, err := proto.Marshal(&spb.Status{
			Code:    int32(codes.FailedPrecondition),
			Message: "with details",
			Details: []*anypb.Any{detail},
		})
		is.NoError(err)

		host := testutil.NewHost(testutil.Canned(&testutil.Response{
			Status:  200,
			Headers: grpcHeaders,
			Trailers: fields(
				"grpc-status", "9",
				"grpc-message", "with details",
				"grpc-status-details-bin", base64.RawStdEncoding.EncodeToString(b),
			),
		}))
		_, err = healthpb.NewHealthClient(newConn(t, host)).Check(context.Background(), &healthpb.HealthCheckRequest{})
		st := status.Convert(err)
		is.Equal(codes.FailedPrecondition, st.Code())
		is.Len(st.Details(), 1)
		is.True(proto.Equal(&healthpb.HealthCheckRequest{Service: "detail"}, st.Details()[0].(proto.Message)))
	})

	t.Run("TrailersOnly", func(t *testing.T) {
		is := require.New(t)

		host := testutil.NewHost(testutil.Canned(&testutil.Response{
			Status:  200,
			Headers: append(fields("grpc-status", "12", "grpc-message", "unknown method"), grpcHeaders...),
		}))
		var trailer metadata.MD
		_, err := healthpb.NewHealthClient(newConn(t, host)).Check(
			context.Background(),
			&healthpb.HealthCheckRequest{},
			grpc.Trailer(&trailer),
		)
		is.Equal(codes.Unimplemented, status.Code(err))
		is.NotNil(trailer)
	})

	t.Run("NoMessage", func(t *testing.T) {
		is := require.New(t)

		host := testutil.NewHost(testutil.Canned(&testutil.Response{
			Status:   200,
			Headers:  grpcHeaders,
			Trailers: okTrailers(),
		}))
		_, err := healthpb.NewHealthClient(newConn(t, host)).Check(context.Background(), &healthpb.HealthCheckRequest{})
		is.Equal(codes.Internal, status.Code(err))
	})

	t.Run("TooManyMessages", func(t *testing.T) {
		is := require.New(t)

		host := testutil.NewHost(testutil.Canned(&testutil.Response{
			Status:   200,
			Headers:  grpcHeaders,
			Chunks:   [][]byte{serving(t), serving(t)},
			Trailers: okTrailers(),
		}))
		_, err := healthpb.NewHealthClient(newConn(t, host)).Check(context.Background(), &healthpb.HealthCheckRequest{})
		is.Equal(codes.Internal, status.Code(err))
	})

	t.Run("MissingTrailers", func(t *testing.T) {
		is := require.New(t)

		host := testutil.NewHost(testutil.Canned(&testutil.Response{
			Status:  200,
			Headers: grpcHeaders,
			Chunks:  [][]byte{serving(t)},
		}))
		_, err := healthpb.NewHealthClient(newConn(t, host)).Check(context.Background(), &healthpb.HealthCheckRequest{})
		is.Equal(codes.Internal, status.Code(err))
	})

	t.Run("HTTPStatus", func(t *testing.T) {
		cases := []struct {
			status int
			code   codes.Code
		}{
			{400, codes.Internal},
			{401, codes.Unauthenticated},
			{403, codes.PermissionDenied},
			{404, codes.Unimplemented},
			{429, codes.Unavailable},
			{502, codes.Unavailable},
			{503, codes.Unavailable},
			{504, codes.Unavailable},
			{500, codes.Unknown},
		}
		for _, tc := range cases {
			is := require.New(t)

			host := testutil.NewHost(testutil.Canned(&testutil.Response{
				Status:  tc.status,
				Headers: fields("content-type", "text/plain"),
				Chunks:  [][]byte{[]byte("oops")},
			}))
			_, err := healthpb.NewHealthClient(newConn(t, host)).Check(context.Background(), &healthpb.HealthCheckRequest{})
			is.Equal(tc.code, status.Code(err), tc.status)
			is.True(host.Calls()[0].IncomingBodyDropped.Load())
		}
	})

	t.Run("WrongContentType", func(t *testing.T) {
		is := require.New(t)

		host := testutil.NewHost(testutil.Canned(&testutil.Response{
			Status:  200,
			Headers: fields("content-type", "application/json"),
		}))
		_, err := healthpb.NewHealthClient(newConn(t, host)).Check(context.Background(), &healthpb.HealthCheckRequest{})
		is.Equal(codes.Unknown, status.Code(err))
	})

	t.Run("Transport", func(t *testing.T) {
		is := require.New(t)

		host := testutil.NewHost(nil)
		host.HandleErr = types.NewErrorCode(types.ErrorConnectionRefused, "")
		_, err := healthpb.NewHealthClient(newConn(t, host)).Check(context.Background(), &healthpb.HealthCheckRequest{})
		is.Equal(codes.Unavailable, status.Code(err))
	})

	t.Run("HostProtocolError", func(t *testing.T) {
		is := require.New(t)

		host := testutil.NewHost(testutil.Fail(types.NewErrorCode(types.ErrorHTTPProtocolError, "bad frame")))
		_, err := healthpb.NewHealthClient(newConn(t, host)).Check(context.Background(), &healthpb.HealthCheckRequest{})
		is.Equal(codes.Internal, status.Code(err))
	})

	t.Run("DeadlineExceeded", func(t *testing.T) {
		is := require.New(t)

		host := testutil.NewHost(testutil.Hang())
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := healthpb.NewHealthClient(newConn(t, host)).Check(ctx, &healthpb.HealthCheckRequest{})
		is.Equal(codes.DeadlineExceeded, status.Code(err))
	})

	t.Run("Cancelled", func(t *testing.T) {
		is := require.New(t)

		host := testutil.NewHost(testutil.Hang())
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()
		_, err := healthpb.NewHealthClient(newConn(t, host)).Check(ctx, &healthpb.HealthCheckRequest{})
		is.Equal(codes.Canceled, status.Code(err))
	})

	t.Run("BodyFailsMidway", func(t *testing.T) {
		is := require.New(t)

		f := serving(t)
		host := testutil.NewHost(testutil.Canned(&testutil.Response{
			Status:  200,
			Headers: grpcHeaders,
			Chunks:  [][]byte{f[:3]},
			ReadErr: types.NewErrorCode(types.ErrorHTTPResponseIncomplete, ""),
		}))
		_, err := healthpb.NewHealthClient(newConn(t, host)).Check(context.Background(), &healthpb.HealthCheckRequest{})
		is.Equal(codes.Internal, status.Code(err))
	})

	t.Run("TruncatedFrame", func(t *testing.T) {
		is := require.New(t)

		f := serving(t)
		host := testutil.NewHost(testutil.Canned(&testutil.Response{
			Status:   200,
			Headers:  grpcHeaders,
			Chunks:   [][]byte{f[:len(f)-1]},
			Trailers: okTrailers(),
		}))
		_, err := healthpb.NewHealthClient(newConn(t, host)).Check(context.Background(), &healthpb.HealthCheckRequest{})
		is.Equal(codes.Internal, status.Code(err))
	})

	t.Run("Compressed", func(t *testing.T) {
		is := require.New(t)

		f := serving(t)
		f[0] = flagCompressed
		host := testutil.NewHost(testutil.Canned(&testutil.Response{
			Status:   200,
			Headers:  grpcHeaders,
			Chunks:   [][]byte{f},
			Trailers: okTrailers(),
		}))
		_, err := healthpb.NewHealthClient(newConn(t, host)).Check(context.Background(), &healthpb.HealthCheckRequest{})
		is.Equal(codes.Unimplemented, status.Code(err))
	})

	t.Run("MaxRecvMsgSize", func(t *testing.T) {
		is := require.New(t)

		host := testutil.NewHost(testutil.Canned(&testutil.Response{
			Status:   200,
			Headers:  grpcHeaders,
			Chunks:   [][]byte{serving(t)},
			Trailers: okTrailers(),
		}))
		cc := newConn(t, host, WithMaxRecvMsgSize(1))
		_, err := healthpb.NewHealthClient(cc).Check(context.Background(), &healthpb.HealthCheckRequest{})
		is.Equal(codes.ResourceExhausted, status.Code(err))

		_, err = healthpb.NewHealthClient(cc).Check(
			context.Background(),
			&healthpb.HealthCheckRequest{},
			grpc.MaxCallRecvMsgSize(1024),
		)
		is.NoError(err)
	})

	t.Run("MalformedMethod", func(t *testing.T) {
		is := require.New(t)

		host := testutil.NewHost(nil)
		err := newConn(t, host).Invoke(context.Background(), "noslash", &healthpb.HealthCheckRequest{}, &healthpb.HealthCheckResponse{})
		is.Equal(codes.Internal, status.Code(err))
		is.Equal(0, host.Handles())
	})
}

func TestInterceptors(t *testing.T) {
	is := require.New(t)

	var order []string
	unary := func(name string) grpc.UnaryClientInterceptor {
		return func(
			ctx context.Context,
			method string,
			req, reply interface{},
			cc *grpc.ClientConn,
			invoker grpc.UnaryInvoker,
			opts ...grpc.CallOption,
		) error {
			order = append(order, name)
			return invoker(ctx, method, req, reply, cc, opts...)
		}
	}

	host := testutil.NewHost(testutil.Canned(&testutil.Response{
		Status:   200,
		Headers:  grpcHeaders,
		Chunks:   [][]byte{serving(t)},
		Trailers: okTrailers(),
	}))
	cc := newConn(t, host,
		WithChainUnaryInterceptor(unary("b"), unary("c")),
		WithUnaryInterceptor(unary("a")),
	)
	_, err := healthpb.NewHealthClient(cc).Check(context.Background(), &healthpb.HealthCheckRequest{})
	is.NoError(err)
	is.Equal([]string{"a", "b", "c"}, order)
}

func TestServerStream(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		is := require.New(t)

		var body []byte
		for _, st := range []healthpb.HealthCheckResponse_ServingStatus{
			healthpb.HealthCheckResponse_SERVING,
			healthpb.HealthCheckResponse_NOT_SERVING,
			healthpb.HealthCheckResponse_SERVING,
		} {
			body = append(body, frame(t, &healthpb.HealthCheckResponse{Status: st})...)
		}
		// Chunk boundaries never line up with frame boundaries.
		var chunks [][]byte
		for len(body) > 0 {
			n := 3
			if n > len(body) {
				n = len(body)
			}
			chunks = append(chunks, body[:n])
			body = body[n:]
		}

		host := testutil.NewHost(testutil.Canned(&testutil.Response{
			Status:   200,
			Headers:  append(fields("x-header", "h"), grpcHeaders...),
			Chunks:   chunks,
			Trailers: okTrailers("x-trailer", "t"),
		}))

		stream, err := healthpb.NewHealthClient(newConn(t, host)).Watch(context.Background(), &healthpb.HealthCheckRequest{})
		is.NoError(err)

		header, err := stream.Header()
		is.NoError(err)
		is.Equal([]string{"h"}, header.Get("x-header"))

		var got []healthpb.HealthCheckResponse_ServingStatus
		for {
			resp, err := stream.Recv()
			if err == io.EOF {
				break
			}
			is.NoError(err)
			got = append(got, resp.GetStatus())
		}
		is.Equal([]healthpb.HealthCheckResponse_ServingStatus{
			healthpb.HealthCheckResponse_SERVING,
			healthpb.HealthCheckResponse_NOT_SERVING,
			healthpb.HealthCheckResponse_SERVING,
		}, got)
		is.Equal([]string{"t"}, stream.Trailer().Get("x-trailer"))

		_, err = stream.Recv()
		is.Equal(io.EOF, err)

		is.True(host.Calls()[0].IncomingBodyDropped.Load())
	})

	t.Run("ErrorAfterMessages", func(t *testing.T) {
		is := require.New(t)

		host := testutil.NewHost(testutil.Canned(&testutil.Response{
			Status:   200,
			Headers:  grpcHeaders,
			Chunks:   [][]byte{serving(t)},
			Trailers: fields("grpc-status", "14", "grpc-message", "going away"),
		}))

		stream, err := healthpb.NewHealthClient(newConn(t, host)).Watch(context.Background(), &healthpb.HealthCheckRequest{})
		is.NoError(err)

		_, err = stream.Recv()
		is.NoError(err)
		_, err = stream.Recv()
		is.Equal(codes.Unavailable, status.Code(err))
		is.Equal("going away", status.Convert(err).Message())

		_, err = stream.Recv()
		is.Equal(codes.Unavailable, status.Code(err))
	})

	t.Run("HeaderError", func(t *testing.T) {
		is := require.New(t)

		host := testutil.NewHost(nil)
		host.HandleErr = types.NewErrorCode(types.ErrorDNSError, "no such host")

		stream, err := healthpb.NewHealthClient(newConn(t, host)).Watch(context.Background(), &healthpb.HealthCheckRequest{})
		is.NoError(err)

		md, err := stream.Header()
		is.Nil(md)
		is.Equal(codes.Unavailable, status.Code(err))

		_, err = stream.Recv()
		is.Equal(codes.Unavailable, status.Code(err))
	})
}

func TestEncodeTimeout(t *testing.T) {
	cases := []struct {
		in  time.Duration
		out string
	}{
		{-time.Second, "0n"},
		{0, "0n"},
		{time.Nanosecond, "1n"},
		{99999999 * time.Nanosecond, "99999999n"},
		{100 * time.Millisecond, "100000u"},
		{2 * time.Minute, "120000m"},
		{30 * time.Hour, "108000S"},
		{3000 * time.Hour, "10800000S"},
	}
	for _, tc := range cases {
		t.Run(tc.out, func(t *testing.T) {
			require.Equal(t, tc.out, encodeTimeout(tc.in))
		})
	}
}

func TestStatsHandler(t *testing.T) {
	is := require.New(t)

	sh := mocks.NewStatsHandler(t)
	sh.EXPECT().TagRPC(mock.Anything, mock.Anything).
		RunAndReturn(func(ctx context.Context, info *stats.RPCTagInfo) context.Context {
			return ctx
		}).Once()

	var got []string
	var end *stats.End
	sh.EXPECT().HandleRPC(mock.Anything, mock.Anything).
		Run(func(_ context.Context, s stats.RPCStats) {
			is.True(s.IsClient())
			got = append(got, fmt.Sprintf("%T", s))
			if e, ok := s.(*stats.End); ok {
				end = e
			}
		})

	host := testutil.NewHost(testutil.Canned(&testutil.Response{
		Status:   200,
		Headers:  grpcHeaders,
		Chunks:   [][]byte{serving(t)},
		Trailers: okTrailers(),
	}))
	_, err := healthpb.NewHealthClient(newConn(t, host, WithStatsHandler(sh))).
		Check(context.Background(), &healthpb.HealthCheckRequest{})
	is.NoError(err)

	is.Equal([]string{
		"*stats.Begin",
		"*stats.OutHeader",
		"*stats.OutPayload",
		"*stats.InHeader",
		"*stats.InPayload",
		"*stats.InTrailer",
		"*stats.End",
	}, got)
	is.NotNil(end)
	is.NoError(end.Error)
}
