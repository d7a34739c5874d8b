package channel

import (
	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/stats"
)

// DialOption is an option used when constructing a NewClientConn.
type DialOption interface {
	apply(*ClientConn)
}

type dialOptFunc func(*ClientConn)

func (fn dialOptFunc) apply(cc *ClientConn) {
	fn(cc)
}

// WithUnaryInterceptor returns a DialOption that specifies the interceptor for
// unary RPCs.
//
// WARNING: the interceptor will be called with a nil *grpc.ClientConn, since
// ClientConn is not that concrete type.
func WithUnaryInterceptor(i grpc.UnaryClientInterceptor) DialOption {
	return dialOptFunc(func(cc *ClientConn) {
		cc.unaryInterceptor = i
	})
}

// WithStreamInterceptor returns a DialOption that specifies the interceptor for
// streaming RPCs.
//
// WARNING: the interceptor will be called with a nil *grpc.ClientConn.
func WithStreamInterceptor(i grpc.StreamClientInterceptor) DialOption {
	return dialOptFunc(func(cc *ClientConn) {
		cc.streamInterceptor = i
	})
}

// WithChainUnaryInterceptor returns a DialOption that specifies the chained
// interceptor for unary RPCs. The first interceptor will be the outer most,
// while the last interceptor will be the inner most wrapper around the real call.
// The interceptor defined by WithUnaryInterceptor is always prepended to the
// chain.
func WithChainUnaryInterceptor(is ...grpc.UnaryClientInterceptor) DialOption {
	return dialOptFunc(func(cc *ClientConn) {
		cc.chainUnaryInterceptors = append(cc.chainUnaryInterceptors, is...)
	})
}

// WithChainStreamInterceptor returns a DialOption that specifies the chained
// interceptor for streaming RPCs. The interceptor defined by
// WithStreamInterceptor is always prepended to the chain.
func WithChainStreamInterceptor(is ...grpc.StreamClientInterceptor) DialOption {
	return dialOptFunc(func(cc *ClientConn) {
		cc.chainStreamInterceptors = append(cc.chainStreamInterceptors, is...)
	})
}

// WithStatsHandler returns a DialOption that specifies the stats handler for
// all the RPCs.
func WithStatsHandler(h stats.Handler) DialOption {
	return dialOptFunc(func(cc *ClientConn) {
		if h == nil {
			return
		}
		cc.statsHandlers = append(cc.statsHandlers, h)
	})
}

// WithCodec overrides the proto codec used for messages.
func WithCodec(c encoding.CodecV2) DialOption {
	return dialOptFunc(func(cc *ClientConn) {
		cc.codec = c
	})
}

// WithMaxRecvMsgSize sets the largest message the client accepts, 4MiB by
// default.
func WithMaxRecvMsgSize(n int) DialOption {
	return dialOptFunc(func(cc *ClientConn) {
		if n > 0 {
			cc.maxRecvMsgSize = n
		}
	})
}

// WithUserAgent prepends ua to the user-agent sent with every call.
func WithUserAgent(ua string) DialOption {
	return dialOptFunc(func(cc *ClientConn) {
		cc.userAgent = ua + " " + defaultUserAgent
	})
}

// WithLogger sets the logger, log.Logger by default.
func WithLogger(l zerolog.Logger) DialOption {
	return dialOptFunc(func(cc *ClientConn) {
		cc.log = l
	})
}

// WithClock sets the clock used for timeouts and stats timestamps.
func WithClock(c clock.Clock) DialOption {
	return dialOptFunc(func(cc *ClientConn) {
		cc.clock = c
	})
}
