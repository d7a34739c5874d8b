package wasigrpc

import (
	"context"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Aditya1404Sal/wasmcloud-grpc-client/types"
)

const defaultChunkSize = 16 * 1024

// Endpoint sends requests to one remote service through the host's outgoing
// HTTP capability. It is bound to a base URI at construction and never
// changes afterwards; it keeps no state between calls, so a single Endpoint
// may be used from many goroutines. Connection reuse is up to the host.
type Endpoint struct {
	base *url.URL
	host types.OutgoingHandler

	logger         zerolog.Logger
	chunkSize      int
	requestOptions *types.RequestOptions
}

// EndpointOption configures an Endpoint.
type EndpointOption interface {
	apply(*Endpoint)
}

type endpointOptFunc func(*Endpoint)

func (fn endpointOptFunc) apply(e *Endpoint) {
	fn(e)
}

// WithLogger sets the logger used by the Endpoint. The global zerolog logger is
// used by default.
func WithLogger(l zerolog.Logger) EndpointOption {
	return endpointOptFunc(func(e *Endpoint) {
		e.logger = l
	})
}

// WithChunkSize bounds the number of bytes moved per host body read or write.
func WithChunkSize(n int) EndpointOption {
	return endpointOptFunc(func(e *Endpoint) {
		if n > 0 {
			e.chunkSize = n
		}
	})
}

// WithRequestOptions sets the options handed to the host with every request.
func WithRequestOptions(opts types.RequestOptions) EndpointOption {
	return endpointOptFunc(func(e *Endpoint) {
		e.requestOptions = &opts
	})
}

// NewEndpoint parses baseURI and returns an Endpoint bound to it. The URI must
// carry an http or https scheme and an authority, e.g.
// "http://localhost:50051".
func NewEndpoint(baseURI string, host types.OutgoingHandler, opts ...EndpointOption) (*Endpoint, error) {
	u, err := url.Parse(baseURI)
	if err != nil {
		return nil, configErrorf("parse base URI", "%v", err)
	}
	return NewEndpointURL(u, host, opts...)
}

// NewEndpointURL is NewEndpoint for an already parsed URI.
func NewEndpointURL(base *url.URL, host types.OutgoingHandler, opts ...EndpointOption) (*Endpoint, error) {
	const op = "validate base URI"

	if base == nil {
		return nil, configErrorf(op, "missing base URI")
	}
	scheme := strings.ToLower(base.Scheme)
	switch scheme {
	case "http", "https":
	case "":
		return nil, configErrorf(op, "base URI %q has no scheme", base.String())
	default:
		return nil, configErrorf(op, "base URI %q has unsupported scheme %q", base.String(), base.Scheme)
	}
	if base.Opaque != "" || base.Host == "" {
		return nil, configErrorf(op, "base URI %q has no authority", base.String())
	}
	if host == nil {
		return nil, configErrorf(op, "no outgoing handler")
	}

	u := *base
	u.Scheme = scheme
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""

	e := &Endpoint{
		base:      &u,
		host:      host,
		logger:    log.Logger,
		chunkSize: defaultChunkSize,
	}
	for _, opt := range opts {
		opt.apply(e)
	}
	return e, nil
}

// URL returns a copy of the base URI.
func (e *Endpoint) URL() *url.URL {
	u := *e.base
	return &u
}

// resolve returns the absolute target of a request.
func (e *Endpoint) resolve(u *url.URL) (*url.URL, error) {
	const op = "resolve request URI"

	if u == nil {
		return nil, configErrorf(op, "missing request URI")
	}
	if u.Scheme == "" && u.Host == "" {
		out := *u
		out.Scheme = e.base.Scheme
		out.Host = e.base.Host
		// join the escaped forms so that escapes such as %2F survive
		raw := joinPath(e.base.EscapedPath(), u.EscapedPath())
		p, err := url.PathUnescape(raw)
		if err != nil {
			return nil, configErrorf(op, "invalid request path %q: %v", raw, err)
		}
		out.Path = p
		out.RawPath = raw
		return &out, nil
	}
	if !strings.EqualFold(u.Scheme, e.base.Scheme) || !strings.EqualFold(u.Host, e.base.Host) {
		return nil, configErrorf(op, "request URI %q does not match endpoint %q", u.String(), e.base.String())
	}
	return u, nil
}

func joinPath(base, p string) string {
	base = strings.TrimSuffix(base, "/")
	if p == "" {
		if base == "" {
			return "/"
		}
		return base
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return base + p
}

// call is the state of one in-flight exchange. It lives from Send until the
// response body is released.
type call struct {
	// parent is the caller's context; ctx is derived from it and is cancelled
	// when the call ends.
	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc

	pumpErr   chan error
	responded atomic.Bool
	chunk     int
	log       zerolog.Logger
}

func (c *call) finish() {
	c.cancel()
}

// Send issues req through the host and returns once the response headers have
// arrived. The response body is streamed from the host as it is read.
//
// Send calls the host exactly once and never retries. Failures are *Error
// values of kind Configuration, Transport, Protocol or Cancelled.
func (e *Endpoint) Send(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, configErrorf("send", "missing request")
	}

	target, err := e.resolve(req.URL)
	if err != nil {
		closeBody(req.Body)
		return nil, err
	}
	out, err := translateRequest(req.Method, target, req.Header)
	if err != nil {
		closeBody(req.Body)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		closeBody(req.Body)
		return nil, &Error{Kind: KindCancelled, Op: "send", Err: err}
	}

	logger := e.logger.With().
		Str("call", uuid.NewString()).
		Str("method", out.Method).
		Str("target", target.String()).
		Logger()

	callCtx, cancel := context.WithCancel(ctx)
	c := &call{
		parent:  ctx,
		ctx:     callCtx,
		cancel:  cancel,
		pumpErr: make(chan error, 1),
		chunk:   e.chunkSize,
		log:     logger,
	}

	logger.Debug().Msg("Endpoint.Send: issuing request")

	sink, future, err := e.host.Handle(callCtx, out, e.requestOptions)
	if err != nil {
		cancel()
		closeBody(req.Body)
		err = fromHost(ctx, "issue request", err)
		logger.Error().Err(err).Msg("Endpoint.Send: host rejected request")
		return nil, err
	}

	pump := &requestBodyWriter{
		req:   req,
		sink:  sink,
		chunk: e.chunkSize,
		log:   logger,
	}
	go func() {
		if err := pump.run(callCtx); err != nil {
			c.pumpErr <- err
			// once the response is in, the two bodies fail independently
			if !c.responded.Load() {
				cancel()
			}
			if KindOf(err) == KindCancelled {
				logger.Debug().Err(err).Msg("Endpoint.Send: request body abandoned")
			} else {
				logger.Error().Err(err).Msg("Endpoint.Send: request body failed")
			}
		}
	}()

	resp, err := future.Get(callCtx)
	future.Drop()
	if err == nil {
		c.responded.Store(true)
	}
	if err != nil {
		// a failing request body cancels the call, so its error is the cause
		select {
		case perr := <-c.pumpErr:
			err = perr
		default:
			err = fromHost(ctx, "await response", err)
		}
		cancel()
		logger.Error().Err(err).Msg("Endpoint.Send: no response")
		return nil, err
	}

	r, err := translateResponse(c, resp)
	if err != nil {
		cancel()
		logger.Error().Err(err).Msg("Endpoint.Send: bad response")
		return nil, err
	}

	logger.Debug().Int("status", r.StatusCode).Msg("Endpoint.Send: response headers received")
	return r, nil
}
