// Package nethttp implements the outgoing-HTTP host interface on top of
// golang.org/x/net/http2. Plain http authorities are reached over h2c.
package nethttp

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"

	"github.com/Aditya1404Sal/wasmcloud-grpc-client/types"
)

// Host issues outgoing requests for one guest. It keeps one HTTP/2 transport
// per scheme and authority and closes the idle ones periodically.
type Host struct {
	ctx    context.Context
	cancel context.CancelFunc

	allowed   map[string]struct{}
	tlsConfig *tls.Config
	dialer    *net.Dialer
	log       zerolog.Logger

	connectionCleanupInterval time.Duration
	connectionTimeout         time.Duration
	clock                     clock.Clock

	conns struct {
		sync.Mutex
		value map[string]*transport
	}
}

var _ types.OutgoingHandler = (*Host)(nil)

type transport struct {
	key          string
	rt           *http2.Transport
	lastActivity atomic.Int64
}

func New(opts ...Option) *Host {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Host{
		ctx:    ctx,
		cancel: cancel,

		dialer: &net.Dialer{KeepAlive: 30 * time.Second},
		log:    log.Logger,

		connectionCleanupInterval: 1 * time.Minute,
		connectionTimeout:         4 * time.Minute,
		clock:                     clock.New(),
	}
	h.conns.value = make(map[string]*transport)

	for _, opt := range opts {
		opt.apply(h)
	}

	go h.connectionCleaner()

	return h
}

type Option interface {
	apply(*Host)
}

type hostOptFunc func(*Host)

func (fn hostOptFunc) apply(h *Host) {
	fn(h)
}

// WithAllowedAuthorities restricts the host to the given host:port
// authorities. Requests for any other authority fail with
// HTTP-request-denied. By default every authority is allowed.
func WithAllowedAuthorities(authorities ...string) Option {
	return hostOptFunc(func(h *Host) {
		if h.allowed == nil {
			h.allowed = make(map[string]struct{})
		}
		for _, a := range authorities {
			h.allowed[strings.ToLower(a)] = struct{}{}
		}
	})
}

// WithTLSConfig sets the TLS configuration used for https authorities.
func WithTLSConfig(cfg *tls.Config) Option {
	return hostOptFunc(func(h *Host) {
		h.tlsConfig = cfg
	})
}

// WithLogger sets the logger of the Host.
func WithLogger(l zerolog.Logger) Option {
	return hostOptFunc(func(h *Host) {
		h.log = l
	})
}

// WithClock sets the clock of the Host.
func WithClock(cl clock.Clock) Option {
	return hostOptFunc(func(h *Host) {
		h.clock = cl
	})
}

// WithConnectionCleanupInterval sets the interval between firings of the
// connection cleanup routine.
func WithConnectionCleanupInterval(i time.Duration) Option {
	return hostOptFunc(func(h *Host) {
		h.connectionCleanupInterval = i
	})
}

// WithConnectionTimeout sets how long a transport may go unused before its
// connections are closed.
func WithConnectionTimeout(t time.Duration) Option {
	return hostOptFunc(func(h *Host) {
		h.connectionTimeout = t
	})
}

// Close stops the cleanup routine and closes every idle connection. Calls in
// flight are not interrupted.
func (h *Host) Close() error {
	h.cancel()

	h.conns.Lock()
	defer h.conns.Unlock()
	for key, t := range h.conns.value {
		t.rt.CloseIdleConnections()
		delete(h.conns.value, key)
	}
	return nil
}

// Handle starts the request. The request body streams through the returned
// OutgoingBody while the response is awaited through the future.
func (h *Host) Handle(
	ctx context.Context,
	req *types.OutgoingRequest,
	opts *types.RequestOptions,
) (types.OutgoingBody, types.FutureIncomingResponse, error) {
	if h.ctx.Err() != nil {
		return nil, nil, errClosed
	}
	if req.Scheme != "http" && req.Scheme != "https" {
		return nil, nil, types.NewErrorCode(types.ErrorHTTPRequestURIInvalid, "unsupported scheme "+req.Scheme)
	}
	if !h.allows(req.Authority) {
		return nil, nil, types.NewErrorCode(types.ErrorHTTPRequestDenied, "authority "+req.Authority+" not allowed")
	}
	u, err := url.Parse(req.Scheme + "://" + req.Authority + req.PathWithQuery)
	if err != nil {
		return nil, nil, types.NewErrorCode(types.ErrorHTTPRequestURIInvalid, err.Error())
	}
	if opts == nil {
		opts = &types.RequestOptions{}
	}

	rctx, cancel := context.WithCancelCause(ctx)
	rctx = context.WithValue(rctx, optionsKey{}, opts)

	pr, pw := io.Pipe()
	body := &requestBody{pr: pr, started: make(chan struct{})}
	hreq, err := http.NewRequestWithContext(rctx, req.Method, u.String(), body)
	if err != nil {
		cancel(nil)
		return nil, nil, types.NewErrorCode(types.ErrorHTTPRequestMethodInvalid, err.Error())
	}
	hreq.ContentLength = -1
	hreq.Trailer = http.Header{}
	for _, f := range req.Headers {
		// declared trailers are announced by the transport itself
		if strings.EqualFold(f.Name, "trailer") {
			for _, k := range strings.Split(string(f.Value), ",") {
				if k = strings.TrimSpace(k); k != "" {
					hreq.Trailer[http.CanonicalHeaderKey(k)] = nil
				}
			}
			continue
		}
		hreq.Header.Add(f.Name, string(f.Value))
	}
	// the host authority wins over any host header from the guest
	hreq.Host = req.Authority
	hreq.Header.Del("Host")

	t := h.transportFor(req.Scheme, req.Authority)
	f := &future{
		h:      h,
		ctx:    rctx,
		cancel: cancel,
		opts:   opts,
		done:   make(chan struct{}),
	}
	go func() {
		t.lastActivity.Store(h.clock.Now().Unix())
		f.resp, f.err = t.rt.RoundTrip(hreq)
		close(f.done)
	}()

	h.log.Debug().
		Str("method", req.Method).
		Str("url", u.String()).
		Msg("Host.Handle: request started")

	ob := &outgoingBody{
		pw:      pw,
		trailer: hreq.Trailer,
		started: body.started,
		done:    f.done,
	}
	return ob, f, nil
}

func (h *Host) allows(authority string) bool {
	if h.allowed == nil {
		return true
	}
	_, ok := h.allowed[strings.ToLower(authority)]
	return ok
}

type optionsKey struct{}

func optionsFrom(ctx context.Context) *types.RequestOptions {
	if o, ok := ctx.Value(optionsKey{}).(*types.RequestOptions); ok {
		return o
	}
	return &types.RequestOptions{}
}

// transportFor returns the transport of scheme and authority, creating it on
// first use.
func (h *Host) transportFor(scheme, authority string) *transport {
	key := scheme + "://" + strings.ToLower(authority)

	h.conns.Lock()
	defer h.conns.Unlock()

	if t, ok := h.conns.value[key]; ok {
		return t
	}

	rt := &http2.Transport{
		DialTLSContext: h.dialTLS,
	}
	if scheme == "http" {
		rt.AllowHTTP = true
		rt.DialTLSContext = func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return h.dial(ctx, network, addr)
		}
	} else if h.tlsConfig != nil {
		rt.TLSClientConfig = h.tlsConfig.Clone()
	}

	t := &transport{key: key, rt: rt}
	t.lastActivity.Store(h.clock.Now().Unix())
	h.conns.value[key] = t
	return t
}

func (h *Host) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	if d := optionsFrom(ctx).ConnectTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	return h.dialer.DialContext(ctx, network, addr)
}

func (h *Host) dialTLS(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
	if d := optionsFrom(ctx).ConnectTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	d := &tls.Dialer{NetDialer: h.dialer, Config: cfg}
	return d.DialContext(ctx, network, addr)
}

// connectionCleaner ticks every |connectionCleanupInterval|, closing the idle
// connections of any transport whose last activity is older than
// |connectionTimeout|.
func (h *Host) connectionCleaner() {
	ticker := h.clock.Ticker(h.connectionCleanupInterval)
	for {
		select {
		case <-h.ctx.Done():
			ticker.Stop()
			return
		case <-ticker.C:
			now := h.clock.Now().Unix()

			h.conns.Lock()
			for key, t := range h.conns.value {
				if now-t.lastActivity.Load() >= int64(h.connectionTimeout.Seconds()) {
					h.log.Info().Msgf("Host: closing idle connections to %s", key)
					t.rt.CloseIdleConnections()
					delete(h.conns.value, key)
				}
			}
			h.conns.Unlock()
		}
	}
}
