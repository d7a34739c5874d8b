package wasigrpc

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/net/http/httpguts"

	"github.com/Aditya1404Sal/wasmcloud-grpc-client/types"
)

// Request is a generic HTTP request as produced by client code.
type Request struct {
	// Method defaults to GET when empty.
	Method string
	// URL is either relative, and resolved against the Endpoint, or absolute,
	// in which case its scheme and authority must match the Endpoint's. An
	// absolute URL is sent as is; only relative URLs get the base path prefix.
	URL    *url.URL
	Header Header
	// Body is streamed to the host as it is read. It is closed when the call
	// no longer needs it, if it implements io.Closer. A nil Body is empty.
	Body io.Reader
	// Trailer is read once Body has returned io.EOF.
	Trailer Header
}

// translateRequest builds the host representation of a request whose URL has
// already been resolved.
func translateRequest(method string, target *url.URL, h Header) (*types.OutgoingRequest, error) {
	const op = "translate request"

	if method == "" {
		method = http.MethodGet
	}
	if !validMethod(method) {
		return nil, protocolErrorf(op, "invalid method %q", method)
	}
	headers, err := toFields(op, h)
	if err != nil {
		return nil, err
	}
	return &types.OutgoingRequest{
		Method:        method,
		Scheme:        target.Scheme,
		Authority:     target.Host,
		PathWithQuery: target.RequestURI(),
		Headers:       headers,
	}, nil
}

func validMethod(m string) bool {
	if m == "" {
		return false
	}
	for _, r := range m {
		if !httpguts.IsTokenRune(r) {
			return false
		}
	}
	return true
}

// requestBodyWriter streams a request body into the host's write sink one
// chunk at a time.
type requestBodyWriter struct {
	req   *Request
	sink  types.OutgoingBody
	chunk int
	log   zerolog.Logger

	closeOnce sync.Once
}

// run copies the body to the sink and finishes it. On any failure the sink is
// dropped so the host sees an incomplete request.
func (w *requestBodyWriter) run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, w.closeSource)
	defer stop()
	defer w.closeSource()

	var written int64
	if w.req.Body != nil {
		buf := make([]byte, w.chunk)
		for {
			n, rerr := w.req.Body.Read(buf)
			if n > 0 {
				if err := w.sink.Write(ctx, buf[:n]); err != nil {
					w.sink.Drop()
					return fromHost(ctx, "write request body", err)
				}
				written += int64(n)
			}
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				w.sink.Drop()
				return w.sourceError(ctx, rerr)
			}
		}
	}

	trailers, err := toFields("translate request trailers", w.req.Trailer)
	if err != nil {
		w.sink.Drop()
		return err
	}
	if err := w.sink.Finish(trailers); err != nil {
		return fromHost(ctx, "finish request body", err)
	}
	w.log.Debug().Int64("bytes", written).Msg("requestBodyWriter.run: body finished")
	return nil
}

func (w *requestBodyWriter) sourceError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &Error{Kind: KindCancelled, Op: "read request body", Err: ctxErr}
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindCancelled, Op: "read request body", Err: err}
	}
	return &Error{Kind: KindProtocol, Op: "read request body", Err: errors.Wrap(err, "source")}
}

func (w *requestBodyWriter) closeSource() {
	w.closeOnce.Do(func() { closeBody(w.req.Body) })
}

func closeBody(r io.Reader) {
	if c, ok := r.(io.Closer); ok {
		c.Close()
	}
}
