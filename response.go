package wasigrpc

import (
	"context"
	"io"
	"sync"

	"github.com/Aditya1404Sal/wasmcloud-grpc-client/types"
)

// Response is a generic HTTP response handed back to client code.
type Response struct {
	StatusCode int
	Header     Header
	// Body must be read to io.EOF or closed, otherwise the host resources
	// behind it are held until the call's context is cancelled.
	Body *Body
}

var errBodyClosed = &Error{Kind: KindCancelled, Op: "read response body", Err: io.ErrClosedPipe}

// translateResponse builds a Response from the host's. On failure resp has
// been dropped.
func translateResponse(call *call, resp types.IncomingResponse) (*Response, error) {
	const op = "translate response"

	status := resp.Status()
	if status < 100 || status > 999 {
		resp.Drop()
		return nil, protocolErrorf(op, "invalid status code %d", status)
	}
	header, err := fromFields(op, resp.Headers())
	if err != nil {
		resp.Drop()
		return nil, err
	}
	body, err := resp.Consume()
	if err != nil {
		resp.Drop()
		return nil, fromHost(call.parent, "consume response body", err)
	}

	b := &Body{
		call:  call,
		resp:  resp,
		body:  body,
		chunk: call.chunk,
	}
	b.mu.Lock()
	b.stop = context.AfterFunc(call.ctx, b.abort)
	b.mu.Unlock()

	return &Response{
		StatusCode: status,
		Header:     header,
		Body:       b,
	}, nil
}

// Body is the demand-driven response body. Bytes are pulled from the host only
// while the consumer reads, in the order the host delivers them.
type Body struct {
	call  *call
	resp  types.IncomingResponse
	body  types.IncomingBody
	chunk int

	mu       sync.Mutex
	pending  []byte
	trailer  Header
	err      error
	reading  bool
	closed   bool
	released bool
	// stop unregisters abort from the call's context.
	stop func() bool
}

var _ io.ReadCloser = (*Body)(nil)

// Read implements io.Reader. A host failure is reported as a Protocol error
// after every byte delivered before it.
func (b *Body) Read(p []byte) (int, error) {
	b.mu.Lock()
	if len(b.pending) > 0 {
		n := copy(p, b.pending)
		b.pending = b.pending[n:]
		b.mu.Unlock()
		return n, nil
	}
	if b.err != nil {
		err := b.err
		b.mu.Unlock()
		return 0, err
	}
	if len(p) == 0 {
		b.mu.Unlock()
		return 0, nil
	}
	b.reading = true
	b.mu.Unlock()

	max := len(p)
	if max > b.chunk {
		max = b.chunk
	}
	chunk, err := b.body.Read(b.call.ctx, max)

	var trailers types.Fields
	if err == io.EOF && !b.isClosed() {
		trailers, err = b.readTrailers()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.reading = false

	n := copy(p, chunk)
	if n < len(chunk) {
		b.pending = append(b.pending[:0], chunk[n:]...)
	}

	if b.closed {
		b.releaseLocked()
		return 0, b.err
	}

	switch {
	case err == io.EOF:
		b.trailer, b.err = b.finishLocked(trailers)
		b.releaseLocked()
	case err != nil:
		b.err = b.call.bodyError(err)
		b.call.log.Error().Err(b.err).Int("delivered", n).Msg("Body.Read: host read failed")
		b.releaseLocked()
	case b.err != nil:
		// the call was aborted while this read was in the host
		b.releaseLocked()
	}

	if n > 0 {
		return n, nil
	}
	if b.err != nil && len(b.pending) == 0 {
		return 0, b.err
	}
	return 0, nil
}

// readTrailers fetches trailers once the host has signalled end-of-body. It
// returns io.EOF on success.
func (b *Body) readTrailers() (types.Fields, error) {
	fs, err := b.body.Trailers(b.call.ctx)
	if err != nil {
		return nil, err
	}
	return fs, io.EOF
}

func (b *Body) finishLocked(fs types.Fields) (Header, error) {
	h, err := fromFields("translate response trailers", fs)
	if err != nil {
		return nil, err
	}
	return h, io.EOF
}

// Trailer returns the response trailers. It is only populated once Read has
// returned io.EOF.
func (b *Body) Trailer() Header {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trailer
}

// Close releases the host resources. A Read blocked in the host is aborted.
func (b *Body) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.err == nil {
		b.err = errBodyClosed
	}
	if b.reading {
		// the blocked Read releases once the host returns
		b.call.cancel()
		return nil
	}
	b.releaseLocked()
	return nil
}

// abort runs when the call's context is done before the body was released.
// The host resources are dropped at once unless a Read is blocked in the
// host, in which case that Read releases them when it returns.
func (b *Body) abort() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return
	}
	if b.err == nil {
		err := b.call.parent.Err()
		if err == nil {
			err = context.Canceled
		}
		b.err = &Error{Kind: KindCancelled, Op: "read response body", Err: err}
	}
	if b.reading {
		return
	}
	b.releaseLocked()
}

func (b *Body) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Body) releaseLocked() {
	if b.released {
		return
	}
	b.released = true
	if b.stop != nil {
		b.stop()
	}
	b.body.Drop()
	b.resp.Drop()
	b.call.finish()
}

// bodyError is what a failed host body read turns into. A request body
// failure only stands in as the cause while the response is still awaited;
// once it is in, the host's own error is reported.
func (c *call) bodyError(err error) error {
	if !c.responded.Load() {
		select {
		case perr := <-c.pumpErr:
			return perr
		default:
		}
	}
	return fromBodyRead(c.parent, err)
}
