// Package testutil provides a scripted, in-memory host for tests.
package testutil

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/Aditya1404Sal/wasmcloud-grpc-client/types"
)

// Response is what the Host answers a call with.
type Response struct {
	Status   int
	Headers  types.Fields
	Chunks   [][]byte
	Trailers types.Fields
	// ReadErr, when set, is returned once Chunks are exhausted instead of
	// io.EOF.
	ReadErr error
}

// Responder decides the outcome of a call. It runs inside Future.Get and may
// block on ctx.
type Responder func(ctx context.Context, c *Call) (*Response, error)

// Host is a types.OutgoingHandler which records every call and answers it
// with Respond.
type Host struct {
	// HandleErr, when set, makes Handle fail without creating a call.
	HandleErr error
	// Respond answers each call. A nil Respond answers 200 with no body.
	Respond Responder

	handles atomic.Int32

	mu    sync.Mutex
	calls []*Call
}

var _ types.OutgoingHandler = (*Host)(nil)

// NewHost returns a Host answering with respond.
func NewHost(respond Responder) *Host {
	return &Host{Respond: respond}
}

// Canned returns a Responder which always answers resp.
func Canned(resp *Response) Responder {
	return func(ctx context.Context, c *Call) (*Response, error) {
		return resp, nil
	}
}

// Fail returns a Responder which fails every call with err.
func Fail(err error) Responder {
	return func(ctx context.Context, c *Call) (*Response, error) {
		return nil, err
	}
}

// Hang returns a Responder which never answers before ctx is done.
func Hang() Responder {
	return func(ctx context.Context, c *Call) (*Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

// Echo returns a Responder answering 200 with the request body, once the
// request body is finished.
func Echo(headers types.Fields) Responder {
	return func(ctx context.Context, c *Call) (*Response, error) {
		body, trailers, err := c.WaitBody(ctx)
		if err != nil {
			return nil, err
		}
		return &Response{Status: 200, Headers: headers, Chunks: [][]byte{body}, Trailers: trailers}, nil
	}
}

func (h *Host) Handle(
	ctx context.Context,
	req *types.OutgoingRequest,
	opts *types.RequestOptions,
) (types.OutgoingBody, types.FutureIncomingResponse, error) {
	h.handles.Add(1)
	if h.HandleErr != nil {
		return nil, nil, h.HandleErr
	}

	c := &Call{
		Request: req,
		Options: opts,
		host:    h,
		done:    make(chan struct{}),
	}
	h.mu.Lock()
	h.calls = append(h.calls, c)
	h.mu.Unlock()

	return &outgoingBody{c}, &future{c}, nil
}

// Handles returns how many times Handle was called.
func (h *Host) Handles() int {
	return int(h.handles.Load())
}

// Calls returns the calls issued so far.
func (h *Host) Calls() []*Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Call(nil), h.calls...)
}

// Call records one request and what happened to its resources.
type Call struct {
	Request *types.OutgoingRequest
	Options *types.RequestOptions

	host *Host

	mu       sync.Mutex
	body     bytes.Buffer
	writes   [][]byte
	trailers types.Fields
	finished bool
	done     chan struct{}

	BodyDropped         atomic.Bool
	FutureDropped       atomic.Bool
	ResponseDropped     atomic.Bool
	IncomingBodyDropped atomic.Bool
	// Reads counts the host body reads served.
	Reads atomic.Int32
}

// WaitBody blocks until the request body is finished or dropped.
func (c *Call) WaitBody(ctx context.Context) ([]byte, types.Fields, error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case <-c.done:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.finished {
		return nil, nil, errors.New("request body dropped")
	}
	return append([]byte(nil), c.body.Bytes()...), c.trailers, nil
}

// Writes returns the chunks written to the request body, in order.
func (c *Call) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes...)
}

// Finished reports whether the request body was finished normally.
func (c *Call) Finished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finished
}

type outgoingBody struct {
	c *Call
}

func (b *outgoingBody) Write(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	if b.c.finished || b.c.BodyDropped.Load() {
		return errors.New("write after end of body")
	}
	b.c.body.Write(p)
	b.c.writes = append(b.c.writes, append([]byte(nil), p...))
	return nil
}

func (b *outgoingBody) Finish(trailers types.Fields) error {
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	if b.c.finished || b.c.BodyDropped.Load() {
		return errors.New("body already ended")
	}
	b.c.finished = true
	b.c.trailers = trailers
	close(b.c.done)
	return nil
}

func (b *outgoingBody) Drop() {
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	if b.c.finished || b.c.BodyDropped.Load() {
		return
	}
	b.c.BodyDropped.Store(true)
	close(b.c.done)
}

type future struct {
	c *Call
}

func (f *future) Get(ctx context.Context) (types.IncomingResponse, error) {
	respond := f.c.host.Respond
	if respond == nil {
		respond = Canned(&Response{Status: 200})
	}
	resp, err := respond(ctx, f.c)
	if err != nil {
		return nil, err
	}
	return &incomingResponse{c: f.c, resp: resp}, nil
}

func (f *future) Drop() {
	f.c.FutureDropped.Store(true)
}

type incomingResponse struct {
	c        *Call
	resp     *Response
	consumed bool
}

func (r *incomingResponse) Status() int {
	return r.resp.Status
}

func (r *incomingResponse) Headers() types.Fields {
	return r.resp.Headers.Clone()
}

func (r *incomingResponse) Consume() (types.IncomingBody, error) {
	if r.consumed {
		return nil, errors.New("body already consumed")
	}
	r.consumed = true
	chunks := make([][]byte, len(r.resp.Chunks))
	copy(chunks, r.resp.Chunks)
	return &incomingBody{c: r.c, resp: r.resp, chunks: chunks}, nil
}

func (r *incomingResponse) Drop() {
	r.c.ResponseDropped.Store(true)
}

type incomingBody struct {
	c      *Call
	resp   *Response
	chunks [][]byte
}

func (b *incomingBody) Read(ctx context.Context, max int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.c.Reads.Add(1)
	for len(b.chunks) > 0 && len(b.chunks[0]) == 0 {
		b.chunks = b.chunks[1:]
	}
	if len(b.chunks) == 0 {
		if b.resp.ReadErr != nil {
			return nil, b.resp.ReadErr
		}
		return nil, io.EOF
	}
	chunk := b.chunks[0]
	if len(chunk) > max {
		b.chunks[0] = chunk[max:]
		return append([]byte(nil), chunk[:max]...), nil
	}
	b.chunks = b.chunks[1:]
	return append([]byte(nil), chunk...), nil
}

func (b *incomingBody) Trailers(ctx context.Context) (types.Fields, error) {
	return b.resp.Trailers.Clone(), nil
}

func (b *incomingBody) Drop() {
	b.c.IncomingBodyDropped.Store(true)
}
