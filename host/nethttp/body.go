package nethttp

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/Aditya1404Sal/wasmcloud-grpc-client/types"
)

// requestBody is what the transport reads the request body from. started is
// closed on the first read, after the request headers went out.
type requestBody struct {
	pr      *io.PipeReader
	started chan struct{}
	once    sync.Once
}

func (b *requestBody) Read(p []byte) (int, error) {
	b.once.Do(func() { close(b.started) })
	return b.pr.Read(p)
}

func (b *requestBody) Close() error {
	return b.pr.Close()
}

type outgoingBody struct {
	pw      *io.PipeWriter
	trailer http.Header
	started <-chan struct{}
	done    <-chan struct{}

	mu    sync.Mutex
	ended bool
}

func (b *outgoingBody) Write(ctx context.Context, p []byte) error {
	b.mu.Lock()
	ended := b.ended
	b.mu.Unlock()
	if ended {
		return types.NewErrorCode(types.ErrorInternalError, "write after end of body")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	// io.Pipe hands p straight to the transport and returns once it has been
	// consumed, so p is never retained.
	if _, err := b.pw.Write(p); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return types.NewErrorCode(types.ErrorConnectionTerminated, err.Error())
	}
	return nil
}

// Finish ends the body. Trailers are only added once the transport is reading
// the body, since it reads the trailer keys when it sends the headers.
func (b *outgoingBody) Finish(trailers types.Fields) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ended {
		return types.NewErrorCode(types.ErrorInternalError, "body already ended")
	}
	b.ended = true

	if len(trailers) > 0 {
		select {
		case <-b.started:
		case <-b.done:
			return b.pw.Close()
		}
		for _, f := range trailers {
			b.trailer.Add(f.Name, string(f.Value))
		}
	}
	return b.pw.Close()
}

func (b *outgoingBody) Drop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ended {
		return
	}
	b.ended = true
	b.pw.CloseWithError(errBodyDropped)
}

type future struct {
	h      *Host
	ctx    context.Context
	cancel context.CancelCauseFunc
	opts   *types.RequestOptions

	done chan struct{}
	resp *http.Response
	err  error

	mu    sync.Mutex
	taken bool
}

func (f *future) Get(ctx context.Context) (types.IncomingResponse, error) {
	var timeout <-chan struct{}
	if d := f.opts.FirstByteTimeout; d > 0 {
		fired := make(chan struct{})
		t := f.h.clock.AfterFunc(d, func() { close(fired) })
		defer t.Stop()
		timeout = fired
	}

	select {
	case <-f.done:
	case <-ctx.Done():
		f.cancel(nil)
		return nil, ctx.Err()
	case <-timeout:
		f.cancel(errFirstByteTimeout)
		return nil, errFirstByteTimeout
	}

	if f.err != nil {
		err := toErrorCode(f.ctx, f.err)
		f.cancel(nil)
		return nil, err
	}

	f.mu.Lock()
	f.taken = true
	f.mu.Unlock()
	return &incomingResponse{f: f, resp: f.resp}, nil
}

// Drop abandons the call unless Get handed out the response, which then owns
// it.
func (f *future) Drop() {
	f.mu.Lock()
	taken := f.taken
	f.mu.Unlock()
	if taken {
		return
	}
	f.cancel(nil)
	go func() {
		<-f.done
		if f.resp != nil {
			f.resp.Body.Close()
		}
	}()
}

type incomingResponse struct {
	f        *future
	resp     *http.Response
	consumed bool
}

func (r *incomingResponse) Status() int {
	return r.resp.StatusCode
}

func (r *incomingResponse) Headers() types.Fields {
	return toFields(r.resp.Header)
}

func (r *incomingResponse) Consume() (types.IncomingBody, error) {
	if r.consumed {
		return nil, types.NewErrorCode(types.ErrorInternalError, "body already consumed")
	}
	r.consumed = true
	return &incomingBody{f: r.f, resp: r.resp}, nil
}

func (r *incomingResponse) Drop() {
	if r.consumed {
		return
	}
	r.resp.Body.Close()
	r.f.cancel(nil)
}

type incomingBody struct {
	f    *future
	resp *http.Response
	eof  bool
}

func (b *incomingBody) Read(ctx context.Context, max int) ([]byte, error) {
	if b.eof {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if d := b.f.opts.BetweenBytesTimeout; d > 0 {
		t := b.f.h.clock.AfterFunc(d, func() { b.f.cancel(errBetweenBytesTimeout) })
		defer t.Stop()
	}
	stop := context.AfterFunc(ctx, func() { b.f.cancel(ctx.Err()) })
	defer stop()

	buf := make([]byte, max)
	for {
		n, err := b.resp.Body.Read(buf)
		if n > 0 {
			if err == io.EOF {
				b.eof = true
			}
			return buf[:n], nil
		}
		if err == io.EOF {
			b.eof = true
			return nil, io.EOF
		}
		if err != nil {
			return nil, toErrorCode(b.f.ctx, err)
		}
	}
}

// Trailers is only meaningful once Read returned io.EOF.
func (b *incomingBody) Trailers(ctx context.Context) (types.Fields, error) {
	if !b.eof {
		return nil, errors.New("trailers requested before end of body")
	}
	return toFields(b.resp.Trailer), nil
}

func (b *incomingBody) Drop() {
	b.resp.Body.Close()
	b.f.cancel(nil)
}

// toFields flattens h with lowercased names in name order.
func toFields(h http.Header) types.Fields {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	var fs types.Fields
	for _, name := range names {
		lower := strings.ToLower(name)
		for _, v := range h[name] {
			fs = append(fs, types.Field{Name: lower, Value: []byte(v)})
		}
	}
	return fs
}
