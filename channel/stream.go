package channel

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/mem"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/stats"
	"google.golang.org/grpc/status"

	wasigrpc "github.com/Aditya1404Sal/wasmcloud-grpc-client"
	"github.com/Aditya1404Sal/wasmcloud-grpc-client/internal"
)

var errStreamDone = errors.New("stream done")

// clientStream is one call. The request body is a pipe fed by SendMsg while
// Send runs in its own goroutine; RecvMsg waits for the response headers and
// then reads frames off the response body.
type clientStream struct {
	cc        *ClientConn
	desc      *grpc.StreamDesc
	method    string
	opts      callOptions
	beginTime time.Time
	log       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	sendMu     sync.Mutex
	body       *io.PipeWriter
	sendClosed bool

	respReady chan struct{}

	mu       sync.Mutex
	resp     *wasigrpc.Response
	respErr  error
	finished bool
	trailer  metadata.MD
	finalErr error

	headerOnce   sync.Once
	header       metadata.MD
	headerErr    error
	trailersOnly *status.Status

	recvMu sync.Mutex
	frames *frameReader
	recvd  int
}

var _ grpc.ClientStream = (*clientStream)(nil)

func newClientStream(
	ctx context.Context,
	cc *ClientConn,
	desc *grpc.StreamDesc,
	method string,
	opts callOptions,
	body *io.PipeWriter,
	beginTime time.Time,
) *clientStream {
	ctx, cancel := context.WithCancel(ctx)
	return &clientStream{
		cc:        cc,
		desc:      desc,
		method:    method,
		opts:      opts,
		beginTime: beginTime,
		log:       cc.log.With().Str("method", method).Logger(),
		ctx:       ctx,
		cancel:    cancel,
		body:      body,
		respReady: make(chan struct{}),
	}
}

func (cs *clientStream) send(req *wasigrpc.Request) {
	resp, err := cs.cc.sender.Send(cs.ctx, req)

	cs.mu.Lock()
	cs.resp, cs.respErr = resp, err
	finished := cs.finished
	cs.mu.Unlock()
	close(cs.respReady)

	if finished && resp != nil {
		resp.Body.Close()
	}
}

// waitResponse blocks until the response headers are in and processes them
// once.
func (cs *clientStream) waitResponse() error {
	<-cs.respReady
	cs.headerOnce.Do(func() {
		cs.headerErr = cs.handleResponse()
	})
	return cs.headerErr
}

func (cs *clientStream) handleResponse() error {
	if cs.respErr != nil {
		return statusFromError(cs.ctx, cs.respErr)
	}
	resp := cs.resp

	md, err := internal.ToMetadata(resp.Header)
	if err != nil {
		return status.Errorf(codes.Internal, "malformed response metadata: %v", err)
	}
	cs.header = md
	if cs.opts.header != nil {
		*cs.opts.header = md
	}
	for _, sh := range cs.cc.statsHandlers {
		sh.HandleRPC(cs.ctx, &stats.InHeader{
			Client:     true,
			FullMethod: cs.method,
			Header:     md,
		})
	}

	if st, ok := statusFromHeader(resp.Header); ok {
		cs.trailersOnly = st
		cs.setTrailer(md)
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return status.Errorf(
			codeFromHTTPStatus(resp.StatusCode),
			"unexpected HTTP status code received from server: %d (%s)",
			resp.StatusCode,
			http.StatusText(resp.StatusCode),
		)
	}
	if ct := resp.Header.Get("content-type"); !isGRPCContentType(ct) {
		return status.Errorf(codes.Unknown, "unexpected content-type %q", ct)
	}

	cs.frames = &frameReader{r: resp.Body, max: cs.opts.maxRecvMsgSize}
	return nil
}

func isGRPCContentType(ct string) bool {
	ct = strings.ToLower(ct)
	if !strings.HasPrefix(ct, "application/grpc") {
		return false
	}
	rest := ct[len("application/grpc"):]
	return rest == "" || rest[0] == '+' || rest[0] == ';'
}

func (cs *clientStream) Header() (metadata.MD, error) {
	if err := cs.waitResponse(); err != nil {
		return nil, cs.finish(err)
	}
	return cs.header, nil
}

func (cs *clientStream) Trailer() metadata.MD {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.trailer
}

func (cs *clientStream) setTrailer(md metadata.MD) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.trailer = md
}

func (cs *clientStream) CloseSend() error {
	cs.sendMu.Lock()
	defer cs.sendMu.Unlock()

	if !cs.sendClosed {
		cs.sendClosed = true
		cs.body.Close()
	}
	return nil
}

func (cs *clientStream) Context() context.Context {
	return cs.ctx
}

// SendMsg returns io.EOF once the call has failed; RecvMsg then reports why.
// Calls without client streaming get nil instead, as generated code expects.
func (cs *clientStream) SendMsg(m interface{}) error {
	cs.sendMu.Lock()
	defer cs.sendMu.Unlock()

	if cs.sendClosed {
		return status.Error(codes.Internal, "SendMsg called after CloseSend")
	}
	if cs.isFinished() {
		return cs.sendEOF()
	}

	data, err := cs.cc.codec.Marshal(m)
	if err != nil {
		cs.log.Error().Err(err).Msg("SendMsg Marshal")
		return cs.finish(status.Errorf(codes.Internal, "error while marshaling: %v", err))
	}
	frame, err := encodeFrame(data)
	data.Free()
	if err != nil {
		return cs.finish(err)
	}

	if _, err := cs.body.Write(frame); err != nil {
		return cs.sendEOF()
	}

	for _, sh := range cs.cc.statsHandlers {
		sh.HandleRPC(cs.ctx, &stats.OutPayload{
			Client:     true,
			Payload:    m,
			Length:     len(frame) - frameHeaderLen,
			WireLength: len(frame),
			SentTime:   cs.cc.clock.Now(),
		})
	}
	return nil
}

func (cs *clientStream) sendEOF() error {
	if !cs.desc.ClientStreams {
		return nil
	}
	return io.EOF
}

func (cs *clientStream) RecvMsg(m interface{}) error {
	cs.recvMu.Lock()
	defer cs.recvMu.Unlock()

	if done, err := cs.doneErr(); done {
		return err
	}
	if err := cs.waitResponse(); err != nil {
		return cs.finish(err)
	}
	if cs.trailersOnly != nil {
		return cs.finishStatus(cs.trailersOnly)
	}

	msg, err := cs.frames.next()
	if err == io.EOF {
		return cs.finishStatus(cs.trailerStatus())
	}
	if err != nil {
		return cs.finish(cs.bodyError(err))
	}

	if err := cs.cc.codec.Unmarshal(mem.BufferSlice{mem.SliceBuffer(msg)}, m); err != nil {
		cs.log.Error().Err(err).Msg("RecvMsg Unmarshal")
		return cs.finish(status.Errorf(codes.Internal, "failed to unmarshal response: %v", err))
	}
	cs.recvd++
	for _, sh := range cs.cc.statsHandlers {
		sh.HandleRPC(cs.ctx, &stats.InPayload{
			Client:     true,
			Payload:    m,
			Length:     len(msg),
			WireLength: len(msg) + frameHeaderLen,
			RecvTime:   cs.cc.clock.Now(),
		})
	}

	if cs.desc.ServerStreams {
		return nil
	}

	// Exactly one message, then the status.
	_, err = cs.frames.next()
	switch {
	case err == io.EOF:
		st := cs.trailerStatus()
		if st.Code() != codes.OK {
			return cs.finish(st.Err())
		}
		cs.finish(nil)
		return nil
	case err == nil:
		return cs.finish(status.Error(codes.Internal,
			"cardinality violation: expected <EOF> for non server-streaming RPCs, but received another message"))
	default:
		return cs.finish(cs.bodyError(err))
	}
}

// trailerStatus reads the status out of the response trailers. It is only
// valid once the body has hit io.EOF.
func (cs *clientStream) trailerStatus() *status.Status {
	trailer := cs.resp.Body.Trailer()
	md, err := internal.ToMetadata(trailer)
	if err != nil {
		return status.Newf(codes.Internal, "malformed trailer metadata: %v", err)
	}
	cs.setTrailer(md)
	for _, sh := range cs.cc.statsHandlers {
		sh.HandleRPC(cs.ctx, &stats.InTrailer{
			Client:  true,
			Trailer: md,
		})
	}

	st, ok := statusFromHeader(trailer)
	if !ok {
		return status.New(codes.Internal, "server closed the stream without sending trailers")
	}
	return st
}

func (cs *clientStream) finishStatus(st *status.Status) error {
	if st.Code() != codes.OK {
		return cs.finish(st.Err())
	}
	if !cs.desc.ServerStreams && cs.recvd == 0 {
		return cs.finish(status.Error(codes.Internal,
			"cardinality violation: received no response message from non-server-streaming RPC"))
	}
	return cs.finish(nil)
}

func (cs *clientStream) bodyError(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	return statusFromError(cs.ctx, err)
}

func (cs *clientStream) isFinished() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.finished
}

// doneErr reports whether the stream has finished, and if so what RecvMsg
// returns from now on.
func (cs *clientStream) doneErr() (bool, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if !cs.finished {
		return false, nil
	}
	if cs.finalErr == nil {
		return true, io.EOF
	}
	return true, cs.finalErr
}

// finish ends the call with err, nil meaning success, and releases
// everything it holds. It returns what RecvMsg should report.
func (cs *clientStream) finish(err error) error {
	cs.mu.Lock()
	if cs.finished {
		cs.mu.Unlock()
		_, err := cs.doneErr()
		return err
	}
	cs.finished = true
	cs.finalErr = err
	resp := cs.resp
	trailer := cs.trailer
	cs.mu.Unlock()

	cs.body.CloseWithError(errStreamDone)
	if resp != nil {
		resp.Body.Close()
	}
	cs.cancel()

	if cs.opts.trailer != nil {
		*cs.opts.trailer = trailer
	}
	internal.StatsEndRPC(cs.cc.statsHandlers, cs.beginTime, cs.cc.clock.Now(), err, cs.ctx)

	if err != nil {
		if status.Code(err) == codes.Canceled {
			cs.log.Debug().Err(err).Msg("call cancelled")
		} else {
			cs.log.Error().Err(err).Msg("call failed")
		}
		return err
	}
	cs.log.Debug().Msg("call finished")
	return io.EOF
}
