package channel

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/mem"
	"google.golang.org/grpc/status"
)

const (
	frameHeaderLen = 5

	flagCompressed = 0x01

	defaultMaxRecvMsgSize = 4 * 1024 * 1024
)

// encodeFrame returns the length-prefixed message frame for data.
func encodeFrame(data mem.BufferSlice) ([]byte, error) {
	sz := data.Len()
	if uint64(sz) > math.MaxUint32 {
		return nil, status.Errorf(codes.ResourceExhausted, "message too large to send: %d bytes", sz)
	}
	frame := make([]byte, frameHeaderLen, frameHeaderLen+sz)
	binary.BigEndian.PutUint32(frame[1:], uint32(sz))
	for _, b := range data {
		frame = append(frame, b.ReadOnlyData()...)
	}
	return frame, nil
}

// frameReader splits a response body into message frames.
type frameReader struct {
	r   io.Reader
	max int
	hdr [frameHeaderLen]byte
}

// next returns the payload of the next frame. It returns io.EOF only on a
// frame boundary; a body ending inside a frame is an Internal status.
func (fr *frameReader) next() ([]byte, error) {
	if _, err := io.ReadFull(fr.r, fr.hdr[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, status.Error(codes.Internal, "truncated message frame header")
		}
		return nil, err
	}
	if fr.hdr[0]&flagCompressed != 0 {
		return nil, status.Error(codes.Unimplemented, "compressed messages are not supported")
	}
	if fr.hdr[0] != 0 {
		return nil, status.Errorf(codes.Internal, "invalid message frame flags %#x", fr.hdr[0])
	}
	sz := binary.BigEndian.Uint32(fr.hdr[1:])
	if uint64(sz) > uint64(fr.max) {
		return nil, status.Errorf(codes.ResourceExhausted,
			"received message larger than max (%d vs. %d)", sz, fr.max)
	}
	msg := make([]byte, sz)
	if _, err := io.ReadFull(fr.r, msg); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, status.Error(codes.Internal, fmt.Sprintf("truncated message: want %d bytes", sz))
		}
		return nil, err
	}
	return msg, nil
}
