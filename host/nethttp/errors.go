package nethttp

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"syscall"

	"golang.org/x/net/http2"

	"github.com/Aditya1404Sal/wasmcloud-grpc-client/types"
)

var (
	errFirstByteTimeout    = types.NewErrorCode(types.ErrorConnectionReadTimeout, "no response headers within first-byte timeout")
	errBetweenBytesTimeout = types.NewErrorCode(types.ErrorConnectionReadTimeout, "no response bytes within between-bytes timeout")
	errBodyDropped         = errors.New("request body dropped")
	errClosed              = types.NewErrorCode(types.ErrorInternalError, "host closed")
)

// toErrorCode maps a net/http failure onto the host error codes. Context
// errors are returned as they are so the caller can tell cancellation apart.
func toErrorCode(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if cause := context.Cause(ctx); cause != nil {
		var code *types.ErrorCode
		if errors.As(cause, &code) {
			return cause
		}
		return ctx.Err()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var code *types.ErrorCode
	if errors.As(err, &code) {
		return err
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return types.NewErrorCode(types.ErrorDNSTimeout, dnsErr.Error())
		}
		return types.NewErrorCode(types.ErrorDNSError, dnsErr.Error())
	}

	var (
		certErr     *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		invalidCert x509.CertificateInvalidError
		alertErr    tls.AlertError
		recordErr   tls.RecordHeaderError
	)
	switch {
	case errors.As(err, &certErr),
		errors.As(err, &unknownAuth),
		errors.As(err, &hostErr),
		errors.As(err, &invalidCert):
		return types.NewErrorCode(types.ErrorTLSCertificateError, err.Error())
	case errors.As(err, &alertErr):
		return types.NewErrorCode(types.ErrorTLSAlertReceived, err.Error())
	case errors.As(err, &recordErr):
		return types.NewErrorCode(types.ErrorTLSProtocolError, err.Error())
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return types.NewErrorCode(types.ErrorConnectionRefused, err.Error())
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return types.NewErrorCode(types.ErrorConnectionTerminated, err.Error())
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		return types.NewErrorCode(types.ErrorDestinationUnavailable, err.Error())
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			if opErr.Timeout() {
				return types.NewErrorCode(types.ErrorConnectionTimeout, err.Error())
			}
			return types.NewErrorCode(types.ErrorConnectionRefused, err.Error())
		}
		if opErr.Timeout() {
			return types.NewErrorCode(types.ErrorConnectionReadTimeout, err.Error())
		}
		return types.NewErrorCode(types.ErrorConnectionTerminated, err.Error())
	}

	var (
		streamErr http2.StreamError
		connErr   http2.ConnectionError
		goAway    http2.GoAwayError
	)
	switch {
	case errors.As(err, &streamErr), errors.As(err, &connErr), errors.As(err, &goAway):
		return types.NewErrorCode(types.ErrorHTTPProtocolError, err.Error())
	case errors.Is(err, io.ErrUnexpectedEOF):
		return types.NewErrorCode(types.ErrorHTTPResponseIncomplete, err.Error())
	case errors.Is(err, http2.ErrFrameTooLarge):
		return types.NewErrorCode(types.ErrorHTTPResponseBodySize, err.Error())
	}

	return types.NewErrorCode(types.ErrorInternalError, err.Error())
}
