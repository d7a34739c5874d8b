package types

import "fmt"

// ErrorKind enumerates the host's error-code variant.
type ErrorKind int

const (
	ErrorDNSTimeout ErrorKind = iota + 1
	ErrorDNSError
	ErrorDestinationNotFound
	ErrorDestinationUnavailable
	ErrorDestinationIPProhibited
	ErrorDestinationIPUnroutable
	ErrorConnectionRefused
	ErrorConnectionTerminated
	ErrorConnectionTimeout
	ErrorConnectionReadTimeout
	ErrorConnectionWriteTimeout
	ErrorConnectionLimitReached
	ErrorTLSProtocolError
	ErrorTLSCertificateError
	ErrorTLSAlertReceived
	ErrorHTTPRequestDenied
	ErrorHTTPRequestMethodInvalid
	ErrorHTTPRequestURIInvalid
	ErrorHTTPRequestURITooLong
	ErrorHTTPRequestHeaderSize
	ErrorHTTPRequestBodySize
	ErrorHTTPResponseIncomplete
	ErrorHTTPResponseHeaderSize
	ErrorHTTPResponseBodySize
	ErrorHTTPResponseTrailerSize
	ErrorHTTPProtocolError
	ErrorHTTPResponseContentCoding
	ErrorHTTPResponseTimeout
	ErrorInternalError
)

var errorKindNames = map[ErrorKind]string{
	ErrorDNSTimeout:                "DNS-timeout",
	ErrorDNSError:                  "DNS-error",
	ErrorDestinationNotFound:       "destination-not-found",
	ErrorDestinationUnavailable:    "destination-unavailable",
	ErrorDestinationIPProhibited:   "destination-IP-prohibited",
	ErrorDestinationIPUnroutable:   "destination-IP-unroutable",
	ErrorConnectionRefused:         "connection-refused",
	ErrorConnectionTerminated:      "connection-terminated",
	ErrorConnectionTimeout:         "connection-timeout",
	ErrorConnectionReadTimeout:     "connection-read-timeout",
	ErrorConnectionWriteTimeout:    "connection-write-timeout",
	ErrorConnectionLimitReached:    "connection-limit-reached",
	ErrorTLSProtocolError:          "TLS-protocol-error",
	ErrorTLSCertificateError:       "TLS-certificate-error",
	ErrorTLSAlertReceived:          "TLS-alert-received",
	ErrorHTTPRequestDenied:         "HTTP-request-denied",
	ErrorHTTPRequestMethodInvalid:  "HTTP-request-method-invalid",
	ErrorHTTPRequestURIInvalid:     "HTTP-request-URI-invalid",
	ErrorHTTPRequestURITooLong:     "HTTP-request-URI-too-long",
	ErrorHTTPRequestHeaderSize:     "HTTP-request-header-size",
	ErrorHTTPRequestBodySize:       "HTTP-request-body-size",
	ErrorHTTPResponseIncomplete:    "HTTP-response-incomplete",
	ErrorHTTPResponseHeaderSize:    "HTTP-response-header-size",
	ErrorHTTPResponseBodySize:      "HTTP-response-body-size",
	ErrorHTTPResponseTrailerSize:   "HTTP-response-trailer-size",
	ErrorHTTPProtocolError:         "HTTP-protocol-error",
	ErrorHTTPResponseContentCoding: "HTTP-response-content-coding",
	ErrorHTTPResponseTimeout:       "HTTP-response-timeout",
	ErrorInternalError:             "internal-error",
}

func (k ErrorKind) String() string {
	if s, ok := errorKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("error-kind(%d)", int(k))
}

// ErrorCode is an error reported by the host. Detail is host specific and is
// only meant for diagnostics.
type ErrorCode struct {
	Kind   ErrorKind
	Detail string
}

// NewErrorCode returns an ErrorCode of the given kind.
func NewErrorCode(kind ErrorKind, detail string) *ErrorCode {
	return &ErrorCode{Kind: kind, Detail: detail}
}

func (e *ErrorCode) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Detail
}

// Is reports whether target is an ErrorCode of the same kind.
func (e *ErrorCode) Is(target error) bool {
	t, ok := target.(*ErrorCode)
	return ok && t.Kind == e.Kind
}

// IsProtocol reports whether the kind describes malformed data rather than a
// failure to reach or talk to the peer.
func (k ErrorKind) IsProtocol() bool {
	switch k {
	case ErrorHTTPProtocolError,
		ErrorHTTPRequestMethodInvalid,
		ErrorHTTPRequestURIInvalid,
		ErrorHTTPResponseIncomplete,
		ErrorHTTPResponseHeaderSize,
		ErrorHTTPResponseBodySize,
		ErrorHTTPResponseTrailerSize,
		ErrorHTTPResponseContentCoding:
		return true
	}
	return false
}
