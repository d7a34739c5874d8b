package wasigrpc

import (
	"context"
	"errors"
	"testing"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/Aditya1404Sal/wasmcloud-grpc-client/types"
)

func TestErrorKinds(t *testing.T) {
	t.Run("Distinguishable", func(t *testing.T) {
		is := require.New(t)

		seen := map[string]bool{}
		for _, k := range []Kind{KindConfiguration, KindTransport, KindProtocol, KindCancelled} {
			err := &Error{Kind: k, Op: "op", Err: errors.New("detail")}
			is.Contains(err.Error(), k.String())
			is.Contains(err.Error(), "detail")
			is.False(seen[k.String()])
			seen[k.String()] = true
		}
	})

	t.Run("Is", func(t *testing.T) {
		is := require.New(t)

		err := pkgerrors.Wrap(&Error{Kind: KindTransport, Err: context.Canceled}, "outer")
		is.ErrorIs(err, ErrTransport)
		is.False(errors.Is(err, ErrProtocol))
		is.ErrorIs(err, context.Canceled)
		is.Equal(KindTransport, KindOf(err))
		is.Equal(Kind(0), KindOf(errors.New("plain")))
	})
}

func TestFromHost(t *testing.T) {
	live := context.Background()
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	expired, cancelExpired := context.WithDeadline(context.Background(), time.Unix(0, 0))
	defer cancelExpired()

	cases := []struct {
		name string
		ctx  context.Context
		err  error
		kind Kind
	}{
		{"refused", live, types.NewErrorCode(types.ErrorConnectionRefused, ""), KindTransport},
		{"dns", live, types.NewErrorCode(types.ErrorDNSError, "no such host"), KindTransport},
		{"tls", live, types.NewErrorCode(types.ErrorTLSCertificateError, "x509"), KindTransport},
		{"denied", live, types.NewErrorCode(types.ErrorHTTPRequestDenied, ""), KindTransport},
		{"timeout", live, types.NewErrorCode(types.ErrorConnectionTimeout, ""), KindTransport},
		{"read timeout", live, types.NewErrorCode(types.ErrorConnectionReadTimeout, ""), KindTransport},
		{"response timeout", live, types.NewErrorCode(types.ErrorHTTPResponseTimeout, ""), KindTransport},
		{"caller deadline", expired, types.NewErrorCode(types.ErrorHTTPResponseTimeout, ""), KindCancelled},
		{"protocol", live, types.NewErrorCode(types.ErrorHTTPProtocolError, ""), KindProtocol},
		{"incomplete", live, types.NewErrorCode(types.ErrorHTTPResponseIncomplete, ""), KindProtocol},
		{"opaque", live, errors.New("something"), KindTransport},
		{"ctx error", live, context.DeadlineExceeded, KindCancelled},
		{"caller cancelled", cancelled, types.NewErrorCode(types.ErrorConnectionRefused, ""), KindCancelled},
		{"already classified", live, &Error{Kind: KindProtocol}, KindProtocol},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			is := require.New(t)
			is.Equal(tc.kind, KindOf(fromHost(tc.ctx, "op", tc.err)))
		})
	}

	is := require.New(t)
	is.NoError(fromHost(live, "op", nil))

	code := types.NewErrorCode(types.ErrorDNSTimeout, "resolver")
	err := fromHost(live, "op", code)
	is.ErrorIs(err, types.NewErrorCode(types.ErrorDNSTimeout, ""))
	is.Contains(err.Error(), "DNS-timeout: resolver")
}
