package wasigrpc

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aditya1404Sal/wasmcloud-grpc-client/types"
)

// untranslate rebuilds the structured request fields from the host
// representation.
func untranslate(t *testing.T, out *types.OutgoingRequest) (string, *url.URL, Header) {
	u, err := url.Parse(out.Scheme + "://" + out.Authority + out.PathWithQuery)
	require.NoError(t, err)
	var h Header
	for _, f := range out.Headers {
		h.Add(f.Name, string(f.Value))
	}
	return out.Method, u, h
}

func TestTranslateRequest(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		cases := []struct {
			name   string
			method string
			url    string
			header Header
		}{
			{
				name:   "grpc",
				method: "POST",
				url:    "http://localhost:50051/helloworld.Greeter/SayHello",
				header: Header{
					{Name: "content-type", Value: "application/grpc"},
					{Name: "te", Value: "trailers"},
				},
			},
			{
				name:   "duplicates keep order",
				method: "PUT",
				url:    "https://grpc.example.com:8443/a/b?x=1&y=2&x=3",
				header: Header{
					{Name: "x-b", Value: "1"},
					{Name: "x-a", Value: "2"},
					{Name: "x-b", Value: "3"},
					{Name: "X-B", Value: "4"},
				},
			},
			{
				name:   "escaped path",
				method: "GET",
				url:    "http://localhost/with%20space/%2Fslash",
				header: Header{{Name: "accept", Value: "*/*"}, {Name: "x-empty", Value: ""}},
			},
			{
				name:   "no headers",
				method: "DELETE",
				url:    "http://localhost:1/",
			},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				is := require.New(t)

				target := mustURL(t, tc.url)
				out, err := translateRequest(tc.method, target, tc.header)
				is.NoError(err)

				method, u, h := untranslate(t, out)
				is.Equal(tc.method, method)
				is.Equal(target.Scheme, u.Scheme)
				is.Equal(target.Host, u.Host)
				is.Equal(target.RequestURI(), u.RequestURI())
				is.Equal(tc.header, h)
			})
		}
	})

	t.Run("DefaultMethod", func(t *testing.T) {
		is := require.New(t)

		out, err := translateRequest("", mustURL(t, "http://localhost/"), nil)
		is.NoError(err)
		is.Equal("GET", out.Method)
		is.Equal("/", out.PathWithQuery)
	})

	t.Run("InvalidMethod", func(t *testing.T) {
		is := require.New(t)

		_, err := translateRequest("PO ST", mustURL(t, "http://localhost/"), nil)
		is.ErrorIs(err, ErrProtocol)
	})

	t.Run("ValidBytes", func(t *testing.T) {
		is := require.New(t)

		var value []byte
		value = append(value, '\t', ' ')
		for b := 0x21; b <= 0xff; b++ {
			if b == 0x7f {
				continue
			}
			value = append(value, byte(b))
		}
		_, err := translateRequest("POST", mustURL(t, "http://localhost/"), Header{
			{Name: "x-all-valid", Value: string(value)},
			{Name: "x-grpc-timeout", Value: "100m"},
			{Name: "x-bin", Value: "AAEC"},
		})
		is.NoError(err)
	})

	t.Run("InvalidBytes", func(t *testing.T) {
		for _, bad := range []string{"\x00", "\r", "\n", "a\r\nb", "\x7f", "\x01", "\x1f"} {
			t.Run(url.QueryEscape(bad), func(t *testing.T) {
				is := require.New(t)

				_, err := translateRequest("POST", mustURL(t, "http://localhost/"), Header{
					{Name: "x-ok", Value: "ok"},
					{Name: "x-bad", Value: bad},
				})
				is.ErrorIs(err, ErrProtocol)
			})
		}
	})

	t.Run("InvalidName", func(t *testing.T) {
		for _, bad := range []string{"", "a b", "a:b", "café", "x\n"} {
			t.Run(url.QueryEscape(bad), func(t *testing.T) {
				is := require.New(t)

				_, err := translateRequest("POST", mustURL(t, "http://localhost/"), Header{{Name: bad, Value: "v"}})
				is.ErrorIs(err, ErrProtocol)
			})
		}
	})
}
