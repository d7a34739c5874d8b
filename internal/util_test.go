package internal

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"

	wasigrpc "github.com/Aditya1404Sal/wasmcloud-grpc-client"
)

func TestToHeader(t *testing.T) {
	is := require.New(t)

	var h wasigrpc.Header
	ToHeader(&h,
		metadata.Pairs("X-Key", "a", "x-key", "b"),
		metadata.Pairs("blob-bin", string([]byte{0xfa, 0xce}), "content-type", "text/plain", "grpc-timeout", "1S"),
	)

	is.Equal([]string{"a", "b"}, h.Values("x-key"))
	is.Equal("+s4", h.Get("blob-bin"))
	is.Empty(h.Values("content-type"))
	is.Empty(h.Values("grpc-timeout"))
}

func TestToMetadata(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		is := require.New(t)

		md, err := ToMetadata(wasigrpc.Header{
			{Name: "X-Key", Value: "a"},
			{Name: "x-key", Value: "b"},
			{Name: "padded-bin", Value: "+s4="},
			{Name: "raw-bin", Value: "+s4"},
			{Name: "grpc-status", Value: "0"},
			{Name: "content-type", Value: "application/grpc"},
		})
		is.NoError(err)
		is.Equal(metadata.MD{
			"x-key":      {"a", "b"},
			"padded-bin": {string([]byte{0xfa, 0xce})},
			"raw-bin":    {string([]byte{0xfa, 0xce})},
		}, md)
	})

	t.Run("BadBinary", func(t *testing.T) {
		_, err := ToMetadata(wasigrpc.Header{{Name: "x-bin", Value: "!!"}})
		require.Error(t, err)
	})
}

func TestIsReservedHeader(t *testing.T) {
	is := require.New(t)

	is.True(IsReservedHeader(":authority"))
	is.True(IsReservedHeader("Grpc-Status"))
	is.True(IsReservedHeader("TE"))
	is.False(IsReservedHeader("grpc-custom"))
	is.False(IsReservedHeader("authorization"))
}
