package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUint64Roundtrip(t *testing.T) {
	for _, num := range []uint64{0, 1, 255, 256, 1 << 32, 1<<64 - 1} {
		require.Equal(t, num, BytesToUint64(Uint64ToBytes(num)))
	}
}

func TestUint32Roundtrip(t *testing.T) {
	for _, num := range []uint32{0, 1, 255, 256, 1<<32 - 1} {
		require.Equal(t, num, BytesToUint32(Uint32ToBytes(num)))
	}
}

func TestDecodeHex(t *testing.T) {
	withPrefix, err := DecodeHex("0xdeadbeef")
	require.NoError(t, err)
	withoutPrefix, err := DecodeHex("deadbeef")
	require.NoError(t, err)
	require.Equal(t, withPrefix, withoutPrefix)
	require.Equal(t, "0xdeadbeef", EncodeHex(withPrefix))

	_, err = DecodeHex("0xzz")
	require.Error(t, err)
}
