package relayer

import (
	"math/big"
	"testing"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/happybigmtn/nullspace-bridge/ledger"
)

func TestEVMAmount(t *testing.T) {
	require.Equal(t, big.NewInt(5_000_000), evmAmount(5, 6))
	require.Equal(t,
		new(big.Int).Mul(big.NewInt(3), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)),
		evmAmount(3, 18),
	)
	require.Equal(t, big.NewInt(0), evmAmount(0, 18))
}

func TestLedgerAmount(t *testing.T) {
	amount, err := ledgerAmount(big.NewInt(5_000_000), 6)
	require.NoError(t, err)
	require.Equal(t, uint64(5), amount)

	// dust below one whole token is refused, not rounded
	_, err = ledgerAmount(big.NewInt(5_000_001), 6)
	require.ErrorIs(t, err, ErrAmountNotWhole)

	// quotient past the 64-bit range is refused
	huge := new(big.Int).Mul(
		new(big.Int).Exp(big.NewInt(2), big.NewInt(65), nil),
		big.NewInt(1_000_000),
	)
	_, err = ledgerAmount(huge, 6)
	require.ErrorIs(t, err, ErrAmountOverflows)

	// round trip at the edge of the range
	max := ^uint64(0)
	amount, err = ledgerAmount(evmAmount(max, 18), 18)
	require.NoError(t, err)
	require.Equal(t, max, amount)
}

func TestDestinationAddress(t *testing.T) {
	want := ethCommon.HexToAddress("0x00112233445566778899aabbccddeeff00112233")

	got, err := destinationAddress(ledger.HexBytes(want.Bytes()))
	require.NoError(t, err)
	require.Equal(t, want, got)

	// 32 bytes with a zero prefix resolve to the embedded address
	padded := make(ledger.HexBytes, 32)
	copy(padded[12:], want.Bytes())
	got, err = destinationAddress(padded)
	require.NoError(t, err)
	require.Equal(t, want, got)

	// non-zero prefix is ambiguous, refuse it
	padded[0] = 0x01
	_, err = destinationAddress(padded)
	require.Error(t, err)

	_, err = destinationAddress(ledger.HexBytes{0x01, 0x02, 0x03})
	require.Error(t, err)
}

func TestReleaseSourceRef(t *testing.T) {
	ref := releaseSourceRef(7)
	require.Equal(t, ref, releaseSourceRef(7))
	require.NotEqual(t, ref, releaseSourceRef(8))
	require.NotEqual(t, [32]byte{}, ref)
}
