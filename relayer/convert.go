package relayer

import (
	"errors"
	"fmt"
	"math/big"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/iden3/go-iden3-crypto/keccak256"

	"github.com/happybigmtn/nullspace-bridge/common"
	"github.com/happybigmtn/nullspace-bridge/ledger"
)

// releaseDomain salts the deterministic source reference a release carries on
// the external chain, tying it back to the ledger withdrawal it settles.
const releaseDomain = "nullspace-bridge/release/v1"

var (
	ErrAmountNotWhole  = errors.New("amount is not a whole number of tokens")
	ErrAmountOverflows = errors.New("amount does not fit the ledger's 64-bit range")
)

func tokenUnit(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// evmAmount scales a ledger amount (whole tokens) to external-chain base
// units.
func evmAmount(amount uint64, decimals uint8) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(amount), tokenUnit(decimals))
}

// ledgerAmount scales an external-chain amount down to whole tokens. Amounts
// carrying dust below one whole token, or exceeding the ledger's 64-bit
// range, are rejected: the ledger cannot represent them and silently rounding
// value away is worse than refusing the deposit.
func ledgerAmount(amount *big.Int, decimals uint8) (uint64, error) {
	unit := tokenUnit(decimals)
	quotient, remainder := new(big.Int).QuoRem(amount, unit, new(big.Int))
	if remainder.Sign() != 0 {
		return 0, fmt.Errorf("%w: %s has remainder %s", ErrAmountNotWhole, amount, remainder)
	}
	if !quotient.IsUint64() {
		return 0, fmt.Errorf("%w: %s", ErrAmountOverflows, amount)
	}
	return quotient.Uint64(), nil
}

// destinationAddress resolves a withdrawal destination to an external-chain
// address. 20 bytes are taken as-is; 32 bytes must be a left-zero-padded
// address.
func destinationAddress(destination ledger.HexBytes) (ethCommon.Address, error) {
	switch len(destination) {
	case ethCommon.AddressLength:
		return ethCommon.BytesToAddress(destination), nil
	case ethCommon.HashLength:
		for _, b := range destination[:ethCommon.HashLength-ethCommon.AddressLength] {
			if b != 0 {
				return ethCommon.Address{}, fmt.Errorf(
					"32-byte destination %s is not a zero-padded address", destination,
				)
			}
		}
		return ethCommon.BytesToAddress(destination[ethCommon.HashLength-ethCommon.AddressLength:]), nil
	default:
		return ethCommon.Address{}, fmt.Errorf("destination has unsupported length %d", len(destination))
	}
}

// recipientFromRef reads the ledger recipient out of a deposit's
// destinationRef, which carries the 32-byte public key directly.
func recipientFromRef(ref [32]byte) ledger.PublicKey {
	return ledger.PublicKey(ref)
}

// releaseSourceRef derives the 32-byte reference a release transaction
// carries for a given withdrawal. Deterministic, so a restarted relayer
// derives the same reference and on-chain Released events can always be
// matched back to their withdrawal.
func releaseSourceRef(withdrawalID uint64) [32]byte {
	var ref [32]byte
	copy(ref[:], keccak256.Hash([]byte(releaseDomain), common.Uint64ToBytes(withdrawalID)))
	return ref
}
