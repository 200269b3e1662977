package ledger

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInstructionRoundTrip(t *testing.T) {
	recipient := PublicKey{0x01, 0x02}
	instructions := []Instruction{
		Withdraw{Amount: 123, Destination: evmDestination()},
		Deposit{Recipient: recipient, Amount: 456, Source: sourceRef()},
		FinalizeWithdrawal{WithdrawalID: 7, Source: HexBytes{0x01}},
		SetPolicy{Policy: testPolicy()},
	}
	for _, instruction := range instructions {
		encoded := EncodeInstruction(instruction)
		decoded, err := DecodeInstruction(encoded)
		require.NoError(t, err)
		require.Equal(t, instruction, decoded)
	}
}

func TestDecodeInstructionErrors(t *testing.T) {
	_, err := DecodeInstruction(nil)
	require.ErrorIs(t, err, ErrShortBuffer)

	_, err = DecodeInstruction([]byte{0xFF})
	require.ErrorIs(t, err, ErrUnknownInstructionType)

	// truncated withdraw body
	encoded := EncodeInstruction(Withdraw{Amount: 1, Destination: evmDestination()})
	_, err = DecodeInstruction(encoded[:len(encoded)-3])
	require.ErrorIs(t, err, ErrShortBuffer)

	// extra bytes after a well-formed instruction
	_, err = DecodeInstruction(append(encoded, 0x00))
	require.ErrorIs(t, err, ErrTrailingBytes)
}

func TestTransactionRoundTrip(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	tx, err := SignTransaction(priv, 9, Withdraw{Amount: 77, Destination: evmDestination()})
	require.NoError(t, err)
	require.True(t, tx.Verify())

	decoded, err := DecodeTransaction(tx.Encode())
	require.NoError(t, err)
	require.Equal(t, tx, decoded)
	require.True(t, decoded.Verify())
}

func TestTransactionSignatureBindsNonce(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	tx, err := SignTransaction(priv, 0, Withdraw{Amount: 77, Destination: evmDestination()})
	require.NoError(t, err)

	// the signature covers the nonce, so shifting it invalidates the tx
	tx.Nonce = 1
	require.False(t, tx.Verify())
}

func TestDecodeTransactionRejectsTrailing(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	tx, err := SignTransaction(priv, 0, FinalizeWithdrawal{WithdrawalID: 1, Source: HexBytes{0x01}})
	require.NoError(t, err)

	_, err = DecodeTransaction(append(tx.Encode(), 0xAA))
	require.ErrorIs(t, err, ErrTrailingBytes)
}
