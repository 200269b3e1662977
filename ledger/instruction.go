package ledger

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/happybigmtn/nullspace-bridge/common"
)

// InstructionType tags the closed set of bridge instructions on the wire.
type InstructionType uint8

const (
	InstructionWithdraw InstructionType = iota + 1
	InstructionDeposit
	InstructionFinalizeWithdrawal
	InstructionSetPolicy
)

// signingDomain separates transaction signatures from any other ed25519
// signatures produced with the same key.
const signingDomain = "nullspace-bridge/tx/v1"

var (
	ErrUnknownInstructionType = errors.New("unknown instruction type")
	ErrShortBuffer            = errors.New("buffer too short")
	ErrTrailingBytes          = errors.New("unexpected trailing bytes")
)

// Instruction is the closed tagged-variant of bridge operations. The state
// machine matches on the concrete type in exactly one place
// (StateMachine.applyInstruction).
type Instruction interface {
	Type() InstructionType
	encodeBody(buf *bytes.Buffer)
}

// Withdraw burns balance from the caller and schedules a delayed release to
// Destination on the external chain.
type Withdraw struct {
	Amount      uint64
	Destination HexBytes
}

// Deposit credits Recipient with Amount. Privileged: only the configured
// relayer/admin identity may call it. Source references the external
// transaction that locked the value.
type Deposit struct {
	Recipient PublicKey
	Amount    uint64
	Source    HexBytes
}

// FinalizeWithdrawal marks a withdrawal as settled externally. Privileged.
type FinalizeWithdrawal struct {
	WithdrawalID uint64
	Source       HexBytes
}

// SetPolicy replaces the bridge policy. Privileged.
type SetPolicy struct {
	Policy Policy
}

func (Withdraw) Type() InstructionType           { return InstructionWithdraw }
func (Deposit) Type() InstructionType            { return InstructionDeposit }
func (FinalizeWithdrawal) Type() InstructionType { return InstructionFinalizeWithdrawal }
func (SetPolicy) Type() InstructionType          { return InstructionSetPolicy }

func writeBytes(buf *bytes.Buffer, data []byte) {
	buf.Write(common.Uint32ToBytes(uint32(len(data))))
	buf.Write(data)
}

func (i Withdraw) encodeBody(buf *bytes.Buffer) {
	buf.Write(common.Uint64ToBytes(i.Amount))
	writeBytes(buf, i.Destination)
}

func (i Deposit) encodeBody(buf *bytes.Buffer) {
	buf.Write(i.Recipient[:])
	buf.Write(common.Uint64ToBytes(i.Amount))
	writeBytes(buf, i.Source)
}

func (i FinalizeWithdrawal) encodeBody(buf *bytes.Buffer) {
	buf.Write(common.Uint64ToBytes(i.WithdrawalID))
	writeBytes(buf, i.Source)
}

func (i SetPolicy) encodeBody(buf *bytes.Buffer) {
	if i.Policy.Paused {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	buf.Write(common.Uint64ToBytes(i.Policy.DailyGlobalLimit))
	buf.Write(common.Uint64ToBytes(i.Policy.DailyPerAccountLimit))
	buf.Write(common.Uint64ToBytes(i.Policy.MinWithdraw))
	buf.Write(common.Uint64ToBytes(i.Policy.MaxWithdraw))
	buf.Write(common.Uint64ToBytes(i.Policy.DelaySeconds))
}

// EncodeInstruction produces the canonical binary form: one type byte
// followed by big-endian fields, byte strings length-prefixed with uint32.
func EncodeInstruction(instruction Instruction) []byte {
	buf := &bytes.Buffer{}
	buf.WriteByte(byte(instruction.Type()))
	instruction.encodeBody(buf)
	return buf.Bytes()
}

type reader struct {
	data []byte
	pos  int
}

func (r *reader) byte() (byte, error) {
	if r.pos+1 > len(r.data) {
		return 0, ErrShortBuffer
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) uint64() (uint64, error) {
	if r.pos+8 > len(r.data) {
		return 0, ErrShortBuffer
	}
	v := binary.BigEndian.Uint64(r.data[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *reader) fixed(n int) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, ErrShortBuffer
	}
	out := r.data[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *reader) bytes() ([]byte, error) {
	if r.pos+4 > len(r.data) {
		return nil, ErrShortBuffer
	}
	n := binary.BigEndian.Uint32(r.data[r.pos : r.pos+4])
	r.pos += 4
	return r.fixed(int(n))
}

func (r *reader) done() error {
	if r.pos != len(r.data) {
		return ErrTrailingBytes
	}
	return nil
}

// DecodeInstruction parses the canonical binary form.
func DecodeInstruction(data []byte) (Instruction, error) {
	r := &reader{data: data}
	instruction, err := decodeInstruction(r)
	if err != nil {
		return nil, err
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return instruction, nil
}

func decodeInstruction(r *reader) (Instruction, error) {
	tag, err := r.byte()
	if err != nil {
		return nil, err
	}
	switch InstructionType(tag) {
	case InstructionWithdraw:
		amount, err := r.uint64()
		if err != nil {
			return nil, err
		}
		destination, err := r.bytes()
		if err != nil {
			return nil, err
		}
		return Withdraw{Amount: amount, Destination: append(HexBytes{}, destination...)}, nil
	case InstructionDeposit:
		recipientBytes, err := r.fixed(publicKeySize)
		if err != nil {
			return nil, err
		}
		recipient, err := PublicKeyFromBytes(recipientBytes)
		if err != nil {
			return nil, err
		}
		amount, err := r.uint64()
		if err != nil {
			return nil, err
		}
		source, err := r.bytes()
		if err != nil {
			return nil, err
		}
		return Deposit{Recipient: recipient, Amount: amount, Source: append(HexBytes{}, source...)}, nil
	case InstructionFinalizeWithdrawal:
		id, err := r.uint64()
		if err != nil {
			return nil, err
		}
		source, err := r.bytes()
		if err != nil {
			return nil, err
		}
		return FinalizeWithdrawal{WithdrawalID: id, Source: append(HexBytes{}, source...)}, nil
	case InstructionSetPolicy:
		paused, err := r.byte()
		if err != nil {
			return nil, err
		}
		var fields [5]uint64
		for i := range fields {
			fields[i], err = r.uint64()
			if err != nil {
				return nil, err
			}
		}
		return SetPolicy{Policy: Policy{
			Paused:               paused != 0,
			DailyGlobalLimit:     fields[0],
			DailyPerAccountLimit: fields[1],
			MinWithdraw:          fields[2],
			MaxWithdraw:          fields[3],
			DelaySeconds:         fields[4],
		}}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownInstructionType, tag)
	}
}

// Transaction is a signed, nonce-ordered instruction as accepted by the
// ledger's submission endpoint.
type Transaction struct {
	Nonce       uint64
	Instruction Instruction
	Public      PublicKey
	Signature   [signatureSize]byte
}

func signingPayload(nonce uint64, instruction Instruction) []byte {
	buf := &bytes.Buffer{}
	buf.WriteString(signingDomain)
	buf.Write(common.Uint64ToBytes(nonce))
	buf.Write(EncodeInstruction(instruction))
	return buf.Bytes()
}

// SignTransaction signs the instruction with the given ed25519 private key.
func SignTransaction(private ed25519.PrivateKey, nonce uint64, instruction Instruction) (*Transaction, error) {
	public, err := PublicKeyFromBytes(private.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	tx := &Transaction{
		Nonce:       nonce,
		Instruction: instruction,
		Public:      public,
	}
	copy(tx.Signature[:], ed25519.Sign(private, signingPayload(nonce, instruction)))
	return tx, nil
}

// Verify checks the ed25519 signature against the canonical payload.
func (t *Transaction) Verify() bool {
	return ed25519.Verify(t.Public[:], signingPayload(t.Nonce, t.Instruction), t.Signature[:])
}

// Encode serializes the transaction for submission.
func (t *Transaction) Encode() []byte {
	buf := &bytes.Buffer{}
	buf.Write(common.Uint64ToBytes(t.Nonce))
	writeBytes(buf, EncodeInstruction(t.Instruction))
	buf.Write(t.Public[:])
	buf.Write(t.Signature[:])
	return buf.Bytes()
}

// DecodeTransaction parses a submitted transaction. The signature is not
// verified here; the execution step does that.
func DecodeTransaction(data []byte) (*Transaction, error) {
	r := &reader{data: data}
	nonce, err := r.uint64()
	if err != nil {
		return nil, err
	}
	instructionBytes, err := r.bytes()
	if err != nil {
		return nil, err
	}
	instruction, err := DecodeInstruction(instructionBytes)
	if err != nil {
		return nil, err
	}
	publicBytes, err := r.fixed(publicKeySize)
	if err != nil {
		return nil, err
	}
	public, err := PublicKeyFromBytes(publicBytes)
	if err != nil {
		return nil, err
	}
	signatureBytes, err := r.fixed(signatureSize)
	if err != nil {
		return nil, err
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	tx := &Transaction{
		Nonce:       nonce,
		Instruction: instruction,
		Public:      public,
	}
	copy(tx.Signature[:], signatureBytes)
	return tx, nil
}
