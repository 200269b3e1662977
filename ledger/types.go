package ledger

import (
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// SecondsPerView is the consensus view-to-wallclock factor. All time on the
	// ledger is derived from the consensus view so every replica computes the
	// same "now".
	SecondsPerView = 3
	// SecondsPerDay is used to derive the day index for the rolling daily
	// withdrawal counters.
	SecondsPerDay = 24 * 60 * 60

	// MaxBridgeBytes bounds destination and source-proof byte strings.
	MaxBridgeBytes = 64

	publicKeySize = 32
	signatureSize = 64
)

// TimeFromView derives the deterministic ledger time (seconds) from a consensus view.
func TimeFromView(view uint64) uint64 {
	return saturatingMul(view, SecondsPerView)
}

// DayFromTime derives the day index used by the daily rate-limit counters.
func DayFromTime(timestamp uint64) uint64 {
	return timestamp / SecondsPerDay
}

// PublicKey is an ed25519 public key identifying a ledger account.
type PublicKey [publicKeySize]byte

func PublicKeyFromBytes(data []byte) (PublicKey, error) {
	var pk PublicKey
	if len(data) != publicKeySize {
		return pk, fmt.Errorf("invalid public key length %d, expected %d", len(data), publicKeySize)
	}
	copy(pk[:], data)
	return pk, nil
}

func PublicKeyFromHex(str string) (PublicKey, error) {
	data, err := hex.DecodeString(strings.TrimPrefix(str, "0x"))
	if err != nil {
		return PublicKey{}, err
	}
	return PublicKeyFromBytes(data)
}

func (p PublicKey) String() string {
	return "0x" + hex.EncodeToString(p[:])
}

func (p PublicKey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *PublicKey) UnmarshalText(data []byte) error {
	pk, err := PublicKeyFromHex(string(data))
	if err != nil {
		return err
	}
	*p = pk
	return nil
}

// HexBytes is a byte string that marshals as 0x-prefixed hex in JSON,
// used for destinations and source proofs so state snapshots stay
// human-inspectable.
type HexBytes []byte

func (b HexBytes) MarshalText() ([]byte, error) {
	return []byte("0x" + hex.EncodeToString(b)), nil
}

func (b *HexBytes) UnmarshalText(data []byte) error {
	decoded, err := hex.DecodeString(strings.TrimPrefix(string(data), "0x"))
	if err != nil {
		return err
	}
	*b = decoded
	return nil
}

// Policy is the admin-mutable bridge policy, stored replicated.
type Policy struct {
	Paused               bool   `json:"paused"`
	DailyGlobalLimit     uint64 `json:"dailyGlobalLimit"`
	DailyPerAccountLimit uint64 `json:"dailyPerAccountLimit"`
	MinWithdraw          uint64 `json:"minWithdraw"`
	MaxWithdraw          uint64 `json:"maxWithdraw"`
	DelaySeconds         uint64 `json:"delaySeconds"`
}

// GlobalState is the replicated bridge singleton: monotonic audit counters,
// the rolling daily counter and the withdrawal id sequence.
type GlobalState struct {
	TotalDeposited   uint64 `json:"totalDeposited"`
	TotalWithdrawn   uint64 `json:"totalWithdrawn"`
	DailyWithdrawn   uint64 `json:"dailyWithdrawn"`
	DailyResetDay    uint64 `json:"dailyResetDay"`
	NextWithdrawalID uint64 `json:"nextWithdrawalId"`
}

// Account holds the spendable balance, the instruction nonce and the
// per-account rolling daily withdrawal counter.
type Account struct {
	Balance        uint64 `json:"balance"`
	Nonce          uint64 `json:"nonce"`
	DailyWithdrawn uint64 `json:"dailyWithdrawn"`
	DailyResetDay  uint64 `json:"dailyResetDay"`
}

// Withdrawal is one bridge withdrawal request. Records are append-only:
// the only mutation ever applied is Fulfilled false -> true, exactly once.
type Withdrawal struct {
	ID          uint64    `json:"id"`
	Owner       PublicKey `json:"owner"`
	Amount      uint64    `json:"amount"`
	Destination HexBytes  `json:"destination"`
	RequestedAt uint64    `json:"requestedAt"`
	AvailableAt uint64    `json:"availableAt"`
	Fulfilled   bool      `json:"fulfilled"`
}

func validDestination(destination []byte) bool {
	l := len(destination)
	return l == 20 || l == 32
}

func validSource(source []byte) bool {
	return len(source) > 0 && len(source) <= MaxBridgeBytes
}

func saturatingAdd(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return ^uint64(0)
	}
	return sum
}

func saturatingMul(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	product := a * b
	if product/b != a {
		return ^uint64(0)
	}
	return product
}

// checkedAdd reports overflow instead of saturating. Balance credits use it so
// an overflow surfaces as a rejection rather than silently capping value.
func checkedAdd(a, b uint64) (uint64, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}
