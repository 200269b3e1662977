package ledger

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

type testAccount struct {
	private ed25519.PrivateKey
	public  PublicKey
	nonce   uint64
}

func newTestAccount(t *testing.T) *testAccount {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	public, err := PublicKeyFromBytes(pub)
	require.NoError(t, err)
	return &testAccount{private: priv, public: public}
}

// apply signs the instruction with the account's next nonce and runs it
// through the state machine at the given view.
func (a *testAccount) apply(t *testing.T, sm *StateMachine, instruction Instruction, view uint64) []Event {
	t.Helper()
	tx, err := SignTransaction(a.private, a.nonce, instruction)
	require.NoError(t, err)
	events, err := sm.ApplyTransaction(tx, view)
	require.NoError(t, err)
	a.nonce++
	return events
}

func requireRejection(t *testing.T, events []Event, code RejectionCode) OperationRejected {
	t.Helper()
	require.Len(t, events, 1)
	rejection, ok := events[0].(OperationRejected)
	require.True(t, ok, "expected OperationRejected, got %T", events[0])
	require.Equal(t, code, rejection.Code)
	return rejection
}

func testPolicy() Policy {
	return Policy{
		DailyGlobalLimit:     1_000_000,
		DailyPerAccountLimit: 100_000,
		MinWithdraw:          100,
		MaxWithdraw:          50_000,
		DelaySeconds:         3600,
	}
}

func newBridge(t *testing.T) (*StateMachine, *MemStore, *testAccount, *testAccount) {
	t.Helper()
	store := NewMemStore()
	admin := newTestAccount(t)
	user := newTestAccount(t)
	sm := NewStateMachine(store, []PublicKey{admin.public})
	require.NoError(t, store.PutAccount(user.public, Account{}))
	require.NoError(t, store.PutAccount(admin.public, Account{}))
	return sm, store, admin, user
}

func evmDestination() HexBytes {
	dest := make(HexBytes, 20)
	for i := range dest {
		dest[i] = byte(i + 1)
	}
	return dest
}

func sourceRef() HexBytes {
	src := make(HexBytes, 32)
	for i := range src {
		src[i] = 0xAB
	}
	return src
}

func TestDepositWithdrawFinalizeFlow(t *testing.T) {
	sm, store, admin, user := newBridge(t)

	events := admin.apply(t, sm, SetPolicy{Policy: testPolicy()}, 0)
	require.Len(t, events, 1)
	require.IsType(t, PolicyUpdated{}, events[0])

	events = admin.apply(t, sm, Deposit{Recipient: user.public, Amount: 10_000, Source: sourceRef()}, 1)
	require.Len(t, events, 1)
	credited := events[0].(DepositCredited)
	require.Equal(t, uint64(10_000), credited.Amount)
	require.Equal(t, uint64(10_000), credited.BalanceAfter)
	require.Equal(t, user.public, credited.Recipient)

	// view 100 -> time 300
	events = user.apply(t, sm, Withdraw{Amount: 2_500, Destination: evmDestination()}, 100)
	require.Len(t, events, 1)
	requested := events[0].(WithdrawalRequested)
	require.Equal(t, uint64(0), requested.ID)
	require.Equal(t, uint64(2_500), requested.Amount)
	require.Equal(t, uint64(300), requested.RequestedAt)
	require.Equal(t, uint64(300+3600), requested.AvailableAt)
	require.Equal(t, uint64(7_500), requested.BalanceAfter)

	account, ok, err := store.Account(user.public)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(7_500), account.Balance)
	require.Equal(t, uint64(2_500), account.DailyWithdrawn)

	global, _, err := store.GlobalState()
	require.NoError(t, err)
	require.Equal(t, uint64(10_000), global.TotalDeposited)
	require.Equal(t, uint64(2_500), global.TotalWithdrawn)
	require.Equal(t, uint64(1), global.NextWithdrawalID)

	// delay has elapsed at time 3900 (view 1300)
	events = admin.apply(t, sm, FinalizeWithdrawal{WithdrawalID: 0, Source: sourceRef()}, 1300)
	require.Len(t, events, 1)
	finalized := events[0].(WithdrawalFinalized)
	require.Equal(t, uint64(0), finalized.ID)
	require.Equal(t, uint64(2_500), finalized.Amount)

	withdrawal, ok, err := store.Withdrawal(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, withdrawal.Fulfilled)
}

func TestWithdrawValidationOrder(t *testing.T) {
	sm, store, admin, user := newBridge(t)

	// zero amount is checked before everything else, even unset policy
	events := user.apply(t, sm, Withdraw{Amount: 0, Destination: evmDestination()}, 0)
	requireRejection(t, events, RejectInvalidAmount)

	events = user.apply(t, sm, Withdraw{Amount: 500, Destination: HexBytes{0x01, 0x02}}, 0)
	requireRejection(t, events, RejectInvalidDestination)

	// no policy configured yet
	events = user.apply(t, sm, Withdraw{Amount: 500, Destination: evmDestination()}, 0)
	requireRejection(t, events, RejectLimitsNotConfigured)

	paused := testPolicy()
	paused.Paused = true
	admin.apply(t, sm, SetPolicy{Policy: paused}, 0)
	events = user.apply(t, sm, Withdraw{Amount: 500, Destination: evmDestination()}, 0)
	requireRejection(t, events, RejectBridgePaused)

	admin.apply(t, sm, SetPolicy{Policy: testPolicy()}, 0)
	events = user.apply(t, sm, Withdraw{Amount: 99, Destination: evmDestination()}, 0)
	requireRejection(t, events, RejectAmountOutOfRange)
	events = user.apply(t, sm, Withdraw{Amount: 50_001, Destination: evmDestination()}, 0)
	requireRejection(t, events, RejectAmountOutOfRange)

	events = user.apply(t, sm, Withdraw{Amount: 500, Destination: evmDestination()}, 0)
	requireRejection(t, events, RejectInsufficientFunds)

	require.NoError(t, store.PutAccount(user.public, Account{Balance: 10_000, Nonce: user.nonce}))
	events = user.apply(t, sm, Withdraw{Amount: 500, Destination: evmDestination()}, 0)
	require.IsType(t, WithdrawalRequested{}, events[0])
}

func TestWithdraw32ByteDestination(t *testing.T) {
	sm, store, admin, user := newBridge(t)
	admin.apply(t, sm, SetPolicy{Policy: testPolicy()}, 0)
	require.NoError(t, store.PutAccount(user.public, Account{Balance: 10_000}))

	dest := make(HexBytes, 32)
	dest[31] = 0x01
	events := user.apply(t, sm, Withdraw{Amount: 500, Destination: dest}, 0)
	require.IsType(t, WithdrawalRequested{}, events[0])
}

func TestDailyCaps(t *testing.T) {
	sm, store, admin, user := newBridge(t)
	policy := testPolicy()
	policy.DailyPerAccountLimit = 5_000
	policy.MaxWithdraw = 0 // no per-tx maximum
	admin.apply(t, sm, SetPolicy{Policy: policy}, 0)
	require.NoError(t, store.PutAccount(user.public, Account{Balance: 1_000_000}))

	events := user.apply(t, sm, Withdraw{Amount: 4_000, Destination: evmDestination()}, 0)
	require.IsType(t, WithdrawalRequested{}, events[0])

	// 4000 + 1001 would exceed the per-account cap
	events = user.apply(t, sm, Withdraw{Amount: 1_001, Destination: evmDestination()}, 0)
	rejection := requireRejection(t, events, RejectRateLimited)
	require.Equal(t, "Account bridge daily cap reached", rejection.Reason)

	// exactly at the cap is allowed
	events = user.apply(t, sm, Withdraw{Amount: 1_000, Destination: evmDestination()}, 0)
	require.IsType(t, WithdrawalRequested{}, events[0])

	// next UTC day resets the counter: day boundary is at time 86400,
	// i.e. view 28800
	events = user.apply(t, sm, Withdraw{Amount: 5_000, Destination: evmDestination()}, 28800)
	require.IsType(t, WithdrawalRequested{}, events[0])
}

func TestGlobalDailyCap(t *testing.T) {
	sm, store, admin, user := newBridge(t)
	other := newTestAccount(t)
	policy := testPolicy()
	policy.DailyGlobalLimit = 6_000
	policy.DailyPerAccountLimit = 6_000
	policy.MaxWithdraw = 0
	admin.apply(t, sm, SetPolicy{Policy: policy}, 0)
	require.NoError(t, store.PutAccount(user.public, Account{Balance: 1_000_000}))
	require.NoError(t, store.PutAccount(other.public, Account{Balance: 1_000_000}))

	events := user.apply(t, sm, Withdraw{Amount: 4_000, Destination: evmDestination()}, 0)
	require.IsType(t, WithdrawalRequested{}, events[0])

	// the global counter spans accounts
	events = other.apply(t, sm, Withdraw{Amount: 2_001, Destination: evmDestination()}, 0)
	rejection := requireRejection(t, events, RejectRateLimited)
	require.Equal(t, "Bridge daily cap reached", rejection.Reason)

	events = other.apply(t, sm, Withdraw{Amount: 2_000, Destination: evmDestination()}, 0)
	require.IsType(t, WithdrawalRequested{}, events[0])
}

func TestAccountCapSpentByMaxWithdrawal(t *testing.T) {
	sm, store, admin, user := newBridge(t)
	policy := Policy{
		DailyGlobalLimit:     10_000,
		DailyPerAccountLimit: 1_000,
		MinWithdraw:          1,
		MaxWithdraw:          1_000,
		DelaySeconds:         3600,
	}
	admin.apply(t, sm, SetPolicy{Policy: policy}, 0)
	require.NoError(t, store.PutAccount(user.public, Account{Balance: 2_000}))

	// view 100 -> time 300
	events := user.apply(t, sm, Withdraw{Amount: 1_000, Destination: evmDestination()}, 100)
	require.Len(t, events, 1)
	requested := events[0].(WithdrawalRequested)
	require.Equal(t, uint64(300+3600), requested.AvailableAt)

	account, _, err := store.Account(user.public)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), account.Balance)

	// the day's allowance is spent, even the minimum is over the cap now
	events = user.apply(t, sm, Withdraw{Amount: 1, Destination: evmDestination()}, 101)
	requireRejection(t, events, RejectRateLimited)

	account, _, err = store.Account(user.public)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), account.Balance, "rejected withdraw must not touch the balance")

	// one view short of maturity (time 3897 < 3900)
	events = admin.apply(t, sm, FinalizeWithdrawal{WithdrawalID: 0, Source: sourceRef()}, 1299)
	requireRejection(t, events, RejectDelayNotElapsed)

	events = admin.apply(t, sm, FinalizeWithdrawal{WithdrawalID: 0, Source: sourceRef()}, 1300)
	require.IsType(t, WithdrawalFinalized{}, events[0])
}

func TestFinalizeDelayBoundary(t *testing.T) {
	sm, store, admin, user := newBridge(t)
	admin.apply(t, sm, SetPolicy{Policy: testPolicy()}, 0)
	require.NoError(t, store.PutAccount(user.public, Account{Balance: 10_000}))

	user.apply(t, sm, Withdraw{Amount: 500, Destination: evmDestination()}, 0)
	// requested at time 0, available at 3600

	// time 3597 (view 1199): one view short
	events := admin.apply(t, sm, FinalizeWithdrawal{WithdrawalID: 0, Source: sourceRef()}, 1199)
	requireRejection(t, events, RejectDelayNotElapsed)

	// time 3600 (view 1200): exactly at AvailableAt is allowed
	events = admin.apply(t, sm, FinalizeWithdrawal{WithdrawalID: 0, Source: sourceRef()}, 1200)
	require.IsType(t, WithdrawalFinalized{}, events[0])

	// replay is rejected, never double-applied
	events = admin.apply(t, sm, FinalizeWithdrawal{WithdrawalID: 0, Source: sourceRef()}, 1201)
	requireRejection(t, events, RejectAlreadyFulfilled)
}

func TestFinalizeUnknownWithdrawal(t *testing.T) {
	sm, _, admin, _ := newBridge(t)
	events := admin.apply(t, sm, FinalizeWithdrawal{WithdrawalID: 42, Source: sourceRef()}, 0)
	requireRejection(t, events, RejectNotFound)
}

func TestPrivilegedInstructionsRequireAdmin(t *testing.T) {
	sm, _, _, user := newBridge(t)

	events := user.apply(t, sm, Deposit{Recipient: user.public, Amount: 100, Source: sourceRef()}, 0)
	requireRejection(t, events, RejectUnauthorized)

	events = user.apply(t, sm, FinalizeWithdrawal{WithdrawalID: 0, Source: sourceRef()}, 0)
	requireRejection(t, events, RejectUnauthorized)

	events = user.apply(t, sm, SetPolicy{Policy: testPolicy()}, 0)
	requireRejection(t, events, RejectUnauthorized)
}

func TestDepositValidation(t *testing.T) {
	sm, store, admin, user := newBridge(t)

	events := admin.apply(t, sm, Deposit{Recipient: user.public, Amount: 0, Source: sourceRef()}, 0)
	requireRejection(t, events, RejectInvalidAmount)

	events = admin.apply(t, sm, Deposit{Recipient: user.public, Amount: 100, Source: HexBytes{}}, 0)
	requireRejection(t, events, RejectInvalidSource)

	tooLong := make(HexBytes, MaxBridgeBytes+1)
	events = admin.apply(t, sm, Deposit{Recipient: user.public, Amount: 100, Source: tooLong}, 0)
	requireRejection(t, events, RejectInvalidSource)

	unknown := newTestAccount(t)
	events = admin.apply(t, sm, Deposit{Recipient: unknown.public, Amount: 100, Source: sourceRef()}, 0)
	requireRejection(t, events, RejectRecipientNotFound)

	// crediting past the u64 range is rejected, not wrapped
	require.NoError(t, store.PutAccount(user.public, Account{Balance: ^uint64(0) - 50}))
	events = admin.apply(t, sm, Deposit{Recipient: user.public, Amount: 100, Source: sourceRef()}, 0)
	requireRejection(t, events, RejectArithmeticOverflow)
}

func TestSetPolicyValidation(t *testing.T) {
	sm, store, admin, _ := newBridge(t)

	bad := testPolicy()
	bad.MinWithdraw = 200
	bad.MaxWithdraw = 100
	events := admin.apply(t, sm, SetPolicy{Policy: bad}, 0)
	requireRejection(t, events, RejectInvalidPolicy)

	_, ok, err := store.Policy()
	require.NoError(t, err)
	require.False(t, ok, "rejected policy must not be stored")

	// MaxWithdraw == 0 means unbounded, so any MinWithdraw is fine
	unbounded := testPolicy()
	unbounded.MaxWithdraw = 0
	unbounded.MinWithdraw = 1_000_000
	events = admin.apply(t, sm, SetPolicy{Policy: unbounded}, 0)
	require.IsType(t, PolicyUpdated{}, events[0])
}

func TestNonceSequencing(t *testing.T) {
	sm, store, admin, user := newBridge(t)
	admin.apply(t, sm, SetPolicy{Policy: testPolicy()}, 0)
	require.NoError(t, store.PutAccount(user.public, Account{Balance: 10_000}))

	// wrong nonce never reaches the instruction
	tx, err := SignTransaction(user.private, 5, Withdraw{Amount: 500, Destination: evmDestination()})
	require.NoError(t, err)
	_, err = sm.ApplyTransaction(tx, 0)
	require.ErrorIs(t, err, ErrBadNonce)

	// a rejected instruction still consumes the nonce
	events := user.apply(t, sm, Withdraw{Amount: 0, Destination: evmDestination()}, 0)
	requireRejection(t, events, RejectInvalidAmount)

	account, _, err := store.Account(user.public)
	require.NoError(t, err)
	require.Equal(t, uint64(1), account.Nonce)

	// replaying the consumed nonce fails
	tx, err = SignTransaction(user.private, 0, Withdraw{Amount: 500, Destination: evmDestination()})
	require.NoError(t, err)
	_, err = sm.ApplyTransaction(tx, 0)
	require.ErrorIs(t, err, ErrBadNonce)
}

func TestInvalidSignature(t *testing.T) {
	sm, _, _, user := newBridge(t)
	tx, err := SignTransaction(user.private, 0, Withdraw{Amount: 500, Destination: evmDestination()})
	require.NoError(t, err)
	tx.Signature[0] ^= 0xFF
	_, err = sm.ApplyTransaction(tx, 0)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

// Conservation: TotalDeposited - TotalWithdrawn always equals the sum of
// account balances (admin mints only via Deposit).
func TestConservation(t *testing.T) {
	sm, store, admin, user := newBridge(t)
	other := newTestAccount(t)
	require.NoError(t, store.PutAccount(other.public, Account{}))
	admin.apply(t, sm, SetPolicy{Policy: testPolicy()}, 0)

	admin.apply(t, sm, Deposit{Recipient: user.public, Amount: 40_000, Source: sourceRef()}, 0)
	admin.apply(t, sm, Deposit{Recipient: other.public, Amount: 25_000, Source: sourceRef()}, 1)
	user.apply(t, sm, Withdraw{Amount: 5_000, Destination: evmDestination()}, 2)
	other.apply(t, sm, Withdraw{Amount: 1_000, Destination: evmDestination()}, 3)
	admin.apply(t, sm, Deposit{Recipient: user.public, Amount: 3_000, Source: sourceRef()}, 4)

	global, _, err := store.GlobalState()
	require.NoError(t, err)

	var totalBalances uint64
	for _, account := range store.Accounts() {
		totalBalances += account.Balance
	}
	require.Equal(t, global.TotalDeposited-global.TotalWithdrawn, totalBalances)
}

func TestEventSink(t *testing.T) {
	sm, _, admin, _ := newBridge(t)
	var seen []Event
	sm.WithEventSink(func(event Event) { seen = append(seen, event) })

	admin.apply(t, sm, SetPolicy{Policy: testPolicy()}, 0)
	require.Len(t, seen, 1)
	require.IsType(t, PolicyUpdated{}, seen[0])
}
