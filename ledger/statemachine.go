package ledger

import (
	"fmt"
)

// StateMachine applies bridge instructions against the replicated state.
// Every method is a pure function of (state, instruction, view): replicas
// applying the same ordered instructions at the same views reach identical
// state, so nothing here may read wall clocks, maps in range order, or any
// other non-deterministic source.
type StateMachine struct {
	store  Store
	admins map[PublicKey]struct{}
	sink   func(Event)
}

// NewStateMachine builds the state machine. admins is the configured
// relayer/admin key set gating Deposit, FinalizeWithdrawal and SetPolicy.
func NewStateMachine(store Store, admins []PublicKey) *StateMachine {
	adminSet := make(map[PublicKey]struct{}, len(admins))
	for _, admin := range admins {
		adminSet[admin] = struct{}{}
	}
	return &StateMachine{
		store:  store,
		admins: adminSet,
	}
}

// WithEventSink registers a callback invoked for every emitted event, in
// emission order. Used to feed downstream indexers.
func (sm *StateMachine) WithEventSink(sink func(Event)) *StateMachine {
	sm.sink = sink
	return sm
}

func (sm *StateMachine) isAdmin(key PublicKey) bool {
	_, ok := sm.admins[key]
	return ok
}

func (sm *StateMachine) policy() (Policy, error) {
	policy, ok, err := sm.store.Policy()
	if err != nil || ok {
		return policy, err
	}
	// no policy configured yet: zero limits, which reject every withdraw
	// until an admin sets real ones
	return Policy{}, nil
}

func (sm *StateMachine) globalState() (GlobalState, error) {
	state, _, err := sm.store.GlobalState()
	return state, err
}

// ApplyTransaction verifies the signature and nonce, then applies the
// instruction. A failed signature or nonce check returns an error and leaves
// state untouched (such a transaction would never be ordered by consensus).
// Everything past that point only rejects via OperationRejected events: the
// nonce is consumed either way so a rejected instruction cannot wedge the
// submitter's sequence.
func (sm *StateMachine) ApplyTransaction(tx *Transaction, view uint64) ([]Event, error) {
	if !tx.Verify() {
		return nil, ErrInvalidSignature
	}
	account, _, err := sm.store.Account(tx.Public)
	if err != nil {
		return nil, err
	}
	if tx.Nonce != account.Nonce {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrBadNonce, tx.Nonce, account.Nonce)
	}
	account.Nonce++
	if err := sm.store.PutAccount(tx.Public, account); err != nil {
		return nil, err
	}

	events, err := sm.applyInstruction(tx.Public, tx.Instruction, TimeFromView(view))
	if err != nil {
		return nil, err
	}
	if sm.sink != nil {
		for _, event := range events {
			sm.sink(event)
		}
	}
	return events, nil
}

// applyInstruction is the single exhaustive match over the closed instruction
// set.
func (sm *StateMachine) applyInstruction(caller PublicKey, instruction Instruction, now uint64) ([]Event, error) {
	switch ins := instruction.(type) {
	case Withdraw:
		return sm.applyWithdraw(caller, ins, now)
	case Deposit:
		return sm.applyDeposit(caller, ins)
	case FinalizeWithdrawal:
		return sm.applyFinalize(caller, ins, now)
	case SetPolicy:
		return sm.applySetPolicy(caller, ins)
	default:
		return reject(caller, RejectUnknownInstruction, "Unknown bridge instruction"), nil
	}
}

func reject(caller PublicKey, code RejectionCode, reason string) []Event {
	return []Event{OperationRejected{Caller: caller, Code: code, Reason: reason}}
}

func rollDailyGlobal(state *GlobalState, currentDay uint64) {
	if state.DailyResetDay != currentDay {
		state.DailyResetDay = currentDay
		state.DailyWithdrawn = 0
	}
}

func rollDailyAccount(account *Account, currentDay uint64) {
	if account.DailyResetDay != currentDay {
		account.DailyResetDay = currentDay
		account.DailyWithdrawn = 0
	}
}

func (sm *StateMachine) applyWithdraw(caller PublicKey, ins Withdraw, now uint64) ([]Event, error) {
	if ins.Amount == 0 {
		return reject(caller, RejectInvalidAmount, "Bridge withdraw amount must be > 0"), nil
	}
	if !validDestination(ins.Destination) {
		return reject(caller, RejectInvalidDestination, "Invalid bridge destination (expected 20 or 32 bytes)"), nil
	}

	policy, err := sm.policy()
	if err != nil {
		return nil, err
	}
	if policy.Paused {
		return reject(caller, RejectBridgePaused, "Bridge is paused"), nil
	}
	if policy.DailyGlobalLimit == 0 || policy.DailyPerAccountLimit == 0 {
		return reject(caller, RejectLimitsNotConfigured, "Bridge limits not configured"), nil
	}
	if policy.MinWithdraw > 0 && ins.Amount < policy.MinWithdraw {
		return reject(caller, RejectAmountOutOfRange, "Bridge withdraw below minimum"), nil
	}
	if policy.MaxWithdraw > 0 && ins.Amount > policy.MaxWithdraw {
		return reject(caller, RejectAmountOutOfRange, "Bridge withdraw above maximum"), nil
	}

	account, ok, err := sm.store.Account(caller)
	if err != nil {
		return nil, err
	}
	if !ok {
		return reject(caller, RejectRecipientNotFound, "Account not found"), nil
	}
	if account.Balance < ins.Amount {
		return reject(caller, RejectInsufficientFunds, "Insufficient spendable balance"), nil
	}

	// deterministic daily rollover, derived from consensus time
	currentDay := DayFromTime(now)
	rollDailyAccount(&account, currentDay)

	global, err := sm.globalState()
	if err != nil {
		return nil, err
	}
	rollDailyGlobal(&global, currentDay)

	globalDailyAfter := saturatingAdd(global.DailyWithdrawn, ins.Amount)
	if globalDailyAfter > policy.DailyGlobalLimit {
		return reject(caller, RejectRateLimited, "Bridge daily cap reached"), nil
	}
	accountDailyAfter := saturatingAdd(account.DailyWithdrawn, ins.Amount)
	if accountDailyAfter > policy.DailyPerAccountLimit {
		return reject(caller, RejectRateLimited, "Account bridge daily cap reached"), nil
	}

	account.Balance -= ins.Amount
	account.DailyWithdrawn = accountDailyAfter
	account.DailyResetDay = currentDay

	global.DailyWithdrawn = globalDailyAfter
	global.DailyResetDay = currentDay
	global.TotalWithdrawn = saturatingAdd(global.TotalWithdrawn, ins.Amount)
	withdrawalID := global.NextWithdrawalID
	global.NextWithdrawalID = saturatingAdd(global.NextWithdrawalID, 1)

	withdrawal := Withdrawal{
		ID:          withdrawalID,
		Owner:       caller,
		Amount:      ins.Amount,
		Destination: append(HexBytes{}, ins.Destination...),
		RequestedAt: now,
		AvailableAt: saturatingAdd(now, policy.DelaySeconds),
		Fulfilled:   false,
	}

	if err := sm.store.PutAccount(caller, account); err != nil {
		return nil, err
	}
	if err := sm.store.PutGlobalState(global); err != nil {
		return nil, err
	}
	if err := sm.store.PutWithdrawal(withdrawal); err != nil {
		return nil, err
	}

	return []Event{WithdrawalRequested{
		ID:           withdrawal.ID,
		Owner:        caller,
		Amount:       withdrawal.Amount,
		Destination:  withdrawal.Destination,
		RequestedAt:  withdrawal.RequestedAt,
		AvailableAt:  withdrawal.AvailableAt,
		BalanceAfter: account.Balance,
	}}, nil
}

func (sm *StateMachine) applyDeposit(caller PublicKey, ins Deposit) ([]Event, error) {
	if !sm.isAdmin(caller) {
		return reject(caller, RejectUnauthorized, "Unauthorized bridge instruction"), nil
	}
	if ins.Amount == 0 {
		return reject(caller, RejectInvalidAmount, "Bridge deposit amount must be > 0"), nil
	}
	if !validSource(ins.Source) {
		return reject(caller, RejectInvalidSource, "Invalid bridge source"), nil
	}

	recipient, ok, err := sm.store.Account(ins.Recipient)
	if err != nil {
		return nil, err
	}
	if !ok {
		return reject(caller, RejectRecipientNotFound, "Recipient not found"), nil
	}

	balanceAfter, ok := checkedAdd(recipient.Balance, ins.Amount)
	if !ok {
		return reject(caller, RejectArithmeticOverflow, "Bridge deposit overflows recipient balance"), nil
	}
	recipient.Balance = balanceAfter

	global, err := sm.globalState()
	if err != nil {
		return nil, err
	}
	global.TotalDeposited = saturatingAdd(global.TotalDeposited, ins.Amount)

	if err := sm.store.PutAccount(ins.Recipient, recipient); err != nil {
		return nil, err
	}
	if err := sm.store.PutGlobalState(global); err != nil {
		return nil, err
	}

	return []Event{DepositCredited{
		Admin:        caller,
		Recipient:    ins.Recipient,
		Amount:       ins.Amount,
		Source:       append(HexBytes{}, ins.Source...),
		BalanceAfter: recipient.Balance,
	}}, nil
}

func (sm *StateMachine) applyFinalize(caller PublicKey, ins FinalizeWithdrawal, now uint64) ([]Event, error) {
	if !sm.isAdmin(caller) {
		return reject(caller, RejectUnauthorized, "Unauthorized bridge instruction"), nil
	}
	if !validSource(ins.Source) {
		return reject(caller, RejectInvalidSource, "Invalid bridge source"), nil
	}

	withdrawal, ok, err := sm.store.Withdrawal(ins.WithdrawalID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return reject(caller, RejectNotFound, "Bridge withdrawal not found"), nil
	}
	if withdrawal.Fulfilled {
		// idempotency guard: a replayed finalize is a no-op rejection, the
		// external release already happened and this flag is the single
		// source of truth for "may this be finalized again"
		return reject(caller, RejectAlreadyFulfilled, "Bridge withdrawal already finalized"), nil
	}
	if now < withdrawal.AvailableAt {
		return reject(caller, RejectDelayNotElapsed, "Bridge withdrawal delay not elapsed"), nil
	}

	withdrawal.Fulfilled = true
	if err := sm.store.PutWithdrawal(withdrawal); err != nil {
		return nil, err
	}

	return []Event{WithdrawalFinalized{
		ID:          withdrawal.ID,
		Amount:      withdrawal.Amount,
		Source:      append(HexBytes{}, ins.Source...),
		FinalizedAt: now,
	}}, nil
}

func (sm *StateMachine) applySetPolicy(caller PublicKey, ins SetPolicy) ([]Event, error) {
	if !sm.isAdmin(caller) {
		return reject(caller, RejectUnauthorized, "Unauthorized bridge instruction"), nil
	}
	if ins.Policy.MaxWithdraw > 0 && ins.Policy.MinWithdraw > ins.Policy.MaxWithdraw {
		return reject(caller, RejectInvalidPolicy, "Bridge policy min withdraw above max"), nil
	}
	if err := sm.store.PutPolicy(ins.Policy); err != nil {
		return nil, err
	}
	return []Event{PolicyUpdated{Admin: caller, Policy: ins.Policy}}, nil
}
