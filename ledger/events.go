package ledger

// Event is emitted by the state machine for every applied instruction and is
// visible to downstream indexers. The set is closed; the relayer watches
// WithdrawalRequested and WithdrawalFinalized.
type Event interface {
	isEvent()
}

// WithdrawalRequested signals that balance has been burnt and a delayed
// release scheduled. This is the event the relayer acts on once AvailableAt
// has passed.
type WithdrawalRequested struct {
	ID           uint64    `json:"id"`
	Owner        PublicKey `json:"owner"`
	Amount       uint64    `json:"amount"`
	Destination  HexBytes  `json:"destination"`
	RequestedAt  uint64    `json:"requestedAt"`
	AvailableAt  uint64    `json:"availableAt"`
	BalanceAfter uint64    `json:"balanceAfter"`
}

// DepositCredited signals that the privileged relayer minted spendable
// balance backed by an external-chain lock. Source links the credit to the
// external transaction for audit.
type DepositCredited struct {
	Admin        PublicKey `json:"admin"`
	Recipient    PublicKey `json:"recipient"`
	Amount       uint64    `json:"amount"`
	Source       HexBytes  `json:"source"`
	BalanceAfter uint64    `json:"balanceAfter"`
}

// WithdrawalFinalized marks a withdrawal as settled on the external chain.
type WithdrawalFinalized struct {
	ID          uint64   `json:"id"`
	Amount      uint64   `json:"amount"`
	Source      HexBytes `json:"source"`
	FinalizedAt uint64   `json:"finalizedAt"`
}

// PolicyUpdated is emitted on every accepted admin policy change.
type PolicyUpdated struct {
	Admin  PublicKey `json:"admin"`
	Policy Policy    `json:"policy"`
}

// OperationRejected is the structured, user-visible rejection of a bridge
// instruction. Reason is a human-readable explanation suitable for clients.
type OperationRejected struct {
	Caller PublicKey     `json:"caller"`
	Code   RejectionCode `json:"code"`
	Reason string        `json:"reason"`
}

func (WithdrawalRequested) isEvent() {}
func (DepositCredited) isEvent()     {}
func (WithdrawalFinalized) isEvent() {}
func (PolicyUpdated) isEvent()       {}
func (OperationRejected) isEvent()   {}
