package ledger

// Store is the deterministic typed key-value state the replicated execution
// layer hands to the bridge state machine. Implementations must be
// single-writer: the state machine is only ever driven by the totally-ordered
// execution step, never concurrently.
type Store interface {
	Policy() (Policy, bool, error)
	PutPolicy(policy Policy) error
	GlobalState() (GlobalState, bool, error)
	PutGlobalState(state GlobalState) error
	Account(key PublicKey) (Account, bool, error)
	PutAccount(key PublicKey, account Account) error
	Withdrawal(id uint64) (Withdrawal, bool, error)
	PutWithdrawal(withdrawal Withdrawal) error
}

// MemStore is a map-backed Store used by tests and the local simulator. Not
// safe for concurrent use, which is fine: the execution step is sequential.
type MemStore struct {
	policy      *Policy
	global      *GlobalState
	accounts    map[PublicKey]Account
	withdrawals map[uint64]Withdrawal
}

func NewMemStore() *MemStore {
	return &MemStore{
		accounts:    make(map[PublicKey]Account),
		withdrawals: make(map[uint64]Withdrawal),
	}
}

func (s *MemStore) Policy() (Policy, bool, error) {
	if s.policy == nil {
		return Policy{}, false, nil
	}
	return *s.policy, true, nil
}

func (s *MemStore) PutPolicy(policy Policy) error {
	s.policy = &policy
	return nil
}

func (s *MemStore) GlobalState() (GlobalState, bool, error) {
	if s.global == nil {
		return GlobalState{}, false, nil
	}
	return *s.global, true, nil
}

func (s *MemStore) PutGlobalState(state GlobalState) error {
	s.global = &state
	return nil
}

func (s *MemStore) Account(key PublicKey) (Account, bool, error) {
	account, ok := s.accounts[key]
	return account, ok, nil
}

func (s *MemStore) PutAccount(key PublicKey, account Account) error {
	s.accounts[key] = account
	return nil
}

func (s *MemStore) Withdrawal(id uint64) (Withdrawal, bool, error) {
	withdrawal, ok := s.withdrawals[id]
	return withdrawal, ok, nil
}

func (s *MemStore) PutWithdrawal(withdrawal Withdrawal) error {
	s.withdrawals[withdrawal.ID] = withdrawal
	return nil
}

// Accounts returns a copy of all accounts. Test helper for conservation
// checks and snapshot queries on the simulator.
func (s *MemStore) Accounts() map[PublicKey]Account {
	out := make(map[PublicKey]Account, len(s.accounts))
	for k, v := range s.accounts {
		out[k] = v
	}
	return out
}
