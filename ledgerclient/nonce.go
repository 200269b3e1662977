package ledgerclient

import (
	"github.com/happybigmtn/nullspace-bridge/ledger"
)

// NonceTracker hands out sequential nonces for one signing identity, syncing
// lazily from the ledger. The ledger consumes a nonce even when it rejects
// the instruction, so the tracker only has to resync after a submission that
// never reached the ledger (transport error) left the local counter in doubt.
type NonceTracker struct {
	client ClientInterface
	key    ledger.PublicKey
	nonce  uint64
	synced bool
}

func NewNonceTracker(client ClientInterface, key ledger.PublicKey) *NonceTracker {
	return &NonceTracker{
		client: client,
		key:    key,
	}
}

// Next returns the nonce to sign the next transaction with and advances the
// local counter. On first use (or after Invalidate) it fetches the account's
// stored nonce; an account the ledger has never seen starts at zero.
func (n *NonceTracker) Next() (uint64, error) {
	if !n.synced {
		account, err := n.client.GetAccount(n.key)
		if err != nil {
			return 0, err
		}
		if account != nil {
			n.nonce = account.Nonce
		} else {
			n.nonce = 0
		}
		n.synced = true
	}
	next := n.nonce
	n.nonce++
	return next, nil
}

// Invalidate forces a resync before the next nonce is handed out. Call it
// when a submission failed in a way that leaves the ledger-side nonce
// unknown.
func (n *NonceTracker) Invalidate() {
	n.synced = false
}
