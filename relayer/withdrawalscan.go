package relayer

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/happybigmtn/nullspace-bridge/ledger"
	"github.com/happybigmtn/nullspace-bridge/relayer/store"
)

// scanWithdrawals walks ledger withdrawals in ID order and settles matured
// ones through the lockbox. At most one release is in flight at a time; its
// full state lives in the cursor so every step survives a restart.
func (r *Relayer) scanWithdrawals(ctx context.Context) error {
	state, err := r.ledger.GetState()
	if err != nil {
		return err
	}
	// A cursor ahead of the ledger means the ledger was restored from an
	// older snapshot (or the cursor belongs to another network). Trusting it
	// would skip withdrawals forever, so fall back to the ledger's sequence.
	if r.cursor.NextWithdrawalID > state.Global.NextWithdrawalID {
		r.log.Warnf(
			"cursor withdrawal id %d is ahead of ledger %d, resetting",
			r.cursor.NextWithdrawalID, state.Global.NextWithdrawalID,
		)
		r.cursor.NextWithdrawalID = state.Global.NextWithdrawalID
		r.cursor.Pending = nil
		if err := r.cursor.Save(); err != nil {
			return err
		}
	}

	if r.cursor.Pending != nil {
		return r.advancePending(ctx)
	}

	now, err := r.ledger.GetTime()
	if err != nil {
		return err
	}
	for processed := 0; processed < r.cfg.MaxWithdrawalsPerIteration; processed++ {
		withdrawal, err := r.ledger.GetWithdrawal(r.cursor.NextWithdrawalID)
		if err != nil {
			return err
		}
		if withdrawal == nil {
			return nil
		}
		if withdrawal.Fulfilled {
			// settled by an earlier run (or out of band), just move on
			r.cursor.NextWithdrawalID++
			if err := r.cursor.Save(); err != nil {
				return err
			}
			continue
		}
		if now < withdrawal.AvailableAt {
			// withdrawals mature in ID order: nothing past this one can be
			// ready either
			return nil
		}
		return r.startRelease(ctx, withdrawal)
	}
	return nil
}

// startRelease records the release intent in the cursor, then sends it. The
// intent is persisted first: whatever happens afterwards, restart lands in
// advancePending with the full picture.
func (r *Relayer) startRelease(ctx context.Context, withdrawal *ledger.Withdrawal) error {
	pending := &PendingRelease{
		WithdrawalID: withdrawal.ID,
		Amount:       withdrawal.Amount,
	}
	to, err := destinationAddress(withdrawal.Destination)
	if err != nil {
		// a destination the external chain cannot receive. Permanent: park it
		// so the scan never retries, operators resolve it out of band
		r.log.Errorf("withdrawal %d is not releasable: %v", withdrawal.ID, err)
		pending.Blocked = true
		pending.BlockedReason = err.Error()
		r.cursor.Pending = pending
		if saveErr := r.cursor.Save(); saveErr != nil {
			return saveErr
		}
		return r.audit.UpsertRelease(ctx, &store.Release{
			WithdrawalID: withdrawal.ID,
			LedgerAmount: withdrawal.Amount,
			Status:       store.ReleaseBlocked,
			Note:         err.Error(),
		})
	}
	pending.To = to.Hex()
	r.cursor.Pending = pending
	if err := r.cursor.Save(); err != nil {
		return err
	}
	return r.sendRelease(ctx)
}

// sendRelease signs the release for the current pending withdrawal, persists
// the signed transaction, then broadcasts it. Persisting before broadcasting
// means the tx hash is never known only to a crashed process.
func (r *Relayer) sendRelease(ctx context.Context) error {
	pending := r.cursor.Pending
	opts := *r.auth
	opts.Context = ctx
	opts.NoSend = true
	tx, err := r.lockbox.Release(
		&opts,
		ethCommon.HexToAddress(pending.To),
		evmAmount(pending.Amount, r.cfg.TokenDecimals),
		releaseSourceRef(pending.WithdrawalID),
	)
	if err != nil {
		return err
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return err
	}
	pending.ReleaseTxHash = tx.Hash()
	pending.RawTx = raw
	pending.TxSent = false
	if err := r.cursor.Save(); err != nil {
		return err
	}

	if err := r.broadcast(ctx, tx); err != nil {
		return err
	}
	pending.TxSent = true
	if err := r.cursor.Save(); err != nil {
		return err
	}
	r.log.Infof(
		"sent release %s for withdrawal %d: %d tokens to %s",
		pending.ReleaseTxHash, pending.WithdrawalID, pending.Amount, pending.To,
	)
	return r.audit.UpsertRelease(ctx, &store.Release{
		WithdrawalID: pending.WithdrawalID,
		To:           ethCommon.HexToAddress(pending.To),
		LedgerAmount: pending.Amount,
		TxHash:       pending.ReleaseTxHash,
		Status:       store.ReleaseSent,
	})
}

func (r *Relayer) broadcast(ctx context.Context, tx *types.Transaction) error {
	err := r.ethClient.SendTransaction(ctx, tx)
	if err != nil && strings.Contains(err.Error(), "already known") {
		return nil
	}
	return err
}

// advancePending moves the in-flight release forward by one step: blocked
// stays parked, unsent gets (re)broadcast, sent waits for a final receipt,
// reverted retries with a fresh transaction, confirmed finalizes on the
// ledger.
func (r *Relayer) advancePending(ctx context.Context) error {
	pending := r.cursor.Pending
	if pending.Blocked {
		return nil
	}
	if pending.ReleaseTxHash == (ethCommon.Hash{}) {
		return r.sendRelease(ctx)
	}

	receipt, err := r.ethClient.TransactionReceipt(ctx, pending.ReleaseTxHash)
	if errors.Is(err, ethereum.NotFound) {
		// not mined yet, or the broadcast never made it out. Rebroadcasting
		// the stored signed tx is idempotent either way
		if len(pending.RawTx) > 0 {
			tx := &types.Transaction{}
			if err := tx.UnmarshalBinary(pending.RawTx); err != nil {
				return err
			}
			if err := r.broadcast(ctx, tx); err != nil {
				return err
			}
			if !pending.TxSent {
				pending.TxSent = true
				return r.cursor.Save()
			}
		}
		return nil
	}
	if err != nil {
		return err
	}

	head, err := r.ethClient.BlockNumber(ctx)
	if err != nil {
		return err
	}
	if head < receipt.BlockNumber.Uint64()+r.cfg.Confirmations {
		return nil
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		// the release reverted (owner rotated, lockbox underfunded, ...).
		// Drop the dead tx and sign a fresh one next pass
		r.log.Warnf(
			"release %s for withdrawal %d reverted, retrying",
			pending.ReleaseTxHash, pending.WithdrawalID,
		)
		pending.ReleaseTxHash = ethCommon.Hash{}
		pending.RawTx = nil
		pending.TxSent = false
		return r.cursor.Save()
	}

	return r.finalizeRelease(ctx, receipt)
}

// finalizeRelease reports the confirmed release back to the ledger and
// advances the withdrawal cursor.
func (r *Relayer) finalizeRelease(ctx context.Context, receipt *types.Receipt) error {
	pending := r.cursor.Pending
	ref := releaseSourceRef(pending.WithdrawalID)
	err := r.submitAdminTx(ledger.FinalizeWithdrawal{
		WithdrawalID: pending.WithdrawalID,
		Source:       ref[:],
	})
	if err != nil {
		return err
	}
	r.log.Infof(
		"finalized withdrawal %d, release %s confirmed in block %d",
		pending.WithdrawalID, pending.ReleaseTxHash, receipt.BlockNumber,
	)
	err = r.audit.UpsertRelease(ctx, &store.Release{
		WithdrawalID: pending.WithdrawalID,
		To:           ethCommon.HexToAddress(pending.To),
		LedgerAmount: pending.Amount,
		TxHash:       pending.ReleaseTxHash,
		Status:       store.ReleaseConfirmed,
	})
	if err != nil {
		return err
	}
	r.cursor.NextWithdrawalID = pending.WithdrawalID + 1
	r.cursor.Pending = nil
	return r.cursor.Save()
}
