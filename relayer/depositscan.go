package relayer

import (
	"context"

	"github.com/happybigmtn/nullspace-bridge/custody"
	"github.com/happybigmtn/nullspace-bridge/ledger"
	"github.com/happybigmtn/nullspace-bridge/relayer/store"
)

// scanDeposits walks finalized custody deposits and credits them on the
// ledger. The (block, logIndex) cursor position is saved after every credited
// event, so a crash mid-range resumes at the first uncredited deposit: the
// restarted scan refilters the interrupted block but skips every event at a
// log index the cursor already advanced past. The ledger deliberately does
// not deduplicate deposits, so this skip is the only double-credit guard.
func (r *Relayer) scanDeposits(ctx context.Context) error {
	head, err := r.ethClient.BlockNumber(ctx)
	if err != nil {
		return err
	}
	if head < r.cfg.Confirmations {
		return nil
	}
	finalized := head - r.cfg.Confirmations
	if r.cursor.NextBlock > finalized {
		return nil
	}

	toBlock := finalized
	if max := r.cursor.NextBlock + r.cfg.BlockChunkSize - 1; toBlock > max {
		toBlock = max
	}

	events, err := r.lockbox.FilterDeposited(ctx, r.ethClient, r.cursor.NextBlock, toBlock)
	if err != nil {
		return err
	}
	for _, event := range events {
		if event.Raw.BlockNumber == r.cursor.NextBlock && uint64(event.Raw.Index) < r.cursor.NextLogIndex {
			// credited before a restart, the cursor is already past it
			continue
		}
		if err := r.creditDeposit(event); err != nil {
			return err
		}
		// persist progress per event so a crash never re-credits
		r.cursor.NextBlock = event.Raw.BlockNumber
		r.cursor.NextLogIndex = uint64(event.Raw.Index) + 1
		if err := r.cursor.Save(); err != nil {
			return err
		}
	}

	r.cursor.NextBlock = toBlock + 1
	r.cursor.NextLogIndex = 0
	return r.cursor.Save()
}

func (r *Relayer) creditDeposit(event custody.LockboxDeposited) error {
	row := &store.Deposit{
		TxHash:    event.Raw.TxHash,
		LogIndex:  event.Raw.Index,
		BlockNum:  event.Raw.BlockNumber,
		From:      event.From,
		EVMAmount: event.Amount,
	}

	amount, err := ledgerAmount(event.Amount, r.cfg.TokenDecimals)
	if err != nil {
		// unbridgeable amounts are recorded and skipped, the tokens stay in
		// the lockbox
		r.log.Warnf(
			"skipping deposit %s/%d: %v", event.Raw.TxHash, event.Raw.Index, err,
		)
		row.Status = store.DepositSkipped
		row.Note = err.Error()
		return r.audit.AddDeposit(row)
	}

	recipient := recipientFromRef(event.DestinationRef)
	row.LedgerAmount = amount
	row.Recipient = recipient.String()

	err = r.submitAdminTx(ledger.Deposit{
		Recipient: recipient,
		Amount:    amount,
		Source:    event.Raw.TxHash.Bytes(),
	})
	if err != nil {
		return err
	}
	r.log.Infof(
		"submitted deposit credit %s/%d: %d tokens to %s",
		event.Raw.TxHash, event.Raw.Index, amount, recipient,
	)
	row.Status = store.DepositSubmitted
	return r.audit.AddDeposit(row)
}
