package store

import (
	"context"
	"database/sql"
	"errors"
	"math/big"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"

	"github.com/happybigmtn/nullspace-bridge/db"
	"github.com/happybigmtn/nullspace-bridge/relayer/store/migrations"
)

// Deposit status values. A deposit is "submitted" once the credit
// transaction has been accepted by the ledger node; whether the ledger state
// machine applied or rejected it shows up in the ledger's own event history.
const (
	DepositSubmitted = "submitted"
	DepositSkipped   = "skipped"
)

// Release status values.
const (
	ReleaseSent      = "sent"
	ReleaseConfirmed = "confirmed"
	ReleaseBlocked   = "blocked"
)

// Deposit is one custody deposit observed on the external chain and submitted
// to (or skipped on) the ledger.
type Deposit struct {
	TxHash       ethCommon.Hash    `meddler:"tx_hash,hash"`
	LogIndex     uint              `meddler:"log_index"`
	BlockNum     uint64            `meddler:"block_num"`
	From         ethCommon.Address `meddler:"from_addr,address"`
	EVMAmount    *big.Int          `meddler:"evm_amount,bigint"`
	LedgerAmount uint64            `meddler:"ledger_amount"`
	Recipient    string            `meddler:"recipient"`
	Status       string            `meddler:"status"`
	Note         string            `meddler:"note"`
}

// Release is one ledger withdrawal relayed (or blocked) on the external
// chain.
type Release struct {
	WithdrawalID uint64            `meddler:"withdrawal_id"`
	To           ethCommon.Address `meddler:"to_addr,address"`
	LedgerAmount uint64            `meddler:"ledger_amount"`
	TxHash       ethCommon.Hash    `meddler:"tx_hash,hash"`
	Status       string            `meddler:"status"`
	Note         string            `meddler:"note"`
}

// AuditStore records every bridging action in sqlite so operators can answer
// "what happened to this deposit/withdrawal" without replaying either chain.
type AuditStore struct {
	db *sql.DB
}

func NewAuditStore(dbPath string) (*AuditStore, error) {
	if err := migrations.RunMigrations(dbPath); err != nil {
		return nil, err
	}
	database, err := db.NewSQLiteDB(dbPath)
	if err != nil {
		return nil, err
	}
	return &AuditStore{db: database}, nil
}

// AddDeposit records an observed deposit. Replays of the same (tx, log) are
// ignored: the row was already written before the cursor advanced past it.
func (s *AuditStore) AddDeposit(deposit *Deposit) error {
	err := meddler.Insert(s.db, "deposit", deposit)
	if sqliteErr, ok := db.SQLiteErr(err); ok && sqliteErr.ExtendedCode == db.UniqueConstrain {
		return nil
	}
	return err
}

// GetDeposits returns the most recent deposits, newest first.
func (s *AuditStore) GetDeposits(limit, offset int) ([]*Deposit, error) {
	var deposits []*Deposit
	err := meddler.QueryAll(s.db, &deposits, `
		SELECT * FROM deposit ORDER BY block_num DESC, log_index DESC LIMIT $1 OFFSET $2;
	`, limit, offset)
	return deposits, err
}

// UpsertRelease writes the current relay state of a withdrawal, replacing any
// earlier row for the same ID.
func (s *AuditStore) UpsertRelease(ctx context.Context, release *Release) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if errRollback := tx.Rollback(); errRollback != nil && !errors.Is(errRollback, sql.ErrTxDone) {
			_ = errRollback
		}
	}()

	if _, err := tx.Exec(`DELETE FROM release WHERE withdrawal_id = $1;`, release.WithdrawalID); err != nil {
		return err
	}
	if err := meddler.Insert(tx, "release", release); err != nil {
		return err
	}
	return tx.Commit()
}

// GetRelease returns the relay state of one withdrawal, db.ErrNotFound when
// it has not been relayed.
func (s *AuditStore) GetRelease(withdrawalID uint64) (*Release, error) {
	release := &Release{}
	err := meddler.QueryRow(s.db, release, `
		SELECT * FROM release WHERE withdrawal_id = $1;
	`, withdrawalID)
	return release, db.ReturnErrNotFound(err)
}

// GetReleases returns the most recent releases, newest first.
func (s *AuditStore) GetReleases(limit, offset int) ([]*Release, error) {
	var releases []*Release
	err := meddler.QueryAll(s.db, &releases, `
		SELECT * FROM release ORDER BY withdrawal_id DESC LIMIT $1 OFFSET $2;
	`, limit, offset)
	return releases, err
}
