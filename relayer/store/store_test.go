package store

import (
	"context"
	"math/big"
	"path"
	"testing"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/happybigmtn/nullspace-bridge/db"
)

func newTestStore(t *testing.T) *AuditStore {
	t.Helper()
	dbPath := path.Join(t.TempDir(), "audit.sqlite")
	store, err := NewAuditStore(dbPath)
	require.NoError(t, err)
	return store
}

func TestAddDeposit(t *testing.T) {
	store := newTestStore(t)
	deposit := &Deposit{
		TxHash:       ethCommon.HexToHash("0xabc"),
		LogIndex:     2,
		BlockNum:     100,
		From:         ethCommon.HexToAddress("0x01"),
		EVMAmount:    big.NewInt(5_000_000),
		LedgerAmount: 5,
		Recipient:    "aabbcc",
		Status:       DepositSubmitted,
	}
	require.NoError(t, store.AddDeposit(deposit))

	// a replayed insert of the same (tx, log) is a no-op
	require.NoError(t, store.AddDeposit(deposit))

	deposits, err := store.GetDeposits(10, 0)
	require.NoError(t, err)
	require.Len(t, deposits, 1)
	require.Equal(t, deposit, deposits[0])
}

func TestGetDepositsOrder(t *testing.T) {
	store := newTestStore(t)
	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, store.AddDeposit(&Deposit{
			TxHash:    ethCommon.BigToHash(big.NewInt(int64(i))),
			BlockNum:  i,
			EVMAmount: big.NewInt(int64(i)),
			Status:    DepositSubmitted,
		}))
	}
	deposits, err := store.GetDeposits(2, 0)
	require.NoError(t, err)
	require.Len(t, deposits, 2)
	require.Equal(t, uint64(3), deposits[0].BlockNum)
	require.Equal(t, uint64(2), deposits[1].BlockNum)
}

func TestUpsertRelease(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetRelease(7)
	require.ErrorIs(t, err, db.ErrNotFound)

	release := &Release{
		WithdrawalID: 7,
		To:           ethCommon.HexToAddress("0x02"),
		LedgerAmount: 42,
		TxHash:       ethCommon.HexToHash("0xdead"),
		Status:       ReleaseSent,
	}
	require.NoError(t, store.UpsertRelease(ctx, release))

	release.Status = ReleaseConfirmed
	require.NoError(t, store.UpsertRelease(ctx, release))

	got, err := store.GetRelease(7)
	require.NoError(t, err)
	require.Equal(t, ReleaseConfirmed, got.Status)

	releases, err := store.GetReleases(10, 0)
	require.NoError(t, err)
	require.Len(t, releases, 1)
}
