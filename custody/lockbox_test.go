package custody

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

type fakeLogFilterer struct {
	logs []types.Log
}

func (f *fakeLogFilterer) FilterLogs(_ context.Context, _ ethereum.FilterQuery) ([]types.Log, error) {
	return f.logs, nil
}

func (f *fakeLogFilterer) SubscribeFilterLogs(
	_ context.Context, _ ethereum.FilterQuery, _ chan<- types.Log,
) (ethereum.Subscription, error) {
	panic("not implemented")
}

func newTestLockbox(t *testing.T) *Lockbox {
	t.Helper()
	lockbox, err := NewLockbox(common.HexToAddress("0x1234"), nil)
	require.NoError(t, err)
	return lockbox
}

func depositedLog(t *testing.T, lockbox *Lockbox, from common.Address, amount *big.Int, ref [32]byte, block uint64, index uint) types.Log {
	t.Helper()
	data, err := lockbox.abi.Events["Deposited"].Inputs.NonIndexed().Pack(amount, ref)
	require.NoError(t, err)
	return types.Log{
		Address:     lockbox.Address(),
		Topics:      []common.Hash{lockbox.DepositedTopic(), common.BytesToHash(from.Bytes())},
		Data:        data,
		BlockNumber: block,
		Index:       index,
	}
}

func TestDepositedTopic(t *testing.T) {
	lockbox := newTestLockbox(t)
	require.Equal(t,
		crypto.Keccak256Hash([]byte("Deposited(address,uint256,bytes32)")),
		lockbox.DepositedTopic(),
	)
	require.Equal(t,
		crypto.Keccak256Hash([]byte("Released(address,uint256,bytes32)")),
		lockbox.ReleasedTopic(),
	)
}

func TestParseDeposited(t *testing.T) {
	lockbox := newTestLockbox(t)
	from := common.HexToAddress("0xdeadbeef")
	ref := [32]byte{0x01, 0x02}

	event, err := lockbox.ParseDeposited(depositedLog(t, lockbox, from, big.NewInt(42), ref, 10, 0))
	require.NoError(t, err)
	require.Equal(t, from, event.From)
	require.Equal(t, big.NewInt(42), event.Amount)
	require.Equal(t, ref, event.DestinationRef)

	_, err = lockbox.ParseDeposited(types.Log{Topics: []common.Hash{lockbox.ReleasedTopic()}})
	require.Error(t, err)
}

func TestFilterDepositedOrdersLogs(t *testing.T) {
	lockbox := newTestLockbox(t)
	from := common.HexToAddress("0x01")

	// deliberately out of order
	client := &fakeLogFilterer{logs: []types.Log{
		depositedLog(t, lockbox, from, big.NewInt(3), [32]byte{3}, 12, 0),
		depositedLog(t, lockbox, from, big.NewInt(2), [32]byte{2}, 11, 5),
		depositedLog(t, lockbox, from, big.NewInt(1), [32]byte{1}, 11, 2),
	}}

	events, err := lockbox.FilterDeposited(context.Background(), client, 11, 12)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, big.NewInt(1), events[0].Amount)
	require.Equal(t, big.NewInt(2), events[1].Amount)
	require.Equal(t, big.NewInt(3), events[2].Amount)
}
