package custody

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// lockboxABI mirrors contracts/BridgeLockbox.sol.
const lockboxABI = `[
	{"type":"function","name":"deposit","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"},{"name":"destinationRef","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"release","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"},{"name":"sourceRef","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"token","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"setOwner","stateMutability":"nonpayable","inputs":[{"name":"newOwner","type":"address"}],"outputs":[]},
	{"type":"event","name":"Deposited","anonymous":false,"inputs":[{"name":"from","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false},{"name":"destinationRef","type":"bytes32","indexed":false}]},
	{"type":"event","name":"Released","anonymous":false,"inputs":[{"name":"to","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false},{"name":"sourceRef","type":"bytes32","indexed":false}]}
]`

// LockboxDeposited is the custody deposit event as decoded from a log.
type LockboxDeposited struct {
	From           common.Address
	Amount         *big.Int
	DestinationRef [32]byte
	Raw            types.Log
}

// LockboxReleased is the custody release event as decoded from a log.
type LockboxReleased struct {
	To        common.Address
	Amount    *big.Int
	SourceRef [32]byte
	Raw       types.Log
}

// Lockbox binds the BridgeLockbox custody contract.
type Lockbox struct {
	addr     common.Address
	abi      abi.ABI
	contract *bind.BoundContract
}

func NewLockbox(addr common.Address, backend bind.ContractBackend) (*Lockbox, error) {
	parsed, err := abi.JSON(strings.NewReader(lockboxABI))
	if err != nil {
		return nil, fmt.Errorf("error parsing lockbox ABI: %w", err)
	}
	return &Lockbox{
		addr:     addr,
		abi:      parsed,
		contract: bind.NewBoundContract(addr, parsed, backend, backend, backend),
	}, nil
}

func (l *Lockbox) Address() common.Address {
	return l.addr
}

// DepositedTopic is the topic0 used to filter custody deposit logs.
func (l *Lockbox) DepositedTopic() common.Hash {
	return l.abi.Events["Deposited"].ID
}

// ReleasedTopic is the topic0 of custody release logs.
func (l *Lockbox) ReleasedTopic() common.Hash {
	return l.abi.Events["Released"].ID
}

// Deposit locks amount on the custody contract, tagging it with the ledger
// recipient encoded in destinationRef.
func (l *Lockbox) Deposit(opts *bind.TransactOpts, amount *big.Int, destinationRef [32]byte) (*types.Transaction, error) {
	return l.contract.Transact(opts, "deposit", amount, destinationRef)
}

// Release pays amount out to the external address, tagging it with the
// ledger withdrawal reference. Reverts unless sent by the contract owner.
func (l *Lockbox) Release(opts *bind.TransactOpts, to common.Address, amount *big.Int, sourceRef [32]byte) (*types.Transaction, error) {
	return l.contract.Transact(opts, "release", to, amount, sourceRef)
}

func (l *Lockbox) Owner(ctx context.Context) (common.Address, error) {
	var out []interface{}
	err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, "owner")
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

func (l *Lockbox) Token(ctx context.Context) (common.Address, error) {
	var out []interface{}
	err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, "token")
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// ParseDeposited decodes a Deposited log.
func (l *Lockbox) ParseDeposited(log types.Log) (*LockboxDeposited, error) {
	if len(log.Topics) == 0 || log.Topics[0] != l.DepositedTopic() {
		return nil, fmt.Errorf("log is not a Deposited event")
	}
	event := &LockboxDeposited{Raw: log}
	if err := l.contract.UnpackLog(event, "Deposited", log); err != nil {
		return nil, fmt.Errorf("error unpacking Deposited log: %w", err)
	}
	return event, nil
}

// ParseReleased decodes a Released log.
func (l *Lockbox) ParseReleased(log types.Log) (*LockboxReleased, error) {
	if len(log.Topics) == 0 || log.Topics[0] != l.ReleasedTopic() {
		return nil, fmt.Errorf("log is not a Released event")
	}
	event := &LockboxReleased{Raw: log}
	if err := l.contract.UnpackLog(event, "Released", log); err != nil {
		return nil, fmt.Errorf("error unpacking Released log: %w", err)
	}
	return event, nil
}

// FilterDeposited fetches Deposited events in [fromBlock, toBlock], ordered
// by (block number, log index) so the relayer credits deposits in chain
// order.
func (l *Lockbox) FilterDeposited(
	ctx context.Context, client ethereum.LogFilterer, fromBlock, toBlock uint64,
) ([]LockboxDeposited, error) {
	logs, err := client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{l.addr},
		Topics:    [][]common.Hash{{l.DepositedTopic()}},
	})
	if err != nil {
		return nil, fmt.Errorf("error filtering Deposited logs: %w", err)
	}
	sort.Slice(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
	events := make([]LockboxDeposited, 0, len(logs))
	for _, log := range logs {
		event, err := l.ParseDeposited(log)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}
	return events, nil
}
