package rpc

import (
	"context"
	"fmt"
	"time"

	"github.com/0xPolygon/cdk-rpc/rpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/happybigmtn/nullspace-bridge/ledger"
	"github.com/happybigmtn/nullspace-bridge/ledgerclient"
	"github.com/happybigmtn/nullspace-bridge/log"
	"github.com/happybigmtn/nullspace-bridge/relayer"
	"github.com/happybigmtn/nullspace-bridge/relayer/store"
)

const (
	// BRIDGE is the namespace of the bridge service
	BRIDGE    = "bridge"
	meterName = "github.com/happybigmtn/nullspace-bridge/rpc"

	zeroHex = "0x0"
)

// LedgerQuerier is the slice of the ledger client the endpoints proxy.
type LedgerQuerier interface {
	GetState() (*ledgerclient.BridgeState, error)
	GetWithdrawal(id uint64) (*ledger.Withdrawal, error)
}

// Auditer reads the relayer's audit records.
type Auditer interface {
	GetDeposits(limit, offset int) ([]*store.Deposit, error)
	GetRelease(withdrawalID uint64) (*store.Release, error)
	GetReleases(limit, offset int) ([]*store.Release, error)
}

// RelayerStatuser exposes the relayer's live cursor.
type RelayerStatuser interface {
	Status() relayer.Status
}

// BridgeEndpoints contains implementations for the "bridge" RPC endpoints
type BridgeEndpoints struct {
	logger      *log.Logger
	meter       metric.Meter
	readTimeout time.Duration
	ledger      LedgerQuerier
	audit       Auditer
	relayer     RelayerStatuser
}

// NewBridgeEndpoints returns BridgeEndpoints
func NewBridgeEndpoints(
	logger *log.Logger,
	readTimeout time.Duration,
	ledgerClient LedgerQuerier,
	audit Auditer,
	relayerStatus RelayerStatuser,
) *BridgeEndpoints {
	meter := otel.Meter(meterName)
	return &BridgeEndpoints{
		logger:      logger,
		meter:       meter,
		readTimeout: readTimeout,
		ledger:      ledgerClient,
		audit:       audit,
		relayer:     relayerStatus,
	}
}

// RelayerStatus returns the relayer's scan cursor: where the deposit scan is
// on the external chain, where the withdrawal scan is on the ledger, and the
// in-flight release if any.
func (b *BridgeEndpoints) RelayerStatus() (interface{}, rpc.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), b.readTimeout)
	defer cancel()

	c, merr := b.meter.Int64Counter("relayer_status")
	if merr != nil {
		b.logger.Warnf("failed to create relayer_status counter: %s", merr)
	}
	c.Add(ctx, 1)

	return b.relayer.Status(), nil
}

// DepositHistory returns the most recent audited deposits, newest first.
func (b *BridgeEndpoints) DepositHistory(limit, offset int) (interface{}, rpc.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), b.readTimeout)
	defer cancel()

	c, merr := b.meter.Int64Counter("deposit_history")
	if merr != nil {
		b.logger.Warnf("failed to create deposit_history counter: %s", merr)
	}
	c.Add(ctx, 1)

	deposits, err := b.audit.GetDeposits(limit, offset)
	if err != nil {
		return zeroHex, rpc.NewRPCError(rpc.DefaultErrorCode, fmt.Sprintf("failed to get deposits, error: %s", err))
	}
	return deposits, nil
}

// WithdrawalRelay returns the relay record of one withdrawal.
func (b *BridgeEndpoints) WithdrawalRelay(withdrawalID uint64) (interface{}, rpc.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), b.readTimeout)
	defer cancel()

	c, merr := b.meter.Int64Counter("withdrawal_relay")
	if merr != nil {
		b.logger.Warnf("failed to create withdrawal_relay counter: %s", merr)
	}
	c.Add(ctx, 1)

	release, err := b.audit.GetRelease(withdrawalID)
	if err != nil {
		return zeroHex, rpc.NewRPCError(rpc.DefaultErrorCode, fmt.Sprintf(
			"failed to get relay record for withdrawal %d, error: %s", withdrawalID, err),
		)
	}
	return release, nil
}

// ReleaseHistory returns the most recent relayed releases, newest first.
func (b *BridgeEndpoints) ReleaseHistory(limit, offset int) (interface{}, rpc.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), b.readTimeout)
	defer cancel()

	c, merr := b.meter.Int64Counter("release_history")
	if merr != nil {
		b.logger.Warnf("failed to create release_history counter: %s", merr)
	}
	c.Add(ctx, 1)

	releases, err := b.audit.GetReleases(limit, offset)
	if err != nil {
		return zeroHex, rpc.NewRPCError(rpc.DefaultErrorCode, fmt.Sprintf("failed to get releases, error: %s", err))
	}
	return releases, nil
}

// State proxies the ledger's bridge state: the active policy and the global
// counters.
func (b *BridgeEndpoints) State() (interface{}, rpc.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), b.readTimeout)
	defer cancel()

	c, merr := b.meter.Int64Counter("state")
	if merr != nil {
		b.logger.Warnf("failed to create state counter: %s", merr)
	}
	c.Add(ctx, 1)

	state, err := b.ledger.GetState()
	if err != nil {
		return zeroHex, rpc.NewRPCError(rpc.DefaultErrorCode, fmt.Sprintf("failed to get bridge state, error: %s", err))
	}
	return state, nil
}

// Withdrawal proxies one ledger withdrawal record.
func (b *BridgeEndpoints) Withdrawal(withdrawalID uint64) (interface{}, rpc.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), b.readTimeout)
	defer cancel()

	c, merr := b.meter.Int64Counter("withdrawal")
	if merr != nil {
		b.logger.Warnf("failed to create withdrawal counter: %s", merr)
	}
	c.Add(ctx, 1)

	withdrawal, err := b.ledger.GetWithdrawal(withdrawalID)
	if err != nil {
		return zeroHex, rpc.NewRPCError(rpc.DefaultErrorCode, fmt.Sprintf(
			"failed to get withdrawal %d, error: %s", withdrawalID, err),
		)
	}
	if withdrawal == nil {
		return zeroHex, rpc.NewRPCError(rpc.DefaultErrorCode, fmt.Sprintf("withdrawal %d does not exist", withdrawalID))
	}
	return withdrawal, nil
}
