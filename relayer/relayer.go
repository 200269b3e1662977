package relayer

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/happybigmtn/nullspace-bridge/common"
	"github.com/happybigmtn/nullspace-bridge/custody"
	"github.com/happybigmtn/nullspace-bridge/ledger"
	"github.com/happybigmtn/nullspace-bridge/ledgerclient"
	"github.com/happybigmtn/nullspace-bridge/log"
	"github.com/happybigmtn/nullspace-bridge/relayer/store"
)

type EthClienter interface {
	ethereum.LogFilterer
	ethereum.BlockNumberReader
	ethereum.TransactionReader
	ethereum.TransactionSender
	bind.ContractBackend
}

// Lockboxer is the slice of the custody binding the relayer drives.
type Lockboxer interface {
	Address() ethCommon.Address
	FilterDeposited(ctx context.Context, client ethereum.LogFilterer, fromBlock, toBlock uint64) ([]custody.LockboxDeposited, error)
	Release(opts *bind.TransactOpts, to ethCommon.Address, amount *big.Int, sourceRef [32]byte) (*types.Transaction, error)
}

// AuditStorer is the slice of the audit store the relayer writes.
type AuditStorer interface {
	AddDeposit(deposit *store.Deposit) error
	UpsertRelease(ctx context.Context, release *store.Release) error
}

// Relayer follows both chains: it credits custody deposits onto the ledger
// and pays matured ledger withdrawals out of the lockbox. Single instance,
// single admin identity; crash safety comes from the persisted cursor, not
// from coordination.
type Relayer struct {
	mu        sync.RWMutex
	log       *log.Logger
	cfg       Config
	ledger    ledgerclient.ClientInterface
	nonces    *ledgerclient.NonceTracker
	adminKey  ed25519.PrivateKey
	adminPub  ledger.PublicKey
	lockbox   Lockboxer
	ethClient EthClienter
	auth      *bind.TransactOpts
	cursor    *Cursor
	audit     AuditStorer
	rh        *RetryHandler
}

func New(ctx context.Context, cfg Config) (*Relayer, error) {
	logger := log.WithFields("module", "relayer")

	adminKey, err := loadAdminKey(cfg)
	if err != nil {
		return nil, fmt.Errorf("error loading admin key: %w", err)
	}
	adminPub, err := ledger.PublicKeyFromBytes(adminKey.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}

	auth, err := loadEVMAuth(cfg.EVMPrivateKeyPath, cfg.EVMChainID)
	if err != nil {
		return nil, fmt.Errorf("error loading EVM key: %w", err)
	}

	ethClient, err := ethclient.DialContext(ctx, cfg.EVMURL)
	if err != nil {
		return nil, fmt.Errorf("error connecting to EVM node %s: %w", cfg.EVMURL, err)
	}
	lockbox, err := custody.NewLockbox(cfg.LockboxAddress, ethClient)
	if err != nil {
		return nil, err
	}

	cursor, err := LoadCursor(cfg.CursorPath, cfg.InitialBlock, cfg.InitialWithdrawalID)
	if err != nil {
		return nil, err
	}
	audit, err := store.NewAuditStore(cfg.AuditDBPath)
	if err != nil {
		return nil, err
	}

	ledgerClient := ledgerclient.NewClient(cfg.LedgerURL)
	return &Relayer{
		log:       logger,
		cfg:       cfg,
		ledger:    ledgerClient,
		nonces:    ledgerclient.NewNonceTracker(ledgerClient, adminPub),
		adminKey:  adminKey,
		adminPub:  adminPub,
		lockbox:   lockbox,
		ethClient: ethClient,
		auth:      auth,
		cursor:    cursor,
		audit:     audit,
		rh: &RetryHandler{
			RetryAfterErrorPeriod:      cfg.RetryAfterErrorPeriod.Duration,
			MaxRetryAttemptsAfterError: cfg.MaxRetryAttemptsAfterError,
		},
	}, nil
}

// loadAdminKey resolves the admin seed from the key file when one is
// configured and readable, falling back to the inline hex key otherwise.
func loadAdminKey(cfg Config) (ed25519.PrivateKey, error) {
	hexSeed := cfg.AdminPrivateKey
	if cfg.AdminPrivateKeyPath != "" {
		raw, err := os.ReadFile(cfg.AdminPrivateKeyPath)
		switch {
		case err == nil:
			hexSeed = strings.TrimSpace(string(raw))
		case errors.Is(err, os.ErrNotExist) && cfg.AdminPrivateKey != "":
			// key file not there yet, the inline key covers it
		default:
			return nil, err
		}
	}
	if hexSeed == "" {
		return nil, errors.New("no admin key configured")
	}
	seed, err := common.DecodeHex(hexSeed)
	if err != nil {
		return nil, err
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("admin key must be a %d byte seed, got %d", ed25519.SeedSize, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

func loadEVMAuth(path string, chainID uint64) (*bind.TransactOpts, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(string(raw)), "0x"))
	if err != nil {
		return nil, err
	}
	return bind.NewKeyedTransactorWithChainID(key, new(big.Int).SetUint64(chainID))
}

// Start runs the relay loop until the context is canceled. The two scan
// phases are isolated: a failing withdrawal scan does not stop deposits from
// being credited, and vice versa.
func (r *Relayer) Start(ctx context.Context) {
	var depositAttempts, withdrawalAttempts int
	for {
		select {
		case <-ctx.Done():
			r.log.Info("relayer stopped")
			return
		default:
		}

		r.mu.Lock()
		err := r.scanDeposits(ctx)
		r.mu.Unlock()
		if err != nil {
			depositAttempts++
			r.log.Errorf("error scanning deposits: %v", err)
			r.rh.Handle("scanDeposits", depositAttempts)
		} else {
			depositAttempts = 0
		}

		r.mu.Lock()
		err = r.scanWithdrawals(ctx)
		r.mu.Unlock()
		if err != nil {
			withdrawalAttempts++
			r.log.Errorf("error scanning withdrawals: %v", err)
			r.rh.Handle("scanWithdrawals", withdrawalAttempts)
		} else {
			withdrawalAttempts = 0
		}

		select {
		case <-ctx.Done():
		case <-time.After(r.sleepPeriod()):
		}
	}
}

// sleepPeriod polls faster while a sent release is waiting for its receipt.
func (r *Relayer) sleepPeriod() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if pending := r.cursor.Pending; pending != nil && pending.TxSent && !pending.Blocked {
		return r.cfg.WaitReceiptPeriod.Duration
	}
	return r.cfg.PollPeriod.Duration
}

// Status is a point-in-time snapshot of the relay cursor, served over RPC.
type Status struct {
	NextBlock        uint64          `json:"nextBlock"`
	NextLogIndex     uint64          `json:"nextLogIndex"`
	NextWithdrawalID uint64          `json:"nextWithdrawalId"`
	Pending          *PendingRelease `json:"pending,omitempty"`
}

func (r *Relayer) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	status := Status{
		NextBlock:        r.cursor.NextBlock,
		NextLogIndex:     r.cursor.NextLogIndex,
		NextWithdrawalID: r.cursor.NextWithdrawalID,
	}
	if r.cursor.Pending != nil {
		pending := *r.cursor.Pending
		status.Pending = &pending
	}
	return status
}

// submitAdminTx signs an admin instruction with the next nonce and submits
// it. On a failed submission the nonce tracker is invalidated: the ledger may
// or may not have seen the transaction.
func (r *Relayer) submitAdminTx(instruction ledger.Instruction) error {
	nonce, err := r.nonces.Next()
	if err != nil {
		return err
	}
	tx, err := ledger.SignTransaction(r.adminKey, nonce, instruction)
	if err != nil {
		return err
	}
	if err := r.ledger.SendRawTransaction(tx); err != nil {
		r.nonces.Invalidate()
		return err
	}
	return nil
}
