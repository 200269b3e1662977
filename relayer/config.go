package relayer

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/happybigmtn/nullspace-bridge/config/types"
)

// Config holds everything the relayer needs to follow both chains.
type Config struct {
	// LedgerURL is the JSON-RPC URL of the ledger node's bridge namespace
	LedgerURL string `mapstructure:"LedgerURL"`
	// LockboxAddress is the BridgeLockbox custody contract on the external chain
	LockboxAddress common.Address `mapstructure:"LockboxAddress"`
	// EVMURL is the external chain's JSON-RPC URL
	EVMURL string `mapstructure:"EVMURL"`
	// EVMChainID is used for transaction signing on the external chain
	EVMChainID uint64 `mapstructure:"EVMChainID"`
	// Confirmations is the depth at which external-chain events and receipts
	// are treated as final
	Confirmations uint64 `mapstructure:"Confirmations"`
	// TokenDecimals of the custody token. Ledger units are whole tokens, so
	// external amounts must be exact multiples of 10^TokenDecimals
	TokenDecimals uint8 `mapstructure:"TokenDecimals"`
	// CursorPath is the JSON file persisting scan progress across restarts
	CursorPath string `mapstructure:"CursorPath"`
	// AuditDBPath is the sqlite file recording every credited deposit and
	// relayed release
	AuditDBPath string `mapstructure:"AuditDBPath"`
	// InitialBlock is where the deposit scan starts on a fresh cursor
	InitialBlock uint64 `mapstructure:"InitialBlock"`
	// InitialWithdrawalID is where the withdrawal scan starts on a fresh cursor
	InitialWithdrawalID uint64 `mapstructure:"InitialWithdrawalID"`
	// BlockChunkSize bounds a single deposit log query
	BlockChunkSize uint64 `mapstructure:"BlockChunkSize"`
	// MaxWithdrawalsPerIteration bounds how many withdrawals one scan pass
	// walks before yielding
	MaxWithdrawalsPerIteration int `mapstructure:"MaxWithdrawalsPerIteration"`
	// PollPeriod is the sleep between scan iterations
	PollPeriod types.Duration `mapstructure:"PollPeriod"`
	// WaitReceiptPeriod is the sleep between receipt polls for a sent release
	WaitReceiptPeriod types.Duration `mapstructure:"WaitReceiptPeriod"`
	// RetryAfterErrorPeriod is the wait before retrying after a scan error
	RetryAfterErrorPeriod types.Duration `mapstructure:"RetryAfterErrorPeriod"`
	// MaxRetryAttemptsAfterError caps consecutive scan retries, 0 is unlimited
	MaxRetryAttemptsAfterError int `mapstructure:"MaxRetryAttemptsAfterError"`
	// AdminPrivateKeyPath is a file holding the hex-encoded ed25519 seed of
	// the ledger admin identity. When both the file and AdminPrivateKey are
	// set, the file wins
	AdminPrivateKeyPath string `mapstructure:"AdminPrivateKeyPath"`
	// AdminPrivateKey is the admin seed inline in the config, hex encoded.
	// Fallback for deployments without a key file
	AdminPrivateKey string `mapstructure:"AdminPrivateKey"`
	// EVMPrivateKeyPath is a file holding the hex-encoded secp256k1 key that
	// owns the lockbox
	EVMPrivateKeyPath string `mapstructure:"EVMPrivateKeyPath"`
}
