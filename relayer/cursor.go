package relayer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// PendingRelease tracks the single in-flight withdrawal release. The tx hash
// is persisted before the transaction is sent so a crash between send and
// persist can never double-pay: on restart the relayer checks the recorded
// hash before doing anything else.
type PendingRelease struct {
	WithdrawalID  uint64      `json:"withdrawalId"`
	Amount        uint64      `json:"amount"`
	To            string      `json:"to"`
	ReleaseTxHash common.Hash `json:"releaseTxHash"`
	// RawTx is the signed release transaction, kept until a receipt shows up
	// so a restarted relayer can rebroadcast instead of double-signing
	RawTx         hexutil.Bytes `json:"rawTx,omitempty"`
	TxSent        bool          `json:"txSent"`
	Blocked       bool          `json:"blocked,omitempty"`
	BlockedReason string        `json:"blockedReason,omitempty"`
}

// Cursor is the relayer's crash-safe scan position on both chains. The
// deposit-scan position is the strictly monotonic pair
// (NextBlock, NextLogIndex): a crash mid-batch restarts the scan at
// NextBlock, and events below NextLogIndex in that block are the ones already
// credited before the crash.
type Cursor struct {
	// NextBlock is the external-chain block the deposit scan resumes at
	NextBlock uint64 `json:"nextBlock"`
	// NextLogIndex is the first unprocessed log index within NextBlock.
	// Zero whenever NextBlock has not been scanned at all
	NextLogIndex uint64 `json:"nextLogIndex"`
	// NextWithdrawalID is the first ledger withdrawal not yet relayed
	NextWithdrawalID uint64 `json:"nextWithdrawalId"`
	// Pending is the in-flight release, nil when idle
	Pending *PendingRelease `json:"pending,omitempty"`

	path string
}

// LoadCursor reads the cursor file, seeding a fresh one from the configured
// start positions when the file does not exist yet.
func LoadCursor(path string, initialBlock, initialWithdrawalID uint64) (*Cursor, error) {
	cursor := &Cursor{
		NextBlock:        initialBlock,
		NextWithdrawalID: initialWithdrawalID,
		path:             path,
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cursor, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading cursor file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cursor); err != nil {
		return nil, fmt.Errorf("error parsing cursor file %s: %w", path, err)
	}
	return cursor, nil
}

// Save writes the cursor atomically: temp file in the same directory, fsync,
// rename. A crash mid-write leaves the previous cursor intact.
func (c *Cursor) Save() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("error creating temp cursor file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("error writing temp cursor file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("error syncing temp cursor file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("error replacing cursor file: %w", err)
	}
	return nil
}

// FileStatuser serves the relay cursor straight from its file, for
// deployments where the RPC runs in a different process than the relayer.
type FileStatuser struct {
	path string
}

func NewFileStatuser(path string) *FileStatuser {
	return &FileStatuser{path: path}
}

func (f *FileStatuser) Status() Status {
	cursor, err := LoadCursor(f.path, 0, 0)
	if err != nil {
		return Status{}
	}
	return Status{
		NextBlock:        cursor.NextBlock,
		NextLogIndex:     cursor.NextLogIndex,
		NextWithdrawalID: cursor.NextWithdrawalID,
		Pending:          cursor.Pending,
	}
}
