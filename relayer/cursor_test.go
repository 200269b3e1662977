package relayer

import (
	"os"
	"path"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestLoadCursorFresh(t *testing.T) {
	cursorPath := path.Join(t.TempDir(), "cursor.json")
	cursor, err := LoadCursor(cursorPath, 100, 5)
	require.NoError(t, err)
	require.Equal(t, uint64(100), cursor.NextBlock)
	require.Equal(t, uint64(0), cursor.NextLogIndex)
	require.Equal(t, uint64(5), cursor.NextWithdrawalID)
	require.Nil(t, cursor.Pending)
}

func TestCursorSaveLoadRoundTrip(t *testing.T) {
	cursorPath := path.Join(t.TempDir(), "cursor.json")
	cursor, err := LoadCursor(cursorPath, 0, 0)
	require.NoError(t, err)

	cursor.NextBlock = 42
	cursor.NextLogIndex = 3
	cursor.NextWithdrawalID = 7
	cursor.Pending = &PendingRelease{
		WithdrawalID:  7,
		Amount:        1000,
		To:            common.HexToAddress("0x01").Hex(),
		ReleaseTxHash: common.HexToHash("0xbeef"),
		RawTx:         []byte{0x01, 0x02},
		TxSent:        true,
	}
	require.NoError(t, cursor.Save())

	// configured start positions are ignored once a file exists
	loaded, err := LoadCursor(cursorPath, 999, 999)
	require.NoError(t, err)
	require.Equal(t, cursor.NextBlock, loaded.NextBlock)
	require.Equal(t, cursor.NextLogIndex, loaded.NextLogIndex)
	require.Equal(t, cursor.NextWithdrawalID, loaded.NextWithdrawalID)
	require.Equal(t, cursor.Pending, loaded.Pending)
}

func TestCursorSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	cursor, err := LoadCursor(path.Join(dir, "cursor.json"), 0, 0)
	require.NoError(t, err)
	require.NoError(t, cursor.Save())
	require.NoError(t, cursor.Save())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "cursor.json", entries[0].Name())
}

func TestLoadCursorCorruptFile(t *testing.T) {
	cursorPath := path.Join(t.TempDir(), "cursor.json")
	require.NoError(t, os.WriteFile(cursorPath, []byte("{not json"), 0o600))
	_, err := LoadCursor(cursorPath, 0, 0)
	require.Error(t, err)
}
