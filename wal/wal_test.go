package wal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"monolite/page"
)

func openTemp(t *testing.T) (*WAL, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.wal")
	w, err := Open(path)
	require.NoError(t, err)
	return w, path
}

func TestFreshLogStartsAtLSN1(t *testing.T) {
	w, _ := openTemp(t)
	defer w.Close()
	require.Equal(t, LSN(1), w.GetCurrentLSN())
}

func TestWriteAndReadBack(t *testing.T) {
	w, _ := openTemp(t)
	defer w.Close()

	data := make([]byte, page.Size)
	data[0] = 0x42
	lsn, err := w.WritePageRecord(5, data)
	require.NoError(t, err)
	require.Equal(t, LSN(1), lsn)

	recs, err := w.ReadRecordsFrom(1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, RecordPageWrite, recs[0].Type)
	require.Equal(t, page.ID(5), recs[0].PageID)
	require.Equal(t, data, recs[0].Payload)
}

func TestReopenRecoversLSN(t *testing.T) {
	w, path := openTemp(t)
	data := make([]byte, page.Size)
	_, err := w.WritePageRecord(1, data)
	require.NoError(t, err)
	_, err = w.WriteAllocRecord(2, page.TypeData)
	require.NoError(t, err)
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())

	w2, err := Open(path)
	require.NoError(t, err)
	defer w2.Close()
	require.Equal(t, LSN(3), w2.GetCurrentLSN())
}

func TestTailCorruptionTruncatesLogically(t *testing.T) {
	w, path := openTemp(t)
	data := make([]byte, page.Size)
	_, err := w.WritePageRecord(1, data)
	require.NoError(t, err)
	_, err = w.WriteAllocRecord(2, page.TypeData)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// Corrupt the last few bytes of the file, inside the second record.
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	require.NoError(t, err)
	fi, err := f.Stat()
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xFF, 0xFF, 0xFF, 0xFF}, fi.Size()-4)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	w2, err := Open(path)
	require.NoError(t, err)
	defer w2.Close()

	recs, err := w2.ReadRecordsFrom(1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, RecordPageWrite, recs[0].Type)
}

func TestCheckpointAdvancesAndCanTruncate(t *testing.T) {
	w, _ := openTemp(t)
	defer w.Close()

	data := make([]byte, page.Size)
	_, err := w.WritePageRecord(1, data)
	require.NoError(t, err)

	w.SetAutoTruncate(true, 1) // force truncation on the next checkpoint
	require.NoError(t, w.Checkpoint(1))
	require.Equal(t, LSN(1), w.GetCheckpointLSN())

	recs, err := w.ReadRecordsFrom(1)
	require.NoError(t, err)
	require.Empty(t, recs) // truncated away along with the checkpoint record itself
}

func TestRecordsAreEightByteAligned(t *testing.T) {
	w, _ := openTemp(t)
	defer w.Close()

	_, err := w.WriteFreeRecord(7) // 20-byte header, no payload -> padded to 24
	require.NoError(t, err)
	_, err = w.WriteFreeRecord(8)
	require.NoError(t, err)

	recs, err := w.ReadRecordsFrom(1)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, page.ID(7), recs[0].PageID)
	require.Equal(t, page.ID(8), recs[1].PageID)
}
