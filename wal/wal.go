// Package wal implements the append-only, checkpointed redo log that the
// Pager writes to before any data-file mutation: file-write records are
// WAL-first, so a crash between the WAL sync and the data-file write is
// healed by replaying the log on the next open.
package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"

	"monolite/monoerr"
	"monolite/monolog"
	"monolite/page"
)

const (
	// Magic identifies a monolite WAL file ("WALM").
	Magic uint32 = 0x57414C4D

	// Version is the WAL file format version this build writes and reads.
	Version uint16 = 1

	headerSize = 32
	recordSize = 20

	alignment = 8

	// DefaultAutoTruncateThreshold is the body size past which
	// Checkpoint, when auto-truncate is enabled, truncates the log back
	// to its header.
	DefaultAutoTruncateThreshold = 64 * 1024 * 1024
)

// RecordType identifies what a WAL record represents.
type RecordType uint8

const (
	RecordPageWrite RecordType = iota
	RecordAllocPage
	RecordFreePage
	RecordCommit
	RecordCheckpoint
	RecordMetaUpdate
)

// MetaSubtype identifies which file-header field a meta-update record changes.
type MetaSubtype uint8

const (
	MetaFreeListHead MetaSubtype = iota
	MetaPageCount
	MetaCatalogPageID
)

// LSN is a monotonically increasing log sequence number; the first record
// written to a fresh log has LSN 1.
type LSN uint64

// Record is one fully-parsed WAL entry.
type Record struct {
	LSN     LSN
	Type    RecordType
	Flags   uint8
	PageID  page.ID
	Payload []byte
}

// WAL is an open write-ahead log file.
type WAL struct {
	file   *os.File
	path   string
	header fileHeader

	currentLSN  LSN
	writeOffset int64

	autoTruncate          bool
	autoTruncateThreshold int64
}

type fileHeader struct {
	magic         uint32
	version       uint16
	checkpointLSN LSN
	// fileSize is the log's byte extent as of the last header write
	// (file creation or Checkpoint); scanToTail recomputes the true
	// extent on every Open rather than trusting this on its own.
	fileSize uint64
}

// Open opens an existing WAL file or creates a new one with a fresh
// header. A freshly created log starts at LSN 1; a reopened log's
// current LSN is recovered by scanning forward from the checkpoint.
func Open(path string) (*WAL, error) {
	exists := true
	if _, err := os.Stat(path); os.IsNotExist(err) {
		exists = false
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}

	w := &WAL{
		file:                  f,
		path:                  path,
		autoTruncate:          true,
		autoTruncateThreshold: DefaultAutoTruncateThreshold,
	}

	if exists {
		if err := w.readHeader(); err != nil {
			f.Close()
			return nil, err
		}
		if err := w.scanToTail(); err != nil {
			f.Close()
			return nil, err
		}
	} else {
		w.writeOffset = headerSize
		w.header = fileHeader{magic: Magic, version: Version, checkpointLSN: 0, fileSize: headerSize}
		if err := w.writeHeader(); err != nil {
			f.Close()
			return nil, err
		}
		w.currentLSN = 1
	}

	return w, nil
}

// SetAutoTruncate configures whether Checkpoint truncates the log body
// once it exceeds threshold bytes. Passing threshold <= 0 keeps the
// default.
func (w *WAL) SetAutoTruncate(enabled bool, threshold int64) {
	w.autoTruncate = enabled
	if threshold > 0 {
		w.autoTruncateThreshold = threshold
	}
}

func (w *WAL) readHeader() error {
	buf := make([]byte, headerSize)
	if _, err := w.file.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("wal: read header: %w", err)
	}

	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != Magic {
		return fmt.Errorf("%w: bad wal magic %x", monoerr.ErrCorruptWAL, magic)
	}
	version := binary.LittleEndian.Uint16(buf[4:6])
	if version != Version {
		return fmt.Errorf("%w: unsupported wal version %d", monoerr.ErrCorruptWAL, version)
	}
	checkpointLSN := LSN(binary.LittleEndian.Uint64(buf[8:16]))
	fileSize := binary.LittleEndian.Uint64(buf[16:24])
	storedCRC := binary.LittleEndian.Uint32(buf[24:28])

	if crc32.ChecksumIEEE(buf[0:24]) != storedCRC {
		return fmt.Errorf("%w: wal header crc mismatch", monoerr.ErrCorruptWAL)
	}

	w.header = fileHeader{magic: magic, version: version, checkpointLSN: checkpointLSN, fileSize: fileSize}
	return nil
}

func (w *WAL) writeHeader() error {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0:4], w.header.magic)
	binary.LittleEndian.PutUint16(buf[4:6], w.header.version)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(w.header.checkpointLSN))
	binary.LittleEndian.PutUint64(buf[16:24], w.header.fileSize)
	crc := crc32.ChecksumIEEE(buf[0:24])
	binary.LittleEndian.PutUint32(buf[24:28], crc)

	if _, err := w.file.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("wal: write header: %w", err)
	}
	return nil
}

// scanToTail walks the log body from the header forward, validating each
// record's CRC, and sets currentLSN/writeOffset to just past the last
// valid record. The first invalid record (bad CRC, or a short trailing
// read) truncates the log logically: everything from there on is treated
// as not-yet-written, even though stray bytes may remain on disk.
func (w *WAL) scanToTail() error {
	offset := int64(headerSize)
	maxLSN := w.header.checkpointLSN

	for {
		rec, recLen, ok := w.tryReadRecordAt(offset)
		if !ok {
			break
		}
		if rec.LSN > maxLSN {
			maxLSN = rec.LSN
		}
		offset += recLen
	}

	w.writeOffset = offset
	w.currentLSN = maxLSN + 1
	return nil
}

// tryReadRecordAt reads one record at offset, returning ok=false if the
// bytes at offset do not form a complete, CRC-valid record (end of file,
// short trailing write, or corruption).
func (w *WAL) tryReadRecordAt(offset int64) (Record, int64, bool) {
	head := make([]byte, recordSize)
	if n, _ := w.file.ReadAt(head, offset); n < recordSize {
		return Record{}, 0, false
	}

	lsn := LSN(binary.LittleEndian.Uint64(head[0:8]))
	typ := RecordType(head[8])
	flags := head[9]
	dataLen := binary.LittleEndian.Uint16(head[10:12])
	pid := page.ID(binary.LittleEndian.Uint32(head[12:16]))
	storedCRC := binary.LittleEndian.Uint32(head[16:20])

	payload := make([]byte, dataLen)
	if dataLen > 0 {
		if n, _ := w.file.ReadAt(payload, offset+recordSize); n < int(dataLen) {
			return Record{}, 0, false
		}
	}

	crcInput := make([]byte, 16+len(payload))
	copy(crcInput, head[0:16])
	copy(crcInput[16:], payload)
	if crc32.ChecksumIEEE(crcInput) != storedCRC {
		return Record{}, 0, false
	}

	rec := Record{LSN: lsn, Type: typ, Flags: flags, PageID: pid, Payload: payload}
	total := alignedLen(recordSize + int(dataLen))
	return rec, int64(total), true
}

func alignedLen(n int) int {
	rem := n % alignment
	if rem == 0 {
		return n
	}
	return n + (alignment - rem)
}

// appendRecord serializes and appends one record, returning its LSN.
func (w *WAL) appendRecord(typ RecordType, pid page.ID, payload []byte) (LSN, error) {
	lsn := w.currentLSN

	head := make([]byte, recordSize)
	binary.LittleEndian.PutUint64(head[0:8], uint64(lsn))
	head[8] = byte(typ)
	head[9] = 0
	binary.LittleEndian.PutUint16(head[10:12], uint16(len(payload)))
	binary.LittleEndian.PutUint32(head[12:16], uint32(pid))

	crcInput := make([]byte, 16+len(payload))
	copy(crcInput, head[0:16])
	copy(crcInput[16:], payload)
	crc := crc32.ChecksumIEEE(crcInput)
	binary.LittleEndian.PutUint32(head[16:20], crc)

	rec := append(head, payload...)
	total := alignedLen(len(rec))
	if total > len(rec) {
		rec = append(rec, make([]byte, total-len(rec))...)
	}

	if _, err := w.file.WriteAt(rec, w.writeOffset); err != nil {
		return 0, fmt.Errorf("wal: append record: %w", err)
	}

	w.writeOffset += int64(total)
	w.currentLSN++
	return lsn, nil
}

// WritePageRecord logs a full page image (page-write record).
func (w *WAL) WritePageRecord(id page.ID, data []byte) (LSN, error) {
	if len(data) != page.Size {
		return 0, fmt.Errorf("wal: page record payload must be %d bytes, got %d", page.Size, len(data))
	}
	return w.appendRecord(RecordPageWrite, id, data)
}

// WriteAllocRecord logs the allocation of a new page of the given type.
func (w *WAL) WriteAllocRecord(id page.ID, typ page.Type) (LSN, error) {
	return w.appendRecord(RecordAllocPage, id, []byte{byte(typ)})
}

// WriteFreeRecord logs that a page was returned to the free list.
func (w *WAL) WriteFreeRecord(id page.ID) (LSN, error) {
	return w.appendRecord(RecordFreePage, id, nil)
}

// WriteMetaRecord logs a change to one file-header field.
func (w *WAL) WriteMetaRecord(subtype MetaSubtype, oldValue, newValue uint32) (LSN, error) {
	payload := make([]byte, 9)
	payload[0] = byte(subtype)
	binary.LittleEndian.PutUint32(payload[1:5], oldValue)
	binary.LittleEndian.PutUint32(payload[5:9], newValue)
	return w.appendRecord(RecordMetaUpdate, 0, payload)
}

// WriteCommitRecord logs that the current logical operation completed.
func (w *WAL) WriteCommitRecord() (LSN, error) {
	return w.appendRecord(RecordCommit, 0, nil)
}

// Sync flushes pending writes to stable storage.
func (w *WAL) Sync() error {
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: sync: %w", err)
	}
	return nil
}

// Checkpoint writes a checkpoint record for lsn, advances the header's
// checkpoint LSN, fsyncs, and — when auto-truncate is enabled and the log
// body has grown past the threshold — truncates the body back to just
// the 32-byte header, since every record up to and including lsn is now
// guaranteed durable in the data file.
func (w *WAL) Checkpoint(lsn LSN) error {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, uint64(lsn))
	if _, err := w.appendRecord(RecordCheckpoint, 0, payload); err != nil {
		return err
	}

	w.header.checkpointLSN = lsn
	w.header.fileSize = uint64(w.writeOffset)
	if err := w.writeHeader(); err != nil {
		return err
	}
	if err := w.Sync(); err != nil {
		return err
	}

	truncated := false
	if w.autoTruncate && (w.writeOffset-headerSize) > w.autoTruncateThreshold {
		if err := w.truncateToHeader(); err != nil {
			return err
		}
		w.header.fileSize = uint64(w.writeOffset)
		if err := w.writeHeader(); err != nil {
			return err
		}
		truncated = true
	}
	monolog.CheckpointSummary(uint64(lsn), truncated)
	return nil
}

func (w *WAL) truncateToHeader() error {
	if err := w.file.Truncate(headerSize); err != nil {
		return fmt.Errorf("wal: truncate: %w", err)
	}
	w.writeOffset = headerSize
	w.currentLSN = w.header.checkpointLSN + 1
	return nil
}

// GetCheckpointLSN returns the header's current checkpoint LSN.
func (w *WAL) GetCheckpointLSN() LSN {
	return w.header.checkpointLSN
}

// GetCurrentLSN returns the LSN that will be assigned to the next
// appended record.
func (w *WAL) GetCurrentLSN() LSN {
	return w.currentLSN
}

// ReadRecordsFrom reads every well-formed record with LSN >= startLSN,
// in LSN order, stopping logically at the first corrupt or truncated
// record (its tail is never replayed).
func (w *WAL) ReadRecordsFrom(startLSN LSN) ([]Record, error) {
	var out []Record
	offset := int64(headerSize)
	for {
		rec, recLen, ok := w.tryReadRecordAt(offset)
		if !ok {
			break
		}
		if rec.LSN >= startLSN {
			out = append(out, rec)
		}
		offset += recLen
	}
	return out, nil
}

// Close syncs and closes the underlying file.
func (w *WAL) Close() error {
	if err := w.Sync(); err != nil {
		return err
	}
	return w.file.Close()
}

// PathFor returns the conventional WAL path for a given data file path.
func PathFor(dbPath string) string {
	return dbPath + ".wal"
}
