// Package monolog is the storage core's one place for diagnostic output:
// the Pager, WAL, and Catalog route flush/recovery/checkpoint messages
// through here instead of calling fmt.Printf directly, so a host
// application can redirect or silence them.
package monolog

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
)

// Output is where log lines are written; tests may point it at a buffer.
var Output io.Writer = os.Stderr

// Infof writes a formatted diagnostic line.
func Infof(format string, args ...any) {
	fmt.Fprintf(Output, "[monolite] "+format+"\n", args...)
}

// Bytes renders a byte count the way an operator reading logs on a
// constrained device wants to see it ("48 KiB" rather than "49152").
func Bytes(n uint64) string {
	return humanize.IBytes(n)
}

// FlushSummary logs a page flush: how many pages, how many bytes.
func FlushSummary(pageCount int, pageSize int) {
	Infof("flushed %d pages (%s)", pageCount, Bytes(uint64(pageCount*pageSize)))
}

// RecoverySummary logs the outcome of WAL replay on open.
func RecoverySummary(recordCount int, finalPageCount uint32) {
	Infof("replayed %d wal record(s), file now has %d pages", recordCount, finalPageCount)
}

// CheckpointSummary logs a WAL checkpoint, noting whether it also
// truncated the log body back to its header.
func CheckpointSummary(lsn uint64, truncated bool) {
	if truncated {
		Infof("checkpoint at lsn %d, log truncated", lsn)
		return
	}
	Infof("checkpoint at lsn %d", lsn)
}

// CatalogWriteSummary logs a catalog save: the payload size and how
// many pages its chain now spans.
func CatalogWriteSummary(pageCount int, payloadBytes int) {
	Infof("catalog saved across %d page(s) (%s)", pageCount, Bytes(uint64(payloadBytes)))
}
