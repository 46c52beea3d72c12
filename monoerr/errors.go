// Package monoerr defines the sentinel error kinds the storage core
// surfaces to callers, per the error handling design: callers match on
// these with errors.Is rather than parsing message text.
package monoerr

import "errors"

var (
	// ErrCorruptPage is returned when a page's checksum does not match
	// its data area, or the bytes handed to unmarshal are the wrong length.
	ErrCorruptPage = errors.New("monolite: corrupt page")

	// ErrCorruptWAL is returned when a WAL record fails its CRC check,
	// has a bad magic number, or an unsupported version.
	ErrCorruptWAL = errors.New("monolite: corrupt wal")

	// ErrPageFull is returned when a slotted page cannot fit a record,
	// even after reclaiming a deleted slot's space.
	ErrPageFull = errors.New("monolite: page full")

	// ErrDuplicateKey is returned when a unique index already maps the
	// projected key to a value.
	ErrDuplicateKey = errors.New("monolite: duplicate key")

	// ErrInvalidArgument is returned for bad collection names, oversized
	// documents/keys/values, or batches over the insert limit.
	ErrInvalidArgument = errors.New("monolite: invalid argument")

	// ErrNotFound is returned for a missing collection, index, or record.
	ErrNotFound = errors.New("monolite: not found")

	// ErrDegraded marks a database handle that hit an unrecoverable I/O
	// or rollback failure; it must be reopened before further use.
	ErrDegraded = errors.New("monolite: database handle degraded")
)
