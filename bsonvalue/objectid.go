package bsonvalue

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

// ObjectID is a 12-byte identifier: a 4-byte big-endian unix-seconds
// timestamp, 5 bytes drawn once per process from crypto/rand, and a
// 3-byte big-endian counter incremented atomically per call to
// NewObjectID within this process.
type ObjectID [12]byte

var (
	processUnique [5]byte
	objectIDCounter uint32
)

func init() {
	if _, err := rand.Read(processUnique[:]); err != nil {
		panic(fmt.Sprintf("bsonvalue: failed to seed process-unique bytes: %v", err))
	}
	var seed [4]byte
	if _, err := rand.Read(seed[:]); err == nil {
		objectIDCounter = binary.BigEndian.Uint32(seed[:])
	}
}

// NewObjectID generates a fresh id. Monotonic increment of the counter
// is guaranteed within this process; uniqueness across processes relies
// on the distinct random process-unique bytes plus timestamp.
func NewObjectID() ObjectID {
	var id ObjectID
	binary.BigEndian.PutUint32(id[0:4], uint32(time.Now().Unix()))
	copy(id[4:9], processUnique[:])

	c := atomic.AddUint32(&objectIDCounter, 1)
	id[9] = byte(c >> 16)
	id[10] = byte(c >> 8)
	id[11] = byte(c)

	return id
}

// Hex returns the lowercase hex representation of the id.
func (id ObjectID) Hex() string {
	return hex.EncodeToString(id[:])
}

// Timestamp returns the embedded creation time.
func (id ObjectID) Timestamp() time.Time {
	secs := binary.BigEndian.Uint32(id[0:4])
	return time.Unix(int64(secs), 0)
}

// Compare orders ObjectIDs by their raw bytes, which is also timestamp
// order for ids minted more than a second apart.
func (id ObjectID) Compare(other ObjectID) int {
	for i := range id {
		if id[i] != other[i] {
			if id[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// ObjectIDFromHex parses a 24-character hex string back into an ObjectID.
func ObjectIDFromHex(s string) (ObjectID, error) {
	var id ObjectID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("bsonvalue: invalid object id %q: %w", s, err)
	}
	if len(b) != 12 {
		return id, fmt.Errorf("bsonvalue: object id %q decodes to %d bytes, want 12", s, len(b))
	}
	copy(id[:], b)
	return id, nil
}
