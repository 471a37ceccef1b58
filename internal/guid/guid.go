// Package guid implements the 128-bit entity GUID from spec.md §3/§4.2: a
// process-wide 12-byte prefix shared by all participants in a process, plus
// an entity-kind-coded suffix unique within the participant.
//
// Grounded on the teacher's internal/idgen/hash.go, which derives a stable
// identifier from a SHA-256 digest of combined inputs; the same combine-
// then-hash shape is used here for the process-wide prefix.
package guid

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"
)

// GUID is the 128-bit entity identifier from spec.md §3.
type GUID [16]byte

func (g GUID) String() string {
	return fmt.Sprintf("%x", [16]byte(g))
}

// Prefix extracts the 12-byte process/participant-shared portion of g, used
// to mint GUIDs for entities owned by the same participant.
func (g GUID) Prefix() Prefix {
	var p Prefix
	copy(p[:], g[0:12])
	return p
}

// EntityKind tags the low byte of a GUID's entity-id suffix, distinguishing
// participants from the endpoints they own.
type EntityKind byte

const (
	KindParticipant EntityKind = 0x01
	KindWriter      EntityKind = 0x02
	KindReader      EntityKind = 0x03
	KindTopic       EntityKind = 0x04
	KindPublisher   EntityKind = 0x05
	KindSubscriber  EntityKind = 0x06
)

// Prefix is the 12-byte process/participant-shared portion of a GUID.
type Prefix [12]byte

// processSeed is computed once per process from a random-ish seed, the
// start timestamp, and the process id, matching spec.md §4.2: "generated
// at process start from a hash of (random seed, start timestamp, process
// identifier)".
var (
	processSeedOnce sync.Once
	processSeed     [32]byte
	participantSeq  uint32
	participantMu   sync.Mutex
)

func initProcessSeed() {
	var buf [24]byte
	// "random seed": two wall-clock readings (one XOR-masked) plus the pid,
	// the same category of weak-but-adequate entropy source the teacher's
	// own iid/hash helpers use rather than reaching for crypto/rand, since
	// GUID prefixes need uniqueness-in-practice, not unguessability.
	now := time.Now()
	binary.LittleEndian.PutUint64(buf[0:8], uint64(now.UnixNano()))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(now.UnixNano())^0xA5A5A5A5A5A5A5A5)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(os.Getpid()))
	processSeed = sha256.Sum256(buf[:])
}

// NewParticipantPrefix allocates a fresh 12-byte prefix for a new
// participant. Per spec.md §4.2, "subsequent participants in the same
// process share prefix bytes but differ in the per-participant
// component" — the first 8 bytes come from the process-wide seed, the
// last 4 from a per-process monotonic participant counter.
func NewParticipantPrefix() Prefix {
	processSeedOnce.Do(initProcessSeed)

	participantMu.Lock()
	participantSeq++
	seq := participantSeq
	participantMu.Unlock()

	var p Prefix
	copy(p[0:8], processSeed[0:8])
	binary.BigEndian.PutUint32(p[8:12], seq)
	return p
}

// New builds a full GUID from a prefix, entity kind, and an
// entity-unique counter scoped to the owning participant. The counter's low
// 24 bits fill bytes 12-14; byte 15 holds the kind.
func New(prefix Prefix, kind EntityKind, counter uint32) GUID {
	var g GUID
	copy(g[0:12], prefix[:])
	binary.BigEndian.PutUint32(g[12:16], counter<<8)
	g[15] = byte(kind)
	return g
}
