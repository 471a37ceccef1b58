// Package handle implements the handle table from spec.md §4.1: an
// open-addressed array indexed by (handle & index_mask), generation bits in
// the upper portion detecting ABA reuse, and pin/unpin reference counting
// that keeps a logically-deleted-but-pinned entity alive for ALREADY_DELETED
// semantics rather than a dangling pointer.
//
// Grounded on the teacher's internal/registry/registry.go locking shape
// (RWMutex-guarded slice + accessor methods) and internal/idgen's counter/
// generation-stamping style, generalized from "discover live sessions" to
// "reuse-safe integer handle allocation".
package handle

import (
	"sync"

	"github.com/nebula-dds/ddscore/internal/dderr"
)

const (
	indexBits = 18
	indexMask = 1<<indexBits - 1
	genBits   = 31 - indexBits // handles are positive int32s (spec.md §6)
	genMask   = 1<<genBits - 1
)

// Handle is the public handle type: positive on success, values are always
// produced by Table.Insert and decoded only by this package. Callers never
// construct one directly.
type Handle int32

// Entity is the minimal interface the handle table requires of anything it
// stores. Concrete entity kinds (participant, topic, writer, ...) live in
// package entity and implement this alongside their own richer surface.
type Entity interface {
	// Kind returns a short tag used only for diagnostics.
	Kind() string
}

type slot struct {
	mu         sync.Mutex
	cond       *sync.Cond
	entity     Entity
	generation uint32
	pinCount   int32
	closed     bool
	occupied   bool
}

// Table is a process-wide (or, per SPEC_FULL.md §3, per-Domain) handle
// table. Zero value is not usable; construct with New.
type Table struct {
	mu    sync.Mutex // guards slots slice growth and the free list
	slots []*slot
	free  []int
}

func New() *Table {
	// Slot 0 is reserved so that no issued handle encodes to 0.
	return &Table{slots: []*slot{newSlot()}}
}

func newSlot() *slot {
	s := &slot{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Insert allocates a new handle for entity and returns it. The returned
// handle is valid immediately with a pin count of zero.
func (t *Table) Insert(e Entity) Handle {
	t.mu.Lock()
	var idx int
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		idx = len(t.slots)
		t.slots = append(t.slots, newSlot())
	}
	s := t.slots[idx]
	t.mu.Unlock()

	s.mu.Lock()
	s.entity = e
	s.closed = false
	s.occupied = true
	s.pinCount = 0
	gen := s.generation
	s.mu.Unlock()

	return encode(idx, gen)
}

func encode(idx int, gen uint32) Handle {
	return Handle((int32(gen&genMask) << indexBits) | int32(idx&indexMask))
}

func decode(h Handle) (idx int, gen uint32, ok bool) {
	if h <= 0 {
		return 0, 0, false
	}
	v := int32(h)
	idx = int(v & indexMask)
	gen = uint32(v>>indexBits) & genMask
	return idx, gen, true
}

func (t *Table) slotFor(h Handle) (*slot, int, uint32, bool) {
	idx, gen, ok := decode(h)
	if !ok {
		return nil, 0, 0, false
	}
	t.mu.Lock()
	if idx < 0 || idx >= len(t.slots) {
		t.mu.Unlock()
		return nil, 0, 0, false
	}
	s := t.slots[idx]
	t.mu.Unlock()
	return s, idx, gen, true
}

// Pin resolves a handle to its entity and increments the pin count,
// returning ALREADY_DELETED if the slot has been closed or the handle's
// generation is stale (deleted, possibly with the slot reused), or
// BAD_PARAMETER if the handle is structurally invalid.
//
// Invariant (spec.md §4.1): a goroutine that already holds a pin on h must
// not Pin it again before Unpin — doing so risks self-deadlock against a
// concurrent Delete. This is a caller discipline the table does not (and,
// without per-goroutine identity, cannot) enforce at runtime.
func (t *Table) Pin(h Handle) (Entity, error) {
	s, _, gen, ok := t.slotFor(h)
	if !ok {
		return nil, dderr.New(dderr.BadParameter, "handle: invalid handle %d", h)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.occupied || s.generation != gen {
		return nil, dderr.Sentinel(dderr.AlreadyDeleted)
	}
	if s.closed {
		return nil, dderr.Sentinel(dderr.AlreadyDeleted)
	}
	s.pinCount++
	return s.entity, nil
}

// Unpin releases a pin acquired by Pin. It is a programming error to call
// Unpin without a matching successful Pin; Unpin panics in that case since
// it indicates a core bug, not caller input, per spec.md §7 ("no throwing
// crosses the API boundary" — this is below that boundary).
func (t *Table) Unpin(h Handle) {
	s, _, gen, ok := t.slotFor(h)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.occupied || s.generation != gen {
		return
	}
	if s.pinCount <= 0 {
		panic("handle: Unpin called without a matching Pin")
	}
	s.pinCount--
	if s.pinCount == 0 {
		s.cond.Broadcast()
	}
}

// Close marks the slot so no further Pin calls succeed; existing pins may
// continue until Unpin. Idempotent.
func (t *Table) Close(h Handle) error {
	s, _, gen, ok := t.slotFor(h)
	if !ok {
		return dderr.New(dderr.BadParameter, "handle: invalid handle %d", h)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.occupied || s.generation != gen {
		return dderr.Sentinel(dderr.AlreadyDeleted)
	}
	s.closed = true
	return nil
}

// Delete closes the handle (if not already closed) and blocks until the
// pin count reaches zero, then reclaims the slot for reuse with a bumped
// generation. Safe to call on an already-deleted handle (returns nil).
func (t *Table) Delete(h Handle) error {
	s, idx, gen, ok := t.slotFor(h)
	if !ok {
		return dderr.New(dderr.BadParameter, "handle: invalid handle %d", h)
	}

	s.mu.Lock()
	if !s.occupied || s.generation != gen {
		s.mu.Unlock()
		return nil // already reclaimed; delete is idempotent
	}
	s.closed = true
	for s.pinCount > 0 {
		s.cond.Wait()
	}
	s.entity = nil
	s.occupied = false
	s.generation = (s.generation + 1) & genMask
	s.mu.Unlock()

	t.mu.Lock()
	t.free = append(t.free, idx)
	t.mu.Unlock()
	return nil
}

// Lookup is a convenience for read-only introspection (e.g. builtin-topic
// mirroring) that pins, reads, and unpins in one call.
func (t *Table) Lookup(h Handle) (Entity, error) {
	e, err := t.Pin(h)
	if err != nil {
		return nil, err
	}
	defer t.Unpin(h)
	return e, nil
}
