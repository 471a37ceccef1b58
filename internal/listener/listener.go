// Package listener implements the listener dispatch layer from spec.md
// §4.7: per-entity serialized callback delivery, DDS status-inheritance
// substitution (a listener callback replaces raising the status bit,
// rather than running alongside it), and the reentrancy guard that turns
// a blocking call made from inside a callback into ILLEGAL_OPERATION.
//
// Grounded on the teacher's internal/eventbus/bus.go for the
// registration/lookup shape, generalized from "dispatch one event to
// every registered handler synchronously" to "find the one listener that
// owns this status bit, possibly on an ancestor, and run it on that
// entity's own serialized worker" — DDS listener delivery is per-entity
// ordered, not fan-out.
package listener

import (
	"sync"

	"github.com/nebula-dds/ddscore/internal/dderr"
	"github.com/nebula-dds/ddscore/internal/entity"
	"github.com/nebula-dds/ddscore/internal/handle"
	"github.com/nebula-dds/ddscore/internal/status"
)

// Callback is a listener callback for one status kind.
type Callback func(e entity.Entity, bit status.Mask)

// Manager is a process-wide (in practice, per-Domain) listener registry
// implementing entity.Hooks. The zero value is not usable; construct
// with NewManager.
type Manager struct {
	mu          sync.Mutex
	callbacks   map[handle.Handle]map[status.Mask]Callback
	dispatchers map[handle.Handle]*dispatcher
}

func NewManager() *Manager {
	return &Manager{
		callbacks:   make(map[handle.Handle]map[status.Mask]Callback),
		dispatchers: make(map[handle.Handle]*dispatcher),
	}
}

// SetListener installs cb as e's callback for every bit in mask, replacing
// whatever was set for those bits before. Passing a nil cb clears them
// (DDS's "UNSET" listener value).
func (m *Manager) SetListener(e entity.Entity, mask status.Mask, cb Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := e.Handle()
	set, ok := m.callbacks[h]
	if !ok {
		set = make(map[status.Mask]Callback)
		m.callbacks[h] = set
	}
	for bit := status.Mask(1); bit != 0; bit <<= 1 {
		if mask&bit == 0 {
			continue
		}
		if cb == nil {
			delete(set, bit)
		} else {
			set[bit] = cb
		}
	}
}

func (m *Manager) lookup(e entity.Entity, bit status.Mask) Callback {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.callbacks[e.Handle()]; ok {
		return set[bit]
	}
	return nil
}

// DeliverStatus implements entity.Hooks. DATA_AVAILABLE is the one status
// kind spec.md §4.7 says inherits up the parent chain when unset on the
// entity itself; every other kind only ever checks the entity's own
// listener.
func (m *Manager) DeliverStatus(e entity.Entity, bit status.Mask) bool {
	if bit != status.DataAvailable {
		if cb := m.lookup(e, bit); cb != nil {
			m.post(e, cb, bit)
			return true
		}
		return false
	}
	for cur := e; cur != nil; cur = cur.Parent() {
		if cb := m.lookup(cur, bit); cb != nil {
			m.post(cur, cb, bit)
			return true
		}
	}
	return false
}

// StatusChanged and the child-tracking hooks are no-ops for Manager: the
// listener substitution happens entirely in DeliverStatus, and builtin
// topics (not listener dispatch) own ChildCreated/ChildDeleted.
func (m *Manager) StatusChanged(entity.Entity, status.Mask) {}
func (m *Manager) ChildCreated(parent, child entity.Entity)  {}
func (m *Manager) ChildDeleted(parent, child entity.Entity)  {}

func (m *Manager) post(owner entity.Entity, cb Callback, bit status.Mask) {
	d := m.dispatcherFor(owner.Handle())
	d.post(func() { cb(owner, bit) })
}

func (m *Manager) dispatcherFor(h handle.Handle) *dispatcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.dispatchers[h]
	if !ok {
		d = newDispatcher()
		m.dispatchers[h] = d
	}
	return d
}

// CheckReentrant returns ILLEGAL_OPERATION if the calling goroutine is
// currently executing e's own listener callback — the blocking-operation
// guard spec.md §4.7 requires ("callbacks must not invoke blocking
// operations on their own entity from inside the callback"). Callers
// (the public API façade) invoke this at the top of every blocking
// operation before it takes effect.
func (m *Manager) CheckReentrant(e entity.Entity) error {
	m.mu.Lock()
	d, ok := m.dispatchers[e.Handle()]
	m.mu.Unlock()
	if ok && d.inCallback() {
		return dderr.New(dderr.IllegalOperation, "listener: blocking operation invoked from within this entity's own listener callback")
	}
	return nil
}

// Close tears down every per-entity dispatcher goroutine Manager has
// created; intended for test/domain teardown.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.dispatchers {
		d.close()
	}
	m.dispatchers = make(map[handle.Handle]*dispatcher)
}
