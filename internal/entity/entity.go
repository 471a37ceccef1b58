// Package entity implements the entity graph from spec.md §4.2: the
// participant → publisher/subscriber → writer/reader → topic object
// relationships, their construction/enable/delete lifecycle, and the
// shared per-entity state (QoS, status, listener, parent/children) spec.md
// §3 describes as the common "Entity" record.
//
// Grounded on the teacher's internal/controller (reconcile-style
// create/delete of child resources with post-order teardown and
// fmt.Errorf("%w") wrapping) and internal/deps (parent/child tree
// invariants), generalized from a Kubernetes-pod reconciler to an
// in-process handle-table-backed object graph.
package entity

import (
	"fmt"
	"sync"

	"github.com/nebula-dds/ddscore/internal/dderr"
	"github.com/nebula-dds/ddscore/internal/guid"
	"github.com/nebula-dds/ddscore/internal/handle"
	"github.com/nebula-dds/ddscore/internal/qos"
	"github.com/nebula-dds/ddscore/internal/status"
)

// Hooks lets listener/condition/builtin-topics wiring react to entity
// lifecycle and status events without this package importing them,
// preserving the lock-rank ordering from spec.md §5.
type Hooks interface {
	// DeliverStatus is consulted before bit is raised on e: if a listener
	// callback is set for bit (walking up the parent chain for
	// DATA_AVAILABLE, which alone inherits, per spec.md §4.7), the
	// implementation schedules that callback and returns true, in which
	// case the bit is never set and StatusChanged never fires for it
	// (DDS "status inheritance" substitution rule).
	DeliverStatus(e Entity, bit status.Mask) bool
	// StatusChanged is called whenever a status bit transitions false→true
	// on the entity, after the status set has been updated. Only called
	// for bits DeliverStatus did not consume.
	StatusChanged(e Entity, bit status.Mask)
	// ChildCreated/ChildDeleted let builtin-topics mirror the graph.
	ChildCreated(parent, child Entity)
	ChildDeleted(parent, child Entity)
}

type noopHooks struct{}

func (noopHooks) DeliverStatus(Entity, status.Mask) bool { return false }
func (noopHooks) StatusChanged(Entity, status.Mask)      {}
func (noopHooks) ChildCreated(Entity, Entity)            {}
func (noopHooks) ChildDeleted(Entity, Entity)            {}

// Entity is the common interface every node in the graph satisfies; it
// extends handle.Entity (Kind) with the attributes spec.md §3 names as
// shared across all variants.
type Entity interface {
	handle.Entity
	Handle() handle.Handle
	GUID() guid.GUID
	Parent() Entity
	QoS() qos.QoS
	Enabled() bool
	Statuses() *status.Set
}

// Base is embedded by every concrete entity type and implements the
// shared bookkeeping: handle/GUID identity, QoS storage, enable flag,
// status bitmask, listener hooks, and the children set. Base's own mutex
// guards exactly this bookkeeping — it is the "entity" rank in spec.md
// §5's domain→participant→topic registry→entity→rhc/whc lock order.
type Base struct {
	mu sync.Mutex

	kind    string
	handle  handle.Handle
	guid    guid.GUID
	parent  Entity
	qosBag  qos.QoS
	enabled bool
	statuses *status.Set
	hooks   Hooks

	children map[handle.Handle]Entity

	statusCallbacks []func(status.Mask)
}

func newBase(kind string, g guid.GUID, parent Entity, q qos.QoS, enabled bool, hooks Hooks) Base {
	if hooks == nil {
		hooks = noopHooks{}
	}
	return Base{
		kind:     kind,
		guid:     g,
		parent:   parent,
		qosBag:   q,
		enabled:  enabled,
		statuses: status.NewSet(status.AllStatuses),
		hooks:    hooks,
		children: make(map[handle.Handle]Entity),
	}
}

func (b *Base) Kind() string { return b.kind }

func (b *Base) Handle() handle.Handle { return b.handle }

// bindHandle is called once by the owning constructor right after the
// handle table assigns a handle, since the entity must exist before it can
// be inserted.
func (b *Base) bindHandle(h handle.Handle) { b.handle = h }

func (b *Base) GUID() guid.GUID { return b.guid }

func (b *Base) Parent() Entity { return b.parent }

func (b *Base) QoS() qos.QoS {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.qosBag
}

func (b *Base) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

func (b *Base) Statuses() *status.Set { return b.statuses }

func (b *Base) SetEnabledStatusMask(m status.Mask) { b.statuses.SetEnabled(m) }

// Enable flips the enabled flag; idempotent. Enablement is otherwise
// implicit at construction unless ENTITY_FACTORY.autoenable_created_entities
// is false on the parent's QoS (spec.md §4.2); writers and readers are also
// created disabled when it is false on the owning participant's QoS.
func (b *Base) Enable() { b.mu.Lock(); b.enabled = true; b.mu.Unlock() }

// SetQoS applies the set_qos procedure from spec.md §4.3: fill-missing,
// consistency check, then (if enabled) mutability check, applied
// atomically under the base lock.
func (b *Base) SetQoS(patch qos.QoS) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	merged := qos.Merge(b.qosBag, patch)
	if err := qos.CheckConsistency(merged); err != nil {
		return fmt.Errorf("entity: set_qos: %w", dderr.Wrap(dderr.InconsistentPolicy, err))
	}
	if b.enabled {
		if err := qos.CheckMutable(true, b.qosBag, merged); err != nil {
			return fmt.Errorf("entity: set_qos: %w", err)
		}
	}
	b.qosBag = merged
	return nil
}

// raiseStatus raises bit on this entity's status set and, on a false→true
// transition, notifies hooks — spec.md §4.6's "recompute... notify" chain,
// done with the caller's cache/entity lock already held where applicable.
func (b *Base) raiseStatus(self Entity, bit status.Mask) {
	if b.hooks.DeliverStatus(self, bit) {
		return
	}
	if b.statuses.Raise(bit) {
		b.hooks.StatusChanged(self, bit)
		b.mu.Lock()
		cbs := append([]func(status.Mask){}, b.statusCallbacks...)
		b.mu.Unlock()
		for _, cb := range cbs {
			cb(bit)
		}
	}
}

// OnStatusChanged registers a callback invoked on every false→true status
// transition, alongside the single constructor-supplied Hooks — used by
// internal/condition to re-evaluate a StatusCondition's trigger without
// this package importing it (spec.md §4.6's trigger update discipline).
func (b *Base) OnStatusChanged(f func(status.Mask)) {
	b.mu.Lock()
	b.statusCallbacks = append(b.statusCallbacks, f)
	b.mu.Unlock()
}

func (b *Base) addChild(parent, child Entity) {
	b.mu.Lock()
	b.children[child.Handle()] = child
	b.mu.Unlock()
	b.hooks.ChildCreated(parent, child)
}

func (b *Base) removeChild(parent, child Entity) {
	b.mu.Lock()
	delete(b.children, child.Handle())
	b.mu.Unlock()
	b.hooks.ChildDeleted(parent, child)
}

func (b *Base) childList() []Entity {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entity, 0, len(b.children))
	for _, c := range b.children {
		out = append(out, c)
	}
	return out
}
