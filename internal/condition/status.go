package condition

import (
	"sync"

	"github.com/nebula-dds/ddscore/internal/status"
)

// statusEntity is the minimal collaborator surface a StatusCondition needs
// from the entity that owns it — satisfied by entity.Base's promoted
// methods on any concrete entity kind, without this package importing
// internal/entity (keeps the lock rank from spec.md §5 acyclic; entity
// depends on the interfaces it needs from condition's direction instead).
type statusEntity interface {
	Statuses() *status.Set
	OnStatusChanged(f func(status.Mask))
}

// StatusCondition triggers when any status bit in its mask is currently
// raised on the owning entity (spec.md §4.6).
type StatusCondition struct {
	baseCondition
	owner  statusEntity
	maskMu sync.Mutex
	mask   status.Mask
}

// NewStatusCondition constructs a StatusCondition over mask and registers
// it to recheck its trigger on every status change of owner.
func NewStatusCondition(owner statusEntity, mask status.Mask) *StatusCondition {
	c := &StatusCondition{owner: owner, mask: mask}
	owner.OnStatusChanged(func(status.Mask) {
		c.recheck(c.Triggered())
	})
	return c
}

// SetMask replaces the set of status bits this condition triggers on.
func (c *StatusCondition) SetMask(mask status.Mask) {
	c.maskMu.Lock()
	c.mask = mask
	c.maskMu.Unlock()
	c.recheck(c.Triggered())
}

func (c *StatusCondition) Triggered() bool {
	c.maskMu.Lock()
	mask := c.mask
	c.maskMu.Unlock()
	return c.owner.Statuses().Read()&mask != 0
}
