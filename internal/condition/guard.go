package condition

import "sync"

// GuardCondition is a condition whose trigger value is set directly by the
// application rather than computed from entity state (spec.md §4.6).
type GuardCondition struct {
	baseCondition
	valueMu sync.Mutex
	value   bool
}

func NewGuardCondition() *GuardCondition {
	return &GuardCondition{}
}

// SetTriggerValue sets the guard's trigger value, waking any attached
// waitset on a false→true transition.
func (c *GuardCondition) SetTriggerValue(v bool) {
	c.valueMu.Lock()
	c.value = v
	c.valueMu.Unlock()
	c.recheck(v)
}

func (c *GuardCondition) Triggered() bool {
	c.valueMu.Lock()
	defer c.valueMu.Unlock()
	return c.value
}
