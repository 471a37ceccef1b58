package rhc

import (
	"time"

	"github.com/nebula-dds/ddscore/internal/guid"
	"github.com/nebula-dds/ddscore/internal/sample"
)

// instance is one per-reader instance record, keyed by serialized key
// (spec.md §3 "Instance (per reader)").
type instance struct {
	key     sample.Key
	samples []*sample.Sample
	state   sample.InstanceState
	view    sample.ViewState
	writers map[guid.GUID]struct{}
	lastSeq map[guid.GUID]uint64

	// auto-purge bookkeeping (spec.md §4.4 "Auto-purge").
	purgeGen   uint64
	purgeTimer *time.Timer
}

func newInstance(key sample.Key) *instance {
	return &instance{
		key:     key,
		state:   sample.Alive,
		view:    sample.New,
		writers: make(map[guid.GUID]struct{}),
		lastSeq: make(map[guid.GUID]uint64),
	}
}

// cancelPurge stops any armed auto-purge timer and bumps the generation so
// an in-flight fired timer becomes a no-op. Called on any state exit,
// including the re-registration race from spec.md §9's Open Question 3.
func (ins *instance) cancelPurge() {
	ins.purgeGen++
	if ins.purgeTimer != nil {
		ins.purgeTimer.Stop()
		ins.purgeTimer = nil
	}
}

// arm schedules fn to run after delay, guarded by the current purge
// generation so a stale timer cannot fire after cancelPurge.
func (ins *instance) arm(delay time.Duration, fn func(gen uint64)) {
	gen := ins.purgeGen
	ins.purgeTimer = time.AfterFunc(delay, func() { fn(gen) })
}
