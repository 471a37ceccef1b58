// Package rhc implements the reader history cache from spec.md §4.4: a
// mapping from instance key to instance record, bounded by resource limits
// and history QoS, with sample-state/view-state/instance-state tracking,
// eviction, and auto-purge timers.
//
// Grounded on the teacher's internal/storage/batch.go and
// internal/storage/memory backend (bounded, flush/retention-aware
// in-memory storage), generalized from a flat batch buffer to per-instance
// bounded ring buffers keyed by application-level key.
package rhc

import (
	"sync"
	"time"

	"github.com/nebula-dds/ddscore/internal/dderr"
	"github.com/nebula-dds/ddscore/internal/guid"
	"github.com/nebula-dds/ddscore/internal/qos"
	"github.com/nebula-dds/ddscore/internal/sample"
	"github.com/nebula-dds/ddscore/internal/status"
)

// Hooks lets the owning reader/entity layer react to cache mutations
// without rhc importing the condition/listener packages (keeps the lock
// rank domain→participant→topic→entity→cache from spec.md §5 acyclic).
type Hooks interface {
	// NotifyChanged is called after the cache lock has been released,
	// following a mutation that could flip a condition's trigger value (spec.md §4.6
	// "Trigger update discipline").
	NotifyChanged()
	// RaiseStatus raises a status bit on the owning reader.
	RaiseStatus(bit status.Mask)
}

type noopHooks struct{}

func (noopHooks) NotifyChanged()        {}
func (noopHooks) RaiseStatus(status.Mask) {}

// Limits mirrors the subset of QoS that governs cache admission/eviction.
type Limits struct {
	HistoryKind                qos.HistoryKind
	HistoryDepth               int32
	MaxInstances               int32
	MaxSamples                 int32
	MaxSamplesPerInstance      int32
	Reliable                   bool
	AutopurgeNoWriterDelay     time.Duration
	AutopurgeDisposedDelay     time.Duration
}

// Cache is the reader history cache. Zero value is not usable; construct
// with New.
type Cache struct {
	mu        sync.Mutex
	limits    Limits
	hooks     Hooks
	instances map[string]*instance
	order     []string // creation order, for deterministic cross-instance iteration
	totalN    int
}

func New(limits Limits, hooks Hooks) *Cache {
	if hooks == nil {
		hooks = noopHooks{}
	}
	return &Cache{
		limits:    limits,
		hooks:     hooks,
		instances: make(map[string]*instance),
	}
}

func unlimited(n int32) bool { return n == qos.Unlimited }

// Store ingests one sample from a matched writer, implementing spec.md
// §4.4's five-step procedure. Returns dderr with OutOfResources if a
// reliable writer must retry, or nil if a best-effort sample was silently
// dropped. A sample turned away at MaxInstances leaves the cache unchanged;
// one turned away at a sample bound is not stored, but its instance's state,
// writer set and last sequence number have already been updated from it.
func (c *Cache) Store(key sample.Key, payload []byte, writerGUID guid.GUID, seqNum uint64,
	sourceTS, receptionTS int64, st sample.StatusInfo) error {

	c.mu.Lock()

	ks := key.String()
	ins, existed := c.instances[ks]
	if !existed {
		if !unlimited(c.limits.MaxInstances) && len(c.instances) >= int(c.limits.MaxInstances) {
			err := c.rejectOrDrop()
			c.mu.Unlock()
			return err
		}
		ins = newInstance(key)
		c.instances[ks] = ins
		c.order = append(c.order, ks)
	} else {
		ins.cancelPurge() // re-registration race, spec.md §9 Open Question 3
	}

	// Instance view state transitions back to NEW on creation or revival
	// from a NOT_ALIVE state; the actual NEW→NOT_NEW transition on read/take
	// is handled in readOrTake, since it is a property of the instance at
	// the moment a sample is returned, not a fact frozen in at Store time.
	wasNotAlive := ins.state != sample.Alive
	if !existed || wasNotAlive {
		ins.view = sample.New
	}

	// Sequence-gap detection for SAMPLE_LOST (spec.md §4.4 step 5). The
	// hook call is deferred past mu.Unlock() below, alongside DataAvailable.
	sampleLost := false
	if last, ok := ins.lastSeq[writerGUID]; ok && seqNum > last+1 {
		sampleLost = true
	}
	ins.lastSeq[writerGUID] = seqNum

	valid := !st.Dispose && !st.Unregister
	if valid {
		ins.writers[writerGUID] = struct{}{}
		ins.state = sample.Alive
	}
	if st.Dispose {
		ins.state = sample.NotAliveDisposed
		c.armAutopurge(ins, c.limits.AutopurgeDisposedDelay)
	}
	if st.Unregister {
		delete(ins.writers, writerGUID)
		if len(ins.writers) == 0 && ins.state == sample.Alive {
			ins.state = sample.NotAliveNoWriters
			c.armAutopurge(ins, c.limits.AutopurgeNoWriterDelay)
		}
	}

	bound := c.perInstanceBound()
	if bound > 0 && len(ins.samples) >= bound {
		if c.limits.HistoryKind == qos.KeepLast {
			// Evict the oldest sample of the instance receiving the new
			// sample (spec.md §4.4 step 3).
			c.removeOldest(ins)
		} else {
			err := c.rejectOrDrop()
			c.mu.Unlock()
			return err
		}
	}
	if !unlimited(c.limits.MaxSamples) && c.totalN >= int(c.limits.MaxSamples) {
		if c.limits.HistoryKind == qos.KeepLast {
			c.removeOldest(ins)
		} else {
			err := c.rejectOrDrop()
			c.mu.Unlock()
			return err
		}
	}

	s := &sample.Sample{
		Payload:              payload,
		InstanceKey:          key,
		SourceTimestampNs:    sourceTS,
		ReceptionTimestampNs: receptionTS,
		WriterGUID:           writerGUID,
		SeqNum:               seqNum,
		ValidData:            valid,
		Status:               st,
		SampleState:          sample.NotRead,
		InstanceState:        ins.state,
	}
	ins.samples = append(ins.samples, s)
	c.totalN++

	c.mu.Unlock()

	// Hooks run with the lock released: RaiseStatus/NotifyChanged fan out
	// to condition recheck closures that call back into the cache's own
	// locked methods (HasMatching, Matching), and c.mu is not reentrant.
	if sampleLost {
		c.hooks.RaiseStatus(status.SampleLost)
	}
	c.hooks.RaiseStatus(status.DataAvailable)
	c.hooks.NotifyChanged()
	return nil
}

func (c *Cache) perInstanceBound() int {
	if c.limits.HistoryKind == qos.KeepLast {
		if c.limits.HistoryDepth > 0 {
			if !unlimited(c.limits.MaxSamplesPerInstance) && int(c.limits.MaxSamplesPerInstance) < int(c.limits.HistoryDepth) {
				return int(c.limits.MaxSamplesPerInstance)
			}
			return int(c.limits.HistoryDepth)
		}
		return 0
	}
	if !unlimited(c.limits.MaxSamplesPerInstance) {
		return int(c.limits.MaxSamplesPerInstance)
	}
	return 0
}

func (c *Cache) removeOldest(ins *instance) {
	if len(ins.samples) == 0 {
		return
	}
	ins.samples = ins.samples[1:]
	c.totalN--
}

func (c *Cache) rejectOrDrop() error {
	if c.limits.Reliable {
		return dderr.New(dderr.OutOfResources, "rhc: resource limit reached")
	}
	return nil
}

func (c *Cache) armAutopurge(ins *instance, delay time.Duration) {
	if delay <= 0 || delay == time.Duration(1<<63-1) {
		return // infinite delay: never auto-purge
	}
	key := ins.key.String()
	ins.arm(delay, func(gen uint64) {
		c.mu.Lock()
		cur, ok := c.instances[key]
		if !ok || cur != ins || ins.purgeGen != gen {
			c.mu.Unlock()
			return // superseded or already gone
		}
		c.destroyInstance(key)
		c.mu.Unlock()
		c.hooks.NotifyChanged()
	})
}

func (c *Cache) destroyInstance(key string) {
	delete(c.instances, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Read copies matching samples, transitioning NOT_READ→READ and
// NEW→NOT_NEW on the instances touched, in per-instance creation order,
// up to max samples. Matching instance-then-sample masks are per spec.md
// §4.4's Read/Take contract.
func (c *Cache) Read(mask ReadTakeMask, max int) []*sample.Sample {
	return c.readOrTake(mask, max, false)
}

// Take is Read but removes matched samples, deleting an instance once its
// last sample is removed while NOT_ALIVE (spec.md §4.4 invariant).
func (c *Cache) Take(mask ReadTakeMask, max int) []*sample.Sample {
	return c.readOrTake(mask, max, true)
}

func (c *Cache) readOrTake(mask ReadTakeMask, max int, take bool) []*sample.Sample {
	c.mu.Lock()

	var out []*sample.Sample
	for _, key := range append([]string(nil), c.order...) {
		ins, ok := c.instances[key]
		if !ok {
			continue
		}
		remaining := ins.samples[:0:0]
		for _, s := range ins.samples {
			if (max > 0 && len(out) >= max) || !mask.matches(s, ins.view) {
				remaining = append(remaining, s)
				continue
			}
			cp := *s
			cp.SampleState = sample.Read
			cp.ViewState = ins.view
			out = append(out, &cp)
			// The instance transitions NEW→NOT_NEW the moment the first
			// sample of it is returned, so later samples of the same
			// instance returned within this same call already see NOT_NEW.
			ins.view = sample.NotNew
			if !take {
				s.SampleState = sample.Read
				remaining = append(remaining, s)
			} else {
				c.totalN--
			}
		}
		ins.samples = remaining
		if take && len(ins.samples) == 0 && ins.state != sample.Alive {
			ins.cancelPurge()
			c.destroyInstance(key)
		}
	}
	c.mu.Unlock()

	if len(out) > 0 {
		c.hooks.NotifyChanged()
	}
	return out
}

// InstanceCount reports the number of live instances, used by Statistics
// and builtin-topic mirroring.
func (c *Cache) InstanceCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.instances)
}

// SampleCount reports the number of buffered samples across all instances.
func (c *Cache) SampleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalN
}

// HasMatching reports whether any currently-buffered sample matches mask,
// used by ReadCondition.Triggered (spec.md §4.6).
func (c *Cache) HasMatching(mask ReadTakeMask) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.order {
		ins := c.instances[key]
		for _, s := range ins.samples {
			if mask.matches(s, ins.view) {
				return true
			}
		}
	}
	return false
}

// Matching returns copies of all currently-buffered samples matching mask,
// without removing or state-transitioning them. Used by QueryCondition to
// evaluate its predicate against candidate samples.
func (c *Cache) Matching(mask ReadTakeMask) []*sample.Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*sample.Sample
	for _, key := range c.order {
		ins := c.instances[key]
		for _, s := range ins.samples {
			if mask.matches(s, ins.view) {
				cp := *s
				cp.ViewState = ins.view
				out = append(out, &cp)
			}
		}
	}
	return out
}
