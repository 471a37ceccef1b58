// Package whc implements the writer history cache from spec.md §4.5: a
// sequence-ordered sample buffer retained until every matched reliable
// reader has acknowledged it, its lifespan expires, or the writer is
// deleted.
//
// Grounded on the teacher's internal/deletions package (an append-only,
// retention-pruned record log with deterministic GC) and
// internal/storage/batch.go's admission-options shape, generalized from a
// persisted manifest to an in-memory, condition-variable-gated buffer.
package whc

import (
	"context"
	"sync"
	"time"

	"github.com/nebula-dds/ddscore/internal/dderr"
	"github.com/nebula-dds/ddscore/internal/guid"
	"github.com/nebula-dds/ddscore/internal/qos"
	"github.com/nebula-dds/ddscore/internal/sample"
)

// Limits mirrors the subset of QoS that governs writer-cache admission.
type Limits struct {
	MaxSamples      int32
	Reliable        bool
	MaxBlockingTime time.Duration // reliability.max_blocking_time
	Lifespan        time.Duration // lifespan.duration; 0 or unlimited means never expires
}

func unlimited(n int32) bool { return n == qos.Unlimited }

func infiniteDuration(d time.Duration) bool { return d == time.Duration(1<<63-1) }

// Sample is one writer-cache entry: an assigned sequence number plus the
// application payload or dispose/unregister sentinel.
type Sample struct {
	SeqNum            uint64
	InstanceKey       sample.Key
	Payload           []byte
	SourceTimestampNs int64
	ValidData         bool
	Status            sample.StatusInfo

	// deadline is the wall-clock time at which this sample becomes
	// releasable regardless of reader acks (lifespan QoS); zero means no
	// lifespan limit applies.
	deadline time.Time
}

type ackState struct {
	lastAcked uint64
}

// Cache is the writer history cache for a single data writer. Zero value is
// not usable; construct with New.
type Cache struct {
	mu     sync.Mutex
	cond   *sync.Cond
	limits Limits

	nextSeq   uint64
	samples   []*Sample
	readers   map[guid.GUID]*ackState // matched reliable readers only
	instances map[string]sample.Key   // instances currently registered by this writer
	closed    bool
}

func New(limits Limits) *Cache {
	c := &Cache{
		limits:    limits,
		nextSeq:   1,
		readers:   make(map[guid.GUID]*ackState),
		instances: make(map[string]sample.Key),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// MatchReader registers a newly matched reader. Only reliable readers
// participate in retention; best-effort readers never hold a sample back.
func (c *Cache) MatchReader(g guid.GUID, reliable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !reliable {
		return
	}
	if _, ok := c.readers[g]; !ok {
		c.readers[g] = &ackState{}
	}
}

// UnmatchReader drops a reader from the retention set, which may release
// samples it alone was holding back.
func (c *Cache) UnmatchReader(g guid.GUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.readers, g)
	c.releaseLocked()
	c.cond.Broadcast()
}

// Ack records that reader g has acknowledged up through seq, releasing any
// now-fully-acknowledged samples and waking blocked writers/waiters.
func (c *Cache) Ack(g guid.GUID, seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.readers[g]
	if !ok {
		return
	}
	if seq > st.lastAcked {
		st.lastAcked = seq
	}
	c.releaseLocked()
	c.cond.Broadcast()
}

// Write assigns the next sequence number, constructs a sample, and appends
// it to the cache per spec.md §4.5's write procedure. Blocks (subject to
// ctx and reliability.max_blocking_time) when the cache is at its resource
// limit; returns OutOfResources immediately if max_blocking_time is zero.
func (c *Cache) Write(ctx context.Context, key sample.Key, payload []byte, sourceTS int64) (uint64, error) {
	return c.write(ctx, key, payload, sourceTS, sample.StatusInfo{})
}

// Dispose injects a dispose sentinel sample for key, consuming a sequence
// number and participating in retention like any other sample.
func (c *Cache) Dispose(ctx context.Context, key sample.Key, sourceTS int64) (uint64, error) {
	return c.write(ctx, key, nil, sourceTS, sample.StatusInfo{Dispose: true})
}

// UnregisterInstance injects an unregister sentinel and drops key from the
// writer's live-instance set.
func (c *Cache) UnregisterInstance(ctx context.Context, key sample.Key, sourceTS int64) (uint64, error) {
	seq, err := c.write(ctx, key, nil, sourceTS, sample.StatusInfo{Unregister: true})
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	delete(c.instances, key.String())
	c.mu.Unlock()
	return seq, nil
}

func (c *Cache) write(ctx context.Context, key sample.Key, payload []byte, sourceTS int64, st sample.StatusInfo) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, dderr.Sentinel(dderr.AlreadyDeleted)
	}

	bounded := false
	for !unlimited(c.limits.MaxSamples) && len(c.samples) >= int(c.limits.MaxSamples) {
		c.releaseLocked()
		if len(c.samples) < int(c.limits.MaxSamples) {
			break
		}
		if !c.limits.Reliable || c.limits.MaxBlockingTime == 0 {
			return 0, dderr.New(dderr.OutOfResources, "whc: resource limit reached")
		}
		if !bounded {
			bounded = true
			if ctx == nil {
				ctx = context.Background()
			}
			if !infiniteDuration(c.limits.MaxBlockingTime) {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, c.limits.MaxBlockingTime)
				defer cancel()
			}
		}
		if err := c.waitForSpace(ctx); err != nil {
			return 0, err
		}
		if c.closed {
			return 0, dderr.Sentinel(dderr.AlreadyDeleted)
		}
	}

	seq := c.nextSeq
	c.nextSeq++

	s := &Sample{
		SeqNum:            seq,
		InstanceKey:       key,
		Payload:           payload,
		SourceTimestampNs: sourceTS,
		ValidData:         !st.Dispose && !st.Unregister,
		Status:            st,
	}
	c.samples = append(c.samples, s)
	if s.ValidData {
		c.instances[key.String()] = key
	}

	if !infiniteDuration(c.limits.Lifespan) && c.limits.Lifespan > 0 {
		s.deadline = time.Now().Add(c.limits.Lifespan)
		time.AfterFunc(c.limits.Lifespan, func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.releaseLocked()
			c.cond.Broadcast()
		})
	}

	c.cond.Broadcast()
	return seq, nil
}

// waitForSpace blocks on the cache condvar until either the resource limit
// clears or ctx is done, per the deadline-or-trigger suspension contract in
// spec.md §5.
func (c *Cache) waitForSpace(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return dderr.New(dderr.Timeout, "whc: write blocked on resource limit: %v", err)
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.cond.Broadcast()
			c.mu.Unlock()
		case <-done:
		}
	}()
	c.cond.Wait()
	if err := ctx.Err(); err != nil {
		return dderr.New(dderr.Timeout, "whc: write blocked on resource limit: %v", err)
	}
	return nil
}

// releaseLocked pops released samples (lock held) from the front: a sample
// is releasable once every matched reliable reader has acknowledged it, the
// writer is closed, or — checked lazily here, not just by the lifespan
// timer — its lifespan has elapsed.
func (c *Cache) releaseLocked() {
	i := 0
	for i < len(c.samples) {
		if !c.releasable(c.samples[i]) {
			break
		}
		i++
	}
	if i > 0 {
		c.samples = c.samples[i:]
	}
}

func (c *Cache) releasable(s *Sample) bool {
	if c.closed {
		return true
	}
	if !s.deadline.IsZero() && !time.Now().Before(s.deadline) {
		return true
	}
	for _, st := range c.readers {
		if st.lastAcked < s.SeqNum {
			return false
		}
	}
	return true
}

// WaitForAcknowledgments blocks until every matched reliable reader has
// acknowledged up through seq, or ctx is done (TIMEOUT), per spec.md §5's
// wait_for_acknowledgments suspension point.
func (c *Cache) WaitForAcknowledgments(ctx context.Context, seq uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.allAcked(seq) {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.cond.Broadcast()
			c.mu.Unlock()
		case <-done:
		}
	}()
	for !c.allAcked(seq) {
		if err := ctx.Err(); err != nil {
			return dderr.New(dderr.Timeout, "whc: wait_for_acknowledgments: %v", err)
		}
		c.cond.Wait()
	}
	return nil
}

func (c *Cache) allAcked(seq uint64) bool {
	for _, st := range c.readers {
		if st.lastAcked < seq {
			return false
		}
	}
	return true
}

// Close marks the writer deleted, releasing all retained samples and
// waking blocked callers, implementing writer-data-lifecycle from
// spec.md §4.5: if autodispose is true, a dispose sentinel precedes the
// unregister sentinel for each still-registered instance.
func (c *Cache) Close(autodispose bool) {
	c.mu.Lock()
	keys := make([]sample.Key, 0, len(c.instances))
	for _, k := range c.instances {
		keys = append(keys, k)
	}
	c.mu.Unlock()

	for _, k := range keys {
		if autodispose {
			_, _ = c.write(context.Background(), k, nil, 0, sample.StatusInfo{Dispose: true})
		}
		_, _ = c.write(context.Background(), k, nil, 0, sample.StatusInfo{Unregister: true})
	}

	c.mu.Lock()
	c.closed = true
	c.instances = make(map[string]sample.Key)
	c.samples = nil
	c.cond.Broadcast()
	c.mu.Unlock()
}

// SampleCount reports the number of currently retained (unreleased)
// samples, used by Statistics.
func (c *Cache) SampleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

// LastSeqNum reports the most recently assigned sequence number (0 if
// nothing has been written yet).
func (c *Cache) LastSeqNum() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextSeq - 1
}
