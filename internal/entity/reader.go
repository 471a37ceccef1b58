package entity

import (
	"sync"
	"time"

	"github.com/nebula-dds/ddscore/internal/rhc"
	"github.com/nebula-dds/ddscore/internal/sample"
	"github.com/nebula-dds/ddscore/internal/status"
)

// DataReader subscribes to samples from matched writers on its topic,
// backed by a reader history cache (spec.md §4.4). It implements
// rhc.Hooks so the cache can notify this entity's conditions and statuses
// without rhc importing the condition/listener packages.
type DataReader struct {
	Base

	subscriber *Subscriber
	topic      *Topic
	cache      *rhc.Cache

	mu      sync.Mutex
	matched map[*DataWriter]struct{}

	changeHooks []func()
}

func (r *DataReader) Topic() *Topic { return r.topic }

// NotifyChanged implements rhc.Hooks: invoked after the cache lock has been
// released whenever a mutation could flip a condition's trigger value. Forwards to
// whatever observers (waitset conditions) have attached themselves.
func (r *DataReader) NotifyChanged() {
	r.mu.Lock()
	hooks := append([]func(){}, r.changeHooks...)
	r.mu.Unlock()
	for _, h := range hooks {
		h()
	}
}

// RaiseStatus implements rhc.Hooks. DATA_AVAILABLE also recomputes
// DATA_ON_READERS on the owning subscriber, per spec.md §4.4 step 5.
func (r *DataReader) RaiseStatus(bit status.Mask) {
	r.raiseStatus(r, bit)
	if bit == status.DataAvailable {
		r.subscriber.raiseStatus(r.subscriber, status.DataOnReaders)
	}
}

// OnChange registers a callback invoked after every cache mutation, used
// by condition.ReadCondition/QueryCondition to re-evaluate their trigger
// value per spec.md §4.6.
func (r *DataReader) OnChange(f func()) {
	r.mu.Lock()
	r.changeHooks = append(r.changeHooks, f)
	r.mu.Unlock()
}

// Read implements spec.md §4.4's read operation: non-destructive, filtered
// by the three independent state masks, up to max samples (0 means
// unbounded).
func (r *DataReader) Read(mask rhc.ReadTakeMask, max int) []*sample.Sample {
	return r.cache.Read(mask, max)
}

// Take implements spec.md §4.4's take operation: like Read but removes the
// matched samples from the cache.
func (r *DataReader) Take(mask rhc.ReadTakeMask, max int) []*sample.Sample {
	return r.cache.Take(mask, max)
}

// HasMatching reports whether any currently-buffered sample matches mask,
// without consuming it — the collaborator surface internal/condition's
// ReadCondition needs without importing internal/rhc's Cache directly.
func (r *DataReader) HasMatching(mask rhc.ReadTakeMask) bool {
	return r.cache.HasMatching(mask)
}

// Matching returns copies of all currently-buffered samples matching mask,
// used by internal/condition's QueryCondition to evaluate its predicate.
func (r *DataReader) Matching(mask rhc.ReadTakeMask) []*sample.Sample {
	return r.cache.Matching(mask)
}

// ingest delivers one packet from a matched writer into the reader history
// cache, implementing the receive side of spec.md §4.10's Transport
// boundary.
func (r *DataReader) ingest(p Packet) {
	_ = r.cache.Store(p.Key, p.Payload, p.WriterGUID, p.SeqNum, p.Timestamp, time.Now().UnixNano(), p.Status)
}

// Ingest is ingest's exported counterpart, for a Transport adapter outside
// this package (transport/loopback, transport/natsbus) that received a
// packet this reader did not get via the writer's own in-process delivery.
func (r *DataReader) Ingest(p Packet) { r.ingest(p) }

func (r *DataReader) addMatch(w *DataWriter) {
	r.mu.Lock()
	r.matched[w] = struct{}{}
	r.mu.Unlock()
	r.raiseStatus(r, status.SubscriptionMatched)
}

func (r *DataReader) removeMatch(w *DataWriter) {
	r.mu.Lock()
	delete(r.matched, w)
	r.mu.Unlock()
}

func (r *DataReader) snapshotMatched() []*DataWriter {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*DataWriter, 0, len(r.matched))
	for w := range r.matched {
		out = append(out, w)
	}
	return out
}

func (r *DataReader) close() {
	r.topic.removeReader(r)
	r.subscriber.mu.Lock()
	delete(r.subscriber.readers, r)
	r.subscriber.mu.Unlock()
	r.subscriber.Base.removeChild(r.subscriber, r)
}
