// Package stats implements the read-only counters from spec.md §2/§4.11:
// matched reader/writer counts, sample arrival/rejection counts, and
// length-over-time integrators for the reader/writer history caches,
// exposed both as a plain snapshot and as OpenTelemetry instruments.
//
// Grounded on the teacher's internal/storage/dolt/store.go: a package-level
// metrics struct of OTel instruments registered against the global
// delegating meter provider in an init-time helper, forwarding to the real
// SDK once one is installed, with a no-op provider beforehand.
package stats

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// meterName matches the teacher's convention of keying the meter to the
// owning package's import path.
const meterName = "github.com/nebula-dds/ddscore/internal/stats"

var instruments struct {
	participants metric.Int64UpDownCounter
	topics       metric.Int64UpDownCounter
	matched      metric.Int64UpDownCounter
	samplesIn    metric.Int64Counter
	rejected     metric.Int64Counter
	rhcDepth     metric.Int64Histogram
	whcUnacked   metric.Int64Histogram
}

func init() {
	m := otel.Meter(meterName)
	instruments.participants, _ = m.Int64UpDownCounter("ddscore.participants.count",
		metric.WithDescription("Currently live domain participants"),
		metric.WithUnit("{participant}"),
	)
	instruments.topics, _ = m.Int64UpDownCounter("ddscore.topics.count",
		metric.WithDescription("Currently registered topics"),
		metric.WithUnit("{topic}"),
	)
	instruments.matched, _ = m.Int64UpDownCounter("ddscore.matched.count",
		metric.WithDescription("Currently matched reader/writer pairs"),
		metric.WithUnit("{pair}"),
	)
	instruments.samplesIn, _ = m.Int64Counter("ddscore.samples.received",
		metric.WithDescription("Samples accepted into a reader history cache"),
		metric.WithUnit("{sample}"),
	)
	instruments.rejected, _ = m.Int64Counter("ddscore.samples.rejected",
		metric.WithDescription("Samples rejected for exceeding resource limits"),
		metric.WithUnit("{sample}"),
	)
	instruments.rhcDepth, _ = m.Int64Histogram("ddscore.rhc.depth",
		metric.WithDescription("Reader history cache sample count at time of observation"),
		metric.WithUnit("{sample}"),
	)
	instruments.whcUnacked, _ = m.Int64Histogram("ddscore.whc.unacked",
		metric.WithDescription("Writer history cache unacknowledged sample count"),
		metric.WithUnit("{sample}"),
	)
}

// Counter is one named value in a Snapshot, matching the name/value/kind
// array shape dds_statistics.c uses for its generic "statistics get" call
// (spec.md §11 supplement) instead of bespoke per-counter getters.
type Counter struct {
	Name  string
	Value int64
}

// Aggregator holds the live process-wide counters for one Domain. The zero
// value is ready to use; NewAggregator returns a pointer to one.
type Aggregator struct {
	participants atomic.Int64
	topics       atomic.Int64
	publishers   atomic.Int64
	subscribers  atomic.Int64
	writers      atomic.Int64
	readers      atomic.Int64
	matched      atomic.Int64
	samplesIn    atomic.Int64
	rejected     atomic.Int64
	sampleLost   atomic.Int64
}

func NewAggregator() *Aggregator { return &Aggregator{} }

func (a *Aggregator) IncParticipants() { a.participants.Add(1); instruments.participants.Add(context.Background(), 1) }
func (a *Aggregator) DecParticipants() { a.participants.Add(-1); instruments.participants.Add(context.Background(), -1) }

func (a *Aggregator) IncTopics() { a.topics.Add(1); instruments.topics.Add(context.Background(), 1) }
func (a *Aggregator) DecTopics() { a.topics.Add(-1); instruments.topics.Add(context.Background(), -1) }

func (a *Aggregator) IncPublishers()  { a.publishers.Add(1) }
func (a *Aggregator) DecPublishers()  { a.publishers.Add(-1) }
func (a *Aggregator) IncSubscribers() { a.subscribers.Add(1) }
func (a *Aggregator) DecSubscribers() { a.subscribers.Add(-1) }

func (a *Aggregator) IncWriters() { a.writers.Add(1) }
func (a *Aggregator) DecWriters() { a.writers.Add(-1) }
func (a *Aggregator) IncReaders() { a.readers.Add(1) }
func (a *Aggregator) DecReaders() { a.readers.Add(-1) }

func (a *Aggregator) IncMatched() { a.matched.Add(1); instruments.matched.Add(context.Background(), 1) }
func (a *Aggregator) DecMatched() { a.matched.Add(-1); instruments.matched.Add(context.Background(), -1) }

func (a *Aggregator) RecordSampleAccepted() {
	a.samplesIn.Add(1)
	instruments.samplesIn.Add(context.Background(), 1)
}

func (a *Aggregator) RecordSampleRejected() {
	a.rejected.Add(1)
	instruments.rejected.Add(context.Background(), 1)
}

func (a *Aggregator) RecordSampleLost() { a.sampleLost.Add(1) }

// RecordRHCDepth observes a reader history cache's current sample count,
// feeding the length-over-time integrator spec.md §2 names.
func (a *Aggregator) RecordRHCDepth(n int64) {
	instruments.rhcDepth.Record(context.Background(), n)
}

// RecordWHCUnacked observes a writer history cache's unacknowledged count.
func (a *Aggregator) RecordWHCUnacked(n int64) {
	instruments.whcUnacked.Record(context.Background(), n)
}

// Snapshot returns a point-in-time copy of every counter.
func (a *Aggregator) Snapshot() []Counter {
	return []Counter{
		{"participants", a.participants.Load()},
		{"topics", a.topics.Load()},
		{"publishers", a.publishers.Load()},
		{"subscribers", a.subscribers.Load()},
		{"writers", a.writers.Load()},
		{"readers", a.readers.Load()},
		{"matched", a.matched.Load()},
		{"samples_received", a.samplesIn.Load()},
		{"samples_rejected", a.rejected.Load()},
		{"sample_lost_events", a.sampleLost.Load()},
	}
}
