package entity

import (
	"sync"

	"github.com/nebula-dds/ddscore/internal/guid"
	"github.com/nebula-dds/ddscore/internal/qos"
	"github.com/nebula-dds/ddscore/internal/rhc"
)

// Subscriber owns the data readers created under it (spec.md §4.2's
// create_reader operation).
type Subscriber struct {
	Base

	participant *Participant

	mu      sync.Mutex
	readers map[*DataReader]struct{}
}

func (s *Subscriber) Participant() *Participant { return s.participant }

func (s *Subscriber) domain() *Domain { return s.participant.domain }

func (s *Subscriber) snapshotReaders() []*DataReader {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*DataReader, 0, len(s.readers))
	for r := range s.readers {
		out = append(out, r)
	}
	return out
}

// CreateReader constructs a data reader subscribing to topic, wires its
// reader history cache per the merged QoS, and performs initial QoS
// matching against the topic's already-attached writers.
func (s *Subscriber) CreateReader(topic *Topic, q qos.QoS, hooks Hooks) (*DataReader, error) {
	merged := qos.Merge(qos.Default(), q)
	if err := qos.CheckConsistency(merged); err != nil {
		return nil, wrapInconsistent("create_reader", err)
	}

	part := s.participant
	g := guid.New(part.GUID().Prefix(), guid.KindReader, part.nextEntityID())
	r := &DataReader{
		subscriber: s,
		topic:      topic,
		matched:    make(map[*DataWriter]struct{}),
	}
	r.cache = rhc.New(rhcLimitsFromQoS(merged), r)
	r.Base = newBase("reader", g, s, merged, autoenable(s.QoS()) && autoenable(part.QoS()), hooks)
	h := part.domain.handles.Insert(r)
	r.bindHandle(h)

	s.mu.Lock()
	s.readers[r] = struct{}{}
	s.mu.Unlock()
	s.Base.addChild(s, r)
	topic.addReader(r)
	part.domain.stats.IncReaders()

	for _, w := range topic.snapshotWriters() {
		matchEndpoints(w, r)
	}
	return r, nil
}

func rhcLimitsFromQoS(q qos.QoS) rhc.Limits {
	return rhc.Limits{
		HistoryKind:            q.HistoryKind,
		HistoryDepth:           q.HistoryDepth,
		MaxInstances:           q.ResourceLimitsMaxInstances,
		MaxSamples:             q.ResourceLimitsMaxSamples,
		MaxSamplesPerInstance:  q.ResourceLimitsMaxSamplesPerInstance,
		Reliable:               q.ReliabilityKind == qos.Reliable,
		AutopurgeNoWriterDelay: nsToDuration(q.AutopurgeNoWriterSamplesDelayNs),
		AutopurgeDisposedDelay: nsToDuration(q.AutopurgeDisposedSamplesDelayNs),
	}
}
