package entity

import (
	"sync"

	"github.com/nebula-dds/ddscore/internal/guid"
	"github.com/nebula-dds/ddscore/internal/qos"
	"github.com/nebula-dds/ddscore/internal/whc"
)

// Publisher owns the data writers created under it (spec.md §4.2's
// create_writer operation).
type Publisher struct {
	Base

	participant *Participant

	mu      sync.Mutex
	writers map[*DataWriter]struct{}
}

func (p *Publisher) Participant() *Participant { return p.participant }

func (p *Publisher) domain() *Domain { return p.participant.domain }

func (p *Publisher) snapshotWriters() []*DataWriter {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*DataWriter, 0, len(p.writers))
	for w := range p.writers {
		out = append(out, w)
	}
	return out
}

// CreateWriter constructs a data writer publishing to topic, wires its
// writer history cache per the merged QoS, and performs initial QoS
// matching against the topic's already-attached readers (spec.md §4.3
// "match_qos" and §4.2 "create_writer").
func (p *Publisher) CreateWriter(topic *Topic, q qos.QoS, hooks Hooks) (*DataWriter, error) {
	merged := qos.Merge(qos.Default(), q)
	if err := qos.CheckConsistency(merged); err != nil {
		return nil, wrapInconsistent("create_writer", err)
	}

	part := p.participant
	g := guid.New(part.GUID().Prefix(), guid.KindWriter, part.nextEntityID())
	w := &DataWriter{
		publisher: p,
		topic:     topic,
		matched:   make(map[*DataReader]struct{}),
	}
	w.cache = whc.New(whcLimitsFromQoS(merged))
	w.Base = newBase("writer", g, p, merged, autoenable(p.QoS()) && autoenable(part.QoS()), hooks)
	h := part.domain.handles.Insert(w)
	w.bindHandle(h)

	p.mu.Lock()
	p.writers[w] = struct{}{}
	p.mu.Unlock()
	p.Base.addChild(p, w)
	topic.addWriter(w)
	part.domain.stats.IncWriters()

	for _, r := range topic.snapshotReaders() {
		matchEndpoints(w, r)
	}
	return w, nil
}

func whcLimitsFromQoS(q qos.QoS) whc.Limits {
	return whc.Limits{
		MaxSamples:      q.ResourceLimitsMaxSamples,
		Reliable:        q.ReliabilityKind == qos.Reliable,
		MaxBlockingTime: nsToDuration(q.MaxBlockingTimeNs),
		Lifespan:        nsToDuration(q.LifespanDurationNs),
	}
}
