package entity

import (
	"fmt"
	"sync"

	"github.com/nebula-dds/ddscore/internal/dderr"
	"github.com/nebula-dds/ddscore/internal/guid"
	"github.com/nebula-dds/ddscore/internal/qos"
	"github.com/nebula-dds/ddscore/internal/sample"
)

// TypeSupport is the minimal collaborator interface a topic's type
// descriptor must satisfy (spec.md §3 "Topic"): key extraction and a
// stable name. internal/typeregistry provides concrete implementations;
// defined here, not imported from there, to avoid entity depending
// downward on the serialization layer.
type TypeSupport interface {
	TypeName() string
	ExtractKey(payload []byte) (sample.Key, error)
}

// Topic holds a name, its (immutable once registered) type descriptor, and
// registered QoS, plus the writers/readers matching against it so
// create_writer/create_reader can run QoS matching at construction time.
type Topic struct {
	Base

	participant *Participant
	name        string
	typeSupport TypeSupport

	mu      sync.Mutex
	writers map[*DataWriter]struct{}
	readers map[*DataReader]struct{}
}

func (t *Topic) Name() string { return t.name }

func (t *Topic) TypeSupport() TypeSupport { return t.typeSupport }

func (t *Topic) Participant() *Participant { return t.participant }

// CreateTopic registers name under this participant, or returns the
// existing Topic if name is already registered with the same type name
// (only type names are compared) — spec.md §3's "once registered, the type descriptor for a
// given (domain, topic-name) is immutable" invariant.
func (p *Participant) CreateTopic(name string, ts TypeSupport, q qos.QoS, hooks Hooks) (*Topic, error) {
	if err := qos.CheckConsistency(q); err != nil {
		return nil, wrapInconsistent("create_topic", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.topics[name]; ok {
		if existing.typeSupport.TypeName() != ts.TypeName() {
			return nil, fmt.Errorf("entity: create_topic %q: %w",
				name, dderr.New(dderr.InconsistentPolicy, "topic %q already registered with type %q", name, existing.typeSupport.TypeName()))
		}
		return existing, nil
	}

	// p.mu is already held, so bump the counter directly; nextEntityID
	// would lock it again.
	p.entitySeq++
	g := guid.New(p.GUID().Prefix(), guid.KindTopic, p.entitySeq)
	topic := &Topic{
		participant: p,
		name:        name,
		typeSupport: ts,
		writers:     make(map[*DataWriter]struct{}),
		readers:     make(map[*DataReader]struct{}),
	}
	topic.Base = newBase("topic", g, p, q, autoenable(p.QoS()), hooks)
	h := p.domain.handles.Insert(topic)
	topic.bindHandle(h)

	p.topics[name] = topic
	p.Base.addChild(p, topic)
	p.domain.stats.IncTopics()
	return topic, nil
}

func (t *Topic) addWriter(w *DataWriter) {
	t.mu.Lock()
	t.writers[w] = struct{}{}
	t.mu.Unlock()
}

func (t *Topic) removeWriter(w *DataWriter) {
	t.mu.Lock()
	delete(t.writers, w)
	t.mu.Unlock()
}

func (t *Topic) addReader(r *DataReader) {
	t.mu.Lock()
	t.readers[r] = struct{}{}
	t.mu.Unlock()
}

func (t *Topic) removeReader(r *DataReader) {
	t.mu.Lock()
	delete(t.readers, r)
	t.mu.Unlock()
}

func (t *Topic) snapshotWriters() []*DataWriter {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*DataWriter, 0, len(t.writers))
	for w := range t.writers {
		out = append(out, w)
	}
	return out
}

func (t *Topic) snapshotReaders() []*DataReader {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*DataReader, 0, len(t.readers))
	for r := range t.readers {
		out = append(out, r)
	}
	return out
}
