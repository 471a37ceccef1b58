package entity

import (
	"sync"

	"github.com/nebula-dds/ddscore/internal/guid"
	"github.com/nebula-dds/ddscore/internal/qos"
)

// Participant owns a topic registry and the publishers/subscribers created
// under it (spec.md §4.2's create_topic/create_publisher/create_subscriber
// operations).
type Participant struct {
	Base

	domain *Domain

	mu          sync.Mutex
	topics      map[string]*Topic
	publishers  map[*Publisher]struct{}
	subscribers map[*Subscriber]struct{}
	entitySeq   uint32
}

// nextEntityID hands out a per-participant-scoped counter used as the GUID
// entity-id for topics/publishers/subscribers/writers/readers it owns.
func (p *Participant) nextEntityID() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entitySeq++
	return p.entitySeq
}

func (p *Participant) Domain() *Domain { return p.domain }

func (p *Participant) snapshotPublishers() []*Publisher {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Publisher, 0, len(p.publishers))
	for pub := range p.publishers {
		out = append(out, pub)
	}
	return out
}

func (p *Participant) snapshotSubscribers() []*Subscriber {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Subscriber, 0, len(p.subscribers))
	for sub := range p.subscribers {
		out = append(out, sub)
	}
	return out
}

func (p *Participant) snapshotTopics() []*Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Topic, 0, len(p.topics))
	for _, t := range p.topics {
		out = append(out, t)
	}
	return out
}

// CreatePublisher constructs a publisher under this participant per
// spec.md §4.2.
func (p *Participant) CreatePublisher(q qos.QoS, hooks Hooks) (*Publisher, error) {
	if err := qos.CheckConsistency(q); err != nil {
		return nil, wrapInconsistent("create_publisher", err)
	}
	g := guid.New(p.GUID().Prefix(), guid.KindPublisher, p.nextEntityID())
	pub := &Publisher{participant: p, writers: make(map[*DataWriter]struct{})}
	pub.Base = newBase("publisher", g, p, q, autoenable(p.QoS()), hooks)
	h := p.domain.handles.Insert(pub)
	pub.bindHandle(h)

	p.mu.Lock()
	if p.publishers == nil {
		p.publishers = make(map[*Publisher]struct{})
	}
	p.publishers[pub] = struct{}{}
	p.mu.Unlock()
	p.Base.addChild(p, pub)
	p.domain.stats.IncPublishers()
	return pub, nil
}

// CreateSubscriber constructs a subscriber under this participant per
// spec.md §4.2.
func (p *Participant) CreateSubscriber(q qos.QoS, hooks Hooks) (*Subscriber, error) {
	if err := qos.CheckConsistency(q); err != nil {
		return nil, wrapInconsistent("create_subscriber", err)
	}
	g := guid.New(p.GUID().Prefix(), guid.KindSubscriber, p.nextEntityID())
	sub := &Subscriber{participant: p, readers: make(map[*DataReader]struct{})}
	sub.Base = newBase("subscriber", g, p, q, autoenable(p.QoS()), hooks)
	h := p.domain.handles.Insert(sub)
	sub.bindHandle(h)

	p.mu.Lock()
	if p.subscribers == nil {
		p.subscribers = make(map[*Subscriber]struct{})
	}
	p.subscribers[sub] = struct{}{}
	p.mu.Unlock()
	p.Base.addChild(p, sub)
	p.domain.stats.IncSubscribers()
	return sub, nil
}
