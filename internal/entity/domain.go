package entity

import (
	"fmt"
	"sync"

	"github.com/nebula-dds/ddscore/internal/dderr"
	"github.com/nebula-dds/ddscore/internal/dlog"
	"github.com/nebula-dds/ddscore/internal/guid"
	"github.com/nebula-dds/ddscore/internal/handle"
	"github.com/nebula-dds/ddscore/internal/qos"
	"github.com/nebula-dds/ddscore/internal/stats"
)

// Domain is the [NEW] root entity SPEC_FULL.md §3 adds: a process may host
// several domains, each owning its own handle-table partition, participant
// set, log sink, and statistics aggregator. Participants sharing a
// domain_id share a Domain record, created lazily on first participant.
type Domain struct {
	Base

	id     uint32
	handles *handle.Table
	log    *dlog.Sink
	stats  *stats.Aggregator

	mu           sync.Mutex
	participants map[handle.Handle]*Participant
}

var (
	registryMu sync.Mutex
	registry   = map[uint32]*Domain{}
)

// GetOrCreateDomain returns the process-wide Domain record for domainID,
// creating it on first use.
func GetOrCreateDomain(domainID uint32, hooks Hooks) *Domain {
	registryMu.Lock()
	defer registryMu.Unlock()
	if d, ok := registry[domainID]; ok {
		return d
	}
	d := &Domain{
		id:           domainID,
		handles:      handle.New(),
		log:          dlog.Default,
		stats:        stats.NewAggregator(),
		participants: make(map[handle.Handle]*Participant),
	}
	d.Base = newBase("domain", guid.GUID{}, nil, qos.Default(), true, hooks)
	registry[domainID] = d
	return d
}

// LookupDomain returns the Domain for domainID if it has been created.
func LookupDomain(domainID uint32) (*Domain, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	d, ok := registry[domainID]
	return d, ok
}

// ResetRegistry tears down every known domain; intended for test isolation.
func ResetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = map[uint32]*Domain{}
}

func (d *Domain) ID() uint32 { return d.id }

// Resolve translates an opaque handle back into the Entity it names,
// per spec.md §6's "operations accept opaque handle integers and never
// raw pointers to entities" — pkg/ddsc is the one caller outside this
// package that needs the reverse direction, to turn an application's
// handle argument into a receiver for the next operation.
func (d *Domain) Resolve(h handle.Handle) (Entity, error) {
	e, err := d.handles.Lookup(h)
	if err != nil {
		return nil, err
	}
	return e.(Entity), nil
}

func (d *Domain) Log() *dlog.Sink { return d.log }

func (d *Domain) Stats() *stats.Aggregator { return d.stats }

// CreateParticipant constructs a participant under this domain per
// spec.md §4.2's create_participant operation.
func (d *Domain) CreateParticipant(q qos.QoS, hooks Hooks) (*Participant, error) {
	if err := qos.CheckConsistency(q); err != nil {
		return nil, fmt.Errorf("entity: create_participant: %w", dderr.Wrap(dderr.InconsistentPolicy, err))
	}
	d.mu.Lock()
	prefix := guid.NewParticipantPrefix()
	d.mu.Unlock()

	g := guid.New(prefix, guid.KindParticipant, 0)
	enabled := autoenable(d.QoS())
	p := &Participant{
		domain: d,
		topics: make(map[string]*Topic),
	}
	p.Base = newBase("participant", g, d, q, enabled, hooks)
	h := d.handles.Insert(p)
	p.bindHandle(h)

	d.mu.Lock()
	d.participants[h] = p
	d.mu.Unlock()
	d.Base.addChild(d, p)
	d.stats.IncParticipants()
	return p, nil
}

// DeleteParticipant performs the recursive post-order delete from
// spec.md §4.2: safe to call twice (no-op if already deleted).
func (d *Domain) DeleteParticipant(p *Participant) error {
	d.mu.Lock()
	_, live := d.participants[p.Handle()]
	d.mu.Unlock()
	if !live {
		return nil
	}
	if err := deleteSubtree(p); err != nil {
		return err
	}
	d.mu.Lock()
	delete(d.participants, p.Handle())
	d.mu.Unlock()
	d.Base.removeChild(d, p)
	d.stats.DecParticipants()
	return d.handles.Delete(p.Handle())
}

func autoenable(q qos.QoS) bool {
	return q.AutoenableCreatedEntities
}
