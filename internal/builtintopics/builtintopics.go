// Package builtintopics mirrors the entity graph as DCPSParticipant,
// DCPSTopic, DCPSPublication, and DCPSSubscription samples (spec.md §4.8):
// creating a participant/topic/writer/reader publishes the corresponding
// sample, deleting it disposes the instance, keyed by GUID.
//
// Grounded on the teacher's internal/registry/registry.go, which turns
// daemon-side state (agent beads) into a discovery-facing, read-only view
// assembled from creation events — generalized here from a one-shot RPC
// poll to an always-current mirror driven by entity.Hooks.ChildCreated/
// ChildDeleted.
package builtintopics

import (
	"encoding/json"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nebula-dds/ddscore/internal/entity"
	"github.com/nebula-dds/ddscore/internal/guid"
	"github.com/nebula-dds/ddscore/internal/qos"
	"github.com/nebula-dds/ddscore/internal/rhc"
	"github.com/nebula-dds/ddscore/internal/sample"
	"github.com/nebula-dds/ddscore/internal/status"
)

// recentCapacity bounds the direct by-GUID lookup index independently of
// any one builtin topic's own resource limits.
const recentCapacity = 4096

// ParticipantRecord is the DCPSParticipant sample shape.
type ParticipantRecord struct {
	GUID     guid.GUID `json:"guid"`
	DomainID uint32    `json:"domain_id"`
}

// TopicRecord is the DCPSTopic sample shape.
type TopicRecord struct {
	GUID            guid.GUID `json:"guid"`
	ParticipantGUID guid.GUID `json:"participant_guid"`
	Name            string    `json:"name"`
	TypeName        string    `json:"type_name"`
}

// PublicationRecord is the DCPSPublication sample shape.
type PublicationRecord struct {
	GUID            guid.GUID          `json:"guid"`
	ParticipantGUID guid.GUID          `json:"participant_guid"`
	TopicName       string             `json:"topic_name"`
	TypeName        string             `json:"type_name"`
	Reliability     qos.ReliabilityKind `json:"reliability"`
}

// SubscriptionRecord is the DCPSSubscription sample shape.
type SubscriptionRecord struct {
	GUID            guid.GUID          `json:"guid"`
	ParticipantGUID guid.GUID          `json:"participant_guid"`
	TopicName       string             `json:"topic_name"`
	TypeName        string             `json:"type_name"`
	Reliability     qos.ReliabilityKind `json:"reliability"`
}

// Mirror implements entity.Hooks purely for its ChildCreated/ChildDeleted
// side; DeliverStatus/StatusChanged are no-ops here since listener
// substitution is listener.Manager's concern. pkg/ddsc combines both via a
// fan-out Hooks implementation before passing hooks into entity
// constructors.
type Mirror struct {
	participants  *rhc.Cache
	topics        *rhc.Cache
	publications  *rhc.Cache
	subscriptions *rhc.Cache

	recentParticipants  *lru.Cache[guid.GUID, ParticipantRecord]
	recentTopics        *lru.Cache[guid.GUID, TopicRecord]
	recentPublications  *lru.Cache[guid.GUID, PublicationRecord]
	recentSubscriptions *lru.Cache[guid.GUID, SubscriptionRecord]

	seq atomic.Uint64
}

// mirrorLimits bounds each builtin-topic cache: one sample per instance
// (only the latest state matters for discovery), best-effort, unbounded
// instance count.
var mirrorLimits = rhc.Limits{
	HistoryKind:  qos.KeepLast,
	HistoryDepth: 1,
	MaxInstances: qos.Unlimited,
}

// New constructs an empty Mirror. Panics only on an lru.New capacity
// misconfiguration, which recentCapacity being a positive constant rules
// out.
func New() *Mirror {
	m := &Mirror{
		participants:  rhc.New(mirrorLimits, nil),
		topics:        rhc.New(mirrorLimits, nil),
		publications:  rhc.New(mirrorLimits, nil),
		subscriptions: rhc.New(mirrorLimits, nil),
	}
	m.recentParticipants, _ = lru.New[guid.GUID, ParticipantRecord](recentCapacity)
	m.recentTopics, _ = lru.New[guid.GUID, TopicRecord](recentCapacity)
	m.recentPublications, _ = lru.New[guid.GUID, PublicationRecord](recentCapacity)
	m.recentSubscriptions, _ = lru.New[guid.GUID, SubscriptionRecord](recentCapacity)
	return m
}

func (m *Mirror) nextSeq() uint64 { return m.seq.Add(1) }

// ChildCreated implements entity.Hooks: publishes the builtin sample for
// newly created participants, topics, writers, and readers. Other child
// kinds (publisher, subscriber, domain) have no builtin-topic counterpart.
func (m *Mirror) ChildCreated(parent, child entity.Entity) {
	now := time.Now().UnixNano()
	switch c := child.(type) {
	case *entity.Participant:
		rec := ParticipantRecord{GUID: c.GUID(), DomainID: c.Domain().ID()}
		m.recentParticipants.Add(rec.GUID, rec)
		m.publish(m.participants, rec.GUID, rec, now)
	case *entity.Topic:
		rec := TopicRecord{
			GUID:            c.GUID(),
			ParticipantGUID: parentGUID(c.Parent()),
			Name:            c.Name(),
			TypeName:        c.TypeSupport().TypeName(),
		}
		m.recentTopics.Add(rec.GUID, rec)
		m.publish(m.topics, rec.GUID, rec, now)
	case *entity.DataWriter:
		pub, _ := c.Parent().(*entity.Publisher)
		var partGUID guid.GUID
		if pub != nil {
			partGUID = pub.Participant().GUID()
		}
		rec := PublicationRecord{
			GUID:            c.GUID(),
			ParticipantGUID: partGUID,
			TopicName:       c.Topic().Name(),
			TypeName:        c.Topic().TypeSupport().TypeName(),
			Reliability:     c.QoS().ReliabilityKind,
		}
		m.recentPublications.Add(rec.GUID, rec)
		m.publish(m.publications, rec.GUID, rec, now)
	case *entity.DataReader:
		sub, _ := c.Parent().(*entity.Subscriber)
		var partGUID guid.GUID
		if sub != nil {
			partGUID = sub.Participant().GUID()
		}
		rec := SubscriptionRecord{
			GUID:            c.GUID(),
			ParticipantGUID: partGUID,
			TopicName:       c.Topic().Name(),
			TypeName:        c.Topic().TypeSupport().TypeName(),
			Reliability:     c.QoS().ReliabilityKind,
		}
		m.recentSubscriptions.Add(rec.GUID, rec)
		m.publish(m.subscriptions, rec.GUID, rec, now)
	}
}

// ChildDeleted implements entity.Hooks: disposes the builtin sample for a
// deleted participant, topic, writer, or reader.
func (m *Mirror) ChildDeleted(parent, child entity.Entity) {
	now := time.Now().UnixNano()
	switch c := child.(type) {
	case *entity.Participant:
		m.recentParticipants.Remove(c.GUID())
		m.dispose(m.participants, c.GUID(), now)
	case *entity.Topic:
		m.recentTopics.Remove(c.GUID())
		m.dispose(m.topics, c.GUID(), now)
	case *entity.DataWriter:
		m.recentPublications.Remove(c.GUID())
		m.dispose(m.publications, c.GUID(), now)
	case *entity.DataReader:
		m.recentSubscriptions.Remove(c.GUID())
		m.dispose(m.subscriptions, c.GUID(), now)
	}
}

func (m *Mirror) DeliverStatus(entity.Entity, status.Mask) bool { return false }
func (m *Mirror) StatusChanged(entity.Entity, status.Mask)      {}

func parentGUID(e entity.Entity) guid.GUID {
	if e == nil {
		return guid.GUID{}
	}
	return e.GUID()
}

func (m *Mirror) publish(cache *rhc.Cache, g guid.GUID, rec any, nowNs int64) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_ = cache.Store(sample.Key(g[:]), payload, guid.GUID{}, m.nextSeq(), nowNs, nowNs, sample.StatusInfo{})
}

func (m *Mirror) dispose(cache *rhc.Cache, g guid.GUID, nowNs int64) {
	_ = cache.Store(sample.Key(g[:]), nil, guid.GUID{}, m.nextSeq(), nowNs, nowNs, sample.StatusInfo{Dispose: true})
}

// Participants returns every currently-buffered DCPSParticipant sample.
func (m *Mirror) Participants() []*sample.Sample { return m.participants.Matching(rhc.AnyMask) }

// Topics returns every currently-buffered DCPSTopic sample.
func (m *Mirror) Topics() []*sample.Sample { return m.topics.Matching(rhc.AnyMask) }

// Publications returns every currently-buffered DCPSPublication sample.
func (m *Mirror) Publications() []*sample.Sample { return m.publications.Matching(rhc.AnyMask) }

// Subscriptions returns every currently-buffered DCPSSubscription sample.
func (m *Mirror) Subscriptions() []*sample.Sample { return m.subscriptions.Matching(rhc.AnyMask) }

// Participant looks up the last-known record for guid directly, bypassing
// the rhc cache's instance-state bookkeeping.
func (m *Mirror) Participant(g guid.GUID) (ParticipantRecord, bool) {
	return m.recentParticipants.Get(g)
}

// Topic looks up the last-known record for guid directly.
func (m *Mirror) Topic(g guid.GUID) (TopicRecord, bool) { return m.recentTopics.Get(g) }

// Publication looks up the last-known record for guid directly.
func (m *Mirror) Publication(g guid.GUID) (PublicationRecord, bool) {
	return m.recentPublications.Get(g)
}

// Subscription looks up the last-known record for guid directly.
func (m *Mirror) Subscription(g guid.GUID) (SubscriptionRecord, bool) {
	return m.recentSubscriptions.Get(g)
}
