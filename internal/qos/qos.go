// Package qos implements the QoS engine from spec.md §4.3: QoS value
// storage as a sparse present-bitmask bag, internal consistency checks,
// mutability checks against an enabled entity, and the reader/writer
// compatibility matcher.
//
// Grounded on the teacher's internal/labelmutex/policy.go, which validates
// a bag of policy values against a set of consistency rules and reports
// structured violations — generalized here from label-mutex-group
// validation to QoS-policy validation.
package qos

import (
	"fmt"

	"github.com/nebula-dds/ddscore/internal/dderr"
)

// PolicyID identifies one QoS policy for presence tracking, mutability
// checks, and as the "first incompatible policy" return value from Match.
type PolicyID uint32

const (
	Reliability PolicyID = 1 << iota
	Durability
	History
	ResourceLimits
	Deadline
	LatencyBudget
	Ownership
	OwnershipStrength
	Liveliness
	DestinationOrder
	Presentation
	Partition
	Lifespan
	EntityFactory
	WriterDataLifecycle
	ReaderDataLifecycle
	TimeBasedFilter
	UserData
	TopicData
	GroupData
)

func (p PolicyID) String() string {
	switch p {
	case Reliability:
		return "RELIABILITY"
	case Durability:
		return "DURABILITY"
	case History:
		return "HISTORY"
	case ResourceLimits:
		return "RESOURCE_LIMITS"
	case Deadline:
		return "DEADLINE"
	case LatencyBudget:
		return "LATENCY_BUDGET"
	case Ownership:
		return "OWNERSHIP"
	case OwnershipStrength:
		return "OWNERSHIP_STRENGTH"
	case Liveliness:
		return "LIVELINESS"
	case DestinationOrder:
		return "DESTINATION_ORDER"
	case Presentation:
		return "PRESENTATION"
	case Partition:
		return "PARTITION"
	case Lifespan:
		return "LIFESPAN"
	case EntityFactory:
		return "ENTITY_FACTORY"
	case WriterDataLifecycle:
		return "WRITER_DATA_LIFECYCLE"
	case ReaderDataLifecycle:
		return "READER_DATA_LIFECYCLE"
	case TimeBasedFilter:
		return "TIME_BASED_FILTER"
	case UserData:
		return "USER_DATA"
	case TopicData:
		return "TOPIC_DATA"
	case GroupData:
		return "GROUP_DATA"
	default:
		return fmt.Sprintf("POLICY(%#x)", uint32(p))
	}
}

// immutablePolicies are the policies that may not change once an entity is
// enabled (spec.md §4.2: "An entity may not be mutated ... after enable").
const immutablePolicies = Reliability | Durability | History | ResourceLimits |
	Ownership | Liveliness | DestinationOrder | Presentation |
	WriterDataLifecycle | ReaderDataLifecycle

const infinite = int64(1<<63 - 1) // spec.md §6: INFINITY is INT64_MAX

type ReliabilityKind int

const (
	BestEffort ReliabilityKind = iota
	Reliable
)

type DurabilityKind int

const (
	Volatile DurabilityKind = iota
	TransientLocal
	Transient
	Persistent
)

type HistoryKind int

const (
	KeepLast HistoryKind = iota
	KeepAll
)

type AccessScopeKind int

const (
	InstanceScope AccessScopeKind = iota
	TopicScope
	GroupScope
)

type OwnershipKind int

const (
	Shared OwnershipKind = iota
	Exclusive
)

type LivelinessKind int

const (
	Automatic LivelinessKind = iota
	ManualByParticipant
	ManualByTopic
)

type DestinationOrderKind int

const (
	ByReceptionTimestamp DestinationOrderKind = iota
	BySourceTimestamp
)

// QoS is the sparse policy bag spec.md §4.3 describes. Present tracks which
// fields were explicitly set by the application (vs. left at zero value) so
// SetQoS can "fill missing policies from the entity's current QoS".
type QoS struct {
	Present PolicyID

	ReliabilityKind     ReliabilityKind
	MaxBlockingTimeNs   int64

	DurabilityKind DurabilityKind

	HistoryKind  HistoryKind
	HistoryDepth int32

	ResourceLimitsMaxSamples            int32
	ResourceLimitsMaxInstances          int32
	ResourceLimitsMaxSamplesPerInstance int32

	DeadlinePeriodNs int64

	LatencyBudgetDurationNs int64

	OwnershipKind     OwnershipKind
	OwnershipStrength int32

	LivelinessKind       LivelinessKind
	LivelinessLeaseNs    int64

	DestinationOrderKind DestinationOrderKind

	PresentationAccessScope AccessScopeKind
	PresentationCoherent    bool
	PresentationOrdered     bool

	Partitions []string

	LifespanDurationNs int64

	AutoenableCreatedEntities bool

	AutodisposeUnregisteredInstances bool

	AutopurgeNoWriterSamplesDelayNs   int64
	AutopurgeDisposedSamplesDelayNs   int64
}

// Unlimited is the sentinel for resource-limit fields meaning "no bound".
const Unlimited int32 = -1

// Default returns the out-of-the-box DDS QoS, matching the DDS
// specification's documented defaults.
func Default() QoS {
	return QoS{
		Present:                           0,
		ReliabilityKind:                   BestEffort,
		MaxBlockingTimeNs:                 int64(100 * 1e6), // 100ms
		DurabilityKind:                    Volatile,
		HistoryKind:                       KeepLast,
		HistoryDepth:                      1,
		ResourceLimitsMaxSamples:          Unlimited,
		ResourceLimitsMaxInstances:        Unlimited,
		ResourceLimitsMaxSamplesPerInstance: Unlimited,
		DeadlinePeriodNs:                  infinite,
		LatencyBudgetDurationNs:           0,
		OwnershipKind:                     Shared,
		LivelinessKind:                    Automatic,
		LivelinessLeaseNs:                 infinite,
		DestinationOrderKind:              ByReceptionTimestamp,
		PresentationAccessScope:           InstanceScope,
		LifespanDurationNs:                infinite,
		AutoenableCreatedEntities:         true,
		AutodisposeUnregisteredInstances:  true,
		AutopurgeNoWriterSamplesDelayNs:   infinite,
		AutopurgeDisposedSamplesDelayNs:   infinite,
	}
}

// Merge fills any policy not present in patch from base, returning the
// combined QoS. This implements step 1 of SetQoS (spec.md §4.3): "partial
// updates preserve unset policies." Reliability is the one exception: it
// is copied from base only when base also marks it present, so merging over
// an unflagged base such as Default() keeps patch's reliability values.
func Merge(base, patch QoS) QoS {
	result := patch
	missing := ^patch.Present
	if base.Present&Reliability != 0 && missing&Reliability != 0 {
		result.ReliabilityKind = base.ReliabilityKind
		result.MaxBlockingTimeNs = base.MaxBlockingTimeNs
	}
	if missing&Durability != 0 {
		result.DurabilityKind = base.DurabilityKind
	}
	if missing&History != 0 {
		result.HistoryKind = base.HistoryKind
		result.HistoryDepth = base.HistoryDepth
	}
	if missing&ResourceLimits != 0 {
		result.ResourceLimitsMaxSamples = base.ResourceLimitsMaxSamples
		result.ResourceLimitsMaxInstances = base.ResourceLimitsMaxInstances
		result.ResourceLimitsMaxSamplesPerInstance = base.ResourceLimitsMaxSamplesPerInstance
	}
	if missing&Deadline != 0 {
		result.DeadlinePeriodNs = base.DeadlinePeriodNs
	}
	if missing&LatencyBudget != 0 {
		result.LatencyBudgetDurationNs = base.LatencyBudgetDurationNs
	}
	if missing&Ownership != 0 {
		result.OwnershipKind = base.OwnershipKind
	}
	if missing&OwnershipStrength != 0 {
		result.OwnershipStrength = base.OwnershipStrength
	}
	if missing&Liveliness != 0 {
		result.LivelinessKind = base.LivelinessKind
		result.LivelinessLeaseNs = base.LivelinessLeaseNs
	}
	if missing&DestinationOrder != 0 {
		result.DestinationOrderKind = base.DestinationOrderKind
	}
	if missing&Presentation != 0 {
		result.PresentationAccessScope = base.PresentationAccessScope
		result.PresentationCoherent = base.PresentationCoherent
		result.PresentationOrdered = base.PresentationOrdered
	}
	if missing&Partition != 0 {
		result.Partitions = base.Partitions
	}
	if missing&Lifespan != 0 {
		result.LifespanDurationNs = base.LifespanDurationNs
	}
	if missing&EntityFactory != 0 {
		result.AutoenableCreatedEntities = base.AutoenableCreatedEntities
	}
	if missing&WriterDataLifecycle != 0 {
		result.AutodisposeUnregisteredInstances = base.AutodisposeUnregisteredInstances
	}
	if missing&ReaderDataLifecycle != 0 {
		result.AutopurgeNoWriterSamplesDelayNs = base.AutopurgeNoWriterSamplesDelayNs
		result.AutopurgeDisposedSamplesDelayNs = base.AutopurgeDisposedSamplesDelayNs
	}
	result.Present = base.Present | patch.Present
	return result
}

// CheckConsistency implements step 2 of SetQoS: internal consistency rules.
func CheckConsistency(q QoS) error {
	if q.HistoryKind == KeepLast && q.HistoryDepth < 1 {
		return dderr.New(dderr.InconsistentPolicy, "qos: history.kind=KEEP_LAST requires depth >= 1, got %d", q.HistoryDepth)
	}
	if q.HistoryKind == KeepLast && q.ResourceLimitsMaxSamplesPerInstance != Unlimited &&
		q.ResourceLimitsMaxSamplesPerInstance > 0 &&
		int64(q.ResourceLimitsMaxSamplesPerInstance) > int64(q.HistoryDepth) {
		return dderr.New(dderr.InconsistentPolicy,
			"qos: resource_limits.max_samples_per_instance (%d) must be <= history.depth (%d) when KEEP_LAST",
			q.ResourceLimitsMaxSamplesPerInstance, q.HistoryDepth)
	}
	if q.ResourceLimitsMaxSamples != Unlimited && q.ResourceLimitsMaxInstances != Unlimited &&
		q.ResourceLimitsMaxSamplesPerInstance != Unlimited &&
		int64(q.ResourceLimitsMaxSamples) < int64(q.ResourceLimitsMaxInstances) {
		return dderr.New(dderr.InconsistentPolicy,
			"qos: resource_limits.max_samples (%d) must be >= max_instances (%d)",
			q.ResourceLimitsMaxSamples, q.ResourceLimitsMaxInstances)
	}
	return nil
}

// CheckMutable implements step 3 of SetQoS: for an enabled entity, every
// changed policy (relative to current) must be mutable.
func CheckMutable(enabled bool, current, next QoS) error {
	if !enabled {
		return nil
	}
	changed := diff(current, next)
	if bad := changed & immutablePolicies; bad != 0 {
		return dderr.New(dderr.ImmutablePolicy, "qos: cannot change %s on an enabled entity", firstSet(bad))
	}
	return nil
}

func firstSet(mask PolicyID) PolicyID {
	for bit := PolicyID(1); bit != 0; bit <<= 1 {
		if mask&bit != 0 {
			return bit
		}
	}
	return 0
}

// diff returns the set of policies whose effective value differs between
// current and next, restricted to policies present in either bag.
func diff(current, next QoS) PolicyID {
	var changed PolicyID
	touch := func(bit PolicyID, eq bool) {
		if !eq {
			changed |= bit
		}
	}
	touch(Reliability, current.ReliabilityKind == next.ReliabilityKind && current.MaxBlockingTimeNs == next.MaxBlockingTimeNs)
	touch(Durability, current.DurabilityKind == next.DurabilityKind)
	touch(History, current.HistoryKind == next.HistoryKind && current.HistoryDepth == next.HistoryDepth)
	touch(ResourceLimits, current.ResourceLimitsMaxSamples == next.ResourceLimitsMaxSamples &&
		current.ResourceLimitsMaxInstances == next.ResourceLimitsMaxInstances &&
		current.ResourceLimitsMaxSamplesPerInstance == next.ResourceLimitsMaxSamplesPerInstance)
	touch(Ownership, current.OwnershipKind == next.OwnershipKind)
	touch(Liveliness, current.LivelinessKind == next.LivelinessKind && current.LivelinessLeaseNs == next.LivelinessLeaseNs)
	touch(DestinationOrder, current.DestinationOrderKind == next.DestinationOrderKind)
	touch(Presentation, current.PresentationAccessScope == next.PresentationAccessScope &&
		current.PresentationCoherent == next.PresentationCoherent &&
		current.PresentationOrdered == next.PresentationOrdered)
	touch(WriterDataLifecycle, current.AutodisposeUnregisteredInstances == next.AutodisposeUnregisteredInstances)
	touch(ReaderDataLifecycle, current.AutopurgeNoWriterSamplesDelayNs == next.AutopurgeNoWriterSamplesDelayNs &&
		current.AutopurgeDisposedSamplesDelayNs == next.AutopurgeDisposedSamplesDelayNs)
	return changed
}
