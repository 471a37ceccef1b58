// Package ddsc is the public API façade from spec.md §6: it translates
// opaque handle/argument calls into internal/entity graph operations and
// degrades every internal error to the signed-int32 retcode convention
// ("positive values are entity handles, zero is SUCCESS... negative
// values are -retcode"), while wiring the listener/builtin-topics/type
// registry collaborators the core itself leaves to its caller.
//
// Grounded on the teacher's cmd/bd command-handler shape: parse
// arguments, call into internal/*, translate the result/error into the
// surface's own convention (there, CLI output; here, a signed int32)
// rather than leaking internal error types across the boundary. Unlike
// the CLI, this package is a library entry point, not a command-line
// tool — the CLI/TUI layer itself is out of scope (spec.md §1).
package ddsc

import (
	"context"
	"fmt"

	"github.com/nebula-dds/ddscore/internal/builtintopics"
	"github.com/nebula-dds/ddscore/internal/condition"
	"github.com/nebula-dds/ddscore/internal/dderr"
	"github.com/nebula-dds/ddscore/internal/dlog"
	"github.com/nebula-dds/ddscore/internal/entity"
	"github.com/nebula-dds/ddscore/internal/handle"
	"github.com/nebula-dds/ddscore/internal/listener"
	"github.com/nebula-dds/ddscore/internal/qos"
	"github.com/nebula-dds/ddscore/internal/rhc"
	"github.com/nebula-dds/ddscore/internal/sample"
	"github.com/nebula-dds/ddscore/internal/stats"
	"github.com/nebula-dds/ddscore/internal/status"
	"github.com/nebula-dds/ddscore/internal/typeregistry"
)

// Result is the signed 32-bit value spec.md §6 says every core operation
// returns: positive is an entity handle, zero is SUCCESS, negative is
// -retcode. Operations that also produce data (Write's sequence number,
// Read/Take's sample slice) return that data alongside a Result rather
// than packing it into the same int32, since Go has multiple return
// values and C's single-return ABI constraint doesn't apply here; see
// DESIGN.md's Open Question notes for this and the loan/return_loan
// simplification below.
type Result int32

// Success is the zero Result every non-handle-producing operation
// returns on success.
const Success Result = 0

func fromHandle(h handle.Handle) Result { return Result(h) }

func fromError(err error) Result { return Result(dderr.Code(err).AsInt32()) }

// OK reports whether r is a success (a positive handle or zero).
func (r Result) OK() bool { return r >= 0 }

// Handle returns the entity handle r carries, if r is positive.
func (r Result) Handle() (handle.Handle, bool) {
	if r > 0 {
		return handle.Handle(r), true
	}
	return 0, false
}

// Retcode decodes r's negative-space meaning; OK for any r >= 0.
func (r Result) Retcode() dderr.Retcode {
	if r >= 0 {
		return dderr.OK
	}
	return dderr.Retcode(-r)
}

func (r Result) String() string {
	if h, ok := r.Handle(); ok {
		return fmt.Sprintf("handle(%d)", h)
	}
	return r.Retcode().String()
}

// combinedHooks fans an entity.Hooks event out to the listener manager and
// the builtin-topics mirror: internal/entity's constructors take exactly
// one Hooks value, so this package builds the single fan-out value once
// per Domain instead of requiring every caller to.
type combinedHooks struct {
	listeners *listener.Manager
	builtins  *builtintopics.Mirror
}

func (h *combinedHooks) DeliverStatus(e entity.Entity, bit status.Mask) bool {
	return h.listeners.DeliverStatus(e, bit)
}

func (h *combinedHooks) StatusChanged(e entity.Entity, bit status.Mask) {
	h.listeners.StatusChanged(e, bit)
	h.builtins.StatusChanged(e, bit)
}

func (h *combinedHooks) ChildCreated(parent, child entity.Entity) {
	h.listeners.ChildCreated(parent, child)
	h.builtins.ChildCreated(parent, child)
}

func (h *combinedHooks) ChildDeleted(parent, child entity.Entity) {
	h.listeners.ChildDeleted(parent, child)
	h.builtins.ChildDeleted(parent, child)
}

// Domain is this package's entry point: one process-wide DDS domain with
// its own handle table (internal/entity.Domain), listener dispatch,
// builtin-topics mirror, and type registry.
type Domain struct {
	core      *entity.Domain
	hooks     *combinedHooks
	listeners *listener.Manager
	builtins  *builtintopics.Mirror
	types     *typeregistry.Registry
}

// OpenDomain returns the façade for domainID, creating the underlying
// core domain on first use (spec.md §4.2's create_participant is scoped
// to an already-existing domain; SPEC_FULL.md §3 makes the domain itself
// the lazily-created root).
func OpenDomain(domainID uint32) *Domain {
	lm := listener.NewManager()
	bt := builtintopics.New()
	hooks := &combinedHooks{listeners: lm, builtins: bt}
	core := entity.GetOrCreateDomain(domainID, hooks)
	return &Domain{
		core:      core,
		hooks:     hooks,
		listeners: lm,
		builtins:  bt,
		types:     typeregistry.New(0),
	}
}

// Close tears down this façade's listener dispatcher goroutines. It does
// not delete the domain's entities; call Delete on the participant
// handles first if a full teardown is wanted.
func (d *Domain) Close() { d.listeners.Close() }

// Log returns the domain's log sink (spec.md §7: "the core emits through
// a single log sink registered at domain creation").
func (d *Domain) Log() *dlog.Sink { return d.core.Log() }

// Statistics returns a snapshot of this domain's entity-count and
// sample-traffic counters (SPEC_FULL.md §4.11).
func (d *Domain) Statistics() []stats.Counter { return d.core.Stats().Snapshot() }

func (d *Domain) resolveHandle(r Result) (entity.Entity, error) {
	h, ok := r.Handle()
	if !ok {
		return nil, dderr.New(dderr.BadParameter, "ddsc: %d is not a positive entity handle", int32(r))
	}
	return d.core.Resolve(h)
}

func (d *Domain) resolveParticipant(r Result) (*entity.Participant, error) {
	e, err := d.resolveHandle(r)
	if err != nil {
		return nil, err
	}
	p, ok := e.(*entity.Participant)
	if !ok {
		return nil, dderr.New(dderr.BadParameter, "ddsc: handle does not name a participant")
	}
	return p, nil
}

func (d *Domain) resolveTopic(r Result) (*entity.Topic, error) {
	e, err := d.resolveHandle(r)
	if err != nil {
		return nil, err
	}
	t, ok := e.(*entity.Topic)
	if !ok {
		return nil, dderr.New(dderr.BadParameter, "ddsc: handle does not name a topic")
	}
	return t, nil
}

func (d *Domain) resolvePublisher(r Result) (*entity.Publisher, error) {
	e, err := d.resolveHandle(r)
	if err != nil {
		return nil, err
	}
	p, ok := e.(*entity.Publisher)
	if !ok {
		return nil, dderr.New(dderr.BadParameter, "ddsc: handle does not name a publisher")
	}
	return p, nil
}

func (d *Domain) resolveSubscriber(r Result) (*entity.Subscriber, error) {
	e, err := d.resolveHandle(r)
	if err != nil {
		return nil, err
	}
	s, ok := e.(*entity.Subscriber)
	if !ok {
		return nil, dderr.New(dderr.BadParameter, "ddsc: handle does not name a subscriber")
	}
	return s, nil
}

func (d *Domain) resolveWriter(r Result) (*entity.DataWriter, error) {
	e, err := d.resolveHandle(r)
	if err != nil {
		return nil, err
	}
	w, ok := e.(*entity.DataWriter)
	if !ok {
		return nil, dderr.New(dderr.BadParameter, "ddsc: handle does not name a data writer")
	}
	return w, nil
}

func (d *Domain) resolveReader(r Result) (*entity.DataReader, error) {
	e, err := d.resolveHandle(r)
	if err != nil {
		return nil, err
	}
	rd, ok := e.(*entity.DataReader)
	if !ok {
		return nil, dderr.New(dderr.BadParameter, "ddsc: handle does not name a data reader")
	}
	return rd, nil
}

// RegisterType compiles zero's struct type into the domain's type
// registry under name, per spec.md §6's Serializer collaborator. Every
// CreateTopic call names a type registered this way.
func (d *Domain) RegisterType(name string, zero any) Result {
	if _, err := d.types.Register(name, zero); err != nil {
		return fromError(err)
	}
	return Success
}

// CreateParticipant implements spec.md §4.2's create_participant.
func (d *Domain) CreateParticipant(q qos.QoS) Result {
	p, err := d.core.CreateParticipant(q, d.hooks)
	if err != nil {
		return fromError(err)
	}
	return fromHandle(p.Handle())
}

// CreateTopic implements spec.md §4.2's create_topic: typeName must
// already be registered via RegisterType.
func (d *Domain) CreateTopic(participant Result, name, typeName string, q qos.QoS) Result {
	p, err := d.resolveParticipant(participant)
	if err != nil {
		return fromError(err)
	}
	desc, ok := d.types.Lookup(typeName)
	if !ok {
		return fromError(dderr.New(dderr.BadParameter, "ddsc: create_topic: type %q not registered", typeName))
	}
	t, err := p.CreateTopic(name, desc, q, d.hooks)
	if err != nil {
		return fromError(err)
	}
	return fromHandle(t.Handle())
}

// CreatePublisher implements spec.md §4.2's create_publisher.
func (d *Domain) CreatePublisher(participant Result, q qos.QoS) Result {
	p, err := d.resolveParticipant(participant)
	if err != nil {
		return fromError(err)
	}
	pub, err := p.CreatePublisher(q, d.hooks)
	if err != nil {
		return fromError(err)
	}
	return fromHandle(pub.Handle())
}

// CreateSubscriber implements spec.md §4.2's create_subscriber.
func (d *Domain) CreateSubscriber(participant Result, q qos.QoS) Result {
	p, err := d.resolveParticipant(participant)
	if err != nil {
		return fromError(err)
	}
	sub, err := p.CreateSubscriber(q, d.hooks)
	if err != nil {
		return fromError(err)
	}
	return fromHandle(sub.Handle())
}

// CreateWriter implements spec.md §4.2's create_writer.
func (d *Domain) CreateWriter(publisher, topic Result, q qos.QoS) Result {
	pub, err := d.resolvePublisher(publisher)
	if err != nil {
		return fromError(err)
	}
	t, err := d.resolveTopic(topic)
	if err != nil {
		return fromError(err)
	}
	w, err := pub.CreateWriter(t, q, d.hooks)
	if err != nil {
		return fromError(err)
	}
	return fromHandle(w.Handle())
}

// CreateReader implements spec.md §4.2's create_reader.
func (d *Domain) CreateReader(subscriber, topic Result, q qos.QoS) Result {
	sub, err := d.resolveSubscriber(subscriber)
	if err != nil {
		return fromError(err)
	}
	t, err := d.resolveTopic(topic)
	if err != nil {
		return fromError(err)
	}
	r, err := sub.CreateReader(t, q, d.hooks)
	if err != nil {
		return fromError(err)
	}
	return fromHandle(r.Handle())
}

// Delete implements spec.md §4.2's generic delete(handle): recursive
// post-order teardown regardless of entity kind, safe to call twice.
func (d *Domain) Delete(h Result) Result {
	e, err := d.resolveHandle(h)
	if err != nil {
		if dderr.Is(err, dderr.AlreadyDeleted) {
			return Success
		}
		return fromError(err)
	}
	if err := entity.DeleteEntity(e); err != nil {
		return fromError(err)
	}
	return Success
}

// enabler is the promoted Base.Enable surface every concrete entity kind
// exposes; internal/entity's own Entity interface omits it (enablement
// is a lifecycle operation, not a read of common entity state), so this
// façade asserts for it instead of adding it to that interface.
type enabler interface{ Enable() }

// Enable implements spec.md §4.2's enable(handle), needed only when the
// parent's ENTITY_FACTORY.autoenable_created_entities QoS is false.
func (d *Domain) Enable(h Result) Result {
	e, err := d.resolveHandle(h)
	if err != nil {
		return fromError(err)
	}
	en, ok := e.(enabler)
	if !ok {
		return fromError(dderr.New(dderr.BadParameter, "ddsc: handle does not support enable"))
	}
	en.Enable()
	return Success
}

// qosSetter is the promoted Base.SetQoS surface, asserted for the same
// reason as enabler above.
type qosSetter interface {
	SetQoS(qos.QoS) error
}

// GetQoS returns h's current QoS policies.
func (d *Domain) GetQoS(h Result) (qos.QoS, Result) {
	e, err := d.resolveHandle(h)
	if err != nil {
		return qos.QoS{}, fromError(err)
	}
	return e.QoS(), Success
}

// SetQoS implements spec.md §4.3's set_qos procedure.
func (d *Domain) SetQoS(h Result, patch qos.QoS) Result {
	e, err := d.resolveHandle(h)
	if err != nil {
		return fromError(err)
	}
	s, ok := e.(qosSetter)
	if !ok {
		return fromError(dderr.New(dderr.BadParameter, "ddsc: handle does not support set_qos"))
	}
	if err := s.SetQoS(patch); err != nil {
		return fromError(err)
	}
	return Success
}

// ListenerCallback mirrors listener.Callback but carries a Result handle
// instead of an internal entity.Entity, keeping entity.Entity out of this
// package's exported surface.
type ListenerCallback func(owner Result, bit status.Mask)

// SetListener implements spec.md §4.7's set_listener; a nil cb clears the
// callback for every bit in mask (DDS's "UNSET" listener value).
func (d *Domain) SetListener(h Result, mask status.Mask, cb ListenerCallback) Result {
	e, err := d.resolveHandle(h)
	if err != nil {
		return fromError(err)
	}
	if cb == nil {
		d.listeners.SetListener(e, mask, nil)
		return Success
	}
	d.listeners.SetListener(e, mask, func(owner entity.Entity, bit status.Mask) {
		cb(fromHandle(owner.Handle()), bit)
	})
	return Success
}

// statusMaskSetter is the promoted Base.SetEnabledStatusMask surface,
// asserted for the same reason as enabler/qosSetter above.
type statusMaskSetter interface {
	SetEnabledStatusMask(status.Mask)
}

// SetEnabledStatusMask narrows which status bits h will ever raise,
// per spec.md §4.6; every entity starts with all of its applicable
// statuses enabled, so this is only needed to restrict that default.
func (d *Domain) SetEnabledStatusMask(h Result, mask status.Mask) Result {
	e, err := d.resolveHandle(h)
	if err != nil {
		return fromError(err)
	}
	s, ok := e.(statusMaskSetter)
	if !ok {
		return fromError(dderr.New(dderr.BadParameter, "ddsc: handle does not support set_enabled_status_mask"))
	}
	s.SetEnabledStatusMask(mask)
	return Success
}

// ReadStatus returns h's currently raised status bits without clearing
// them, per spec.md §4.6's read_status.
func (d *Domain) ReadStatus(h Result) (status.Mask, Result) {
	e, err := d.resolveHandle(h)
	if err != nil {
		return 0, fromError(err)
	}
	return e.Statuses().Read(), Success
}

// TakeStatus returns h's currently raised status bits and clears them,
// per spec.md §4.6's take_status.
func (d *Domain) TakeStatus(h Result) (status.Mask, Result) {
	e, err := d.resolveHandle(h)
	if err != nil {
		return 0, fromError(err)
	}
	return e.Statuses().Take(), Success
}

// Write implements spec.md §4.5's write(sample, timestamp), checking the
// reentrancy guard spec.md §4.7 requires of every blocking operation
// before it takes effect.
func (d *Domain) Write(ctx context.Context, w Result, payload []byte, sourceTS int64) (uint64, Result) {
	writer, err := d.resolveWriter(w)
	if err != nil {
		return 0, fromError(err)
	}
	if err := d.listeners.CheckReentrant(writer); err != nil {
		return 0, fromError(err)
	}
	seq, err := writer.Write(ctx, payload, sourceTS)
	if err != nil {
		return 0, fromError(err)
	}
	return seq, Success
}

// Dispose implements spec.md §4.5's dispose sentinel write.
func (d *Domain) Dispose(ctx context.Context, w Result, key sample.Key, sourceTS int64) (uint64, Result) {
	writer, err := d.resolveWriter(w)
	if err != nil {
		return 0, fromError(err)
	}
	if err := d.listeners.CheckReentrant(writer); err != nil {
		return 0, fromError(err)
	}
	seq, err := writer.Dispose(ctx, key, sourceTS)
	if err != nil {
		return 0, fromError(err)
	}
	return seq, Success
}

// UnregisterInstance implements spec.md §4.5's unregister sentinel write.
func (d *Domain) UnregisterInstance(ctx context.Context, w Result, key sample.Key, sourceTS int64) (uint64, Result) {
	writer, err := d.resolveWriter(w)
	if err != nil {
		return 0, fromError(err)
	}
	if err := d.listeners.CheckReentrant(writer); err != nil {
		return 0, fromError(err)
	}
	seq, err := writer.UnregisterInstance(ctx, key, sourceTS)
	if err != nil {
		return 0, fromError(err)
	}
	return seq, Success
}

// WaitForAcknowledgments implements spec.md §5's suspension-point
// contract: blocks until every matched reliable reader has acknowledged
// the writer's most recent sample or ctx is done.
func (d *Domain) WaitForAcknowledgments(ctx context.Context, w Result) Result {
	writer, err := d.resolveWriter(w)
	if err != nil {
		return fromError(err)
	}
	if err := d.listeners.CheckReentrant(writer); err != nil {
		return fromError(err)
	}
	if err := writer.WaitForAcknowledgments(ctx); err != nil {
		return fromError(err)
	}
	return Success
}

// AttachTransport installs t as w's Transport, replacing the default
// in-process loopback delivery (SPEC_FULL.md §4.10) — e.g. a
// transport/loopback.Endpoint or transport/natsbus.Endpoint bound to w's
// GUID.
func (d *Domain) AttachTransport(w Result, t entity.Transport) Result {
	writer, err := d.resolveWriter(w)
	if err != nil {
		return fromError(err)
	}
	writer.SetTransport(t)
	return Success
}

// Ingest feeds a packet received off an external Transport into reader
// r's history cache — the receive side of AttachTransport, for a
// transport adapter whose matched endpoint lives outside this façade.
func (d *Domain) Ingest(r Result, p entity.Packet) Result {
	reader, err := d.resolveReader(r)
	if err != nil {
		return fromError(err)
	}
	reader.Ingest(p)
	return Success
}

// Read implements spec.md §4.4's read operation. The returned slice is
// the "loan" spec.md §6 describes; since Go is garbage collected there is
// no separate return_loan call — letting the slice go out of scope
// suffices (see DESIGN.md's Open Question notes).
func (d *Domain) Read(h Result, mask rhc.ReadTakeMask, max int) ([]*sample.Sample, Result) {
	r, err := d.resolveReader(h)
	if err != nil {
		return nil, fromError(err)
	}
	return r.Read(mask, max), Success
}

// Take implements spec.md §4.4's take operation.
func (d *Domain) Take(h Result, mask rhc.ReadTakeMask, max int) ([]*sample.Sample, Result) {
	r, err := d.resolveReader(h)
	if err != nil {
		return nil, fromError(err)
	}
	return r.Take(mask, max), Success
}

// NewReadCondition implements spec.md §4.6's create_readcondition.
func (d *Domain) NewReadCondition(h Result, mask rhc.ReadTakeMask) (*condition.ReadCondition, Result) {
	r, err := d.resolveReader(h)
	if err != nil {
		return nil, fromError(err)
	}
	return condition.NewReadCondition(r, mask), Success
}

// NewQueryCondition implements spec.md §4.6's create_querycondition.
func (d *Domain) NewQueryCondition(h Result, mask rhc.ReadTakeMask, predicate func(*sample.Sample) bool) (*condition.QueryCondition, Result) {
	r, err := d.resolveReader(h)
	if err != nil {
		return nil, fromError(err)
	}
	return condition.NewQueryCondition(r, mask, predicate), Success
}

// NewStatusCondition implements spec.md §4.6's create_statuscondition.
func (d *Domain) NewStatusCondition(h Result, mask status.Mask) (*condition.StatusCondition, Result) {
	e, err := d.resolveHandle(h)
	if err != nil {
		return nil, fromError(err)
	}
	return condition.NewStatusCondition(e, mask), Success
}

// NewGuardCondition implements spec.md §4.6's create_guardcondition; it
// has no owning entity so cannot fail.
func (d *Domain) NewGuardCondition() *condition.GuardCondition { return condition.NewGuardCondition() }

// NewWaitSet implements spec.md §4.6's create_waitset.
func (d *Domain) NewWaitSet() *condition.WaitSet { return condition.New() }

// BuiltinParticipants, BuiltinTopics, BuiltinPublications, and
// BuiltinSubscriptions expose the DCPS builtin-topic mirror from
// spec.md §4.8.
func (d *Domain) BuiltinParticipants() []*sample.Sample { return d.builtins.Participants() }
func (d *Domain) BuiltinTopics() []*sample.Sample       { return d.builtins.Topics() }
func (d *Domain) BuiltinPublications() []*sample.Sample { return d.builtins.Publications() }
func (d *Domain) BuiltinSubscriptions() []*sample.Sample {
	return d.builtins.Subscriptions()
}
