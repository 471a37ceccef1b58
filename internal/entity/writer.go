package entity

import (
	"context"
	"fmt"
	"sync"

	"github.com/nebula-dds/ddscore/internal/dderr"
	"github.com/nebula-dds/ddscore/internal/guid"
	"github.com/nebula-dds/ddscore/internal/qos"
	"github.com/nebula-dds/ddscore/internal/sample"
	"github.com/nebula-dds/ddscore/internal/status"
	"github.com/nebula-dds/ddscore/internal/whc"
)

// Packet is the wire-independent unit the Transport boundary moves,
// matching SPEC_FULL.md §4.10.
type Packet struct {
	WriterGUID guid.GUID
	Key        sample.Key
	SeqNum     uint64
	Timestamp  int64
	Status     sample.StatusInfo
	Payload    []byte
}

// Transport is the collaborator interface spec.md §6 names but leaves
// external; SPEC_FULL.md §4.10 gives it a concrete home at this boundary
// so writers/readers can be exercised end-to-end without a wire protocol.
type Transport interface {
	Send(ctx context.Context, p Packet) error
	SetReceiveCallback(func(Packet))
}

// DataWriter publishes samples to its topic's matched readers, backed by a
// writer history cache (spec.md §4.5).
type DataWriter struct {
	Base

	publisher *Publisher
	topic     *Topic
	cache     *whc.Cache
	transport Transport

	mu      sync.Mutex
	matched map[*DataReader]struct{}
}

func (w *DataWriter) Topic() *Topic { return w.topic }

// SetTransport installs an external Transport; Write sends through it
// instead of delivering directly in-process. Nil (the default) means
// loopback delivery: samples are stored straight into matched readers'
// caches, matching SPEC_FULL.md's loopback transport adapter.
func (w *DataWriter) SetTransport(t Transport) {
	w.mu.Lock()
	w.transport = t
	w.mu.Unlock()
}

// Write implements spec.md §4.5's write(sample, timestamp): extracts the
// instance key, assigns a sequence number via the writer history cache,
// and delivers to every currently matched reader.
func (w *DataWriter) Write(ctx context.Context, payload []byte, sourceTS int64) (uint64, error) {
	if !w.Enabled() {
		return 0, dderr.New(dderr.PreconditionNotMet, "entity: write: writer not enabled")
	}
	key, err := w.topic.TypeSupport().ExtractKey(payload)
	if err != nil {
		return 0, fmt.Errorf("entity: write: extract key: %w", dderr.Wrap(dderr.BadParameter, err))
	}
	seq, err := w.cache.Write(ctx, key, payload, sourceTS)
	if err != nil {
		return 0, err
	}
	w.deliver(ctx, Packet{
		WriterGUID: w.GUID(),
		Key:        key,
		SeqNum:     seq,
		Timestamp:  sourceTS,
		Payload:    payload,
	})
	return seq, nil
}

// Dispose injects a dispose sentinel for key and delivers it like a
// regular sample, per spec.md §4.5.
func (w *DataWriter) Dispose(ctx context.Context, key sample.Key, sourceTS int64) (uint64, error) {
	seq, err := w.cache.Dispose(ctx, key, sourceTS)
	if err != nil {
		return 0, err
	}
	w.deliver(ctx, Packet{WriterGUID: w.GUID(), Key: key, SeqNum: seq, Timestamp: sourceTS, Status: sample.StatusInfo{Dispose: true}})
	return seq, nil
}

// UnregisterInstance injects an unregister sentinel for key and delivers
// it, per spec.md §4.5.
func (w *DataWriter) UnregisterInstance(ctx context.Context, key sample.Key, sourceTS int64) (uint64, error) {
	seq, err := w.cache.UnregisterInstance(ctx, key, sourceTS)
	if err != nil {
		return 0, err
	}
	w.deliver(ctx, Packet{WriterGUID: w.GUID(), Key: key, SeqNum: seq, Timestamp: sourceTS, Status: sample.StatusInfo{Unregister: true}})
	return seq, nil
}

func (w *DataWriter) deliver(ctx context.Context, p Packet) {
	w.mu.Lock()
	t := w.transport
	w.mu.Unlock()
	if t != nil {
		_ = t.Send(ctx, p)
		return
	}
	for _, r := range w.snapshotMatched() {
		r.ingest(p)
	}
}

// WaitForAcknowledgments blocks until every matched reliable reader has
// acknowledged up through the writer's most recently assigned sequence
// number, or ctx is done, per spec.md §5's suspension-point contract.
func (w *DataWriter) WaitForAcknowledgments(ctx context.Context) error {
	return w.cache.WaitForAcknowledgments(ctx, w.cache.LastSeqNum())
}

// Ack records acknowledgment from a matched reliable reader; called by the
// loopback transport or by a reliability protocol layer.
func (w *DataWriter) Ack(readerGUID guid.GUID, seq uint64) {
	w.cache.Ack(readerGUID, seq)
}

func (w *DataWriter) addMatch(r *DataReader) {
	w.mu.Lock()
	w.matched[r] = struct{}{}
	w.mu.Unlock()
	w.cache.MatchReader(r.GUID(), r.QoS().ReliabilityKind == qos.Reliable)
	w.raiseStatus(w, status.PublicationMatched)
}

func (w *DataWriter) removeMatch(r *DataReader) {
	w.mu.Lock()
	delete(w.matched, r)
	w.mu.Unlock()
	w.cache.UnmatchReader(r.GUID())
}

func (w *DataWriter) snapshotMatched() []*DataReader {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*DataReader, 0, len(w.matched))
	for r := range w.matched {
		out = append(out, r)
	}
	return out
}

// close tears down the writer's cache per spec.md §4.5's
// writer-data-lifecycle rule.
func (w *DataWriter) close() {
	w.cache.Close(w.QoS().AutodisposeUnregisteredInstances)
	w.topic.removeWriter(w)
	w.publisher.mu.Lock()
	delete(w.publisher.writers, w)
	w.publisher.mu.Unlock()
	w.publisher.Base.removeChild(w.publisher, w)
}
