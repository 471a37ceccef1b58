// Package loopback is the default entity.Transport: an in-process bus that
// delivers packets synchronously, matching SPEC_FULL.md §4.10's framing of
// "out of scope" transport while still giving the core something real to
// drive end-to-end without a wire protocol.
//
// entity.DataWriter.deliver already does this inline when no Transport is
// set; Bus/Endpoint formalize the same behavior as an explicit, swappable
// entity.Transport implementation, so a caller can exercise the boundary
// (and swap in transport/natsbus later) without changing writer/reader
// wiring.
package loopback

import (
	"context"
	"sync"

	"github.com/nebula-dds/ddscore/internal/entity"
	"github.com/nebula-dds/ddscore/internal/guid"
)

// Bus fans out packets published under a writer's GUID to every endpoint
// that has registered a receive callback for that GUID.
type Bus struct {
	mu        sync.Mutex
	receivers map[guid.GUID]map[*Endpoint]func(entity.Packet)
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{receivers: make(map[guid.GUID]map[*Endpoint]func(entity.Packet))}
}

// Endpoint implements entity.Transport for one writer GUID on the Bus. The
// writer side calls Send; each matched reader gets its own Endpoint on the
// same GUID and calls SetReceiveCallback, mirroring one NATS subject with
// one publisher and many subscribers.
type Endpoint struct {
	bus        *Bus
	writerGUID guid.GUID
}

// NewEndpoint returns a Transport bound to writerGUID on the Bus.
func (b *Bus) NewEndpoint(writerGUID guid.GUID) *Endpoint {
	return &Endpoint{bus: b, writerGUID: writerGUID}
}

// Send implements entity.Transport: synchronously invokes every receive
// callback registered for this endpoint's writer GUID, including ones
// registered by other endpoints (typically one per matched reader).
func (e *Endpoint) Send(_ context.Context, p entity.Packet) error {
	e.bus.mu.Lock()
	cbs := make([]func(entity.Packet), 0, len(e.bus.receivers[e.writerGUID]))
	for _, cb := range e.bus.receivers[e.writerGUID] {
		cbs = append(cbs, cb)
	}
	e.bus.mu.Unlock()
	for _, cb := range cbs {
		cb(p)
	}
	return nil
}

// SetReceiveCallback implements entity.Transport: registers cb to run on
// every packet published for this endpoint's writer GUID by any endpoint,
// replacing whatever this endpoint previously registered. A nil cb
// deregisters this endpoint without disturbing other endpoints' callbacks
// on the same GUID.
func (e *Endpoint) SetReceiveCallback(cb func(entity.Packet)) {
	e.bus.mu.Lock()
	defer e.bus.mu.Unlock()
	set, ok := e.bus.receivers[e.writerGUID]
	if cb == nil {
		if ok {
			delete(set, e)
		}
		return
	}
	if !ok {
		set = make(map[*Endpoint]func(entity.Packet))
		e.bus.receivers[e.writerGUID] = set
	}
	set[e] = cb
}

var _ entity.Transport = (*Endpoint)(nil)
