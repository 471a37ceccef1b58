// Package natsbus is the optional cross-process entity.Transport adapter
// from SPEC_FULL.md §4.10: packets for a writer GUID are published to a
// NATS subject, and each matched reader subscribes to that same subject.
// This demonstrates the Transport boundary against a real broker; it is
// not an RTPS implementation and carries none of the discovery/security
// non-goals spec.md excludes.
//
// Grounded on the teacher's internal/daemon/nats.go embedded-NATS pattern
// (connect once, reuse the connection for every subject), and its
// internal/storage/dolt retry shape for the exponential-backoff
// publish-retry loop.
package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker"

	"github.com/nebula-dds/ddscore/internal/entity"
	"github.com/nebula-dds/ddscore/internal/guid"
	"github.com/nebula-dds/ddscore/internal/sample"
)

const subjectPrefix = "ddscore.sample."

func subject(writerGUID guid.GUID) string {
	return subjectPrefix + writerGUID.String()
}

// Adapter wraps a NATS connection and hands out per-writer-GUID Transport
// endpoints. The zero value is not usable; construct with New.
type Adapter struct {
	nc      *nats.Conn
	breaker *gobreaker.CircuitBreaker
	// maxElapsed bounds the exponential-backoff retry loop around a single
	// Send call; exceeding it surfaces the last publish error to the caller
	// instead of retrying forever.
	maxElapsed time.Duration
}

// Options configures an Adapter.
type Options struct {
	// MaxElapsed bounds Send's retry loop. Defaults to 5s.
	MaxElapsed time.Duration
	// BreakerName labels the circuit breaker in metrics/logs.
	BreakerName string
}

// New wraps an already-established NATS connection. The caller owns the
// connection's lifecycle (teacher's own daemon.NATSServer pattern: connect
// once, reuse for every subject).
func New(nc *nats.Conn, opts Options) *Adapter {
	if opts.MaxElapsed <= 0 {
		opts.MaxElapsed = 5 * time.Second
	}
	if opts.BreakerName == "" {
		opts.BreakerName = "ddscore-natsbus"
	}
	return &Adapter{
		nc: nc,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        opts.BreakerName,
			MaxRequests: 1,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		maxElapsed: opts.MaxElapsed,
	}
}

// Endpoint implements entity.Transport for one writer GUID: Send publishes
// to that GUID's subject (through the circuit breaker, with bounded
// exponential-backoff retry); SetReceiveCallback subscribes to it.
type Endpoint struct {
	adapter    *Adapter
	writerGUID guid.GUID
	sub        *nats.Subscription
}

// NewEndpoint returns a Transport bound to writerGUID's subject.
func (a *Adapter) NewEndpoint(writerGUID guid.GUID) *Endpoint {
	return &Endpoint{adapter: a, writerGUID: writerGUID}
}

type wireMessage struct {
	WriterGUID [16]byte `json:"writer_guid"`
	Key        []byte   `json:"key"`
	SeqNum     uint64   `json:"seq_num"`
	Timestamp  int64    `json:"timestamp"`
	Dispose    bool     `json:"dispose,omitempty"`
	Unregister bool     `json:"unregister,omitempty"`
	Payload    []byte   `json:"payload,omitempty"`
}

// Send implements entity.Transport: publishes p to this endpoint's writer
// subject, retrying transient publish failures with bounded exponential
// backoff behind a circuit breaker so a wedged broker cannot hang a
// reliable writer's retry loop forever (SPEC_FULL.md §4.10).
func (e *Endpoint) Send(ctx context.Context, p entity.Packet) error {
	data, err := json.Marshal(wireMessage{
		WriterGUID: p.WriterGUID,
		Key:        p.Key,
		SeqNum:     p.SeqNum,
		Timestamp:  p.Timestamp,
		Dispose:    p.Status.Dispose,
		Unregister: p.Status.Unregister,
		Payload:    p.Payload,
	})
	if err != nil {
		return fmt.Errorf("natsbus: marshal packet: %w", err)
	}

	subj := subject(e.writerGUID)
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = e.adapter.maxElapsed

	_, err = e.adapter.breaker.Execute(func() (any, error) {
		return nil, backoff.Retry(func() error {
			if err := ctx.Err(); err != nil {
				return backoff.Permanent(err)
			}
			return e.adapter.nc.Publish(subj, data)
		}, backoff.WithContext(bo, ctx))
	})
	if err != nil {
		return fmt.Errorf("natsbus: publish %s: %w", subj, err)
	}
	return nil
}

// SetReceiveCallback implements entity.Transport: subscribes to this
// endpoint's writer subject, decoding each message back into a Packet
// before invoking cb. A nil cb unsubscribes.
func (e *Endpoint) SetReceiveCallback(cb func(entity.Packet)) {
	if e.sub != nil {
		_ = e.sub.Unsubscribe()
		e.sub = nil
	}
	if cb == nil {
		return
	}
	subj := subject(e.writerGUID)
	sub, err := e.adapter.nc.Subscribe(subj, func(msg *nats.Msg) {
		var wm wireMessage
		if err := json.Unmarshal(msg.Data, &wm); err != nil {
			return
		}
		cb(entity.Packet{
			WriterGUID: guid.GUID(wm.WriterGUID),
			Key:        sample.Key(wm.Key),
			SeqNum:     wm.SeqNum,
			Timestamp:  wm.Timestamp,
			Status:     sample.StatusInfo{Dispose: wm.Dispose, Unregister: wm.Unregister},
			Payload:    wm.Payload,
		})
	})
	if err != nil {
		return
	}
	e.sub = sub
}

var _ entity.Transport = (*Endpoint)(nil)
