// Package sample defines the wire-independent sample and state types
// shared by the reader and writer history caches (spec.md §3).
package sample

import "github.com/nebula-dds/ddscore/internal/guid"

type SampleState int

const (
	Read SampleState = iota
	NotRead
)

type ViewState int

const (
	New ViewState = iota
	NotNew
)

type InstanceState int

const (
	Alive InstanceState = iota
	NotAliveDisposed
	NotAliveNoWriters
)

// StatusInfo carries the dispose/unregister flags serialized alongside a
// sample, matching spec.md §3's "dispose/unregister status".
type StatusInfo struct {
	Dispose    bool
	Unregister bool
}

// Key is a length-prefixed, lexicographically-ordered byte string, matching
// the Serializer boundary contract in spec.md §6.
type Key []byte

func (k Key) String() string { return string(k) }

// Sample is one reader-cache entry: an opaque application payload plus the
// metadata spec.md §3 names. Payload is nil for dispose/unregister sentinel
// samples (ValidData == false).
type Sample struct {
	Payload              []byte
	InstanceKey          Key
	SourceTimestampNs     int64
	ReceptionTimestampNs  int64
	WriterGUID            guid.GUID
	SeqNum                uint64
	ValidData             bool
	Status                StatusInfo
	SampleState           SampleState
	ViewState             ViewState
	InstanceState         InstanceState
}
