package rhc

import "github.com/nebula-dds/ddscore/internal/sample"

// SampleStateMask, ViewStateMask, and InstanceStateMask are the three
// independent filter masks Read/Take accept per spec.md §4.4 ("Both accept
// a sample-state mask, view-state mask, instance-state mask").
type SampleStateMask uint8

const (
	ReadMask SampleStateMask = 1 << iota
	NotReadMask
)

const AnySampleState = ReadMask | NotReadMask

type ViewStateMask uint8

const (
	NewMask ViewStateMask = 1 << iota
	NotNewMask
)

const AnyViewState = NewMask | NotNewMask

type InstanceStateMask uint8

const (
	AliveMask InstanceStateMask = 1 << iota
	NotAliveDisposedMask
	NotAliveNoWritersMask
)

const AnyInstanceState = AliveMask | NotAliveDisposedMask | NotAliveNoWritersMask

func sampleStateBit(s sample.SampleState) SampleStateMask {
	if s == sample.Read {
		return ReadMask
	}
	return NotReadMask
}

func viewStateBit(v sample.ViewState) ViewStateMask {
	if v == sample.New {
		return NewMask
	}
	return NotNewMask
}

func instanceStateBit(i sample.InstanceState) InstanceStateMask {
	switch i {
	case sample.Alive:
		return AliveMask
	case sample.NotAliveDisposed:
		return NotAliveDisposedMask
	default:
		return NotAliveNoWritersMask
	}
}

type ReadTakeMask struct {
	Samples   SampleStateMask
	Views     ViewStateMask
	Instances InstanceStateMask
}

var AnyMask = ReadTakeMask{Samples: AnySampleState, Views: AnyViewState, Instances: AnyInstanceState}

// matches checks a sample against the mask. View state is an instance-level
// property (spec.md §3), not a fact frozen onto the sample at insertion, so
// the caller supplies the instance's current view state rather than reading
// a stored field off s.
func (m ReadTakeMask) matches(s *sample.Sample, view sample.ViewState) bool {
	return m.Samples&sampleStateBit(s.SampleState) != 0 &&
		m.Views&viewStateBit(view) != 0 &&
		m.Instances&instanceStateBit(s.InstanceState) != 0
}
