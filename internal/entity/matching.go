package entity

import (
	"github.com/nebula-dds/ddscore/internal/qos"
	"github.com/nebula-dds/ddscore/internal/status"
)

// matchEndpoints runs spec.md §4.3's match_qos compatibility check between
// a writer and a reader on the same topic and wires or unwires them
// accordingly. Called when a new writer/reader is created against a topic
// that already has the other side; a later SetQoS does not re-run it.
func matchEndpoints(w *DataWriter, r *DataReader) {
	ok, failed := qos.Match(r.QoS(), w.QoS())
	if !ok {
		w.raiseStatus(w, status.OfferedIncompatibleQoS)
		r.raiseStatus(r, status.RequestedIncompatibleQoS)
		unmatchEndpoints(w, r)
		return
	}
	w.addMatch(r)
	r.addMatch(w)
	w.publisher.participant.domain.stats.IncMatched()
	_ = failed
}

// unmatchEndpoints tears down an existing match, e.g. after a QoS change
// makes a previously matched pair incompatible.
func unmatchEndpoints(w *DataWriter, r *DataReader) {
	w.mu.Lock()
	_, wasMatched := w.matched[r]
	w.mu.Unlock()
	if !wasMatched {
		return
	}
	w.removeMatch(r)
	r.removeMatch(w)
	w.publisher.participant.domain.stats.DecMatched()
}
