package entity

import (
	"golang.org/x/sync/errgroup"

	"github.com/nebula-dds/ddscore/internal/dderr"
)

// deleteSubtree performs spec.md §4.2's recursive post-order delete: every
// writer/reader under a publisher/subscriber is torn down before the
// publisher/subscriber itself, and every publisher/subscriber before the
// owning participant, with topics last since writers/readers reference
// them. Sibling publishers/subscribers are torn down concurrently with
// errgroup, since they share no state besides the participant's own maps
// (which each closer locks independently).
func deleteSubtree(p *Participant) error {
	var g errgroup.Group

	for _, pub := range p.snapshotPublishers() {
		pub := pub
		g.Go(func() error {
			deletePublisher(pub)
			return nil
		})
	}
	for _, sub := range p.snapshotSubscribers() {
		sub := sub
		g.Go(func() error {
			deleteSubscriber(sub)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, t := range p.snapshotTopics() {
		p.mu.Lock()
		delete(p.topics, t.name)
		p.mu.Unlock()
		p.Base.removeChild(p, t)
		p.domain.handles.Delete(t.Handle())
		p.domain.stats.DecTopics()
	}
	return nil
}

func deletePublisher(pub *Publisher) {
	var g errgroup.Group
	for _, w := range pub.snapshotWriters() {
		w := w
		g.Go(func() error {
			deleteWriter(w)
			return nil
		})
	}
	_ = g.Wait()

	part := pub.participant
	part.mu.Lock()
	delete(part.publishers, pub)
	part.mu.Unlock()
	part.Base.removeChild(part, pub)

	pub.domain().handles.Delete(pub.Handle())
	pub.domain().stats.DecPublishers()
}

func deleteSubscriber(sub *Subscriber) {
	var g errgroup.Group
	for _, r := range sub.snapshotReaders() {
		r := r
		g.Go(func() error {
			deleteReader(r)
			return nil
		})
	}
	_ = g.Wait()

	part := sub.participant
	part.mu.Lock()
	delete(part.subscribers, sub)
	part.mu.Unlock()
	part.Base.removeChild(part, sub)

	sub.domain().handles.Delete(sub.Handle())
	sub.domain().stats.DecSubscribers()
}

func deleteWriter(w *DataWriter) {
	for _, r := range w.snapshotMatched() {
		unmatchEndpoints(w, r)
	}
	w.close()
	w.publisher.domain().handles.Delete(w.Handle())
	w.publisher.domain().stats.DecWriters()
}

func deleteReader(r *DataReader) {
	for _, w := range r.snapshotMatched() {
		unmatchEndpoints(w, r)
	}
	r.close()
	r.subscriber.domain().handles.Delete(r.Handle())
	r.subscriber.domain().stats.DecReaders()
}

// deleteTopicStandalone implements delete(handle) called directly on a
// topic handle rather than reached via delete_participant's cascade: a
// topic with any writer or reader still attached returns
// PRECONDITION_NOT_MET rather than being torn down out from under them.
func deleteTopicStandalone(t *Topic) error {
	if len(t.snapshotWriters()) > 0 || len(t.snapshotReaders()) > 0 {
		return dderr.New(dderr.PreconditionNotMet, "entity: delete topic %q: still has attached writers/readers", t.name)
	}
	p := t.participant
	p.mu.Lock()
	delete(p.topics, t.name)
	p.mu.Unlock()
	p.Base.removeChild(p, t)
	p.domain.handles.Delete(t.Handle())
	p.domain.stats.DecTopics()
	return nil
}

// DeleteEntity implements spec.md §4.2's generic delete(handle) operation:
// recursive post-order teardown regardless of which entity kind the
// handle names, safe to call twice. pkg/ddsc resolves a handle to an
// Entity and calls this rather than requiring the caller to know which
// concrete delete_* function applies.
func DeleteEntity(e Entity) error {
	switch v := e.(type) {
	case *Participant:
		return v.domain.DeleteParticipant(v)
	case *Topic:
		return deleteTopicStandalone(v)
	case *Publisher:
		deletePublisher(v)
		return nil
	case *Subscriber:
		deleteSubscriber(v)
		return nil
	case *DataWriter:
		deleteWriter(v)
		return nil
	case *DataReader:
		deleteReader(v)
		return nil
	default:
		return dderr.New(dderr.BadParameter, "entity: delete: handle does not name a deletable entity")
	}
}
