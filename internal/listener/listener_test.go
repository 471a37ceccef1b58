package listener

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebula-dds/ddscore/internal/dderr"
	"github.com/nebula-dds/ddscore/internal/entity"
	"github.com/nebula-dds/ddscore/internal/qos"
	"github.com/nebula-dds/ddscore/internal/sample"
	"github.com/nebula-dds/ddscore/internal/status"
)

type stubType struct{ name string }

func (s stubType) TypeName() string { return s.name }
func (s stubType) ExtractKey(payload []byte) (sample.Key, error) {
	return sample.Key(payload), nil
}

// testGraph builds a participant/topic/publisher/subscriber/writer/reader
// graph under a Manager, so DeliverStatus/CheckReentrant can be exercised
// against real entities and their real parent chain.
type testGraph struct {
	mgr *Manager
	sub *entity.Subscriber
	w   *entity.DataWriter
	r   *entity.DataReader
}

func newTestGraph(t *testing.T, domainID uint32) *testGraph {
	t.Cleanup(entity.ResetRegistry)
	mgr := NewManager()
	t.Cleanup(mgr.Close)

	d := entity.GetOrCreateDomain(domainID, mgr)
	p, err := d.CreateParticipant(qos.Default(), mgr)
	require.NoError(t, err)
	topic, err := p.CreateTopic("T", stubType{"T"}, qos.Default(), mgr)
	require.NoError(t, err)
	pub, err := p.CreatePublisher(qos.Default(), mgr)
	require.NoError(t, err)
	sub, err := p.CreateSubscriber(qos.Default(), mgr)
	require.NoError(t, err)
	reliable := qos.Default()
	reliable.ReliabilityKind = qos.Reliable

	w, err := pub.CreateWriter(topic, reliable, mgr)
	require.NoError(t, err)
	r, err := sub.CreateReader(topic, reliable, mgr)
	require.NoError(t, err)

	return &testGraph{mgr: mgr, sub: sub, w: w, r: r}
}

func TestSetListenerSubstitutesForStatusBit(t *testing.T) {
	g := newTestGraph(t, 20)
	r := g.r
	r.SetEnabledStatusMask(status.SubscriptionMatched)
	// CreateReader already raised SubscriptionMatched under the default
	// all-enabled mask; clear it so the check below sees only the raise
	// made while the listener is set.
	r.Statuses().Take()

	calls := make(chan status.Mask, 1)
	g.mgr.SetListener(r, status.SubscriptionMatched, func(e entity.Entity, bit status.Mask) {
		calls <- bit
	})

	r.RaiseStatus(status.SubscriptionMatched)

	select {
	case bit := <-calls:
		assert.Equal(t, status.SubscriptionMatched, bit)
	case <-time.After(time.Second):
		t.Fatal("listener callback never ran")
	}

	// the bit must never actually be set: a listener substitutes for the
	// status, it doesn't run alongside it.
	assert.Zero(t, r.Statuses().Read()&status.SubscriptionMatched)
}

func TestNoListenerRaisesStatusNormally(t *testing.T) {
	g := newTestGraph(t, 21)
	r := g.r
	r.SetEnabledStatusMask(status.SubscriptionMatched)

	r.RaiseStatus(status.SubscriptionMatched)

	assert.NotZero(t, r.Statuses().Read()&status.SubscriptionMatched)
}

func TestDataAvailableInheritsToParentWhenUnsetOnReader(t *testing.T) {
	g := newTestGraph(t, 22)
	r := g.r
	r.SetEnabledStatusMask(status.DataAvailable)

	calls := make(chan entity.Entity, 1)
	g.mgr.SetListener(g.sub, status.DataAvailable, func(e entity.Entity, bit status.Mask) {
		calls <- e
	})

	r.RaiseStatus(status.DataAvailable)

	select {
	case owner := <-calls:
		assert.Equal(t, g.sub, owner)
	case <-time.After(time.Second):
		t.Fatal("parent listener never ran for DATA_AVAILABLE")
	}
	assert.Zero(t, r.Statuses().Read()&status.DataAvailable)
}

func TestNonDataAvailableBitsDoNotInheritToParent(t *testing.T) {
	g := newTestGraph(t, 23)
	r := g.r
	r.SetEnabledStatusMask(status.SubscriptionMatched)

	calls := make(chan entity.Entity, 1)
	g.mgr.SetListener(g.sub, status.SubscriptionMatched, func(e entity.Entity, bit status.Mask) {
		calls <- e
	})

	r.RaiseStatus(status.SubscriptionMatched)

	select {
	case <-calls:
		t.Fatal("ancestor listener must not fire for a non-DATA_AVAILABLE bit")
	case <-time.After(50 * time.Millisecond):
	}
	// no listener on the reader itself, so the bit is raised normally.
	assert.NotZero(t, r.Statuses().Read()&status.SubscriptionMatched)
}

func TestListenerDeliveryIsSerializedPerEntity(t *testing.T) {
	g := newTestGraph(t, 24)
	r := g.r
	r.SetEnabledStatusMask(status.SampleRejected | status.SampleLost)

	var mu sync.Mutex
	var order []int
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	g.mgr.SetListener(r, status.SampleRejected, func(entity.Entity, status.Mask) {
		started <- struct{}{}
		<-release
		mu.Lock()
		order = append(order, 1)
		mu.Unlock()
	})
	g.mgr.SetListener(r, status.SampleLost, func(entity.Entity, status.Mask) {
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
	})

	r.RaiseStatus(status.SampleRejected)
	<-started
	r.RaiseStatus(status.SampleLost)

	// the second callback must queue behind the first, not run concurrently.
	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	assert.Empty(t, order)
	mu.Unlock()

	close(release)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []int{1, 2}, order)
	mu.Unlock()
}

func TestCheckReentrantDuringOwnCallback(t *testing.T) {
	g := newTestGraph(t, 25)
	r := g.r
	r.SetEnabledStatusMask(status.SampleRejected)

	inCallback := make(chan struct{})
	release := make(chan struct{})
	g.mgr.SetListener(r, status.SampleRejected, func(entity.Entity, status.Mask) {
		close(inCallback)
		<-release
	})

	r.RaiseStatus(status.SampleRejected)
	<-inCallback

	err := g.mgr.CheckReentrant(r)
	require.Error(t, err)
	assert.True(t, dderr.Is(err, dderr.IllegalOperation))

	close(release)
	require.Eventually(t, func() bool {
		return g.mgr.CheckReentrant(r) == nil
	}, time.Second, 5*time.Millisecond)
}

func TestCheckReentrantWithNoDispatcherYetIsNil(t *testing.T) {
	g := newTestGraph(t, 26)
	assert.NoError(t, g.mgr.CheckReentrant(g.r))
}

func TestWaitForAcknowledgmentsUnblocksAfterReaderAck(t *testing.T) {
	g := newTestGraph(t, 27)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	seq, err := g.w.Write(ctx, []byte("x"), 1)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- g.w.WaitForAcknowledgments(ctx) }()

	select {
	case <-done:
		t.Fatal("wait_for_acknowledgments returned before the reader acked")
	case <-time.After(20 * time.Millisecond):
	}

	g.w.Ack(g.r.GUID(), seq)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("wait_for_acknowledgments never unblocked")
	}
}
