package condition

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebula-dds/ddscore/internal/entity"
	"github.com/nebula-dds/ddscore/internal/qos"
	"github.com/nebula-dds/ddscore/internal/rhc"
	"github.com/nebula-dds/ddscore/internal/sample"
	"github.com/nebula-dds/ddscore/internal/status"
)

type stubType struct{ name string }

func (s stubType) TypeName() string { return s.name }
func (s stubType) ExtractKey(payload []byte) (sample.Key, error) {
	return sample.Key(payload), nil
}

func newTestReader(t *testing.T, domainID uint32) (*entity.DataWriter, *entity.DataReader) {
	t.Cleanup(entity.ResetRegistry)
	d := entity.GetOrCreateDomain(domainID, nil)
	p, err := d.CreateParticipant(qos.Default(), nil)
	require.NoError(t, err)
	topic, err := p.CreateTopic("T", stubType{"T"}, qos.Default(), nil)
	require.NoError(t, err)
	pub, err := p.CreatePublisher(qos.Default(), nil)
	require.NoError(t, err)
	sub, err := p.CreateSubscriber(qos.Default(), nil)
	require.NoError(t, err)
	w, err := pub.CreateWriter(topic, qos.Default(), nil)
	require.NoError(t, err)
	r, err := sub.CreateReader(topic, qos.Default(), nil)
	require.NoError(t, err)
	return w, r
}

func TestGuardConditionWakesWaitSet(t *testing.T) {
	guard := NewGuardCondition()
	ws := New()
	ws.Attach(guard)

	done := make(chan []Condition, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		out, err := ws.WaitUntil(ctx)
		if err == nil {
			done <- out
		} else {
			done <- nil
		}
	}()

	time.Sleep(20 * time.Millisecond)
	guard.SetTriggerValue(true)

	select {
	case out := <-done:
		require.Len(t, out, 1)
		assert.Equal(t, guard, out[0])
	case <-time.After(time.Second):
		t.Fatal("waitset never woke up")
	}
}

func TestWaitUntilReturnsImmediatelyWhenAlreadyTriggered(t *testing.T) {
	guard := NewGuardCondition()
	guard.SetTriggerValue(true)
	ws := New()
	ws.Attach(guard)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	out, err := ws.WaitUntil(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestWaitUntilTimesOutWithNoTrigger(t *testing.T) {
	ws := New()
	ws.Attach(NewGuardCondition())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := ws.WaitUntil(ctx)
	assert.Error(t, err)
}

func TestDetachUnattachedConditionReturnsPreconditionNotMet(t *testing.T) {
	ws := New()
	err := ws.Detach(NewGuardCondition())
	assert.Error(t, err)
}

func TestReadConditionTriggersOnSampleArrival(t *testing.T) {
	w, r := newTestReader(t, 10)
	rc := NewReadCondition(r, rhc.AnyMask)
	assert.False(t, rc.Triggered())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := w.Write(ctx, []byte("x"), 1)
	require.NoError(t, err)

	assert.True(t, rc.Triggered())
}

func TestStatusConditionTriggersOnEnabledStatus(t *testing.T) {
	w, r := newTestReader(t, 11)
	r.SetEnabledStatusMask(status.SubscriptionMatched)
	sc := NewStatusCondition(r, status.SubscriptionMatched)

	// addMatch already raised SubscriptionMatched during CreateReader,
	// while the default mask still enabled every status; raising it
	// explicitly here exercises the condition without relying on that
	// creation-time raise.
	r.RaiseStatus(status.SubscriptionMatched)
	_ = w
	assert.True(t, sc.Triggered())
}

func TestQueryConditionFiltersByPredicate(t *testing.T) {
	w, r := newTestReader(t, 12)
	qc := NewQueryCondition(r, rhc.AnyMask, func(s *sample.Sample) bool {
		return string(s.Payload) == "match"
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := w.Write(ctx, []byte("nope"), 1)
	require.NoError(t, err)
	assert.False(t, qc.Triggered())

	_, err = w.Write(ctx, []byte("match"), 2)
	require.NoError(t, err)
	assert.True(t, qc.Triggered())
}
