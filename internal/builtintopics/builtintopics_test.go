package builtintopics

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebula-dds/ddscore/internal/entity"
	"github.com/nebula-dds/ddscore/internal/qos"
	"github.com/nebula-dds/ddscore/internal/sample"
)

type stubType struct{ name string }

func (s stubType) TypeName() string { return s.name }
func (s stubType) ExtractKey(payload []byte) (sample.Key, error) {
	return sample.Key(payload), nil
}

func TestMirrorPublishesOnEntityCreation(t *testing.T) {
	t.Cleanup(entity.ResetRegistry)
	m := New()

	d := entity.GetOrCreateDomain(30, m)
	p, err := d.CreateParticipant(qos.Default(), m)
	require.NoError(t, err)
	topic, err := p.CreateTopic("T", stubType{"T"}, qos.Default(), m)
	require.NoError(t, err)
	pub, err := p.CreatePublisher(qos.Default(), m)
	require.NoError(t, err)
	sub, err := p.CreateSubscriber(qos.Default(), m)
	require.NoError(t, err)
	w, err := pub.CreateWriter(topic, qos.Default(), m)
	require.NoError(t, err)
	r, err := sub.CreateReader(topic, qos.Default(), m)
	require.NoError(t, err)

	require.Len(t, m.Participants(), 1)
	require.Len(t, m.Topics(), 1)
	require.Len(t, m.Publications(), 1)
	require.Len(t, m.Subscriptions(), 1)

	partRec, ok := m.Participant(p.GUID())
	require.True(t, ok)
	assert.Equal(t, uint32(30), partRec.DomainID)

	topicRec, ok := m.Topic(topic.GUID())
	require.True(t, ok)
	assert.Equal(t, "T", topicRec.Name)
	assert.Equal(t, p.GUID(), topicRec.ParticipantGUID)

	pubRec, ok := m.Publication(w.GUID())
	require.True(t, ok)
	assert.Equal(t, "T", pubRec.TopicName)
	assert.Equal(t, p.GUID(), pubRec.ParticipantGUID)

	subRec, ok := m.Subscription(r.GUID())
	require.True(t, ok)
	assert.Equal(t, "T", subRec.TopicName)
}

func TestMirrorDisposesOnEntityDeletion(t *testing.T) {
	t.Cleanup(entity.ResetRegistry)
	m := New()

	d := entity.GetOrCreateDomain(31, m)
	p, err := d.CreateParticipant(qos.Default(), m)
	require.NoError(t, err)
	_, err = p.CreateTopic("T", stubType{"T"}, qos.Default(), m)
	require.NoError(t, err)

	samples := m.Participants()
	require.Len(t, samples, 1)
	assert.True(t, samples[0].ValidData)

	require.NoError(t, d.DeleteParticipant(p))

	samples = m.Participants()
	require.Len(t, samples, 1)
	assert.False(t, samples[0].ValidData)
	assert.True(t, samples[0].Status.Dispose)

	_, ok := m.Participant(p.GUID())
	assert.False(t, ok)
}

func TestPublicationRecordRoundTripsThroughJSON(t *testing.T) {
	t.Cleanup(entity.ResetRegistry)
	m := New()
	d := entity.GetOrCreateDomain(32, m)
	p, err := d.CreateParticipant(qos.Default(), m)
	require.NoError(t, err)
	topic, err := p.CreateTopic("T", stubType{"T"}, qos.Default(), m)
	require.NoError(t, err)
	pub, err := p.CreatePublisher(qos.Default(), m)
	require.NoError(t, err)
	w, err := pub.CreateWriter(topic, qos.Default(), m)
	require.NoError(t, err)

	samples := m.Publications()
	require.Len(t, samples, 1)

	var rec PublicationRecord
	require.NoError(t, json.Unmarshal(samples[0].Payload, &rec))
	assert.Equal(t, w.GUID(), rec.GUID)
	assert.Equal(t, "T", rec.TopicName)
}
