package loopback

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebula-dds/ddscore/internal/entity"
	"github.com/nebula-dds/ddscore/internal/guid"
)

func TestSendFansOutToAllRegisteredEndpoints(t *testing.T) {
	bus := NewBus()
	writerGUID := guid.New(guid.NewParticipantPrefix(), guid.KindWriter, 1)

	writerSide := bus.NewEndpoint(writerGUID)

	var got1, got2 []entity.Packet
	reader1 := bus.NewEndpoint(writerGUID)
	reader1.SetReceiveCallback(func(p entity.Packet) { got1 = append(got1, p) })
	reader2 := bus.NewEndpoint(writerGUID)
	reader2.SetReceiveCallback(func(p entity.Packet) { got2 = append(got2, p) })

	require.NoError(t, writerSide.Send(context.Background(), entity.Packet{SeqNum: 1}))

	require.Len(t, got1, 1)
	require.Len(t, got2, 1)
	assert.Equal(t, uint64(1), got1[0].SeqNum)
}

func TestUnsetReceiveCallbackOnlyAffectsOwnEndpoint(t *testing.T) {
	bus := NewBus()
	writerGUID := guid.New(guid.NewParticipantPrefix(), guid.KindWriter, 2)
	writerSide := bus.NewEndpoint(writerGUID)

	var got1, got2 []entity.Packet
	reader1 := bus.NewEndpoint(writerGUID)
	reader1.SetReceiveCallback(func(p entity.Packet) { got1 = append(got1, p) })
	reader2 := bus.NewEndpoint(writerGUID)
	reader2.SetReceiveCallback(func(p entity.Packet) { got2 = append(got2, p) })

	reader1.SetReceiveCallback(nil)

	require.NoError(t, writerSide.Send(context.Background(), entity.Packet{SeqNum: 2}))
	assert.Empty(t, got1)
	require.Len(t, got2, 1)
}

func TestDifferentWriterGUIDsDoNotCrossDeliver(t *testing.T) {
	bus := NewBus()
	gA := guid.New(guid.NewParticipantPrefix(), guid.KindWriter, 3)
	gB := guid.New(guid.NewParticipantPrefix(), guid.KindWriter, 4)

	var gotB []entity.Packet
	readerOnB := bus.NewEndpoint(gB)
	readerOnB.SetReceiveCallback(func(p entity.Packet) { gotB = append(gotB, p) })

	writerA := bus.NewEndpoint(gA)
	require.NoError(t, writerA.Send(context.Background(), entity.Packet{SeqNum: 3}))

	assert.Empty(t, gotB)
}
