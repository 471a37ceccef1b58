package guid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParticipantsInSameProcessSharePrefixPortion(t *testing.T) {
	p1 := NewParticipantPrefix()
	p2 := NewParticipantPrefix()

	assert.Equal(t, p1[0:8], p2[0:8], "process-wide seed bytes must match")
	assert.NotEqual(t, p1[8:12], p2[8:12], "per-participant bytes must differ")
}

func TestNewEncodesKindInSuffix(t *testing.T) {
	prefix := NewParticipantPrefix()
	w := New(prefix, KindWriter, 1)
	r := New(prefix, KindReader, 1)

	assert.NotEqual(t, w, r)
	assert.Equal(t, byte(KindWriter), w[15])
	assert.Equal(t, byte(KindReader), r[15])
	assert.Equal(t, prefix[:], w[0:12])
}
