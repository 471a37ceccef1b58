package handle

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebula-dds/ddscore/internal/dderr"
)

type fakeEntity struct{ name string }

func (f *fakeEntity) Kind() string { return "fake" }

func TestInsertPinUnpin(t *testing.T) {
	tbl := New()
	h := tbl.Insert(&fakeEntity{name: "p1"})
	assert.Greater(t, int32(h), int32(0))

	e, err := tbl.Pin(h)
	require.NoError(t, err)
	assert.Equal(t, "p1", e.(*fakeEntity).name)
	tbl.Unpin(h)
}

func TestDeleteThenPinReturnsAlreadyDeleted(t *testing.T) {
	tbl := New()
	h := tbl.Insert(&fakeEntity{name: "p1"})
	require.NoError(t, tbl.Delete(h))

	_, err := tbl.Pin(h)
	require.Error(t, err)
	assert.True(t, dderr.Is(err, dderr.AlreadyDeleted))
}

func TestDeleteIsIdempotent(t *testing.T) {
	tbl := New()
	h := tbl.Insert(&fakeEntity{name: "p1"})
	require.NoError(t, tbl.Delete(h))
	require.NoError(t, tbl.Delete(h))
}

func TestPinnedEntitySurvivesCloseUntilUnpin(t *testing.T) {
	tbl := New()
	h := tbl.Insert(&fakeEntity{name: "p1"})

	e, err := tbl.Pin(h)
	require.NoError(t, err)

	require.NoError(t, tbl.Close(h))

	// Already-pinned access remains valid...
	assert.Equal(t, "p1", e.(*fakeEntity).name)

	// ...but no new pin succeeds once closed.
	_, err = tbl.Pin(h)
	require.Error(t, err)
	assert.True(t, dderr.Is(err, dderr.AlreadyDeleted))

	done := make(chan struct{})
	go func() {
		_ = tbl.Delete(h)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Delete returned before Unpin released the last pin")
	case <-time.After(50 * time.Millisecond):
	}

	tbl.Unpin(h)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Delete did not unblock after Unpin")
	}
}

func TestGenerationPreventsABA(t *testing.T) {
	tbl := New()
	h1 := tbl.Insert(&fakeEntity{name: "first"})
	require.NoError(t, tbl.Delete(h1))

	h2 := tbl.Insert(&fakeEntity{name: "second"})

	// h1 must never resolve to the entity now occupying its old slot.
	_, err := tbl.Pin(h1)
	require.Error(t, err)

	e2, err := tbl.Pin(h2)
	require.NoError(t, err)
	assert.Equal(t, "second", e2.(*fakeEntity).name)
	tbl.Unpin(h2)
}

func TestConcurrentInsertPinUnpin(t *testing.T) {
	tbl := New()
	var wg sync.WaitGroup
	handles := make([]Handle, 200)
	for i := range handles {
		handles[i] = tbl.Insert(&fakeEntity{name: "x"})
	}

	for _, h := range handles {
		wg.Add(1)
		go func(h Handle) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				e, err := tbl.Pin(h)
				if err == nil {
					_ = e.(*fakeEntity)
					tbl.Unpin(h)
				}
			}
		}(h)
	}
	wg.Wait()
}
