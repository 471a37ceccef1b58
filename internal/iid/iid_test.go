package iid

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextIsUniqueAndNonZero(t *testing.T) {
	g := New()
	seen := make(map[uint64]bool)
	for i := 0; i < 10_000; i++ {
		id := g.Next()
		assert.NotZero(t, id)
		assert.False(t, seen[id], "iid collision at iteration %d", i)
		seen[id] = true
	}
}

func TestNextConcurrentSafe(t *testing.T) {
	g := New()
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[uint64]bool)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				id := g.Next()
				mu.Lock()
				assert.False(t, seen[id])
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 50*200)
}

func TestTeaRoundTrip(t *testing.T) {
	key := [4]uint32{1, 2, 3, 4}
	v0, v1 := teaEncrypt(0x1234, 0x5678, key)
	d0, d1 := teaDecrypt(v0, v1, key)
	assert.Equal(t, uint32(0x1234), d0)
	assert.Equal(t, uint32(0x5678), d1)
}

func TestDefaultIsSingleton(t *testing.T) {
	a := Default()
	b := Default()
	assert.Same(t, a, b)
}
