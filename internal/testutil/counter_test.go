package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter_StartsAtZero(t *testing.T) {
	assert.Equal(t, int64(0), NewCounter().Current())
}

func TestCounter_NextIncrements(t *testing.T) {
	c := NewCounter()

	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())

	c.Reset()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
}

func TestCounter_ThreadSafe(t *testing.T) {
	c := NewCounter()
	const goroutines = 50
	const calls = 100

	var wg sync.WaitGroup
	seen := make([][]int64, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				seen[idx] = append(seen[idx], c.Next())
			}
		}(i)
	}
	wg.Wait()

	all := make(map[int64]bool)
	for _, vals := range seen {
		for _, v := range vals {
			require.False(t, all[v], "duplicate value %d", v)
			all[v] = true
		}
	}
	assert.Len(t, all, goroutines*calls)
	assert.Equal(t, int64(goroutines*calls), c.Current())
}
