package observability

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsSafeForConcurrentFirstUse(t *testing.T) {
	// The poller and the intake worker both touch metrics as soon as they
	// start; a second registration of the same collectors would panic.
	const goroutines = 8

	instances := make([]*Metrics, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			instances[i] = Default()
		}(i)
	}
	wg.Wait()

	require.NotNil(t, instances[0])
	for i := 1; i < goroutines; i++ {
		assert.Same(t, instances[0], instances[i])
	}
}
