package dispatch

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolProcessesAllJobs(t *testing.T) {
	var processed int32
	var wg sync.WaitGroup
	wg.Add(100)

	pool := NewWorkerPool(4, 10, func(payload interface{}) {
		atomic.AddInt32(&processed, 1)
		wg.Done()
	})

	for i := 0; i < 100; i++ {
		require.NoError(t, pool.AddJob(i, true, time.Second))
	}

	wg.Wait()
	assert.Equal(t, int32(100), atomic.LoadInt32(&processed))

	pool.Close(true, time.Second)
}

func TestWorkerPoolNonBlockingAddJobFailsWhenFull(t *testing.T) {
	block := make(chan struct{})
	pool := NewWorkerPool(1, 1, func(payload interface{}) {
		<-block
	})
	defer pool.Close(false, time.Second)
	defer close(block)

	require.NoError(t, pool.AddJob(1, false, 0)) // picked up by the single worker
	require.NoError(t, pool.AddJob(2, false, 0)) // fills the one-slot queue

	err := pool.AddJob(3, false, 0)
	assert.Equal(t, ErrQueueFull, err)
}

func TestWorkerPoolAddJobAfterCloseFails(t *testing.T) {
	pool := NewWorkerPool(2, 4, func(payload interface{}) {})
	pool.Close(true, time.Second)

	err := pool.AddJob(1, false, 0)
	assert.Equal(t, ErrPoolClosed, err)
}

func TestWorkerPoolCloseWithoutDrainPurgesPending(t *testing.T) {
	started := make(chan struct{})
	block := make(chan struct{})
	var processed int32

	pool := NewWorkerPool(1, 10, func(payload interface{}) {
		close(started)
		<-block
		atomic.AddInt32(&processed, 1)
	})

	require.NoError(t, pool.AddJob(1, false, 0))
	<-started // worker is now blocked inside the first job

	for i := 0; i < 5; i++ {
		pool.AddJob(i, false, 0)
	}

	close(block)
	pool.Close(false, time.Second)

	assert.Equal(t, int32(1), atomic.LoadInt32(&processed))
}
