package dispatcher

import (
	"sync"
	"testing"
	"time"

	"github.com/bitcoin-sv/chaincore/errors"
	"github.com/bitcoin-sv/chaincore/ulogger"
	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestDispatcher_WriterIsSerialized(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	d := New(ulogger.TestLogger{}, 4)
	defer d.Stop()

	var (
		mu      sync.Mutex
		order   []int
		running atomic.Int32
		overlap atomic.Bool
		wg      sync.WaitGroup
	)

	for i := 0; i < 100; i++ {
		wg.Add(1)

		require.NoError(t, d.Writer().Submit(func() {
			defer wg.Done()

			if running.Inc() > 1 {
				overlap.Store(true)
			}

			mu.Lock()
			order = append(order, i)
			mu.Unlock()

			running.Dec()
		}))
	}

	wg.Wait()

	assert.False(t, overlap.Load())

	for i, v := range order {
		require.Equal(t, i, v)
	}
}

func TestDispatcher_ReaderIsParallel(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	const workers = 4

	d := New(ulogger.TestLogger{}, workers)
	defer d.Stop()

	assert.Equal(t, workers, d.Size())
	assert.Equal(t, workers, d.Reader().Size())

	var (
		started sync.WaitGroup
		release = make(chan struct{})
		done    sync.WaitGroup
	)

	started.Add(workers)
	done.Add(workers)

	// every job blocks until all workers are busy at once
	for i := 0; i < workers; i++ {
		require.NoError(t, d.Reader().Submit(func() {
			defer done.Done()

			started.Done()
			<-release
		}))
	}

	started.Wait()
	close(release)
	done.Wait()
}

func TestDispatcher_NestedSubmit(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	d := New(ulogger.TestLogger{}, 1)
	defer d.Stop()

	result := make(chan int, 1)

	// a single reader worker must not deadlock when a job queues another job
	require.NoError(t, d.Writer().Submit(func() {
		inner := make(chan int, 1)

		assert.NoError(t, d.Reader().Submit(func() {
			assert.NoError(t, d.Background().Submit(func() { inner <- 42 }))
		}))

		result <- <-inner
	}))

	select {
	case v := <-result:
		assert.Equal(t, 42, v)
	case <-time.After(5 * time.Second):
		t.Fatal("nested submit did not complete")
	}
}

func TestDispatcher_Stop(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	d := New(ulogger.TestLogger{}, 2)

	var ran atomic.Int32

	for i := 0; i < 20; i++ {
		require.NoError(t, d.Reader().Submit(func() {
			time.Sleep(time.Millisecond)
			ran.Inc()
		}))
	}

	d.Stop()
	d.Stop()

	// queued work drains before Stop returns
	assert.Equal(t, int32(20), ran.Load())
	assert.Equal(t, int64(0), d.Pending())

	err := d.Writer().Submit(func() {})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrServiceStopped))
}

func TestDispatcher_DefaultWorkers(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	d := New(ulogger.TestLogger{}, 0)
	defer d.Stop()

	assert.Positive(t, d.Size())
}
