package threadpool

import (
	"bytes"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"poolsort/internal/events"
	"poolsort/internal/logger"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, n int, opts ...Option) *ThreadPool {
	t.Helper()
	opts = append([]Option{WithLogger(logger.Discard())}, opts...)
	pool, err := New(n, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for job result")
	}
	return Result{}
}

func TestNewZeroWorkers(t *testing.T) {
	for _, n := range []int{0, -1, -10} {
		pool, err := New(n)
		assert.ErrorIs(t, err, ErrZeroWorkers)
		assert.Nil(t, pool)
	}
}

func TestNewSpawnsRequestedWorkers(t *testing.T) {
	pool := newTestPool(t, 3)

	assert.Equal(t, 3, pool.NumWorkers())
	for i, w := range pool.Workers() {
		assert.Equal(t, i, w.ID())
		assert.Equal(t, StateRunning, w.State())
	}
}

func TestExecuteCountsEveryJob(t *testing.T) {
	for _, workers := range []int{1, 2, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			pool := newTestPool(t, workers)

			var counter atomic.Int64
			const jobs = 1000
			for range jobs {
				require.NoError(t, pool.ExecuteFunc(func() {
					counter.Add(1)
				}))
			}

			require.NoError(t, pool.Close())
			assert.Equal(t, int64(jobs), counter.Load())

			stats := pool.Stats()
			assert.Equal(t, int64(jobs), stats.Submitted)
			assert.Equal(t, int64(jobs), stats.Completed)
			assert.Zero(t, stats.Failed)
			assert.Zero(t, stats.Busy)
		})
	}
}

func TestSubmitReturnsResult(t *testing.T) {
	pool := newTestPool(t, 2)

	ran := false
	done, err := pool.Submit(TaskFunc(func() { ran = true }))
	require.NoError(t, err)

	res := waitResult(t, done)
	assert.NoError(t, res.Err)
	assert.True(t, ran)
	assert.NotEqual(t, uuid.Nil, res.JobID)
	assert.GreaterOrEqual(t, res.WorkerID, 0)
	assert.Less(t, res.WorkerID, 2)
}

func TestPanickingJobDoesNotKillWorker(t *testing.T) {
	var failures []*JobFailure
	var mu sync.Mutex
	pool := newTestPool(t, 1, WithFailureHandler(func(f *JobFailure) {
		mu.Lock()
		failures = append(failures, f)
		mu.Unlock()
	}))

	failed, err := pool.Submit(TaskFunc(func() {
		panic("intentional panic in job")
	}))
	require.NoError(t, err)

	var counter atomic.Int64
	ok, err := pool.Submit(TaskFunc(func() { counter.Add(1) }))
	require.NoError(t, err)

	res := waitResult(t, failed)
	var jf *JobFailure
	require.ErrorAs(t, res.Err, &jf)
	assert.Equal(t, "intentional panic in job", jf.Value)
	assert.Equal(t, 0, jf.WorkerID)
	assert.NotEmpty(t, jf.Stack)
	assert.Contains(t, jf.Error(), "panicked on worker 0")

	require.NoError(t, waitResult(t, ok).Err)
	assert.Equal(t, int64(1), counter.Load())
	assert.Equal(t, StateRunning, pool.Workers()[0].State())

	mu.Lock()
	require.Len(t, failures, 1)
	assert.Equal(t, res.JobID, failures[0].JobID)
	mu.Unlock()

	assert.Equal(t, int64(1), pool.Stats().Failed)
}

func TestGoexitJobDoesNotKillWorker(t *testing.T) {
	var handled atomic.Int64
	pool := newTestPool(t, 1, WithFailureHandler(func(*JobFailure) { handled.Add(1) }))

	exited, err := pool.Submit(TaskFunc(func() {
		runtime.Goexit()
	}))
	require.NoError(t, err)

	var counter atomic.Int64
	ok, err := pool.Submit(TaskFunc(func() { counter.Add(1) }))
	require.NoError(t, err)

	res := waitResult(t, exited)
	var jf *JobFailure
	require.ErrorAs(t, res.Err, &jf)
	assert.ErrorIs(t, res.Err, ErrJobExited)
	assert.Equal(t, 0, jf.WorkerID)
	assert.Contains(t, jf.Error(), "exited its goroutine on worker 0")

	require.NoError(t, waitResult(t, ok).Err)
	assert.Equal(t, int64(1), counter.Load())
	assert.Equal(t, StateRunning, pool.Workers()[0].State())

	stats := pool.Stats()
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(2), stats.Completed)
	assert.Zero(t, stats.Busy)
	assert.Equal(t, int64(1), handled.Load())
}

func TestCloseRunsJobsQueuedBehindGoexit(t *testing.T) {
	pool, err := New(1, WithLogger(logger.Discard()))
	require.NoError(t, err)

	release := make(chan struct{})
	require.NoError(t, pool.ExecuteFunc(func() {
		<-release
		runtime.Goexit()
	}))

	var counter atomic.Int64
	for range 3 {
		require.NoError(t, pool.ExecuteFunc(func() { counter.Add(1) }))
	}
	close(release)

	require.NoError(t, pool.Close())
	assert.Equal(t, int64(3), counter.Load())
	assert.Equal(t, StateStopped, pool.Workers()[0].State())
}

func TestNilPoolRejectsSubmission(t *testing.T) {
	var pool *ThreadPool

	_, err := pool.Submit(TaskFunc(func() {}))
	assert.ErrorIs(t, err, ErrNilPool)
	assert.ErrorIs(t, pool.ExecuteFunc(func() {}), ErrNilPool)
}

func TestJobFailureUnwrapsErrorValue(t *testing.T) {
	pool := newTestPool(t, 2)
	sentinel := errors.New("chunk corrupted")

	done, err := pool.Submit(TaskFunc(func() { panic(sentinel) }))
	require.NoError(t, err)

	res := waitResult(t, done)
	assert.ErrorIs(t, res.Err, sentinel)

	done, err = pool.Submit(TaskFunc(func() { panic(42) }))
	require.NoError(t, err)
	var jf *JobFailure
	require.ErrorAs(t, waitResult(t, done).Err, &jf)
	assert.Nil(t, jf.Unwrap())
}

func TestFailureHandlerPanicIsContained(t *testing.T) {
	pool := newTestPool(t, 1, WithFailureHandler(func(*JobFailure) {
		panic("handler exploded")
	}))

	require.NoError(t, pool.ExecuteFunc(func() { panic("job exploded") }))

	done, err := pool.Submit(TaskFunc(func() {}))
	require.NoError(t, err)
	assert.NoError(t, waitResult(t, done).Err)
}

func TestCloseDrainsPendingJobs(t *testing.T) {
	pool := newTestPool(t, 2)

	var counter atomic.Int64
	for range 5 {
		require.NoError(t, pool.ExecuteFunc(func() {
			time.Sleep(10 * time.Millisecond)
			counter.Add(1)
		}))
	}

	require.NoError(t, pool.Close())
	assert.Equal(t, int64(5), counter.Load())

	for _, w := range pool.Workers() {
		assert.Equal(t, StateStopped, w.State())
	}
	assert.Zero(t, pool.QueueSize())
}

func TestSubmitAfterClose(t *testing.T) {
	pool := newTestPool(t, 2)
	require.NoError(t, pool.Close())
	assert.True(t, pool.Closed())

	ran := false
	err := pool.ExecuteFunc(func() { ran = true })
	assert.ErrorIs(t, err, ErrSubmissionClosed)

	done, err := pool.Submit(TaskFunc(func() { ran = true }))
	assert.ErrorIs(t, err, ErrSubmissionClosed)
	assert.Nil(t, done)
	assert.False(t, ran)

	// second Close is a no-op
	assert.NoError(t, pool.Close())
}

func TestNilTaskRejected(t *testing.T) {
	pool := newTestPool(t, 1)

	assert.ErrorIs(t, pool.Execute(nil), ErrNilTask)
	assert.ErrorIs(t, pool.ExecuteFunc(nil), ErrNilTask)
	_, err := pool.Submit(nil)
	assert.ErrorIs(t, err, ErrNilTask)
}

func TestConcurrentSubmitAndClose(t *testing.T) {
	pool := newTestPool(t, 4)

	var executed atomic.Int64
	var accepted atomic.Int64
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				err := pool.ExecuteFunc(func() { executed.Add(1) })
				if err == nil {
					accepted.Add(1)
					continue
				}
				assert.ErrorIs(t, err, ErrSubmissionClosed)
			}
		}()
	}

	time.Sleep(time.Millisecond)
	require.NoError(t, pool.Close())
	wg.Wait()

	// every accepted job ran exactly once before Close returned
	assert.Equal(t, accepted.Load(), executed.Load())
}

func TestPoolMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	pool := newTestPool(t, 2, WithRegisterer(reg), WithMetricsPrefix("test_pool"))

	require.NoError(t, pool.ExecuteFunc(func() {}))
	require.NoError(t, pool.ExecuteFunc(func() {}))
	require.NoError(t, pool.ExecuteFunc(func() { panic("boom") }))
	require.NoError(t, pool.Close())

	assert.Equal(t, 3.0, testutil.ToFloat64(pool.metrics.submitted))
	assert.Equal(t, 3.0, testutil.ToFloat64(pool.metrics.completed))
	assert.Equal(t, 1.0, testutil.ToFloat64(pool.metrics.failed))
	assert.Equal(t, 0.0, testutil.ToFloat64(pool.metrics.busy))
	assert.Equal(t, 0.0, testutil.ToFloat64(pool.metrics.workers))
	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestPoolsShareRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := newTestPool(t, 1, WithRegisterer(reg))
	second := newTestPool(t, 3, WithRegisterer(reg))
	assert.Equal(t, 4.0, testutil.ToFloat64(first.metrics.workers))

	require.NoError(t, first.ExecuteFunc(func() {}))
	require.NoError(t, second.ExecuteFunc(func() {}))
	require.NoError(t, first.Close())
	require.NoError(t, second.Close())

	assert.Equal(t, 2.0, testutil.ToFloat64(second.metrics.submitted))
	assert.Equal(t, 0.0, testutil.ToFloat64(second.metrics.workers))
}

func TestPoolPublishesEvents(t *testing.T) {
	bus := events.NewBus()
	ch := bus.Subscribe()
	pool := newTestPool(t, 1, WithEventBus(bus))

	require.NoError(t, pool.ExecuteFunc(func() { panic("boom") }))
	require.NoError(t, pool.Close())

	var got []events.EventType
	for len(got) < 2 {
		select {
		case ev := <-ch:
			got = append(got, ev.Type)
			if ev.Type == events.EventJobFailed {
				assert.Contains(t, ev.Data.Error, "boom")
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for events, got %v", got)
		}
	}
	assert.Equal(t, []events.EventType{events.EventJobFailed, events.EventPoolClosed}, got)
}

func TestPoolLogsJobFailure(t *testing.T) {
	buf := &syncBuffer{}
	pool, err := New(1, WithLogger(logger.New(buf, logger.LevelDebug)))
	require.NoError(t, err)

	require.NoError(t, pool.ExecuteFunc(func() { panic("logged panic") }))
	require.NoError(t, pool.Close())

	out := buf.String()
	assert.Contains(t, out, "[WARN] [worker-0]")
	assert.Contains(t, out, "logged panic")
	assert.Contains(t, out, "received shutdown signal")
	assert.Contains(t, out, "shutting down worker 0")
}

// syncBuffer はワーカーとテストから同時に書き込まれるバッファ
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
