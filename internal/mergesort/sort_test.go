package mergesort

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"
	"slices"
	"testing"
	"time"

	"poolsort/internal/logger"
	"poolsort/internal/threadpool"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPool(t *testing.T, n int) *threadpool.ThreadPool {
	t.Helper()
	pool, err := threadpool.New(n, threadpool.WithLogger(logger.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}

func TestSortConcurrentExample(t *testing.T) {
	pool := newPool(t, 3)
	data := []int64{5, 3, 1, 4, 2, 9, 7, 6, 8}

	require.NoError(t, SortConcurrent(context.Background(), data, pool, 3))
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9}, data)
}

func TestSortConcurrentEmpty(t *testing.T) {
	pool := newPool(t, 2)

	for _, k := range []int{1, 3, 100} {
		data := []int64{}
		require.NoError(t, SortConcurrent(context.Background(), data, pool, k))
		assert.Empty(t, data)

		var nilData []int64
		require.NoError(t, Sort(context.Background(), nilData, pool, k))
		assert.Nil(t, nilData)
	}
	assert.Zero(t, pool.Stats().Submitted)
}

func TestSortConcurrentPermutation(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))

	for _, workers := range []int{1, 2, 4} {
		pool := newPool(t, workers)
		for _, n := range []int{1, 2, 7, 64, 1000, 4097} {
			for _, k := range []int{1, 2, 3, 8, 13, 5000} {
				t.Run(fmt.Sprintf("w%d/n%d/k%d", workers, n, k), func(t *testing.T) {
					data := make([]int64, n)
					for i := range data {
						data[i] = r.Int64N(200) - 100
					}
					want := slices.Clone(data)
					slices.Sort(want)

					require.NoError(t, SortConcurrent(context.Background(), data, pool, k))
					assert.Equal(t, want, data)
				})
			}
		}
	}
}

func TestSortConcurrentChunkCount(t *testing.T) {
	pool := newPool(t, 2)

	data := []int64{9, 8, 7, 6, 5, 4, 3, 2, 1, 0}
	require.NoError(t, SortConcurrent(context.Background(), data, pool, 4))
	// ceil(10/4)=3 -> chunks of 3,3,3,1
	assert.Equal(t, int64(4), pool.Stats().Submitted)
	assert.True(t, slices.IsSorted(data))

	data = []int64{3, 1, 2}
	require.NoError(t, SortConcurrent(context.Background(), data, pool, 10))
	// more chunks than elements -> one element per chunk
	assert.Equal(t, int64(7), pool.Stats().Submitted)
	assert.Equal(t, []int64{1, 2, 3}, data)
}

func TestSortConcurrentInvalidChunks(t *testing.T) {
	pool := newPool(t, 1)
	data := []int64{2, 1}

	for _, k := range []int{0, -1} {
		err := SortConcurrent(context.Background(), data, pool, k)
		assert.ErrorIs(t, err, ErrInvalidChunkCount)
	}
	assert.Equal(t, []int64{2, 1}, data)

	assert.ErrorIs(t, SortConcurrent(context.Background(), data, nil, 1), ErrNilExecutor)

	// a typed nil pool is a non-nil Executor, so the pool itself rejects it
	var typedNil *threadpool.ThreadPool
	err := SortConcurrent(context.Background(), data, typedNil, 1)
	assert.ErrorIs(t, err, threadpool.ErrNilPool)
	assert.Equal(t, []int64{2, 1}, data)
}

func TestSortConcurrentClosedPool(t *testing.T) {
	pool := newPool(t, 2)
	require.NoError(t, pool.Close())

	data := []int64{3, 2, 1}
	err := SortConcurrent(context.Background(), data, pool, 2)
	assert.ErrorIs(t, err, threadpool.ErrSubmissionClosed)
	assert.Equal(t, []int64{3, 2, 1}, data)
}

func TestChunkSize(t *testing.T) {
	assert.Equal(t, 3, ChunkSize(9, 3))
	assert.Equal(t, 4, ChunkSize(10, 3))
	assert.Equal(t, 1, ChunkSize(3, 10))
	assert.Equal(t, 0, ChunkSize(0, 4))
	assert.Equal(t, 0, ChunkSize(5, 0))
}

// failingExecutor は指定したチャンクだけ失敗を返す実行器
type failingExecutor struct {
	failAt int
	calls  int
}

func (f *failingExecutor) Submit(task threadpool.Task) (<-chan threadpool.Result, error) {
	ch := make(chan threadpool.Result, 1)
	res := threadpool.Result{JobID: uuid.New()}
	if f.calls == f.failAt {
		res.Err = &threadpool.JobFailure{JobID: res.JobID, Value: "disk on fire"}
	} else {
		task.Run()
	}
	f.calls++
	ch <- res
	return ch, nil
}

func TestSortConcurrentJobFailure(t *testing.T) {
	data := []int64{6, 5, 4, 3, 2, 1}

	err := SortConcurrent(context.Background(), data, &failingExecutor{failAt: 1}, 3)
	require.ErrorIs(t, err, ErrChunkFailed)

	var jf *threadpool.JobFailure
	require.ErrorAs(t, err, &jf)
	assert.Equal(t, "disk on fire", jf.Value)
	assert.Equal(t, []int64{6, 5, 4, 3, 2, 1}, data)
}

// stalledExecutor は受け付けたジョブを完了させない
type stalledExecutor struct{}

func (stalledExecutor) Submit(threadpool.Task) (<-chan threadpool.Result, error) {
	return make(chan threadpool.Result), nil
}

func TestSortConcurrentContextCanceled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	data := []int64{2, 1}
	err := SortConcurrent(ctx, data, stalledExecutor{}, 2)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, []int64{2, 1}, data)
}

func TestSortConcurrentAfterPoolPanic(t *testing.T) {
	pool := newPool(t, 2)

	// the pool keeps sorting after an unrelated job panicked
	require.NoError(t, pool.ExecuteFunc(func() { panic("unrelated") }))

	data := []float64{3.5, -1, 2.25, 0}
	require.NoError(t, SortConcurrent(context.Background(), data, pool, 2))
	assert.Equal(t, []float64{-1, 0, 2.25, 3.5}, data)
}

func TestSortConcurrentAfterGoexitJob(t *testing.T) {
	pool := newPool(t, 1)

	// the only worker survives a job that ends its goroutine
	require.NoError(t, pool.ExecuteFunc(runtime.Goexit))

	data := []int64{9, 4, 7, 1, 8}
	require.NoError(t, SortConcurrent(context.Background(), data, pool, 3))
	assert.Equal(t, []int64{1, 4, 7, 8, 9}, data)
}
