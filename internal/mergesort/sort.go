package mergesort

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"poolsort/internal/threadpool"
)

var (
	// ErrInvalidChunkCount indicates a chunk count below one
	ErrInvalidChunkCount = errors.New("chunk count must be at least 1")

	// ErrNilExecutor indicates no pool was given to the driver
	ErrNilExecutor = errors.New("executor cannot be nil")

	// ErrChunkFailed indicates a chunk sort job did not complete
	ErrChunkFailed = errors.New("chunk sort failed")
)

// Executor はチャンクのソートジョブを受け付ける実行器
// *threadpool.ThreadPool がこれを満たす。nilの *ThreadPool は Submit で ErrNilPool を返す
type Executor interface {
	Submit(task threadpool.Task) (<-chan threadpool.Result, error)
}

// chunkSort は1チャンク分のソートジョブ
// 結果は自分専用のスロットにだけ書き込む
type chunkSort[T cmp.Ordered] struct {
	values []T
	slot   *[]T
}

func (c *chunkSort[T]) Run() {
	slices.Sort(c.values)
	*c.slot = c.values
}

// ChunkSize は要素数 n を k 個に分けるときのチャンクサイズ（切り上げ）を返す
func ChunkSize(n, k int) int {
	if n == 0 || k < 1 {
		return 0
	}
	return (n + k - 1) / k
}

// SortConcurrent は data を numChunks 個の連続したチャンクに分け、
// 各チャンクのソートをプールで並列に実行した後、k-wayマージで data に書き戻す
//
// 全チャンクの完了通知を受け取ってからマージするため、固定時間の待機は行わない
// ジョブの失敗やctxのキャンセル時は data を変更せずにエラーを返す
func SortConcurrent[T cmp.Ordered](ctx context.Context, data []T, pool Executor, numChunks int) error {
	if numChunks < 1 {
		return ErrInvalidChunkCount
	}
	if pool == nil {
		return ErrNilExecutor
	}
	if len(data) == 0 {
		return nil
	}

	size := ChunkSize(len(data), numChunks)
	count := (len(data) + size - 1) / size

	sorted := make([][]T, count)
	pending := make([]<-chan threadpool.Result, 0, count)

	for i := range count {
		lo := i * size
		hi := min(lo+size, len(data))

		done, err := pool.Submit(&chunkSort[T]{
			values: slices.Clone(data[lo:hi]),
			slot:   &sorted[i],
		})
		if err != nil {
			return fmt.Errorf("failed to submit chunk %d: %w", i, err)
		}
		pending = append(pending, done)
	}

	// 全チャンクの完了を待つ
	for i, done := range pending {
		select {
		case res := <-done:
			if res.Err != nil {
				return fmt.Errorf("%w: chunk %d: %w", ErrChunkFailed, i, res.Err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	merged := KWayMerge(sorted)
	copy(data, merged)
	return nil
}

// Sort は int64 スライス向けの SortConcurrent
func Sort(ctx context.Context, data []int64, pool Executor, numChunks int) error {
	return SortConcurrent(ctx, data, pool, numChunks)
}
