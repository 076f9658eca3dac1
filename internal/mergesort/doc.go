// Package mergesort implements a parallel merge sort on top of threadpool.
//
// SortConcurrent splits the input into contiguous chunks of
// ceil(len/numChunks) elements, sorts every chunk as a separate pool job and
// merges the sorted chunks with KWayMerge, a heap-based merge keyed by
// (value, chunk index, element index).
//
//	pool, _ := threadpool.New(4)
//	defer pool.Close()
//
//	data := []int64{5, 3, 1, 4, 2, 9, 7, 6, 8}
//	if err := mergesort.SortConcurrent(ctx, data, pool, 3); err != nil {
//	    return err
//	}
//
// Each chunk job reports back over its own completion channel, and the merge
// starts only after every chunk has reported.
package mergesort
