// Package bench times the parallel merge sort across worker counts.
//
// An Engine generates one random int64 input, then for every configured
// thread count (and every repeat) clones the input, builds a fresh
// threadpool, sorts with mergesort.SortConcurrent and tears the pool down.
// Each run is optionally verified to be a sorted permutation of the input.
//
// # Basic Usage
//
//	engine := bench.New(bench.QuickConfig())
//	result, err := engine.Run(ctx)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(result.Report())
//
// # Presets
//
//   - default: 10M elements, 1 to 100 workers
//   - quick: 100k elements, 1/2/4 workers
//   - scaling: 1M elements, 1 to 64 workers, 3 repeats
//   - oversplit: 8 chunks per worker
//   - stress: 10M elements, 5 repeats
//
// Progress is published on an events.Bus when one is set, and pools export
// Prometheus metrics when a Registerer is set.
package bench
