// Package metrics collects timing statistics for benchmark sort runs.
//
// Metrics records how long each sort run took, how many elements it sorted
// and whether it succeeded, and derives averages, percentiles and
// throughput (elements per second) from those samples.
//
// # Basic Usage
//
//	m := metrics.New()
//
//	start := time.Now()
//	err := mergesort.SortConcurrent(ctx, data, pool, chunks)
//	if err != nil {
//	    m.RecordFailure(time.Since(start))
//	} else {
//	    m.RecordRun(time.Since(start), len(data))
//	}
//
//	snap := m.Snapshot()
//	fmt.Printf("runs: %d, avg: %v, %.0f elem/s\n",
//	    snap.TotalRuns, snap.AverageDuration, snap.Throughput)
//
// Only successful runs feed the percentile samples. The sample buffer is
// capped by Config.MaxSamples. All operations are safe for concurrent use.
package metrics
