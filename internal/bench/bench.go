package bench

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"poolsort/internal/events"
	"poolsort/internal/logger"
	"poolsort/internal/mergesort"
	"poolsort/internal/metrics"
	"poolsort/internal/threadpool"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrAlreadyRunning indicates Run was called while another run is in progress
var ErrAlreadyRunning = errors.New("benchmark is already running")

// Config はベンチマークの設定
type Config struct {
	Name        string // ベンチマーク名
	Description string // 説明
	Size        int    // 入力要素数

	ThreadCounts    []int  // 計測するワーカー数の一覧
	ChunksPerThread int    // チャンク数 = ワーカー数 * ChunksPerThread
	Repeat          int    // 各ワーカー数での繰り返し回数
	Seed            uint64 // 入力生成のシード（0でランダム）
	Verify          bool   // ソート結果を検証する
}

// DefaultConfig はデフォルト設定を返す
// 1千万要素を1〜100ワーカーで1回ずつソートする
func DefaultConfig() Config {
	return Config{
		Name:            "default",
		Description:     "Ten million random int64 across 1 to 100 workers",
		Size:            10_000_000,
		ThreadCounts:    []int{1, 2, 4, 8, 16, 32, 64, 100},
		ChunksPerThread: 1,
		Repeat:          1,
		Verify:          true,
	}
}

// Validate は設定を検証する
func (c Config) Validate() error {
	if c.Size < 0 {
		return fmt.Errorf("size must be non-negative")
	}
	if len(c.ThreadCounts) == 0 {
		return fmt.Errorf("at least one thread count is required")
	}
	for _, n := range c.ThreadCounts {
		if n <= 0 {
			return fmt.Errorf("thread count must be positive, got %d", n)
		}
	}
	if c.ChunksPerThread < 1 {
		return fmt.Errorf("chunks per thread must be at least 1")
	}
	if c.Repeat < 1 {
		return fmt.Errorf("repeat must be at least 1")
	}
	return nil
}

// RunResult は1回のソート実行の結果
type RunResult struct {
	ID       string           `json:"id"`
	Threads  int              `json:"threads"`
	Chunks   int              `json:"chunks"`
	Attempt  int              `json:"attempt"`
	Size     int              `json:"size"`
	Duration time.Duration    `json:"duration"`
	Verified bool             `json:"verified"`
	Error    string           `json:"error,omitempty"`
	Pool     threadpool.Stats `json:"pool"`
}

// Result はベンチマーク全体の結果
type Result struct {
	Name      string           `json:"name"`
	Size      int              `json:"size"`
	StartTime time.Time        `json:"start_time"`
	EndTime   time.Time        `json:"end_time"`
	Duration  time.Duration    `json:"duration"`
	Runs      []RunResult      `json:"runs"`
	Metrics   metrics.Snapshot `json:"metrics"`
}

// Engine はベンチマーク実行エンジン
type Engine struct {
	config     Config
	eventBus   *events.Bus
	registerer prometheus.Registerer
	logger     *logger.Logger
	metrics    *metrics.Metrics

	mu      sync.RWMutex
	running bool
	last    *Result
}

// New は新しいEngineを作成する
func New(config Config) *Engine {
	return &Engine{
		config:  config,
		logger:  logger.Default,
		metrics: metrics.New(),
	}
}

// SetEventBus はイベントバスを設定する
func (e *Engine) SetEventBus(bus *events.Bus) {
	e.eventBus = bus
}

// SetRegisterer はプールのPrometheusメトリクス登録先を設定する
func (e *Engine) SetRegisterer(reg prometheus.Registerer) {
	e.registerer = reg
}

// SetLogger はロガーを設定する
func (e *Engine) SetLogger(l *logger.Logger) {
	e.logger = l
}

// Config は設定を返す
func (e *Engine) Config() Config {
	return e.config
}

// Run はベンチマークを実行する
// ctxがキャンセルされた場合はそこまでの結果とctxのエラーを返す
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if err := e.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid benchmark config: %w", err)
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	e.metrics.Reset()
	e.logger.Info(e.config.Name, "=== Benchmark '%s' started (%d elements) ===", e.config.Name, e.config.Size)

	input := RandomSlice(e.config.Size, e.config.Seed)

	result := &Result{
		Name:      e.config.Name,
		Size:      e.config.Size,
		StartTime: time.Now(),
	}

	var runErr error
loop:
	for _, threads := range e.config.ThreadCounts {
		for attempt := 1; attempt <= e.config.Repeat; attempt++ {
			if err := ctx.Err(); err != nil {
				runErr = err
				break loop
			}
			result.Runs = append(result.Runs, e.runOnce(ctx, input, threads, attempt))
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	result.Metrics = e.metrics.Snapshot()

	e.mu.Lock()
	e.last = result
	e.mu.Unlock()

	if e.eventBus != nil {
		e.eventBus.Publish(events.NewBenchCompleteEvent(len(result.Runs), result.Duration))
	}
	e.logger.Info(e.config.Name, "=== Benchmark '%s' completed: %d runs ===", e.config.Name, len(result.Runs))

	return result, runErr
}

// runOnce は1つのワーカー数で1回ソートを計測する
func (e *Engine) runOnce(ctx context.Context, input []int64, threads, attempt int) RunResult {
	chunks := threads * e.config.ChunksPerThread
	rr := RunResult{
		ID:      uuid.NewString(),
		Threads: threads,
		Chunks:  chunks,
		Attempt: attempt,
		Size:    len(input),
	}

	opts := []threadpool.Option{threadpool.WithLogger(e.logger)}
	if e.registerer != nil {
		opts = append(opts, threadpool.WithRegisterer(e.registerer))
	}
	if e.eventBus != nil {
		opts = append(opts, threadpool.WithEventBus(e.eventBus))
	}

	pool, err := threadpool.New(threads, opts...)
	if err != nil {
		return e.fail(rr, 0, err)
	}

	data := slices.Clone(input)
	if e.eventBus != nil {
		e.eventBus.Publish(events.NewRunStartEvent(rr.ID, threads, chunks, len(data)))
	}

	start := time.Now()
	err = mergesort.SortConcurrent(ctx, data, pool, chunks)
	elapsed := time.Since(start)

	_ = pool.Close()
	rr.Pool = pool.Stats()

	if err != nil {
		return e.fail(rr, elapsed, err)
	}
	if e.config.Verify {
		if err := Verify(input, data); err != nil {
			return e.fail(rr, elapsed, err)
		}
		rr.Verified = true
	}

	rr.Duration = elapsed
	e.metrics.RecordRun(elapsed, len(data))
	if e.eventBus != nil {
		e.eventBus.Publish(events.NewRunCompleteEvent(rr.ID, threads, elapsed))
	}
	e.logger.Info(e.config.Name, "Threads: %d, Time taken: %v", threads, elapsed)
	return rr
}

func (e *Engine) fail(rr RunResult, elapsed time.Duration, err error) RunResult {
	rr.Duration = elapsed
	rr.Error = err.Error()
	e.metrics.RecordFailure(elapsed)
	if e.eventBus != nil {
		e.eventBus.Publish(events.NewRunFailedEvent(rr.ID, rr.Threads, err))
	}
	e.logger.Error(e.config.Name, "Threads: %d, run failed: %v", rr.Threads, err)
	return rr
}

// IsRunning は実行中かどうかを返す
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// LastResult は直近の結果を返す
func (e *Engine) LastResult() *Result {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last
}

// Metrics は実行メトリクスのスナップショットを返す
func (e *Engine) Metrics() metrics.Snapshot {
	return e.metrics.Snapshot()
}

// ThreadSummary はワーカー数ごとの集計
type ThreadSummary struct {
	Threads int           `json:"threads"`
	Runs    int           `json:"runs"`
	Failed  int           `json:"failed"`
	Best    time.Duration `json:"best"`
	Average time.Duration `json:"average"`
	Speedup float64       `json:"speedup"` // 最初のワーカー数の平均に対する比
}

// Summary はワーカー数ごとの集計を設定順で返す
func (r *Result) Summary() []ThreadSummary {
	var out []ThreadSummary
	index := make(map[int]int)

	for _, run := range r.Runs {
		i, ok := index[run.Threads]
		if !ok {
			i = len(out)
			index[run.Threads] = i
			out = append(out, ThreadSummary{Threads: run.Threads})
		}
		s := &out[i]
		s.Runs++
		if run.Error != "" {
			s.Failed++
			continue
		}
		if s.Best == 0 || run.Duration < s.Best {
			s.Best = run.Duration
		}
		s.Average += run.Duration
	}

	for i := range out {
		if ok := out[i].Runs - out[i].Failed; ok > 0 {
			out[i].Average /= time.Duration(ok)
		}
	}
	if len(out) > 0 && out[0].Average > 0 {
		base := out[0].Average
		for i := range out {
			if out[i].Average > 0 {
				out[i].Speedup = float64(base) / float64(out[i].Average)
			}
		}
	}
	return out
}

// Report は結果をフォーマットして返す
func (r *Result) Report() string {
	var b strings.Builder

	fmt.Fprintf(&b, `
================================================================================
                         BENCHMARK REPORT: %s
================================================================================

EXECUTION SUMMARY
-----------------
  Start Time:     %s
  End Time:       %s
  Duration:       %v
  Elements:       %d
  Runs:           %d (failed: %d)

RUNS
----
`,
		r.Name,
		r.StartTime.Format("2006-01-02 15:04:05"),
		r.EndTime.Format("2006-01-02 15:04:05"),
		r.Duration.Round(time.Millisecond),
		r.Size,
		r.Metrics.TotalRuns,
		r.Metrics.FailedRuns,
	)

	for _, run := range r.Runs {
		if run.Error != "" {
			fmt.Fprintf(&b, "  Threads: %-4d Chunks: %-5d FAILED: %s\n", run.Threads, run.Chunks, run.Error)
			continue
		}
		fmt.Fprintf(&b, "  Threads: %-4d Chunks: %-5d Time taken: %v\n",
			run.Threads, run.Chunks, run.Duration.Round(time.Microsecond))
	}

	b.WriteString(`
BY THREAD COUNT
---------------
`)
	for _, s := range r.Summary() {
		fmt.Fprintf(&b, "  %-4d best %-14v avg %-14v speedup %.2fx\n",
			s.Threads, s.Best.Round(time.Microsecond), s.Average.Round(time.Microsecond), s.Speedup)
	}

	fmt.Fprintf(&b, `
THROUGHPUT
----------
  Avg Run:        %v
  P99 Run:        %v
  Elements/sec:   %.0f
`,
		r.Metrics.AverageDuration.Round(time.Microsecond),
		r.Metrics.P99Duration.Round(time.Microsecond),
		r.Metrics.Throughput,
	)

	b.WriteString("\n================================================================================")
	return b.String()
}
