package metrics

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

const defaultMaxSamples = 1000

// Config はメトリクスの設定
type Config struct {
	MaxSamples int // パーセンタイル計算に保持する実行時間サンプル数
}

// Metrics はソート実行のメトリクスを収集する
type Metrics struct {
	totalRuns       atomic.Uint64
	successRuns     atomic.Uint64
	failedRuns      atomic.Uint64
	sortedElements  atomic.Uint64
	sortDurationNs  atomic.Uint64

	mu         sync.RWMutex
	startTime  time.Time
	durations  []time.Duration
	maxSamples int
}

// New は新しいメトリクスを作成する
func New() *Metrics {
	return NewWithConfig(Config{MaxSamples: defaultMaxSamples})
}

// NewWithConfig は設定を指定してメトリクスを作成する
func NewWithConfig(config Config) *Metrics {
	maxSamples := config.MaxSamples
	if maxSamples <= 0 {
		maxSamples = defaultMaxSamples
	}
	return &Metrics{
		startTime:  time.Now(),
		durations:  make([]time.Duration, 0, min(maxSamples, 64)),
		maxSamples: maxSamples,
	}
}

// RecordRun は成功したソート実行を記録する
func (m *Metrics) RecordRun(elapsed time.Duration, elements int) {
	m.totalRuns.Add(1)
	m.successRuns.Add(1)
	m.sortedElements.Add(uint64(elements))
	m.sortDurationNs.Add(uint64(elapsed.Nanoseconds()))

	m.mu.Lock()
	if len(m.durations) < m.maxSamples {
		m.durations = append(m.durations, elapsed)
	}
	m.mu.Unlock()
}

// RecordFailure は失敗したソート実行を記録する
func (m *Metrics) RecordFailure(elapsed time.Duration) {
	m.totalRuns.Add(1)
	m.failedRuns.Add(1)
}

// TotalRuns は総実行数を返す
func (m *Metrics) TotalRuns() uint64 {
	return m.totalRuns.Load()
}

// SuccessRuns は成功した実行数を返す
func (m *Metrics) SuccessRuns() uint64 {
	return m.successRuns.Load()
}

// FailedRuns は失敗した実行数を返す
func (m *Metrics) FailedRuns() uint64 {
	return m.failedRuns.Load()
}

// AverageDuration は成功した実行の平均時間を返す
// 失敗した実行は途中で打ち切られているため含めない
func (m *Metrics) AverageDuration() time.Duration {
	ok := m.successRuns.Load()
	if ok == 0 {
		return 0
	}
	return time.Duration(m.sortDurationNs.Load() / ok)
}

// Percentile は成功した実行時間のパーセンタイル（0〜1）を返す（サンプルベース）
func (m *Metrics) Percentile(p float64) time.Duration {
	m.mu.RLock()
	sorted := slices.Clone(m.durations)
	m.mu.RUnlock()

	if len(sorted) == 0 {
		return 0
	}
	slices.Sort(sorted)

	idx := int(float64(len(sorted)) * p)
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}

// P99Duration はP99実行時間を返す
func (m *Metrics) P99Duration() time.Duration {
	return m.Percentile(0.99)
}

// MinDuration は最短の実行時間を返す
func (m *Metrics) MinDuration() time.Duration {
	return m.Percentile(0)
}

// Throughput は成功した実行の合計から1秒あたりのソート要素数を返す
func (m *Metrics) Throughput() float64 {
	ns := m.sortDurationNs.Load()
	if ns == 0 {
		return 0
	}
	return float64(m.sortedElements.Load()) / time.Duration(ns).Seconds()
}

// ErrorRate は失敗率を返す（0.0〜1.0）
func (m *Metrics) ErrorRate() float64 {
	total := m.totalRuns.Load()
	if total == 0 {
		return 0
	}
	return float64(m.failedRuns.Load()) / float64(total)
}

// Reset は全てのメトリクスをリセットする
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalRuns.Store(0)
	m.successRuns.Store(0)
	m.failedRuns.Store(0)
	m.sortedElements.Store(0)
	m.sortDurationNs.Store(0)
	m.startTime = time.Now()
	m.durations = m.durations[:0]
}

// Snapshot はメトリクスのスナップショット
type Snapshot struct {
	TotalRuns       uint64        `json:"total_runs"`
	SuccessRuns     uint64        `json:"success_runs"`
	FailedRuns      uint64        `json:"failed_runs"`
	AverageDuration time.Duration `json:"average_duration"`
	MinDuration     time.Duration `json:"min_duration"`
	P99Duration     time.Duration `json:"p99_duration"`
	Throughput      float64       `json:"throughput"`
	ErrorRate       float64       `json:"error_rate"`
	Elapsed         time.Duration `json:"elapsed"`
}

// Snapshot は現在のメトリクスのスナップショットを返す
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	start := m.startTime
	m.mu.RUnlock()

	return Snapshot{
		TotalRuns:       m.TotalRuns(),
		SuccessRuns:     m.SuccessRuns(),
		FailedRuns:      m.FailedRuns(),
		AverageDuration: m.AverageDuration(),
		MinDuration:     m.MinDuration(),
		P99Duration:     m.P99Duration(),
		Throughput:      m.Throughput(),
		ErrorRate:       m.ErrorRate(),
		Elapsed:         time.Since(start),
	}
}
