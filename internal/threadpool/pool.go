package threadpool

import (
	"fmt"
	"sync"
	"sync/atomic"

	"poolsort/internal/events"
	"poolsort/internal/logger"

	"github.com/prometheus/client_golang/prometheus"
)

const defaultMetricsPrefix = "poolsort_threadpool"

type options struct {
	logger        *logger.Logger
	onFailure     func(*JobFailure)
	registerer    prometheus.Registerer
	metricsPrefix string
	bus           *events.Bus
}

// Option はプールの設定を変更する
type Option func(*options)

// WithLogger はプールとワーカーが使うロガーを設定する
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithFailureHandler はジョブがpanicしたときに呼ばれるコールバックを設定する
// コールバックはワーカーのゴルーチン上で同期的に呼ばれる
func WithFailureHandler(fn func(*JobFailure)) Option {
	return func(o *options) { o.onFailure = fn }
}

// WithRegisterer はPrometheusメトリクスの登録先を設定する
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) { o.registerer = r }
}

// WithMetricsPrefix はメトリクス名の接頭辞を設定する
func WithMetricsPrefix(prefix string) Option {
	return func(o *options) { o.metricsPrefix = prefix }
}

// WithEventBus はジョブ失敗やプール終了を通知するイベントバスを設定する
func WithEventBus(bus *events.Bus) Option {
	return func(o *options) { o.bus = bus }
}

// ThreadPool は固定数のワーカーと共有キューを持つプール
type ThreadPool struct {
	workers []*Worker
	queue   *queue

	// sendMu は送信側の生存を守る。retired になった後は投入できない
	sendMu  sync.RWMutex
	retired bool

	closeOnce sync.Once

	logger    *logger.Logger
	onFailure func(*JobFailure)
	bus       *events.Bus
	metrics   *poolMetrics

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	busy      atomic.Int64
}

// Stats はプールの統計情報
type Stats struct {
	Workers    int   `json:"workers"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Busy       int64 `json:"busy"`
}

// New は workerCount 個のワーカーを持つプールを作成する
// workerCount が1未満の場合はゴルーチンを起動する前に ErrZeroWorkers を返す
func New(workerCount int, opts ...Option) (*ThreadPool, error) {
	if workerCount <= 0 {
		return nil, ErrZeroWorkers
	}

	o := options{
		logger:        logger.Default,
		metricsPrefix: defaultMetricsPrefix,
	}
	for _, opt := range opts {
		opt(&o)
	}

	p := &ThreadPool{
		queue:     newQueue(),
		logger:    o.logger,
		onFailure: o.onFailure,
		bus:       o.bus,
	}

	if o.registerer != nil {
		m, err := newPoolMetrics(o.registerer, o.metricsPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to register pool metrics: %w", err)
		}
		p.metrics = m
		p.metrics.workers.Add(float64(workerCount))
	}

	p.workers = make([]*Worker, 0, workerCount)
	for id := range workerCount {
		p.workers = append(p.workers, newWorker(id, p))
	}

	p.logger.Debug("pool", "ThreadPool started with %d workers", workerCount)
	return p, nil
}

// Execute はタスクをキューに積む。実行の完了は待たない
func (p *ThreadPool) Execute(task Task) error {
	_, err := p.enqueue(task, false)
	return err
}

// ExecuteFunc は関数をタスクとしてキューに積む
func (p *ThreadPool) ExecuteFunc(fn func()) error {
	if fn == nil {
		return ErrNilTask
	}
	return p.Execute(TaskFunc(fn))
}

// Submit はタスクをキューに積み、完了時に1度だけ結果を受け取れるチャネルを返す
// チャネルはバッファ付きなので、受信しなくてもワーカーはブロックしない
func (p *ThreadPool) Submit(task Task) (<-chan Result, error) {
	j, err := p.enqueue(task, true)
	if err != nil {
		return nil, err
	}
	return j.result, nil
}

func (p *ThreadPool) enqueue(task Task, withResult bool) (*job, error) {
	if p == nil {
		return nil, ErrNilPool
	}
	if task == nil {
		return nil, ErrNilTask
	}

	p.sendMu.RLock()
	defer p.sendMu.RUnlock()

	if p.retired {
		return nil, ErrSubmissionClosed
	}

	j := newJob(task, withResult)
	if !p.queue.push(j) {
		return nil, ErrSubmissionClosed
	}

	p.submitted.Add(1)
	if p.metrics != nil {
		p.metrics.submitted.Inc()
		p.metrics.queueDepth.Set(float64(p.queue.len()))
	}
	return j, nil
}

// Close はプールを2段階で停止する
//  1. 送信側を閉じて新規投入を拒否し、ワーカー数分のsentinelを積む
//  2. 全ワーカーをID順にjoinする
//
// Close以前に積まれたジョブはsentinelより先に実行される
// joinの失敗はログに記録するだけで、Closeは常にnilを返す
func (p *ThreadPool) Close() error {
	if p == nil {
		return nil
	}
	p.closeOnce.Do(p.shutdown)
	return nil
}

func (p *ThreadPool) shutdown() {
	p.sendMu.Lock()
	p.retired = true
	for range p.workers {
		p.queue.push(nil)
	}
	// 送信側を破棄する。sentinelを含む残りのジョブは取り出せる
	p.queue.close()
	p.sendMu.Unlock()

	for _, w := range p.workers {
		p.logger.Debug("pool", "shutting down worker %d", w.id)
		if err := w.join(); err != nil {
			p.logger.Error("pool", "worker %d failed to shut down cleanly: %v", w.id, err)
		}
	}

	if p.metrics != nil {
		p.metrics.workers.Sub(float64(len(p.workers)))
		p.metrics.queueDepth.Set(0)
	}
	if p.bus != nil {
		p.bus.Publish(events.NewPoolClosedEvent(len(p.workers)))
	}
	p.logger.Debug("pool", "ThreadPool stopped")
}

// notifyFailure は失敗ハンドラを呼び出す
// ハンドラ自身のpanicでワーカーが止まらないようにここで捕捉する
func (p *ThreadPool) notifyFailure(f *JobFailure) {
	if p.onFailure == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pool", "failure handler panicked: %v", r)
		}
	}()
	p.onFailure(f)
}

// Closed は送信側が既に閉じられているかを返す
func (p *ThreadPool) Closed() bool {
	p.sendMu.RLock()
	defer p.sendMu.RUnlock()
	return p.retired
}

// NumWorkers はワーカー数を返す
func (p *ThreadPool) NumWorkers() int {
	return len(p.workers)
}

// Workers はワーカーの一覧を返す
func (p *ThreadPool) Workers() []*Worker {
	out := make([]*Worker, len(p.workers))
	copy(out, p.workers)
	return out
}

// QueueSize は未処理のキュー長を返す
func (p *ThreadPool) QueueSize() int {
	return p.queue.len()
}

// Stats は現在の統計情報を返す
func (p *ThreadPool) Stats() Stats {
	return Stats{
		Workers:    len(p.workers),
		QueueDepth: p.queue.len(),
		Submitted:  p.submitted.Load(),
		Completed:  p.completed.Load(),
		Failed:     p.failed.Load(),
		Busy:       p.busy.Load(),
	}
}
