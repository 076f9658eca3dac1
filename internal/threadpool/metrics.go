package threadpool

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// poolMetrics はプールのPrometheusメトリクス
// 同じRegistererを共有する複数のプールは同じコレクタに集計される
type poolMetrics struct {
	workers    prometheus.Gauge
	busy       prometheus.Gauge
	queueDepth prometheus.Gauge
	submitted  prometheus.Counter
	completed  prometheus.Counter
	failed     prometheus.Counter
	duration   prometheus.Histogram
}

func newPoolMetrics(reg prometheus.Registerer, prefix string) (*poolMetrics, error) {
	m := &poolMetrics{}
	var err error

	if m.workers, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: prefix + "_workers",
		Help: "Number of live pool workers",
	})); err != nil {
		return nil, err
	}
	if m.busy, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: prefix + "_busy_workers",
		Help: "Number of workers currently executing a job",
	})); err != nil {
		return nil, err
	}
	if m.queueDepth, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: prefix + "_queue_depth",
		Help: "Jobs waiting in the work queue",
	})); err != nil {
		return nil, err
	}
	if m.submitted, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_submitted_total",
		Help: "Total jobs accepted by the pool",
	})); err != nil {
		return nil, err
	}
	if m.completed, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_completed_total",
		Help: "Total jobs executed, including failed ones",
	})); err != nil {
		return nil, err
	}
	if m.failed, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_failed_total",
		Help: "Total jobs that panicked",
	})); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    prefix + "_job_duration_seconds",
		Help:    "Time spent executing jobs",
		Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})); err != nil {
		return nil, err
	}

	return m, nil
}

// register はコレクタを登録する。登録済みであれば既存のものを返す
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}

func (m *poolMetrics) observe(elapsed time.Duration, failed bool) {
	m.busy.Dec()
	m.completed.Inc()
	if failed {
		m.failed.Inc()
	}
	m.duration.Observe(elapsed.Seconds())
}
