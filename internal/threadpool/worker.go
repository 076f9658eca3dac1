package threadpool

import (
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"poolsort/internal/events"
)

// State はワーカーの状態を表す
type State int32

const (
	StateRunning State = iota
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Worker はキューからジョブを取り出して実行するゴルーチン1つ分
type Worker struct {
	id    int
	pool  *ThreadPool
	state atomic.Int32
	done  chan struct{}

	// ジョブ外でループがpanicした場合の値。done がcloseされた後にのみ読む
	crash any

	// 実行中のジョブが runtime.Goexit を呼んだ。ワーカーのゴルーチンからのみ触る
	exited bool
}

// newWorker はワーカーを作成し、即座にRunning状態でループを開始する
func newWorker(id int, p *ThreadPool) *Worker {
	w := &Worker{
		id:   id,
		pool: p,
		done: make(chan struct{}),
	}
	w.state.Store(int32(StateRunning))
	go w.loop()
	return w
}

// ID はワーカーIDを返す
func (w *Worker) ID() int {
	return w.id
}

// State は現在の状態を返す
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) scope() string {
	return fmt.Sprintf("worker-%d", w.id)
}

// loop はsentinelを受け取るか、キューが切断されるまでジョブを処理する
// ジョブがゴルーチンごと終了させた場合は同じワーカーとして新しいゴルーチンで再開する
func (w *Worker) loop() {
	log := w.pool.logger
	defer func() {
		if r := recover(); r != nil {
			w.crash = r
		} else if w.exited {
			w.exited = false
			log.Warn(w.scope(), "job terminated the worker goroutine; restarting loop")
			go w.loop()
			return
		}
		w.state.Store(int32(StateStopped))
		close(w.done)
	}()

	for {
		j, ok := w.pool.queue.pop()
		if !ok {
			log.Debug(w.scope(), "queue disconnected; shutting down")
			return
		}
		if j == nil {
			log.Debug(w.scope(), "received shutdown signal")
			return
		}
		w.handle(j)
	}
}

// handle はジョブを1つ実行し、結果を各所に通知する
// panicも runtime.Goexit も *JobFailure として通知される
func (w *Worker) handle(j *job) {
	p := w.pool
	p.busy.Add(1)
	if p.metrics != nil {
		p.metrics.busy.Inc()
		p.metrics.queueDepth.Set(float64(p.queue.len()))
	}

	p.logger.Debug(w.scope(), "executing job %s (queued %v)", j.id, time.Since(j.submittedAt))
	start := time.Now()
	returned := false

	defer func() {
		var failure *JobFailure
		if r := recover(); r != nil {
			failure = w.failure(j, r)
		} else if !returned {
			// Goexitは止められないので、通知だけ済ませてloopに再開を任せる
			failure = w.failure(j, ErrJobExited)
			w.exited = true
		}
		w.finish(j, time.Since(start), failure)
	}()

	j.task.Run()
	returned = true
}

func (w *Worker) failure(j *job, value any) *JobFailure {
	return &JobFailure{
		JobID:    j.id,
		WorkerID: w.id,
		Value:    value,
		Stack:    debug.Stack(),
	}
}

// finish は実行結果をカウンタ、メトリクス、イベント、結果チャネルに反映する
func (w *Worker) finish(j *job, elapsed time.Duration, failure *JobFailure) {
	p := w.pool
	p.busy.Add(-1)
	p.completed.Add(1)

	res := Result{
		JobID:    j.id,
		WorkerID: w.id,
		Duration: elapsed,
	}

	if failure != nil {
		res.Err = failure
		p.failed.Add(1)
		p.logger.Warn(w.scope(), "%v", failure)
		p.notifyFailure(failure)
		if p.bus != nil {
			p.bus.Publish(events.NewJobFailedEvent(j.id.String(), w.id, failure))
		}
	}

	if p.metrics != nil {
		p.metrics.observe(elapsed, failure != nil)
	}

	if j.result != nil {
		j.result <- res
	}
}

// join はワーカーの終了を待つ
func (w *Worker) join() error {
	<-w.done
	if w.crash != nil {
		return fmt.Errorf("worker %d crashed: %v", w.id, w.crash)
	}
	return nil
}
