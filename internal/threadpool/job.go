package threadpool

import (
	"time"

	"github.com/google/uuid"
)

// Task はプールで実行される作業単位
// Run は任意のワーカー上で呼ばれ、panicする可能性がある
type Task interface {
	Run()
}

// TaskFunc は関数をTaskとして扱うためのアダプタ
type TaskFunc func()

// Run は関数を呼び出す
func (f TaskFunc) Run() { f() }

// Result はジョブの実行結果
type Result struct {
	JobID    uuid.UUID
	WorkerID int
	Duration time.Duration
	Err      error // panicまたはruntime.Goexitした場合は *JobFailure
}

// job はキューに積まれるタスクとそのメタデータ
// キュー上ではnilのjobが停止シグナル（sentinel）を意味する
type job struct {
	id          uuid.UUID
	task        Task
	submittedAt time.Time

	result chan Result
}

func newJob(task Task, withResult bool) *job {
	j := &job{
		id:          uuid.New(),
		task:        task,
		submittedAt: time.Now(),
	}
	if withResult {
		j.result = make(chan Result, 1)
	}
	return j
}
