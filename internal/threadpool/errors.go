package threadpool

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel errors for pool operations
var (
	// ErrZeroWorkers indicates the pool was requested with no workers
	ErrZeroWorkers = errors.New("thread pool needs at least one worker")

	// ErrSubmissionClosed indicates the pool no longer accepts jobs
	ErrSubmissionClosed = errors.New("thread pool is closed for submission")

	// ErrNilTask indicates a nil task was submitted
	ErrNilTask = errors.New("task cannot be nil")

	// ErrNilPool indicates a method was called on a nil *ThreadPool
	ErrNilPool = errors.New("thread pool is nil")

	// ErrJobExited is the JobFailure value for a job that called runtime.Goexit
	ErrJobExited = errors.New("job exited via runtime.Goexit")
)

// JobFailure はジョブ実行中のpanicを表す
// ワーカーはこのエラーを記録した後も次のジョブの処理を続ける
type JobFailure struct {
	JobID    uuid.UUID
	WorkerID int
	Value    any
	Stack    []byte
}

func (f *JobFailure) Error() string {
	if f.Value == ErrJobExited {
		return fmt.Sprintf("job %s exited its goroutine on worker %d", f.JobID, f.WorkerID)
	}
	return fmt.Sprintf("job %s panicked on worker %d: %v", f.JobID, f.WorkerID, f.Value)
}

// Unwrap はpanic値がerrorの場合にそれを返す
func (f *JobFailure) Unwrap() error {
	if err, ok := f.Value.(error); ok {
		return err
	}
	return nil
}
