// Package threadpool provides a fixed-size worker pool with failure isolation.
//
// A ThreadPool owns N workers that share one unbounded FIFO work queue. Each
// worker pops a job, runs it, and goes back to waiting. A job that panics is
// recovered inside the worker: the failure is reported as a *JobFailure and
// the worker keeps serving later jobs. A job that calls runtime.Goexit is
// reported with ErrJobExited and its worker resumes on a new goroutine.
//
// # Basic Usage
//
//	pool, err := threadpool.New(4)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	_ = pool.ExecuteFunc(func() {
//	    // fire and forget
//	})
//
//	done, err := pool.Submit(threadpool.TaskFunc(func() {
//	    // work whose outcome matters
//	}))
//	if err != nil {
//	    return err
//	}
//	if res := <-done; res.Err != nil {
//	    var f *threadpool.JobFailure
//	    errors.As(res.Err, &f)
//	}
//
// # Shutdown
//
// Close runs exactly once. It first retires the sending side, so any later
// Execute or Submit returns ErrSubmissionClosed, and queues one stop signal
// per worker behind the jobs that are already pending. It then joins every
// worker. Close returns only after all pending jobs have run and every
// worker goroutine has exited.
//
// # Observability
//
// WithFailureHandler receives every *JobFailure, WithEventBus publishes
// job_failed and pool_closed events, and WithRegisterer exports queue depth,
// busy workers, job counters and a job duration histogram to Prometheus.
package threadpool
