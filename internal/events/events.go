// Package events provides an event system for pool and benchmark notifications.
package events

import "time"

// EventType represents the type of event
type EventType string

const (
	// EventJobFailed is emitted when a job panics inside a worker
	EventJobFailed EventType = "job_failed"
	// EventPoolClosed is emitted once a pool has joined all of its workers
	EventPoolClosed EventType = "pool_closed"
	// EventRunStart is emitted before a single timed sort run
	EventRunStart EventType = "run_start"
	// EventRunComplete is emitted after a timed sort run finished and was verified
	EventRunComplete EventType = "run_complete"
	// EventRunFailed is emitted when a sort run returned an error or failed verification
	EventRunFailed EventType = "run_failed"
	// EventBenchComplete is emitted when every run of a benchmark has finished
	EventBenchComplete EventType = "bench_complete"
)

// Event represents a pool or benchmark event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id,omitempty"`
	Data      EventData `json:"data,omitempty"`
}

// EventData contains event-specific data
type EventData struct {
	JobID    string `json:"job_id,omitempty"`
	WorkerID int    `json:"worker_id,omitempty"`
	Workers  int    `json:"workers,omitempty"`
	Chunks   int    `json:"chunks,omitempty"`
	Size     int    `json:"size,omitempty"`
	Duration string `json:"duration,omitempty"`
	Runs     int    `json:"runs,omitempty"`
	Error    string `json:"error,omitempty"`
}

// NewJobFailedEvent creates a job failure event
func NewJobFailedEvent(jobID string, workerID int, err error) Event {
	return Event{
		Type:      EventJobFailed,
		Timestamp: time.Now(),
		Data: EventData{
			JobID:    jobID,
			WorkerID: workerID,
			Error:    errString(err),
		},
	}
}

// NewPoolClosedEvent creates a pool closed event
func NewPoolClosedEvent(workers int) Event {
	return Event{
		Type:      EventPoolClosed,
		Timestamp: time.Now(),
		Data: EventData{
			Workers: workers,
		},
	}
}

// NewRunStartEvent creates a run start event
func NewRunStartEvent(runID string, workers, chunks, size int) Event {
	return Event{
		Type:      EventRunStart,
		Timestamp: time.Now(),
		RunID:     runID,
		Data: EventData{
			Workers: workers,
			Chunks:  chunks,
			Size:    size,
		},
	}
}

// NewRunCompleteEvent creates a run complete event
func NewRunCompleteEvent(runID string, workers int, elapsed time.Duration) Event {
	return Event{
		Type:      EventRunComplete,
		Timestamp: time.Now(),
		RunID:     runID,
		Data: EventData{
			Workers:  workers,
			Duration: elapsed.String(),
		},
	}
}

// NewRunFailedEvent creates a run failed event
func NewRunFailedEvent(runID string, workers int, err error) Event {
	return Event{
		Type:      EventRunFailed,
		Timestamp: time.Now(),
		RunID:     runID,
		Data: EventData{
			Workers: workers,
			Error:   errString(err),
		},
	}
}

// NewBenchCompleteEvent creates a benchmark complete event
func NewBenchCompleteEvent(runs int, elapsed time.Duration) Event {
	return Event{
		Type:      EventBenchComplete,
		Timestamp: time.Now(),
		Data: EventData{
			Runs:     runs,
			Duration: elapsed.String(),
		},
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
