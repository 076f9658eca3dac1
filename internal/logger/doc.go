// Package logger provides a simple, thread-safe levelled logger.
//
// Each entry carries a timestamp, a level, an optional scope (a worker
// identity such as "worker-3" or a benchmark run name) and the message.
//
// # Basic Usage
//
//	logger.Info("", "benchmark started")
//	logger.Debug("worker-2", "executing job %s", id)
//	logger.Error("pool", "worker %d crashed: %v", id, err)
//
// Creating a dedicated logger:
//
//	l := logger.New(os.Stderr, logger.LevelDebug)
//	l.Warn("worker-0", "job panicked: %v", r)
//
// Levels can be parsed from configuration with ParseLevel. Messages below the
// configured level are dropped. All operations are safe for concurrent use.
package logger
