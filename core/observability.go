package core

import "time"

// TaskExecutionRecord captures a completed task execution event.
type TaskExecutionRecord struct {
	TaskID     TaskID
	Name       string
	QueueName  string
	QueueType  string
	QoS        QoS
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Panicked   bool
}

// QueueStats represents runtime observability state for a queue.
type QueueStats struct {
	Name           string
	Type           string
	Pending        int
	Running        int
	Rejected       int64
	Closed         bool
	BarrierPending bool
	LastTaskName   string
	LastTaskAt     time.Time
}

// PoolStats represents runtime observability state for a dispatcher pool.
type PoolStats struct {
	ID      string
	Workers int
	Queued  int
	Active  int
	Delayed int
	Running bool
}

// GroupStats represents runtime observability state for a task group.
type GroupStats struct {
	Name      string
	Pending   int64
	Watchers  int
	Completed int64
}
