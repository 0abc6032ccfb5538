package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// SyncQueue executes every task inline on the calling goroutine, before the
// Post call returns. Delays collapse to "now". It exists for deterministic
// unit tests; production code wants one of the scheduled queues.
//
// A task panic propagates to the caller after being recorded in history,
// which is usually what a test wants to see.
type SyncQueue struct {
	closed       atomic.Bool
	shutdownChan chan struct{}
	shutdownOnce sync.Once

	name   string
	nameMu sync.Mutex

	rejected atomic.Int64
	history  executionHistory
}

func NewSyncQueue() *SyncQueue {
	return &SyncQueue{
		shutdownChan: make(chan struct{}),
		history:      newExecutionHistory(defaultTaskHistoryCapacity),
	}
}

// Name returns the name of the queue
func (q *SyncQueue) Name() string {
	q.nameMu.Lock()
	defer q.nameMu.Unlock()
	return q.name
}

// SetName sets the name of the queue
func (q *SyncQueue) SetName(name string) {
	q.nameMu.Lock()
	defer q.nameMu.Unlock()
	q.name = name
}

// PostTask runs task inline
func (q *SyncQueue) PostTask(task Task) {
	q.postInternal(task, "", DefaultTraits())
}

// PostTaskNamed runs task inline with an explicit history name
func (q *SyncQueue) PostTaskNamed(name string, task Task) {
	q.postInternal(task, name, DefaultTraits())
}

// PostTaskWithTraits runs task inline; traits only affect the history record
func (q *SyncQueue) PostTaskWithTraits(task Task, traits Traits) {
	q.postInternal(task, "", traits)
}

// PostDelayedTask runs task inline; the delay is ignored
func (q *SyncQueue) PostDelayedTask(task Task, delay time.Duration) {
	q.postInternal(task, "", DefaultTraits())
}

// PostDelayedTaskNamed runs task inline; the delay is ignored
func (q *SyncQueue) PostDelayedTaskNamed(name string, task Task, delay time.Duration) {
	q.postInternal(task, name, DefaultTraits())
}

// PostDelayedTaskWithTraits runs task inline; the delay is ignored
func (q *SyncQueue) PostDelayedTaskWithTraits(task Task, delay time.Duration, traits Traits) {
	q.postInternal(task, "", traits)
}

func (q *SyncQueue) postInternal(task Task, name string, traits Traits) {
	if q.closed.Load() {
		q.rejected.Add(1)
		return
	}

	observed := wrapObservedTask(task, name, traits, q.Name(), "sync", q.history.Add)
	observed(withQueue(context.Background(), q))
}

// Shutdown marks the queue as closed; later posts are dropped.
func (q *SyncQueue) Shutdown() {
	q.closed.Store(true)
	q.shutdownOnce.Do(func() {
		close(q.shutdownChan)
	})
}

// IsClosed returns true if the queue has been shut down.
func (q *SyncQueue) IsClosed() bool {
	return q.closed.Load()
}

// WaitIdle returns immediately: inline execution means nothing is ever pending.
func (q *SyncQueue) WaitIdle(ctx context.Context) error {
	if q.IsClosed() {
		return fmt.Errorf("queue is closed")
	}
	return ctx.Err()
}

// FlushAsync runs callback inline for the same reason.
func (q *SyncQueue) FlushAsync(callback func()) {
	if callback == nil || q.IsClosed() {
		return
	}
	callback()
}

// WaitShutdown blocks until Shutdown() is called on this queue.
func (q *SyncQueue) WaitShutdown(ctx context.Context) error {
	select {
	case <-q.shutdownChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecentTasks returns up to limit most recent execution records, newest first.
func (q *SyncQueue) RecentTasks(limit int) []TaskExecutionRecord {
	return q.history.Recent(limit)
}

// RejectedCount returns how many tasks were dropped after close
func (q *SyncQueue) RejectedCount() int64 {
	return q.rejected.Load()
}

// Stats returns a snapshot of the queue's observable state
func (q *SyncQueue) Stats() QueueStats {
	stats := QueueStats{
		Name:     q.Name(),
		Type:     "sync",
		Rejected: q.rejected.Load(),
		Closed:   q.closed.Load(),
	}
	if last, ok := q.history.Last(); ok {
		stats.LastTaskName = last.Name
		stats.LastTaskAt = last.FinishedAt
	}
	return stats
}
