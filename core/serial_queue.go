package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// SerialQueue runs tasks strictly one at a time, in FIFO order, multiplexed
// onto an executor pool's workers. Consecutive tasks may land on different
// goroutines; only the ordering is guaranteed.
type SerialQueue struct {
	pool          ExecutorPool
	queue         ReadyQueue
	mu            sync.Mutex
	isRunning     bool
	activeRunners int32       // atomic guard for concurrency assertion
	closed        atomic.Bool // indicates if the queue is closed

	shutdownChan chan struct{}
	shutdownOnce sync.Once

	name   string
	nameMu sync.Mutex

	rejected atomic.Int64
	history  executionHistory
}

func NewSerialQueue(pool ExecutorPool) *SerialQueue {
	return &SerialQueue{
		pool:         pool,
		queue:        NewFIFOReadyQueue(),
		shutdownChan: make(chan struct{}),
		history:      newExecutionHistory(defaultTaskHistoryCapacity),
	}
}

// Name returns the name of the queue
func (q *SerialQueue) Name() string {
	q.nameMu.Lock()
	defer q.nameMu.Unlock()
	return q.name
}

// SetName sets the name of the queue
func (q *SerialQueue) SetName(name string) {
	q.nameMu.Lock()
	defer q.nameMu.Unlock()
	q.name = name
}

// Pool returns the executor pool backing this queue
func (q *SerialQueue) Pool() ExecutorPool {
	return q.pool
}

func (q *SerialQueue) runLoop(ctx context.Context) {
	// Assertion: Ensure strictly one goroutine at a time
	if n := atomic.AddInt32(&q.activeRunners, 1); n > 1 {
		panic(fmt.Sprintf("SerialQueue: concurrent runLoop detected (count=%d)", n))
	}
	defer atomic.AddInt32(&q.activeRunners, -1)

	runCtx := withQueue(ctx, q)

	// 1. Fetch SINGLE task
	item, ok := q.queue.Pop()
	if !ok {
		// Queue drained by a concurrent Shutdown
		q.mu.Lock()
		q.isRunning = !q.queue.IsEmpty()
		needRepost := q.isRunning
		q.mu.Unlock()

		if needRepost {
			nextTraits, _ := q.queue.PeekTraits() // Best effort peek
			q.rePostSelf(nextTraits)
		}
		return
	}

	// 2. Execute ONE task
	func() {
		defer func() { recover() }()
		item.Task(runCtx)
	}()

	// 3. Always repost if there are more tasks (Yield)
	// This ensures we yield to the scheduler between every task
	var more bool
	q.mu.Lock()
	if q.queue.IsEmpty() {
		q.isRunning = false
		more = false
	} else {
		more = true
	}
	q.mu.Unlock()

	if more {
		nextTraits, _ := q.queue.PeekTraits()
		q.rePostSelf(nextTraits)
	}
}

// scheduleRunLoop starts runLoop (if not already running)
func (q *SerialQueue) scheduleRunLoop(traits Traits) {
	q.mu.Lock()
	if !q.isRunning {
		q.isRunning = true
		q.mu.Unlock()
		q.pool.PostInternal(q.runLoop, traits)
	} else {
		q.mu.Unlock()
	}
}

// rePostSelf re-submits runLoop to the pool (for Yield)
func (q *SerialQueue) rePostSelf(traits Traits) {
	q.pool.PostInternal(q.runLoop, traits)
}

// PostTask submits task (using default Traits)
func (q *SerialQueue) PostTask(task Task) {
	q.PostTaskWithTraits(task, DefaultTraits())
}

// PostTaskNamed submits a task whose execution record carries the given name
func (q *SerialQueue) PostTaskNamed(name string, task Task) {
	q.postInternal(task, name, DefaultTraits())
}

// PostTaskWithTraits submits task with traits
func (q *SerialQueue) PostTaskWithTraits(task Task, traits Traits) {
	q.postInternal(task, "", traits)
}

func (q *SerialQueue) postInternal(task Task, name string, traits Traits) {
	if q.closed.Load() {
		q.rejected.Add(1)
		return
	}

	observed := wrapObservedTask(task, name, traits, q.Name(), "serial", q.history.Add)
	q.queue.Push(observed, traits)
	q.scheduleRunLoop(traits)
}

// PostDelayedTask submits a delayed task
func (q *SerialQueue) PostDelayedTask(task Task, delay time.Duration) {
	q.PostDelayedTaskWithTraits(task, delay, DefaultTraits())
}

// PostDelayedTaskNamed submits a delayed task with an explicit history name
func (q *SerialQueue) PostDelayedTaskNamed(name string, task Task, delay time.Duration) {
	if delay <= 0 {
		q.postInternal(task, name, DefaultTraits())
		return
	}
	if q.closed.Load() {
		q.rejected.Add(1)
		return
	}
	q.pool.PostDelayedInternal(func(ctx context.Context) {
		// Re-enters through postInternal so the record keeps its name
		task(ctx)
	}, delay, DefaultTraits(), namedRedirect{queue: q, name: name})
}

// PostDelayedTaskWithTraits submits a delayed task with traits.
// A zero or negative delay means "now".
func (q *SerialQueue) PostDelayedTaskWithTraits(task Task, delay time.Duration, traits Traits) {
	if delay <= 0 {
		q.PostTaskWithTraits(task, traits)
		return
	}
	if q.closed.Load() {
		q.rejected.Add(1)
		return
	}
	q.pool.PostDelayedInternal(task, delay, traits, q)
}

// namedRedirect reposts a delayed task into its serial queue while keeping
// the explicit history name attached.
type namedRedirect struct {
	queue *SerialQueue
	name  string
}

func (r namedRedirect) PostTask(task Task) {
	r.queue.postInternal(task, r.name, DefaultTraits())
}

func (r namedRedirect) PostTaskWithTraits(task Task, traits Traits) {
	r.queue.postInternal(task, r.name, traits)
}

func (r namedRedirect) PostDelayedTask(task Task, delay time.Duration) {
	r.queue.PostDelayedTaskNamed(r.name, task, delay)
}

func (r namedRedirect) PostDelayedTaskWithTraits(task Task, delay time.Duration, traits Traits) {
	r.queue.PostDelayedTaskWithTraits(task, delay, traits)
}

// =============================================================================
// Repeating Task Implementation
// =============================================================================

// serialRepeatingHandle implements RepeatingTaskHandle for SerialQueue
type serialRepeatingHandle struct {
	task     Task
	interval time.Duration
	traits   Traits
	stopped  atomic.Bool
}

func (h *serialRepeatingHandle) Stop() {
	h.stopped.Store(true)
}

func (h *serialRepeatingHandle) IsStopped() bool {
	return h.stopped.Load()
}

// createRepeatingTask creates a self-scheduling repeating task
func (h *serialRepeatingHandle) createRepeatingTask() Task {
	return func(ctx context.Context) {
		// Get the current queue from context
		queue := CurrentQueue(ctx)

		// Check if queue is closed (automatic cleanup)
		if sq, ok := queue.(*SerialQueue); ok && sq.IsClosed() {
			return
		}

		// Check if handle is manually stopped
		if h.IsStopped() {
			return
		}

		// Execute the original task
		h.task(ctx)

		// After execution, reschedule if not stopped and queue is still open
		if !h.IsStopped() && queue != nil {
			// Check again before rescheduling
			if sq, ok := queue.(*SerialQueue); ok && sq.IsClosed() {
				return
			}
			// Reschedule itself
			queue.PostDelayedTaskWithTraits(h.createRepeatingTask(), h.interval, h.traits)
		}
	}
}

// PostRepeatingTask submits a task that repeats at a fixed interval
func (q *SerialQueue) PostRepeatingTask(task Task, interval time.Duration) RepeatingTaskHandle {
	return q.PostRepeatingTaskWithTraits(task, interval, DefaultTraits())
}

// PostRepeatingTaskWithTraits submits a repeating task with specific traits
func (q *SerialQueue) PostRepeatingTaskWithTraits(
	task Task,
	interval time.Duration,
	traits Traits,
) RepeatingTaskHandle {
	return q.PostRepeatingTaskWithInitialDelay(task, 0, interval, traits)
}

// PostRepeatingTaskWithInitialDelay submits a repeating task with an initial delay
// The task will first execute after initialDelay, then repeat every interval.
func (q *SerialQueue) PostRepeatingTaskWithInitialDelay(
	task Task,
	initialDelay, interval time.Duration,
	traits Traits,
) RepeatingTaskHandle {
	handle := &serialRepeatingHandle{
		task:     task,
		interval: interval,
		traits:   traits,
	}

	// Create the self-scheduling repeating task
	repeatingTask := handle.createRepeatingTask()

	// Schedule first execution based on initialDelay
	if initialDelay > 0 {
		q.PostDelayedTaskWithTraits(repeatingTask, initialDelay, traits)
	} else {
		q.PostTaskWithTraits(repeatingTask, traits)
	}

	return handle
}

// =============================================================================
// Shutdown and Lifecycle Management
// =============================================================================

// Shutdown gracefully stops the queue by:
// 1. Marking it as closed (stops accepting new tasks)
// 2. Clearing all pending tasks
// 3. All repeating tasks will automatically stop on their next execution
//
// Note: This will not interrupt a currently executing task.
func (q *SerialQueue) Shutdown() {
	// Mark as closed
	q.closed.Store(true)

	// Clear the queue
	q.mu.Lock()
	q.queue = NewFIFOReadyQueue()
	q.isRunning = false
	q.mu.Unlock()

	// Signal shutdown waiters
	q.shutdownOnce.Do(func() {
		close(q.shutdownChan)
	})
}

// IsClosed returns true if the queue has been shut down.
func (q *SerialQueue) IsClosed() bool {
	return q.closed.Load()
}

// =============================================================================
// Synchronization Methods
// =============================================================================

// WaitIdle blocks until all tasks queued before the call have completed.
// Implemented with a barrier task, which is correct here because the queue
// is strictly FIFO.
func (q *SerialQueue) WaitIdle(ctx context.Context) error {
	if q.IsClosed() {
		return fmt.Errorf("queue is closed")
	}

	done := make(chan struct{})

	q.PostTask(func(taskCtx context.Context) {
		close(done)
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FlushAsync posts a barrier task that executes the callback when all prior
// tasks complete. Non-blocking alternative to WaitIdle.
func (q *SerialQueue) FlushAsync(callback func()) {
	q.PostTask(func(ctx context.Context) {
		callback()
	})
}

// WaitShutdown blocks until Shutdown() is called on this queue.
// Returns error if context is cancelled or deadline exceeded.
func (q *SerialQueue) WaitShutdown(ctx context.Context) error {
	select {
	case <-q.shutdownChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// =============================================================================
// Observability
// =============================================================================

// RecentTasks returns up to limit most recent execution records, newest first.
// A limit <= 0 returns all retained records.
func (q *SerialQueue) RecentTasks(limit int) []TaskExecutionRecord {
	return q.history.Recent(limit)
}

// RejectedCount returns how many tasks were dropped after close
func (q *SerialQueue) RejectedCount() int64 {
	return q.rejected.Load()
}

// Stats returns a snapshot of the queue's observable state
func (q *SerialQueue) Stats() QueueStats {
	q.mu.Lock()
	pending := q.queue.Len()
	running := 0
	if q.isRunning {
		running = 1
	}
	q.mu.Unlock()

	stats := QueueStats{
		Name:     q.Name(),
		Type:     "serial",
		Pending:  pending,
		Running:  running,
		Rejected: q.rejected.Load(),
		Closed:   q.closed.Load(),
	}
	if last, ok := q.history.Last(); ok {
		stats.LastTaskName = last.Name
		stats.LastTaskAt = last.FinishedAt
	}
	return stats
}

// =============================================================================
// Task and Reply Pattern
// =============================================================================

// PostTaskAndReply executes task on this queue, then posts reply to replyQueue.
// If task panics, reply will not be executed.
func (q *SerialQueue) PostTaskAndReply(task Task, reply Task, replyQueue Queue) {
	postTaskAndReplyInternal(q, task, reply, replyQueue, DefaultTraits())
}

// PostTaskAndReplyWithTraits allows specifying different traits for task and reply.
// This is useful when task is background work (QoSBackground) but reply is an
// interactive update (QoSUserInteractive).
func (q *SerialQueue) PostTaskAndReplyWithTraits(
	task Task,
	taskTraits Traits,
	reply Task,
	replyTraits Traits,
	replyQueue Queue,
) {
	postTaskAndReplyInternalWithTraits(q, task, taskTraits, reply, replyTraits, replyQueue)
}
