package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// MainQueue binds a dedicated Goroutine to execute tasks sequentially.
// It guarantees that all tasks posted to it run on the same Goroutine
// (Thread Affinity), which makes it the privileged "main" execution context:
// ordering-sensitive work that would sit on a UI thread elsewhere goes here.
//
// Key differences from SerialQueue:
// - SerialQueue: Tasks execute sequentially but may run on different worker goroutines
// - MainQueue: Tasks execute sequentially AND always on the same dedicated goroutine
type MainQueue struct {
	// Task queue: Buffered channel for tasks
	workQueue chan Task

	// Lifecycle control
	ctx    context.Context
	cancel context.CancelFunc

	// For graceful shutdown
	stopped      chan struct{}
	once         sync.Once
	closed       atomic.Bool
	shutdownChan chan struct{}
	shutdownOnce sync.Once

	// Metadata
	name     string
	metadata map[string]interface{}
	mu       sync.Mutex

	// Observability
	running      atomic.Int32
	rejected     atomic.Int64
	history      executionHistory
	panicHandler PanicHandler
	metrics      Metrics
	logger       Logger
}

// NewMainQueue creates and starts a new MainQueue.
// It immediately spawns a dedicated goroutine for task execution.
func NewMainQueue() *MainQueue {
	return NewMainQueueWithConfig(nil)
}

// NewMainQueueWithConfig creates a MainQueue with custom handlers.
// A nil config or nil fields fall back to defaults.
func NewMainQueueWithConfig(config *SchedulerConfig) *MainQueue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &MainQueue{
		workQueue:    make(chan Task, 100), // Buffer to avoid blocking senders
		ctx:          ctx,
		cancel:       cancel,
		stopped:      make(chan struct{}),
		shutdownChan: make(chan struct{}),
		metadata:     make(map[string]interface{}),
		history:      newExecutionHistory(defaultTaskHistoryCapacity),
	}

	if config != nil {
		q.panicHandler = config.PanicHandler
		q.metrics = config.Metrics
		q.logger = config.Logger
	}
	if q.logger == nil {
		q.logger = NewDefaultLogger()
	}
	if q.panicHandler == nil {
		q.panicHandler = &DefaultPanicHandler{Logger: q.logger}
	}
	if q.metrics == nil {
		q.metrics = &NilMetrics{}
	}

	// Start the dedicated message loop
	go q.runLoop()

	return q
}

// Name returns the name of the queue
func (q *MainQueue) Name() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.name
}

// SetName sets the name of the queue
func (q *MainQueue) SetName(name string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.name = name
}

// Metadata returns the metadata associated with the queue
func (q *MainQueue) Metadata() map[string]interface{} {
	q.mu.Lock()
	defer q.mu.Unlock()

	// Return a copy to avoid race conditions
	result := make(map[string]interface{}, len(q.metadata))
	for k, v := range q.metadata {
		result[k] = v
	}
	return result
}

// SetMetadata sets a metadata key-value pair
func (q *MainQueue) SetMetadata(key string, value interface{}) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.metadata[key] = value
}

// Pool returns nil because MainQueue doesn't use an executor pool
func (q *MainQueue) Pool() ExecutorPool {
	return nil
}

// PostTask submits a task for execution
func (q *MainQueue) PostTask(task Task) {
	q.PostTaskWithTraits(task, DefaultTraits())
}

// PostTaskNamed submits a task whose execution record carries the given name
func (q *MainQueue) PostTaskNamed(name string, task Task) {
	q.postInternal(task, name, DefaultTraits())
}

// PostTaskWithTraits submits a task with traits (traits are ignored for single-goroutine execution)
func (q *MainQueue) PostTaskWithTraits(task Task, traits Traits) {
	q.postInternal(task, "", traits)
}

func (q *MainQueue) postInternal(task Task, name string, traits Traits) {
	// Check if queue is closed to avoid panic on closed channel
	if q.closed.Load() {
		q.rejected.Add(1)
		q.metrics.RecordTaskRejected(q.Name(), "closed")
		return
	}

	observed := wrapObservedTask(task, name, traits, q.Name(), "main", q.recordExecution)

	select {
	case <-q.ctx.Done():
		// Queue stopped, drop task
		q.rejected.Add(1)
		q.metrics.RecordTaskRejected(q.Name(), "stopped")
		return
	case q.workQueue <- observed:
		// Successfully queued
	}
}

// PostDelayedTask submits a delayed task
func (q *MainQueue) PostDelayedTask(task Task, delay time.Duration) {
	q.PostDelayedTaskWithTraits(task, delay, DefaultTraits())
}

// PostDelayedTaskNamed submits a delayed task with an explicit history name
func (q *MainQueue) PostDelayedTaskNamed(name string, task Task, delay time.Duration) {
	if delay <= 0 {
		q.postInternal(task, name, DefaultTraits())
		return
	}
	if q.closed.Load() {
		q.rejected.Add(1)
		return
	}
	time.AfterFunc(delay, func() {
		q.postInternal(task, name, DefaultTraits())
	})
}

// PostDelayedTaskWithTraits submits a delayed task with traits.
// Uses time.AfterFunc which is independent of the dispatcher's scheduler,
// ensuring main-queue timers are not affected by pool load.
// A zero or negative delay means "now".
func (q *MainQueue) PostDelayedTaskWithTraits(task Task, delay time.Duration, traits Traits) {
	if delay <= 0 {
		q.PostTaskWithTraits(task, traits)
		return
	}

	if q.closed.Load() {
		q.rejected.Add(1)
		return
	}

	select {
	case <-q.ctx.Done():
		q.rejected.Add(1)
		return
	default:
		// time.AfterFunc spawns a new goroutine when the timer fires,
		// we use PostTaskWithTraits to inject the task back into our main loop
		time.AfterFunc(delay, func() {
			q.PostTaskWithTraits(task, traits)
		})
	}
}

// PostRepeatingTask submits a task that repeats at a fixed interval
func (q *MainQueue) PostRepeatingTask(task Task, interval time.Duration) RepeatingTaskHandle {
	return q.PostRepeatingTaskWithTraits(task, interval, DefaultTraits())
}

// PostRepeatingTaskWithTraits submits a repeating task with traits
func (q *MainQueue) PostRepeatingTaskWithTraits(
	task Task,
	interval time.Duration,
	traits Traits,
) RepeatingTaskHandle {
	return q.PostRepeatingTaskWithInitialDelay(task, 0, interval, traits)
}

// PostRepeatingTaskWithInitialDelay submits a repeating task with an initial delay
func (q *MainQueue) PostRepeatingTaskWithInitialDelay(
	task Task,
	initialDelay, interval time.Duration,
	traits Traits,
) RepeatingTaskHandle {
	handle := &mainRepeatingHandle{
		queue:    q,
		task:     task,
		interval: interval,
		traits:   traits,
	}

	// Create the repeating task
	repeatingTask := handle.createRepeatingTask()

	// Schedule first execution
	if initialDelay > 0 {
		q.PostDelayedTaskWithTraits(repeatingTask, initialDelay, traits)
	} else {
		q.PostTaskWithTraits(repeatingTask, traits)
	}

	return handle
}

// Shutdown marks the queue as closed and signals shutdown waiters.
// Unlike Stop(), this method does NOT immediately terminate the runLoop.
// This allows tasks to call Shutdown() from within themselves.
//
// After calling Shutdown():
// - WaitShutdown() will return
// - IsClosed() will return true
// - New tasks posted will be ignored
// - Existing queued tasks will still execute
// - Call Stop() to actually terminate the runLoop
func (q *MainQueue) Shutdown() {
	q.shutdownOnce.Do(func() {
		// Mark as closed
		q.closed.Store(true)
		// Cancel context to stop accepting new tasks and unblock runLoop
		q.cancel()
		// Close shutdown channel to signal waiters
		close(q.shutdownChan)
	})
}

// IsClosed returns true if the queue has been stopped
func (q *MainQueue) IsClosed() bool {
	return q.closed.Load()
}

// Stop stops the queue and releases resources
func (q *MainQueue) Stop() {
	q.once.Do(func() {
		// 1. Mark as closed
		q.closed.Store(true)

		// 2. Cancel context to stop accepting new tasks
		q.cancel()

		// 3. Wait for runLoop to finish (ensures current task completes)
		<-q.stopped
	})
}

// runLoop is the core of this queue, it occupies a dedicated goroutine
func (q *MainQueue) runLoop() {
	defer close(q.stopped) // Signal that Stop() can return

	// Create context with queueKey for CurrentQueue
	runCtx := withQueue(q.ctx, q)

	for {
		select {
		case task := <-q.workQueue:
			q.executeTask(runCtx, task)

		case <-q.ctx.Done():
			// Received stop signal
			// Remaining queued tasks are dropped
			return
		}
	}
}

func (q *MainQueue) executeTask(runCtx context.Context, task Task) {
	q.running.Add(1)
	defer q.running.Add(-1)

	defer func() {
		if rec := recover(); rec != nil {
			q.metrics.RecordTaskPanic(q.Name(), rec)
			q.panicHandler.HandlePanic(runCtx, q.Name(), -1, rec, debug.Stack())
		}
	}()
	task(runCtx)
}

func (q *MainQueue) recordExecution(record TaskExecutionRecord) {
	q.history.Add(record)
	q.metrics.RecordTaskDuration(record.QueueName, record.QoS, record.Duration)
}

// RecentTasks returns up to limit most recent execution records, newest first.
// A limit <= 0 returns all retained records.
func (q *MainQueue) RecentTasks(limit int) []TaskExecutionRecord {
	return q.history.Recent(limit)
}

// RejectedCount returns how many tasks were dropped after close
func (q *MainQueue) RejectedCount() int64 {
	return q.rejected.Load()
}

// Stats returns a snapshot of the queue's observable state
func (q *MainQueue) Stats() QueueStats {
	stats := QueueStats{
		Name:     q.Name(),
		Type:     "main",
		Pending:  len(q.workQueue),
		Running:  int(q.running.Load()),
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
// Repeating Task Handle for MainQueue
// =============================================================================

type mainRepeatingHandle struct {
	queue    *MainQueue
	task     Task
	interval time.Duration
	traits   Traits
	stopped  atomic.Bool
}

func (h *mainRepeatingHandle) Stop() {
	h.stopped.Store(true)
}

func (h *mainRepeatingHandle) IsStopped() bool {
	return h.stopped.Load()
}

func (h *mainRepeatingHandle) createRepeatingTask() Task {
	return func(ctx context.Context) {
		// Check if queue is closed
		if h.queue.IsClosed() {
			return
		}

		// Check if handle is stopped
		if h.IsStopped() {
			return
		}

		// Execute the task
		h.task(ctx)

		// Reschedule if not stopped and queue is still open
		if !h.IsStopped() && !h.queue.IsClosed() {
			h.queue.PostDelayedTaskWithTraits(h.createRepeatingTask(), h.interval, h.traits)
		}
	}
}

// =============================================================================
// Task and Reply Pattern
// =============================================================================

// PostTaskAndReply executes task on this queue, then posts reply to replyQueue.
// If task panics, reply will not be executed.
// Both task and reply will execute on the same dedicated goroutine if replyQueue is this queue.
func (q *MainQueue) PostTaskAndReply(task Task, reply Task, replyQueue Queue) {
	postTaskAndReplyInternal(q, task, reply, replyQueue, DefaultTraits())
}

// PostTaskAndReplyWithTraits allows specifying different traits for task and reply.
// Note: For MainQueue, traits don't affect execution order since all tasks
// run sequentially on the same goroutine, but they show up in history and metrics.
func (q *MainQueue) PostTaskAndReplyWithTraits(
	task Task,
	taskTraits Traits,
	reply Task,
	replyTraits Traits,
	replyQueue Queue,
) {
	postTaskAndReplyInternalWithTraits(q, task, taskTraits, reply, replyTraits, replyQueue)
}

// =============================================================================
// Synchronization Methods
// =============================================================================

// WaitIdle blocks until all currently queued tasks have completed execution.
// This is implemented by posting a barrier task and waiting for it to execute.
//
// Since MainQueue executes tasks sequentially on a dedicated goroutine,
// when the barrier task executes, all tasks posted before WaitIdle are
// guaranteed to have completed.
//
// Returns error if:
// - Context is cancelled or deadline exceeded
// - Queue is closed when WaitIdle is called
//
// Note: Tasks posted after WaitIdle is called are not waited for.
// Note: Repeating tasks will continue to repeat and are not waited for.
func (q *MainQueue) WaitIdle(ctx context.Context) error {
	if q.IsClosed() {
		return fmt.Errorf("queue is closed")
	}

	done := make(chan struct{})

	// Post a barrier task that closes the done channel
	q.PostTask(func(taskCtx context.Context) {
		close(done)
	})

	// Wait for barrier task or context cancellation
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FlushAsync posts a barrier task that executes the callback when all prior tasks complete.
// This is a non-blocking alternative to WaitIdle.
//
// The callback will be executed on this queue's dedicated goroutine, after all tasks
// posted before FlushAsync have completed.
//
// Example:
//
//	queue.PostTask(task1)
//	queue.PostTask(task2)
//	queue.FlushAsync(func() {
//	    fmt.Println("task1 and task2 completed!")
//	})
func (q *MainQueue) FlushAsync(callback func()) {
	q.PostTask(func(ctx context.Context) {
		callback()
	})
}

// WaitShutdown blocks until Shutdown() is called on this queue.
//
// This is useful for waiting for the queue to be shut down, either by
// an external caller or by a task running on the queue itself.
//
// Returns error if context is cancelled or deadline exceeded.
//
// Example:
//
//	// IO queue: receives messages and posts shutdown when condition met
//	ioQueue.PostTask(func(ctx context.Context) {
//	    for {
//	        msg := receiveMessage()
//	        mainQueue.PostTask(func(ctx context.Context) {
//	            if shouldShutdown(msg) {
//	                me := CurrentQueue(ctx)
//	                me.(*MainQueue).Shutdown()
//	            }
//	        })
//	    }
//	})
//
//	// Main goroutine waits for shutdown
//	mainQueue.WaitShutdown(context.Background())
func (q *MainQueue) WaitShutdown(ctx context.Context) error {
	select {
	case <-q.shutdownChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
