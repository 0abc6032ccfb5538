package core

import (
	"context"
	"fmt"
	"maps"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// GlobalQueue is an unordered queue bound to one QoS class. Tasks go straight
// to the executor pool and run with whatever parallelism the pool provides;
// completion order across tasks is unspecified.
//
// Every task posted here runs at the queue's class: caller traits keep their
// MayBlock and Label but the QoS field is overwritten.
type GlobalQueue struct {
	pool ExecutorPool
	qos  QoS

	closed       atomic.Bool
	shutdownChan chan struct{}
	shutdownOnce sync.Once

	// in-flight accounting for WaitIdle on an unordered queue
	queuedCount  atomic.Int32
	runningCount atomic.Int32
	inFlight     atomic.Int64
	idleMu       sync.Mutex
	idleCh       chan struct{}

	name       string
	metadata   map[string]any
	metadataMu sync.Mutex

	rejected atomic.Int64
	history  executionHistory
}

// NewGlobalQueue creates a queue bound to the given QoS class on top of pool.
// Panics if pool is nil.
func NewGlobalQueue(pool ExecutorPool, qos QoS) *GlobalQueue {
	if pool == nil {
		panic("GlobalQueue: pool must not be nil")
	}
	return &GlobalQueue{
		pool:         pool,
		qos:          qos,
		shutdownChan: make(chan struct{}),
		metadata:     make(map[string]any),
		history:      newExecutionHistory(defaultTaskHistoryCapacity),
	}
}

// QoS returns the class this queue is bound to.
func (q *GlobalQueue) QoS() QoS {
	return q.qos
}

// Pool returns the executor pool backing this queue
func (q *GlobalQueue) Pool() ExecutorPool {
	return q.pool
}

// Name returns the name of the queue
func (q *GlobalQueue) Name() string {
	q.metadataMu.Lock()
	defer q.metadataMu.Unlock()
	return q.name
}

// SetName sets the name of the queue
func (q *GlobalQueue) SetName(name string) {
	q.metadataMu.Lock()
	defer q.metadataMu.Unlock()
	q.name = name
}

// Metadata returns the metadata associated with the queue
func (q *GlobalQueue) Metadata() map[string]any {
	q.metadataMu.Lock()
	defer q.metadataMu.Unlock()
	// Return a copy to prevent external modification
	metadata := make(map[string]any, len(q.metadata))
	maps.Copy(metadata, q.metadata)
	return metadata
}

// SetMetadata sets a metadata key-value pair
func (q *GlobalQueue) SetMetadata(key string, value any) {
	q.metadataMu.Lock()
	defer q.metadataMu.Unlock()
	q.metadata[key] = value
}

func (q *GlobalQueue) observabilityName() string {
	if name := q.Name(); name != "" {
		return name
	}
	return "global-" + q.qos.String()
}

// effectiveTraits forces the queue's QoS class onto caller traits.
func (q *GlobalQueue) effectiveTraits(traits Traits) Traits {
	traits.QoS = q.qos
	return traits
}

// =============================================================================
// Posting
// =============================================================================

// PostTask submits a task at this queue's QoS class.
func (q *GlobalQueue) PostTask(task Task) {
	q.postInternal(task, "", DefaultTraits())
}

// PostTaskNamed submits a task whose execution record carries the given name
func (q *GlobalQueue) PostTaskNamed(name string, task Task) {
	q.postInternal(task, name, DefaultTraits())
}

// PostTaskWithTraits submits a task; traits.QoS is replaced by the queue's class.
func (q *GlobalQueue) PostTaskWithTraits(task Task, traits Traits) {
	q.postInternal(task, "", traits)
}

func (q *GlobalQueue) postInternal(task Task, name string, traits Traits) {
	if q.closed.Load() {
		q.rejected.Add(1)
		if m := q.schedulerMetrics(); m != nil {
			m.RecordTaskRejected(q.observabilityName(), "queue closed")
		}
		return
	}

	traits = q.effectiveTraits(traits)
	observed := wrapObservedTask(task, name, traits, q.observabilityName(), "global", q.history.Add)

	q.queuedCount.Add(1)
	q.inFlight.Add(1)
	q.pool.PostInternal(q.runTask(observed), traits)
}

// runTask wraps a task with in-flight bookkeeping and context injection.
func (q *GlobalQueue) runTask(task Task) Task {
	return func(ctx context.Context) {
		q.queuedCount.Add(-1)
		q.runningCount.Add(1)
		defer q.onTaskDone()

		runCtx := withQueue(ctx, q)

		func() {
			defer func() {
				if rec := recover(); rec != nil {
					if s := q.scheduler(); s != nil {
						if handler := s.GetPanicHandler(); handler != nil {
							handler.HandlePanic(runCtx, q.observabilityName(), -1, rec, debug.Stack())
						}
						if metrics := s.GetMetrics(); metrics != nil {
							metrics.RecordTaskPanic(q.observabilityName(), rec)
						}
					}
				}
			}()
			task(runCtx)
		}()
	}
}

func (q *GlobalQueue) onTaskDone() {
	q.runningCount.Add(-1)
	if q.inFlight.Add(-1) == 0 {
		q.idleMu.Lock()
		if q.idleCh != nil {
			close(q.idleCh)
			q.idleCh = nil
		}
		q.idleMu.Unlock()
	}
}

// PostDelayedTask submits a delayed task at this queue's QoS class.
func (q *GlobalQueue) PostDelayedTask(task Task, delay time.Duration) {
	q.PostDelayedTaskWithTraits(task, delay, DefaultTraits())
}

// PostDelayedTaskNamed submits a delayed task with an explicit history name
func (q *GlobalQueue) PostDelayedTaskNamed(name string, task Task, delay time.Duration) {
	if delay <= 0 {
		q.postInternal(task, name, DefaultTraits())
		return
	}
	if q.closed.Load() {
		q.rejected.Add(1)
		return
	}
	traits := q.effectiveTraits(DefaultTraits())
	q.pool.PostDelayedInternal(task, delay, traits, globalNamedRedirect{queue: q, name: name})
}

// PostDelayedTaskWithTraits submits a delayed task.
// A zero or negative delay means "now". The task does not count as in-flight
// until its delay expires.
func (q *GlobalQueue) PostDelayedTaskWithTraits(task Task, delay time.Duration, traits Traits) {
	if delay <= 0 {
		q.PostTaskWithTraits(task, traits)
		return
	}
	if q.closed.Load() {
		q.rejected.Add(1)
		return
	}
	q.pool.PostDelayedInternal(task, delay, q.effectiveTraits(traits), q)
}

// globalNamedRedirect reposts a delayed task into its global queue while
// keeping the explicit history name attached.
type globalNamedRedirect struct {
	queue *GlobalQueue
	name  string
}

func (r globalNamedRedirect) PostTask(task Task) {
	r.queue.postInternal(task, r.name, DefaultTraits())
}

func (r globalNamedRedirect) PostTaskWithTraits(task Task, traits Traits) {
	r.queue.postInternal(task, r.name, traits)
}

func (r globalNamedRedirect) PostDelayedTask(task Task, delay time.Duration) {
	r.queue.PostDelayedTaskNamed(r.name, task, delay)
}

func (r globalNamedRedirect) PostDelayedTaskWithTraits(task Task, delay time.Duration, traits Traits) {
	r.queue.PostDelayedTaskWithTraits(task, delay, traits)
}

// =============================================================================
// Scheduler Access
// =============================================================================

func (q *GlobalQueue) scheduler() *TaskScheduler {
	type schedulerGetter interface {
		GetScheduler() *TaskScheduler
	}
	if sg, ok := q.pool.(schedulerGetter); ok {
		return sg.GetScheduler()
	}
	return nil
}

func (q *GlobalQueue) schedulerMetrics() Metrics {
	if s := q.scheduler(); s != nil {
		return s.GetMetrics()
	}
	return nil
}

// =============================================================================
// Repeating Task Implementation
// =============================================================================

// globalRepeatingHandle implements RepeatingTaskHandle for GlobalQueue
type globalRepeatingHandle struct {
	task     Task
	interval time.Duration
	traits   Traits
	stopped  atomic.Bool
}

func (h *globalRepeatingHandle) Stop() {
	h.stopped.Store(true)
}

func (h *globalRepeatingHandle) IsStopped() bool {
	return h.stopped.Load()
}

func (h *globalRepeatingHandle) createRepeatingTask() Task {
	return func(ctx context.Context) {
		queue := CurrentQueue(ctx)

		if gq, ok := queue.(*GlobalQueue); ok && gq.IsClosed() {
			return
		}
		if h.IsStopped() {
			return
		}

		h.task(ctx)

		if !h.IsStopped() && queue != nil {
			if gq, ok := queue.(*GlobalQueue); ok && gq.IsClosed() {
				return
			}
			queue.PostDelayedTaskWithTraits(h.createRepeatingTask(), h.interval, h.traits)
		}
	}
}

// PostRepeatingTask submits a task that repeats at a fixed interval
func (q *GlobalQueue) PostRepeatingTask(task Task, interval time.Duration) RepeatingTaskHandle {
	return q.PostRepeatingTaskWithTraits(task, interval, DefaultTraits())
}

// PostRepeatingTaskWithTraits submits a repeating task with specific traits
func (q *GlobalQueue) PostRepeatingTaskWithTraits(
	task Task,
	interval time.Duration,
	traits Traits,
) RepeatingTaskHandle {
	return q.PostRepeatingTaskWithInitialDelay(task, 0, interval, traits)
}

// PostRepeatingTaskWithInitialDelay submits a repeating task with an initial delay
func (q *GlobalQueue) PostRepeatingTaskWithInitialDelay(
	task Task,
	initialDelay, interval time.Duration,
	traits Traits,
) RepeatingTaskHandle {
	handle := &globalRepeatingHandle{
		task:     task,
		interval: interval,
		traits:   traits,
	}

	repeatingTask := handle.createRepeatingTask()

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

// Shutdown marks the queue as closed. Tasks already handed to the pool still
// run; new posts are rejected. Normally called by the owning dispatcher.
func (q *GlobalQueue) Shutdown() {
	q.closed.Store(true)
	q.shutdownOnce.Do(func() {
		close(q.shutdownChan)
	})
}

// IsClosed returns true if the queue has been shut down.
func (q *GlobalQueue) IsClosed() bool {
	return q.closed.Load()
}

// =============================================================================
// Synchronization Methods
// =============================================================================

// WaitIdle blocks until every task posted before the call has finished.
// An unordered queue has no barrier ordering to lean on, so this waits for
// the in-flight count to drain to zero instead.
//
// Note: the count reaching zero also releases waiters when tasks posted
// AFTER the call finish first; only "all prior tasks done" is guaranteed.
func (q *GlobalQueue) WaitIdle(ctx context.Context) error {
	if q.IsClosed() {
		return fmt.Errorf("queue is closed")
	}

	for {
		if q.inFlight.Load() == 0 {
			return nil
		}

		q.idleMu.Lock()
		if q.idleCh == nil {
			q.idleCh = make(chan struct{})
		}
		ch := q.idleCh
		q.idleMu.Unlock()

		// Re-check after registering so a decrement between the first load
		// and the channel setup cannot be missed.
		if q.inFlight.Load() == 0 {
			return nil
		}

		select {
		case <-ch:
			// Became idle; loop re-checks in case new work arrived.
		case <-ctx.Done():
			return ctx.Err()
		case <-q.shutdownChan:
			return fmt.Errorf("queue shutdown during WaitIdle")
		}
	}
}

// FlushAsync runs callback once all tasks in flight at the time of the call
// have completed. Non-blocking; the callback itself runs as a task on this
// queue.
func (q *GlobalQueue) FlushAsync(callback func()) {
	if callback == nil {
		return
	}
	go func() {
		if err := q.WaitIdle(context.Background()); err != nil {
			return
		}
		q.PostTask(func(ctx context.Context) {
			callback()
		})
	}()
}

// WaitShutdown blocks until Shutdown() is called on this queue.
// Returns error if context is cancelled or deadline exceeded.
func (q *GlobalQueue) WaitShutdown(ctx context.Context) error {
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
func (q *GlobalQueue) RecentTasks(limit int) []TaskExecutionRecord {
	return q.history.Recent(limit)
}

// RejectedCount returns how many tasks were dropped after close
func (q *GlobalQueue) RejectedCount() int64 {
	return q.rejected.Load()
}

// Stats returns a snapshot of the queue's observable state
func (q *GlobalQueue) Stats() QueueStats {
	stats := QueueStats{
		Name:     q.observabilityName(),
		Type:     "global",
		Pending:  int(q.queuedCount.Load()),
		Running:  int(q.runningCount.Load()),
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
func (q *GlobalQueue) PostTaskAndReply(task Task, reply Task, replyQueue Queue) {
	postTaskAndReplyInternal(q, task, reply, replyQueue, DefaultTraits())
}

// PostTaskAndReplyWithTraits allows specifying different traits for task and reply.
func (q *GlobalQueue) PostTaskAndReplyWithTraits(
	task Task,
	taskTraits Traits,
	reply Task,
	replyTraits Traits,
	replyQueue Queue,
) {
	postTaskAndReplyInternalWithTraits(q, task, taskTraits, reply, replyTraits, replyQueue)
}
