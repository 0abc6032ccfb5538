package core

import (
	"context"
	"sync"
	"time"
)

// TaskGroup tracks a batch of tasks submitted across queues and lets callers
// wait for, or be notified of, the moment the whole batch has finished.
//
// The group keeps one pending counter. Every Post* call increments it
// synchronously in the calling goroutine before the task is handed to a
// queue; the count is decremented only after the task function has fully
// returned. Join blocks until the counter reaches zero, Notify registers a
// callback dispatched on the group's default queue when it does.
//
// The decrement intentionally does not run on panic paths: a task that
// panics (or never returns) never completes its bookkeeping, so the group
// stays non-idle forever. That is the documented contract violation for
// unbalanced work, not something the group detects or repairs. Pool workers
// recover such panics only to stay alive; the group is not informed.
//
// Cancellation of submitted work is not supported. A Join deadline abandons
// only the waiting: outstanding tasks keep running and a registered callback
// still fires when the last one finishes.
//
// A group may be reused for several batches, but interleaving unrelated
// batches conflates their completions; the intended pattern is one group per
// logical batch.
type TaskGroup struct {
	defaultProvider QueueProvider
	mainProvider    QueueProvider

	name   string
	logger Logger

	mu        sync.Mutex
	pending   int64
	completed int64
	watchers  []Task
	idleCh    chan struct{} // lazily created by Join, closed on idle transition
}

// TaskGroupConfig configures optional TaskGroup behavior.
// Only DefaultProvider is required.
type TaskGroupConfig struct {
	// DefaultProvider supplies the queue for PostTask/PostDelayedTask and for
	// Notify callbacks. Must not be nil.
	DefaultProvider QueueProvider

	// MainProvider supplies the queue for PostTaskToMain/PostDelayedTaskToMain.
	// When nil, main posts fall back to DefaultProvider.
	MainProvider QueueProvider

	// Name shows up in GroupStats and log fields.
	Name string

	// Logger, when set, receives debug records of idle transitions.
	Logger Logger
}

// NewTaskGroup creates a group whose submissions and notifications go to the
// queues supplied by defaultProvider. Panics if defaultProvider is nil.
func NewTaskGroup(defaultProvider QueueProvider) *TaskGroup {
	return NewTaskGroupWithConfig(&TaskGroupConfig{DefaultProvider: defaultProvider})
}

// NewTaskGroupWithConfig creates a group from cfg.
// Panics if cfg or cfg.DefaultProvider is nil.
func NewTaskGroupWithConfig(cfg *TaskGroupConfig) *TaskGroup {
	if cfg == nil {
		panic("TaskGroup: config must not be nil")
	}
	if cfg.DefaultProvider == nil {
		panic("TaskGroup: default provider must not be nil")
	}
	return &TaskGroup{
		defaultProvider: cfg.DefaultProvider,
		mainProvider:    cfg.MainProvider,
		name:            cfg.Name,
		logger:          cfg.Logger,
	}
}

// Name returns the name of the group
func (g *TaskGroup) Name() string {
	return g.name
}

func (g *TaskGroup) defaultQueue() Queue {
	return g.defaultProvider.Queue()
}

func (g *TaskGroup) mainQueue() Queue {
	if g.mainProvider != nil {
		return g.mainProvider.Queue()
	}
	return g.defaultProvider.Queue()
}

// =============================================================================
// Bookkeeping
// =============================================================================

// enter records one submission. Runs in the submitting goroutine, before the
// task reaches any queue, so the counter can never lag behind a completion
// even when the queue executes inline.
func (g *TaskGroup) enter() {
	g.mu.Lock()
	g.pending++
	g.mu.Unlock()
}

// leave records one completion. Called after the task function returned, so
// a task that panics keeps the group non-idle on purpose.
func (g *TaskGroup) leave() {
	g.mu.Lock()
	g.pending--
	g.completed++

	if g.pending < 0 {
		// Unlock before panicking: a worker may recover this panic and the
		// group must not be left with its mutex held.
		g.mu.Unlock()
		panic("dispatch: task group pending counter went negative")
	}

	var toNotify []Task
	if g.pending == 0 {
		if g.idleCh != nil {
			close(g.idleCh)
			g.idleCh = nil
		}
		if len(g.watchers) > 0 {
			toNotify = g.watchers
			g.watchers = nil
		}
		if g.logger != nil {
			g.logger.Debug("task group idle", F("group", g.name), F("completed", g.completed))
		}
	}
	g.mu.Unlock()

	// Dispatch outside the lock: an inline queue would otherwise run the
	// callback while the group mutex is held.
	for _, callback := range toNotify {
		g.defaultQueue().PostTask(callback)
	}
}

// wrap attaches the group's completion bookkeeping to a task.
// Deliberately not a defer: see the type comment on panic semantics.
func (g *TaskGroup) wrap(task Task) Task {
	return func(ctx context.Context) {
		task(ctx)
		g.leave()
	}
}

func (g *TaskGroup) post(q Queue, task Task, delay time.Duration, traits Traits) {
	g.enter()
	wrapped := g.wrap(task)
	if delay > 0 {
		q.PostDelayedTaskWithTraits(wrapped, delay, traits)
	} else {
		// Zero and negative delays mean "now"
		q.PostTaskWithTraits(wrapped, traits)
	}
}

// =============================================================================
// Submission
// =============================================================================

// PostTask submits task to the group's default queue and tracks it.
// Returns as soon as the task is scheduled.
func (g *TaskGroup) PostTask(task Task) {
	g.post(g.defaultQueue(), task, 0, DefaultTraits())
}

// PostTaskWithTraits submits task to the default queue with explicit traits.
func (g *TaskGroup) PostTaskWithTraits(task Task, traits Traits) {
	g.post(g.defaultQueue(), task, 0, traits)
}

// PostDelayedTask submits task to the default queue after delay, measured
// from this call. A delay <= 0 means "now".
func (g *TaskGroup) PostDelayedTask(task Task, delay time.Duration) {
	g.post(g.defaultQueue(), task, delay, DefaultTraits())
}

// PostDelayedTaskWithTraits is the delayed variant with explicit traits.
func (g *TaskGroup) PostDelayedTaskWithTraits(task Task, delay time.Duration, traits Traits) {
	g.post(g.defaultQueue(), task, delay, traits)
}

// PostTaskToMain submits task to the group's main queue and tracks it.
// Groups built without a main provider route this to the default provider.
func (g *TaskGroup) PostTaskToMain(task Task) {
	g.post(g.mainQueue(), task, 0, DefaultTraits())
}

// PostDelayedTaskToMain submits task to the main queue after delay.
func (g *TaskGroup) PostDelayedTaskToMain(task Task, delay time.Duration) {
	g.post(g.mainQueue(), task, delay, DefaultTraits())
}

// =============================================================================
// Join and Notify
// =============================================================================

// Join blocks until every tracked task has completed, then returns nil.
// When ctx expires first it returns ctx.Err() and the group is untouched:
// outstanding tasks keep running, the counter keeps counting, and callbacks
// registered with Notify still fire on completion.
//
// A group with nothing pending returns immediately. Use context.Background()
// to wait without a deadline.
func (g *TaskGroup) Join(ctx context.Context) error {
	g.mu.Lock()
	if g.pending == 0 {
		g.mu.Unlock()
		return nil
	}
	if g.idleCh == nil {
		g.idleCh = make(chan struct{})
	}
	ch := g.idleCh
	g.mu.Unlock()

	select {
	case <-ch:
		// Closed on the idle transition the caller was waiting for. Work
		// submitted after that transition belongs to a later batch.
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// JoinWithTimeout is Join with a deadline of d from now.
// d <= 0 degenerates to an immediate idle check: nil when nothing is
// pending, context.DeadlineExceeded otherwise.
func (g *TaskGroup) JoinWithTimeout(d time.Duration) error {
	if d <= 0 {
		g.mu.Lock()
		idle := g.pending == 0
		g.mu.Unlock()
		if idle {
			return nil
		}
		return context.DeadlineExceeded
	}

	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return g.Join(ctx)
}

// Notify registers callback to run exactly once on the default queue when
// the pending count next reaches zero. If the group is already idle the
// callback is dispatched immediately. Registration never blocks and is
// independent of Join: a timed-out Join does not cancel it.
//
// Multiple registrations are allowed; each fires once.
func (g *TaskGroup) Notify(callback Task) {
	if callback == nil {
		return
	}

	g.mu.Lock()
	if g.pending > 0 {
		g.watchers = append(g.watchers, callback)
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()

	g.defaultQueue().PostTask(callback)
}

// Pending returns the current number of tracked, unfinished tasks.
func (g *TaskGroup) Pending() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}

// Stats returns a snapshot of the group's observable state
func (g *TaskGroup) Stats() GroupStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return GroupStats{
		Name:      g.name,
		Pending:   g.pending,
		Watchers:  len(g.watchers),
		Completed: g.completed,
	}
}
