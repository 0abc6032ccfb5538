package dispatch

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-dispatch/dispatch/core"
)

// Dispatcher manages a set of worker goroutines plus the queue surface built
// on top of them: one serialized main queue, one cached global queue per QoS
// class, and factories for serial queues, providers and task groups.
// Responsible for pulling tasks from WorkSource and executing them.
type Dispatcher struct {
	id        string
	workers   int
	scheduler *core.TaskScheduler
	logger    core.Logger
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	running   bool
	runningMu sync.RWMutex

	main    *core.MainQueue
	globals [int(core.QoSUserInteractive) + 1]*core.GlobalQueue
}

// NewDispatcher creates a dispatcher with default handlers. The pool uses
// QoS-priority scheduling (FIFO within a class). workers must be >= 1.
func NewDispatcher(id string, workers int) *Dispatcher {
	return NewDispatcherWithConfig(id, workers, nil)
}

// NewDispatcherWithConfig creates a dispatcher with explicit handlers.
// A nil cfg (or nil cfg fields) falls back to defaults; the same config is
// shared with the owned main queue so panics and metrics land in one place.
func NewDispatcherWithConfig(id string, workers int, cfg *DispatcherConfig) *Dispatcher {
	if cfg == nil {
		cfg = core.DefaultSchedulerConfig()
	}

	d := &Dispatcher{
		id:        id,
		workers:   workers,
		scheduler: core.NewQoSTaskSchedulerWithConfig(workers, cfg),
		main:      core.NewMainQueueWithConfig(cfg),
	}
	d.logger = d.scheduler.GetLogger()
	d.main.SetName("main")

	for qos := range d.globals {
		d.globals[qos] = core.NewGlobalQueue(d, core.QoS(qos))
	}
	return d
}

// Start starts all worker goroutines
func (d *Dispatcher) Start(ctx context.Context) {
	d.runningMu.Lock()
	defer d.runningMu.Unlock()

	if d.running {
		return // Already running
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.running = true

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.workerLoop(i, d.ctx)
	}

	if d.logger != nil {
		d.logger.Info("dispatcher started", core.F("id", d.id), core.F("workers", d.workers))
	}
}

// Stop stops the dispatcher: queues are closed, pending work is dropped,
// running tasks finish, workers exit.
func (d *Dispatcher) Stop() {
	// Close the queue surface first so nothing new reaches the scheduler
	d.main.Shutdown()
	for _, g := range d.globals {
		g.Shutdown()
	}

	// Always shutdown scheduler to clean up resources (queue, delayed tasks)
	// even if the dispatcher was never started
	d.scheduler.Shutdown()

	d.runningMu.Lock()
	if !d.running {
		d.runningMu.Unlock()
		return
	}
	d.runningMu.Unlock()

	if d.cancel != nil {
		d.cancel()
	}
	d.Join()

	d.runningMu.Lock()
	d.running = false
	d.runningMu.Unlock()

	if d.logger != nil {
		d.logger.Info("dispatcher stopped", core.F("id", d.id))
	}
}

// StopGraceful stops the dispatcher, waiting up to timeout for queued tasks
// to drain. Returns an error if the timeout is exceeded; workers are stopped
// either way. The main queue finishes its backlog on its own goroutine and
// is closed in both cases.
func (d *Dispatcher) StopGraceful(timeout time.Duration) error {
	d.runningMu.Lock()
	if !d.running {
		// Not running, nothing to do
		d.runningMu.Unlock()
		return nil
	}
	d.runningMu.Unlock()

	// Stop intake while the scheduler drains
	for _, g := range d.globals {
		g.Shutdown()
	}

	// First, gracefully shutdown the scheduler (waits for queues to drain)
	err := d.scheduler.ShutdownGraceful(timeout)
	if err != nil && d.logger != nil {
		d.logger.Warn("dispatcher graceful stop timed out", core.F("id", d.id), core.F("timeout", timeout))
	}

	d.main.Shutdown()

	if d.cancel != nil {
		d.cancel()
	}
	d.Join()

	d.runningMu.Lock()
	d.running = false
	d.runningMu.Unlock()

	if err == nil && d.logger != nil {
		d.logger.Info("dispatcher stopped", core.F("id", d.id))
	}
	return err
}

// ID returns the ID of the dispatcher
func (d *Dispatcher) ID() string {
	return d.id
}

// IsRunning returns whether the dispatcher is running
func (d *Dispatcher) IsRunning() bool {
	d.runningMu.RLock()
	defer d.runningMu.RUnlock()
	return d.running
}

// workerLoop is the main loop for each worker
func (d *Dispatcher) workerLoop(id int, ctx context.Context) {
	defer d.wg.Done()
	stopCh := ctx.Done()

	for {
		// Pull tasks from WorkSource
		task, ok := d.scheduler.GetWork(stopCh)
		if !ok {
			// WorkSource closed or context canceled
			return
		}

		// Update Active Metrics via interface
		d.scheduler.OnTaskStart()

		// Execute task and capture panic
		func() {
			defer func() {
				d.scheduler.OnTaskEnd()
				if r := recover(); r != nil {
					if handler := d.scheduler.GetPanicHandler(); handler != nil {
						handler.HandlePanic(ctx, d.id, id, r, debug.Stack())
					}
					if metrics := d.scheduler.GetMetrics(); metrics != nil {
						metrics.RecordTaskPanic(d.id, r)
					}
				}
			}()
			task(ctx)
		}()
	}
}

// Join waits for all worker goroutines to finish
func (d *Dispatcher) Join() {
	d.wg.Wait()
}

// WorkerCount returns the number of workers
func (d *Dispatcher) WorkerCount() int {
	return d.workers
}

func (d *Dispatcher) QueuedTaskCount() int {
	return d.scheduler.QueuedTaskCount()
}

func (d *Dispatcher) ActiveTaskCount() int {
	return d.scheduler.ActiveTaskCount()
}

func (d *Dispatcher) DelayedTaskCount() int {
	return d.scheduler.DelayedTaskCount()
}

// Stats returns a snapshot of the dispatcher's observable state
func (d *Dispatcher) Stats() core.PoolStats {
	return core.PoolStats{
		ID:      d.id,
		Workers: d.workers,
		Queued:  d.QueuedTaskCount(),
		Active:  d.ActiveTaskCount(),
		Delayed: d.DelayedTaskCount(),
		Running: d.IsRunning(),
	}
}

// GetScheduler exposes the scheduler for queue implementations and metric
// exporters that need handler or depth access.
func (d *Dispatcher) GetScheduler() *core.TaskScheduler {
	return d.scheduler
}

func (d *Dispatcher) PostInternal(task core.Task, traits core.Traits) {
	d.scheduler.PostInternal(task, traits)
}

func (d *Dispatcher) PostDelayedInternal(task core.Task, delay time.Duration, traits core.Traits, target core.Queue) {
	d.scheduler.PostDelayedInternal(task, delay, traits, target)
}

// =============================================================================
// Queue Surface
// =============================================================================

// Main returns the dispatcher's serialized main queue. It exists from
// construction and is closed by Stop.
func (d *Dispatcher) Main() *core.MainQueue {
	return d.main
}

// Global returns the cached queue for the given QoS class.
// Classes outside the known range map to the default class.
func (d *Dispatcher) Global(qos core.QoS) *core.GlobalQueue {
	if qos < core.QoSBackground || qos > core.QoSUserInteractive {
		qos = core.QoSDefault
	}
	return d.globals[qos]
}

// NewSerialQueue creates a FIFO queue multiplexed onto this dispatcher's
// workers. Each call returns a new, independent sequence.
func (d *Dispatcher) NewSerialQueue() *core.SerialQueue {
	return core.NewSerialQueue(d)
}

// MainProvider returns a provider yielding the dispatcher's main queue.
func (d *Dispatcher) MainProvider() core.QueueProvider {
	return core.StaticProvider(d.main)
}

// Provider returns a provider yielding the global queue of the given class.
func (d *Dispatcher) Provider(qos core.QoS) core.QueueProvider {
	return core.StaticProvider(d.Global(qos))
}

// NewTaskGroup creates a group bound to this dispatcher: submissions go to
// the default-class global queue, main posts to the main queue.
func (d *Dispatcher) NewTaskGroup() *core.TaskGroup {
	return core.NewTaskGroupWithConfig(&core.TaskGroupConfig{
		DefaultProvider: d.Provider(core.QoSDefault),
		MainProvider:    d.MainProvider(),
		Logger:          d.logger,
	})
}

// NewTaskGroupWithProvider creates a group with a caller-chosen default
// provider; main posts still target the dispatcher's main queue.
func (d *Dispatcher) NewTaskGroupWithProvider(provider core.QueueProvider) *core.TaskGroup {
	return core.NewTaskGroupWithConfig(&core.TaskGroupConfig{
		DefaultProvider: provider,
		MainProvider:    d.MainProvider(),
		Logger:          d.logger,
	})
}

// =============================================================================
// Global Dispatcher Helper (Singleton)
// =============================================================================

var (
	globalDispatcher *Dispatcher
	globalMu         sync.Mutex
)

// InitGlobalDispatcher initializes the global dispatcher with the specified
// number of workers. It starts the dispatcher immediately.
func InitGlobalDispatcher(workers int) {
	InitGlobalDispatcherWithConfig(workers, nil)
}

// InitGlobalDispatcherWithConfig is InitGlobalDispatcher with explicit
// handlers. Calling either Init twice is a no-op.
func InitGlobalDispatcherWithConfig(workers int, cfg *DispatcherConfig) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalDispatcher != nil {
		return // Already initialized
	}

	globalDispatcher = NewDispatcherWithConfig("global-dispatcher", workers, cfg)
	globalDispatcher.Start(context.Background())
}

// GetGlobalDispatcher returns the global dispatcher instance.
// It panics if InitGlobalDispatcher has not been called.
func GetGlobalDispatcher() *Dispatcher {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalDispatcher == nil {
		panic("GlobalDispatcher not initialized. Call InitGlobalDispatcher() first.")
	}
	return globalDispatcher
}

// ShutdownGlobalDispatcher stops the global dispatcher.
func ShutdownGlobalDispatcher() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalDispatcher != nil {
		globalDispatcher.Stop()
		globalDispatcher = nil
	}
}

// CreateTaskGroup creates a TaskGroup backed by the global dispatcher.
// This is the recommended way to track a batch of tasks.
func CreateTaskGroup() *core.TaskGroup {
	return GetGlobalDispatcher().NewTaskGroup()
}

// CreateSerialQueue creates a new SerialQueue backed by the global dispatcher.
func CreateSerialQueue() *core.SerialQueue {
	return GetGlobalDispatcher().NewSerialQueue()
}
