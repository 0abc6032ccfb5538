package dispatch

import "github.com/go-dispatch/dispatch/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the dispatch package for most use cases.

// Task is the unit of work (Closure)
type Task = core.Task

// Traits defines task attributes (QoS class, blocking behavior, etc.)
type Traits = core.Traits

// QoS is the quality-of-service class of a task
type QoS = core.QoS

// Queue is the interface for posting tasks
type Queue = core.Queue

// QueueProvider supplies the queue a piece of work should land on
type QueueProvider = core.QueueProvider

// ProviderFunc adapts a plain function to the QueueProvider interface
type ProviderFunc = core.ProviderFunc

// TaskGroup tracks a batch of tasks across queues
type TaskGroup = core.TaskGroup

// TaskGroupConfig configures optional TaskGroup behavior
type TaskGroupConfig = core.TaskGroupConfig

// MainQueue ensures all tasks execute on the same dedicated goroutine
type MainQueue = core.MainQueue

// SerialQueue ensures sequential execution of tasks on the pool
type SerialQueue = core.SerialQueue

// GlobalQueue is the unordered QoS-classed queue over the pool
type GlobalQueue = core.GlobalQueue

// SyncQueue executes tasks inline, for deterministic tests
type SyncQueue = core.SyncQueue

// RepeatingTaskHandle controls the lifecycle of a repeating task
type RepeatingTaskHandle = core.RepeatingTaskHandle

// DispatcherConfig carries the handlers and logger shared by the pool, the
// owned main queue, and the default task-group wiring.
type DispatcherConfig = core.SchedulerConfig

// QoS constants
const (
	QoSBackground      QoS = core.QoSBackground
	QoSUtility         QoS = core.QoSUtility
	QoSDefault         QoS = core.QoSDefault
	QoSUserInteractive QoS = core.QoSUserInteractive
)

// Convenience functions for creating Traits
var (
	DefaultTraits         = core.DefaultTraits
	TraitsFor             = core.TraitsFor
	TraitsUserInteractive = core.TraitsUserInteractive
	TraitsUtility         = core.TraitsUtility
	TraitsBackground      = core.TraitsBackground
)

// NewTaskGroup creates a group bound to the given default provider.
// This is re-exported for hosts that wire their own queues; CreateTaskGroup
// is the global-dispatcher convenience.
func NewTaskGroup(defaultProvider QueueProvider) *TaskGroup {
	return core.NewTaskGroup(defaultProvider)
}

// NewTaskGroupWithConfig creates a group from an explicit config.
func NewTaskGroupWithConfig(cfg *TaskGroupConfig) *TaskGroup {
	return core.NewTaskGroupWithConfig(cfg)
}

// NewSerialQueue creates a new SerialQueue with the given executor pool.
// This is re-exported for advanced users who want to create queues with custom pools.
func NewSerialQueue(pool ExecutorPool) *SerialQueue {
	return core.NewSerialQueue(pool)
}

// NewMainQueue creates a new MainQueue with a dedicated goroutine.
// Use this for blocking IO operations, CGO calls with thread-local storage, or UI thread simulation.
func NewMainQueue() *MainQueue {
	return core.NewMainQueue()
}

// NewSyncQueue creates an inline-executing queue for tests.
func NewSyncQueue() *SyncQueue {
	return core.NewSyncQueue()
}

// StaticProvider returns a provider that always yields q
func StaticProvider(q Queue) QueueProvider {
	return core.StaticProvider(q)
}

// ExecutorPool is re-exported for type compatibility
type ExecutorPool = core.ExecutorPool

// TaskWithResult and ReplyWithResult for generic PostTaskAndReply pattern
type TaskWithResult[T any] = core.TaskWithResult[T]
type ReplyWithResult[T any] = core.ReplyWithResult[T]

// CurrentQueue retrieves the current Queue from context
var CurrentQueue = core.CurrentQueue
