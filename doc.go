// Package dispatch provides GCD-style task group coordination on top of a
// goroutine worker-pool scheduler.
//
// The central type is TaskGroup: it counts work submitted across execution
// contexts and lets a caller block until the whole batch has finished (Join),
// bound the wait with a deadline, or register a callback that runs on a
// designated queue the moment the last item completes (Notify). Work is
// posted to queues obtained from providers, so callers express WHERE work
// runs (main, a QoS class, a custom queue) without holding scheduler
// internals.
//
// # Quick Start
//
// Initialize the global dispatcher at application startup:
//
//	dispatch.InitGlobalDispatcher(4) // 4 workers
//	defer dispatch.ShutdownGlobalDispatcher()
//
// Track a batch of tasks and wait for all of them:
//
//	group := dispatch.CreateTaskGroup()
//	group.PostTask(func(ctx context.Context) {
//		// runs on the default-class global queue
//	})
//	group.PostTaskToMain(func(ctx context.Context) {
//		// runs on the dispatcher's serialized main queue
//	})
//	if err := group.JoinWithTimeout(20 * time.Second); err != nil {
//		// deadline hit; the work keeps running
//	}
//
// # Key Concepts
//
// Queue: Interface for posting tasks. MainQueue runs everything on one
// dedicated goroutine, SerialQueue guarantees FIFO order on the shared pool,
// GlobalQueue runs tasks unordered at a fixed QoS class.
//
// QueueProvider: Strategy object resolving the queue for a submission.
// TaskGroups hold providers, not queues; dispatchers hand out providers for
// the main queue and each QoS class.
//
// TaskGroup: Counts submissions synchronously at post time and completions
// when each task function returns. Join blocks until the count reaches zero
// or its context expires, and reports which one happened. Notify decouples
// waiting from reacting: the callback fires on the group's default queue.
//
// Traits: Describes task attributes including QoS class (Background,
// Utility, Default, UserInteractive). The class determines when the pool
// schedules a task, not the order within a sequence.
//
// Dispatcher: The execution engine managing worker goroutines that pull and
// execute tasks from the scheduler, plus the owned main and global queues.
//
// # Thread Safety
//
// The pending counter is the group's only shared state and is updated under
// its own synchronization; tasks never touch it. Everything a completed task
// wrote is visible to the goroutine that unblocks from Join and to the
// Notify callback.
//
// # Example
//
//	import (
//		"context"
//		"time"
//
//		"github.com/go-dispatch/dispatch"
//	)
//
//	func main() {
//		dispatch.InitGlobalDispatcher(4)
//		defer dispatch.ShutdownGlobalDispatcher()
//
//		group := dispatch.CreateTaskGroup()
//
//		group.PostDelayedTask(func(ctx context.Context) {
//			println("slow item")
//		}, 3*time.Second)
//		group.PostDelayedTaskToMain(func(ctx context.Context) {
//			println("fast item, main queue")
//		}, 1500*time.Millisecond)
//
//		group.Notify(func(ctx context.Context) {
//			println("all done")
//		})
//		group.Join(context.Background())
//	}
package dispatch
